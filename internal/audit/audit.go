// Package audit keeps a durable history of agent runs next to the
// in-memory record store, which forgets runs once retention evicts them.
package audit

import (
	"context"
	"encoding/json"
	"time"
)

// Run is one agent run as persisted in the agent_runs table.
type Run struct {
	AgentID      string     `db:"agent_id" json:"agent_id"`
	TaskName     string     `db:"task_name" json:"task_name"`
	AgentType    string     `db:"agent_type" json:"agent_type"`
	Prompt       string     `db:"prompt" json:"prompt"`
	Cwd          string     `db:"cwd" json:"cwd"`
	Mode         string     `db:"mode" json:"mode"`
	Model        string     `db:"model" json:"model,omitempty"`
	Ralph        bool       `db:"ralph" json:"ralph"`
	Status       string     `db:"status" json:"status"`
	ExitCode     int        `db:"exit_code" json:"exit_code"`
	ToolCount    int        `db:"tool_count" json:"tool_count"`
	Summary      string     `db:"summary" json:"-"`
	StartedAt    time.Time  `db:"started_at" json:"started_at"`
	CompletedAt  *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	StderrTail   string     `db:"stderr_tail" json:"stderr_tail,omitempty"`
	BashCommands []string   `db:"-" json:"bash_commands,omitempty"`
	FilesChanged []string   `db:"-" json:"files_changed,omitempty"`
}

type summary struct {
	BashCommands []string `json:"bash_commands,omitempty"`
	FilesChanged []string `json:"files_changed,omitempty"`
}

func (r *Run) encodeSummary() {
	data, err := json.Marshal(summary{BashCommands: r.BashCommands, FilesChanged: r.FilesChanged})
	if err != nil {
		return
	}
	r.Summary = string(data)
}

func (r *Run) decodeSummary() {
	if r.Summary == "" {
		return
	}
	var s summary
	if err := json.Unmarshal([]byte(r.Summary), &s); err != nil {
		return
	}
	r.BashCommands = s.BashCommands
	r.FilesChanged = s.FilesChanged
}

// Recorder persists agent runs.
type Recorder interface {
	RecordSpawn(ctx context.Context, run Run) error
	RecordFinish(ctx context.Context, run Run) error
	ListRuns(ctx context.Context, taskName string, limit int) ([]Run, error)
	Close() error
}

// NopRecorder discards everything.
type NopRecorder struct{}

func (NopRecorder) RecordSpawn(context.Context, Run) error  { return nil }
func (NopRecorder) RecordFinish(context.Context, Run) error { return nil }
func (NopRecorder) ListRuns(context.Context, string, int) ([]Run, error) {
	return nil, nil
}
func (NopRecorder) Close() error { return nil }
