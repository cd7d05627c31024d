package v1

import "time"

// AgentStatus is the caller-facing lifecycle state of an agent.
type AgentStatus string

const (
	AgentStatusRunning   AgentStatus = "running"
	AgentStatusCompleted AgentStatus = "completed"
	AgentStatusFailed    AgentStatus = "failed"
	AgentStatusStopped   AgentStatus = "stopped"
)

// SpawnAgentRequest starts one agent under a task.
type SpawnAgentRequest struct {
	TaskName  string `json:"task_name"`
	AgentType string `json:"agent_type"`
	Prompt    string `json:"prompt"`
	Cwd       string `json:"cwd,omitempty"`
	Mode      string `json:"mode,omitempty"` // edit (default) or plan
	Model     string `json:"model,omitempty"`
	Ralph     bool   `json:"ralph,omitempty"`
}

type SpawnAgentResponse struct {
	AgentID   string      `json:"agent_id"`
	TaskName  string      `json:"task_name"`
	AgentType string      `json:"agent_type"`
	Status    AgentStatus `json:"status"`
}

// AgentStatusDetail is a point-in-time view of one agent.
type AgentStatusDetail struct {
	AgentID       string      `json:"agent_id"`
	TaskName      string      `json:"task_name"`
	AgentType     string      `json:"agent_type"`
	Status        AgentStatus `json:"status"`
	Mode          string      `json:"mode"`
	Model         string      `json:"model,omitempty"`
	Ralph         bool        `json:"ralph,omitempty"`
	Duration      string      `json:"duration"`
	StartedAt     time.Time   `json:"started_at"`
	CompletedAt   *time.Time  `json:"completed_at,omitempty"`
	ExitCode      *int        `json:"exit_code,omitempty"`
	Prompt        string      `json:"prompt"`
	Cwd           string      `json:"cwd"`
	FilesCreated  []string    `json:"files_created"`
	FilesModified []string    `json:"files_modified"`
	FilesDeleted  []string    `json:"files_deleted"`
	FilesRead     []string    `json:"files_read"`
	BashCommands  []string    `json:"bash_commands"`
	LastMessages  []string    `json:"last_messages"`
	ToolCount     int         `json:"tool_count"`
}

type AgentStatusResponse struct {
	TaskName string              `json:"task_name"`
	Agents   []AgentStatusDetail `json:"agents"`
}

type StopAgentResponse struct {
	Stopped bool `json:"stopped"`
}

// AgentTypeInfo describes a supported agent CLI and whether it resolves.
type AgentTypeInfo struct {
	Type        string `json:"type"`
	DisplayName string `json:"display_name"`
	Binary      string `json:"binary"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

type ListAgentTypesResponse struct {
	AgentTypes []AgentTypeInfo `json:"agent_types"`
}

// AgentRun is a persisted run from the audit log.
type AgentRun struct {
	AgentID      string     `json:"agent_id"`
	TaskName     string     `json:"task_name"`
	AgentType    string     `json:"agent_type"`
	Status       string     `json:"status"`
	Mode         string     `json:"mode"`
	Prompt       string     `json:"prompt"`
	Cwd          string     `json:"cwd"`
	ExitCode     int        `json:"exit_code"`
	ToolCount    int        `json:"tool_count"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	BashCommands []string   `json:"bash_commands,omitempty"`
	FilesChanged []string   `json:"files_changed,omitempty"`
	StderrTail   string     `json:"stderr_tail,omitempty"`
}

type ListAgentRunsResponse struct {
	TaskName string     `json:"task_name"`
	Runs     []AgentRun `json:"runs"`
}
