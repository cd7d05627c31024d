package audit

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/kandev/agentfleet/internal/common/config"
	"github.com/kandev/agentfleet/internal/db"
)

const schema = `
CREATE TABLE IF NOT EXISTS agent_runs (
	agent_id     TEXT PRIMARY KEY,
	task_name    TEXT NOT NULL,
	agent_type   TEXT NOT NULL,
	prompt       TEXT NOT NULL,
	cwd          TEXT NOT NULL,
	mode         TEXT NOT NULL,
	model        TEXT NOT NULL DEFAULT '',
	ralph        BOOLEAN NOT NULL DEFAULT FALSE,
	status       TEXT NOT NULL,
	exit_code    INTEGER NOT NULL DEFAULT -1,
	tool_count   INTEGER NOT NULL DEFAULT 0,
	summary      TEXT NOT NULL DEFAULT '',
	stderr_tail  TEXT NOT NULL DEFAULT '',
	started_at   TIMESTAMP NOT NULL,
	completed_at TIMESTAMP NULL
);
CREATE INDEX IF NOT EXISTS idx_agent_runs_task ON agent_runs(task_name, started_at);
`

// SQLStore records runs with sqlx on SQLite or PostgreSQL.
type SQLStore struct {
	db *sqlx.DB
}

// NewSQLStore creates the schema on db if needed.
func NewSQLStore(ctx context.Context, db *sqlx.DB) (*SQLStore, error) {
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("create audit schema: %w", err)
		}
	}
	return &SQLStore{db: db}, nil
}

// Provide opens the configured audit backend. A disabled audit log yields
// a NopRecorder.
func Provide(ctx context.Context, cfg config.AuditConfig, sessionsDir string) (Recorder, error) {
	if !cfg.Enabled {
		return NopRecorder{}, nil
	}
	dsn := cfg.DSN
	if cfg.Driver != db.DriverPostgres && dsn == "" {
		dsn = filepath.Join(sessionsDir, "audit.db")
	}
	conn, err := db.Open(ctx, cfg.Driver, dsn)
	if err != nil {
		return nil, err
	}
	store, err := NewSQLStore(ctx, conn)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLStore) RecordSpawn(ctx context.Context, run Run) error {
	run.encodeSummary()
	query := s.db.Rebind(`
		INSERT INTO agent_runs (agent_id, task_name, agent_type, prompt, cwd, mode, model, ralph,
			status, exit_code, tool_count, summary, stderr_tail, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, query,
		run.AgentID, run.TaskName, run.AgentType, run.Prompt, run.Cwd, run.Mode, run.Model, run.Ralph,
		run.Status, run.ExitCode, run.ToolCount, run.Summary, run.StderrTail, run.StartedAt.UTC(), nil)
	if err != nil {
		return fmt.Errorf("record spawn %s: %w", run.AgentID, err)
	}
	return nil
}

func (s *SQLStore) RecordFinish(ctx context.Context, run Run) error {
	run.encodeSummary()
	var completed any
	if run.CompletedAt != nil {
		completed = run.CompletedAt.UTC()
	}
	query := s.db.Rebind(`
		UPDATE agent_runs
		SET status = ?, exit_code = ?, tool_count = ?, summary = ?, stderr_tail = ?, completed_at = ?
		WHERE agent_id = ?`)
	res, err := s.db.ExecContext(ctx, query,
		run.Status, run.ExitCode, run.ToolCount, run.Summary, run.StderrTail, completed, run.AgentID)
	if err != nil {
		return fmt.Errorf("record finish %s: %w", run.AgentID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("record finish %s: no spawn row", run.AgentID)
	}
	return nil
}

// ListRuns returns the task's runs, newest first. A non-positive limit means 100.
func (s *SQLStore) ListRuns(ctx context.Context, taskName string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 100
	}
	query := s.db.Rebind(`
		SELECT agent_id, task_name, agent_type, prompt, cwd, mode, model, ralph, status,
			exit_code, tool_count, summary, stderr_tail, started_at, completed_at
		FROM agent_runs WHERE task_name = ? ORDER BY started_at DESC, agent_id LIMIT ?`)
	var runs []Run
	if err := s.db.SelectContext(ctx, &runs, query, taskName, limit); err != nil {
		return nil, fmt.Errorf("list runs for %s: %w", taskName, err)
	}
	for i := range runs {
		runs[i].decodeSummary()
	}
	return runs, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
