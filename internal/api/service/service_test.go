//go:build unix

package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kandev/agentfleet/internal/agent/agents"
	"github.com/kandev/agentfleet/internal/agent/launcher"
	"github.com/kandev/agentfleet/internal/agent/lifecycle"
	apperrors "github.com/kandev/agentfleet/internal/common/errors"
	"github.com/kandev/agentfleet/internal/common/logger"
	v1 "github.com/kandev/agentfleet/pkg/api/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *logger.Logger {
	log, _ := logger.NewLogger(logger.LoggingConfig{
		Level:  "error",
		Format: "json",
	})
	return log
}

func newTestService(t *testing.T, body string) *Service {
	t.Helper()
	reg, err := agents.NewRegistry("")
	require.NoError(t, err)
	bin := filepath.Join(t.TempDir(), "codex")
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	p, _ := reg.Get(agents.TypeCodex)
	p.Binary = bin
	reg.Set(agents.TypeCodex, p)

	m := lifecycle.NewManager(lifecycle.Config{MaxAgents: 4, MaxPerTask: 4, StopGracePeriod: time.Second},
		launcher.New(reg, newTestLogger()), newTestLogger())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = m.Shutdown(ctx)
	})
	return NewService(m, nil, newTestLogger())
}

func TestSpawn_Validation(t *testing.T) {
	svc := newTestService(t, `exit 0`)
	valid := v1.SpawnAgentRequest{TaskName: "t1", AgentType: "codex", Prompt: "hi", Cwd: t.TempDir(), Mode: "edit"}

	tests := []struct {
		name   string
		mutate func(r *v1.SpawnAgentRequest)
		field  string
	}{
		{"empty task", func(r *v1.SpawnAgentRequest) { r.TaskName = "  " }, "task_name"},
		{"unknown type", func(r *v1.SpawnAgentRequest) { r.AgentType = "copilot" }, "agent_type"},
		{"empty prompt", func(r *v1.SpawnAgentRequest) { r.Prompt = "" }, "prompt"},
		{"bad mode", func(r *v1.SpawnAgentRequest) { r.Mode = "yolo" }, "mode"},
		{"ralph in plan mode", func(r *v1.SpawnAgentRequest) { r.Mode = "plan"; r.Ralph = true }, "mode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)
			_, err := svc.Spawn(context.Background(), req)
			require.Error(t, err)
			assert.True(t, apperrors.IsValidation(err))
			assert.Contains(t, err.Error(), tt.field)
		})
	}

	status, err := svc.Status(context.Background(), "t1", "all")
	require.NoError(t, err)
	assert.Empty(t, status.Agents)
}

func TestSpawnStatusStop(t *testing.T) {
	svc := newTestService(t, `sleep 30 & wait`)

	resp, err := svc.Spawn(context.Background(), v1.SpawnAgentRequest{
		TaskName: "t1", AgentType: "codex", Prompt: "hi", Cwd: t.TempDir(),
	})
	require.NoError(t, err)
	assert.Equal(t, v1.AgentStatusRunning, resp.Status)

	status, err := svc.Status(context.Background(), "t1", "running")
	require.NoError(t, err)
	require.Len(t, status.Agents, 1)
	detail := status.Agents[0]
	assert.Equal(t, resp.AgentID, detail.AgentID)
	assert.Equal(t, "edit", detail.Mode)
	assert.Nil(t, detail.ExitCode)
	assert.NotEmpty(t, detail.Duration)

	stop, err := svc.Stop(context.Background(), "t1", resp.AgentID)
	require.NoError(t, err)
	assert.True(t, stop.Stopped)

	stop, err = svc.Stop(context.Background(), "t1", resp.AgentID)
	require.NoError(t, err)
	assert.False(t, stop.Stopped)

	status, err = svc.Status(context.Background(), "t1", resp.AgentID)
	require.NoError(t, err)
	require.Len(t, status.Agents, 1)
	assert.Equal(t, v1.AgentStatusStopped, status.Agents[0].Status)
	require.NotNil(t, status.Agents[0].ExitCode)

	unknown, err := svc.Status(context.Background(), "t1", "not-an-agent")
	require.NoError(t, err)
	assert.Empty(t, unknown.Agents)
}

func TestStop_RequiresIDs(t *testing.T) {
	svc := newTestService(t, `exit 0`)

	_, err := svc.Stop(context.Background(), "", "a")
	assert.True(t, apperrors.IsValidation(err))
	_, err = svc.Stop(context.Background(), "t", " ")
	assert.True(t, apperrors.IsValidation(err))
}

func TestStatusDetail_Terminal(t *testing.T) {
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	done := started.Add(90*time.Second + 400*time.Millisecond)
	snap := lifecycle.Snapshot{
		ID:           "a1",
		Spec:         lifecycle.Spec{TaskName: "t", AgentType: agents.TypeClaude, Prompt: "p", Cwd: "/w", Mode: agents.ModePlan},
		Status:       lifecycle.StatusFailed,
		StartedAt:    started,
		CompletedAt:  &done,
		ExitCode:     2,
		ToolCount:    4,
		BashCommands: []string{"make"},
	}

	d := StatusDetail(snap, started.Add(time.Hour))
	assert.Equal(t, v1.AgentStatusFailed, d.Status)
	assert.Equal(t, "1m30s", d.Duration)
	require.NotNil(t, d.ExitCode)
	assert.Equal(t, 2, *d.ExitCode)
	assert.Equal(t, "claude", d.AgentType)
	assert.Equal(t, []string{"make"}, d.BashCommands)
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "0s", FormatDuration(-time.Second))
	assert.Equal(t, "2s", FormatDuration(1600*time.Millisecond))
	assert.Equal(t, "1h0m5s", FormatDuration(time.Hour+5*time.Second))
}
