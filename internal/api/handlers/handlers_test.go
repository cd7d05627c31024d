//go:build unix

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kandev/agentfleet/internal/agent/agents"
	"github.com/kandev/agentfleet/internal/agent/launcher"
	"github.com/kandev/agentfleet/internal/agent/lifecycle"
	"github.com/kandev/agentfleet/internal/api/service"
	"github.com/kandev/agentfleet/internal/audit"
	"github.com/kandev/agentfleet/internal/common/config"
	"github.com/kandev/agentfleet/internal/common/errors"
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

func newTestRouter(t *testing.T, body string, maxPerTask int) *gin.Engine {
	t.Helper()
	reg, err := agents.NewRegistry("")
	require.NoError(t, err)
	bin := filepath.Join(t.TempDir(), "codex")
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	p, _ := reg.Get(agents.TypeCodex)
	p.Binary = bin
	reg.Set(agents.TypeCodex, p)

	sessions := t.TempDir()
	rec, err := audit.Provide(context.Background(), config.AuditConfig{Enabled: true, Driver: "sqlite"}, sessions)
	require.NoError(t, err)

	m := lifecycle.NewManager(
		lifecycle.Config{MaxAgents: 10, MaxPerTask: maxPerTask, StopGracePeriod: time.Second, SessionsDir: sessions},
		launcher.New(reg, newTestLogger()), newTestLogger(), lifecycle.WithRecorder(rec))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = m.Shutdown(ctx)
	})

	return NewRouter(service.NewService(m, rec, newTestLogger()), newTestLogger(), false)
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	router := newTestRouter(t, `exit 0`, 1)
	w := doJSON(t, router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestSpawnAgent_ValidationError(t *testing.T) {
	router := newTestRouter(t, `exit 0`, 1)

	w := doJSON(t, router, http.MethodPost, "/api/v1/tasks/t1/agents", map[string]any{
		"agent_type": "copilot", "prompt": "hi",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	appErr := decode[errors.AppError](t, w)
	assert.Equal(t, errors.ErrCodeValidation, appErr.Code)

	w = doJSON(t, router, http.MethodPost, "/api/v1/tasks/t1/agents", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSpawnStatusStopFlow(t *testing.T) {
	router := newTestRouter(t, `sleep 30 & wait`, 1)
	cwd := t.TempDir()

	w := doJSON(t, router, http.MethodPost, "/api/v1/tasks/t1/agents", map[string]any{
		"agent_type": "codex", "prompt": "hi", "cwd": cwd,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	spawned := decode[v1.SpawnAgentResponse](t, w)
	require.NotEmpty(t, spawned.AgentID)

	w = doJSON(t, router, http.MethodPost, "/api/v1/tasks/t1/agents", map[string]any{
		"agent_type": "codex", "prompt": "again", "cwd": cwd,
	})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, errors.ErrCodeConcurrencyLimit, decode[errors.AppError](t, w).Code)

	w = doJSON(t, router, http.MethodGet, "/api/v1/tasks/t1/agents?filter=running", nil)
	require.Equal(t, http.StatusOK, w.Code)
	status := decode[v1.AgentStatusResponse](t, w)
	require.Len(t, status.Agents, 1)
	assert.Equal(t, v1.AgentStatusRunning, status.Agents[0].Status)

	w = doJSON(t, router, http.MethodPost, "/api/v1/tasks/t1/agents/"+spawned.AgentID+"/stop", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[v1.StopAgentResponse](t, w).Stopped)

	w = doJSON(t, router, http.MethodPost, "/api/v1/tasks/t1/agents/"+spawned.AgentID+"/stop", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[v1.StopAgentResponse](t, w).Stopped)

	w = doJSON(t, router, http.MethodGet, "/api/v1/tasks/t1/agents/"+spawned.AgentID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, v1.AgentStatusStopped, decode[v1.AgentStatusDetail](t, w).Status)

	w = doJSON(t, router, http.MethodGet, "/api/v1/tasks/t1/runs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	runs := decode[v1.ListAgentRunsResponse](t, w)
	require.Len(t, runs.Runs, 1)
	assert.Equal(t, "stopped", runs.Runs[0].Status)
}

func TestGetAgent_NotFound(t *testing.T) {
	router := newTestRouter(t, `exit 0`, 1)
	w := doJSON(t, router, http.MethodGet, "/api/v1/tasks/t1/agents/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListRuns_BadLimit(t *testing.T) {
	router := newTestRouter(t, `exit 0`, 1)
	w := doJSON(t, router, http.MethodGet, "/api/v1/tasks/t1/runs?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListAgentTypes(t *testing.T) {
	router := newTestRouter(t, `exit 0`, 1)
	w := doJSON(t, router, http.MethodGet, "/api/v1/agent-types", nil)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[v1.ListAgentTypesResponse](t, w)
	require.Len(t, resp.AgentTypes, len(agents.AllTypes))
	for _, at := range resp.AgentTypes {
		if at.Type == "codex" {
			assert.True(t, at.Available)
		}
	}
}
