// Package service is the request layer over the agent manager: it validates
// caller input and shapes records into the v1 API types.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kandev/agentfleet/internal/agent/agents"
	"github.com/kandev/agentfleet/internal/agent/lifecycle"
	"github.com/kandev/agentfleet/internal/audit"
	apperrors "github.com/kandev/agentfleet/internal/common/errors"
	"github.com/kandev/agentfleet/internal/common/logger"
	v1 "github.com/kandev/agentfleet/pkg/api/v1"
)

const defaultRunsLimit = 50

// Service exposes Spawn, Status and Stop to transports.
type Service struct {
	manager  *lifecycle.Manager
	recorder audit.Recorder
	logger   *logger.Logger
}

// NewService creates a Service. recorder may be nil when auditing is off.
func NewService(manager *lifecycle.Manager, recorder audit.Recorder, log *logger.Logger) *Service {
	if recorder == nil {
		recorder = audit.NopRecorder{}
	}
	return &Service{
		manager:  manager,
		recorder: recorder,
		logger:   log.WithComponent("agent-service"),
	}
}

// Spawn validates req and starts the agent.
func (s *Service) Spawn(ctx context.Context, req v1.SpawnAgentRequest) (*v1.SpawnAgentResponse, error) {
	spec, err := validateSpawn(req)
	if err != nil {
		return nil, err
	}

	id, err := s.manager.Spawn(ctx, spec)
	if err != nil {
		return nil, err
	}
	return &v1.SpawnAgentResponse{
		AgentID:   id,
		TaskName:  spec.TaskName,
		AgentType: string(spec.AgentType),
		Status:    v1.AgentStatusRunning,
	}, nil
}

func validateSpawn(req v1.SpawnAgentRequest) (lifecycle.SpawnRequest, error) {
	taskName := strings.TrimSpace(req.TaskName)
	if taskName == "" {
		return lifecycle.SpawnRequest{}, apperrors.ValidationError("task_name", "must not be empty")
	}
	agentType, err := agents.ParseType(req.AgentType)
	if err != nil {
		return lifecycle.SpawnRequest{}, apperrors.ValidationError("agent_type",
			fmt.Sprintf("must be one of: %s", strings.Join(agents.TypeNames(), ", ")))
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return lifecycle.SpawnRequest{}, apperrors.ValidationError("prompt", "must not be empty")
	}
	mode := agents.ModeEdit
	if req.Mode != "" {
		if mode, err = agents.ParseMode(req.Mode); err != nil {
			return lifecycle.SpawnRequest{}, apperrors.ValidationError("mode", "must be edit or plan")
		}
	}
	if req.Ralph && mode != agents.ModeEdit {
		return lifecycle.SpawnRequest{}, apperrors.ValidationError("mode", "ralph mode requires edit mode")
	}
	return lifecycle.SpawnRequest{
		TaskName:  taskName,
		AgentType: agentType,
		Prompt:    req.Prompt,
		Cwd:       req.Cwd,
		Mode:      mode,
		Model:     strings.TrimSpace(req.Model),
		Ralph:     req.Ralph,
	}, nil
}

// Status lists the task's agents selected by filter: "all", "running" or an
// agent ID.
func (s *Service) Status(ctx context.Context, taskName, filter string) (*v1.AgentStatusResponse, error) {
	taskName = strings.TrimSpace(taskName)
	if taskName == "" {
		return nil, apperrors.ValidationError("task_name", "must not be empty")
	}
	snaps := s.manager.Status(taskName, strings.TrimSpace(filter))
	now := s.manager.Now()
	resp := &v1.AgentStatusResponse{TaskName: taskName, Agents: make([]v1.AgentStatusDetail, 0, len(snaps))}
	for _, snap := range snaps {
		resp.Agents = append(resp.Agents, StatusDetail(snap, now))
	}
	return resp, nil
}

// Stop terminates one agent. Unknown or already finished agents report
// stopped=false.
func (s *Service) Stop(ctx context.Context, taskName, agentID string) (*v1.StopAgentResponse, error) {
	taskName = strings.TrimSpace(taskName)
	if taskName == "" {
		return nil, apperrors.ValidationError("task_name", "must not be empty")
	}
	agentID = strings.TrimSpace(agentID)
	if agentID == "" {
		return nil, apperrors.ValidationError("agent_id", "must not be empty")
	}
	stopped, err := s.manager.Stop(ctx, taskName, agentID)
	if err != nil {
		s.logger.Warn("stop did not confirm exit",
			zap.String("task_name", taskName), zap.String("agent_id", agentID), zap.Error(err))
	}
	return &v1.StopAgentResponse{Stopped: stopped}, nil
}

// AgentTypes lists every supported type with its CLI availability.
func (s *Service) AgentTypes(ctx context.Context) *v1.ListAgentTypesResponse {
	reg := s.manager.Registry()
	resp := &v1.ListAgentTypesResponse{AgentTypes: make([]v1.AgentTypeInfo, 0, len(agents.AllTypes))}
	for _, t := range agents.AllTypes {
		p, _ := reg.Get(t)
		ok, detail := reg.CheckCliAvailable(ctx, t)
		resp.AgentTypes = append(resp.AgentTypes, v1.AgentTypeInfo{
			Type:        string(t),
			DisplayName: p.DisplayName,
			Binary:      p.Binary,
			Available:   ok,
			Detail:      detail,
		})
	}
	return resp
}

// Runs returns the task's audited runs, newest first.
func (s *Service) Runs(ctx context.Context, taskName string, limit int) (*v1.ListAgentRunsResponse, error) {
	taskName = strings.TrimSpace(taskName)
	if taskName == "" {
		return nil, apperrors.ValidationError("task_name", "must not be empty")
	}
	if limit <= 0 {
		limit = defaultRunsLimit
	}
	runs, err := s.recorder.ListRuns(ctx, taskName, limit)
	if err != nil {
		return nil, apperrors.InternalError("failed to list agent runs", err)
	}
	resp := &v1.ListAgentRunsResponse{TaskName: taskName, Runs: make([]v1.AgentRun, 0, len(runs))}
	for _, r := range runs {
		resp.Runs = append(resp.Runs, v1.AgentRun{
			AgentID:      r.AgentID,
			TaskName:     r.TaskName,
			AgentType:    r.AgentType,
			Status:       r.Status,
			Mode:         r.Mode,
			Prompt:       r.Prompt,
			Cwd:          r.Cwd,
			ExitCode:     r.ExitCode,
			ToolCount:    r.ToolCount,
			StartedAt:    r.StartedAt,
			CompletedAt:  r.CompletedAt,
			BashCommands: r.BashCommands,
			FilesChanged: r.FilesChanged,
			StderrTail:   r.StderrTail,
		})
	}
	return resp, nil
}

// StatusDetail converts a record snapshot into its API shape.
func StatusDetail(snap lifecycle.Snapshot, now time.Time) v1.AgentStatusDetail {
	d := v1.AgentStatusDetail{
		AgentID:       snap.ID,
		TaskName:      snap.Spec.TaskName,
		AgentType:     string(snap.Spec.AgentType),
		Status:        apiStatus(snap.Status),
		Mode:          string(snap.Spec.Mode),
		Model:         snap.Spec.Model,
		Ralph:         snap.Spec.Ralph,
		Duration:      FormatDuration(snap.Duration(now)),
		StartedAt:     snap.StartedAt,
		CompletedAt:   snap.CompletedAt,
		Prompt:        snap.Spec.Prompt,
		Cwd:           snap.Spec.Cwd,
		FilesCreated:  snap.FilesCreated,
		FilesModified: snap.FilesModified,
		FilesDeleted:  snap.FilesDeleted,
		FilesRead:     snap.FilesRead,
		BashCommands:  snap.BashCommands,
		LastMessages:  snap.LastMessages,
		ToolCount:     snap.ToolCount,
	}
	if snap.Status.Terminal() {
		code := snap.ExitCode
		d.ExitCode = &code
	}
	return d
}

func apiStatus(s lifecycle.Status) v1.AgentStatus {
	switch s {
	case lifecycle.StatusRunning:
		return v1.AgentStatusRunning
	case lifecycle.StatusCompleted:
		return v1.AgentStatusCompleted
	case lifecycle.StatusFailed:
		return v1.AgentStatusFailed
	case lifecycle.StatusStopped:
		return v1.AgentStatusStopped
	}
	return v1.AgentStatus(s.String())
}

// FormatDuration renders d rounded to the second, e.g. "1m30s".
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return d.Round(time.Second).String()
}
