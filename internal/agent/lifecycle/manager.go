package lifecycle

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/kandev/agentfleet/internal/agent/agents"
	"github.com/kandev/agentfleet/internal/agent/launcher"
	"github.com/kandev/agentfleet/internal/agent/streams"
	"github.com/kandev/agentfleet/internal/audit"
	apperrors "github.com/kandev/agentfleet/internal/common/errors"
	"github.com/kandev/agentfleet/internal/common/logger"
	"github.com/kandev/agentfleet/internal/common/tracing"
	"github.com/kandev/agentfleet/internal/events"
	"github.com/kandev/agentfleet/internal/events/bus"
)

const (
	defaultStopGracePeriod = 5 * time.Second
	defaultDrainTimeout    = 2 * time.Second
)

// Config bounds the manager.
type Config struct {
	MaxAgents       int
	MaxPerTask      int
	SessionsDir     string // raw output logs; empty disables them
	StopGracePeriod time.Duration
	// DrainTimeout bounds how long output is read after the process exits,
	// in case a grandchild still holds the pipe open.
	DrainTimeout time.Duration

	RetentionMaxRecords int
	RetentionMaxAge     time.Duration
	SweepInterval       time.Duration
}

// SpawnRequest holds the inputs of one Spawn call.
type SpawnRequest = Spec

// Manager is the only component that starts or terminates agent processes.
type Manager struct {
	cfg      Config
	launcher *launcher.Launcher
	store    *RecordStore
	bus      bus.EventBus
	recorder audit.Recorder
	logger   *logger.Logger
	tracer   trace.Tracer
	now      func() time.Time

	// mu guards the concurrency counters and the live table. A record's
	// terminal transition happens under mu together with the counter release.
	mu      sync.Mutex
	running int
	perTask map[string]int
	live    map[string]*liveAgent

	wg sync.WaitGroup
}

type liveAgent struct {
	rec  *AgentRecord
	proc *launcher.Process
	done chan struct{} // closed after finalize
}

// Option customizes a Manager.
type Option func(*Manager)

// WithEventBus publishes lifecycle events on b.
func WithEventBus(b bus.EventBus) Option {
	return func(m *Manager) { m.bus = b }
}

// WithRecorder persists runs through r.
func WithRecorder(r audit.Recorder) Option {
	return func(m *Manager) { m.recorder = r }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a Manager.
func NewManager(cfg Config, l *launcher.Launcher, log *logger.Logger, opts ...Option) *Manager {
	if cfg.StopGracePeriod <= 0 {
		cfg.StopGracePeriod = defaultStopGracePeriod
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = defaultDrainTimeout
	}
	m := &Manager{
		cfg:      cfg,
		launcher: l,
		store:    NewRecordStore(),
		recorder: audit.NopRecorder{},
		logger:   log.WithComponent("agent-manager"),
		tracer:   tracing.Tracer("agentfleet/lifecycle"),
		now:      time.Now,
		perTask:  make(map[string]int),
		live:     make(map[string]*liveAgent),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Store exposes the record store for read-only consumers.
func (m *Manager) Store() *RecordStore {
	return m.store
}

// Registry returns the agent registry used for launches.
func (m *Manager) Registry() *agents.Registry {
	return m.launcher.Registry()
}

// RunningCount returns the global and per-task running counts.
func (m *Manager) RunningCount(taskName string) (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running, m.perTask[taskName]
}

// Spawn starts an agent and returns its ID. It fails with CliUnavailable,
// ConcurrencyLimitExceeded, SpawnError or DangerousPath without creating a
// record or leaving a process behind.
func (m *Manager) Spawn(ctx context.Context, req SpawnRequest) (string, error) {
	ctx, span := m.tracer.Start(ctx, "agent.spawn", trace.WithAttributes(
		attribute.String("task_name", req.TaskName),
		attribute.String("agent_type", string(req.AgentType)),
		attribute.String("mode", string(req.Mode)),
	))
	defer span.End()

	id, err := m.spawn(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	span.SetAttributes(attribute.String("agent_id", id))
	return id, nil
}

func (m *Manager) spawn(ctx context.Context, req SpawnRequest) (string, error) {
	log := m.logger.WithTask(req.TaskName).WithFields(zap.String("agent_type", string(req.AgentType)))

	if ok, detail := m.launcher.CheckCliAvailable(ctx, req.AgentType); !ok {
		log.Warn("agent CLI unavailable", zap.String("detail", detail))
		return "", apperrors.CliUnavailable(string(req.AgentType), detail)
	}

	if err := m.reserve(req.TaskName); err != nil {
		log.Info("spawn rejected", zap.Error(err))
		return "", err
	}

	cwd, err := launcher.ResolveCwd(req.Cwd)
	if err != nil {
		m.release(req.TaskName)
		return "", apperrors.SpawnError(string(req.AgentType), err)
	}
	req.Cwd = cwd

	proc, err := m.launcher.Launch(launcher.Request{
		Type:   req.AgentType,
		Prompt: req.Prompt,
		Cwd:    req.Cwd,
		Mode:   req.Mode,
		Model:  req.Model,
		Ralph:  req.Ralph,
	})
	if err != nil {
		m.release(req.TaskName)
		log.Warn("agent launch failed", zap.Error(err))
		return "", err
	}

	parser, err := streams.NewParser(req.AgentType, m.logger)
	if err != nil {
		// Every launchable type has a table; this only trips on a registry
		// entry added without one.
		_ = proc.Kill()
		_, _ = proc.Wait()
		proc.CloseOutput()
		m.release(req.TaskName)
		return "", apperrors.SpawnError(string(req.AgentType), err)
	}

	id := uuid.New().String()
	rec := newAgentRecord(id, req, m.now())
	la := &liveAgent{rec: rec, proc: proc, done: make(chan struct{})}

	m.store.Add(rec)
	m.mu.Lock()
	m.live[id] = la
	m.mu.Unlock()

	log = log.WithAgentID(id)
	log.Info("agent spawned", zap.Int("pid", proc.Pid), zap.String("cwd", req.Cwd))

	if err := m.recorder.RecordSpawn(ctx, runFromSnapshot(rec.Snapshot(), nil)); err != nil {
		log.Warn("failed to record spawn", zap.Error(err))
	}
	m.publish(events.AgentSpawned, rec.Snapshot())

	m.wg.Add(1)
	go m.watch(la, parser, log)
	return id, nil
}

// reserve claims one global and one per-task slot.
func (m *Manager) reserve(taskName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cfg.MaxAgents > 0 && m.running >= m.cfg.MaxAgents {
		return apperrors.ConcurrencyLimitExceeded("global", m.cfg.MaxAgents)
	}
	if m.cfg.MaxPerTask > 0 && m.perTask[taskName] >= m.cfg.MaxPerTask {
		return apperrors.ConcurrencyLimitExceeded("task '"+taskName+"'", m.cfg.MaxPerTask)
	}
	m.running++
	m.perTask[taskName]++
	return nil
}

func (m *Manager) release(taskName string) {
	m.mu.Lock()
	m.releaseLocked(taskName)
	m.mu.Unlock()
}

func (m *Manager) releaseLocked(taskName string) {
	m.running--
	m.perTask[taskName]--
	if m.perTask[taskName] <= 0 {
		delete(m.perTask, taskName)
	}
}

func (m *Manager) publish(eventType string, snap Snapshot) {
	if m.bus == nil {
		return
	}
	data := map[string]any{
		"agent_id":   snap.ID,
		"task_name":  snap.Spec.TaskName,
		"agent_type": string(snap.Spec.AgentType),
		"status":     snap.Status.String(),
		"tool_count": snap.ToolCount,
	}
	if snap.CompletedAt != nil {
		data["exit_code"] = snap.ExitCode
		data["completed_at"] = snap.CompletedAt.UTC().Format(time.RFC3339Nano)
	}
	if err := m.bus.Publish(context.Background(), eventType, bus.NewEvent(eventType, "agent-manager", data)); err != nil {
		m.logger.Debug("failed to publish lifecycle event", zap.String("event", eventType), zap.Error(err))
	}
}

func runFromSnapshot(snap Snapshot, stderrTail []string) audit.Run {
	run := audit.Run{
		AgentID:      snap.ID,
		TaskName:     snap.Spec.TaskName,
		AgentType:    string(snap.Spec.AgentType),
		Prompt:       snap.Spec.Prompt,
		Cwd:          snap.Spec.Cwd,
		Mode:         string(snap.Spec.Mode),
		Model:        snap.Spec.Model,
		Ralph:        snap.Spec.Ralph,
		Status:       snap.Status.String(),
		ExitCode:     snap.ExitCode,
		ToolCount:    snap.ToolCount,
		StartedAt:    snap.StartedAt,
		CompletedAt:  snap.CompletedAt,
		BashCommands: snap.BashCommands,
	}
	changed := append(append(append([]string{}, snap.FilesCreated...), snap.FilesModified...), snap.FilesDeleted...)
	run.FilesChanged = changed
	if len(stderrTail) > 0 {
		run.StderrTail = strings.Join(stderrTail, "\n")
	}
	return run
}
