package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/kandev/agentfleet/internal/agent/agents"
	"github.com/kandev/agentfleet/internal/agent/launcher"
	"github.com/kandev/agentfleet/internal/agent/lifecycle"
	"github.com/kandev/agentfleet/internal/api/service"
	"github.com/kandev/agentfleet/internal/audit"
	"github.com/kandev/agentfleet/internal/common/config"
	"github.com/kandev/agentfleet/internal/common/logger"
	"github.com/kandev/agentfleet/internal/common/tracing"
	"github.com/kandev/agentfleet/internal/events"
	"github.com/kandev/agentfleet/internal/events/bus"
)

// app is the wired orchestrator shared by the serve and stdio commands.
type app struct {
	cfg      *config.Config
	log      *logger.Logger
	bus      bus.EventBus
	manager  *lifecycle.Manager
	service  *service.Service
	cleanups []func() error
}

func newApp(ctx context.Context, cfg *config.Config, log *logger.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log}

	if err := tracing.Init(ctx, cfg.Tracing); err != nil {
		log.Warn("Tracing disabled", zap.Error(err))
	}
	a.cleanups = append(a.cleanups, func() error {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return tracing.Shutdown(shutdownCtx)
	})

	if err := os.MkdirAll(cfg.Manager.SessionsDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create sessions dir: %w", err)
	}

	registry, err := agents.NewRegistry(cfg.Manager.AgentsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load agent flag table: %w", err)
	}

	eventBus, closeBus, err := events.Provide(cfg.NATS, log)
	if err != nil {
		return nil, err
	}
	a.bus = eventBus
	a.cleanups = append(a.cleanups, closeBus)

	recorder, err := audit.Provide(ctx, cfg.Audit, cfg.Manager.SessionsDir)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}

	a.manager = lifecycle.NewManager(lifecycle.Config{
		MaxAgents:           cfg.Manager.MaxAgents,
		MaxPerTask:          cfg.Manager.MaxPerTask,
		SessionsDir:         cfg.Manager.SessionsDir,
		StopGracePeriod:     cfg.Manager.StopGracePeriod,
		RetentionMaxRecords: cfg.Manager.Retention.MaxRecords,
		RetentionMaxAge:     cfg.Manager.Retention.MaxAge,
		SweepInterval:       cfg.Manager.Retention.SweepInterval,
	}, launcher.New(registry, log), log,
		lifecycle.WithEventBus(eventBus),
		lifecycle.WithRecorder(recorder),
	)
	go a.manager.Run(ctx)

	a.service = service.NewService(a.manager, recorder, log)

	log.Info("Agent manager ready",
		zap.Int("max_agents", cfg.Manager.MaxAgents),
		zap.Int("max_per_task", cfg.Manager.MaxPerTask),
		zap.String("sessions_dir", cfg.Manager.SessionsDir),
		zap.String("audit_driver", cfg.Audit.Driver),
		zap.Bool("nats", cfg.NATS.URL != ""),
	)
	return a, nil
}

// shutdown stops every agent, then releases the bus and tracer.
func (a *app) shutdown() {
	a.log.Info("Stopping agents gracefully...")
	stopCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Manager.StopGracePeriod+5*time.Second)
	if err := a.manager.Shutdown(stopCtx); err != nil {
		a.log.Error("Graceful agent stop error", zap.Error(err))
	}
	cancel()
	a.close()
}

func (a *app) close() {
	for i := len(a.cleanups) - 1; i >= 0; i-- {
		if err := a.cleanups[i](); err != nil {
			a.log.Warn("Cleanup error", zap.Error(err))
		}
	}
	a.cleanups = nil
}
