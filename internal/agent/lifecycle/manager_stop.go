package lifecycle

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Stop terminates a running agent of taskName: SIGTERM to its process
// group, then SIGKILL once the grace period passes. It returns true once the
// process has exited and the record is Stopped, false if no running agent
// with that ID belongs to the task or another Stop already claimed it.
func (m *Manager) Stop(ctx context.Context, taskName, agentID string) (bool, error) {
	ctx, span := m.tracer.Start(ctx, "agent.stop", trace.WithAttributes(
		attribute.String("task_name", taskName),
		attribute.String("agent_id", agentID),
	))
	defer span.End()

	stopped, err := m.stop(ctx, taskName, agentID)
	span.SetAttributes(attribute.Bool("stopped", stopped))
	return stopped, err
}

func (m *Manager) stop(ctx context.Context, taskName, agentID string) (bool, error) {
	m.mu.Lock()
	la, ok := m.live[agentID]
	m.mu.Unlock()
	if !ok || la.rec.Spec.TaskName != taskName {
		return false, nil
	}
	if !la.rec.markStopRequested() {
		return false, nil
	}

	log := m.logger.WithTask(taskName).WithAgentID(agentID)
	log.Info("stopping agent", zap.Duration("grace_period", m.cfg.StopGracePeriod))

	if err := la.proc.Terminate(); err != nil {
		log.Debug("terminate failed", zap.Error(err))
	}

	grace := time.NewTimer(m.cfg.StopGracePeriod)
	defer grace.Stop()
	select {
	case <-la.done:
		return true, nil
	case <-grace.C:
	case <-ctx.Done():
	}

	log.Info("agent ignored SIGTERM, killing")
	if err := la.proc.Kill(); err != nil {
		log.Debug("kill failed", zap.Error(err))
	}
	select {
	case <-la.done:
		return true, nil
	case <-ctx.Done():
		// The kill has been sent and the watcher will still record Stopped.
		return true, ctx.Err()
	}
}

// Shutdown stops every running agent, waits for their watchers and closes
// the audit recorder.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	live := make([]*liveAgent, 0, len(m.live))
	for _, la := range m.live {
		live = append(live, la)
	}
	m.mu.Unlock()

	if len(live) > 0 {
		m.logger.Info("stopping running agents", zap.Int("count", len(live)))
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, la := range live {
		g.Go(func() error {
			_, err := m.Stop(gctx, la.rec.Spec.TaskName, la.rec.ID)
			return err
		})
	}
	err := g.Wait()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}
	if cerr := m.recorder.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
