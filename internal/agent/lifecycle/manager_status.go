package lifecycle

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Status filter values. Any other filter is treated as an agent ID.
const (
	FilterRunning = "running"
	FilterAll     = "all"
)

// Status returns snapshots of the agents of taskName selected by filter.
// An empty filter means FilterAll. An agent ID that does not exist or belongs to another task yields an
// empty list.
func (m *Manager) Status(taskName, filter string) []Snapshot {
	switch filter {
	case FilterRunning:
		return m.store.ListTask(taskName, true)
	case "", FilterAll:
		return m.store.ListTask(taskName, false)
	}
	rec, ok := m.store.Get(filter)
	if !ok || rec.Spec.TaskName != taskName {
		return []Snapshot{}
	}
	return []Snapshot{rec.Snapshot()}
}

// Now returns the manager clock, used when rendering durations.
func (m *Manager) Now() time.Time {
	return m.now()
}

// Run sweeps finished records on the configured interval until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	interval := m.cfg.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.prune()
		}
	}
}

func (m *Manager) prune() {
	evicted := m.store.Prune(m.cfg.RetentionMaxRecords, m.cfg.RetentionMaxAge, m.now())
	if len(evicted) > 0 {
		m.logger.Debug("evicted finished agent records", zap.Int("count", len(evicted)))
	}
}
