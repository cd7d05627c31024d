// Package events wires the configured event bus and names the subjects
// agent lifecycle events are published on.
package events

import (
	"fmt"
	"strings"

	"github.com/kandev/agentfleet/internal/common/config"
	"github.com/kandev/agentfleet/internal/common/logger"
	"github.com/kandev/agentfleet/internal/events/bus"
)

const (
	AgentSpawned   = "agent.spawned"
	AgentCompleted = "agent.completed"
	AgentFailed    = "agent.failed"
	AgentStopped   = "agent.stopped"

	// AgentAll subscribes to every agent lifecycle event.
	AgentAll = "agent.>"
)

// Provide builds NATS when a URL is configured and the in-memory bus otherwise.
func Provide(cfg config.NATSConfig, log *logger.Logger) (bus.EventBus, func() error, error) {
	if strings.TrimSpace(cfg.URL) != "" {
		natsBus, err := bus.NewNATSEventBus(cfg, log)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize NATS event bus: %w", err)
		}
		return natsBus, func() error { natsBus.Close(); return nil }, nil
	}
	memBus := bus.NewMemoryEventBus(log)
	return memBus, func() error { memBus.Close(); return nil }, nil
}
