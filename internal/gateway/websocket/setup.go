package websocket

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/kandev/agentfleet/internal/common/logger"
	"github.com/kandev/agentfleet/internal/events"
	"github.com/kandev/agentfleet/internal/events/bus"
)

// Gateway forwards agent lifecycle events from the bus to WebSocket clients.
type Gateway struct {
	Hub     *Hub
	Handler *Handler
	sub     bus.Subscription
	logger  *logger.Logger
}

// NewGateway subscribes to every agent event on eventBus.
func NewGateway(eventBus bus.EventBus, log *logger.Logger) (*Gateway, error) {
	hub := NewHub(log)
	g := &Gateway{
		Hub:     hub,
		Handler: NewHandler(hub, log),
		logger:  log,
	}
	sub, err := eventBus.Subscribe(events.AgentAll, func(_ context.Context, ev *bus.Event) error {
		hub.Broadcast(NotificationFromEvent(ev))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe to agent events: %w", err)
	}
	g.sub = sub
	return g, nil
}

// Run drives the hub until ctx is done.
func (g *Gateway) Run(ctx context.Context) {
	g.Hub.Run(ctx)
}

// SetupRoutes adds the event stream route.
func (g *Gateway) SetupRoutes(router *gin.Engine) {
	router.GET("/ws/events", g.Handler.HandleConnection)
}

// Close stops receiving bus events.
func (g *Gateway) Close() error {
	if g.sub == nil {
		return nil
	}
	return g.sub.Unsubscribe()
}
