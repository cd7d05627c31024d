// Package websocket streams agent lifecycle events to dashboard clients.
package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kandev/agentfleet/internal/common/logger"
	"github.com/kandev/agentfleet/internal/events/bus"
)

// Notification is the JSON frame sent to clients for each lifecycle event.
type Notification struct {
	Type      string         `json:"type"`
	TaskName  string         `json:"task_name,omitempty"`
	AgentID   string         `json:"agent_id,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// NotificationFromEvent converts a bus event into a client frame.
func NotificationFromEvent(ev *bus.Event) *Notification {
	n := &Notification{Type: ev.Type, Timestamp: ev.Timestamp, Data: ev.Data}
	if v, ok := ev.Data["task_name"].(string); ok {
		n.TaskName = v
	}
	if v, ok := ev.Data["agent_id"].(string); ok {
		n.AgentID = v
	}
	return n
}

// Hub manages all WebSocket client connections.
type Hub struct {
	clients map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *Notification
	done       chan struct{} // closed when Run returns

	mu     sync.RWMutex
	logger *logger.Logger
}

// NewHub creates a new WebSocket hub.
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *Notification, 256),
		done:       make(chan struct{}),
		logger:     log.WithComponent("ws_hub"),
	}
}

// Run processes registrations and broadcasts until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Debug("WebSocket hub started")
	defer h.logger.Debug("WebSocket hub stopped")
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.closeAllClients()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Debug("Client registered", zap.String("client_id", client.ID))

		case client := <-h.unregister:
			h.removeClient(client)

		case n := <-h.broadcast:
			h.broadcastNotification(n)
		}
	}
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	h.logger.Debug("Client unregistered", zap.String("client_id", client.ID))
}

// broadcastNotification sends n to every client subscribed to its task.
func (h *Hub) broadcastNotification(n *Notification) {
	data, err := json.Marshal(n)
	if err != nil {
		h.logger.Error("Failed to marshal notification", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		if !client.wants(n.TaskName) {
			continue
		}
		select {
		case client.send <- data:
		default:
			h.logger.Debug("Client send buffer full, dropping notification", zap.String("client_id", client.ID))
		}
	}
}

// Register adds a client to the hub. It returns false once the hub stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Broadcast queues a notification, dropping it when the queue is full or
// the hub stopped.
func (h *Hub) Broadcast(n *Notification) {
	select {
	case h.broadcast <- n:
	case <-h.done:
	default:
		h.logger.Warn("Broadcast queue full, dropping notification", zap.String("type", n.Type))
	}
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
