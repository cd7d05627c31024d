package websocket

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	gorillaws "github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/kandev/agentfleet/internal/common/logger"
)

// Handler upgrades HTTP requests to event stream connections.
type Handler struct {
	hub      *Hub
	upgrader gorillaws.Upgrader
	logger   *logger.Logger
}

// NewHandler creates a handler registering clients on hub. The stream is
// read-only, so connections from any origin are accepted.
func NewHandler(hub *Hub, log *logger.Logger) *Handler {
	return &Handler{
		hub: hub,
		upgrader: gorillaws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: log.WithComponent("ws-handler"),
	}
}

// HandleConnection serves one client until it disconnects. Tasks named in
// ?task= (repeated or comma-separated) are subscribed before the first event.
func (h *Handler) HandleConnection(c *gin.Context) {
	tasks := queryTasks(c.QueryArray("task"))

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("event stream upgrade failed",
			zap.String("remote_addr", c.Request.RemoteAddr),
			zap.Error(err))
		return
	}

	client := NewClient(uuid.NewString(), conn, h.hub, h.logger)
	for _, task := range tasks {
		client.subscribe(task)
	}
	if !h.hub.Register(client) {
		_ = conn.Close()
		return
	}
	h.logger.Debug("event stream client connected",
		zap.String("client_id", client.ID),
		zap.Strings("tasks", tasks))

	go client.WritePump()
	client.ReadPump()
}

func queryTasks(values []string) []string {
	var tasks []string
	for _, v := range values {
		for _, task := range strings.Split(v, ",") {
			if task = strings.TrimSpace(task); task != "" {
				tasks = append(tasks, task)
			}
		}
	}
	return tasks
}
