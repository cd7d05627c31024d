package websocket

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	gorillaws "github.com/gorilla/websocket"
	"github.com/kandev/agentfleet/internal/common/logger"
	"github.com/kandev/agentfleet/internal/events"
	"github.com/kandev/agentfleet/internal/events/bus"
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

func newTestGateway(t *testing.T) (*Gateway, bus.EventBus, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	eventBus := bus.NewMemoryEventBus(newTestLogger())
	t.Cleanup(eventBus.Close)

	g, err := NewGateway(eventBus, newTestLogger())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	go g.Run(ctx)

	router := gin.New()
	g.SetupRoutes(router)
	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		_ = g.Close()
		cancel()
		srv.Close()
	})
	return g, eventBus, srv
}

func dial(t *testing.T, srv *httptest.Server, query string) *gorillaws.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/events" + query
	conn, _, err := gorillaws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readNotification(t *testing.T, conn *gorillaws.Conn) Notification {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var n Notification
	require.NoError(t, json.Unmarshal(data, &n))
	return n
}

func publish(t *testing.T, b bus.EventBus, eventType, task, agentID string) {
	t.Helper()
	ev := bus.NewEvent(eventType, "test", map[string]any{"task_name": task, "agent_id": agentID})
	require.NoError(t, b.Publish(context.Background(), eventType, ev))
}

func TestGateway_ForwardsAgentEvents(t *testing.T) {
	g, eventBus, srv := newTestGateway(t)
	conn := dial(t, srv, "")
	require.Eventually(t, func() bool { return g.Hub.ClientCount() == 1 }, 5*time.Second, 10*time.Millisecond)

	publish(t, eventBus, events.AgentSpawned, "t1", "a1")

	n := readNotification(t, conn)
	assert.Equal(t, events.AgentSpawned, n.Type)
	assert.Equal(t, "t1", n.TaskName)
	assert.Equal(t, "a1", n.AgentID)
}

func TestGateway_TaskFilter(t *testing.T) {
	g, eventBus, srv := newTestGateway(t)
	conn := dial(t, srv, "?task=t2")
	require.Eventually(t, func() bool { return g.Hub.ClientCount() == 1 }, 5*time.Second, 10*time.Millisecond)

	publish(t, eventBus, events.AgentCompleted, "t1", "a1")
	publish(t, eventBus, events.AgentStopped, "t2", "a2")

	n := readNotification(t, conn)
	assert.Equal(t, "t2", n.TaskName)
	assert.Equal(t, events.AgentStopped, n.Type)
}

func TestClient_SubscribeAck(t *testing.T) {
	g, _, srv := newTestGateway(t)
	conn := dial(t, srv, "")
	require.Eventually(t, func() bool { return g.Hub.ClientCount() == 1 }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(ClientMessage{Action: ActionSubscribe, TaskName: "t1"}))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var ack ackMessage
	require.NoError(t, conn.ReadJSON(&ack))
	assert.True(t, ack.Success)
	assert.Equal(t, "t1", ack.TaskName)

	require.NoError(t, conn.WriteJSON(ClientMessage{Action: "bogus", TaskName: "t1"}))
	require.NoError(t, conn.ReadJSON(&ack))
	assert.False(t, ack.Success)
	assert.Equal(t, "unknown action", ack.Error)
}

func TestNotificationFromEvent(t *testing.T) {
	ev := bus.NewEvent(events.AgentFailed, "agent-manager", map[string]any{"task_name": "t", "exit_code": 3})
	n := NotificationFromEvent(ev)
	assert.Equal(t, "t", n.TaskName)
	assert.Empty(t, n.AgentID)
	assert.Equal(t, 3, n.Data["exit_code"])
}

func TestQueryTasks(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, queryTasks([]string{"a, b", "c", ""}))
	assert.Nil(t, queryTasks(nil))
}
