// Package handlers exposes the agent service over HTTP.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kandev/agentfleet/internal/api/service"
	"github.com/kandev/agentfleet/internal/common/errors"
	"github.com/kandev/agentfleet/internal/common/logger"
	v1 "github.com/kandev/agentfleet/pkg/api/v1"
)

// Handler contains HTTP handlers for the agent API.
type Handler struct {
	service *service.Service
	logger  *logger.Logger
}

// NewHandler creates a new API handler.
func NewHandler(svc *service.Service, log *logger.Logger) *Handler {
	return &Handler{
		service: svc,
		logger:  log.WithComponent("agent-api"),
	}
}

type spawnAgentBody struct {
	AgentType string `json:"agent_type"`
	Prompt    string `json:"prompt"`
	Cwd       string `json:"cwd"`
	Mode      string `json:"mode"`
	Model     string `json:"model"`
	Ralph     bool   `json:"ralph"`
}

// SpawnAgent starts an agent under the task.
// POST /api/v1/tasks/:task/agents
func (h *Handler) SpawnAgent(c *gin.Context) {
	taskName := c.Param("task")
	var body spawnAgentBody
	if err := c.ShouldBindJSON(&body); err != nil {
		appErr := errors.ValidationError("request", err.Error())
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	resp, err := h.service.Spawn(c.Request.Context(), v1.SpawnAgentRequest{
		TaskName:  taskName,
		AgentType: body.AgentType,
		Prompt:    body.Prompt,
		Cwd:       body.Cwd,
		Mode:      body.Mode,
		Model:     body.Model,
		Ralph:     body.Ralph,
	})
	if err != nil {
		h.respondError(c, err, "failed to spawn agent", zap.String("task_name", taskName), zap.String("agent_type", body.AgentType))
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// GetAgentStatus lists the task's agents.
// GET /api/v1/tasks/:task/agents?filter=all|running|<agent_id>
func (h *Handler) GetAgentStatus(c *gin.Context) {
	resp, err := h.service.Status(c.Request.Context(), c.Param("task"), c.Query("filter"))
	if err != nil {
		h.respondError(c, err, "failed to get agent status")
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GetAgent returns one agent of the task.
// GET /api/v1/tasks/:task/agents/:agentId
func (h *Handler) GetAgent(c *gin.Context) {
	agentID := c.Param("agentId")
	resp, err := h.service.Status(c.Request.Context(), c.Param("task"), agentID)
	if err != nil {
		h.respondError(c, err, "failed to get agent")
		return
	}
	if len(resp.Agents) == 0 {
		appErr := errors.NotFound("agent", agentID)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}
	c.JSON(http.StatusOK, resp.Agents[0])
}

// StopAgent terminates an agent.
// POST /api/v1/tasks/:task/agents/:agentId/stop
func (h *Handler) StopAgent(c *gin.Context) {
	resp, err := h.service.Stop(c.Request.Context(), c.Param("task"), c.Param("agentId"))
	if err != nil {
		h.respondError(c, err, "failed to stop agent")
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ListRuns returns the task's audited runs.
// GET /api/v1/tasks/:task/runs?limit=N
func (h *Handler) ListRuns(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			appErr := errors.ValidationError("limit", "must be a non-negative integer")
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}
		limit = n
	}
	resp, err := h.service.Runs(c.Request.Context(), c.Param("task"), limit)
	if err != nil {
		h.respondError(c, err, "failed to list runs")
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ListAgentTypes reports every supported agent CLI and whether it resolves.
// GET /api/v1/agent-types
func (h *Handler) ListAgentTypes(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.AgentTypes(c.Request.Context()))
}

func (h *Handler) respondError(c *gin.Context, err error, msg string, fields ...zap.Field) {
	appErr := errors.AsAppError(err)
	fields = append(fields, zap.String("code", appErr.Code), zap.Error(err))
	if appErr.HTTPStatus >= http.StatusInternalServerError {
		h.logger.Error(msg, fields...)
	} else {
		h.logger.Debug(msg, fields...)
	}
	c.JSON(appErr.HTTPStatus, appErr)
}
