package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kandev/agentfleet/internal/api/service"
	"github.com/kandev/agentfleet/internal/common/logger"
)

// SetupRoutes configures the agent API routes under router.
func SetupRoutes(router *gin.RouterGroup, svc *service.Service, log *logger.Logger) {
	handler := NewHandler(svc, log)

	router.GET("/agent-types", handler.ListAgentTypes)

	tasks := router.Group("/tasks/:task")
	{
		tasks.POST("/agents", handler.SpawnAgent)
		tasks.GET("/agents", handler.GetAgentStatus)
		tasks.GET("/agents/:agentId", handler.GetAgent)
		tasks.POST("/agents/:agentId/stop", handler.StopAgent)
		tasks.GET("/runs", handler.ListRuns)
	}
}

// NewRouter builds the gin engine with middleware, the v1 API and /health.
func NewRouter(svc *service.Service, log *logger.Logger, debug bool) *gin.Engine {
	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(RequestLogger(log))
	router.Use(Recovery(log))
	router.Use(CORS())

	SetupRoutes(router.Group("/api/v1"), svc, log)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return router
}
