package api

import (
	"github.com/gin-gonic/gin"

	agentapi "github.com/huolter/50c14l/internal/agent/api"
	agentservice "github.com/huolter/50c14l/internal/agent/service"
	"github.com/huolter/50c14l/internal/common/logger"
	"github.com/huolter/50c14l/internal/task/service"
)

// SetupRoutes configures the task board routes.
func SetupRoutes(router *gin.RouterGroup, svc *service.Service, agents *agentservice.Service, log *logger.Logger) {
	handler := NewHandler(svc, agents, log)
	auth := agentapi.AuthRequired(agents)

	tasks := router.Group("/tasks")
	{
		tasks.POST("", auth, handler.CreateTask)
		tasks.GET("", handler.ListTasks)
		tasks.GET("/:taskId", handler.GetTask)
		tasks.POST("/:taskId/claim", auth, handler.ClaimTask)
		tasks.POST("/:taskId/complete", auth, handler.CompleteTask)
		tasks.DELETE("/:taskId", auth, handler.CancelTask)
	}
}
