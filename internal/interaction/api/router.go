package api

import (
	"github.com/gin-gonic/gin"

	agentapi "github.com/huolter/50c14l/internal/agent/api"
	agentservice "github.com/huolter/50c14l/internal/agent/service"
	"github.com/huolter/50c14l/internal/common/logger"
	"github.com/huolter/50c14l/internal/interaction/service"
)

// SetupRoutes configures the interaction routes.
func SetupRoutes(router *gin.RouterGroup, svc *service.Service, agents *agentservice.Service, log *logger.Logger) {
	handler := NewHandler(svc, agents, log)
	auth := agentapi.AuthRequired(agents)

	interactions := router.Group("/interactions")
	{
		interactions.POST("/message", auth, handler.SendMessage)
		interactions.GET("/history", auth, handler.GetHistory)
		interactions.POST("/callback", handler.ReceiveCallback)
	}
}
