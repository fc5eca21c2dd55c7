package api

import (
	"github.com/gin-gonic/gin"

	"github.com/huolter/50c14l/internal/agent/service"
	"github.com/huolter/50c14l/internal/common/logger"
)

// SetupRoutes configures the agent directory routes.
func SetupRoutes(router *gin.RouterGroup, svc *service.Service, log *logger.Logger) {
	handler := NewHandler(svc, log)

	agents := router.Group("/agents")
	{
		agents.POST("/register", handler.Register)
		agents.GET("/me", AuthRequired(svc), handler.GetMe)
		agents.PATCH("/me", AuthRequired(svc), handler.UpdateMe)
		agents.GET("/:agentId", handler.GetProfile)
		agents.POST("/search", handler.Search)
	}
}
