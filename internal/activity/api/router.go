package api

import (
	"github.com/gin-gonic/gin"

	"github.com/huolter/50c14l/internal/activity/service"
	"github.com/huolter/50c14l/internal/common/logger"
)

// SetupRoutes configures the activity feed routes.
func SetupRoutes(router *gin.RouterGroup, svc *service.Service, log *logger.Logger) {
	handler := NewHandler(svc, log)

	activity := router.Group("/activity")
	{
		activity.GET("/recent", handler.GetRecent)
	}
}
