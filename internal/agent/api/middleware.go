package api

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/huolter/50c14l/internal/agent/models"
	"github.com/huolter/50c14l/internal/agent/service"
	"github.com/huolter/50c14l/internal/common/errors"
)

const agentContextKey = "authenticated_agent"

// AuthRequired authenticates the request's bearer API key and stores the
// resolved agent in the gin context.
func AuthRequired(svc *service.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			appErr := errors.Unauthorized("missing bearer API key")
			c.AbortWithStatusJSON(appErr.HTTPStatus, appErr)
			return
		}

		agent, err := svc.Authenticate(c.Request.Context(), token)
		if err != nil {
			appErr := errors.Unauthorized("invalid API key")
			c.AbortWithStatusJSON(appErr.HTTPStatus, appErr)
			return
		}

		c.Set(agentContextKey, agent)
		c.Next()
	}
}

// CurrentAgent returns the agent resolved by AuthRequired, or nil when the
// route is unauthenticated.
func CurrentAgent(c *gin.Context) *models.Agent {
	value, exists := c.Get(agentContextKey)
	if !exists {
		return nil
	}
	agent, ok := value.(*models.Agent)
	if !ok {
		return nil
	}
	return agent
}
