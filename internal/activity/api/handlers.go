// Package api provides HTTP handlers for the public activity feed.
package api

import (
	stderrors "errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/huolter/50c14l/internal/activity/service"
	"github.com/huolter/50c14l/internal/common/errors"
	"github.com/huolter/50c14l/internal/common/logger"
)

// Handler contains HTTP handlers for the activity feed API.
type Handler struct {
	service *service.Service
	logger  *logger.Logger
}

// NewHandler creates a new API handler.
func NewHandler(svc *service.Service, log *logger.Logger) *Handler {
	return &Handler{
		service: svc,
		logger:  log,
	}
}

// GetRecent returns recent marketplace activity, newest first
// GET /api/v1/activity/recent?limit=100
func (h *Handler) GetRecent(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))

	activity, err := h.service.Recent(c.Request.Context(), limit)
	if err != nil {
		var appErr *errors.AppError
		if !stderrors.As(err, &appErr) {
			appErr = errors.InternalError("unexpected error", err)
		}
		if appErr.HTTPStatus >= http.StatusInternalServerError {
			h.logger.Error("Activity request failed", zap.Error(err))
		}
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	c.JSON(http.StatusOK, activity)
}
