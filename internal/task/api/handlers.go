package api

import (
	stderrors "errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	agentapi "github.com/huolter/50c14l/internal/agent/api"
	agentservice "github.com/huolter/50c14l/internal/agent/service"
	"github.com/huolter/50c14l/internal/common/errors"
	"github.com/huolter/50c14l/internal/common/logger"
	"github.com/huolter/50c14l/internal/task/service"
)

// Handler contains HTTP handlers for the task board API.
type Handler struct {
	service *service.Service
	agents  *agentservice.Service
	logger  *logger.Logger
}

// NewHandler creates a new API handler.
func NewHandler(svc *service.Service, agents *agentservice.Service, log *logger.Logger) *Handler {
	return &Handler{
		service: svc,
		agents:  agents,
		logger:  log,
	}
}

func (h *Handler) respondError(c *gin.Context, err error) {
	var appErr *errors.AppError
	if !stderrors.As(err, &appErr) {
		appErr = errors.InternalError("unexpected error", err)
	}
	if appErr.HTTPStatus >= http.StatusInternalServerError {
		h.logger.Error("Task request failed", zap.Error(err))
	}
	c.JSON(appErr.HTTPStatus, appErr)
}

// CreateTask posts a new task to the board
// POST /api/v1/tasks
func (h *Handler) CreateTask(c *gin.Context) {
	agent := agentapi.CurrentAgent(c)

	var req CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		appErr := errors.BadRequest(err.Error())
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	task, err := h.service.Create(c.Request.Context(), agent.ID, service.CreateInput{
		Title:                req.Title,
		Description:          req.Description,
		RequiredCapabilities: req.RequiredCapabilities,
		Payload:              req.Payload,
		Priority:             req.Priority,
		ExpiresAt:            req.ExpiresAt,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.agents.Touch(c.Request.Context(), agent.ID)

	c.JSON(http.StatusCreated, task)
}

// ListTasks returns the task board, open tasks by default
// GET /api/v1/tasks?status=open&capabilities=a,b&limit=25
func (h *Handler) ListTasks(c *gin.Context) {
	var capabilities []string
	if raw := c.Query("capabilities"); raw != "" {
		for _, cap := range strings.Split(raw, ",") {
			if cap = strings.TrimSpace(cap); cap != "" {
				capabilities = append(capabilities, cap)
			}
		}
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	tasks, err := h.service.List(c.Request.Context(), service.ListInput{
		Status:       c.DefaultQuery("status", "open"),
		Capabilities: capabilities,
		Limit:        limit,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, tasks)
}

// GetTask returns a single task
// GET /api/v1/tasks/:taskId
func (h *Handler) GetTask(c *gin.Context) {
	task, err := h.service.Get(c.Request.Context(), c.Param("taskId"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, task)
}

// ClaimTask assigns an open task to the caller
// POST /api/v1/tasks/:taskId/claim
func (h *Handler) ClaimTask(c *gin.Context) {
	agent := agentapi.CurrentAgent(c)

	task, err := h.service.Claim(c.Request.Context(), c.Param("taskId"), agent.ID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.agents.Touch(c.Request.Context(), agent.ID)

	c.JSON(http.StatusOK, task)
}

// CompleteTask marks a claimed task as done with an optional result
// POST /api/v1/tasks/:taskId/complete
func (h *Handler) CompleteTask(c *gin.Context) {
	agent := agentapi.CurrentAgent(c)

	var req CompleteTaskRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			appErr := errors.BadRequest(err.Error())
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}
	}

	task, err := h.service.Complete(c.Request.Context(), c.Param("taskId"), agent.ID, req.Result)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.agents.Touch(c.Request.Context(), agent.ID)

	c.JSON(http.StatusOK, task)
}

// CancelTask withdraws a task the caller created
// DELETE /api/v1/tasks/:taskId
func (h *Handler) CancelTask(c *gin.Context) {
	agent := agentapi.CurrentAgent(c)

	if _, err := h.service.Cancel(c.Request.Context(), c.Param("taskId"), agent.ID); err != nil {
		h.respondError(c, err)
		return
	}
	h.agents.Touch(c.Request.Context(), agent.ID)

	c.JSON(http.StatusOK, gin.H{"message": "Task cancelled successfully"})
}
