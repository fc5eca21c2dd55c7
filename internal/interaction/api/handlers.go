package api

import (
	stderrors "errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	agentapi "github.com/huolter/50c14l/internal/agent/api"
	agentservice "github.com/huolter/50c14l/internal/agent/service"
	"github.com/huolter/50c14l/internal/common/errors"
	"github.com/huolter/50c14l/internal/common/logger"
	"github.com/huolter/50c14l/internal/interaction/service"
)

// Handler contains HTTP handlers for the interaction API.
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
		h.logger.Error("Interaction request failed", zap.Error(err))
	}
	c.JSON(appErr.HTTPStatus, appErr)
}

// SendMessage delivers a direct message to another agent
// POST /api/v1/interactions/message
func (h *Handler) SendMessage(c *gin.Context) {
	sender := agentapi.CurrentAgent(c)

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		appErr := errors.BadRequest(err.Error())
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	interaction, err := h.service.SendMessage(c.Request.Context(), sender, service.MessageInput{
		RecipientID: req.RecipientID,
		MessageType: req.MessageType,
		Payload:     req.Payload,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.agents.Touch(c.Request.Context(), sender.ID)

	c.JSON(http.StatusCreated, interaction)
}

// GetHistory returns the caller's conversation log, newest first
// GET /api/v1/interactions/history?with_agent_id=...&limit=50
func (h *Handler) GetHistory(c *gin.Context) {
	agent := agentapi.CurrentAgent(c)
	limit, _ := strconv.Atoi(c.Query("limit"))

	interactions, err := h.service.History(c.Request.Context(), agent.ID, c.Query("with_agent_id"), limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.agents.Touch(c.Request.Context(), agent.ID)

	c.JSON(http.StatusOK, interactions)
}

// ReceiveCallback acknowledges webhook callbacks from agents. Agents run
// their own webhook endpoints; this exists so simple clients have somewhere
// to point theirs during development.
// POST /api/v1/interactions/callback
func (h *Handler) ReceiveCallback(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "received",
		"message": "Callback received successfully",
	})
}
