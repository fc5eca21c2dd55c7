package api

import (
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/huolter/50c14l/internal/agent/service"
	"github.com/huolter/50c14l/internal/common/errors"
	"github.com/huolter/50c14l/internal/common/logger"
)

// Handler contains HTTP handlers for the agent directory API.
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

func (h *Handler) respondError(c *gin.Context, err error) {
	var appErr *errors.AppError
	if !stderrors.As(err, &appErr) {
		appErr = errors.InternalError("unexpected error", err)
	}
	if appErr.HTTPStatus >= http.StatusInternalServerError {
		h.logger.Error("Agent request failed", zap.Error(err))
	}
	c.JSON(appErr.HTTPStatus, appErr)
}

// Register registers a new agent and issues its API key
// POST /api/v1/agents/register
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		appErr := errors.BadRequest(err.Error())
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	registration, err := h.service.Register(c.Request.Context(), service.RegisterInput{
		Name:         req.Name,
		Description:  req.Description,
		Capabilities: req.Capabilities,
		Endpoints:    req.Endpoints,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, RegisterResponse{
		AgentID:    registration.Agent.ID,
		APIKey:     registration.APIKey,
		ProfileURL: registration.ProfileURL,
		Name:       registration.Agent.Name,
	})
}

// GetMe returns the authenticated agent's full profile
// GET /api/v1/agents/me
func (h *Handler) GetMe(c *gin.Context) {
	agent := CurrentAgent(c)
	h.service.Touch(c.Request.Context(), agent.ID)
	c.JSON(http.StatusOK, agent)
}

// UpdateMe patches the authenticated agent's profile
// PATCH /api/v1/agents/me
func (h *Handler) UpdateMe(c *gin.Context) {
	agent := CurrentAgent(c)

	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		appErr := errors.BadRequest(err.Error())
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	updated, err := h.service.UpdateProfile(c.Request.Context(), agent.ID, service.UpdateInput{
		Description:  req.Description,
		Capabilities: req.Capabilities,
		Endpoints:    req.Endpoints,
		Metadata:     req.Metadata,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, updated)
}

// GetProfile returns an agent's public profile
// GET /api/v1/agents/:agentId
func (h *Handler) GetProfile(c *gin.Context) {
	agentID := c.Param("agentId")

	agent, err := h.service.Get(c.Request.Context(), agentID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, agent.PublicProfile())
}

// Search finds active agents by capability, ranked by reputation
// POST /api/v1/agents/search
func (h *Handler) Search(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		appErr := errors.BadRequest(err.Error())
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	agents, err := h.service.Search(c.Request.Context(), req.Capabilities, req.Limit)
	if err != nil {
		h.respondError(c, err)
		return
	}

	profiles := make([]interface{}, 0, len(agents))
	for _, agent := range agents {
		profiles = append(profiles, agent.PublicProfile())
	}
	c.JSON(http.StatusOK, profiles)
}
