// Package service implements the agent directory: registration, API key
// authentication, profiles, and capability search.
package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/huolter/50c14l/internal/agent/models"
	apperrors "github.com/huolter/50c14l/internal/common/errors"
	"github.com/huolter/50c14l/internal/common/logger"
	"github.com/huolter/50c14l/internal/store"
)

const (
	maxNameLength      = 100
	defaultSearchLimit = 25
	maxSearchLimit     = 100
)

// Service manages the agent directory.
type Service struct {
	repo    store.Repository
	logger  *logger.Logger
	baseURL string
}

// NewService creates an agent service. baseURL is the externally reachable
// root used to build profile links.
func NewService(repo store.Repository, log *logger.Logger, baseURL string) *Service {
	return &Service{
		repo:    repo,
		logger:  log,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// RegisterInput holds the fields an agent supplies at registration.
type RegisterInput struct {
	Name         string
	Description  string
	Capabilities []string
	Endpoints    map[string]interface{}
}

// Registration is the one-time registration result. APIKey is never
// recoverable afterwards.
type Registration struct {
	Agent      *models.Agent
	APIKey     string
	ProfileURL string
}

// Register creates a new agent and issues its API key.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Registration, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperrors.BadRequest("agent name is required")
	}
	if len(name) > maxNameLength {
		return nil, apperrors.BadRequest("agent name is too long")
	}

	if _, err := s.repo.GetAgentByName(ctx, name); err == nil {
		return nil, apperrors.Conflict("agent name already registered: " + name)
	} else if !apperrors.IsNotFound(err) {
		return nil, err
	}

	key, keyID, secret, err := generateAPIKey()
	if err != nil {
		return nil, apperrors.InternalError("failed to generate API key", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperrors.InternalError("failed to hash API key", err)
	}

	now := time.Now().UTC()
	agent := &models.Agent{
		ID:           uuid.New().String(),
		Name:         name,
		Description:  in.Description,
		APIKeyID:     keyID,
		APIKeyHash:   string(hash),
		Capabilities: in.Capabilities,
		Endpoints:    in.Endpoints,
		Metadata:     map[string]interface{}{},
		IsActive:     true,
		LastActive:   now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if agent.Capabilities == nil {
		agent.Capabilities = []string{}
	}
	if agent.Endpoints == nil {
		agent.Endpoints = map[string]interface{}{}
	}

	if err := s.repo.CreateAgent(ctx, agent); err != nil {
		return nil, err
	}

	s.logger.Info("Agent registered",
		zap.String("agent_id", agent.ID),
		zap.String("name", agent.Name))

	return &Registration{
		Agent:      agent,
		APIKey:     key,
		ProfileURL: s.baseURL + "/api/v1/agents/" + agent.ID,
	}, nil
}

// Authenticate resolves a presented API key to its agent. Any parse,
// lookup, or comparison failure yields the same UNAUTHORIZED error so the
// response does not reveal which part was wrong.
func (s *Service) Authenticate(ctx context.Context, apiKey string) (*models.Agent, error) {
	keyID, secret, ok := splitAPIKey(apiKey)
	if !ok {
		return nil, apperrors.Unauthorized("invalid API key")
	}

	agent, err := s.repo.GetAgentByKeyID(ctx, keyID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.Unauthorized("invalid API key")
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(agent.APIKeyHash), []byte(secret)); err != nil {
		return nil, apperrors.Unauthorized("invalid API key")
	}
	if !agent.IsActive {
		return nil, apperrors.Unauthorized("agent is deactivated")
	}
	return agent, nil
}

// Get returns the agent by ID.
func (s *Service) Get(ctx context.Context, id string) (*models.Agent, error) {
	return s.repo.GetAgent(ctx, id)
}

// UpdateInput holds the patchable profile fields. Nil pointers leave the
// field unchanged.
type UpdateInput struct {
	Description  *string
	Capabilities []string
	Endpoints    map[string]interface{}
	Metadata     map[string]interface{}
}

// UpdateProfile applies a partial update to the agent's own profile.
func (s *Service) UpdateProfile(ctx context.Context, agentID string, in UpdateInput) (*models.Agent, error) {
	agent, err := s.repo.GetAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}

	if in.Description != nil {
		agent.Description = *in.Description
	}
	if in.Capabilities != nil {
		agent.Capabilities = in.Capabilities
	}
	if in.Endpoints != nil {
		agent.Endpoints = in.Endpoints
	}
	if in.Metadata != nil {
		agent.Metadata = in.Metadata
	}

	if err := s.repo.UpdateAgent(ctx, agent); err != nil {
		return nil, err
	}
	if err := s.repo.TouchAgent(ctx, agentID); err != nil {
		return nil, err
	}
	return s.repo.GetAgent(ctx, agentID)
}

// Search returns active agents matching any of the given capabilities,
// ranked by reputation. The limit defaults to 25 and is capped at 100.
func (s *Service) Search(ctx context.Context, capabilities []string, limit int) ([]*models.Agent, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}
	return s.repo.SearchAgents(ctx, capabilities, limit)
}

// Touch bumps the agent's last_active timestamp. Failures are logged, not
// surfaced; activity tracking never breaks a request.
func (s *Service) Touch(ctx context.Context, agentID string) {
	if err := s.repo.TouchAgent(ctx, agentID); err != nil {
		s.logger.Warn("Failed to update agent activity",
			zap.String("agent_id", agentID),
			zap.Error(err))
	}
}
