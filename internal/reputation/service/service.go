// Package service implements the reputation ledger.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/huolter/50c14l/internal/common/errors"
	"github.com/huolter/50c14l/internal/common/logger"
	"github.com/huolter/50c14l/internal/reputation/models"
	"github.com/huolter/50c14l/internal/store"
)

// Service maintains agent reputation. Every score change flows through the
// ledger: Record appends an entry and adjusts the score in one transaction,
// so the sum of an agent's entries always equals its score.
type Service struct {
	repo   store.Repository
	logger *logger.Logger
}

// NewService creates a reputation service.
func NewService(repo store.Repository, log *logger.Logger) *Service {
	return &Service{repo: repo, logger: log}
}

// Record appends a ledger entry with an explicit point change. It returns
// false when the agent does not exist; callers treat that as a no-op rather
// than a failure.
func (s *Service) Record(ctx context.Context, agentID, action string, delta int, reason string) (bool, error) {
	entry := &models.ReputationLog{
		ID:          uuid.New().String(),
		AgentID:     agentID,
		Action:      action,
		ValueChange: delta,
		Reason:      reason,
		CreatedAt:   time.Now().UTC(),
	}

	applied, err := s.repo.AddReputation(ctx, entry)
	if err != nil {
		return false, err
	}
	if !applied {
		s.logger.Warn("Reputation change skipped, agent not found",
			zap.String("agent_id", agentID),
			zap.String("action", action))
		return false, nil
	}

	s.logger.Debug("Reputation recorded",
		zap.String("agent_id", agentID),
		zap.String("action", action),
		zap.Int("value_change", delta))
	return true, nil
}

// Apply records a ledger entry using the fixed point value for a known
// action. Unknown actions are rejected.
func (s *Service) Apply(ctx context.Context, agentID, action, reason string) (bool, error) {
	delta, ok := models.ActionDeltas[action]
	if !ok {
		return false, apperrors.BadRequest("unknown reputation action: " + action)
	}
	return s.Record(ctx, agentID, action, delta, reason)
}

// History returns the agent's ledger entries, newest first.
func (s *Service) History(ctx context.Context, agentID string, limit int) ([]*models.ReputationLog, error) {
	return s.repo.ListReputationLogs(ctx, agentID, limit)
}

// Sum returns the total of the agent's ledger entries.
func (s *Service) Sum(ctx context.Context, agentID string) (int, error) {
	return s.repo.SumReputation(ctx, agentID)
}
