// Package service implements direct agent-to-agent messaging with
// best-effort webhook delivery.
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	agentmodels "github.com/huolter/50c14l/internal/agent/models"
	apperrors "github.com/huolter/50c14l/internal/common/errors"
	"github.com/huolter/50c14l/internal/common/logger"
	"github.com/huolter/50c14l/internal/events"
	"github.com/huolter/50c14l/internal/interaction/models"
	"github.com/huolter/50c14l/internal/notify"
	"github.com/huolter/50c14l/internal/store"
)

const (
	maxMessageTypeLength  = 50
	defaultHistoryLimit   = 50
	maxHistoryLimit       = 100
	defaultWebhookTimeout = 10 * time.Second
)

// Service records interactions and delivers them to recipient webhooks.
type Service struct {
	repo     store.Repository
	notifier *notify.Notifier
	client   *http.Client
	logger   *logger.Logger
}

// NewService creates an interaction service. webhookTimeout bounds each
// delivery attempt; zero selects the 10s default.
func NewService(repo store.Repository, notifier *notify.Notifier, webhookTimeout time.Duration, log *logger.Logger) *Service {
	if webhookTimeout <= 0 {
		webhookTimeout = defaultWebhookTimeout
	}
	return &Service{
		repo:     repo,
		notifier: notifier,
		client:   &http.Client{Timeout: webhookTimeout},
		logger:   log,
	}
}

// MessageInput holds an outgoing message.
type MessageInput struct {
	RecipientID string
	MessageType string
	Payload     map[string]interface{}
}

// webhookPayload is the body POSTed to a recipient's webhook endpoint.
type webhookPayload struct {
	SenderID      string                 `json:"sender_id"`
	SenderName    string                 `json:"sender_name"`
	MessageType   string                 `json:"message_type"`
	Payload       map[string]interface{} `json:"payload"`
	InteractionID string                 `json:"interaction_id"`
}

// SendMessage records a message from sender to recipient, then attempts
// synchronous webhook delivery when the recipient has one configured. The
// message itself succeeds regardless of the delivery outcome; the outcome
// is visible in the interaction's status.
func (s *Service) SendMessage(ctx context.Context, sender *agentmodels.Agent, in MessageInput) (*models.Interaction, error) {
	if len(in.MessageType) > maxMessageTypeLength {
		return nil, apperrors.BadRequest("message type is too long")
	}

	recipient, err := s.repo.GetAgent(ctx, in.RecipientID)
	if err != nil {
		return nil, err
	}
	if !recipient.IsActive {
		return nil, apperrors.InvalidState("recipient agent is not active")
	}

	interaction := &models.Interaction{
		ID:          uuid.New().String(),
		SenderID:    sender.ID,
		RecipientID: recipient.ID,
		MessageType: in.MessageType,
		Payload:     in.Payload,
		Status:      models.StatusSent,
		CreatedAt:   time.Now().UTC(),
	}
	if interaction.Payload == nil {
		interaction.Payload = map[string]interface{}{}
	}

	if err := s.repo.CreateInteraction(ctx, interaction); err != nil {
		return nil, err
	}

	if webhookURL := recipient.WebhookURL(); webhookURL != "" {
		status := s.deliver(ctx, webhookURL, &webhookPayload{
			SenderID:      sender.ID,
			SenderName:    sender.Name,
			MessageType:   in.MessageType,
			Payload:       interaction.Payload,
			InteractionID: interaction.ID,
		})
		if err := s.repo.UpdateInteractionStatus(ctx, interaction.ID, status); err != nil {
			s.logger.Warn("Failed to update delivery status",
				zap.String("interaction_id", interaction.ID), zap.Error(err))
		} else {
			interaction.Status = status
		}
	}

	s.notifier.NotifyAgent(ctx, recipient.ID, events.MessageSent, map[string]interface{}{
		"interaction_id": interaction.ID,
		"sender_id":      sender.ID,
		"sender_name":    sender.Name,
		"message_type":   in.MessageType,
	})

	return interaction, nil
}

// deliver POSTs the message to the webhook and maps the outcome to a
// delivery status: HTTP 200 means delivered, anything else means failed.
func (s *Service) deliver(ctx context.Context, url string, payload *webhookPayload) models.DeliveryStatus {
	body, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("Failed to encode webhook payload", zap.Error(err))
		return models.StatusFailed
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		s.logger.Warn("Webhook delivery failed", zap.String("url", url), zap.Error(err))
		return models.StatusFailed
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Warn("Webhook delivery failed", zap.String("url", url), zap.Error(err))
		return models.StatusFailed
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		s.logger.Warn("Webhook rejected message",
			zap.String("url", url),
			zap.Int("status", resp.StatusCode))
		return models.StatusFailed
	}
	return models.StatusDelivered
}

// History returns the agent's conversation log, newest first, optionally
// narrowed to one counterparty. The limit defaults to 50 and is capped at
// 100.
func (s *Service) History(ctx context.Context, agentID, withAgentID string, limit int) ([]*models.Interaction, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	return s.repo.ListInteractions(ctx, store.InteractionFilter{
		AgentID:     agentID,
		WithAgentID: withAgentID,
		Limit:       limit,
	})
}
