// Package service implements the task board lifecycle.
//
// Tasks move open -> in_progress -> completed, with cancellation allowed
// until completion. The claim and complete transitions are guarded updates
// in the store, so concurrent callers race safely: exactly one wins and the
// rest see a state error.
package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/huolter/50c14l/internal/common/errors"
	"github.com/huolter/50c14l/internal/common/logger"
	"github.com/huolter/50c14l/internal/events"
	"github.com/huolter/50c14l/internal/notify"
	reputationmodels "github.com/huolter/50c14l/internal/reputation/models"
	reputationservice "github.com/huolter/50c14l/internal/reputation/service"
	"github.com/huolter/50c14l/internal/store"
	"github.com/huolter/50c14l/internal/task/models"
)

const (
	maxTitleLength   = 255
	defaultListLimit = 25
	maxListLimit     = 100

	completerPoints = 10
	requesterPoints = 5
)

// Service manages the task board.
type Service struct {
	repo       store.Repository
	reputation *reputationservice.Service
	notifier   *notify.Notifier
	logger     *logger.Logger
}

// NewService creates a task service.
func NewService(repo store.Repository, reputation *reputationservice.Service, notifier *notify.Notifier, log *logger.Logger) *Service {
	return &Service{
		repo:       repo,
		reputation: reputation,
		notifier:   notifier,
		logger:     log,
	}
}

// CreateInput holds the fields supplied when posting a task.
type CreateInput struct {
	Title                string
	Description          string
	RequiredCapabilities []string
	Payload              map[string]interface{}
	Priority             int
	ExpiresAt            *time.Time
}

// Create posts a new task for the requester, bumps their posted counter,
// and broadcasts the task to waiting agents.
func (s *Service) Create(ctx context.Context, requesterID string, in CreateInput) (*models.Task, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, apperrors.BadRequest("task title is required")
	}
	if len(title) > maxTitleLength {
		return nil, apperrors.BadRequest("task title is too long")
	}

	now := time.Now().UTC()
	task := &models.Task{
		ID:                   uuid.New().String(),
		RequesterID:          requesterID,
		Title:                title,
		Description:          in.Description,
		RequiredCapabilities: in.RequiredCapabilities,
		Payload:              in.Payload,
		Status:               models.StatusOpen,
		Priority:             in.Priority,
		ExpiresAt:            in.ExpiresAt,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if task.RequiredCapabilities == nil {
		task.RequiredCapabilities = []string{}
	}
	if task.Payload == nil {
		task.Payload = map[string]interface{}{}
	}

	if err := s.repo.CreateTask(ctx, task); err != nil {
		return nil, err
	}
	if err := s.repo.IncTasksPosted(ctx, requesterID); err != nil {
		s.logger.Warn("Failed to increment posted counter",
			zap.String("agent_id", requesterID), zap.Error(err))
	}

	s.notifier.PublishTaskCreated(ctx, task)

	s.logger.Info("Task created",
		zap.String("task_id", task.ID),
		zap.String("requester_id", requesterID),
		zap.String("title", task.Title))
	return task, nil
}

// ListInput narrows List results. An empty Status returns tasks in every
// state.
type ListInput struct {
	Status       string
	Capabilities []string
	Limit        int
}

// List returns tasks ordered by priority then recency. Open listings
// exclude tasks whose deadline has passed. The limit defaults to 25 and is
// capped at 100.
func (s *Service) List(ctx context.Context, in ListInput) ([]*models.Task, error) {
	status := models.Status(in.Status)
	if in.Status != "" && !models.ValidStatus(status) {
		return nil, apperrors.BadRequest("unknown task status: " + in.Status)
	}

	limit := in.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	return s.repo.ListTasks(ctx, store.TaskFilter{
		Status:         status,
		Capabilities:   in.Capabilities,
		ExcludeExpired: status == models.StatusOpen,
		Limit:          limit,
	})
}

// Get returns a task by ID.
func (s *Service) Get(ctx context.Context, id string) (*models.Task, error) {
	return s.repo.GetTask(ctx, id)
}

// Claim assigns an open task to the claimer. Requesters cannot claim their
// own tasks. When several agents race for the same task, the store's
// guarded update picks exactly one winner.
func (s *Service) Claim(ctx context.Context, taskID, claimerID string) (*models.Task, error) {
	task, err := s.repo.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.RequesterID == claimerID {
		return nil, apperrors.Forbidden("cannot claim your own task")
	}
	if task.Status != models.StatusOpen {
		return nil, apperrors.InvalidState("task is not available")
	}

	won, err := s.repo.ClaimTask(ctx, taskID, claimerID)
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, apperrors.InvalidState("task is not available")
	}

	s.notifier.NotifyAgent(ctx, task.RequesterID, events.TaskClaimed, map[string]interface{}{
		"task_id":    taskID,
		"title":      task.Title,
		"claimer_id": claimerID,
	})

	s.logger.Info("Task claimed",
		zap.String("task_id", taskID),
		zap.String("claimer_id", claimerID))
	return s.repo.GetTask(ctx, taskID)
}

// Complete marks an in_progress task as done. Only the claimer may
// complete it. The completer earns points for finishing and the requester
// earns points for posting work that got fulfilled.
func (s *Service) Complete(ctx context.Context, taskID, claimerID string, result map[string]interface{}) (*models.Task, error) {
	task, err := s.repo.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.ClaimerID == nil || *task.ClaimerID != claimerID {
		return nil, apperrors.Forbidden("only the claimer can complete this task")
	}
	if task.Status != models.StatusInProgress {
		return nil, apperrors.InvalidState("task is not in progress")
	}

	if result == nil {
		result = map[string]interface{}{}
	}
	won, err := s.repo.CompleteTask(ctx, taskID, result)
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, apperrors.InvalidState("task is not in progress")
	}

	if err := s.repo.IncTasksCompleted(ctx, claimerID); err != nil {
		s.logger.Warn("Failed to increment completed counter",
			zap.String("agent_id", claimerID), zap.Error(err))
	}

	if _, err := s.reputation.Record(ctx, claimerID, reputationmodels.ActionTaskCompleted,
		completerPoints, "Completed task: "+task.Title); err != nil {
		s.logger.Error("Failed to record completer reputation",
			zap.String("agent_id", claimerID), zap.Error(err))
	}
	if _, err := s.reputation.Record(ctx, task.RequesterID, reputationmodels.ActionTaskFulfilled,
		requesterPoints, "Task fulfilled: "+task.Title); err != nil {
		s.logger.Error("Failed to record requester reputation",
			zap.String("agent_id", task.RequesterID), zap.Error(err))
	}

	s.notifier.NotifyAgent(ctx, task.RequesterID, events.TaskCompleted, map[string]interface{}{
		"task_id":    taskID,
		"title":      task.Title,
		"claimer_id": claimerID,
	})

	s.logger.Info("Task completed",
		zap.String("task_id", taskID),
		zap.String("claimer_id", claimerID))
	return s.repo.GetTask(ctx, taskID)
}

// Cancel withdraws a task. Only the requester may cancel, and a completed
// task stays completed. Cancelling an already cancelled task is a no-op.
func (s *Service) Cancel(ctx context.Context, taskID, requesterID string) (*models.Task, error) {
	task, err := s.repo.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.RequesterID != requesterID {
		return nil, apperrors.Forbidden("only the task creator can cancel it")
	}
	if task.Status == models.StatusCompleted {
		return nil, apperrors.InvalidState("cannot cancel a completed task")
	}

	if task.Status != models.StatusCancelled {
		won, err := s.repo.CancelTask(ctx, taskID)
		if err != nil {
			return nil, err
		}
		if !won {
			// Lost a race; completed-in-the-meantime is the only state
			// that refuses cancellation.
			current, err := s.repo.GetTask(ctx, taskID)
			if err != nil {
				return nil, err
			}
			if current.Status == models.StatusCompleted {
				return nil, apperrors.InvalidState("cannot cancel a completed task")
			}
			return current, nil
		}

		if task.ClaimerID != nil {
			s.notifier.NotifyAgent(ctx, *task.ClaimerID, events.TaskCancelled, map[string]interface{}{
				"task_id": taskID,
				"title":   task.Title,
			})
		}
	}

	s.logger.Info("Task cancelled",
		zap.String("task_id", taskID),
		zap.String("requester_id", requesterID))
	return s.repo.GetTask(ctx, taskID)
}
