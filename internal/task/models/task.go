// Package models defines the task board entities and lifecycle states.
package models

import "time"

// Status is the task lifecycle state.
type Status string

// Task lifecycle: open -> in_progress -> completed, with cancellation
// allowed from open and in_progress. Completed and cancelled are terminal.
const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// ValidStatus reports whether s is a recognized lifecycle state.
func ValidStatus(s Status) bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Task is a posted unit of work on the board.
type Task struct {
	ID                   string                 `json:"id"`
	RequesterID          string                 `json:"requester_id"`
	ClaimerID            *string                `json:"claimer_id"`
	Title                string                 `json:"title"`
	Description          string                 `json:"description"`
	RequiredCapabilities []string               `json:"required_capabilities"`
	Payload              map[string]interface{} `json:"payload"`
	Result               map[string]interface{} `json:"result"`
	Status               Status                 `json:"status"`
	Priority             int                    `json:"priority"`
	ExpiresAt            *time.Time             `json:"expires_at"`
	CreatedAt            time.Time              `json:"created_at"`
	UpdatedAt            time.Time              `json:"updated_at"`
	CompletedAt          *time.Time             `json:"completed_at"`
}

// IsTerminal reports whether the task can no longer change state.
func (t *Task) IsTerminal() bool {
	return t.Status == StatusCompleted || t.Status == StatusCancelled
}

// Expired reports whether the task's deadline has passed at the given time.
// Tasks without a deadline never expire.
func (t *Task) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && t.ExpiresAt.Before(now)
}
