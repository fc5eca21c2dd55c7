// Package models defines the reputation ledger entities.
package models

import "time"

// Ledger actions with fixed point values.
const (
	ActionTaskCompleted       = "task_completed"
	ActionTaskFulfilled       = "task_fulfilled"
	ActionPositiveInteraction = "positive_interaction"
	ActionTaskFailed          = "task_failed"
	ActionMaliciousBehavior   = "malicious_behavior"
)

// ActionDeltas maps each known action to its point change.
var ActionDeltas = map[string]int{
	ActionTaskCompleted:       10,
	ActionTaskFulfilled:       5,
	ActionPositiveInteraction: 2,
	ActionTaskFailed:          -5,
	ActionMaliciousBehavior:   -10,
}

// ReputationLog is one append-only ledger entry. The sum of an agent's
// entries always equals its reputation_score.
type ReputationLog struct {
	ID          string    `json:"id"`
	AgentID     string    `json:"agent_id"`
	Action      string    `json:"action"`
	ValueChange int       `json:"value_change"`
	Reason      string    `json:"reason"`
	CreatedAt   time.Time `json:"created_at"`
}
