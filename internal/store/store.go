// Package store provides persistence for agents, tasks, interactions, and
// the reputation ledger behind a single Repository interface. Two
// implementations exist: SQLiteRepository for durable storage (the same
// schema runs on Postgres) and MemoryRepository for development and tests.
package store

import (
	"context"

	agentmodels "github.com/huolter/50c14l/internal/agent/models"
	interactionmodels "github.com/huolter/50c14l/internal/interaction/models"
	reputationmodels "github.com/huolter/50c14l/internal/reputation/models"
	taskmodels "github.com/huolter/50c14l/internal/task/models"
)

// TaskFilter narrows ListTasks results. A zero Status means no status
// filter. Capabilities matching is case-insensitive any-of against the
// task's required capabilities; empty means no capability filter.
// ExcludeExpired drops tasks whose deadline has passed.
type TaskFilter struct {
	Status         taskmodels.Status
	Capabilities   []string
	ExcludeExpired bool
	Limit          int
}

// InteractionFilter narrows ListInteractions results. AgentID is required
// and matches either side of the conversation; WithAgentID optionally
// restricts results to messages exchanged between the two agents.
type InteractionFilter struct {
	AgentID     string
	WithAgentID string
	Limit       int
}

// Repository is the combined persistence interface for the marketplace.
//
// Lookups return a NOT_FOUND application error when the row is missing.
// The conditional task transitions (Claim, Complete, Cancel) report whether
// the guarded update won; false with a nil error means another writer got
// there first.
type Repository interface {
	// Agents
	CreateAgent(ctx context.Context, agent *agentmodels.Agent) error
	GetAgent(ctx context.Context, id string) (*agentmodels.Agent, error)
	GetAgentByName(ctx context.Context, name string) (*agentmodels.Agent, error)
	GetAgentByKeyID(ctx context.Context, keyID string) (*agentmodels.Agent, error)
	UpdateAgent(ctx context.Context, agent *agentmodels.Agent) error
	TouchAgent(ctx context.Context, id string) error
	SearchAgents(ctx context.Context, capabilities []string, limit int) ([]*agentmodels.Agent, error)
	IncTasksPosted(ctx context.Context, id string) error
	IncTasksCompleted(ctx context.Context, id string) error

	// Tasks
	CreateTask(ctx context.Context, task *taskmodels.Task) error
	GetTask(ctx context.Context, id string) (*taskmodels.Task, error)
	ListTasks(ctx context.Context, filter TaskFilter) ([]*taskmodels.Task, error)
	ClaimTask(ctx context.Context, taskID, claimerID string) (bool, error)
	CompleteTask(ctx context.Context, taskID string, result map[string]interface{}) (bool, error)
	CancelTask(ctx context.Context, taskID string) (bool, error)

	// Interactions
	CreateInteraction(ctx context.Context, interaction *interactionmodels.Interaction) error
	UpdateInteractionStatus(ctx context.Context, id string, status interactionmodels.DeliveryStatus) error
	ListInteractions(ctx context.Context, filter InteractionFilter) ([]*interactionmodels.Interaction, error)

	// Recent listings for the activity feed, all ordered by creation time
	// descending.
	ListRecentAgents(ctx context.Context, limit int) ([]*agentmodels.Agent, error)
	ListRecentTasks(ctx context.Context, limit int) ([]*taskmodels.Task, error)
	ListRecentInteractions(ctx context.Context, limit int) ([]*interactionmodels.Interaction, error)
	ListRecentReputationLogs(ctx context.Context, limit int) ([]*reputationmodels.ReputationLog, error)

	// Reputation. AddReputation appends a ledger entry and adjusts the
	// agent's score in one transaction; it returns false when the agent
	// does not exist.
	AddReputation(ctx context.Context, entry *reputationmodels.ReputationLog) (bool, error)
	ListReputationLogs(ctx context.Context, agentID string, limit int) ([]*reputationmodels.ReputationLog, error)
	SumReputation(ctx context.Context, agentID string) (int, error)

	Close() error
}
