package store

import (
	"context"
	"sort"
	"sync"
	"time"

	agentmodels "github.com/huolter/50c14l/internal/agent/models"
	apperrors "github.com/huolter/50c14l/internal/common/errors"
	interactionmodels "github.com/huolter/50c14l/internal/interaction/models"
	reputationmodels "github.com/huolter/50c14l/internal/reputation/models"
	taskmodels "github.com/huolter/50c14l/internal/task/models"
)

// MemoryRepository is an in-memory Repository used for development mode and
// as the test fixture. All guarded transitions run under the write lock, so
// they have the same winner-takes-all semantics as the SQL implementation.
type MemoryRepository struct {
	mu           sync.RWMutex
	agents       map[string]*agentmodels.Agent
	tasks        map[string]*taskmodels.Task
	interactions map[string]*interactionmodels.Interaction
	repLogs      map[string][]*reputationmodels.ReputationLog // keyed by agent ID
}

var _ Repository = (*MemoryRepository)(nil)

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		agents:       make(map[string]*agentmodels.Agent),
		tasks:        make(map[string]*taskmodels.Task),
		interactions: make(map[string]*interactionmodels.Interaction),
		repLogs:      make(map[string][]*reputationmodels.ReputationLog),
	}
}

// CreateAgent stores a new agent. Names are unique.
func (r *MemoryRepository) CreateAgent(ctx context.Context, agent *agentmodels.Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.agents {
		if existing.Name == agent.Name {
			return apperrors.Conflict("agent name already registered: " + agent.Name)
		}
	}

	r.agents[agent.ID] = copyAgent(agent)
	return nil
}

func (r *MemoryRepository) GetAgent(ctx context.Context, id string) (*agentmodels.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agent, ok := r.agents[id]
	if !ok {
		return nil, apperrors.NotFound("agent", id)
	}
	return copyAgent(agent), nil
}

func (r *MemoryRepository) GetAgentByName(ctx context.Context, name string) (*agentmodels.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, agent := range r.agents {
		if agent.Name == name {
			return copyAgent(agent), nil
		}
	}
	return nil, apperrors.NotFound("agent", name)
}

func (r *MemoryRepository) GetAgentByKeyID(ctx context.Context, keyID string) (*agentmodels.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, agent := range r.agents {
		if agent.APIKeyID == keyID {
			return copyAgent(agent), nil
		}
	}
	return nil, apperrors.NotFound("agent", keyID)
}

// UpdateAgent overwrites the agent's mutable profile fields.
func (r *MemoryRepository) UpdateAgent(ctx context.Context, agent *agentmodels.Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.agents[agent.ID]
	if !ok {
		return apperrors.NotFound("agent", agent.ID)
	}

	existing.Description = agent.Description
	existing.Capabilities = append([]string(nil), agent.Capabilities...)
	existing.Endpoints = copyMap(agent.Endpoints)
	existing.Metadata = copyMap(agent.Metadata)
	existing.IsActive = agent.IsActive
	existing.UpdatedAt = time.Now().UTC()
	return nil
}

// TouchAgent bumps the agent's last_active timestamp.
func (r *MemoryRepository) TouchAgent(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	agent, ok := r.agents[id]
	if !ok {
		return apperrors.NotFound("agent", id)
	}
	agent.LastActive = time.Now().UTC()
	return nil
}

// SearchAgents returns active agents matching any of the given capabilities,
// ordered by reputation descending.
func (r *MemoryRepository) SearchAgents(ctx context.Context, capabilities []string, limit int) ([]*agentmodels.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*agentmodels.Agent
	for _, agent := range r.agents {
		if !agent.IsActive {
			continue
		}
		if !agent.HasAnyCapability(capabilities) {
			continue
		}
		matched = append(matched, copyAgent(agent))
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].ReputationScore != matched[j].ReputationScore {
			return matched[i].ReputationScore > matched[j].ReputationScore
		}
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})

	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (r *MemoryRepository) IncTasksPosted(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	agent, ok := r.agents[id]
	if !ok {
		return apperrors.NotFound("agent", id)
	}
	agent.TotalTasksPosted++
	return nil
}

func (r *MemoryRepository) IncTasksCompleted(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	agent, ok := r.agents[id]
	if !ok {
		return apperrors.NotFound("agent", id)
	}
	agent.TotalTasksCompleted++
	return nil
}

func (r *MemoryRepository) CreateTask(ctx context.Context, task *taskmodels.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tasks[task.ID] = copyTask(task)
	return nil
}

func (r *MemoryRepository) GetTask(ctx context.Context, id string) (*taskmodels.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	task, ok := r.tasks[id]
	if !ok {
		return nil, apperrors.NotFound("task", id)
	}
	return copyTask(task), nil
}

// ListTasks returns tasks matching the filter, ordered by priority
// descending then creation time descending.
func (r *MemoryRepository) ListTasks(ctx context.Context, filter TaskFilter) ([]*taskmodels.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := time.Now().UTC()
	var matched []*taskmodels.Task
	for _, task := range r.tasks {
		if filter.Status != "" && task.Status != filter.Status {
			continue
		}
		if filter.ExcludeExpired && task.Expired(now) {
			continue
		}
		if !agentmodels.MatchesAnyCapability(task.RequiredCapabilities, filter.Capabilities) {
			continue
		}
		matched = append(matched, copyTask(task))
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Priority != matched[j].Priority {
			return matched[i].Priority > matched[j].Priority
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

// ClaimTask atomically moves an open task to in_progress for the claimer.
// Returns false when the task is no longer open.
func (r *MemoryRepository) ClaimTask(ctx context.Context, taskID, claimerID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.tasks[taskID]
	if !ok {
		return false, apperrors.NotFound("task", taskID)
	}
	if task.Status != taskmodels.StatusOpen {
		return false, nil
	}

	claimer := claimerID
	task.ClaimerID = &claimer
	task.Status = taskmodels.StatusInProgress
	task.UpdatedAt = time.Now().UTC()
	return true, nil
}

// CompleteTask atomically moves an in_progress task to completed, storing
// the result. Returns false when the task is not in_progress.
func (r *MemoryRepository) CompleteTask(ctx context.Context, taskID string, result map[string]interface{}) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.tasks[taskID]
	if !ok {
		return false, apperrors.NotFound("task", taskID)
	}
	if task.Status != taskmodels.StatusInProgress {
		return false, nil
	}

	now := time.Now().UTC()
	task.Status = taskmodels.StatusCompleted
	task.Result = copyMap(result)
	task.CompletedAt = &now
	task.UpdatedAt = now
	return true, nil
}

// CancelTask atomically cancels an open or in_progress task. Returns false
// when the task is already terminal.
func (r *MemoryRepository) CancelTask(ctx context.Context, taskID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.tasks[taskID]
	if !ok {
		return false, apperrors.NotFound("task", taskID)
	}
	if task.IsTerminal() {
		return false, nil
	}

	task.Status = taskmodels.StatusCancelled
	task.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (r *MemoryRepository) CreateInteraction(ctx context.Context, interaction *interactionmodels.Interaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.interactions[interaction.ID] = copyInteraction(interaction)
	return nil
}

func (r *MemoryRepository) UpdateInteractionStatus(ctx context.Context, id string, status interactionmodels.DeliveryStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	interaction, ok := r.interactions[id]
	if !ok {
		return apperrors.NotFound("interaction", id)
	}
	interaction.Status = status
	return nil
}

// ListInteractions returns messages where the agent is sender or recipient,
// newest first.
func (r *MemoryRepository) ListInteractions(ctx context.Context, filter InteractionFilter) ([]*interactionmodels.Interaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*interactionmodels.Interaction
	for _, in := range r.interactions {
		if in.SenderID != filter.AgentID && in.RecipientID != filter.AgentID {
			continue
		}
		if filter.WithAgentID != "" {
			pair := (in.SenderID == filter.AgentID && in.RecipientID == filter.WithAgentID) ||
				(in.SenderID == filter.WithAgentID && in.RecipientID == filter.AgentID)
			if !pair {
				continue
			}
		}
		matched = append(matched, copyInteraction(in))
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

// ListRecentAgents returns agents ordered by registration time, newest first.
func (r *MemoryRepository) ListRecentAgents(ctx context.Context, limit int) ([]*agentmodels.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*agentmodels.Agent, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, copyAgent(a))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListRecentTasks returns tasks ordered by creation time, newest first.
func (r *MemoryRepository) ListRecentTasks(ctx context.Context, limit int) ([]*taskmodels.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*taskmodels.Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		out = append(out, copyTask(t))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListRecentInteractions returns all interactions, newest first.
func (r *MemoryRepository) ListRecentInteractions(ctx context.Context, limit int) ([]*interactionmodels.Interaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*interactionmodels.Interaction, 0, len(r.interactions))
	for _, in := range r.interactions {
		out = append(out, copyInteraction(in))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListRecentReputationLogs returns ledger entries across all agents, newest
// first.
func (r *MemoryRepository) ListRecentReputationLogs(ctx context.Context, limit int) ([]*reputationmodels.ReputationLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*reputationmodels.ReputationLog
	for _, logs := range r.repLogs {
		for _, l := range logs {
			logCopy := *l
			out = append(out, &logCopy)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// AddReputation appends a ledger entry and adjusts the agent's score under
// one lock. Returns false when the agent does not exist.
func (r *MemoryRepository) AddReputation(ctx context.Context, entry *reputationmodels.ReputationLog) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	agent, ok := r.agents[entry.AgentID]
	if !ok {
		return false, nil
	}

	logCopy := *entry
	r.repLogs[entry.AgentID] = append(r.repLogs[entry.AgentID], &logCopy)
	agent.ReputationScore += entry.ValueChange
	return true, nil
}

func (r *MemoryRepository) ListReputationLogs(ctx context.Context, agentID string, limit int) ([]*reputationmodels.ReputationLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	logs := r.repLogs[agentID]
	out := make([]*reputationmodels.ReputationLog, 0, len(logs))
	for _, l := range logs {
		logCopy := *l
		out = append(out, &logCopy)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepository) SumReputation(ctx context.Context, agentID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sum := 0
	for _, l := range r.repLogs[agentID] {
		sum += l.ValueChange
	}
	return sum, nil
}

func (r *MemoryRepository) Close() error {
	return nil
}

func copyAgent(a *agentmodels.Agent) *agentmodels.Agent {
	c := *a
	c.Capabilities = append([]string(nil), a.Capabilities...)
	c.Endpoints = copyMap(a.Endpoints)
	c.Metadata = copyMap(a.Metadata)
	return &c
}

func copyTask(t *taskmodels.Task) *taskmodels.Task {
	c := *t
	c.RequiredCapabilities = append([]string(nil), t.RequiredCapabilities...)
	c.Payload = copyMap(t.Payload)
	c.Result = copyMap(t.Result)
	if t.ClaimerID != nil {
		claimer := *t.ClaimerID
		c.ClaimerID = &claimer
	}
	if t.ExpiresAt != nil {
		expires := *t.ExpiresAt
		c.ExpiresAt = &expires
	}
	if t.CompletedAt != nil {
		completed := *t.CompletedAt
		c.CompletedAt = &completed
	}
	return &c
}

func copyInteraction(i *interactionmodels.Interaction) *interactionmodels.Interaction {
	c := *i
	c.Payload = copyMap(i.Payload)
	return &c
}

func copyMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	c := make(map[string]interface{}, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}
