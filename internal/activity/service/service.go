// Package service aggregates recent marketplace activity into a single
// feed: registrations, task lifecycle changes, messages, and reputation
// movements.
package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/huolter/50c14l/internal/common/logger"
	"github.com/huolter/50c14l/internal/store"
	taskmodels "github.com/huolter/50c14l/internal/task/models"
)

const (
	defaultFeedLimit = 100
	maxFeedLimit     = 200

	// perSourceLimit bounds how many rows each table contributes before
	// the merged feed is sorted and truncated.
	perSourceLimit = 50
)

// Event is one entry in the activity feed.
type Event struct {
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Summary   string                 `json:"summary"`
	Details   map[string]interface{} `json:"details"`
}

// Service builds the activity feed from the store.
type Service struct {
	repo   store.Repository
	logger *logger.Logger
}

// NewService creates an activity service.
func NewService(repo store.Repository, log *logger.Logger) *Service {
	return &Service{repo: repo, logger: log}
}

// Recent returns the merged feed, newest first. The limit defaults to 100
// and is capped at 200.
func (s *Service) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = defaultFeedLimit
	}
	if limit > maxFeedLimit {
		limit = maxFeedLimit
	}

	names := newNameResolver(ctx, s.repo)
	events := []Event{}

	agents, err := s.repo.ListRecentAgents(ctx, perSourceLimit)
	if err != nil {
		return nil, err
	}
	for _, agent := range agents {
		names.remember(agent.ID, agent.Name)
		events = append(events, Event{
			Type:      "agent_registered",
			Timestamp: agent.CreatedAt,
			Summary:   fmt.Sprintf("Agent '%s' registered", agent.Name),
			Details: map[string]interface{}{
				"agent_id":         agent.ID,
				"name":             agent.Name,
				"description":      agent.Description,
				"capabilities":     agent.Capabilities,
				"reputation_score": agent.ReputationScore,
			},
		})
	}

	tasks, err := s.repo.ListRecentTasks(ctx, perSourceLimit)
	if err != nil {
		return nil, err
	}
	for _, task := range tasks {
		requester := names.resolve(task.RequesterID)
		switch {
		case task.Status == taskmodels.StatusOpen:
			events = append(events, Event{
				Type:      "task_created",
				Timestamp: task.CreatedAt,
				Summary:   fmt.Sprintf("Task '%s' posted by %s", task.Title, requester),
				Details: map[string]interface{}{
					"task_id":               task.ID,
					"title":                 task.Title,
					"description":           task.Description,
					"requester":             requester,
					"required_capabilities": task.RequiredCapabilities,
					"status":                task.Status,
					"priority":              task.Priority,
				},
			})
		case task.Status == taskmodels.StatusInProgress && task.ClaimerID != nil:
			claimer := names.resolve(*task.ClaimerID)
			events = append(events, Event{
				Type:      "task_claimed",
				Timestamp: task.UpdatedAt,
				Summary:   fmt.Sprintf("Task '%s' claimed by %s", task.Title, claimer),
				Details: map[string]interface{}{
					"task_id":   task.ID,
					"title":     task.Title,
					"claimer":   claimer,
					"requester": requester,
					"status":    task.Status,
				},
			})
		case task.Status == taskmodels.StatusCompleted && task.CompletedAt != nil:
			claimer := "Unknown"
			if task.ClaimerID != nil {
				claimer = names.resolve(*task.ClaimerID)
			}
			events = append(events, Event{
				Type:      "task_completed",
				Timestamp: *task.CompletedAt,
				Summary:   fmt.Sprintf("Task '%s' completed by %s", task.Title, claimer),
				Details: map[string]interface{}{
					"task_id":      task.ID,
					"title":        task.Title,
					"claimer":      claimer,
					"requester":    requester,
					"completed_at": task.CompletedAt,
					"result":       task.Result,
				},
			})
		}
	}

	interactions, err := s.repo.ListRecentInteractions(ctx, perSourceLimit)
	if err != nil {
		return nil, err
	}
	for _, in := range interactions {
		sender := names.resolve(in.SenderID)
		recipient := names.resolve(in.RecipientID)
		events = append(events, Event{
			Type:      "interaction",
			Timestamp: in.CreatedAt,
			Summary:   fmt.Sprintf("%s -> %s: %s", sender, recipient, in.MessageType),
			Details: map[string]interface{}{
				"interaction_id": in.ID,
				"sender":         sender,
				"recipient":      recipient,
				"message_type":   in.MessageType,
				"status":         in.Status,
				"payload":        in.Payload,
			},
		})
	}

	repLogs, err := s.repo.ListRecentReputationLogs(ctx, perSourceLimit)
	if err != nil {
		return nil, err
	}
	for _, entry := range repLogs {
		agentName := names.resolve(entry.AgentID)
		events = append(events, Event{
			Type:      "reputation_change",
			Timestamp: entry.CreatedAt,
			Summary:   fmt.Sprintf("%s: %+d reputation (%s)", agentName, entry.ValueChange, entry.Action),
			Details: map[string]interface{}{
				"agent":        agentName,
				"action":       entry.Action,
				"value_change": entry.ValueChange,
				"reason":       entry.Reason,
			},
		})
	}

	sort.Slice(events, func(i, j int) bool {
		return events[i].Timestamp.After(events[j].Timestamp)
	})
	if len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

// nameResolver caches agent ID to name lookups for one feed build.
type nameResolver struct {
	ctx   context.Context
	repo  store.Repository
	cache map[string]string
}

func newNameResolver(ctx context.Context, repo store.Repository) *nameResolver {
	return &nameResolver{ctx: ctx, repo: repo, cache: make(map[string]string)}
}

func (n *nameResolver) remember(id, name string) {
	n.cache[id] = name
}

func (n *nameResolver) resolve(id string) string {
	if name, ok := n.cache[id]; ok {
		return name
	}
	agent, err := n.repo.GetAgent(n.ctx, id)
	if err != nil {
		n.cache[id] = "Unknown"
		return "Unknown"
	}
	n.cache[id] = agent.Name
	return agent.Name
}
