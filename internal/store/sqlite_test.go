package store

import (
	"context"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	agentmodels "github.com/huolter/50c14l/internal/agent/models"
	"github.com/huolter/50c14l/internal/common/config"
	apperrors "github.com/huolter/50c14l/internal/common/errors"
	interactionmodels "github.com/huolter/50c14l/internal/interaction/models"
	reputationmodels "github.com/huolter/50c14l/internal/reputation/models"
	taskmodels "github.com/huolter/50c14l/internal/task/models"
)

func newSQLiteRepo(t *testing.T) Repository {
	t.Helper()
	cfg := &config.Config{}
	cfg.Database.Driver = "sqlite"
	cfg.Database.Path = filepath.Join(t.TempDir(), "market.db")

	repo, err := Provide(cfg)
	if err != nil {
		t.Fatalf("failed to open sqlite repository: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func seedAgent(t *testing.T, repo Repository, id string) *agentmodels.Agent {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Millisecond)
	agent := &agentmodels.Agent{
		ID:           id,
		Name:         "name-" + id,
		APIKeyID:     "key-" + id,
		APIKeyHash:   "hash",
		Capabilities: []string{"translation"},
		Endpoints:    map[string]interface{}{},
		Metadata:     map[string]interface{}{},
		IsActive:     true,
		LastActive:   now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := repo.CreateAgent(context.Background(), agent); err != nil {
		t.Fatalf("CreateAgent(%q) error = %v", id, err)
	}
	return agent
}

func seedTask(t *testing.T, repo Repository, id, requesterID string) *taskmodels.Task {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Millisecond)
	task := &taskmodels.Task{
		ID:                   id,
		RequesterID:          requesterID,
		Title:                "task-" + id,
		RequiredCapabilities: []string{"translation"},
		Payload:              map[string]interface{}{},
		Status:               taskmodels.StatusOpen,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := repo.CreateTask(context.Background(), task); err != nil {
		t.Fatalf("CreateTask(%q) error = %v", id, err)
	}
	return task
}

func TestSQLiteAgentRoundTrip(t *testing.T) {
	repo := newSQLiteRepo(t)
	ctx := context.Background()
	seedAgent(t, repo, "a1")

	got, err := repo.GetAgent(ctx, "a1")
	if err != nil {
		t.Fatalf("GetAgent() error = %v", err)
	}
	if got.Name != "name-a1" || got.APIKeyID != "key-a1" {
		t.Errorf("round-tripped agent = %+v", got)
	}
	if len(got.Capabilities) != 1 || got.Capabilities[0] != "translation" {
		t.Errorf("capabilities = %v, want [translation]", got.Capabilities)
	}

	if _, err := repo.GetAgent(ctx, "missing"); !apperrors.IsNotFound(err) {
		t.Errorf("GetAgent(missing) error = %v, want NOT_FOUND", err)
	}

	byKey, err := repo.GetAgentByKeyID(ctx, "key-a1")
	if err != nil {
		t.Fatalf("GetAgentByKeyID() error = %v", err)
	}
	if byKey.ID != "a1" {
		t.Errorf("GetAgentByKeyID() = %q, want a1", byKey.ID)
	}

	// Duplicate names hit the unique constraint.
	dup := seedAgentModel("a2", "name-a1")
	if err := repo.CreateAgent(ctx, dup); !apperrors.IsConflict(err) {
		t.Errorf("duplicate CreateAgent() error = %v, want CONFLICT", err)
	}
}

func seedAgentModel(id, name string) *agentmodels.Agent {
	now := time.Now().UTC()
	return &agentmodels.Agent{
		ID:         id,
		Name:       name,
		APIKeyID:   "key-" + id,
		APIKeyHash: "hash",
		IsActive:   true,
		LastActive: now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestSQLiteGuardedClaim(t *testing.T) {
	repo := newSQLiteRepo(t)
	ctx := context.Background()
	seedAgent(t, repo, "poster")
	task := seedTask(t, repo, "t1", "poster")

	const claimers = 8
	var wg sync.WaitGroup
	wins := make([]bool, claimers)
	for i := 0; i < claimers; i++ {
		id := "claimer-" + strconv.Itoa(i)
		seedAgent(t, repo, id)
		wg.Add(1)
		go func(slot int, claimerID string) {
			defer wg.Done()
			won, err := repo.ClaimTask(ctx, task.ID, claimerID)
			if err != nil {
				t.Errorf("ClaimTask() error = %v", err)
				return
			}
			wins[slot] = won
		}(i, id)
	}
	wg.Wait()

	winners := 0
	for _, won := range wins {
		if won {
			winners++
		}
	}
	if winners != 1 {
		t.Errorf("claim winners = %d, want exactly 1", winners)
	}

	got, err := repo.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask() error = %v", err)
	}
	if got.Status != taskmodels.StatusInProgress || got.ClaimerID == nil {
		t.Errorf("task after contested claim = %+v", got)
	}
}

func TestSQLiteTaskTransitions(t *testing.T) {
	repo := newSQLiteRepo(t)
	ctx := context.Background()
	seedAgent(t, repo, "poster")
	seedAgent(t, repo, "worker")
	task := seedTask(t, repo, "t1", "poster")

	// Completing an open task loses the guard.
	won, err := repo.CompleteTask(ctx, task.ID, nil)
	if err != nil {
		t.Fatalf("CompleteTask() error = %v", err)
	}
	if won {
		t.Error("CompleteTask() on an open task should not win")
	}

	if won, err = repo.ClaimTask(ctx, task.ID, "worker"); err != nil || !won {
		t.Fatalf("ClaimTask() = (%v, %v), want win", won, err)
	}

	won, err = repo.CompleteTask(ctx, task.ID, map[string]interface{}{"out": "done"})
	if err != nil {
		t.Fatalf("CompleteTask() error = %v", err)
	}
	if !won {
		t.Fatal("CompleteTask() on an in_progress task should win")
	}

	got, err := repo.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask() error = %v", err)
	}
	if got.Status != taskmodels.StatusCompleted || got.CompletedAt == nil {
		t.Errorf("completed task = %+v", got)
	}
	if got.Result["out"] != "done" {
		t.Errorf("result = %v, want out=done", got.Result)
	}

	// Terminal states refuse cancellation.
	if won, err = repo.CancelTask(ctx, task.ID); err != nil || won {
		t.Errorf("CancelTask() on completed task = (%v, %v), want loss", won, err)
	}

	if _, err := repo.ClaimTask(ctx, "missing", "worker"); !apperrors.IsNotFound(err) {
		t.Errorf("ClaimTask(missing) error = %v, want NOT_FOUND", err)
	}
}

func TestSQLiteReputationTransaction(t *testing.T) {
	repo := newSQLiteRepo(t)
	ctx := context.Background()
	seedAgent(t, repo, "a1")

	for i, delta := range []int{10, 5, -5} {
		entry := &reputationmodels.ReputationLog{
			ID:          "r" + strconv.Itoa(i),
			AgentID:     "a1",
			Action:      reputationmodels.ActionPositiveInteraction,
			ValueChange: delta,
			CreatedAt:   time.Now().UTC(),
		}
		applied, err := repo.AddReputation(ctx, entry)
		if err != nil {
			t.Fatalf("AddReputation() error = %v", err)
		}
		if !applied {
			t.Fatal("AddReputation() not applied")
		}
	}

	sum, err := repo.SumReputation(ctx, "a1")
	if err != nil {
		t.Fatalf("SumReputation() error = %v", err)
	}
	agent, err := repo.GetAgent(ctx, "a1")
	if err != nil {
		t.Fatalf("GetAgent() error = %v", err)
	}
	if sum != 10 || agent.ReputationScore != sum {
		t.Errorf("sum = %d, score = %d; want both 10", sum, agent.ReputationScore)
	}

	applied, err := repo.AddReputation(ctx, &reputationmodels.ReputationLog{
		ID: "ghost-entry", AgentID: "ghost", CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("AddReputation(ghost) error = %v", err)
	}
	if applied {
		t.Error("AddReputation() for a missing agent should not apply")
	}
}

func TestSQLiteInteractionFilter(t *testing.T) {
	repo := newSQLiteRepo(t)
	ctx := context.Background()
	seedAgent(t, repo, "alpha")
	seedAgent(t, repo, "beta")
	seedAgent(t, repo, "gamma")

	base := time.Now().UTC().Truncate(time.Millisecond)
	msgs := []struct {
		id, from, to string
	}{
		{"i1", "alpha", "beta"},
		{"i2", "beta", "alpha"},
		{"i3", "gamma", "beta"},
	}
	for i, m := range msgs {
		err := repo.CreateInteraction(ctx, &interactionmodels.Interaction{
			ID:          m.id,
			SenderID:    m.from,
			RecipientID: m.to,
			Payload:     map[string]interface{}{},
			Status:      interactionmodels.StatusSent,
			CreatedAt:   base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("CreateInteraction(%q) error = %v", m.id, err)
		}
	}

	all, err := repo.ListInteractions(ctx, InteractionFilter{AgentID: "beta"})
	if err != nil {
		t.Fatalf("ListInteractions() error = %v", err)
	}
	if len(all) != 3 {
		t.Errorf("beta sees %d interactions, want 3", len(all))
	}
	if all[0].ID != "i3" {
		t.Errorf("newest interaction = %q, want i3", all[0].ID)
	}

	pair, err := repo.ListInteractions(ctx, InteractionFilter{AgentID: "beta", WithAgentID: "alpha"})
	if err != nil {
		t.Fatalf("ListInteractions(with alpha) error = %v", err)
	}
	if len(pair) != 2 {
		t.Errorf("beta-alpha interactions = %d, want 2", len(pair))
	}

	if err := repo.UpdateInteractionStatus(ctx, "i1", interactionmodels.StatusDelivered); err != nil {
		t.Fatalf("UpdateInteractionStatus() error = %v", err)
	}
	refetched, err := repo.ListInteractions(ctx, InteractionFilter{AgentID: "alpha", WithAgentID: "beta"})
	if err != nil {
		t.Fatalf("ListInteractions() error = %v", err)
	}
	for _, in := range refetched {
		if in.ID == "i1" && in.Status != interactionmodels.StatusDelivered {
			t.Errorf("i1 status = %q, want delivered", in.Status)
		}
	}
}
