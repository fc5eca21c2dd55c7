package service

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	agentmodels "github.com/huolter/50c14l/internal/agent/models"
	apperrors "github.com/huolter/50c14l/internal/common/errors"
	"github.com/huolter/50c14l/internal/common/logger"
	"github.com/huolter/50c14l/internal/events/bus"
	"github.com/huolter/50c14l/internal/notify"
	reputationservice "github.com/huolter/50c14l/internal/reputation/service"
	"github.com/huolter/50c14l/internal/store"
	"github.com/huolter/50c14l/internal/task/models"
)

type fixture struct {
	svc        *Service
	reputation *reputationservice.Service
	repo       *store.MemoryRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log, err := logger.NewLogger(logger.LoggingConfig{Level: "error"})
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	repo := store.NewMemoryRepository()
	notifier := notify.NewNotifier(bus.NewMemoryEventBus(log), log)
	reputation := reputationservice.NewService(repo, log)
	return &fixture{
		svc:        NewService(repo, reputation, notifier, log),
		reputation: reputation,
		repo:       repo,
	}
}

func (f *fixture) addAgent(t *testing.T, name string) string {
	t.Helper()
	now := time.Now().UTC()
	agent := &agentmodels.Agent{
		ID:         "agent-" + name,
		Name:       name,
		IsActive:   true,
		LastActive: now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := f.repo.CreateAgent(context.Background(), agent); err != nil {
		t.Fatalf("CreateAgent(%q) error = %v", name, err)
	}
	return agent.ID
}

func TestCreateTask(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	requester := f.addAgent(t, "poster")

	task, err := f.svc.Create(ctx, requester, CreateInput{
		Title:                "Translate docs",
		RequiredCapabilities: []string{"translation"},
		Priority:             3,
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if task.Status != models.StatusOpen {
		t.Errorf("new task status = %q, want %q", task.Status, models.StatusOpen)
	}
	if task.RequesterID != requester {
		t.Errorf("requester = %q, want %q", task.RequesterID, requester)
	}

	agent, err := f.repo.GetAgent(ctx, requester)
	if err != nil {
		t.Fatalf("GetAgent() error = %v", err)
	}
	if agent.TotalTasksPosted != 1 {
		t.Errorf("total_tasks_posted = %d, want 1", agent.TotalTasksPosted)
	}

	if _, err := f.svc.Create(ctx, requester, CreateInput{Title: "   "}); !apperrors.IsBadRequest(err) {
		t.Errorf("Create() with blank title error = %v, want BAD_REQUEST", err)
	}
}

func TestClaimOrdering(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	requester := f.addAgent(t, "poster")
	worker := f.addAgent(t, "worker")

	task, err := f.svc.Create(ctx, requester, CreateInput{Title: "work"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	// Missing task beats every other check.
	if _, err := f.svc.Claim(ctx, "missing", worker); !apperrors.IsNotFound(err) {
		t.Errorf("Claim(missing) error = %v, want NOT_FOUND", err)
	}

	// Self-claim is forbidden even before the state check.
	if _, err := f.svc.Claim(ctx, task.ID, requester); !apperrors.IsForbidden(err) {
		t.Errorf("self Claim() error = %v, want FORBIDDEN", err)
	}

	claimed, err := f.svc.Claim(ctx, task.ID, worker)
	if err != nil {
		t.Fatalf("Claim() error = %v", err)
	}
	if claimed.Status != models.StatusInProgress {
		t.Errorf("claimed status = %q, want %q", claimed.Status, models.StatusInProgress)
	}
	if claimed.ClaimerID == nil || *claimed.ClaimerID != worker {
		t.Errorf("claimer = %v, want %q", claimed.ClaimerID, worker)
	}

	// Self-claim on an already claimed task still reports FORBIDDEN, not a
	// state error.
	if _, err := f.svc.Claim(ctx, task.ID, requester); !apperrors.IsForbidden(err) {
		t.Errorf("self Claim() on claimed task error = %v, want FORBIDDEN", err)
	}

	// A third party sees the state error.
	other := f.addAgent(t, "other")
	if _, err := f.svc.Claim(ctx, task.ID, other); !apperrors.IsInvalidState(err) {
		t.Errorf("Claim() on claimed task error = %v, want INVALID_STATE", err)
	}
}

func TestConcurrentClaimHasOneWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	requester := f.addAgent(t, "poster")

	task, err := f.svc.Create(ctx, requester, CreateInput{Title: "contested"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	const claimers = 10
	var wg sync.WaitGroup
	errs := make([]error, claimers)
	for i := 0; i < claimers; i++ {
		id := f.addAgent(t, "claimer-"+strconv.Itoa(i))
		wg.Add(1)
		go func(slot int, claimerID string) {
			defer wg.Done()
			_, errs[slot] = f.svc.Claim(ctx, task.ID, claimerID)
		}(i, id)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		switch {
		case err == nil:
			winners++
		case apperrors.IsInvalidState(err):
		default:
			t.Errorf("unexpected claim error: %v", err)
		}
	}
	if winners != 1 {
		t.Errorf("claim winners = %d, want exactly 1", winners)
	}
}

func TestCompleteAwardsReputation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	requester := f.addAgent(t, "poster")
	worker := f.addAgent(t, "worker")

	task, err := f.svc.Create(ctx, requester, CreateInput{Title: "rewarding"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := f.svc.Claim(ctx, task.ID, worker); err != nil {
		t.Fatalf("Claim() error = %v", err)
	}

	// Only the claimer may complete.
	if _, err := f.svc.Complete(ctx, task.ID, requester, nil); !apperrors.IsForbidden(err) {
		t.Errorf("Complete() by requester error = %v, want FORBIDDEN", err)
	}

	done, err := f.svc.Complete(ctx, task.ID, worker, map[string]interface{}{"output": "fin"})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if done.Status != models.StatusCompleted {
		t.Errorf("status = %q, want %q", done.Status, models.StatusCompleted)
	}
	if done.CompletedAt == nil {
		t.Error("completed_at not set")
	}
	if done.Result["output"] != "fin" {
		t.Errorf("result = %v, want output fin", done.Result)
	}

	// Completer earns 10, requester earns 5, and each score equals the sum
	// of that agent's ledger.
	for _, tc := range []struct {
		agentID string
		want    int
	}{
		{worker, 10},
		{requester, 5},
	} {
		sum, err := f.reputation.Sum(ctx, tc.agentID)
		if err != nil {
			t.Fatalf("Sum() error = %v", err)
		}
		if sum != tc.want {
			t.Errorf("ledger sum for %q = %d, want %d", tc.agentID, sum, tc.want)
		}
		agent, err := f.repo.GetAgent(ctx, tc.agentID)
		if err != nil {
			t.Fatalf("GetAgent() error = %v", err)
		}
		if agent.ReputationScore != sum {
			t.Errorf("score for %q = %d, ledger sum = %d; they must match", tc.agentID, agent.ReputationScore, sum)
		}
	}

	agent, _ := f.repo.GetAgent(ctx, worker)
	if agent.TotalTasksCompleted != 1 {
		t.Errorf("total_tasks_completed = %d, want 1", agent.TotalTasksCompleted)
	}

	// Completed is terminal.
	if _, err := f.svc.Complete(ctx, task.ID, worker, nil); !apperrors.IsInvalidState(err) {
		t.Errorf("second Complete() error = %v, want INVALID_STATE", err)
	}
	if _, err := f.svc.Cancel(ctx, task.ID, requester); !apperrors.IsInvalidState(err) {
		t.Errorf("Cancel() of completed task error = %v, want INVALID_STATE", err)
	}
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	requester := f.addAgent(t, "poster")
	worker := f.addAgent(t, "worker")

	task, err := f.svc.Create(ctx, requester, CreateInput{Title: "doomed"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if _, err := f.svc.Cancel(ctx, task.ID, worker); !apperrors.IsForbidden(err) {
		t.Errorf("Cancel() by non-requester error = %v, want FORBIDDEN", err)
	}

	cancelled, err := f.svc.Cancel(ctx, task.ID, requester)
	if err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if cancelled.Status != models.StatusCancelled {
		t.Errorf("status = %q, want %q", cancelled.Status, models.StatusCancelled)
	}

	// Cancelling again is a no-op, not an error.
	again, err := f.svc.Cancel(ctx, task.ID, requester)
	if err != nil {
		t.Errorf("repeated Cancel() error = %v, want nil", err)
	}
	if again.Status != models.StatusCancelled {
		t.Errorf("status after repeated cancel = %q, want %q", again.Status, models.StatusCancelled)
	}

	// Cancelled is terminal for claims.
	if _, err := f.svc.Claim(ctx, task.ID, worker); !apperrors.IsInvalidState(err) {
		t.Errorf("Claim() of cancelled task error = %v, want INVALID_STATE", err)
	}
}

func TestListFiltersAndLimits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	requester := f.addAgent(t, "poster")

	past := time.Now().UTC().Add(-time.Hour)
	if _, err := f.svc.Create(ctx, requester, CreateInput{
		Title:     "expired",
		ExpiresAt: &past,
	}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := f.svc.Create(ctx, requester, CreateInput{
		Title:                "fresh",
		RequiredCapabilities: []string{"Translation"},
		Priority:             5,
	}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	open, err := f.svc.List(ctx, ListInput{Status: "open"})
	if err != nil {
		t.Fatalf("List(open) error = %v", err)
	}
	if len(open) != 1 || open[0].Title != "fresh" {
		t.Errorf("open listing = %d tasks, want just the unexpired one", len(open))
	}

	// No status filter includes the expired task.
	all, err := f.svc.List(ctx, ListInput{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 2 {
		t.Errorf("unfiltered listing = %d tasks, want 2", len(all))
	}

	// Capability filter is case-insensitive.
	matched, err := f.svc.List(ctx, ListInput{Capabilities: []string{"translation"}})
	if err != nil {
		t.Fatalf("List(capabilities) error = %v", err)
	}
	if len(matched) != 1 || matched[0].Title != "fresh" {
		t.Errorf("capability listing = %d tasks, want the translation one", len(matched))
	}

	if _, err := f.svc.List(ctx, ListInput{Status: "bogus"}); !apperrors.IsBadRequest(err) {
		t.Errorf("List(bogus status) error = %v, want BAD_REQUEST", err)
	}

	// The limit caps at 100 without erroring.
	if _, err := f.svc.List(ctx, ListInput{Limit: 10000}); err != nil {
		t.Errorf("List(limit 10000) error = %v", err)
	}
}
