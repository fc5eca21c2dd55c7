package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	agentapi "github.com/huolter/50c14l/internal/agent/api"
	agentservice "github.com/huolter/50c14l/internal/agent/service"
	"github.com/huolter/50c14l/internal/common/logger"
	"github.com/huolter/50c14l/internal/events/bus"
	"github.com/huolter/50c14l/internal/notify"
	reputationservice "github.com/huolter/50c14l/internal/reputation/service"
	"github.com/huolter/50c14l/internal/store"
	"github.com/huolter/50c14l/internal/task/service"
)

func setupRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log, err := logger.NewLogger(logger.LoggingConfig{Level: "error"})
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	repo := store.NewMemoryRepository()
	notifier := notify.NewNotifier(bus.NewMemoryEventBus(log), log)
	agentSvc := agentservice.NewService(repo, log, "http://localhost:8000")
	taskSvc := service.NewService(repo, reputationservice.NewService(repo, log), notifier, log)

	router := gin.New()
	v1 := router.Group("/api/v1")
	agentapi.SetupRoutes(v1, agentSvc, log)
	SetupRoutes(v1, taskSvc, agentSvc, log)
	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func registerAgent(t *testing.T, router *gin.Engine, name string) (id, apiKey string) {
	t.Helper()
	w := doJSON(t, router, http.MethodPost, "/api/v1/agents/register", "", map[string]interface{}{
		"name": name,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("register %q status = %d, body = %s", name, w.Code, w.Body.String())
	}
	var resp struct {
		AgentID string `json:"agent_id"`
		APIKey  string `json:"api_key"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode register response: %v", err)
	}
	return resp.AgentID, resp.APIKey
}

func decodeTask(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var task map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &task); err != nil {
		t.Fatalf("failed to decode task: %v", err)
	}
	return task
}

func TestTaskLifecycleOverHTTP(t *testing.T) {
	router := setupRouter(t)
	requesterID, requesterKey := registerAgent(t, router, "requester")
	_, workerKey := registerAgent(t, router, "worker")

	// Posting requires auth.
	w := doJSON(t, router, http.MethodPost, "/api/v1/tasks", "", CreateTaskRequest{Title: "nope"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated create status = %d, want 401", w.Code)
	}

	w = doJSON(t, router, http.MethodPost, "/api/v1/tasks", requesterKey, CreateTaskRequest{
		Title:                "Summarize report",
		RequiredCapabilities: []string{"summarization"},
		Priority:             2,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}
	task := decodeTask(t, w)
	taskID := task["id"].(string)
	if task["status"] != "open" {
		t.Errorf("new task status = %v, want open", task["status"])
	}
	if task["requester_id"] != requesterID {
		t.Errorf("requester_id = %v, want %q", task["requester_id"], requesterID)
	}

	// The board defaults to open tasks and is public.
	w = doJSON(t, router, http.MethodGet, "/api/v1/tasks", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	var listed []map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &listed); err != nil {
		t.Fatalf("failed to decode listing: %v", err)
	}
	if len(listed) != 1 {
		t.Errorf("open board has %d tasks, want 1", len(listed))
	}

	// Requesters cannot claim their own tasks.
	w = doJSON(t, router, http.MethodPost, "/api/v1/tasks/"+taskID+"/claim", requesterKey, nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("self-claim status = %d, want 403", w.Code)
	}

	w = doJSON(t, router, http.MethodPost, "/api/v1/tasks/"+taskID+"/claim", workerKey, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("claim status = %d, body = %s", w.Code, w.Body.String())
	}
	if claimed := decodeTask(t, w); claimed["status"] != "in_progress" {
		t.Errorf("claimed status = %v, want in_progress", claimed["status"])
	}

	// Claimed tasks leave the open board.
	w = doJSON(t, router, http.MethodGet, "/api/v1/tasks", "", nil)
	if err := json.Unmarshal(w.Body.Bytes(), &listed); err != nil {
		t.Fatalf("failed to decode listing: %v", err)
	}
	if len(listed) != 0 {
		t.Errorf("open board has %d tasks after claim, want 0", len(listed))
	}

	// Only the claimer may complete.
	w = doJSON(t, router, http.MethodPost, "/api/v1/tasks/"+taskID+"/complete", requesterKey, nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("complete by requester status = %d, want 403", w.Code)
	}

	w = doJSON(t, router, http.MethodPost, "/api/v1/tasks/"+taskID+"/complete", workerKey, CompleteTaskRequest{
		Result: map[string]interface{}{"summary": "done"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("complete status = %d, body = %s", w.Code, w.Body.String())
	}
	completed := decodeTask(t, w)
	if completed["status"] != "completed" {
		t.Errorf("completed status = %v, want completed", completed["status"])
	}
	if completed["completed_at"] == nil {
		t.Error("completed_at not set")
	}

	// Completed tasks cannot be cancelled.
	w = doJSON(t, router, http.MethodDelete, "/api/v1/tasks/"+taskID, requesterKey, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("cancel completed task status = %d, want 400", w.Code)
	}

	// The task remains publicly readable.
	w = doJSON(t, router, http.MethodGet, "/api/v1/tasks/"+taskID, "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("get status = %d, want 200", w.Code)
	}
}

func TestCancelTaskOverHTTP(t *testing.T) {
	router := setupRouter(t)
	_, requesterKey := registerAgent(t, router, "requester")
	_, bystanderKey := registerAgent(t, router, "bystander")

	w := doJSON(t, router, http.MethodPost, "/api/v1/tasks", requesterKey, CreateTaskRequest{Title: "short-lived"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d", w.Code)
	}
	taskID := decodeTask(t, w)["id"].(string)

	w = doJSON(t, router, http.MethodDelete, "/api/v1/tasks/"+taskID, bystanderKey, nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("cancel by bystander status = %d, want 403", w.Code)
	}

	w = doJSON(t, router, http.MethodDelete, "/api/v1/tasks/"+taskID, requesterKey, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("cancel status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode cancel response: %v", err)
	}
	if resp["message"] != "Task cancelled successfully" {
		t.Errorf("cancel message = %v", resp["message"])
	}

	// Cancelling again is a quiet no-op.
	w = doJSON(t, router, http.MethodDelete, "/api/v1/tasks/"+taskID, requesterKey, nil)
	if w.Code != http.StatusOK {
		t.Errorf("repeated cancel status = %d, want 200", w.Code)
	}

	w = doJSON(t, router, http.MethodGet, "/api/v1/tasks/"+taskID, "", nil)
	if got := decodeTask(t, w)["status"]; got != "cancelled" {
		t.Errorf("status = %v, want cancelled", got)
	}
}

func TestListTasksValidation(t *testing.T) {
	router := setupRouter(t)

	w := doJSON(t, router, http.MethodGet, "/api/v1/tasks?status=bogus", "", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bogus status filter response = %d, want 400", w.Code)
	}

	w = doJSON(t, router, http.MethodGet, "/api/v1/tasks?status=all", "", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown status response = %d, want 400", w.Code)
	}
}
