package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/huolter/50c14l/internal/agent/service"
	"github.com/huolter/50c14l/internal/common/logger"
	"github.com/huolter/50c14l/internal/store"
)

func setupRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log, err := logger.NewLogger(logger.LoggingConfig{Level: "error"})
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	svc := service.NewService(store.NewMemoryRepository(), log, "http://localhost:8000")

	router := gin.New()
	SetupRoutes(router.Group("/api/v1"), svc, log)
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

func register(t *testing.T, router *gin.Engine, name string) RegisterResponse {
	t.Helper()
	w := doJSON(t, router, http.MethodPost, "/api/v1/agents/register", "", RegisterRequest{
		Name:         name,
		Capabilities: []string{"translation"},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("register %q status = %d, body = %s", name, w.Code, w.Body.String())
	}
	var resp RegisterResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode register response: %v", err)
	}
	return resp
}

func TestRegisterEndpoint(t *testing.T) {
	router := setupRouter(t)

	resp := register(t, router, "test-bot")
	if resp.AgentID == "" || resp.APIKey == "" {
		t.Errorf("registration response incomplete: %+v", resp)
	}
	if !strings.HasPrefix(resp.APIKey, "ak_") {
		t.Errorf("API key %q missing ak_ prefix", resp.APIKey)
	}

	// Missing name fails validation.
	w := doJSON(t, router, http.MethodPost, "/api/v1/agents/register", "", map[string]interface{}{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("register without name status = %d, want 400", w.Code)
	}

	// Duplicate name conflicts.
	w = doJSON(t, router, http.MethodPost, "/api/v1/agents/register", "", RegisterRequest{Name: "test-bot"})
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate register status = %d, want 409", w.Code)
	}
}

func TestMeEndpoints(t *testing.T) {
	router := setupRouter(t)
	resp := register(t, router, "me-bot")

	w := doJSON(t, router, http.MethodGet, "/api/v1/agents/me", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated /me status = %d, want 401", w.Code)
	}

	w = doJSON(t, router, http.MethodGet, "/api/v1/agents/me", "ak_bogus.key", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("/me with bad key status = %d, want 401", w.Code)
	}

	w = doJSON(t, router, http.MethodGet, "/api/v1/agents/me", resp.APIKey, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("/me status = %d, body = %s", w.Code, w.Body.String())
	}
	var me map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &me); err != nil {
		t.Fatalf("failed to decode /me response: %v", err)
	}
	if me["id"] != resp.AgentID {
		t.Errorf("/me id = %v, want %q", me["id"], resp.AgentID)
	}

	newDesc := "patched"
	w = doJSON(t, router, http.MethodPatch, "/api/v1/agents/me", resp.APIKey, UpdateProfileRequest{
		Description: &newDesc,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("PATCH /me status = %d, body = %s", w.Code, w.Body.String())
	}
	var updated map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &updated); err != nil {
		t.Fatalf("failed to decode PATCH response: %v", err)
	}
	if updated["description"] != "patched" {
		t.Errorf("description = %v, want patched", updated["description"])
	}
}

func TestPublicProfileHidesCredentials(t *testing.T) {
	router := setupRouter(t)
	resp := register(t, router, "public-bot")

	w := doJSON(t, router, http.MethodGet, "/api/v1/agents/"+resp.AgentID, "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("profile status = %d, body = %s", w.Code, w.Body.String())
	}

	body := w.Body.String()
	for _, secret := range []string{"api_key", "ak_"} {
		if strings.Contains(body, secret) {
			t.Errorf("public profile leaks %q: %s", secret, body)
		}
	}

	w = doJSON(t, router, http.MethodGet, "/api/v1/agents/no-such-agent", "", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing profile status = %d, want 404", w.Code)
	}
}

func TestSearchEndpoint(t *testing.T) {
	router := setupRouter(t)
	register(t, router, "finder-1")
	register(t, router, "finder-2")

	w := doJSON(t, router, http.MethodPost, "/api/v1/agents/search", "", SearchRequest{
		Capabilities: []string{"Translation"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("search status = %d, body = %s", w.Code, w.Body.String())
	}
	var results []map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &results); err != nil {
		t.Fatalf("failed to decode search response: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("search returned %d agents, want 2", len(results))
	}
}
