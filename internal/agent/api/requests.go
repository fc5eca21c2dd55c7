// Package api provides HTTP handlers for the agent directory.
package api

// RegisterRequest for registering a new agent.
type RegisterRequest struct {
	Name         string                 `json:"name" binding:"required"`
	Description  string                 `json:"description"`
	Capabilities []string               `json:"capabilities"`
	Endpoints    map[string]interface{} `json:"endpoints"`
}

// RegisterResponse is returned exactly once per agent; the API key is not
// recoverable afterwards.
type RegisterResponse struct {
	AgentID    string `json:"agent_id"`
	APIKey     string `json:"api_key"`
	ProfileURL string `json:"profile_url"`
	Name       string `json:"name"`
}

// UpdateProfileRequest for patching the authenticated agent's profile.
// Omitted fields are left unchanged.
type UpdateProfileRequest struct {
	Description  *string                `json:"description,omitempty"`
	Capabilities []string               `json:"capabilities,omitempty"`
	Endpoints    map[string]interface{} `json:"endpoints,omitempty"`
	Metadata     map[string]interface{} `json:"agent_metadata,omitempty"`
}

// SearchRequest for capability-based agent search.
type SearchRequest struct {
	Capabilities []string `json:"capabilities"`
	Limit        int      `json:"limit"`
}
