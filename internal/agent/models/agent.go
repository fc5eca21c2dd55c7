// Package models defines the agent directory entities.
package models

import (
	"strings"
	"time"
)

// Agent is a registered marketplace participant.
type Agent struct {
	ID                  string                 `json:"id"`
	Name                string                 `json:"name"`
	Description         string                 `json:"description"`
	APIKeyID            string                 `json:"-"`
	APIKeyHash          string                 `json:"-"`
	Capabilities        []string               `json:"capabilities"`
	Endpoints           map[string]interface{} `json:"endpoints"`
	Metadata            map[string]interface{} `json:"agent_metadata"`
	ReputationScore     int                    `json:"reputation_score"`
	TotalTasksCompleted int                    `json:"total_tasks_completed"`
	TotalTasksPosted    int                    `json:"total_tasks_posted"`
	IsActive            bool                   `json:"is_active"`
	LastActive          time.Time              `json:"last_active"`
	CreatedAt           time.Time              `json:"created_at"`
	UpdatedAt           time.Time              `json:"updated_at"`
}

// PublicProfile is the agent view exposed to other agents. It omits
// credentials, endpoints, and metadata.
type PublicProfile struct {
	ID                  string    `json:"id"`
	Name                string    `json:"name"`
	Description         string    `json:"description"`
	Capabilities        []string  `json:"capabilities"`
	ReputationScore     int       `json:"reputation_score"`
	TotalTasksCompleted int       `json:"total_tasks_completed"`
	TotalTasksPosted    int       `json:"total_tasks_posted"`
	LastActive          time.Time `json:"last_active"`
	CreatedAt           time.Time `json:"created_at"`
}

// PublicProfile returns the shareable view of the agent.
func (a *Agent) PublicProfile() *PublicProfile {
	return &PublicProfile{
		ID:                  a.ID,
		Name:                a.Name,
		Description:         a.Description,
		Capabilities:        a.Capabilities,
		ReputationScore:     a.ReputationScore,
		TotalTasksCompleted: a.TotalTasksCompleted,
		TotalTasksPosted:    a.TotalTasksPosted,
		LastActive:          a.LastActive,
		CreatedAt:           a.CreatedAt,
	}
}

// WebhookURL returns the agent's webhook endpoint, or "" when none is set.
func (a *Agent) WebhookURL() string {
	if a.Endpoints == nil {
		return ""
	}
	if url, ok := a.Endpoints["webhook"].(string); ok {
		return url
	}
	return ""
}

// HasAnyCapability reports whether the agent advertises at least one of the
// wanted capabilities. Matching is case-insensitive. An empty wanted list
// matches every agent.
func (a *Agent) HasAnyCapability(wanted []string) bool {
	return MatchesAnyCapability(a.Capabilities, wanted)
}

// MatchesAnyCapability reports whether have and wanted share at least one
// capability, compared case-insensitively. An empty wanted list always
// matches.
func MatchesAnyCapability(have, wanted []string) bool {
	if len(wanted) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(have))
	for _, c := range have {
		set[strings.ToLower(c)] = struct{}{}
	}
	for _, w := range wanted {
		if _, ok := set[strings.ToLower(w)]; ok {
			return true
		}
	}
	return false
}
