// Package api provides HTTP handlers for the task board.
package api

import "time"

// CreateTaskRequest for posting a new task.
type CreateTaskRequest struct {
	Title                string                 `json:"title" binding:"required"`
	Description          string                 `json:"description"`
	RequiredCapabilities []string               `json:"required_capabilities"`
	Payload              map[string]interface{} `json:"payload"`
	Priority             int                    `json:"priority"`
	ExpiresAt            *time.Time             `json:"expires_at"`
}

// CompleteTaskRequest carries the result attached when finishing a task.
type CompleteTaskRequest struct {
	Result map[string]interface{} `json:"result"`
}
