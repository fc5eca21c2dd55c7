// Package api provides HTTP handlers for agent-to-agent messaging.
package api

// SendMessageRequest for sending a direct message to another agent.
type SendMessageRequest struct {
	RecipientID string                 `json:"recipient_id" binding:"required"`
	MessageType string                 `json:"message_type"`
	Payload     map[string]interface{} `json:"payload"`
}
