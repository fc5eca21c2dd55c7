// Package models defines the agent-to-agent interaction record.
package models

import "time"

// DeliveryStatus tracks the outcome of the webhook delivery attempt.
type DeliveryStatus string

const (
	// StatusSent means the message was recorded; the recipient has no
	// webhook, or delivery has not been attempted.
	StatusSent DeliveryStatus = "sent"
	// StatusDelivered means the recipient's webhook accepted the message.
	StatusDelivered DeliveryStatus = "delivered"
	// StatusFailed means the webhook rejected the message or was unreachable.
	StatusFailed DeliveryStatus = "failed"
)

// Interaction is one directed message between two agents.
type Interaction struct {
	ID          string                 `json:"id"`
	SenderID    string                 `json:"sender_id"`
	RecipientID string                 `json:"recipient_id"`
	MessageType string                 `json:"message_type"`
	Payload     map[string]interface{} `json:"payload"`
	Status      DeliveryStatus         `json:"status"`
	CreatedAt   time.Time              `json:"created_at"`
}
