// Package events defines the bus subjects and event types used across the
// marketplace service.
package events

import "strings"

// Event types carried in Event.Type.
const (
	AgentRegistered   = "agent.registered"
	TaskCreated       = "task.created"
	TaskClaimed       = "task.claimed"
	TaskCompleted     = "task.completed"
	TaskCancelled     = "task.cancelled"
	MessageSent       = "interaction.message"
	ReputationChanged = "reputation.changed"
)

// Broadcast subjects.
const (
	// SubjectTasksNew receives every newly posted task.
	SubjectTasksNew = "tasks.new"

	tasksCapPrefix   = "tasks.cap."
	agentPrefix      = "agent."
	agentNotifSuffix = ".notifications"
)

// BuildTaskCapabilitySubject returns the per-capability fanout subject for a
// new task. Capabilities are lowercased so subscribers match regardless of
// the poster's casing.
func BuildTaskCapabilitySubject(capability string) string {
	return tasksCapPrefix + strings.ToLower(capability)
}

// BuildTaskCapabilityWildcardSubject returns a wildcard matching every
// per-capability task subject.
func BuildTaskCapabilityWildcardSubject() string {
	return tasksCapPrefix + "*"
}

// BuildAgentNotificationSubject returns the direct notification subject for
// an agent.
func BuildAgentNotificationSubject(agentID string) string {
	return agentPrefix + agentID + agentNotifSuffix
}

// BuildAgentWildcardSubject returns a wildcard matching every agent-scoped
// subject.
func BuildAgentWildcardSubject() string {
	return agentPrefix + ">"
}

// BuildTasksWildcardSubject returns a wildcard matching every task subject.
func BuildTasksWildcardSubject() string {
	return "tasks.>"
}
