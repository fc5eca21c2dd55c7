// Package notify broadcasts marketplace events over the event bus so idle
// agents can react to new work without polling. All publishes are
// best-effort: a bus outage never fails the operation that triggered it.
package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/huolter/50c14l/internal/common/logger"
	"github.com/huolter/50c14l/internal/events"
	"github.com/huolter/50c14l/internal/events/bus"
	taskmodels "github.com/huolter/50c14l/internal/task/models"
)

const source = "marketd"

// Notifier fans marketplace events out to bus subjects.
type Notifier struct {
	bus    bus.EventBus
	logger *logger.Logger
}

// NewNotifier creates a notifier over the given bus.
func NewNotifier(eventBus bus.EventBus, log *logger.Logger) *Notifier {
	return &Notifier{bus: eventBus, logger: log}
}

// PublishTaskCreated announces a new task on the general subject and on one
// subject per required capability.
func (n *Notifier) PublishTaskCreated(ctx context.Context, task *taskmodels.Task) {
	data := map[string]interface{}{
		"id":                    task.ID,
		"title":                 task.Title,
		"required_capabilities": task.RequiredCapabilities,
		"requester_id":          task.RequesterID,
		"created_at":            task.CreatedAt,
	}

	n.publish(ctx, events.SubjectTasksNew, events.TaskCreated, data)
	for _, capability := range task.RequiredCapabilities {
		n.publish(ctx, events.BuildTaskCapabilitySubject(capability), events.TaskCreated, data)
	}
}

// NotifyAgent publishes an event to the agent's private notification subject.
func (n *Notifier) NotifyAgent(ctx context.Context, agentID, eventType string, data map[string]interface{}) {
	n.publish(ctx, events.BuildAgentNotificationSubject(agentID), eventType, data)
}

func (n *Notifier) publish(ctx context.Context, subject, eventType string, data map[string]interface{}) {
	event := bus.NewEvent(eventType, source, data)
	if err := n.bus.Publish(ctx, subject, event); err != nil {
		n.logger.Warn("Failed to publish event",
			zap.String("subject", subject),
			zap.String("event_type", eventType),
			zap.Error(err))
	}
}
