package bus

import (
	"context"
	"testing"
	"time"

	"github.com/huolter/50c14l/internal/common/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.NewLogger(logger.LoggingConfig{Level: "error"})
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	return log
}

func TestMemoryBusPublishSubscribe(t *testing.T) {
	b := NewMemoryEventBus(testLogger(t))
	defer b.Close()

	received := make(chan *Event, 1)
	_, err := b.Subscribe("tasks.new", func(ctx context.Context, event *Event) error {
		received <- event
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	event := NewEvent("task.created", "test", map[string]interface{}{"task_id": "t1"})
	if err := b.Publish(context.Background(), "tasks.new", event); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case got := <-received:
		if got.ID != event.ID {
			t.Errorf("received event ID = %q, want %q", got.ID, event.ID)
		}
		if got.Data["task_id"] != "t1" {
			t.Errorf("received event data = %v, want task_id t1", got.Data)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber never received the event")
	}
}

func TestMemoryBusWildcardMatching(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		subject string
		match   bool
	}{
		{"exact match", "tasks.new", "tasks.new", true},
		{"exact mismatch", "tasks.new", "tasks.old", false},
		{"single token wildcard", "tasks.cap.*", "tasks.cap.translation", true},
		{"single token wildcard rejects extra tokens", "tasks.cap.*", "tasks.cap.a.b", false},
		{"rest wildcard", "tasks.>", "tasks.cap.translation", true},
		{"rest wildcard matches one token", "tasks.>", "tasks.new", true},
		{"rest wildcard rejects other prefix", "tasks.>", "agent.a1.notifications", false},
		{"agent wildcard", "agent.>", "agent.a1.notifications", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := matches(tt.subject, tt.pattern, compilePattern(tt.pattern))
			if got != tt.match {
				t.Errorf("matches(%q, %q) = %v, want %v", tt.subject, tt.pattern, got, tt.match)
			}
		})
	}
}

func TestMemoryBusUnsubscribe(t *testing.T) {
	b := NewMemoryEventBus(testLogger(t))
	defer b.Close()

	received := make(chan *Event, 1)
	sub, err := b.Subscribe("tasks.new", func(ctx context.Context, event *Event) error {
		received <- event
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	if err := sub.Unsubscribe(); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}
	if sub.IsValid() {
		t.Error("subscription still valid after Unsubscribe()")
	}

	if err := b.Publish(context.Background(), "tasks.new", NewEvent("task.created", "test", nil)); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case <-received:
		t.Error("unsubscribed handler still received an event")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryBusClose(t *testing.T) {
	b := NewMemoryEventBus(testLogger(t))
	b.Close()

	if b.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
	if err := b.Publish(context.Background(), "tasks.new", NewEvent("task.created", "test", nil)); err == nil {
		t.Error("Publish() after Close() should fail")
	}
	if _, err := b.Subscribe("tasks.new", func(ctx context.Context, event *Event) error { return nil }); err == nil {
		t.Error("Subscribe() after Close() should fail")
	}
}
