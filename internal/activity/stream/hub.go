// Package stream bridges bus events to WebSocket observers. Every
// connected client sees every marketplace broadcast; there is no replay,
// so delivery is at-most-once from connection time.
package stream

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/huolter/50c14l/internal/common/logger"
	"github.com/huolter/50c14l/internal/events"
	"github.com/huolter/50c14l/internal/events/bus"
)

// Hub manages WebSocket observers and the bus subscriptions feeding them.
type Hub struct {
	bus    bus.EventBus
	logger *logger.Logger

	mu      sync.RWMutex
	clients map[*Client]bool
	subs    []bus.Subscription
	closed  bool
}

// NewHub creates a stream hub over the given bus.
func NewHub(eventBus bus.EventBus, log *logger.Logger) *Hub {
	return &Hub{
		bus:     eventBus,
		logger:  log.WithFields(zap.String("component", "activity_stream")),
		clients: make(map[*Client]bool),
	}
}

// Start subscribes the hub to the marketplace broadcast subjects.
func (h *Hub) Start() error {
	subjects := []string{
		events.BuildTasksWildcardSubject(),
		events.BuildAgentWildcardSubject(),
	}
	for _, subject := range subjects {
		sub, err := h.bus.Subscribe(subject, h.forward)
		if err != nil {
			return err
		}
		h.mu.Lock()
		h.subs = append(h.subs, sub)
		h.mu.Unlock()
	}
	h.logger.Info("Activity stream started")
	return nil
}

// Stop unsubscribes from the bus and disconnects all observers.
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for _, sub := range h.subs {
		_ = sub.Unsubscribe()
	}
	h.subs = nil
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
	h.logger.Info("Activity stream stopped")
}

// forward fans a bus event out to every connected client.
func (h *Hub) forward(ctx context.Context, event *bus.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		select {
		case client.send <- data:
		default:
			// Slow consumer; drop the connection rather than block the feed.
			close(client.send)
			delete(h.clients, client)
		}
	}
	return nil
}

func (h *Hub) register(client *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}
	h.clients[client] = true
	return true
}

func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
}

// ClientCount returns the number of connected observers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
