// ABOUTME: In-memory fan-out of host events to subscribers of a session key
// ABOUTME: Non-blocking publish; slow subscribers drop events instead of stalling the widget

package hostbridge

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// subscriberBufferSize is the channel buffer for each subscriber.
const subscriberBufferSize = 64

// Hub provides in-memory pub/sub for host events. Subscribers register
// for a key (a widget session id) and receive every event posted to it.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan Event // key -> subID -> ch
	closed      bool
	logger      *slog.Logger
}

// NewHub creates a hub. Pass nil logger for default.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subscribers: make(map[string]map[string]chan Event),
		logger:      logger.With("component", "hostbridge"),
	}
}

// Subscribe registers for events on key. The subscription is removed and
// the channel closed when ctx is cancelled.
func (h *Hub) Subscribe(ctx context.Context, key string) (<-chan Event, string) {
	subID := uuid.New().String()
	ch := make(chan Event, subscriberBufferSize)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, subID
	}
	if _, ok := h.subscribers[key]; !ok {
		h.subscribers[key] = make(map[string]chan Event)
	}
	h.subscribers[key][subID] = ch
	h.mu.Unlock()

	h.logger.Debug("subscriber added", "key", key, "sub_id", subID)

	go func() {
		<-ctx.Done()
		h.Unsubscribe(key, subID)
	}()

	return ch, subID
}

// Publish sends ev to every subscriber of key without blocking.
func (h *Hub) Publish(key string, ev Event) {
	// Sends happen under the read lock so Unsubscribe cannot close a
	// channel mid-send; they never block.
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.subscribers[key] {
		select {
		case ch <- ev:
		default:
			h.logger.Debug("dropped event for slow subscriber", "key", key, "type", ev.Type)
		}
	}
}

// Unsubscribe removes a subscription and closes its channel.
func (h *Hub) Unsubscribe(key, subID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.subscribers[key]
	if !ok {
		return
	}
	ch, exists := subs[subID]
	if !exists {
		return
	}

	delete(subs, subID)
	close(ch)
	if len(subs) == 0 {
		delete(h.subscribers, key)
	}

	h.logger.Debug("subscriber removed", "key", key, "sub_id", subID)
}

// Subscribers returns the number of live subscriptions for key.
func (h *Hub) Subscribers(key string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[key])
}

// Close closes every subscriber channel.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for key, subs := range h.subscribers {
		for subID, ch := range subs {
			close(ch)
			delete(subs, subID)
		}
		delete(h.subscribers, key)
	}
	h.closed = true
}

// Bridge returns a Bridge that publishes to key.
func (h *Hub) Bridge(key string) Bridge {
	return &hubBridge{hub: h, key: key}
}

type hubBridge struct {
	hub *Hub
	key string
}

func (b *hubBridge) Post(ev Event) error {
	b.hub.Publish(b.key, ev)
	return nil
}
