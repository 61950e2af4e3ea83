package notify

import (
	"log/slog"
	"sync"
)

// Hub fans published notifications out to all subscribers in publish
// order. Publishing never blocks: a subscriber whose buffer is full
// misses the event, which is acceptable at the UI boundary — the next
// snapshot supersedes the missed one.
type Hub struct {
	logger *slog.Logger

	mu   sync.Mutex
	subs map[chan Event]struct{}
}

// NewHub returns an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger: logger,
		subs:   make(map[chan Event]struct{}),
	}
}

// Publish delivers e to every current subscriber.
func (h *Hub) Publish(e Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subs {
		select {
		case ch <- e:
		default:
			h.logger.Warn("notification subscriber buffer full, dropping event",
				slog.String("kind", e.Kind()),
			)
		}
	}
}

// Subscribe registers a subscriber with the given buffer size. The
// returned cancel function unregisters it and is idempotent.
func (h *Hub) Subscribe(buf int) (<-chan Event, func()) {
	ch := make(chan Event, buf)

	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
		})
	}

	return ch, cancel
}
