package gc

import (
	"log/slog"
	"sync"
)

// Mux fans a connection's event stream out to any number of subscribers.
// The session controller holds a long-lived subscription; the transfer
// orchestrator takes a short-lived one per step so the "first of
// {confirming event, timeout}" race is an explicit select rather than ad
// hoc listener add/remove.
//
// Publishing never blocks: a subscriber whose buffer is full misses the
// event. Subscribers that care about completeness size their buffer
// accordingly.
type Mux struct {
	logger *slog.Logger

	mu     sync.Mutex
	subs   map[chan Event]struct{}
	closed bool
}

// NewMux starts a goroutine draining events and returns the running mux.
// The mux closes all subscriber channels when events closes.
func NewMux(events <-chan Event, logger *slog.Logger) *Mux {
	m := &Mux{
		logger: logger,
		subs:   make(map[chan Event]struct{}),
	}

	go m.run(events)

	return m
}

func (m *Mux) run(events <-chan Event) {
	for e := range events {
		m.dispatch(e)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	for ch := range m.subs {
		close(ch)
	}

	m.subs = nil
}

func (m *Mux) dispatch(e Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for ch := range m.subs {
		select {
		case ch <- e:
		default:
			m.logger.Warn("event mux: subscriber buffer full, dropping event")
		}
	}
}

// Subscribe registers a new subscriber with the given buffer size and
// returns its channel plus a cancel function. Cancel is idempotent and
// safe to call after the mux has shut down.
func (m *Mux) Subscribe(buf int) (<-chan Event, func()) {
	ch := make(chan Event, buf)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		close(ch)
		return ch, func() {}
	}

	m.subs[ch] = struct{}{}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()

			if !m.closed {
				delete(m.subs, ch)
			}
		})
	}

	return ch, cancel
}
