package gc

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func recv(t *testing.T, ch <-chan Event) Event {
	t.Helper()

	select {
	case e, ok := <-ch:
		require.True(t, ok, "channel closed before event arrived")
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestMuxFanOut(t *testing.T) {
	events := make(chan Event, 8)
	m := NewMux(events, discardLogger())

	a, cancelA := m.Subscribe(8)
	defer cancelA()

	b, cancelB := m.Subscribe(8)
	defer cancelB()

	events <- GCReady{}

	assert.Equal(t, GCReady{}, recv(t, a))
	assert.Equal(t, GCReady{}, recv(t, b))
}

func TestMuxPreservesOrder(t *testing.T) {
	events := make(chan Event, 8)
	m := NewMux(events, discardLogger())

	sub, cancel := m.Subscribe(8)
	defer cancel()

	events <- ItemAcquired{Item: Item{ID: "1"}}
	events <- ItemRemoved{Item: Item{ID: "2"}}
	events <- ItemChanged{Item: Item{ID: "3"}}

	assert.IsType(t, ItemAcquired{}, recv(t, sub))
	assert.IsType(t, ItemRemoved{}, recv(t, sub))
	assert.IsType(t, ItemChanged{}, recv(t, sub))
}

func TestMuxCancelStopsDelivery(t *testing.T) {
	events := make(chan Event, 8)
	m := NewMux(events, discardLogger())

	sub, cancel := m.Subscribe(8)
	cancel()
	cancel() // idempotent

	events <- GCReady{}

	// The subscription was removed before the event was dispatched, so
	// nothing may arrive.
	select {
	case e, ok := <-sub:
		if ok {
			t.Fatalf("unexpected event after cancel: %#v", e)
		}
	case <-time.After(100 * time.Millisecond):
	}
}

func TestMuxFullSubscriberDropsNotBlocks(t *testing.T) {
	events := make(chan Event, 8)
	m := NewMux(events, discardLogger())

	slow, cancelSlow := m.Subscribe(1)
	defer cancelSlow()

	fast, cancelFast := m.Subscribe(8)
	defer cancelFast()

	events <- GCReady{}
	events <- Disconnected{}
	events <- GCReady{}

	// The fast subscriber sees everything even though the slow one's
	// buffer filled after the first event.
	assert.IsType(t, GCReady{}, recv(t, fast))
	assert.IsType(t, Disconnected{}, recv(t, fast))
	assert.IsType(t, GCReady{}, recv(t, fast))

	assert.IsType(t, GCReady{}, recv(t, slow))
}

func TestMuxClosesSubscribersWhenSourceCloses(t *testing.T) {
	events := make(chan Event, 8)
	m := NewMux(events, discardLogger())

	sub, cancel := m.Subscribe(8)
	defer cancel()

	close(events)

	select {
	case _, ok := <-sub:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber channel not closed")
	}

	// Subscribing after shutdown yields an already-closed channel.
	late, lateCancel := m.Subscribe(1)
	defer lateCancel()

	_, ok := <-late
	assert.False(t, ok)
}
