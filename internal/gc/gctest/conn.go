// Package gctest provides a scripted in-memory implementation of gc.Conn
// for tests. Tests drive it by installing hooks and emitting events; the
// fake records every call so ordering properties can be asserted.
package gctest

import (
	"context"
	"fmt"
	"sync"

	"github.com/caskmate/caskmate/internal/gc"
)

// Conn is a fake protocol connection. The zero value is not usable;
// construct with NewConn.
//
// By default LogOff emits a Disconnected event, matching the real
// client's behavior of always confirming teardown. Set AutoDisconnect to
// false to script that manually.
type Conn struct {
	AutoDisconnect bool

	// Optional hooks, invoked synchronously from the corresponding
	// method while holding no locks. A nil hook is a no-op.
	OnStartCredentials func(accountName, password string) error
	OnSubmitGuardCode  func(code string) error
	OnLogOn            func(refreshToken string) error
	OnLogOff           func()
	OnRequestPersona   func(accountID string)
	OnAddToCasket      func(casketID, itemID string) error
	OnRemoveFromCasket func(casketID, itemID string) error
	OnNameCasket       func(casketID, name string) error
	OnCasketContents   func(casketID string) ([]gc.Item, error)

	mu        sync.Mutex
	events    chan gc.Event
	inventory []gc.Item
	calls     []string
	closed    bool
}

// NewConn returns a fake connection with a generously buffered event
// channel so tests never block on Emit.
func NewConn() *Conn {
	return &Conn{
		AutoDisconnect: true,
		events:         make(chan gc.Event, 256),
	}
}

// Emit pushes an event onto the connection's stream.
func (c *Conn) Emit(e gc.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.events <- e
	}
}

// SetInventory replaces the live item collection snapshot.
func (c *Conn) SetInventory(items []gc.Item) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.inventory = items
}

// Calls returns the ordered list of method invocations recorded so far,
// formatted as "Method(arg, ...)".
func (c *Conn) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]string, len(c.calls))
	copy(out, c.calls)

	return out
}

func (c *Conn) record(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls = append(c.calls, fmt.Sprintf(format, args...))
}

func (c *Conn) StartCredentials(_ context.Context, accountName, password string) error {
	c.record("StartCredentials(%s)", accountName)

	if c.OnStartCredentials != nil {
		return c.OnStartCredentials(accountName, password)
	}

	return nil
}

func (c *Conn) SubmitGuardCode(_ context.Context, code string) error {
	c.record("SubmitGuardCode(%s)", code)

	if c.OnSubmitGuardCode != nil {
		return c.OnSubmitGuardCode(code)
	}

	return nil
}

func (c *Conn) LogOn(refreshToken string) error {
	c.record("LogOn(%s)", refreshToken)

	if c.OnLogOn != nil {
		return c.OnLogOn(refreshToken)
	}

	return nil
}

func (c *Conn) LogOff() {
	c.record("LogOff()")

	if c.OnLogOff != nil {
		c.OnLogOff()
	}

	if c.AutoDisconnect {
		c.Emit(gc.Disconnected{})
	}
}

func (c *Conn) RequestPersona(accountID string) {
	c.record("RequestPersona(%s)", accountID)

	if c.OnRequestPersona != nil {
		c.OnRequestPersona(accountID)
	}
}

func (c *Conn) Inventory() []gc.Item {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]gc.Item, len(c.inventory))
	copy(out, c.inventory)

	return out
}

func (c *Conn) CasketContents(_ context.Context, casketID string) ([]gc.Item, error) {
	c.record("CasketContents(%s)", casketID)

	if c.OnCasketContents != nil {
		return c.OnCasketContents(casketID)
	}

	return nil, nil
}

func (c *Conn) AddToCasket(casketID, itemID string) error {
	c.record("AddToCasket(%s, %s)", casketID, itemID)

	if c.OnAddToCasket != nil {
		return c.OnAddToCasket(casketID, itemID)
	}

	return nil
}

func (c *Conn) RemoveFromCasket(casketID, itemID string) error {
	c.record("RemoveFromCasket(%s, %s)", casketID, itemID)

	if c.OnRemoveFromCasket != nil {
		return c.OnRemoveFromCasket(casketID, itemID)
	}

	return nil
}

func (c *Conn) NameCasket(casketID, name string) error {
	c.record("NameCasket(%s, %s)", casketID, name)

	if c.OnNameCasket != nil {
		return c.OnNameCasket(casketID, name)
	}

	return nil
}

func (c *Conn) Events() <-chan gc.Event {
	return c.events
}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.events)
	}

	return nil
}
