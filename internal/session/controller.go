// Package session owns the single live protocol connection: login,
// reconnection, account switching, logout, and stale-credential
// eviction. It consumes the account store and pushes auth-state and
// inventory notifications toward the UI boundary.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/caskmate/caskmate/internal/accountstore"
	"github.com/caskmate/caskmate/internal/catalog"
	"github.com/caskmate/caskmate/internal/gc"
	"github.com/caskmate/caskmate/internal/inventory"
	"github.com/caskmate/caskmate/internal/notify"
)

// defaultLogoffTimeout bounds how long a teardown waits for the
// connection to confirm it is fully disconnected.
const defaultLogoffTimeout = 2 * time.Second

// Config carries the controller's collaborators.
type Config struct {
	Conn     gc.Conn
	Mux      *gc.Mux
	Accounts *accountstore.Store
	Catalog  *catalog.Store
	Notifier notify.Publisher
	Logger   *slog.Logger

	// LogoffTimeout overrides defaultLogoffTimeout when positive.
	LogoffTimeout time.Duration
}

// Controller is the session state machine. Protocol events are handled
// on the Run goroutine; operations are called from command goroutines.
// Shared state is guarded by mu, and teardown synchronization runs
// through logoffWait so an operation can block until the connection
// confirms a disconnect.
type Controller struct {
	conn          gc.Conn
	mux           *gc.Mux
	accounts      *accountstore.Store
	catalog       *catalog.Store
	notifier      notify.Publisher
	logger        *slog.Logger
	logoffTimeout time.Duration

	mu         sync.Mutex
	state      State
	activeID   string
	reason     disconnectReason
	logoffWait chan struct{}
}

// New returns a controller in the disconnected state.
func New(cfg Config) *Controller {
	timeout := cfg.LogoffTimeout
	if timeout <= 0 {
		timeout = defaultLogoffTimeout
	}

	return &Controller{
		conn:          cfg.Conn,
		mux:           cfg.Mux,
		accounts:      cfg.Accounts,
		catalog:       cfg.Catalog,
		notifier:      cfg.Notifier,
		logger:        cfg.Logger,
		logoffTimeout: timeout,
		state:         StateDisconnected,
	}
}

// Run consumes protocol events until ctx is canceled or the connection
// closes its event stream. Session-state notifications are emitted in
// the order the underlying events occur, never coalesced.
func (c *Controller) Run(ctx context.Context) error {
	events, cancel := c.mux.Subscribe(128)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case e, ok := <-events:
			if !ok {
				return nil
			}

			c.handle(e)
		}
	}
}

func (c *Controller) handle(e gc.Event) {
	switch ev := e.(type) {
	case gc.LoggedOn:
		c.handleLoggedOn(ev)
	case gc.Authenticated:
		c.handleAuthenticated(ev)
	case gc.GuardRequired:
		c.handleGuardRequired(ev)
	case gc.PersonaInfo:
		c.handlePersonaInfo(ev)
	case gc.Errored:
		c.handleErrored(ev)
	case gc.Disconnected:
		c.handleDisconnected(ev)
	case gc.GCReady, gc.ItemAcquired, gc.ItemRemoved, gc.ItemChanged:
		c.publishSnapshots()
	}
}

func (c *Controller) handleLoggedOn(ev gc.LoggedOn) {
	c.mu.Lock()
	if ev.AccountID != "" {
		c.activeID = ev.AccountID
	}
	c.mu.Unlock()

	c.setState(StateConnected, "")

	// The service does not push our own persona data; ask for it so the
	// saved metadata gets refreshed.
	if ev.AccountID != "" {
		c.conn.RequestPersona(ev.AccountID)
	}
}

func (c *Controller) handleAuthenticated(ev gc.Authenticated) {
	if id, ok := accountstore.AccountIDFromToken(ev.RefreshToken); ok {
		name := ev.AccountName
		if name == "" {
			name = id
		}

		c.accounts.SaveToken(id, ev.RefreshToken)
		c.accounts.Upsert(accountstore.Account{
			ID:          id,
			PersonaName: name,
			AddedAt:     time.Now(),
		})
		c.accounts.SetLast(id)

		c.mu.Lock()
		c.activeID = id
		c.mu.Unlock()

		c.notifier.Publish(notify.SavedAccountsUpdated{Accounts: c.accounts.List()})
	}

	if err := c.conn.LogOn(ev.RefreshToken); err != nil {
		c.notifier.Publish(notify.ErrorNotice{Message: err.Error()})
		c.setState(StateError, err.Error())
	}
}

func (c *Controller) handleGuardRequired(ev gc.GuardRequired) {
	c.setState(StateWaitingForGuard, "")
	c.notifier.Publish(notify.GuardRequired{Type: string(ev.Kind)})
}

func (c *Controller) handlePersonaInfo(ev gc.PersonaInfo) {
	c.mu.Lock()
	active := c.activeID
	c.mu.Unlock()

	if ev.AccountID != active {
		return
	}

	c.notifier.Publish(notify.UserInfo{
		ID:        ev.AccountID,
		Name:      ev.Name,
		AvatarURL: ev.AvatarURL,
	})

	// Upsert preserves the original added-at timestamp.
	c.accounts.Upsert(accountstore.Account{
		ID:          ev.AccountID,
		PersonaName: ev.Name,
		AvatarURL:   ev.AvatarURL,
		AddedAt:     time.Now(),
	})
	c.notifier.Publish(notify.SavedAccountsUpdated{Accounts: c.accounts.List()})
}

func (c *Controller) handleErrored(ev gc.Errored) {
	c.notifier.Publish(notify.ErrorNotice{Message: ev.Message, Code: int(ev.Code)})

	if ev.Code.StaleCredential() {
		c.mu.Lock()
		id := c.activeID
		c.activeID = ""
		c.mu.Unlock()

		if id != "" {
			c.logger.Info("stale credential, evicting saved account",
				slog.String("account", id),
				slog.Int("code", int(ev.Code)),
			)

			c.accounts.ClearToken(id)
			c.accounts.Remove(id)
			c.accounts.ClearLast()
			c.notifier.Publish(notify.SavedAccountsUpdated{Accounts: c.accounts.List()})
			c.setState(StateDisconnected, "")

			return
		}
	}

	c.setState(StateError, ev.Message)
}

func (c *Controller) handleDisconnected(ev gc.Disconnected) {
	c.mu.Lock()
	if c.logoffWait != nil {
		close(c.logoffWait)
		c.logoffWait = nil
	}

	reason := c.reason
	c.reason = reasonInvoluntary // the tag covers exactly this disconnect
	id := c.activeID
	c.mu.Unlock()

	c.setState(StateDisconnected, "")

	if reason != reasonInvoluntary || id == "" {
		return
	}

	token, ok := c.accounts.LoadToken(id)
	if !ok {
		return
	}

	c.logger.Info("involuntary disconnect, attempting reconnection",
		slog.String("account", id),
		slog.String("message", ev.Message),
	)
	c.setState(StateConnecting, "")

	if err := c.conn.LogOn(token); err != nil {
		c.logger.Warn("reconnection attempt failed", slog.String("error", err.Error()))
		c.setState(StateDisconnected, "")
	}
}

// RefreshSnapshots publishes fresh inventory and storage-unit snapshots
// on demand, for observers that subscribed after the initial push.
func (c *Controller) RefreshSnapshots() {
	c.publishSnapshots()
}

// publishSnapshots pushes fresh inventory and storage-unit views. Called
// on every item-collection event so observers never sit on stale data.
func (c *Controller) publishSnapshots() {
	items := c.conn.Inventory()
	tab := c.catalog.Current()

	c.notifier.Publish(notify.InventoryUpdated{Items: inventory.Snapshot(items, tab)})
	c.notifier.Publish(notify.StorageUnitsUpdated{Units: inventory.Units(items)})
}

func (c *Controller) setState(st State, errMsg string) {
	c.mu.Lock()
	c.state = st
	c.mu.Unlock()

	c.notifier.Publish(notify.AuthState{State: string(st), Error: errMsg})
}

// State returns the current auth state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

// ActiveAccount returns the id of the currently active account, or empty.
func (c *Controller) ActiveAccount() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.activeID
}

func (c *Controller) markIntentional(r disconnectReason) {
	c.mu.Lock()
	c.reason = r
	c.mu.Unlock()
}

func (c *Controller) clearIntent() {
	c.mu.Lock()
	c.reason = reasonInvoluntary
	c.mu.Unlock()
}

// logOffCurrent tears down the current connection and blocks until the
// protocol confirms the disconnect, the context is canceled, or the
// logoff timeout elapses. The connection is logged off even when idle to
// clear any lingering connecting state.
func (c *Controller) logOffCurrent(ctx context.Context) {
	c.mu.Lock()
	wait := make(chan struct{})
	c.logoffWait = wait
	c.mu.Unlock()

	c.conn.LogOff()

	select {
	case <-wait:
	case <-ctx.Done():
	case <-time.After(c.logoffTimeout):
		c.logger.Warn("timed out waiting for disconnect confirmation")
	}

	c.mu.Lock()
	if c.logoffWait == wait {
		c.logoffWait = nil
	}
	c.mu.Unlock()
}
