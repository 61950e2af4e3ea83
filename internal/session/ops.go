package session

import (
	"context"
	"fmt"

	"github.com/caskmate/caskmate/internal/accountstore"
	"github.com/caskmate/caskmate/internal/notify"
)

// CredentialLogin starts a username/password login. The current session,
// if any, is logged off first without touching its saved token. Guard
// prompts and the eventual token arrive as events handled by Run.
func (c *Controller) CredentialLogin(ctx context.Context, accountName, password string) error {
	c.logger.Info("starting credential login")

	c.markIntentional(reasonRelogin)
	c.logOffCurrent(ctx)
	c.clearIntent()

	c.setState(StateConnecting, "")

	if err := c.conn.StartCredentials(ctx, accountName, password); err != nil {
		c.notifier.Publish(notify.ErrorNotice{Message: err.Error()})
		c.setState(StateError, err.Error())

		return fmt.Errorf("session: starting credential login: %w", err)
	}

	return nil
}

// SubmitGuardCode completes a pending second-factor challenge.
func (c *Controller) SubmitGuardCode(ctx context.Context, code string) error {
	c.setState(StateConnecting, "")

	if err := c.conn.SubmitGuardCode(ctx, code); err != nil {
		c.notifier.Publish(notify.ErrorNotice{Message: err.Error()})

		return fmt.Errorf("session: submitting guard code: %w", err)
	}

	return nil
}

// Logout tears down the session and destroys the active account's saved
// state: token, metadata, and the last-active pointer.
func (c *Controller) Logout(ctx context.Context) {
	c.mu.Lock()
	id := c.activeID
	c.activeID = ""
	c.mu.Unlock()

	c.markIntentional(reasonLogout)
	c.logOffCurrent(ctx)
	c.clearIntent()

	if id != "" {
		c.accounts.ClearToken(id)
		c.accounts.Remove(id)
		c.accounts.ClearLast()
		c.notifier.Publish(notify.SavedAccountsUpdated{Accounts: c.accounts.List()})
	}

	c.setState(StateDisconnected, "")
}

// TrySavedSession restores the most recently active account from its
// saved token. Runs the one-time legacy migration first. Returns false
// when nothing restorable exists.
func (c *Controller) TrySavedSession() bool {
	c.accounts.MigrateLegacy()

	last, ok := c.accounts.Last()
	if !ok {
		return false
	}

	token, ok := c.accounts.LoadToken(last)
	if !ok {
		return false
	}

	c.mu.Lock()
	c.activeID = last
	c.mu.Unlock()

	c.setState(StateConnecting, "")

	if err := c.conn.LogOn(token); err != nil {
		c.accounts.ClearToken(last)
		c.accounts.Remove(last)
		c.accounts.ClearLast()

		c.mu.Lock()
		c.activeID = ""
		c.mu.Unlock()

		c.setState(StateDisconnected, "")
		c.notifier.Publish(notify.SavedAccountsUpdated{Accounts: c.accounts.List()})

		return false
	}

	return true
}

// SwitchAccount activates a different saved account. The target is
// marked active and persisted as last BEFORE the current session is torn
// down, so a crash mid-switch leaves the process pointed at the intended
// next account. Returns false without touching the current session when
// the target has no saved token.
func (c *Controller) SwitchAccount(ctx context.Context, id string) bool {
	token, ok := c.accounts.LoadToken(id)
	if !ok {
		// Metadata without a token is useless; drop it.
		c.accounts.Remove(id)
		c.notifier.Publish(notify.SavedAccountsUpdated{Accounts: c.accounts.List()})
		c.notifier.Publish(notify.ErrorNotice{Message: "no saved token for this account"})

		return false
	}

	c.mu.Lock()
	c.activeID = id
	c.mu.Unlock()
	c.accounts.SetLast(id)

	c.markIntentional(reasonSwitch)
	defer c.clearIntent()

	c.logOffCurrent(ctx)

	c.setState(StateConnecting, "")

	if err := c.conn.LogOn(token); err != nil {
		c.notifier.Publish(notify.ErrorNotice{Message: err.Error()})
		c.setState(StateError, "failed to switch account")

		return false
	}

	return true
}

// RemoveAccount deletes a saved account. Removing the active account
// logs the session off first; removing any other account only touches
// disk.
func (c *Controller) RemoveAccount(ctx context.Context, id string) {
	c.mu.Lock()
	active := c.activeID == id
	if active {
		c.activeID = ""
	}
	c.mu.Unlock()

	if active {
		c.markIntentional(reasonLogout)
		c.logOffCurrent(ctx)
		c.clearIntent()
		c.accounts.ClearLast()
		c.setState(StateDisconnected, "")
	}

	c.accounts.ClearToken(id)
	c.accounts.Remove(id)
	c.notifier.Publish(notify.SavedAccountsUpdated{Accounts: c.accounts.List()})
}

// Accounts lists the saved accounts.
func (c *Controller) Accounts() []accountstore.Account {
	return c.accounts.List()
}
