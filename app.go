package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/caskmate/caskmate/internal/accountstore"
	"github.com/caskmate/caskmate/internal/catalog"
	"github.com/caskmate/caskmate/internal/gc"
	"github.com/caskmate/caskmate/internal/notify"
	"github.com/caskmate/caskmate/internal/securestore"
	"github.com/caskmate/caskmate/internal/session"
	"github.com/caskmate/caskmate/internal/transfer"
)

// errNotLoggedIn is returned by commands that need a restored session
// when no saved session exists.
var errNotLoggedIn = errors.New("no saved session (run 'caskmate login' first)")

// restoreTimeout bounds how long commands wait for a saved session to
// reach the connected state.
const restoreTimeout = 60 * time.Second

// snapshotTimeout bounds how long commands wait for the first inventory
// snapshot after connecting.
const snapshotTimeout = 30 * time.Second

// app wires the whole core together for one CLI invocation: connection,
// event mux, stores, session controller, and transfer orchestrator. The
// controller's event loop runs on its own goroutine for the lifetime of
// the app.
type app struct {
	logger     *slog.Logger
	conn       gc.Conn
	hub        *notify.Hub
	accounts   *accountstore.Store
	catalog    *catalog.Store
	controller *session.Controller
	transfers  *transfer.Orchestrator

	runCancel context.CancelFunc
	runDone   chan struct{}
}

// newApp builds the application from the resolved config and starts the
// session event loop.
func newApp(ctx context.Context, logger *slog.Logger) (*app, error) {
	cfg := resolvedCfg

	tab, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		// Resolution degrades to definition-index placeholders; transfers
		// still work.
		logger.Warn("catalog unavailable, items will not resolve",
			slog.String("path", cfg.Catalog.Path),
			slog.String("error", err.Error()),
		)

		tab = &catalog.Table{}
	} else {
		tab.LogSummary(logger)
	}

	catStore := catalog.NewStore(tab, logger)

	conn, err := session.Dial(ctx, cfg.Connector, cfg.Transfer.DialRetries, logger)
	if err != nil {
		return nil, err
	}

	mux := gc.NewMux(conn.Events(), logger)
	hub := notify.NewHub(logger)
	accounts := accountstore.New(cfg.DataDir, securestore.Machine(), logger)

	controller := session.New(session.Config{
		Conn:     conn,
		Mux:      mux,
		Accounts: accounts,
		Catalog:  catStore,
		Notifier: hub,
		Logger:   logger,
	})

	transfers := transfer.New(transfer.Config{
		Conn:          conn,
		Mux:           mux,
		Catalog:       catStore,
		Notifier:      hub,
		Logger:        logger,
		StepTimeout:   cfg.Transfer.StepTimeout.Duration,
		StepInterval:  cfg.Transfer.StepInterval.Duration,
		RenameTimeout: cfg.Transfer.RenameTimeout.Duration,
	})

	runCtx, runCancel := context.WithCancel(context.Background())
	runDone := make(chan struct{})

	go func() {
		defer close(runDone)

		_ = controller.Run(runCtx)
	}()

	return &app{
		logger:     logger,
		conn:       conn,
		hub:        hub,
		accounts:   accounts,
		catalog:    catStore,
		controller: controller,
		transfers:  transfers,
		runCancel:  runCancel,
		runDone:    runDone,
	}, nil
}

// Close tears the app down: stops the event loop and releases the
// connection.
func (a *app) Close() {
	a.conn.Close()
	a.runCancel()
	<-a.runDone
}

// restoreSession restores the saved session and blocks until the session
// reaches connected, fails, or the restore timeout elapses.
func (a *app) restoreSession(ctx context.Context) error {
	events, cancel := a.hub.Subscribe(128)
	defer cancel()

	if !a.controller.TrySavedSession() {
		return errNotLoggedIn
	}

	deadline := time.NewTimer(restoreTimeout)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-deadline.C:
			return fmt.Errorf("timed out waiting for session restore")

		case e := <-events:
			switch ev := e.(type) {
			case notify.AuthState:
				switch ev.State {
				case string(session.StateConnected):
					return nil
				case string(session.StateError):
					return fmt.Errorf("session restore failed: %s", ev.Error)
				}
			case notify.GuardRequired:
				return fmt.Errorf("saved session needs a new guard code, run 'caskmate login'")
			}
		}
	}
}

// waitForSnapshot blocks until the first inventory snapshot arrives
// after connecting and returns it along with the storage-unit list.
func (a *app) waitForSnapshot(ctx context.Context) (notify.InventoryUpdated, notify.StorageUnitsUpdated, error) {
	events, cancel := a.hub.Subscribe(128)
	defer cancel()

	// The initial push may have landed before this subscription existed.
	a.controller.RefreshSnapshots()

	deadline := time.NewTimer(snapshotTimeout)
	defer deadline.Stop()

	var (
		inv      notify.InventoryUpdated
		units    notify.StorageUnitsUpdated
		gotInv   bool
		gotUnits bool
	)

	for {
		select {
		case <-ctx.Done():
			return inv, units, ctx.Err()

		case <-deadline.C:
			return inv, units, fmt.Errorf("timed out waiting for inventory snapshot")

		case e := <-events:
			switch ev := e.(type) {
			case notify.InventoryUpdated:
				inv = ev
				gotInv = true
			case notify.StorageUnitsUpdated:
				units = ev
				gotUnits = true
			}

			if gotInv && gotUnits {
				return inv, units, nil
			}
		}
	}
}
