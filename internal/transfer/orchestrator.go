// Package transfer executes deposit and retrieve operations against
// storage units. The service confirms each move only through asynchronous
// item events, so every step is an explicit race between the confirming
// event, a generic customization notice, and a timeout — and a timeout
// counts as success, because the protocol offers no way to tell a lost
// confirmation from a slow one.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/caskmate/caskmate/internal/catalog"
	"github.com/caskmate/caskmate/internal/gc"
	"github.com/caskmate/caskmate/internal/inventory"
	"github.com/caskmate/caskmate/internal/notify"
)

// Direction selects which way items move.
type Direction string

const (
	Deposit  Direction = "deposit"
	Retrieve Direction = "retrieve"
)

const (
	defaultStepTimeout   = 5 * time.Second
	defaultStepInterval  = 500 * time.Millisecond
	defaultRenameTimeout = 2 * time.Second
)

// ErrBusy is returned when an operation is started while another is
// still in flight. Only one operation runs per process.
var ErrBusy = errors.New("transfer: another operation is in flight")

// ErrCancelled is returned when the cancellation flag stops an operation
// between steps.
var ErrCancelled = errors.New("transfer: operation cancelled")

// cancelledMessage is the reason string carried by the completion
// notification on cancellation.
const cancelledMessage = "operation cancelled"

// Config carries the orchestrator's collaborators and timing.
type Config struct {
	Conn     gc.Conn
	Mux      *gc.Mux
	Catalog  *catalog.Store
	Notifier notify.Publisher
	Logger   *slog.Logger

	// StepTimeout bounds the wait for a per-item confirming event.
	StepTimeout time.Duration

	// StepInterval is the pause between consecutive items, applied
	// between steps only — never before the first or after the last.
	StepInterval time.Duration

	// RenameTimeout bounds the wait for a rename confirmation.
	RenameTimeout time.Duration
}

// Orchestrator runs storage-unit operations strictly one item at a time.
type Orchestrator struct {
	conn          gc.Conn
	mux           *gc.Mux
	catalog       *catalog.Store
	notifier      notify.Publisher
	logger        *slog.Logger
	stepTimeout   time.Duration
	renameTimeout time.Duration
	limiter       *rate.Limiter

	running   atomic.Bool
	cancelled atomic.Bool
}

// New returns an orchestrator with defaults applied for any zero timing
// field.
func New(cfg Config) *Orchestrator {
	stepTimeout := cfg.StepTimeout
	if stepTimeout <= 0 {
		stepTimeout = defaultStepTimeout
	}

	stepInterval := cfg.StepInterval
	if stepInterval <= 0 {
		stepInterval = defaultStepInterval
	}

	renameTimeout := cfg.RenameTimeout
	if renameTimeout <= 0 {
		renameTimeout = defaultRenameTimeout
	}

	return &Orchestrator{
		conn:          cfg.Conn,
		mux:           cfg.Mux,
		catalog:       cfg.Catalog,
		notifier:      cfg.Notifier,
		logger:        cfg.Logger,
		stepTimeout:   stepTimeout,
		renameTimeout: renameTimeout,
		// Burst 1 gives the inter-item delay for free: the first Wait
		// passes immediately, every later one spaces out by the interval.
		limiter: rate.NewLimiter(rate.Every(stepInterval), 1),
	}
}

// Cancel requests that the running operation stop at the next step
// boundary. A step already issued to the protocol always completes or
// times out first.
func (o *Orchestrator) Cancel() {
	o.cancelled.Store(true)
}

// Execute moves the given items into (deposit) or out of (retrieve) the
// storage unit, strictly in the caller's order. It emits one progress
// notification per dispatched item and exactly one completion
// notification, and always finishes with a fresh inventory resync no
// matter how the operation ends.
func (o *Orchestrator) Execute(ctx context.Context, dir Direction, storageUnitID string, itemIDs []string) error {
	if !o.running.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer o.running.Store(false)

	o.cancelled.Store(false)

	opID := uuid.NewString()
	o.logger.Info("storage operation started",
		slog.String("operation", opID),
		slog.String("direction", string(dir)),
		slog.String("unit", storageUnitID),
		slog.Int("items", len(itemIDs)),
	)

	// State may have partially changed by the time the operation ends in
	// any way, so observers always get a final snapshot.
	defer o.resync()

	for i, itemID := range itemIDs {
		if err := o.limiter.Wait(ctx); err != nil {
			o.complete(opID, false, err.Error())
			return fmt.Errorf("transfer: waiting between steps: %w", err)
		}

		if o.cancelled.Load() {
			o.logger.Info("storage operation cancelled",
				slog.String("operation", opID),
				slog.Int("completed", i),
			)
			o.complete(opID, false, cancelledMessage)

			return ErrCancelled
		}

		o.notifier.Publish(notify.OperationProgress{
			OperationID: opID,
			Current:     i + 1,
			Total:       len(itemIDs),
			ItemID:      itemID,
		})

		if err := o.step(ctx, dir, storageUnitID, itemID); err != nil {
			o.logger.Warn("storage operation failed",
				slog.String("operation", opID),
				slog.String("item", itemID),
				slog.String("error", err.Error()),
			)
			o.complete(opID, false, err.Error())

			return err
		}
	}

	o.complete(opID, true, "")

	return nil
}

// step issues one move and waits for the first of: the confirming item
// event, a customization notice, or the step timeout. The timeout is
// success — an absent confirmation is indistinguishable from a slow one
// and must not abort the batch.
func (o *Orchestrator) step(ctx context.Context, dir Direction, storageUnitID, itemID string) error {
	// Subscribe before issuing so the confirmation cannot slip past.
	events, cancel := o.mux.Subscribe(32)
	defer cancel()

	var err error
	switch dir {
	case Deposit:
		err = o.conn.AddToCasket(storageUnitID, itemID)
	case Retrieve:
		err = o.conn.RemoveFromCasket(storageUnitID, itemID)
	default:
		return fmt.Errorf("transfer: unknown direction %q", dir)
	}

	if err != nil {
		return fmt.Errorf("transfer: issuing %s for item %s: %w", dir, itemID, err)
	}

	timer := time.NewTimer(o.stepTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("transfer: %s interrupted: %w", dir, ctx.Err())

		case <-timer.C:
			return nil

		case e, ok := <-events:
			if !ok {
				return nil
			}

			if confirmsStep(dir, e) {
				return nil
			}
		}
	}
}

// confirmsStep reports whether e resolves a pending step: deposits are
// confirmed by the item leaving the inventory, retrieves by it arriving,
// and either by the generic customization notice some responses use
// instead.
func confirmsStep(dir Direction, e gc.Event) bool {
	switch e.(type) {
	case gc.CustomizationNotice:
		return true
	case gc.ItemRemoved:
		return dir == Deposit
	case gc.ItemAcquired:
		return dir == Retrieve
	default:
		return false
	}
}

func (o *Orchestrator) complete(opID string, success bool, errMsg string) {
	o.notifier.Publish(notify.OperationComplete{
		OperationID: opID,
		Success:     success,
		Error:       errMsg,
	})
}

// resync publishes fresh inventory and storage-unit snapshots.
func (o *Orchestrator) resync() {
	items := o.conn.Inventory()
	tab := o.catalog.Current()

	o.notifier.Publish(notify.InventoryUpdated{Items: inventory.Snapshot(items, tab)})
	o.notifier.Publish(notify.StorageUnitsUpdated{Units: inventory.Units(items)})
}

// Rename renames a storage unit and waits for at most one confirming
// item-changed event or a short timeout. Rename sits outside the
// progress and cancellation protocol.
func (o *Orchestrator) Rename(ctx context.Context, storageUnitID, name string) error {
	events, cancel := o.mux.Subscribe(16)
	defer cancel()

	if err := o.conn.NameCasket(storageUnitID, name); err != nil {
		return fmt.Errorf("transfer: renaming storage unit %s: %w", storageUnitID, err)
	}

	timer := time.NewTimer(o.renameTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("transfer: rename interrupted: %w", ctx.Err())

		case <-timer.C:
			return nil

		case e, ok := <-events:
			if !ok {
				return nil
			}

			if _, changed := e.(gc.ItemChanged); changed {
				return nil
			}
		}
	}
}

// Inspect queries the items stored inside a storage unit and returns
// their resolved views.
func (o *Orchestrator) Inspect(ctx context.Context, storageUnitID string) ([]inventory.ResolvedItem, error) {
	items, err := o.conn.CasketContents(ctx, storageUnitID)
	if err != nil {
		return nil, fmt.Errorf("transfer: inspecting storage unit %s: %w", storageUnitID, err)
	}

	tab := o.catalog.Current()

	out := make([]inventory.ResolvedItem, 0, len(items))
	for _, it := range items {
		out = append(out, inventory.View(it, tab))
	}

	return out, nil
}
