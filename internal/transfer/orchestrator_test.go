package transfer

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caskmate/caskmate/internal/catalog"
	"github.com/caskmate/caskmate/internal/gc"
	"github.com/caskmate/caskmate/internal/gc/gctest"
	"github.com/caskmate/caskmate/internal/notify"
)

type recorder struct {
	ch chan notify.Event
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan notify.Event, 256)}
}

func (r *recorder) Publish(e notify.Event) {
	select {
	case r.ch <- e:
	default:
	}
}

// drain empties the recorder into a slice after the operation finished,
// so ordering assertions see the complete stream.
func (r *recorder) drain() []notify.Event {
	var out []notify.Event

	for {
		select {
		case e := <-r.ch:
			out = append(out, e)
		default:
			return out
		}
	}
}

type fixture struct {
	conn  *gctest.Conn
	orch  *Orchestrator
	notes *recorder
}

func newFixture(t *testing.T, stepTimeout time.Duration) *fixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	conn := gctest.NewConn()
	notes := newRecorder()

	orch := New(Config{
		Conn:          conn,
		Mux:           gc.NewMux(conn.Events(), logger),
		Catalog:       catalog.NewStore(&catalog.Table{}, logger),
		Notifier:      notes,
		Logger:        logger,
		StepTimeout:   stepTimeout,
		StepInterval:  time.Millisecond,
		RenameTimeout: 100 * time.Millisecond,
	})

	t.Cleanup(func() { conn.Close() })

	return &fixture{conn: conn, orch: orch, notes: notes}
}

func TestDepositConfirmedByItemRemoved(t *testing.T) {
	f := newFixture(t, 5*time.Second)

	f.conn.OnAddToCasket = func(_, itemID string) error {
		f.conn.Emit(gc.ItemRemoved{Item: gc.Item{ID: itemID}})
		return nil
	}

	err := f.orch.Execute(context.Background(), Deposit, "unit-1", []string{"a", "b", "c"})
	require.NoError(t, err)

	calls := f.conn.Calls()
	assert.Equal(t, []string{
		"AddToCasket(unit-1, a)",
		"AddToCasket(unit-1, b)",
		"AddToCasket(unit-1, c)",
	}, calls)
}

func TestRetrieveConfirmedByItemAcquired(t *testing.T) {
	f := newFixture(t, 5*time.Second)

	f.conn.OnRemoveFromCasket = func(_, itemID string) error {
		f.conn.Emit(gc.ItemAcquired{Item: gc.Item{ID: itemID}})
		return nil
	}

	err := f.orch.Execute(context.Background(), Retrieve, "unit-1", []string{"x", "y"})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"RemoveFromCasket(unit-1, x)",
		"RemoveFromCasket(unit-1, y)",
	}, f.conn.Calls())
}

func TestCustomizationNoticeConfirmsEitherDirection(t *testing.T) {
	f := newFixture(t, 5*time.Second)

	f.conn.OnAddToCasket = func(_, itemID string) error {
		f.conn.Emit(gc.CustomizationNotice{ItemIDs: []string{itemID}})
		return nil
	}

	err := f.orch.Execute(context.Background(), Deposit, "unit-1", []string{"a"})
	require.NoError(t, err)
}

func TestStepTimeoutCountsAsSuccess(t *testing.T) {
	// Nothing ever confirms; the short timeout must let the whole batch
	// through as a success.
	f := newFixture(t, 50*time.Millisecond)

	err := f.orch.Execute(context.Background(), Deposit, "unit-1", []string{"a", "b"})
	require.NoError(t, err)

	events := f.notes.drain()

	var complete *notify.OperationComplete
	for _, e := range events {
		if c, ok := e.(notify.OperationComplete); ok {
			complete = &c
		}
	}

	require.NotNil(t, complete)
	assert.True(t, complete.Success)
}

func TestProgressOrderingAndResync(t *testing.T) {
	f := newFixture(t, 5*time.Second)

	f.conn.OnAddToCasket = func(_, itemID string) error {
		f.conn.Emit(gc.ItemRemoved{Item: gc.Item{ID: itemID}})
		return nil
	}

	itemIDs := []string{"a", "b", "c"}
	require.NoError(t, f.orch.Execute(context.Background(), Deposit, "unit-1", itemIDs))

	events := f.notes.drain()

	var (
		progress []notify.OperationProgress
		complete []notify.OperationComplete
		resyncs  int
	)

	for _, e := range events {
		switch ev := e.(type) {
		case notify.OperationProgress:
			progress = append(progress, ev)
		case notify.OperationComplete:
			complete = append(complete, ev)
		case notify.InventoryUpdated:
			resyncs++
		}
	}

	require.Len(t, progress, 3)
	for i, p := range progress {
		assert.Equal(t, i+1, p.Current)
		assert.Equal(t, 3, p.Total)
		assert.Equal(t, itemIDs[i], p.ItemID)
		assert.Equal(t, progress[0].OperationID, p.OperationID)
	}

	require.Len(t, complete, 1)
	assert.True(t, complete[0].Success)
	assert.Equal(t, progress[0].OperationID, complete[0].OperationID)

	assert.Equal(t, 1, resyncs)
}

func TestCancelStopsAtStepBoundary(t *testing.T) {
	f := newFixture(t, 5*time.Second)

	f.conn.OnAddToCasket = func(_, itemID string) error {
		// Cancel mid-batch; the already-issued step still completes.
		f.orch.Cancel()
		f.conn.Emit(gc.ItemRemoved{Item: gc.Item{ID: itemID}})

		return nil
	}

	err := f.orch.Execute(context.Background(), Deposit, "unit-1", []string{"a", "b", "c"})
	require.ErrorIs(t, err, ErrCancelled)

	// Only the first item was dispatched.
	assert.Len(t, f.conn.Calls(), 1)

	events := f.notes.drain()

	var (
		progress int
		complete []notify.OperationComplete
		resyncs  int
	)

	for _, e := range events {
		switch ev := e.(type) {
		case notify.OperationProgress:
			progress++
		case notify.OperationComplete:
			complete = append(complete, ev)
		case notify.StorageUnitsUpdated:
			resyncs++
		}
	}

	assert.Equal(t, 1, progress)

	require.Len(t, complete, 1)
	assert.False(t, complete[0].Success)
	assert.Equal(t, cancelledMessage, complete[0].Error)

	// The resync runs even for a cancelled operation.
	assert.Equal(t, 1, resyncs)
}

func TestExecuteRejectsConcurrentOperations(t *testing.T) {
	f := newFixture(t, 500*time.Millisecond)

	started := make(chan struct{})
	f.conn.OnAddToCasket = func(_, _ string) error {
		close(started)
		return nil
	}

	done := make(chan error, 1)
	go func() {
		done <- f.orch.Execute(context.Background(), Deposit, "unit-1", []string{"a"})
	}()

	<-started

	err := f.orch.Execute(context.Background(), Deposit, "unit-1", []string{"b"})
	assert.ErrorIs(t, err, ErrBusy)

	require.NoError(t, <-done)
}

func TestExecuteUnknownDirection(t *testing.T) {
	f := newFixture(t, 50*time.Millisecond)

	err := f.orch.Execute(context.Background(), Direction("sideways"), "unit-1", []string{"a"})
	assert.ErrorContains(t, err, "unknown direction")
}

func TestExecuteDispatchFailureAborts(t *testing.T) {
	f := newFixture(t, 5*time.Second)

	f.conn.OnAddToCasket = func(_, _ string) error {
		return assert.AnError
	}

	err := f.orch.Execute(context.Background(), Deposit, "unit-1", []string{"a", "b"})
	require.Error(t, err)

	// The failure on the first item stops the batch.
	assert.Len(t, f.conn.Calls(), 1)
}

func TestConfirmsStep(t *testing.T) {
	assert.True(t, confirmsStep(Deposit, gc.ItemRemoved{}))
	assert.False(t, confirmsStep(Deposit, gc.ItemAcquired{}))
	assert.True(t, confirmsStep(Retrieve, gc.ItemAcquired{}))
	assert.False(t, confirmsStep(Retrieve, gc.ItemRemoved{}))
	assert.True(t, confirmsStep(Deposit, gc.CustomizationNotice{}))
	assert.True(t, confirmsStep(Retrieve, gc.CustomizationNotice{}))
	assert.False(t, confirmsStep(Deposit, gc.ItemChanged{}))
}

func TestRenameConfirmedByItemChanged(t *testing.T) {
	f := newFixture(t, 5*time.Second)

	f.conn.OnNameCasket = func(casketID, _ string) error {
		f.conn.Emit(gc.ItemChanged{Item: gc.Item{ID: casketID}})
		return nil
	}

	start := time.Now()
	require.NoError(t, f.orch.Rename(context.Background(), "unit-1", "Knives"))

	// Confirmation must short-circuit the timeout wait.
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	assert.Equal(t, []string{"NameCasket(unit-1, Knives)"}, f.conn.Calls())
}

func TestRenameTimeoutIsSuccess(t *testing.T) {
	f := newFixture(t, 5*time.Second)

	require.NoError(t, f.orch.Rename(context.Background(), "unit-1", "Knives"))
}

func TestInspect(t *testing.T) {
	f := newFixture(t, 5*time.Second)

	f.conn.OnCasketContents = func(casketID string) ([]gc.Item, error) {
		return []gc.Item{
			{ID: "1", DefIndex: 9, MarketHashName: "P2000 | Scorpion", CasketID: casketID},
		}, nil
	}

	items, err := f.orch.Inspect(context.Background(), "unit-1")
	require.NoError(t, err)

	require.Len(t, items, 1)
	assert.Equal(t, "P2000 | Scorpion", items[0].Name)
}

func TestInspectError(t *testing.T) {
	f := newFixture(t, 5*time.Second)

	f.conn.OnCasketContents = func(string) ([]gc.Item, error) {
		return nil, assert.AnError
	}

	_, err := f.orch.Inspect(context.Background(), "unit-1")
	assert.Error(t, err)
}
