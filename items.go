package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/caskmate/caskmate/internal/inventory"
	"github.com/caskmate/caskmate/internal/notify"
	"github.com/caskmate/caskmate/internal/transfer"
)

func newInventoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inventory",
		Short: "List the live inventory with resolved names and movability",
		Args:  cobra.NoArgs,
		RunE:  runInventory,
	}
}

func newUnitsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "units",
		Short: "List storage units",
		Args:  cobra.NoArgs,
		RunE:  runUnits,
	}
}

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <unit-id>",
		Short: "List the items inside a storage unit",
		Args:  cobra.ExactArgs(1),
		RunE:  runInspect,
	}
}

func newDepositCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deposit <unit-id> <item-id>...",
		Short: "Move items into a storage unit",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperation(cmd, transfer.Deposit, args[0], args[1:])
		},
	}
}

func newRetrieveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retrieve <unit-id> <item-id>...",
		Short: "Move items out of a storage unit",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperation(cmd, transfer.Retrieve, args[0], args[1:])
		},
	}
}

func newRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <unit-id> <name>",
		Short: "Rename a storage unit",
		Args:  cobra.ExactArgs(2),
		RunE:  runRename,
	}
}

// connectedApp builds the app and restores the saved session, the common
// preamble of every item command.
func connectedApp(cmd *cobra.Command) (*app, context.Context, error) {
	logger := buildLogger()
	ctx := shutdownContext(cmd.Context(), logger)

	a, err := newApp(ctx, logger)
	if err != nil {
		return nil, nil, err
	}

	if err := a.restoreSession(ctx); err != nil {
		a.Close()
		return nil, nil, err
	}

	return a, ctx, nil
}

func runInventory(cmd *cobra.Command, _ []string) error {
	a, ctx, err := connectedApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	inv, _, err := a.waitForSnapshot(ctx)
	if err != nil {
		return err
	}

	inventory.SortByName(inv.Items)

	return printItems(inv.Items)
}

func runUnits(cmd *cobra.Command, _ []string) error {
	a, ctx, err := connectedApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	_, units, err := a.waitForSnapshot(ctx)
	if err != nil {
		return err
	}

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(units.Units)
	}

	if len(units.Units) == 0 {
		fmt.Println("No storage units.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tITEMS")

	for _, u := range units.Units {
		fmt.Fprintf(w, "%s\t%s\t%d\n", u.ID, u.Name, u.ItemCount)
	}

	return w.Flush()
}

func runInspect(cmd *cobra.Command, args []string) error {
	a, ctx, err := connectedApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if _, _, err := a.waitForSnapshot(ctx); err != nil {
		return err
	}

	items, err := a.transfers.Inspect(ctx, args[0])
	if err != nil {
		return err
	}

	inventory.SortByName(items)

	return printItems(items)
}

// runOperation executes a deposit or retrieve, streaming progress to the
// terminal as the orchestrator reports it.
func runOperation(cmd *cobra.Command, dir transfer.Direction, unitID string, itemIDs []string) error {
	a, ctx, err := connectedApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if _, _, err := a.waitForSnapshot(ctx); err != nil {
		return err
	}

	events, cancelSub := a.hub.Subscribe(256)
	defer cancelSub()

	progressDone := make(chan struct{})

	go func() {
		defer close(progressDone)

		for e := range events {
			switch ev := e.(type) {
			case notify.OperationProgress:
				fmt.Printf("[%d/%d] %s item %s\n", ev.Current, ev.Total, dir, ev.ItemID)
			case notify.OperationComplete:
				if ev.Success {
					fmt.Println("Done.")
				} else {
					fmt.Printf("Stopped: %s\n", ev.Error)
				}

				return
			}
		}
	}()

	// Cancel the operation on the first interrupt instead of killing the
	// process mid-batch; a second interrupt still force-exits via the
	// signal context.
	opCtx, stopWatch := context.WithCancel(context.Background())
	defer stopWatch()

	go func() {
		select {
		case <-ctx.Done():
			a.transfers.Cancel()
		case <-opCtx.Done():
		}
	}()

	err = a.transfers.Execute(opCtx, dir, unitID, itemIDs)
	<-progressDone

	if errors.Is(err, transfer.ErrCancelled) {
		return nil
	}

	return err
}

func runRename(cmd *cobra.Command, args []string) error {
	a, ctx, err := connectedApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if _, _, err := a.waitForSnapshot(ctx); err != nil {
		return err
	}

	if err := a.transfers.Rename(ctx, args[0], args[1]); err != nil {
		return err
	}

	fmt.Printf("Renamed storage unit %s to %q\n", args[0], args[1])

	return nil
}

func printItems(items []inventory.ResolvedItem) error {
	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(items)
	}

	if len(items) == 0 {
		fmt.Println("No items.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCATEGORY\tMOVABLE")

	for _, it := range items {
		category := it.Category
		if category == "" {
			category = "-"
		}

		movable := "no"
		if it.Movable {
			movable = "yes"
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", it.ID, it.Name, category, movable)
	}

	return w.Flush()
}
