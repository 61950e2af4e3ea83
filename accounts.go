package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/caskmate/caskmate/internal/accountstore"
	"github.com/caskmate/caskmate/internal/notify"
	"github.com/caskmate/caskmate/internal/securestore"
	"github.com/caskmate/caskmate/internal/session"
)

func newAccountsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Manage saved accounts",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List saved accounts",
		Args:  cobra.NoArgs,
		RunE:  runAccountsList,
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "switch <account-id>",
		Short: "Switch the active session to another saved account",
		Args:  cobra.ExactArgs(1),
		RunE:  runAccountsSwitch,
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <account-id>",
		Short: "Remove a saved account and its token",
		Args:  cobra.ExactArgs(1),
		RunE:  runAccountsRemove,
	})

	return cmd
}

// localStore builds an account store without opening a protocol
// connection, for commands that only touch disk.
func localStore() *accountstore.Store {
	return accountstore.New(resolvedCfg.DataDir, securestore.Machine(), buildLogger())
}

func runAccountsList(_ *cobra.Command, _ []string) error {
	store := localStore()
	store.MigrateLegacy()

	accounts := store.List()
	last, _ := store.Last()

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(accounts)
	}

	if len(accounts) == 0 {
		fmt.Println("No saved accounts.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tADDED\tACTIVE")

	for _, a := range accounts {
		active := ""
		if a.ID == last {
			active = "*"
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", a.ID, a.PersonaName, a.AddedAt.Format("2006-01-02"), active)
	}

	return w.Flush()
}

func runAccountsSwitch(cmd *cobra.Command, args []string) error {
	logger := buildLogger()
	ctx := shutdownContext(cmd.Context(), logger)

	a, err := newApp(ctx, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	events, cancel := a.hub.Subscribe(128)
	defer cancel()

	if !a.controller.SwitchAccount(ctx, args[0]) {
		return fmt.Errorf("switching to account %s failed", args[0])
	}

	if err := awaitConnected(ctx, events); err != nil {
		return err
	}

	fmt.Printf("Switched to account %s\n", args[0])

	return nil
}

func runAccountsRemove(_ *cobra.Command, args []string) error {
	store := localStore()
	id := args[0]

	store.ClearToken(id)
	store.Remove(id)

	if last, ok := store.Last(); ok && last == id {
		store.ClearLast()
	}

	fmt.Printf("Removed account %s\n", id)

	return nil
}

// awaitConnected drains notifications until the session reaches the
// connected state or fails. The subscription must predate the operation
// so fast transitions are not missed.
func awaitConnected(ctx context.Context, events <-chan notify.Event) error {
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("interrupted while waiting for connection")

		case e := <-events:
			if st, ok := e.(notify.AuthState); ok {
				switch st.State {
				case string(session.StateConnected):
					return nil
				case string(session.StateError):
					return fmt.Errorf("connection failed: %s", st.Error)
				}
			}
		}
	}
}
