package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/caskmate/caskmate/internal/notify"
	"github.com/caskmate/caskmate/internal/session"
)

// loginTimeout bounds the whole interactive login exchange, guard code
// included.
const loginTimeout = 2 * time.Minute

func newLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login [account-name]",
		Short: "Log in with account credentials",
		Long: `Log in with a username and password. The password is read from the
terminal and never stored; only the resulting refresh token is saved,
encrypted with a machine-bound key. A second-factor guard code is
prompted for when the service requires one.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runLogin,
	}

	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Log out and remove the saved account",
		Args:  cobra.NoArgs,
		RunE:  runLogout,
	}
}

func runLogin(cmd *cobra.Command, args []string) error {
	logger := buildLogger()
	ctx := shutdownContext(cmd.Context(), logger)

	accountName := ""
	if len(args) == 1 {
		accountName = args[0]
	}

	reader := bufio.NewReader(os.Stdin)

	if accountName == "" {
		fmt.Fprint(os.Stderr, "Account name: ")

		line, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("reading account name: %w", err)
		}

		accountName = strings.TrimSpace(line)
	}

	if accountName == "" {
		return fmt.Errorf("account name is required")
	}

	password, err := readPassword(reader)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	events, cancel := a.hub.Subscribe(128)
	defer cancel()

	if err := a.controller.CredentialLogin(ctx, accountName, password); err != nil {
		return err
	}

	deadline := time.NewTimer(loginTimeout)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-deadline.C:
			return fmt.Errorf("login timed out")

		case e := <-events:
			switch ev := e.(type) {
			case notify.GuardRequired:
				fmt.Fprintf(os.Stderr, "Enter %s guard code: ", ev.Type)

				line, readErr := reader.ReadString('\n')
				if readErr != nil {
					return fmt.Errorf("reading guard code: %w", readErr)
				}

				if err := a.controller.SubmitGuardCode(ctx, strings.TrimSpace(line)); err != nil {
					return err
				}

			case notify.UserInfo:
				fmt.Printf("Logged in as %s (%s)\n", ev.Name, ev.ID)
				return nil

			case notify.AuthState:
				if ev.State == string(session.StateError) {
					return fmt.Errorf("login failed: %s", ev.Error)
				}
			}
		}
	}
}

// readPassword reads the password without echo when stdin is a terminal,
// falling back to a plain line read for piped input.
func readPassword(reader *bufio.Reader) (string, error) {
	fmt.Fprint(os.Stderr, "Password: ")

	if isatty.IsTerminal(os.Stdin.Fd()) {
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)

		if err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}

		return string(raw), nil
	}

	line, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}

	return strings.TrimRight(line, "\r\n"), nil
}

func runLogout(cmd *cobra.Command, _ []string) error {
	logger := buildLogger()
	ctx := shutdownContext(cmd.Context(), logger)

	a, err := newApp(ctx, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if !a.controller.TrySavedSession() {
		fmt.Println("No saved session.")
		return nil
	}

	a.controller.Logout(ctx)
	fmt.Println("Logged out and removed saved credentials.")

	return nil
}
