package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/caskmate/caskmate/internal/notify"
)

const (
	serveShutdownTimeout = 5 * time.Second
	writeTimeout         = 10 * time.Second
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the long-lived session and stream notifications over a local websocket",
		Long: `Hold the session open and expose notifications on ws://<listen>/events.
Each frame is a {"type", "data"} envelope. Clients may send
{"type": "cancel"} to stop a running storage operation at the next
step boundary.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
}

func newCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel",
		Short: "Cancel the storage operation running in a serve process",
		Args:  cobra.NoArgs,
		RunE:  runCancel,
	}
}

// inbound is the only client-to-server frame shape serve accepts.
type inbound struct {
	Type string `json:"type"`
}

func runServe(cmd *cobra.Command, _ []string) error {
	logger := buildLogger()
	ctx := shutdownContext(cmd.Context(), logger)

	a, err := newApp(ctx, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	// Restoring is best effort here: serve stays up without a session so
	// a client can drive the login flow later through the CLI.
	if a.controller.TrySavedSession() {
		logger.Info("restoring saved session")
	} else {
		logger.Info("no saved session, waiting for login")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		serveEvents(ctx, a, logger, w, r)
	})

	srv := &http.Server{
		Addr:    resolvedCfg.Serve.Listen,
		Handler: mux,
	}

	g, gctx := errgroup.WithContext(ctx)

	if resolvedCfg.Catalog.Watch {
		g.Go(func() error {
			err := a.catalog.Watch(gctx, resolvedCfg.Catalog.Path)
			if errors.Is(err, context.Canceled) {
				return nil
			}

			return err
		})
	}

	g.Go(func() error {
		logger.Info("listening", slog.String("addr", srv.Addr))

		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), serveShutdownTimeout)
		defer cancel()

		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}

// serveEvents handles one websocket client: notifications flow out, and
// the only inbound frame honored is a cancel request.
func serveEvents(ctx context.Context, a *app, logger *slog.Logger, w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		logger.Warn("websocket accept failed", slog.String("error", err.Error()))
		return
	}
	defer conn.CloseNow()

	logger.Info("client connected", slog.String("remote", r.RemoteAddr))

	events, cancelSub := a.hub.Subscribe(256)
	defer cancelSub()

	// New clients should not have to wait for the next change to see the
	// current state.
	a.controller.RefreshSnapshots()

	connCtx, cancelConn := context.WithCancel(ctx)
	defer cancelConn()

	// Read loop. Exits when the client goes away, which tears down the
	// write loop through connCtx.
	go func() {
		defer cancelConn()

		for {
			_, data, err := conn.Read(connCtx)
			if err != nil {
				return
			}

			var msg inbound
			if err := json.Unmarshal(data, &msg); err != nil {
				logger.Warn("discarding malformed client frame", slog.String("error", err.Error()))
				continue
			}

			if msg.Type == "cancel" {
				logger.Info("cancel requested by client")
				a.transfers.Cancel()
			}
		}
	}()

	for {
		select {
		case <-connCtx.Done():
			conn.Close(websocket.StatusGoingAway, "shutting down")
			return

		case e, ok := <-events:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "shutting down")
				return
			}

			payload, err := notify.Marshal(e)
			if err != nil {
				logger.Warn("dropping unencodable event", slog.String("error", err.Error()))
				continue
			}

			writeCtx, cancel := context.WithTimeout(connCtx, writeTimeout)
			err = conn.Write(writeCtx, websocket.MessageText, payload)
			cancel()

			if err != nil {
				logger.Info("client disconnected", slog.String("remote", r.RemoteAddr))
				return
			}
		}
	}
}

func runCancel(cmd *cobra.Command, _ []string) error {
	logger := buildLogger()
	ctx := shutdownContext(cmd.Context(), logger)

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	url := fmt.Sprintf("ws://%s/events", resolvedCfg.Serve.Listen)

	conn, _, err := websocket.Dial(dialCtx, url, nil)
	if err != nil {
		return fmt.Errorf("connecting to serve process at %s: %w", resolvedCfg.Serve.Listen, err)
	}
	defer conn.CloseNow()

	payload, err := json.Marshal(inbound{Type: "cancel"})
	if err != nil {
		return fmt.Errorf("encoding cancel request: %w", err)
	}

	if err := conn.Write(dialCtx, websocket.MessageText, payload); err != nil {
		return fmt.Errorf("sending cancel request: %w", err)
	}

	conn.Close(websocket.StatusNormalClosure, "")
	fmt.Println("Cancel requested.")

	return nil
}
