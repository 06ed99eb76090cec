package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/urfave/cli/v3"

	"activestats/internal/adapters/relay"
)

const shutdownTimeout = 5 * time.Second

// ServeAction runs the poller and exposes it over HTTP and websockets until
// the process is interrupted.
func ServeAction(ctx context.Context, cmd *cli.Command) error {
	app, err := NewAppContext(cmd.String("env"))
	if err != nil {
		return err
	}
	addr := cmd.String("addr")
	if addr == "" {
		addr = app.Config.RelayAddr
	}

	storage, closeStorage, err := app.OpenStorage(ctx)
	if err != nil {
		return err
	}
	defer closeStorage()

	var srv *relay.Server
	poller := app.NewPoller(func(location string) {
		srv.Redirect(location)
	})
	srv = relay.NewServer(poller, app.Logger)
	defer poller.Close()

	stopRecorder := startRecorder(ctx, poller, storage, app.Logger)
	defer stopRecorder()

	relayCtx, stopRelay := context.WithCancel(ctx)
	defer stopRelay()
	go srv.Run(relayCtx)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	app.Logger.Info("relay listening", "addr", addr, "backend", app.Config.APIBaseURL)

	poller.Start(ctx)

	select {
	case <-ctx.Done():
		app.Logger.Info("shutting down relay")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("relay server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down relay: %w", err)
	}
	return nil
}
