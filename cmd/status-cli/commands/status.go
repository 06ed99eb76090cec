package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"activestats/internal/core/domain"
	"activestats/internal/core/ports"
	"activestats/internal/service"
)

// StatusAction fetches every status endpoint once and prints the result
// without starting any polling.
func StatusAction(ctx context.Context, cmd *cli.Command) error {
	app, err := NewAppContext(cmd.String("env"))
	if err != nil {
		return err
	}

	snap := domain.Snapshot{UpdatedAt: time.Now().UTC()}
	for _, kind := range domain.Kinds {
		status, err := app.Client.FetchStatus(ctx, kind)
		if err != nil {
			return checkSession(fmt.Errorf("failed to fetch %s status: %w", kind, err))
		}
		if kind == domain.Summary {
			snap.Summary.Job = status
		} else {
			snap.Detailed.Job = status
		}
	}

	paid, err := app.Client.FetchPaid(ctx)
	if err != nil {
		return checkSession(fmt.Errorf("failed to fetch paid status: %w", err))
	}
	snap.Paid = paid

	renderSnapshot(os.Stdout, "Data Status", snap)

	// Older backends only serve the single-job endpoint; its absence is not fatal.
	data, err := app.Client.FetchDataStatus(ctx)
	if err != nil {
		if errors.Is(err, ports.ErrUnauthorized) {
			return checkSession(err)
		}
		app.Logger.Debug("data_status unavailable", "error", err)
		return nil
	}
	fmt.Printf("\nDownloaded: %t\n", data.Downloaded)
	fmt.Printf("Message:    %s\n", data.Message)
	return nil
}

// checkSession turns an unauthorized error into the redirect exit.
func checkSession(err error) error {
	if errors.Is(err, ports.ErrUnauthorized) {
		return sessionInvalid(service.RedirectLocation)
	}
	return err
}
