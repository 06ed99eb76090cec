package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"activestats/internal/core/domain"
	"activestats/internal/core/ports"
)

// LastAction prints the most recently recorded snapshot, or the one recorded
// for --session.
func LastAction(ctx context.Context, cmd *cli.Command) error {
	app, err := NewAppContext(cmd.String("env"))
	if err != nil {
		return err
	}

	storage, closeStorage, err := app.OpenStorage(ctx)
	if err != nil {
		return err
	}
	defer closeStorage()
	if storage == nil {
		return cli.Exit("snapshot recording is disabled (SNAPSHOT_STORE=none)", 2)
	}

	snap, err := lastSnapshot(ctx, storage, cmd.String("session"))
	if err != nil {
		return err
	}
	if snap == nil {
		fmt.Println("No snapshot recorded yet.")
		return nil
	}
	renderSnapshot(os.Stdout, "Last Snapshot", *snap)
	return nil
}

// lastSnapshot reads the latest snapshot, or the one of sessionID when set.
func lastSnapshot(ctx context.Context, storage ports.Storage, sessionID string) (*domain.Snapshot, error) {
	if sessionID == "" {
		snap, err := storage.Latest(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to read last snapshot: %w", err)
		}
		return snap, nil
	}
	snap, err := storage.Session(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot of session %s: %w", sessionID, err)
	}
	return snap, nil
}
