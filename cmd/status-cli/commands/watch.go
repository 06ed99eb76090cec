package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"activestats/internal/core/domain"
)

// WatchAction polls both job kinds and prints every change. It returns once
// no kind is polling, unless --follow is set.
func WatchAction(ctx context.Context, cmd *cli.Command) error {
	app, err := NewAppContext(cmd.String("env"))
	if err != nil {
		return err
	}

	storage, closeStorage, err := app.OpenStorage(ctx)
	if err != nil {
		return err
	}
	defer closeStorage()

	redirect := make(chan string, 1)
	poller := app.NewPoller(func(location string) {
		select {
		case redirect <- location:
		default:
		}
	})
	defer poller.Close()

	stopRecorder := startRecorder(ctx, poller, storage, app.Logger)
	defer stopRecorder()

	poller.Start(ctx)
	updates, unsubscribe := poller.Subscribe()
	defer unsubscribe()

	return watch(ctx, updates, redirect, cmd.Bool("follow"))
}

func watch(ctx context.Context, updates <-chan domain.Snapshot, redirect <-chan string, follow bool) error {
	var last *domain.Snapshot
	for {
		select {
		case <-ctx.Done():
			return nil
		case location := <-redirect:
			return sessionInvalid(location)
		case snap, ok := <-updates:
			if !ok {
				return nil
			}
			for _, kind := range domain.Kinds {
				if last == nil || last.State(kind) != snap.State(kind) {
					fmt.Println(formatChange(snap, kind))
				}
			}
			if last != nil && last.Paid != snap.Paid {
				fmt.Printf("paid: %t\n", snap.Paid)
			}
			last = &snap

			// A halted loop after a 401 reports the redirect first.
			select {
			case location := <-redirect:
				return sessionInvalid(location)
			default:
			}
			if !follow && !snap.Polling() {
				renderSnapshot(os.Stdout, "Data Status", snap)
				return nil
			}
		}
	}
}

func sessionInvalid(location string) error {
	return cli.Exit(fmt.Sprintf("session invalid, sign in again at %s", location), 1)
}
