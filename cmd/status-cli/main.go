package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"activestats/cmd/status-cli/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:  "status-cli",
		Usage: "Watch and refresh Strava data download jobs",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "env",
				Usage: "path to an env file",
				Value: ".env",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "watch",
				Usage: "poll job status and print every change",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "follow",
						Usage: "keep running after every job settles",
					},
				},
				Action: commands.WatchAction,
			},
			{
				Name:   "status",
				Usage:  "fetch the current job status once",
				Action: commands.StatusAction,
			},
			{
				Name:  "refresh",
				Usage: "ask the backend to refresh one kind of data",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "kind",
						Usage:    "summary or detailed",
						Required: true,
					},
				},
				Action: commands.RefreshAction,
			},
			{
				Name:  "serve",
				Usage: "poll in the background and relay updates over HTTP and websockets",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "addr",
						Usage: "listen address (defaults to RELAY_ADDR)",
					},
				},
				Action: commands.ServeAction,
			},
			{
				Name:  "last",
				Usage: "print the last recorded snapshot",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "session",
						Usage: "print the snapshot recorded by this poller session instead",
					},
				},
				Action: commands.LastAction,
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
