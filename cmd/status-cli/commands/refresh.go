package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"activestats/internal/core/domain"
)

// RefreshAction asks the backend to start one job kind.
func RefreshAction(ctx context.Context, cmd *cli.Command) error {
	kind, err := domain.ParseJobKind(cmd.String("kind"))
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}

	app, err := NewAppContext(cmd.String("env"))
	if err != nil {
		return err
	}

	result, err := app.Client.RequestRefresh(ctx, kind)
	if err != nil {
		return checkSession(fmt.Errorf("failed to request %s refresh: %w", kind, err))
	}

	fmt.Println("\n=== Refresh ===")
	fmt.Printf("Kind:     %s\n", kind)
	fmt.Printf("Accepted: %t\n", result.Accepted)
	if result.Message != "" {
		fmt.Printf("Message:  %s\n", result.Message)
	}
	if !result.Accepted {
		return cli.Exit("refresh rejected", 3)
	}
	return nil
}
