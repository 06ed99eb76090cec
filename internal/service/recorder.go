package service

import (
	"context"
	"log/slog"

	"activestats/internal/core/ports"
)

// Record saves every snapshot the poller publishes until ctx is done or the
// poller is closed. Storage failures are logged and never affect polling.
func Record(ctx context.Context, p *StatusPoller, storage ports.Storage, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	updates, cancel := p.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			if err := storage.Save(ctx, snap); err != nil {
				logger.Warn("failed to record snapshot", "session", snap.SessionID, "error", err)
			}
		}
	}
}
