package ports

import (
	"context"
	"errors"

	"activestats/internal/core/domain"
)

// ErrUnauthorized means the session is no longer valid and the user has to
// go back through the login page.
var ErrUnauthorized = errors.New("session invalid")

// StatusAPI defines the contract for the backend's job endpoints.
type StatusAPI interface {
	// FetchStatus returns the current server-side status of the kind's job.
	FetchStatus(ctx context.Context, kind domain.JobKind) (domain.JobStatus, error)

	// RequestRefresh asks the backend to start (or restart) the kind's job.
	RequestRefresh(ctx context.Context, kind domain.JobKind) (domain.RefreshResult, error)

	// FetchPaid reports whether the user may use detailed data.
	FetchPaid(ctx context.Context) (bool, error)
}

// Storage defines the contract for persisting poller snapshots.
type Storage interface {
	// Save records the snapshot as both the session's and the latest one.
	Save(ctx context.Context, snap domain.Snapshot) error

	// Latest returns the most recently saved snapshot, or nil if none exists.
	Latest(ctx context.Context) (*domain.Snapshot, error)

	// Session returns the snapshot saved for sessionID, or nil if none exists.
	Session(ctx context.Context, sessionID string) (*domain.Snapshot, error)
}
