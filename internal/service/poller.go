package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"activestats/internal/core/domain"
	"activestats/internal/core/ports"
)

// DefaultPollInterval is the delay between two status checks of one kind.
const DefaultPollInterval = 2 * time.Second

// RedirectLocation is where the UI is sent when the session is invalid.
const RedirectLocation = "/"

// Options tunes a StatusPoller. The zero value is usable.
type Options struct {
	PollInterval time.Duration
	// RetryOnError reschedules a check after a transport failure instead of
	// stalling the kind's loop.
	RetryOnError bool
	Clock        clockwork.Clock
	Logger       *slog.Logger
	// OnUnauthorized is called with the location the UI should navigate to
	// when the backend rejects the session.
	OnUnauthorized func(location string)
}

// DefaultOptions returns the options used by the CLI.
func DefaultOptions() Options {
	return Options{
		PollInterval: DefaultPollInterval,
		RetryOnError: true,
	}
}

type step int

const (
	pollAgain step = iota
	halt
)

type kindLoop struct {
	kind domain.JobKind
	wake chan struct{}
}

// StatusPoller owns the client-side view of every job kind and keeps it in
// sync with the backend, one self-rescheduling loop per kind.
type StatusPoller struct {
	api       ports.StatusAPI
	opts      Options
	clock     clockwork.Clock
	logger    *slog.Logger
	sessionID string

	mu        sync.RWMutex
	jobs      map[domain.JobKind]domain.JobStatus
	polling   map[domain.JobKind]bool
	// gen counts refreshes per kind so a status fetched before a refresh
	// never overwrites that refresh's outcome.
	gen       map[domain.JobKind]uint64
	paid      bool
	updatedAt time.Time
	subs      map[int]chan domain.Snapshot
	nextSub   int
	closed    bool

	loops   map[domain.JobKind]*kindLoop
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewStatusPoller creates a StatusPoller with every kind in the unknown state.
func NewStatusPoller(api ports.StatusAPI, opts Options) *StatusPoller {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	sessionID := uuid.New().String()
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	p := &StatusPoller{
		api:       api,
		opts:      opts,
		clock:     clock,
		logger:    logger.With("session", sessionID),
		sessionID: sessionID,
		jobs:      make(map[domain.JobKind]domain.JobStatus, len(domain.Kinds)),
		polling:   make(map[domain.JobKind]bool, len(domain.Kinds)),
		gen:       make(map[domain.JobKind]uint64, len(domain.Kinds)),
		subs:      make(map[int]chan domain.Snapshot),
		loops:     make(map[domain.JobKind]*kindLoop, len(domain.Kinds)),
	}
	for _, kind := range domain.Kinds {
		p.jobs[kind] = domain.InitialJobStatus()
		p.loops[kind] = &kindLoop{kind: kind, wake: make(chan struct{}, 1)}
	}
	p.updatedAt = clock.Now().UTC()
	return p
}

// SessionID identifies this poller instance in logs and recorded snapshots.
func (p *StatusPoller) SessionID() string {
	return p.sessionID
}

// Start launches one polling loop per kind. It returns immediately; call
// Close to stop the loops.
func (p *StatusPoller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started || p.closed {
		p.mu.Unlock()
		return
	}
	p.started = true
	ctx, p.cancel = context.WithCancel(ctx)
	for _, kind := range domain.Kinds {
		p.polling[kind] = true
	}
	p.publishLocked()
	p.mu.Unlock()

	p.logger.Info("starting status polling", "interval", p.opts.PollInterval)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.fetchPaid(ctx)
	}()

	for _, kind := range domain.Kinds {
		p.wg.Add(1)
		go p.run(ctx, p.loops[kind])
	}
}

// Close cancels pending checks, waits for the loops to exit and closes every
// subscription. It is safe to call more than once.
func (p *StatusPoller) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	cancel := p.cancel
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	p.wg.Wait()

	p.mu.Lock()
	for id, ch := range p.subs {
		close(ch)
		delete(p.subs, id)
	}
	p.mu.Unlock()
	p.logger.Info("status polling stopped")
}

// Refresh asks the backend to start the kind's job. An accepted request
// installs the in-progress placeholder and resumes the kind's loop; a
// rejected one marks the job too recent.
//
// The UI should only offer this while the kind's refresh control is enabled.
func (p *StatusPoller) Refresh(ctx context.Context, kind domain.JobKind) (domain.RefreshResult, error) {
	loop, ok := p.loops[kind]
	if !ok {
		return domain.RefreshResult{}, fmt.Errorf("unknown job kind %q", kind)
	}
	result, err := p.refresh(ctx, kind)
	if err != nil {
		return result, err
	}
	if result.Accepted {
		select {
		case loop.wake <- struct{}{}:
		default:
		}
	}
	return result, nil
}

// Snapshot returns a copy of the current state.
func (p *StatusPoller) Snapshot() domain.Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snapshotLocked()
}

// Subscribe returns a channel receiving the latest snapshot after every
// change, and a function to cancel the subscription. Slow readers only ever
// see the newest snapshot. The channel is closed by Close.
func (p *StatusPoller) Subscribe() (<-chan domain.Snapshot, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch := make(chan domain.Snapshot, 1)
	if p.closed {
		close(ch)
		return ch, func() {}
	}
	id := p.nextSub
	p.nextSub++
	p.subs[id] = ch
	ch <- p.snapshotLocked()

	return ch, func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if sub, ok := p.subs[id]; ok {
			close(sub)
			delete(p.subs, id)
		}
	}
}

func (p *StatusPoller) run(ctx context.Context, l *kindLoop) {
	defer p.wg.Done()
	logger := p.logger.With("kind", l.kind)

	for {
		p.setPolling(l.kind, true)
		next := p.checkStatus(ctx, l.kind)
		if ctx.Err() != nil {
			return
		}

		if next == pollAgain {
			timer := p.clock.NewTimer(p.opts.PollInterval)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.Chan():
			case <-l.wake:
				timer.Stop()
			}
			continue
		}

		p.setPolling(l.kind, false)
		logger.Debug("polling halted")
		select {
		case <-ctx.Done():
			return
		case <-l.wake:
			logger.Debug("polling resumed")
		}
	}
}

// checkStatus fetches the kind's status once, stores it and decides whether
// the loop should check again.
func (p *StatusPoller) checkStatus(ctx context.Context, kind domain.JobKind) step {
	logger := p.logger.With("kind", kind)

	gen := p.generation(kind)
	status, err := p.api.FetchStatus(ctx, kind)
	if err != nil {
		if errors.Is(err, ports.ErrUnauthorized) {
			p.unauthorized(kind, err)
			return halt
		}
		return p.failed(ctx, kind, "status check failed", err)
	}

	if !p.replaceIfCurrent(kind, gen, status) {
		// A refresh landed while this request was in flight; its wake-up
		// triggers the next check.
		logger.Debug("dropping status fetched before a refresh", "status", status.Status)
		return pollAgain
	}
	logger.Debug("status updated", "status", status.Status, "stop_polling", status.StopPolling, "message", status.Message)

	switch {
	case status.Status == domain.StatusNull && kind == domain.Summary:
		logger.Info("no summary data on record, requesting kickoff")
		result, err := p.refresh(ctx, kind)
		if errors.Is(err, ports.ErrUnauthorized) {
			return halt
		}
		if err != nil {
			return p.failed(ctx, kind, "kickoff failed", err)
		}
		if result.Accepted {
			return pollAgain
		}
		return halt
	case status.Status == domain.StatusNull:
		// Detailed jobs are only ever started by the user.
		return halt
	case status.StopPolling:
		logger.Info("job reached a final state", "status", status.Status)
		return halt
	default:
		return pollAgain
	}
}

func (p *StatusPoller) refresh(ctx context.Context, kind domain.JobKind) (domain.RefreshResult, error) {
	logger := p.logger.With("kind", kind)

	result, err := p.api.RequestRefresh(ctx, kind)
	if err != nil {
		if errors.Is(err, ports.ErrUnauthorized) {
			p.unauthorized(kind, err)
		}
		return result, err
	}

	if result.Accepted {
		logger.Info("refresh accepted", "message", result.Message)
		p.replaceAfterRefresh(kind, domain.RefreshingJobStatus())
	} else {
		logger.Info("refresh rejected", "message", result.Message)
		p.replaceAfterRefresh(kind, domain.TooRecentJobStatus(result.Message))
	}
	return result, nil
}

// failed handles a transport error. The stored status is left as it was.
func (p *StatusPoller) failed(ctx context.Context, kind domain.JobKind, msg string, err error) step {
	if ctx.Err() != nil {
		return halt
	}
	p.logger.Warn(msg, "kind", kind, "error", err, "retry", p.opts.RetryOnError)
	if p.opts.RetryOnError {
		return pollAgain
	}
	return halt
}

func (p *StatusPoller) unauthorized(kind domain.JobKind, err error) {
	p.logger.Warn("session invalid, redirecting", "kind", kind, "error", err, "location", RedirectLocation)
	if p.opts.OnUnauthorized != nil {
		p.opts.OnUnauthorized(RedirectLocation)
	}
}

func (p *StatusPoller) fetchPaid(ctx context.Context) {
	paid, err := p.api.FetchPaid(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, ports.ErrUnauthorized) {
			p.unauthorized("", err)
			return
		}
		p.logger.Warn("failed to fetch paid status", "error", err)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.paid == paid {
		return
	}
	p.paid = paid
	p.publishLocked()
}

func (p *StatusPoller) generation(kind domain.JobKind) uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.gen[kind]
}

// replaceIfCurrent swaps the kind's status wholesale unless a refresh has
// happened since gen was read. Statuses are never merged.
func (p *StatusPoller) replaceIfCurrent(kind domain.JobKind, gen uint64, status domain.JobStatus) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gen[kind] != gen {
		return false
	}
	p.jobs[kind] = status
	p.publishLocked()
	return true
}

func (p *StatusPoller) replaceAfterRefresh(kind domain.JobKind, status domain.JobStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gen[kind]++
	p.jobs[kind] = status
	p.publishLocked()
}

func (p *StatusPoller) setPolling(kind domain.JobKind, polling bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.polling[kind] == polling {
		return
	}
	p.polling[kind] = polling
	p.publishLocked()
}

func (p *StatusPoller) publishLocked() {
	p.updatedAt = p.clock.Now().UTC()
	snap := p.snapshotLocked()
	for _, ch := range p.subs {
		select {
		case ch <- snap:
			continue
		default:
		}
		// Drop the stale snapshot nobody has read yet.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

func (p *StatusPoller) snapshotLocked() domain.Snapshot {
	return domain.Snapshot{
		SessionID: p.sessionID,
		Summary:   domain.KindState{Job: p.jobs[domain.Summary], Polling: p.polling[domain.Summary]},
		Detailed:  domain.KindState{Job: p.jobs[domain.Detailed], Polling: p.polling[domain.Detailed]},
		Paid:      p.paid,
		UpdatedAt: p.updatedAt,
	}
}
