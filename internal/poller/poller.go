// Package poller waits for a background refresh to reach a terminal state.
package poller

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mmcdole/crate/internal/domain"
)

var (
	// ErrPollTimeout means the attempt ceiling was reached while still loading.
	ErrPollTimeout = errors.New("timed out waiting for refresh")

	// ErrNotTracked means no refresh is known for the owner.
	ErrNotTracked = errors.New("no refresh in progress")
)

// ProgressSource reports an owner's refresh progress (library.Service).
type ProgressSource interface {
	CacheProgress(ownerID string) (domain.SyncProgress, bool)
}

// Config controls the polling schedule.
type Config struct {
	Interval      time.Duration // delay before the second poll
	MaxAttempts   int
	BackoffFactor float64
	MaxInterval   time.Duration
}

// DefaultConfig polls at 1s, 1.5s, 2.25s ... capped at 10s, for up to 60 polls.
func DefaultConfig() Config {
	return Config{
		Interval:      time.Second,
		MaxAttempts:   60,
		BackoffFactor: 1.5,
		MaxInterval:   10 * time.Second,
	}
}

// Poller polls a ProgressSource with deterministic backoff.
type Poller struct {
	source ProgressSource
	cfg    Config
	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
	notify func(domain.SyncProgress)
}

// Option configures a Poller.
type Option func(*Poller)

// WithSleep replaces the wait between polls.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(p *Poller) { p.sleep = sleep }
}

// WithObserver calls fn with every progress the poller sees, terminal
// included.
func WithObserver(fn func(domain.SyncProgress)) Option {
	return func(p *Poller) { p.notify = fn }
}

// New creates a poller. Zero config fields take DefaultConfig values.
func New(source ProgressSource, cfg Config, logger *slog.Logger, opts ...Option) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.BackoffFactor < 1 {
		cfg.BackoffFactor = def.BackoffFactor
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = def.MaxInterval
	}
	p := &Poller{source: source, cfg: cfg, logger: logger, sleep: sleepCtx}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Schedule returns the delays between consecutive polls.
func (p *Poller) Schedule() []time.Duration {
	delays := make([]time.Duration, 0, p.cfg.MaxAttempts-1)
	d := p.cfg.Interval
	for i := 1; i < p.cfg.MaxAttempts; i++ {
		delays = append(delays, d)
		d = time.Duration(float64(d) * p.cfg.BackoffFactor)
		if d > p.cfg.MaxInterval {
			d = p.cfg.MaxInterval
		}
	}
	return delays
}

// Wait polls until the owner's refresh completes or fails and returns the
// terminal progress. A failed refresh is returned without error; callers
// inspect Status and Reason.
func (p *Poller) Wait(ctx context.Context, ownerID string) (domain.SyncProgress, error) {
	delays := p.Schedule()
	var last domain.SyncProgress

	for attempt := 0; attempt < p.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := p.sleep(ctx, delays[attempt-1]); err != nil {
				return last, err
			}
		}

		prog, ok := p.source.CacheProgress(ownerID)
		if !ok {
			return last, ErrNotTracked
		}
		last = prog
		if p.notify != nil {
			p.notify(prog)
		}
		if prog.Status.Terminal() {
			p.logger.Debug("refresh finished", "owner", ownerID, "status", prog.Status, "attempts", attempt+1)
			return prog, nil
		}
	}

	p.logger.Info("gave up waiting for refresh", "owner", ownerID, "attempts", p.cfg.MaxAttempts,
		"page", last.CurrentPage, "totalPages", last.TotalPages)
	return last, ErrPollTimeout
}

// Await waits like Wait and then calls reconcile if the refresh completed,
// so the caller can reload its snapshot.
func (p *Poller) Await(ctx context.Context, ownerID string, reconcile func(domain.SyncProgress) error) (domain.SyncProgress, error) {
	prog, err := p.Wait(ctx, ownerID)
	if err != nil {
		return prog, err
	}
	if prog.Status == domain.SyncCompleted && reconcile != nil {
		if err := reconcile(prog); err != nil {
			return prog, err
		}
	}
	return prog, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
