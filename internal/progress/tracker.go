// Package progress is the process-wide registry of background refreshes.
//
// Each owner has at most one entry. An entry moves loading → completed or
// loading → failed and stays readable in its terminal state until a new
// Start replaces it or Sweep retires it.
package progress

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mmcdole/crate/internal/domain"
)

const (
	defaultRetention = 30 * time.Second
	defaultIdleTTL   = 10 * time.Minute
)

type entry struct {
	progress domain.SyncProgress
	observed bool // a terminal state has been read at least once
}

// Tracker records the status of in-flight refreshes keyed by owner.
type Tracker struct {
	mu      sync.Mutex
	entries map[string]*entry

	retention time.Duration // terminal + observed entries kept this long
	idleTTL   time.Duration // terminal entries kept at most this long
	now       func() time.Time
	logger    *slog.Logger
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithRetention sets how long an observed terminal entry stays readable.
func WithRetention(d time.Duration) Option {
	return func(t *Tracker) { t.retention = d }
}

// WithIdleTTL sets how long an unobserved terminal entry stays readable.
func WithIdleTTL(d time.Duration) Option {
	return func(t *Tracker) { t.idleTTL = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// NewTracker creates an empty registry.
func NewTracker(logger *slog.Logger, opts ...Option) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Tracker{
		entries:   make(map[string]*entry),
		retention: defaultRetention,
		idleTTL:   defaultIdleTTL,
		now:       time.Now,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start registers a refresh for owner. If one is already loading it is
// returned unchanged with started=false.
func (t *Tracker) Start(ownerID string, totalPages int) (domain.SyncProgress, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if e, ok := t.entries[ownerID]; ok && e.progress.Status == domain.SyncLoading {
		return e.progress, false
	}

	now := t.now()
	e := &entry{progress: domain.SyncProgress{
		OwnerID:    ownerID,
		Status:     domain.SyncLoading,
		TotalPages: totalPages,
		StartedAt:  now,
		UpdatedAt:  now,
	}}
	t.entries[ownerID] = e
	t.logger.Debug("sync started", "owner", ownerID, "totalPages", totalPages)
	return e.progress, true
}

// Advance records that page of totalPages has finished. Pages at or below
// the recorded page are ignored, as are calls outside the loading state.
// A totalPages of 0 keeps the recorded total.
func (t *Tracker) Advance(ownerID string, page, totalPages int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[ownerID]
	if !ok || e.progress.Status != domain.SyncLoading {
		return false
	}
	if page <= e.progress.CurrentPage {
		t.logger.Debug("ignoring stale page", "owner", ownerID, "page", page, "current", e.progress.CurrentPage)
		return false
	}

	e.progress.CurrentPage = page
	if totalPages > 0 {
		e.progress.TotalPages = totalPages
	}
	e.progress.UpdatedAt = t.now()
	return true
}

// Complete marks the owner's refresh as finished.
func (t *Tracker) Complete(ownerID string) bool {
	return t.finish(ownerID, domain.SyncCompleted, "")
}

// Fail marks the owner's refresh as failed with a reason for display.
func (t *Tracker) Fail(ownerID, reason string) bool {
	return t.finish(ownerID, domain.SyncFailed, reason)
}

func (t *Tracker) finish(ownerID string, status domain.SyncStatus, reason string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[ownerID]
	if !ok || e.progress.Status != domain.SyncLoading {
		return false
	}
	e.progress.Status = status
	e.progress.Reason = reason
	e.progress.UpdatedAt = t.now()
	t.logger.Debug("sync finished", "owner", ownerID, "status", status, "reason", reason)
	return true
}

// Get returns the owner's progress. Reading a terminal entry marks it as
// observed, which makes it eligible for Sweep.
func (t *Tracker) Get(ownerID string) (domain.SyncProgress, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[ownerID]
	if !ok {
		return domain.SyncProgress{}, false
	}
	if e.progress.Status.Terminal() && !e.observed {
		e.observed = true
		// Retention counts from the first observation.
		e.progress.UpdatedAt = t.now()
	}
	return e.progress, true
}

// Loading reports whether a refresh is in flight for owner without
// marking anything as observed.
func (t *Tracker) Loading(ownerID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[ownerID]
	return ok && e.progress.Status == domain.SyncLoading
}

// Forget drops the owner's entry regardless of state (logout).
func (t *Tracker) Forget(ownerID string) {
	t.mu.Lock()
	delete(t.entries, ownerID)
	t.mu.Unlock()
}

// Sweep removes terminal entries that were observed and are older than the
// retention period, and any terminal entry idle past the idle TTL.
// Loading entries are never removed.
func (t *Tracker) Sweep() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	removed := 0
	for owner, e := range t.entries {
		if !e.progress.Status.Terminal() {
			continue
		}
		age := now.Sub(e.progress.UpdatedAt)
		if (e.observed && age >= t.retention) || age >= t.idleTTL {
			delete(t.entries, owner)
			removed++
		}
	}
	if removed > 0 {
		t.logger.Debug("swept sync progress", "removed", removed)
	}
	return removed
}

// Len returns the number of tracked owners.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Run sweeps every interval until ctx is done. A non-positive interval
// sweeps once a minute.
func (t *Tracker) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Sweep()
		}
	}
}
