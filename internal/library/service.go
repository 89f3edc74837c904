package library

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/mmcdole/crate/internal/domain"
	"github.com/mmcdole/crate/internal/progress"
)

// Config controls cache freshness and paging.
type Config struct {
	FullTTL               time.Duration // age after which a full sync is expired
	ItemTTL               time.Duration // age after which a single item is stale
	PageSize              int
	CompletenessThreshold int // below this many items a refreshing cache is incomplete
}

// Service orchestrates the remote fetcher, cache store and progress tracker.
// Background refreshes run on the service's own context and outlive the
// request that started them.
type Service struct {
	remote  domain.RemoteFetcher
	store   domain.Store
	tracker *progress.Tracker
	cfg     Config
	logger  *slog.Logger
	now     func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
	locks  map[string]*sync.Mutex // per-owner write locks
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a new sync service.
func NewService(
	remote domain.RemoteFetcher,
	store domain.Store,
	tracker *progress.Tracker,
	cfg Config,
	logger *slog.Logger,
	opts ...Option,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		remote:  remote,
		store:   store,
		tracker: tracker,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
		ctx:     ctx,
		cancel:  cancel,
		locks:   make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoadCollection returns the cached collection immediately and starts a
// background full refresh when the cache is not valid or forceReload is set.
// A refresh already in flight for the owner is reused.
func (s *Service) LoadCollection(ctx context.Context, ownerID string, forceReload bool) (domain.LoadResult, error) {
	if ownerID == "" {
		return domain.LoadResult{}, domain.ErrNoOwner
	}
	if err := ctx.Err(); err != nil {
		return domain.LoadResult{}, err
	}

	snap, err := s.store.Get(ownerID)
	if err != nil {
		s.logger.Error("failed to read cache", "owner", ownerID, "error", err)
		return domain.LoadResult{
			OwnerID: ownerID,
			Source:  domain.SourceCache,
			Message: "Could not read the local cache.",
		}, err
	}
	snap = s.withStatus(snap)

	res := domain.LoadResult{
		OwnerID:  ownerID,
		Items:    snap.Items,
		Metadata: snap.Metadata,
		Source:   domain.SourceCache,
	}

	status := snap.Metadata.Status
	if !forceReload && status == domain.CacheValid {
		s.logger.Debug("cache fresh", "owner", ownerID, "count", snap.Metadata.ItemCount)
		return res, nil
	}

	started := s.startRefresh(ownerID)
	res.Refreshing = started || s.tracker.Loading(ownerID)
	res.Incomplete = res.Refreshing &&
		(snap.Metadata.ItemCount == 0 || snap.Metadata.ItemCount < s.cfg.CompletenessThreshold)

	switch {
	case !res.Refreshing:
		res.Message = "Could not start a refresh."
	case !started:
		res.Message = "A refresh is already running."
	case forceReload:
		res.Message = "Reloading your collection."
	case status == domain.CacheUnknown:
		res.Message = "Loading your collection for the first time."
	case status == domain.CachePartiallyExpired:
		res.Message = "Some items are out of date. Refreshing in the background."
	default:
		res.Message = "Your collection is out of date. Refreshing in the background."
	}

	s.logger.Debug("cache served", "owner", ownerID, "status", status,
		"count", snap.Metadata.ItemCount, "refreshStarted", started, "force", forceReload)
	return res, nil
}

// ForceReload refreshes the owner's collection regardless of cache status.
func (s *Service) ForceReload(ctx context.Context, ownerID string) (domain.LoadResult, error) {
	return s.LoadCollection(ctx, ownerID, true)
}

// CheckForNewItems asks the remote how many items were added since the
// newest cached one. It never writes to the cache and reports zero while a
// full refresh is running.
func (s *Service) CheckForNewItems(ctx context.Context, ownerID string) (domain.CheckResult, error) {
	if ownerID == "" {
		return domain.CheckResult{}, domain.ErrNoOwner
	}
	if s.tracker.Loading(ownerID) {
		return domain.CheckResult{Skipped: true, Message: "A refresh is running."}, nil
	}

	snap, err := s.store.Get(ownerID)
	if err != nil {
		s.logger.Error("failed to read cache", "owner", ownerID, "error", err)
		return domain.CheckResult{Message: "Could not read the local cache."}, err
	}

	res := domain.CheckResult{LatestCacheDate: domain.LatestAddedAt(snap.Items)}
	if len(snap.Items) == 0 {
		res.Message = "Your collection has not been loaded yet."
		return res, nil
	}

	items, err := s.remote.FetchItemsSince(ctx, ownerID, res.LatestCacheDate)
	if err != nil {
		ferr := &domain.RemoteFetchError{Op: "check for new items", Owner: ownerID, Err: err}
		s.logger.Error("new item check failed", "owner", ownerID, "error", ferr)
		res.Message = "Could not reach the collection service."
		return res, ferr
	}

	known := make(map[string]struct{}, len(snap.Items))
	for _, it := range snap.Items {
		known[it.ExternalID] = struct{}{}
	}
	for _, it := range items {
		if it.ExternalID == "" {
			continue
		}
		if _, ok := known[it.ExternalID]; ok {
			continue
		}
		known[it.ExternalID] = struct{}{}
		res.NewItemsCount++
	}

	if res.NewItemsCount > 0 {
		res.Message = pluralize(res.NewItemsCount, "new item", "new items") + " found."
	} else {
		res.Message = "Your collection is up to date."
	}
	s.logger.Debug("checked for new items", "owner", ownerID, "new", res.NewItemsCount, "since", res.LatestCacheDate)
	return res, nil
}

// UpdateWithNewItems merges items added since the newest cached one into
// the cache. Running it again without remote changes adds nothing. It
// declines while a full refresh is running.
func (s *Service) UpdateWithNewItems(ctx context.Context, ownerID string) (domain.UpdateResult, error) {
	if ownerID == "" {
		return domain.UpdateResult{}, domain.ErrNoOwner
	}
	declined := domain.UpdateResult{
		Declined: true,
		Source:   domain.SourceRemote,
		Message:  "A full refresh is running. Try again when it finishes.",
	}
	if s.tracker.Loading(ownerID) {
		return declined, nil
	}

	lock := s.ownerLock(ownerID)
	lock.Lock()
	defer lock.Unlock()

	// A refresh may have started while waiting for the lock.
	if s.tracker.Loading(ownerID) {
		return declined, nil
	}

	snap, err := s.store.Get(ownerID)
	if err != nil {
		s.logger.Error("failed to read cache", "owner", ownerID, "error", err)
		return domain.UpdateResult{Source: domain.SourceRemote, Message: "Could not read the local cache."}, err
	}

	since := domain.LatestAddedAt(snap.Items)
	items, err := s.remote.FetchItemsSince(ctx, ownerID, since)
	if err != nil {
		ferr := &domain.RemoteFetchError{Op: "fetch new items", Owner: ownerID, Err: err}
		s.logger.Error("incremental update failed", "owner", ownerID, "error", ferr)
		return domain.UpdateResult{Source: domain.SourceRemote, Message: "Could not reach the collection service."}, ferr
	}

	up, err := s.store.UpsertMany(ownerID, items, s.now())
	if err != nil {
		s.logger.Error("failed to save new items", "owner", ownerID, "error", err)
		return domain.UpdateResult{Source: domain.SourceRemote, Message: "Could not save new items."}, err
	}

	res := domain.UpdateResult{
		NewItemsAdded: up.Added,
		Updated:       up.Updated,
		Source:        domain.SourceRemote,
	}
	if up.Added > 0 {
		res.Message = pluralize(up.Added, "new item", "new items") + " added."
	} else {
		res.Message = "No new items."
	}
	s.logger.Info("incremental update", "owner", ownerID, "added", up.Added, "updated", up.Updated, "since", since)
	return res, nil
}

// ClearCache drops the owner's cache and starts loading it again.
func (s *Service) ClearCache(ctx context.Context, ownerID string) (domain.LoadResult, error) {
	if ownerID == "" {
		return domain.LoadResult{}, domain.ErrNoOwner
	}

	lock := s.ownerLock(ownerID)
	lock.Lock()
	err := s.store.Clear(ownerID)
	lock.Unlock()
	if err != nil {
		s.logger.Error("failed to clear cache", "owner", ownerID, "error", err)
		return domain.LoadResult{OwnerID: ownerID, Source: domain.SourceCache, Message: "Could not clear the local cache."}, err
	}
	s.logger.Info("cleared cache", "owner", ownerID)

	return s.LoadCollection(ctx, ownerID, false)
}

// CacheProgress returns the owner's background refresh progress, if any.
func (s *Service) CacheProgress(ownerID string) (domain.SyncProgress, bool) {
	return s.tracker.Get(ownerID)
}

// Logout forgets the owner's refresh progress. Cached items are kept.
func (s *Service) Logout(ownerID string) {
	s.tracker.Forget(ownerID)
	s.logger.Info("owner logged out", "owner", ownerID)
}

// Wait blocks until all background refreshes have finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Drain waits for running refreshes to finish or for ctx to end. Unlike
// Shutdown it lets them commit.
func (s *Service) Drain(ctx context.Context) error {
	return s.waitCtx(ctx)
}

// Shutdown stops background refreshes and waits for them to exit or for
// ctx to end. No refresh starts after Shutdown is called.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
	return s.waitCtx(ctx)
}

// --- Private helpers ---

// startRefresh launches a background full refresh unless one is already
// loading for the owner. It reports whether a new refresh was started.
func (s *Service) startRefresh(ownerID string) bool {
	if _, started := s.tracker.Start(ownerID, 0); !started {
		s.logger.Debug("refresh coalesced", "owner", ownerID, "error", &domain.ConflictError{Owner: ownerID})
		return false
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.tracker.Fail(ownerID, "service is shutting down")
		return false
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		s.refresh(s.ctx, ownerID)
	}()
	return true
}

// refresh fetches every page and swaps the cache. The previous cache is
// left untouched unless the whole collection was fetched.
func (s *Service) refresh(ctx context.Context, ownerID string) {
	start := time.Now()
	s.logger.Info("full refresh started", "owner", ownerID)

	items, err := fetchAll(ctx, s.remote, ownerID, s.cfg.PageSize, func(page, totalPages int) {
		s.tracker.Advance(ownerID, page, totalPages)
	})
	if err != nil {
		ferr := &domain.RemoteFetchError{Op: "full refresh", Owner: ownerID, Err: err}
		s.logger.Error("full refresh failed", "owner", ownerID, "error", ferr)
		s.tracker.Fail(ownerID, ferr.Error())
		return
	}

	lock := s.ownerLock(ownerID)
	lock.Lock()
	err = s.store.ReplaceAll(ownerID, items, s.now())
	lock.Unlock()
	if err != nil {
		s.logger.Error("failed to save collection", "owner", ownerID, "error", err)
		s.tracker.Fail(ownerID, err.Error())
		return
	}

	s.tracker.Complete(ownerID)
	s.logger.Info("full refresh completed", "owner", ownerID, "count", len(items), "duration", time.Since(start))
}

func (s *Service) waitCtx(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) ownerLock(ownerID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[ownerID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[ownerID] = l
	}
	return l
}

func pluralize(n int, one, many string) string {
	if n == 1 {
		return "1 " + one
	}
	return strconv.Itoa(n) + " " + many
}
