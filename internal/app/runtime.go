package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/mmcdole/crate/internal/config"
	"github.com/mmcdole/crate/internal/domain"
	"github.com/mmcdole/crate/internal/library"
	"github.com/mmcdole/crate/internal/playcount"
	"github.com/mmcdole/crate/internal/poller"
	"github.com/mmcdole/crate/internal/progress"
	"github.com/mmcdole/crate/internal/query"
	"github.com/mmcdole/crate/internal/remote"
	"github.com/mmcdole/crate/internal/remote/fixture"
	"github.com/mmcdole/crate/internal/store"
)

const (
	shutdownTimeout = 5 * time.Second
	drainTimeout    = 10 * time.Minute
)

// runtime holds the wired components for one command invocation.
type runtime struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   domain.Store
	tracker *progress.Tracker
	sync    *library.Service
	pollCfg poller.Config
	plays   *playcount.Cache
	engine  *query.Engine

	stopSweep context.CancelFunc
	closers   []io.Closer
}

// newRuntime wires the fetchers, store, tracker and services from cfg.
// A non-empty fixturePath replaces the HTTP clients with a YAML fixture.
func newRuntime(cfg *config.Config, fixturePath string, logger *slog.Logger) (*runtime, error) {
	var (
		fetcher   domain.RemoteFetcher
		plays     domain.PlayCountSource
		serverKey = cfg.Remote.BaseURL
	)
	if fixturePath != "" {
		fx, err := fixture.Load(fixturePath)
		if err != nil {
			return nil, err
		}
		fetcher, plays = fx, fx
		serverKey = "fixture:" + fixturePath
	} else {
		fetcher = remote.NewClient(remote.Config{
			BaseURL:   cfg.Remote.BaseURL,
			Token:     cfg.Remote.Token,
			PageSize:  cfg.Remote.PageSize,
			Timeout:   cfg.Remote.Timeout,
			RateLimit: cfg.Remote.RateLimit,
			Retry:     retryConfig(cfg.Remote.Retry),
		}, logger)
		if cfg.PlayCount.APIKey != "" {
			plays = remote.NewPlayCountClient(remote.PlayCountConfig{
				BaseURL:   cfg.PlayCount.BaseURL,
				APIKey:    cfg.PlayCount.APIKey,
				Username:  cfg.PlayCount.Username,
				Timeout:   cfg.Remote.Timeout,
				RateLimit: cfg.Remote.RateLimit,
				Retry:     retryConfig(cfg.Remote.Retry),
			}, logger)
		}
	}

	st, err := openStore(cfg.Cache, serverKey)
	if err != nil {
		return nil, err
	}

	tracker := progress.NewTracker(logger,
		progress.WithRetention(cfg.Progress.Retention),
		progress.WithIdleTTL(cfg.Progress.IdleTTL),
	)
	svc := library.NewService(fetcher, st, tracker, library.Config{
		FullTTL:               cfg.Cache.FullTTL,
		ItemTTL:               cfg.Cache.ItemTTL,
		PageSize:              cfg.Remote.PageSize,
		CompletenessThreshold: cfg.Cache.CompletenessThreshold,
	}, logger)
	counts := playcount.NewCache(plays, logger,
		playcount.WithTTL(cfg.PlayCount.TTL),
		playcount.WithConcurrency(cfg.PlayCount.Concurrency),
	)

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	go tracker.Run(sweepCtx, cfg.Progress.SweepInterval)

	return &runtime{
		cfg:     cfg,
		logger:  logger,
		store:   st,
		tracker: tracker,
		sync:    svc,
		pollCfg: poller.Config{
			Interval:      cfg.Poller.Interval,
			MaxAttempts:   cfg.Poller.MaxAttempts,
			BackoffFactor: cfg.Poller.BackoffFactor,
			MaxInterval:   cfg.Poller.MaxInterval,
		},
		plays:     counts,
		engine:    query.NewEngine(counts, logger),
		stopSweep: stopSweep,
	}, nil
}

func retryConfig(c config.RetryConfig) remote.RetryConfig {
	return remote.RetryConfig{
		MaxAttempts:    c.MaxAttempts,
		InitialBackoff: c.InitialBackoff,
		MaxBackoff:     c.MaxBackoff,
	}
}

func openStore(c config.CacheConfig, serverKey string) (domain.Store, error) {
	switch c.Backend {
	case config.BackendSQLite:
		st, err := store.NewSQLiteStore(c.Dir, serverKey)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite cache: %w", err)
		}
		return st, nil
	default:
		st, err := store.NewBoltStore(c.Dir, serverKey)
		if err != nil {
			return nil, fmt.Errorf("failed to open bolt cache: %w", err)
		}
		return st, nil
	}
}

// close lets running refreshes commit, then stops background work and
// releases the store and log file. Cancelling ctx abandons the refreshes.
func (r *runtime) close(ctx context.Context) error {
	drainCtx, stopDrain := context.WithTimeout(ctx, drainTimeout)
	if err := r.sync.Drain(drainCtx); err != nil {
		r.logger.Warn("abandoning background refresh", "error", err)
	}
	stopDrain()

	r.stopSweep()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := r.sync.Shutdown(ctx); err != nil {
		r.logger.Error("refreshes did not stop", "error", err)
	}

	err := r.store.Close()
	for _, c := range r.closers {
		_ = c.Close()
	}
	return err
}

// await waits for the owner's refresh, passing each polled progress to
// observe. A completed refresh calls reconcile with the fresh snapshot.
func (r *runtime) await(
	ctx context.Context,
	ownerID string,
	observe func(domain.SyncProgress),
	reconcile func(domain.Snapshot) error,
) (domain.SyncProgress, error) {
	var opts []poller.Option
	if observe != nil {
		opts = append(opts, poller.WithObserver(observe))
	}
	p := poller.New(r.sync, r.pollCfg, r.logger, opts...)
	return p.Await(ctx, ownerID, func(domain.SyncProgress) error {
		if reconcile == nil {
			return nil
		}
		snap, err := r.sync.Snapshot(ownerID)
		if err != nil {
			return err
		}
		return reconcile(snap)
	})
}
