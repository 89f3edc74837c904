// Package playcount caches the externally sourced play-count annotation
// used by the externalMetric sort. Counts are keyed by (creator, title)
// and live independently of the collection cache.
package playcount

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/mmcdole/crate/internal/domain"
)

const (
	defaultTTL         = 24 * time.Hour
	defaultConcurrency = 4
)

type entry struct {
	count     int
	fetchedAt time.Time
}

// Cache holds play counts fetched from a domain.PlayCountSource.
type Cache struct {
	source      domain.PlayCountSource
	ttl         time.Duration
	concurrency int
	now         func() time.Time
	logger      *slog.Logger

	mu      sync.RWMutex
	entries map[domain.MetricKey]entry

	group singleflight.Group
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL sets how long a fetched count is considered fresh.
func WithTTL(d time.Duration) Option {
	return func(c *Cache) { c.ttl = d }
}

// WithConcurrency bounds the number of simultaneous source requests.
func WithConcurrency(n int) Option {
	return func(c *Cache) { c.concurrency = n }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// NewCache creates an empty play-count cache.
func NewCache(source domain.PlayCountSource, logger *slog.Logger, opts ...Option) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Cache{
		source:      source,
		ttl:         defaultTTL,
		concurrency: defaultConcurrency,
		now:         time.Now,
		logger:      logger,
		entries:     make(map[domain.MetricKey]entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.concurrency <= 0 {
		c.concurrency = defaultConcurrency
	}
	return c
}

// normalizeKey makes lookups insensitive to case and surrounding spaces.
func normalizeKey(key domain.MetricKey) domain.MetricKey {
	return domain.MetricKey{
		Creator: strings.ToLower(strings.TrimSpace(key.Creator)),
		Title:   strings.ToLower(strings.TrimSpace(key.Title)),
	}
}

// Lookup returns the cached count for key, or 0 when it has never been
// fetched. Expired counts are still returned until Warm replaces them.
// Lookup never blocks on the network.
func (c *Cache) Lookup(key domain.MetricKey) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entries[normalizeKey(key)].count
}

// Warm fetches counts for items whose key is missing or expired. Individual
// fetch failures are logged and leave the key missing; Warm returns an error
// only when ctx ends.
func (c *Cache) Warm(ctx context.Context, items []domain.CatalogItem) error {
	if c.source == nil {
		return nil
	}

	pending := c.stale(items)
	if len(pending) == 0 {
		return nil
	}
	c.logger.Debug("warming play counts", "keys", len(pending))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)

	for _, key := range pending {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			c.fetch(gctx, key)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// stale returns the distinct keys among items that need fetching.
func (c *Cache) stale(items []domain.CatalogItem) []domain.MetricKey {
	now := c.now()
	seen := make(map[domain.MetricKey]struct{}, len(items))
	var out []domain.MetricKey

	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, it := range items {
		key := it.Key()
		norm := normalizeKey(key)
		if norm.Creator == "" && norm.Title == "" {
			continue
		}
		if _, dup := seen[norm]; dup {
			continue
		}
		seen[norm] = struct{}{}
		if e, ok := c.entries[norm]; ok && now.Sub(e.fetchedAt) < c.ttl {
			continue
		}
		out = append(out, key)
	}
	return out
}

// fetch loads one key. Concurrent fetches of the same key share a request.
func (c *Cache) fetch(ctx context.Context, key domain.MetricKey) {
	norm := normalizeKey(key)
	_, err, shared := c.group.Do(norm.Creator+"\x00"+norm.Title, func() (any, error) {
		count, err := c.source.PlayCount(ctx, key)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[norm] = entry{count: count, fetchedAt: c.now()}
		c.mu.Unlock()
		return count, nil
	})
	if err != nil {
		c.logger.Debug("play count fetch failed", "creator", key.Creator, "title", key.Title, "shared", shared, "error", err)
	}
}

// Len returns the number of cached keys.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
