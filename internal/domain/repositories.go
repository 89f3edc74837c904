package domain

//go:generate mockgen -source=repositories.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"
)

// Page is one page of an owner's remote collection.
type Page struct {
	Items      []CatalogItem
	TotalPages int
}

// RemoteFetcher pages the remote collection (implemented by remote clients).
// Calls must be safe to repeat and have no side effects beyond the remote's
// own rate accounting. Pages are 1-based.
type RemoteFetcher interface {
	// FetchPage returns one page of the collection and the total page count.
	FetchPage(ctx context.Context, ownerID string, page, pageSize int) (Page, error)

	// FetchItemsSince returns items acquired at or after since.
	FetchItemsSince(ctx context.Context, ownerID string, since time.Time) ([]CatalogItem, error)
}

// PlayCountSource provides the externally sourced play-count annotation.
type PlayCountSource interface {
	PlayCount(ctx context.Context, key MetricKey) (int, error)
}
