package domain

import "time"

// LoadResult is the immediate answer to a collection request.
type LoadResult struct {
	OwnerID    string
	Items      []CatalogItem
	Metadata   CacheMetadata
	Source     Source
	Refreshing bool // a background full refresh is running
	Incomplete bool // cache is still below the completeness threshold
	Message    string
}

// CheckResult is the outcome of a read-only probe for new items.
type CheckResult struct {
	NewItemsCount   int
	LatestCacheDate time.Time
	Skipped         bool // a full refresh was in flight
	Message         string
}

// UpdateResult is the outcome of an incremental update.
type UpdateResult struct {
	NewItemsAdded int
	Updated       int
	Declined      bool // a full refresh was in flight
	Source        Source
	Message       string
}
