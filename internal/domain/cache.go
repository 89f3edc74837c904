package domain

import "time"

// CacheStatus is the freshness of an owner's cached collection.
// It is derived on read from CacheMetadata timestamps and is never persisted.
type CacheStatus string

const (
	CacheValid            CacheStatus = "valid"
	CacheExpired          CacheStatus = "expired"
	CachePartiallyExpired CacheStatus = "partially_expired"
	CacheUnknown          CacheStatus = "unknown"
)

// CacheMetadata describes one owner's cached collection.
type CacheMetadata struct {
	Status                CacheStatus `json:"-"`
	LastFullSyncAt        time.Time   `json:"last_full_sync_at"`
	LastIncrementalSyncAt time.Time   `json:"last_incremental_sync_at"`
	ItemCount             int         `json:"-"`
}

// Snapshot is what the store holds for one owner at a point in time.
// Items is owned by the caller.
type Snapshot struct {
	Items    []CatalogItem
	Metadata CacheMetadata
}

// UpsertResult reports how an incremental merge changed the cache.
type UpsertResult struct {
	Added   int
	Updated int
}

// Source says where a result's data came from.
type Source string

const (
	SourceCache  Source = "cache"
	SourceRemote Source = "remote"
)
