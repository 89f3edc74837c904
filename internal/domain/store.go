package domain

import "time"

// Store handles the local collection cache (BoltDB or SQLite, plus memory).
// Entries are owner-scoped. Reads never block on network.
type Store interface {
	// Get returns what is persisted for the owner, possibly empty.
	Get(ownerID string) (Snapshot, error)

	// ReplaceAll atomically swaps the owner's items for items and records
	// syncedAt as the last full sync. IDs of known ExternalIDs are kept.
	ReplaceAll(ownerID string, items []CatalogItem, syncedAt time.Time) error

	// UpsertMany merges items by ExternalID and records syncedAt as the
	// last incremental sync.
	UpsertMany(ownerID string, items []CatalogItem, syncedAt time.Time) (UpsertResult, error)

	// Clear removes the owner's items and metadata.
	Clear(ownerID string) error

	Close() error
}
