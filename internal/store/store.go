package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mmcdole/crate/internal/domain"
	bolt "go.etcd.io/bbolt"
)

// Bucket names
var (
	bucketCollections = []byte("collections")
)

// record is the persisted form of one owner's cache. Items and metadata
// live in one value so a single Put swaps both.
type record struct {
	Metadata domain.CacheMetadata `json:"metadata"`
	Items    []domain.CatalogItem `json:"items"`
}

// BoltStore implements domain.Store using BoltDB.
type BoltStore struct {
	db *bolt.DB
	mu sync.RWMutex // Protects memory cache

	// writeMu keeps commit order and memory cache order identical
	writeMu sync.Mutex

	// In-memory cache for hot-path reads (promoted on access)
	cache map[string][]byte
}

// NewBoltStore opens (or creates) the cache database for a remote server.
// An empty baseCacheDir gives a memory-only store.
func NewBoltStore(baseCacheDir, serverURL string) (*BoltStore, error) {
	if baseCacheDir == "" {
		// Memory-only mode (no persistence)
		return &BoltStore{cache: make(map[string][]byte)}, nil
	}

	dir, err := serverDir(baseCacheDir, serverURL)
	if err != nil {
		return nil, err
	}

	dbPath := filepath.Join(dir, "crate.db")
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketCollections)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db, cache: make(map[string][]byte)}, nil
}

func serverDir(baseCacheDir, serverURL string) (string, error) {
	dir := baseCacheDir
	if serverURL != "" {
		dir = filepath.Join(baseCacheDir, hashServerURL(serverURL))
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create cache directory: %w", err)
	}
	return dir, nil
}

func (s *BoltStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// === Generic helpers ===

func (s *BoltStore) load(ownerID string) (record, error) {
	var rec record

	// Check memory cache first
	s.mu.RLock()
	data, ok := s.cache[ownerID]
	s.mu.RUnlock()

	if !ok && s.db != nil {
		var err error
		if data, err = s.loadFromDisk(ownerID); err != nil {
			return rec, err
		}
	}

	if data == nil {
		return rec, nil
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("decode cache record: %w", err)
	}
	return rec, nil
}

// loadFromDisk reads a record from BoltDB and promotes it to the memory
// cache. It holds writeMu so a concurrent write cannot be shadowed by the
// value read here.
func (s *BoltStore) loadFromDisk(ownerID string) ([]byte, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	data, ok := s.cache[ownerID]
	s.mu.RUnlock()
	if ok {
		return data, nil
	}

	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketCollections).Get([]byte(ownerID)); v != nil {
			data = make([]byte, len(v))
			copy(data, v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if data != nil {
		s.mu.Lock()
		s.cache[ownerID] = data
		s.mu.Unlock()
	}
	return data, nil
}

// update applies fn to the owner's record and persists the result.
// The memory cache only changes after the write has committed.
func (s *BoltStore) update(ownerID string, fn func(rec *record)) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var data []byte
	mutate := func(prev []byte) error {
		var rec record
		if prev != nil {
			if err := json.Unmarshal(prev, &rec); err != nil {
				return fmt.Errorf("decode cache record: %w", err)
			}
		}
		fn(&rec)
		var err error
		data, err = json.Marshal(rec)
		return err
	}

	if s.db == nil {
		s.mu.RLock()
		prev := s.cache[ownerID]
		s.mu.RUnlock()
		if err := mutate(prev); err != nil {
			return err
		}
	} else {
		err := s.db.Update(func(tx *bolt.Tx) error {
			b := tx.Bucket(bucketCollections)
			if err := mutate(b.Get([]byte(ownerID))); err != nil {
				return err
			}
			return b.Put([]byte(ownerID), data)
		})
		if err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.cache[ownerID] = data
	s.mu.Unlock()
	return nil
}

// === Collections ===

func (s *BoltStore) Get(ownerID string) (domain.Snapshot, error) {
	rec, err := s.load(ownerID)
	if err != nil {
		return domain.Snapshot{}, &domain.StorageError{Op: "read", Owner: ownerID, Err: err}
	}
	meta := rec.Metadata
	meta.ItemCount = len(rec.Items)
	return domain.Snapshot{Items: rec.Items, Metadata: meta}, nil
}

func (s *BoltStore) ReplaceAll(ownerID string, items []domain.CatalogItem, syncedAt time.Time) error {
	err := s.update(ownerID, func(rec *record) {
		rec.Items = replaceItems(rec.Items, items, syncedAt)
		rec.Metadata.LastFullSyncAt = syncedAt
	})
	if err != nil {
		return &domain.StorageError{Op: "replace", Owner: ownerID, Err: err}
	}
	return nil
}

func (s *BoltStore) UpsertMany(ownerID string, items []domain.CatalogItem, syncedAt time.Time) (domain.UpsertResult, error) {
	var res domain.UpsertResult
	err := s.update(ownerID, func(rec *record) {
		rec.Items, _, res = upsertItems(rec.Items, items, syncedAt)
		rec.Metadata.LastIncrementalSyncAt = syncedAt
	})
	if err != nil {
		return domain.UpsertResult{}, &domain.StorageError{Op: "upsert", Owner: ownerID, Err: err}
	}
	return res, nil
}

func (s *BoltStore) Clear(ownerID string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.db != nil {
		err := s.db.Update(func(tx *bolt.Tx) error {
			return tx.Bucket(bucketCollections).Delete([]byte(ownerID))
		})
		if err != nil {
			return &domain.StorageError{Op: "clear", Owner: ownerID, Err: err}
		}
	}

	s.mu.Lock()
	delete(s.cache, ownerID)
	s.mu.Unlock()
	return nil
}
