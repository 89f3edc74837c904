package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/mmcdole/crate/internal/domain"
	_ "modernc.org/sqlite"
)

// SchemaDDL returns the statements that create the SQLite cache tables.
func SchemaDDL() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS catalog_items (
    owner_id    TEXT    NOT NULL,
    external_id TEXT    NOT NULL,
    id          TEXT    NOT NULL,
    position    INTEGER NOT NULL,
    attributes  TEXT    NOT NULL,
    cached_at   INTEGER NOT NULL,
    PRIMARY KEY(owner_id, external_id)
);`,
		`CREATE INDEX IF NOT EXISTS catalog_items_position ON catalog_items(owner_id, position);`,
		`CREATE TABLE IF NOT EXISTS cache_metadata (
    owner_id                 TEXT PRIMARY KEY,
    last_full_sync_at        INTEGER NOT NULL DEFAULT 0,
    last_incremental_sync_at INTEGER NOT NULL DEFAULT 0
);`,
	}
}

type itemRow struct {
	OwnerID    string `db:"owner_id"`
	ExternalID string `db:"external_id"`
	ID         string `db:"id"`
	Position   int    `db:"position"`
	Attributes string `db:"attributes"`
	CachedAt   int64  `db:"cached_at"`
}

type metaRow struct {
	OwnerID               string `db:"owner_id"`
	LastFullSyncAt        int64  `db:"last_full_sync_at"`
	LastIncrementalSyncAt int64  `db:"last_incremental_sync_at"`
}

const (
	insertItemSQL = `INSERT INTO catalog_items (owner_id, external_id, id, position, attributes, cached_at)
VALUES (:owner_id, :external_id, :id, :position, :attributes, :cached_at)
ON CONFLICT(owner_id, external_id) DO UPDATE SET
    attributes = excluded.attributes,
    cached_at  = excluded.cached_at`

	upsertFullSyncSQL = `INSERT INTO cache_metadata (owner_id, last_full_sync_at)
VALUES (?, ?)
ON CONFLICT(owner_id) DO UPDATE SET last_full_sync_at = excluded.last_full_sync_at`

	upsertIncrementalSyncSQL = `INSERT INTO cache_metadata (owner_id, last_incremental_sync_at)
VALUES (?, ?)
ON CONFLICT(owner_id) DO UPDATE SET last_incremental_sync_at = excluded.last_incremental_sync_at`
)

// SQLiteStore implements domain.Store on a single SQLite file.
// Every write is one SQL transaction.
type SQLiteStore struct {
	db *sqlx.DB
	mu sync.Mutex
}

// NewSQLiteStore opens the cache database for a remote server.
// An empty baseCacheDir gives an in-memory database.
func NewSQLiteStore(baseCacheDir, serverURL string) (*SQLiteStore, error) {
	dsn := ":memory:"
	if baseCacheDir != "" {
		dir, err := serverDir(baseCacheDir, serverURL)
		if err != nil {
			return nil, err
		}
		dsn = "file:" + filepath.Join(dir, "crate.sqlite") +
			"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}
	// One connection: SQLite has a single writer and :memory: is per-connection.
	db.SetMaxOpenConns(1)

	for _, stmt := range SchemaDDL() {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Get(ownerID string) (domain.Snapshot, error) {
	tx, err := s.db.Beginx()
	if err != nil {
		return domain.Snapshot{}, &domain.StorageError{Op: "read", Owner: ownerID, Err: err}
	}
	defer tx.Rollback()

	items, err := selectItems(tx, ownerID)
	if err != nil {
		return domain.Snapshot{}, &domain.StorageError{Op: "read", Owner: ownerID, Err: err}
	}

	var meta domain.CacheMetadata
	var row metaRow
	err = tx.Get(&row, `SELECT owner_id, last_full_sync_at, last_incremental_sync_at
FROM cache_metadata WHERE owner_id = ?`, ownerID)
	switch {
	case err == nil:
		meta.LastFullSyncAt = fromUnixNano(row.LastFullSyncAt)
		meta.LastIncrementalSyncAt = fromUnixNano(row.LastIncrementalSyncAt)
	case isNoRows(err):
	default:
		return domain.Snapshot{}, &domain.StorageError{Op: "read", Owner: ownerID, Err: err}
	}

	meta.ItemCount = len(items)
	return domain.Snapshot{Items: items, Metadata: meta}, nil
}

func (s *SQLiteStore) ReplaceAll(ownerID string, items []domain.CatalogItem, syncedAt time.Time) error {
	err := s.inTx(func(tx *sqlx.Tx) error {
		prev, err := selectItems(tx, ownerID)
		if err != nil {
			return err
		}
		next := replaceItems(prev, items, syncedAt)

		if _, err := tx.Exec(`DELETE FROM catalog_items WHERE owner_id = ?`, ownerID); err != nil {
			return fmt.Errorf("delete items: %w", err)
		}
		if err := insertItems(tx, ownerID, next, nil); err != nil {
			return err
		}
		_, err = tx.Exec(upsertFullSyncSQL, ownerID, syncedAt.UnixNano())
		return err
	})
	if err != nil {
		return &domain.StorageError{Op: "replace", Owner: ownerID, Err: err}
	}
	return nil
}

func (s *SQLiteStore) UpsertMany(ownerID string, items []domain.CatalogItem, syncedAt time.Time) (domain.UpsertResult, error) {
	var res domain.UpsertResult
	err := s.inTx(func(tx *sqlx.Tx) error {
		prev, err := selectItems(tx, ownerID)
		if err != nil {
			return err
		}
		var merged []domain.CatalogItem
		var touched []int
		merged, touched, res = upsertItems(prev, items, syncedAt)

		if len(touched) > 0 {
			if err := insertItems(tx, ownerID, merged, touched); err != nil {
				return err
			}
		}
		_, err = tx.Exec(upsertIncrementalSyncSQL, ownerID, syncedAt.UnixNano())
		return err
	})
	if err != nil {
		return domain.UpsertResult{}, &domain.StorageError{Op: "upsert", Owner: ownerID, Err: err}
	}
	return res, nil
}

func (s *SQLiteStore) Clear(ownerID string) error {
	err := s.inTx(func(tx *sqlx.Tx) error {
		if _, err := tx.Exec(`DELETE FROM catalog_items WHERE owner_id = ?`, ownerID); err != nil {
			return err
		}
		_, err := tx.Exec(`DELETE FROM cache_metadata WHERE owner_id = ?`, ownerID)
		return err
	})
	if err != nil {
		return &domain.StorageError{Op: "clear", Owner: ownerID, Err: err}
	}
	return nil
}

// inTx runs fn in a transaction, rolling back on any error.
func (s *SQLiteStore) inTx(fn func(tx *sqlx.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Beginx()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func selectItems(tx *sqlx.Tx, ownerID string) ([]domain.CatalogItem, error) {
	var rows []itemRow
	err := tx.Select(&rows, `SELECT owner_id, external_id, id, position, attributes, cached_at
FROM catalog_items WHERE owner_id = ? ORDER BY position`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("select items: %w", err)
	}

	items := make([]domain.CatalogItem, len(rows))
	for i, r := range rows {
		items[i] = domain.CatalogItem{
			ID:         r.ID,
			ExternalID: r.ExternalID,
			CachedAt:   fromUnixNano(r.CachedAt),
		}
		if err := json.Unmarshal([]byte(r.Attributes), &items[i].Attributes); err != nil {
			return nil, fmt.Errorf("decode attributes of %s: %w", r.ExternalID, err)
		}
	}
	return items, nil
}

// insertItems writes items (or only the indexes in only, when non-nil).
// Position is the item's index in the slice.
func insertItems(tx *sqlx.Tx, ownerID string, items []domain.CatalogItem, only []int) error {
	stmt, err := tx.PrepareNamed(insertItemSQL)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	write := func(i int) error {
		it := items[i]
		attrs, err := json.Marshal(it.Attributes)
		if err != nil {
			return err
		}
		_, err = stmt.Exec(itemRow{
			OwnerID:    ownerID,
			ExternalID: it.ExternalID,
			ID:         it.ID,
			Position:   i,
			Attributes: string(attrs),
			CachedAt:   it.CachedAt.UnixNano(),
		})
		if err != nil {
			return fmt.Errorf("insert %s: %w", it.ExternalID, err)
		}
		return nil
	}

	if only != nil {
		for _, i := range only {
			if err := write(i); err != nil {
				return err
			}
		}
		return nil
	}
	for i := range items {
		if err := write(i); err != nil {
			return err
		}
	}
	return nil
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}
