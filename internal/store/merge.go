package store

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mmcdole/crate/internal/domain"
)

// replaceItems builds the item set written by a full replace.
// IDs of ExternalIDs already in prev are carried over; the first occurrence
// of a duplicated ExternalID wins and items without one are dropped.
func replaceItems(prev, next []domain.CatalogItem, at time.Time) []domain.CatalogItem {
	ids := make(map[string]string, len(prev))
	for _, it := range prev {
		ids[it.ExternalID] = it.ID
	}

	out := make([]domain.CatalogItem, 0, len(next))
	seen := make(map[string]struct{}, len(next))
	for _, it := range next {
		if it.ExternalID == "" {
			continue
		}
		if _, dup := seen[it.ExternalID]; dup {
			continue
		}
		seen[it.ExternalID] = struct{}{}

		if id, ok := ids[it.ExternalID]; ok {
			it.ID = id
		} else {
			it.ID = uuid.NewString()
		}
		it.CachedAt = at
		out = append(out, it)
	}
	return out
}

// upsertItems merges incoming into prev by ExternalID.
// Matched records keep their ID and position; new records are appended.
// The first occurrence of an ExternalID repeated in incoming wins.
// touched lists the indexes in merged that were written.
func upsertItems(prev, incoming []domain.CatalogItem, at time.Time) (merged []domain.CatalogItem, touched []int, res domain.UpsertResult) {
	merged = slices.Clone(prev)
	index := make(map[string]int, len(merged))
	for i, it := range merged {
		index[it.ExternalID] = i
	}

	seen := make(map[string]struct{}, len(incoming))
	for _, it := range incoming {
		if it.ExternalID == "" {
			continue
		}
		if _, dup := seen[it.ExternalID]; dup {
			continue
		}
		seen[it.ExternalID] = struct{}{}

		it.CachedAt = at
		if i, ok := index[it.ExternalID]; ok {
			it.ID = merged[i].ID
			merged[i] = it
			res.Updated++
			touched = append(touched, i)
			continue
		}
		it.ID = uuid.NewString()
		index[it.ExternalID] = len(merged)
		touched = append(touched, len(merged))
		merged = append(merged, it)
		res.Added++
	}
	return merged, touched, res
}

func hashServerURL(serverURL string) string {
	normalized := strings.TrimRight(strings.ToLower(serverURL), "/")
	hash := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(hash[:6])
}
