package library

import (
	"time"

	"github.com/mmcdole/crate/internal/domain"
)

// ComputeStatus derives the freshness of a cached collection at now.
//
//	no items                          -> unknown
//	full sync older than fullTTL      -> expired
//	any item cached longer than itemTTL -> partially_expired
//	otherwise                         -> valid
//
// A zero TTL disables that check.
func ComputeStatus(snap domain.Snapshot, now time.Time, fullTTL, itemTTL time.Duration) domain.CacheStatus {
	if len(snap.Items) == 0 {
		return domain.CacheUnknown
	}
	if fullTTL > 0 && now.Sub(snap.Metadata.LastFullSyncAt) > fullTTL {
		return domain.CacheExpired
	}
	if itemTTL > 0 {
		for _, it := range snap.Items {
			if now.Sub(it.CachedAt) > itemTTL {
				return domain.CachePartiallyExpired
			}
		}
	}
	return domain.CacheValid
}

// withStatus fills the derived metadata fields of a snapshot.
func (s *Service) withStatus(snap domain.Snapshot) domain.Snapshot {
	snap.Metadata.ItemCount = len(snap.Items)
	snap.Metadata.Status = ComputeStatus(snap, s.now(), s.cfg.FullTTL, s.cfg.ItemTTL)
	return snap
}
