package library

import "github.com/mmcdole/crate/internal/domain"

// Snapshot provides a synchronous, cache-only read of the owner's
// collection with its derived status. It never touches the network.
func (s *Service) Snapshot(ownerID string) (domain.Snapshot, error) {
	if ownerID == "" {
		return domain.Snapshot{}, domain.ErrNoOwner
	}
	snap, err := s.store.Get(ownerID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	return s.withStatus(snap), nil
}

// Status returns the owner's cache metadata without the items.
func (s *Service) Status(ownerID string) (domain.CacheMetadata, error) {
	snap, err := s.Snapshot(ownerID)
	if err != nil {
		return domain.CacheMetadata{}, err
	}
	return snap.Metadata, nil
}
