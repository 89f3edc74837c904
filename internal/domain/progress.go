package domain

import "time"

// SyncStatus is the state of a background full refresh.
type SyncStatus string

const (
	SyncLoading   SyncStatus = "loading"
	SyncCompleted SyncStatus = "completed"
	SyncFailed    SyncStatus = "failed"
)

// Terminal reports whether no further transitions happen without a new start.
func (s SyncStatus) Terminal() bool {
	return s == SyncCompleted || s == SyncFailed
}

// SyncProgress reports progress of an owner's background refresh.
type SyncProgress struct {
	OwnerID     string
	Status      SyncStatus
	CurrentPage int
	TotalPages  int
	Reason      string // set when Status is SyncFailed
	StartedAt   time.Time
	UpdatedAt   time.Time
}

// ProgressFunc reports paging progress: (1, 3), (2, 3), (3, 3).
type ProgressFunc func(page, totalPages int)
