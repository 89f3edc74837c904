package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for domain operations
var (
	// ErrRemote indicates the remote collection service failed
	ErrRemote = errors.New("remote fetch failed")

	// ErrStorage indicates local persistence failed
	ErrStorage = errors.New("cache storage failed")

	// ErrConflict indicates a full refresh is already running for the owner
	ErrConflict = errors.New("refresh already in progress")

	// ErrInvalidQuery indicates a malformed query state
	ErrInvalidQuery = errors.New("invalid query")

	// ErrAuthFailed indicates the remote rejected the credentials
	ErrAuthFailed = errors.New("authentication token is invalid")

	// ErrServerOffline indicates the remote service is unreachable
	ErrServerOffline = errors.New("remote service is unreachable")

	// ErrNoOwner indicates an operation was called without an owner identity
	ErrNoOwner = errors.New("owner id is required")
)

// RemoteFetchError is a network or API failure during a fetch.
type RemoteFetchError struct {
	Op    string
	Owner string
	Err   error
}

func (e *RemoteFetchError) Error() string {
	return fmt.Sprintf("%s for %q: %v", e.Op, e.Owner, e.Err)
}

func (e *RemoteFetchError) Unwrap() error { return e.Err }

func (e *RemoteFetchError) Is(target error) bool { return target == ErrRemote }

// StorageError is a local persistence failure. Previously committed data
// is intact when it is returned.
type StorageError struct {
	Op    string
	Owner string
	Err   error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("cache %s for %q: %v", e.Op, e.Owner, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// ConflictError is an attempted second full refresh for the same owner.
type ConflictError struct {
	Owner string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("refresh already in progress for %q", e.Owner)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// ValidationError is a malformed query state.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidQuery }
