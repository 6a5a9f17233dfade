// Package store defines the backing store abstraction used by quotacache.
//
// Implementations MUST be byte-for-byte transparent: Get must return exactly the
// same []byte that was previously passed to Set for a key (no prepended/appended
// metadata, no re-encoding, no mutation).
//
// A store has a hard capacity. Set may be rejected at any time with an error that
// matches ErrCapacityExceeded under errors.Is; quotacache reacts to that by evicting
// and retrying. Any other Set error is treated as permanent for that write.
//
// Important: the tracked prefix and the index key configured on the cache are owned
// by quotacache. Foreign writes under that prefix are treated as orphans and removed
// by the reconciler.
package store

import (
	"context"
	"errors"
)

// ErrCapacityExceeded reports that a write was rejected because the store is full.
// Implementations wrap their native "full" condition with it.
var ErrCapacityExceeded = errors.New("store: capacity exceeded")

// Store is a minimal capacity-limited byte store.
// Must be safe for concurrent use.
type Store interface {
	// Get returns the values for the keys that exist. Missing keys are absent
	// from the result. If an IO/remote error happens, return (nil, err).
	Get(ctx context.Context, keys []string) (map[string][]byte, error)

	// Keys lists every stored key starting with prefix ("" lists all).
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Set writes all items or none of them. A write rejected for lack of space
	// returns an error matching ErrCapacityExceeded.
	Set(ctx context.Context, items map[string][]byte) error

	// Remove deletes keys. Missing keys are not an error.
	Remove(ctx context.Context, keys []string) error

	// Close releases resources.
	Close(ctx context.Context) error
}

// IsCapacity reports whether err is a capacity rejection.
func IsCapacity(err error) bool { return errors.Is(err, ErrCapacityExceeded) }
