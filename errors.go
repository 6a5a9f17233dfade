package quotacache

import (
	"errors"
	"fmt"

	"github.com/unkn0wn-root/quotacache/store"
)

var (
	// ErrCapacityExceeded is the store's capacity rejection; see store.ErrCapacityExceeded.
	ErrCapacityExceeded = store.ErrCapacityExceeded

	// ErrCacheEmpty is returned by a trim that found nothing left to evict.
	ErrCacheEmpty = errors.New("quotacache: cache empty, nothing to evict")

	ErrClosed      = errors.New("quotacache: closed")
	ErrEmptyKey    = errors.New("quotacache: empty key")
	ErrReservedKey = errors.New("quotacache: key is reserved for the recency index")
)

// WriteFailedError reports a value that could not be saved. The cache keeps working;
// the value is simply not cached.
type WriteFailedError struct {
	Key      string
	Attempts int   // Set calls made
	Err      error // last store error
}

func (e *WriteFailedError) Error() string {
	if errors.Is(e.Err, ErrCapacityExceeded) {
		return fmt.Sprintf("quotacache: cache full, could not save %q after %d attempts", e.Key, e.Attempts)
	}
	return fmt.Sprintf("quotacache: could not save %q: %v", e.Key, e.Err)
}

func (e *WriteFailedError) Unwrap() error { return e.Err }

// StoreError wraps a backing store failure with the operation that hit it.
type StoreError struct {
	Op  string // "read index", "list keys", "remove orphans", ...
	Err error
}

func (e *StoreError) Error() string { return fmt.Sprintf("quotacache: %s: %v", e.Op, e.Err) }
func (e *StoreError) Unwrap() error { return e.Err }

// DroppedError is the outcome of a queued operation that panicked. The panic was
// logged and the queue moved on.
type DroppedError struct {
	Op    string
	Value any
}

func (e *DroppedError) Error() string {
	return fmt.Sprintf("quotacache: operation %s dropped: %v", e.Op, e.Value)
}
