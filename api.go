package quotacache

import (
	"context"
	"time"

	c "github.com/unkn0wn-root/quotacache/codec"
	"github.com/unkn0wn-root/quotacache/store"
)

// Cache is the quota-aware cache API. V is the caller's value type; serialization is
// handled by a pluggable Codec[V]. Reads go straight to the store; every mutation
// runs on a single FIFO write queue.
type Cache[V any] interface {
	Enabled() bool
	Close(context.Context) error

	// Get reads the store directly. It does not wait for queued writes.
	Get(ctx context.Context, key string) (v V, ok bool, err error)

	// Put queues a write and waits for its outcome. A *WriteFailedError means the
	// value was not cached. Cancelling ctx stops the wait, not the write.
	Put(ctx context.Context, key string, value V) error
	// PutAsync queues a write and returns immediately.
	PutAsync(key string, value V) <-chan Outcome
	Remove(ctx context.Context, key string) error

	// ListTracked returns tracked keys starting with prefix and their recency position.
	ListTracked(ctx context.Context, prefix string) ([]TrackedKey, error)
	// EstimateTrackedSizeKB sums payload sizes of tracked entries.
	EstimateTrackedSizeKB(ctx context.Context) (float64, error)

	// Trim evicts the least recently used tracked entry. ErrCacheEmpty when none is left.
	Trim(ctx context.Context) (evicted string, err error)
	// Tidy reconciles the recency index with the store contents.
	Tidy(ctx context.Context) (TidyReport, error)
	// Clear removes every tracked entry and the index. Untracked keys survive.
	Clear(ctx context.Context) error
}

// TrackedKey is a tracked key and its place in the recency index:
// 0 is the most recent, -1 means the entry is not indexed (drift).
type TrackedKey struct {
	Key      string
	Position int
}

// TidyReport summarizes one reconciliation pass.
type TidyReport struct {
	OrphansRemoved int  // tracked entries that were stored but not indexed
	IndexDropped   int  // index keys whose entry was gone
	IndexRewritten bool // the repaired index differed and was written back
}

// Options tune the behavior of the cache.
// Only Store and Codec are required; others have sensible defaults.
type Options[V any] struct {
	// Required
	Store store.Store
	Codec c.Codec[V]

	TrackedPrefix string // keys with this prefix are indexed and evictable; "" => "cache:"
	IndexKey      string // reserved key holding the index; "" => TrackedPrefix+"index"

	// RetryBudget is how many evict-and-retry rounds a write gets after its first
	// capacity rejection; 0 => 4.
	RetryBudget int
	// TidyAtRetry runs a reconciliation pass when the remaining budget reaches this
	// value; 0 => 2 (or budget-1 if smaller). Must be below RetryBudget.
	TidyAtRetry int

	// TidyInterval schedules a background reconciliation pass; 0 => disabled.
	TidyInterval time.Duration

	Logger   Logger // if nil, NopLogger is used
	Hooks    Hooks  // if nil, NopHooks is used
	Disabled bool   // default false (enabled)
}

func New[V any](opts Options[V]) (Cache[V], error) {
	return newCache[V](opts)
}
