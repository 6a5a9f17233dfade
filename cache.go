package quotacache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	c "github.com/unkn0wn-root/quotacache/codec"
	"github.com/unkn0wn-root/quotacache/internal/wire"
	"github.com/unkn0wn-root/quotacache/store"
)

type cache[V any] struct {
	store store.Store
	codec c.Codec[V]
	keys  KeySpace
	log   Logger
	hooks Hooks

	enabled bool

	retryBudget  int
	tidyAtRetry  int
	tidyInterval time.Duration

	q *writeQueue

	// background tidy
	ticker    *time.Ticker
	stopCh    chan struct{}
	closeWg   sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

func newCache[V any](opts Options[V]) (*cache[V], error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("quotacache: store is required")
	}
	if opts.Codec == nil {
		return nil, fmt.Errorf("quotacache: codec is required")
	}
	if opts.RetryBudget < 0 {
		return nil, fmt.Errorf("quotacache: retry budget must not be negative")
	}

	prefix := coalesce(opts.TrackedPrefix, defaultTrackedPrefix)
	c := &cache[V]{
		store: opts.Store,
		codec: opts.Codec,
		keys: KeySpace{
			TrackedPrefix: prefix,
			IndexKey:      coalesce(opts.IndexKey, prefix+"index"),
		},
		enabled: !opts.Disabled,
	}

	c.log = coalesce[Logger](opts.Logger, NopLogger{})
	c.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	c.retryBudget = coalesce(opts.RetryBudget, defaultRetryBudget)
	c.tidyInterval = opts.TidyInterval

	switch {
	case opts.TidyAtRetry == 0:
		// a small budget pulls the default threshold down with it
		c.tidyAtRetry = min(defaultTidyAtRetry, c.retryBudget-1)
	case opts.TidyAtRetry < 0 || opts.TidyAtRetry >= c.retryBudget:
		return nil, fmt.Errorf("quotacache: tidy threshold %d must be in [1, %d)", opts.TidyAtRetry, c.retryBudget)
	default:
		c.tidyAtRetry = opts.TidyAtRetry
	}

	if !c.enabled {
		return c, nil
	}

	c.q = newWriteQueue(c.log, c.hooks)
	if c.tidyInterval > 0 {
		c.ticker = time.NewTicker(c.tidyInterval)
		c.stopCh = make(chan struct{})
		c.closeWg.Add(1)
		go c.tidyLoop()
	}
	return c, nil
}

func (c *cache[V]) Enabled() bool { return c.enabled }

// Close stops the background tidy, drains the write queue and closes the store.
func (c *cache[V]) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		if c.stopCh != nil {
			close(c.stopCh)
			c.closeWg.Wait()
			c.ticker.Stop()
		}
		var qerr error
		if c.q != nil {
			qerr = c.q.close(ctx)
		}
		c.closeErr = errors.Join(qerr, c.store.Close(ctx))
	})
	return c.closeErr
}

func (c *cache[V]) Get(ctx context.Context, key string) (V, bool, error) {
	var zero V
	if !c.enabled {
		return zero, false, nil
	}
	if err := c.keys.check(key); err != nil {
		return zero, false, err
	}
	got, err := c.store.Get(ctx, []string{key})
	if err != nil {
		return zero, false, &StoreError{Op: "get", Err: err}
	}
	raw, ok := got[key]
	if !ok {
		return zero, false, nil
	}
	payload, err := wire.DecodeEntry(raw)
	if err != nil {
		c.selfHeal(key, "corrupt")
		return zero, false, nil
	}
	v, err := c.codec.Decode(payload)
	if err != nil {
		c.selfHeal(key, "value_decode")
		return zero, false, nil
	}
	return v, true, nil
}

// selfHeal queues removal of an unreadable entry; reads never mutate the store directly.
func (c *cache[V]) selfHeal(key, reason string) {
	c.log.Warn("dropping unreadable entry", Fields{"key": key, "reason": reason})
	c.q.enqueue("self-heal", func(ctx context.Context) error {
		return c.remove(ctx, key)
	})
}

func (c *cache[V]) Put(ctx context.Context, key string, value V) error {
	if !c.enabled {
		return nil
	}
	return wait(ctx, c.PutAsync(key, value)).Err
}

func (c *cache[V]) PutAsync(key string, value V) <-chan Outcome {
	if !c.enabled {
		return resolved(Outcome{Status: StatusOK})
	}
	if err := c.keys.check(key); err != nil {
		return resolved(Outcome{Status: StatusFailed, Err: err})
	}
	payload, err := c.codec.Encode(value)
	if err != nil {
		return resolved(Outcome{Status: StatusFailed, Err: fmt.Errorf("quotacache: encode %q: %w", key, err)})
	}
	entry := wire.EncodeEntry(payload)
	return c.q.enqueue("put", func(ctx context.Context) error {
		return c.put(ctx, key, entry)
	})
}

func resolved(out Outcome) <-chan Outcome {
	ch := make(chan Outcome, 1)
	ch <- out
	return ch
}

// put runs on the write queue.
func (c *cache[V]) put(ctx context.Context, key string, entry []byte) error {
	w := &write{key: key, payload: map[string][]byte{key: entry}}
	if c.keys.Tracked(key) {
		idx, err := c.loadIndex(ctx)
		if err != nil {
			return c.writeFailed(key, 0, err)
		}
		raw, err := wire.EncodeIndex(idx.touch(key))
		if err != nil {
			return c.writeFailed(key, 0, err)
		}
		w.tracked = true
		w.payload[c.keys.IndexKey] = raw
	}
	if err := c.attemptSet(ctx, w, c.retryBudget); err != nil {
		return err
	}
	c.log.Debug("cached", Fields{"key": key, "bytes": len(entry)})
	return nil
}

func (c *cache[V]) Remove(ctx context.Context, key string) error {
	if !c.enabled {
		return nil
	}
	if err := c.keys.check(key); err != nil {
		return err
	}
	return wait(ctx, c.q.enqueue("remove", func(ctx context.Context) error {
		return c.remove(ctx, key)
	})).Err
}

// remove runs on the write queue. The entry goes first; if the shortened index
// cannot be written the reconciler brings both back in line.
func (c *cache[V]) remove(ctx context.Context, key string) error {
	if err := c.store.Remove(ctx, []string{key}); err != nil {
		return &StoreError{Op: "remove", Err: err}
	}
	if !c.keys.Tracked(key) {
		return nil
	}
	idx, err := c.loadIndex(ctx)
	if err != nil {
		return err
	}
	next := idx.without(key)
	if next.equal(idx) {
		return nil
	}
	raw, err := wire.EncodeIndex(next)
	if err != nil {
		return err
	}
	if err := c.store.Set(ctx, map[string][]byte{c.keys.IndexKey: raw}); err != nil {
		c.log.Warn("index update after remove failed; tidying", Fields{"key": key, "err": err})
		if _, terr := c.tidy(ctx); terr != nil {
			return terr
		}
	}
	return nil
}

func (c *cache[V]) ListTracked(ctx context.Context, prefix string) ([]TrackedKey, error) {
	if !c.enabled {
		return nil, nil
	}
	stored, err := c.trackedKeys(ctx)
	if err != nil {
		return nil, err
	}
	idx, err := c.loadIndex(ctx)
	if err != nil {
		return nil, err
	}
	pos := make(map[string]int, len(idx))
	for i, k := range idx {
		pos[k] = i
	}

	out := make([]TrackedKey, 0, len(stored))
	for _, k := range stored {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		p, ok := pos[k]
		if !ok {
			p = -1
		}
		out = append(out, TrackedKey{Key: k, Position: p})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if (a.Position < 0) != (b.Position < 0) {
			return a.Position >= 0
		}
		if a.Position != b.Position {
			return a.Position < b.Position
		}
		return a.Key < b.Key
	})
	return out, nil
}

func (c *cache[V]) EstimateTrackedSizeKB(ctx context.Context) (float64, error) {
	if !c.enabled {
		return 0, nil
	}
	keys, err := c.trackedKeys(ctx)
	if err != nil || len(keys) == 0 {
		return 0, err
	}
	got, err := c.store.Get(ctx, keys)
	if err != nil {
		return 0, &StoreError{Op: "read entries", Err: err}
	}
	var total int
	for _, raw := range got {
		if payload, err := wire.DecodeEntry(raw); err == nil {
			total += len(payload)
		} else {
			total += len(raw)
		}
	}
	kb := float64(total) / 1024
	c.log.Debug("estimated tracked cache size", Fields{"kb": kb, "entries": len(got)})
	return kb, nil
}

func (c *cache[V]) Trim(ctx context.Context) (string, error) {
	if !c.enabled {
		return "", ErrCacheEmpty
	}
	var evicted string
	out := wait(ctx, c.q.enqueue("trim", func(ctx context.Context) error {
		var err error
		evicted, err = c.trim(ctx)
		return err
	}))
	if out.Err != nil {
		return "", out.Err
	}
	return evicted, nil
}

func (c *cache[V]) Tidy(ctx context.Context) (TidyReport, error) {
	if !c.enabled {
		return TidyReport{}, nil
	}
	var rep TidyReport
	out := wait(ctx, c.q.enqueue("tidy", func(ctx context.Context) error {
		var err error
		rep, err = c.tidy(ctx)
		return err
	}))
	if out.Status == StatusOK || errors.As(out.Err, new(*StoreError)) {
		return rep, out.Err
	}
	return TidyReport{}, out.Err
}

func (c *cache[V]) Clear(ctx context.Context) error {
	if !c.enabled {
		return nil
	}
	return wait(ctx, c.q.enqueue("clear", func(ctx context.Context) error {
		keys, err := c.trackedKeys(ctx)
		if err != nil {
			return err
		}
		keys = append(keys, c.keys.IndexKey)
		if err := c.store.Remove(ctx, keys); err != nil {
			return &StoreError{Op: "clear", Err: err}
		}
		c.log.Info("cleared tracked entries", Fields{"removed": len(keys) - 1})
		return nil
	})).Err
}

// trackedKeys lists stored tracked keys (index key excluded).
func (c *cache[V]) trackedKeys(ctx context.Context) ([]string, error) {
	all, err := c.store.Keys(ctx, c.keys.TrackedPrefix)
	if err != nil {
		return nil, &StoreError{Op: "list keys", Err: err}
	}
	out := all[:0]
	for _, k := range all {
		if c.keys.Tracked(k) {
			out = append(out, k)
		}
	}
	return out, nil
}

func (c *cache[V]) tidyLoop() {
	defer c.closeWg.Done()
	for {
		select {
		case <-c.ticker.C:
			// fire and forget; the outcome is logged by tidy itself
			c.q.enqueue("scheduled-tidy", func(ctx context.Context) error {
				_, err := c.tidy(ctx)
				return err
			})
		case <-c.stopCh:
			return
		}
	}
}
