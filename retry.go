package quotacache

import (
	"context"
	"errors"

	"github.com/unkn0wn-root/quotacache/internal/wire"
	"github.com/unkn0wn-root/quotacache/store"
)

// write is one pending store Set. Tracked writes carry the refreshed index in
// payload so the entry and its index position land in a single Set.
type write struct {
	key     string
	tracked bool
	payload map[string][]byte
}

// attemptSet writes w, evicting and retrying on capacity rejections. remaining is
// the number of evict-and-retry rounds left. Runs on the write queue only.
//
// With a store that rejects every write, a budget of N makes N+1 Set calls, N
// trims, and fails once.
func (c *cache[V]) attemptSet(ctx context.Context, w *write, remaining int) error {
	attempts := 0
	for {
		attempts++
		err := c.store.Set(ctx, w.payload)
		if err == nil {
			return nil
		}
		if !store.IsCapacity(err) {
			return c.writeFailed(w.key, attempts, err)
		}

		c.log.Info("store rejected write", Fields{"key": w.key, "remaining": remaining, "err": err})
		c.hooks.WriteRejected(w.key, remaining)
		if remaining <= 0 {
			return c.writeFailed(w.key, attempts, err)
		}

		if _, terr := c.trim(ctx); terr != nil && !errors.Is(terr, ErrCacheEmpty) {
			c.log.Warn("trim during retry failed", Fields{"key": w.key, "err": terr})
		}

		if remaining == c.tidyAtRetry {
			// rejections despite eviction: space is held by entries the index does not know
			c.log.Debug("tidying before retry", Fields{"key": w.key, "remaining": remaining})
			if _, terr := c.tidy(ctx); terr != nil {
				c.log.Warn("tidy during retry failed", Fields{"key": w.key, "err": terr})
			}
		}

		if w.tracked {
			if err := c.refreshIndex(ctx, w); err != nil {
				return c.writeFailed(w.key, attempts, err)
			}
		}
		remaining--
	}
}

// refreshIndex re-reads the index after eviction changed it and splices it back
// into the pending payload with w.key in front.
func (c *cache[V]) refreshIndex(ctx context.Context, w *write) error {
	idx, err := c.loadIndex(ctx)
	if err != nil {
		return err
	}
	raw, err := wire.EncodeIndex(idx.touch(w.key))
	if err != nil {
		return err
	}
	w.payload[c.keys.IndexKey] = raw
	return nil
}

func (c *cache[V]) writeFailed(key string, attempts int, err error) error {
	werr := &WriteFailedError{Key: key, Attempts: attempts, Err: err}
	c.log.Error("could not save entry", Fields{"key": key, "attempts": attempts, "err": err})
	c.hooks.WriteFailed(key, werr)
	return werr
}
