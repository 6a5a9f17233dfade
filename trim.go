package quotacache

import (
	"context"

	"github.com/unkn0wn-root/quotacache/internal/wire"
)

// trim evicts the least recently used tracked entry. Runs on the write queue only.
//
// An index key without a stored entry is drift, not an error: the index still gets
// shorter. If the shortened index cannot be persisted, a tidy pass reconciles the
// index with what the store actually holds and the trim still completes.
func (c *cache[V]) trim(ctx context.Context) (string, error) {
	idx, err := c.loadIndex(ctx)
	if err != nil {
		return "", err
	}
	if len(idx) == 0 {
		c.log.Warn("trim: index empty, nothing to evict", nil)
		c.hooks.CacheEmpty()
		return "", ErrCacheEmpty
	}

	victim := idx[len(idx)-1]
	rest := idx[:len(idx)-1]

	// found reports a confirmed entry only
	found := false
	if got, err := c.store.Get(ctx, []string{victim}); err != nil {
		c.log.Warn("trim: existence check failed", Fields{"key": victim, "err": err})
	} else if _, found = got[victim]; !found {
		c.log.Warn("trim: indexed entry missing from store", Fields{"key": victim})
	}

	if err := c.store.Remove(ctx, []string{victim}); err != nil {
		// the entry stays behind as an orphan until the next tidy
		c.log.Warn("trim: remove failed", Fields{"key": victim, "err": err})
	}

	raw, err := wire.EncodeIndex(rest)
	if err == nil {
		err = c.store.Set(ctx, map[string][]byte{c.keys.IndexKey: raw})
	}
	if err != nil {
		c.log.Warn("trim: persisting shortened index failed; tidying", Fields{"key": victim, "err": err})
		if _, terr := c.tidy(ctx); terr != nil {
			c.log.Warn("trim: fallback tidy failed", Fields{"err": terr})
		}
	}

	c.log.Info("evicted least recently used entry", Fields{"key": victim, "found": found, "index_len": len(rest)})
	c.hooks.Evicted(victim, found)
	return victim, nil
}
