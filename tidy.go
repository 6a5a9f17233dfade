package quotacache

import (
	"context"

	"github.com/unkn0wn-root/quotacache/internal/wire"
)

// tidy reconciles the index with the store. Runs on the write queue only.
//
//   - orphans: tracked entries the index does not list. Eviction can never reach
//     them, so they are removed.
//   - the index is filtered down to keys that still have an entry, order kept, and
//     written back only when that changed it.
//
// A failed read aborts the pass before anything is touched.
func (c *cache[V]) tidy(ctx context.Context) (TidyReport, error) {
	var rep TidyReport

	stored, err := c.trackedKeys(ctx)
	if err != nil {
		return rep, err
	}
	idx, err := c.loadIndex(ctx)
	if err != nil {
		return rep, err
	}

	present := make(map[string]struct{}, len(stored))
	for _, k := range stored {
		present[k] = struct{}{}
	}
	indexed := make(map[string]struct{}, len(idx))
	for _, k := range idx {
		indexed[k] = struct{}{}
	}

	var orphans []string
	for _, k := range stored {
		if _, ok := indexed[k]; !ok {
			orphans = append(orphans, k)
		}
	}

	var firstErr error
	if len(orphans) > 0 {
		if err := c.store.Remove(ctx, orphans); err != nil {
			firstErr = &StoreError{Op: "remove orphans", Err: err}
			c.log.Warn("tidy: removing orphans failed", Fields{"count": len(orphans), "err": err})
		} else {
			rep.OrphansRemoved = len(orphans)
			c.log.Debug("tidy: removed orphans", Fields{"keys": orphans})
		}
	}

	repaired := idx.keep(present)
	rep.IndexDropped = len(idx) - len(repaired)
	if !repaired.equal(idx) {
		raw, err := wire.EncodeIndex(repaired)
		if err == nil {
			err = c.store.Set(ctx, map[string][]byte{c.keys.IndexKey: raw})
		}
		if err != nil {
			c.log.Warn("tidy: writing repaired index failed", Fields{"err": err})
			if firstErr == nil {
				firstErr = &StoreError{Op: "write index", Err: err}
			}
		} else {
			rep.IndexRewritten = true
		}
	}

	c.log.Info("tidied recency index", Fields{
		"orphans_removed": rep.OrphansRemoved,
		"index_dropped":   rep.IndexDropped,
		"index_len":       len(repaired),
	})
	c.hooks.Tidied(rep)
	return rep, firstErr
}
