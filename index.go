package quotacache

import (
	"context"

	"github.com/unkn0wn-root/quotacache/internal/wire"
)

// recency is the decoded index: front = most recently used, back = next to evict.
type recency []string

// touch returns a copy with key moved (or added) to the front.
func (r recency) touch(key string) recency {
	out := make(recency, 0, len(r)+1)
	out = append(out, key)
	for _, k := range r {
		if k != key {
			out = append(out, k)
		}
	}
	return out
}

// without returns a copy with key removed.
func (r recency) without(key string) recency {
	out := make(recency, 0, len(r))
	for _, k := range r {
		if k != key {
			out = append(out, k)
		}
	}
	return out
}

// keep returns the keys present in set, order preserved.
func (r recency) keep(set map[string]struct{}) recency {
	out := make(recency, 0, len(r))
	for _, k := range r {
		if _, ok := set[k]; ok {
			out = append(out, k)
		}
	}
	return out
}

func (r recency) equal(o recency) bool {
	if len(r) != len(o) {
		return false
	}
	for i := range r {
		if r[i] != o[i] {
			return false
		}
	}
	return true
}

// dedupe keeps the first (most recent) occurrence of every key.
func dedupe(keys []string) recency {
	seen := make(map[string]struct{}, len(keys))
	out := make(recency, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

// loadIndex reads the persisted index. A missing index is empty. A corrupt one is
// treated as empty too: its entries become orphans for the next tidy pass.
func (c *cache[V]) loadIndex(ctx context.Context) (recency, error) {
	got, err := c.store.Get(ctx, []string{c.keys.IndexKey})
	if err != nil {
		return nil, &StoreError{Op: "read index", Err: err}
	}
	raw, ok := got[c.keys.IndexKey]
	if !ok {
		return recency{}, nil
	}
	keys, err := wire.DecodeIndex(raw)
	if err != nil {
		c.log.Warn("recency index unreadable; treating as empty", Fields{"key": c.keys.IndexKey, "err": err})
		return recency{}, nil
	}
	return dedupe(keys), nil
}
