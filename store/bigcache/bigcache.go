package bigcache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	bc "github.com/allegro/bigcache/v3"

	"github.com/unkn0wn-root/quotacache/store"
)

// Store adapts BigCache. BigCache evicts its oldest entries on its own once
// HardMaxCacheSizeMB is reached, so tracked entries can vanish behind the index;
// the quotacache reconciler repairs that drift. A single entry larger than a shard
// is rejected and reported as store.ErrCapacityExceeded.
type Store struct {
	c *bc.BigCache
	// serializes multi-key Set so the rollback sees a stable view
	mu sync.Mutex
}

var _ store.Store = (*Store)(nil)

type Config struct {
	LifeWindow         time.Duration // 0 => entries never expire by age
	CleanWindow        time.Duration
	Shards             int // power of two; 0 => bigcache default
	MaxEntriesInWindow int
	MaxEntrySize       int
	HardMaxCacheSizeMB int // ~ memory limit; 0 = unlimited
}

func New(ctx context.Context, cfg Config) (*Store, error) {
	life := cfg.LifeWindow
	if life <= 0 {
		life = 100 * 365 * 24 * time.Hour
	}
	conf := bc.DefaultConfig(life)
	if cfg.CleanWindow > 0 {
		conf.CleanWindow = cfg.CleanWindow
	}
	if cfg.Shards > 0 {
		conf.Shards = cfg.Shards
	}
	if cfg.MaxEntriesInWindow > 0 {
		conf.MaxEntriesInWindow = cfg.MaxEntriesInWindow
	}
	if cfg.MaxEntrySize > 0 {
		conf.MaxEntrySize = cfg.MaxEntrySize
	}
	if cfg.HardMaxCacheSizeMB > 0 {
		conf.HardMaxCacheSize = cfg.HardMaxCacheSizeMB
	}
	c, err := bc.New(ctx, conf)
	if err != nil {
		return nil, err
	}
	return &Store{c: c}, nil
}

func (s *Store) Get(_ context.Context, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	for _, k := range keys {
		b, err := s.c.Get(k)
		if errors.Is(err, bc.ErrEntryNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[k] = b
	}
	return out, nil
}

func (s *Store) Keys(_ context.Context, prefix string) ([]string, error) {
	var out []string
	it := s.c.Iterator()
	for it.SetNext() {
		e, err := it.Value()
		if err != nil {
			// entry vanished mid-iteration
			continue
		}
		if strings.HasPrefix(e.Key(), prefix) {
			out = append(out, e.Key())
		}
	}
	sort.Strings(out)
	return out, nil
}

// Set writes items one by one. On a rejection every touched key is restored,
// the rejected one included: bigcache drops a key's old value before it tries
// to store the new one.
func (s *Store) Set(_ context.Context, items map[string][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	prev := make(map[string][]byte, len(keys))
	for i, k := range keys {
		if old, err := s.c.Get(k); err == nil {
			prev[k] = old
		}
		if err := s.c.Set(k, items[k]); err != nil {
			s.rollback(keys[:i+1], prev)
			return fmt.Errorf("%w: bigcache set %q: %v", store.ErrCapacityExceeded, k, err)
		}
	}
	return nil
}

func (s *Store) rollback(written []string, prev map[string][]byte) {
	for _, k := range written {
		if old, ok := prev[k]; ok {
			_ = s.c.Set(k, old)
		} else {
			_ = s.c.Delete(k)
		}
	}
}

func (s *Store) Remove(_ context.Context, keys []string) error {
	for _, k := range keys {
		if err := s.c.Delete(k); err != nil && !errors.Is(err, bc.ErrEntryNotFound) {
			return err
		}
	}
	return nil
}

func (s *Store) Close(_ context.Context) error {
	return s.c.Close()
}

// Len returns the number of entries currently held by BigCache.
func (s *Store) Len() int { return s.c.Len() }
