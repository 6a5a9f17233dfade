package ristretto

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	rc "github.com/dgraph-io/ristretto"

	"github.com/unkn0wn-root/quotacache/store"
)

// Store adapts Ristretto. Cost per entry is len(key)+len(value) bytes and MaxCost
// is the quota. Ristretto admits writes asynchronously and may refuse them under
// its TinyLFU policy; Set waits for the buffers to drain and reports any refused
// key as store.ErrCapacityExceeded.
//
// Ristretto cannot enumerate its keys, so the store keeps a key set next to it.
// Keys prunes members Ristretto dropped on its own.
type Store struct {
	c *rc.Cache

	mu   sync.Mutex
	keys map[string]struct{}
}

var _ store.Store = (*Store)(nil)

type Config struct {
	NumCounters int64
	MaxCost     int64 // bytes
	BufferItems int64
	Metrics     bool
}

func New(cfg Config) (*Store, error) {
	if cfg.NumCounters <= 0 || cfg.MaxCost <= 0 || cfg.BufferItems <= 0 {
		return nil, errors.New("ristretto: invalid config")
	}
	c, err := rc.NewCache(&rc.Config{
		NumCounters:        cfg.NumCounters,
		MaxCost:            cfg.MaxCost,
		BufferItems:        cfg.BufferItems,
		Metrics:            cfg.Metrics,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}
	return &Store{c: c, keys: make(map[string]struct{})}, nil
}

func (s *Store) get(key string) ([]byte, bool) {
	v, ok := s.c.Get(key)
	if !ok {
		return nil, false
	}
	b, _ := v.([]byte)
	if b == nil {
		// self-heal: drop unexpected entry shape
		s.c.Del(key)
		return nil, false
	}
	return b, true
}

func (s *Store) Get(_ context.Context, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	for _, k := range keys {
		if b, ok := s.get(k); ok {
			out[k] = b
		}
	}
	return out, nil
}

func (s *Store) Keys(_ context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.keys))
	for k := range s.keys {
		if _, ok := s.get(k); !ok {
			delete(s.keys, k)
			continue
		}
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) Set(_ context.Context, items map[string][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := make(map[string][]byte, len(items))
	for k, v := range items {
		if old, ok := s.get(k); ok {
			prev[k] = old
		}
		s.c.Set(k, v, cost(k, v))
	}
	s.c.Wait()

	var refused []string
	for k := range items {
		if _, ok := s.get(k); !ok {
			refused = append(refused, k)
		}
	}
	if len(refused) == 0 {
		for k := range items {
			s.keys[k] = struct{}{}
		}
		return nil
	}

	// best effort: Ristretto may refuse the restore too
	for k := range items {
		if old, ok := prev[k]; ok {
			s.c.Set(k, old, cost(k, old))
		} else {
			s.c.Del(k)
		}
	}
	s.c.Wait()
	sort.Strings(refused)
	return fmt.Errorf("%w: ristretto refused %v", store.ErrCapacityExceeded, refused)
}

func (s *Store) Remove(_ context.Context, keys []string) error {
	s.mu.Lock()
	for _, k := range keys {
		s.c.Del(k)
		delete(s.keys, k)
	}
	s.mu.Unlock()
	s.c.Wait()
	return nil
}

func (s *Store) Close(_ context.Context) error {
	s.c.Wait()
	s.c.Close()
	return nil
}

// Metrics exposes Ristretto counters (nil unless Config.Metrics).
func (s *Store) Metrics() *rc.Metrics { return s.c.Metrics }

func cost(k string, v []byte) int64 { return int64(len(k) + len(v)) }
