// Package memory provides an in-process Store with a byte quota.
//
// Usage is accounted as len(key)+len(value) per entry, the same way browser
// extension storage counts against its quota. It is the reference store for tests
// and for hosts that only need a bounded scratch cache.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/unkn0wn-root/quotacache/store"
)

type Store struct {
	mu    sync.RWMutex
	m     map[string][]byte
	used  int64
	quota int64
}

var _ store.Store = (*Store)(nil)

type Config struct {
	QuotaBytes int64 // 0 = unlimited
}

func New(cfg Config) *Store {
	return &Store{m: make(map[string][]byte), quota: cfg.QuotaBytes}
}

func (s *Store) Get(_ context.Context, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	s.mu.RLock()
	for _, k := range keys {
		if v, ok := s.m[k]; ok {
			out[k] = v
		}
	}
	s.mu.RUnlock()
	return out, nil
}

func (s *Store) Keys(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	out := make([]string, 0, len(s.m))
	for k := range s.m {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	s.mu.RUnlock()
	sort.Strings(out)
	return out, nil
}

// Set applies items only if the resulting usage fits the quota.
func (s *Store) Set(_ context.Context, items map[string][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.used
	for k, v := range items {
		if old, ok := s.m[k]; ok {
			next -= int64(len(k) + len(old))
		}
		next += int64(len(k) + len(v))
	}
	if s.quota > 0 && next > s.quota {
		return fmt.Errorf("%w: %d bytes needed, quota %d", store.ErrCapacityExceeded, next, s.quota)
	}
	for k, v := range items {
		// own the bytes; callers may reuse their buffers
		s.m[k] = append([]byte(nil), v...)
	}
	s.used = next
	return nil
}

func (s *Store) Remove(_ context.Context, keys []string) error {
	s.mu.Lock()
	for _, k := range keys {
		if v, ok := s.m[k]; ok {
			s.used -= int64(len(k) + len(v))
			delete(s.m, k)
		}
	}
	s.mu.Unlock()
	return nil
}

func (s *Store) Close(context.Context) error { return nil }

// Used returns the bytes currently accounted against the quota.
func (s *Store) Used() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.used
}

// Len returns the number of stored keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}
