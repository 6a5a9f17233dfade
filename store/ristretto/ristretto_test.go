package ristretto

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/unkn0wn-root/quotacache/store"
)

func newTestStore(t *testing.T, maxCost int64) *Store {
	t.Helper()
	s, err := New(Config{NumCounters: 1000, MaxCost: maxCost, BufferItems: 64})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func TestInvalidConfig(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected error for zero config")
	}
}

func TestRoundTripKeysRemove(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, 1<<20)

	if err := s.Set(ctx, map[string][]byte{"cache:a": []byte("A"), "cache:b": []byte("B"), "x": []byte("X")}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := s.Get(ctx, []string{"cache:a", "x", "missing"})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got["cache:a"], []byte("A")) || !bytes.Equal(got["x"], []byte("X")) || len(got) != 2 {
		t.Fatalf("Get=%q", got)
	}

	keys, _ := s.Keys(ctx, "cache:")
	if want := []string{"cache:a", "cache:b"}; !reflect.DeepEqual(keys, want) {
		t.Fatalf("Keys=%v want %v", keys, want)
	}

	if err := s.Remove(ctx, []string{"cache:a"}); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	keys, _ = s.Keys(ctx, "cache:")
	if want := []string{"cache:b"}; !reflect.DeepEqual(keys, want) {
		t.Fatalf("Keys after remove=%v want %v", keys, want)
	}
}

func TestEntryLargerThanMaxCostIsCapacity(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, 64)

	err := s.Set(ctx, map[string][]byte{"big": bytes.Repeat([]byte("x"), 1024)})
	if !errors.Is(err, store.ErrCapacityExceeded) {
		t.Fatalf("expected capacity error, got %v", err)
	}
	keys, _ := s.Keys(ctx, "")
	if len(keys) != 0 {
		t.Fatalf("refused key tracked: %v", keys)
	}
}
