package memory

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/unkn0wn-root/quotacache/store"
)

func TestSetGetRemove(t *testing.T) {
	ctx := context.Background()
	s := New(Config{})

	if err := s.Set(ctx, map[string][]byte{"a": []byte("1"), "b": []byte("22")}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := s.Get(ctx, []string{"a", "b", "missing"})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got) != 2 || string(got["a"]) != "1" || string(got["b"]) != "22" {
		t.Fatalf("Get got=%q", got)
	}
	if s.Used() != 5 {
		t.Fatalf("Used=%d want 5", s.Used())
	}

	if err := s.Remove(ctx, []string{"a", "missing"}); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if s.Len() != 1 || s.Used() != 3 {
		t.Fatalf("after remove len=%d used=%d", s.Len(), s.Used())
	}
}

func TestSetOverQuotaIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	s := New(Config{QuotaBytes: 10})

	if err := s.Set(ctx, map[string][]byte{"k1": []byte("1234")}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	err := s.Set(ctx, map[string][]byte{"k2": []byte("12"), "k3": []byte("12")})
	if !errors.Is(err, store.ErrCapacityExceeded) {
		t.Fatalf("expected capacity error, got %v", err)
	}
	if s.Len() != 1 || s.Used() != 6 {
		t.Fatalf("partial write applied: len=%d used=%d", s.Len(), s.Used())
	}

	// overwrite frees the old value before accounting the new one
	if err := s.Set(ctx, map[string][]byte{"k1": []byte("12345678")}); err != nil {
		t.Fatalf("overwrite within quota: %v", err)
	}
}

func TestKeysPrefix(t *testing.T) {
	ctx := context.Background()
	s := New(Config{})
	_ = s.Set(ctx, map[string][]byte{"cache:b": nil, "cache:a": nil, "pref": nil})

	got, _ := s.Keys(ctx, "cache:")
	if want := []string{"cache:a", "cache:b"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Keys=%v want %v", got, want)
	}
	all, _ := s.Keys(ctx, "")
	if len(all) != 3 {
		t.Fatalf("Keys(\"\")=%v", all)
	}
}
