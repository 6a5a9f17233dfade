package sqlite

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/unkn0wn-root/quotacache/store"
)

func openTestStore(t *testing.T, cfg Config) *Store {
	t.Helper()
	s, err := Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(context.Background(), Config{Path: "  "}); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, Config{Path: ":memory:"})

	if err := s.Set(ctx, map[string][]byte{"cache:b": []byte("B"), "cache:a": []byte("A"), "pref": nil}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set(ctx, map[string][]byte{"cache:a": []byte("A2")}); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	got, err := s.Get(ctx, []string{"cache:a", "pref", "missing"})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got["cache:a"], []byte("A2")) {
		t.Fatalf("cache:a=%q", got["cache:a"])
	}
	if v, ok := got["pref"]; !ok || len(v) != 0 {
		t.Fatalf("pref=%q ok=%v", v, ok)
	}
	if _, ok := got["missing"]; ok {
		t.Fatalf("missing key present")
	}

	keys, err := s.Keys(ctx, "cache:")
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if want := []string{"cache:a", "cache:b"}; !reflect.DeepEqual(keys, want) {
		t.Fatalf("Keys=%v want %v", keys, want)
	}

	if err := s.Remove(ctx, []string{"cache:a", "nope"}); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	keys, _ = s.Keys(ctx, "")
	if want := []string{"cache:b", "pref"}; !reflect.DeepEqual(keys, want) {
		t.Fatalf("Keys after remove=%v want %v", keys, want)
	}
}

func TestPageLimitIsCapacity(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, Config{Path: ":memory:", MaxPageCount: 8})

	err := s.Set(ctx, map[string][]byte{
		"small": []byte("fits"),
		"huge":  bytes.Repeat([]byte("x"), 256*1024),
	})
	if !errors.Is(err, store.ErrCapacityExceeded) {
		t.Fatalf("expected capacity error, got %v", err)
	}
	got, _ := s.Get(ctx, []string{"small", "huge"})
	if len(got) != 0 {
		t.Fatalf("rejected transaction left rows: %v", got)
	}

	if err := s.Set(ctx, map[string][]byte{"small": []byte("fits")}); err != nil {
		t.Fatalf("small write after rejection: %v", err)
	}
}

func TestFileDatabasePersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.db")

	s, err := Open(ctx, Config{Path: path})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Set(ctx, map[string][]byte{"k": []byte("v")}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	_ = s.Close(ctx)

	s2 := openTestStore(t, Config{Path: path})
	got, err := s2.Get(ctx, []string{"k"})
	if err != nil || string(got["k"]) != "v" {
		t.Fatalf("reopen Get=%q err=%v", got, err)
	}
}
