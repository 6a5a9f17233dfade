package cli

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/unkn0wn-root/quotacache"
	"github.com/unkn0wn-root/quotacache/codec"
	"github.com/unkn0wn-root/quotacache/store/memory"
)

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("quotacache", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, []string{"ls"}, map[string]string{})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Backend != "sqlite" {
		t.Fatalf("expected sqlite backend, got %q", cfg.Backend)
	}
	if cfg.SQLitePath != filepath.Join("data", "quotacache.db") {
		t.Fatalf("expected default sqlite path, got %q", cfg.SQLitePath)
	}
	if cfg.Timeout != 30*time.Second {
		t.Fatalf("expected 30s timeout, got %v", cfg.Timeout)
	}
	if len(cfg.Args) != 1 || cfg.Args[0] != "ls" {
		t.Fatalf("expected command args, got %v", cfg.Args)
	}
}

func TestParseConfigOverrides(t *testing.T) {
	fs := flag.NewFlagSet("quotacache", flag.ContinueOnError)
	environ := map[string]string{
		"QUOTACACHE_BACKEND":        "redis",
		"QUOTACACHE_REDIS_PREFIX":   "env:",
		"QUOTACACHE_RETRY_BUDGET":   "6",
		"QUOTACACHE_TRACKED_PREFIX": "jisho_cache_",
	}
	args := []string{"-redis-prefix", "flag:", "-retry-budget", "2", "get", "jisho_cache_猫"}
	cfg, err := ParseConfig(fs, args, environ)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Backend != "redis" {
		t.Fatalf("expected env backend, got %q", cfg.Backend)
	}
	if cfg.RedisPrefix != "flag:" {
		t.Fatalf("expected flag override for redis prefix, got %q", cfg.RedisPrefix)
	}
	if cfg.RetryBudget != 2 {
		t.Fatalf("expected flag override for retry budget, got %d", cfg.RetryBudget)
	}
	if cfg.TrackedPrefix != "jisho_cache_" {
		t.Fatalf("expected env tracked prefix, got %q", cfg.TrackedPrefix)
	}
}

func TestParseConfigBadEnv(t *testing.T) {
	fs := flag.NewFlagSet("quotacache", flag.ContinueOnError)
	if _, err := ParseConfig(fs, nil, map[string]string{"QUOTACACHE_TIMEOUT": "soon"}); err == nil {
		t.Fatalf("expected error for bad duration")
	}
}

func run(t *testing.T, cfg Config, args ...string) (string, error) {
	t.Helper()
	cfg.Args = args
	var out, errOut bytes.Buffer
	err := Run(context.Background(), cfg, &out, &errOut)
	return out.String(), err
}

func TestRunAgainstSQLite(t *testing.T) {
	cfg := Config{
		Backend:    "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "nested", "cache.db"),
		LogLevel:   "error",
	}

	if _, err := run(t, cfg, "put", "cache:a", "alpha"); err != nil {
		t.Fatalf("put a: %v", err)
	}
	if _, err := run(t, cfg, "put", "cache:b", "beta"); err != nil {
		t.Fatalf("put b: %v", err)
	}
	if _, err := run(t, cfg, "put", "pref:x", "1"); err != nil {
		t.Fatalf("put pref: %v", err)
	}

	out, err := run(t, cfg, "get", "cache:a")
	if err != nil || out != "alpha\n" {
		t.Fatalf("get: %q err=%v", out, err)
	}
	out, err = run(t, cfg, "ls")
	if err != nil || out != "0\tcache:b\n1\tcache:a\n" {
		t.Fatalf("ls: %q err=%v", out, err)
	}
	out, err = run(t, cfg, "trim")
	if err != nil || out != "evicted cache:a\n" {
		t.Fatalf("trim: %q err=%v", out, err)
	}
	if _, err := run(t, cfg, "get", "cache:a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get after trim: %v", err)
	}
	if _, err := run(t, cfg, "clear"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	out, err = run(t, cfg, "trim")
	if err != nil || out != "cache is empty\n" {
		t.Fatalf("trim empty: %q err=%v", out, err)
	}
	out, err = run(t, cfg, "get", "pref:x")
	if err != nil || out != "1\n" {
		t.Fatalf("untracked survived clear: %q err=%v", out, err)
	}
}

func TestDispatch(t *testing.T) {
	ctx := context.Background()
	cc, err := quotacache.New[string](quotacache.Options[string]{
		Store: memory.New(memory.Config{}),
		Codec: codec.String{},
	})
	if err != nil {
		t.Fatal(err)
	}
	defer cc.Close(ctx)

	var out bytes.Buffer
	if err := dispatch(ctx, cc, "put", []string{"cache:k", strings.Repeat("z", 2048)}, &out); err != nil {
		t.Fatalf("put: %v", err)
	}
	out.Reset()
	if err := dispatch(ctx, cc, "size", nil, &out); err != nil || out.String() != "2.00 KB\n" {
		t.Fatalf("size: %q err=%v", out.String(), err)
	}
	out.Reset()
	if err := dispatch(ctx, cc, "tidy", nil, &out); err != nil || !strings.Contains(out.String(), "orphans removed: 0") {
		t.Fatalf("tidy: %q err=%v", out.String(), err)
	}
	if err := dispatch(ctx, cc, "rm", []string{"cache:k"}, &out); err != nil {
		t.Fatalf("rm: %v", err)
	}

	cases := []struct {
		cmd  string
		args []string
	}{
		{"get", nil},
		{"put", []string{"only-key"}},
		{"ls", []string{"a", "b"}},
		{"frobnicate", nil},
	}
	for _, tc := range cases {
		if err := dispatch(ctx, cc, tc.cmd, tc.args, &out); err == nil {
			t.Fatalf("%s %v: expected error", tc.cmd, tc.args)
		}
	}
}

func TestRunRejectsBadInput(t *testing.T) {
	if _, err := run(t, Config{Backend: "memory", LogLevel: "info"}); err == nil {
		t.Fatalf("expected error without a command")
	}
	if _, err := run(t, Config{Backend: "floppy", LogLevel: "info"}, "ls"); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
	if _, err := run(t, Config{Backend: "memory", LogLevel: "loud"}, "ls"); err == nil {
		t.Fatalf("expected error for bad log level")
	}
}
