// Package cli implements the quotacache command: inspect and maintain a cache kept
// in a persistent store.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/unkn0wn-root/quotacache"
	"github.com/unkn0wn-root/quotacache/codec"
	zaplog "github.com/unkn0wn-root/quotacache/log/zap"
	"github.com/unkn0wn-root/quotacache/store"
	"github.com/unkn0wn-root/quotacache/store/memory"
	"github.com/unkn0wn-root/quotacache/store/redis"
	"github.com/unkn0wn-root/quotacache/store/sqlite"
)

// ErrNotFound is returned by the get command on a miss.
var ErrNotFound = errors.New("key not found")

const usage = `usage: quotacache [flags] <command> [args]

commands:
  get KEY          print a cached value
  put KEY VALUE    cache a value, evicting older tracked entries if the store is full
  rm KEY           remove a key
  ls [PREFIX]      list tracked keys with their recency position (-1 = not indexed)
  size             estimated size of tracked entries in KB
  tidy             reconcile the recency index with the store
  trim             evict the least recently used tracked entry
  clear            remove every tracked entry and the index
`

// Config holds command configuration.
type Config struct {
	Backend       string
	SQLitePath    string
	SQLiteMaxPage int
	RedisAddr     string
	RedisPrefix   string
	TrackedPrefix string
	RetryBudget   int
	Timeout       time.Duration
	LogLevel      string
	Args          []string
}

type envConfig struct {
	Backend       string        `env:"QUOTACACHE_BACKEND" envDefault:"sqlite"`
	SQLitePath    string        `env:"QUOTACACHE_SQLITE_PATH"`
	SQLiteMaxPage int           `env:"QUOTACACHE_SQLITE_MAX_PAGES"`
	RedisAddr     string        `env:"QUOTACACHE_REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPrefix   string        `env:"QUOTACACHE_REDIS_PREFIX"`
	TrackedPrefix string        `env:"QUOTACACHE_TRACKED_PREFIX"`
	RetryBudget   int           `env:"QUOTACACHE_RETRY_BUDGET"`
	Timeout       time.Duration `env:"QUOTACACHE_TIMEOUT" envDefault:"30s"`
	LogLevel      string        `env:"QUOTACACHE_LOG_LEVEL" envDefault:"warn"`
}

// ParseConfig reads the environment, then flags. A nil environ means the process
// environment.
func ParseConfig(fs *flag.FlagSet, args []string, environ map[string]string) (Config, error) {
	var envCfg envConfig
	if err := env.ParseWithOptions(&envCfg, env.Options{Environment: environ}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	cfg := Config{
		Backend:       envCfg.Backend,
		SQLitePath:    envCfg.SQLitePath,
		SQLiteMaxPage: envCfg.SQLiteMaxPage,
		RedisAddr:     envCfg.RedisAddr,
		RedisPrefix:   envCfg.RedisPrefix,
		TrackedPrefix: envCfg.TrackedPrefix,
		RetryBudget:   envCfg.RetryBudget,
		Timeout:       envCfg.Timeout,
		LogLevel:      envCfg.LogLevel,
	}
	if cfg.SQLitePath == "" {
		cfg.SQLitePath = filepath.Join("data", "quotacache.db")
	}

	fs.StringVar(&cfg.Backend, "backend", cfg.Backend, "store backend (sqlite|redis|memory)")
	fs.StringVar(&cfg.SQLitePath, "sqlite-path", cfg.SQLitePath, "path to sqlite database (default: QUOTACACHE_SQLITE_PATH or data/quotacache.db)")
	fs.IntVar(&cfg.SQLiteMaxPage, "sqlite-max-pages", cfg.SQLiteMaxPage, "cap the sqlite database at this many pages (0 = no cap)")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", cfg.RedisAddr, "redis address")
	fs.StringVar(&cfg.RedisPrefix, "redis-prefix", cfg.RedisPrefix, "prefix for every redis key")
	fs.StringVar(&cfg.TrackedPrefix, "tracked-prefix", cfg.TrackedPrefix, "prefix of tracked (evictable) keys (default: cache:)")
	fs.IntVar(&cfg.RetryBudget, "retry-budget", cfg.RetryBudget, "evict-and-retry rounds per write (0 = default)")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "overall timeout")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug|info|warn|error)")
	fs.Usage = func() {
		fmt.Fprint(fs.Output(), usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	cfg.Args = fs.Args()
	return cfg, nil
}

// Run executes one command.
func Run(ctx context.Context, cfg Config, out io.Writer, errOut io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	if errOut == nil {
		errOut = io.Discard
	}
	if len(cfg.Args) == 0 {
		return errors.New("missing command; run with -h for usage")
	}

	logger, err := newLogger(cfg.LogLevel, errOut)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	cc, err := quotacache.New[string](quotacache.Options[string]{
		Store:         st,
		Codec:         codec.String{},
		TrackedPrefix: cfg.TrackedPrefix,
		RetryBudget:   cfg.RetryBudget,
		Logger:        zaplog.ZapLogger{L: logger},
	})
	if err != nil {
		_ = st.Close(ctx)
		return err
	}
	defer func() {
		if cerr := cc.Close(context.WithoutCancel(ctx)); cerr != nil {
			logger.Warn("close cache", zap.Error(cerr))
		}
	}()

	return dispatch(ctx, cc, cfg.Args[0], cfg.Args[1:], out)
}

func dispatch(ctx context.Context, cc quotacache.Cache[string], cmd string, args []string, out io.Writer) error {
	switch cmd {
	case "get":
		if err := nargs(cmd, args, 1); err != nil {
			return err
		}
		v, ok, err := cc.Get(ctx, args[0])
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %q", ErrNotFound, args[0])
		}
		fmt.Fprintln(out, v)
	case "put":
		if err := nargs(cmd, args, 2); err != nil {
			return err
		}
		return cc.Put(ctx, args[0], args[1])
	case "rm":
		if err := nargs(cmd, args, 1); err != nil {
			return err
		}
		return cc.Remove(ctx, args[0])
	case "ls":
		if len(args) > 1 {
			return fmt.Errorf("ls takes at most 1 argument, got %d", len(args))
		}
		prefix := ""
		if len(args) == 1 {
			prefix = args[0]
		}
		keys, err := cc.ListTracked(ctx, prefix)
		if err != nil {
			return err
		}
		for _, k := range keys {
			fmt.Fprintf(out, "%d\t%s\n", k.Position, k.Key)
		}
	case "size":
		kb, err := cc.EstimateTrackedSizeKB(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%.2f KB\n", kb)
	case "tidy":
		rep, err := cc.Tidy(ctx)
		fmt.Fprintf(out, "orphans removed: %d\nindex keys dropped: %d\nindex rewritten: %t\n",
			rep.OrphansRemoved, rep.IndexDropped, rep.IndexRewritten)
		return err
	case "trim":
		key, err := cc.Trim(ctx)
		if errors.Is(err, quotacache.ErrCacheEmpty) {
			fmt.Fprintln(out, "cache is empty")
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "evicted %s\n", key)
	case "clear":
		return cc.Clear(ctx)
	default:
		return fmt.Errorf("unknown command %q; run with -h for usage", cmd)
	}
	return nil
}

func nargs(cmd string, args []string, n int) error {
	if len(args) != n {
		return fmt.Errorf("%s takes %d argument(s), got %d", cmd, n, len(args))
	}
	return nil
}

func openStore(ctx context.Context, cfg Config) (store.Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "sqlite":
		if dir := filepath.Dir(cfg.SQLitePath); dir != "." && cfg.SQLitePath != ":memory:" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create storage dir: %w", err)
			}
		}
		st, err := sqlite.Open(ctx, sqlite.Config{Path: cfg.SQLitePath, MaxPageCount: cfg.SQLiteMaxPage})
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return st, nil
	case "redis":
		client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("connect redis %s: %w", cfg.RedisAddr, err)
		}
		st, err := redis.New(redis.Config{Client: client, Prefix: cfg.RedisPrefix, CloseClient: true})
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		return st, nil
	case "memory":
		return memory.New(memory.Config{}), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

func newLogger(level string, w io.Writer) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	enc := zap.NewDevelopmentEncoderConfig()
	enc.TimeKey = ""
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.AddSync(w), lvl)
	return zap.New(core), nil
}
