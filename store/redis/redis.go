package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/quotacache/store"
)

var ErrNilClient = errors.New("redis store: nil client")

// Redis stores entries as plain string keys under an optional prefix. The quota is
// the server's maxmemory: with a noeviction policy Redis answers writes with an
// OOM error, which is reported as store.ErrCapacityExceeded.
type Redis struct {
	rdb         goredis.UniversalClient
	prefix      string
	closeClient bool
	scanCount   int64
}

var _ store.Store = (*Redis)(nil)

type Config struct {
	Client      goredis.UniversalClient
	Prefix      string // prepended to every key; e.g. "app:prod:"
	CloseClient bool   // set true only if this store exclusively owns the client
	ScanCount   int64  // SCAN COUNT hint; 0 => 256
}

func New(cfg Config) (*Redis, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	n := cfg.ScanCount
	if n <= 0 {
		n = 256
	}
	return &Redis{rdb: cfg.Client, prefix: cfg.Prefix, closeClient: cfg.CloseClient, scanCount: n}, nil
}

func (p *Redis) key(k string) string { return p.prefix + k }

func (p *Redis) Get(ctx context.Context, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = p.key(k)
	}
	vals, err := p.rdb.MGet(ctx, full...).Result()
	if err != nil {
		return nil, err // transport/server error
	}
	for i, v := range vals {
		switch vv := v.(type) {
		case nil:
			// miss
		case string:
			out[keys[i]] = []byte(vv)
		case []byte:
			out[keys[i]] = vv
		default:
			return nil, fmt.Errorf("redis store: unexpected MGET reply %T at %s", v, keys[i])
		}
	}
	return out, nil
}

func (p *Redis) Keys(ctx context.Context, prefix string) ([]string, error) {
	var out []string
	iter := p.rdb.Scan(ctx, 0, escapeGlob(p.prefix+prefix)+"*", p.scanCount).Iterator()
	for iter.Next(ctx) {
		out = append(out, strings.TrimPrefix(iter.Val(), p.prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

// Set writes every item inside MULTI/EXEC so a rejected write leaves nothing behind.
func (p *Redis) Set(ctx context.Context, items map[string][]byte) error {
	if len(items) == 0 {
		return nil
	}
	_, err := p.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		for k, v := range items {
			pipe.Set(ctx, p.key(k), v, 0)
		}
		return nil
	})
	if err != nil {
		if isOOM(err) {
			return fmt.Errorf("%w: %v", store.ErrCapacityExceeded, err)
		}
		return err
	}
	return nil
}

func (p *Redis) Remove(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = p.key(k)
	}
	return p.rdb.Del(ctx, full...).Err()
}

// Close releases the underlying redis client only when this store owns it.
// Safe to call multiple times; repeated calls become no-ops.
func (p *Redis) Close(context.Context) error {
	if p.closeClient {
		if err := p.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}
	return nil
}

// isOOM matches the server's "OOM command not allowed when used memory > 'maxmemory'"
// reply. Inside MULTI the same condition surfaces as EXECABORT.
func isOOM(err error) bool {
	var rerr goredis.Error
	if !errors.As(err, &rerr) {
		return false
	}
	msg := rerr.Error()
	return strings.HasPrefix(msg, "OOM ") ||
		(strings.HasPrefix(msg, "EXECABORT") && strings.Contains(msg, "OOM"))
}

func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
