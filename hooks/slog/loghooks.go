package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/quotacache"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	EvictedEvery  uint64
	RejectedEvery uint64
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	evictedCtr  atomic.Uint64
	rejectedCtr atomic.Uint64
}

var _ quotacache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) Evicted(key string, found bool) {
	if h.l == nil || !sample(h.opts.EvictedEvery, &h.evictedCtr) {
		return
	}
	h.l.Debug("quotacache.evicted",
		"key", h.redact(key),
		"found", found)
}

func (h *Hooks) CacheEmpty() {
	if h.l == nil {
		return
	}
	h.l.Warn("quotacache.cache_empty")
}

func (h *Hooks) WriteRejected(key string, remaining int) {
	if h.l == nil || !sample(h.opts.RejectedEvery, &h.rejectedCtr) {
		return
	}
	h.l.Info("quotacache.write_rejected",
		"key", h.redact(key),
		"remaining", remaining)
}

func (h *Hooks) WriteFailed(key string, err error) {
	if h.l == nil {
		return
	}
	h.l.Error("quotacache.write_failed",
		"key", h.redact(key),
		"err", err)
}

func (h *Hooks) Tidied(r quotacache.TidyReport) {
	if h.l == nil {
		return
	}
	h.l.Info("quotacache.tidied",
		"orphans_removed", r.OrphansRemoved,
		"index_dropped", r.IndexDropped,
		"index_rewritten", r.IndexRewritten)
}

func (h *Hooks) OperationDropped(op string, err error) {
	if h.l == nil {
		return
	}
	h.l.Error("quotacache.operation_dropped",
		"op", op,
		"err", err)
}
