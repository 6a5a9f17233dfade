// usage:
//
// import (
//
//	"log/slog"
//
//	"github.com/unkn0wn-root/quotacache"
//	"github.com/unkn0wn-root/quotacache/codec"
//	"github.com/unkn0wn-root/quotacache/hooks/async"
//	"github.com/unkn0wn-root/quotacache/hooks/slog"
//	"github.com/unkn0wn-root/quotacache/store/sqlite"
//
// )
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{
//	    EvictedEvery:  10, // sample logs: ~every 10th eviction
//	    RejectedEvery: 1,  // log every capacity rejection
//	})
//
// hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
// defer hooks.Close()
//
//	cache, _ := quotacache.New[string](quotacache.Options[string]{
//	    Store: st,
//	    Codec: codec.String{},
//	    Hooks: hooks, // or `raw` if you don’t want async
//	})
package asynchook

import (
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/quotacache"
)

// Hooks forwards events to inner on its own workers so the cache's write queue
// never waits on a slow hook. Events are dropped when the buffer is full.
type Hooks struct {
	inner   quotacache.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
}

var _ quotacache.Hooks = (*Hooks)(nil)

func New(inner quotacache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close delivers buffered events and stops the workers. Later events are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		close(h.q)
		h.mu.Unlock()
		h.wg.Wait()
	})
}

// Dropped reports how many events were discarded.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		h.dropped.Add(1)
		return
	}
	select {
	case h.q <- f:
	default: // drop
		h.dropped.Add(1)
	}
}

func (h *Hooks) Evicted(k string, found bool) { h.try(func() { h.inner.Evicted(k, found) }) }
func (h *Hooks) CacheEmpty()                  { h.try(func() { h.inner.CacheEmpty() }) }
func (h *Hooks) WriteRejected(k string, remaining int) {
	h.try(func() { h.inner.WriteRejected(k, remaining) })
}
func (h *Hooks) WriteFailed(k string, err error) { h.try(func() { h.inner.WriteFailed(k, err) }) }
func (h *Hooks) Tidied(r quotacache.TidyReport) { h.try(func() { h.inner.Tidied(r) }) }
func (h *Hooks) OperationDropped(op string, err error) {
	h.try(func() { h.inner.OperationDropped(op, err) })
}
