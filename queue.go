package quotacache

import (
	"context"
	"sync"
)

// Status is how a queued operation ended.
type Status uint8

const (
	StatusOK      Status = iota
	StatusFailed         // the operation returned an error
	StatusDropped        // the operation panicked; logged and dropped
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusFailed:
		return "failed"
	case StatusDropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// Outcome is delivered once per queued operation.
type Outcome struct {
	Status Status
	Err    error
}

type task struct {
	name string
	run  func(ctx context.Context) error
	done chan Outcome
}

// writeQueue runs every mutation one at a time in submission order on a single
// worker. Submission never blocks; the queue is unbounded.
type writeQueue struct {
	log   Logger
	hooks Hooks

	mu      sync.Mutex
	cond    *sync.Cond
	pending []*task
	closed  bool

	// worker context; cancelled only when Close gives up waiting
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newWriteQueue(log Logger, hooks Hooks) *writeQueue {
	ctx, cancel := context.WithCancel(context.Background())
	q := &writeQueue{log: log, hooks: hooks, ctx: ctx, cancel: cancel}
	q.cond = sync.NewCond(&q.mu)
	q.wg.Add(1)
	go q.loop()
	return q
}

// enqueue appends an operation. The returned channel receives exactly one Outcome.
func (q *writeQueue) enqueue(name string, run func(ctx context.Context) error) <-chan Outcome {
	t := &task{name: name, run: run, done: make(chan Outcome, 1)}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		t.done <- Outcome{Status: StatusFailed, Err: ErrClosed}
		return t.done
	}
	q.pending = append(q.pending, t)
	q.cond.Signal()
	q.mu.Unlock()
	return t.done
}

func (q *writeQueue) loop() {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		for len(q.pending) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.pending) == 0 {
			// closed and drained
			q.mu.Unlock()
			return
		}
		t := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		q.mu.Unlock()

		t.done <- q.exec(t)
	}
}

func (q *writeQueue) exec(t *task) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			err := &DroppedError{Op: t.name, Value: r}
			q.log.Error("queued operation panicked; dropped", Fields{"op": t.name, "panic": r})
			q.hooks.OperationDropped(t.name, err)
			out = Outcome{Status: StatusDropped, Err: err}
		}
	}()
	if err := t.run(q.ctx); err != nil {
		return Outcome{Status: StatusFailed, Err: err}
	}
	return Outcome{Status: StatusOK}
}

// close stops accepting work and waits for queued operations to drain. If ctx ends
// first, in-flight store calls are cancelled and the remaining tasks fail fast.
func (q *writeQueue) close(ctx context.Context) error {
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		q.cancel()
		return nil
	case <-ctx.Done():
		q.cancel()
		<-drained
		return ctx.Err()
	}
}

// wait blocks for an outcome; ctx only bounds the wait, the operation still runs.
func wait(ctx context.Context, done <-chan Outcome) Outcome {
	select {
	case out := <-done:
		return out
	case <-ctx.Done():
		return Outcome{Status: StatusFailed, Err: ctx.Err()}
	}
}
