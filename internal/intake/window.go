package intake

import (
	"context"
	"sync"
	"time"
)

// Entry is one address and its coalesced value in a flushed batch.
type Entry[T any] struct {
	Address string
	Value   T
}

// MergeFunc folds next into prev for the same address.
type MergeFunc[T any] func(prev, next T) T

// FlushFunc receives a detached batch. It runs outside the window lock and
// may block; arrivals during the call are buffered for the next window.
type FlushFunc[T any] func(ctx context.Context, batch []Entry[T])

// Options configures a Window.
type Options[T any] struct {
	// Duration is the delay between the first arrival into an empty window
	// and its flush.
	Duration time.Duration

	// Merge combines arrivals for an address already in the buffer.
	// If nil, the later value replaces the earlier one.
	Merge MergeFunc[T]

	// Flush is called with each non-empty batch. Required.
	Flush FlushFunc[T]

	// Scheduler arms the flush timer. If nil, a wall-clock scheduler is used.
	Scheduler Scheduler
}

type windowState int

const (
	stateIdle windowState = iota
	stateRunning
	stateStopped
)

// Window buffers values per address and flushes them as one batch a fixed
// duration after the first arrival into an empty buffer.
type Window[T any] struct {
	duration time.Duration
	merge    MergeFunc[T]
	flush    FlushFunc[T]
	sched    Scheduler

	mu    sync.Mutex
	state windowState
	buf   map[string]T
	order []string

	// flushMu serialises flushes so windows are processed one at a time.
	flushMu sync.Mutex
}

// NewWindow creates a window. It accepts nothing until Start is called.
func NewWindow[T any](opts Options[T]) *Window[T] {
	merge := opts.Merge
	if merge == nil {
		merge = func(_, next T) T { return next }
	}
	sched := opts.Scheduler
	if sched == nil {
		sched = NewClockScheduler(nil)
	}
	return &Window[T]{
		duration: opts.Duration,
		merge:    merge,
		flush:    opts.Flush,
		sched:    sched,
		buf:      make(map[string]T),
	}
}

// Start enables Add.
func (w *Window[T]) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch w.state {
	case stateStopped:
		return ErrStopped
	case stateRunning:
		return nil
	}
	w.state = stateRunning
	return nil
}

// Add merges v into the buffered value for address. The first arrival into
// an empty buffer arms the flush timer.
func (w *Window[T]) Add(address string, v T) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch w.state {
	case stateIdle:
		return ErrNotStarted
	case stateStopped:
		return ErrStopped
	}

	if prev, ok := w.buf[address]; ok {
		w.buf[address] = w.merge(prev, v)
		return nil
	}

	w.buf[address] = v
	w.order = append(w.order, address)
	if len(w.order) == 1 {
		w.sched.Arm(w.duration, w.fire)
	}
	return nil
}

// Len returns the number of buffered addresses.
func (w *Window[T]) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.order)
}

// Stop cancels the pending timer and flushes the buffer synchronously.
// It waits for an in-flight flush to finish first.
func (w *Window[T]) Stop() {
	w.mu.Lock()
	prev := w.state
	w.state = stateStopped
	w.sched.Cancel()
	w.mu.Unlock()

	if prev == stateRunning {
		w.fire()
	}
}

func (w *Window[T]) fire() {
	w.flushMu.Lock()
	defer w.flushMu.Unlock()

	batch := w.detach()
	if len(batch) == 0 {
		return
	}
	w.flush(context.Background(), batch)
}

// detach swaps in an empty buffer and disarms the timer.
func (w *Window[T]) detach() []Entry[T] {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.sched.Cancel()
	if len(w.order) == 0 {
		return nil
	}

	batch := make([]Entry[T], 0, len(w.order))
	for _, addr := range w.order {
		batch = append(batch, Entry[T]{Address: addr, Value: w.buf[addr]})
	}
	w.buf = make(map[string]T)
	w.order = nil
	return batch
}
