// Package aggregator turns buffered candidates into stored snapshots and
// change messages. Each flushed window runs read, merge, diff, filter,
// write and publish once per address.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/juju/clock"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"solana-token-feed/internal/domain"
	"solana-token-feed/internal/intake"
	"solana-token-feed/internal/logging"
	"solana-token-feed/internal/observability"
	"solana-token-feed/internal/pubsub"
	"solana-token-feed/internal/reconcile"
	"solana-token-feed/internal/storage"
)

// Mode selects how arrivals within one window are applied.
type Mode string

const (
	// ModePerWindow coalesces every arrival for an address and applies the
	// result once per window.
	ModePerWindow Mode = "per_window"
	// ModePerArrival keeps arrivals in order and applies each one separately
	// during the flush.
	ModePerArrival Mode = "per_arrival"
)

// ParseMode returns the Mode named s. An empty s is ModePerWindow.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModePerWindow:
		return ModePerWindow, nil
	case ModePerArrival:
		return ModePerArrival, nil
	}
	return "", fmt.Errorf("unknown aggregator mode %q", s)
}

// Default settings.
const (
	DefaultWindow      = 200 * time.Millisecond
	DefaultConcurrency = 4
)

const windowName = "aggregator"

// Options configures an Aggregator.
type Options struct {
	// Store holds canonical snapshots. Required.
	Store storage.SnapshotStore

	// Publisher receives one change per address per window with a material
	// delta. If nil, changes are dropped.
	Publisher pubsub.ChangePublisher

	// Clock supplies the write timestamp and, when Scheduler is nil, the
	// flush timer. If nil, the wall clock is used.
	Clock clock.Clock

	// Scheduler overrides the flush timer.
	Scheduler intake.Scheduler

	// Window is the coalescing delay (default 200ms).
	Window time.Duration

	// Mode defaults to ModePerWindow.
	Mode Mode

	// Thresholds defaults to reconcile.DefaultThresholds().
	Thresholds *reconcile.Thresholds

	// Priorities is used when decoding per-source messages
	// (default reconcile.DefaultPriorities).
	Priorities *reconcile.Priorities

	// Concurrency bounds the addresses processed in parallel within one
	// window (default 4).
	Concurrency int

	Logger logrus.FieldLogger
}

// pending is the buffered state for one address.
type pending struct {
	merged   domain.TokenCandidate
	arrivals []domain.TokenCandidate
}

// Aggregator buffers candidates per address and reconciles them against
// the store when the window flushes.
type Aggregator struct {
	store       storage.SnapshotStore
	publisher   pubsub.ChangePublisher
	clock       clock.Clock
	mode        Mode
	thresholds  reconcile.Thresholds
	priorities  reconcile.Priorities
	concurrency int
	logger      logrus.FieldLogger

	window *intake.Window[pending]
}

// New creates an Aggregator. Call Start before Submit.
func New(opts Options) (*Aggregator, error) {
	if opts.Store == nil {
		return nil, errors.New("aggregator: store is required")
	}
	mode, err := ParseMode(string(opts.Mode))
	if err != nil {
		return nil, err
	}

	a := &Aggregator{
		store:       opts.Store,
		publisher:   opts.Publisher,
		clock:       opts.Clock,
		mode:        mode,
		thresholds:  reconcile.DefaultThresholds(),
		priorities:  reconcile.DefaultPriorities,
		concurrency: opts.Concurrency,
		logger:      logging.Component(opts.Logger, "aggregator"),
	}
	if a.publisher == nil {
		a.publisher = pubsub.Discard
	}
	if a.clock == nil {
		a.clock = clock.WallClock
	}
	if opts.Thresholds != nil {
		a.thresholds = *opts.Thresholds
	}
	if opts.Priorities != nil {
		a.priorities = *opts.Priorities
	}
	if a.concurrency <= 0 {
		a.concurrency = DefaultConcurrency
	}

	window := opts.Window
	if window <= 0 {
		window = DefaultWindow
	}
	sched := opts.Scheduler
	if sched == nil {
		sched = intake.NewClockScheduler(a.clock)
	}

	a.window = intake.NewWindow(intake.Options[pending]{
		Duration:  window,
		Merge:     a.merge,
		Flush:     a.flush,
		Scheduler: sched,
	})
	return a, nil
}

// Start begins accepting candidates.
func (a *Aggregator) Start() error {
	return a.window.Start()
}

// Stop flushes buffered candidates and rejects further submissions.
func (a *Aggregator) Stop() {
	a.window.Stop()
}

// Pending returns the number of buffered addresses.
func (a *Aggregator) Pending() int {
	return a.window.Len()
}

// Submit buffers candidates for the next flush. Candidates without an
// address are skipped with a warning. Submit never waits for the flush.
func (a *Aggregator) Submit(_ context.Context, candidates []domain.TokenCandidate) error {
	for _, c := range candidates {
		c.Address = domain.NormalizeAddress(c.Address)
		if c.Address == "" {
			a.logger.Warn("skipping candidate without address")
			observability.RecordMalformed("missing_address")
			continue
		}

		p := pending{merged: c}
		if a.mode == ModePerArrival {
			p.arrivals = []domain.TokenCandidate{c}
		}
		if err := a.window.Add(c.Address, p); err != nil {
			return fmt.Errorf("buffer candidate: %w", err)
		}
	}
	observability.UpdateBufferSize(windowName, a.window.Len())
	return nil
}

func (a *Aggregator) merge(prev, next pending) pending {
	out := pending{merged: reconcile.MergeCandidates(prev.merged, next.merged)}
	if a.mode == ModePerArrival {
		out.arrivals = append(prev.arrivals, next.arrivals...)
	}
	return out
}

// flush processes one detached window. Addresses are independent: a failure
// for one is logged and counted and the rest proceed.
func (a *Aggregator) flush(ctx context.Context, batch []intake.Entry[pending]) {
	start := time.Now()
	observability.RecordWindowFlushed(windowName, len(batch))
	observability.UpdateBufferSize(windowName, a.window.Len())

	var failed, published atomic.Int64

	g := new(errgroup.Group)
	g.SetLimit(a.concurrency)
	for _, entry := range batch {
		g.Go(func() error {
			candidates := []domain.TokenCandidate{entry.Value.merged}
			if a.mode == ModePerArrival {
				candidates = entry.Value.arrivals
			}
			for _, c := range candidates {
				ok, err := a.process(ctx, c)
				if err != nil {
					failed.Add(1)
					a.logFailure(entry.Address, err)
					continue
				}
				if ok {
					published.Add(1)
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	elapsed := time.Since(start)
	observability.RecordFlush(elapsed.Seconds(), failed.Load() > 0, time.Now().Unix())
	a.logger.WithFields(logrus.Fields{
		"addresses": len(batch),
		"published": published.Load(),
		"failed":    failed.Load(),
		"duration":  elapsed.String(),
	}).Debug("window flushed")
}

// stageError records where per-address processing failed.
type stageError struct {
	stage string
	err   error
}

func (e *stageError) Error() string { return e.stage + ": " + e.err.Error() }
func (e *stageError) Unwrap() error { return e.err }

// process runs one read-merge-diff-filter-write-publish cycle. It reports
// whether a change was published.
func (a *Aggregator) process(ctx context.Context, c domain.TokenCandidate) (bool, error) {
	existing, err := a.store.Get(ctx, c.Address)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		existing = nil
	case err != nil:
		return false, &stageError{stage: "read", err: err}
	}

	next := reconcile.MergeState(existing, c, a.clock.Now())
	delta := reconcile.Filter(reconcile.Diff(existing, next), existing, a.thresholds)
	observability.RecordProcessed()

	if delta.IsEmpty() {
		observability.RecordSuppressed()
		return false, nil
	}

	if err := a.store.Put(ctx, &next); err != nil {
		return false, &stageError{stage: "write", err: err}
	}
	if err := a.publisher.Publish(ctx, domain.Change{Address: c.Address, Diff: delta}); err != nil {
		return false, &stageError{stage: "publish", err: err}
	}
	observability.RecordPublished()
	return true, nil
}

func (a *Aggregator) logFailure(address string, err error) {
	stage := "unknown"
	var se *stageError
	if errors.As(err, &se) {
		stage = se.stage
	}
	observability.RecordProcessingError(stage)
	a.logger.WithFields(logrus.Fields{
		"address": address,
		"stage":   stage,
	}).WithError(err).Error("processing failed")
}
