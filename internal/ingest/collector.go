// Package ingest groups per-source observations arriving on the ingest
// endpoint, merges them per address and hands the merged batch downstream.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"
	"github.com/sirupsen/logrus"

	"solana-token-feed/internal/domain"
	"solana-token-feed/internal/fetcher"
	"solana-token-feed/internal/intake"
	"solana-token-feed/internal/logging"
	"solana-token-feed/internal/observability"
	"solana-token-feed/internal/reconcile"
)

// DefaultWindow is the grouping delay of the ingest buffer.
const DefaultWindow = 150 * time.Millisecond

const windowName = "ingest"

var (
	// ErrMissingSource is returned when a batch names no source.
	ErrMissingSource = errors.New("ingest batch without source")
)

// CandidateSink receives merged candidates. The aggregator and the Redis bus
// both implement it.
type CandidateSink interface {
	Submit(ctx context.Context, candidates []domain.TokenCandidate) error
}

// Options configures a Collector.
type Options struct {
	// Sink receives each merged batch. Required.
	Sink CandidateSink

	// Window defaults to DefaultWindow.
	Window time.Duration

	// Priorities defaults to reconcile.DefaultPriorities.
	Priorities *reconcile.Priorities

	// RequireSolanaAddress drops observations whose address is not a
	// base58-encoded 32-byte key.
	RequireSolanaAddress bool

	Clock     clock.Clock
	Scheduler intake.Scheduler
	Logger    logrus.FieldLogger
}

// sources holds the latest observation per source for one address.
type sources map[string]domain.Observation

// Collector buffers observations by address then source.
type Collector struct {
	sink        CandidateSink
	priorities  reconcile.Priorities
	requireAddr bool
	clock       clock.Clock
	logger      logrus.FieldLogger

	window *intake.Window[sources]
}

// NewCollector creates a Collector. Call Start before Ingest.
func NewCollector(opts Options) (*Collector, error) {
	if opts.Sink == nil {
		return nil, errors.New("ingest: sink is required")
	}

	c := &Collector{
		sink:        opts.Sink,
		priorities:  reconcile.DefaultPriorities,
		requireAddr: opts.RequireSolanaAddress,
		clock:       opts.Clock,
		logger:      logging.Component(opts.Logger, "ingest"),
	}
	if opts.Priorities != nil {
		c.priorities = *opts.Priorities
	}
	if c.clock == nil {
		c.clock = clock.WallClock
	}

	window := opts.Window
	if window <= 0 {
		window = DefaultWindow
	}
	sched := opts.Scheduler
	if sched == nil {
		sched = intake.NewClockScheduler(c.clock)
	}

	c.window = intake.NewWindow(intake.Options[sources]{
		Duration:  window,
		Merge:     mergeSources,
		Flush:     c.flush,
		Scheduler: sched,
	})
	return c, nil
}

// Start begins accepting observations.
func (c *Collector) Start() error {
	return c.window.Start()
}

// Stop flushes buffered observations and rejects further batches.
func (c *Collector) Stop() {
	c.window.Stop()
}

// Pending returns the number of buffered addresses.
func (c *Collector) Pending() int {
	return c.window.Len()
}

// Ingest buffers one source's observations. It returns the number of
// observations accepted; the rest are skipped with a warning.
func (c *Collector) Ingest(_ context.Context, source string, observations []domain.Observation) (int, error) {
	source = domain.CanonicalSource(source)
	if source == "" {
		return 0, ErrMissingSource
	}

	accepted := 0
	for _, o := range observations {
		o.Address = domain.NormalizeAddress(o.Address)
		if o.Address == "" {
			observability.RecordMalformed("missing_address")
			c.logger.WithField("source", source).Warn("skipping observation without address")
			continue
		}
		if c.requireAddr && !domain.IsSolanaAddress(o.Address) {
			observability.RecordMalformed("invalid_address")
			c.logger.WithFields(logrus.Fields{
				"source":  source,
				"address": o.Address,
			}).Warn("skipping observation with invalid address")
			continue
		}
		o.Source = source
		if o.FetchedAt == 0 {
			o.FetchedAt = c.clock.Now().UnixMilli()
		}

		if err := c.window.Add(o.Address, sources{source: o}); err != nil {
			return accepted, fmt.Errorf("buffer observation: %w", err)
		}
		accepted++
	}
	observability.UpdateBufferSize(windowName, c.window.Len())
	return accepted, nil
}

// mergeSources keeps the later observation per source.
func mergeSources(prev, next sources) sources {
	out := make(sources, len(prev)+len(next))
	for k, v := range prev {
		out[k] = v
	}
	for k, v := range next {
		out[k] = v
	}
	return out
}

func (c *Collector) flush(ctx context.Context, batch []intake.Entry[sources]) {
	observability.RecordWindowFlushed(windowName, len(batch))
	observability.UpdateBufferSize(windowName, c.window.Len())

	candidates := make([]domain.TokenCandidate, 0, len(batch))
	for _, e := range batch {
		candidates = append(candidates, reconcile.MergeSources(e.Address, e.Value, c.priorities))
	}

	log := c.logger.WithFields(logrus.Fields{
		"batch_id": uuid.NewString(),
		"tokens":   len(candidates),
	})
	if err := c.sink.Submit(ctx, candidates); err != nil {
		observability.RecordProcessingError("ingest")
		log.WithError(err).Error("merged batch not delivered")
		return
	}
	log.Debug("merged batch delivered")
}

var _ fetcher.Sink = (*Collector)(nil)
