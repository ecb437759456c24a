package fetcher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/juju/clock"
	"github.com/sirupsen/logrus"

	"solana-token-feed/internal/logging"
	"solana-token-feed/internal/observability"
)

// Fetch run statuses reported to metrics.
const (
	StatusSuccess = "success"
	StatusFailed  = "error"
	StatusSkipped = "skipped"
)

// PeriodicOptions configures Periodic.
type PeriodicOptions struct {
	Interval time.Duration
	Clock    clock.Clock
	Logger   logrus.FieldLogger
}

// Periodic runs a fetcher on a fixed interval and hands the result to a
// sink. A tick is skipped while the previous run is still executing.
type Periodic struct {
	fetcher  Fetcher
	sink     Sink
	interval time.Duration
	clock    clock.Clock
	logger   logrus.FieldLogger

	running atomic.Bool
	wg      sync.WaitGroup
}

// NewPeriodic creates a runner for f.
func NewPeriodic(f Fetcher, sink Sink, opts PeriodicOptions) (*Periodic, error) {
	if f == nil || sink == nil {
		return nil, errors.New("periodic: fetcher and sink are required")
	}
	if opts.Interval <= 0 {
		return nil, errors.New("periodic: interval must be positive")
	}
	p := &Periodic{
		fetcher:  f,
		sink:     sink,
		interval: opts.Interval,
		clock:    opts.Clock,
	}
	if p.clock == nil {
		p.clock = clock.WallClock
	}
	p.logger = logging.Component(opts.Logger, "fetcher").WithField("source", f.Name())
	return p, nil
}

// Run fetches immediately and then on every interval until ctx is done.
// It waits for an in-flight run before returning ctx.Err().
func (p *Periodic) Run(ctx context.Context) error {
	defer p.wg.Wait()

	p.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.clock.After(p.interval):
			p.tick(ctx)
		}
	}
}

func (p *Periodic) tick(ctx context.Context) {
	if !p.running.CompareAndSwap(false, true) {
		observability.RecordFetchRun(p.fetcher.Name(), StatusSkipped, 0, 0)
		p.logger.Debug("previous run still in flight, skipping tick")
		return
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.running.Store(false)
		_ = p.RunOnce(ctx)
	}()
}

// RunOnce performs a single fetch and delivery.
func (p *Periodic) RunOnce(ctx context.Context) error {
	start := time.Now()
	source := p.fetcher.Name()

	obs, err := p.fetcher.Fetch(ctx)
	if err == nil && len(obs) > 0 {
		_, err = p.sink.Ingest(ctx, source, obs)
	}

	elapsed := time.Since(start)
	if err != nil {
		observability.RecordFetchRun(source, StatusFailed, elapsed.Seconds(), 0)
		p.logger.WithError(err).Error("fetch failed")
		return err
	}
	observability.RecordFetchRun(source, StatusSuccess, elapsed.Seconds(), len(obs))
	p.logger.WithFields(logrus.Fields{
		"tokens":   len(obs),
		"duration": elapsed.String(),
	}).Info("fetch complete")
	return nil
}
