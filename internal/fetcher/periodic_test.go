package fetcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-token-feed/internal/domain"
	"solana-token-feed/internal/logging"
)

type fakeFetcher struct {
	mu    sync.Mutex
	calls int
	block chan struct{}
	err   error
}

func (f *fakeFetcher) Name() string { return "fake" }

func (f *fakeFetcher) Fetch(ctx context.Context) ([]domain.Observation, error) {
	f.mu.Lock()
	f.calls++
	block := f.block
	f.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return []domain.Observation{{Address: "A", Metrics: domain.Metrics{Price: domain.Float(1)}}}, nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recordingSink struct {
	mu      sync.Mutex
	batches map[string]int
}

func (s *recordingSink) Ingest(_ context.Context, source string, obs []domain.Observation) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.batches == nil {
		s.batches = map[string]int{}
	}
	s.batches[source] += len(obs)
	return len(obs), nil
}

func (s *recordingSink) count(source string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.batches[source]
}

func TestPeriodic_RunOnce(t *testing.T) {
	sink := &recordingSink{}
	p, err := NewPeriodic(&fakeFetcher{}, sink, PeriodicOptions{Interval: time.Second, Logger: logging.Discard()})
	require.NoError(t, err)

	require.NoError(t, p.RunOnce(context.Background()))
	assert.Equal(t, 1, sink.count("fake"))
}

func TestPeriodic_RunOnceError(t *testing.T) {
	sink := &recordingSink{}
	p, err := NewPeriodic(&fakeFetcher{err: errors.New("upstream down")}, sink, PeriodicOptions{Interval: time.Second, Logger: logging.Discard()})
	require.NoError(t, err)

	assert.Error(t, p.RunOnce(context.Background()))
	assert.Zero(t, sink.count("fake"))
}

func TestPeriodic_SkipsTickWhileInFlight(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	f := &fakeFetcher{block: make(chan struct{})}
	sink := &recordingSink{}
	p, err := NewPeriodic(f, sink, PeriodicOptions{Interval: time.Second, Clock: clk, Logger: logging.Discard()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	assert.Eventually(t, func() bool { return f.callCount() == 1 }, time.Second, 5*time.Millisecond)

	// First run is still blocked; this tick must be skipped.
	require.NoError(t, clk.WaitAdvance(time.Second, time.Second, 1))
	require.NoError(t, clk.WaitAdvance(0, time.Second, 1))
	assert.Equal(t, 1, f.callCount())

	f.mu.Lock()
	close(f.block)
	f.block = nil
	f.mu.Unlock()
	assert.Eventually(t, func() bool { return sink.count("fake") == 1 && !p.running.Load() }, time.Second, 5*time.Millisecond)

	require.NoError(t, clk.WaitAdvance(time.Second, time.Second, 1))
	assert.Eventually(t, func() bool { return f.callCount() == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}

func TestNewPeriodic_Validation(t *testing.T) {
	_, err := NewPeriodic(nil, &recordingSink{}, PeriodicOptions{Interval: time.Second})
	assert.Error(t, err)

	_, err = NewPeriodic(&fakeFetcher{}, &recordingSink{}, PeriodicOptions{})
	assert.Error(t, err)
}
