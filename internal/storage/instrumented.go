package storage

import (
	"context"
	"errors"
	"time"

	"solana-token-feed/internal/domain"
	"solana-token-feed/internal/observability"
)

// Instrumented wraps a SnapshotStore and records latency and errors per
// operation under the backend label. ErrNotFound is not counted as an error.
type Instrumented struct {
	next    SnapshotStore
	backend string
}

// NewInstrumented wraps next.
func NewInstrumented(next SnapshotStore, backend string) *Instrumented {
	return &Instrumented{next: next, backend: backend}
}

var _ SnapshotStore = (*Instrumented)(nil)

func (s *Instrumented) observe(op string, start time.Time, err error) {
	if errors.Is(err, ErrNotFound) {
		err = nil
	}
	observability.RecordStoreOp(s.backend, op, time.Since(start).Seconds(), err)
}

func (s *Instrumented) Get(ctx context.Context, address string) (*domain.TokenSnapshot, error) {
	start := time.Now()
	snap, err := s.next.Get(ctx, address)
	s.observe("get", start, err)
	return snap, err
}

func (s *Instrumented) GetMany(ctx context.Context, addresses []string) ([]*domain.TokenSnapshot, error) {
	start := time.Now()
	snaps, err := s.next.GetMany(ctx, addresses)
	s.observe("get_many", start, err)
	return snaps, err
}

func (s *Instrumented) Put(ctx context.Context, snap *domain.TokenSnapshot) error {
	start := time.Now()
	err := s.next.Put(ctx, snap)
	s.observe("put", start, err)
	return err
}

func (s *Instrumented) Range(ctx context.Context, metric domain.SortMetric, offset, limit int) ([]string, error) {
	start := time.Now()
	addrs, err := s.next.Range(ctx, metric, offset, limit)
	s.observe("range", start, err)
	return addrs, err
}

func (s *Instrumented) Count(ctx context.Context) (int64, error) {
	start := time.Now()
	n, err := s.next.Count(ctx)
	s.observe("count", start, err)
	return n, err
}

func (s *Instrumented) Ping(ctx context.Context) error {
	start := time.Now()
	err := s.next.Ping(ctx)
	s.observe("ping", start, err)
	return err
}
