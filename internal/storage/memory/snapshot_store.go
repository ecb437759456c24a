package memory

import (
	"context"
	"sort"
	"sync"

	"solana-token-feed/internal/domain"
	"solana-token-feed/internal/storage"
)

// SnapshotStore is an in-memory implementation of storage.SnapshotStore.
type SnapshotStore struct {
	mu        sync.RWMutex
	snapshots map[string]*domain.TokenSnapshot // keyed by address
}

// NewSnapshotStore creates a new in-memory snapshot store.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{
		snapshots: make(map[string]*domain.TokenSnapshot),
	}
}

// Get retrieves the snapshot for address. Returns ErrNotFound if not exists.
func (s *SnapshotStore) Get(_ context.Context, address string) (*domain.TokenSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, exists := s.snapshots[address]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return snap.Clone(), nil
}

// GetMany retrieves snapshots in address order, skipping missing ones.
func (s *SnapshotStore) GetMany(_ context.Context, addresses []string) ([]*domain.TokenSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.TokenSnapshot, 0, len(addresses))
	for _, addr := range addresses {
		if snap, ok := s.snapshots[addr]; ok {
			out = append(out, snap.Clone())
		}
	}
	return out, nil
}

// Put replaces the snapshot for s.Address.
func (s *SnapshotStore) Put(_ context.Context, snap *domain.TokenSnapshot) error {
	if err := storage.ValidateSnapshot(snap); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshots[snap.Address] = snap.Clone()
	return nil
}

// Range returns addresses ordered by metric descending. Ties are broken by
// address descending.
func (s *SnapshotStore) Range(_ context.Context, metric domain.SortMetric, offset, limit int) ([]string, error) {
	offset, limit, err := storage.ValidateRange(metric, offset, limit)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	type scored struct {
		address string
		score   float64
	}
	var entries []scored
	for addr, snap := range s.snapshots {
		if v := snap.Value(metric.Field()); v != nil {
			entries = append(entries, scored{address: addr, score: *v})
		}
	}
	s.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].score != entries[j].score {
			return entries[i].score > entries[j].score
		}
		return entries[i].address > entries[j].address
	})

	if offset >= len(entries) || limit == 0 {
		return []string{}, nil
	}
	end := offset + limit
	if end > len(entries) {
		end = len(entries)
	}

	out := make([]string, 0, end-offset)
	for _, e := range entries[offset:end] {
		out = append(out, e.address)
	}
	return out, nil
}

// Count returns the number of stored snapshots.
func (s *SnapshotStore) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.snapshots)), nil
}

// Ping always succeeds.
func (s *SnapshotStore) Ping(_ context.Context) error {
	return nil
}

var _ storage.SnapshotStore = (*SnapshotStore)(nil)
