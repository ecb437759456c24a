package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"solana-token-feed/internal/domain"
	"solana-token-feed/internal/storage"
)

// SnapshotStore implements storage.SnapshotStore on Redis.
//
// Each snapshot is a hash token:<address> whose fields are the snapshot's
// JSON keys and whose values are JSON-encoded. Every sortable metric has a
// sorted set index:<metric>; index:updated_at tracks all addresses.
type SnapshotStore struct {
	client goredis.UniversalClient
}

// NewSnapshotStore creates a new SnapshotStore.
func NewSnapshotStore(client goredis.UniversalClient) *SnapshotStore {
	return &SnapshotStore{client: client}
}

// Compile-time interface check.
var _ storage.SnapshotStore = (*SnapshotStore)(nil)

// Get retrieves the snapshot for address. Returns ErrNotFound if not exists.
func (s *SnapshotStore) Get(ctx context.Context, address string) (*domain.TokenSnapshot, error) {
	fields, err := s.client.HGetAll(ctx, tokenKey(address)).Result()
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	if len(fields) == 0 {
		return nil, storage.ErrNotFound
	}
	return decodeHash(fields)
}

// GetMany retrieves snapshots in one pipeline, skipping missing addresses.
func (s *SnapshotStore) GetMany(ctx context.Context, addresses []string) ([]*domain.TokenSnapshot, error) {
	if len(addresses) == 0 {
		return []*domain.TokenSnapshot{}, nil
	}

	cmds := make([]*goredis.MapStringStringCmd, len(addresses))
	_, err := s.client.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
		for i, addr := range addresses {
			cmds[i] = pipe.HGetAll(ctx, tokenKey(addr))
		}
		return nil
	})
	if err != nil && !errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("get snapshots: %w", err)
	}

	out := make([]*domain.TokenSnapshot, 0, len(addresses))
	for _, cmd := range cmds {
		fields, err := cmd.Result()
		if err != nil || len(fields) == 0 {
			continue
		}
		snap, err := decodeHash(fields)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, nil
}

// Put replaces the snapshot hash and updates every index in one transaction.
func (s *SnapshotStore) Put(ctx context.Context, snap *domain.TokenSnapshot) error {
	if err := storage.ValidateSnapshot(snap); err != nil {
		return err
	}

	fields, err := encodeHash(snap)
	if err != nil {
		return err
	}

	key := tokenKey(snap.Address)
	_, err = s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, fields)
		for _, metric := range domain.SortMetrics {
			idx := indexKey(metric.String())
			if v := snap.Value(metric.Field()); v != nil {
				pipe.ZAdd(ctx, idx, goredis.Z{Score: *v, Member: snap.Address})
			} else {
				pipe.ZRem(ctx, idx, snap.Address)
			}
		}
		pipe.ZAdd(ctx, updatedAtIndex, goredis.Z{Score: float64(snap.UpdatedAt), Member: snap.Address})
		return nil
	})
	if err != nil {
		return fmt.Errorf("put snapshot: %w", err)
	}
	return nil
}

// Range returns addresses by descending score from index:<metric>.
func (s *SnapshotStore) Range(ctx context.Context, metric domain.SortMetric, offset, limit int) ([]string, error) {
	offset, limit, err := storage.ValidateRange(metric, offset, limit)
	if err != nil {
		return nil, err
	}
	if limit == 0 {
		return []string{}, nil
	}

	start := int64(offset)
	stop := start + int64(limit) - 1
	addrs, err := s.client.ZRevRange(ctx, indexKey(metric.String()), start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("range %s: %w", metric, err)
	}
	return addrs, nil
}

// Count returns the cardinality of index:updated_at.
func (s *SnapshotStore) Count(ctx context.Context) (int64, error) {
	n, err := s.client.ZCard(ctx, updatedAtIndex).Result()
	if err != nil {
		return 0, fmt.Errorf("count snapshots: %w", err)
	}
	return n, nil
}

// Ping checks the connection.
func (s *SnapshotStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// encodeHash flattens the snapshot's JSON object into hash fields with
// JSON-encoded values.
func encodeHash(snap *domain.TokenSnapshot) (map[string]any, error) {
	raw, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("flatten snapshot: %w", err)
	}

	fields := make(map[string]any, len(obj))
	for k, v := range obj {
		fields[k] = string(v)
	}
	return fields, nil
}

func decodeHash(fields map[string]string) (*domain.TokenSnapshot, error) {
	obj := make(map[string]json.RawMessage, len(fields))
	for k, v := range fields {
		if !json.Valid([]byte(v)) {
			// Written by something other than Put; keep it as a string.
			quoted, _ := json.Marshal(v)
			obj[k] = quoted
			continue
		}
		obj[k] = json.RawMessage(v)
	}

	raw, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("rebuild snapshot: %w", err)
	}
	var snap domain.TokenSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snap, nil
}
