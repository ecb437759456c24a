package storage

import (
	"fmt"

	"solana-token-feed/internal/domain"
)

// ValidateSnapshot checks the fields every backend requires.
func ValidateSnapshot(s *domain.TokenSnapshot) error {
	if s == nil || s.Address == "" {
		return fmt.Errorf("snapshot without address: %w", ErrInvalidInput)
	}
	return nil
}

// ValidateRange checks metric and clamps offset and limit to non-negative values.
func ValidateRange(metric domain.SortMetric, offset, limit int) (int, int, error) {
	if !metric.IsValid() {
		return 0, 0, fmt.Errorf("range %q: %w", metric, ErrUnknownMetric)
	}
	if offset < 0 {
		offset = 0
	}
	if limit < 0 {
		limit = 0
	}
	return offset, limit, nil
}
