package reconcile

import (
	"math"

	"solana-token-feed/internal/domain"
)

// Thresholds controls which numeric changes are material.
type Thresholds struct {
	// Floor drops a field whose absolute new value is below the floor.
	Floor map[domain.Field]float64
	// MinDelta drops a field whose absolute change from the previous
	// snapshot is below the minimum. It does not apply on first write.
	MinDelta map[domain.Field]float64
}

// DefaultThresholds returns the production noise thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Floor: map[domain.Field]float64{
			domain.FieldVolume: 1e-6,
		},
		MinDelta: map[domain.Field]float64{
			domain.FieldVolume:    20,
			domain.FieldLiquidity: 1,
		},
	}
}

// Filter removes bookkeeping fields, nil values and sub-threshold numeric
// changes from delta. prev is the snapshot the delta was computed against
// (nil on first write). An empty result means nothing material changed.
func Filter(delta domain.Delta, prev *domain.TokenSnapshot, th Thresholds) domain.Delta {
	out := domain.Delta{}
	for field, val := range delta {
		if field.IsBookkeeping() || val == nil {
			continue
		}
		if field.IsNumeric() {
			num, ok := val.(float64)
			if !ok {
				continue
			}
			if floor, ok := th.Floor[field]; ok && math.Abs(num) < floor {
				continue
			}
			if minDelta, ok := th.MinDelta[field]; ok && prev != nil {
				if old := prev.Value(field); old != nil && math.Abs(num-*old) < minDelta {
					continue
				}
			}
		}
		out[field] = val
	}
	return out
}
