package reconcile

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-token-feed/internal/domain"
)

func TestMergeState_FirstWrite(t *testing.T) {
	now := time.UnixMilli(5000)
	c := domain.TokenCandidate{
		Address:     "T1",
		Name:        "Token One",
		Ticker:      "ONE",
		SourcesUsed: []string{domain.SourceDexScreener},
		FetchedAt:   4000,
		Metrics:     domain.Metrics{Price: domain.Float(100), Volume: domain.Float(1000)},
	}

	s := MergeState(nil, c, now)

	assert.Equal(t, "T1", s.Address)
	assert.Equal(t, "Token One", s.Name)
	assert.Equal(t, "ONE", s.Ticker)
	assert.Equal(t, LastSourceIngest, s.LastSource)
	assert.Equal(t, int64(4000), s.FetchedAt)
	assert.Equal(t, int64(5000), s.UpdatedAt)
	require.NotNil(t, s.Price)
	assert.Equal(t, 100.0, *s.Price)
}

func TestMergeState_FetchedAtDefaultsToNow(t *testing.T) {
	s := MergeState(nil, domain.TokenCandidate{Address: "T1"}, time.UnixMilli(7000))
	assert.Equal(t, int64(7000), s.FetchedAt)
}

func TestMergeState_MetadataIsFillOnce(t *testing.T) {
	existing := &domain.TokenSnapshot{Address: "T1", Name: "Original", Ticker: ""}

	s := MergeState(existing, domain.TokenCandidate{Address: "T1", Name: "Renamed", Ticker: "TKN"}, time.UnixMilli(1))

	assert.Equal(t, "Original", s.Name, "stored name must not be replaced")
	assert.Equal(t, "TKN", s.Ticker, "empty ticker is filled")
}

func TestMergeState_AbsentValuesDoNotOverwrite(t *testing.T) {
	existing := &domain.TokenSnapshot{
		Address: "T1",
		Metrics: domain.Metrics{Price: domain.Float(1), Liquidity: domain.Float(50)},
	}

	s := MergeState(existing, domain.TokenCandidate{
		Address: "T1",
		Metrics: domain.Metrics{Price: domain.Float(2), Liquidity: domain.Float(math.NaN())},
	}, time.UnixMilli(1))

	require.NotNil(t, s.Price)
	assert.Equal(t, 2.0, *s.Price)
	require.NotNil(t, s.Liquidity)
	assert.Equal(t, 50.0, *s.Liquidity, "NaN is treated as absent")
}

func TestMergeState_SourcesOnlyGrow(t *testing.T) {
	existing := &domain.TokenSnapshot{Address: "T1", SourcesUsed: []string{domain.SourceJupiter}}

	s := MergeState(existing, domain.TokenCandidate{
		Address:     "T1",
		SourcesUsed: []string{domain.SourceDexScreener},
	}, time.UnixMilli(1))

	assert.Equal(t, []string{domain.SourceDexScreener, domain.SourceJupiter}, s.SourcesUsed)
	assert.Equal(t, []string{domain.SourceJupiter}, existing.SourcesUsed, "existing must not be mutated")
}

func TestMergeState_UpdatedAtIsMonotonic(t *testing.T) {
	existing := &domain.TokenSnapshot{Address: "T1", UpdatedAt: 9000}

	s := MergeState(existing, domain.TokenCandidate{Address: "T1"}, time.UnixMilli(8000))

	assert.Equal(t, int64(9000), s.UpdatedAt)
}

func TestMergeState_DoesNotAliasExisting(t *testing.T) {
	existing := &domain.TokenSnapshot{
		Address: "T1",
		Extras:  map[string]string{"protocol": "raydium"},
		Metrics: domain.Metrics{Volume: domain.Float(1)},
	}

	s := MergeState(existing, domain.TokenCandidate{
		Address: "T1",
		Extras:  map[string]string{"protocol": "orca"},
		Metrics: domain.Metrics{Volume: domain.Float(2)},
	}, time.UnixMilli(1))

	assert.Equal(t, "orca", s.Extras["protocol"])
	assert.Equal(t, "raydium", existing.Extras["protocol"])
	assert.Equal(t, 1.0, *existing.Volume)
}

func TestMergeCandidates(t *testing.T) {
	a := domain.TokenCandidate{
		Address:     "T1",
		Name:        "First",
		SourcesUsed: []string{domain.SourceJupiter},
		FetchedAt:   2000,
		Metrics:     domain.Metrics{Price: domain.Float(1), Volume: domain.Float(10)},
	}
	b := domain.TokenCandidate{
		Address:     "T1",
		Name:        "Second",
		Ticker:      "TKN",
		SourcesUsed: []string{domain.SourceDexScreener},
		FetchedAt:   1000,
		Metrics:     domain.Metrics{Price: domain.Float(2)},
	}

	m := MergeCandidates(a, b)

	assert.Equal(t, "First", m.Name)
	assert.Equal(t, "TKN", m.Ticker)
	assert.Equal(t, 2.0, *m.Price)
	assert.Equal(t, 10.0, *m.Volume)
	assert.Equal(t, []string{domain.SourceDexScreener, domain.SourceJupiter}, m.SourcesUsed)
	assert.Equal(t, int64(2000), m.FetchedAt)
	assert.Equal(t, 1.0, *a.Price, "prev must not be mutated")
}
