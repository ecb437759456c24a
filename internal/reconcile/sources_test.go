package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-token-feed/internal/domain"
)

func TestMergeSources_PriorityOrder(t *testing.T) {
	table := Priorities{
		Metrics: map[domain.Field][]string{
			domain.FieldPrice:  {"B", "A"},
			domain.FieldVolume: {"A"},
		},
		Metadata: []string{"A", "B"},
	}

	c := MergeSources("T1", map[string]domain.Observation{
		"A": {Source: "A", Metrics: domain.Metrics{Price: domain.Float(1), Volume: domain.Float(10)}},
		"B": {Source: "B", Metrics: domain.Metrics{Price: domain.Float(2)}},
	}, table)

	assert.Equal(t, "T1", c.Address)
	require.NotNil(t, c.Price)
	assert.Equal(t, 2.0, *c.Price)
	require.NotNil(t, c.Volume)
	assert.Equal(t, 10.0, *c.Volume)
	assert.Equal(t, []string{"A", "B"}, c.SourcesUsed)
}

func TestMergeSources_FallsBackToLowerPriority(t *testing.T) {
	c := MergeSources("T1", map[string]domain.Observation{
		domain.SourceDexScreener: {Metrics: domain.Metrics{Price: domain.Float(0.5)}},
		domain.SourceJupiter:     {Metrics: domain.Metrics{PriceChange24h: domain.Float(-3)}},
	}, DefaultPriorities)

	require.NotNil(t, c.Price)
	assert.Equal(t, 0.5, *c.Price, "dexscreener price used when jupiter has none")
	require.NotNil(t, c.PriceChange24h)
	assert.Equal(t, -3.0, *c.PriceChange24h)
}

func TestMergeSources_ExclusiveFields(t *testing.T) {
	// Jupiter never supplies volume or liquidity, DexScreener never supplies price changes.
	c := MergeSources("T1", map[string]domain.Observation{
		domain.SourceJupiter: {Metrics: domain.Metrics{
			Volume:    domain.Float(999),
			Liquidity: domain.Float(999),
			Price:     domain.Float(1.5),
		}},
		domain.SourceDexScreener: {Metrics: domain.Metrics{
			PriceChange24h: domain.Float(42),
			Volume:         domain.Float(10),
		}},
	}, DefaultPriorities)

	assert.Nil(t, c.Liquidity)
	assert.Nil(t, c.PriceChange24h)
	require.NotNil(t, c.Volume)
	assert.Equal(t, 10.0, *c.Volume)
	require.NotNil(t, c.Price)
	assert.Equal(t, 1.5, *c.Price)
}

func TestMergeSources_MetadataFirstNonEmpty(t *testing.T) {
	c := MergeSources("T1", map[string]domain.Observation{
		domain.SourceDexScreener: {Name: "", Ticker: "FOO", Extras: map[string]string{"protocol": "raydium"}},
		domain.SourceJupiter:     {Name: "Foo Coin", Ticker: "FOOJ", Extras: map[string]string{"protocol": "jup", "decimals": "6"}},
	}, DefaultPriorities)

	assert.Equal(t, "Foo Coin", c.Name)
	assert.Equal(t, "FOO", c.Ticker)
	assert.Equal(t, map[string]string{"protocol": "raydium", "decimals": "6"}, c.Extras)
}

func TestMergeSources_UnknownSourceCountsButContributesNothing(t *testing.T) {
	c := MergeSources("T1", map[string]domain.Observation{
		"birdeye": {Metrics: domain.Metrics{Price: domain.Float(7)}, FetchedAt: 2000},
		domain.SourceJupiter: {FetchedAt: 1000},
	}, DefaultPriorities)

	assert.Nil(t, c.Price)
	assert.Equal(t, []string{"birdeye", domain.SourceJupiter}, c.SourcesUsed)
	assert.Equal(t, int64(2000), c.FetchedAt)
}

func TestMergeSources_EmptyObservationIsValid(t *testing.T) {
	c := MergeSources("T1", map[string]domain.Observation{
		domain.SourceDexScreener: {},
	}, DefaultPriorities)

	assert.Equal(t, "T1", c.Address)
	assert.Equal(t, domain.Metrics{}, c.Metrics)
	assert.Equal(t, []string{domain.SourceDexScreener}, c.SourcesUsed)
}
