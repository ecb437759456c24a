package reconcile

import (
	"math"
	"sort"

	"solana-token-feed/internal/domain"
)

// Priorities is the per-field source priority table used by MergeSources.
type Priorities struct {
	// Metrics maps a numeric field to the sources allowed to supply it,
	// highest priority first. Fields missing from the map take no value.
	Metrics map[domain.Field][]string

	// Metadata orders sources for name, ticker and extras: first non-empty wins.
	Metadata []string
}

// DefaultPriorities prefers Jupiter for price and price changes and takes
// volume, liquidity, market cap and transaction count from DexScreener only.
var DefaultPriorities = Priorities{
	Metrics: map[domain.Field][]string{
		domain.FieldPrice:            {domain.SourceJupiter, domain.SourceDexScreener},
		domain.FieldVolume:           {domain.SourceDexScreener},
		domain.FieldLiquidity:        {domain.SourceDexScreener},
		domain.FieldMarketCap:        {domain.SourceDexScreener},
		domain.FieldTransactionCount: {domain.SourceDexScreener},
		domain.FieldPriceChange1h:    {domain.SourceJupiter},
		domain.FieldPriceChange24h:   {domain.SourceJupiter},
		domain.FieldPriceChange7d:    {domain.SourceJupiter},
	},
	Metadata: []string{domain.SourceDexScreener, domain.SourceJupiter},
}

// MergeSources combines one cycle's observations of a token, keyed by source
// name, into a single candidate.
//
// Every source present in observations is recorded in SourcesUsed whether or
// not it won a field. Missing fields are never an error.
func MergeSources(address string, observations map[string]domain.Observation, p Priorities) domain.TokenCandidate {
	c := domain.TokenCandidate{Address: address}

	for source, obs := range observations {
		c.SourcesUsed = append(c.SourcesUsed, source)
		if obs.FetchedAt > c.FetchedAt {
			c.FetchedAt = obs.FetchedAt
		}
	}
	sort.Strings(c.SourcesUsed)

	for _, field := range domain.NumericFields {
		for _, source := range p.Metrics[field] {
			obs, ok := observations[source]
			if !ok {
				continue
			}
			if v := finite(obs.Value(field)); v != nil {
				c.Set(field, v)
				break
			}
		}
	}

	for _, source := range metadataOrder(observations, p.Metadata) {
		obs := observations[source]
		if c.Name == "" {
			c.Name = obs.Name
		}
		if c.Ticker == "" {
			c.Ticker = obs.Ticker
		}
		for k, v := range obs.Extras {
			if v == "" {
				continue
			}
			if _, taken := c.Extras[k]; taken {
				continue
			}
			if c.Extras == nil {
				c.Extras = make(map[string]string)
			}
			c.Extras[k] = v
		}
	}

	return c
}

// metadataOrder returns the sources present in observations: those named in
// preferred first, in that order, then the rest sorted by name.
func metadataOrder(observations map[string]domain.Observation, preferred []string) []string {
	out := make([]string, 0, len(observations))
	seen := make(map[string]bool, len(observations))
	for _, s := range preferred {
		if _, ok := observations[s]; ok && !seen[s] {
			out = append(out, s)
			seen[s] = true
		}
	}

	var rest []string
	for s := range observations {
		if !seen[s] {
			rest = append(rest, s)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}

// finite drops NaN and infinities, which cannot be stored or encoded.
func finite(v *float64) *float64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return nil
	}
	return v
}
