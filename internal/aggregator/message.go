package aggregator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"solana-token-feed/internal/domain"
	"solana-token-feed/internal/observability"
	"solana-token-feed/internal/reconcile"
)

var (
	// ErrMalformed is returned for payloads that cannot be decoded at all.
	ErrMalformed = errors.New("malformed intake message")

	// ErrMissingAddress marks an entry without a token address.
	ErrMissingAddress = errors.New("entry without token address")
)

// message is the union of the accepted intake shapes.
type message struct {
	Source     string            `json:"source"`
	FetchedAt  int64             `json:"fetched_at"`
	IngestedAt int64             `json:"ingested_at"`
	Tokens     []json.RawMessage `json:"tokens"`
}

// entry is a per-source token entry: {token_address, sources: {name: observation}}.
type entry struct {
	Address string                        `json:"token_address"`
	Sources map[string]domain.Observation `json:"sources"`
}

// DecodeMessage parses an intake payload into candidates. Three shapes are accepted:
//
//	{"tokens": [candidate...], "ingested_at": ms}
//	{"source": "name", "fetched_at": ms, "tokens": [observation...]}
//	{"tokens": [{"token_address": "...", "sources": {"name": observation}}]}
//
// Per-source shapes are merged with p. Entries that cannot be used are
// returned in skipped and do not fail the message.
func DecodeMessage(payload []byte, p reconcile.Priorities) (candidates []domain.TokenCandidate, skipped []error, err error) {
	var msg message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if msg.Tokens == nil {
		return nil, nil, fmt.Errorf("%w: missing tokens", ErrMalformed)
	}

	defaultTime := msg.FetchedAt
	if defaultTime == 0 {
		defaultTime = msg.IngestedAt
	}

	for i, raw := range msg.Tokens {
		c, err := decodeEntry(raw, msg.Source, defaultTime, p)
		if err != nil {
			skipped = append(skipped, fmt.Errorf("token %d: %w", i, err))
			continue
		}
		candidates = append(candidates, c)
	}
	return candidates, skipped, nil
}

func decodeEntry(raw json.RawMessage, source string, defaultTime int64, p reconcile.Priorities) (domain.TokenCandidate, error) {
	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return domain.TokenCandidate{}, fmt.Errorf("decode entry: %w", err)
	}
	address := domain.NormalizeAddress(e.Address)
	if address == "" {
		return domain.TokenCandidate{}, ErrMissingAddress
	}

	switch {
	case e.Sources != nil:
		obs := make(map[string]domain.Observation, len(e.Sources))
		for name, o := range e.Sources {
			name = domain.CanonicalSource(name)
			o.Source = name
			if o.FetchedAt == 0 {
				o.FetchedAt = defaultTime
			}
			// An alias and its canonical name may both appear; keep the newer.
			if prev, ok := obs[name]; ok && prev.FetchedAt >= o.FetchedAt {
				continue
			}
			obs[name] = o
		}
		return reconcile.MergeSources(address, obs, p), nil

	case source != "":
		source = domain.CanonicalSource(source)
		var o domain.Observation
		if err := json.Unmarshal(raw, &o); err != nil {
			return domain.TokenCandidate{}, fmt.Errorf("decode observation: %w", err)
		}
		o.Source = source
		if o.FetchedAt == 0 {
			o.FetchedAt = defaultTime
		}
		return reconcile.MergeSources(address, map[string]domain.Observation{source: o}, p), nil

	default:
		var c domain.TokenCandidate
		if err := json.Unmarshal(raw, &c); err != nil {
			return domain.TokenCandidate{}, fmt.Errorf("decode candidate: %w", err)
		}
		c.Address = address
		c.SourcesUsed = canonicalSources(c.SourcesUsed)
		if c.FetchedAt == 0 {
			c.FetchedAt = defaultTime
		}
		return c, nil
	}
}

func canonicalSources(names []string) []string {
	if names == nil {
		return nil
	}
	out := make([]string, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		n = domain.CanonicalSource(n)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// HandleMessage decodes payload and submits the result. Malformed payloads
// and entries are logged and dropped.
func (a *Aggregator) HandleMessage(ctx context.Context, payload []byte) {
	candidates, skipped, err := DecodeMessage(payload, a.priorities)
	if err != nil {
		observability.RecordMalformed("payload")
		a.logger.WithError(err).Warn("dropping intake message")
		return
	}
	for _, s := range skipped {
		reason := "entry"
		if errors.Is(s, ErrMissingAddress) {
			reason = "missing_address"
		}
		observability.RecordMalformed(reason)
		a.logger.WithError(s).Warn("skipping intake entry")
	}
	if len(candidates) == 0 {
		return
	}
	if err := a.Submit(ctx, candidates); err != nil {
		a.logger.WithError(err).Warn("intake message not buffered")
	}
}
