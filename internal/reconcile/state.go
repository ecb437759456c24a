package reconcile

import (
	"sort"
	"time"

	"solana-token-feed/internal/domain"
)

// LastSourceIngest marks snapshots written by the aggregator.
const LastSourceIngest = "ingest"

// MergeCandidates folds next into prev for the intake buffer. Defined numeric
// values in next win, metadata is fill-once, sources are unioned and the later
// fetched_at is kept.
func MergeCandidates(prev, next domain.TokenCandidate) domain.TokenCandidate {
	out := prev.Clone()
	if next.Address != "" {
		out.Address = next.Address
	}
	out.Name = fillOnce(out.Name, next.Name)
	out.Ticker = fillOnce(out.Ticker, next.Ticker)
	out.Extras = mergeExtras(out.Extras, next.Extras)
	overwriteDefined(&out.Metrics, next.Metrics)
	out.SourcesUsed = unionSources(out.SourcesUsed, next.SourcesUsed)
	if next.FetchedAt > out.FetchedAt {
		out.FetchedAt = next.FetchedAt
	}
	return out
}

// MergeState applies candidate on top of the existing snapshot (nil if none)
// and returns the new canonical snapshot. existing is not modified.
func MergeState(existing *domain.TokenSnapshot, candidate domain.TokenCandidate, now time.Time) domain.TokenSnapshot {
	var out domain.TokenSnapshot
	if existing != nil {
		out = *existing.Clone()
	}

	out.Address = candidate.Address
	out.Name = fillOnce(out.Name, candidate.Name)
	out.Ticker = fillOnce(out.Ticker, candidate.Ticker)
	out.Extras = mergeExtras(out.Extras, candidate.Extras)
	overwriteDefined(&out.Metrics, candidate.Metrics)
	out.SourcesUsed = unionSources(out.SourcesUsed, candidate.SourcesUsed)
	out.LastSource = LastSourceIngest

	nowMs := now.UnixMilli()
	out.FetchedAt = candidate.FetchedAt
	if out.FetchedAt == 0 {
		out.FetchedAt = nowMs
	}
	if nowMs > out.UpdatedAt {
		out.UpdatedAt = nowMs
	}

	return out
}

func fillOnce(current, incoming string) string {
	if current != "" {
		return current
	}
	return incoming
}

// overwriteDefined copies every defined metric of src into dst.
func overwriteDefined(dst *domain.Metrics, src domain.Metrics) {
	for _, field := range domain.NumericFields {
		if v := finite(src.Value(field)); v != nil {
			dst.Set(field, v)
		}
	}
}

func mergeExtras(current, incoming map[string]string) map[string]string {
	for k, v := range incoming {
		if v == "" {
			continue
		}
		if current == nil {
			current = make(map[string]string, len(incoming))
		}
		current[k] = v
	}
	return current
}

// unionSources returns the sorted union of a and b without duplicates.
func unionSources(a, b []string) []string {
	if len(a) == 0 && len(b) == 0 {
		return a
	}
	set := make(map[string]struct{}, len(a)+len(b))
	for _, s := range a {
		set[s] = struct{}{}
	}
	for _, s := range b {
		if s != "" {
			set[s] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
