package reconcile

import (
	"solana-token-feed/internal/domain"
)

// Diff returns the fields of next that differ from prev. With no previous
// snapshot every present field of next is reported. Fields absent from next
// are never reported as removed.
func Diff(prev *domain.TokenSnapshot, next domain.TokenSnapshot) domain.Delta {
	if prev == nil {
		return full(next)
	}

	d := domain.Delta{}

	if next.Address != prev.Address {
		d[domain.FieldAddress] = next.Address
	}
	if next.Name != "" && next.Name != prev.Name {
		d[domain.FieldName] = next.Name
	}
	if next.Ticker != "" && next.Ticker != prev.Ticker {
		d[domain.FieldTicker] = next.Ticker
	}

	for _, field := range domain.NumericFields {
		nv := next.Value(field)
		if nv == nil {
			continue
		}
		if ov := prev.Value(field); ov == nil || *ov != *nv {
			d[field] = *nv
		}
	}

	if changed := changedExtras(prev.Extras, next.Extras); len(changed) > 0 {
		d[domain.FieldExtras] = changed
	}
	if len(next.SourcesUsed) > 0 && !sameSet(prev.SourcesUsed, next.SourcesUsed) {
		d[domain.FieldSourcesUsed] = append([]string(nil), next.SourcesUsed...)
	}
	if next.LastSource != "" && next.LastSource != prev.LastSource {
		d[domain.FieldLastSource] = next.LastSource
	}
	if next.FetchedAt != 0 && next.FetchedAt != prev.FetchedAt {
		d[domain.FieldFetchedAt] = next.FetchedAt
	}
	if next.UpdatedAt != 0 && next.UpdatedAt != prev.UpdatedAt {
		d[domain.FieldUpdatedAt] = next.UpdatedAt
	}

	return d
}

// full reports every present field of s.
func full(s domain.TokenSnapshot) domain.Delta {
	d := domain.Delta{domain.FieldAddress: s.Address}
	if s.Name != "" {
		d[domain.FieldName] = s.Name
	}
	if s.Ticker != "" {
		d[domain.FieldTicker] = s.Ticker
	}
	for _, field := range domain.NumericFields {
		if v := s.Value(field); v != nil {
			d[field] = *v
		}
	}
	if len(s.Extras) > 0 {
		d[domain.FieldExtras] = changedExtras(nil, s.Extras)
	}
	if len(s.SourcesUsed) > 0 {
		d[domain.FieldSourcesUsed] = append([]string(nil), s.SourcesUsed...)
	}
	if s.LastSource != "" {
		d[domain.FieldLastSource] = s.LastSource
	}
	if s.FetchedAt != 0 {
		d[domain.FieldFetchedAt] = s.FetchedAt
	}
	if s.UpdatedAt != 0 {
		d[domain.FieldUpdatedAt] = s.UpdatedAt
	}
	return d
}

// changedExtras returns the keys of next whose values differ from prev.
func changedExtras(prev, next map[string]string) map[string]string {
	var out map[string]string
	for k, v := range next {
		if old, ok := prev[k]; ok && old == v {
			continue
		}
		if out == nil {
			out = make(map[string]string)
		}
		out[k] = v
	}
	return out
}

// sameSet compares source lists ignoring order and duplicates.
func sameSet(a, b []string) bool {
	as := make(map[string]struct{}, len(a))
	for _, s := range a {
		as[s] = struct{}{}
	}
	bs := make(map[string]struct{}, len(b))
	for _, s := range b {
		bs[s] = struct{}{}
	}
	if len(as) != len(bs) {
		return false
	}
	for s := range as {
		if _, ok := bs[s]; !ok {
			return false
		}
	}
	return true
}
