package domain

// Metrics holds the numeric market fields tracked per token.
// A nil pointer means the value is absent; absence never overwrites a stored value.
type Metrics struct {
	Price            *float64 `json:"price,omitempty"`
	MarketCap        *float64 `json:"market_cap,omitempty"`
	Volume           *float64 `json:"volume,omitempty"`
	Liquidity        *float64 `json:"liquidity,omitempty"`
	TransactionCount *float64 `json:"transaction_count,omitempty"`
	PriceChange1h    *float64 `json:"price_change_1h,omitempty"`
	PriceChange24h   *float64 `json:"price_change_24h,omitempty"`
	PriceChange7d    *float64 `json:"price_change_7d,omitempty"`
}

// Observation is a single source's view of a token in one fetch cycle.
// It is never persisted on its own.
type Observation struct {
	Address   string            `json:"token_address"`
	Source    string            `json:"source,omitempty"`
	Name      string            `json:"token_name,omitempty"`
	Ticker    string            `json:"token_ticker,omitempty"`
	Extras    map[string]string `json:"extras,omitempty"`
	FetchedAt int64             `json:"fetched_at,omitempty"` // unix ms
	Metrics
}

// TokenCandidate is the cross-source merge of one cycle's observations for a token.
type TokenCandidate struct {
	Address     string            `json:"token_address"`
	Name        string            `json:"token_name,omitempty"`
	Ticker      string            `json:"token_ticker,omitempty"`
	Extras      map[string]string `json:"extras,omitempty"`
	SourcesUsed []string          `json:"sources_used,omitempty"`
	FetchedAt   int64             `json:"fetched_at,omitempty"` // unix ms
	Metrics
}

// TokenSnapshot is the persisted canonical state of a token.
type TokenSnapshot struct {
	Address     string            `json:"token_address"`
	Name        string            `json:"token_name,omitempty"`
	Ticker      string            `json:"token_ticker,omitempty"`
	Extras      map[string]string `json:"extras,omitempty"`
	SourcesUsed []string          `json:"sources_used,omitempty"`
	LastSource  string            `json:"last_source,omitempty"`
	FetchedAt   int64             `json:"fetched_at,omitempty"` // unix ms
	UpdatedAt   int64             `json:"updated_at,omitempty"` // unix ms
	Metrics
}

// Clone returns a deep copy of the snapshot.
func (s *TokenSnapshot) Clone() *TokenSnapshot {
	if s == nil {
		return nil
	}
	out := *s
	out.Metrics = s.Metrics.Clone()
	out.Extras = cloneExtras(s.Extras)
	if s.SourcesUsed != nil {
		out.SourcesUsed = append([]string(nil), s.SourcesUsed...)
	}
	return &out
}

// Clone returns a copy whose pointers do not alias the receiver's.
func (m Metrics) Clone() Metrics {
	return Metrics{
		Price:            clonePtr(m.Price),
		MarketCap:        clonePtr(m.MarketCap),
		Volume:           clonePtr(m.Volume),
		Liquidity:        clonePtr(m.Liquidity),
		TransactionCount: clonePtr(m.TransactionCount),
		PriceChange1h:    clonePtr(m.PriceChange1h),
		PriceChange24h:   clonePtr(m.PriceChange24h),
		PriceChange7d:    clonePtr(m.PriceChange7d),
	}
}

// Value returns the metric stored under field, or nil if field is not numeric or absent.
func (m *Metrics) Value(field Field) *float64 {
	if p := m.slot(field); p != nil {
		return *p
	}
	return nil
}

// Set stores v under field. It is a no-op for non-numeric fields.
func (m *Metrics) Set(field Field, v *float64) {
	if p := m.slot(field); p != nil {
		*p = clonePtr(v)
	}
}

func (m *Metrics) slot(field Field) **float64 {
	switch field {
	case FieldPrice:
		return &m.Price
	case FieldMarketCap:
		return &m.MarketCap
	case FieldVolume:
		return &m.Volume
	case FieldLiquidity:
		return &m.Liquidity
	case FieldTransactionCount:
		return &m.TransactionCount
	case FieldPriceChange1h:
		return &m.PriceChange1h
	case FieldPriceChange24h:
		return &m.PriceChange24h
	case FieldPriceChange7d:
		return &m.PriceChange7d
	}
	return nil
}

func clonePtr(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneExtras(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Float returns a pointer to v. Convenient for building metrics literals.
func Float(v float64) *float64 {
	return &v
}

// Clone returns a deep copy of the candidate.
func (c TokenCandidate) Clone() TokenCandidate {
	out := c
	out.Metrics = c.Metrics.Clone()
	out.Extras = cloneExtras(c.Extras)
	if c.SourcesUsed != nil {
		out.SourcesUsed = append([]string(nil), c.SourcesUsed...)
	}
	return out
}
