package domain

// Delta maps a field to its new value. Values are float64 for metrics, string for
// metadata, []string for sources_used, map[string]string for extras and int64 for
// timestamps.
type Delta map[Field]any

// Fields returns the delta's field names in canonical order.
func (d Delta) Fields() []Field {
	out := make([]Field, 0, len(d))
	for _, f := range canonicalOrder {
		if _, ok := d[f]; ok {
			out = append(out, f)
		}
	}
	return out
}

// IsEmpty reports whether the delta carries no fields.
func (d Delta) IsEmpty() bool {
	return len(d) == 0
}

var canonicalOrder = []Field{
	FieldAddress,
	FieldName,
	FieldTicker,
	FieldPrice,
	FieldMarketCap,
	FieldVolume,
	FieldLiquidity,
	FieldTransactionCount,
	FieldPriceChange1h,
	FieldPriceChange24h,
	FieldPriceChange7d,
	FieldExtras,
	FieldSourcesUsed,
	FieldLastSource,
	FieldFetchedAt,
	FieldUpdatedAt,
}

// Change is one message on the change feed.
type Change struct {
	Address string `json:"address"`
	Diff    Delta  `json:"diff"`
}
