package domain

// Field names a canonical token field as it appears on the wire and in storage.
type Field string

const (
	FieldAddress          Field = "token_address"
	FieldName             Field = "token_name"
	FieldTicker           Field = "token_ticker"
	FieldPrice            Field = "price"
	FieldMarketCap        Field = "market_cap"
	FieldVolume           Field = "volume"
	FieldLiquidity        Field = "liquidity"
	FieldTransactionCount Field = "transaction_count"
	FieldPriceChange1h    Field = "price_change_1h"
	FieldPriceChange24h   Field = "price_change_24h"
	FieldPriceChange7d    Field = "price_change_7d"
	FieldExtras           Field = "extras"
	FieldSourcesUsed      Field = "sources_used"
	FieldLastSource       Field = "last_source"
	FieldFetchedAt        Field = "fetched_at"
	FieldUpdatedAt        Field = "updated_at"
)

// NumericFields lists the metric fields in a fixed order.
var NumericFields = []Field{
	FieldPrice,
	FieldMarketCap,
	FieldVolume,
	FieldLiquidity,
	FieldTransactionCount,
	FieldPriceChange1h,
	FieldPriceChange24h,
	FieldPriceChange7d,
}

// BookkeepingFields are implementation detail and never reach subscribers.
var BookkeepingFields = []Field{
	FieldAddress,
	FieldSourcesUsed,
	FieldLastSource,
	FieldFetchedAt,
	FieldUpdatedAt,
}

// IsBookkeeping reports whether f is a bookkeeping field.
func (f Field) IsBookkeeping() bool {
	for _, b := range BookkeepingFields {
		if f == b {
			return true
		}
	}
	return false
}

// IsNumeric reports whether f is one of NumericFields.
func (f Field) IsNumeric() bool {
	for _, n := range NumericFields {
		if f == n {
			return true
		}
	}
	return false
}

// String returns the string representation of Field.
func (f Field) String() string {
	return string(f)
}

// SortMetric is a metric with an ordered index in the store.
type SortMetric string

const (
	SortVolume         SortMetric = "volume"
	SortLiquidity      SortMetric = "liquidity"
	SortMarketCap      SortMetric = "market_cap"
	SortPriceChange24h SortMetric = "price_change_24h"
)

// SortMetrics lists every indexed metric.
var SortMetrics = []SortMetric{SortVolume, SortLiquidity, SortMarketCap, SortPriceChange24h}

// ParseSortMetric returns the SortMetric named s.
func ParseSortMetric(s string) (SortMetric, bool) {
	for _, m := range SortMetrics {
		if string(m) == s {
			return m, true
		}
	}
	return "", false
}

// Field returns the snapshot field backing the index.
func (m SortMetric) Field() Field {
	return Field(m)
}

// IsValid checks if the metric is indexed.
func (m SortMetric) IsValid() bool {
	_, ok := ParseSortMetric(string(m))
	return ok
}

// String returns the string representation of SortMetric.
func (m SortMetric) String() string {
	return string(m)
}
