package models

import "time"

// PriceBar is one OHLCV bar for an instrument. Series are append-only and
// kept in strictly increasing timestamp order.
type PriceBar struct {
	Symbol    string
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// FieldKind tags a FieldValue.
type FieldKind int

const (
	FieldMissing FieldKind = iota
	FieldPresent
	FieldIndeterminate
)

// FieldValue is a tagged fundamental field: reported payloads may lack a
// field entirely or carry something that cannot be used as a number, and
// downstream logic has to branch on that explicitly.
type FieldValue struct {
	Kind  FieldKind
	Value float64
}

// Present wraps a reported numeric value.
func Present(v float64) FieldValue { return FieldValue{Kind: FieldPresent, Value: v} }

// Missing marks a field absent from the reported statement.
func Missing() FieldValue { return FieldValue{Kind: FieldMissing} }

// Indeterminate marks a field that was reported but is not usable.
func Indeterminate() FieldValue { return FieldValue{Kind: FieldIndeterminate} }

// IsPresent reports whether the field carries a usable value.
func (f FieldValue) IsPresent() bool { return f.Kind == FieldPresent }

// Statement field names recognized by the fundamental analyzer.
const (
	FieldRevenue  = "revenue"
	FieldEarnings = "earnings"
	FieldDebt     = "debt"
	FieldEquity   = "equity"
	FieldAssets   = "assets"
)

// FinancialStatement is one reporting period of fundamental fields for an
// instrument. One per period, append-only.
type FinancialStatement struct {
	Symbol string
	Period time.Time
	Fields map[string]FieldValue
}

// Field returns the named field, Missing if absent from the map.
func (s FinancialStatement) Field(name string) FieldValue {
	if s.Fields == nil {
		return Missing()
	}
	v, ok := s.Fields[name]
	if !ok {
		return Missing()
	}
	return v
}
