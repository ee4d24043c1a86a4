package perf

import "github.com/shopspring/decimal"

// Report precision for equity values and trade prices.
const (
	ValuePlaces = 2
	PricePlaces = 6
)

// Round rounds half away from zero in decimal, so 0.125 becomes 0.13 at 2 places.
func Round(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

// RoundValue rounds a currency amount for reporting.
func RoundValue(v float64) float64 { return Round(v, ValuePlaces) }

// RoundPrice rounds a price or trade return for reporting.
func RoundPrice(v float64) float64 { return Round(v, PricePlaces) }
