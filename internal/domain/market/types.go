// Package market holds the price and sentiment series every other package consumes.
package market

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// PricePoint is one daily bar. Close is always present; the other fields are
// nil when the upstream provider had no value for that day.
type PricePoint struct {
	Date      time.Time `json:"date" db:"date"`
	Open      *float64  `json:"open,omitempty" db:"open"`
	High      *float64  `json:"high,omitempty" db:"high"`
	Low       *float64  `json:"low,omitempty" db:"low"`
	Close     float64   `json:"close" db:"close"`
	Volume    *float64  `json:"volume,omitempty" db:"volume"`
	MarketCap *float64  `json:"market_cap,omitempty" db:"market_cap"`
}

// PriceSeries is ordered by strictly increasing, unique dates.
type PriceSeries []PricePoint

// Asset identifies an ingested coin.
type Asset struct {
	ID     string `json:"id"`
	Symbol string `json:"symbol"`
	Name   string `json:"name,omitempty"`
}

// SentimentReading is one Fear & Greed observation (value 0-100).
type SentimentReading struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
	Label string    `json:"label"`
}

// SentimentSeries is a sparse set of readings, not necessarily aligned to price dates.
type SentimentSeries []SentimentReading

// Day truncates t to midnight UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Float returns a pointer to v, for optional PricePoint fields.
func Float(v float64) *float64 {
	return &v
}

// DefaultSymbol derives a ticker from a coin id when no metadata is available.
func DefaultSymbol(id string) string {
	s := strings.ToUpper(id)
	if len(s) > 10 {
		s = s[:10]
	}
	return s
}

// Validate checks the series invariants.
func (s PriceSeries) Validate() error {
	for i := 1; i < len(s); i++ {
		if !s[i].Date.After(s[i-1].Date) {
			return fmt.Errorf("price series dates must be strictly increasing: %s follows %s",
				s[i].Date.Format("2006-01-02"), s[i-1].Date.Format("2006-01-02"))
		}
	}
	return nil
}

// Closes returns the close column.
func (s PriceSeries) Closes() []float64 {
	out := make([]float64, len(s))
	for i, p := range s {
		out[i] = p.Close
	}
	return out
}

// Dates returns the date column.
func (s PriceSeries) Dates() []time.Time {
	out := make([]time.Time, len(s))
	for i, p := range s {
		out[i] = p.Date
	}
	return out
}

// Between returns the rows whose dates fall in [start, end]. A zero bound is open.
func (s PriceSeries) Between(start, end time.Time) PriceSeries {
	out := make(PriceSeries, 0, len(s))
	for _, p := range s {
		if !start.IsZero() && p.Date.Before(Day(start)) {
			continue
		}
		if !end.IsZero() && p.Date.After(Day(end)) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// First returns the earliest date, or the zero time for an empty series.
func (s PriceSeries) First() time.Time {
	if len(s) == 0 {
		return time.Time{}
	}
	return s[0].Date
}

// Last returns the latest date, or the zero time for an empty series.
func (s PriceSeries) Last() time.Time {
	if len(s) == 0 {
		return time.Time{}
	}
	return s[len(s)-1].Date
}

// Sorted returns a copy ordered by date.
func (s SentimentSeries) Sorted() SentimentSeries {
	out := make(SentimentSeries, len(s))
	copy(out, s)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}
