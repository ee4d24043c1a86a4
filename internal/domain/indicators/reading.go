package indicators

import (
	"encoding/json"
	"math"
)

// Reading is an indicator value that may be missing during a warm-up window.
// A missing reading is never treated as zero.
type Reading struct {
	Value float64
	Valid bool
}

// Missing is the zero Reading.
var Missing = Reading{}

// Some wraps a present value. NaN and Inf become Missing.
func Some(v float64) Reading {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Missing
	}
	return Reading{Value: v, Valid: true}
}

// FromPtr converts a nullable column value.
func FromPtr(v *float64) Reading {
	if v == nil {
		return Missing
	}
	return Some(*v)
}

// Ptr returns nil for a missing reading, for nullable storage.
func (r Reading) Ptr() *float64 {
	if !r.Valid {
		return nil
	}
	v := r.Value
	return &v
}

// Or returns the value, or fallback when missing.
func (r Reading) Or(fallback float64) float64 {
	if !r.Valid {
		return fallback
	}
	return r.Value
}

func (r Reading) MarshalJSON() ([]byte, error) {
	if !r.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(r.Value)
}

func (r *Reading) UnmarshalJSON(b []byte) error {
	var v *float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*r = FromPtr(v)
	return nil
}
