package market

import (
	"errors"
	"fmt"
)

// MinBacktestRows is the smallest aligned history a backtest will run on.
const MinBacktestRows = 30

var (
	// ErrNotFound means the asset was never ingested.
	ErrNotFound = errors.New("not found")

	// ErrInsufficientData means fewer than MinBacktestRows usable rows remain.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrDependencyUnavailable marks a failed sentiment or benchmark fetch. Callers degrade, never abort.
	ErrDependencyUnavailable = errors.New("external dependency unavailable")
)

// InsufficientDataError carries the row counts behind ErrInsufficientData.
type InsufficientDataError struct {
	Asset    string
	Rows     int
	Required int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("not enough data for %s: %d rows, need %d", e.Asset, e.Rows, e.Required)
}

func (e *InsufficientDataError) Unwrap() error {
	return ErrInsufficientData
}

// NotFoundError wraps ErrNotFound with the asset id.
func NotFoundError(asset string) error {
	return fmt.Errorf("coin %s: %w", asset, ErrNotFound)
}

// CheckRows returns an InsufficientDataError when rows < MinBacktestRows.
func CheckRows(asset string, rows int) error {
	if rows < MinBacktestRows {
		return &InsufficientDataError{Asset: asset, Rows: rows, Required: MinBacktestRows}
	}
	return nil
}
