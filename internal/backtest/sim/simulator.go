// Package sim walks a position series over a price series and produces the
// equity curve and trade log of a long-only, single-position portfolio.
package sim

import (
	"errors"
	"fmt"
	"time"

	"github.com/sawpanic/cryptolens/internal/domain/market"
	"github.com/sawpanic/cryptolens/internal/strategy"
)

// Config holds the capital and per-flip costs.
type Config struct {
	InitialCapital float64 `json:"initial_capital" yaml:"initial_capital"` // Starting equity
	Commission     float64 `json:"commission" yaml:"commission"`           // Fraction charged per position change
	Slippage       float64 `json:"slippage" yaml:"slippage"`               // Fraction charged per position change
}

// DefaultConfig returns 10k capital with 10bp commission and 10bp slippage.
func DefaultConfig() Config {
	return Config{
		InitialCapital: 10000,
		Commission:     0.001,
		Slippage:       0.001,
	}
}

// Validate rejects non-positive capital and negative costs.
func (c Config) Validate() error {
	if c.InitialCapital <= 0 {
		return fmt.Errorf("initial capital must be positive, got %g", c.InitialCapital)
	}
	if c.Commission < 0 || c.Slippage < 0 {
		return fmt.Errorf("commission and slippage must be non-negative")
	}
	return nil
}

// ErrLengthMismatch is returned when positions and prices differ in length.
var ErrLengthMismatch = errors.New("position series length does not match price series")

// Day is one simulated row.
type Day struct {
	Date           time.Time      `json:"date"`
	Close          float64        `json:"close"`
	Position       strategy.State `json:"position"`
	AssetReturn    float64        `json:"asset_return"`
	Cost           float64        `json:"cost"`
	StrategyReturn float64        `json:"strategy_return"`
	Equity         float64        `json:"equity"`
}

// Trade is one completed round trip. Open positions are force-closed on the last row.
type Trade struct {
	EntryDate    time.Time `json:"entry_date"`
	ExitDate     time.Time `json:"exit_date"`
	EntryPrice   float64   `json:"entry_price"`
	ExitPrice    float64   `json:"exit_price"`
	Return       float64   `json:"return"`
	DurationDays int       `json:"duration_days"`
	Profitable   bool      `json:"profitable"`
}

// Result is the simulated path.
type Result struct {
	Days   []Day   `json:"days"`
	Trades []Trade `json:"trades"`
}

// Equity returns the equity column.
func (r *Result) Equity() []float64 {
	out := make([]float64, len(r.Days))
	for i, d := range r.Days {
		out[i] = d.Equity
	}
	return out
}

// Returns returns the daily strategy returns, row 0 included as 0.
func (r *Result) Returns() []float64 {
	out := make([]float64, len(r.Days))
	for i, d := range r.Days {
		out[i] = d.StrategyReturn
	}
	return out
}

// Dates returns the date column.
func (r *Result) Dates() []time.Time {
	out := make([]time.Time, len(r.Days))
	for i, d := range r.Days {
		out[i] = d.Date
	}
	return out
}

// Simulate runs the portfolio. Yesterday's position earns today's move and the
// flip cost lands on the day the position changes. Row 0 carries no cost, so
// equity[0] is exactly the initial capital.
func Simulate(series market.PriceSeries, positions strategy.PositionSeries, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(positions) != len(series) {
		return nil, fmt.Errorf("%w: %d positions for %d prices", ErrLengthMismatch, len(positions), len(series))
	}
	if len(series) < market.MinBacktestRows {
		return nil, &market.InsufficientDataError{Rows: len(series), Required: market.MinBacktestRows}
	}

	flipCost := cfg.Commission + cfg.Slippage
	days := make([]Day, len(series))
	equity := cfg.InitialCapital
	for i, p := range series {
		d := Day{Date: p.Date, Close: p.Close, Position: positions[i]}
		if i > 0 {
			prev := series[i-1].Close
			if prev != 0 {
				d.AssetReturn = p.Close/prev - 1
			}
			if positions[i] != positions[i-1] {
				d.Cost = flipCost
			}
			d.StrategyReturn = positions[i-1].Exposure()*d.AssetReturn - d.Cost
			equity *= 1 + d.StrategyReturn
		}
		d.Equity = equity
		days[i] = d
	}

	return &Result{Days: days, Trades: tradeLog(days)}, nil
}

// tradeLog folds position transitions into round trips.
func tradeLog(days []Day) []Trade {
	trades := make([]Trade, 0)
	state := strategy.Flat
	var entry Day
	for _, d := range days {
		switch {
		case state == strategy.Flat && d.Position == strategy.Long:
			state, entry = strategy.Long, d
		case state == strategy.Long && d.Position == strategy.Flat:
			trades = append(trades, closeTrade(entry, d))
			state = strategy.Flat
		}
	}
	if state == strategy.Long && len(days) > 0 {
		trades = append(trades, closeTrade(entry, days[len(days)-1]))
	}
	return trades
}

func closeTrade(entry, exit Day) Trade {
	var ret float64
	if entry.Close != 0 {
		ret = exit.Close/entry.Close - 1
	}
	return Trade{
		EntryDate:    entry.Date,
		ExitDate:     exit.Date,
		EntryPrice:   entry.Close,
		ExitPrice:    exit.Close,
		Return:       ret,
		DurationDays: int(market.Day(exit.Date).Sub(market.Day(entry.Date)).Hours() / 24),
		Profitable:   ret > 0,
	}
}
