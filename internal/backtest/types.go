// Package backtest runs strategies end to end: load history, build the
// indicator frame, simulate, and report.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sawpanic/cryptolens/internal/backtest/sim"
	"github.com/sawpanic/cryptolens/internal/domain/market"
	"github.com/sawpanic/cryptolens/internal/report/perf"
	"github.com/sawpanic/cryptolens/internal/strategy"
)

// DataSource supplies history. PriceSeries fails with market.ErrNotFound for
// an unknown asset and market.ErrInsufficientData when fewer than
// market.MinBacktestRows rows fall inside [start, end]. Zero bounds are open.
type DataSource interface {
	Asset(ctx context.Context, id string) (market.Asset, error)
	PriceSeries(ctx context.Context, id string, start, end time.Time) (market.PriceSeries, error)
	SentimentSeries(ctx context.Context, limit int) (market.SentimentSeries, error)
}

// Request describes one run.
type Request struct {
	Asset          string        `json:"coin"`
	Strategy       strategy.Kind `json:"-"`
	Start          market.Date   `json:"start_date"`
	End            market.Date   `json:"end_date"`
	InitialCapital float64       `json:"initial_capital"`
	Commission     float64       `json:"commission"`
	Slippage       float64       `json:"slippage"`
}

// DefaultRequest returns a request with the standard capital and costs.
func DefaultRequest(asset string, kind strategy.Kind) Request {
	cfg := sim.DefaultConfig()
	return Request{
		Asset:          asset,
		Strategy:       kind,
		InitialCapital: cfg.InitialCapital,
		Commission:     cfg.Commission,
		Slippage:       cfg.Slippage,
	}
}

func (r Request) simConfig() sim.Config {
	return sim.Config{InitialCapital: r.InitialCapital, Commission: r.Commission, Slippage: r.Slippage}
}

// ErrInvalidRequest wraps every Request validation failure.
var ErrInvalidRequest = errors.New("invalid backtest request")

// Validate checks the request before any data is loaded.
func (r Request) Validate() error {
	if r.Asset == "" {
		return fmt.Errorf("%w: coin id is required", ErrInvalidRequest)
	}
	if !r.Start.IsZero() && !r.End.IsZero() && r.End.Before(r.Start.Time) {
		return fmt.Errorf("%w: end date %s is before start date %s", ErrInvalidRequest, r.End, r.Start)
	}
	if err := r.simConfig().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return nil
}

// EquityPoint is one row of the reported equity curve.
type EquityPoint struct {
	Date           market.Date `json:"date"`
	Value          float64     `json:"value"`
	BenchmarkValue float64     `json:"benchmark_value"`
}

// TradeEntry is one reported round trip.
type TradeEntry struct {
	EntryDate    market.Date `json:"entry_date"`
	ExitDate     market.Date `json:"exit_date"`
	EntryPrice   float64     `json:"entry_price"`
	ExitPrice    float64     `json:"exit_price"`
	Return       float64     `json:"return"`
	DurationDays int         `json:"duration_days"`
	Profitable   bool        `json:"profitable"`
}

// Result is the immutable report of one run. Identical inputs produce an
// identical Result.
type Result struct {
	Coin           string             `json:"coin"`
	Symbol         string             `json:"symbol"`
	StrategyName   string             `json:"strategy_name"`
	StrategyParams map[string]float64 `json:"strategy_params"`
	StartDate      market.Date        `json:"start_date"`
	EndDate        market.Date        `json:"end_date"`
	InitialCapital float64            `json:"initial_capital"`

	perf.Metrics

	EquityCurve []EquityPoint `json:"equity_curve"`
	TradeLog    []TradeEntry  `json:"trade_log"`
}
