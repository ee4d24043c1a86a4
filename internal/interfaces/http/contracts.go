package http

import (
	"time"

	"github.com/sawpanic/cryptolens/internal/backtest"
	"github.com/sawpanic/cryptolens/internal/domain/market"
)

// ErrorResponse is the body of every non-2xx reply
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Code      string    `json:"code"`
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// BacktestRequest is the POST /backtest body. Omitted costs and capital
// take the engine defaults.
type BacktestRequest struct {
	Coin           string      `json:"coin"`
	Strategy       string      `json:"strategy"`
	StartDate      market.Date `json:"start_date"`
	EndDate        market.Date `json:"end_date"`
	InitialCapital *float64    `json:"initial_capital,omitempty"`
	Commission     *float64    `json:"commission,omitempty"`
	Slippage       *float64    `json:"slippage,omitempty"`
	Save           bool        `json:"save"`
}

// CompareRequest is the POST /backtest/compare body. An empty strategy
// list compares every variant.
type CompareRequest struct {
	Coin           string      `json:"coin"`
	Strategies     []string    `json:"strategies,omitempty"`
	StartDate      market.Date `json:"start_date"`
	EndDate        market.Date `json:"end_date"`
	InitialCapital *float64    `json:"initial_capital,omitempty"`
	Commission     *float64    `json:"commission,omitempty"`
	Slippage       *float64    `json:"slippage,omitempty"`
}

// BacktestResponse is a report, plus its id when it was saved.
type BacktestResponse struct {
	BacktestID string `json:"backtest_id,omitempty"`
	*backtest.Result
}

// CompareRow is one strategy in a comparison table.
type CompareRow struct {
	Strategy        string  `json:"strategy"`
	TotalReturn     float64 `json:"total_return"`
	SharpeRatio     float64 `json:"sharpe_ratio"`
	MaxDrawdown     float64 `json:"max_drawdown"`
	WinRate         float64 `json:"win_rate"`
	TotalTrades     int     `json:"total_trades"`
	Alpha           float64 `json:"alpha"`
	BenchmarkReturn float64 `json:"benchmark_return"`
}

// CompareResponse lists strategies best Sharpe first.
type CompareResponse struct {
	Coin      string       `json:"coin"`
	StartDate market.Date  `json:"start_date"`
	EndDate   market.Date  `json:"end_date"`
	Results   []CompareRow `json:"results"`
}

// CountResponse reports rows written by a seed or compute call.
type CountResponse struct {
	Coin string `json:"coin"`
	Rows int    `json:"rows"`
}

func compareRows(results []*backtest.Result) []CompareRow {
	rows := make([]CompareRow, len(results))
	for i, r := range results {
		rows[i] = CompareRow{
			Strategy:        r.StrategyName,
			TotalReturn:     r.TotalReturn,
			SharpeRatio:     r.SharpeRatio,
			MaxDrawdown:     r.MaxDrawdown,
			WinRate:         r.WinRate,
			TotalTrades:     r.TotalTrades,
			Alpha:           r.Alpha,
			BenchmarkReturn: r.BenchmarkReturn,
		}
	}
	return rows
}
