// Package perf computes return and risk statistics for a simulated equity curve.
package perf

import (
	"errors"
	"math"
	"time"

	"github.com/sawpanic/cryptolens/internal/backtest/sim"
	"github.com/sawpanic/cryptolens/internal/domain/market"
)

// Metrics is the standard statistic set of one backtest.
type Metrics struct {
	TotalReturn          float64 `json:"total_return"`            // final/initial - 1
	AnnualizedReturn     float64 `json:"annualized_return"`       // Geometric, rows/365 years
	BenchmarkReturn      float64 `json:"benchmark_return"`        // Compounded aligned benchmark
	Alpha                float64 `json:"alpha"`                   // TotalReturn - BenchmarkReturn
	SharpeRatio          float64 `json:"sharpe_ratio"`            // Annualized, net of risk-free
	SortinoRatio         float64 `json:"sortino_ratio"`           // Downside deviation only
	CalmarRatio          float64 `json:"calmar_ratio"`            // Annualized return / |max drawdown|
	MaxDrawdown          float64 `json:"max_drawdown"`            // Always <= 0
	Volatility           float64 `json:"volatility_annualized"`   // Annualized stdev of daily returns
	WinRate              float64 `json:"win_rate"`                // Share of trades with positive return
	TotalTrades          int     `json:"total_trades"`            // Closed and force-closed trades
	AvgTradeDurationDays float64 `json:"avg_trade_duration_days"` // Mean calendar days per trade
}

// Config holds the annualization constants.
type Config struct {
	RiskFreeRate   float64 `yaml:"risk_free_rate"`   // Annual risk-free rate (default: 0.045)
	PeriodsPerYear int     `yaml:"periods_per_year"` // Calendar days, crypto trades every day (default: 365)
}

// DefaultConfig returns 4.5% risk-free over a 365-day year.
func DefaultConfig() Config {
	return Config{
		RiskFreeRate:   0.045,
		PeriodsPerYear: 365,
	}
}

// ErrEmptyCurve is returned for a simulation without rows.
var ErrEmptyCurve = errors.New("equity curve is empty")

// Analyzer computes Metrics. It holds no state between calls.
type Analyzer struct {
	config Config
}

// NewAnalyzer creates an analyzer; non-positive PeriodsPerYear falls back to 365.
func NewAnalyzer(config Config) *Analyzer {
	if config.PeriodsPerYear <= 0 {
		config.PeriodsPerYear = 365
	}
	return &Analyzer{config: config}
}

// Analyze computes every statistic from the simulated path and the benchmark
// daily returns already aligned to the path's dates.
func (a *Analyzer) Analyze(path *sim.Result, initialCapital float64, benchmark []float64) (*Metrics, error) {
	if path == nil || len(path.Days) == 0 {
		return nil, ErrEmptyCurve
	}
	equity := path.Equity()
	returns := path.Returns()
	periods := float64(a.config.PeriodsPerYear)
	annualizer := math.Sqrt(periods)

	m := &Metrics{}
	m.TotalReturn = equity[len(equity)-1]/initialCapital - 1

	years := float64(len(equity)) / periods
	if years > 0 {
		m.AnnualizedReturn = math.Pow(1+m.TotalReturn, 1/years) - 1
	}

	std := StdDev(returns)
	m.Volatility = std * annualizer
	if std > 0 {
		rfDaily := a.config.RiskFreeRate / periods
		m.SharpeRatio = (Mean(returns) - rfDaily) / std * annualizer
	}

	downside := make([]float64, 0, len(returns))
	for _, r := range returns {
		if r < 0 {
			downside = append(downside, r)
		}
	}
	if downStd := StdDev(downside) * annualizer; downStd > 0 {
		m.SortinoRatio = (m.AnnualizedReturn - a.config.RiskFreeRate) / downStd
	}

	m.MaxDrawdown = MaxDrawdown(equity)
	if m.MaxDrawdown != 0 {
		m.CalmarRatio = m.AnnualizedReturn / math.Abs(m.MaxDrawdown)
	}

	m.BenchmarkReturn = Compound(benchmark)
	m.Alpha = m.TotalReturn - m.BenchmarkReturn

	m.TotalTrades = len(path.Trades)
	if m.TotalTrades > 0 {
		wins, days := 0, 0
		for _, t := range path.Trades {
			if t.Profitable {
				wins++
			}
			days += t.DurationDays
		}
		m.WinRate = float64(wins) / float64(m.TotalTrades)
		m.AvgTradeDurationDays = float64(days) / float64(m.TotalTrades)
	}

	return m, nil
}

// MaxDrawdown returns the deepest fall from a running peak as a non-positive fraction.
func MaxDrawdown(equity []float64) float64 {
	worst, peak := 0.0, math.Inf(-1)
	for _, v := range equity {
		peak = math.Max(peak, v)
		if peak <= 0 {
			continue
		}
		if dd := (v - peak) / peak; dd < worst {
			worst = dd
		}
	}
	return worst
}

// Compound returns the product of (1+r) minus one.
func Compound(returns []float64) float64 {
	acc := 1.0
	for _, r := range returns {
		acc *= 1 + r
	}
	return acc - 1
}

// Mean returns the arithmetic mean, 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// StdDev returns the sample standard deviation, 0 for fewer than two values.
func StdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := Mean(values)
	ss := 0.0
	for _, v := range values {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(values)-1))
}

// AlignBenchmark converts a benchmark price series into daily returns on the
// given dates. Dates the benchmark does not cover get 0, and so does the first
// date: buy-and-hold starts there even when the benchmark history runs earlier.
func AlignBenchmark(dates []time.Time, bench market.PriceSeries) []float64 {
	byDay := make(map[time.Time]float64, len(bench))
	for i := 1; i < len(bench); i++ {
		if prev := bench[i-1].Close; prev != 0 {
			byDay[market.Day(bench[i].Date)] = bench[i].Close/prev - 1
		}
	}
	out := make([]float64, len(dates))
	for i, d := range dates {
		if i == 0 {
			continue
		}
		out[i] = byDay[market.Day(d)]
	}
	return out
}

// BenchmarkCurve compounds aligned returns into a buy-and-hold equity curve.
func BenchmarkCurve(initialCapital float64, returns []float64) []float64 {
	out := make([]float64, len(returns))
	v := initialCapital
	for i, r := range returns {
		v *= 1 + r
		out[i] = v
	}
	return out
}
