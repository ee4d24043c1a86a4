package perf

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/cryptolens/internal/backtest/sim"
	"github.com/sawpanic/cryptolens/internal/domain/market"
)

var day0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func pathOf(equity []float64, trades ...sim.Trade) *sim.Result {
	days := make([]sim.Day, len(equity))
	for i, v := range equity {
		days[i] = sim.Day{Date: day0.AddDate(0, 0, i), Equity: v}
		if i > 0 {
			days[i].StrategyReturn = v/equity[i-1] - 1
		}
	}
	if trades == nil {
		trades = []sim.Trade{}
	}
	return &sim.Result{Days: days, Trades: trades}
}

func TestMaxDrawdown_Scenario(t *testing.T) {
	dd := MaxDrawdown([]float64{10000, 10100, 9900, 10200})
	assert.InDelta(t, -0.0198, dd, 1e-4)
	assert.InDelta(t, -200.0/10100, dd, 1e-15)
}

func TestMaxDrawdown_NeverPositive(t *testing.T) {
	assert.Equal(t, 0.0, MaxDrawdown([]float64{1, 2, 3, 4}))
	assert.Equal(t, 0.0, MaxDrawdown(nil))
	assert.LessOrEqual(t, MaxDrawdown([]float64{5, 1, 7, 2}), 0.0)
}

func TestAnalyze_FlatCurve(t *testing.T) {
	a := NewAnalyzer(DefaultConfig())
	equity := make([]float64, 40)
	for i := range equity {
		equity[i] = 10000
	}
	m, err := a.Analyze(pathOf(equity), 10000, make([]float64, 40))
	require.NoError(t, err)

	assert.Equal(t, 0.0, m.TotalReturn)
	assert.Equal(t, 0.0, m.AnnualizedReturn)
	assert.Equal(t, 0.0, m.Volatility)
	assert.Equal(t, 0.0, m.SharpeRatio)
	assert.Equal(t, 0.0, m.SortinoRatio)
	assert.Equal(t, 0.0, m.MaxDrawdown)
	assert.Equal(t, 0.0, m.CalmarRatio)
	assert.Equal(t, 0, m.TotalTrades)
	assert.Equal(t, 0.0, m.WinRate)
	assert.Equal(t, 0.0, m.AvgTradeDurationDays)
}

func TestAnalyze_Formulas(t *testing.T) {
	equity := []float64{10000, 10100, 9900, 10200}
	trades := []sim.Trade{
		{Return: 0.1, DurationDays: 4, Profitable: true},
		{Return: -0.05, DurationDays: 2},
	}
	bench := []float64{0, 0.01, 0.02, -0.01}

	a := NewAnalyzer(DefaultConfig())
	m, err := a.Analyze(pathOf(equity, trades...), 10000, bench)
	require.NoError(t, err)

	returns := []float64{0, 0.01, 9900.0/10100 - 1, 10200.0/9900 - 1}
	std := StdDev(returns)

	assert.InDelta(t, 0.02, m.TotalReturn, 1e-12)
	assert.InDelta(t, math.Pow(1.02, 365.0/4)-1, m.AnnualizedReturn, 1e-9)
	assert.InDelta(t, std*math.Sqrt(365), m.Volatility, 1e-12)
	assert.InDelta(t, (Mean(returns)-0.045/365)/std*math.Sqrt(365), m.SharpeRatio, 1e-9)

	// One negative day: downside deviation is undefined.
	assert.Equal(t, 0.0, m.SortinoRatio)

	assert.InDelta(t, -200.0/10100, m.MaxDrawdown, 1e-15)
	assert.InDelta(t, m.AnnualizedReturn/(200.0/10100), m.CalmarRatio, 1e-9)
	assert.Greater(t, m.CalmarRatio, 0.0)

	wantBench := 1.01*1.02*0.99 - 1
	assert.InDelta(t, wantBench, m.BenchmarkReturn, 1e-12)
	assert.InDelta(t, 0.02-wantBench, m.Alpha, 1e-12)

	assert.Equal(t, 2, m.TotalTrades)
	assert.Equal(t, 0.5, m.WinRate)
	assert.Equal(t, 3.0, m.AvgTradeDurationDays)
}

func TestAnalyze_Sortino(t *testing.T) {
	equity := []float64{100, 98, 99, 97, 101}
	a := NewAnalyzer(DefaultConfig())
	m, err := a.Analyze(pathOf(equity), 100, nil)
	require.NoError(t, err)

	downside := []float64{-0.02, 97.0/99 - 1}
	want := (m.AnnualizedReturn - 0.045) / (StdDev(downside) * math.Sqrt(365))
	assert.InDelta(t, want, m.SortinoRatio, 1e-9)
	assert.Equal(t, 0.0, m.BenchmarkReturn)
}

func TestAnalyze_TinyDeviationStillRatio(t *testing.T) {
	a := NewAnalyzer(DefaultConfig())
	m, err := a.Analyze(pathOf([]float64{100, 100, 100 + 1e-11}), 100, nil)
	require.NoError(t, err)

	returns := []float64{0, 0, (100+1e-11)/100 - 1}
	std := StdDev(returns)
	require.Greater(t, std, 0.0)
	require.Less(t, std, 1e-12)
	assert.InEpsilon(t, (Mean(returns)-0.045/365)/std*math.Sqrt(365), m.SharpeRatio, 1e-9)
}

func TestAnalyze_CalmarSignTracksReturn(t *testing.T) {
	a := NewAnalyzer(DefaultConfig())
	m, err := a.Analyze(pathOf([]float64{100, 90, 95, 80}), 100, nil)
	require.NoError(t, err)
	assert.Less(t, m.AnnualizedReturn, 0.0)
	assert.Less(t, m.CalmarRatio, 0.0)
}

func TestAnalyze_Empty(t *testing.T) {
	_, err := NewAnalyzer(DefaultConfig()).Analyze(&sim.Result{}, 100, nil)
	assert.ErrorIs(t, err, ErrEmptyCurve)
}

func TestStdDev(t *testing.T) {
	assert.Equal(t, 0.0, StdDev(nil))
	assert.Equal(t, 0.0, StdDev([]float64{3}))
	assert.InDelta(t, math.Sqrt(2.5), StdDev([]float64{1, 2, 3, 4, 5}), 1e-12)
}

func TestAlignBenchmark(t *testing.T) {
	bench := market.PriceSeries{
		{Date: day0, Close: 100},
		{Date: day0.AddDate(0, 0, 1), Close: 110},
		{Date: day0.AddDate(0, 0, 3), Close: 99},
	}
	dates := []time.Time{day0, day0.AddDate(0, 0, 1), day0.AddDate(0, 0, 2), day0.AddDate(0, 0, 3), day0.AddDate(0, 0, 4)}

	got := AlignBenchmark(dates, bench)
	require.Len(t, got, 5)
	assert.Equal(t, 0.0, got[0])
	assert.InDelta(t, 0.1, got[1], 1e-12)
	assert.Equal(t, 0.0, got[2])
	assert.InDelta(t, -0.1, got[3], 1e-12)
	assert.Equal(t, 0.0, got[4])

	assert.Equal(t, []float64{0, 0, 0}, AlignBenchmark(dates[:3], nil))
}

func TestAlignBenchmark_EarlierHistory(t *testing.T) {
	bench := market.PriceSeries{
		{Date: day0.AddDate(0, 0, -1), Close: 80},
		{Date: day0, Close: 100},
		{Date: day0.AddDate(0, 0, 1), Close: 120},
	}
	dates := []time.Time{day0, day0.AddDate(0, 0, 1)}

	got := AlignBenchmark(dates, bench)
	assert.Equal(t, 0.0, got[0])
	assert.InDelta(t, 0.2, got[1], 1e-12)
	assert.InDeltaSlice(t, []float64{1000, 1200}, BenchmarkCurve(1000, got), 1e-9)
}

func TestBenchmarkCurve(t *testing.T) {
	curve := BenchmarkCurve(1000, []float64{0, 0.1, -0.5})
	assert.InDeltaSlice(t, []float64{1000, 1100, 550}, curve, 1e-9)
}

func TestRound(t *testing.T) {
	assert.Equal(t, 10123.46, RoundValue(10123.456))
	assert.Equal(t, 0.123457, RoundPrice(0.1234567))
	assert.Equal(t, -0.02, RoundValue(-0.0198))
}

func TestCheckAlerts(t *testing.T) {
	m := &Metrics{SharpeRatio: -0.4, MaxDrawdown: -0.6, Alpha: -0.1, TotalTrades: 0}
	alerts := CheckAlerts(m, DefaultThresholds())
	require.Len(t, alerts, 4)
	assert.Equal(t, "sharpe_ratio", alerts[0].Metric)
	assert.Equal(t, "max_drawdown", alerts[1].Metric)
	assert.Equal(t, "alpha", alerts[2].Metric)
	assert.Equal(t, "INFO", alerts[3].Severity)

	clean := &Metrics{SharpeRatio: 1.2, MaxDrawdown: -0.1, Alpha: 0.05, TotalTrades: 3}
	assert.Empty(t, CheckAlerts(clean, DefaultThresholds()))
}
