package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/cryptolens/internal/backtest"
	"github.com/sawpanic/cryptolens/internal/domain/market"
	"github.com/sawpanic/cryptolens/internal/report/perf"
	"github.com/sawpanic/cryptolens/internal/strategy"
)

// writePriceCSV writes a daily sine-wave series so every strategy trades.
func writePriceCSV(t *testing.T, dir, id string, days int) {
	t.Helper()
	var b strings.Builder
	b.WriteString("date,open,high,low,close,volume\n")
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < days; i++ {
		c := 100 + 20*math.Sin(float64(i)/8) + float64(i)*0.05
		fmt.Fprintf(&b, "%s,%.4f,%.4f,%.4f,%.4f,%d\n",
			start.AddDate(0, 0, i).Format(market.DateLayout), c, c*1.01, c*0.99, c, 1000+i)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, id+".csv"), []byte(b.String()), 0o600))
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestBacktestCommand_CSVDataDir(t *testing.T) {
	dir := t.TempDir()
	writePriceCSV(t, dir, "bitcoin", 150)
	writePriceCSV(t, dir, "ethereum", 150)
	t.Setenv("CRYPTOLENS_DATA_DIR", dir)

	out, err := runCLI(t, "backtest", "bitcoin", "--strategy", "rsi", "--start", "2023-02-01", "--capital", "5000", "--json")
	require.NoError(t, err, out)

	var report struct {
		Coin           string       `json:"coin"`
		StrategyName   string       `json:"strategy_name"`
		StartDate      market.Date  `json:"start_date"`
		InitialCapital float64      `json:"initial_capital"`
		EquityCurve    []struct{}   `json:"equity_curve"`
		Alerts         []perf.Alert `json:"alerts"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report), out)
	assert.Equal(t, "bitcoin", report.Coin)
	assert.Equal(t, "rsi_mean_reversion", report.StrategyName)
	assert.Equal(t, "2023-02-01", report.StartDate.String())
	assert.Equal(t, 5000.0, report.InitialCapital)
	assert.Len(t, report.EquityCurve, 150-31)
	assert.NotNil(t, report.Alerts)
}

func TestCompareCommand_Table(t *testing.T) {
	dir := t.TempDir()
	writePriceCSV(t, dir, "solana", 120)
	t.Setenv("CRYPTOLENS_DATA_DIR", dir)

	reports := filepath.Join(t.TempDir(), "reports")
	out, err := runCLI(t, "compare", "solana", "--strategies", "composite,rsi", "--csv", reports)
	require.NoError(t, err, out)
	assert.FileExists(t, filepath.Join(reports, "solana_compare.csv"))
	assert.Contains(t, out, "Strategy")
	assert.Contains(t, out, "composite")
	assert.Contains(t, out, "rsi_mean_reversion")
	assert.Contains(t, out, "2023-01-01")
}

func TestCommands_Errors(t *testing.T) {
	dir := t.TempDir()
	writePriceCSV(t, dir, "bitcoin", 40)
	t.Setenv("CRYPTOLENS_DATA_DIR", dir)

	tests := []struct {
		name string
		args []string
		code int
	}{
		{"unknown strategy", []string{"backtest", "bitcoin", "--strategy", "hodl"}, exitUsage},
		{"bad date", []string{"backtest", "bitcoin", "--start", "2023/01/01"}, exitUsage},
		{"bad capital", []string{"backtest", "bitcoin", "--capital", "-5"}, exitUsage},
		{"unknown coin", []string{"backtest", "dogecoin"}, exitNoData},
		{"short window", []string{"backtest", "bitcoin", "--start", "2023-02-01"}, exitNoData},
		{"needs postgres", []string{"signals", "bitcoin"}, exitError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCLI(t, tt.args...)
			require.Error(t, err)
			assert.Equal(t, tt.code, exitCode(err))
		})
	}
}

func TestBacktestCommand_NoStore(t *testing.T) {
	_, err := runCLI(t, "backtest", "bitcoin")
	assert.ErrorIs(t, err, errNoStore)
}

func testResult() *backtest.Result {
	d := func(day int) market.Date {
		return market.NewDate(time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC))
	}
	return &backtest.Result{
		Coin:           "bitcoin",
		Symbol:         "BTC",
		StrategyName:   "golden_cross",
		StartDate:      d(1),
		EndDate:        d(3),
		InitialCapital: 10000,
		Metrics:        perf.Metrics{TotalReturn: 0.05, SharpeRatio: 1.234, MaxDrawdown: -0.1, TotalTrades: 1, WinRate: 1},
		EquityCurve: []backtest.EquityPoint{
			{Date: d(1), Value: 10000, BenchmarkValue: 10000},
			{Date: d(2), Value: 10250.5, BenchmarkValue: 10100},
			{Date: d(3), Value: 10500, BenchmarkValue: 10200},
		},
		TradeLog: []backtest.TradeEntry{
			{EntryDate: d(1), ExitDate: d(3), EntryPrice: 40000, ExitPrice: 42000, Return: 0.05, DurationDays: 2, Profitable: true},
		},
	}
}

func TestPrintReport(t *testing.T) {
	var buf bytes.Buffer
	printReport(&buf, runReport{
		BacktestID: "run-1",
		Result:     testResult(),
		Alerts:     []perf.Alert{{Severity: "WARNING", Message: "Strategy trailed its benchmark by 1.0%"}},
	})
	out := buf.String()
	assert.Contains(t, out, "bitcoin (BTC) golden_cross  2024-01-01 to 2024-01-03")
	assert.Contains(t, out, "saved as run-1")
	assert.Contains(t, out, "5.00%")
	assert.Contains(t, out, "1.23")
	assert.Contains(t, out, "42000.00")
	assert.Contains(t, out, "WARNING Strategy trailed")
}

func TestPrintComparison(t *testing.T) {
	a, b := testResult(), testResult()
	b.StrategyName = "rsi_mean_reversion"
	var buf bytes.Buffer
	printComparison(&buf, []*backtest.Result{a, b})
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 6)
	assert.Equal(t, "bitcoin  2024-01-01 to 2024-01-03", lines[0])
	assert.True(t, strings.HasPrefix(lines[4], "golden_cross"))
	assert.True(t, strings.HasPrefix(lines[5], "rsi_mean_reversion"))
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, exitUsage, exitCode(fmt.Errorf("x: %w", strategy.ErrUnknownStrategy)))
	assert.Equal(t, exitNoData, exitCode(market.NotFoundError("x")))
	assert.Equal(t, exitUpstream, exitCode(fmt.Errorf("x: %w", market.ErrDependencyUnavailable)))
	assert.Equal(t, exitError, exitCode(errors.New("x")))
}
