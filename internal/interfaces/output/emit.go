// Package output writes backtest reports to files.
package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/sawpanic/cryptolens/internal/backtest"
	"github.com/sawpanic/cryptolens/internal/report/perf"
)

// Emitter writes report files into one directory.
type Emitter struct {
	dir string
}

func NewEmitter(dir string) *Emitter {
	return &Emitter{dir: dir}
}

// EmitBacktest writes <coin>_<strategy>_equity.csv, _trades.csv and
// _report.json and returns their paths.
func (e *Emitter) EmitBacktest(res *backtest.Result, alerts []perf.Alert) ([]string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}
	base := filepath.Join(e.dir, res.Coin+"_"+res.StrategyName)

	equity := [][]string{{"date", "value", "benchmark_value"}}
	for _, p := range res.EquityCurve {
		equity = append(equity, []string{p.Date.String(), ftoa(p.Value), ftoa(p.BenchmarkValue)})
	}

	trades := [][]string{{"entry_date", "exit_date", "entry_price", "exit_price", "return", "duration_days", "profitable"}}
	for _, t := range res.TradeLog {
		trades = append(trades, []string{
			t.EntryDate.String(), t.ExitDate.String(), ftoa(t.EntryPrice), ftoa(t.ExitPrice),
			ftoa(t.Return), strconv.Itoa(t.DurationDays), strconv.FormatBool(t.Profitable),
		})
	}

	paths := []string{base + "_equity.csv", base + "_trades.csv", base + "_report.json"}
	if err := writeAtomic(paths[0], csvWriter(equity)); err != nil {
		return nil, err
	}
	if err := writeAtomic(paths[1], csvWriter(trades)); err != nil {
		return nil, err
	}

	// The JSON report omits the series already written as CSV.
	summary := *res
	summary.EquityCurve, summary.TradeLog = nil, nil
	report := struct {
		*backtest.Result
		Alerts []perf.Alert `json:"alerts"`
	}{&summary, alerts}
	if err := writeAtomic(paths[2], jsonWriter(report)); err != nil {
		return nil, err
	}
	return paths, nil
}

// EmitComparison writes <coin>_compare.csv, one row per strategy in rank order.
func (e *Emitter) EmitComparison(results []*backtest.Result) (string, error) {
	if len(results) == 0 {
		return "", fmt.Errorf("no results to write")
	}
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output dir: %w", err)
	}

	rows := [][]string{{
		"rank", "strategy", "start_date", "end_date", "total_return", "annualized_return", "sharpe_ratio",
		"sortino_ratio", "max_drawdown", "win_rate", "total_trades", "alpha", "benchmark_return",
	}}
	for i, r := range results {
		rows = append(rows, []string{
			strconv.Itoa(i + 1), r.StrategyName, r.StartDate.String(), r.EndDate.String(),
			ftoa(r.TotalReturn), ftoa(r.AnnualizedReturn), ftoa(r.SharpeRatio), ftoa(r.SortinoRatio),
			ftoa(r.MaxDrawdown), ftoa(r.WinRate), strconv.Itoa(r.TotalTrades), ftoa(r.Alpha), ftoa(r.BenchmarkReturn),
		})
	}

	path := filepath.Join(e.dir, results[0].Coin+"_compare.csv")
	return path, writeAtomic(path, csvWriter(rows))
}

func ftoa(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

func csvWriter(records [][]string) func(io.Writer) error {
	return func(w io.Writer) error {
		return csv.NewWriter(w).WriteAll(records)
	}
}

func jsonWriter(v interface{}) func(io.Writer) error {
	return func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
}

// writeAtomic writes through a temp file and renames it into place.
func writeAtomic(path string, write func(io.Writer) error) error {
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}
