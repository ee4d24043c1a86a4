package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/sawpanic/cryptolens/internal/application/scheduler"
	"github.com/sawpanic/cryptolens/internal/application/signals"
	"github.com/sawpanic/cryptolens/internal/backtest"
	"github.com/sawpanic/cryptolens/internal/report/perf"
)

// runReport is what the backtest command prints.
type runReport struct {
	BacktestID string `json:"backtest_id,omitempty"`
	*backtest.Result
	Alerts []perf.Alert `json:"alerts"`
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func pct(v float64) string { return fmt.Sprintf("%.2f%%", v*100) }

func printReport(w io.Writer, r runReport) {
	res := r.Result
	fmt.Fprintf(w, "%s (%s) %s  %s to %s\n", res.Coin, res.Symbol, res.StrategyName, res.StartDate, res.EndDate)
	if r.BacktestID != "" {
		fmt.Fprintf(w, "saved as %s\n", r.BacktestID)
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	rows := [][2]string{
		{"Initial capital", fmt.Sprintf("%.2f", res.InitialCapital)},
		{"Total return", pct(res.TotalReturn)},
		{"Annualized return", pct(res.AnnualizedReturn)},
		{"Benchmark return", pct(res.BenchmarkReturn)},
		{"Alpha", pct(res.Alpha)},
		{"Sharpe ratio", fmt.Sprintf("%.2f", res.SharpeRatio)},
		{"Sortino ratio", fmt.Sprintf("%.2f", res.SortinoRatio)},
		{"Calmar ratio", fmt.Sprintf("%.2f", res.CalmarRatio)},
		{"Max drawdown", pct(res.MaxDrawdown)},
		{"Volatility", pct(res.Volatility)},
		{"Trades", strconv.Itoa(res.TotalTrades)},
		{"Win rate", pct(res.WinRate)},
		{"Avg trade days", fmt.Sprintf("%.1f", res.AvgTradeDurationDays)},
	}
	for _, row := range rows {
		fmt.Fprintf(tw, "%s\t%s\n", row[0], row[1])
	}
	tw.Flush()

	if len(res.TradeLog) > 0 {
		fmt.Fprintln(w)
		tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
		fmt.Fprintln(tw, "Entry\tExit\tEntry price\tExit price\tReturn\tDays\t")
		for _, t := range res.TradeLog {
			fmt.Fprintf(tw, "%s\t%s\t%.2f\t%.2f\t%s\t%d\t\n",
				t.EntryDate, t.ExitDate, t.EntryPrice, t.ExitPrice, pct(t.Return), t.DurationDays)
		}
		tw.Flush()
	}

	if len(r.Alerts) > 0 {
		fmt.Fprintln(w)
		for _, a := range r.Alerts {
			fmt.Fprintf(w, "%-7s %s\n", a.Severity, a.Message)
		}
	}
}

func printComparison(w io.Writer, results []*backtest.Result) {
	if len(results) > 0 {
		fmt.Fprintf(w, "%s  %s to %s\n\n", results[0].Coin, results[0].StartDate, results[0].EndDate)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Strategy\tReturn\tSharpe\tMax DD\tWin rate\tTrades\tAlpha")
	fmt.Fprintln(tw, "--------\t------\t------\t------\t--------\t------\t-----")
	for _, r := range results {
		fmt.Fprintf(tw, "%s\t%s\t%.2f\t%s\t%s\t%d\t%s\n",
			r.StrategyName, pct(r.TotalReturn), r.SharpeRatio, pct(r.MaxDrawdown), pct(r.WinRate), r.TotalTrades, pct(r.Alpha))
	}
	tw.Flush()
}

func opt(v *float64, format string) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf(format, *v)
}

func printSummary(w io.Writer, s *signals.Summary) {
	fmt.Fprintf(w, "%s on %s: %s (score %.3f)\n", s.Coin, s.Date, s.Signal, s.CompositeScore)
	fmt.Fprintf(w, "price $%.2f, 7d %+.2f%%\n\n", s.PriceUSD, s.PriceChange7dPct)

	ind := s.Indicators
	label := "n/a"
	if ind.FearGreedLabel != nil {
		label = *ind.FearGreedLabel
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "RSI(14)\t%s\t%s\n", opt(ind.RSI14, "%.1f"), ind.RSIInterpretation)
	fmt.Fprintf(tw, "MACD hist\t%s\t%s\n", opt(ind.MACDHist, "%.4f"), ind.MACDInterpretation)
	fmt.Fprintf(tw, "Bollinger %%B\t%s\t%s\n", opt(ind.BBPct, "%.2f"), ind.BBInterpretation)
	fmt.Fprintf(tw, "Fear & Greed\t%s\t%s\n", opt(ind.FearGreedIndex, "%.0f"), label)
	fmt.Fprintf(tw, "Volume 24h\t%s\t\n", opt(ind.VolumeChange24h, "%+.2f%%"))
	tw.Flush()
}

func printJobResult(w io.Writer, r scheduler.JobResult) {
	fmt.Fprintf(w, "refreshed %d coins in %s\n", len(r.Refreshed), r.Duration.Round(time.Millisecond))
	for coin, reason := range r.Failed {
		fmt.Fprintf(w, "FAILED  %s: %s\n", coin, reason)
	}
}
