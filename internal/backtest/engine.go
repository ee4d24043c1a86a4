package backtest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/cryptolens/internal/backtest/sim"
	"github.com/sawpanic/cryptolens/internal/domain/indicators"
	"github.com/sawpanic/cryptolens/internal/domain/market"
	"github.com/sawpanic/cryptolens/internal/domain/sentiment"
	"github.com/sawpanic/cryptolens/internal/report/perf"
	"github.com/sawpanic/cryptolens/internal/score/composite"
	"github.com/sawpanic/cryptolens/internal/strategy"
)

// ErrAllStrategiesFailed is returned by Compare when no variant produced a result.
var ErrAllStrategiesFailed = errors.New("all strategies failed")

// DefaultCompareStart is the window start Compare uses when none is given.
var DefaultCompareStart = market.Date{Time: time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)}

// sentimentSlack is how many readings beyond the price row count are requested.
const sentimentSlack = 10

// Clock interface for time operations (injectable for testing)
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using real time
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// Observer receives one call per finished run.
type Observer interface {
	ObserveBacktest(strategy string, duration time.Duration, err error)
}

// Engine runs backtests against a DataSource. It is safe for concurrent use.
type Engine struct {
	source   DataSource
	scorer   *composite.Scorer
	analyzer *perf.Analyzer
	clock    Clock
	observer Observer
}

// NewEngine creates an engine with the default scorer and analyzer.
func NewEngine(source DataSource) *Engine {
	return &Engine{
		source:   source,
		scorer:   composite.NewScorer(),
		analyzer: perf.NewAnalyzer(perf.DefaultConfig()),
		clock:    RealClock{},
	}
}

// SetClock sets the clock implementation (for testing)
func (e *Engine) SetClock(clock Clock) { e.clock = clock }

// SetObserver installs a metrics sink.
func (e *Engine) SetObserver(o Observer) { e.observer = o }

// SetAnalyzerConfig replaces the annualization constants.
func (e *Engine) SetAnalyzerConfig(cfg perf.Config) { e.analyzer = perf.NewAnalyzer(cfg) }

// BenchmarkFor returns the buy-and-hold benchmark for an asset.
func BenchmarkFor(asset string) string {
	if asset == "bitcoin" {
		return "ethereum"
	}
	return "bitcoin"
}

// Run executes one backtest. Only market.ErrNotFound, market.ErrInsufficientData
// and invalid requests fail a run; missing sentiment or benchmark data degrade.
func (e *Engine) Run(ctx context.Context, req Request) (*Result, error) {
	began := time.Now()
	strat := strategy.New(req.Strategy)
	res, err := e.run(ctx, req, strat)
	if e.observer != nil {
		e.observer.ObserveBacktest(strat.Name(), time.Since(began), err)
	}
	return res, err
}

func (e *Engine) run(ctx context.Context, req Request, strat strategy.Strategy) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	logger := log.With().Str("coin", req.Asset).Str("strategy", strat.Name()).Logger()

	asset, err := e.source.Asset(ctx, req.Asset)
	if err != nil {
		return nil, err
	}

	// Indicators run over the requested window only, so warm-up rows fall inside it.
	series, err := e.source.PriceSeries(ctx, req.Asset, req.Start.Time, req.End.Time)
	if err != nil {
		return nil, err
	}
	if err := series.Validate(); err != nil {
		return nil, fmt.Errorf("coin %s: %w", req.Asset, err)
	}
	if err := market.CheckRows(req.Asset, len(series)); err != nil {
		return nil, err
	}

	readings, err := e.source.SentimentSeries(ctx, len(series)+sentimentSlack)
	if err != nil {
		logger.Warn().Err(err).Msg("Sentiment unavailable, scoring without it")
		readings = nil
	}

	frame := e.scorer.Apply(sentiment.Align(indicators.Compute(series), readings))
	positions := strat.Positions(frame)
	path, err := sim.Simulate(series, positions, req.simConfig())
	if err != nil {
		return nil, err
	}

	dates := series.Dates()
	benchID := BenchmarkFor(req.Asset)
	var benchSeries market.PriceSeries
	if bs, err := e.source.PriceSeries(ctx, benchID, dates[0], dates[len(dates)-1]); err != nil {
		logger.Warn().Err(err).Str("benchmark", benchID).Msg("Benchmark unavailable, using zero returns")
	} else {
		benchSeries = bs
	}
	benchReturns := perf.AlignBenchmark(dates, benchSeries)

	metrics, err := e.analyzer.Analyze(path, req.InitialCapital, benchReturns)
	if err != nil {
		return nil, err
	}

	symbol := asset.Symbol
	if symbol == "" {
		symbol = market.DefaultSymbol(req.Asset)
	}

	logger.Debug().
		Int("rows", len(series)).
		Int("trades", metrics.TotalTrades).
		Float64("total_return", metrics.TotalReturn).
		Msg("Backtest complete")

	return &Result{
		Coin:           req.Asset,
		Symbol:         symbol,
		StrategyName:   strat.Name(),
		StrategyParams: strat.Params(),
		StartDate:      market.NewDate(dates[0]),
		EndDate:        market.NewDate(dates[len(dates)-1]),
		InitialCapital: req.InitialCapital,
		Metrics:        *metrics,
		EquityCurve:    equityCurve(path, perf.BenchmarkCurve(req.InitialCapital, benchReturns)),
		TradeLog:       tradeLog(path.Trades),
	}, nil
}

// Compare runs every kind (all kinds when none are given) in parallel and
// returns the successful results sorted by Sharpe ratio, best first. A zero
// window defaults to DefaultCompareStart through today.
func (e *Engine) Compare(ctx context.Context, req Request, kinds ...strategy.Kind) ([]*Result, error) {
	if len(kinds) == 0 {
		kinds = strategy.Kinds()
	}
	if req.Start.IsZero() {
		req.Start = DefaultCompareStart
	}
	if req.End.IsZero() {
		req.End = market.NewDate(e.clock.Now())
	}

	results := make([]*Result, len(kinds))
	errs := make([]error, len(kinds))
	var wg sync.WaitGroup
	for i, k := range kinds {
		wg.Add(1)
		go func(i int, k strategy.Kind) {
			defer wg.Done()
			r := req
			r.Strategy = k
			results[i], errs[i] = e.Run(ctx, r)
		}(i, k)
	}
	wg.Wait()

	out := make([]*Result, 0, len(kinds))
	var failed []error
	for i, res := range results {
		if errs[i] != nil {
			log.Warn().Err(errs[i]).Str("coin", req.Asset).Str("strategy", kinds[i].ID()).Msg("Strategy skipped in comparison")
			failed = append(failed, fmt.Errorf("%s: %w", kinds[i].ID(), errs[i]))
			continue
		}
		out = append(out, res)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrAllStrategiesFailed, errors.Join(failed...))
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].SharpeRatio > out[j].SharpeRatio })
	return out, nil
}

// window returns the [lo, hi) slice bounds of rows inside [start, end].
func equityCurve(path *sim.Result, bench []float64) []EquityPoint {
	out := make([]EquityPoint, len(path.Days))
	for i, d := range path.Days {
		out[i] = EquityPoint{
			Date:           market.NewDate(d.Date),
			Value:          perf.RoundValue(d.Equity),
			BenchmarkValue: perf.RoundValue(bench[i]),
		}
	}
	return out
}

func tradeLog(trades []sim.Trade) []TradeEntry {
	out := make([]TradeEntry, len(trades))
	for i, t := range trades {
		out[i] = TradeEntry{
			EntryDate:    market.NewDate(t.EntryDate),
			ExitDate:     market.NewDate(t.ExitDate),
			EntryPrice:   perf.RoundPrice(t.EntryPrice),
			ExitPrice:    perf.RoundPrice(t.ExitPrice),
			Return:       perf.RoundPrice(t.Return),
			DurationDays: t.DurationDays,
			Profitable:   t.Profitable,
		}
	}
	return out
}
