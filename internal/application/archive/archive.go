// Package archive saves backtest reports and reads them back.
package archive

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/cryptolens/internal/backtest"
	"github.com/sawpanic/cryptolens/internal/persistence"
)

// DefaultListLimit bounds List when no limit is given.
const DefaultListLimit = 20

type Archive struct {
	coins persistence.CoinsRepo
	runs  persistence.BacktestsRepo
	newID func() string
}

func New(repo *persistence.Repository) *Archive {
	return &Archive{coins: repo.Coins, runs: repo.Backtests, newID: uuid.NewString}
}

// Save stores the report and returns its backtest id.
func (a *Archive) Save(ctx context.Context, res *backtest.Result) (string, error) {
	coin, err := a.coins.Get(ctx, res.Coin)
	if err != nil {
		return "", err
	}
	body, err := json.Marshal(res)
	if err != nil {
		return "", fmt.Errorf("encode backtest result: %w", err)
	}

	run := persistence.BacktestRun{
		BacktestID:     a.newID(),
		CoinID:         coin.ID,
		StrategyName:   res.StrategyName,
		StartDate:      res.StartDate,
		EndDate:        res.EndDate,
		InitialCapital: res.InitialCapital,
		TotalReturn:    res.TotalReturn,
		SharpeRatio:    res.SharpeRatio,
		MaxDrawdown:    res.MaxDrawdown,
		TotalTrades:    res.TotalTrades,
		Result:         body,
	}
	if err := a.runs.Save(ctx, run); err != nil {
		return "", err
	}
	log.Info().Str("coin", res.Coin).Str("strategy", res.StrategyName).Str("backtest_id", run.BacktestID).Msg("Saved backtest")
	return run.BacktestID, nil
}

// Get loads a saved report. Unknown ids wrap market.ErrNotFound.
func (a *Archive) Get(ctx context.Context, backtestID string) (*backtest.Result, error) {
	run, err := a.runs.Get(ctx, backtestID)
	if err != nil {
		return nil, err
	}
	var res backtest.Result
	if err := json.Unmarshal(run.Result, &res); err != nil {
		return nil, fmt.Errorf("decode backtest %s: %w", backtestID, err)
	}
	return &res, nil
}

// List returns summaries of the newest runs for a coin.
func (a *Archive) List(ctx context.Context, coinID string, limit int) ([]persistence.BacktestRun, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	coin, err := a.coins.Get(ctx, coinID)
	if err != nil {
		return nil, err
	}
	runs, err := a.runs.ListByCoin(ctx, coin.ID, limit)
	if err != nil {
		return nil, err
	}
	for i := range runs {
		runs[i].Result = nil
	}
	return runs, nil
}
