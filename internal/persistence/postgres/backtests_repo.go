package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/sawpanic/cryptolens/internal/domain/market"
	"github.com/sawpanic/cryptolens/internal/persistence"
)

// ErrDuplicateBacktest is returned when a backtest id is saved twice.
var ErrDuplicateBacktest = errors.New("duplicate backtest id")

const backtestColumns = `id, backtest_id, coin_id, strategy_name, start_date, end_date, initial_capital,
		total_return, sharpe_ratio, max_drawdown, total_trades, result, created_at`

// backtestsRepo implements BacktestsRepo interface for PostgreSQL
type backtestsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewBacktestsRepo creates a new PostgreSQL backtest runs repository
func NewBacktestsRepo(db *sqlx.DB, timeout time.Duration) persistence.BacktestsRepo {
	return &backtestsRepo{db: db, timeout: timeout}
}

// Save stores a backtest run
func (r *backtestsRepo) Save(ctx context.Context, run persistence.BacktestRun) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if run.BacktestID == "" {
		return fmt.Errorf("backtest id is required")
	}

	query := `
		INSERT INTO cl_backtest_runs (backtest_id, coin_id, strategy_name, start_date, end_date,
			initial_capital, total_return, sharpe_ratio, max_drawdown, total_trades, result)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.db.ExecContext(ctx, query,
		run.BacktestID, run.CoinID, run.StrategyName, run.StartDate, run.EndDate,
		run.InitialCapital, run.TotalReturn, run.SharpeRatio, run.MaxDrawdown, run.TotalTrades,
		[]byte(run.Result))
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("%w: %s", ErrDuplicateBacktest, run.BacktestID)
		}
		return fmt.Errorf("failed to save backtest run: %w", err)
	}
	return nil
}

// Get finds a run by its backtest id
func (r *backtestsRepo) Get(ctx context.Context, backtestID string) (*persistence.BacktestRun, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `SELECT ` + backtestColumns + ` FROM cl_backtest_runs WHERE backtest_id = $1`

	var run persistence.BacktestRun
	if err := r.db.GetContext(ctx, &run, query, backtestID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("backtest %s: %w", backtestID, market.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get backtest run: %w", err)
	}
	return &run, nil
}

// ListByCoin returns the newest runs for a coin
func (r *backtestsRepo) ListByCoin(ctx context.Context, coinID int64, limit int) ([]persistence.BacktestRun, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if limit <= 0 {
		limit = 20
	}

	query := `SELECT ` + backtestColumns + `
		FROM cl_backtest_runs
		WHERE coin_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	runs := make([]persistence.BacktestRun, 0)
	if err := r.db.SelectContext(ctx, &runs, query, coinID, limit); err != nil {
		return nil, fmt.Errorf("failed to list backtest runs: %w", err)
	}
	return runs, nil
}
