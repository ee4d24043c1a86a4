package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sawpanic/cryptolens/internal/persistence"
)

const signalColumns = `coin_id, date, rsi_14, macd, macd_signal, macd_hist, bb_upper, bb_lower, bb_pct,
		sma_20, sma_50, sma_200, ema_12, ema_26, obv, volume_change_24h, market_cap_change_24h,
		fear_greed_index, fear_greed_label, composite_score`

// signalsRepo implements SignalsRepo interface for PostgreSQL
type signalsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewSignalsRepo creates a new PostgreSQL signals repository
func NewSignalsRepo(db *sqlx.DB, timeout time.Duration) persistence.SignalsRepo {
	return &signalsRepo{db: db, timeout: timeout}
}

// UpsertBatch writes signal rows in one transaction using a named statement
func (r *signalsRepo) UpsertBatch(ctx context.Context, signals []persistence.Signal) (int, error) {
	if len(signals) == 0 {
		return 0, nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout*time.Duration(len(signals)/500+1))
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareNamedContext(ctx, `
		INSERT INTO cl_coin_signals (`+signalColumns+`)
		VALUES (:coin_id, :date, :rsi_14, :macd, :macd_signal, :macd_hist, :bb_upper, :bb_lower, :bb_pct,
			:sma_20, :sma_50, :sma_200, :ema_12, :ema_26, :obv, :volume_change_24h, :market_cap_change_24h,
			:fear_greed_index, :fear_greed_label, :composite_score)
		ON CONFLICT ON CONSTRAINT uq_cl_signal_coin_date DO UPDATE SET
			rsi_14 = EXCLUDED.rsi_14,
			macd = EXCLUDED.macd,
			macd_signal = EXCLUDED.macd_signal,
			macd_hist = EXCLUDED.macd_hist,
			bb_upper = EXCLUDED.bb_upper,
			bb_lower = EXCLUDED.bb_lower,
			bb_pct = EXCLUDED.bb_pct,
			sma_20 = EXCLUDED.sma_20,
			sma_50 = EXCLUDED.sma_50,
			sma_200 = EXCLUDED.sma_200,
			ema_12 = EXCLUDED.ema_12,
			ema_26 = EXCLUDED.ema_26,
			obv = EXCLUDED.obv,
			volume_change_24h = EXCLUDED.volume_change_24h,
			market_cap_change_24h = EXCLUDED.market_cap_change_24h,
			fear_greed_index = EXCLUDED.fear_greed_index,
			fear_greed_label = EXCLUDED.fear_greed_label,
			composite_score = EXCLUDED.composite_score`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, s := range signals {
		if _, err := stmt.ExecContext(ctx, s); err != nil {
			return 0, fmt.Errorf("failed to upsert signal for %s: %w", s.Date, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit signals: %w", err)
	}
	return len(signals), nil
}

// Latest returns the newest signal row, or nil when the coin has none
func (r *signalsRepo) Latest(ctx context.Context, coinID int64) (*persistence.Signal, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `SELECT ` + signalColumns + `
		FROM cl_coin_signals
		WHERE coin_id = $1
		ORDER BY date DESC
		LIMIT 1`

	var s persistence.Signal
	if err := r.db.GetContext(ctx, &s, query, coinID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest signal: %w", err)
	}
	return &s, nil
}

// Range returns signal rows inside the window ordered by date
func (r *signalsRepo) Range(ctx context.Context, coinID int64, tr persistence.TimeRange) ([]persistence.Signal, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `SELECT ` + signalColumns + `
		FROM cl_coin_signals
		WHERE coin_id = $1
		  AND ($2::date IS NULL OR date >= $2::date)
		  AND ($3::date IS NULL OR date <= $3::date)
		ORDER BY date ASC`

	signals := make([]persistence.Signal, 0)
	if err := r.db.SelectContext(ctx, &signals, query, coinID, nullDate(tr.From), nullDate(tr.To)); err != nil {
		return nil, fmt.Errorf("failed to query signals: %w", err)
	}
	return signals, nil
}
