package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sawpanic/cryptolens/internal/domain/market"
	"github.com/sawpanic/cryptolens/internal/persistence"
)

// pricesRepo implements PricesRepo interface for PostgreSQL
type pricesRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewPricesRepo creates a new PostgreSQL prices repository
func NewPricesRepo(db *sqlx.DB, timeout time.Duration) persistence.PricesRepo {
	return &pricesRepo{db: db, timeout: timeout}
}

// UpsertBatch writes all bars in one transaction, replacing existing (coin, date) rows
func (r *pricesRepo) UpsertBatch(ctx context.Context, coinID int64, points market.PriceSeries) (int, error) {
	if len(points) == 0 {
		return 0, nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout*time.Duration(len(points)/500+1))
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO cl_coin_prices (coin_id, date, open, high, low, close, volume, market_cap)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT ON CONSTRAINT uq_cl_price_coin_date DO UPDATE SET
			open = EXCLUDED.open,
			high = EXCLUDED.high,
			low = EXCLUDED.low,
			close = EXCLUDED.close,
			volume = EXCLUDED.volume,
			market_cap = EXCLUDED.market_cap`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, p := range points {
		_, err := stmt.ExecContext(ctx, coinID, market.Day(p.Date),
			p.Open, p.High, p.Low, p.Close, p.Volume, p.MarketCap)
		if err != nil {
			return 0, fmt.Errorf("failed to upsert price for %s: %w", p.Date.Format(market.DateLayout), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit prices: %w", err)
	}
	return len(points), nil
}

// Range returns bars inside the window ordered by date
func (r *pricesRepo) Range(ctx context.Context, coinID int64, tr persistence.TimeRange) (market.PriceSeries, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT date, open, high, low, close, volume, market_cap
		FROM cl_coin_prices
		WHERE coin_id = $1
		  AND ($2::date IS NULL OR date >= $2::date)
		  AND ($3::date IS NULL OR date <= $3::date)
		ORDER BY date ASC`

	rows, err := r.db.QueryxContext(ctx, query, coinID, nullDate(tr.From), nullDate(tr.To))
	if err != nil {
		return nil, fmt.Errorf("failed to query prices: %w", err)
	}
	defer rows.Close()

	series := make(market.PriceSeries, 0)
	for rows.Next() {
		var p market.PricePoint
		if err := rows.StructScan(&p); err != nil {
			return nil, fmt.Errorf("failed to scan price: %w", err)
		}
		p.Date = market.Day(p.Date)
		series = append(series, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return series, nil
}

// Count returns the number of stored bars for a coin
func (r *pricesRepo) Count(ctx context.Context, coinID int64) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var count int64
	err := r.db.QueryRowxContext(ctx, `SELECT COUNT(*) FROM cl_coin_prices WHERE coin_id = $1`, coinID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count prices: %w", err)
	}
	return count, nil
}

// nullDate maps an open bound to SQL NULL.
func nullDate(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return market.Day(t)
}
