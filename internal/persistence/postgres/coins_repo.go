package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sawpanic/cryptolens/internal/domain/market"
	"github.com/sawpanic/cryptolens/internal/persistence"
)

// coinsRepo implements CoinsRepo interface for PostgreSQL
type coinsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewCoinsRepo creates a new PostgreSQL coins repository
func NewCoinsRepo(db *sqlx.DB, timeout time.Duration) persistence.CoinsRepo {
	return &coinsRepo{db: db, timeout: timeout}
}

// Upsert inserts the coin or refreshes its metadata, keeping a known rank when the new one is absent
func (r *coinsRepo) Upsert(ctx context.Context, coin persistence.Coin) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if coin.CoingeckoID == "" {
		return 0, fmt.Errorf("coingecko id is required")
	}

	query := `
		INSERT INTO cl_coins (coingecko_id, symbol, name, market_cap_rank)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (coingecko_id) DO UPDATE SET
			symbol = EXCLUDED.symbol,
			name = EXCLUDED.name,
			market_cap_rank = COALESCE(EXCLUDED.market_cap_rank, cl_coins.market_cap_rank)
		RETURNING id`

	var id int64
	err := r.db.QueryRowxContext(ctx, query, coin.CoingeckoID, coin.Symbol, coin.Name, coin.MarketCapRank).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert coin %s: %w", coin.CoingeckoID, err)
	}
	return id, nil
}

// Get finds a coin by CoinGecko id
func (r *coinsRepo) Get(ctx context.Context, coingeckoID string) (*persistence.Coin, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT id, coingecko_id, symbol, name, market_cap_rank, created_at
		FROM cl_coins
		WHERE coingecko_id = $1`

	var coin persistence.Coin
	if err := r.db.GetContext(ctx, &coin, query, coingeckoID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, market.NotFoundError(coingeckoID)
		}
		return nil, fmt.Errorf("failed to get coin %s: %w", coingeckoID, err)
	}
	return &coin, nil
}

// List returns every tracked coin, ranked coins first
func (r *coinsRepo) List(ctx context.Context) ([]persistence.Coin, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT id, coingecko_id, symbol, name, market_cap_rank, created_at
		FROM cl_coins
		ORDER BY market_cap_rank ASC NULLS LAST, coingecko_id ASC`

	coins := make([]persistence.Coin, 0)
	if err := r.db.SelectContext(ctx, &coins, query); err != nil {
		return nil, fmt.Errorf("failed to list coins: %w", err)
	}
	return coins, nil
}
