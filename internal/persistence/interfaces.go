package persistence

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sawpanic/cryptolens/internal/domain/indicators"
	"github.com/sawpanic/cryptolens/internal/domain/market"
)

// TimeRange is an inclusive date window. A zero bound is open.
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Contains reports whether t falls inside the range.
func (tr TimeRange) Contains(t time.Time) bool {
	if !tr.From.IsZero() && t.Before(tr.From) {
		return false
	}
	if !tr.To.IsZero() && t.After(tr.To) {
		return false
	}
	return true
}

// Coin is a tracked asset keyed by its CoinGecko id.
type Coin struct {
	ID            int64     `json:"id" db:"id"`
	CoingeckoID   string    `json:"coingecko_id" db:"coingecko_id"`
	Symbol        string    `json:"symbol" db:"symbol"`
	Name          string    `json:"name" db:"name"`
	MarketCapRank *int      `json:"market_cap_rank,omitempty" db:"market_cap_rank"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// Asset converts the row to the domain identity.
func (c Coin) Asset() market.Asset {
	return market.Asset{ID: c.CoingeckoID, Symbol: c.Symbol, Name: c.Name}
}

// Signal is one stored indicator row. NULL columns are missing readings.
type Signal struct {
	CoinID             int64       `json:"coin_id" db:"coin_id"`
	Date               market.Date `json:"date" db:"date"`
	RSI14              *float64    `json:"rsi_14" db:"rsi_14"`
	MACD               *float64    `json:"macd" db:"macd"`
	MACDSignal         *float64    `json:"macd_signal" db:"macd_signal"`
	MACDHist           *float64    `json:"macd_hist" db:"macd_hist"`
	BBUpper            *float64    `json:"bb_upper" db:"bb_upper"`
	BBLower            *float64    `json:"bb_lower" db:"bb_lower"`
	BBPct              *float64    `json:"bb_pct" db:"bb_pct"`
	SMA20              *float64    `json:"sma_20" db:"sma_20"`
	SMA50              *float64    `json:"sma_50" db:"sma_50"`
	SMA200             *float64    `json:"sma_200" db:"sma_200"`
	EMA12              *float64    `json:"ema_12" db:"ema_12"`
	EMA26              *float64    `json:"ema_26" db:"ema_26"`
	OBV                *float64    `json:"obv" db:"obv"`
	VolumeChange24h    *float64    `json:"volume_change_24h" db:"volume_change_24h"`
	MarketCapChange24h *float64    `json:"market_cap_change_24h" db:"market_cap_change_24h"`
	FearGreedIndex     *float64    `json:"fear_greed_index" db:"fear_greed_index"`
	FearGreedLabel     *string     `json:"fear_greed_label" db:"fear_greed_label"`
	CompositeScore     float64     `json:"composite_score" db:"composite_score"`
}

// SignalFromRow flattens a scored frame row for storage.
func SignalFromRow(coinID int64, r indicators.Row) Signal {
	var label *string
	if r.SentimentLabel != "" {
		l := r.SentimentLabel
		label = &l
	}
	return Signal{
		CoinID:             coinID,
		Date:               market.NewDate(r.Date),
		RSI14:              r.RSI14.Ptr(),
		MACD:               r.MACD.Ptr(),
		MACDSignal:         r.MACDSignal.Ptr(),
		MACDHist:           r.MACDHist.Ptr(),
		BBUpper:            r.BBUpper.Ptr(),
		BBLower:            r.BBLower.Ptr(),
		BBPct:              r.BBPct.Ptr(),
		SMA20:              r.SMA20.Ptr(),
		SMA50:              r.SMA50.Ptr(),
		SMA200:             r.SMA200.Ptr(),
		EMA12:              r.EMA12.Ptr(),
		EMA26:              r.EMA26.Ptr(),
		OBV:                r.OBV.Ptr(),
		VolumeChange24h:    r.VolumeChange24h.Ptr(),
		MarketCapChange24h: r.MarketCapChange24h.Ptr(),
		FearGreedIndex:     r.Sentiment.Ptr(),
		FearGreedLabel:     label,
		CompositeScore:     r.Composite,
	}
}

// BacktestRun is a saved backtest. Result holds the full report as JSON.
type BacktestRun struct {
	ID             int64           `json:"-" db:"id"`
	BacktestID     string          `json:"backtest_id" db:"backtest_id"`
	CoinID         int64           `json:"coin_id" db:"coin_id"`
	StrategyName   string          `json:"strategy_name" db:"strategy_name"`
	StartDate      market.Date     `json:"start_date" db:"start_date"`
	EndDate        market.Date     `json:"end_date" db:"end_date"`
	InitialCapital float64         `json:"initial_capital" db:"initial_capital"`
	TotalReturn    float64         `json:"total_return" db:"total_return"`
	SharpeRatio    float64         `json:"sharpe_ratio" db:"sharpe_ratio"`
	MaxDrawdown    float64         `json:"max_drawdown" db:"max_drawdown"`
	TotalTrades    int             `json:"total_trades" db:"total_trades"`
	Result         json.RawMessage `json:"result" db:"result"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
}

// CoinsRepo persists tracked assets.
type CoinsRepo interface {
	// Upsert inserts or refreshes a coin and returns its row id
	Upsert(ctx context.Context, coin Coin) (int64, error)

	// Get finds a coin by CoinGecko id; unknown ids wrap market.ErrNotFound
	Get(ctx context.Context, coingeckoID string) (*Coin, error)

	// List returns every tracked coin ordered by market cap rank
	List(ctx context.Context) ([]Coin, error)
}

// PricesRepo persists daily bars, unique per (coin, date).
type PricesRepo interface {
	// UpsertBatch writes bars atomically and returns the number written
	UpsertBatch(ctx context.Context, coinID int64, points market.PriceSeries) (int, error)

	// Range returns bars in the window ordered by date ascending
	Range(ctx context.Context, coinID int64, tr TimeRange) (market.PriceSeries, error)

	// Count returns the number of stored bars
	Count(ctx context.Context, coinID int64) (int64, error)
}

// SignalsRepo persists indicator rows, unique per (coin, date).
type SignalsRepo interface {
	UpsertBatch(ctx context.Context, signals []Signal) (int, error)

	// Latest returns the newest row, or nil when none is stored
	Latest(ctx context.Context, coinID int64) (*Signal, error)

	Range(ctx context.Context, coinID int64, tr TimeRange) ([]Signal, error)
}

// BacktestsRepo persists backtest reports.
type BacktestsRepo interface {
	// Save stores a run; BacktestID must be set by the caller
	Save(ctx context.Context, run BacktestRun) error

	// Get finds a run by backtest id; unknown ids wrap market.ErrNotFound
	Get(ctx context.Context, backtestID string) (*BacktestRun, error)

	// ListByCoin returns the newest runs for a coin
	ListByCoin(ctx context.Context, coinID int64, limit int) ([]BacktestRun, error)
}

// Repository aggregates all persistence interfaces
type Repository struct {
	Coins     CoinsRepo
	Prices    PricesRepo
	Signals   SignalsRepo
	Backtests BacktestsRepo
}

// HealthCheck represents repository health status
type HealthCheck struct {
	Healthy        bool           `json:"healthy"`
	Errors         []string       `json:"errors,omitempty"`
	ConnectionPool map[string]int `json:"connection_pool"`
	LastCheck      time.Time      `json:"last_check"`
	ResponseTimeMS int64          `json:"response_time_ms"`
}

// RepositoryHealth provides health monitoring for persistence layer
type RepositoryHealth interface {
	// Health returns current repository health status
	Health(ctx context.Context) HealthCheck

	// Ping tests basic connectivity to database
	Ping(ctx context.Context) error

	// Stats returns connection pool and query statistics
	Stats(ctx context.Context) map[string]interface{}
}
