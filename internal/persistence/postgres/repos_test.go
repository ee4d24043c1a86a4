package postgres

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/cryptolens/internal/domain/market"
	"github.com/sawpanic/cryptolens/internal/persistence"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	return sqlx.NewDb(mockDB, "postgres"), mock
}

var day = time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

func TestCoinsRepo_Upsert(t *testing.T) {
	db, mock := newMock(t)
	repo := NewCoinsRepo(db, time.Second)

	rank := 1
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO cl_coins (coingecko_id, symbol, name, market_cap_rank)")).
		WithArgs("bitcoin", "BTC", "Bitcoin", &rank).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(4)))

	id, err := repo.Upsert(context.Background(), persistence.Coin{CoingeckoID: "bitcoin", Symbol: "BTC", Name: "Bitcoin", MarketCapRank: &rank})
	require.NoError(t, err)
	assert.Equal(t, int64(4), id)
	assert.NoError(t, mock.ExpectationsWereMet())

	_, err = repo.Upsert(context.Background(), persistence.Coin{})
	assert.Error(t, err)
}

func TestCoinsRepo_Get(t *testing.T) {
	db, mock := newMock(t)
	repo := NewCoinsRepo(db, time.Second)

	cols := []string{"id", "coingecko_id", "symbol", "name", "market_cap_rank", "created_at"}
	mock.ExpectQuery(regexp.QuoteMeta("FROM cl_coins")).
		WithArgs("ethereum").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(int64(2), "ethereum", "ETH", "Ethereum", int64(2), day))
	mock.ExpectQuery(regexp.QuoteMeta("FROM cl_coins")).
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows(cols))

	coin, err := repo.Get(context.Background(), "ethereum")
	require.NoError(t, err)
	assert.Equal(t, "ETH", coin.Symbol)
	require.NotNil(t, coin.MarketCapRank)
	assert.Equal(t, 2, *coin.MarketCapRank)

	_, err = repo.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, market.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCoinsRepo_List(t *testing.T) {
	db, mock := newMock(t)
	repo := NewCoinsRepo(db, time.Second)

	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY market_cap_rank ASC NULLS LAST")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "coingecko_id", "symbol", "name", "market_cap_rank", "created_at"}).
			AddRow(int64(1), "bitcoin", "BTC", "Bitcoin", int64(1), day).
			AddRow(int64(9), "pepe", "PEPE", "Pepe", nil, day))

	coins, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, coins, 2)
	assert.Nil(t, coins[1].MarketCapRank)
}

func TestPricesRepo_UpsertBatch(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPricesRepo(db, time.Second)

	points := market.PriceSeries{
		{Date: day, Close: 100, Volume: market.Float(5)},
		{Date: day.AddDate(0, 0, 1), Close: 101},
	}

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(regexp.QuoteMeta("ON CONFLICT ON CONSTRAINT uq_cl_price_coin_date"))
	prep.ExpectExec().WithArgs(int64(3), day, nil, nil, nil, 100.0, 5.0, nil).WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WithArgs(int64(3), day.AddDate(0, 0, 1), nil, nil, nil, 101.0, nil, nil).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	n, err := repo.UpsertBatch(context.Background(), 3, points)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPricesRepo_UpsertBatchRollsBack(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPricesRepo(db, time.Second)

	mock.ExpectBegin()
	mock.ExpectPrepare("INSERT INTO cl_coin_prices").ExpectExec().WillReturnError(assert.AnError)
	mock.ExpectRollback()

	_, err := repo.UpsertBatch(context.Background(), 3, market.PriceSeries{{Date: day, Close: 1}})
	assert.ErrorIs(t, err, assert.AnError)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPricesRepo_Range(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPricesRepo(db, time.Second)

	mock.ExpectQuery(regexp.QuoteMeta("FROM cl_coin_prices")).
		WithArgs(int64(3), day, nil).
		WillReturnRows(sqlmock.NewRows([]string{"date", "open", "high", "low", "close", "volume", "market_cap"}).
			AddRow(day, 99.0, 102.0, 98.0, 100.0, 10.0, nil).
			AddRow(day.AddDate(0, 0, 1), nil, nil, nil, 101.0, nil, nil))

	series, err := repo.Range(context.Background(), 3, persistence.TimeRange{From: day.Add(5 * time.Hour)})
	require.NoError(t, err)
	require.Len(t, series, 2)
	assert.Equal(t, 100.0, series[0].Close)
	require.NotNil(t, series[0].Open)
	assert.Equal(t, 99.0, *series[0].Open)
	assert.Nil(t, series[0].MarketCap)
	assert.Nil(t, series[1].Volume)
	assert.NoError(t, series.Validate())
}

func TestPricesRepo_Count(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM cl_coin_prices")).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(365)))

	n, err := NewPricesRepo(db, time.Second).Count(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, int64(365), n)
}

func TestSignalsRepo_UpsertBatch(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSignalsRepo(db, time.Second)

	rsi := 55.0
	signals := []persistence.Signal{
		{CoinID: 1, Date: market.NewDate(day), RSI14: &rsi, CompositeScore: 0.1},
		{CoinID: 1, Date: market.NewDate(day.AddDate(0, 0, 1)), CompositeScore: -0.2},
	}

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(regexp.QuoteMeta("ON CONFLICT ON CONSTRAINT uq_cl_signal_coin_date"))
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	n, err := repo.UpsertBatch(context.Background(), signals)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func signalCols() []string {
	return []string{"coin_id", "date", "rsi_14", "macd", "macd_signal", "macd_hist", "bb_upper", "bb_lower", "bb_pct",
		"sma_20", "sma_50", "sma_200", "ema_12", "ema_26", "obv", "volume_change_24h", "market_cap_change_24h",
		"fear_greed_index", "fear_greed_label", "composite_score"}
}

func TestSignalsRepo_Latest(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSignalsRepo(db, time.Second)

	mock.ExpectQuery(regexp.QuoteMeta("FROM cl_coin_signals")).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows(signalCols()).AddRow(
			int64(1), day, 28.5, 1.2, 0.8, 0.4, nil, nil, 0.15,
			nil, nil, nil, nil, nil, 1000.0, nil, nil, 22.0, "Extreme Fear", 0.42))
	mock.ExpectQuery(regexp.QuoteMeta("FROM cl_coin_signals")).
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows(signalCols()))

	s, err := repo.Latest(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "2024-02-01", s.Date.String())
	require.NotNil(t, s.RSI14)
	assert.Equal(t, 28.5, *s.RSI14)
	assert.Nil(t, s.BBUpper)
	assert.Equal(t, 0.42, s.CompositeScore)

	none, err := repo.Latest(context.Background(), 2)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestBacktestsRepo_Save(t *testing.T) {
	db, mock := newMock(t)
	repo := NewBacktestsRepo(db, time.Second)

	run := persistence.BacktestRun{
		BacktestID:     "b6f5c1c0-0d7e-4d7a-9d55-3f7f0a1c2b3d",
		CoinID:         1,
		StrategyName:   "golden_cross",
		StartDate:      market.NewDate(day),
		EndDate:        market.NewDate(day.AddDate(0, 3, 0)),
		InitialCapital: 10000,
		TotalReturn:    0.12,
		Result:         json.RawMessage(`{"coin":"bitcoin"}`),
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO cl_backtest_runs")).
		WithArgs(run.BacktestID, int64(1), "golden_cross", day, day.AddDate(0, 3, 0),
			10000.0, 0.12, 0.0, 0.0, 0, []byte(`{"coin":"bitcoin"}`)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO cl_backtest_runs")).
		WillReturnError(&pq.Error{Code: "23505"})

	require.NoError(t, repo.Save(context.Background(), run))
	assert.ErrorIs(t, repo.Save(context.Background(), run), ErrDuplicateBacktest)
	assert.Error(t, repo.Save(context.Background(), persistence.BacktestRun{}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBacktestsRepo_Get(t *testing.T) {
	db, mock := newMock(t)
	repo := NewBacktestsRepo(db, time.Second)

	cols := []string{"id", "backtest_id", "coin_id", "strategy_name", "start_date", "end_date", "initial_capital",
		"total_return", "sharpe_ratio", "max_drawdown", "total_trades", "result", "created_at"}
	mock.ExpectQuery(regexp.QuoteMeta("WHERE backtest_id = $1")).
		WithArgs("abc").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(int64(1), "abc", int64(1), "rsi_mean_reversion", day, day.AddDate(0, 1, 0),
			10000.0, -0.05, -0.3, -0.2, int64(3), []byte(`{"coin":"solana"}`), day))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE backtest_id = $1")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(cols))

	run, err := repo.Get(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "rsi_mean_reversion", run.StrategyName)
	assert.Equal(t, 3, run.TotalTrades)
	assert.JSONEq(t, `{"coin":"solana"}`, string(run.Result))

	_, err = repo.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, market.ErrNotFound)
}
