package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/cryptolens/internal/application/signals"
	"github.com/sawpanic/cryptolens/internal/backtest"
	"github.com/sawpanic/cryptolens/internal/domain/market"
	"github.com/sawpanic/cryptolens/internal/persistence"
	"github.com/sawpanic/cryptolens/internal/report/perf"
	"github.com/sawpanic/cryptolens/internal/strategy"
)

type fakeEngine struct {
	lastReq   backtest.Request
	lastKinds []strategy.Kind
	err       error
	observer  backtest.Observer
}

func (f *fakeEngine) result(req backtest.Request, sharpe float64) *backtest.Result {
	return &backtest.Result{
		Coin:           req.Asset,
		Symbol:         "BTC",
		StrategyName:   strategy.New(req.Strategy).Name(),
		StartDate:      market.NewDate(time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)),
		EndDate:        market.NewDate(time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)),
		InitialCapital: req.InitialCapital,
		Metrics:        perf.Metrics{SharpeRatio: sharpe, TotalReturn: 0.1},
		EquityCurve:    []backtest.EquityPoint{},
		TradeLog:       []backtest.TradeEntry{},
	}
}

func (f *fakeEngine) Run(_ context.Context, req backtest.Request) (*backtest.Result, error) {
	f.lastReq = req
	if f.observer != nil {
		f.observer.ObserveBacktest(strategy.New(req.Strategy).Name(), time.Millisecond, f.err)
	}
	if f.err != nil {
		return nil, f.err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return f.result(req, 1), nil
}

func (f *fakeEngine) Compare(_ context.Context, req backtest.Request, kinds ...strategy.Kind) ([]*backtest.Result, error) {
	f.lastReq, f.lastKinds = req, kinds
	if f.err != nil {
		return nil, fmt.Errorf("%w: %w", backtest.ErrAllStrategiesFailed, f.err)
	}
	r1, r2 := req, req
	r1.Strategy, r2.Strategy = strategy.RSIKind, strategy.GoldenCrossKind
	return []*backtest.Result{f.result(r1, 2), f.result(r2, 0.5)}, nil
}

type fakeCoins struct{ days int }

func (f *fakeCoins) GetOrCreateCoin(_ context.Context, id string) (*persistence.Coin, error) {
	if id == "nope" {
		return nil, market.NotFoundError(id)
	}
	return &persistence.Coin{ID: 1, CoingeckoID: id, Symbol: strings.ToUpper(id)}, nil
}

func (f *fakeCoins) SeedPriceHistory(_ context.Context, _ string, days int) (int, error) {
	f.days = days
	return days, nil
}

func (f *fakeCoins) List(context.Context) ([]persistence.Coin, error) {
	return []persistence.Coin{{ID: 1, CoingeckoID: "bitcoin", Symbol: "BTC"}}, nil
}

type fakeSignals struct{}

func (fakeSignals) ComputeAndStore(context.Context, string) (int, error) { return 42, nil }
func (fakeSignals) Summary(_ context.Context, id string) (*signals.Summary, error) {
	if id != "bitcoin" {
		return nil, fmt.Errorf("no signals for %s: %w", id, market.ErrNotFound)
	}
	return &signals.Summary{Coin: id, Signal: "BUY", CompositeScore: 0.3}, nil
}

type fakeArchive struct{ saved map[string]*backtest.Result }

func (f *fakeArchive) Save(_ context.Context, res *backtest.Result) (string, error) {
	f.saved["run-1"] = res
	return "run-1", nil
}
func (f *fakeArchive) Get(_ context.Context, id string) (*backtest.Result, error) {
	res, ok := f.saved[id]
	if !ok {
		return nil, market.NotFoundError(id)
	}
	return res, nil
}
func (f *fakeArchive) List(context.Context, string, int) ([]persistence.BacktestRun, error) {
	return []persistence.BacktestRun{{BacktestID: "run-1", StrategyName: "composite"}}, nil
}

type fakeBreaker string

func (f fakeBreaker) State() string { return string(f) }

type fixture struct {
	server  *Server
	engine  *fakeEngine
	coins   *fakeCoins
	archive *fakeArchive
	metrics *MetricsRegistry
}

func newFixture(t *testing.T, withStorage bool) *fixture {
	f := &fixture{
		engine:  &fakeEngine{},
		coins:   &fakeCoins{},
		archive: &fakeArchive{saved: map[string]*backtest.Result{}},
		metrics: NewMetricsRegistry(),
	}
	f.engine.observer = f.metrics
	deps := Deps{
		Engine:  f.engine,
		Metrics: f.metrics,
		Health:  NewHealthHandler(nil, map[string]BreakerState{"coingecko": fakeBreaker("closed")}, "test"),
	}
	if withStorage {
		deps.Coins = f.coins
		deps.CoinList = f.coins
		deps.Signals = fakeSignals{}
		deps.Archive = f.archive
	}
	srv, err := NewServer(DefaultServerConfig(), deps)
	require.NoError(t, err)
	f.server = srv
	return f
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rr := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), v), rr.Body.String())
}

func TestHealth(t *testing.T) {
	f := newFixture(t, false)
	rr := f.do(http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))

	var resp HealthResponse
	decodeBody(t, rr, &resp)
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "test", resp.Version)
	assert.Equal(t, "pass", resp.Checks["provider:coingecko"].Status)
	assert.NotEmpty(t, resp.System.GoVersion)
}

func TestHealth_OpenBreakerDegrades(t *testing.T) {
	h := NewHealthHandler(nil, map[string]BreakerState{"feargreed": fakeBreaker("open")}, "v")
	resp := h.Check(context.Background())
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "fail", resp.Checks["provider:feargreed"].Status)
}

func TestRunBacktest(t *testing.T) {
	f := newFixture(t, true)
	rr := f.do(http.MethodPost, "/backtest",
		`{"coin":"bitcoin","strategy":"RSI","start_date":"2023-01-01","initial_capital":5000,"save":true}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	assert.Equal(t, strategy.RSIKind, f.engine.lastReq.Strategy)
	assert.Equal(t, 5000.0, f.engine.lastReq.InitialCapital)
	assert.Equal(t, 0.001, f.engine.lastReq.Commission)
	assert.Equal(t, "2023-01-01", f.engine.lastReq.Start.String())
	assert.True(t, f.engine.lastReq.End.IsZero())

	var resp map[string]interface{}
	decodeBody(t, rr, &resp)
	assert.Equal(t, "run-1", resp["backtest_id"])
	assert.Equal(t, "rsi_mean_reversion", resp["strategy_name"])
	assert.Equal(t, 1.0, resp["sharpe_ratio"])
	assert.Contains(t, f.archive.saved, "run-1")

	assert.Equal(t, 1.0, f.metrics.BacktestCount("rsi_mean_reversion", "ok"))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Requests.WithLabelValues("/backtest", "POST", "200")))
}

func TestRunBacktest_DefaultsToComposite(t *testing.T) {
	f := newFixture(t, false)
	rr := f.do(http.MethodPost, "/backtest", `{"coin":"bitcoin"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, strategy.CompositeKind, f.engine.lastReq.Strategy)

	var resp map[string]interface{}
	decodeBody(t, rr, &resp)
	assert.NotContains(t, resp, "backtest_id")
}

func TestRunBacktest_Errors(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		engineErr error
		storage   bool
		status    int
		code      string
	}{
		{"unknown strategy", `{"coin":"bitcoin","strategy":"moonshot"}`, nil, true, http.StatusBadRequest, "unknown_strategy"},
		{"malformed json", `{"coin":`, nil, true, http.StatusBadRequest, "invalid_request"},
		{"unknown field", `{"coin":"bitcoin","leverage":3}`, nil, true, http.StatusBadRequest, "invalid_request"},
		{"bad date", `{"coin":"bitcoin","start_date":"01/01/2023"}`, nil, true, http.StatusBadRequest, "invalid_request"},
		{"negative capital", `{"coin":"bitcoin","initial_capital":-1}`, nil, true, http.StatusBadRequest, "invalid_request"},
		{"unknown coin", `{"coin":"nope"}`, market.NotFoundError("nope"), true, http.StatusNotFound, "not_found"},
		{"short window", `{"coin":"bitcoin"}`, &market.InsufficientDataError{Asset: "bitcoin", Rows: 5, Required: 30}, true, http.StatusNotFound, "insufficient_data"},
		{"engine failure", `{"coin":"bitcoin"}`, errors.New("boom"), true, http.StatusInternalServerError, "internal_error"},
		{"save without storage", `{"coin":"bitcoin","save":true}`, nil, false, http.StatusServiceUnavailable, "unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.storage)
			f.engine.err = tt.engineErr
			rr := f.do(http.MethodPost, "/backtest", tt.body)
			require.Equal(t, tt.status, rr.Code, rr.Body.String())

			var resp ErrorResponse
			decodeBody(t, rr, &resp)
			assert.Equal(t, tt.code, resp.Code)
			assert.NotEmpty(t, resp.Message)
			assert.Equal(t, rr.Header().Get("X-Request-ID"), resp.RequestID)
		})
	}
}

func TestCompare(t *testing.T) {
	f := newFixture(t, false)
	rr := f.do(http.MethodPost, "/backtest/compare", `{"coin":"bitcoin","strategies":["rsi","golden_cross"]}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, []strategy.Kind{strategy.RSIKind, strategy.GoldenCrossKind}, f.engine.lastKinds)

	var resp CompareResponse
	decodeBody(t, rr, &resp)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "rsi_mean_reversion", resp.Results[0].Strategy)
	assert.Equal(t, 2.0, resp.Results[0].SharpeRatio)
	assert.Equal(t, "2023-01-01", resp.StartDate.String())
}

func TestCompare_AllFailedNotFound(t *testing.T) {
	f := newFixture(t, false)
	f.engine.err = market.NotFoundError("nope")
	rr := f.do(http.MethodPost, "/backtest/compare", `{"coin":"nope"}`)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Empty(t, f.engine.lastKinds)
}

func TestCompare_UnknownStrategy(t *testing.T) {
	f := newFixture(t, false)
	rr := f.do(http.MethodPost, "/backtest/compare", `{"coin":"bitcoin","strategies":["rsi","hodl"]}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCoinsAndSignals(t *testing.T) {
	f := newFixture(t, true)

	rr := f.do(http.MethodGet, "/coins", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var coins []persistence.Coin
	decodeBody(t, rr, &coins)
	assert.Len(t, coins, 1)

	rr = f.do(http.MethodPost, "/coins/solana", "")
	assert.Equal(t, http.StatusCreated, rr.Code)
	rr = f.do(http.MethodPost, "/coins/nope", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = f.do(http.MethodPost, "/coins/solana/seed?days=90", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var count CountResponse
	decodeBody(t, rr, &count)
	assert.Equal(t, CountResponse{Coin: "solana", Rows: 90}, count)

	rr = f.do(http.MethodPost, "/coins/solana/seed?days=abc", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do(http.MethodPost, "/signals/bitcoin/compute", "")
	require.Equal(t, http.StatusOK, rr.Code)

	rr = f.do(http.MethodGet, "/signals/bitcoin", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var sum signals.Summary
	decodeBody(t, rr, &sum)
	assert.Equal(t, "BUY", sum.Signal)

	rr = f.do(http.MethodGet, "/signals/ethereum", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestSavedBacktests(t *testing.T) {
	f := newFixture(t, true)
	rr := f.do(http.MethodPost, "/backtest", `{"coin":"bitcoin","save":true}`)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = f.do(http.MethodGet, "/backtest/run-1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var resp map[string]interface{}
	decodeBody(t, rr, &resp)
	assert.Equal(t, "run-1", resp["backtest_id"])

	rr = f.do(http.MethodGet, "/backtest/run-2", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = f.do(http.MethodGet, "/coins/bitcoin/backtests?limit=5", "")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestStorageDisabled(t *testing.T) {
	f := newFixture(t, false)
	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/coins"},
		{http.MethodPost, "/coins/bitcoin"},
		{http.MethodPost, "/coins/bitcoin/seed"},
		{http.MethodGet, "/signals/bitcoin"},
		{http.MethodPost, "/signals/bitcoin/compute"},
		{http.MethodGet, "/backtest/run-1"},
		{http.MethodGet, "/coins/bitcoin/backtests"},
	} {
		rr := f.do(tc.method, tc.path, "")
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code, tc.path)
	}
}

func TestRequestIDPropagation(t *testing.T) {
	f := newFixture(t, false)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc123")
	rr := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rr, req)
	assert.Equal(t, "abc123", rr.Header().Get("X-Request-ID"))
}

func TestNotFoundAndMetrics(t *testing.T) {
	f := newFixture(t, false)
	rr := f.do(http.MethodGet, "/nowhere", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	var resp ErrorResponse
	decodeBody(t, rr, &resp)
	assert.Equal(t, "endpoint_not_found", resp.Code)

	f.do(http.MethodPost, "/backtest", `{"coin":"bitcoin","strategy":"fear_greed"}`)
	rr = f.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `cryptolens_backtests_total{result="ok",strategy="fear_greed_contrarian"} 1`)
	assert.Contains(t, rr.Body.String(), "go_goroutines")
}

func TestResultLabel(t *testing.T) {
	assert.Equal(t, "ok", resultLabel(nil))
	assert.Equal(t, "not_found", resultLabel(market.NotFoundError("x")))
	assert.Equal(t, "insufficient_data", resultLabel(&market.InsufficientDataError{}))
	assert.Equal(t, "invalid", resultLabel(fmt.Errorf("%w: bad", backtest.ErrInvalidRequest)))
	assert.Equal(t, "error", resultLabel(errors.New("x")))
}

func TestNewServer_Validation(t *testing.T) {
	_, err := NewServer(DefaultServerConfig(), Deps{})
	assert.Error(t, err)

	cfg := DefaultServerConfig()
	cfg.Port = 0
	_, err = NewServer(cfg, Deps{Engine: &fakeEngine{}})
	assert.Error(t, err)
}
