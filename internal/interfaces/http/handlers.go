package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/cryptolens/internal/application/signals"
	"github.com/sawpanic/cryptolens/internal/backtest"
	"github.com/sawpanic/cryptolens/internal/domain/market"
	"github.com/sawpanic/cryptolens/internal/persistence"
	"github.com/sawpanic/cryptolens/internal/strategy"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

var (
	errBadRequest  = errors.New("bad request")
	errUnavailable = errors.New("service unavailable")
)

type Backtester interface {
	Run(ctx context.Context, req backtest.Request) (*backtest.Result, error)
	Compare(ctx context.Context, req backtest.Request, kinds ...strategy.Kind) ([]*backtest.Result, error)
}

type CoinService interface {
	GetOrCreateCoin(ctx context.Context, id string) (*persistence.Coin, error)
	SeedPriceHistory(ctx context.Context, id string, days int) (int, error)
}

type CoinLister interface {
	List(ctx context.Context) ([]persistence.Coin, error)
}

type SignalService interface {
	ComputeAndStore(ctx context.Context, id string) (int, error)
	Summary(ctx context.Context, id string) (*signals.Summary, error)
}

type RunArchive interface {
	Save(ctx context.Context, res *backtest.Result) (string, error)
	Get(ctx context.Context, backtestID string) (*backtest.Result, error)
	List(ctx context.Context, coinID string, limit int) ([]persistence.BacktestRun, error)
}

// Deps are the services behind the API. Nil services answer 503.
type Deps struct {
	Engine   Backtester
	Coins    CoinService
	CoinList CoinLister
	Signals  SignalService
	Archive  RunArchive
	Health   *HealthHandler
	Metrics  *MetricsRegistry
}

// Handlers manages all HTTP endpoint handlers
type Handlers struct {
	deps Deps
}

// NewHandlers creates a new handlers instance
func NewHandlers(deps Deps) *Handlers {
	return &Handlers{deps: deps}
}

// ListCoins handles GET /coins
func (h *Handlers) ListCoins(w http.ResponseWriter, r *http.Request) {
	if h.deps.CoinList == nil {
		h.fail(w, r, fmt.Errorf("%w: coin storage is disabled", errUnavailable))
		return
	}
	coins, err := h.deps.CoinList.List(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if coins == nil {
		coins = []persistence.Coin{}
	}
	writeJSON(w, http.StatusOK, coins)
}

// AddCoin handles POST /coins/{id}
func (h *Handlers) AddCoin(w http.ResponseWriter, r *http.Request) {
	if h.deps.Coins == nil {
		h.fail(w, r, fmt.Errorf("%w: ingestion is disabled", errUnavailable))
		return
	}
	coin, err := h.deps.Coins.GetOrCreateCoin(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, coin)
}

// SeedCoin handles POST /coins/{id}/seed?days=N
func (h *Handlers) SeedCoin(w http.ResponseWriter, r *http.Request) {
	if h.deps.Coins == nil {
		h.fail(w, r, fmt.Errorf("%w: ingestion is disabled", errUnavailable))
		return
	}
	days, err := intParam(r, "days", 365)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	id := mux.Vars(r)["id"]
	n, err := h.deps.Coins.SeedPriceHistory(r.Context(), id, days)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CountResponse{Coin: id, Rows: n})
}

// ListBacktests handles GET /coins/{id}/backtests?limit=N
func (h *Handlers) ListBacktests(w http.ResponseWriter, r *http.Request) {
	if h.deps.Archive == nil {
		h.fail(w, r, fmt.Errorf("%w: backtest storage is disabled", errUnavailable))
		return
	}
	limit, err := intParam(r, "limit", 0)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	runs, err := h.deps.Archive.List(r.Context(), mux.Vars(r)["id"], limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if runs == nil {
		runs = []persistence.BacktestRun{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// SignalSummary handles GET /signals/{id}
func (h *Handlers) SignalSummary(w http.ResponseWriter, r *http.Request) {
	if h.deps.Signals == nil {
		h.fail(w, r, fmt.Errorf("%w: signal storage is disabled", errUnavailable))
		return
	}
	sum, err := h.deps.Signals.Summary(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// ComputeSignals handles POST /signals/{id}/compute
func (h *Handlers) ComputeSignals(w http.ResponseWriter, r *http.Request) {
	if h.deps.Signals == nil {
		h.fail(w, r, fmt.Errorf("%w: signal storage is disabled", errUnavailable))
		return
	}
	id := mux.Vars(r)["id"]
	n, err := h.deps.Signals.ComputeAndStore(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CountResponse{Coin: id, Rows: n})
}

// RunBacktest handles POST /backtest
func (h *Handlers) RunBacktest(w http.ResponseWriter, r *http.Request) {
	var body BacktestRequest
	if err := decode(r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	kind := strategy.CompositeKind
	if body.Strategy != "" {
		k, err := strategy.Parse(body.Strategy)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		kind = k
	}
	if body.Save && h.deps.Archive == nil {
		h.fail(w, r, fmt.Errorf("%w: backtest storage is disabled", errUnavailable))
		return
	}

	req := backtest.DefaultRequest(body.Coin, kind)
	req.Start, req.End = body.StartDate, body.EndDate
	applyCosts(&req, body.InitialCapital, body.Commission, body.Slippage)

	res, err := h.deps.Engine.Run(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	resp := BacktestResponse{Result: res}
	if body.Save {
		id, err := h.deps.Archive.Save(r.Context(), res)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		resp.BacktestID = id
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetBacktest handles GET /backtest/{id}
func (h *Handlers) GetBacktest(w http.ResponseWriter, r *http.Request) {
	if h.deps.Archive == nil {
		h.fail(w, r, fmt.Errorf("%w: backtest storage is disabled", errUnavailable))
		return
	}
	id := mux.Vars(r)["id"]
	res, err := h.deps.Archive.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, BacktestResponse{BacktestID: id, Result: res})
}

// CompareStrategies handles POST /backtest/compare
func (h *Handlers) CompareStrategies(w http.ResponseWriter, r *http.Request) {
	var body CompareRequest
	if err := decode(r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	kinds := make([]strategy.Kind, 0, len(body.Strategies))
	for _, id := range body.Strategies {
		k, err := strategy.Parse(id)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		kinds = append(kinds, k)
	}

	req := backtest.DefaultRequest(body.Coin, strategy.CompositeKind)
	req.Start, req.End = body.StartDate, body.EndDate
	applyCosts(&req, body.InitialCapital, body.Commission, body.Slippage)

	results, err := h.deps.Engine.Compare(r.Context(), req, kinds...)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	resp := CompareResponse{Coin: body.Coin, Results: compareRows(results)}
	if len(results) > 0 {
		resp.StartDate, resp.EndDate = results[0].StartDate, results[0].EndDate
	}
	writeJSON(w, http.StatusOK, resp)
}

// NotFound handles 404 responses
func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	h.writeError(w, r, http.StatusNotFound, "endpoint_not_found", "The requested endpoint does not exist")
}

func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	event := log.Warn()
	if status >= http.StatusInternalServerError {
		event = log.Error()
	}
	event.Err(err).Str("request_id", RequestID(r.Context())).Str("path", r.URL.Path).Int("status", status).Msg("Request failed")
	h.writeError(w, r, status, code, err.Error())
}

// writeError writes standardized error response
func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{
		Error:     http.StatusText(status),
		Message:   message,
		Code:      code,
		RequestID: RequestID(r.Context()),
		Timestamp: time.Now().UTC(),
	})
}

// classify maps domain errors to a status and machine-readable code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, strategy.ErrUnknownStrategy):
		return http.StatusBadRequest, "unknown_strategy"
	case errors.Is(err, backtest.ErrInvalidRequest), errors.Is(err, errBadRequest):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, market.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, market.ErrInsufficientData):
		return http.StatusNotFound, "insufficient_data"
	case errors.Is(err, errUnavailable):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func applyCosts(req *backtest.Request, capital, commission, slippage *float64) {
	if capital != nil {
		req.InitialCapital = *capital
	}
	if commission != nil {
		req.Commission = *commission
	}
	if slippage != nil {
		req.Slippage = *slippage
	}
}

func decode(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func intParam(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", errBadRequest, name)
	}
	return v, nil
}

// writeJSON writes JSON response with proper error handling
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}
