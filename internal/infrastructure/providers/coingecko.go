package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sawpanic/cryptolens/internal/domain/market"
	"github.com/sawpanic/cryptolens/internal/infrastructure/cache"
	"github.com/sawpanic/cryptolens/internal/infrastructure/httpclient"
)

const coinGeckoName = "coingecko"

type CoinGeckoConfig struct {
	BaseURL    string        `yaml:"base_url" envconfig:"COINGECKO_API_URL"`
	APIKey     string        `yaml:"-" envconfig:"COINGECKO_API_KEY"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	CacheTTL   time.Duration `yaml:"cache_ttl"`
	Guard      GuardConfig   `yaml:"guard"`
}

func DefaultCoinGeckoConfig() CoinGeckoConfig {
	return CoinGeckoConfig{
		BaseURL:    "https://api.coingecko.com/api/v3",
		Timeout:    30 * time.Second,
		MaxRetries: 2,
		CacheTTL:   15 * time.Minute,
		Guard:      DefaultGuardConfig(coinGeckoName),
	}
}

// CoinInfo is the identity part of /coins/{id}.
type CoinInfo struct {
	ID            string `json:"id"`
	Symbol        string `json:"symbol"`
	Name          string `json:"name"`
	MarketCapRank *int   `json:"market_cap_rank"`
}

// OHLCBar is one candle from /coins/{id}/ohlc.
type OHLCBar struct {
	Time  time.Time
	Open  float64
	High  float64
	Low   float64
	Close float64
}

// ChartPoint is one [timestamp, value] pair from /market_chart.
type ChartPoint struct {
	Time  time.Time
	Value float64
}

type MarketChart struct {
	Prices     []ChartPoint
	MarketCaps []ChartPoint
	Volumes    []ChartPoint
}

// MarketCoin is one row of /coins/markets.
type MarketCoin struct {
	ID                       string   `json:"id"`
	Symbol                   string   `json:"symbol"`
	Name                     string   `json:"name"`
	CurrentPrice             *float64 `json:"current_price"`
	MarketCap                *float64 `json:"market_cap"`
	MarketCapRank            *int     `json:"market_cap_rank"`
	TotalVolume              *float64 `json:"total_volume"`
	PriceChangePercentage24h *float64 `json:"price_change_percentage_24h"`
}

// CoinGecko is a read-only client for the public v3 API.
type CoinGecko struct {
	baseURL string
	fetch   *fetcher
}

// NewCoinGecko builds a client. c may be nil to disable response caching.
func NewCoinGecko(cfg CoinGeckoConfig, c cache.Cache) *CoinGecko {
	pool := httpclient.DefaultClientConfig()
	pool.RequestTimeout = cfg.Timeout
	pool.MaxRetries = cfg.MaxRetries
	if cfg.APIKey != "" {
		pool.Headers = map[string]string{"x-cg-pro-api-key": cfg.APIKey}
	}
	return newCoinGecko(cfg, httpclient.NewClientPool(pool), c)
}

func newCoinGecko(cfg CoinGeckoConfig, pool *httpclient.ClientPool, c cache.Cache) *CoinGecko {
	guard := cfg.Guard
	guard.Name = coinGeckoName
	return &CoinGecko{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		fetch: &fetcher{
			name:  coinGeckoName,
			pool:  pool,
			guard: NewGuard(guard),
			cache: c,
			ttl:   cfg.CacheTTL,
		},
	}
}

// CoinInfo looks up a coin. Unknown ids wrap market.ErrNotFound.
func (p *CoinGecko) CoinInfo(ctx context.Context, id string) (*CoinInfo, error) {
	params := url.Values{
		"localization":   {"false"},
		"tickers":        {"false"},
		"community_data": {"false"},
	}
	var info CoinInfo
	if err := p.getJSON(ctx, id, "/coins/"+url.PathEscape(id), params, &info); err != nil {
		return nil, err
	}
	info.Symbol = strings.ToUpper(info.Symbol)
	if info.Name == "" {
		info.Name = id
	}
	return &info, nil
}

// OHLC returns candles for the last days days in USD.
func (p *CoinGecko) OHLC(ctx context.Context, id string, days int) ([]OHLCBar, error) {
	params := url.Values{
		"vs_currency": {"usd"},
		"days":        {strconv.Itoa(days)},
	}
	var raw [][]float64
	if err := p.getJSON(ctx, id, "/coins/"+url.PathEscape(id)+"/ohlc", params, &raw); err != nil {
		return nil, err
	}

	bars := make([]OHLCBar, 0, len(raw))
	for _, r := range raw {
		if len(r) < 5 {
			continue
		}
		bars = append(bars, OHLCBar{
			Time:  unixMillis(r[0]),
			Open:  r[1],
			High:  r[2],
			Low:   r[3],
			Close: r[4],
		})
	}
	return bars, nil
}

// MarketChart returns daily prices, market caps and volumes in USD.
func (p *CoinGecko) MarketChart(ctx context.Context, id string, days int) (*MarketChart, error) {
	params := url.Values{
		"vs_currency": {"usd"},
		"days":        {strconv.Itoa(days)},
		"interval":    {"daily"},
	}
	var raw struct {
		Prices       [][]float64 `json:"prices"`
		MarketCaps   [][]float64 `json:"market_caps"`
		TotalVolumes [][]float64 `json:"total_volumes"`
	}
	if err := p.getJSON(ctx, id, "/coins/"+url.PathEscape(id)+"/market_chart", params, &raw); err != nil {
		return nil, err
	}
	return &MarketChart{
		Prices:     chartPoints(raw.Prices),
		MarketCaps: chartPoints(raw.MarketCaps),
		Volumes:    chartPoints(raw.TotalVolumes),
	}, nil
}

// TopCoins returns the first page of coins ordered by market cap.
func (p *CoinGecko) TopCoins(ctx context.Context, limit int) ([]MarketCoin, error) {
	params := url.Values{
		"vs_currency": {"usd"},
		"order":       {"market_cap_desc"},
		"per_page":    {strconv.Itoa(limit)},
		"page":        {"1"},
		"sparkline":   {"false"},
	}
	var coins []MarketCoin
	if err := p.getJSON(ctx, "markets", "/coins/markets", params, &coins); err != nil {
		return nil, err
	}
	return coins, nil
}

// State reports the breaker state, for health output.
func (p *CoinGecko) State() string {
	return p.fetch.guard.State()
}

func (p *CoinGecko) getJSON(ctx context.Context, id, path string, params url.Values, out interface{}) error {
	body, err := p.fetch.get(ctx, p.baseURL+path, params)
	if httpclient.IsNotFound(err) {
		return market.NotFoundError(id)
	}
	if err != nil {
		return unavailable(coinGeckoName, path, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return unavailable(coinGeckoName, path, fmt.Errorf("decode: %w", err))
	}
	return nil
}

func chartPoints(raw [][]float64) []ChartPoint {
	out := make([]ChartPoint, 0, len(raw))
	for _, r := range raw {
		if len(r) < 2 {
			continue
		}
		out = append(out, ChartPoint{Time: unixMillis(r[0]), Value: r[1]})
	}
	return out
}

func unixMillis(ms float64) time.Time {
	return time.UnixMilli(int64(ms)).UTC()
}
