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
	"github.com/sawpanic/cryptolens/internal/domain/sentiment"
	"github.com/sawpanic/cryptolens/internal/infrastructure/cache"
	"github.com/sawpanic/cryptolens/internal/infrastructure/httpclient"
)

const fearGreedName = "feargreed"

type FearGreedConfig struct {
	URL      string        `yaml:"url" envconfig:"FEAR_GREED_URL"`
	Timeout  time.Duration `yaml:"timeout"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
	Guard    GuardConfig   `yaml:"guard"`
}

func DefaultFearGreedConfig() FearGreedConfig {
	guard := DefaultGuardConfig(fearGreedName)
	guard.RPS = 1
	return FearGreedConfig{
		URL:      "https://api.alternative.me/fng/",
		Timeout:  10 * time.Second,
		CacheTTL: time.Hour,
		Guard:    guard,
	}
}

// FearGreed reads the alternative.me Crypto Fear & Greed history.
type FearGreed struct {
	url   string
	fetch *fetcher
}

// NewFearGreed builds a client. c may be nil to disable response caching.
func NewFearGreed(cfg FearGreedConfig, c cache.Cache) *FearGreed {
	pool := httpclient.DefaultClientConfig()
	pool.RequestTimeout = cfg.Timeout
	pool.MaxRetries = 1
	return newFearGreed(cfg, httpclient.NewClientPool(pool), c)
}

func newFearGreed(cfg FearGreedConfig, pool *httpclient.ClientPool, c cache.Cache) *FearGreed {
	guard := cfg.Guard
	guard.Name = fearGreedName
	return &FearGreed{
		url: cfg.URL,
		fetch: &fetcher{
			name:  fearGreedName,
			pool:  pool,
			guard: NewGuard(guard),
			cache: c,
			ttl:   cfg.CacheTTL,
		},
	}
}

type fngResponse struct {
	Data []struct {
		Value          string `json:"value"`
		Classification string `json:"value_classification"`
		Timestamp      string `json:"timestamp"`
	} `json:"data"`
}

// History returns up to limit daily readings, oldest first. Every failure
// wraps market.ErrDependencyUnavailable.
func (p *FearGreed) History(ctx context.Context, limit int) (market.SentimentSeries, error) {
	params := url.Values{
		"limit":  {strconv.Itoa(limit)},
		"format": {"json"},
	}
	body, err := p.fetch.get(ctx, p.url, params)
	if err != nil {
		return nil, unavailable(fearGreedName, "history", err)
	}

	var resp fngResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, unavailable(fearGreedName, "history", fmt.Errorf("decode: %w", err))
	}

	out := make(market.SentimentSeries, 0, len(resp.Data))
	for _, d := range resp.Data {
		ts, err := strconv.ParseInt(strings.TrimSpace(d.Timestamp), 10, 64)
		if err != nil {
			return nil, unavailable(fearGreedName, "history", fmt.Errorf("timestamp %q: %w", d.Timestamp, err))
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(d.Value), 64)
		if err != nil {
			return nil, unavailable(fearGreedName, "history", fmt.Errorf("value %q: %w", d.Value, err))
		}
		label := d.Classification
		if label == "" {
			label = sentiment.Classify(value)
		}
		out = append(out, market.SentimentReading{
			Date:  market.Day(time.Unix(ts, 0)),
			Value: value,
			Label: label,
		})
	}
	return out.Sorted(), nil
}

// State reports the breaker state, for health output.
func (p *FearGreed) State() string {
	return p.fetch.guard.State()
}
