package datasource

import (
	"context"
	"sync"
	"time"

	"github.com/sawpanic/cryptolens/internal/domain/market"
)

// Memory holds series in process. It backs offline runs and tests.
type Memory struct {
	mu        sync.RWMutex
	assets    map[string]market.Asset
	prices    map[string]market.PriceSeries
	sentiment market.SentimentSeries
}

func NewMemory() *Memory {
	return &Memory{
		assets: make(map[string]market.Asset),
		prices: make(map[string]market.PriceSeries),
	}
}

// Add registers an asset and its history, replacing any earlier entry.
func (m *Memory) Add(asset market.Asset, series market.PriceSeries) error {
	if err := series.Validate(); err != nil {
		return err
	}
	if asset.Symbol == "" {
		asset.Symbol = market.DefaultSymbol(asset.ID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assets[asset.ID] = asset
	m.prices[asset.ID] = series
	return nil
}

func (m *Memory) SetSentiment(series market.SentimentSeries) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sentiment = series.Sorted()
}

// IDs lists the loaded assets.
func (m *Memory) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.assets))
	for id := range m.assets {
		out = append(out, id)
	}
	return out
}

func (m *Memory) Asset(_ context.Context, id string) (market.Asset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.assets[id]
	if !ok {
		return market.Asset{}, market.NotFoundError(id)
	}
	return a, nil
}

func (m *Memory) PriceSeries(_ context.Context, id string, start, end time.Time) (market.PriceSeries, error) {
	m.mu.RLock()
	series, ok := m.prices[id]
	m.mu.RUnlock()
	if !ok {
		return nil, market.NotFoundError(id)
	}
	out := series.Between(start, end)
	if err := market.CheckRows(id, len(out)); err != nil {
		return nil, err
	}
	return out, nil
}

// SentimentSeries returns the newest limit readings, oldest first.
func (m *Memory) SentimentSeries(_ context.Context, limit int) (market.SentimentSeries, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit > 0 && len(m.sentiment) > limit {
		return append(market.SentimentSeries(nil), m.sentiment[len(m.sentiment)-limit:]...), nil
	}
	return append(market.SentimentSeries(nil), m.sentiment...), nil
}
