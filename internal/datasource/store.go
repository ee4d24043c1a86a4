// Package datasource supplies price and sentiment history to the backtest engine.
package datasource

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/cryptolens/internal/domain/market"
	"github.com/sawpanic/cryptolens/internal/persistence"
)

// SentimentProvider fetches the most recent limit daily readings.
type SentimentProvider interface {
	History(ctx context.Context, limit int) (market.SentimentSeries, error)
}

// Store reads prices from Postgres and sentiment from the live provider.
type Store struct {
	coins     persistence.CoinsRepo
	prices    persistence.PricesRepo
	sentiment SentimentProvider
}

// NewStore wires a Store. sentiment may be nil, in which case every
// sentiment request returns an empty series.
func NewStore(repo *persistence.Repository, sentiment SentimentProvider) *Store {
	return &Store{coins: repo.Coins, prices: repo.Prices, sentiment: sentiment}
}

func (s *Store) Asset(ctx context.Context, id string) (market.Asset, error) {
	coin, err := s.coins.Get(ctx, id)
	if err != nil {
		return market.Asset{}, err
	}
	return coin.Asset(), nil
}

// PriceSeries returns stored bars inside [start, end]. Zero bounds are open.
func (s *Store) PriceSeries(ctx context.Context, id string, start, end time.Time) (market.PriceSeries, error) {
	coin, err := s.coins.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	series, err := s.prices.Range(ctx, coin.ID, persistence.TimeRange{From: start, To: end})
	if err != nil {
		return nil, fmt.Errorf("load prices for %s: %w", id, err)
	}
	if err := market.CheckRows(id, len(series)); err != nil {
		return nil, err
	}
	return series, nil
}

// SentimentSeries degrades to an empty series when the provider fails.
func (s *Store) SentimentSeries(ctx context.Context, limit int) (market.SentimentSeries, error) {
	if s.sentiment == nil {
		return nil, nil
	}
	series, err := s.sentiment.History(ctx, limit)
	if err != nil {
		log.Warn().Err(err).Int("limit", limit).Msg("Fear & Greed unavailable, continuing without sentiment")
		return nil, nil
	}
	return series, nil
}
