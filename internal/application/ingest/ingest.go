// Package ingest seeds coins and daily price history from CoinGecko into Postgres.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/cryptolens/internal/domain/market"
	"github.com/sawpanic/cryptolens/internal/infrastructure/providers"
	"github.com/sawpanic/cryptolens/internal/persistence"
)

// DefaultLookbackDays is how much history a seed requests when none is given.
const DefaultLookbackDays = 365

// MarketData is the slice of the CoinGecko client ingestion needs.
type MarketData interface {
	CoinInfo(ctx context.Context, id string) (*providers.CoinInfo, error)
	OHLC(ctx context.Context, id string, days int) ([]providers.OHLCBar, error)
	MarketChart(ctx context.Context, id string, days int) (*providers.MarketChart, error)
	TopCoins(ctx context.Context, limit int) ([]providers.MarketCoin, error)
}

type Service struct {
	source MarketData
	coins  persistence.CoinsRepo
	prices persistence.PricesRepo
}

func NewService(source MarketData, repo *persistence.Repository) *Service {
	return &Service{source: source, coins: repo.Coins, prices: repo.Prices}
}

// GetOrCreateCoin returns the stored coin, registering it on first sight.
// Metadata lookup failures fall back to a symbol derived from the id.
func (s *Service) GetOrCreateCoin(ctx context.Context, id string) (*persistence.Coin, error) {
	id = strings.ToLower(strings.TrimSpace(id))
	if id == "" {
		return nil, errors.New("coin id is required")
	}

	existing, err := s.coins.Get(ctx, id)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, market.ErrNotFound) {
		return nil, err
	}

	coin := persistence.Coin{CoingeckoID: id}
	info, err := s.source.CoinInfo(ctx, id)
	if err != nil {
		log.Warn().Err(err).Str("coin", id).Msg("Could not fetch coin metadata, using fallback symbol")
		coin.Symbol = market.DefaultSymbol(id)
		coin.Name = id
	} else {
		coin.Symbol = info.Symbol
		coin.Name = info.Name
		coin.MarketCapRank = info.MarketCapRank
	}

	rowID, err := s.coins.Upsert(ctx, coin)
	if err != nil {
		return nil, err
	}
	coin.ID = rowID
	coin.CreatedAt = time.Now().UTC()

	log.Info().Str("coin", id).Str("symbol", coin.Symbol).Msg("Created coin")
	return &coin, nil
}

// SeedPriceHistory fetches days of history and upserts one bar per UTC date.
// A failed OHLC fetch is an error; a failed market chart only drops volume
// and market cap.
func (s *Service) SeedPriceHistory(ctx context.Context, id string, days int) (int, error) {
	if days <= 0 {
		days = DefaultLookbackDays
	}
	coin, err := s.GetOrCreateCoin(ctx, id)
	if err != nil {
		return 0, err
	}

	log.Info().Str("coin", coin.CoingeckoID).Int("days", days).Msg("Fetching price history")

	bars, err := s.source.OHLC(ctx, coin.CoingeckoID, days)
	if err != nil {
		return 0, fmt.Errorf("fetch OHLC for %s: %w", coin.CoingeckoID, err)
	}

	chart, err := s.source.MarketChart(ctx, coin.CoingeckoID, days)
	if err != nil {
		log.Warn().Err(err).Str("coin", coin.CoingeckoID).Msg("Could not fetch market chart, storing prices without volume")
		chart = nil
	}

	series := MergeDaily(bars, chart)
	if len(series) == 0 {
		return 0, nil
	}

	n, err := s.prices.UpsertBatch(ctx, coin.ID, series)
	if err != nil {
		return 0, err
	}
	log.Info().Str("coin", coin.CoingeckoID).Int("rows", n).Msg("Upserted price history")
	return n, nil
}

// TopCoins lists the largest coins by market cap.
func (s *Service) TopCoins(ctx context.Context, limit int) ([]providers.MarketCoin, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.source.TopCoins(ctx, limit)
}

// MergeDaily buckets candles by UTC date (open first, high max, low min,
// close last) and left-joins the last volume and market cap of each date.
func MergeDaily(bars []providers.OHLCBar, chart *providers.MarketChart) market.PriceSeries {
	byDay := make(map[time.Time]*market.PricePoint)
	var days []time.Time
	for _, b := range bars {
		d := market.Day(b.Time)
		p, ok := byDay[d]
		if !ok {
			byDay[d] = &market.PricePoint{
				Date:  d,
				Open:  market.Float(b.Open),
				High:  market.Float(b.High),
				Low:   market.Float(b.Low),
				Close: b.Close,
			}
			days = append(days, d)
			continue
		}
		if b.High > *p.High {
			p.High = market.Float(b.High)
		}
		if b.Low < *p.Low {
			p.Low = market.Float(b.Low)
		}
		p.Close = b.Close
	}

	if chart != nil {
		volumes := lastPerDay(chart.Volumes)
		caps := lastPerDay(chart.MarketCaps)
		for d, p := range byDay {
			if v, ok := volumes[d]; ok {
				p.Volume = market.Float(v)
			}
			if v, ok := caps[d]; ok {
				p.MarketCap = market.Float(v)
			}
		}
	}

	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	out := make(market.PriceSeries, len(days))
	for i, d := range days {
		out[i] = *byDay[d]
	}
	return out
}

func lastPerDay(points []providers.ChartPoint) map[time.Time]float64 {
	out := make(map[time.Time]float64, len(points))
	for _, p := range points {
		out[market.Day(p.Time)] = p.Value
	}
	return out
}
