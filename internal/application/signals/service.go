// Package signals computes, stores and summarises per-coin indicator rows.
package signals

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/cryptolens/internal/domain/market"
	"github.com/sawpanic/cryptolens/internal/persistence"
	"github.com/sawpanic/cryptolens/internal/score/composite"
)

// sentimentSlack matches the backtest engine's extra sentiment lookback.
const sentimentSlack = 10

// SentimentProvider fetches the most recent limit daily readings.
type SentimentProvider interface {
	History(ctx context.Context, limit int) (market.SentimentSeries, error)
}

type Service struct {
	coins     persistence.CoinsRepo
	prices    persistence.PricesRepo
	signals   persistence.SignalsRepo
	sentiment SentimentProvider
}

// NewService wires the service. sentiment may be nil.
func NewService(repo *persistence.Repository, sentiment SentimentProvider) *Service {
	return &Service{
		coins:     repo.Coins,
		prices:    repo.Prices,
		signals:   repo.Signals,
		sentiment: sentiment,
	}
}

// ComputeAndStore scores the coin's full stored history and upserts one
// signal row per date. It returns the number of rows written.
func (s *Service) ComputeAndStore(ctx context.Context, id string) (int, error) {
	coin, series, err := s.history(ctx, id)
	if err != nil {
		return 0, err
	}

	var readings market.SentimentSeries
	if s.sentiment != nil {
		readings, err = s.sentiment.History(ctx, len(series)+sentimentSlack)
		if err != nil {
			log.Warn().Err(err).Str("coin", id).Msg("Fear & Greed unavailable, scoring without sentiment")
			readings = nil
		}
	}

	frame := composite.BuildFrame(series, readings)
	rows := make([]persistence.Signal, len(frame))
	for i, r := range frame {
		rows[i] = persistence.SignalFromRow(coin.ID, r)
	}

	n, err := s.signals.UpsertBatch(ctx, rows)
	if err != nil {
		return 0, err
	}
	log.Info().Str("coin", id).Int("rows", n).Msg("Stored signals")
	return n, nil
}

// IndicatorSummary is the human-readable view of the latest indicators.
type IndicatorSummary struct {
	RSI14              *float64 `json:"rsi_14"`
	RSIInterpretation  string   `json:"rsi_interpretation"`
	MACDHist           *float64 `json:"macd_hist"`
	MACDInterpretation string   `json:"macd_interpretation"`
	BBPct              *float64 `json:"bb_pct"`
	BBInterpretation   string   `json:"bb_interpretation"`
	FearGreedIndex     *float64 `json:"fear_greed_index"`
	FearGreedLabel     *string  `json:"fear_greed_label"`
	VolumeChange24h    *float64 `json:"volume_change_24h"`
}

type Summary struct {
	Coin             string           `json:"coin"`
	Date             market.Date      `json:"date"`
	PriceUSD         float64          `json:"price_usd"`
	PriceChange7dPct float64          `json:"price_change_7d_pct"`
	Signal           string           `json:"signal"`
	CompositeScore   float64          `json:"composite_score"`
	Indicators       IndicatorSummary `json:"indicators"`
}

// Summary describes the latest stored signal. A coin with no signals yet
// wraps market.ErrNotFound.
func (s *Service) Summary(ctx context.Context, id string) (*Summary, error) {
	coin, series, err := s.history(ctx, id)
	if err != nil {
		return nil, err
	}
	latest, err := s.signals.Latest(ctx, coin.ID)
	if err != nil {
		return nil, err
	}
	if latest == nil {
		return nil, fmt.Errorf("no signals for %s, compute them first: %w", id, market.ErrNotFound)
	}

	last := series[len(series)-1].Close
	change := 0.0
	if len(series) >= 7 {
		change = (last/series[len(series)-7].Close - 1) * 100
	}

	return &Summary{
		Coin:             id,
		Date:             latest.Date,
		PriceUSD:         last,
		PriceChange7dPct: change,
		Signal:           composite.Label(latest.CompositeScore),
		CompositeScore:   latest.CompositeScore,
		Indicators: IndicatorSummary{
			RSI14:              latest.RSI14,
			RSIInterpretation:  composite.InterpretRSI(latest.RSI14),
			MACDHist:           latest.MACDHist,
			MACDInterpretation: composite.InterpretMACD(latest.MACDHist),
			BBPct:              latest.BBPct,
			BBInterpretation:   composite.InterpretBollinger(latest.BBPct),
			FearGreedIndex:     latest.FearGreedIndex,
			FearGreedLabel:     latest.FearGreedLabel,
			VolumeChange24h:    latest.VolumeChange24h,
		},
	}, nil
}

// Since returns stored rows dated on or after from, oldest first.
func (s *Service) Since(ctx context.Context, id string, from market.Date) ([]persistence.Signal, error) {
	coin, err := s.coins.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.signals.Range(ctx, coin.ID, persistence.TimeRange{From: from.Time})
}

func (s *Service) history(ctx context.Context, id string) (*persistence.Coin, market.PriceSeries, error) {
	coin, err := s.coins.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	series, err := s.prices.Range(ctx, coin.ID, persistence.TimeRange{})
	if err != nil {
		return nil, nil, fmt.Errorf("load prices for %s: %w", id, err)
	}
	if len(series) == 0 {
		return nil, nil, &market.InsufficientDataError{Asset: id, Rows: 0, Required: 1}
	}
	return coin, series, nil
}
