package strategy

import "github.com/sawpanic/cryptolens/internal/domain/indicators"

// CompositeThreshold goes long above Buy and flat below Sell, holding in between.
type CompositeThreshold struct {
	Buy  float64
	Sell float64
}

func NewCompositeThreshold() *CompositeThreshold {
	return &CompositeThreshold{Buy: 0.15, Sell: -0.15}
}

func (s *CompositeThreshold) Kind() Kind   { return CompositeKind }
func (s *CompositeThreshold) Name() string { return "composite" }

func (s *CompositeThreshold) Params() map[string]float64 {
	return map[string]float64{"buy_threshold": s.Buy, "sell_threshold": s.Sell}
}

func (s *CompositeThreshold) Positions(frame indicators.Frame) PositionSeries {
	return hysteresis(len(frame),
		func(i int) (bool, bool) { return frame[i].Composite > s.Buy, true },
		func(i int) (bool, bool) { return frame[i].Composite < s.Sell, true },
	)
}

// RSIMeanReversion buys oversold and sells overbought.
type RSIMeanReversion struct {
	Oversold   float64
	Overbought float64
}

func NewRSIMeanReversion() *RSIMeanReversion {
	return &RSIMeanReversion{Oversold: 30, Overbought: 70}
}

func (s *RSIMeanReversion) Kind() Kind   { return RSIKind }
func (s *RSIMeanReversion) Name() string { return "rsi_mean_reversion" }

func (s *RSIMeanReversion) Params() map[string]float64 {
	return map[string]float64{"oversold": s.Oversold, "overbought": s.Overbought}
}

func (s *RSIMeanReversion) Positions(frame indicators.Frame) PositionSeries {
	return hysteresis(len(frame),
		func(i int) (bool, bool) { return frame[i].RSI14.Value < s.Oversold, frame[i].RSI14.Valid },
		func(i int) (bool, bool) { return frame[i].RSI14.Value > s.Overbought, frame[i].RSI14.Valid },
	)
}

// GoldenCross is long exactly while the fast SMA is above the slow SMA.
type GoldenCross struct {
	Fast int
	Slow int
}

func NewGoldenCross() *GoldenCross {
	return &GoldenCross{Fast: 50, Slow: 200}
}

func (s *GoldenCross) Kind() Kind   { return GoldenCrossKind }
func (s *GoldenCross) Name() string { return "golden_cross" }

func (s *GoldenCross) Params() map[string]float64 {
	return map[string]float64{"fast": float64(s.Fast), "slow": float64(s.Slow)}
}

// Positions reads the SMA50/SMA200 columns. While either is missing the
// previous state is held, which is Flat through the warm-up.
func (s *GoldenCross) Positions(frame indicators.Frame) PositionSeries {
	out := make(PositionSeries, len(frame))
	state := Flat
	for i, r := range frame {
		if r.SMA50.Valid && r.SMA200.Valid {
			if r.SMA50.Value > r.SMA200.Value {
				state = Long
			} else {
				state = Flat
			}
		}
		out[i] = state
	}
	return out
}

// SentimentContrarian buys extreme fear and sells extreme greed.
type SentimentContrarian struct {
	FearBuy   float64
	GreedSell float64
}

func NewSentimentContrarian() *SentimentContrarian {
	return &SentimentContrarian{FearBuy: 25, GreedSell: 75}
}

func (s *SentimentContrarian) Kind() Kind   { return FearGreedKind }
func (s *SentimentContrarian) Name() string { return "fear_greed_contrarian" }

func (s *SentimentContrarian) Params() map[string]float64 {
	return map[string]float64{"extreme_fear_buy": s.FearBuy, "extreme_greed_sell": s.GreedSell}
}

func (s *SentimentContrarian) Positions(frame indicators.Frame) PositionSeries {
	return hysteresis(len(frame),
		func(i int) (bool, bool) { return frame[i].Sentiment.Value < s.FearBuy, frame[i].Sentiment.Valid },
		func(i int) (bool, bool) { return frame[i].Sentiment.Value > s.GreedSell, frame[i].Sentiment.Valid },
	)
}
