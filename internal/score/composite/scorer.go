// Package composite folds the indicator columns into one bounded lean per date.
package composite

import (
	"math"

	"github.com/sawpanic/cryptolens/internal/domain/indicators"
	"github.com/sawpanic/cryptolens/internal/domain/market"
	"github.com/sawpanic/cryptolens/internal/domain/sentiment"
)

// Weights are the per-indicator contributions before renormalisation.
type Weights struct {
	RSI       float64 `yaml:"rsi" json:"rsi"`
	MACD      float64 `yaml:"macd" json:"macd"`
	Bollinger float64 `yaml:"bollinger" json:"bollinger"`
	Sentiment float64 `yaml:"sentiment" json:"sentiment"`
}

// DefaultWeights returns the production weighting.
func DefaultWeights() Weights {
	return Weights{
		RSI:       0.25,
		MACD:      0.25,
		Bollinger: 0.20,
		Sentiment: 0.15,
	}
}

// MACDNormWindow is the trailing window for the histogram's max-abs normaliser.
const MACDNormWindow = 50

// Scorer provides composite scoring functionality
type Scorer struct {
	weights Weights
}

// NewScorer creates a scorer with the default weights
func NewScorer() *Scorer {
	return &Scorer{weights: DefaultWeights()}
}

// NewScorerWithWeights creates a scorer with custom weights
func NewScorerWithWeights(w Weights) *Scorer {
	return &Scorer{weights: w}
}

// Contribution is one indicator's part of a date's score.
type Contribution struct {
	SubScore float64 `json:"sub_score"`
	Weight   float64 `json:"weight"`
	Included bool    `json:"included"`
}

// Breakdown explains a single date's score.
type Breakdown struct {
	RSI       Contribution `json:"rsi"`
	MACD      Contribution `json:"macd"`
	Bollinger Contribution `json:"bollinger"`
	Sentiment Contribution `json:"sentiment"`
	Score     float64      `json:"score"`
	Label     string       `json:"label"`
}

// Score returns one value in [-1, 1] per row. Indicators missing on a date are
// dropped from both the numerator and the weight sum for that date; a date with
// nothing available scores 0.
func (s *Scorer) Score(frame indicators.Frame) []float64 {
	out := make([]float64, len(frame))
	for i, b := range s.Explain(frame) {
		out[i] = b.Score
	}
	return out
}

// Explain returns the per-date breakdown behind Score.
func (s *Scorer) Explain(frame indicators.Frame) []Breakdown {
	macdNorm := normalizedMACD(frame, MACDNormWindow)
	out := make([]Breakdown, len(frame))

	for i, row := range frame {
		b := Breakdown{
			RSI:       s.contribution(row.RSI14, RSIScore, s.weights.RSI),
			Bollinger: s.contribution(row.BBPct, BollingerScore, s.weights.Bollinger),
			Sentiment: s.contribution(row.Sentiment, SentimentScore, s.weights.Sentiment),
			MACD:      s.contribution(macdNorm[i], identity, s.weights.MACD),
		}

		sum, weight := 0.0, 0.0
		for _, c := range []Contribution{b.RSI, b.MACD, b.Bollinger, b.Sentiment} {
			if !c.Included {
				continue
			}
			sum += c.SubScore * c.Weight
			weight += c.Weight
		}
		if weight > 0 {
			b.Score = clamp(sum/weight, -1, 1)
		}
		b.Label = Label(b.Score)
		out[i] = b
	}
	return out
}

// Apply writes the composite score into a copy of frame.
func (s *Scorer) Apply(frame indicators.Frame) indicators.Frame {
	out := frame.Clone()
	for i, v := range s.Score(out) {
		out[i].Composite = v
	}
	return out
}

func (s *Scorer) contribution(r indicators.Reading, sub func(float64) float64, weight float64) Contribution {
	if !r.Valid || weight <= 0 {
		return Contribution{Weight: weight}
	}
	return Contribution{SubScore: sub(r.Value), Weight: weight, Included: true}
}

// BuildFrame runs the full signal chain: indicators, sentiment alignment, composite score.
func BuildFrame(series market.PriceSeries, readings market.SentimentSeries) indicators.Frame {
	frame := indicators.Compute(series)
	frame = sentiment.Align(frame, readings)
	return NewScorer().Apply(frame)
}

// RSIScore: overbought sells, oversold buys, linear lean in between.
func RSIScore(rsi float64) float64 {
	switch {
	case rsi > 70:
		return -1
	case rsi < 30:
		return 1
	default:
		return (50 - rsi) / 50 * 0.5
	}
}

// BollingerScore is piecewise in %B. Inside [0.1, 0.9] the linear term is
// 0.5-%B, which does not meet ±1 at the thresholds.
func BollingerScore(pct float64) float64 {
	switch {
	case pct > 0.9:
		return -1
	case pct < 0.1:
		return 1
	default:
		return 0.5 - pct
	}
}

// SentimentScore is contrarian: extreme fear buys, extreme greed sells.
func SentimentScore(index float64) float64 {
	switch {
	case index < 20:
		return 1
	case index > 80:
		return -1
	default:
		return (50 - index) / 50 * 0.5
	}
}

// normalizedMACD divides each histogram value by the max |hist| over the
// trailing window of present values, clamped to [-1, 1].
func normalizedMACD(frame indicators.Frame, window int) []indicators.Reading {
	out := make([]indicators.Reading, len(frame))
	for i, row := range frame {
		if !row.MACDHist.Valid {
			continue
		}
		maxAbs := 0.0
		for j := max(0, i-window+1); j <= i; j++ {
			if h := frame[j].MACDHist; h.Valid {
				maxAbs = math.Max(maxAbs, math.Abs(h.Value))
			}
		}
		if maxAbs == 0 {
			maxAbs = 1
		}
		out[i] = indicators.Some(clamp(row.MACDHist.Value/maxAbs, -1, 1))
	}
	return out
}

func identity(v float64) float64 { return v }

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
