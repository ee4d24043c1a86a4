// Package sentiment merges a sparse Fear & Greed history onto indicator dates.
package sentiment

import (
	"github.com/sawpanic/cryptolens/internal/domain/indicators"
	"github.com/sawpanic/cryptolens/internal/domain/market"
)

// Align returns a copy of frame whose Sentiment columns carry the most recent
// reading on or before each date. Dates before the first reading stay missing.
func Align(frame indicators.Frame, readings market.SentimentSeries) indicators.Frame {
	out := frame.Clone()
	if len(readings) == 0 {
		return out
	}

	sorted := readings.Sorted()
	j := -1
	for i := range out {
		for j+1 < len(sorted) && !sorted[j+1].Date.After(out[i].Date) {
			j++
		}
		if j < 0 {
			out[i].Sentiment = indicators.Missing
			out[i].SentimentLabel = ""
			continue
		}
		out[i].Sentiment = indicators.Some(sorted[j].Value)
		out[i].SentimentLabel = sorted[j].Label
	}
	return out
}

// Classify maps an index value to the alternative.me band names, for readings
// that arrive without a label.
func Classify(value float64) string {
	switch {
	case value < 25:
		return "Extreme Fear"
	case value < 47:
		return "Fear"
	case value < 55:
		return "Neutral"
	case value < 75:
		return "Greed"
	default:
		return "Extreme Greed"
	}
}
