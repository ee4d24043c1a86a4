package indicators

import (
	"time"

	"github.com/sawpanic/cryptolens/internal/domain/market"
)

// Row is the indicator snapshot for one date.
type Row struct {
	Date  time.Time `json:"date"`
	Close float64   `json:"close"`

	RSI14      Reading `json:"rsi_14"`
	MACD       Reading `json:"macd"`
	MACDSignal Reading `json:"macd_signal"`
	MACDHist   Reading `json:"macd_hist"`
	BBUpper    Reading `json:"bb_upper"`
	BBLower    Reading `json:"bb_lower"`
	BBPct      Reading `json:"bb_pct"`
	SMA20      Reading `json:"sma_20"`
	SMA50      Reading `json:"sma_50"`
	SMA200     Reading `json:"sma_200"`
	EMA12      Reading `json:"ema_12"`
	EMA26      Reading `json:"ema_26"`
	OBV        Reading `json:"obv"`

	VolumeChange24h    Reading `json:"volume_change_24h"`
	MarketCapChange24h Reading `json:"market_cap_change_24h"`

	// Filled by the sentiment aligner.
	Sentiment      Reading `json:"fear_greed_index"`
	SentimentLabel string  `json:"fear_greed_label,omitempty"`

	// Filled by the composite scorer; always in [-1, 1].
	Composite float64 `json:"composite_score"`
}

// Frame is aligned 1:1 with the PriceSeries it was computed from.
type Frame []Row

// Compute runs every indicator over the series. It never fails on short
// history: leading rows are simply missing.
func Compute(series market.PriceSeries) Frame {
	n := len(series)
	frame := make(Frame, n)
	if n == 0 {
		return frame
	}

	closes := series.Closes()
	volumes := make([]*float64, n)
	caps := make([]*float64, n)
	for i, p := range series {
		volumes[i] = p.Volume
		caps[i] = p.MarketCap
	}

	rsi := RSI(closes, RSIPeriod)
	macd := MACD(closes, MACDFast, MACDSlow, MACDSignal)
	bb := Bollinger(closes, BollingerPeriod, BollingerWidth)
	sma20 := SMA(closes, 20)
	sma50 := SMA(closes, 50)
	sma200 := SMA(closes, 200)
	ema12 := EMAOf(closes, 12)
	ema26 := EMAOf(closes, 26)
	obv := OBV(closes, volumes)
	volChange := PercentChange(volumes)
	capChange := PercentChange(caps)

	for i, p := range series {
		frame[i] = Row{
			Date:               p.Date,
			Close:              p.Close,
			RSI14:              rsi[i],
			MACD:               macd.Line[i],
			MACDSignal:         macd.Signal[i],
			MACDHist:           macd.Histogram[i],
			BBUpper:            bb.Upper[i],
			BBLower:            bb.Lower[i],
			BBPct:              bb.Percent[i],
			SMA20:              sma20[i],
			SMA50:              sma50[i],
			SMA200:             sma200[i],
			EMA12:              ema12[i],
			EMA26:              ema26[i],
			OBV:                obv[i],
			VolumeChange24h:    volChange[i],
			MarketCapChange24h: capChange[i],
		}
	}
	return frame
}

// Dates returns the date column.
func (f Frame) Dates() []time.Time {
	out := make([]time.Time, len(f))
	for i, r := range f {
		out[i] = r.Date
	}
	return out
}

// Clone returns a copy that can be modified without touching f.
func (f Frame) Clone() Frame {
	out := make(Frame, len(f))
	copy(out, f)
	return out
}
