// Package indicators computes daily technical indicators over a price series.
// Every function returns one Reading per input row; rows inside a warm-up
// window are Missing.
package indicators

import "math"

// Standard periods.
const (
	RSIPeriod       = 14
	MACDFast        = 12
	MACDSlow        = 26
	MACDSignal      = 9
	BollingerPeriod = 20
	BollingerWidth  = 2.0
)

// SMA is the simple moving average over window rows; the first window-1 rows are missing.
func SMA(values []float64, window int) []Reading {
	out := make([]Reading, len(values))
	if window <= 0 {
		return out
	}
	sum := 0.0
	for i, v := range values {
		sum += v
		if i >= window {
			sum -= values[i-window]
		}
		if i >= window-1 {
			out[i] = Some(sum / float64(window))
		}
	}
	return out
}

// EMA is an exponential moving average with alpha = 2/(span+1), seeded with the
// first present value and reported once span values have been observed.
// Missing inputs yield missing outputs and leave the average untouched.
func EMA(values []Reading, span int) []Reading {
	return ewm(values, 2.0/(float64(span)+1), span)
}

// EMAOf is EMA over a column with no gaps.
func EMAOf(values []float64, span int) []Reading {
	return EMA(present(values), span)
}

// ewm is the recursive (non-adjusted) exponentially weighted mean.
func ewm(values []Reading, alpha float64, minObs int) []Reading {
	out := make([]Reading, len(values))
	var avg float64
	seen := 0
	for i, v := range values {
		if !v.Valid {
			continue
		}
		if seen == 0 {
			avg = v.Value
		} else {
			avg = (1-alpha)*avg + alpha*v.Value
		}
		seen++
		if seen >= minObs {
			out[i] = Some(avg)
		}
	}
	return out
}

// RSI is the Wilder-smoothed relative strength index. The first row has no
// prior close and counts as a zero change, so the first period-1 rows are missing.
func RSI(closes []float64, period int) []Reading {
	gains := make([]Reading, len(closes))
	losses := make([]Reading, len(closes))
	for i := range closes {
		change := 0.0
		if i > 0 {
			change = closes[i] - closes[i-1]
		}
		gains[i] = Some(math.Max(change, 0))
		losses[i] = Some(math.Max(-change, 0))
	}

	alpha := 1.0 / float64(period)
	avgGain := ewm(gains, alpha, period)
	avgLoss := ewm(losses, alpha, period)

	out := make([]Reading, len(closes))
	for i := range closes {
		if !avgGain[i].Valid || !avgLoss[i].Valid {
			continue
		}
		if avgLoss[i].Value == 0 {
			out[i] = Some(100)
			continue
		}
		rs := avgGain[i].Value / avgLoss[i].Value
		out[i] = Some(100 - 100/(1+rs))
	}
	return out
}

// MACDResult holds the three MACD columns.
type MACDResult struct {
	Line      []Reading
	Signal    []Reading
	Histogram []Reading
}

// MACD computes EMA(fast) - EMA(slow), its EMA(signal), and their difference.
func MACD(closes []float64, fast, slow, signal int) MACDResult {
	emaFast := EMAOf(closes, fast)
	emaSlow := EMAOf(closes, slow)

	line := make([]Reading, len(closes))
	for i := range closes {
		if emaFast[i].Valid && emaSlow[i].Valid {
			line[i] = Some(emaFast[i].Value - emaSlow[i].Value)
		}
	}
	sig := EMA(line, signal)

	hist := make([]Reading, len(closes))
	for i := range closes {
		if line[i].Valid && sig[i].Valid {
			hist[i] = Some(line[i].Value - sig[i].Value)
		}
	}
	return MACDResult{Line: line, Signal: sig, Histogram: hist}
}

// BollingerResult holds the band columns and %B.
type BollingerResult struct {
	Upper   []Reading
	Middle  []Reading
	Lower   []Reading
	Percent []Reading
}

// Bollinger computes mean ± width × population std over period rows.
// %B is left unclamped; it is missing when the band has zero width.
func Bollinger(closes []float64, period int, width float64) BollingerResult {
	n := len(closes)
	res := BollingerResult{
		Upper:   make([]Reading, n),
		Middle:  make([]Reading, n),
		Lower:   make([]Reading, n),
		Percent: make([]Reading, n),
	}
	for i := period - 1; i < n; i++ {
		window := closes[i-period+1 : i+1]
		mean := 0.0
		for _, v := range window {
			mean += v
		}
		mean /= float64(period)

		variance := 0.0
		for _, v := range window {
			variance += (v - mean) * (v - mean)
		}
		std := math.Sqrt(variance / float64(period))

		upper := mean + width*std
		lower := mean - width*std
		res.Upper[i] = Some(upper)
		res.Middle[i] = Some(mean)
		res.Lower[i] = Some(lower)
		if upper > lower {
			res.Percent[i] = Some((closes[i] - lower) / (upper - lower))
		}
	}
	return res
}

// OBV is on-balance volume starting at 0. A missing volume counts as 0; if
// every volume is missing the whole column is missing.
func OBV(closes []float64, volumes []*float64) []Reading {
	out := make([]Reading, len(closes))
	if !anyPresent(volumes) {
		return out
	}
	obv := 0.0
	for i := range closes {
		if i > 0 {
			v := 0.0
			if volumes[i] != nil {
				v = *volumes[i]
			}
			switch {
			case closes[i] > closes[i-1]:
				obv += v
			case closes[i] < closes[i-1]:
				obv -= v
			}
		}
		out[i] = Some(obv)
	}
	return out
}

// PercentChange is the day-over-day change in percent. A row is missing when it
// or the previous row is missing, or the previous value is zero.
func PercentChange(values []*float64) []Reading {
	out := make([]Reading, len(values))
	for i := 1; i < len(values); i++ {
		prev, cur := values[i-1], values[i]
		if prev == nil || cur == nil || *prev == 0 {
			continue
		}
		out[i] = Some((*cur / *prev - 1) * 100)
	}
	return out
}

func present(values []float64) []Reading {
	out := make([]Reading, len(values))
	for i, v := range values {
		out[i] = Some(v)
	}
	return out
}

func anyPresent(values []*float64) bool {
	for _, v := range values {
		if v != nil {
			return true
		}
	}
	return false
}
