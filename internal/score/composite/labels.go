package composite

// Signal labels, strongest buy first.
const (
	StrongBuy  = "STRONG BUY"
	Buy        = "BUY"
	Neutral    = "NEUTRAL"
	Sell       = "SELL"
	StrongSell = "STRONG SELL"
)

// Label maps a composite score to its signal name.
func Label(score float64) string {
	switch {
	case score > 0.5:
		return StrongBuy
	case score > 0.15:
		return Buy
	case score > -0.15:
		return Neutral
	case score > -0.5:
		return Sell
	default:
		return StrongSell
	}
}

// InterpretRSI describes an RSI level.
func InterpretRSI(rsi *float64) string {
	switch {
	case rsi != nil && *rsi < 30:
		return "oversold (bullish)"
	case rsi != nil && *rsi > 70:
		return "overbought (bearish)"
	default:
		return "neutral"
	}
}

// InterpretMACD describes the histogram sign.
func InterpretMACD(hist *float64) string {
	if hist != nil && *hist > 0 {
		return "bullish"
	}
	return "bearish"
}

// InterpretBollinger describes where price sits inside the bands.
func InterpretBollinger(pct *float64) string {
	switch {
	case pct != nil && *pct < 0.2:
		return "near lower band (potential bounce)"
	case pct != nil && *pct > 0.8:
		return "near upper band (potential reversal)"
	default:
		return "mid-range"
	}
}
