package perf

import "fmt"

// Alert flags a statistic that breached a review threshold.
type Alert struct {
	Severity  string  `json:"severity"`  // WARNING or INFO
	Metric    string  `json:"metric"`    // json name of the statistic
	Value     float64 `json:"value"`     // Actual value
	Threshold float64 `json:"threshold"` // Threshold that was breached
	Message   string  `json:"message"`   // Human-readable summary
}

// Thresholds configures CheckAlerts.
type Thresholds struct {
	MinSharpe      float64 `yaml:"min_sharpe"`      // Below this is flagged (default: 0)
	MaxDrawdown    float64 `yaml:"max_drawdown"`    // Deeper than -MaxDrawdown is flagged (default: 0.5)
	MinTrades      int     `yaml:"min_trades"`      // Fewer trades is INFO (default: 1)
	UnderBenchmark bool    `yaml:"under_benchmark"` // Flag negative alpha (default: true)
}

// DefaultThresholds returns lenient review thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinSharpe:      0,
		MaxDrawdown:    0.5,
		MinTrades:      1,
		UnderBenchmark: true,
	}
}

// CheckAlerts compares metrics against thresholds. A clean run returns an empty slice.
func CheckAlerts(m *Metrics, th Thresholds) []Alert {
	alerts := make([]Alert, 0)
	if m == nil {
		return alerts
	}

	if m.SharpeRatio < th.MinSharpe {
		alerts = append(alerts, Alert{
			Severity:  "WARNING",
			Metric:    "sharpe_ratio",
			Value:     m.SharpeRatio,
			Threshold: th.MinSharpe,
			Message:   fmt.Sprintf("Sharpe ratio %.2f is below %.2f", m.SharpeRatio, th.MinSharpe),
		})
	}

	if th.MaxDrawdown > 0 && m.MaxDrawdown < -th.MaxDrawdown {
		alerts = append(alerts, Alert{
			Severity:  "WARNING",
			Metric:    "max_drawdown",
			Value:     m.MaxDrawdown,
			Threshold: -th.MaxDrawdown,
			Message:   fmt.Sprintf("Max drawdown %.1f%% exceeds %.1f%%", m.MaxDrawdown*100, th.MaxDrawdown*100),
		})
	}

	if th.UnderBenchmark && m.Alpha < 0 {
		alerts = append(alerts, Alert{
			Severity:  "WARNING",
			Metric:    "alpha",
			Value:     m.Alpha,
			Threshold: 0,
			Message:   fmt.Sprintf("Strategy trailed its benchmark by %.1f%%", -m.Alpha*100),
		})
	}

	if m.TotalTrades < th.MinTrades {
		alerts = append(alerts, Alert{
			Severity:  "INFO",
			Metric:    "total_trades",
			Value:     float64(m.TotalTrades),
			Threshold: float64(th.MinTrades),
			Message:   fmt.Sprintf("Only %d trades, statistics are not meaningful", m.TotalTrades),
		})
	}

	return alerts
}
