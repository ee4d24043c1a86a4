package providers

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// ErrCircuitOpen is returned while a provider's breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker open")

// GuardConfig tunes one provider's breaker and request pacing.
type GuardConfig struct {
	Name                string        `yaml:"-"`
	RPS                 float64       `yaml:"rps"`                  // Sustained requests per second
	Burst               int           `yaml:"burst"`                // Token bucket size
	MaxRequests         uint32        `yaml:"max_requests"`         // Probes allowed while half-open
	Interval            time.Duration `yaml:"interval"`             // Closed-state count reset period
	Timeout             time.Duration `yaml:"timeout"`              // Open-state duration before probing
	ConsecutiveFailures uint32        `yaml:"consecutive_failures"` // Trip after this many failures in a row
	ErrorRateThreshold  float64       `yaml:"error_rate_threshold"` // Trip above this failure fraction...
	MinRequests         uint32        `yaml:"min_requests"`         // ...once this many requests were seen
}

// DefaultGuardConfig suits the CoinGecko free tier.
func DefaultGuardConfig(name string) GuardConfig {
	return GuardConfig{
		Name:                name,
		RPS:                 0.5,
		Burst:               2,
		MaxRequests:         1,
		Interval:            60 * time.Second,
		Timeout:             60 * time.Second,
		ConsecutiveFailures: 3,
		ErrorRateThreshold:  0.05,
		MinRequests:         20,
	}
}

// Guard paces calls with a token bucket and short-circuits a failing upstream.
type Guard struct {
	name    string
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

// NewGuard builds a guard from config.
func NewGuard(cfg GuardConfig) *Guard {
	limit := rate.Inf
	if cfg.RPS > 0 {
		limit = rate.Limit(cfg.RPS)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	settings := gobreaker.Settings{
		Name:          cfg.Name,
		MaxRequests:   cfg.MaxRequests,
		Interval:      cfg.Interval,
		Timeout:       cfg.Timeout,
		ReadyToTrip:   tripCondition(cfg),
		OnStateChange: logStateChange,
	}

	return &Guard{
		name:    cfg.Name,
		breaker: gobreaker.NewCircuitBreaker(settings),
		limiter: rate.NewLimiter(limit, burst),
	}
}

// Do waits for a token, then runs fn through the breaker.
func (g *Guard) Do(ctx context.Context, fn func() ([]byte, error)) ([]byte, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	out, err := g.breaker.Execute(func() (interface{}, error) { return fn() })
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, ErrCircuitOpen
	}
	if err != nil {
		return nil, err
	}
	return out.([]byte), nil
}

// State reports the breaker state name.
func (g *Guard) State() string {
	return g.breaker.State().String()
}

func tripCondition(cfg GuardConfig) func(counts gobreaker.Counts) bool {
	return func(counts gobreaker.Counts) bool {
		if cfg.ConsecutiveFailures > 0 && counts.ConsecutiveFailures >= cfg.ConsecutiveFailures {
			return true
		}
		if cfg.MinRequests > 0 && counts.Requests >= cfg.MinRequests {
			failureRate := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRate > cfg.ErrorRateThreshold
		}
		return false
	}
}

func logStateChange(name string, from, to gobreaker.State) {
	event := log.Info()
	if to == gobreaker.StateOpen {
		event = log.Warn()
	}
	event.Str("provider", name).Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state changed")
}
