// Package scheduler runs the daily seed-and-score refresh on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Seeder refreshes stored price history for a coin.
type Seeder interface {
	SeedPriceHistory(ctx context.Context, id string, days int) (int, error)
}

// SignalComputer recomputes stored signals for a coin.
type SignalComputer interface {
	ComputeAndStore(ctx context.Context, id string) (int, error)
}

// Config holds the refresh schedule
type Config struct {
	Cron         string   `yaml:"cron" envconfig:"SCHEDULER_CRON"`   // six fields, seconds first
	Coins        []string `yaml:"coins" envconfig:"SCHEDULER_COINS"` // CoinGecko ids
	LookbackDays int      `yaml:"lookback_days" envconfig:"SCHEDULER_LOOKBACK_DAYS"`
	RunOnStart   bool     `yaml:"run_on_start" envconfig:"SCHEDULER_RUN_ON_START"`
}

func DefaultConfig() Config {
	return Config{
		Cron:         "0 0 2 * * *",
		Coins:        []string{"bitcoin", "ethereum", "solana", "binancecoin"},
		LookbackDays: 365,
	}
}

// Validate checks the cron expression and coin list
func (c Config) Validate() error {
	if _, err := cron.NewParser(cronFields).Parse(c.Cron); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", c.Cron, err)
	}
	if len(c.Coins) == 0 {
		return errors.New("at least one coin is required")
	}
	if c.LookbackDays <= 0 {
		return errors.New("lookback_days must be positive")
	}
	return nil
}

const cronFields = cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor

// JobResult is the outcome of one refresh
type JobResult struct {
	StartTime time.Time         `json:"start_time"`
	EndTime   time.Time         `json:"end_time"`
	Duration  time.Duration     `json:"duration"`
	Refreshed []string          `json:"refreshed"`
	Failed    map[string]string `json:"failed,omitempty"`
}

// Success reports whether every coin refreshed.
func (r JobResult) Success() bool {
	return len(r.Failed) == 0
}

// Status represents scheduler status
type Status struct {
	Running    bool       `json:"running"`
	Coins      int        `json:"coins"`
	NextRun    time.Time  `json:"next_run"`
	LastResult *JobResult `json:"last_result,omitempty"`
	Uptime     string     `json:"uptime"`
}

// Scheduler manages the refresh job
type Scheduler struct {
	config  Config
	cron    *cron.Cron
	seeder  Seeder
	signals SignalComputer
	now     func() time.Time

	mu        sync.Mutex
	ctx       context.Context
	running   bool
	startTime time.Time
	last      *JobResult
}

// New builds a scheduler; the job is registered but not started.
func New(config Config, seeder Seeder, signals SignalComputer) (*Scheduler, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	s := &Scheduler{
		config:  config,
		cron:    cron.New(cron.WithParser(cron.NewParser(cronFields))),
		seeder:  seeder,
		signals: signals,
		now:     time.Now,
		ctx:     context.Background(),
	}
	if _, err := s.cron.AddFunc(config.Cron, s.tick); err != nil {
		return nil, fmt.Errorf("register refresh job: %w", err)
	}
	return s, nil
}

// Run starts the cron loop and blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.running = true
	s.startTime = s.now()
	s.mu.Unlock()

	log.Info().Str("cron", s.config.Cron).Int("coins", len(s.config.Coins)).Msg("Scheduler starting")
	if s.config.RunOnStart {
		s.RunNow(ctx)
	}
	s.cron.Start()

	<-ctx.Done()
	<-s.cron.Stop().Done()

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	log.Info().Msg("Scheduler stopped")
	return ctx.Err()
}

// RunNow refreshes every configured coin immediately. A failing coin is
// recorded and the rest still run.
func (s *Scheduler) RunNow(ctx context.Context) JobResult {
	result := JobResult{StartTime: s.now(), Failed: map[string]string{}}

	for _, id := range s.config.Coins {
		if err := ctx.Err(); err != nil {
			result.Failed[id] = err.Error()
			continue
		}
		if err := s.refresh(ctx, id); err != nil {
			log.Error().Err(err).Str("coin", id).Msg("Refresh failed")
			result.Failed[id] = err.Error()
			continue
		}
		result.Refreshed = append(result.Refreshed, id)
	}

	result.EndTime = s.now()
	result.Duration = result.EndTime.Sub(result.StartTime)

	s.mu.Lock()
	s.last = &result
	s.mu.Unlock()

	log.Info().
		Int("refreshed", len(result.Refreshed)).
		Int("failed", len(result.Failed)).
		Dur("duration", result.Duration).
		Msg("Refresh complete")
	return result
}

// GetStatus returns current scheduler status
func (s *Scheduler) GetStatus() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := Status{
		Running:    s.running,
		Coins:      len(s.config.Coins),
		LastResult: s.last,
	}
	if entries := s.cron.Entries(); len(entries) > 0 {
		status.NextRun = entries[0].Next
	}
	if s.running {
		status.Uptime = s.now().Sub(s.startTime).Round(time.Second).String()
	}
	return status
}

func (s *Scheduler) tick() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	s.RunNow(ctx)
}

func (s *Scheduler) refresh(ctx context.Context, id string) error {
	rows, err := s.seeder.SeedPriceHistory(ctx, id, s.config.LookbackDays)
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	signals, err := s.signals.ComputeAndStore(ctx, id)
	if err != nil {
		return fmt.Errorf("signals: %w", err)
	}
	log.Debug().Str("coin", id).Int("prices", rows).Int("signals", signals).Msg("Coin refreshed")
	return nil
}
