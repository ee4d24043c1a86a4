package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu      sync.Mutex
	seeded  map[string]int
	scored  []string
	seedErr map[string]error
}

func newRecorder() *recorder {
	return &recorder{seeded: map[string]int{}, seedErr: map[string]error{}}
}

func (r *recorder) SeedPriceHistory(_ context.Context, id string, days int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.seedErr[id]; err != nil {
		return 0, err
	}
	r.seeded[id] = days
	return days, nil
}

func (r *recorder) ComputeAndStore(_ context.Context, id string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scored = append(r.scored, id)
	return 1, nil
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"five field cron", func(c *Config) { c.Cron = "0 2 * * *" }},
		{"garbage cron", func(c *Config) { c.Cron = "daily-ish" }},
		{"no coins", func(c *Config) { c.Coins = nil }},
		{"zero lookback", func(c *Config) { c.LookbackDays = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := DefaultConfig()
	cfg.Cron = "@daily"
	assert.NoError(t, cfg.Validate())
}

func TestRunNow(t *testing.T) {
	rec := newRecorder()
	rec.seedErr["solana"] = errors.New("coingecko unavailable")

	s, err := New(DefaultConfig(), rec, rec)
	require.NoError(t, err)

	res := s.RunNow(context.Background())
	assert.Equal(t, []string{"bitcoin", "ethereum", "binancecoin"}, res.Refreshed)
	assert.Contains(t, res.Failed["solana"], "coingecko unavailable")
	assert.False(t, res.Success())
	assert.Equal(t, 365, rec.seeded["bitcoin"])
	assert.Equal(t, []string{"bitcoin", "ethereum", "binancecoin"}, rec.scored)

	status := s.GetStatus()
	assert.False(t, status.Running)
	assert.Equal(t, 4, status.Coins)
	require.NotNil(t, status.LastResult)
	assert.Len(t, status.LastResult.Refreshed, 3)
}

func TestRunNow_CancelledContext(t *testing.T) {
	rec := newRecorder()
	s, err := New(DefaultConfig(), rec, rec)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := s.RunNow(ctx)
	assert.Empty(t, res.Refreshed)
	assert.Len(t, res.Failed, 4)
	assert.Empty(t, rec.seeded)
}

func TestRun_StopsOnCancel(t *testing.T) {
	rec := newRecorder()
	cfg := DefaultConfig()
	cfg.Coins = []string{"bitcoin"}
	cfg.RunOnStart = true
	s, err := New(cfg, rec, rec)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		st := s.GetStatus()
		return st.Running && st.LastResult != nil && !st.NextRun.IsZero()
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"bitcoin"}, rec.scored)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.False(t, s.GetStatus().Running)
}
