// Package config assembles the application configuration from defaults, an
// optional YAML file, an optional .env file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/sawpanic/cryptolens/internal/application/scheduler"
	"github.com/sawpanic/cryptolens/internal/backtest/sim"
	"github.com/sawpanic/cryptolens/internal/domain/market"
	"github.com/sawpanic/cryptolens/internal/infrastructure/cache"
	"github.com/sawpanic/cryptolens/internal/infrastructure/db"
	"github.com/sawpanic/cryptolens/internal/infrastructure/providers"
	httpapi "github.com/sawpanic/cryptolens/internal/interfaces/http"
	"github.com/sawpanic/cryptolens/internal/report/perf"
)

// EnvPrefix prefixes every generated variable name. Fields tagged with an
// explicit envconfig name (PG_DSN, REDIS_ADDR, COINGECKO_API_KEY) are also
// read without the prefix.
const EnvPrefix = "CRYPTOLENS"

// AppConfig is the complete application configuration
type AppConfig struct {
	LogLevel  string               `yaml:"log_level" envconfig:"LOG_LEVEL"`
	DataDir   string               `yaml:"data_dir" envconfig:"DATA_DIR"` // CSV history instead of Postgres when set
	Database  db.Config            `yaml:"database"`
	Providers ProvidersConfig      `yaml:"providers"`
	Cache     cache.Config         `yaml:"cache"`
	HTTP      httpapi.ServerConfig `yaml:"http"`
	Backtest  BacktestConfig       `yaml:"backtest"`
	Scheduler scheduler.Config     `yaml:"scheduler"`
}

// ProvidersConfig groups the upstream API settings
type ProvidersConfig struct {
	CoinGecko providers.CoinGeckoConfig `yaml:"coingecko"`
	FearGreed providers.FearGreedConfig `yaml:"fear_greed"`
}

// BacktestConfig holds run defaults and report settings
type BacktestConfig struct {
	sim.Config   `yaml:",inline"`
	CompareStart string          `yaml:"compare_start" envconfig:"COMPARE_START"` // YYYY-MM-DD
	Analyzer     perf.Config     `yaml:"analyzer"`
	Alerts       perf.Thresholds `yaml:"alerts"`
}

// StartDate returns CompareStart as a date. Call Validate first.
func (b BacktestConfig) StartDate() market.Date {
	d, err := market.ParseDate(b.CompareStart)
	if err != nil {
		return market.Date{}
	}
	return d
}

// Default returns the built-in configuration
func Default() *AppConfig {
	return &AppConfig{
		LogLevel: "info",
		Database: db.DefaultConfig(),
		Providers: ProvidersConfig{
			CoinGecko: providers.DefaultCoinGeckoConfig(),
			FearGreed: providers.DefaultFearGreedConfig(),
		},
		Cache: cache.DefaultConfig(),
		HTTP:  httpapi.DefaultServerConfig(),
		Backtest: BacktestConfig{
			Config:       sim.DefaultConfig(),
			CompareStart: "2022-01-01",
			Analyzer:     perf.DefaultConfig(),
			Alerts:       perf.DefaultThresholds(),
		},
		Scheduler: scheduler.DefaultConfig(),
	}
}

// Load layers defaults, the YAML file at path (skipped when empty), the
// .env file in the working directory (when present) and the environment.
func Load(path string) (*AppConfig, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks every section
func (c *AppConfig) Validate() error {
	if _, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel)); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if c.Providers.CoinGecko.BaseURL == "" {
		return errors.New("providers.coingecko.base_url cannot be empty")
	}
	if c.Providers.FearGreed.URL == "" {
		return errors.New("providers.fear_greed.url cannot be empty")
	}
	if c.Cache.OpTimeout <= 0 {
		return errors.New("cache.op_timeout must be positive")
	}
	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http: %w", err)
	}
	if err := c.Backtest.Config.Validate(); err != nil {
		return fmt.Errorf("backtest: %w", err)
	}
	if _, err := market.ParseDate(c.Backtest.CompareStart); err != nil {
		return fmt.Errorf("backtest.compare_start: %w", err)
	}
	if c.Backtest.Analyzer.PeriodsPerYear <= 0 {
		return errors.New("backtest.analyzer.periods_per_year must be positive")
	}
	if err := c.Scheduler.Validate(); err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}
	return nil
}

// Level returns the parsed log level, info when unset
func (c *AppConfig) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// StorageMode reports where history is read from
func (c *AppConfig) StorageMode() string {
	switch {
	case c.Database.Enabled:
		return "postgres"
	case c.DataDir != "":
		return "csv"
	default:
		return "none"
	}
}
