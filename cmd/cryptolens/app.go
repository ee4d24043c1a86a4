package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/cryptolens/internal/application/archive"
	"github.com/sawpanic/cryptolens/internal/application/ingest"
	"github.com/sawpanic/cryptolens/internal/application/signals"
	"github.com/sawpanic/cryptolens/internal/backtest"
	"github.com/sawpanic/cryptolens/internal/config"
	"github.com/sawpanic/cryptolens/internal/datasource"
	"github.com/sawpanic/cryptolens/internal/infrastructure/cache"
	"github.com/sawpanic/cryptolens/internal/infrastructure/db"
	"github.com/sawpanic/cryptolens/internal/infrastructure/providers"
	"github.com/sawpanic/cryptolens/internal/persistence"
	"github.com/sawpanic/cryptolens/internal/strategy"
)

var (
	errUsage      = errors.New("usage error")
	errNoStore    = errors.New("no price store configured: set PG_ENABLED and PG_DSN, or CRYPTOLENS_DATA_DIR")
	errNoDatabase = errors.New("this command needs Postgres: set PG_ENABLED and PG_DSN")
)

// app is the wired object graph behind every command.
type app struct {
	cfg       *config.AppConfig
	coingecko *providers.CoinGecko
	feargreed *providers.FearGreed
	manager   *db.Manager
	repo      *persistence.Repository // nil without Postgres
	engine    *backtest.Engine        // nil without any price store

	ingest  *ingest.Service
	signals *signals.Service
	archive *archive.Archive
}

func newApp(ctx context.Context, cfg *config.AppConfig) (*app, error) {
	c := cache.New(cfg.Cache)
	a := &app{
		cfg:       cfg,
		coingecko: providers.NewCoinGecko(cfg.Providers.CoinGecko, c),
		feargreed: providers.NewFearGreed(cfg.Providers.FearGreed, c),
	}

	manager, err := db.NewManager(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	a.manager = manager

	var source backtest.DataSource
	switch {
	case manager.IsEnabled():
		if cfg.Database.AutoMigrate {
			if err := manager.Migrate(ctx); err != nil {
				manager.Close()
				return nil, err
			}
		}
		a.repo = manager.Repository()
		a.ingest = ingest.NewService(a.coingecko, a.repo)
		a.signals = signals.NewService(a.repo, a.feargreed)
		a.archive = archive.New(a.repo)
		source = datasource.NewStore(a.repo, a.feargreed)

	case cfg.DataDir != "":
		mem, err := datasource.LoadDir(cfg.DataDir)
		if err != nil {
			return nil, err
		}
		log.Info().Str("dir", cfg.DataDir).Strs("coins", mem.IDs()).Msg("Loaded CSV history")
		source = mem
	}

	if source != nil {
		a.engine = backtest.NewEngine(source)
		a.engine.SetAnalyzerConfig(cfg.Backtest.Analyzer)
	}
	return a, nil
}

// requireEngine fails when no history source is configured.
func (a *app) requireEngine() error {
	if a.engine == nil {
		return errNoStore
	}
	return nil
}

// requireDatabase fails when Postgres is not configured.
func (a *app) requireDatabase() error {
	if a.repo == nil {
		return errNoDatabase
	}
	return nil
}

func (a *app) Close() {
	if err := a.manager.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close database")
	}
}

// runRequest builds an engine request from config defaults.
func (a *app) runRequest(coin string) backtest.Request {
	req := backtest.DefaultRequest(coin, strategy.CompositeKind)
	req.InitialCapital = a.cfg.Backtest.InitialCapital
	req.Commission = a.cfg.Backtest.Commission
	req.Slippage = a.cfg.Backtest.Slippage
	return req
}
