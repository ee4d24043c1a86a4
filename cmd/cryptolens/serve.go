package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/cryptolens/internal/application/scheduler"
	httpapi "github.com/sawpanic/cryptolens/internal/interfaces/http"
	"github.com/sawpanic/cryptolens/internal/persistence"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the JSON API",
		Long: `Serves backtests, comparisons, signal summaries and coin management over HTTP,
with /health and Prometheus /metrics. Coin and signal endpoints need Postgres.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			withScheduler, _ := cmd.Flags().GetBool("with-scheduler")

			ctx := cmd.Context()
			a, err := newApp(ctx, c.cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.requireEngine(); err != nil {
				return err
			}

			var sched *scheduler.Scheduler
			if withScheduler {
				if err := a.requireDatabase(); err != nil {
					return err
				}
				if sched, err = scheduler.New(c.cfg.Scheduler, a.ingest, a.signals); err != nil {
					return err
				}
			}

			server, err := httpapi.NewServer(c.cfg.HTTP, a.httpDeps())
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(ctx)
			defer cancel()

			errs := make(chan error, 2)
			go func() { errs <- server.Start() }()
			if sched != nil {
				go func() { errs <- sched.Run(ctx) }()
			}

			log.Info().
				Str("app", appName).
				Str("version", version).
				Str("addr", server.GetAddress()).
				Str("storage", c.cfg.StorageMode()).
				Bool("scheduler", withScheduler).
				Msg("API ready")

			select {
			case <-ctx.Done():
				log.Info().Msg("Shutdown signal received")
			case err := <-errs:
				if err != nil {
					return fmt.Errorf("server error: %w", err)
				}
			}
			cancel()

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer shutdownCancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Server shutdown error")
				return err
			}
			log.Info().Msg("Server shutdown complete")
			return nil
		},
	}
	cmd.Flags().Bool("with-scheduler", false, "Also run the daily refresh job in-process")
	return cmd
}

// httpDeps exposes the wired services to the API. Storage-backed endpoints
// stay nil without Postgres and answer 503.
func (a *app) httpDeps() httpapi.Deps {
	metrics := httpapi.NewMetricsRegistry()
	a.engine.SetObserver(metrics)

	var dbHealth persistence.RepositoryHealth
	if a.repo != nil {
		dbHealth = a.manager.Health()
	}
	breakers := map[string]httpapi.BreakerState{
		"coingecko":  a.coingecko,
		"fear_greed": a.feargreed,
	}

	deps := httpapi.Deps{
		Engine:  a.engine,
		Health:  httpapi.NewHealthHandler(dbHealth, breakers, version),
		Metrics: metrics,
	}
	if a.repo != nil {
		deps.Coins = a.ingest
		deps.CoinList = a.repo.Coins
		deps.Signals = a.signals
		deps.Archive = a.archive
	}
	return deps
}

func newScheduleCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the daily seed and signal refresh",
		Long: `Seeds recent prices and recomputes signals for the configured coins on the
scheduler cron expression (seconds field first). --once runs a single refresh and exits.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			once, _ := cmd.Flags().GetBool("once")

			ctx := cmd.Context()
			a, err := newApp(ctx, c.cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.requireDatabase(); err != nil {
				return err
			}

			sched, err := scheduler.New(c.cfg.Scheduler, a.ingest, a.signals)
			if err != nil {
				return err
			}
			if !once {
				return sched.Run(ctx)
			}

			res := sched.RunNow(ctx)
			printJobResult(cmd.OutOrStdout(), res)
			if !res.Success() {
				return fmt.Errorf("%d of %d coins failed", len(res.Failed), len(res.Failed)+len(res.Refreshed))
			}
			return nil
		},
	}
	cmd.Flags().Bool("once", false, "Run one refresh and exit")
	return cmd
}
