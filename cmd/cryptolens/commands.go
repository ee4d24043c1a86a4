package main

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/sawpanic/cryptolens/internal/backtest"
	"github.com/sawpanic/cryptolens/internal/domain/market"
	"github.com/sawpanic/cryptolens/internal/interfaces/output"
	"github.com/sawpanic/cryptolens/internal/report/perf"
	"github.com/sawpanic/cryptolens/internal/strategy"
)

func newSeedCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed [coin-id...]",
		Short: "Fetch daily price history from CoinGecko into Postgres",
		Long: `Fetches OHLC bars plus daily volume and market cap for each coin and upserts
them into Postgres. Without ids the scheduler coin list is seeded.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			days, _ := cmd.Flags().GetInt("days")
			top, _ := cmd.Flags().GetInt("top")
			withSignals, _ := cmd.Flags().GetBool("signals")
			if days <= 0 {
				days = c.cfg.Scheduler.LookbackDays
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, c.cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.requireDatabase(); err != nil {
				return err
			}

			ids := append([]string(nil), args...)
			if top > 0 {
				coins, err := a.ingest.TopCoins(ctx, top)
				if err != nil {
					return err
				}
				for _, coin := range coins {
					ids = append(ids, coin.ID)
				}
			}
			if len(ids) == 0 {
				ids = c.cfg.Scheduler.Coins
			}

			var failed []error
			for _, id := range ids {
				if _, err := a.ingest.GetOrCreateCoin(ctx, id); err != nil {
					log.Error().Err(err).Str("coin", id).Msg("Failed to register coin")
					failed = append(failed, fmt.Errorf("%s: %w", id, err))
					continue
				}
				n, err := a.ingest.SeedPriceHistory(ctx, id, days)
				if err != nil {
					log.Error().Err(err).Str("coin", id).Msg("Failed to seed prices")
					failed = append(failed, fmt.Errorf("%s: %w", id, err))
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-16s %5d price rows\n", id, n)

				if withSignals {
					m, err := a.signals.ComputeAndStore(ctx, id)
					if err != nil {
						log.Error().Err(err).Str("coin", id).Msg("Failed to compute signals")
						failed = append(failed, fmt.Errorf("%s: %w", id, err))
						continue
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%-16s %5d signal rows\n", id, m)
				}
			}
			if len(failed) > 0 {
				return fmt.Errorf("%d of %d coins failed: %w", len(failed), len(ids), errors.Join(failed...))
			}
			return nil
		},
	}
	cmd.Flags().Int("days", 0, "Days of history (default: scheduler lookback)")
	cmd.Flags().Int("top", 0, "Also seed the N largest coins by market cap")
	cmd.Flags().Bool("signals", false, "Recompute stored signals after seeding")
	return cmd
}

func newSignalsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "signals <coin-id>",
		Short: "Show the latest stored signal for a coin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			compute, _ := cmd.Flags().GetBool("compute")
			asJSON, _ := cmd.Flags().GetBool("json")

			ctx := cmd.Context()
			a, err := newApp(ctx, c.cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.requireDatabase(); err != nil {
				return err
			}

			if compute {
				n, err := a.signals.ComputeAndStore(ctx, args[0])
				if err != nil {
					return err
				}
				log.Info().Str("coin", args[0]).Int("rows", n).Msg("Signals recomputed")
			}

			sum, err := a.signals.Summary(ctx, args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), sum)
			}
			printSummary(cmd.OutOrStdout(), sum)
			return nil
		},
	}
	cmd.Flags().Bool("compute", false, "Recompute signals from stored prices first")
	cmd.Flags().Bool("json", false, "Print JSON instead of text")
	return cmd
}

func newBacktestCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backtest <coin-id>",
		Short: "Backtest one strategy on a coin",
		Long: `Runs one strategy over the coin's daily history and reports returns, risk
statistics, the equity curve against the buy-and-hold benchmark, and the trade log.

Strategies: composite, rsi, golden_cross, fear_greed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fs := cmd.Flags()
			name, _ := fs.GetString("strategy")
			save, _ := fs.GetBool("save")
			csvDir, _ := fs.GetString("csv")
			asJSON, _ := fs.GetBool("json")

			kind, err := strategy.Parse(name)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, c.cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.requireEngine(); err != nil {
				return err
			}
			if save {
				if err := a.requireDatabase(); err != nil {
					return err
				}
			}

			req := a.runRequest(args[0])
			req.Strategy = kind
			if err := applyRunFlags(fs, &req); err != nil {
				return err
			}

			res, err := a.engine.Run(ctx, req)
			if err != nil {
				return err
			}

			report := runReport{Result: res, Alerts: perf.CheckAlerts(&res.Metrics, c.cfg.Backtest.Alerts)}
			if save {
				if report.BacktestID, err = a.archive.Save(ctx, res); err != nil {
					return err
				}
			}
			if csvDir != "" {
				paths, err := output.NewEmitter(csvDir).EmitBacktest(res, report.Alerts)
				if err != nil {
					return err
				}
				for _, p := range paths {
					log.Info().Str("path", p).Msg("Report written")
				}
			}

			if asJSON {
				return printJSON(cmd.OutOrStdout(), report)
			}
			printReport(cmd.OutOrStdout(), report)
			return nil
		},
	}
	cmd.Flags().String("strategy", strategy.CompositeKind.ID(), "Strategy to run")
	cmd.Flags().Bool("save", false, "Store the report in Postgres")
	cmd.Flags().String("csv", "", "Write equity curve, trade log and report files to this directory")
	addRunFlags(cmd.Flags())
	return cmd
}

func newCompareCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare <coin-id>",
		Short: "Backtest several strategies on a coin and rank them by Sharpe ratio",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fs := cmd.Flags()
			names, _ := fs.GetStringSlice("strategies")
			csvDir, _ := fs.GetString("csv")
			asJSON, _ := fs.GetBool("json")

			kinds := make([]strategy.Kind, 0, len(names))
			for _, n := range names {
				k, err := strategy.Parse(n)
				if err != nil {
					return err
				}
				kinds = append(kinds, k)
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, c.cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.requireEngine(); err != nil {
				return err
			}

			req := a.runRequest(args[0])
			req.Start = c.cfg.Backtest.StartDate()
			if err := applyRunFlags(fs, &req); err != nil {
				return err
			}

			results, err := a.engine.Compare(ctx, req, kinds...)
			if err != nil {
				return err
			}
			if csvDir != "" {
				path, err := output.NewEmitter(csvDir).EmitComparison(results)
				if err != nil {
					return err
				}
				log.Info().Str("path", path).Msg("Comparison written")
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), results)
			}
			printComparison(cmd.OutOrStdout(), results)
			return nil
		},
	}
	cmd.Flags().StringSlice("strategies", nil, "Strategies to compare (default: all)")
	cmd.Flags().String("csv", "", "Write the ranking as CSV to this directory")
	addRunFlags(cmd.Flags())
	return cmd
}

// addRunFlags registers the window and cost overrides shared by backtest and compare.
func addRunFlags(fs *pflag.FlagSet) {
	fs.String("start", "", "Window start, YYYY-MM-DD")
	fs.String("end", "", "Window end, YYYY-MM-DD")
	fs.Float64("capital", 0, "Initial capital (default from config)")
	fs.Float64("commission", 0, "Commission per position change as a fraction (default from config)")
	fs.Float64("slippage", 0, "Slippage per position change as a fraction (default from config)")
	fs.Bool("json", false, "Print JSON instead of a table")
}

// applyRunFlags overrides req with the flags that were set explicitly.
func applyRunFlags(fs *pflag.FlagSet, req *backtest.Request) error {
	for _, f := range []struct {
		name string
		dst  *market.Date
	}{{"start", &req.Start}, {"end", &req.End}} {
		if !fs.Changed(f.name) {
			continue
		}
		raw, _ := fs.GetString(f.name)
		d, err := market.ParseDate(raw)
		if err != nil {
			return fmt.Errorf("%w: --%s: %v", errUsage, f.name, err)
		}
		*f.dst = d
	}

	for _, f := range []struct {
		name string
		dst  *float64
	}{{"capital", &req.InitialCapital}, {"commission", &req.Commission}, {"slippage", &req.Slippage}} {
		if fs.Changed(f.name) {
			*f.dst, _ = fs.GetFloat64(f.name)
		}
	}
	return nil
}
