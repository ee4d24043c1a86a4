package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/sawpanic/cryptolens/internal/backtest"
	"github.com/sawpanic/cryptolens/internal/config"
	"github.com/sawpanic/cryptolens/internal/domain/market"
	"github.com/sawpanic/cryptolens/internal/strategy"
)

const (
	appName = "CryptoLens"
	version = "v1.0.0"
)

// Exit codes
const (
	exitError    = 1
	exitUsage    = 2
	exitNoData   = 3
	exitUpstream = 4
)

// cli carries the loaded configuration into subcommands.
type cli struct {
	configPath string
	logLevel   string
	cfg        *config.AppConfig
}

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(exitCode(err))
	}
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:     "cryptolens",
		Short:   "Backtest indicator strategies on daily crypto prices",
		Version: version,
		Long: `CryptoLens backtests technical-indicator strategies on daily cryptocurrency
prices, with Fear & Greed sentiment as an extra input.

History is read from Postgres (PG_ENABLED, PG_DSN) or from a directory of CSV
files (CRYPTOLENS_DATA_DIR). Seeding and signal storage need Postgres.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.load,
	}

	root.PersistentFlags().StringVar(&c.configPath, "config", "", "YAML config file")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "Log level (debug|info|warn|error), overrides config")

	root.AddCommand(
		newSeedCmd(c),
		newSignalsCmd(c),
		newBacktestCmd(c),
		newCompareCmd(c),
		newServeCmd(c),
		newScheduleCmd(c),
	)
	return root
}

func (c *cli) load(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	if c.logLevel != "" {
		cfg.LogLevel = c.logLevel
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	zerolog.SetGlobalLevel(cfg.Level())
	c.cfg = cfg

	log.Debug().
		Str("command", cmd.Name()).
		Str("storage", cfg.StorageMode()).
		Str("level", strings.ToLower(cfg.Level().String())).
		Msg("Configuration loaded")
	return nil
}

// exitCode maps domain failures to distinct process exit codes.
func exitCode(err error) int {
	switch {
	case errors.Is(err, strategy.ErrUnknownStrategy), errors.Is(err, backtest.ErrInvalidRequest), errors.Is(err, errUsage):
		return exitUsage
	case errors.Is(err, market.ErrNotFound), errors.Is(err, market.ErrInsufficientData):
		return exitNoData
	case errors.Is(err, market.ErrDependencyUnavailable):
		return exitUpstream
	default:
		return exitError
	}
}
