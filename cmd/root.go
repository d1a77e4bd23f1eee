// Package cmd defines and implements the CLI commands for the roster-crawler executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/roster-crawler/internal/app"
	"github.com/JakeFAU/roster-crawler/internal/config"
	"github.com/JakeFAU/roster-crawler/internal/crawler"
	"github.com/JakeFAU/roster-crawler/internal/logging"
)

// App defines the services a command uses. It allows tests to inject a fake.
type App interface {
	Logger() *zap.Logger
	RunID() string
	NewEngine(opts ...crawler.Option) (*crawler.Engine, error)
	Finish(ctx context.Context, stats crawler.RunStats) error
	Close(ctx context.Context) error
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	return app.New(ctx, cfg, logger)
}

// rootState is loaded by the root command before any subcommand runs.
type rootState struct {
	cfgFile string
	cfg     config.Config
	logger  *zap.Logger
}

type stateKeyType struct{}

var stateKey stateKeyType

func newRootCmd() *cobra.Command {
	state := &rootState{}
	cmd := &cobra.Command{
		Use:   "roster-crawler",
		Short: "Crawls a paginated agent roster and extracts profile records.",
		Long: `roster-crawler walks a brokerage roster endpoint page by page, follows
every agent profile link it finds, and writes one structured record per
agent to the configured outputs (JSON Lines, SQLite, Postgres, GCS, Pub/Sub).`,
		SilenceUsage:  true,
		SilenceErrors: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(state.cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging.Development)
			if err != nil {
				return fmt.Errorf("build logger: %w", err)
			}
			state.cfg = cfg
			state.logger = logger
			cmd.SetContext(context.WithValue(cmd.Context(), stateKey, state))
			return nil
		},

		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			if state.logger != nil {
				_ = state.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&state.cfgFile, "config", "", "config file (YAML, JSON, or TOML)")

	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

func resolveState(ctx context.Context) (*rootState, error) {
	state, ok := ctx.Value(stateKey).(*rootState)
	if !ok || state == nil {
		return nil, errors.New("configuration not loaded")
	}
	return state, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
