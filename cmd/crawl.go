package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/roster-crawler/internal/api"
)

const shutdownTimeout = 30 * time.Second

type crawlOptions struct {
	maxPages    int
	concurrency int
	serve       bool
	port        int
}

// newCrawlCmd creates the 'crawl' subcommand, which runs one full roster crawl.
func newCrawlCmd() *cobra.Command {
	opts := &crawlOptions{}
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawls the configured roster once",
		Long: `Walks every listing page of the configured roster, fetches each agent
profile, and writes the extracted records to the configured outputs. The run
summary is printed to stderr as JSON when the crawl finishes.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCrawl(cmd, opts)
		},
	}
	cmd.Flags().IntVar(&opts.maxPages, "max-pages", 0, "stop after this many listing pages (0 = no limit)")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 0, "maximum in-flight profile fetches")
	cmd.Flags().BoolVar(&opts.serve, "serve", false, "expose health, metrics, and run status over HTTP while crawling")
	cmd.Flags().IntVar(&opts.port, "port", 0, "port for --serve")
	return cmd
}

func runCrawl(cmd *cobra.Command, opts *crawlOptions) error {
	state, err := resolveState(cmd.Context())
	if err != nil {
		return err
	}
	cfg := state.cfg
	flags := cmd.Flags()
	if flags.Changed("max-pages") {
		cfg.Roster.MaxPages = opts.maxPages
	}
	if flags.Changed("concurrency") {
		cfg.Crawler.Concurrency = opts.concurrency
	}
	if flags.Changed("serve") {
		cfg.Server.Enabled = opts.serve
	}
	if flags.Changed("port") {
		cfg.Server.Port = opts.port
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appInstance, err := newApp(ctx, cfg, state.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize application services: %w", err)
	}
	logger := appInstance.Logger()
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if cerr := appInstance.Close(closeCtx); cerr != nil {
			logger.Warn("Error closing application services", zap.Error(cerr))
		}
	}()

	engine, err := appInstance.NewEngine()
	if err != nil {
		return err
	}

	if cfg.Server.Enabled {
		serverCtx, stopServer := context.WithCancel(ctx)
		served := make(chan struct{})
		go func() {
			defer close(served)
			addr := fmt.Sprintf(":%d", cfg.Server.Port)
			if serr := api.NewServer(engine, logger).ListenAndServe(serverCtx, addr); serr != nil {
				logger.Error("API server failed", zap.Error(serr))
			}
		}()
		defer func() {
			stopServer()
			<-served
		}()
	}

	stats, runErr := engine.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return fmt.Errorf("run crawler: %w", runErr)
	}
	if runErr != nil {
		logger.Warn("Crawl interrupted; partial results were written", zap.Error(runErr))
	}

	finishCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := appInstance.Finish(finishCtx, stats); err != nil {
		logger.Warn("Failed to record run summary", zap.Error(err))
	}

	enc := json.NewEncoder(cmd.ErrOrStderr())
	enc.SetIndent("", "  ")
	if err := enc.Encode(stats); err != nil {
		return fmt.Errorf("write run summary: %w", err)
	}
	logger.Info("Crawl command finished.")
	return nil
}
