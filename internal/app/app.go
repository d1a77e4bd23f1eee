// Package app initializes and holds the long-lived services of a crawl run,
// acting as a dependency injection container for the cmd layer.
package app

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/roster-crawler/internal/config"
	"github.com/JakeFAU/roster-crawler/internal/crawler"
	collyfetcher "github.com/JakeFAU/roster-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/roster-crawler/internal/fetcher/headless"
	idgen "github.com/JakeFAU/roster-crawler/internal/id/uuid"
	"github.com/JakeFAU/roster-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/roster-crawler/internal/policy/retry"
	"github.com/JakeFAU/roster-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/roster-crawler/internal/sink"
	"github.com/JakeFAU/roster-crawler/internal/storage/gcs"
	"github.com/JakeFAU/roster-crawler/internal/storage/local"
	"github.com/JakeFAU/roster-crawler/internal/storage/memory"
	"github.com/JakeFAU/roster-crawler/internal/storage/postgres"
	"github.com/JakeFAU/roster-crawler/internal/storage/sqlite"
)

// App holds the fetchers and sinks shared by a crawl run.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	runID    string
	listing  crawler.Fetcher
	profiles crawler.Fetcher
	sink     *sink.Buffered
	runs     *postgres.RecordStore
	memory   *memory.RecordStore
	browser  *headless.Fetcher
}

// New builds fetchers and opens every configured output. It fails fast if
// any output cannot be initialized, closing the ones already opened.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	runID, err := idgen.New().NewID()
	if err != nil {
		return nil, fmt.Errorf("generate run id: %w", err)
	}
	a := &App{
		cfg:    cfg,
		logger: logger.With(zap.String("run_id", runID)),
		runID:  runID,
	}
	a.logger.Info("Initializing application services...")

	limiter := ratelimit.New(ratelimit.Config{
		RPS:   cfg.Crawler.RateLimitRPS,
		Burst: cfg.Crawler.RateLimitBurst,
	})
	httpFetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:      cfg.Crawler.UserAgent,
		AllowedDomains: cfg.Roster.AllowedDomains,
		Timeout:        cfg.RequestTimeout(),
	})
	retries := retry.New(retry.Config{
		MaxAttempts: cfg.Crawler.MaxAttempts,
		BaseDelay:   cfg.RetryBaseDelay(),
	})
	a.listing = retry.Wrap(ratelimit.Wrap(httpFetcher, limiter), retries, a.logger)
	a.profiles = a.listing

	if cfg.Crawler.ProfileHeadless {
		browser, err := headless.New(headless.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			UserAgent:         cfg.Crawler.UserAgent,
			NavigationTimeout: cfg.NavigationTimeout(),
			WaitSelector:      cfg.Headless.WaitSelector,
			AllowedDomains:    cfg.Roster.AllowedDomains,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize headless fetcher: %w", err)
		}
		a.browser = browser
		a.profiles = retry.Wrap(ratelimit.Wrap(browser, limiter), retries, a.logger)
		a.logger.Info("Rendering profiles in headless Chrome",
			zap.Int("max_parallel", cfg.Headless.MaxParallel))
	}

	outputs, err := a.openOutputs(ctx)
	if err != nil {
		if a.browser != nil {
			a.browser.Close()
		}
		return nil, err
	}
	a.sink = sink.NewBuffered(outputs, "fanout", cfg.Sink.BufferSize, a.logger)

	a.logger.Info("Application services initialized successfully.",
		zap.Strings("outputs", cfg.Sink.Outputs))
	return a, nil
}

func (a *App) openOutputs(ctx context.Context) (sink.Fanout, error) {
	var outputs sink.Fanout
	fail := func(err error) (sink.Fanout, error) {
		if cerr := outputs.Close(ctx); cerr != nil {
			err = errors.Join(err, cerr)
		}
		return nil, err
	}

	for _, name := range a.cfg.Sink.Outputs {
		out, err := a.openOutput(ctx, name)
		if err != nil {
			return fail(fmt.Errorf("failed to initialize %s output: %w", name, err))
		}
		outputs = append(outputs, out)
	}
	return outputs, nil
}

func (a *App) openOutput(ctx context.Context, name string) (crawler.RecordSink, error) {
	sc := a.cfg.Sink
	switch name {
	case config.OutputJSONL:
		a.logger.Info("Using JSONL output", zap.String("path", sc.JSONL.Path))
		return local.New(local.Config{Path: sc.JSONL.Path, Append: sc.JSONL.Append})
	case config.OutputSQLite:
		a.logger.Info("Using SQLite output", zap.String("path", sc.SQLite.Path))
		return sqlite.Open(ctx, sqlite.Config{Path: sc.SQLite.Path})
	case config.OutputPostgres:
		a.logger.Info("Connecting to PostgreSQL...", zap.String("table", sc.Postgres.Table))
		store, err := postgres.New(ctx, postgres.Config{
			DSN:       sc.Postgres.DSN,
			Table:     sc.Postgres.Table,
			RunsTable: sc.Postgres.RunsTable,
			MaxConns:  sc.Postgres.MaxConns,
		})
		if err != nil {
			return nil, err
		}
		a.runs = store
		return store, nil
	case config.OutputGCS:
		a.logger.Info("Using GCS output",
			zap.String("bucket", sc.GCS.Bucket),
			zap.String("prefix", sc.GCS.Prefix))
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}
		store, err := gcs.New(client, gcs.Config{Bucket: sc.GCS.Bucket, Prefix: sc.GCS.Prefix})
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		return store, nil
	case config.OutputPubSub:
		a.logger.Info("Connecting to GCP Pub/Sub", zap.String("topic", sc.PubSub.Topic))
		return pubsub.New(ctx, pubsub.Config{
			ProjectID: sc.PubSub.ProjectID,
			Topic:     sc.PubSub.Topic,
			RunID:     a.runID,
		})
	case config.OutputMemory:
		a.memory = memory.NewRecordStore()
		return a.memory, nil
	default:
		return nil, fmt.Errorf("unknown output %q", name)
	}
}

// Logger returns the run-scoped logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// RunID is the identifier stamped on the run's statistics and messages.
func (a *App) RunID() string {
	return a.runID
}

// Memory returns the in-memory output, or nil when it is not configured.
func (a *App) Memory() *memory.RecordStore {
	return a.memory
}

// NewEngine builds a crawl engine wired to the app's fetchers and outputs.
func (a *App) NewEngine(opts ...crawler.Option) (*crawler.Engine, error) {
	opts = append([]crawler.Option{crawler.WithIDGenerator(fixedID(a.runID))}, opts...)
	engine, err := crawler.NewEngine(a.cfg.CrawlerConfig(), a.listing, a.profiles, a.sink, a.logger, opts...)
	if err != nil {
		return nil, fmt.Errorf("create engine: %w", err)
	}
	return engine, nil
}

// Finish records the run summary where a run table is configured.
func (a *App) Finish(ctx context.Context, stats crawler.RunStats) error {
	if a.runs == nil {
		return nil
	}
	if err := a.runs.RecordRun(ctx, stats); err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// Close drains buffered records, closes every output, and stops the browser.
func (a *App) Close(ctx context.Context) error {
	a.logger.Info("Shutting down application services...")
	var errs []error
	if a.sink != nil {
		if err := a.sink.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close outputs: %w", err))
		} else if failed := a.sink.Failed(); failed > 0 {
			a.logger.Warn("Some records were not persisted", zap.Int("failed", failed))
		}
	}
	if a.browser != nil {
		a.browser.Close()
	}
	return errors.Join(errs...)
}

type fixedID string

func (f fixedID) NewID() (string, error) {
	return string(f), nil
}
