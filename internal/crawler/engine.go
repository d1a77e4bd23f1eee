package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	idgen "github.com/JakeFAU/roster-crawler/internal/id/uuid"
	"github.com/JakeFAU/roster-crawler/internal/metrics"
)

// Halt reasons recorded when a run stops before the total is exhausted.
const (
	HaltCanceled              = "canceled"
	HaltListingFetchFailed    = "listing_fetch_failed"
	HaltUnexpectedContentType = "unexpected_content_type"
	HaltMalformedEnvelope     = "malformed_envelope"
	HaltMissingHTMLPayload    = "missing_html_payload"
)

const maxLoggedBody = 2048

// ErrAlreadyRunning is returned when Run is called on a busy Engine.
var ErrAlreadyRunning = errors.New("crawl already running")

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

type utcClock struct{}

func (utcClock) Now() time.Time { return time.Now().UTC() }

// Option customizes an Engine.
type Option func(*Engine)

// WithProfileSchema replaces the default profile queries.
func WithProfileSchema(schema ProfileSchema) Option {
	return func(e *Engine) {
		e.extractor = NewProfileExtractor(schema, e.logger.Named("extractor"))
	}
}

// WithIDGenerator overrides the run ID source.
func WithIDGenerator(ids IDGenerator) Option {
	return func(e *Engine) {
		if ids != nil {
			e.ids = ids
		}
	}
}

// WithClock overrides the clock used for run timestamps.
func WithClock(clk Clock) Option {
	return func(e *Engine) {
		if clk != nil {
			e.clock = clk
		}
	}
}

// Engine drives the two-stage roster crawl: sequential listing pages and
// bounded concurrent profile fetches. One Engine runs one crawl at a time.
type Engine struct {
	cfg       Config
	listing   Fetcher
	profiles  Fetcher
	sink      RecordSink
	extractor *ProfileExtractor
	ids       IDGenerator
	clock     Clock
	logger    *zap.Logger

	running atomic.Bool
	mu      sync.RWMutex
	stats   RunStats
}

// NewEngine wires an Engine. profiles may be nil, in which case the listing
// fetcher serves both stages.
func NewEngine(
	cfg Config,
	listing Fetcher,
	profiles Fetcher,
	sink RecordSink,
	logger *zap.Logger,
	opts ...Option,
) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid crawler config: %w", err)
	}
	if listing == nil {
		return nil, errors.New("listing fetcher is required")
	}
	if sink == nil {
		return nil, errors.New("record sink is required")
	}
	if profiles == nil {
		profiles = listing
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		cfg:      cfg,
		listing:  listing,
		profiles: profiles,
		sink:     sink,
		ids:      idgen.New(),
		clock:    utcClock{},
		logger:   logger.Named("engine"),
	}
	e.extractor = NewProfileExtractor(DefaultProfileSchema(), e.logger.Named("extractor"))
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Stats returns a snapshot of the current or most recent run.
func (e *Engine) Stats() RunStats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.stats
}

// Running reports whether a crawl is in progress.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// run holds all state scoped to one crawl. It is discarded when Run returns.
type run struct {
	engine   *Engine
	logger   *zap.Logger
	pager    *Paginator
	tasks    *errgroup.Group
	emitters sync.WaitGroup
}

// Run executes a full crawl. Listing failures halt pagination but are not
// returned; the error is non-nil only for setup failures or cancellation.
func (e *Engine) Run(ctx context.Context) (RunStats, error) {
	if !e.running.CompareAndSwap(false, true) {
		return e.Stats(), ErrAlreadyRunning
	}
	defer e.running.Store(false)

	pager, err := NewPaginator(e.cfg.PageSize, e.cfg.StartPage, e.cfg.MaxPages)
	if err != nil {
		return RunStats{}, fmt.Errorf("create paginator: %w", err)
	}
	runID, err := e.ids.NewID()
	if err != nil {
		return RunStats{}, fmt.Errorf("generate run id: %w", err)
	}

	e.mu.Lock()
	e.stats = RunStats{RunID: runID, StartedAt: e.clock.Now(), Running: true}
	e.mu.Unlock()

	r := &run{
		engine: e,
		logger: e.logger.With(zap.String("run_id", runID)),
		pager:  pager,
		tasks:  new(errgroup.Group),
	}
	r.tasks.SetLimit(e.cfg.Concurrency)

	r.logger.Info("Starting roster crawl",
		zap.String("url", e.cfg.RosterURL),
		zap.Int("page_size", e.cfg.PageSize),
		zap.Int("concurrency", e.cfg.Concurrency),
	)

	r.paginate(ctx)

	// Tasks never return errors; failures are counted instead.
	_ = r.tasks.Wait()
	r.emitters.Wait()

	finished := e.clock.Now()
	e.mu.Lock()
	e.stats.Running = false
	e.stats.FinishedAt = &finished
	e.stats.HaltReason = pager.Reason()
	stats := e.stats
	e.mu.Unlock()

	r.logger.Info("Roster crawl finished",
		zap.String("halt_reason", stats.HaltReason),
		zap.Int("pages", stats.PagesFetched),
		zap.Int("profiles", stats.ProfilesDiscovered),
		zap.Int("records", stats.RecordsEmitted),
		zap.Int("profile_failures", stats.ProfileFailures),
		zap.Int("sink_failures", stats.SinkFailures),
		zap.Duration("elapsed", finished.Sub(stats.StartedAt)),
	)

	if err := ctx.Err(); err != nil {
		return stats, fmt.Errorf("crawl canceled: %w", err)
	}
	return stats, nil
}

func (r *run) paginate(ctx context.Context) {
	for !r.pager.Done() {
		if ctx.Err() != nil {
			r.pager.Halt(HaltCanceled)
			return
		}
		cursor := r.pager.Cursor()
		logger := r.logger.With(zap.Int("page", cursor.PageNumber))

		resp, env, err := r.fetchListing(ctx, logger, cursor)
		if err != nil {
			if ctx.Err() != nil {
				r.pager.Halt(HaltCanceled)
				return
			}
			r.pager.Halt(haltReason(err))
			return
		}
		metrics.ObserveListingPage("ok")

		links := ExtractProfileLinks(env.HTML)
		logger.Info("Listing page decoded",
			zap.Int("profiles", len(links)),
			zap.Int("total_count", env.TotalCount),
		)
		r.engine.update(func(s *RunStats) {
			s.PagesFetched++
			s.TotalCount = env.TotalCount
			s.ProfilesDiscovered += len(links)
		})
		r.dispatch(ctx, logger, resp.URL, cursor.PageNumber, links)

		r.pager.Advance(env.TotalCount)
	}
}

func (r *run) fetchListing(
	ctx context.Context,
	logger *zap.Logger,
	cursor PageCursor,
) (FetchResponse, ListingEnvelope, error) {
	listingURL, err := r.engine.cfg.ListingURL(cursor.PageNumber)
	if err != nil {
		logger.Error("Failed to build listing URL", zap.Error(err))
		return FetchResponse{}, ListingEnvelope{}, err
	}
	req := CrawlRequest{URL: listingURL, Stage: StageListing, Page: cursor.PageNumber}
	resp, err := r.engine.fetch(ctx, r.engine.listing, req)
	if err != nil {
		metrics.ObserveListingPage("transport_error")
		logger.Error("Failed to fetch listing page", zap.String("url", listingURL), zap.Error(err))
		return FetchResponse{}, ListingEnvelope{}, err
	}
	if resp.URL == "" {
		resp.URL = listingURL
	}
	logger.Debug("Listing response received",
		zap.String("url", resp.URL),
		zap.Int("status", resp.StatusCode),
		zap.Any("headers", resp.Headers),
	)

	env, err := DecodeEnvelope(resp.Body, resp.ContentType())
	if err != nil {
		metrics.ObserveListingPage("decode_error")
		logger.Error("Failed to decode listing envelope",
			zap.String("url", resp.URL),
			zap.String("content_type", resp.ContentType()),
			zap.Error(err),
		)
		logger.Debug("Listing body", zap.ByteString("body", truncate(resp.Body, maxLoggedBody)))
		return resp, ListingEnvelope{}, err
	}
	return resp, env, nil
}

// dispatch schedules one task per link and an emitter that forwards the
// page's records to the sink in discovery order.
func (r *run) dispatch(ctx context.Context, logger *zap.Logger, baseURL string, page int, links []string) {
	if len(links) == 0 {
		return
	}
	slots := make([]chan *ProfileRecord, len(links))
	for i := range slots {
		slots[i] = make(chan *ProfileRecord, 1)
	}

	r.emitters.Add(1)
	go func() {
		defer r.emitters.Done()
		for _, slot := range slots {
			if rec := <-slot; rec != nil {
				r.emit(ctx, *rec)
			}
		}
	}()

	for i, href := range links {
		slot := slots[i]
		profileURL, err := ResolveURL(baseURL, href)
		if err != nil {
			metrics.ObserveProfile("invalid_url")
			logger.Warn("Skipping unresolvable profile link", zap.String("href", href), zap.Error(err))
			r.engine.update(func(s *RunStats) { s.ProfileFailures++ })
			slot <- nil
			continue
		}
		logger.Info("Discovered profile", zap.String("url", profileURL))
		if ctx.Err() != nil {
			slot <- nil
			continue
		}
		r.tasks.Go(func() error {
			slot <- r.processProfile(ctx, page, profileURL)
			return nil
		})
	}
}

func (r *run) processProfile(ctx context.Context, page int, profileURL string) *ProfileRecord {
	req := CrawlRequest{URL: profileURL, Stage: StageProfile, Page: page}
	resp, err := r.engine.fetch(ctx, r.engine.profiles, req)
	if err != nil {
		if ctx.Err() != nil {
			metrics.ObserveProfile("canceled")
			return nil
		}
		metrics.ObserveProfile("fetch_error")
		r.logger.Warn("Failed to fetch profile",
			zap.String("url", profileURL),
			zap.Int("page", page),
			zap.Error(err),
		)
		r.engine.update(func(s *RunStats) { s.ProfileFailures++ })
		return nil
	}
	metrics.ObserveProfile("ok")
	rec := r.engine.extractor.Extract(profileURL, resp.Body)
	return &rec
}

func (r *run) emit(ctx context.Context, rec ProfileRecord) {
	if ctx.Err() != nil {
		return
	}
	if err := r.engine.sink.Write(ctx, rec); err != nil {
		if ctx.Err() != nil {
			return
		}
		metrics.ObserveSinkError("engine")
		r.logger.Error("Failed to write profile record", zap.String("url", rec.ProfileURL), zap.Error(err))
		r.engine.update(func(s *RunStats) { s.SinkFailures++ })
		return
	}
	metrics.ObserveRecordEmitted()
	r.engine.update(func(s *RunStats) { s.RecordsEmitted++ })
}

// fetch applies the per-request deadline and normalizes failures into
// *FetchError.
func (e *Engine) fetch(ctx context.Context, f Fetcher, req CrawlRequest) (FetchResponse, error) {
	if e.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.RequestTimeout)
		defer cancel()
	}
	start := time.Now()
	resp, err := f.Fetch(ctx, req)
	metrics.ObserveFetch(string(req.Stage), req.URL, time.Since(start), len(resp.Body))
	if err != nil {
		var fetchErr *FetchError
		if errors.As(err, &fetchErr) {
			return FetchResponse{}, err
		}
		return FetchResponse{}, &FetchError{Stage: req.Stage, URL: req.URL, StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return FetchResponse{}, &FetchError{
			Stage:      req.Stage,
			URL:        req.URL,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %s", http.StatusText(resp.StatusCode)),
		}
	}
	return resp, nil
}

func (e *Engine) update(fn func(*RunStats)) {
	e.mu.Lock()
	fn(&e.stats)
	e.mu.Unlock()
}

func haltReason(err error) string {
	switch {
	case errors.Is(err, ErrUnexpectedContentType):
		return HaltUnexpectedContentType
	case errors.Is(err, ErrMalformedEnvelope):
		return HaltMalformedEnvelope
	case errors.Is(err, ErrMissingHTMLPayload):
		return HaltMissingHTMLPayload
	default:
		return HaltListingFetchFailed
	}
}

func truncate(body []byte, limit int) []byte {
	if len(body) <= limit {
		return body
	}
	return body[:limit]
}
