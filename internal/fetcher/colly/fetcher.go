// Package collyfetcher implements crawler.Fetcher on top of a gocolly collector.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/roster-crawler/internal/crawler"
)

const defaultTimeout = 15 * time.Second

// Config controls collector behavior.
type Config struct {
	UserAgent string
	// AllowedDomains bounds the crawl; empty allows any host.
	AllowedDomains []string
	Timeout        time.Duration
}

// Fetcher issues one synchronous colly visit per request. Each visit runs on
// a clone of the base collector so callbacks never leak between requests.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// fetchState is filled in by the collector callbacks of a single visit.
type fetchState struct {
	resp   crawler.FetchResponse
	status int
	err    error
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
	)
	if len(cfg.AllowedDomains) > 0 {
		c.AllowedDomains = append([]string(nil), cfg.AllowedDomains...)
	}
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	c.WithTransport(newHTTPTransport())
	c.SetRequestTimeout(cfg.Timeout)

	return &Fetcher{cfg: cfg, baseCollector: c}
}

// Fetch performs a GET and returns the body. Responses with a status of 400
// or above are reported as errors carrying the status code.
func (f *Fetcher) Fetch(ctx context.Context, req crawler.CrawlRequest) (crawler.FetchResponse, error) {
	state := &fetchState{}
	collector := f.buildCollector(req, time.Now(), state)

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(req.URL)
	}()

	select {
	case <-ctx.Done():
		return crawler.FetchResponse{}, fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			if errors.Is(err, colly.ErrForbiddenDomain) {
				return crawler.FetchResponse{}, fmt.Errorf("%s outside allowed domains: %w", req.URL, err)
			}
			if state.err == nil {
				return crawler.FetchResponse{}, fmt.Errorf("colly visit failed: %w", err)
			}
		}
		if state.err != nil {
			return crawler.FetchResponse{}, &crawler.FetchError{
				Stage:      req.Stage,
				URL:        req.URL,
				StatusCode: state.status,
				Err:        state.err,
			}
		}
		return state.resp, nil
	}
}

// buildCollector clones the base collector. Clones share the HTTP backend,
// so transport and timeout are only ever set on the base in New.
func (f *Fetcher) buildCollector(req crawler.CrawlRequest, start time.Time, state *fetchState) *colly.Collector {
	collector := f.baseCollector.Clone()
	f.configureCollectorHooks(collector, req, start, state)
	return collector
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	req crawler.CrawlRequest,
	start time.Time,
	state *fetchState,
) {
	hooks.OnRequest(func(r *colly.Request) {
		copyHeaders(req.Headers, r)
	})

	hooks.OnResponse(func(r *colly.Response) {
		headers := http.Header{}
		if r.Headers != nil {
			headers = r.Headers.Clone()
		}
		state.resp = crawler.FetchResponse{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Headers:    headers,
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil {
			state.status = r.StatusCode
		}
		state.err = err
	})
}

func copyHeaders(src http.Header, r *colly.Request) {
	for key, values := range src {
		for _, v := range values {
			r.Headers.Add(key, v)
		}
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
	}
}
