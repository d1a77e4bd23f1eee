// Package retry re-issues fetches that failed for transient reasons.
package retry

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math"
	"math/big"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/roster-crawler/internal/crawler"
)

// Config tunes the backoff schedule.
type Config struct {
	// MaxAttempts counts the first try; values <= 1 disable retries.
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Policy implements jittered exponential backoff.
type Policy struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
}

// New builds a policy, filling unset delays with defaults.
func New(cfg Config) *Policy {
	p := &Policy{
		maxAttempts: cfg.MaxAttempts,
		baseDelay:   cfg.BaseDelay,
		maxDelay:    cfg.MaxDelay,
	}
	if p.maxAttempts < 1 {
		p.maxAttempts = 1
	}
	if p.baseDelay <= 0 {
		p.baseDelay = 250 * time.Millisecond
	}
	if p.maxDelay <= 0 {
		p.maxDelay = 5 * time.Second
	}
	return p
}

// ShouldRetry decides whether attempt (1-based) may be followed by another.
// Only fetch errors without a status, or with 408, 429, or 5xx, qualify.
func (p *Policy) ShouldRetry(err error, attempt int) bool {
	if err == nil || attempt >= p.maxAttempts {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var fetchErr *crawler.FetchError
	if !errors.As(err, &fetchErr) {
		return false
	}
	switch code := fetchErr.StatusCode; {
	case code == 0:
		return true
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests:
		return true
	default:
		return code >= http.StatusInternalServerError
	}
}

// Backoff returns the wait before the attempt following attempt.
func (p *Policy) Backoff(attempt int) time.Duration {
	delay := float64(p.baseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(p.maxDelay) {
		delay = float64(p.maxDelay)
	}
	half := time.Duration(delay / 2)
	return half + randomJitter(half)
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}

// Fetcher retries an underlying crawler.Fetcher according to a Policy.
type Fetcher struct {
	next   crawler.Fetcher
	policy *Policy
	logger *zap.Logger
}

// Wrap returns next decorated with policy. A nil policy, or one that allows a
// single attempt, returns next unchanged.
func Wrap(next crawler.Fetcher, policy *Policy, logger *zap.Logger) crawler.Fetcher {
	if policy == nil || policy.maxAttempts <= 1 {
		return next
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{next: next, policy: policy, logger: logger.Named("retry")}
}

// Fetch delegates until success, a permanent failure, or attempts run out.
func (f *Fetcher) Fetch(ctx context.Context, req crawler.CrawlRequest) (crawler.FetchResponse, error) {
	for attempt := 1; ; attempt++ {
		resp, err := f.next.Fetch(ctx, req)
		if !f.policy.ShouldRetry(err, attempt) {
			return resp, err
		}
		wait := f.policy.Backoff(attempt)
		f.logger.Debug("Retrying fetch",
			zap.String("url", req.URL),
			zap.String("stage", string(req.Stage)),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return crawler.FetchResponse{}, fmt.Errorf("retry canceled: %w", ctx.Err())
		case <-timer.C:
		}
	}
}
