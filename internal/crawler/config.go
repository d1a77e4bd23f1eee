package crawler

import (
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// Listing endpoint query parameters.
const (
	paramLayoutID   = "layoutID"
	paramPageSize   = "pageSize"
	paramPageNumber = "pageNumber"
	paramSortBy     = "sortBy"
)

// Config captures every knob that influences a crawl run. It is decoupled
// from Viper; internal/config maps file and env settings onto it.
type Config struct {
	// RosterURL is the listing endpoint without pagination parameters.
	RosterURL string
	LayoutID  int
	PageSize  int
	SortBy    string
	StartPage int
	// MaxPages caps listing fetches; 0 means until the total is exhausted.
	MaxPages int
	// Concurrency bounds in-flight profile tasks.
	Concurrency int
	// RequestTimeout is the per-fetch deadline; 0 leaves it to the caller.
	RequestTimeout time.Duration
}

// Validate checks for obviously bad configuration combinations.
func (c Config) Validate() error {
	u, err := url.Parse(c.RosterURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("roster url must be absolute, got %q", c.RosterURL)
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("page size must be > 0")
	}
	if c.StartPage < 0 {
		return fmt.Errorf("start page must be >= 0")
	}
	if c.MaxPages < 0 {
		return fmt.Errorf("max pages must be >= 0")
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be > 0")
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("request timeout must be >= 0")
	}
	return nil
}

// ListingURL builds the listing request URL for a page. Query parameters
// already present on RosterURL are preserved.
func (c Config) ListingURL(page int) (string, error) {
	u, err := url.Parse(c.RosterURL)
	if err != nil {
		return "", fmt.Errorf("parse roster url: %w", err)
	}
	q := u.Query()
	if c.LayoutID > 0 {
		q.Set(paramLayoutID, strconv.Itoa(c.LayoutID))
	}
	q.Set(paramPageSize, strconv.Itoa(c.PageSize))
	q.Set(paramPageNumber, strconv.Itoa(page))
	if c.SortBy != "" {
		q.Set(paramSortBy, c.SortBy)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
