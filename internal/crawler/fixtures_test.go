package crawler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

const profileFixture = `<!DOCTYPE html>
<html><body>
<div class="agent-image"><img src="https://cdn.example.com/%[1]s.jpg"></div>
<h2 class="agent-name"> %[2]s </h2>
<span class="agent-title">Broker Associate</span>
<div class="agent-address">12 Main St, Anchorage, AK 99501</div>
<div class="agent-contact">
  <span>Office:</span> 907-555-0100<br>
  <span>Cell:</span> 907-555-0101<br>
</div>
<div class="agent-social">
  <a href="https://www.facebook.com/%[1]s">Facebook</a>
  <a href="https://www.linkedin.com/in/%[1]s">LinkedIn</a>
</div>
<div class="agent-office">Anchorage<br>Wasilla</div>
<div class="agent-languages">English<br> Spanish </div>
<div class="agent-description"><p>Helping Alaska families since 2004.</p></div>
</body></html>`

func profilePage(slug, name string) string {
	return fmt.Sprintf(profileFixture, slug, name)
}

func rosterFragment(hrefs ...string) string {
	var b strings.Builder
	b.WriteString(`<div class="roster">`)
	for _, href := range hrefs {
		fmt.Fprintf(&b, `<article class="cms-int-roster-card">
  <a class="cms-int-roster-card-image-container site-roster-card-image-link" href="%s"><img src="x.jpg"></a>
  <a class="site-roster-card-name" href="%s">Name</a>
</article>`, href, href)
	}
	b.WriteString(`</div>`)
	return b.String()
}

func envelopeJSON(t *testing.T, total int, hrefs ...string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"Html":       rosterFragment(hrefs...),
		"TotalCount": total,
	})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return body
}

// rosterServer serves a roster of total agents split into pages.
type rosterServer struct {
	t          *testing.T
	srv        *httptest.Server
	total      int
	failSlugs  map[string]bool
	listingCT  string
	mu         sync.Mutex
	listingHit []int
	profileHit []string
}

func newRosterServer(t *testing.T, total int) *rosterServer {
	t.Helper()
	rs := &rosterServer{t: t, total: total, failSlugs: map[string]bool{}, listingCT: "application/json; charset=utf-8"}
	mux := http.NewServeMux()
	mux.HandleFunc("/CMS/CmsRoster/RosterSearchResults", rs.listing)
	mux.HandleFunc("/agents/", rs.profile)
	rs.srv = httptest.NewServer(mux)
	t.Cleanup(rs.srv.Close)
	return rs
}

func (rs *rosterServer) rosterURL() string {
	return rs.srv.URL + "/CMS/CmsRoster/RosterSearchResults"
}

func (rs *rosterServer) listing(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("pageNumber"))
	size, _ := strconv.Atoi(r.URL.Query().Get("pageSize"))
	rs.mu.Lock()
	rs.listingHit = append(rs.listingHit, page)
	rs.mu.Unlock()

	var hrefs []string
	for i := (page - 1) * size; i < page*size && i < rs.total; i++ {
		hrefs = append(hrefs, fmt.Sprintf("/agents/agent-%03d", i))
	}
	w.Header().Set("Content-Type", rs.listingCT)
	_, _ = w.Write(envelopeJSON(rs.t, rs.total, hrefs...))
}

func (rs *rosterServer) profile(w http.ResponseWriter, r *http.Request) {
	slug := strings.TrimPrefix(r.URL.Path, "/agents/")
	rs.mu.Lock()
	rs.profileHit = append(rs.profileHit, slug)
	fail := rs.failSlugs[slug]
	rs.mu.Unlock()
	if fail {
		http.Error(w, "boom", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = io.WriteString(w, profilePage(slug, "Agent "+slug))
}

func (rs *rosterServer) listingPages() []int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return append([]int(nil), rs.listingHit...)
}

func (rs *rosterServer) profileCount() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return len(rs.profileHit)
}

// httpFetcher is a minimal net/http Fetcher for exercising the Engine.
type httpFetcher struct {
	client *http.Client
}

func (f httpFetcher) Fetch(ctx context.Context, req CrawlRequest) (FetchResponse, error) {
	start := time.Now()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return FetchResponse{}, err
	}
	resp, err := f.client.Do(httpReq)
	if err != nil {
		return FetchResponse{}, err
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return FetchResponse{}, err
	}
	return FetchResponse{
		URL:        resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
		Headers:    resp.Header.Clone(),
		Body:       body,
		Duration:   time.Since(start),
	}, nil
}

// fetcherFunc adapts a function to the Fetcher interface.
type fetcherFunc func(ctx context.Context, req CrawlRequest) (FetchResponse, error)

func (f fetcherFunc) Fetch(ctx context.Context, req CrawlRequest) (FetchResponse, error) {
	return f(ctx, req)
}

// recordingSink collects records and can be told to fail.
type recordingSink struct {
	mu      sync.Mutex
	records []ProfileRecord
	failURL string
	closed  bool
}

func (s *recordingSink) Write(_ context.Context, rec ProfileRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failURL != "" && rec.ProfileURL == s.failURL {
		return fmt.Errorf("sink rejected %s", rec.ProfileURL)
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *recordingSink) Close(context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *recordingSink) snapshot() []ProfileRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ProfileRecord(nil), s.records...)
}

type fixedIDs struct{ id string }

func (f fixedIDs) NewID() (string, error) { return f.id, nil }
