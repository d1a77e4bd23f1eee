package crawler

import (
	"net/http"
	"time"
)

// Stage identifies which half of the crawl a request belongs to.
type Stage string

// Crawl stages.
const (
	StageListing Stage = "listing"
	StageProfile Stage = "profile"
)

// CrawlRequest is handed to a Fetcher. It is created by the Engine and
// discarded once the fetch returns.
type CrawlRequest struct {
	URL     string
	Stage   Stage
	Page    int
	Headers http.Header
}

// FetchResponse is the raw result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// ContentType returns the declared Content-Type header, if any.
func (r FetchResponse) ContentType() string {
	if r.Headers == nil {
		return ""
	}
	return r.Headers.Get("Content-Type")
}

// ListingEnvelope is the decoded JSON wrapper of one listing page.
type ListingEnvelope struct {
	HTML       string
	TotalCount int
}

// PageCursor is the pagination position. PageSize is fixed for a run.
type PageCursor struct {
	PageNumber int
	PageSize   int
}

// Exhausted reports whether no page follows this one for the given total.
func (c PageCursor) Exhausted(totalCount int) bool {
	return c.PageNumber*c.PageSize >= totalCount
}

// Contact detail labels.
const (
	ContactOffice = "Office"
	ContactCell   = "Cell"
	ContactFax    = "Fax"
)

// Social platforms tracked per agent.
const (
	SocialFacebook  = "facebook"
	SocialTwitter   = "twitter"
	SocialLinkedIn  = "linkedin"
	SocialYouTube   = "youtube"
	SocialPinterest = "pinterest"
	SocialInstagram = "instagram"
)

// ContactLabels lists the fixed contact keys in output order.
var ContactLabels = []string{ContactOffice, ContactCell, ContactFax}

// SocialPlatforms lists the fixed social keys in output order.
var SocialPlatforms = []string{
	SocialFacebook,
	SocialTwitter,
	SocialLinkedIn,
	SocialYouTube,
	SocialPinterest,
	SocialInstagram,
}

// ProfileRecord is the structured output for one agent profile. Every field
// is always present: absent values are "" or empty collections, never nil.
type ProfileRecord struct {
	ProfileURL     string            `json:"profile_url"`
	Name           string            `json:"name"`
	JobTitle       string            `json:"job_title"`
	ImageURL       string            `json:"image_url"`
	Address        string            `json:"address"`
	ContactDetails map[string]string `json:"contact_details"`
	SocialAccounts map[string]string `json:"social_accounts"`
	Offices        []string          `json:"offices"`
	Languages      []string          `json:"languages"`
	Description    string            `json:"description"`
}

// NewProfileRecord returns a record with every field set to its default.
func NewProfileRecord(profileURL string) ProfileRecord {
	rec := ProfileRecord{
		ProfileURL:     profileURL,
		ContactDetails: make(map[string]string, len(ContactLabels)),
		SocialAccounts: make(map[string]string, len(SocialPlatforms)),
		Offices:        []string{},
		Languages:      []string{},
	}
	for _, label := range ContactLabels {
		rec.ContactDetails[label] = ""
	}
	for _, platform := range SocialPlatforms {
		rec.SocialAccounts[platform] = ""
	}
	return rec
}

// RunStats summarizes a crawl run. It is safe to copy.
type RunStats struct {
	RunID              string     `json:"run_id"`
	StartedAt          time.Time  `json:"started_at"`
	FinishedAt         *time.Time `json:"finished_at,omitempty"`
	TotalCount         int        `json:"total_count"`
	PagesFetched       int        `json:"pages_fetched"`
	ProfilesDiscovered int        `json:"profiles_discovered"`
	RecordsEmitted     int        `json:"records_emitted"`
	ProfileFailures    int        `json:"profile_failures"`
	SinkFailures       int        `json:"sink_failures"`
	HaltReason         string     `json:"halt_reason,omitempty"`
	Running            bool       `json:"running"`
}
