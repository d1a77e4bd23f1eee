package crawler

import "context"

// Fetcher retrieves a URL. Retry and redirect policy belong to the
// implementation; the Engine treats every error as final for that URL.
type Fetcher interface {
	Fetch(ctx context.Context, req CrawlRequest) (FetchResponse, error)
}

// RecordSink receives ProfileRecords. Implementations apply their own
// backpressure by blocking in Write.
type RecordSink interface {
	Write(ctx context.Context, rec ProfileRecord) error
	Close(ctx context.Context) error
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
