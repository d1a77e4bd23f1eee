package crawler

import (
	"errors"
	"fmt"
)

// Failure kinds surfaced by the crawl. None of them is fatal to the process.
var (
	ErrTransport             = errors.New("transport failure")
	ErrUnexpectedContentType = errors.New("unexpected content type")
	ErrMalformedEnvelope     = errors.New("malformed envelope")
	ErrMissingHTMLPayload    = errors.New("missing html payload")
)

// FetchError describes a failed fetch. It matches ErrTransport with errors.Is.
type FetchError struct {
	Stage      Stage
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s fetch %s: status %d: %v", e.Stage, e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s fetch %s: %v", e.Stage, e.URL, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *FetchError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrTransport}
	}
	return []error{ErrTransport, e.Err}
}

// IsDecodeFailure reports whether err is one of the listing decode failures.
func IsDecodeFailure(err error) bool {
	return errors.Is(err, ErrUnexpectedContentType) ||
		errors.Is(err, ErrMalformedEnvelope) ||
		errors.Is(err, ErrMissingHTMLPayload)
}
