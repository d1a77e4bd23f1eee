package crawler

import "fmt"

// Halt reasons recorded by the Paginator.
const (
	HaltExhausted = "exhausted"
	HaltMaxPages  = "max_pages"
)

// Paginator owns the PageCursor for a single run. It is not safe for
// concurrent use; the Engine drives it from the listing loop only.
type Paginator struct {
	cursor     PageCursor
	maxPages   int
	fetched    int
	totalCount int
	done       bool
	reason     string
}

// NewPaginator starts at startPage (minimum 1). maxPages <= 0 means no cap.
func NewPaginator(pageSize, startPage, maxPages int) (*Paginator, error) {
	if pageSize <= 0 {
		return nil, fmt.Errorf("page size must be > 0, got %d", pageSize)
	}
	if startPage < 1 {
		startPage = 1
	}
	return &Paginator{
		cursor:   PageCursor{PageNumber: startPage, PageSize: pageSize},
		maxPages: maxPages,
	}, nil
}

// Cursor returns the position of the next listing page to fetch.
func (p *Paginator) Cursor() PageCursor {
	return p.cursor
}

// Advance records the total observed on the current page and moves the
// cursor forward when more pages remain.
func (p *Paginator) Advance(totalCount int) (PageCursor, bool) {
	if p.done {
		return p.cursor, false
	}
	if totalCount < 0 {
		totalCount = 0
	}
	p.totalCount = totalCount
	p.fetched++

	if p.cursor.Exhausted(totalCount) {
		p.finish(HaltExhausted)
		return p.cursor, false
	}
	if p.maxPages > 0 && p.fetched >= p.maxPages {
		p.finish(HaltMaxPages)
		return p.cursor, false
	}
	p.cursor.PageNumber++
	return p.cursor, true
}

// Halt terminates pagination early. The current page is not retried.
func (p *Paginator) Halt(reason string) {
	if p.done {
		return
	}
	p.finish(reason)
}

func (p *Paginator) finish(reason string) {
	p.done = true
	p.reason = reason
}

// Done reports whether pagination reached a terminal state.
func (p *Paginator) Done() bool { return p.done }

// Reason explains why pagination stopped, or "" while running.
func (p *Paginator) Reason() string { return p.reason }

// Fetched counts listing pages whose envelopes were decoded.
func (p *Paginator) Fetched() int { return p.fetched }

// TotalCount is the most recently observed total.
func (p *Paginator) TotalCount() int { return p.totalCount }
