package crawler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPaginator(t *testing.T) {
	t.Parallel()

	_, err := NewPaginator(0, 1, 0)
	require.Error(t, err)

	p, err := NewPaginator(10, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, PageCursor{PageNumber: 1, PageSize: 10}, p.Cursor())
	assert.False(t, p.Done())
}

func TestPaginatorAdvance(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		pageSize  int
		maxPages  int
		totals    []int
		wantPages int
		reason    string
	}{
		{name: "single partial page", pageSize: 10, totals: []int{1}, wantPages: 1, reason: HaltExhausted},
		{name: "exact multiple", pageSize: 10, totals: []int{30, 30, 30}, wantPages: 3, reason: HaltExhausted},
		{name: "remainder page", pageSize: 10, totals: []int{25, 25, 25}, wantPages: 3, reason: HaltExhausted},
		{name: "empty roster", pageSize: 10, totals: []int{0}, wantPages: 1, reason: HaltExhausted},
		{name: "total shrinks", pageSize: 10, totals: []int{50, 15}, wantPages: 2, reason: HaltExhausted},
		{name: "capped", pageSize: 10, maxPages: 2, totals: []int{100, 100}, wantPages: 2, reason: HaltMaxPages},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p, err := NewPaginator(tt.pageSize, 1, tt.maxPages)
			require.NoError(t, err)

			last := 0
			for _, total := range tt.totals {
				require.False(t, p.Done())
				cur := p.Cursor()
				require.Greater(t, cur.PageNumber, last)
				last = cur.PageNumber
				p.Advance(total)
			}
			assert.True(t, p.Done())
			assert.Equal(t, tt.wantPages, p.Fetched())
			assert.Equal(t, tt.reason, p.Reason())

			// Terminal state is sticky.
			cur, more := p.Advance(1000)
			assert.False(t, more)
			assert.Equal(t, last, cur.PageNumber)
		})
	}
}

func TestPaginatorHalt(t *testing.T) {
	t.Parallel()

	p, err := NewPaginator(10, 3, 0)
	require.NoError(t, err)
	next, more := p.Advance(100)
	require.True(t, more)
	assert.Equal(t, 4, next.PageNumber)

	p.Halt(HaltMalformedEnvelope)
	p.Halt(HaltCanceled)
	assert.True(t, p.Done())
	assert.Equal(t, HaltMalformedEnvelope, p.Reason())
	assert.Equal(t, 1, p.Fetched())
	assert.Equal(t, 100, p.TotalCount())
}

func TestPageCursorExhausted(t *testing.T) {
	t.Parallel()

	assert.True(t, PageCursor{PageNumber: 1, PageSize: 10}.Exhausted(1))
	assert.True(t, PageCursor{PageNumber: 2, PageSize: 10}.Exhausted(20))
	assert.False(t, PageCursor{PageNumber: 2, PageSize: 10}.Exhausted(21))
}
