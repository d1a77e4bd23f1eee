package sink

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/roster-crawler/internal/crawler"
)

// MockSink is a testify mock of crawler.RecordSink.
type MockSink struct {
	mock.Mock
}

func (m *MockSink) Write(ctx context.Context, rec crawler.ProfileRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *MockSink) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// gateSink blocks every write until released.
type gateSink struct {
	mu      sync.Mutex
	release chan struct{}
	got     []string
	closed  bool
}

func (g *gateSink) Write(_ context.Context, rec crawler.ProfileRecord) error {
	<-g.release
	g.mu.Lock()
	defer g.mu.Unlock()
	g.got = append(g.got, rec.ProfileURL)
	return nil
}

func (g *gateSink) Close(context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	return nil
}

func (g *gateSink) isClosed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed
}

func (g *gateSink) urls() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.got...)
}

func TestBufferedAppliesBackpressure(t *testing.T) {
	t.Parallel()

	down := &gateSink{release: make(chan struct{})}
	b := NewBuffered(down, "gate", 2, zap.NewNop())

	// One record is held by the drain goroutine, two fill the queue.
	require.NoError(t, b.Write(context.Background(), crawler.NewProfileRecord("a")))
	require.Eventually(t, func() bool { return len(b.ch) == 0 }, time.Second, time.Millisecond)
	for _, u := range []string{"b", "c"} {
		require.NoError(t, b.Write(context.Background(), crawler.NewProfileRecord(u)))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := b.Write(ctx, crawler.NewProfileRecord("d"))
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(down.release)
	require.NoError(t, b.Close(context.Background()))
	assert.Equal(t, []string{"a", "b", "c"}, down.got)
	assert.True(t, down.closed)
	assert.Zero(t, b.Failed())
}

func TestBufferedRejectsWritesAfterClose(t *testing.T) {
	t.Parallel()

	down := &MockSink{}
	down.On("Close", mock.Anything).Return(nil).Once()
	b := NewBuffered(down, "mock", 4, nil)

	require.NoError(t, b.Close(context.Background()))
	require.NoError(t, b.Close(context.Background()))
	require.ErrorIs(t, b.Write(context.Background(), crawler.NewProfileRecord("x")), ErrClosed)
	down.AssertNumberOfCalls(t, "Close", 1)
}

func TestBufferedCloseKeepsFirstError(t *testing.T) {
	t.Parallel()

	down := &MockSink{}
	down.On("Close", mock.Anything).Return(errors.New("flush failed")).Once()
	b := NewBuffered(down, "mock", 1, nil)

	require.EqualError(t, b.Close(context.Background()), "close mock sink: flush failed")
	require.EqualError(t, b.Close(context.Background()), "close mock sink: flush failed")
	down.AssertNumberOfCalls(t, "Close", 1)
}

func TestBufferedCountsDownstreamFailures(t *testing.T) {
	t.Parallel()

	down := &MockSink{}
	down.On("Write", mock.Anything, mock.MatchedBy(func(r crawler.ProfileRecord) bool {
		return r.ProfileURL == "bad"
	})).Return(errors.New("disk full"))
	down.On("Write", mock.Anything, mock.Anything).Return(nil)
	down.On("Close", mock.Anything).Return(nil)

	b := NewBuffered(down, "mock", 4, zap.NewNop())
	for _, u := range []string{"ok-1", "bad", "ok-2"} {
		require.NoError(t, b.Write(context.Background(), crawler.NewProfileRecord(u)))
	}
	require.NoError(t, b.Close(context.Background()))
	assert.Equal(t, 1, b.Failed())
	down.AssertNumberOfCalls(t, "Write", 3)
}

func TestBufferedCloseHonoursContext(t *testing.T) {
	t.Parallel()

	down := &gateSink{release: make(chan struct{})}
	b := NewBuffered(down, "gate", 1, nil)
	require.NoError(t, b.Write(context.Background(), crawler.NewProfileRecord("a")))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, b.Close(ctx), context.DeadlineExceeded)
	assert.Zero(t, b.Failed())
	assert.False(t, down.isClosed())

	close(down.release)
	require.NoError(t, b.Close(context.Background()))
	assert.True(t, down.isClosed())
	assert.Equal(t, []string{"a"}, down.urls())
}

func TestFanoutJoinsErrors(t *testing.T) {
	t.Parallel()

	rec := crawler.NewProfileRecord("https://example.com/bio/a")
	ok := &MockSink{}
	ok.On("Write", mock.Anything, rec).Return(nil)
	ok.On("Close", mock.Anything).Return(nil)
	bad := &MockSink{}
	bad.On("Write", mock.Anything, rec).Return(errors.New("write failed"))
	bad.On("Close", mock.Anything).Return(errors.New("close failed"))

	f := Fanout{bad, ok}
	require.EqualError(t, f.Write(context.Background(), rec), "write failed")
	require.EqualError(t, f.Close(context.Background()), "close failed")
	ok.AssertExpectations(t)
	bad.AssertExpectations(t)
}
