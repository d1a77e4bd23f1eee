// Package sink composes crawler.RecordSink implementations.
package sink

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/JakeFAU/roster-crawler/internal/crawler"
	"github.com/JakeFAU/roster-crawler/internal/metrics"
)

// ErrClosed is returned by Write after Close.
var ErrClosed = errors.New("sink closed")

// Buffered decouples the crawl from a slow downstream sink with a bounded
// queue. Write blocks while the queue is full. A single goroutine drains the
// queue, so downstream never sees concurrent writes.
type Buffered struct {
	next   crawler.RecordSink
	name   string
	logger *zap.Logger
	ch     chan crawler.ProfileRecord
	done   chan struct{}

	closeMu   sync.RWMutex
	closed    bool
	closeOnce sync.Once
	closeErr  error
	failed    atomic.Int64
}

// NewBuffered starts the drain goroutine. capacity < 1 is treated as 1.
func NewBuffered(next crawler.RecordSink, name string, capacity int, logger *zap.Logger) *Buffered {
	if capacity < 1 {
		capacity = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Buffered{
		next:   next,
		name:   name,
		logger: logger.Named("sink").With(zap.String("sink", name)),
		ch:     make(chan crawler.ProfileRecord, capacity),
		done:   make(chan struct{}),
	}
	go b.drain()
	return b
}

// Write enqueues rec or returns when ctx ends.
func (b *Buffered) Write(ctx context.Context, rec crawler.ProfileRecord) error {
	b.closeMu.RLock()
	defer b.closeMu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case b.ch <- rec:
		metrics.SetSinkQueueDepth(len(b.ch))
		return nil
	}
}

func (b *Buffered) drain() {
	defer close(b.done)
	for rec := range b.ch {
		metrics.SetSinkQueueDepth(len(b.ch))
		// Records already accepted are flushed even after the crawl is canceled.
		if err := b.next.Write(context.Background(), rec); err != nil {
			b.failed.Add(1)
			metrics.ObserveSinkError(b.name)
			b.logger.Error("Failed to persist profile record",
				zap.String("url", rec.ProfileURL),
				zap.Error(err),
			)
		}
	}
}

// Close stops accepting records, waits for the queue to drain (or ctx to
// end), then closes the downstream sink. The downstream sink is closed at
// most once; later calls return the first result. A call that gave up on ctx
// may be repeated to finish the drain.
func (b *Buffered) Close(ctx context.Context) error {
	b.closeMu.Lock()
	if !b.closed {
		b.closed = true
		close(b.ch)
	}
	b.closeMu.Unlock()

	select {
	case <-b.done:
	case <-ctx.Done():
		return fmt.Errorf("drain %s sink: %w", b.name, ctx.Err())
	}
	b.closeOnce.Do(func() {
		if failed := b.Failed(); failed > 0 {
			b.logger.Warn("Sink dropped records", zap.Int("failed", failed))
		}
		if err := b.next.Close(ctx); err != nil {
			b.closeErr = fmt.Errorf("close %s sink: %w", b.name, err)
		}
	})
	return b.closeErr
}

// Failed reports how many drained records the downstream sink rejected so
// far. The count is final once Close returns nil.
func (b *Buffered) Failed() int {
	return int(b.failed.Load())
}

// Fanout writes every record to all sinks in order.
type Fanout []crawler.RecordSink

// Write attempts every sink and joins their errors.
func (f Fanout) Write(ctx context.Context, rec crawler.ProfileRecord) error {
	var errs []error
	for _, s := range f {
		if err := s.Write(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink and joins their errors.
func (f Fanout) Close(ctx context.Context) error {
	var errs []error
	for _, s := range f {
		if err := s.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
