// queue.go provides the bounded work queue that decouples Capture from
// report delivery. Reports are processed by a single background worker;
// the oldest report is dropped when the queue is full.

package reporting

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrQueueClosed is returned when enqueueing on a closed queue.
var ErrQueueClosed = errors.New("report queue is closed")

// report is one captured failure waiting for dispatch.
type report struct {
	ctx  context.Context
	err  error
	opts CaptureOptions
	id   string
}

// reportQueue drains reports into a handler on a single goroutine.
type reportQueue struct {
	handle    func(report)
	queue     chan report
	done      chan struct{}
	closeOnce sync.Once
	closeMu   sync.RWMutex
	closed    bool
	wg        sync.WaitGroup
	pending   atomic.Int64
	onDropped func(r report)
}

// newReportQueue starts a worker that calls handle for every queued report.
func newReportQueue(size int, handle func(report), onDropped func(report)) *reportQueue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	q := &reportQueue{
		handle:    handle,
		queue:     make(chan report, size),
		done:      make(chan struct{}),
		onDropped: onDropped,
	}

	q.wg.Add(1)
	go q.processLoop()

	return q
}

// processLoop drains the queue until Close, then drains what is left.
func (q *reportQueue) processLoop() {
	defer q.wg.Done()
	for {
		select {
		case r := <-q.queue:
			q.run(r)
		case <-q.done:
			for {
				select {
				case r := <-q.queue:
					q.run(r)
				default:
					return
				}
			}
		}
	}
}

func (q *reportQueue) run(r report) {
	defer q.pending.Add(-1)
	q.handle(r)
}

// Enqueue adds a report without blocking. When the queue is full the oldest
// report is dropped to make room.
func (q *reportQueue) Enqueue(r report) error {
	q.closeMu.RLock()
	defer q.closeMu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}

	q.pending.Add(1)
	select {
	case q.queue <- r:
		return nil
	default:
		q.dropOldestAndEnqueue(r)
		return nil
	}
}

// dropOldestAndEnqueue drops the oldest report and enqueues the new one.
func (q *reportQueue) dropOldestAndEnqueue(r report) {
	select {
	case old := <-q.queue:
		q.pending.Add(-1)
		q.dropped(old)
	default:
		// Queue was emptied by the worker, try again
	}

	select {
	case q.queue <- r:
	default:
		q.pending.Add(-1)
		q.dropped(r)
	}
}

func (q *reportQueue) dropped(r report) {
	if q.onDropped != nil {
		q.onDropped(r)
	}
}

// Flush blocks until every enqueued report has been handled or ctx ends.
func (q *reportQueue) Flush(ctx context.Context) error {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	for q.pending.Load() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// Close stops accepting reports, drains the queue and stops the worker.
// It waits at most until ctx ends.
func (q *reportQueue) Close(ctx context.Context) error {
	q.closeOnce.Do(func() {
		q.closeMu.Lock()
		q.closed = true
		q.closeMu.Unlock()
		close(q.done)
	})

	stopped := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(stopped)
	}()

	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len returns the number of reports waiting for dispatch.
func (q *reportQueue) Len() int {
	return len(q.queue)
}

// DefaultQueueSize is the report queue capacity used when none is configured.
const DefaultQueueSize = 1000

// defaultCloseTimeout bounds Close when the caller passes a context without deadline.
const defaultCloseTimeout = 30 * time.Second
