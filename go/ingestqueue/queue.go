// Package ingestqueue implements L2: a bounded FIFO of apply-tasks drained
// by a fixed worker pool, decoupling the feed's dispatcher from cache
// write latency (spec.md §4.2).
package ingestqueue

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/reservoir-data/marketdata-core/go/marketdata"
	log "github.com/sirupsen/logrus"
)

// DefaultCapacity is the default queue bound (Q).
const DefaultCapacity = 1000

// DefaultWorkers is the default worker pool size (W).
const DefaultWorkers = 5

// DefaultStaleness is the default maximum task age before it is dropped
// instead of applied.
const DefaultStaleness = 5 * time.Second

// DefaultPollTimeout bounds how long a worker blocks waiting for a task
// before re-checking for shutdown.
const DefaultPollTimeout = 500 * time.Millisecond

// ApplyFunc applies one task's quote to the cache. It must not block for
// long: workers share a fixed pool and a slow apply delays every other
// queued task.
type ApplyFunc func(ric marketdata.RIC, q marketdata.Quote)

// Task is a bounded-lifetime work item produced by the feed adapter for
// every accepted update.
type Task struct {
	RIC        marketdata.RIC
	Quote      marketdata.Quote
	EnqueuedAt time.Time
}

// Stats are the queue's processed/dropped counters, read with atomic loads.
type Stats struct {
	Processed   int64
	DroppedByAge int64
	Offered     int64
	Rejected    int64 // Offer() returned false (queue full)
}

// Queue is the L2 bounded ingest queue with its worker pool.
type Queue struct {
	capacity int
	workers  int
	apply    ApplyFunc
	staleness time.Duration
	pollTimeout time.Duration

	ch chan Task

	processed    atomic.Int64
	droppedByAge atomic.Int64
	offered      atomic.Int64
	rejected     atomic.Int64

	wg sync.WaitGroup
}

// Option configures a Queue at construction.
type Option func(*Queue)

// WithCapacity overrides the default queue capacity.
func WithCapacity(n int) Option { return func(q *Queue) { q.capacity = n } }

// WithWorkers overrides the default worker pool size.
func WithWorkers(n int) Option { return func(q *Queue) { q.workers = n } }

// WithStaleness overrides the default task-staleness threshold.
func WithStaleness(d time.Duration) Option { return func(q *Queue) { q.staleness = d } }

// WithPollTimeout overrides the default worker poll bound.
func WithPollTimeout(d time.Duration) Option { return func(q *Queue) { q.pollTimeout = d } }

// New builds a Queue that applies tasks through apply, with the defaults
// from spec.md §6 unless overridden by opts.
func New(apply ApplyFunc, opts ...Option) *Queue {
	q := &Queue{
		capacity:    DefaultCapacity,
		workers:     DefaultWorkers,
		staleness:   DefaultStaleness,
		pollTimeout: DefaultPollTimeout,
		apply:       apply,
	}
	for _, opt := range opts {
		opt(q)
	}
	q.ch = make(chan Task, q.capacity)
	return q
}

// Offer performs a non-blocking enqueue. It returns false if the queue is
// full, at which point the caller (FeedAdapter) is expected to apply the
// task directly rather than block the dispatcher.
func (q *Queue) Offer(t Task) bool {
	select {
	case q.ch <- t:
		q.offered.Add(1)
		return true
	default:
		q.rejected.Add(1)
		return false
	}
}

// Start launches the worker pool. Workers run until ctx is cancelled.
func (q *Queue) Start(ctx context.Context) {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.runWorker(ctx, i)
	}
}

// Stop waits for all workers to exit, then applies the tasks still queued,
// all within drainTimeout; tasks left when the timeout expires are
// abandoned (counted as dropped by age).
func (q *Queue) Stop(drainTimeout time.Duration) {
	deadline := time.After(drainTimeout)
	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	drain:
		for {
			select {
			case t := <-q.ch:
				q.applyTask(t)
			case <-deadline:
				log.WithField("component", "ingestqueue").Warn("queue drain timed out; abandoning remaining tasks")
				break drain
			default:
				break drain
			}
		}
	case <-deadline:
		log.WithField("component", "ingestqueue").Warn("worker drain timed out; abandoning remaining tasks")
	}

	remaining := len(q.ch)
	if remaining > 0 {
		q.droppedByAge.Add(int64(remaining))
	}
}

func (q *Queue) runWorker(ctx context.Context, id int) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-q.ch:
			q.applyTask(t)
		case <-time.After(q.pollTimeout):
			// Bounded poll: re-check ctx on the next loop iteration.
		}
	}
}

func (q *Queue) applyTask(t Task) {
	if time.Since(t.EnqueuedAt) > q.staleness {
		q.droppedByAge.Add(1)
		return
	}
	q.apply(t.RIC, t.Quote)
	q.processed.Add(1)
}

// Stats returns a snapshot of the queue's counters.
func (q *Queue) Stats() Stats {
	return Stats{
		Processed:    q.processed.Load(),
		DroppedByAge: q.droppedByAge.Load(),
		Offered:      q.offered.Load(),
		Rejected:     q.rejected.Load(),
	}
}

// Len returns the number of tasks currently queued, used by the quality
// metrics sink's backpressure_queue_utilization gauge.
func (q *Queue) Len() int { return len(q.ch) }

// Capacity returns the configured queue bound.
func (q *Queue) Capacity() int { return q.capacity }
