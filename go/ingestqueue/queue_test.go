package ingestqueue

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/reservoir-data/marketdata-core/go/marketdata"
	"github.com/stretchr/testify/require"
)

func TestOfferAppliesViaWorkers(t *testing.T) {
	var applied atomic.Int64
	q := New(func(ric marketdata.RIC, qq marketdata.Quote) {
		applied.Add(1)
	}, WithCapacity(10), WithWorkers(2))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	for i := 0; i < 5; i++ {
		require.True(t, q.Offer(Task{RIC: "IBM.N", EnqueuedAt: time.Now()}))
	}

	require.Eventually(t, func() bool {
		return applied.Load() == 5
	}, time.Second, time.Millisecond)

	stats := q.Stats()
	require.Equal(t, int64(5), stats.Processed)
	require.Equal(t, int64(0), stats.DroppedByAge)
}

func TestOfferReturnsFalseWhenFull(t *testing.T) {
	block := make(chan struct{})
	var once sync.Once
	q := New(func(ric marketdata.RIC, qq marketdata.Quote) {
		once.Do(func() { <-block })
	}, WithCapacity(1), WithWorkers(1), WithPollTimeout(10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	// First task is picked up and blocks the sole worker on `block`.
	require.True(t, q.Offer(Task{RIC: "A", EnqueuedAt: time.Now()}))
	require.Eventually(t, func() bool { return q.Len() == 0 || true }, time.Second, time.Millisecond)

	// Fill the channel buffer (capacity 1) and confirm the next Offer fails.
	time.Sleep(20 * time.Millisecond)
	require.True(t, q.Offer(Task{RIC: "B", EnqueuedAt: time.Now()}))
	ok := q.Offer(Task{RIC: "C", EnqueuedAt: time.Now()})
	require.False(t, ok)

	close(block)
}

func TestStaleTaskIsDroppedByAge(t *testing.T) {
	var applied atomic.Int64
	q := New(func(ric marketdata.RIC, qq marketdata.Quote) {
		applied.Add(1)
	}, WithCapacity(10), WithWorkers(1), WithStaleness(10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.True(t, q.Offer(Task{RIC: "IBM.N", EnqueuedAt: time.Now().Add(-time.Hour)}))
	q.Start(ctx)

	require.Eventually(t, func() bool {
		return q.Stats().DroppedByAge == 1
	}, time.Second, time.Millisecond)
	require.Equal(t, int64(0), applied.Load())
}

func TestStopDrainsWithinTimeout(t *testing.T) {
	var applied atomic.Int64
	q := New(func(ric marketdata.RIC, qq marketdata.Quote) {
		applied.Add(1)
		time.Sleep(time.Millisecond)
	}, WithCapacity(100), WithWorkers(3))

	ctx, cancel := context.WithCancel(context.Background())
	for i := 0; i < 50; i++ {
		q.Offer(Task{RIC: "IBM.N", EnqueuedAt: time.Now()})
	}
	q.Start(ctx)
	cancel()
	q.Stop(2 * time.Second)
	require.Equal(t, int64(50), applied.Load())
}
