package feed

import (
	"context"
	"testing"
	"time"

	"github.com/reservoir-data/marketdata-core/go/ingestqueue"
	"github.com/reservoir-data/marketdata-core/go/marketdata"
	"github.com/reservoir-data/marketdata-core/go/quotecache"
	"github.com/stretchr/testify/require"
)

type recordingValidator struct {
	seen []marketdata.Quote
}

func (r *recordingValidator) Observe(ric marketdata.RIC, q marketdata.Quote) {
	r.seen = append(r.seen, q)
}

type recordingFanout struct {
	seen []marketdata.PriceUpdate
}

func (r *recordingFanout) Publish(u marketdata.PriceUpdate) {
	r.seen = append(r.seen, u)
}

func newTestAdapter(t *testing.T) (*Adapter, *Simulated, *quotecache.Cache, *recordingValidator, *recordingFanout) {
	t.Helper()
	sim := NewSimulated()
	validator := &recordingValidator{}
	fanout := &recordingFanout{}

	var cache *quotecache.Cache
	queue := ingestqueue.New(func(ric marketdata.RIC, q marketdata.Quote) {
		cache.PutLatest(ric, q)
	}, ingestqueue.WithCapacity(100), ingestqueue.WithWorkers(2))

	adapter := New(sim, ConnectionConfig{}, queue, func(ric marketdata.RIC, q marketdata.Quote) {
		cache.PutLatest(ric, q)
	}, validator, fanout, 10*time.Millisecond)

	cache = quotecache.New(adapter)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, adapter.Start(ctx))
	queue.Start(ctx)

	return adapter, sim, cache, validator, fanout
}

func TestHappyPathRefresh(t *testing.T) {
	adapter, sim, cache, validator, fanout := newTestAdapter(t)

	require.NoError(t, cache.OpenHandle("IBM.N"))

	now := time.Now().UTC()
	sim.Push(Message{
		Kind: Refresh,
		RIC:  "IBM.N",
		Fields: map[int]string{
			FieldBID:     "150.25",
			FieldASK:     "150.30",
			FieldTRDPRC1: "150.27",
			FieldACVOL1:  "1000000",
		},
		Timestamp: &now,
	})

	require.Eventually(t, func() bool {
		got := cache.GetLatest([]marketdata.RIC{"IBM.N"})
		q, ok := got["IBM.N"]
		return ok && q.Bid != nil && q.Bid.Value == 150.25
	}, time.Second, time.Millisecond)

	require.Len(t, validator.seen, 1)
	require.Len(t, fanout.seen, 1)
	require.Equal(t, marketdata.RIC("IBM.N"), fanout.seen[0].RIC)
	require.Equal(t, int64(0), adapter.MalformedCount())
}

func TestMalformedMessageIsCountedAndSwallowed(t *testing.T) {
	adapter, sim, _, validator, fanout := newTestAdapter(t)

	sim.Push(Message{Kind: Update, RIC: "IBM.N", Fields: nil})

	require.Eventually(t, func() bool {
		return adapter.MalformedCount() == 1
	}, time.Second, time.Millisecond)
	require.Empty(t, validator.seen)
	require.Empty(t, fanout.seen)
}

func TestRegisterOutOfStateFails(t *testing.T) {
	sim := NewSimulated()
	queue := ingestqueue.New(func(marketdata.RIC, marketdata.Quote) {})
	adapter := New(sim, ConnectionConfig{}, queue, func(marketdata.RIC, marketdata.Quote) {}, nil, nil, 10*time.Millisecond)

	_, err := adapter.Register("IBM.N")
	require.ErrorIs(t, err, marketdata.ErrNotRunning)
}

func TestStopTransitionsToStopped(t *testing.T) {
	adapter, _, _, _, _ := newTestAdapter(t)
	require.Equal(t, StateRunning, adapter.State())
	require.NoError(t, adapter.Stop())
	require.Equal(t, StateStopped, adapter.State())
}
