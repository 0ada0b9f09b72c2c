package runtime

import (
	"context"
	"testing"
	"time"

	"github.com/reservoir-data/marketdata-core/go/fanout"
	"github.com/reservoir-data/marketdata-core/go/feed"
	"github.com/reservoir-data/marketdata-core/go/marketdata"
	"github.com/reservoir-data/marketdata-core/go/quotecache"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*Service, *feed.Simulated) {
	t.Helper()
	sim := feed.NewSimulated()
	require.NoError(t, sim.Connect(feed.ConnectionConfig{}))

	var cache *quotecache.Cache
	apply := func(ric marketdata.RIC, q marketdata.Quote) { cache.PutLatest(ric, q) }

	adapter := feed.New(sim, feed.ConnectionConfig{}, nil, apply, nil, nil, 10*time.Millisecond)
	require.NoError(t, adapter.Start(context.Background()))
	cache = quotecache.New(adapter)

	fo := fanout.New(fanout.DefaultQueueCapacity, fanout.DefaultSlowConsumerTimeout)
	return NewService(cache, nil, fo), sim
}

func TestServiceSubscribeGetLatestUnsubscribe(t *testing.T) {
	svc, sim := newTestService(t)
	ctx := context.Background()

	result, err := svc.Subscribe(ctx, []marketdata.RIC{"VOD.L"})
	require.NoError(t, err)
	require.Equal(t, []marketdata.RIC{"VOD.L"}, result.Subscribed)
	require.Equal(t, 1, result.TotalSubscriptions)

	sim.Push(feed.Message{Kind: feed.Refresh, RIC: "VOD.L", Fields: map[int]string{
		feed.FieldBID: "100.00", feed.FieldASK: "100.05",
	}})

	require.Eventually(t, func() bool {
		quotes, err := svc.GetLatest(ctx, []marketdata.RIC{"VOD.L"})
		return err == nil && len(quotes) == 1
	}, time.Second, 5*time.Millisecond)

	unsub, err := svc.Unsubscribe(ctx, []marketdata.RIC{"VOD.L"})
	require.NoError(t, err)
	require.Equal(t, 0, unsub.RemainingSubscriptions)
}

func TestServiceRejectsEmptyRICList(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.GetLatest(ctx, nil)
	require.ErrorIs(t, err, marketdata.ErrInvalidArgument)

	_, err = svc.Subscribe(ctx, nil)
	require.ErrorIs(t, err, marketdata.ErrInvalidArgument)

	_, err = svc.Unsubscribe(ctx, nil)
	require.ErrorIs(t, err, marketdata.ErrInvalidArgument)
}

func TestServiceSubscribedReflectsOpenHandles(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Subscribe(ctx, []marketdata.RIC{"A", "B"})
	require.NoError(t, err)

	rics, err := svc.Subscribed(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []marketdata.RIC{"A", "B"}, rics)
}
