package fanout

import (
	"testing"
	"time"

	"github.com/reservoir-data/marketdata-core/go/marketdata"
	"github.com/stretchr/testify/require"
)

func update(ric marketdata.RIC) marketdata.PriceUpdate {
	return marketdata.PriceUpdate{RIC: ric, Quote: marketdata.Quote{RIC: ric, Timestamp: time.Now()}}
}

func TestSubscribeStreamUnsubscribe(t *testing.T) {
	f := New(DefaultQueueCapacity, DefaultSlowConsumerTimeout)
	id, ch := f.Open([]marketdata.RIC{"A", "B"})

	f.Publish(update("A"))
	f.Publish(update("A"))
	f.Publish(update("A"))
	f.Publish(update("B"))
	f.Publish(update("C")) // not requested

	received := make([]marketdata.PriceUpdate, 0, 4)
	for i := 0; i < 4; i++ {
		select {
		case u := <-ch:
			received = append(received, u)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for update")
		}
	}
	require.Len(t, received, 4)
	require.Equal(t, marketdata.RIC("A"), received[0].RIC)
	require.Equal(t, marketdata.RIC("A"), received[1].RIC)
	require.Equal(t, marketdata.RIC("A"), received[2].RIC)
	require.Equal(t, marketdata.RIC("B"), received[3].RIC)

	select {
	case _, ok := <-ch:
		require.False(t, ok, "no more updates expected before close")
	default:
	}

	f.Close(id)
	f.Publish(update("A"))
	_, ok := <-ch
	require.False(t, ok, "channel should be closed after Close")
}

func TestSlowConsumerDropsThenEvicts(t *testing.T) {
	f := New(4, 30*time.Millisecond)
	id, ch := f.Open([]marketdata.RIC{"A"})
	_ = ch

	for i := 0; i < 10; i++ {
		f.Publish(update("A"))
	}
	dropped, ok := f.Dropped(id)
	require.True(t, ok)
	require.Equal(t, int64(6), dropped)

	time.Sleep(40 * time.Millisecond)
	for i := 0; i < 5; i++ {
		f.Publish(update("A"))
	}

	_, stillOpen := f.Dropped(id)
	require.False(t, stillOpen, "subscriber should have been evicted")

	_, open := <-ch
	require.False(t, open, "outbound channel should be closed on eviction")
}

func TestUnrequestedRICNotDelivered(t *testing.T) {
	f := New(DefaultQueueCapacity, DefaultSlowConsumerTimeout)
	_, ch := f.Open([]marketdata.RIC{"A"})

	f.Publish(update("Z"))

	select {
	case <-ch:
		t.Fatal("unexpected delivery for unrequested RIC")
	case <-time.After(20 * time.Millisecond):
	}
}
