package resilience

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/reservoir-data/marketdata-core/go/marketdata"
	"github.com/stretchr/testify/require"
)

type failingService struct {
	calls      atomic.Int64
	failAlways bool
}

func (f *failingService) GetLatest(ctx context.Context, rics []marketdata.RIC) (map[marketdata.RIC]marketdata.Quote, error) {
	return nil, nil
}

func (f *failingService) Subscribe(ctx context.Context, rics []marketdata.RIC) (SubscribeResult, error) {
	f.calls.Add(1)
	if f.failAlways {
		return SubscribeResult{}, marketdata.ErrFeedUnavailable
	}
	return SubscribeResult{Subscribed: rics}, nil
}

func (f *failingService) Unsubscribe(ctx context.Context, rics []marketdata.RIC) (UnsubscribeResult, error) {
	return UnsubscribeResult{}, nil
}

func (f *failingService) Subscribed(ctx context.Context) ([]marketdata.RIC, error) {
	return nil, nil
}

func TestCircuitOpensAfterFailureThreshold(t *testing.T) {
	inner := &failingService{failAlways: true}
	cfg := DefaultConfig()
	cfg.BreakerWindowSize = 4
	cfg.FailureRatePct = 50
	cfg.RetryMaxAttempts = 1 // isolate the breaker: no retry noise.
	cfg.PermitsPerSecond = 1000
	cfg.Cooldown = 50 * time.Millisecond
	gate := New(inner, cfg)

	var sawOpen bool
	for i := 0; i < 20; i++ {
		_, err := gate.Subscribe(context.Background(), []marketdata.RIC{"IBM.N"})
		if errors.Is(err, marketdata.ErrCircuitOpen) {
			sawOpen = true
			break
		}
	}
	require.True(t, sawOpen, "expected circuit to open after sustained failures")

	callsBeforeCooldown := inner.calls.Load()
	_, err := gate.Subscribe(context.Background(), []marketdata.RIC{"IBM.N"})
	require.ErrorIs(t, err, marketdata.ErrCircuitOpen)
	require.Equal(t, callsBeforeCooldown, inner.calls.Load(), "breaker should fail fast without calling inner")

	time.Sleep(60 * time.Millisecond)
	inner.failAlways = false
	_, err = gate.Subscribe(context.Background(), []marketdata.RIC{"IBM.N"})
	require.NoError(t, err, "expected a probe call to succeed after cooldown")
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	inner := &failingService{}
	var attempt atomic.Int64
	inner.failAlways = false

	cfg := DefaultConfig()
	cfg.RetryMaxAttempts = 3
	cfg.RetryBaseBackoff = time.Millisecond
	cfg.PermitsPerSecond = 1000

	// Wrap inner to fail the first two calls, then succeed.
	wrapped := &flaky{base: inner, failures: 2, attempt: &attempt}
	gate2 := New(wrapped, cfg)

	_, err := gate2.Subscribe(context.Background(), []marketdata.RIC{"IBM.N"})
	require.NoError(t, err)
	require.Equal(t, int64(3), attempt.Load())
}

type flaky struct {
	base     *failingService
	failures int
	attempt  *atomic.Int64
}

func (f *flaky) GetLatest(ctx context.Context, rics []marketdata.RIC) (map[marketdata.RIC]marketdata.Quote, error) {
	return nil, nil
}
func (f *flaky) Subscribe(ctx context.Context, rics []marketdata.RIC) (SubscribeResult, error) {
	n := f.attempt.Add(1)
	if int(n) <= f.failures {
		return SubscribeResult{}, marketdata.ErrFeedUnavailable
	}
	return SubscribeResult{Subscribed: rics}, nil
}
func (f *flaky) Unsubscribe(ctx context.Context, rics []marketdata.RIC) (UnsubscribeResult, error) {
	return UnsubscribeResult{}, nil
}
func (f *flaky) Subscribed(ctx context.Context) ([]marketdata.RIC, error) { return nil, nil }

func TestRateLimiterBoundsAdmittedCalls(t *testing.T) {
	inner := &failingService{}
	cfg := DefaultConfig()
	cfg.PermitsPerSecond = 5
	cfg.AcquireTimeout = 10 * time.Millisecond
	cfg.RetryMaxAttempts = 1
	gate := New(inner, cfg)

	var rateLimited int
	for i := 0; i < 20; i++ {
		_, err := gate.Subscribe(context.Background(), []marketdata.RIC{"IBM.N"})
		if errors.Is(err, marketdata.ErrRateLimited) {
			rateLimited++
		}
	}
	require.Greater(t, rateLimited, 0, "expected some calls to be rate limited in a fast burst")
}
