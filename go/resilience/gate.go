package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/reservoir-data/marketdata-core/go/marketdata"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// Defaults from spec.md §6.
const (
	DefaultPermitsPerSecond   = 200
	DefaultAcquireTimeout     = 500 * time.Millisecond
	DefaultBreakerWindowSize  = 20
	DefaultFailureRatePct     = 50.0
	DefaultCooldown           = 30 * time.Second
	DefaultRetryMaxAttempts   = 3
	DefaultRetryBaseBackoff   = 100 * time.Millisecond
)

// Config configures the three policies layered onto the inner service.
type Config struct {
	PermitsPerSecond  int
	AcquireTimeout    time.Duration
	BreakerWindowSize uint32
	FailureRatePct    float64
	Cooldown          time.Duration
	RetryMaxAttempts  int
	RetryBaseBackoff  time.Duration
}

// DefaultConfig returns the spec.md §6 defaults.
func DefaultConfig() Config {
	return Config{
		PermitsPerSecond:  DefaultPermitsPerSecond,
		AcquireTimeout:    DefaultAcquireTimeout,
		BreakerWindowSize: DefaultBreakerWindowSize,
		FailureRatePct:    DefaultFailureRatePct,
		Cooldown:          DefaultCooldown,
		RetryMaxAttempts:  DefaultRetryMaxAttempts,
		RetryBaseBackoff:  DefaultRetryBaseBackoff,
	}
}

// Gate is the L4 ResilienceGate. It wraps an inner MarketDataService,
// outermost to innermost: rate limiter, circuit breaker, retry, delegate
// (spec.md §4.4).
type Gate struct {
	inner   MarketDataService
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	cfg     Config
}

// New builds a Gate around inner using cfg's policies.
func New(inner MarketDataService, cfg Config) *Gate {
	settings := gobreaker.Settings{
		Name:        "marketdata-gate",
		MaxRequests: 1, // HALF_OPEN probe batch size.
		Interval:    0, // Counts only reset on a state transition.
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.BreakerWindowSize {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio*100 >= cfg.FailureRatePct
		},
	}

	return &Gate{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(cfg.PermitsPerSecond), cfg.PermitsPerSecond),
		breaker: gobreaker.NewCircuitBreaker(settings),
		cfg:     cfg,
	}
}

// isTransient reports whether err is worth retrying: FeedUnavailable or an
// equivalent connection failure (spec.md §4.4).
func isTransient(err error) bool {
	return errors.Is(err, marketdata.ErrFeedUnavailable)
}

// call runs fn through the rate limiter, then the circuit breaker, with a
// retry loop nested inside the breaker's single counted execution
// (spec.md §4.4's stated outermost-to-innermost order:
// rate-limiter -> circuit-breaker -> retry -> delegate).
func (g *Gate) call(ctx context.Context, fn func(context.Context) error) error {
	acquireCtx, cancel := context.WithTimeout(ctx, g.cfg.AcquireTimeout)
	defer cancel()
	if err := g.limiter.Wait(acquireCtx); err != nil {
		return marketdata.ErrRateLimited
	}

	_, err := g.breaker.Execute(func() (interface{}, error) {
		return nil, g.retry(ctx, fn)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return marketdata.ErrCircuitOpen
	}
	return err
}

func (g *Gate) retry(ctx context.Context, fn func(context.Context) error) error {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = g.cfg.RetryBaseBackoff
	exp.MaxElapsedTime = 0 // bounded by RetryMaxAttempts instead of wall clock.

	var policy backoff.BackOff = backoff.WithMaxRetries(exp, uint64(g.cfg.RetryMaxAttempts-1))
	policy = backoff.WithContext(policy, ctx)

	var lastErr error
	op := func() error {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !isTransient(lastErr) {
			return backoff.Permanent(lastErr)
		}
		return lastErr
	}

	if err := backoff.Retry(op, policy); err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return perm.Unwrap()
		}
		return lastErr
	}
	return nil
}

// GetLatest wraps the inner service's GetLatest.
func (g *Gate) GetLatest(ctx context.Context, rics []marketdata.RIC) (map[marketdata.RIC]marketdata.Quote, error) {
	var out map[marketdata.RIC]marketdata.Quote
	err := g.call(ctx, func(ctx context.Context) error {
		var err error
		out, err = g.inner.GetLatest(ctx, rics)
		return err
	})
	return out, err
}

// Subscribe wraps the inner service's Subscribe.
func (g *Gate) Subscribe(ctx context.Context, rics []marketdata.RIC) (SubscribeResult, error) {
	var out SubscribeResult
	err := g.call(ctx, func(ctx context.Context) error {
		var err error
		out, err = g.inner.Subscribe(ctx, rics)
		return err
	})
	return out, err
}

// Unsubscribe wraps the inner service's Unsubscribe.
func (g *Gate) Unsubscribe(ctx context.Context, rics []marketdata.RIC) (UnsubscribeResult, error) {
	var out UnsubscribeResult
	err := g.call(ctx, func(ctx context.Context) error {
		var err error
		out, err = g.inner.Unsubscribe(ctx, rics)
		return err
	})
	return out, err
}

// Subscribed wraps the inner service's Subscribed.
func (g *Gate) Subscribed(ctx context.Context) ([]marketdata.RIC, error) {
	var out []marketdata.RIC
	err := g.call(ctx, func(ctx context.Context) error {
		var err error
		out, err = g.inner.Subscribed(ctx)
		return err
	})
	return out, err
}

var _ MarketDataService = (*Gate)(nil)
