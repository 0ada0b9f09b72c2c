// Package resilience implements L4: the ResilienceGate, a decorator
// imposing rate-limiting, circuit-breaking and retry on the
// outward-facing MarketDataService (spec.md §4.4).
package resilience

import (
	"context"

	"github.com/reservoir-data/marketdata-core/go/marketdata"
)

// SubscribeResult is the outcome of a Subscribe call.
type SubscribeResult struct {
	Subscribed          []marketdata.RIC
	TotalSubscriptions  int
	BackpressureQueued  bool
}

// UnsubscribeResult is the outcome of an Unsubscribe call.
type UnsubscribeResult struct {
	Unsubscribed          []marketdata.RIC
	RemainingSubscriptions int
}

// MarketDataService is the outward-facing capability the gate wraps. The
// cache-backed implementation (go/runtime) and the gate itself both
// satisfy it, letting callers treat a wrapped or bare service
// interchangeably (spec.md §9's "capabilities, not classes").
type MarketDataService interface {
	GetLatest(ctx context.Context, rics []marketdata.RIC) (map[marketdata.RIC]marketdata.Quote, error)
	Subscribe(ctx context.Context, rics []marketdata.RIC) (SubscribeResult, error)
	Unsubscribe(ctx context.Context, rics []marketdata.RIC) (UnsubscribeResult, error)
	Subscribed(ctx context.Context) ([]marketdata.RIC, error)
}
