// Package runtime wires L1-L7 into one running process: the bare
// MarketDataService backed by QuoteCache, the Config struct recognized by
// the core, and the LifecycleSupervisor that starts and stops every layer
// in order (spec.md §4.7).
package runtime

import (
	"context"

	"github.com/reservoir-data/marketdata-core/go/fanout"
	"github.com/reservoir-data/marketdata-core/go/marketdata"
	"github.com/reservoir-data/marketdata-core/go/quotecache"
	"github.com/reservoir-data/marketdata-core/go/resilience"
)

// Service is the bare, un-wrapped MarketDataService: QuoteCache for reads
// and subscription bookkeeping, and the ingest queue's fill level for the
// backpressure flag on Subscribe's response. The fan-out it holds is not
// consulted by any of its operations. It is the innermost delegate the
// ResilienceGate decorates (spec.md §4.4).
type Service struct {
	cache  *quotecache.Cache
	queue  queueStats
	fanout *fanout.Fanout
}

// queueStats is the small capability Service needs from the ingest queue:
// just enough to report backpressure on Subscribe, without importing the
// whole ingestqueue package's construction surface.
type queueStats interface {
	Len() int
	Capacity() int
}

// NewService builds a Service over cache, queue and fanout.
func NewService(cache *quotecache.Cache, queue queueStats, fo *fanout.Fanout) *Service {
	return &Service{cache: cache, queue: queue, fanout: fo}
}

// GetLatest returns the latest quote for every RIC in rics that is present.
func (s *Service) GetLatest(_ context.Context, rics []marketdata.RIC) (map[marketdata.RIC]marketdata.Quote, error) {
	if len(rics) == 0 {
		return nil, marketdata.ErrInvalidArgument
	}
	return s.cache.GetLatest(rics), nil
}

// Subscribe opens an upstream handle for each RIC in rics (idempotent per
// RIC) and reports the service's total subscription count afterward.
func (s *Service) Subscribe(_ context.Context, rics []marketdata.RIC) (resilience.SubscribeResult, error) {
	if len(rics) == 0 {
		return resilience.SubscribeResult{}, marketdata.ErrInvalidArgument
	}

	subscribed := make([]marketdata.RIC, 0, len(rics))
	for _, ric := range rics {
		if err := s.cache.OpenHandle(ric); err != nil {
			return resilience.SubscribeResult{}, err
		}
		subscribed = append(subscribed, ric)
	}

	backpressure := false
	if s.queue != nil && s.queue.Capacity() > 0 {
		backpressure = s.queue.Len() >= s.queue.Capacity()
	}

	return resilience.SubscribeResult{
		Subscribed:         subscribed,
		TotalSubscriptions: len(s.cache.Subscribed()),
		BackpressureQueued: backpressure,
	}, nil
}

// Unsubscribe releases the upstream handle for each RIC in rics.
func (s *Service) Unsubscribe(_ context.Context, rics []marketdata.RIC) (resilience.UnsubscribeResult, error) {
	if len(rics) == 0 {
		return resilience.UnsubscribeResult{}, marketdata.ErrInvalidArgument
	}

	unsubscribed := make([]marketdata.RIC, 0, len(rics))
	for _, ric := range rics {
		if err := s.cache.CloseHandle(ric); err != nil {
			return resilience.UnsubscribeResult{}, err
		}
		unsubscribed = append(unsubscribed, ric)
	}

	return resilience.UnsubscribeResult{
		Unsubscribed:           unsubscribed,
		RemainingSubscriptions: len(s.cache.Subscribed()),
	}, nil
}

// Subscribed returns the currently subscribed RIC set.
func (s *Service) Subscribed(_ context.Context) ([]marketdata.RIC, error) {
	return s.cache.Subscribed(), nil
}

var _ resilience.MarketDataService = (*Service)(nil)
