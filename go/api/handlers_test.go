package api

import (
	"context"

	"github.com/reservoir-data/marketdata-core/go/marketdata"
	"github.com/reservoir-data/marketdata-core/go/resilience"
)

// fakeService is a minimal resilience.MarketDataService test double.
type fakeService struct {
	quotes       map[marketdata.RIC]marketdata.Quote
	getLatestErr error
	subscribeErr error
}

func (f *fakeService) GetLatest(_ context.Context, rics []marketdata.RIC) (map[marketdata.RIC]marketdata.Quote, error) {
	if f.getLatestErr != nil {
		return nil, f.getLatestErr
	}
	out := make(map[marketdata.RIC]marketdata.Quote, len(rics))
	for _, r := range rics {
		if q, ok := f.quotes[r]; ok {
			out[r] = q
		}
	}
	return out, nil
}

func (f *fakeService) Subscribe(_ context.Context, rics []marketdata.RIC) (resilience.SubscribeResult, error) {
	if f.subscribeErr != nil {
		return resilience.SubscribeResult{}, f.subscribeErr
	}
	return resilience.SubscribeResult{Subscribed: rics, TotalSubscriptions: len(rics)}, nil
}

func (f *fakeService) Unsubscribe(_ context.Context, rics []marketdata.RIC) (resilience.UnsubscribeResult, error) {
	return resilience.UnsubscribeResult{Unsubscribed: rics}, nil
}

func (f *fakeService) Subscribed(_ context.Context) ([]marketdata.RIC, error) {
	rics := make([]marketdata.RIC, 0, len(f.quotes))
	for r := range f.quotes {
		rics = append(rics, r)
	}
	return rics, nil
}

var _ resilience.MarketDataService = (*fakeService)(nil)
