package api

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/reservoir-data/marketdata-core/go/fanout"
	"github.com/reservoir-data/marketdata-core/go/marketdata"
	"github.com/reservoir-data/marketdata-core/go/quality"
	"github.com/stretchr/testify/require"
)

func newTestHandlers() *Handlers {
	tracker := quality.NewIssueTracker(10, 100)
	core := quality.NewCore(quality.DefaultConfig(), quality.NewMetrics(10), quality.NewAlertService(tracker, time.Hour))
	return &Handlers{
		Service: &fakeService{quotes: map[marketdata.RIC]marketdata.Quote{
			"VOD.L": {RIC: "VOD.L", Bid: &marketdata.Price{Value: 100, Text: "100"}, Timestamp: time.Now()},
		}},
		Fanout:          fanout.New(fanout.DefaultQueueCapacity, fanout.DefaultSlowConsumerTimeout),
		Quality:         core,
		IssueTracker:    tracker,
		MinQualityScore: 95,
	}
}

func TestServeGetLatestReturnsQuotes(t *testing.T) {
	h := newTestHandlers()
	srv := httptest.NewServer(Mux(h))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/quotes?rics=VOD.L")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]QuoteDTO
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Contains(t, body, "VOD.L")
	require.NotNil(t, body["VOD.L"].Bid)
	require.Equal(t, 100.0, *body["VOD.L"].Bid)
}

func TestServeSubscriptionsPostGetDelete(t *testing.T) {
	h := newTestHandlers()
	srv := httptest.NewServer(Mux(h))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/v1/subscriptions?rics=A,B", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	var sub SubscribeResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sub))
	resp.Body.Close()
	require.Equal(t, 2, sub.TotalSubscriptions)

	resp, err = http.Get(srv.URL + "/v1/subscriptions")
	require.NoError(t, err)
	var listed SubscribedResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&listed))
	resp.Body.Close()

	req, _ = http.NewRequest(http.MethodDelete, srv.URL+"/v1/subscriptions?rics=A", nil)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	var unsub UnsubscribeResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&unsub))
	resp.Body.Close()
	require.Equal(t, []string{"A"}, unsub.Unsubscribed)
}

func TestServeQualityHealthReflectsThreshold(t *testing.T) {
	h := newTestHandlers()
	srv := httptest.NewServer(Mux(h))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/quality/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode, "no evaluations yet: score defaults to 100")
}

func TestServeStreamPricesDeliversNDJSON(t *testing.T) {
	h := newTestHandlers()
	srv := httptest.NewServer(Mux(h))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/v1/stream?rics=A", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	// Give the handler a moment to register the subscriber, then publish.
	time.Sleep(20 * time.Millisecond)
	h.Fanout.Publish(marketdata.PriceUpdate{RIC: "A", Quote: marketdata.Quote{RIC: "A", Timestamp: time.Now()}})

	scanner := bufio.NewScanner(resp.Body)
	require.True(t, scanner.Scan())
	var dto QuoteDTO
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &dto))
	require.Equal(t, "A", dto.RIC)
}
