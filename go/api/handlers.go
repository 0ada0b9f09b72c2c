package api

import (
	"context"
	"time"

	"github.com/reservoir-data/marketdata-core/go/fanout"
	"github.com/reservoir-data/marketdata-core/go/marketdata"
	"github.com/reservoir-data/marketdata-core/go/quality"
	"github.com/reservoir-data/marketdata-core/go/resilience"
)

// Handlers implements the seven request/response operations of spec.md §6
// plus StreamPrices, each a plain Go method so both the REST layer in this
// package and any future gRPC layer call the identical core logic.
type Handlers struct {
	Service         resilience.MarketDataService
	Fanout          *fanout.Fanout
	Quality         *quality.Core
	IssueTracker    *quality.IssueTracker
	MinQualityScore float64
}

// GetLatest implements the GetLatest operation.
func (h *Handlers) GetLatest(ctx context.Context, rics []marketdata.RIC) (map[string]QuoteDTO, error) {
	quotes, err := h.Service.GetLatest(ctx, rics)
	if err != nil {
		return nil, err
	}
	out := make(map[string]QuoteDTO, len(quotes))
	for ric, q := range quotes {
		out[string(ric)] = quoteToDTO(ric, q)
	}
	return out, nil
}

// Subscribe implements the Subscribe operation.
func (h *Handlers) Subscribe(ctx context.Context, rics []marketdata.RIC) (SubscribeResponse, error) {
	result, err := h.Service.Subscribe(ctx, rics)
	if err != nil {
		return SubscribeResponse{}, err
	}
	return SubscribeResponse{
		Subscribed:         ricsToStrings(result.Subscribed),
		TotalSubscriptions: result.TotalSubscriptions,
		Backpressure:       result.BackpressureQueued,
	}, nil
}

// Unsubscribe implements the Unsubscribe operation.
func (h *Handlers) Unsubscribe(ctx context.Context, rics []marketdata.RIC) (UnsubscribeResponse, error) {
	result, err := h.Service.Unsubscribe(ctx, rics)
	if err != nil {
		return UnsubscribeResponse{}, err
	}
	return UnsubscribeResponse{
		Unsubscribed:           ricsToStrings(result.Unsubscribed),
		RemainingSubscriptions: result.RemainingSubscriptions,
	}, nil
}

// Subscribed implements the Subscribed operation.
func (h *Handlers) Subscribed(ctx context.Context) (SubscribedResponse, error) {
	rics, err := h.Service.Subscribed(ctx)
	if err != nil {
		return SubscribedResponse{}, err
	}
	return SubscribedResponse{RICs: ricsToStrings(rics), Count: len(rics)}, nil
}

// StreamPrices implements the StreamPrices operation: it opens a
// fan-out subscription and returns its id and outbound channel; the
// transport layer drains the channel until it closes (eviction) or the
// caller disconnects, at which point it must call CloseStream.
func (h *Handlers) StreamPrices(rics []marketdata.RIC) (string, <-chan marketdata.PriceUpdate) {
	return h.Fanout.Open(rics)
}

// CloseStream terminates a StreamPrices subscription opened with StreamPrices.
func (h *Handlers) CloseStream(id string) {
	h.Fanout.Close(id)
}

// QualityScore implements the QualityScore operation. The optional ric
// parameter is accepted for API compatibility with spec.md §6 but the
// quality score itself is process-wide: there is no per-RIC quality_score
// window in this core.
func (h *Handlers) QualityScore(_ *marketdata.RIC) QualityScoreResponse {
	score := 100.0
	if h.Quality != nil {
		score = h.Quality.Score()
	}
	return QualityScoreResponse{
		Score:     score,
		Threshold: h.MinQualityScore,
		Healthy:   score >= h.MinQualityScore,
	}
}

// QualityIssues implements the QualityIssues operation.
func (h *Handlers) QualityIssues(ric *marketdata.RIC, hours float64) []IssueRecordDTO {
	if h.IssueTracker == nil {
		return nil
	}
	records := h.IssueTracker.IssuesSince(ric, time.Duration(hours*float64(time.Hour)))
	out := make([]IssueRecordDTO, 0, len(records))
	for _, rec := range records {
		for _, issue := range rec.Result.Issues {
			out = append(out, IssueRecordDTO{
				RIC:        string(rec.RIC),
				Level:      issue.Level.String(),
				Dimension:  issue.Dimension.String(),
				Message:    issue.Message,
				RecordedAt: rec.RecordedAt,
			})
		}
	}
	return out
}

// QualityHealth implements the QualityHealth operation: true iff the
// current quality score is at or above MinQualityScore.
func (h *Handlers) QualityHealth() bool {
	return h.QualityScore(nil).Healthy
}
