// Package api implements the transport-neutral request/response surface of
// spec.md §6: one Go method per operation, called by a thin net/http layer
// that only does JSON decode/encode and error-to-status mapping.
package api

import (
	"time"

	"github.com/reservoir-data/marketdata-core/go/marketdata"
)

// QuoteDTO is the wire shape of a Quote: ric, bid, ask, last, volume,
// timestamp (RFC-3339); missing price fields are omitted rather than
// serialized as zero (spec.md §6).
type QuoteDTO struct {
	RIC       string   `json:"ric"`
	Bid       *float64 `json:"bid,omitempty"`
	Ask       *float64 `json:"ask,omitempty"`
	Last      *float64 `json:"last,omitempty"`
	Volume    *int64   `json:"volume,omitempty"`
	Timestamp string   `json:"timestamp"`
}

func quoteToDTO(ric marketdata.RIC, q marketdata.Quote) QuoteDTO {
	dto := QuoteDTO{
		RIC:       string(ric),
		Volume:    q.Volume,
		Timestamp: q.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	if q.Bid != nil {
		dto.Bid = &q.Bid.Value
	}
	if q.Ask != nil {
		dto.Ask = &q.Ask.Value
	}
	if q.Last != nil {
		dto.Last = &q.Last.Value
	}
	return dto
}

// SubscribeResponse is the wire shape of a Subscribe result.
type SubscribeResponse struct {
	Subscribed         []string `json:"subscribed"`
	TotalSubscriptions int      `json:"totalSubscriptions"`
	Backpressure       bool     `json:"backpressure"`
}

// UnsubscribeResponse is the wire shape of an Unsubscribe result.
type UnsubscribeResponse struct {
	Unsubscribed           []string `json:"unsubscribed"`
	RemainingSubscriptions int      `json:"remainingSubscriptions"`
}

// SubscribedResponse is the wire shape of a Subscribed result.
type SubscribedResponse struct {
	RICs  []string `json:"rics"`
	Count int      `json:"count"`
}

// QualityScoreResponse is the wire shape of a QualityScore result.
type QualityScoreResponse struct {
	Score     float64 `json:"score"`
	Threshold float64 `json:"threshold"`
	Healthy   bool    `json:"healthy"`
}

// IssueRecordDTO is the wire shape of one quality.IssueRecord.
type IssueRecordDTO struct {
	RIC        string    `json:"ric"`
	Level      string    `json:"level"`
	Dimension  string    `json:"dimension"`
	Message    string    `json:"message"`
	RecordedAt time.Time `json:"recordedAt"`
}

func ricsToStrings(rics []marketdata.RIC) []string {
	out := make([]string, len(rics))
	for i, r := range rics {
		out[i] = string(r)
	}
	return out
}

func stringsToRics(ss []string) []marketdata.RIC {
	out := make([]marketdata.RIC, len(ss))
	for i, s := range ss {
		out[i] = marketdata.RIC(s)
	}
	return out
}
