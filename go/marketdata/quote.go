// Package marketdata holds the domain types shared by every layer of the
// core: the instrument identifier, the immutable quote snapshot, and the
// price-update event published from the feed adapter to the fan-out and
// quality subsystems.
package marketdata

import "time"

// RIC is a Reservoir Instrument Code: an opaque, case-sensitive, non-empty
// identifier for one instrument. It is never mutated or parsed by the core.
type RIC string

// Price carries a price field both as a float64 (for arithmetic) and as the
// decimal text it was parsed from (for the Accuracy check in the validator,
// which must not be fooled by binary floating-point artifacts).
type Price struct {
	Value float64
	Text  string
}

// Quote is an immutable snapshot of one instrument at a point in time.
// Bid, Ask and Last are optional; a nil pointer means the field was absent
// from the upstream update. Quotes are never mutated after construction —
// a new update for the same RIC replaces, rather than edits, the prior one.
type Quote struct {
	RIC       RIC
	Bid       *Price
	Ask       *Price
	Last      *Price
	Volume    *int64
	Timestamp time.Time
}

// BidValue returns the bid as a float64 and whether it was present.
func (q *Quote) BidValue() (float64, bool) {
	if q.Bid == nil {
		return 0, false
	}
	return q.Bid.Value, true
}

// AskValue returns the ask as a float64 and whether it was present.
func (q *Quote) AskValue() (float64, bool) {
	if q.Ask == nil {
		return 0, false
	}
	return q.Ask.Value, true
}

// LastValue returns the last-traded price as a float64 and whether it was present.
func (q *Quote) LastValue() (float64, bool) {
	if q.Last == nil {
		return 0, false
	}
	return q.Last.Value, true
}

// PriceUpdate is the event FeedAdapter publishes synchronously to the
// validator and to the stream fan-out for every accepted upstream message.
type PriceUpdate struct {
	RIC   RIC
	Quote Quote
}
