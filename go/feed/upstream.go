package feed

import (
	"time"

	"github.com/reservoir-data/marketdata-core/go/marketdata"
)

// MessageKind distinguishes an initial snapshot from a delta, or an
// out-of-band connection status notice.
type MessageKind int

const (
	// Refresh is the initial full snapshot for a newly registered RIC.
	Refresh MessageKind = iota
	// Update is an incremental delta for an already-registered RIC.
	Update
	// Status is a connection-status notice unrelated to any single RIC.
	Status
)

// Field ids recognized from the upstream payload (spec.md §4.3b).
const (
	FieldBID      = 22
	FieldASK      = 25
	FieldTRDPRC1  = 6
	FieldACVOL1   = 32
)

// Message is one inbound notification from the upstream feed: a field list
// keyed by numeric field id, plus whichever timestamp the payload header
// carried (nil if the upstream omitted one, in which case the adapter uses
// its own clock).
type Message struct {
	Kind      MessageKind
	RIC       marketdata.RIC
	Fields    map[int]string
	Timestamp *time.Time
}

// FeedHandle is an opaque token returned by RegisterClient identifying one
// open upstream stream for one RIC.
type FeedHandle interface{}

// MessageCallback receives every Refresh/Update/Status message delivered
// for a registered RIC. It is invoked on the feed's dispatch goroutine and
// must not block.
type MessageCallback func(Message)

// UpstreamFeed is the external collaborator driving the wire connection to
// the market-data source. Its wire protocol is explicitly out of scope
// (spec.md §1); only this capability surface is specified.
type UpstreamFeed interface {
	// Connect opens the upstream session.
	Connect(cfg ConnectionConfig) error
	// RegisterClient opens one subscription stream for ric, delivering
	// messages to cb, and returns a handle identifying it.
	RegisterClient(ric marketdata.RIC, cb MessageCallback) (FeedHandle, error)
	// Unregister closes the subscription stream identified by handle.
	Unregister(handle FeedHandle) error
	// Dispatch blocks up to timeout pumping queued upstream messages to
	// their registered callbacks, returning nil if nothing was pending.
	Dispatch(timeout time.Duration) error
	// Disconnect closes the upstream session.
	Disconnect() error
}

// ConnectionConfig carries the connection parameters recognized by the
// core (spec.md §6: upstream.host/port/service/user).
type ConnectionConfig struct {
	Host    string
	Port    int
	Service string
	User    string
}
