// Package feed implements L3: the driver of an UpstreamFeed, translating
// its callbacks into canonical Quote values and routing them through the
// ingest queue and the publish path (spec.md §4.3).
package feed

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/reservoir-data/marketdata-core/go/ingestqueue"
	"github.com/reservoir-data/marketdata-core/go/marketdata"
	"github.com/reservoir-data/marketdata-core/go/quotecache"
	log "github.com/sirupsen/logrus"
)

// State is the FeedAdapter's lifecycle state (spec.md §4.3).
type State int32

const (
	StateNew State = iota
	StateStarting
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateStarting:
		return "STARTING"
	case StateRunning:
		return "RUNNING"
	case StateStopping:
		return "STOPPING"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// ValidationSink is the small capability the adapter uses to hand every
// accepted quote to the data-quality subsystem before fan-out (spec.md §9:
// "FeedAdapter holds a small list of sinks ... and invokes each
// synchronously"). Defined here so feed does not import the quality
// package, keeping the dependency direction L3 -> (nothing above it).
type ValidationSink interface {
	Observe(ric marketdata.RIC, q marketdata.Quote)
}

// FanoutSink is the second sink in the invocation order: validator, then
// fan-out.
type FanoutSink interface {
	Publish(update marketdata.PriceUpdate)
}

// Adapter is the L3 FeedAdapter.
type Adapter struct {
	feed      UpstreamFeed
	cfg       ConnectionConfig
	queue     *ingestqueue.Queue
	apply     ingestqueue.ApplyFunc
	validator ValidationSink
	fanout    FanoutSink

	pollTimeout time.Duration

	state atomic.Int32

	malformed atomic.Int64
	dispatchErrs atomic.Int64

	stopCh chan struct{}
	doneCh chan struct{}
}

// New builds a FeedAdapter. apply is called both by the ingest queue's
// workers and, on backpressure, inline on the dispatch goroutine, so it
// must be the same function installed as the queue's ApplyFunc.
func New(f UpstreamFeed, cfg ConnectionConfig, queue *ingestqueue.Queue, apply ingestqueue.ApplyFunc, validator ValidationSink, fanout FanoutSink, pollTimeout time.Duration) *Adapter {
	a := &Adapter{
		feed:        f,
		cfg:         cfg,
		queue:       queue,
		apply:       apply,
		validator:   validator,
		fanout:      fanout,
		pollTimeout: pollTimeout,
	}
	a.state.Store(int32(StateNew))
	return a
}

// State returns the adapter's current lifecycle state.
func (a *Adapter) State() State { return State(a.state.Load()) }

// Start opens the upstream session and spawns the dispatch loop. Start
// failures (connection, authentication) propagate to the caller; the
// service does not silently degrade.
func (a *Adapter) Start(ctx context.Context) error {
	a.state.Store(int32(StateStarting))

	if err := a.feed.Connect(a.cfg); err != nil {
		a.state.Store(int32(StateStopped))
		return fmt.Errorf("connecting to upstream feed: %w", err)
	}

	a.stopCh = make(chan struct{})
	a.doneCh = make(chan struct{})
	a.state.Store(int32(StateRunning))

	go a.dispatchLoop(ctx)
	return nil
}

// Stop transitions the adapter to STOPPING; the dispatch loop exits on its
// next poll, then the upstream session is closed.
func (a *Adapter) Stop() error {
	if a.State() != StateRunning {
		return nil
	}
	a.state.Store(int32(StateStopping))
	close(a.stopCh)
	<-a.doneCh
	a.state.Store(int32(StateStopped))
	return a.feed.Disconnect()
}

func (a *Adapter) dispatchLoop(ctx context.Context) {
	defer close(a.doneCh)
	for {
		select {
		case <-a.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		if err := a.feed.Dispatch(a.pollTimeout); err != nil {
			a.dispatchErrs.Add(1)
			log.WithField("err", err).Warn("upstream dispatch error")
		}
	}
}

// Register opens an upstream subscription for ric and wires its callback
// into the adapter's message-handling pipeline. It satisfies
// quotecache.HandleRegistrar. Only legal while RUNNING.
func (a *Adapter) Register(ric marketdata.RIC) (quotecache.Handle, error) {
	if a.State() != StateRunning {
		return nil, marketdata.ErrNotRunning
	}
	h, err := a.feed.RegisterClient(ric, func(msg Message) {
		a.onMessage(ric, msg)
	})
	if err != nil {
		return nil, fmt.Errorf("registering %s with upstream feed: %w", ric, err)
	}
	return h, nil
}

// Release closes the upstream subscription identified by handle. It
// satisfies quotecache.HandleRegistrar. Only legal while RUNNING.
func (a *Adapter) Release(handle quotecache.Handle) error {
	if a.State() != StateRunning {
		return marketdata.ErrNotRunning
	}
	fh, _ := handle.(FeedHandle)
	if err := a.feed.Unregister(fh); err != nil {
		return fmt.Errorf("releasing upstream handle: %w", err)
	}
	return nil
}

// onMessage implements the message-handling algorithm of spec.md §4.3.
func (a *Adapter) onMessage(ric marketdata.RIC, msg Message) {
	if msg.Kind == Status {
		return
	}
	if msg.Fields == nil {
		a.malformed.Add(1)
		return
	}

	q, err := parseQuote(ric, msg)
	if err != nil {
		a.malformed.Add(1)
		return
	}

	// d. synchronous validation, e. synchronous fan-out publish.
	if a.validator != nil {
		a.validator.Observe(ric, q)
	}
	if a.fanout != nil {
		a.fanout.Publish(marketdata.PriceUpdate{RIC: ric, Quote: q})
	}

	// f. enqueue, falling back to an inline apply under backpressure.
	task := ingestqueue.Task{RIC: ric, Quote: q, EnqueuedAt: time.Now()}
	if a.queue == nil || !a.queue.Offer(task) {
		a.apply(ric, q)
	}
}

// MalformedCount returns the number of inbound messages that carried no
// field list or had a field value that could not be parsed.
func (a *Adapter) MalformedCount() int64 { return a.malformed.Load() }

// parseQuote extracts the recognized fields by numeric id and builds a
// canonical Quote. Parse errors on an individual field are treated as a
// malformed message (spec.md §4.3a): the message is dropped as a whole
// rather than partially applied.
func parseQuote(ric marketdata.RIC, msg Message) (marketdata.Quote, error) {
	q := marketdata.Quote{RIC: ric}

	if p, ok, err := parsePrice(msg.Fields, FieldBID); err != nil {
		return marketdata.Quote{}, err
	} else if ok {
		q.Bid = p
	}
	if p, ok, err := parsePrice(msg.Fields, FieldASK); err != nil {
		return marketdata.Quote{}, err
	} else if ok {
		q.Ask = p
	}
	if p, ok, err := parsePrice(msg.Fields, FieldTRDPRC1); err != nil {
		return marketdata.Quote{}, err
	} else if ok {
		q.Last = p
	}
	if text, ok := msg.Fields[FieldACVOL1]; ok {
		v, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return marketdata.Quote{}, fmt.Errorf("parsing volume %q: %w", text, err)
		}
		q.Volume = &v
	}

	if msg.Timestamp != nil {
		q.Timestamp = *msg.Timestamp
	} else {
		q.Timestamp = time.Now().UTC()
	}
	return q, nil
}

func parsePrice(fields map[int]string, id int) (*marketdata.Price, bool, error) {
	text, ok := fields[id]
	if !ok {
		return nil, false, nil
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return nil, false, fmt.Errorf("parsing field %d %q: %w", id, text, err)
	}
	return &marketdata.Price{Value: v, Text: text}, true, nil
}

var _ quotecache.HandleRegistrar = (*Adapter)(nil)
