package feed

import (
	"sync"
	"time"

	"github.com/reservoir-data/marketdata-core/go/marketdata"
)

// Simulated is an in-memory UpstreamFeed used for local runs and tests. It
// stands in for the real upstream wire protocol, which spec.md §1 places
// out of scope: the core only needs the UpstreamFeed capability surface.
type Simulated struct {
	mu        sync.Mutex
	connected bool
	clients   map[*simClient]struct{}
	seq       int64
}

type simClient struct {
	ric marketdata.RIC
	cb  MessageCallback
}

// NewSimulated builds an empty Simulated feed.
func NewSimulated() *Simulated {
	return &Simulated{clients: make(map[*simClient]struct{})}
}

func (s *Simulated) Connect(cfg ConnectionConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = true
	return nil
}

func (s *Simulated) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	return nil
}

func (s *Simulated) RegisterClient(ric marketdata.RIC, cb MessageCallback) (FeedHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return nil, marketdata.ErrFeedUnavailable
	}
	c := &simClient{ric: ric, cb: cb}
	s.clients[c] = struct{}{}
	return c, nil
}

func (s *Simulated) Unregister(handle FeedHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := handle.(*simClient)
	if !ok {
		return marketdata.ErrInvalidArgument
	}
	delete(s.clients, c)
	return nil
}

// Dispatch is a no-op for Simulated: Push delivers messages immediately on
// the calling goroutine rather than queuing them for a later poll. It
// still honors the blocking contract by sleeping briefly so a dispatch
// loop calling it in a tight cycle doesn't spin.
func (s *Simulated) Dispatch(timeout time.Duration) error {
	time.Sleep(timeout)
	return nil
}

// Push delivers msg to every registered client for msg.RIC, as if it had
// just arrived over the wire. It is the test/demo hook used to drive
// end-to-end scenarios (spec.md §8, S1-S7).
func (s *Simulated) Push(msg Message) {
	s.mu.Lock()
	var targets []MessageCallback
	for c := range s.clients {
		if c.ric == msg.RIC {
			targets = append(targets, c.cb)
		}
	}
	s.mu.Unlock()

	for _, cb := range targets {
		cb(msg)
	}
}

var _ UpstreamFeed = (*Simulated)(nil)
