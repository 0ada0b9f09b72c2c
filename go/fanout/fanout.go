// Package fanout implements L5: delivery of per-RIC price updates to any
// number of live server-push stream subscribers, with per-stream
// backpressure and a slow-consumer eviction policy (spec.md §4.5).
package fanout

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/reservoir-data/marketdata-core/go/marketdata"
	log "github.com/sirupsen/logrus"
)

// SubscriberState is a StreamSubscriber's lifecycle state.
type SubscriberState int32

const (
	StateActive SubscriberState = iota
	StateClosing
	StateClosed
)

// DefaultQueueCapacity is the default per-stream outbound bound.
const DefaultQueueCapacity = 256

// DefaultSlowConsumerTimeout is the default eviction threshold.
const DefaultSlowConsumerTimeout = 5 * time.Second

// subscriber is a live outbound push channel. It owns its outbound queue
// exclusively; no other goroutine writes to it.
type subscriber struct {
	id        string
	requested map[marketdata.RIC]struct{}
	outbound  chan marketdata.PriceUpdate

	state atomic.Int32
	closeOnce sync.Once

	mu               sync.Mutex
	dropped          int64
	firstSaturatedAt time.Time
}

// Fanout is the L5 StreamFanout.
type Fanout struct {
	queueCapacity       int
	slowConsumerTimeout time.Duration

	mu   sync.RWMutex
	subs map[string]*subscriber
}

// New builds a Fanout with the given per-stream queue capacity and
// slow-consumer eviction timeout.
func New(queueCapacity int, slowConsumerTimeout time.Duration) *Fanout {
	return &Fanout{
		queueCapacity:       queueCapacity,
		slowConsumerTimeout: slowConsumerTimeout,
		subs:                make(map[string]*subscriber),
	}
}

// Open registers a new stream subscriber requesting the given RICs and
// returns its id and a read-only view of its outbound channel.
func (f *Fanout) Open(requestedRics []marketdata.RIC) (string, <-chan marketdata.PriceUpdate) {
	reqSet := make(map[marketdata.RIC]struct{}, len(requestedRics))
	for _, r := range requestedRics {
		reqSet[r] = struct{}{}
	}

	sub := &subscriber{
		id:        uuid.NewString(),
		requested: reqSet,
		outbound:  make(chan marketdata.PriceUpdate, f.queueCapacity),
	}
	sub.state.Store(int32(StateActive))

	f.mu.Lock()
	f.subs[sub.id] = sub
	f.mu.Unlock()

	return sub.id, sub.outbound
}

// Close terminates subscriberId: the outbound channel is closed and
// readers observe end-of-stream. Safe to call more than once or for an
// unknown id.
func (f *Fanout) Close(subscriberID string) {
	f.mu.Lock()
	sub, ok := f.subs[subscriberID]
	if ok {
		delete(f.subs, subscriberID)
	}
	f.mu.Unlock()
	if ok {
		f.terminate(sub)
	}
}

func (f *Fanout) terminate(sub *subscriber) {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	sub.state.Store(int32(StateClosed))
	sub.closeOnce.Do(func() { close(sub.outbound) })
}

// Publish delivers update to every ACTIVE subscriber whose requested RIC
// set contains update.RIC. It never blocks: a full subscriber queue drops
// its oldest pending update rather than stalling the caller (spec.md
// §4.5's slow-consumer policy).
func (f *Fanout) Publish(update marketdata.PriceUpdate) {
	f.mu.RLock()
	snapshot := make([]*subscriber, 0, len(f.subs))
	for _, s := range f.subs {
		snapshot = append(snapshot, s)
	}
	f.mu.RUnlock()

	for _, sub := range snapshot {
		if SubscriberState(sub.state.Load()) != StateActive {
			continue
		}
		if _, wants := sub.requested[update.RIC]; !wants {
			continue
		}
		f.deliver(sub, update)
	}
}

func (f *Fanout) deliver(sub *subscriber, update marketdata.PriceUpdate) {
	// sub.mu is held from the state check through the sends, so terminate
	// cannot close the channel in between.
	sub.mu.Lock()
	if SubscriberState(sub.state.Load()) != StateActive {
		sub.mu.Unlock()
		return
	}
	select {
	case sub.outbound <- update:
		sub.firstSaturatedAt = time.Time{}
		sub.mu.Unlock()
		return
	default:
	}

	// Slow-consumer policy: drop the oldest pending update, enqueue the new one.
	select {
	case <-sub.outbound:
	default:
	}
	select {
	case sub.outbound <- update:
	default:
	}

	sub.dropped++
	if sub.firstSaturatedAt.IsZero() {
		sub.firstSaturatedAt = time.Now()
	}
	saturatedFor := time.Since(sub.firstSaturatedAt)
	sub.mu.Unlock()

	if saturatedFor >= f.slowConsumerTimeout {
		sub.state.Store(int32(StateClosing))
		log.WithField("subscriber", sub.id).Warn("evicting slow consumer")
		f.mu.Lock()
		delete(f.subs, sub.id)
		f.mu.Unlock()
		f.terminate(sub)
	}
}

// Dropped returns the number of updates dropped for subscriberId due to a
// saturated outbound queue.
func (f *Fanout) Dropped(subscriberID string) (int64, bool) {
	f.mu.RLock()
	sub, ok := f.subs[subscriberID]
	f.mu.RUnlock()
	if !ok {
		return 0, false
	}
	sub.mu.Lock()
	defer sub.mu.Unlock()
	return sub.dropped, true
}

// Count returns the number of currently open subscribers.
func (f *Fanout) Count() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}
