package quality

import (
	"sync"
	"time"

	"github.com/reservoir-data/marketdata-core/go/marketdata"
)

// Core is the L6 DataQualityCore: it validates every observed quote,
// records the outcome in Metrics, and forwards non-trivial results to an
// AlertService (spec.md §4.6). It satisfies feed.ValidationSink, so a
// FeedAdapter can hold a Core as its validator sink without feed importing
// this package (spec.md §9).
type Core struct {
	cfg     Config
	metrics *Metrics
	alerts  *AlertService

	clock func() time.Time

	mu    sync.RWMutex
	last  map[marketdata.RIC]Result
}

// NewCore builds a Core from cfg, metrics and alerts. metrics and alerts
// may each be nil, in which case Observe skips that step; the supervisor
// always wires metrics and wires alerts only when alerting is enabled.
func NewCore(cfg Config, metrics *Metrics, alerts *AlertService) *Core {
	return &Core{
		cfg:     cfg,
		metrics: metrics,
		alerts:  alerts,
		clock:   time.Now,
		last:    make(map[marketdata.RIC]Result),
	}
}

// Observe validates q, records the outcome into Metrics and IssueTracker
// (via AlertService), and retains the result for LastResult queries. It
// is synchronous and invoked inline on the feed adapter's dispatch path, so
// it must stay allocation-light (spec.md §9).
func (c *Core) Observe(ric marketdata.RIC, q marketdata.Quote) {
	start := c.clock()
	result := Validate(q, c.cfg, start)

	if c.metrics != nil {
		timer := c.clock().Sub(start)
		c.metrics.ValidationDuration.Observe(timer.Seconds())
		c.recordDimensionMetrics(ric, result)
		c.metrics.recordOutcome(result.IsValid())
		if bid, ok := q.BidValue(); ok {
			if ask, ok := q.AskValue(); ok && bid > 0 {
				c.metrics.SpreadPercentage.WithLabelValues(string(ric)).Set((ask - bid) / bid * 100)
			}
		}
	}

	if c.alerts != nil {
		c.alerts.Handle(ric, result)
	}

	c.mu.Lock()
	c.last[ric] = result
	c.mu.Unlock()
}

func (c *Core) recordDimensionMetrics(ric marketdata.RIC, result Result) {
	if result.IsValid() {
		c.metrics.Valid.Inc()
	} else {
		c.metrics.Invalid.Inc()
	}

	seenDim := make(map[Dimension]struct{}, len(result.Issues))
	for _, issue := range result.Issues {
		c.metrics.IssuesByDimension.WithLabelValues(issue.Dimension.String()).Inc()
		c.metrics.IssuesByRIC.WithLabelValues(string(ric), issue.Dimension.String()).Inc()

		if _, ok := seenDim[issue.Dimension]; !ok {
			seenDim[issue.Dimension] = struct{}{}
			switch issue.Dimension {
			case Timeliness:
				c.metrics.Stale.Inc()
			case Consistency:
				c.metrics.Inconsistent.Inc()
			case Completeness:
				c.metrics.MissingFields.Inc()
			case Validity:
				c.metrics.OutOfRange.Inc()
			case System:
				c.metrics.ValidationErrors.Inc()
			}
		}
	}
}

// Score returns the current quality_score (spec.md §4.6.2), or 100 if no
// Metrics sink is wired.
func (c *Core) Score() float64 {
	if c.metrics == nil {
		return 100
	}
	return c.metrics.Score()
}

// LastResult returns the most recent validation Result for ric, if any.
func (c *Core) LastResult(ric marketdata.RIC) (Result, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.last[ric]
	return r, ok
}

// Healthy reports whether the current quality score is at or above
// minScore — the basis of the QualityHealth operation (spec.md §6).
func (c *Core) Healthy(minScore float64) bool {
	return c.Score() >= minScore
}
