package quality

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the L6 MetricsSink: the fixed set of counters, gauges and
// timers named in spec.md §4.6.2, each registered against its own
// prometheus.Registry rather than the global default registry — metrics
// are a supervisor-owned value (spec.md §9), not a process global, so
// tests can build a fresh Metrics per case without fighting duplicate
// registration.
type Metrics struct {
	Registry *prometheus.Registry

	Valid            prometheus.Counter
	Invalid          prometheus.Counter
	Stale            prometheus.Counter
	Inconsistent     prometheus.Counter
	MissingFields    prometheus.Counter
	OutOfRange       prometheus.Counter
	ValidationErrors prometheus.Counter

	IssuesByDimension *prometheus.CounterVec
	IssuesByRIC       *prometheus.CounterVec

	QualityScore                 prometheus.Gauge
	SpreadPercentage              *prometheus.GaugeVec
	SubscriptionsActive           prometheus.Gauge
	BackpressureQueueUtilization  prometheus.Gauge
	ConnectionStatus               prometheus.Gauge

	ValidationDuration prometheus.Histogram

	scoreMu      sync.Mutex
	scoreWindow  []bool
	scoreHead    int
	windowLen    int
	currentScore float64
}

// DefaultWindowSize is the default number of recent validations the
// quality_score gauge is computed over, as the plain share of valid results
// in that sliding window (spec.md §4.6.2).
const DefaultWindowSize = 10_000

// NewMetrics builds a Metrics value with its own registry.
func NewMetrics(windowSize int) *Metrics {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	reg := prometheus.NewRegistry()
	fac := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		Valid: fac.NewCounter(prometheus.CounterOpts{
			Name: "quality_valid_total", Help: "count of updates that passed validation with no errors",
		}),
		Invalid: fac.NewCounter(prometheus.CounterOpts{
			Name: "quality_invalid_total", Help: "count of updates that failed validation with at least one error",
		}),
		Stale: fac.NewCounter(prometheus.CounterOpts{
			Name: "quality_stale_total", Help: "count of updates flagged stale by the timeliness check",
		}),
		Inconsistent: fac.NewCounter(prometheus.CounterOpts{
			Name: "quality_inconsistent_total", Help: "count of updates flagged by the consistency check",
		}),
		MissingFields: fac.NewCounter(prometheus.CounterOpts{
			Name: "quality_missing_fields_total", Help: "count of updates flagged by the completeness check",
		}),
		OutOfRange: fac.NewCounter(prometheus.CounterOpts{
			Name: "quality_out_of_range_total", Help: "count of updates with a price outside the configured range",
		}),
		ValidationErrors: fac.NewCounter(prometheus.CounterOpts{
			Name: "quality_validation_errors_total", Help: "count of SYSTEM-dimension validator failures",
		}),
		IssuesByDimension: fac.NewCounterVec(prometheus.CounterOpts{
			Name: "quality_issues_total", Help: "count of issues recorded, by dimension",
		}, []string{"dimension"}),
		IssuesByRIC: fac.NewCounterVec(prometheus.CounterOpts{
			Name: "quality_issues_by_ric_total", Help: "count of issues recorded, by RIC and dimension",
		}, []string{"ric", "dimension"}),
		QualityScore: fac.NewGauge(prometheus.GaugeOpts{
			Name: "quality_score", Help: "percentage of the last window_size validations that passed with no errors",
		}),
		SpreadPercentage: fac.NewGaugeVec(prometheus.GaugeOpts{
			Name: "quality_spread_percentage", Help: "most recent bid/ask spread percentage, by RIC",
		}, []string{"ric"}),
		SubscriptionsActive: fac.NewGauge(prometheus.GaugeOpts{
			Name: "quality_subscriptions_active", Help: "number of RICs currently subscribed",
		}),
		BackpressureQueueUtilization: fac.NewGauge(prometheus.GaugeOpts{
			Name: "quality_backpressure_queue_utilization", Help: "ingest queue length divided by its capacity",
		}),
		ConnectionStatus: fac.NewGauge(prometheus.GaugeOpts{
			Name: "quality_connection_status", Help: "1 if the upstream feed is connected, 0 otherwise",
		}),
		ValidationDuration: fac.NewHistogram(prometheus.HistogramOpts{
			Name: "quality_validation_duration_seconds", Help: "time spent in the validator per update",
			Buckets: prometheus.DefBuckets,
		}),

		windowLen: windowSize,
	}
}

// recordOutcome folds one validation outcome into the quality_score
// sliding window and updates the gauge.
func (m *Metrics) recordOutcome(valid bool) {
	m.scoreMu.Lock()
	defer m.scoreMu.Unlock()

	if len(m.scoreWindow) < m.windowLen {
		m.scoreWindow = append(m.scoreWindow, valid)
	} else {
		m.scoreWindow[m.scoreHead] = valid
		m.scoreHead = (m.scoreHead + 1) % m.windowLen
	}

	validCount := 0
	for _, v := range m.scoreWindow {
		if v {
			validCount++
		}
	}
	score := 100 * float64(validCount) / float64(len(m.scoreWindow))
	m.currentScore = score
	m.QualityScore.Set(score)
}

// Score returns the current quality_score value: 100 until the first
// validation has been recorded.
func (m *Metrics) Score() float64 {
	m.scoreMu.Lock()
	defer m.scoreMu.Unlock()
	if len(m.scoreWindow) == 0 {
		return 100
	}
	return m.currentScore
}
