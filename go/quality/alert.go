package quality

import (
	"strings"
	"sync"
	"time"

	"github.com/reservoir-data/marketdata-core/go/marketdata"
	log "github.com/sirupsen/logrus"
)

// DefaultAlertThrottle is the minimum interval between two emitted alerts
// for the same RIC (spec.md §4.6.4).
const DefaultAlertThrottle = 60 * time.Second

// AlertService wraps IssueTracker.RecordIssue: every non-trivial result
// (one with at least a WARNING) is always recorded, but the structured-log
// emission for a given RIC is throttled so a persistently misbehaving feed
// doesn't flood the log — at most one alert per RIC per throttle window,
// regardless of how many dimensions or issues that result carries
// (spec.md §4.6.4, the "at most one alert" property).
type AlertService struct {
	tracker  *IssueTracker
	throttle time.Duration

	mu         sync.Mutex
	lastAlerts map[marketdata.RIC]time.Time
	suppressed map[marketdata.RIC]int
}

// NewAlertService builds an AlertService recording into tracker and
// throttling repeat alerts to at most one per throttle interval per RIC.
func NewAlertService(tracker *IssueTracker, throttle time.Duration) *AlertService {
	if throttle <= 0 {
		throttle = DefaultAlertThrottle
	}
	return &AlertService{
		tracker:    tracker,
		throttle:   throttle,
		lastAlerts: make(map[marketdata.RIC]time.Time),
		suppressed: make(map[marketdata.RIC]int),
	}
}

// Handle records result against ric and emits at most one throttled,
// structured-log alert aggregating every distinct dimension the result
// touched.
func (a *AlertService) Handle(ric marketdata.RIC, result Result) {
	if len(result.Issues) == 0 {
		return
	}
	a.tracker.RecordIssue(ric, result)
	a.alert(ric, result)
}

func (a *AlertService) alert(ric marketdata.RIC, result Result) {
	now := time.Now()

	a.mu.Lock()
	last, ok := a.lastAlerts[ric]
	if ok && now.Sub(last) < a.throttle {
		a.suppressed[ric]++
		a.mu.Unlock()
		return
	}
	suppressedCount := a.suppressed[ric]
	a.suppressed[ric] = 0
	a.lastAlerts[ric] = now
	a.mu.Unlock()

	dimensions := make([]string, 0, len(result.Issues))
	messages := make([]string, 0, len(result.Issues))
	worst := Warning
	seen := make(map[Dimension]struct{}, len(result.Issues))
	for _, issue := range result.Issues {
		if _, already := seen[issue.Dimension]; !already {
			seen[issue.Dimension] = struct{}{}
			dimensions = append(dimensions, issue.Dimension.String())
		}
		messages = append(messages, issue.Message)
		if issue.Level == Error {
			worst = Error
		}
	}

	entry := log.WithFields(log.Fields{
		"ric":        ric,
		"dimensions": dimensions,
		"level":      worst.String(),
	})
	if suppressedCount > 0 {
		entry = entry.WithField("suppressed", suppressedCount)
	}
	message := strings.Join(messages, "; ")
	if worst == Error {
		entry.Error(message)
	} else {
		entry.Warn(message)
	}
}
