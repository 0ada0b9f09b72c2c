// Package quality implements L6: the DataQualityCore — a synchronous
// validator, a metrics sink, a bounded issue history, and a throttled
// alerter, invoked on every accepted update (spec.md §4.6).
package quality

import (
	"fmt"
	"strings"
	"time"

	"github.com/reservoir-data/marketdata-core/go/marketdata"
)

// Level is an issue's severity.
type Level int

const (
	Warning Level = iota
	Error
)

func (l Level) String() string {
	if l == Error {
		return "ERROR"
	}
	return "WARNING"
}

// Dimension is one of the five data-quality axes.
type Dimension int

const (
	Completeness Dimension = iota
	Validity
	Consistency
	Timeliness
	Accuracy
	System
)

func (d Dimension) String() string {
	switch d {
	case Completeness:
		return "COMPLETENESS"
	case Validity:
		return "VALIDITY"
	case Consistency:
		return "CONSISTENCY"
	case Timeliness:
		return "TIMELINESS"
	case Accuracy:
		return "ACCURACY"
	case System:
		return "SYSTEM"
	default:
		return "UNKNOWN"
	}
}

// Issue is a single validation finding.
type Issue struct {
	Level     Level
	Dimension Dimension
	Message   string
}

// Result is the outcome of validating one quote.
type Result struct {
	Issues         []Issue
	ValidationTime time.Time
}

// ErrorCount returns the number of ERROR-level issues.
func (r Result) ErrorCount() int {
	n := 0
	for _, i := range r.Issues {
		if i.Level == Error {
			n++
		}
	}
	return n
}

// WarningCount returns the number of WARNING-level issues.
func (r Result) WarningCount() int {
	n := 0
	for _, i := range r.Issues {
		if i.Level == Warning {
			n++
		}
	}
	return n
}

// IsValid is true iff there are no ERROR-level issues.
func (r Result) IsValid() bool { return r.ErrorCount() == 0 }

// Config is the validator's tunable thresholds (spec.md §6).
type Config struct {
	MinPrice          float64
	MaxPrice          float64
	MaxSpreadPercentage float64
	MaxAge            time.Duration
	MaxDecimalPlaces  int
}

// DefaultConfig returns the spec.md §6 defaults.
func DefaultConfig() Config {
	return Config{
		MinPrice:            0.01,
		MaxPrice:             1_000_000,
		MaxSpreadPercentage:  10.0,
		MaxAge:               60 * time.Second,
		MaxDecimalPlaces:     6,
	}
}

// Validate runs the five dimension checks, in order, against q and
// returns every issue found. It is a pure function: no I/O, no metrics,
// no issue recording — those are the caller's responsibility
// (spec.md §4.6.1).
func Validate(q marketdata.Quote, cfg Config, now time.Time) Result {
	var issues []Issue

	issues = append(issues, checkCompleteness(q)...)
	issues = append(issues, checkValidity(q, cfg)...)
	issues = append(issues, checkConsistency(q, cfg)...)
	issues = append(issues, checkTimeliness(q, cfg, now)...)
	issues = append(issues, checkAccuracy(q, cfg)...)

	return Result{Issues: issues, ValidationTime: now}
}

func checkCompleteness(q marketdata.Quote) []Issue {
	var issues []Issue
	if q.Bid == nil {
		issues = append(issues, Issue{Error, Completeness, "bid is missing"})
	}
	if q.Ask == nil {
		issues = append(issues, Issue{Error, Completeness, "ask is missing"})
	}
	if q.Last == nil {
		issues = append(issues, Issue{Error, Completeness, "last is missing"})
	}
	if q.Timestamp.IsZero() {
		issues = append(issues, Issue{Error, Completeness, "timestamp is missing"})
	}
	return issues
}

func checkValidity(q marketdata.Quote, cfg Config) []Issue {
	var issues []Issue
	for _, np := range pricesByName(q) {
		name, p := np.name, np.price
		if p.Value <= 0 {
			issues = append(issues, Issue{Error, Validity, fmt.Sprintf("%s %.6f is not positive", name, p.Value)})
			continue
		}
		if p.Value < cfg.MinPrice || p.Value > cfg.MaxPrice {
			issues = append(issues, Issue{Warning, Validity, fmt.Sprintf("%s %.6f is outside [%.2f, %.2f]", name, p.Value, cfg.MinPrice, cfg.MaxPrice)})
		}
	}
	if q.Volume != nil && *q.Volume < 0 {
		issues = append(issues, Issue{Error, Validity, fmt.Sprintf("volume %d is negative", *q.Volume)})
	}
	return issues
}

func checkConsistency(q marketdata.Quote, cfg Config) []Issue {
	var issues []Issue
	bid, hasBid := q.BidValue()
	ask, hasAsk := q.AskValue()
	last, hasLast := q.LastValue()

	if hasBid && hasAsk && bid > ask {
		issues = append(issues, Issue{Error, Consistency, fmt.Sprintf("bid %.6f exceeds ask %.6f", bid, ask)})
	}
	if hasLast && hasBid && last < bid {
		issues = append(issues, Issue{Warning, Consistency, fmt.Sprintf("last %.6f is below bid %.6f", last, bid)})
	}
	if hasLast && hasAsk && last > ask {
		issues = append(issues, Issue{Warning, Consistency, fmt.Sprintf("last %.6f is above ask %.6f", last, ask)})
	}
	if hasBid && hasAsk && bid > 0 {
		spreadPct := (ask - bid) / bid * 100
		if spreadPct > cfg.MaxSpreadPercentage {
			issues = append(issues, Issue{Warning, Consistency, fmt.Sprintf("spread %.2f%% exceeds %.2f%%", spreadPct, cfg.MaxSpreadPercentage)})
		}
	}
	return issues
}

func checkTimeliness(q marketdata.Quote, cfg Config, now time.Time) []Issue {
	var issues []Issue
	if q.Timestamp.IsZero() {
		return issues // already flagged by Completeness
	}
	if now.Sub(q.Timestamp) > cfg.MaxAge {
		issues = append(issues, Issue{Warning, Timeliness, fmt.Sprintf("quote age %s exceeds %s", now.Sub(q.Timestamp), cfg.MaxAge)})
	}
	if q.Timestamp.After(now) {
		issues = append(issues, Issue{Warning, Timeliness, "quote timestamp is in the future"})
	}
	return issues
}

func checkAccuracy(q marketdata.Quote, cfg Config) []Issue {
	var issues []Issue
	for _, np := range pricesByName(q) {
		name, p := np.name, np.price
		if fractionalDigits(p.Text) > cfg.MaxDecimalPlaces {
			issues = append(issues, Issue{Warning, Accuracy, fmt.Sprintf("%s %q has more than %d decimal places", name, p.Text, cfg.MaxDecimalPlaces)})
		}
	}
	return issues
}

type namedPrice struct {
	name  string
	price *marketdata.Price
}

func pricesByName(q marketdata.Quote) []namedPrice {
	out := make([]namedPrice, 0, 3)
	if q.Bid != nil {
		out = append(out, namedPrice{"bid", q.Bid})
	}
	if q.Ask != nil {
		out = append(out, namedPrice{"ask", q.Ask})
	}
	if q.Last != nil {
		out = append(out, namedPrice{"last", q.Last})
	}
	return out
}

// fractionalDigits counts the digits after the decimal point in text,
// operating on the original decimal text rather than the parsed float so
// binary floating-point artifacts (e.g. 150.1 rendering as
// 150.099999999999994) never produce a false ACCURACY warning
// (spec.md §9).
func fractionalDigits(text string) int {
	idx := strings.IndexByte(text, '.')
	if idx == -1 {
		return 0
	}
	return len(text) - idx - 1
}
