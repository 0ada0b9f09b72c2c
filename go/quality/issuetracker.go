package quality

import (
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/reservoir-data/marketdata-core/go/marketdata"
)

// DefaultIssuesPerRIC is the default per-RIC ring capacity.
const DefaultIssuesPerRIC = 100

// DefaultIssuesGlobal is the default global ring capacity.
const DefaultIssuesGlobal = 10_000

// DefaultTrackedRICs bounds how many distinct RICs' per-RIC rings are kept
// in memory at once; this is not named by spec.md (which bounds ring
// *depth*, not instrument *breadth*) but a real deployment subscribes to a
// bounded, though potentially large, instrument universe, so the per-RIC
// ring table itself is an LRU cache rather than an unbounded map.
const DefaultTrackedRICs = 50_000

// IssueRecord is one retained validation outcome.
type IssueRecord struct {
	RIC        marketdata.RIC
	Result     Result
	RecordedAt time.Time
}

// ring is a fixed-capacity circular buffer of IssueRecords.
type ring struct {
	mu   sync.Mutex
	buf  []IssueRecord
	next int
	full bool
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]IssueRecord, capacity)}
}

func (r *ring) add(rec IssueRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf[r.next] = rec
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
}

func (r *ring) snapshot() []IssueRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.full {
		out := make([]IssueRecord, r.next)
		copy(out, r.buf[:r.next])
		return out
	}
	out := make([]IssueRecord, len(r.buf))
	copy(out, r.buf[r.next:])
	copy(out[len(r.buf)-r.next:], r.buf[:r.next])
	return out
}

func (r *ring) trimOlderThan(cutoff time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	// Rebuild the ring keeping only records at or after cutoff, preserving
	// chronological order; a full rebuild is acceptable since this runs at
	// most once every 5 minutes (spec.md §4.6.3).
	var kept []IssueRecord
	count := len(r.buf)
	if !r.full {
		count = r.next
	}
	start := 0
	if r.full {
		start = r.next
	}
	for i := 0; i < count; i++ {
		rec := r.buf[(start+i)%len(r.buf)]
		if !rec.RecordedAt.Before(cutoff) {
			kept = append(kept, rec)
		}
	}
	r.buf = make([]IssueRecord, len(r.buf))
	r.next = 0
	r.full = false
	for _, rec := range kept {
		r.buf[r.next] = rec
		r.next = (r.next + 1) % len(r.buf)
		if r.next == 0 && len(kept) == len(r.buf) {
			r.full = true
		}
	}
}

// IssueTracker stores the last issuesPerRIC IssueRecords per RIC and the
// last issuesGlobal globally (spec.md §4.6.3).
type IssueTracker struct {
	issuesPerRIC int
	global       *ring
	perRIC       *lru.Cache[marketdata.RIC, *ring]
}

// NewIssueTracker builds an IssueTracker with the given ring capacities.
func NewIssueTracker(issuesPerRIC, issuesGlobal int) *IssueTracker {
	if issuesPerRIC <= 0 {
		issuesPerRIC = DefaultIssuesPerRIC
	}
	if issuesGlobal <= 0 {
		issuesGlobal = DefaultIssuesGlobal
	}
	cache, _ := lru.New[marketdata.RIC, *ring](DefaultTrackedRICs)
	return &IssueTracker{
		issuesPerRIC: issuesPerRIC,
		global:       newRing(issuesGlobal),
		perRIC:       cache,
	}
}

// RecordIssue appends result to both ric's ring and the global ring.
func (t *IssueTracker) RecordIssue(ric marketdata.RIC, result Result) {
	rec := IssueRecord{RIC: ric, Result: result, RecordedAt: result.ValidationTime}

	r, ok := t.perRIC.Get(ric)
	if !ok {
		r = newRing(t.issuesPerRIC)
		t.perRIC.Add(ric, r)
	}
	r.add(rec)
	t.global.add(rec)
}

// IssuesSince returns records no older than age. If ric is non-nil, only
// that RIC's ring is consulted; otherwise the global ring is used.
func (t *IssueTracker) IssuesSince(ric *marketdata.RIC, age time.Duration) []IssueRecord {
	cutoff := time.Now().Add(-age)
	var all []IssueRecord
	if ric != nil {
		if r, ok := t.perRIC.Get(*ric); ok {
			all = r.snapshot()
		}
	} else {
		all = t.global.snapshot()
	}

	out := all[:0:0]
	for _, rec := range all {
		if !rec.RecordedAt.Before(cutoff) {
			out = append(out, rec)
		}
	}
	return out
}

// TopOffenders returns the RICs with the most recorded issues in the last
// hour, ranked descending, truncated to limit.
func (t *IssueTracker) TopOffenders(limit int) []marketdata.RIC {
	counts := make(map[marketdata.RIC]int)
	for _, rec := range t.IssuesSince(nil, time.Hour) {
		counts[rec.RIC]++
	}

	rics := make([]marketdata.RIC, 0, len(counts))
	for r := range counts {
		rics = append(rics, r)
	}
	sort.Slice(rics, func(i, j int) bool {
		if counts[rics[i]] != counts[rics[j]] {
			return counts[rics[i]] > counts[rics[j]]
		}
		return rics[i] < rics[j]
	})
	if len(rics) > limit {
		rics = rics[:limit]
	}
	return rics
}

// Breakdown returns issue counts per dimension over the last hour.
func (t *IssueTracker) Breakdown() map[Dimension]int {
	out := make(map[Dimension]int)
	for _, rec := range t.IssuesSince(nil, time.Hour) {
		for _, issue := range rec.Result.Issues {
			out[issue.Dimension]++
		}
	}
	return out
}

// Clear removes history for ric, or for every RIC and the global ring if
// ric is nil.
func (t *IssueTracker) Clear(ric *marketdata.RIC) {
	if ric != nil {
		t.perRIC.Remove(*ric)
		return
	}
	t.perRIC.Purge()
	t.global = newRing(len(t.global.buf))
}

// Trim drops records older than maxAge from every ring. Intended to run
// from a periodic task every 5 minutes (spec.md §4.6.3).
func (t *IssueTracker) Trim(maxAge time.Duration) {
	cutoff := time.Now().Add(-maxAge)
	t.global.trimOlderThan(cutoff)
	for _, ric := range t.perRIC.Keys() {
		if r, ok := t.perRIC.Peek(ric); ok {
			r.trimOlderThan(cutoff)
		}
	}
}
