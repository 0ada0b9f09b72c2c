package quality

import (
	"testing"
	"time"

	"github.com/reservoir-data/marketdata-core/go/marketdata"
	"github.com/stretchr/testify/require"
)

func TestAlertServiceRecordsEveryNonTrivialResult(t *testing.T) {
	tr := NewIssueTracker(10, 100)
	svc := NewAlertService(tr, time.Hour)
	ric := marketdata.RIC("AAA")

	svc.Handle(ric, errResult(Validity))
	svc.Handle(ric, errResult(Validity))

	require.Len(t, tr.IssuesSince(&ric, time.Hour), 2, "every non-trivial result is recorded regardless of throttling")
}

func TestAlertServiceSkipsEmptyResults(t *testing.T) {
	tr := NewIssueTracker(10, 100)
	svc := NewAlertService(tr, time.Hour)
	ric := marketdata.RIC("AAA")

	svc.Handle(ric, Result{ValidationTime: time.Now()})

	require.Len(t, tr.IssuesSince(&ric, time.Hour), 0)
}

func TestAlertServiceThrottlesRepeatedAlertsSameKey(t *testing.T) {
	tr := NewIssueTracker(10, 100)
	svc := NewAlertService(tr, time.Hour)
	ric := marketdata.RIC("AAA")

	svc.alert(ric, errResult(Validity))
	first := svc.lastAlerts[ric]
	svc.alert(ric, errResult(Validity))

	require.Equal(t, first, svc.lastAlerts[ric], "throttle window has not elapsed")
	require.Equal(t, 1, svc.suppressed[ric])
}

func TestAlertServiceAllowsAfterThrottleElapses(t *testing.T) {
	tr := NewIssueTracker(10, 100)
	svc := NewAlertService(tr, time.Millisecond)
	ric := marketdata.RIC("AAA")

	svc.alert(ric, errResult(Validity))
	time.Sleep(5 * time.Millisecond)
	svc.alert(ric, errResult(Validity))

	require.Equal(t, 0, svc.suppressed[ric], "suppressed count resets once an alert is allowed through")
}

func TestAlertServiceEmitsOneAlertForMultiDimensionResultSameRIC(t *testing.T) {
	tr := NewIssueTracker(10, 100)
	svc := NewAlertService(tr, time.Hour)
	ric := marketdata.RIC("AAA")

	result := Result{
		ValidationTime: time.Now(),
		Issues: []Issue{
			{Level: Warning, Dimension: Validity, Message: "price out of range"},
			{Level: Warning, Dimension: Consistency, Message: "spread too wide"},
		},
	}

	svc.Handle(ric, result)
	require.Len(t, tr.IssuesSince(&ric, time.Hour), 1)

	first := svc.lastAlerts[ric]
	require.False(t, first.IsZero())

	// A second multi-dimension result for the same RIC within the throttle
	// window must be suppressed as one alert, not one per dimension.
	svc.Handle(ric, result)
	require.Equal(t, first, svc.lastAlerts[ric], "still within throttle window")
	require.Equal(t, 1, svc.suppressed[ric], "exactly one alert suppressed, not one per dimension")
}
