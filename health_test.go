package conjecture

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type recordingReporter struct {
	fired []HealthKind
}

func (r *recordingReporter) FailHealthCheck(_ string, kind HealthKind) {
	r.fired = append(r.fired, kind)
}

func observeN(h *HealthMonitor, status Status, n int) {
	for i := 0; i < n; i++ {
		d := NewData(nil, 100, i, nil)
		d.SetStatus(status)
		h.Observe(d)
	}
}

// TestFilterTooMuch checks scenario S6: 50 INVALID observations fire
// filter_too_much exactly once, at the 50th.
func TestFilterTooMuch(t *testing.T) {
	reporter := &recordingReporter{}
	h := NewHealthMonitor(reporter)
	h.Activate()

	observeN(h, Invalid, 49)
	require.Empty(t, reporter.fired)

	observeN(h, Invalid, 1)
	require.Equal(t, []HealthKind{HealthFilterTooMuch}, reporter.fired)
}

func TestDataTooLargeFiresAtTwentyOverruns(t *testing.T) {
	reporter := &recordingReporter{}
	h := NewHealthMonitor(reporter)
	h.Activate()

	observeN(h, Overrun, 19)
	require.Empty(t, reporter.fired)
	observeN(h, Overrun, 1)
	require.Contains(t, reporter.fired, HealthDataTooLarge)
}

func TestMonitorDeactivatesAtTenValid(t *testing.T) {
	reporter := &recordingReporter{}
	h := NewHealthMonitor(reporter)
	h.Activate()
	require.True(t, h.Active())

	observeN(h, Valid, 9)
	require.True(t, h.Active())
	observeN(h, Valid, 1)
	require.False(t, h.Active())
}

func TestMonitorDeactivatesOnInteresting(t *testing.T) {
	reporter := &recordingReporter{}
	h := NewHealthMonitor(reporter)
	h.Activate()

	d := NewData(nil, 100, 1, nil)
	d.SetStatus(Interesting)
	h.Observe(d)
	require.False(t, h.Active())
}

func TestInactiveMonitorDoesNotAccumulate(t *testing.T) {
	reporter := &recordingReporter{}
	h := NewHealthMonitor(reporter)
	// never activated
	observeN(h, Invalid, 100)
	require.Empty(t, reporter.fired)
}

func TestHungTestExceeded(t *testing.T) {
	require.False(t, HungTestExceeded(time.Now()))
	require.True(t, HungTestExceeded(time.Now().Add(-(HungTestTimeLimitSeconds+1)*time.Second)))
}

func TestNopHealthCheckReporterDiscards(t *testing.T) {
	require.NotPanics(t, func() {
		NopHealthCheckReporter{}.FailHealthCheck("anything", HealthTooSlow)
	})
}
