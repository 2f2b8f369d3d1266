package conjecture

import "time"

// HealthKind identifies which statistical watchdog fired.
type HealthKind string

const (
	HealthHungTest         HealthKind = "hung_test"
	HealthDataTooLarge     HealthKind = "data_too_large"
	HealthFilterTooMuch    HealthKind = "filter_too_much"
	HealthTooSlow          HealthKind = "too_slow"
	HealthLargeBaseExample HealthKind = "large_base_example"
)

// HealthCheckReporter is the collaborator that decides what to do with a
// fired health check (raise, log, ignore). The engine only reports
// conditions; policy lives entirely with the reporter.
type HealthCheckReporter interface {
	FailHealthCheck(message string, kind HealthKind)
}

// NopHealthCheckReporter discards every health check. It is the default
// when callers don't supply one.
type NopHealthCheckReporter struct{}

func (NopHealthCheckReporter) FailHealthCheck(string, HealthKind) {}

// HealthMonitor accumulates per-status counts and cumulative draw time
// over the first few examples of a run (C5), firing a health check at
// fixed thresholds and deactivating once enough valid examples have been
// seen or an interesting example appears.
type HealthMonitor struct {
	active          bool
	validExamples   int
	invalidExamples int
	overrunExamples int
	drawTimeNanos   int64
	startedAt       time.Time
	reporter        HealthCheckReporter
}

// NewHealthMonitor constructs an inactive monitor; call Activate to start
// accumulating.
func NewHealthMonitor(reporter HealthCheckReporter) *HealthMonitor {
	if reporter == nil {
		reporter = NopHealthCheckReporter{}
	}
	return &HealthMonitor{reporter: reporter}
}

// Activate starts the monitor accumulating from the next observed example.
func (h *HealthMonitor) Activate() {
	h.active = true
	h.startedAt = time.Now()
}

// Active reports whether the monitor is still accumulating.
func (h *HealthMonitor) Active() bool {
	return h.active
}

// Observe records one test case's outcome and draw time, firing health
// checks at their fixed thresholds, and deactivates the monitor once
// enough valid examples are seen or the result is INTERESTING.
func (h *HealthMonitor) Observe(data *Data) {
	if !h.active {
		return
	}

	switch data.Status() {
	case Valid:
		h.validExamples++
	case Invalid:
		h.invalidExamples++
	case Overrun:
		h.overrunExamples++
	}
	h.drawTimeNanos += data.DrawTimeNanos()

	if h.overrunExamples == 20 {
		h.reporter.FailHealthCheck("too many examples overran the buffer", HealthDataTooLarge)
	}
	if h.invalidExamples == 50 {
		h.reporter.FailHealthCheck("the test function is filtering out too many examples", HealthFilterTooMuch)
	}
	if float64(h.drawTimeNanos)/1e9 > 1.0 && h.validExamples < 10 {
		h.reporter.FailHealthCheck("data generation is too slow", HealthTooSlow)
	}

	if data.Status() == Interesting || h.validExamples == 10 {
		h.active = false
	}
}

// HungTestExceeded reports whether wall-clock time since start exceeds
// HungTestTimeLimitSeconds; checked before every test call, independent of
// whether the monitor is active.
func HungTestExceeded(start time.Time) bool {
	return time.Since(start) > time.Duration(HungTestTimeLimitSeconds)*time.Second
}
