package observability

import (
	"math"
	"time"
)

// Timings accumulates elapsed seconds per named bucket within one request.
// Repeated records into the same bucket add up, so multiple vector searches
// or executions land in a single figure.
type Timings map[string]float64

// Record adds the elapsed time since start to the named bucket and observes
// it on the phase histogram.
func (t Timings) Record(name string, start time.Time) {
	elapsed := time.Since(start).Seconds()
	t[name] = round2(t[name] + elapsed)
	PhaseDurationSeconds.WithLabelValues(name).Observe(elapsed)
}

// Get returns the bucket value, zero if absent.
func (t Timings) Get(name string) float64 {
	return t[name]
}

// Total returns the rounded sum over all buckets.
func (t Timings) Total() float64 {
	var sum float64
	for _, v := range t {
		sum += v
	}
	return round2(sum)
}

// Merge adds every bucket of other into t.
func (t Timings) Merge(other Timings) {
	for k, v := range other {
		t[k] = round2(t[k] + v)
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
