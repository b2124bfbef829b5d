package latency

import (
	"math"
	"sort"
	"sync"
	"time"
)

// Distribution provides thread-safe latency tracking with percentile
// calculation over the complete sample set. Nothing is evicted: run-final
// percentiles must account for every recorded request, so this is a
// cumulative store rather than a rolling window.
type Distribution struct {
	mu      sync.RWMutex
	samples []float64 // latency values in milliseconds
	sum     float64
	min     float64
	max     float64
}

// NewDistribution creates a distribution, preallocating for the expected
// number of samples. hint <= 0 falls back to a small default.
func NewDistribution(hint int) *Distribution {
	if hint <= 0 {
		hint = 1024
	}
	return &Distribution{
		samples: make([]float64, 0, hint),
	}
}

// Record adds a latency measurement to the distribution.
func (d *Distribution) Record(duration time.Duration) {
	latencyMs := float64(duration.Nanoseconds()) / 1e6

	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.samples) == 0 || latencyMs < d.min {
		d.min = latencyMs
	}
	if latencyMs > d.max {
		d.max = latencyMs
	}
	d.sum += latencyMs
	d.samples = append(d.samples, latencyMs)
}

// Percentile calculates the specified percentile (0.0-1.0) from recorded
// latencies using linear interpolation between the bounding samples.
func (d *Distribution) Percentile(p float64) float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()

	size := len(d.samples)
	if size == 0 {
		return 0.0
	}

	values := make([]float64, size)
	copy(values, d.samples)
	sort.Float64s(values)

	index := p * float64(size-1)
	lower := int(math.Floor(index))
	upper := int(math.Ceil(index))

	if lower == upper {
		return values[lower]
	}

	weight := index - float64(lower)
	return values[lower]*(1-weight) + values[upper]*weight
}

// P50 returns the 50th percentile (median).
func (d *Distribution) P50() float64 { return d.Percentile(0.5) }

// P95 returns the 95th percentile.
func (d *Distribution) P95() float64 { return d.Percentile(0.95) }

// P99 returns the 99th percentile.
func (d *Distribution) P99() float64 { return d.Percentile(0.99) }

// Count returns the number of recorded measurements.
func (d *Distribution) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.samples)
}

// Reset clears all recorded latencies.
func (d *Distribution) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.samples = d.samples[:0]
	d.sum = 0
	d.min = 0
	d.max = 0
}

// Snapshot aggregates the distribution into reportable figures, all in
// milliseconds.
type Snapshot struct {
	Count int     `json:"count"`
	Min   float64 `json:"min_ms"`
	Avg   float64 `json:"avg_ms"`
	P50   float64 `json:"p50_ms"`
	P95   float64 `json:"p95_ms"`
	P99   float64 `json:"p99_ms"`
	Max   float64 `json:"max_ms"`
}

// Snapshot returns current figures for the distribution.
func (d *Distribution) Snapshot() Snapshot {
	d.mu.RLock()
	count := len(d.samples)
	sum := d.sum
	min := d.min
	max := d.max
	d.mu.RUnlock()

	snap := Snapshot{Count: count, Min: min, Max: max}
	if count > 0 {
		snap.Avg = sum / float64(count)
		snap.P50 = d.P50()
		snap.P95 = d.P95()
		snap.P99 = d.P99()
	}
	return snap
}

// Timer provides convenient latency measurement with automatic recording.
type Timer struct {
	dist  *Distribution
	start time.Time
}

// StartTimer begins a measurement that records into this distribution.
func (d *Distribution) StartTimer() *Timer {
	return &Timer{dist: d, start: time.Now()}
}

// Stop records the elapsed time and returns the duration.
func (t *Timer) Stop() time.Duration {
	duration := time.Since(t.start)
	t.dist.Record(duration)
	return duration
}
