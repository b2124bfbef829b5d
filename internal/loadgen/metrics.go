package loadgen

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_model/go"

	"forecastdash/internal/telemetry/latency"
)

const (
	resultOK    = "ok"
	resultError = "error"

	probeMetrics = "metrics"
	probeCost    = "cost"
	probeHealth  = "health"
)

var probeKinds = []string{probeMetrics, probeCost, probeHealth}

// runMetrics aggregates one run's counters on a private registry, so
// repeated runs inside one process never collide. The prometheus histogram
// feeds the live /metrics listener; the exact distribution feeds the
// run-final percentiles.
type runMetrics struct {
	registry *prometheus.Registry

	requests *prometheus.CounterVec
	probes   *prometheus.CounterVec
	workers  prometheus.Gauge
	duration prometheus.Histogram

	durations *latency.Distribution
}

func newRunMetrics(sampleHint int) *runMetrics {
	m := &runMetrics{
		registry:  prometheus.NewRegistry(),
		durations: latency.NewDistribution(sampleHint),
	}

	m.requests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loadtest_requests_total",
			Help: "Primary forecast requests by result",
		},
		[]string{"result"},
	)
	m.probes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loadtest_probes_total",
			Help: "Secondary status probes by kind and result",
		},
		[]string{"kind", "result"},
	)
	m.workers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "loadtest_active_workers",
			Help: "Virtual users currently running",
		},
	)
	m.duration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "loadtest_request_duration_seconds",
			Help:    "Primary request wall-clock duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.2, 0.3, 0.5, 1.0, 2.5, 5.0, 10.0},
		},
	)

	m.registry.MustRegister(m.requests, m.probes, m.workers, m.duration)

	// Materialize the zero-valued series so a clean run still reports them.
	m.requests.WithLabelValues(resultOK)
	m.requests.WithLabelValues(resultError)
	for _, kind := range probeKinds {
		m.probes.WithLabelValues(kind, resultOK)
		m.probes.WithLabelValues(kind, resultError)
	}

	return m
}

// recordPrimary tallies one primary forecast request. Duration is recorded
// for failures too; slow errors are still slow.
func (m *runMetrics) recordPrimary(d time.Duration, ok bool) {
	result := resultOK
	if !ok {
		result = resultError
	}
	m.requests.WithLabelValues(result).Inc()
	m.duration.Observe(d.Seconds())
	m.durations.Record(d)
}

// recordProbe tallies one secondary status check.
func (m *runMetrics) recordProbe(kind string, ok bool) {
	result := resultOK
	if !ok {
		result = resultError
	}
	m.probes.WithLabelValues(kind, result).Inc()
}

// counterValue reads a counter the way the exposition format would report it.
func counterValue(c prometheus.Counter) float64 {
	var pb io_prometheus_client.Metric
	if err := c.Write(&pb); err != nil {
		return 0
	}
	return pb.GetCounter().GetValue()
}

// totals returns the primary request and error counts.
func (m *runMetrics) totals() (requests, errors int64) {
	if c, err := m.requests.GetMetricWithLabelValues(resultOK); err == nil {
		requests += int64(counterValue(c))
	}
	if c, err := m.requests.GetMetricWithLabelValues(resultError); err == nil {
		v := int64(counterValue(c))
		requests += v
		errors = v
	}
	return requests, errors
}

// probeTallies returns per-kind sent and failed counts.
func (m *runMetrics) probeTallies() map[string]ProbeTally {
	out := make(map[string]ProbeTally, len(probeKinds))
	for _, kind := range probeKinds {
		var tally ProbeTally
		if c, err := m.probes.GetMetricWithLabelValues(kind, resultOK); err == nil {
			tally.Sent += int64(counterValue(c))
		}
		if c, err := m.probes.GetMetricWithLabelValues(kind, resultError); err == nil {
			v := int64(counterValue(c))
			tally.Sent += v
			tally.Failed = v
		}
		out[kind] = tally
	}
	return out
}

// handler serves this run's registry in Prometheus exposition format.
func (m *runMetrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
