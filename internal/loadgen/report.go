package loadgen

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"forecastdash/internal/telemetry/latency"
)

// ThresholdResult records one SLO check against the finished run.
type ThresholdResult struct {
	Name   string  `json:"name"`
	Limit  float64 `json:"limit"`
	Actual float64 `json:"actual"`
	Pass   bool    `json:"pass"`
}

// ProbeTally counts one secondary probe kind across a run.
type ProbeTally struct {
	Sent   int64 `json:"sent"`
	Failed int64 `json:"failed"`
}

// Result is the outcome of one load run. It is finalized once when the run
// ends and never amended.
type Result struct {
	RunID     string    `json:"run_id"`
	Target    string    `json:"target"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
	Seed      int64     `json:"seed"`

	Stages []RampStage `json:"stages"`

	Requests  int64   `json:"requests"`
	Errors    int64   `json:"errors"`
	ErrorRate float64 `json:"error_rate"`

	Latency latency.Snapshot `json:"latency"`

	Probes map[string]ProbeTally `json:"probes"`

	Checks []ThresholdResult `json:"checks"`
	Pass   bool              `json:"pass"`
}

// Evaluate fills Checks and Pass from the thresholds. Comparisons are
// strict less-than. A run with zero primary requests fails outright; it
// proves nothing about the service.
func (r *Result) Evaluate(t Thresholds) {
	r.Checks = r.Checks[:0]
	r.Checks = append(r.Checks, ThresholdResult{
		Name:   "p95_ms",
		Limit:  t.MaxP95Ms,
		Actual: r.Latency.P95,
		Pass:   r.Latency.P95 < t.MaxP95Ms,
	})
	if t.MaxP99Ms > 0 {
		r.Checks = append(r.Checks, ThresholdResult{
			Name:   "p99_ms",
			Limit:  t.MaxP99Ms,
			Actual: r.Latency.P99,
			Pass:   r.Latency.P99 < t.MaxP99Ms,
		})
	}
	r.Checks = append(r.Checks, ThresholdResult{
		Name:   "error_rate",
		Limit:  t.MaxErrorRate,
		Actual: r.ErrorRate,
		Pass:   r.ErrorRate < t.MaxErrorRate,
	})

	r.Pass = r.Requests > 0
	for _, c := range r.Checks {
		if !c.Pass {
			r.Pass = false
		}
	}
}

// Summary renders the plain-text block printed when a run ends.
func (r *Result) Summary() string {
	var b strings.Builder

	status := "PASS"
	if !r.Pass {
		status = "FAIL"
	}

	fmt.Fprintf(&b, "LOAD RUN REPORT  [%s]\n", status)
	fmt.Fprintf(&b, "  run id:     %s\n", r.RunID)
	fmt.Fprintf(&b, "  target:     %s\n", r.Target)
	fmt.Fprintf(&b, "  window:     %s -> %s (%.0fs)\n",
		r.StartedAt.Format(time.RFC3339),
		r.EndedAt.Format(time.RFC3339),
		r.EndedAt.Sub(r.StartedAt).Seconds(),
	)
	fmt.Fprintf(&b, "  seed:       %d\n", r.Seed)
	fmt.Fprintf(&b, "  requests:   %d (errors %d, error rate %.2f%%)\n", r.Requests, r.Errors, r.ErrorRate*100)
	fmt.Fprintf(&b, "  latency ms: p50=%.1f p95=%.1f p99=%.1f max=%.1f\n",
		r.Latency.P50, r.Latency.P95, r.Latency.P99, r.Latency.Max)

	for _, kind := range probeKinds {
		if tally, exists := r.Probes[kind]; exists {
			fmt.Fprintf(&b, "  probe %-8s sent=%d failed=%d\n", kind+":", tally.Sent, tally.Failed)
		}
	}

	b.WriteString("  checks:\n")
	for _, c := range r.Checks {
		mark := "PASS"
		if !c.Pass {
			mark = "FAIL"
		}
		fmt.Fprintf(&b, "    %-12s limit %-8.2f actual %-8.2f %s\n", c.Name, c.Limit, c.Actual, mark)
	}

	return b.String()
}

// WriteArtifact writes the JSON result into dir, named by run id, and
// returns the file path.
func (r *Result) WriteArtifact(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create artifact dir: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("loadrun_%s.json", r.RunID))
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal result: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write artifact: %w", err)
	}
	return path, nil
}
