package loadgen

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"forecastdash/internal/api"
)

// RampStage is one step of the worker ramp: hold the target number of
// virtual users for the stage's duration.
type RampStage struct {
	DurationSeconds int `yaml:"duration_seconds" json:"duration_seconds"`
	Target          int `yaml:"target" json:"target"`
}

// Duration converts the stage hold time into a duration.
func (s RampStage) Duration() time.Duration {
	return time.Duration(s.DurationSeconds) * time.Second
}

// Thresholds are the run-final SLOs a run must meet to pass. Comparisons
// are strict: a run sitting exactly on a limit fails.
type Thresholds struct {
	MaxP95Ms     float64 `yaml:"max_p95_ms" json:"max_p95_ms"`
	MaxP99Ms     float64 `yaml:"max_p99_ms" json:"max_p99_ms"` // 0 disables the p99 check
	MaxErrorRate float64 `yaml:"max_error_rate" json:"max_error_rate"`
}

// Config freezes every knob of a load run before it starts. Mid-run
// adjustment is not supported; build a new harness instead.
type Config struct {
	BaseURL string      `yaml:"base_url" json:"base_url"`
	Stages  []RampStage `yaml:"stages" json:"stages"`

	Catalog struct {
		Items    []string `yaml:"items" json:"items"`
		Models   []string `yaml:"models" json:"models"`
		Horizons []int    `yaml:"horizons" json:"horizons"`
	} `yaml:"catalog" json:"catalog"`

	// Probes are the per-cycle probabilities of the secondary status checks.
	Probes struct {
		Metrics float64 `yaml:"metrics" json:"metrics"`
		Cost    float64 `yaml:"cost" json:"cost"`
		Health  float64 `yaml:"health" json:"health"`
	} `yaml:"probes" json:"probes"`

	Thresholds Thresholds `yaml:"thresholds" json:"thresholds"`

	IntervalMs     int     `yaml:"interval_ms" json:"interval_ms"`
	TimeoutSeconds int     `yaml:"timeout_seconds" json:"timeout_seconds"`
	Seed           int64   `yaml:"seed" json:"seed"`       // 0 derives a seed from the clock
	MaxRPS         float64 `yaml:"max_rps" json:"max_rps"` // 0 disables the global rate cap
	ArtifactDir    string  `yaml:"artifact_dir" json:"artifact_dir"`
	StatusAddr     string  `yaml:"status_addr" json:"status_addr"` // "" disables the status listener
}

// DefaultConfig returns the standard ramp profile: climb to 100 then 500,
// hold 1000 through the plateau, and drain.
func DefaultConfig() *Config {
	var c Config
	c.BaseURL = "http://localhost:8000"
	c.Stages = []RampStage{
		{DurationSeconds: 30, Target: 100},
		{DurationSeconds: 60, Target: 500},
		{DurationSeconds: 120, Target: 1000},
		{DurationSeconds: 120, Target: 1000},
		{DurationSeconds: 30, Target: 0},
	}
	c.Catalog.Items = []string{"ITEM001", "ITEM002", "ITEM003", "ITEM004", "ITEM005"}
	c.Catalog.Models = []string{api.ModelProphet, api.ModelARIMA}
	c.Catalog.Horizons = []int{30, 60, 90}
	c.Probes.Metrics = 0.10
	c.Probes.Cost = 0.05
	c.Probes.Health = 0.02
	c.Thresholds.MaxP95Ms = 300
	c.Thresholds.MaxErrorRate = 0.10
	c.IntervalMs = 100
	c.TimeoutSeconds = 30
	c.ArtifactDir = "out/loadtest"
	return &c
}

// LoadConfig reads path over the built-in defaults. An empty path returns
// the defaults unchanged.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read loadtest config: %w", err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal loadtest config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("loadtest config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration describes a runnable schedule.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}
	if len(c.Stages) == 0 {
		return fmt.Errorf("at least one ramp stage is required")
	}
	maxTarget := 0
	for i, s := range c.Stages {
		if s.DurationSeconds <= 0 {
			return fmt.Errorf("stage %d: duration_seconds must be > 0", i+1)
		}
		if s.Target < 0 {
			return fmt.Errorf("stage %d: target must be >= 0", i+1)
		}
		if s.Target > maxTarget {
			maxTarget = s.Target
		}
	}
	if maxTarget == 0 {
		return fmt.Errorf("ramp schedule never raises workers above zero")
	}
	if len(c.Catalog.Items) == 0 {
		return fmt.Errorf("catalog.items is empty")
	}
	if len(c.Catalog.Models) == 0 {
		return fmt.Errorf("catalog.models is empty")
	}
	if len(c.Catalog.Horizons) == 0 {
		return fmt.Errorf("catalog.horizons is empty")
	}
	for _, m := range c.Catalog.Models {
		if !api.ValidModel(m) {
			return fmt.Errorf("catalog.models: %q is not a supported model", m)
		}
	}
	for _, h := range c.Catalog.Horizons {
		if !api.ValidHorizon(h) {
			return fmt.Errorf("catalog.horizons: %d not in %v", h, api.Horizons)
		}
	}
	for name, p := range map[string]float64{
		"probes.metrics": c.Probes.Metrics,
		"probes.cost":    c.Probes.Cost,
		"probes.health":  c.Probes.Health,
	} {
		if p < 0 || p > 1 {
			return fmt.Errorf("%s must be within [0,1], got %v", name, p)
		}
	}
	if c.IntervalMs <= 0 {
		return fmt.Errorf("interval_ms must be > 0")
	}
	if c.TimeoutSeconds < 0 {
		return fmt.Errorf("timeout_seconds must be >= 0")
	}
	if c.Thresholds.MaxP95Ms <= 0 {
		return fmt.Errorf("thresholds.max_p95_ms must be > 0")
	}
	if c.Thresholds.MaxP99Ms < 0 {
		return fmt.Errorf("thresholds.max_p99_ms must be >= 0")
	}
	if c.Thresholds.MaxErrorRate <= 0 || c.Thresholds.MaxErrorRate > 1 {
		return fmt.Errorf("thresholds.max_error_rate must be within (0,1]")
	}
	if c.MaxRPS < 0 {
		return fmt.Errorf("max_rps must be >= 0")
	}
	return nil
}

// Interval is the fixed pause between worker cycles.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.IntervalMs) * time.Millisecond
}

// Timeout bounds each request issued by the harness.
func (c *Config) Timeout() time.Duration {
	if c.TimeoutSeconds == 0 {
		return api.DefaultTimeout
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// sampleHint estimates how many primary requests the schedule can produce,
// used to preallocate the latency distribution.
func (c *Config) sampleHint() int {
	const maxHint = 1 << 20
	total := 0
	for _, s := range c.Stages {
		total += s.Target * s.DurationSeconds * 1000 / c.IntervalMs
	}
	if total > maxHint || total < 0 {
		return maxHint
	}
	if total == 0 {
		return 1024
	}
	return total
}
