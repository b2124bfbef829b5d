package loadgen

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	require.Len(t, cfg.Stages, 5)
	assert.Equal(t, RampStage{DurationSeconds: 30, Target: 100}, cfg.Stages[0])
	assert.Equal(t, RampStage{DurationSeconds: 60, Target: 500}, cfg.Stages[1])
	assert.Equal(t, RampStage{DurationSeconds: 120, Target: 1000}, cfg.Stages[2])
	assert.Equal(t, RampStage{DurationSeconds: 120, Target: 1000}, cfg.Stages[3])
	assert.Equal(t, RampStage{DurationSeconds: 30, Target: 0}, cfg.Stages[4])

	assert.Len(t, cfg.Catalog.Items, 5)
	assert.Equal(t, []string{"prophet", "arima"}, cfg.Catalog.Models)
	assert.Equal(t, []int{30, 60, 90}, cfg.Catalog.Horizons)

	assert.Equal(t, 0.10, cfg.Probes.Metrics)
	assert.Equal(t, 0.05, cfg.Probes.Cost)
	assert.Equal(t, 0.02, cfg.Probes.Health)

	assert.Equal(t, 300.0, cfg.Thresholds.MaxP95Ms)
	assert.Equal(t, 0.10, cfg.Thresholds.MaxErrorRate)
	assert.Equal(t, 100*time.Millisecond, cfg.Interval())
}

func TestLoadConfigOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loadtest.yaml")
	doc := `
base_url: http://stub:8000
stages:
  - duration_seconds: 5
    target: 10
interval_ms: 50
seed: 1234
thresholds:
  max_p95_ms: 150
  max_p99_ms: 400
  max_error_rate: 0.05
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "http://stub:8000", cfg.BaseURL)
	require.Len(t, cfg.Stages, 1)
	assert.Equal(t, RampStage{DurationSeconds: 5, Target: 10}, cfg.Stages[0])
	assert.Equal(t, 50*time.Millisecond, cfg.Interval())
	assert.Equal(t, int64(1234), cfg.Seed)
	assert.Equal(t, 150.0, cfg.Thresholds.MaxP95Ms)
	assert.Equal(t, 400.0, cfg.Thresholds.MaxP99Ms)
	assert.Equal(t, 0.05, cfg.Thresholds.MaxErrorRate)

	// Unspecified sections keep their defaults.
	assert.Len(t, cfg.Catalog.Items, 5)
	assert.Equal(t, 0.10, cfg.Probes.Metrics)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadConfigEmptyPathUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().BaseURL, cfg.BaseURL)
	assert.Len(t, cfg.Stages, 5)
}

func TestConfigValidation(t *testing.T) {
	valid := func() *Config { return DefaultConfig() }

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no stages", func(c *Config) { c.Stages = nil }},
		{"zero stage duration", func(c *Config) { c.Stages[0].DurationSeconds = 0 }},
		{"negative target", func(c *Config) { c.Stages[0].Target = -1 }},
		{"all targets zero", func(c *Config) {
			for i := range c.Stages {
				c.Stages[i].Target = 0
			}
		}},
		{"empty item catalog", func(c *Config) { c.Catalog.Items = nil }},
		{"unknown model", func(c *Config) { c.Catalog.Models = []string{"lstm"} }},
		{"unknown horizon", func(c *Config) { c.Catalog.Horizons = []int{45} }},
		{"probe probability above one", func(c *Config) { c.Probes.Metrics = 1.5 }},
		{"negative probe probability", func(c *Config) { c.Probes.Health = -0.1 }},
		{"zero interval", func(c *Config) { c.IntervalMs = 0 }},
		{"zero p95 limit", func(c *Config) { c.Thresholds.MaxP95Ms = 0 }},
		{"negative p99 limit", func(c *Config) { c.Thresholds.MaxP99Ms = -1 }},
		{"error rate above one", func(c *Config) { c.Thresholds.MaxErrorRate = 1.5 }},
		{"zero error rate", func(c *Config) { c.Thresholds.MaxErrorRate = 0 }},
		{"negative rate limit", func(c *Config) { c.MaxRPS = -5 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSampleHintScalesWithSchedule(t *testing.T) {
	cfg := DefaultConfig()
	hint := cfg.sampleHint()
	assert.Greater(t, hint, 0)
	assert.LessOrEqual(t, hint, 1<<20)

	small := DefaultConfig()
	small.Stages = []RampStage{{DurationSeconds: 1, Target: 1}}
	assert.Greater(t, small.sampleHint(), 0)
}
