package dashboard

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"forecastdash/internal/api"
)

// Config drives the view and serve commands.
type Config struct {
	API struct {
		BaseURL        string `yaml:"base_url"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"api"`
	Serve struct {
		ListenAddr     string   `yaml:"listen_addr"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"serve"`
	Defaults struct {
		HorizonDays int    `yaml:"horizon_days"`
		Model       string `yaml:"model"`
		CostPeriod  string `yaml:"cost_period"`
	} `yaml:"defaults"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	var c Config
	c.API.BaseURL = "http://localhost:8000"
	c.API.TimeoutSeconds = 30
	c.Serve.ListenAddr = ":8090"
	c.Serve.AllowedOrigins = []string{"http://localhost:5173"}
	c.Defaults.HorizonDays = 90
	c.Defaults.Model = api.ModelProphet
	c.Defaults.CostPeriod = api.DefaultCostPeriod
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
		return nil, fmt.Errorf("failed to read dashboard config: %w", err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal dashboard config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("dashboard config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration is usable.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if c.API.TimeoutSeconds < 0 {
		return fmt.Errorf("api.timeout_seconds must be >= 0, got %d", c.API.TimeoutSeconds)
	}
	if !api.ValidHorizon(c.Defaults.HorizonDays) {
		return fmt.Errorf("defaults.horizon_days %d not in %v", c.Defaults.HorizonDays, api.Horizons)
	}
	if !api.ValidModel(c.Defaults.Model) {
		return fmt.Errorf("defaults.model %q is not a supported model", c.Defaults.Model)
	}
	return nil
}

// Timeout converts the configured request timeout into a duration.
func (c *Config) Timeout() time.Duration {
	if c.API.TimeoutSeconds == 0 {
		return api.DefaultTimeout
	}
	return time.Duration(c.API.TimeoutSeconds) * time.Second
}
