package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"forecastdash/internal/loadgen"
)

const progressInterval = 2 * time.Second

// runLoadtest executes the ramp schedule and exits non-zero when the run
// fails its thresholds, so CI pipelines can gate on the verdict.
func runLoadtest(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	target, _ := cmd.Flags().GetString("target")
	seed, _ := cmd.Flags().GetInt64("seed")
	artifacts, _ := cmd.Flags().GetString("artifacts")
	statusAddr, _ := cmd.Flags().GetString("status-addr")
	maxRPS, _ := cmd.Flags().GetFloat64("max-rps")
	progress, _ := cmd.Flags().GetString("progress")

	mode, err := resolveProgressMode(progress)
	if err != nil {
		return err
	}

	cfg, err := loadgen.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if env := os.Getenv(envBaseURL); env != "" {
		cfg.BaseURL = env
	}
	if target != "" {
		cfg.BaseURL = target
	}
	if cmd.Flags().Changed("seed") {
		cfg.Seed = seed
	}
	if artifacts != "" {
		cfg.ArtifactDir = artifacts
	}
	if statusAddr != "" {
		cfg.StatusAddr = statusAddr
	}
	if cmd.Flags().Changed("max-rps") {
		cfg.MaxRPS = maxRPS
	}

	harness, err := loadgen.New(*cfg)
	if err != nil {
		return err
	}

	cmd.SilenceUsage = true

	// SIGINT drains the workers and still reports the partial run.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stopProgress := startProgress(harness, mode)
	result, runErr := harness.Run(ctx)
	stopProgress()
	if result != nil {
		fmt.Print(result.Summary())

		if cfg.ArtifactDir != "" {
			path, err := result.WriteArtifact(cfg.ArtifactDir)
			if err != nil {
				log.Error().Err(err).Msg("failed to write run artifact")
			} else {
				log.Info().Str("path", path).Msg("run artifact written")
			}
		}
	}

	if runErr != nil {
		return fmt.Errorf("load run interrupted: %w", runErr)
	}
	if !result.Pass {
		return fmt.Errorf("load run failed thresholds")
	}
	return nil
}

// resolveProgressMode maps the flag onto a renderer. "auto" picks the inline
// line when stderr is a terminal and log lines otherwise.
func resolveProgressMode(raw string) (string, error) {
	switch raw {
	case "auto":
		if term.IsTerminal(int(os.Stderr.Fd())) {
			return "pretty", nil
		}
		return "plain", nil
	case "plain", "json":
		return raw, nil
	}
	return "", fmt.Errorf("unknown progress mode %q (want auto, plain or json)", raw)
}

// startProgress emits periodic run status until the returned stop function
// is called. Stop blocks until the reporter's final write has landed.
func startProgress(h *loadgen.Harness, mode string) func() {
	done := make(chan struct{})
	finished := make(chan struct{})

	go func() {
		defer close(finished)
		ticker := time.NewTicker(progressInterval)
		defer ticker.Stop()

		wrote := false
		for {
			select {
			case <-done:
				if mode == "pretty" && wrote {
					fmt.Fprintln(os.Stderr)
				}
				return
			case <-ticker.C:
				reportProgress(h.Status(), mode)
				wrote = true
			}
		}
	}()

	return func() {
		close(done)
		<-finished
	}
}

func reportProgress(s loadgen.Status, mode string) {
	switch mode {
	case "pretty":
		fmt.Fprintf(os.Stderr, "\r  %5.0fs  workers %4d  requests %8d  errors %6d  p95 %7.1fms",
			s.ElapsedS, s.Workers, s.Requests, s.Errors, s.Latency.P95)
	case "plain":
		log.Info().
			Int64("workers", s.Workers).
			Int64("requests", s.Requests).
			Int64("errors", s.Errors).
			Float64("p95_ms", s.Latency.P95).
			Msg("load run progress")
	case "json":
		if err := json.NewEncoder(os.Stdout).Encode(s); err != nil {
			log.Warn().Err(err).Msg("failed to encode progress")
		}
	}
}
