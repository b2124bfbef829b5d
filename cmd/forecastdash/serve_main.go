package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"forecastdash/internal/api"
	"forecastdash/internal/dashboard"
	"forecastdash/internal/server"
)

// runServe starts the view-state server and blocks until shutdown.
func runServe(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	listen, _ := cmd.Flags().GetString("listen")

	cfg, err := dashboard.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if env := os.Getenv(envBaseURL); env != "" {
		cfg.API.BaseURL = env
	}
	if listen != "" {
		cfg.Serve.ListenAddr = listen
	}

	cmd.SilenceUsage = true

	client := api.New(cfg.API.BaseURL, api.WithTimeout(cfg.Timeout()))
	store := dashboard.NewStore(client, dashboard.Options{
		DefaultHorizonDays: cfg.Defaults.HorizonDays,
		DefaultModel:       cfg.Defaults.Model,
		CostPeriod:         cfg.Defaults.CostPeriod,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// A down upstream at boot is not fatal: the state stays empty and
	// /healthz reports the upstream unreachable until a refresh succeeds.
	if err := store.Init(ctx); err != nil {
		log.Warn().Err(err).Str("upstream", cfg.API.BaseURL).Msg("initial catalog load failed, serving empty state")
	}

	srv := server.New(ctx, store, client, cfg)

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info().Msg("shutdown signal received")
	case err := <-serverErr:
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}
