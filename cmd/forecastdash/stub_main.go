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

	"forecastdash/internal/stubapi"
)

// runStub serves the synthetic forecasting service until shutdown.
func runStub(cmd *cobra.Command, args []string) error {
	listen, _ := cmd.Flags().GetString("listen")
	latency, _ := cmd.Flags().GetInt("latency")
	jitter, _ := cmd.Flags().GetInt("jitter")
	errorRate, _ := cmd.Flags().GetFloat64("error-rate")
	seed, _ := cmd.Flags().GetInt64("seed")

	cmd.SilenceUsage = true

	srv := stubapi.New(stubapi.Config{
		ListenAddr:    listen,
		BaseLatencyMs: latency,
		JitterMs:      jitter,
		ErrorRate:     errorRate,
		Seed:          seed,
	})

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

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}
