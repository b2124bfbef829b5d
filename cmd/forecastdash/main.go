package main

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const (
	appName = "forecastdash"
	version = "v1.2.0"
)

// envBaseURL overrides the configured forecasting service URL when set.
const envBaseURL = "FORECAST_API_URL"

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	if err := godotenv.Load(); err == nil {
		log.Debug().Msg("loaded environment from .env")
	}

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Forecasting dashboard client, view-state server and load harness",
		Version: version,
		Long: `forecastdash talks to the demand/price forecasting service and turns its
responses into dashboard state: forecast band charts, cost analysis cards
and model accuracy badges.

Subcommands cover the whole workflow: 'view' renders one selection in the
terminal, 'serve' exposes the view state over HTTP for the browser UI,
'loadtest' drives the staged load harness against a service, and 'stub'
runs a synthetic forecasting service for local development.`,
	}

	viewCmd := &cobra.Command{
		Use:   "view",
		Short: "Fetch one selection and render the dashboard cards",
		Long:  "Performs a single refresh (forecast, cost analysis, accuracy metrics) and prints the resulting view",
		RunE:  runView,
	}
	viewCmd.Flags().String("config", "", "Dashboard config file (yaml)")
	viewCmd.Flags().String("item", "", "Item id (default: first item reported by the service)")
	viewCmd.Flags().Int("days", 0, "Forecast horizon in days (30|60|90|180)")
	viewCmd.Flags().String("model", "", "Forecasting model (prophet|arima)")
	viewCmd.Flags().String("measure", "demand", "Series preview measure (demand|price)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the dashboard view-state API",
		Long:  "Runs the HTTP server the browser UI reads state from, refreshing against the forecasting service",
		RunE:  runServe,
	}
	serveCmd.Flags().String("config", "", "Dashboard config file (yaml)")
	serveCmd.Flags().String("listen", "", "Listen address override")

	loadtestCmd := &cobra.Command{
		Use:   "loadtest",
		Short: "Run the staged load harness against a forecasting service",
		Long: `Ramps virtual dashboard users through the configured stages, fires the
primary forecast request plus probabilistic status probes, and judges the
finished run against the latency and error-rate thresholds. The exit code
reflects the verdict, so CI can gate on it.`,
		RunE: runLoadtest,
	}
	loadtestCmd.Flags().String("config", "", "Loadtest config file (yaml)")
	loadtestCmd.Flags().String("target", "", "Service base URL override")
	loadtestCmd.Flags().Int64("seed", 0, "Randomness seed (0 derives one from the clock)")
	loadtestCmd.Flags().String("artifacts", "", "Artifact directory override")
	loadtestCmd.Flags().String("status-addr", "", "Expose /metrics and /status on this address for the run")
	loadtestCmd.Flags().Float64("max-rps", 0, "Global request rate cap (0 = unlimited)")
	loadtestCmd.Flags().String("progress", "auto", "Progress output during the run (auto|plain|json)")

	stubCmd := &cobra.Command{
		Use:   "stub",
		Short: "Run a synthetic forecasting service",
		Long:  "Serves deterministic forecast, metrics and cost data on the real wire contract, with optional latency and failure injection",
		RunE:  runStub,
	}
	stubCmd.Flags().String("listen", "127.0.0.1:8000", "Listen address")
	stubCmd.Flags().Int("latency", 0, "Base injected latency in milliseconds")
	stubCmd.Flags().Int("jitter", 0, "Extra random latency in milliseconds")
	stubCmd.Flags().Float64("error-rate", 0, "Probability of synthetic 500s on data endpoints")
	stubCmd.Flags().Int64("seed", 0, "Injection dice seed (0 derives one from the clock)")

	rootCmd.AddCommand(viewCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(loadtestCmd)
	rootCmd.AddCommand(stubCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}
