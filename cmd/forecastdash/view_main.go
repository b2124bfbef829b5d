package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"forecastdash/internal/api"
	"forecastdash/internal/dashboard"
	"forecastdash/internal/series"
)

// runView performs one synchronous refresh and prints the dashboard cards.
func runView(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	item, _ := cmd.Flags().GetString("item")
	days, _ := cmd.Flags().GetInt("days")
	model, _ := cmd.Flags().GetString("model")
	measureRaw, _ := cmd.Flags().GetString("measure")

	cfg, err := dashboard.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if env := os.Getenv(envBaseURL); env != "" {
		cfg.API.BaseURL = env
	}
	if days != 0 {
		cfg.Defaults.HorizonDays = days
	}
	if model != "" {
		cfg.Defaults.Model = model
	}

	measure, err := series.ParseMeasure(measureRaw)
	if err != nil {
		return err
	}

	cmd.SilenceUsage = true

	client := api.New(cfg.API.BaseURL, api.WithTimeout(cfg.Timeout()))
	store := dashboard.NewStore(client, dashboard.Options{
		DefaultHorizonDays: cfg.Defaults.HorizonDays,
		DefaultModel:       cfg.Defaults.Model,
		CostPeriod:         cfg.Defaults.CostPeriod,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*cfg.Timeout())
	defer cancel()

	if item == "" {
		items, err := client.Items(ctx)
		if err != nil {
			return fmt.Errorf("failed to load items: %w", err)
		}
		if len(items) == 0 {
			return fmt.Errorf("service returned no items")
		}
		item = items[0]
	}

	key := api.SelectionKey{ItemID: item, HorizonDays: cfg.Defaults.HorizonDays, Model: cfg.Defaults.Model}
	if err := key.Validate(); err != nil {
		return err
	}

	state := store.RefreshWait(ctx, key)
	if state.Err != nil {
		return state.Err
	}

	renderView(os.Stdout, state, measure)
	return nil
}

func renderView(w io.Writer, state dashboard.ViewState, measure series.Measure) {
	fmt.Fprintf(w, "Selection  %s\n", state.Key)

	f := state.Forecast
	if f == nil || len(f.Points) == 0 {
		fmt.Fprintln(w, "Forecast   no data")
		return
	}

	fmt.Fprintf(w, "Forecast   %d points  %s .. %s",
		len(f.Points), f.Points[0].Date, f.Points[len(f.Points)-1].Date)
	if !f.GeneratedAt.IsZero() {
		fmt.Fprintf(w, "  (generated %s)", f.GeneratedAt.Format(time.RFC3339))
	}
	fmt.Fprintln(w)

	if m := state.Metrics; m != nil {
		badges := series.Badges(m)
		fmt.Fprintf(w, "Accuracy   demand MAE %.2f [%s]   price MAE %.2f [%s]\n",
			m.Demand.MAE, badges[series.MeasureDemand],
			m.Price.MAE, badges[series.MeasurePrice])
	} else {
		fmt.Fprintln(w, "Accuracy   unavailable")
	}

	if c := state.Cost; c != nil {
		fmt.Fprintf(w, "Cost %-5s avg %.2f  variance %.2f  waste %.2f%%  total waste cost %.2f\n",
			c.Period, c.AvgCost, c.CostVariance, c.WasteRate*100, c.TotalWasteCost)
	} else {
		fmt.Fprintln(w, "Cost       unavailable")
	}

	chart := series.BuildBandSeries(f.Points, measure)
	width := previewWidth()
	fmt.Fprintf(w, "\n%s\n", measure.Title())
	fmt.Fprintf(w, "  %s\n", sparkline(chart.Center.Y, width))
	fmt.Fprintf(w, "  band %.2f .. %.2f\n", minOf(chart.Lower.Y), maxOf(chart.Upper.Y))
}

// previewWidth fits the sparkline to the terminal when stdout is one.
func previewWidth() int {
	if term.IsTerminal(int(os.Stdout.Fd())) {
		if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 10 {
			return w - 4
		}
	}
	return 60
}

var sparkRunes = []rune("▁▂▃▄▅▆▇█")

// sparkline renders values as a fixed-width run of block glyphs, averaging
// neighbouring samples when the series is wider than the target.
func sparkline(values []float64, width int) string {
	if len(values) == 0 || width <= 0 {
		return ""
	}
	if width > len(values) {
		width = len(values)
	}

	buckets := make([]float64, width)
	for b := range buckets {
		lo := b * len(values) / width
		hi := (b + 1) * len(values) / width
		if hi <= lo {
			hi = lo + 1
		}
		sum := 0.0
		for _, v := range values[lo:hi] {
			sum += v
		}
		buckets[b] = sum / float64(hi-lo)
	}

	min, max := buckets[0], buckets[0]
	for _, v := range buckets[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}

	out := make([]rune, width)
	for i, v := range buckets {
		idx := 0
		if max > min {
			idx = int((v - min) / (max - min) * float64(len(sparkRunes)-1))
		}
		out[i] = sparkRunes[idx]
	}
	return string(out)
}

func minOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func maxOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}
