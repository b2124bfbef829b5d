package loadgen

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"forecastdash/internal/api"
	"forecastdash/internal/telemetry/latency"
)

// Harness drives virtual dashboard users against a forecasting service
// following a fixed ramp schedule, then judges the finished run against the
// configured thresholds. A harness runs once.
type Harness struct {
	cfg     Config
	client  *api.Client
	metrics *runMetrics
	limiter *rate.Limiter

	launched  atomic.Bool
	active    atomic.Int64
	runID     string
	startedNs atomic.Int64
}

// New builds a harness from a validated config. The config is copied;
// changing it afterwards does not affect the run.
func New(cfg Config) (*Harness, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("loadgen: %w", err)
	}

	h := &Harness{
		cfg:     cfg,
		client:  api.New(cfg.BaseURL, api.WithTimeout(cfg.Timeout())),
		metrics: newRunMetrics(cfg.sampleHint()),
		runID:   uuid.New().String(),
	}
	if cfg.MaxRPS > 0 {
		burst := int(cfg.MaxRPS)
		if burst < 1 {
			burst = 1
		}
		h.limiter = rate.NewLimiter(rate.Limit(cfg.MaxRPS), burst)
	}
	return h, nil
}

// Run executes the ramp schedule to exhaustion and returns the evaluated
// result. The run never stops early on breaches; thresholds are judged only
// after the schedule completes. Cancelling ctx drains the workers and
// returns the partial result together with the context's error.
func (h *Harness) Run(ctx context.Context) (*Result, error) {
	if !h.launched.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("loadgen: harness already ran")
	}

	seed := h.cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	started := time.Now()
	h.startedNs.Store(started.UnixNano())

	log.Info().
		Str("run_id", h.runID).
		Str("target", h.cfg.BaseURL).
		Int("stages", len(h.cfg.Stages)).
		Int64("seed", seed).
		Msg("load run starting")

	stopStatus := h.startStatusListener()
	defer stopStatus()

	var wg sync.WaitGroup
	var cancels []context.CancelFunc
	workerID := 0

	scaleTo := func(target int) {
		for len(cancels) < target {
			wctx, cancel := context.WithCancel(ctx)
			cancels = append(cancels, cancel)
			id := workerID
			workerID++
			wg.Add(1)
			go func() {
				defer wg.Done()
				h.worker(wctx, seed+int64(id))
			}()
		}
		for len(cancels) > target {
			last := len(cancels) - 1
			cancels[last]()
			cancels = cancels[:last]
		}
		h.active.Store(int64(len(cancels)))
		h.metrics.workers.Set(float64(len(cancels)))
	}

	for i, stage := range h.cfg.Stages {
		if ctx.Err() != nil {
			break
		}
		scaleTo(stage.Target)
		log.Info().
			Int("stage", i+1).
			Int("workers", len(cancels)).
			Dur("hold", stage.Duration()).
			Msg("ramp stage entered")

		select {
		case <-time.After(stage.Duration()):
		case <-ctx.Done():
		}
	}

	scaleTo(0)
	wg.Wait()
	ended := time.Now()

	requests, errors := h.metrics.totals()
	result := &Result{
		RunID:     h.runID,
		Target:    h.cfg.BaseURL,
		StartedAt: started,
		EndedAt:   ended,
		Seed:      seed,
		Stages:    h.cfg.Stages,
		Requests:  requests,
		Errors:    errors,
		Latency:   h.metrics.durations.Snapshot(),
		Probes:    h.metrics.probeTallies(),
	}
	if requests > 0 {
		result.ErrorRate = float64(errors) / float64(requests)
	}
	result.Evaluate(h.cfg.Thresholds)

	log.Info().
		Str("run_id", h.runID).
		Int64("requests", requests).
		Int64("errors", errors).
		Float64("error_rate", result.ErrorRate).
		Float64("p95_ms", result.Latency.P95).
		Bool("pass", result.Pass).
		Msg("load run finished")

	return result, ctx.Err()
}

// worker runs one virtual dashboard user until its context is cancelled.
// Each worker owns a seeded generator, so a fixed config seed reproduces
// the full request sequence.
func (h *Harness) worker(ctx context.Context, seed int64) {
	rng := rand.New(rand.NewSource(seed))

	for {
		if ctx.Err() != nil {
			return
		}

		h.cycle(ctx, rng)

		select {
		case <-ctx.Done():
			return
		case <-time.After(h.cfg.Interval()):
		}
	}
}

// cycle performs one user iteration: the primary forecast fetch plus the
// dice-rolled secondary probes. Requests aborted by worker retirement are
// not tallied; they say nothing about the service.
func (h *Harness) cycle(ctx context.Context, rng *rand.Rand) {
	key := h.pick(rng)

	if h.limiter != nil {
		if err := h.limiter.Wait(ctx); err != nil {
			return
		}
	}

	start := time.Now()
	res, err := h.client.Forecast(ctx, key)
	elapsed := time.Since(start)

	if err != nil && ctx.Err() != nil {
		return
	}
	ok := err == nil && res != nil && len(res.Points) > 0
	h.metrics.recordPrimary(elapsed, ok)
	if !ok {
		log.Debug().Err(err).Str("selection", key.String()).Dur("elapsed", elapsed).Msg("primary request failed")
	}

	if rng.Float64() < h.cfg.Probes.Metrics {
		_, err := h.client.AccuracyMetrics(ctx, key.ItemID, key.Model)
		if ctx.Err() == nil {
			h.metrics.recordProbe(probeMetrics, err == nil)
		}
	}
	if rng.Float64() < h.cfg.Probes.Cost {
		_, err := h.client.CostAnalysis(ctx, key.ItemID, api.DefaultCostPeriod)
		if ctx.Err() == nil {
			h.metrics.recordProbe(probeCost, err == nil)
		}
	}
	if rng.Float64() < h.cfg.Probes.Health {
		err := h.client.Health(ctx)
		if ctx.Err() == nil {
			h.metrics.recordProbe(probeHealth, err == nil)
		}
	}
}

// pick selects a uniformly random catalog entry.
func (h *Harness) pick(rng *rand.Rand) api.SelectionKey {
	c := h.cfg.Catalog
	return api.SelectionKey{
		ItemID:      c.Items[rng.Intn(len(c.Items))],
		HorizonDays: c.Horizons[rng.Intn(len(c.Horizons))],
		Model:       c.Models[rng.Intn(len(c.Models))],
	}
}

// ActiveWorkers reports how many virtual users are currently running.
func (h *Harness) ActiveWorkers() int64 {
	return h.active.Load()
}

// Status is a point-in-time view of a running harness, served on /status
// and fed to the progress reporter.
type Status struct {
	RunID    string           `json:"run_id"`
	ElapsedS float64          `json:"elapsed_s"`
	Workers  int64            `json:"workers"`
	Requests int64            `json:"requests"`
	Errors   int64            `json:"errors"`
	Latency  latency.Snapshot `json:"latency"`
}

// Status snapshots the run so far. Safe to call concurrently with Run.
func (h *Harness) Status() Status {
	requests, errors := h.metrics.totals()
	s := Status{
		RunID:    h.runID,
		Workers:  h.active.Load(),
		Requests: requests,
		Errors:   errors,
		Latency:  h.metrics.durations.Snapshot(),
	}
	if ns := h.startedNs.Load(); ns > 0 {
		s.ElapsedS = time.Since(time.Unix(0, ns)).Seconds()
	}
	return s
}

// startStatusListener exposes /metrics and /status for the duration of the
// run when a status address is configured. Returns a stop function.
func (h *Harness) startStatusListener() func() {
	if h.cfg.StatusAddr == "" {
		return func() {}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", h.metrics.handler())
	mux.HandleFunc("/status", h.statusHandler)

	srv := &http.Server{Addr: h.cfg.StatusAddr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn().Err(err).Str("addr", h.cfg.StatusAddr).Msg("status listener failed")
		}
	}()
	log.Info().Str("addr", h.cfg.StatusAddr).Msg("status listener up")

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
}

func (h *Harness) statusHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.Status()); err != nil {
		log.Warn().Err(err).Msg("failed to encode status")
	}
}
