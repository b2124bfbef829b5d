package stubapi

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"forecastdash/internal/api"
)

// Config holds the stub's listen address and fault-injection knobs.
// Injection applies to the data endpoints only; /health stays clean so it
// can serve as the control group during chaos runs.
type Config struct {
	ListenAddr    string
	BaseLatencyMs int
	JitterMs      int
	ErrorRate     float64
	Seed          int64
}

// DefaultConfig listens on the port the real forecasting service uses.
func DefaultConfig() Config {
	return Config{ListenAddr: "127.0.0.1:8000"}
}

// Server is a synthetic stand-in for the forecasting service. It speaks the
// same wire contract and answers from the deterministic generator.
type Server struct {
	cfg    Config
	gen    *Generator
	router *mux.Router
	server *http.Server

	mu  sync.Mutex
	rng *rand.Rand
}

// New builds a stub server. Seed 0 derives the injection dice from the
// clock; data payloads are seeded per request and unaffected.
func New(cfg Config) *Server {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	s := &Server{
		cfg: cfg,
		gen: NewGenerator(),
		rng: rand.New(rand.NewSource(seed)),
	}

	s.router = mux.NewRouter()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Handler exposes the router, so tests can mount the stub without a listener.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.Use(s.loggingMiddleware)

	s.router.HandleFunc("/items", s.handleItems).Methods("GET")
	s.router.HandleFunc("/forecast/{itemID}", s.handleForecast).Methods("GET")
	s.router.HandleFunc("/metrics/{itemID}", s.handleMetrics).Methods("GET")
	s.router.HandleFunc("/cost-analysis/{itemID}", s.handleCost).Methods("GET")
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeDetail(w, http.StatusNotFound, "Not Found")
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Msg("stub request served")
	})
}

// inject applies the configured latency and failure dice. It reports true
// when the request was answered with a synthetic failure.
func (s *Server) inject(w http.ResponseWriter) bool {
	if s.cfg.BaseLatencyMs > 0 || s.cfg.JitterMs > 0 {
		jitter := 0
		if s.cfg.JitterMs > 0 {
			s.mu.Lock()
			jitter = s.rng.Intn(s.cfg.JitterMs + 1)
			s.mu.Unlock()
		}
		time.Sleep(time.Duration(s.cfg.BaseLatencyMs+jitter) * time.Millisecond)
	}

	if s.cfg.ErrorRate > 0 {
		s.mu.Lock()
		fail := s.rng.Float64() < s.cfg.ErrorRate
		s.mu.Unlock()
		if fail {
			writeDetail(w, http.StatusInternalServerError, "synthetic failure")
			return true
		}
	}
	return false
}

func (s *Server) handleItems(w http.ResponseWriter, r *http.Request) {
	if s.inject(w) {
		return
	}
	writeJSON(w, http.StatusOK, api.ItemsResponse{Items: Catalog})
}

func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	itemID := mux.Vars(r)["itemID"]
	if !KnownItem(itemID) {
		writeDetail(w, http.StatusNotFound, fmt.Sprintf("Item %s not found", itemID))
		return
	}

	days := 90
	if q := r.URL.Query().Get("days"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || !api.ValidHorizon(n) {
			writeDetail(w, http.StatusUnprocessableEntity,
				fmt.Sprintf("days must be one of %v", api.Horizons))
			return
		}
		days = n
	}

	model := r.URL.Query().Get("model")
	if model == "" {
		model = api.ModelProphet
	}
	if !api.ValidModel(model) {
		writeDetail(w, http.StatusUnprocessableEntity,
			fmt.Sprintf("model_type must be %q or %q", api.ModelProphet, api.ModelARIMA))
		return
	}

	if s.inject(w) {
		return
	}
	writeJSON(w, http.StatusOK, s.gen.Forecast(itemID, days, model))
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	itemID := mux.Vars(r)["itemID"]
	if !KnownItem(itemID) {
		writeDetail(w, http.StatusNotFound, fmt.Sprintf("Item %s not found", itemID))
		return
	}

	model := r.URL.Query().Get("model")
	if model == "" {
		model = api.ModelProphet
	}
	if !api.ValidModel(model) {
		writeDetail(w, http.StatusUnprocessableEntity,
			fmt.Sprintf("model_type must be %q or %q", api.ModelProphet, api.ModelARIMA))
		return
	}

	if s.inject(w) {
		return
	}
	writeJSON(w, http.StatusOK, s.gen.Metrics(itemID, model))
}

func (s *Server) handleCost(w http.ResponseWriter, r *http.Request) {
	itemID := mux.Vars(r)["itemID"]
	if !KnownItem(itemID) {
		writeDetail(w, http.StatusNotFound, fmt.Sprintf("Item %s not found", itemID))
		return
	}

	period := r.URL.Query().Get("period")
	if period == "" {
		period = api.DefaultCostPeriod
	}

	if s.inject(w) {
		return
	}
	writeJSON(w, http.StatusOK, s.gen.Cost(itemID, period))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	log.Info().
		Str("addr", s.cfg.ListenAddr).
		Float64("error_rate", s.cfg.ErrorRate).
		Int("base_latency_ms", s.cfg.BaseLatencyMs).
		Msg("stub forecasting service up")
	return s.server.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("failed to encode stub response")
	}
}

// writeDetail mirrors the service's error body shape.
func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// responseWrapper captures the status code for request logging.
type responseWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWrapper) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
