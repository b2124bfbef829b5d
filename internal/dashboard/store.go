package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"forecastdash/internal/api"
)

// API is the slice of the forecasting service client the store consumes.
// *api.Client satisfies it; tests substitute scripted fakes.
type API interface {
	Items(ctx context.Context) ([]string, error)
	Forecast(ctx context.Context, key api.SelectionKey) (*api.ForecastResult, error)
	AccuracyMetrics(ctx context.Context, itemID, model string) (*api.AccuracyMetrics, error)
	CostAnalysis(ctx context.Context, itemID, period string) (*api.CostAnalysis, error)
}

// FetchError is the user-visible failure of a required forecast fetch.
type FetchError struct {
	Key api.SelectionKey
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("forecast fetch for %s failed: %v", e.Key, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Message is the display string for the dashboard's error banner.
func (e *FetchError) Message() string {
	return fmt.Sprintf("Failed to load forecast for %s", e.Key.ItemID)
}

func (e *FetchError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Key     api.SelectionKey `json:"key"`
		Message string           `json:"message"`
	}{e.Key, e.Message()})
}

// ViewState is a point-in-time snapshot of everything the dashboard renders.
// Sections are nil when their fetch failed or has not completed. Result
// pointers are shared between snapshots and never mutated after commit.
type ViewState struct {
	Key        api.SelectionKey     `json:"selection"`
	Loading    bool                 `json:"loading"`
	Forecast   *api.ForecastResult  `json:"forecast,omitempty"`
	Cost       *api.CostAnalysis    `json:"cost_analysis,omitempty"`
	Metrics    *api.AccuracyMetrics `json:"accuracy_metrics,omitempty"`
	Err        *FetchError          `json:"error,omitempty"`
	Generation uint64               `json:"generation"`
	UpdatedAt  time.Time            `json:"updated_at"`
}

// Options configure a Store beyond its client.
type Options struct {
	// DefaultHorizonDays and DefaultModel seed the first selection.
	DefaultHorizonDays int
	DefaultModel       string
	// CostPeriod is passed to every cost-analysis fetch.
	CostPeriod string
}

// Store owns the dashboard's view state. All mutation happens behind one
// mutex. Every refresh bumps a generation counter and responses only commit
// while their generation is still current, so the latest selection wins
// regardless of response arrival order. In-flight requests are never
// cancelled when superseded; their results are dropped on arrival.
type Store struct {
	client     API
	costPeriod string

	mu    sync.Mutex
	gen   uint64
	items []string
	view  ViewState
}

// NewStore builds a store around the given client.
func NewStore(client API, opts Options) *Store {
	if opts.DefaultHorizonDays == 0 {
		opts.DefaultHorizonDays = 90
	}
	if opts.DefaultModel == "" {
		opts.DefaultModel = api.ModelProphet
	}
	if opts.CostPeriod == "" {
		opts.CostPeriod = api.DefaultCostPeriod
	}

	s := &Store{client: client, costPeriod: opts.CostPeriod}
	s.view.Key = api.SelectionKey{
		HorizonDays: opts.DefaultHorizonDays,
		Model:       opts.DefaultModel,
	}
	return s
}

// Init loads the item catalog and starts the first refresh for the first
// item under the default horizon and model.
func (s *Store) Init(ctx context.Context) error {
	items, err := s.client.Items(ctx)
	if err != nil {
		return fmt.Errorf("failed to load items: %w", err)
	}
	if len(items) == 0 {
		return fmt.Errorf("service returned no items")
	}

	s.mu.Lock()
	s.items = append([]string(nil), items...)
	key := s.view.Key
	key.ItemID = items[0]
	s.mu.Unlock()

	log.Info().Int("items", len(items)).Str("selection", key.String()).Msg("dashboard initialized")
	s.Refresh(ctx, key)
	return nil
}

// Items returns the loaded item catalog.
func (s *Store) Items() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.items...)
}

// State returns a copy of the current view.
func (s *Store) State() ViewState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

// SetItem switches to another item and refreshes.
func (s *Store) SetItem(ctx context.Context, itemID string) uint64 {
	key := s.currentKey()
	key.ItemID = itemID
	return s.Refresh(ctx, key)
}

// SetHorizon switches the forecast horizon and refreshes.
func (s *Store) SetHorizon(ctx context.Context, days int) uint64 {
	key := s.currentKey()
	key.HorizonDays = days
	return s.Refresh(ctx, key)
}

// SetModel switches the forecasting model and refreshes.
func (s *Store) SetModel(ctx context.Context, model string) uint64 {
	key := s.currentKey()
	key.Model = model
	return s.Refresh(ctx, key)
}

func (s *Store) currentKey() api.SelectionKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view.Key
}

// Refresh starts the three fetches for key and returns the refresh's
// generation without waiting for any of them.
func (s *Store) Refresh(ctx context.Context, key api.SelectionKey) uint64 {
	gen, _ := s.beginRefresh(ctx, key)
	return gen
}

// RefreshWait refreshes and blocks until this refresh's three requests have
// resolved, then returns the current snapshot. The snapshot may belong to a
// newer selection if one superseded this refresh while it was in flight.
func (s *Store) RefreshWait(ctx context.Context, key api.SelectionKey) ViewState {
	_, wg := s.beginRefresh(ctx, key)
	wg.Wait()
	return s.State()
}

func (s *Store) beginRefresh(ctx context.Context, key api.SelectionKey) (uint64, *sync.WaitGroup) {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.view.Key = key
	s.view.Loading = true
	s.view.Err = nil
	s.view.Generation = gen
	s.view.UpdatedAt = time.Now()
	s.mu.Unlock()

	log.Debug().Str("selection", key.String()).Uint64("generation", gen).Msg("refresh started")

	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		res, err := s.client.Forecast(ctx, key)
		s.commitForecast(gen, key, res, err)
	}()
	go func() {
		defer wg.Done()
		cost, err := s.client.CostAnalysis(ctx, key.ItemID, s.costPeriod)
		s.commitCost(gen, key, cost, err)
	}()
	go func() {
		defer wg.Done()
		metrics, err := s.client.AccuracyMetrics(ctx, key.ItemID, key.Model)
		s.commitMetrics(gen, key, metrics, err)
	}()

	return gen, &wg
}

// commitForecast applies the required fetch's outcome. The loading flag is
// gated on this call alone; optional fetches never touch it.
func (s *Store) commitForecast(gen uint64, key api.SelectionKey, res *api.ForecastResult, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen {
		log.Debug().Str("selection", key.String()).Uint64("generation", gen).Msg("stale forecast response dropped")
		return
	}

	s.view.Loading = false
	s.view.UpdatedAt = time.Now()
	if err != nil {
		s.view.Forecast = nil
		s.view.Err = &FetchError{Key: key, Err: err}
		log.Error().Err(err).Str("selection", key.String()).Msg("forecast fetch failed")
		return
	}
	s.view.Forecast = res
	s.view.Err = nil
}

func (s *Store) commitCost(gen uint64, key api.SelectionKey, cost *api.CostAnalysis, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen {
		return
	}

	s.view.UpdatedAt = time.Now()
	if err != nil {
		s.view.Cost = nil
		log.Warn().Err(err).Str("item", key.ItemID).Msg("cost analysis unavailable")
		return
	}
	s.view.Cost = cost
}

func (s *Store) commitMetrics(gen uint64, key api.SelectionKey, metrics *api.AccuracyMetrics, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen {
		return
	}

	s.view.UpdatedAt = time.Now()
	if err != nil {
		s.view.Metrics = nil
		log.Warn().Err(err).Str("item", key.ItemID).Msg("accuracy metrics unavailable")
		return
	}
	s.view.Metrics = metrics
}
