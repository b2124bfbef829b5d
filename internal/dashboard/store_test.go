package dashboard

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forecastdash/internal/api"
)

// fakeAPI scripts each endpoint with a function; unset functions fall back
// to canned successes that echo the request.
type fakeAPI struct {
	items    func(ctx context.Context) ([]string, error)
	forecast func(ctx context.Context, key api.SelectionKey) (*api.ForecastResult, error)
	metrics  func(ctx context.Context, itemID, model string) (*api.AccuracyMetrics, error)
	cost     func(ctx context.Context, itemID, period string) (*api.CostAnalysis, error)
}

func cannedForecast(key api.SelectionKey, n int) *api.ForecastResult {
	points := make([]api.ForecastPoint, n)
	for i := range points {
		points[i] = api.ForecastPoint{
			Date:           fmt.Sprintf("2025-09-%02d", i+1),
			DemandForecast: 100,
			DemandLower:    90,
			DemandUpper:    110,
			PriceForecast:  50,
			PriceLower:     48,
			PriceUpper:     52,
			Confidence:     0.8,
		}
	}
	return &api.ForecastResult{
		ItemID:       key.ItemID,
		ForecastDays: key.HorizonDays,
		ModelType:    key.Model,
		Points:       points,
	}
}

func (f *fakeAPI) Items(ctx context.Context) ([]string, error) {
	if f.items != nil {
		return f.items(ctx)
	}
	return []string{"ITEM001", "ITEM002"}, nil
}

func (f *fakeAPI) Forecast(ctx context.Context, key api.SelectionKey) (*api.ForecastResult, error) {
	if f.forecast != nil {
		return f.forecast(ctx, key)
	}
	return cannedForecast(key, 3), nil
}

func (f *fakeAPI) AccuracyMetrics(ctx context.Context, itemID, model string) (*api.AccuracyMetrics, error) {
	if f.metrics != nil {
		return f.metrics(ctx, itemID, model)
	}
	return &api.AccuracyMetrics{
		ItemID:    itemID,
		ModelType: model,
		Demand:    api.MeasureMetrics{MAE: 4.0},
		Price:     api.MeasureMetrics{MAE: 1.2},
	}, nil
}

func (f *fakeAPI) CostAnalysis(ctx context.Context, itemID, period string) (*api.CostAnalysis, error) {
	if f.cost != nil {
		return f.cost(ctx, itemID, period)
	}
	return &api.CostAnalysis{ItemID: itemID, Period: period, AvgCost: 35.0}, nil
}

func testKey(item string) api.SelectionKey {
	return api.SelectionKey{ItemID: item, HorizonDays: 90, Model: api.ModelProphet}
}

func TestStaleResponsesNeverOverwrite(t *testing.T) {
	release := make(chan struct{})
	fake := &fakeAPI{
		forecast: func(ctx context.Context, key api.SelectionKey) (*api.ForecastResult, error) {
			if key.ItemID == "ITEM001" {
				<-release
			}
			return cannedForecast(key, 5), nil
		},
		cost: func(ctx context.Context, itemID, period string) (*api.CostAnalysis, error) {
			if itemID == "ITEM001" {
				<-release
			}
			return &api.CostAnalysis{ItemID: itemID, Period: period, AvgCost: 35.0}, nil
		},
		metrics: func(ctx context.Context, itemID, model string) (*api.AccuracyMetrics, error) {
			if itemID == "ITEM001" {
				<-release
			}
			return &api.AccuracyMetrics{ItemID: itemID, ModelType: model}, nil
		},
	}

	s := NewStore(fake, Options{})
	ctx := context.Background()

	genA, wgA := s.beginRefresh(ctx, testKey("ITEM001"))
	genB, wgB := s.beginRefresh(ctx, testKey("ITEM002"))
	require.Greater(t, genB, genA)

	wgB.Wait()
	v := s.State()
	require.NotNil(t, v.Forecast)
	assert.Equal(t, "ITEM002", v.Forecast.ItemID)
	assert.False(t, v.Loading)

	// Let the superseded responses arrive late; nothing may change.
	close(release)
	wgA.Wait()

	v = s.State()
	assert.Equal(t, "ITEM002", v.Key.ItemID)
	assert.Equal(t, genB, v.Generation)
	require.NotNil(t, v.Forecast)
	assert.Equal(t, "ITEM002", v.Forecast.ItemID)
	require.NotNil(t, v.Cost)
	assert.Equal(t, "ITEM002", v.Cost.ItemID)
	require.NotNil(t, v.Metrics)
	assert.Equal(t, "ITEM002", v.Metrics.ItemID)
}

func TestRequiredFailureKeepsOptionalSections(t *testing.T) {
	fake := &fakeAPI{
		forecast: func(ctx context.Context, key api.SelectionKey) (*api.ForecastResult, error) {
			return nil, &api.StatusError{Endpoint: "/forecast/ITEM001", StatusCode: 500}
		},
	}

	s := NewStore(fake, Options{})
	v := s.RefreshWait(context.Background(), testKey("ITEM001"))

	assert.False(t, v.Loading)
	assert.Nil(t, v.Forecast)
	require.NotNil(t, v.Err)
	assert.Contains(t, v.Err.Message(), "ITEM001")
	assert.NotNil(t, v.Cost, "optional sections still populate when the required call fails")
	assert.NotNil(t, v.Metrics)
}

func TestOptionalFailureDegradesSilently(t *testing.T) {
	fake := &fakeAPI{
		cost: func(ctx context.Context, itemID, period string) (*api.CostAnalysis, error) {
			return nil, &api.StatusError{Endpoint: "/cost-analysis/" + itemID, StatusCode: 503}
		},
	}

	s := NewStore(fake, Options{})
	v := s.RefreshWait(context.Background(), testKey("ITEM001"))

	assert.Nil(t, v.Err, "optional failures must not surface an error")
	assert.NotNil(t, v.Forecast)
	assert.Nil(t, v.Cost)
	assert.NotNil(t, v.Metrics)
}

func TestLoadingGatedOnRequiredCallOnly(t *testing.T) {
	release := make(chan struct{})
	fake := &fakeAPI{
		metrics: func(ctx context.Context, itemID, model string) (*api.AccuracyMetrics, error) {
			<-release
			return &api.AccuracyMetrics{ItemID: itemID, ModelType: model}, nil
		},
	}

	s := NewStore(fake, Options{})
	_, wg := s.beginRefresh(context.Background(), testKey("ITEM001"))

	require.Eventually(t, func() bool {
		return s.State().Forecast != nil
	}, 2*time.Second, time.Millisecond)

	v := s.State()
	assert.False(t, v.Loading, "loading clears when the forecast resolves, not when the optionals do")
	assert.Nil(t, v.Metrics)

	close(release)
	wg.Wait()
	assert.NotNil(t, s.State().Metrics)
}

func TestErrorClearedOnNextSuccessfulRefresh(t *testing.T) {
	fail := true
	fake := &fakeAPI{
		forecast: func(ctx context.Context, key api.SelectionKey) (*api.ForecastResult, error) {
			if fail {
				return nil, &api.StatusError{Endpoint: "/forecast", StatusCode: 500}
			}
			return cannedForecast(key, 2), nil
		},
	}

	s := NewStore(fake, Options{})
	v := s.RefreshWait(context.Background(), testKey("ITEM001"))
	require.NotNil(t, v.Err)

	fail = false
	v = s.RefreshWait(context.Background(), testKey("ITEM001"))
	assert.Nil(t, v.Err)
	assert.NotNil(t, v.Forecast)
}

func TestInitSelectsFirstItem(t *testing.T) {
	fake := &fakeAPI{
		items: func(ctx context.Context) ([]string, error) {
			return []string{"ITEM004", "ITEM005"}, nil
		},
	}

	s := NewStore(fake, Options{})
	require.NoError(t, s.Init(context.Background()))

	assert.Equal(t, []string{"ITEM004", "ITEM005"}, s.Items())

	require.Eventually(t, func() bool {
		return s.State().Forecast != nil
	}, 2*time.Second, time.Millisecond)

	v := s.State()
	assert.Equal(t, "ITEM004", v.Key.ItemID)
	assert.Equal(t, 90, v.Key.HorizonDays)
	assert.Equal(t, api.ModelProphet, v.Key.Model)
}

func TestInitFailsWithoutItems(t *testing.T) {
	fake := &fakeAPI{
		items: func(ctx context.Context) ([]string, error) {
			return nil, nil
		},
	}
	s := NewStore(fake, Options{})
	assert.Error(t, s.Init(context.Background()))

	fake.items = func(ctx context.Context) ([]string, error) {
		return nil, fmt.Errorf("connection refused")
	}
	assert.Error(t, s.Init(context.Background()))
}

func TestSettersComposeSelection(t *testing.T) {
	fake := &fakeAPI{}
	s := NewStore(fake, Options{})
	ctx := context.Background()
	require.NoError(t, s.Init(ctx))

	gen1 := s.SetHorizon(ctx, 60)
	gen2 := s.SetModel(ctx, api.ModelARIMA)
	gen3 := s.SetItem(ctx, "ITEM002")
	assert.Less(t, gen1, gen2)
	assert.Less(t, gen2, gen3)

	require.Eventually(t, func() bool {
		v := s.State()
		return v.Forecast != nil && v.Forecast.ItemID == "ITEM002" && !v.Loading
	}, 2*time.Second, time.Millisecond)

	v := s.State()
	assert.Equal(t, "ITEM002", v.Key.ItemID)
	assert.Equal(t, 60, v.Key.HorizonDays, "horizon survives later item change")
	assert.Equal(t, api.ModelARIMA, v.Key.Model, "model survives later item change")
}

func TestRefreshIssuesExactlyThreeRequests(t *testing.T) {
	var mu sync.Mutex
	var forecastKeys []api.SelectionKey
	var metricsCalls, costCalls []string

	fake := &fakeAPI{
		forecast: func(ctx context.Context, key api.SelectionKey) (*api.ForecastResult, error) {
			mu.Lock()
			forecastKeys = append(forecastKeys, key)
			mu.Unlock()
			return cannedForecast(key, 3), nil
		},
		metrics: func(ctx context.Context, itemID, model string) (*api.AccuracyMetrics, error) {
			mu.Lock()
			metricsCalls = append(metricsCalls, itemID+"/"+model)
			mu.Unlock()
			return &api.AccuracyMetrics{ItemID: itemID, ModelType: model}, nil
		},
		cost: func(ctx context.Context, itemID, period string) (*api.CostAnalysis, error) {
			mu.Lock()
			costCalls = append(costCalls, itemID+"/"+period)
			mu.Unlock()
			return &api.CostAnalysis{ItemID: itemID, Period: period}, nil
		},
	}

	s := NewStore(fake, Options{})
	key := api.SelectionKey{ItemID: "ITEM003", HorizonDays: 90, Model: api.ModelARIMA}
	s.RefreshWait(context.Background(), key)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []api.SelectionKey{key}, forecastKeys)
	require.Equal(t, []string{"ITEM003/arima"}, metricsCalls)
	require.Equal(t, []string{"ITEM003/30d"}, costCalls)
}

func TestForecastReplacedWholesale(t *testing.T) {
	size := 10
	fake := &fakeAPI{
		forecast: func(ctx context.Context, key api.SelectionKey) (*api.ForecastResult, error) {
			return cannedForecast(key, size), nil
		},
	}

	s := NewStore(fake, Options{})
	ctx := context.Background()

	v := s.RefreshWait(ctx, testKey("ITEM001"))
	require.Len(t, v.Forecast.Points, 10)

	size = 4
	v = s.RefreshWait(ctx, testKey("ITEM001"))
	assert.Len(t, v.Forecast.Points, 4, "new results replace, never merge")
}
