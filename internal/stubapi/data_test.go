package stubapi

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forecastdash/internal/api"
)

func fixedGenerator() *Generator {
	at := time.Date(2025, 9, 1, 8, 0, 0, 0, time.UTC)
	return &Generator{now: func() time.Time { return at }}
}

func TestForecastIsDeterministic(t *testing.T) {
	g := fixedGenerator()

	first := g.Forecast("ITEM001", 90, api.ModelProphet)
	second := g.Forecast("ITEM001", 90, api.ModelProphet)
	assert.Equal(t, first.Points, second.Points)

	other := g.Forecast("ITEM001", 90, api.ModelARIMA)
	assert.NotEqual(t, first.Points, other.Points, "model must influence the series")
}

func TestForecastShape(t *testing.T) {
	g := fixedGenerator()
	res := g.Forecast("ITEM004", 60, api.ModelProphet)

	require.Len(t, res.Points, 60)
	assert.Equal(t, "2025-09-02", res.Points[0].Date, "series starts tomorrow")
	assert.Equal(t, "2025-10-31", res.Points[59].Date)

	for i, p := range res.Points {
		assert.LessOrEqual(t, p.DemandLower, p.DemandForecast, "point %d", i)
		assert.LessOrEqual(t, p.DemandForecast, p.DemandUpper, "point %d", i)
		assert.LessOrEqual(t, p.PriceLower, p.PriceForecast, "point %d", i)
		assert.LessOrEqual(t, p.PriceForecast, p.PriceUpper, "point %d", i)
		assert.GreaterOrEqual(t, p.DemandLower, 0.0)
		assert.GreaterOrEqual(t, p.PriceLower, 10.0)
		assert.Greater(t, p.Confidence, 0.5)
		assert.LessOrEqual(t, p.Confidence, 0.95)
	}

	// Uncertainty grows with distance: the last band is wider than the
	// first relative to its center.
	firstRel := (res.Points[0].DemandUpper - res.Points[0].DemandLower) / res.Points[0].DemandForecast
	lastRel := (res.Points[59].DemandUpper - res.Points[59].DemandLower) / res.Points[59].DemandForecast
	assert.Greater(t, lastRel, firstRel)
}

func TestMetricsStablePerItemAndModel(t *testing.T) {
	g := fixedGenerator()

	m1 := g.Metrics("ITEM003", api.ModelProphet)
	m2 := g.Metrics("ITEM003", api.ModelProphet)
	assert.Equal(t, m1, m2)

	assert.Equal(t, "ITEM003", m1.ItemID)
	assert.Equal(t, api.ModelProphet, m1.ModelType)
	assert.GreaterOrEqual(t, m1.Demand.MAE, 2.5)
	assert.LessOrEqual(t, m1.Demand.MAE, 12.5)
	assert.Greater(t, m1.Demand.RMSE, m1.Demand.MAE)
	assert.LessOrEqual(t, m1.Demand.R2, 0.97)

	seen := map[float64]bool{}
	for _, item := range Catalog {
		for _, model := range []string{api.ModelProphet, api.ModelARIMA} {
			seen[g.Metrics(item, model).Demand.MAE] = true
		}
	}
	assert.Greater(t, len(seen), 1, "accuracy must vary across the catalog")
}

func TestCostAnalysisShape(t *testing.T) {
	g := fixedGenerator()

	c := g.Cost("ITEM005", "60d")
	assert.Equal(t, "ITEM005", c.ItemID)
	assert.Equal(t, "60d", c.Period)
	assert.GreaterOrEqual(t, c.AvgCost, 5.0)
	assert.GreaterOrEqual(t, c.WasteRate, 0.0)
	assert.LessOrEqual(t, c.WasteRate, 0.15)
	assert.GreaterOrEqual(t, c.CostVariance, 0.0)
	assert.GreaterOrEqual(t, c.TotalWasteCost, 0.0)

	assert.Equal(t, c, g.Cost("ITEM005", "60d"))
}

func TestPeriodDays(t *testing.T) {
	assert.Equal(t, 30, periodDays("30d"))
	assert.Equal(t, 90, periodDays("90d"))
	assert.Equal(t, 7, periodDays("7d"))
	assert.Equal(t, 30, periodDays("whenever"))
	assert.Equal(t, 30, periodDays(""))
}
