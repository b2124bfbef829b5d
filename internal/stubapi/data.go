package stubapi

import (
	"hash/fnv"
	"math"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"forecastdash/internal/api"
)

// Catalog is the fixed item set the stub serves.
var Catalog = []string{"ITEM001", "ITEM002", "ITEM003", "ITEM004", "ITEM005"}

// KnownItem reports whether itemID is in the stub catalog.
func KnownItem(itemID string) bool {
	for _, id := range Catalog {
		if id == itemID {
			return true
		}
	}
	return false
}

// Generator synthesizes forecasting payloads. Identical requests always
// produce identical series: every value is drawn from a generator seeded by
// the request parameters, so load runs and tests see stable data without
// any state on disk.
type Generator struct {
	now func() time.Time
}

// NewGenerator returns a generator on the real clock.
func NewGenerator() *Generator {
	return &Generator{now: time.Now}
}

func seedFor(parts ...string) int64 {
	h := fnv.New64a()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return int64(h.Sum64())
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round4(v float64) float64 { return math.Round(v*10000) / 10000 }

// Forecast produces a daily series starting tomorrow. Demand combines a
// base around 100 units with yearly and weekly seasonality plus a small
// upward trend; price sits around 50 with a slow inflation drift and mild
// demand correlation. Confidence bands widen toward the end of the horizon.
func (g *Generator) Forecast(itemID string, days int, model string) api.ForecastResult {
	rng := rand.New(rand.NewSource(seedFor(itemID, model, strconv.Itoa(days))))
	start := g.now().AddDate(0, 0, 1)

	points := make([]api.ForecastPoint, 0, days)
	for i := 0; i < days; i++ {
		day := start.AddDate(0, 0, i)
		progress := float64(i) / float64(days)

		seasonal := 1 + 0.3*math.Sin(2*math.Pi*float64(day.YearDay())/365.25)
		weekly := 1 + 0.1*math.Sin(2*math.Pi*float64(i)/7)
		demand := (100+rng.NormFloat64()*10)*seasonal*weekly + 0.001*float64(i)
		demand = math.Max(demand, 0)
		demandSpread := demand * (0.05 + 0.10*progress)

		price := 50 + rng.NormFloat64()*5 + 0.01*float64(i) + 0.1*(demand-100)/10
		price = math.Max(price, 10)
		priceSpread := price * (0.04 + 0.08*progress)

		points = append(points, api.ForecastPoint{
			Date:           day.Format("2006-01-02"),
			DemandForecast: round2(demand),
			DemandLower:    round2(math.Max(demand-demandSpread, 0)),
			DemandUpper:    round2(demand + demandSpread),
			PriceForecast:  round2(price),
			PriceLower:     round2(math.Max(price-priceSpread, 10)),
			PriceUpper:     round2(price + priceSpread),
			Confidence:     round2(0.95 - 0.3*progress),
		})
	}

	metrics := g.Metrics(itemID, model)
	maeDemand := metrics.Demand.MAE
	maePrice := metrics.Price.MAE

	return api.ForecastResult{
		ItemID:       itemID,
		ForecastDays: days,
		ModelType:    model,
		GeneratedAt:  api.Timestamp{Time: g.now().UTC()},
		MAEDemand:    &maeDemand,
		MAEPrice:     &maePrice,
		Points:       points,
	}
}

// Metrics produces backtest accuracy for one item under one model. MAE
// values are stable per (item, model) and span the whole quality range, so
// every badge shows up somewhere in the catalog.
func (g *Generator) Metrics(itemID, model string) api.AccuracyMetrics {
	rng := rand.New(rand.NewSource(seedFor(itemID, model, "metrics")))

	return api.AccuracyMetrics{
		ItemID:    itemID,
		ModelType: model,
		Demand:    measureFrom(2.5 + rng.Float64()*10),
		Price:     measureFrom(1.2 + rng.Float64()*6),
	}
}

func measureFrom(mae float64) api.MeasureMetrics {
	return api.MeasureMetrics{
		MAE:  round2(mae),
		MAPE: round2(mae * 1.8),
		RMSE: round2(mae * 1.35),
		R2:   round4(math.Max(0.97-mae*0.03, 0)),
	}
}

// Cost produces trailing cost analysis. Costs track roughly 70% of the base
// price; waste rates skew low, rarely above a few percent.
func (g *Generator) Cost(itemID, period string) api.CostAnalysis {
	rng := rand.New(rand.NewSource(seedFor(itemID, period, "cost")))

	avgCost := math.Max(35+rng.NormFloat64()*3, 5)
	wasteRate := rng.Float64() * rng.Float64() * 0.15
	days := periodDays(period)

	return api.CostAnalysis{
		ItemID:         itemID,
		Period:         period,
		AvgCost:        round2(avgCost),
		CostVariance:   round2(math.Abs(rng.NormFloat64()) * 2.5),
		WasteRate:      round4(wasteRate),
		TotalWasteCost: round2(avgCost * wasteRate * 100 * float64(days)),
	}
}

// periodDays parses trailing periods like "30d". Unparseable input falls
// back to 30 days.
func periodDays(period string) int {
	if n, err := strconv.Atoi(strings.TrimSuffix(period, "d")); err == nil && n > 0 {
		return n
	}
	return 30
}
