package api

import (
	"fmt"
	"strings"
	"time"
)

// Model identifiers accepted by the forecasting service.
const (
	ModelProphet = "prophet"
	ModelARIMA   = "arima"
)

// Horizons lists the forecast horizons the service supports, in days.
var Horizons = []int{30, 60, 90, 180}

// SelectionKey identifies one dashboard view: an item, a forecast horizon,
// and the model that produced the forecast.
type SelectionKey struct {
	ItemID      string `json:"item_id" yaml:"item_id"`
	HorizonDays int    `json:"horizon_days" yaml:"horizon_days"`
	Model       string `json:"model" yaml:"model"`
}

// Validate checks the key against the service's accepted values.
func (k SelectionKey) Validate() error {
	if k.ItemID == "" {
		return fmt.Errorf("selection: item id is empty")
	}
	if !ValidHorizon(k.HorizonDays) {
		return fmt.Errorf("selection: horizon %d not in %v", k.HorizonDays, Horizons)
	}
	if !ValidModel(k.Model) {
		return fmt.Errorf("selection: unknown model %q", k.Model)
	}
	return nil
}

func (k SelectionKey) String() string {
	return fmt.Sprintf("%s/%dd/%s", k.ItemID, k.HorizonDays, k.Model)
}

// ValidModel reports whether m names a supported forecasting model.
func ValidModel(m string) bool {
	return m == ModelProphet || m == ModelARIMA
}

// ValidHorizon reports whether days is a supported forecast horizon.
func ValidHorizon(days int) bool {
	for _, h := range Horizons {
		if h == days {
			return true
		}
	}
	return false
}

// Timestamp decodes generated_at values, which arrive either as RFC3339 or
// as a zone-less ISO-8601 string depending on the service build.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("timestamp: cannot parse %q", s)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.Time.Format(time.RFC3339Nano) + `"`), nil
}

// ForecastPoint is one day of the forecast, with confidence bounds for both
// measures. Dates stay in the service's YYYY-MM-DD form; they are axis
// labels, not instants.
type ForecastPoint struct {
	Date           string  `json:"date"`
	DemandForecast float64 `json:"demand_forecast"`
	DemandLower    float64 `json:"demand_lower"`
	DemandUpper    float64 `json:"demand_upper"`
	PriceForecast  float64 `json:"price_forecast"`
	PriceLower     float64 `json:"price_lower"`
	PriceUpper     float64 `json:"price_upper"`
	Confidence     float64 `json:"confidence"`
}

// ForecastResult is the /forecast response for one selection.
type ForecastResult struct {
	ItemID       string          `json:"item_id"`
	ForecastDays int             `json:"forecast_days"`
	ModelType    string          `json:"model_type"`
	GeneratedAt  Timestamp       `json:"generated_at"`
	MAEDemand    *float64        `json:"mae_demand,omitempty"`
	MAEPrice     *float64        `json:"mae_price,omitempty"`
	Points       []ForecastPoint `json:"forecasts"`
}

// MeasureMetrics holds backtest accuracy statistics for a single measure.
type MeasureMetrics struct {
	MAE  float64 `json:"mae"`
	MAPE float64 `json:"mape"`
	RMSE float64 `json:"rmse"`
	R2   float64 `json:"r2_score"`
}

// AccuracyMetrics is the /metrics response: per-measure backtest statistics
// for an item under one model.
type AccuracyMetrics struct {
	ItemID    string         `json:"item_id"`
	ModelType string         `json:"model_type"`
	Demand    MeasureMetrics `json:"demand_metrics"`
	Price     MeasureMetrics `json:"price_metrics"`
}

// CostAnalysis is the /cost-analysis response for an item over a trailing
// period such as "30d".
type CostAnalysis struct {
	ItemID         string  `json:"item_id"`
	Period         string  `json:"period"`
	AvgCost        float64 `json:"avg_cost"`
	CostVariance   float64 `json:"cost_variance"`
	WasteRate      float64 `json:"waste_rate"`
	TotalWasteCost float64 `json:"total_waste_cost"`
}

// ItemsResponse is the /items response envelope.
type ItemsResponse struct {
	Items []string `json:"items"`
}
