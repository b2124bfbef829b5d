package series

import (
	"fmt"

	"forecastdash/internal/api"
)

// Measure selects which side of the forecast a chart renders.
type Measure string

const (
	MeasureDemand Measure = "demand"
	MeasurePrice  Measure = "price"
)

// ParseMeasure maps a query-string value onto a Measure.
func ParseMeasure(s string) (Measure, error) {
	switch Measure(s) {
	case MeasureDemand:
		return MeasureDemand, nil
	case MeasurePrice:
		return MeasurePrice, nil
	}
	return "", fmt.Errorf("unknown measure %q", s)
}

// Title is the legend label for the measure's center trace.
func (m Measure) Title() string {
	if m == MeasurePrice {
		return "Price Forecast"
	}
	return "Demand Forecast"
}

// Line styles a trace's stroke.
type Line struct {
	Dash  string `json:"dash,omitempty"`
	Width int    `json:"width,omitempty"`
}

// Trace is one renderable line in the chart library's trace schema.
type Trace struct {
	Name       string    `json:"name"`
	X          []string  `json:"x"`
	Y          []float64 `json:"y"`
	Mode       string    `json:"mode"`
	Line       *Line     `json:"line,omitempty"`
	Fill       string    `json:"fill,omitempty"`
	ShowLegend bool      `json:"showlegend"`
}

// ChartSeries is the band chart for one measure: the center estimate plus
// the confidence bounds, aligned index-for-index on a shared date axis.
type ChartSeries struct {
	Measure Measure `json:"measure"`
	Center  Trace   `json:"center"`
	Upper   Trace   `json:"upper"`
	Lower   Trace   `json:"lower"`
}

// Traces returns the series in render order: bounds first so the lower
// trace's fill shades the band, center last so the line draws on top.
func (s ChartSeries) Traces() []Trace {
	return []Trace{s.Upper, s.Lower, s.Center}
}

// BuildBandSeries converts forecast points into the three aligned traces a
// band chart renders. The center estimate is a solid line; the bounds are
// dotted and kept out of the legend; the lower bound fills against the
// upper, producing the shaded confidence band. Point order and count are
// preserved; empty input yields an empty series.
func BuildBandSeries(points []api.ForecastPoint, m Measure) ChartSeries {
	n := len(points)
	dates := make([]string, n)
	center := make([]float64, n)
	upper := make([]float64, n)
	lower := make([]float64, n)

	for i, p := range points {
		dates[i] = p.Date
		if m == MeasurePrice {
			center[i] = p.PriceForecast
			upper[i] = p.PriceUpper
			lower[i] = p.PriceLower
		} else {
			center[i] = p.DemandForecast
			upper[i] = p.DemandUpper
			lower[i] = p.DemandLower
		}
	}

	return ChartSeries{
		Measure: m,
		Center: Trace{
			Name:       m.Title(),
			X:          dates,
			Y:          center,
			Mode:       "lines",
			Line:       &Line{Width: 2},
			ShowLegend: true,
		},
		Upper: Trace{
			Name:       "Upper Bound",
			X:          dates,
			Y:          upper,
			Mode:       "lines",
			Line:       &Line{Dash: "dot", Width: 1},
			ShowLegend: false,
		},
		Lower: Trace{
			Name:       "Lower Bound",
			X:          dates,
			Y:          lower,
			Mode:       "lines",
			Line:       &Line{Dash: "dot", Width: 1},
			Fill:       "tonexty",
			ShowLegend: false,
		},
	}
}
