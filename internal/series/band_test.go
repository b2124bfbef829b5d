package series

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forecastdash/internal/api"
)

func makePoints(n int) []api.ForecastPoint {
	points := make([]api.ForecastPoint, n)
	for i := range points {
		points[i] = api.ForecastPoint{
			Date:           fmt.Sprintf("2025-09-%02d", i+1),
			DemandForecast: 100 + float64(i),
			DemandLower:    90 + float64(i),
			DemandUpper:    110 + float64(i),
			PriceForecast:  50 + float64(i),
			PriceLower:     48 + float64(i),
			PriceUpper:     52 + float64(i),
			Confidence:     0.8,
		}
	}
	return points
}

func TestBuildBandSeriesEmpty(t *testing.T) {
	for _, m := range []Measure{MeasureDemand, MeasurePrice} {
		s := BuildBandSeries(nil, m)
		assert.Empty(t, s.Center.Y)
		assert.Empty(t, s.Upper.Y)
		assert.Empty(t, s.Lower.Y)
		assert.Empty(t, s.Center.X)

		s = BuildBandSeries([]api.ForecastPoint{}, m)
		assert.Empty(t, s.Center.Y)
	}
}

func TestBuildBandSeriesAlignment(t *testing.T) {
	points := makePoints(30)
	s := BuildBandSeries(points, MeasureDemand)

	require.Len(t, s.Center.Y, 30)
	require.Len(t, s.Upper.Y, 30)
	require.Len(t, s.Lower.Y, 30)
	require.Len(t, s.Center.X, 30)

	for i, p := range points {
		assert.Equal(t, p.Date, s.Center.X[i])
		assert.Equal(t, p.DemandForecast, s.Center.Y[i])
		assert.Equal(t, p.DemandUpper, s.Upper.Y[i])
		assert.Equal(t, p.DemandLower, s.Lower.Y[i])
	}
}

func TestBuildBandSeriesPriceMeasure(t *testing.T) {
	points := makePoints(5)
	s := BuildBandSeries(points, MeasurePrice)

	assert.Equal(t, "Price Forecast", s.Center.Name)
	assert.Equal(t, points[0].PriceForecast, s.Center.Y[0])
	assert.Equal(t, points[4].PriceUpper, s.Upper.Y[4])
	assert.Equal(t, points[2].PriceLower, s.Lower.Y[2])
}

func TestBandStyling(t *testing.T) {
	s := BuildBandSeries(makePoints(3), MeasureDemand)

	assert.True(t, s.Center.ShowLegend)
	assert.Empty(t, s.Center.Fill)
	require.NotNil(t, s.Center.Line)
	assert.Empty(t, s.Center.Line.Dash)

	assert.False(t, s.Upper.ShowLegend)
	assert.Equal(t, "dot", s.Upper.Line.Dash)
	assert.Empty(t, s.Upper.Fill, "fill belongs on the lower trace")

	assert.False(t, s.Lower.ShowLegend)
	assert.Equal(t, "dot", s.Lower.Line.Dash)
	assert.Equal(t, "tonexty", s.Lower.Fill)
}

func TestTracesRenderOrder(t *testing.T) {
	s := BuildBandSeries(makePoints(2), MeasureDemand)
	traces := s.Traces()

	require.Len(t, traces, 3)
	assert.Equal(t, "Upper Bound", traces[0].Name)
	assert.Equal(t, "Lower Bound", traces[1].Name)
	assert.Equal(t, "Demand Forecast", traces[2].Name)
}

func TestParseMeasure(t *testing.T) {
	m, err := ParseMeasure("price")
	require.NoError(t, err)
	assert.Equal(t, MeasurePrice, m)

	_, err = ParseMeasure("volume")
	assert.Error(t, err)
}
