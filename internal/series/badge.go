package series

import "forecastdash/internal/api"

// Badge labels a model's backtest accuracy on the metric cards.
type Badge string

const (
	BadgeExcellent        Badge = "Excellent"
	BadgeGood             Badge = "Good"
	BadgeNeedsImprovement Badge = "Needs Improvement"
)

// Tier boundaries in raw MAE units, as reported by the service.
const (
	maeExcellentMax = 5.0
	maeGoodMax      = 10.0
)

// ClassifyMAE buckets a mean-absolute-error value into a display badge.
// Boundary values land in the better tier.
func ClassifyMAE(mae float64) Badge {
	switch {
	case mae <= maeExcellentMax:
		return BadgeExcellent
	case mae <= maeGoodMax:
		return BadgeGood
	default:
		return BadgeNeedsImprovement
	}
}

// Badges derives per-measure badges from an accuracy response. A nil
// response yields an empty map; the cards section is simply absent.
func Badges(m *api.AccuracyMetrics) map[Measure]Badge {
	if m == nil {
		return map[Measure]Badge{}
	}
	return map[Measure]Badge{
		MeasureDemand: ClassifyMAE(m.Demand.MAE),
		MeasurePrice:  ClassifyMAE(m.Price.MAE),
	}
}
