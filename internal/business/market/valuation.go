package market

import (
	"fmt"
	"math"

	"github.com/propscout/propscout-api/pkg/model"
)

// Narrative and bucket thresholds. Boundary values are part of the contract:
// a 30% discount is "below market", 30.01% is "far below market".
const (
	farBelowMarketPct  = 30.0
	belowMarketPct     = 15.0
	excellentCondition = 1.1
	poorCondition      = 0.7
)

// Adjusted-opportunity scale bounds: the raw condition-scaled discount is
// clamped to [-40, 40] and mapped linearly onto [0, 10].
const adjustedClamp = 40.0

// Valuate derives the full valuation for an analyzed listing from its AI
// condition multiplier and the comparable group's statistics.
//
// The upper quartile is approximated as q3 = 2*mean - median (mirror of the
// median about the mean) since raw samples are not retained. On a left-skewed
// group this can land below the median; the estimate is kept as-is, not
// clamped.
func Valuate(l model.Listing, multiplier float64, stats model.GroupStats, reno RenovationConfig) model.Valuation {
	q3 := 2*stats.Mean - stats.Median
	potentialPerM2 := (stats.Median + q3) / 2

	var areaTotal, areaCovered float64
	if l.AreaTotal != nil {
		areaTotal = *l.AreaTotal
	}
	if l.AreaCovered != nil {
		areaCovered = *l.AreaCovered
	}
	potentialTotal := potentialPerM2 * areaTotal

	var discountPct float64
	if l.Scorable() && stats.Median > 0 {
		discountPct = (stats.Median - *l.PricePerM2) / stats.Median * 100
	}

	adjusted := AdjustedScore(discountPct, multiplier)

	// The tier table reads the AI multiplier the same way the budget filter
	// reads the price ratio.
	renovationCost := EstimateCost(reno, multiplier, areaTotal, areaCovered)

	return model.Valuation{
		PotentialPerM2:  potentialPerM2,
		PotentialTotal:  potentialTotal,
		ComparableCount: stats.Count,
		AdjustedScore:   adjusted,
		ScoreLabel:      ScoreLabel(adjusted),
		RenovationCost:  renovationCost,
		NetOpportunity:  potentialTotal - l.Price - renovationCost,
		Narrative:       Narrative(discountPct, multiplier),
	}
}

// AdjustedScore blends the price discount with the condition multiplier into a
// 0-10 figure rounded to one decimal.
func AdjustedScore(discountPct, multiplier float64) float64 {
	raw := discountPct * multiplier
	clamped := math.Max(-adjustedClamp, math.Min(adjustedClamp, raw))
	score := (clamped + adjustedClamp) / (2 * adjustedClamp) * 10
	return math.Round(score*10) / 10
}

// ScoreLabel buckets an adjusted score into its qualitative label.
func ScoreLabel(score float64) string {
	switch {
	case score >= 8:
		return "Excellent"
	case score >= 6:
		return "Good"
	case score >= 4:
		return "Fair"
	default:
		return "Low"
	}
}

// Narrative composes the short report line from the discount and condition
// thresholds.
func Narrative(discountPct, multiplier float64) string {
	var price string
	switch {
	case discountPct > farBelowMarketPct:
		price = fmt.Sprintf("priced far below market (%.1f%% under comparables)", discountPct)
	case discountPct > belowMarketPct:
		price = fmt.Sprintf("priced below market (%.1f%% under comparables)", discountPct)
	case discountPct >= 0:
		price = "priced in line with comparables"
	default:
		price = fmt.Sprintf("priced above market (%.1f%% over comparables)", -discountPct)
	}

	var condition string
	switch {
	case multiplier >= excellentCondition:
		condition = "excellent condition"
	case multiplier < poorCondition:
		condition = "needs full renovation"
	default:
		condition = "average condition"
	}

	return price + ", " + condition
}
