// Package market holds the pure pricing math: comparable-group statistics,
// opportunity scoring, renovation cost estimation and AI-adjusted valuation.
package market

import (
	"sort"

	"github.com/propscout/propscout-api/pkg/model"
)

// GroupKeyFn maps a listing to its comparable-group key.
type GroupKeyFn func(l model.Listing) string

// ByNeighborhood groups listings by neighborhood only. Used for the ad hoc
// list/map views.
func ByNeighborhood(l model.Listing) string {
	return l.Neighborhood
}

// ByNeighborhoodType groups listings by (neighborhood, property type). Used by
// the search funnel for finer-grained comparables.
func ByNeighborhoodType(l model.Listing) string {
	return l.Neighborhood + "|" + l.PropertyType
}

// GroupStats partitions listings by key and reduces each partition's positive
// price-per-m2 values to count/median/mean/min/max. Listings without a usable
// price-per-m2 never contribute; groups with no qualifying listing are omitted.
func GroupStats(listings []model.Listing, key GroupKeyFn) map[string]model.GroupStats {
	values := make(map[string][]float64)
	for _, l := range listings {
		if !l.Scorable() {
			continue
		}
		k := key(l)
		values[k] = append(values[k], *l.PricePerM2)
	}

	stats := make(map[string]model.GroupStats, len(values))
	for k, vs := range values {
		stats[k] = reduce(vs)
	}
	return stats
}

func reduce(vs []float64) model.GroupStats {
	sort.Float64s(vs)

	var sum float64
	for _, v := range vs {
		sum += v
	}

	return model.GroupStats{
		Count:  len(vs),
		Median: Median(vs),
		Mean:   sum / float64(len(vs)),
		Min:    vs[0],
		Max:    vs[len(vs)-1],
	}
}

// Median returns the textbook median of an ascending-sorted slice: the middle
// element, or the average of the two middle elements when the count is even.
// Returns 0 for an empty slice.
func Median(sorted []float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	mid := n / 2
	if n%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
