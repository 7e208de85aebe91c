package search

import (
	"strings"

	"github.com/propscout/propscout-api/pkg/model"
)

// MatchesFilter applies the conjunctive hard filters of a guided search to one
// listing. Set membership is case-insensitive; range filters over a missing
// attribute exclude the listing (there is nothing to compare against).
func MatchesFilter(l model.Listing, f model.SearchFilter) bool {
	if !inSet(l.PropertyType, f.PropertyTypes) {
		return false
	}
	if !inSet(l.Neighborhood, f.Neighborhoods) {
		return false
	}
	if !inSet(l.City, f.Cities) {
		return false
	}
	if !inRange(l.Price, f.Price) {
		return false
	}
	if !inRangePtr(l.AreaTotal, f.AreaTotal) {
		return false
	}
	if !inRangeInt(l.Rooms, f.Rooms) {
		return false
	}
	if !inRangeInt(l.ParkingSpots, f.ParkingSpots) {
		return false
	}
	return true
}

func inSet(value string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(value)) {
			return true
		}
	}
	return false
}

func inRange(v float64, r model.RangeFilter) bool {
	if r.Min > 0 && v < r.Min {
		return false
	}
	if r.Max > 0 && v > r.Max {
		return false
	}
	return true
}

func inRangePtr(v *float64, r model.RangeFilter) bool {
	if r.Min == 0 && r.Max == 0 {
		return true
	}
	if v == nil {
		return false
	}
	return inRange(*v, r)
}

func inRangeInt(v *int, r model.RangeFilter) bool {
	if r.Min == 0 && r.Max == 0 {
		return true
	}
	if v == nil {
		return false
	}
	return inRange(float64(*v), r)
}
