package market

import (
	"math"
	"sort"

	"github.com/propscout/propscout-api/pkg/model"
)

// DefaultDealThreshold is the % below median at which a listing counts as a
// neighborhood deal. The UI exposes it as a 0-100 slider.
const DefaultDealThreshold = 40.0

// topOpportunityFraction is the global percentile cut for the top-opportunity flag.
const topOpportunityFraction = 0.10

// Score computes how far below its group's median a listing is priced, as a
// signed percentage. Missing group stats fall back to the listing's own
// price-per-m2, which yields 0; a zero median also yields 0. Never errors.
func Score(l model.Listing, stats model.GroupStats, ok bool) float64 {
	if !l.Scorable() {
		return 0
	}
	median := stats.Median
	if !ok || median == 0 {
		median = *l.PricePerM2
	}
	if median == 0 {
		return 0
	}
	return (median - *l.PricePerM2) / median * 100
}

// ScoreAll scores every listing against its group and sets the derived flags.
// The threshold parameter is the neighborhood-deal cutoff; pass
// DefaultDealThreshold unless the caller overrides it. The returned slice
// preserves input order and includes unscorable listings with a zero score.
func ScoreAll(listings []model.Listing, key GroupKeyFn, threshold float64) []model.ScoredListing {
	stats := GroupStats(listings, key)
	topIDs := topOpportunityIDs(listings)

	scored := make([]model.ScoredListing, 0, len(listings))
	for _, l := range listings {
		gs, ok := stats[key(l)]
		s := Score(l, gs, ok)
		scored = append(scored, model.ScoredListing{
			Listing: l,
			Opportunity: model.OpportunityScore{
				Score:              s,
				IsTopOpportunity:   topIDs[l.ID],
				IsNeighborhoodDeal: l.Scorable() && s >= threshold,
			},
		})
	}
	return scored
}

// topOpportunityIDs flags the cheapest ceil(n*0.10) scorable listings globally
// by price-per-m2. Ties at the cut are broken by listing id so the flag set is
// deterministic across runs.
func topOpportunityIDs(listings []model.Listing) map[string]bool {
	scorable := make([]model.Listing, 0, len(listings))
	for _, l := range listings {
		if l.Scorable() {
			scorable = append(scorable, l)
		}
	}
	if len(scorable) == 0 {
		return nil
	}

	sort.Slice(scorable, func(i, j int) bool {
		if *scorable[i].PricePerM2 != *scorable[j].PricePerM2 {
			return *scorable[i].PricePerM2 < *scorable[j].PricePerM2
		}
		return scorable[i].ID < scorable[j].ID
	})

	cut := int(math.Ceil(float64(len(scorable)) * topOpportunityFraction))
	flagged := make(map[string]bool, cut)
	for _, l := range scorable[:cut] {
		flagged[l.ID] = true
	}
	return flagged
}
