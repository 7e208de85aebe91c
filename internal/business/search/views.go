package search

import (
	"context"
	"fmt"

	"github.com/propscout/propscout-api/internal/business/market"
	"github.com/propscout/propscout-api/pkg/model"
)

// ScoredListings returns every listing with its opportunity score for the
// list/map views. Display views compare against the per-neighborhood group;
// the funnel uses the finer (neighborhood, type) grouping instead.
func (s *Service) ScoredListings(ctx context.Context, dealThreshold float64, key market.GroupKeyFn) ([]model.ScoredListing, error) {
	if dealThreshold <= 0 {
		dealThreshold = market.DefaultDealThreshold
	}
	if key == nil {
		key = market.ByNeighborhood
	}
	all, err := s.listings.FetchAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load listings: %w", err)
	}
	return market.ScoreAll(all, key, dealThreshold), nil
}

// MarketStats returns the comparable-group statistics table for dashboards.
func (s *Service) MarketStats(ctx context.Context, key market.GroupKeyFn) (map[string]model.GroupStats, error) {
	if key == nil {
		key = market.ByNeighborhood
	}
	all, err := s.listings.FetchAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load listings: %w", err)
	}
	return market.GroupStats(all, key), nil
}
