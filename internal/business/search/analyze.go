package search

import (
	"context"
	"fmt"

	"github.com/propscout/propscout-api/internal/business/market"
	"github.com/propscout/propscout-api/pkg/model"
)

// AnalyzeListing runs (or reuses) the AI valuation of a single listing for a
// user. With force set, the cached assessment is ignored and recomputed.
func (s *Service) AnalyzeListing(ctx context.Context, userID, listingID string, force bool) (model.ConditionAssessment, error) {
	if userID == "" || listingID == "" {
		return model.ConditionAssessment{}, fmt.Errorf("userId and listingId are required")
	}

	if !force {
		cached, ok, err := s.analyses.Get(ctx, userID, listingID)
		if err != nil {
			return model.ConditionAssessment{}, fmt.Errorf("load cached assessment: %w", err)
		}
		if ok {
			return cached, nil
		}
	}

	l, err := s.listings.GetByID(ctx, listingID)
	if err != nil {
		return model.ConditionAssessment{}, fmt.Errorf("load listing %s: %w", listingID, err)
	}

	stats, err := s.comparableStats(ctx, l)
	if err != nil {
		return model.ConditionAssessment{}, err
	}
	return s.analyzeOne(ctx, userID, l, stats)
}

// GetAnalysis returns the cached assessment with its valuation recomputed from
// the current comparable statistics; the stored record is left untouched.
func (s *Service) GetAnalysis(ctx context.Context, userID, listingID string) (model.ConditionAssessment, bool, error) {
	if userID == "" || listingID == "" {
		return model.ConditionAssessment{}, false, fmt.Errorf("userId and listingId are required")
	}

	a, ok, err := s.analyses.Get(ctx, userID, listingID)
	if err != nil || !ok {
		return model.ConditionAssessment{}, false, err
	}

	l, err := s.listings.GetByID(ctx, listingID)
	if err != nil {
		return model.ConditionAssessment{}, false, fmt.Errorf("load listing %s: %w", listingID, err)
	}
	stats, err := s.comparableStats(ctx, l)
	if err != nil {
		return model.ConditionAssessment{}, false, err
	}
	a.Valuation = market.Valuate(l, a.Multiplier, stats, s.reno)
	return a, true, nil
}

func (s *Service) comparableStats(ctx context.Context, l model.Listing) (model.GroupStats, error) {
	all, err := s.listings.FetchAll(ctx)
	if err != nil {
		return model.GroupStats{}, fmt.Errorf("load listings: %w", err)
	}
	stats := market.GroupStats(all, market.ByNeighborhoodType)
	return stats[market.ByNeighborhoodType(l)], nil
}
