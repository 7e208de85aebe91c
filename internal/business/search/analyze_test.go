package search

import (
	"context"
	"testing"

	"github.com/propscout/propscout-api/pkg/model"
)

func analyzeFixture() (*Service, *stubConditionClient, *memAssessmentStore) {
	listings := []model.Listing{
		apartment("a1", "Centro", 600),
		apartment("a2", "Centro", 1000),
		apartment("a3", "Centro", 1400),
	}
	client := &stubConditionClient{multipliers: map[string]float64{"a1": 0.8}}
	analyses := newMemAssessmentStore()
	svc := newTestService(newMemListingStore(listings), newMemRunStore(), analyses, client)
	return svc, client, analyses
}

func TestAnalyzeListingStoresAssessment(t *testing.T) {
	svc, client, analyses := analyzeFixture()

	a, err := svc.AnalyzeListing(context.Background(), "u1", "a1", false)
	if err != nil {
		t.Fatalf("AnalyzeListing: %v", err)
	}
	if a.UserID != "u1" || a.ListingID != "a1" || a.Multiplier != 0.8 {
		t.Errorf("unexpected assessment: %+v", a)
	}
	if a.Valuation.ComparableCount != 3 {
		t.Errorf("comparable count = %d, want 3", a.Valuation.ComparableCount)
	}
	if a.CreatedAt.IsZero() {
		t.Errorf("CreatedAt must be set")
	}
	if _, ok, _ := analyses.Get(context.Background(), "u1", "a1"); !ok {
		t.Errorf("assessment must be cached")
	}
	if client.callCount() != 1 {
		t.Errorf("expected one AI call, got %d", client.callCount())
	}
}

func TestAnalyzeListingReusesCache(t *testing.T) {
	svc, client, _ := analyzeFixture()

	if _, err := svc.AnalyzeListing(context.Background(), "u1", "a1", false); err != nil {
		t.Fatalf("first analyze: %v", err)
	}
	if _, err := svc.AnalyzeListing(context.Background(), "u1", "a1", false); err != nil {
		t.Fatalf("second analyze: %v", err)
	}
	if client.callCount() != 1 {
		t.Errorf("cached analyze must not call the AI service again, got %d calls", client.callCount())
	}

	// force bypasses the cache.
	if _, err := svc.AnalyzeListing(context.Background(), "u1", "a1", true); err != nil {
		t.Fatalf("forced analyze: %v", err)
	}
	if client.callCount() != 2 {
		t.Errorf("forced analyze must call the AI service, got %d calls", client.callCount())
	}
}

func TestAnalyzeListingCacheIsPerUser(t *testing.T) {
	svc, client, _ := analyzeFixture()

	if _, err := svc.AnalyzeListing(context.Background(), "u1", "a1", false); err != nil {
		t.Fatalf("u1 analyze: %v", err)
	}
	if _, err := svc.AnalyzeListing(context.Background(), "u2", "a1", false); err != nil {
		t.Fatalf("u2 analyze: %v", err)
	}
	if client.callCount() != 2 {
		t.Errorf("each user gets their own cache entry, got %d calls", client.callCount())
	}
}

func TestAnalyzeListingValidatesInput(t *testing.T) {
	svc, _, _ := analyzeFixture()

	if _, err := svc.AnalyzeListing(context.Background(), "", "a1", false); err == nil {
		t.Errorf("missing user id must be rejected")
	}
	if _, err := svc.AnalyzeListing(context.Background(), "u1", "", false); err == nil {
		t.Errorf("missing listing id must be rejected")
	}
}

func TestGetAnalysisRecomputesValuation(t *testing.T) {
	svc, _, analyses := analyzeFixture()

	first, err := svc.AnalyzeListing(context.Background(), "u1", "a1", false)
	if err != nil {
		t.Fatalf("AnalyzeListing: %v", err)
	}

	// Tamper with the stored valuation; a read must recompute it from the
	// current comparable statistics instead of echoing the stored figure.
	stale := first
	stale.Valuation.NetOpportunity = -1
	stale.Valuation.PotentialTotal = -1
	if err := analyses.Save(context.Background(), stale); err != nil {
		t.Fatalf("save stale: %v", err)
	}

	got, ok, err := svc.GetAnalysis(context.Background(), "u1", "a1")
	if err != nil || !ok {
		t.Fatalf("GetAnalysis: ok=%v err=%v", ok, err)
	}
	if got.Valuation.PotentialTotal != first.Valuation.PotentialTotal {
		t.Errorf("valuation not recomputed: got %v, want %v", got.Valuation.PotentialTotal, first.Valuation.PotentialTotal)
	}
}

func TestGetAnalysisMissing(t *testing.T) {
	svc, _, _ := analyzeFixture()

	_, ok, err := svc.GetAnalysis(context.Background(), "u1", "a2")
	if err != nil {
		t.Fatalf("GetAnalysis: %v", err)
	}
	if ok {
		t.Errorf("expected no cached analysis")
	}
}
