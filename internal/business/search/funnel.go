// Package search implements the guided-search funnel: hard filters, comparable
// grouping, budget-aware pre-selection, bounded-concurrency AI analysis and the
// final net-opportunity ranking, tracked through a persisted run record.
package search

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/propscout/propscout-api/internal/business/market"
	"github.com/propscout/propscout-api/pkg/model"
	"github.com/propscout/propscout-api/pkg/util"
)

// Top-K selection bounds: top 5% of the budget-filtered pool, floored at 10 and
// capped at 20 candidates.
const (
	topFraction = 0.05
	topFloor    = 10
	topCeiling  = 20
	resultLimit = 10
)

const defaultPageSize = 1000

// ListingStore abstracts the listing collection for the funnel.
type ListingStore interface {
	// QueryPage returns up to limit listings ordered by id, starting after
	// afterID ("" for the first page).
	QueryPage(ctx context.Context, afterID string, limit int) ([]model.Listing, error)
	GetByID(ctx context.Context, id string) (model.Listing, error)
	FetchAll(ctx context.Context) ([]model.Listing, error)
}

// RunStore persists search run lifecycle records.
type RunStore interface {
	CreateRun(ctx context.Context, run model.SearchRun) error
	UpdateRun(ctx context.Context, run model.SearchRun) error
	GetRun(ctx context.Context, id string) (model.SearchRun, error)
}

// AssessmentStore is the per-(user, listing) cache of AI condition assessments.
type AssessmentStore interface {
	Get(ctx context.Context, userID, listingID string) (model.ConditionAssessment, bool, error)
	GetManyForUser(ctx context.Context, userID string, listingIDs []string) (map[string]model.ConditionAssessment, error)
	Save(ctx context.Context, a model.ConditionAssessment) error
}

// ConditionClient abstracts the AI valuation service for testability.
type ConditionClient interface {
	Assess(ctx context.Context, l model.Listing) (model.ConditionAssessment, error)
}

// Service orchestrates end-to-end guided searches.
type Service struct {
	listings  ListingStore
	runs      RunStore
	analyses  AssessmentStore
	condition ConditionClient
	reno      market.RenovationConfig
	batchSize int
	pageSize  int
	logFn     func(string)
}

func NewService(listings ListingStore, runs RunStore, analyses AssessmentStore, condition ConditionClient, reno market.RenovationConfig, batchSize int, logFn func(string)) *Service {
	if batchSize <= 0 {
		batchSize = 5
	}
	if logFn == nil {
		logFn = func(string) {}
	}
	return &Service{
		listings:  listings,
		runs:      runs,
		analyses:  analyses,
		condition: condition,
		reno:      reno.Normalize(),
		batchSize: batchSize,
		pageSize:  defaultPageSize,
		logFn:     logFn,
	}
}

// Start validates the request, persists a pending run and kicks off the funnel
// asynchronously. Returns the run id for status polling.
func (s *Service) Start(ctx context.Context, userID string, filter model.SearchFilter) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("userId is required")
	}
	run := model.SearchRun{
		ID:        uuid.NewString(),
		UserID:    userID,
		Filter:    filter,
		Status:    model.RunPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.runs.CreateRun(ctx, run); err != nil {
		return "", err
	}
	go s.execute(context.Background(), run)
	return run.ID, nil
}

// execute walks the funnel stages, persisting each transition. Any stage error
// flips the run to failed with the message captured; the run never stalls.
func (s *Service) execute(ctx context.Context, run model.SearchRun) {
	defer func() {
		if r := recover(); r != nil {
			s.fail(ctx, run, fmt.Errorf("panic: %v", r))
		}
	}()

	run, err := s.transition(ctx, run, model.RunFiltering)
	if err != nil {
		s.fail(ctx, run, err)
		return
	}

	matched, err := s.filterListings(ctx, run.Filter)
	if err != nil {
		s.fail(ctx, run, fmt.Errorf("filter listings: %w", err))
		return
	}
	run.TotalMatched = len(matched)

	stats := market.GroupStats(matched, market.ByNeighborhoodType)
	candidates := scoreCandidates(matched, stats)

	if run.Filter.BudgetMax > 0 {
		candidates = s.applyBudget(candidates, stats, run.Filter.BudgetMax)
	}

	selected := selectTopK(candidates)
	run.Candidates = len(selected)

	run, err = s.transition(ctx, run, model.RunAnalyzing)
	if err != nil {
		s.fail(ctx, run, err)
		return
	}

	ranked, err := s.analyzeCandidates(ctx, &run, selected, stats)
	if err != nil {
		s.fail(ctx, run, err)
		return
	}

	if len(ranked) > resultLimit {
		ranked = ranked[:resultLimit]
	}
	run.ResultIDs = ranked
	run.CompletedAt = time.Now().UTC()
	if _, err := s.transition(ctx, run, model.RunCompleted); err != nil {
		s.fail(ctx, run, err)
	}
}

// filterListings pages through the listing store applying the conjunctive
// filters until the collection is exhausted.
func (s *Service) filterListings(ctx context.Context, filter model.SearchFilter) ([]model.Listing, error) {
	var matched []model.Listing
	afterID := ""
	for {
		page, err := s.listings.QueryPage(ctx, afterID, s.pageSize)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		for _, l := range page {
			if MatchesFilter(l, filter) {
				matched = append(matched, l)
			}
		}
		afterID = page[len(page)-1].ID
		if len(page) < s.pageSize {
			break
		}
	}
	return matched, nil
}

// candidate carries a survivor through scoring and selection.
type candidate struct {
	listing model.Listing
	score   float64 // % below the (neighborhood, type) group median
}

func scoreCandidates(listings []model.Listing, stats map[string]model.GroupStats) []candidate {
	out := make([]candidate, 0, len(listings))
	for _, l := range listings {
		gs, ok := stats[market.ByNeighborhoodType(l)]
		out = append(out, candidate{listing: l, score: market.Score(l, gs, ok)})
	}
	return out
}

// applyBudget drops candidates whose price plus estimated renovation cost
// exceeds the cap. The funnel always estimates over the total-area basis.
func (s *Service) applyBudget(candidates []candidate, stats map[string]model.GroupStats, budgetMax float64) []candidate {
	cfg := s.reno
	cfg.Basis = market.BasisTotal

	kept := candidates[:0]
	for _, c := range candidates {
		var ppm2, areaTotal, areaCovered float64
		if c.listing.PricePerM2 != nil {
			ppm2 = *c.listing.PricePerM2
		}
		if c.listing.AreaTotal != nil {
			areaTotal = *c.listing.AreaTotal
		}
		if c.listing.AreaCovered != nil {
			areaCovered = *c.listing.AreaCovered
		}
		ratio := market.ConditionRatio(ppm2, stats[market.ByNeighborhoodType(c.listing)].Median)
		cost := market.EstimateCost(cfg, ratio, areaTotal, areaCovered)
		if c.listing.Price+cost <= budgetMax {
			kept = append(kept, c)
		}
	}
	return kept
}

// selectTopK sorts by opportunity score descending (ties broken by listing id)
// and keeps clamp(ceil(n*0.05), 10, 20) candidates, never more than the pool.
func selectTopK(candidates []candidate) []model.Listing {
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].listing.ID < candidates[j].listing.ID
	})

	k := int(math.Ceil(float64(len(candidates)) * topFraction))
	if k < topFloor {
		k = topFloor
	}
	if k > topCeiling {
		k = topCeiling
	}
	if k > len(candidates) {
		k = len(candidates)
	}

	selected := make([]model.Listing, 0, k)
	for _, c := range candidates[:k] {
		selected = append(selected, c.listing)
	}
	return selected
}

// analyzeCandidates reuses cached assessments, analyzes the rest in bounded
// batches and returns the candidate ids ranked by net opportunity descending.
// Candidates without a net figure (failed or unanalyzed) sort last.
func (s *Service) analyzeCandidates(ctx context.Context, run *model.SearchRun, selected []model.Listing, stats map[string]model.GroupStats) ([]string, error) {
	ids := make([]string, 0, len(selected))
	for _, l := range selected {
		ids = append(ids, l.ID)
	}

	cached, err := s.analyses.GetManyForUser(ctx, run.UserID, ids)
	if err != nil {
		return nil, fmt.Errorf("load cached analyses: %w", err)
	}

	type outcome struct {
		net float64
		ok  bool
	}
	nets := make(map[string]outcome, len(selected))
	var toAnalyze []model.Listing
	for _, l := range selected {
		if a, ok := cached[l.ID]; ok {
			nets[l.ID] = outcome{net: a.Valuation.NetOpportunity, ok: true}
			continue
		}
		toAnalyze = append(toAnalyze, l)
	}

	run.AnalyzedCount = len(cached)
	if err := s.runs.UpdateRun(ctx, *run); err != nil {
		return nil, fmt.Errorf("update run: %w", err)
	}

	var mu sync.Mutex
	analyze := func(ctx context.Context, l model.Listing) error {
		a, err := s.analyzeOne(ctx, run.UserID, l, stats[market.ByNeighborhoodType(l)])
		if err != nil {
			s.logFn(fmt.Sprintf("run %s: analyze listing %s: %v", run.ID, l.ID, err))
			return err
		}
		mu.Lock()
		nets[l.ID] = outcome{net: a.Valuation.NetOpportunity, ok: true}
		mu.Unlock()
		return nil
	}

	dispatchBatches(ctx, toAnalyze, s.batchSize, analyze, func(done int) {
		run.AnalyzedCount = len(cached) + done
		if err := s.runs.UpdateRun(ctx, *run); err != nil {
			s.logFn(fmt.Sprintf("run %s: update progress: %v", run.ID, err))
		}
	})

	sort.Slice(ids, func(i, j int) bool {
		a, b := nets[ids[i]], nets[ids[j]]
		if a.ok != b.ok {
			return a.ok
		}
		if a.net != b.net {
			return a.net > b.net
		}
		return ids[i] < ids[j]
	})
	return ids, nil
}

// analyzeOne calls the AI service for a listing, derives its valuation from the
// comparable group and stores the assessment in the per-user cache.
func (s *Service) analyzeOne(ctx context.Context, userID string, l model.Listing, stats model.GroupStats) (model.ConditionAssessment, error) {
	a, err := s.condition.Assess(ctx, l)
	if err != nil {
		return model.ConditionAssessment{}, err
	}
	a.ID = util.HashAnalysisKey(userID, l.ID)
	a.UserID = userID
	a.ListingID = l.ID
	a.Valuation = market.Valuate(l, a.Multiplier, stats, s.reno)
	a.CreatedAt = time.Now().UTC()
	if err := s.analyses.Save(ctx, a); err != nil {
		return model.ConditionAssessment{}, fmt.Errorf("save assessment: %w", err)
	}
	return a, nil
}

// transition advances the run's status, persisting the change. Invalid
// transitions are programming errors and surface as run failures.
func (s *Service) transition(ctx context.Context, run model.SearchRun, to model.RunStatus) (model.SearchRun, error) {
	if !CanTransition(run.Status, to) {
		return run, fmt.Errorf("invalid transition %s -> %s", run.Status, to)
	}
	run.Status = to
	if err := s.runs.UpdateRun(ctx, run); err != nil {
		return run, fmt.Errorf("update run: %w", err)
	}
	return run, nil
}

func (s *Service) fail(ctx context.Context, run model.SearchRun, cause error) {
	s.logFn(fmt.Sprintf("run %s failed: %v", run.ID, cause))
	if !CanTransition(run.Status, model.RunFailed) {
		return
	}
	run.Status = model.RunFailed
	run.Error = cause.Error()
	run.CompletedAt = time.Now().UTC()
	if err := s.runs.UpdateRun(ctx, run); err != nil {
		s.logFn(fmt.Sprintf("run %s: persist failure state: %v", run.ID, err))
	}
}
