package search

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/propscout/propscout-api/internal/business/market"
	"github.com/propscout/propscout-api/pkg/model"
	"github.com/propscout/propscout-api/pkg/util"
)

type memListingStore struct {
	listings []model.Listing // kept sorted by id
	queryErr error
}

func newMemListingStore(listings []model.Listing) *memListingStore {
	sorted := make([]model.Listing, len(listings))
	copy(sorted, listings)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	return &memListingStore{listings: sorted}
}

func (s *memListingStore) QueryPage(ctx context.Context, afterID string, limit int) ([]model.Listing, error) {
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	start := 0
	if afterID != "" {
		start = sort.Search(len(s.listings), func(i int) bool { return s.listings[i].ID > afterID })
	}
	end := start + limit
	if end > len(s.listings) {
		end = len(s.listings)
	}
	return s.listings[start:end], nil
}

func (s *memListingStore) GetByID(ctx context.Context, id string) (model.Listing, error) {
	for _, l := range s.listings {
		if l.ID == id {
			return l, nil
		}
	}
	return model.Listing{}, fmt.Errorf("listing %s not found", id)
}

func (s *memListingStore) FetchAll(ctx context.Context) ([]model.Listing, error) {
	return s.listings, nil
}

type memRunStore struct {
	mu       sync.Mutex
	runs     map[string]model.SearchRun
	statuses []model.RunStatus
	done     chan struct{}
	closed   bool
}

func newMemRunStore() *memRunStore {
	return &memRunStore{runs: make(map[string]model.SearchRun), done: make(chan struct{})}
}

func (s *memRunStore) save(run model.SearchRun) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.statuses) == 0 || s.statuses[len(s.statuses)-1] != run.Status {
		s.statuses = append(s.statuses, run.Status)
	}
	s.runs[run.ID] = run
	if run.Status.Terminal() && !s.closed {
		s.closed = true
		close(s.done)
	}
}

func (s *memRunStore) CreateRun(ctx context.Context, run model.SearchRun) error {
	s.save(run)
	return nil
}

func (s *memRunStore) UpdateRun(ctx context.Context, run model.SearchRun) error {
	s.save(run)
	return nil
}

func (s *memRunStore) GetRun(ctx context.Context, id string) (model.SearchRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return model.SearchRun{}, fmt.Errorf("run %s not found", id)
	}
	return run, nil
}

func (s *memRunStore) wait(t *testing.T) model.SearchRun {
	t.Helper()
	select {
	case <-s.done:
	case <-time.After(5 * time.Second):
		t.Fatalf("run did not reach a terminal state")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, run := range s.runs {
		return run
	}
	t.Fatalf("no run recorded")
	return model.SearchRun{}
}

type memAssessmentStore struct {
	mu   sync.Mutex
	byID map[string]model.ConditionAssessment
}

func newMemAssessmentStore() *memAssessmentStore {
	return &memAssessmentStore{byID: make(map[string]model.ConditionAssessment)}
}

func (s *memAssessmentStore) Get(ctx context.Context, userID, listingID string) (model.ConditionAssessment, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[util.HashAnalysisKey(userID, listingID)]
	return a, ok, nil
}

func (s *memAssessmentStore) GetManyForUser(ctx context.Context, userID string, listingIDs []string) (map[string]model.ConditionAssessment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]model.ConditionAssessment)
	for _, lid := range listingIDs {
		if a, ok := s.byID[util.HashAnalysisKey(userID, lid)]; ok {
			out[lid] = a
		}
	}
	return out, nil
}

func (s *memAssessmentStore) Save(ctx context.Context, a model.ConditionAssessment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[util.HashAnalysisKey(a.UserID, a.ListingID)] = a
	return nil
}

type stubConditionClient struct {
	mu          sync.Mutex
	calls       int
	multipliers map[string]float64
	failIDs     map[string]bool
}

func (c *stubConditionClient) Assess(ctx context.Context, l model.Listing) (model.ConditionAssessment, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	if c.failIDs[l.ID] {
		return model.ConditionAssessment{}, errors.New("valuation unavailable")
	}
	m := 1.0
	if v, ok := c.multipliers[l.ID]; ok {
		m = v
	}
	return model.ConditionAssessment{ListingID: l.ID, Multiplier: m, Condition: "habitable"}, nil
}

func (c *stubConditionClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func newTestService(listings *memListingStore, runs *memRunStore, analyses *memAssessmentStore, client ConditionClient) *Service {
	return NewService(listings, runs, analyses, client, market.DefaultRenovationConfig(), 5, nil)
}

func apartment(id, neighborhood string, ppm2 float64) model.Listing {
	area := 100.0
	return model.Listing{
		ID:           id,
		Price:        ppm2 * area,
		PropertyType: "apartment",
		Neighborhood: neighborhood,
		City:         "Montevideo",
		AreaTotal:    &area,
		PricePerM2:   &ppm2,
	}
}

func TestSelectTopKClamp(t *testing.T) {
	pool := func(n int) []candidate {
		out := make([]candidate, n)
		for i := range out {
			out[i] = candidate{listing: model.Listing{ID: fmt.Sprintf("l%04d", i)}, score: float64(i)}
		}
		return out
	}

	cases := []struct {
		pool, want int
	}{
		{50, 10},   // ceil(50*0.05)=3, floored at 10
		{1000, 20}, // ceil(1000*0.05)=50, capped at 20
		{5, 5},     // never exceeds the pool
		{0, 0},
		{300, 15}, // ceil(300*0.05)=15, inside the clamp
	}
	for _, c := range cases {
		if got := len(selectTopK(pool(c.pool))); got != c.want {
			t.Errorf("pool %d: top-K = %d, want %d", c.pool, got, c.want)
		}
	}
}

func TestSelectTopKOrdersByScore(t *testing.T) {
	pool := []candidate{
		{listing: model.Listing{ID: "low"}, score: 5},
		{listing: model.Listing{ID: "high"}, score: 50},
		{listing: model.Listing{ID: "mid"}, score: 20},
	}
	selected := selectTopK(pool)
	if selected[0].ID != "high" || selected[1].ID != "mid" || selected[2].ID != "low" {
		t.Errorf("unexpected order: %v", []string{selected[0].ID, selected[1].ID, selected[2].ID})
	}
}

func TestStartRequiresUser(t *testing.T) {
	svc := newTestService(newMemListingStore(nil), newMemRunStore(), newMemAssessmentStore(), &stubConditionClient{})
	if _, err := svc.Start(context.Background(), "", model.SearchFilter{}); err == nil {
		t.Fatalf("missing user id must be rejected synchronously")
	}
}

func TestFunnelEmptyMarket(t *testing.T) {
	runs := newMemRunStore()
	svc := newTestService(newMemListingStore(nil), runs, newMemAssessmentStore(), &stubConditionClient{})

	if _, err := svc.Start(context.Background(), "u1", model.SearchFilter{}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	run := runs.wait(t)
	if run.Status != model.RunCompleted {
		t.Fatalf("status = %s, want completed (error: %s)", run.Status, run.Error)
	}
	if run.TotalMatched != 0 || len(run.ResultIDs) != 0 {
		t.Errorf("empty market must complete with no results: %+v", run)
	}
}

func TestFunnelEndToEnd(t *testing.T) {
	// 100 listings: 60 houses (filtered out) and 40 apartments split over two
	// neighborhoods with price-per-m2 from 500 to 1450. The $120,000 budget
	// excludes the five priciest apartments per neighborhood, leaving 30
	// candidates, so top-K clamps up to 10.
	var listings []model.Listing
	for i := 0; i < 20; i++ {
		ppm2 := float64(500 + 50*i)
		listings = append(listings, apartment(fmt.Sprintf("apt-centro-%02d", i), "Centro", ppm2))
		listings = append(listings, apartment(fmt.Sprintf("apt-norte-%02d", i), "Norte", ppm2))
	}
	for i := 0; i < 60; i++ {
		h := apartment(fmt.Sprintf("house-%02d", i), "Centro", 2000)
		h.PropertyType = "house"
		listings = append(listings, h)
	}

	runs := newMemRunStore()
	client := &stubConditionClient{}
	svc := newTestService(newMemListingStore(listings), runs, newMemAssessmentStore(), client)
	svc.pageSize = 30 // force several pages

	filter := model.SearchFilter{
		PropertyTypes: []string{"apartment"},
		BudgetMax:     120000,
	}
	if _, err := svc.Start(context.Background(), "u1", filter); err != nil {
		t.Fatalf("Start: %v", err)
	}

	run := runs.wait(t)
	if run.Status != model.RunCompleted {
		t.Fatalf("status = %s, want completed (error: %s)", run.Status, run.Error)
	}
	if run.TotalMatched != 40 {
		t.Errorf("TotalMatched = %d, want 40", run.TotalMatched)
	}
	if run.Candidates != 10 {
		t.Errorf("Candidates = %d, want 10", run.Candidates)
	}
	if run.AnalyzedCount != 10 {
		t.Errorf("AnalyzedCount = %d, want 10", run.AnalyzedCount)
	}
	if run.CompletedAt.IsZero() {
		t.Errorf("CompletedAt must be set")
	}

	// Group median is 975 in both neighborhoods; with multiplier 1.0 the net
	// opportunity is 97,500 minus price, so the cheapest apartments win and
	// equal nets tie-break by id.
	want := []string{
		"apt-centro-00", "apt-norte-00",
		"apt-centro-01", "apt-norte-01",
		"apt-centro-02", "apt-norte-02",
		"apt-centro-03", "apt-norte-03",
		"apt-centro-04", "apt-norte-04",
	}
	if len(run.ResultIDs) != len(want) {
		t.Fatalf("ResultIDs = %v, want %v", run.ResultIDs, want)
	}
	for i := range want {
		if run.ResultIDs[i] != want[i] {
			t.Fatalf("ResultIDs = %v, want %v", run.ResultIDs, want)
		}
	}

	// Status walked the full funnel in order.
	wantStatuses := []model.RunStatus{model.RunPending, model.RunFiltering, model.RunAnalyzing, model.RunCompleted}
	if len(runs.statuses) != len(wantStatuses) {
		t.Fatalf("statuses = %v, want %v", runs.statuses, wantStatuses)
	}
	for i := range wantStatuses {
		if runs.statuses[i] != wantStatuses[i] {
			t.Fatalf("statuses = %v, want %v", runs.statuses, wantStatuses)
		}
	}
}

func TestFunnelFailedAnalysesSortLast(t *testing.T) {
	listings := []model.Listing{
		apartment("a1", "Centro", 500),
		apartment("a2", "Centro", 600),
		apartment("a3", "Centro", 700),
		apartment("a4", "Centro", 800),
	}

	runs := newMemRunStore()
	client := &stubConditionClient{failIDs: map[string]bool{"a1": true, "a2": true}}
	svc := newTestService(newMemListingStore(listings), runs, newMemAssessmentStore(), client)

	if _, err := svc.Start(context.Background(), "u1", model.SearchFilter{}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	run := runs.wait(t)
	if run.Status != model.RunCompleted {
		t.Fatalf("per-candidate failures must not fail the run: %s (%s)", run.Status, run.Error)
	}
	if len(run.ResultIDs) != 4 {
		t.Fatalf("ResultIDs = %v, want 4 entries", run.ResultIDs)
	}
	// a3 and a4 have nets; the failed pair sorts last by id.
	if run.ResultIDs[2] != "a1" || run.ResultIDs[3] != "a2" {
		t.Errorf("failed candidates must sort last: %v", run.ResultIDs)
	}
	for _, id := range run.ResultIDs[:2] {
		if id != "a3" && id != "a4" {
			t.Errorf("analyzed candidates must lead: %v", run.ResultIDs)
		}
	}
}

func TestFunnelReusesCachedAssessments(t *testing.T) {
	listings := []model.Listing{
		apartment("a1", "Centro", 500),
		apartment("a2", "Centro", 600),
		apartment("a3", "Centro", 700),
	}

	analyses := newMemAssessmentStore()
	cached := model.ConditionAssessment{
		UserID:    "u1",
		ListingID: "a1",
		Valuation: model.Valuation{NetOpportunity: 999999},
	}
	if err := analyses.Save(context.Background(), cached); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	runs := newMemRunStore()
	client := &stubConditionClient{}
	svc := newTestService(newMemListingStore(listings), runs, analyses, client)

	if _, err := svc.Start(context.Background(), "u1", model.SearchFilter{}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	run := runs.wait(t)
	if run.Status != model.RunCompleted {
		t.Fatalf("status = %s (%s)", run.Status, run.Error)
	}
	if client.callCount() != 2 {
		t.Errorf("cached candidate must not be re-analyzed: %d calls, want 2", client.callCount())
	}
	// The seeded net dwarfs the computed ones, so a1 ranks first.
	if run.ResultIDs[0] != "a1" {
		t.Errorf("cached net must be reused directly: %v", run.ResultIDs)
	}
	if run.AnalyzedCount != 3 {
		t.Errorf("AnalyzedCount = %d, want 3 (1 cached + 2 analyzed)", run.AnalyzedCount)
	}
}

func TestFunnelFailsOnStoreError(t *testing.T) {
	store := newMemListingStore(nil)
	store.queryErr = errors.New("firestore unavailable")

	runs := newMemRunStore()
	svc := newTestService(store, runs, newMemAssessmentStore(), &stubConditionClient{})

	if _, err := svc.Start(context.Background(), "u1", model.SearchFilter{}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	run := runs.wait(t)
	if run.Status != model.RunFailed {
		t.Fatalf("status = %s, want failed", run.Status)
	}
	if run.Error == "" {
		t.Errorf("failure must capture a message")
	}
	if run.CompletedAt.IsZero() {
		t.Errorf("failed runs must carry a completion timestamp")
	}
}
