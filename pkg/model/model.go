package model

import "time"

// Listing is one observed property for sale, stored in the `listings` collection.
// Nullable source fields are pointers; a listing missing price-per-m2 is kept but
// excluded from statistics and scoring.
type Listing struct {
	ID            string    `json:"id,omitempty" firestore:"id,omitempty"`
	SourceID      string    `json:"sourceId,omitempty" firestore:"sourceId,omitempty"`
	Price         float64   `json:"price,omitempty" firestore:"price,omitempty"`
	Currency      string    `json:"currency,omitempty" firestore:"currency,omitempty"` // "USD" unless the source says otherwise
	AreaTotal     *float64  `json:"areaTotal,omitempty" firestore:"areaTotal,omitempty"`
	AreaCovered   *float64  `json:"areaCovered,omitempty" firestore:"areaCovered,omitempty"`
	Rooms         *int      `json:"rooms,omitempty" firestore:"rooms,omitempty"`
	Bathrooms     *int      `json:"bathrooms,omitempty" firestore:"bathrooms,omitempty"`
	ParkingSpots  *int      `json:"parkingSpots,omitempty" firestore:"parkingSpots,omitempty"`
	PropertyType  string    `json:"propertyType,omitempty" firestore:"propertyType,omitempty"`
	Neighborhood  string    `json:"neighborhood,omitempty" firestore:"neighborhood,omitempty"`
	City          string    `json:"city,omitempty" firestore:"city,omitempty"`
	PricePerM2    *float64  `json:"pricePerM2,omitempty" firestore:"pricePerM2,omitempty"`
	PricePerM2Cov *float64  `json:"pricePerM2Covered,omitempty" firestore:"pricePerM2Covered,omitempty"`
	URL           string    `json:"url,omitempty" firestore:"url,omitempty"`
	ScrapedAt     time.Time `json:"scrapedAt,omitempty" firestore:"scrapedAt,omitempty"`
}

// Scorable reports whether the listing carries enough information to take part
// in price statistics.
func (l Listing) Scorable() bool {
	return l.Price > 0 && l.PricePerM2 != nil && *l.PricePerM2 > 0
}

// GroupStats holds the price-per-m2 distribution of one comparable group.
// Recomputed on demand, never mutated in place.
type GroupStats struct {
	Count  int     `json:"count"`
	Median float64 `json:"median"`
	Mean   float64 `json:"mean"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// OpportunityScore is the per-listing market comparison derived from GroupStats.
type OpportunityScore struct {
	Score              float64 `json:"score"`              // % below group median; negative = above market
	IsTopOpportunity   bool    `json:"isTopOpportunity"`   // cheapest 10% globally by price-per-m2
	IsNeighborhoodDeal bool    `json:"isNeighborhoodDeal"` // score >= caller threshold (default 40)
}

// ScoredListing pairs a listing with its opportunity score for list/map views.
type ScoredListing struct {
	Listing     Listing          `json:"listing"`
	Opportunity OpportunityScore `json:"opportunity"`
}

// ConditionAssessment is the cached result of one AI valuation of a listing,
// stored per (user, listing) in the `analyses` collection.
type ConditionAssessment struct {
	ID         string    `json:"id,omitempty" firestore:"id,omitempty"`
	UserID     string    `json:"userId,omitempty" firestore:"userId,omitempty"`
	ListingID  string    `json:"listingId,omitempty" firestore:"listingId,omitempty"`
	Multiplier float64   `json:"multiplier,omitempty" firestore:"multiplier,omitempty"` // ~1.0 = average condition
	Condition  string    `json:"condition,omitempty" firestore:"condition,omitempty"`
	Report     string    `json:"report,omitempty" firestore:"report,omitempty"`
	Highlights []string  `json:"highlights,omitempty" firestore:"highlights,omitempty"`
	Lowlights  []string  `json:"lowlights,omitempty" firestore:"lowlights,omitempty"`
	Valuation  Valuation `json:"valuation,omitempty" firestore:"valuation,omitempty"`
	CreatedAt  time.Time `json:"createdAt,omitempty" firestore:"createdAt,omitempty"`
}

// Valuation is derived from a ConditionAssessment plus the comparable group's
// statistics; stored alongside the assessment, recomputed when either changes.
type Valuation struct {
	PotentialPerM2  float64 `json:"potentialPerM2,omitempty" firestore:"potentialPerM2,omitempty"`
	PotentialTotal  float64 `json:"potentialTotal,omitempty" firestore:"potentialTotal,omitempty"`
	ComparableCount int     `json:"comparableCount,omitempty" firestore:"comparableCount,omitempty"`
	AdjustedScore   float64 `json:"adjustedScore,omitempty" firestore:"adjustedScore,omitempty"` // 0-10, one decimal
	ScoreLabel      string  `json:"scoreLabel,omitempty" firestore:"scoreLabel,omitempty"`
	RenovationCost  float64 `json:"renovationCost,omitempty" firestore:"renovationCost,omitempty"`
	NetOpportunity  float64 `json:"netOpportunity,omitempty" firestore:"netOpportunity,omitempty"`
	Narrative       string  `json:"narrative,omitempty" firestore:"narrative,omitempty"`
}

// RunStatus enumerates the lifecycle of a search run.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunFiltering RunStatus = "filtering"
	RunAnalyzing RunStatus = "analyzing"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Terminal reports whether no further transitions are allowed from s.
func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunFailed
}

// RangeFilter bounds a numeric listing attribute; zero means unbounded.
type RangeFilter struct {
	Min float64 `json:"min,omitempty" firestore:"min,omitempty"`
	Max float64 `json:"max,omitempty" firestore:"max,omitempty"`
}

// SearchFilter is the conjunctive criteria of a guided search.
type SearchFilter struct {
	PropertyTypes []string    `json:"propertyTypes,omitempty" firestore:"propertyTypes,omitempty"`
	Neighborhoods []string    `json:"neighborhoods,omitempty" firestore:"neighborhoods,omitempty"`
	Cities        []string    `json:"cities,omitempty" firestore:"cities,omitempty"`
	Price         RangeFilter `json:"price,omitempty" firestore:"price,omitempty"`
	AreaTotal     RangeFilter `json:"areaTotal,omitempty" firestore:"areaTotal,omitempty"`
	Rooms         RangeFilter `json:"rooms,omitempty" firestore:"rooms,omitempty"`
	ParkingSpots  RangeFilter `json:"parkingSpots,omitempty" firestore:"parkingSpots,omitempty"`
	BudgetMax     float64     `json:"budgetMax,omitempty" firestore:"budgetMax,omitempty"` // price + renovation cap; 0 = no cap
}

// SearchRun tracks one guided-search execution, polled by clients.
type SearchRun struct {
	ID            string       `json:"id,omitempty" firestore:"id,omitempty"`
	UserID        string       `json:"userId,omitempty" firestore:"userId,omitempty"`
	Filter        SearchFilter `json:"filter,omitempty" firestore:"filter,omitempty"`
	Status        RunStatus    `json:"status,omitempty" firestore:"status,omitempty"`
	TotalMatched  int          `json:"totalMatched" firestore:"totalMatched"`
	Candidates    int          `json:"candidates" firestore:"candidates"`
	AnalyzedCount int          `json:"analyzedCount" firestore:"analyzedCount"`
	ResultIDs     []string     `json:"resultIds,omitempty" firestore:"resultIds,omitempty"` // ordered, at most 10
	Error         string       `json:"error,omitempty" firestore:"error,omitempty"`
	CreatedAt     time.Time    `json:"createdAt,omitempty" firestore:"createdAt,omitempty"`
	CompletedAt   time.Time    `json:"completedAt,omitempty" firestore:"completedAt,omitempty"`
}
