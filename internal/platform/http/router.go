package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/propscout/propscout-api/internal/business/market"
	"github.com/propscout/propscout-api/internal/business/search"
	"github.com/propscout/propscout-api/internal/repository"
	"github.com/propscout/propscout-api/pkg/model"
)

// Router wires HTTP handlers.
type Router struct {
	listings  *repository.ListingRepository
	runs      *repository.RunRepository
	analyses  *repository.AnalysisRepository
	favorites *repository.FavoritesRepository
	search    *search.Service
	origins   string
}

func NewRouter(listings *repository.ListingRepository, runs *repository.RunRepository, analyses *repository.AnalysisRepository, favorites *repository.FavoritesRepository, searchSvc *search.Service, allowedOrigins string) *gin.Engine {
	r := &Router{
		listings:  listings,
		runs:      runs,
		analyses:  analyses,
		favorites: favorites,
		search:    searchSvc,
		origins:   allowedOrigins,
	}

	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery(), r.corsMiddleware())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	{
		api.POST("/listings/import", r.importListings)
		api.GET("/listings", r.listScoredListings)
		api.POST("/listings/:id/analyze", r.analyzeListing)
		api.GET("/listings/:id/analysis", r.getAnalysis)
		api.GET("/analyses", r.listAnalyses)
		api.GET("/market/stats", r.getMarketStats)
		api.GET("/favorites", r.listFavorites)
		api.PUT("/favorites/:listingID", r.addFavorite)
		api.DELETE("/favorites/:listingID", r.removeFavorite)
		api.POST("/search/run", r.startSearch)
		api.GET("/search/status", r.getSearchStatus)
		api.GET("/search/runs", r.listSearchRuns)
	}

	return router
}

func (r *Router) corsMiddleware() gin.HandlerFunc {
	origins := strings.Split(r.origins, ",")
	trimmed := make([]string, 0, len(origins))
	for _, o := range origins {
		if t := strings.TrimSpace(o); t != "" {
			trimmed = append(trimmed, t)
		}
	}
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		allowed := "*"
		for _, o := range trimmed {
			if o == "*" || o == origin {
				allowed = origin
				break
			}
		}
		c.Header("Access-Control-Allow-Origin", allowed)
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-User-ID")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		if c.Request.Method == http.MethodOptions {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		c.Next()
	}
}

// userID pulls the caller identity; authn itself lives upstream.
func userID(c *gin.Context) string {
	return strings.TrimSpace(c.GetHeader("X-User-ID"))
}

type importReq struct {
	Listings []model.Listing `json:"listings"`
}

func (r *Router) importListings(c *gin.Context) {
	var req importReq
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	if len(req.Listings) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no listings provided"})
		return
	}
	if err := r.listings.BatchUpsert(c.Request.Context(), req.Listings); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"imported": len(req.Listings)})
}

func (r *Router) listScoredListings(c *gin.Context) {
	threshold, _ := strconv.ParseFloat(c.DefaultQuery("dealThreshold", "40"), 64)
	key := market.ByNeighborhood
	if c.Query("groupBy") == "neighborhood_type" {
		key = market.ByNeighborhoodType
	}
	scored, err := r.search.ScoredListings(c.Request.Context(), threshold, key)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": scored, "total": len(scored)})
}

func (r *Router) getMarketStats(c *gin.Context) {
	key := market.ByNeighborhood
	if c.Query("groupBy") == "neighborhood_type" {
		key = market.ByNeighborhoodType
	}
	stats, err := r.search.MarketStats(c.Request.Context(), key)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (r *Router) analyzeListing(c *gin.Context) {
	uid := userID(c)
	if uid == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "X-User-ID header is required"})
		return
	}
	force := c.Query("force") == "true"
	a, err := r.search.AnalyzeListing(c.Request.Context(), uid, c.Param("id"), force)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, a)
}

func (r *Router) getAnalysis(c *gin.Context) {
	uid := userID(c)
	if uid == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "X-User-ID header is required"})
		return
	}
	a, ok, err := r.search.GetAnalysis(c.Request.Context(), uid, c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no analysis for listing"})
		return
	}
	c.JSON(http.StatusOK, a)
}

func (r *Router) listAnalyses(c *gin.Context) {
	uid := userID(c)
	if uid == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "X-User-ID header is required"})
		return
	}
	analyses, err := r.analyses.ListForUser(c.Request.Context(), uid)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if analyses == nil {
		analyses = []model.ConditionAssessment{}
	}
	c.JSON(http.StatusOK, gin.H{"items": analyses, "total": len(analyses)})
}

func (r *Router) listFavorites(c *gin.Context) {
	uid := userID(c)
	if uid == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "X-User-ID header is required"})
		return
	}
	ids, err := r.favorites.List(c.Request.Context(), uid)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if ids == nil {
		ids = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"listingIds": ids})
}

func (r *Router) addFavorite(c *gin.Context) {
	uid := userID(c)
	if uid == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "X-User-ID header is required"})
		return
	}
	if err := r.favorites.Add(c.Request.Context(), uid, c.Param("listingID")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (r *Router) removeFavorite(c *gin.Context) {
	uid := userID(c)
	if uid == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "X-User-ID header is required"})
		return
	}
	if err := r.favorites.Remove(c.Request.Context(), uid, c.Param("listingID")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (r *Router) startSearch(c *gin.Context) {
	uid := userID(c)
	if uid == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "X-User-ID header is required"})
		return
	}
	var filter model.SearchFilter
	if err := c.BindJSON(&filter); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	runID, err := r.search.Start(c.Request.Context(), uid, filter)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runId": runID})
}

func (r *Router) getSearchStatus(c *gin.Context) {
	runID := c.Query("runId")
	if runID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "runId is required"})
		return
	}
	run, err := r.runs.GetRun(c.Request.Context(), runID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, run)
}

func (r *Router) listSearchRuns(c *gin.Context) {
	runs, err := r.runs.ListRuns(c.Request.Context(), 20)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": runs})
}
