// Package valuation wraps the external AI condition-assessment service.
package valuation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/propscout/propscout-api/pkg/model"
)

var (
	// ErrCircuitOpen signals the breaker is open after repeated 402/429 responses.
	ErrCircuitOpen = errors.New("valuation circuit open due to repeated rate/limit errors")
)

// noDataSentinel fills free-text fields the service left empty.
const noDataSentinel = "sin datos"

// HTTPClient matches net/http.Client Do signature for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client calls the AI valuation endpoint with retry and circuit breaker support.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient HTTPClient
	mock       bool

	maxRetries       int
	breakerThreshold int

	mu               sync.Mutex
	consecutiveLimit int
}

// Config defines settings for the valuation client.
type Config struct {
	APIKey     string
	BaseURL    string
	Mock       bool
	MaxRetries int
	BreakerMax int
}

// New creates a valuation client.
func New(httpClient HTTPClient, cfg Config) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	base := cfg.BaseURL
	if base == "" {
		base = "https://api.propscout.dev/v1/assess"
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	breaker := cfg.BreakerMax
	if breaker <= 0 {
		breaker = 5
	}

	return &Client{
		apiKey:           cfg.APIKey,
		baseURL:          base,
		httpClient:       httpClient,
		mock:             cfg.Mock,
		maxRetries:       maxRetries,
		breakerThreshold: breaker,
	}
}

// Assess submits a listing to the AI service and returns the coerced condition
// assessment. Valuation math on top of it belongs to the caller.
func (c *Client) Assess(ctx context.Context, l model.Listing) (model.ConditionAssessment, error) {
	if c.mock {
		return model.ConditionAssessment{
			ListingID:  l.ID,
			Multiplier: 0.85,
			Condition:  "habitable con reformas",
			Report:     "mock assessment",
			Highlights: []string{"good location"},
			Lowlights:  []string{"dated kitchen"},
		}, nil
	}

	if c.breakerOpen() {
		return model.ConditionAssessment{}, ErrCircuitOpen
	}

	payload, err := json.Marshal(assessRequest{
		ListingID:    l.ID,
		URL:          l.URL,
		Price:        l.Price,
		AreaTotal:    l.AreaTotal,
		AreaCovered:  l.AreaCovered,
		Rooms:        l.Rooms,
		PropertyType: l.PropertyType,
		Neighborhood: l.Neighborhood,
		City:         l.City,
	})
	if err != nil {
		return model.ConditionAssessment{}, fmt.Errorf("encode request: %w", err)
	}

	for attempt := 0; attempt < c.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(payload))
		if err != nil {
			return model.ConditionAssessment{}, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if attempt == c.maxRetries-1 {
				return model.ConditionAssessment{}, fmt.Errorf("request: %w", err)
			}
			continue
		}

		if resp.StatusCode == http.StatusOK {
			c.resetBreaker()
			a, err := decodeAssessment(l.ID, resp.Body)
			resp.Body.Close()
			return a, err
		}

		if resp.StatusCode == http.StatusPaymentRequired || resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			if c.recordLimited() {
				return model.ConditionAssessment{}, ErrCircuitOpen
			}
			continue
		}

		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if attempt == c.maxRetries-1 {
			return model.ConditionAssessment{}, fmt.Errorf("valuation status %d: %s", resp.StatusCode, string(body))
		}
	}

	return model.ConditionAssessment{}, fmt.Errorf("valuation failed after retries")
}

func (c *Client) breakerOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.consecutiveLimit >= c.breakerThreshold
}

func (c *Client) resetBreaker() {
	c.mu.Lock()
	c.consecutiveLimit = 0
	c.mu.Unlock()
}

// recordLimited counts one 402/429 response and reports whether the breaker
// just tripped.
func (c *Client) recordLimited() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.consecutiveLimit++
	return c.consecutiveLimit >= c.breakerThreshold
}

// decodeAssessment validates and coerces the wire payload: the multiplier
// defaults to 1.0, arrays default to empty, free text to the "sin datos"
// sentinel.
func decodeAssessment(listingID string, body io.Reader) (model.ConditionAssessment, error) {
	buf, err := io.ReadAll(body)
	if err != nil {
		return model.ConditionAssessment{}, fmt.Errorf("read response: %w", err)
	}
	var wire assessResponse
	if err := json.Unmarshal(bytes.TrimSpace(buf), &wire); err != nil {
		return model.ConditionAssessment{}, fmt.Errorf("decode response: %w", err)
	}

	a := model.ConditionAssessment{
		ListingID:  listingID,
		Multiplier: 1.0,
		Condition:  noDataSentinel,
		Report:     noDataSentinel,
		Highlights: []string{},
		Lowlights:  []string{},
	}
	if wire.ScoreMultiplier != nil && *wire.ScoreMultiplier > 0 {
		a.Multiplier = *wire.ScoreMultiplier
	}
	if wire.Condition != "" {
		a.Condition = wire.Condition
	}
	if wire.Report != "" {
		a.Report = wire.Report
	}
	if wire.Highlights != nil {
		a.Highlights = wire.Highlights
	}
	if wire.Lowlights != nil {
		a.Lowlights = wire.Lowlights
	}
	return a, nil
}

type assessRequest struct {
	ListingID    string   `json:"listing_id"`
	URL          string   `json:"url,omitempty"`
	Price        float64  `json:"price"`
	AreaTotal    *float64 `json:"area_total,omitempty"`
	AreaCovered  *float64 `json:"area_covered,omitempty"`
	Rooms        *int     `json:"rooms,omitempty"`
	PropertyType string   `json:"property_type,omitempty"`
	Neighborhood string   `json:"neighborhood,omitempty"`
	City         string   `json:"city,omitempty"`
}

type assessResponse struct {
	ScoreMultiplier *float64 `json:"score_multiplicador"`
	Condition       string   `json:"estado_general"`
	Report          string   `json:"informe_breve"`
	Highlights      []string `json:"highlights"`
	Lowlights       []string `json:"lowlights"`
}
