package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/propscout/propscout-api/internal/business/market"
)

// Config holds runtime configuration loaded from environment variables.
type Config struct {
	Port                string
	GinMode             string
	FirebaseProjectID   string
	FirebaseCredsBase64 string
	FirebaseCredsFile   string
	ValuationAPIKey     string
	ValuationBaseURL    string
	ValuationMock       bool
	AnalyzeBatchSize    int
	Renovation          market.RenovationConfig
	AllowedOrigins      string
}

// Load reads environment variables into a Config with sensible defaults.
func Load() (Config, error) {
	cfg := Config{
		Port:                getEnv("PORT", "8080"),
		GinMode:             getEnv("GIN_MODE", "release"),
		FirebaseProjectID:   strings.TrimSpace(os.Getenv("FIREBASE_PROJECT_ID")),
		FirebaseCredsBase64: strings.TrimSpace(os.Getenv("FIREBASE_CREDS_BASE64")),
		FirebaseCredsFile:   strings.TrimSpace(os.Getenv("FIREBASE_CREDS_FILE")),
		ValuationAPIKey:     strings.TrimSpace(os.Getenv("VALUATION_API_KEY")),
		ValuationBaseURL:    strings.TrimSpace(os.Getenv("VALUATION_BASE_URL")),
		AllowedOrigins:      strings.TrimSpace(os.Getenv("ALLOWED_ORIGINS")),
	}

	mock, err := parseBoolEnv("VALUATION_MOCK", false)
	if err != nil {
		return Config{}, fmt.Errorf("parse VALUATION_MOCK: %w", err)
	}
	cfg.ValuationMock = mock

	batch, err := parseIntEnv("ANALYZE_BATCH_SIZE", 5)
	if err != nil {
		return Config{}, fmt.Errorf("parse ANALYZE_BATCH_SIZE: %w", err)
	}
	cfg.AnalyzeBatchSize = batch

	reno, err := loadRenovationConfig()
	if err != nil {
		return Config{}, err
	}
	cfg.Renovation = reno

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate ensures required fields are present.
func (c Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if c.FirebaseProjectID == "" {
		return errors.New("FIREBASE_PROJECT_ID is required")
	}
	if c.FirebaseCredsBase64 == "" && c.FirebaseCredsFile == "" {
		return errors.New("provide FIREBASE_CREDS_BASE64 or FIREBASE_CREDS_FILE for Firestore auth")
	}
	if c.AnalyzeBatchSize <= 0 {
		return errors.New("ANALYZE_BATCH_SIZE must be positive")
	}
	return c.Renovation.Validate()
}

// loadRenovationConfig builds the cost model from env, falling back to the
// stock table. RENOVATION_TIERS format: "1.0:0,0.9:80,0.8:200,...", each pair
// being minRatio:costPerM2.
func loadRenovationConfig() (market.RenovationConfig, error) {
	cfg := market.DefaultRenovationConfig()

	if basis := strings.TrimSpace(os.Getenv("RENOVATION_AREA_BASIS")); basis != "" {
		cfg.Basis = market.AreaBasis(basis)
	}
	floor, err := parseBoolEnv("RENOVATION_MIN_AREA_FLOOR", cfg.MinAreaFloor)
	if err != nil {
		return cfg, fmt.Errorf("parse RENOVATION_MIN_AREA_FLOOR: %w", err)
	}
	cfg.MinAreaFloor = floor

	if spec := strings.TrimSpace(os.Getenv("RENOVATION_TIERS")); spec != "" {
		tiers, err := ParseTiers(spec)
		if err != nil {
			return cfg, fmt.Errorf("parse RENOVATION_TIERS: %w", err)
		}
		cfg.Tiers = tiers
	}

	cfg = cfg.Normalize()
	return cfg, cfg.Validate()
}

// ParseTiers parses a comma-separated minRatio:costPerM2 tier table.
func ParseTiers(spec string) ([]market.CostTier, error) {
	var tiers []market.CostTier
	for _, pair := range strings.Split(spec, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("malformed tier %q", pair)
		}
		ratio, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		if err != nil {
			return nil, fmt.Errorf("tier %q: %w", pair, err)
		}
		cost, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("tier %q: %w", pair, err)
		}
		tiers = append(tiers, market.CostTier{MinRatio: ratio, CostPerM2: cost})
	}
	if len(tiers) == 0 {
		return nil, errors.New("empty tier table")
	}
	return tiers, nil
}

// FirebaseCredentialsJSON returns the service account JSON bytes and the source used.
func (c Config) FirebaseCredentialsJSON() ([]byte, string, error) {
	if c.FirebaseCredsBase64 != "" {
		decoded, err := base64.StdEncoding.DecodeString(c.FirebaseCredsBase64)
		if err != nil {
			return nil, "base64", fmt.Errorf("decode FIREBASE_CREDS_BASE64: %w", err)
		}
		return decoded, "base64", nil
	}
	if c.FirebaseCredsFile != "" {
		data, err := os.ReadFile(c.FirebaseCredsFile)
		if err != nil {
			return nil, "file", fmt.Errorf("read FIREBASE_CREDS_FILE: %w", err)
		}
		return data, "file", nil
	}
	return nil, "", errors.New("no firebase credentials found")
}

func getEnv(key, defaultVal string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return defaultVal
}

func parseBoolEnv(key string, defaultVal bool) (bool, error) {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return defaultVal, nil
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return false, err
	}
	return parsed, nil
}

func parseIntEnv(key string, defaultVal int) (int, error) {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return defaultVal, nil
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return 0, err
	}
	return parsed, nil
}
