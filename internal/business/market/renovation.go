package market

import (
	"fmt"
	"sort"
)

// AreaBasis selects which area measure the renovation cost is computed over.
type AreaBasis string

const (
	BasisTotal   AreaBasis = "total"
	BasisCovered AreaBasis = "covered"
)

// needsImprovementRatio is the condition ratio below which a tier counts as one
// of the worst tiers, enabling the minimum-area-floor rule.
const needsImprovementRatio = 0.7

// CostTier maps a minimum condition ratio to a renovation cost per m2.
type CostTier struct {
	MinRatio  float64 `json:"minRatio"`
	CostPerM2 float64 `json:"costPerM2"`
}

// RenovationConfig is the runtime-configurable cost model.
type RenovationConfig struct {
	Tiers        []CostTier // resolved highest MinRatio first
	Basis        AreaBasis
	MinAreaFloor bool // substitute total/2 for a disproportionately small covered area
}

// DefaultTiers is the stock six-tier table: pristine condition costs nothing,
// a listing priced under 55% of its comparables' median gets the full $700/m2.
func DefaultTiers() []CostTier {
	return []CostTier{
		{MinRatio: 1.0, CostPerM2: 0},
		{MinRatio: 0.9, CostPerM2: 80},
		{MinRatio: 0.8, CostPerM2: 200},
		{MinRatio: 0.7, CostPerM2: 350},
		{MinRatio: 0.55, CostPerM2: 500},
		{MinRatio: 0, CostPerM2: 700},
	}
}

// DefaultRenovationConfig applies defaults for any unset field.
func DefaultRenovationConfig() RenovationConfig {
	return RenovationConfig{
		Tiers:        DefaultTiers(),
		Basis:        BasisTotal,
		MinAreaFloor: true,
	}
}

// Normalize fills defaults and sorts the tier table for resolution.
func (c RenovationConfig) Normalize() RenovationConfig {
	if len(c.Tiers) == 0 {
		c.Tiers = DefaultTiers()
	}
	if c.Basis == "" {
		c.Basis = BasisTotal
	}
	sorted := make([]CostTier, len(c.Tiers))
	copy(sorted, c.Tiers)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].MinRatio > sorted[j].MinRatio })
	c.Tiers = sorted
	return c
}

// Validate rejects unusable tier tables.
func (c RenovationConfig) Validate() error {
	if len(c.Tiers) == 0 {
		return fmt.Errorf("renovation config: at least one cost tier required")
	}
	for _, t := range c.Tiers {
		if t.MinRatio < 0 || t.CostPerM2 < 0 {
			return fmt.Errorf("renovation config: negative tier value (minRatio=%v costPerM2=%v)", t.MinRatio, t.CostPerM2)
		}
	}
	if c.Basis != BasisTotal && c.Basis != BasisCovered {
		return fmt.Errorf("renovation config: unknown area basis %q", c.Basis)
	}
	return nil
}

// ConditionRatio proxies physical condition as price-per-m2 over the comparable
// group's median. A missing or zero median yields 1.0 so absent data never
// inflates the estimated cost.
func ConditionRatio(pricePerM2, groupMedian float64) float64 {
	if groupMedian <= 0 {
		return 1.0
	}
	return pricePerM2 / groupMedian
}

// resolveTier scans tiers from the highest MinRatio down and returns the first
// tier whose threshold is at or below the ratio; a ratio below every threshold
// gets the lowest tier. Tiers must already be sorted (Normalize).
func resolveTier(tiers []CostTier, ratio float64) CostTier {
	for _, t := range tiers {
		if ratio >= t.MinRatio {
			return t
		}
	}
	return tiers[len(tiers)-1]
}

// EstimateCost computes the renovation cost for a listing given its condition
// ratio and area measures. The minimum-area floor substitutes totalArea/2 when
// the covered footprint is disproportionately small on a poor-condition lot:
// it only fires for the covered basis, with the floor enabled, on one of the
// two worst tiers.
func EstimateCost(cfg RenovationConfig, ratio, areaTotal, areaCovered float64) float64 {
	tier := resolveTier(cfg.Tiers, ratio)

	area := areaTotal
	if cfg.Basis == BasisCovered {
		area = areaCovered
		if cfg.MinAreaFloor && tier.MinRatio < needsImprovementRatio && areaCovered < areaTotal/2 {
			area = areaTotal / 2
		}
	}
	if area <= 0 {
		return 0
	}
	return tier.CostPerM2 * area
}
