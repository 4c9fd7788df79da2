package rewards

import (
	"fmt"

	"github.com/sbellem/SiennaNetwork/internal/fixed"
	"github.com/sbellem/SiennaNetwork/internal/types"
)

// Variant selects the accounting rules of a pool. It is fixed at creation.
type Variant string

// Supported variants
const (
	// VariantBonding is the plain algorithm: claims are gated by bonding only
	VariantBonding Variant = "bonding"
	// VariantAgeThreshold also requires a minimum time with stake before claiming
	VariantAgeThreshold Variant = "age_threshold"
	// VariantLiquidityRatio scales the budget by the share of time the pool held liquidity
	VariantLiquidityRatio Variant = "liquidity_ratio"
)

// Settings is the tagged variant configuration
type Settings struct {
	Variant      Variant             `json:"variant" yaml:"variant"`
	AgeThreshold *AgeThresholdConfig `json:"age_threshold,omitempty" yaml:"age_threshold"`
}

// AgeThresholdConfig is the extra configuration of VariantAgeThreshold
type AgeThresholdConfig struct {
	Threshold types.Duration `json:"threshold" yaml:"threshold"`
}

func (s Settings) normalize() Settings {
	if s.Variant == "" {
		s.Variant = VariantBonding
	}
	return s
}

// Validate checks that exactly the sub-record matching the variant is present
func (s Settings) Validate() error {
	s = s.normalize()
	switch s.Variant {
	case VariantBonding, VariantLiquidityRatio:
		if s.AgeThreshold != nil {
			return fmt.Errorf("%w: age_threshold set for variant %s", ErrInvalidPool, s.Variant)
		}
	case VariantAgeThreshold:
		if s.AgeThreshold == nil {
			return fmt.Errorf("%w: variant %s needs age_threshold", ErrInvalidPool, s.Variant)
		}
	default:
		return fmt.Errorf("%w: unknown variant %q", ErrInvalidPool, s.Variant)
	}
	return nil
}

// Pool-level variant keys
var (
	keyTotalPopulated = []byte("/total/populated")
	keyTotalLiquid    = []byte("/total/liquid")
)

// LiquidityTotals are the pool extras of VariantLiquidityRatio
type LiquidityTotals struct {
	// Populated is when stake was first locked
	Populated *types.Moment `json:"populated,omitempty"`
	// Liquid is how long the pool has held a non-zero stake
	Liquid types.Duration `json:"liquid"`
	// Ratio is liquid / (now - populated)
	Ratio fixed.Ratio `json:"ratio"`
}

// AgeThresholdTotals are the pool extras of VariantAgeThreshold
type AgeThresholdTotals struct {
	Threshold types.Duration `json:"threshold"`
}

// AgeAccount is the account extra of VariantAgeThreshold
type AgeAccount struct {
	// Present is the cumulative time this account held a non-zero stake
	Present types.Duration `json:"present"`
	// Remaining is how long until Present reaches the threshold
	Remaining types.Duration `json:"remaining"`
}
