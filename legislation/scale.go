package legislation

import (
	"github.com/shopspring/decimal"
	"github.com/warp/fisc-engine/periods"
)

// ResolvedBracket is a bracket with its threshold and rate at one instant.
type ResolvedBracket struct {
	Threshold decimal.Decimal
	Rate      decimal.Decimal
}

// ResolvedScale is a scale resolved at one instant, thresholds ascending.
type ResolvedScale struct {
	Path     string
	At       periods.Instant
	Brackets []ResolvedBracket
}

// Apply computes the marginal-rate schedule on base:
//
//	sum over k with t_k <= base of rate_k * (min(base, t_{k+1}) - t_k)
//
// The last bracket has no upper bound. With brackets (0, 0%) and (10, 10%),
// Apply(5) = 0 and Apply(15) = 0*10 + 0.10*5 = 0.5.
func (s *ResolvedScale) Apply(base decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for k, b := range s.Brackets {
		if base.LessThanOrEqual(b.Threshold) {
			break
		}
		upper := base
		if k+1 < len(s.Brackets) {
			upper = decimal.Min(base, s.Brackets[k+1].Threshold)
		}
		total = total.Add(b.Rate.Mul(upper.Sub(b.Threshold)))
	}
	return total
}

// MarginalRate returns the rate of the bracket containing base, or zero
// below the first threshold.
func (s *ResolvedScale) MarginalRate(base decimal.Decimal) decimal.Decimal {
	rate := decimal.Zero
	for _, b := range s.Brackets {
		if base.LessThan(b.Threshold) {
			break
		}
		rate = b.Rate
	}
	return rate
}
