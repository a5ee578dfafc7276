package engine

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ENTITY AGGREGATION
// =============================================================================

// Reduction folds member values into a group value. Every reduction is
// commutative, so member order within a group does not change the result.
type Reduction int

const (
	ReduceSum   Reduction = iota
	ReduceOr              // 1 if any member is non-zero
	ReduceAnd             // 1 if every member is non-zero
	ReduceMax
	ReduceMin
	ReduceCount // number of non-zero members
)

func (r Reduction) String() string {
	switch r {
	case ReduceSum:
		return "sum"
	case ReduceOr:
		return "or"
	case ReduceAnd:
		return "and"
	case ReduceMax:
		return "max"
	case ReduceMin:
		return "min"
	case ReduceCount:
		return "count"
	default:
		return fmt.Sprintf("Reduction(%d)", int(r))
	}
}

// Identity is the value of an empty group: 0 for sum, or and count, 1 for
// and. Max and min have no identity; empty groups get 0.
func (r Reduction) Identity() decimal.Decimal {
	if r == ReduceAnd {
		return one
	}
	return decimal.Zero
}

// Reduce folds values with r.
func (r Reduction) Reduce(values []decimal.Decimal) decimal.Decimal {
	acc := r.Identity()
	for i, v := range values {
		switch r {
		case ReduceSum:
			acc = acc.Add(v)
		case ReduceOr:
			acc = Bool(Truthy(acc) || Truthy(v))
		case ReduceAnd:
			acc = Bool(Truthy(acc) && Truthy(v))
		case ReduceMax:
			if i == 0 || v.GreaterThan(acc) {
				acc = v
			}
		case ReduceMin:
			if i == 0 || v.LessThan(acc) {
				acc = v
			}
		case ReduceCount:
			if Truthy(v) {
				acc = acc.Add(one)
			}
		}
	}
	return acc
}

// MemberValue is a value computed for one member of a group.
type MemberValue struct {
	Member EntityRef
	Group  EntityRef
	Value  decimal.Decimal
}

// SumByEntity reduces member values to one value per group, in the order of
// groups. Groups with no member get the reduction's identity; values whose
// group is not listed are ignored.
func SumByEntity(r Reduction, groups []EntityRef, values []MemberValue) []decimal.Decimal {
	index := make(map[EntityRef]int, len(groups))
	for i, g := range groups {
		index[g] = i
	}
	byGroup := make([][]decimal.Decimal, len(groups))
	for _, mv := range values {
		if i, ok := index[mv.Group]; ok {
			byGroup[i] = append(byGroup[i], mv.Value)
		}
	}
	out := make([]decimal.Decimal, len(groups))
	for i, vals := range byGroup {
		out[i] = r.Reduce(vals)
	}
	return out
}
