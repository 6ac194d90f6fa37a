package version

import (
	mm "github.com/Masterminds/semver/v3"
)

// bound is one endpoint of an interval. A nil version means unbounded.
type bound struct {
	v         *mm.Version
	inclusive bool
}

// interval is a contiguous version range [lower, upper] with per-endpoint
// inclusivity. Both endpoints nil means the full line.
type interval struct {
	lower bound
	upper bound
}

// rangeSet is a union of intervals. An empty set matches nothing.
type rangeSet []interval

func fullRange() rangeSet {
	return rangeSet{{}}
}

func pointRange(v *mm.Version) rangeSet {
	return rangeSet{{
		lower: bound{v: v, inclusive: true},
		upper: bound{v: v, inclusive: true},
	}}
}

// isEmpty reports whether an interval contains no versions.
func (iv interval) isEmpty() bool {
	if iv.lower.v == nil || iv.upper.v == nil {
		return false
	}
	cmp := iv.lower.v.Compare(iv.upper.v)
	if cmp > 0 {
		return true
	}
	if cmp == 0 {
		return !(iv.lower.inclusive && iv.upper.inclusive)
	}
	return false
}

// maxLower returns the tighter of two lower bounds.
func maxLower(a, b bound) bound {
	if a.v == nil {
		return b
	}
	if b.v == nil {
		return a
	}
	switch cmp := a.v.Compare(b.v); {
	case cmp > 0:
		return a
	case cmp < 0:
		return b
	default:
		// Same version: exclusive is tighter.
		if !a.inclusive {
			return a
		}
		return b
	}
}

// minUpper returns the tighter of two upper bounds.
func minUpper(a, b bound) bound {
	if a.v == nil {
		return b
	}
	if b.v == nil {
		return a
	}
	switch cmp := a.v.Compare(b.v); {
	case cmp < 0:
		return a
	case cmp > 0:
		return b
	default:
		if !a.inclusive {
			return a
		}
		return b
	}
}

// intersect computes the pairwise intersection of two unions of intervals,
// dropping empty results.
func intersect(a, b rangeSet) rangeSet {
	var out rangeSet
	for _, ia := range a {
		for _, ib := range b {
			iv := interval{
				lower: maxLower(ia.lower, ib.lower),
				upper: minUpper(ia.upper, ib.upper),
			}
			if !iv.isEmpty() {
				out = append(out, iv)
			}
		}
	}
	return out
}

// intersectAll folds intersect over a list of range sets.
func intersectAll(sets []rangeSet) rangeSet {
	acc := fullRange()
	for _, s := range sets {
		acc = intersect(acc, s)
		if len(acc) == 0 {
			return nil
		}
	}
	return acc
}
