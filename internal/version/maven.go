package version

import (
	"strings"

	mm "github.com/Masterminds/semver/v3"
)

// mavenComparator implements Maven's bracket range syntax:
//
//	[1.0,2.0)  half-open range
//	[1.0]      exact pin
//	(,1.0]     unbounded below
//	[1.0,2.0),[3.0,)  union
//
// A bare version ("1.0") is Maven's soft requirement and does not
// constrain; it only biases selection. Version ordering is delegated to
// Masterminds, which covers the numeric-dotted versions Maven artifacts
// use in practice.
type mavenComparator struct{}

func (c *mavenComparator) Scheme() Scheme { return SchemeMaven }

func (c *mavenComparator) Compare(a, b string) (int, error) {
	va, err := mm.NewVersion(strings.TrimSpace(a))
	if err != nil {
		return 0, err
	}
	vb, err := mm.NewVersion(strings.TrimSpace(b))
	if err != nil {
		return 0, err
	}
	return va.Compare(vb), nil
}

func (c *mavenComparator) Satisfies(version, constraint string) bool {
	v, err := mm.NewVersion(strings.TrimSpace(version))
	if err != nil {
		return strings.TrimSpace(version) == strings.TrimSpace(constraint)
	}
	rs, ok := mavenToRangeSet(constraint)
	if !ok {
		return strings.TrimSpace(version) == strings.TrimSpace(constraint)
	}
	return rangeContains(rs, v)
}

func (c *mavenComparator) Empty(constraints []string) bool {
	sets := make([]rangeSet, 0, len(constraints))
	for _, raw := range constraints {
		rs, ok := mavenToRangeSet(raw)
		if !ok {
			return countDistinct(constraints) > 1
		}
		sets = append(sets, rs)
	}
	return len(intersectAll(sets)) == 0
}

func (c *mavenComparator) MaxSatisfying(candidates, constraints []string) (string, bool) {
	var best *mm.Version
	var bestRaw string
	for _, raw := range candidates {
		v, err := mm.NewVersion(strings.TrimSpace(raw))
		if err != nil {
			continue
		}
		ok := true
		for _, constraint := range constraints {
			if !c.Satisfies(raw, constraint) {
				ok = false
				break
			}
		}
		if !ok {
			continue
		}
		if best == nil || v.Compare(best) > 0 {
			best = v
			bestRaw = raw
		}
	}
	return bestRaw, best != nil
}

func rangeContains(rs rangeSet, v *mm.Version) bool {
	for _, iv := range rs {
		if iv.lower.v != nil {
			cmp := v.Compare(iv.lower.v)
			if cmp < 0 || (cmp == 0 && !iv.lower.inclusive) {
				continue
			}
		}
		if iv.upper.v != nil {
			cmp := v.Compare(iv.upper.v)
			if cmp > 0 || (cmp == 0 && !iv.upper.inclusive) {
				continue
			}
		}
		return true
	}
	return false
}

// mavenToRangeSet parses a Maven range expression into intervals. A soft
// requirement (no brackets) parses to the full range.
func mavenToRangeSet(raw string) (rangeSet, bool) {
	s := strings.TrimSpace(raw)
	if s == "" || s == "*" {
		return fullRange(), true
	}
	if !strings.ContainsAny(s, "[]()") {
		if _, err := mm.NewVersion(s); err != nil {
			return nil, false
		}
		return fullRange(), true
	}

	var out rangeSet
	for len(s) > 0 {
		open := s[0]
		if open != '[' && open != '(' {
			return nil, false
		}
		end := strings.IndexAny(s, "])")
		if end < 0 {
			return nil, false
		}
		closeCh := s[end]
		body := s[1:end]
		iv, ok := mavenInterval(body, open == '[', closeCh == ']')
		if !ok {
			return nil, false
		}
		if !iv.isEmpty() {
			out = append(out, iv)
		}
		s = strings.TrimPrefix(strings.TrimSpace(s[end+1:]), ",")
		s = strings.TrimSpace(s)
	}
	return out, true
}

func mavenInterval(body string, lowerInclusive, upperInclusive bool) (interval, bool) {
	var iv interval
	lo, hi, found := strings.Cut(body, ",")
	if !found {
		// "[1.0]" pins exactly.
		v, err := mm.NewVersion(strings.TrimSpace(body))
		if err != nil {
			return iv, false
		}
		return interval{
			lower: bound{v: v, inclusive: true},
			upper: bound{v: v, inclusive: true},
		}, true
	}
	if lo = strings.TrimSpace(lo); lo != "" {
		v, err := mm.NewVersion(lo)
		if err != nil {
			return iv, false
		}
		iv.lower = bound{v: v, inclusive: lowerInclusive}
	}
	if hi = strings.TrimSpace(hi); hi != "" {
		v, err := mm.NewVersion(hi)
		if err != nil {
			return iv, false
		}
		iv.upper = bound{v: v, inclusive: upperInclusive}
	}
	return iv, true
}
