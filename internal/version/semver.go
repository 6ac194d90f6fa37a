package version

import (
	"strings"

	mm "github.com/Masterminds/semver/v3"
)

// semverComparator implements semver ordering via Masterminds. It also
// serves the cargo and go-module dialects, which share the syntax (cargo's
// bare versions are caret ranges, go-module versions carry a "v" prefix,
// both handled by normalization).
type semverComparator struct {
	scheme Scheme
}

func (c *semverComparator) Scheme() Scheme { return c.scheme }

func (c *semverComparator) Compare(a, b string) (int, error) {
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

func (c *semverComparator) Satisfies(version, constraint string) bool {
	norm := normalizeConstraint(constraint)
	if norm == "*" {
		return true
	}
	v, err := mm.NewVersion(strings.TrimSpace(version))
	if err != nil {
		return strings.TrimSpace(version) == strings.TrimSpace(constraint)
	}
	cs, err := mm.NewConstraint(norm)
	if err != nil {
		return strings.TrimSpace(version) == strings.TrimSpace(constraint)
	}
	return cs.Check(v)
}

func (c *semverComparator) Empty(constraints []string) bool {
	sets := make([]rangeSet, 0, len(constraints))
	unparseable := false
	for _, raw := range constraints {
		norm := normalizeConstraint(raw)
		if norm == "*" {
			continue
		}
		rs, ok := constraintToRangeSet(norm)
		if !ok {
			unparseable = true
			continue
		}
		sets = append(sets, rs)
	}
	if unparseable {
		// Opaque fallback: an uninterpretable constraint conflicts with
		// anything that is not literally identical to it.
		return countDistinct(constraints) > 1
	}
	return len(intersectAll(sets)) == 0
}

func (c *semverComparator) MaxSatisfying(candidates, constraints []string) (string, bool) {
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

// normalizeConstraint rewrites ecosystem spellings Masterminds does not
// accept: PyPI "==" and "~=" operators, surrounding parentheses, empty and
// wildcard forms.
func normalizeConstraint(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.Trim(s, "()")
	if s == "" || s == "*" || strings.EqualFold(s, "x") || strings.EqualFold(s, "any") {
		return "*"
	}
	s = strings.ReplaceAll(s, "~=", "~")
	s = strings.ReplaceAll(s, "===", "=")
	s = strings.ReplaceAll(s, "==", "=")
	return s
}

func countDistinct(raws []string) int {
	seen := make(map[string]struct{}, len(raws))
	for _, r := range raws {
		seen[strings.TrimSpace(r)] = struct{}{}
	}
	return len(seen)
}

// constraintToRangeSet converts a normalized constraint expression into a
// union of intervals. "||" groups are ORed; commas and whitespace inside a
// group are ANDed. Returns false when any token cannot be interpreted.
func constraintToRangeSet(norm string) (rangeSet, bool) {
	var out rangeSet
	for _, group := range strings.Split(norm, "||") {
		acc := fullRange()
		empty := false
		for _, token := range splitTokens(group) {
			rs, ok := tokenToRangeSet(token)
			if !ok {
				return nil, false
			}
			if rs == nil {
				continue // token imposes no interval bound (e.g. !=)
			}
			acc = intersect(acc, rs)
			if len(acc) == 0 {
				empty = true
				break
			}
		}
		if !empty {
			out = append(out, acc...)
		}
	}
	return out, true
}

func splitTokens(group string) []string {
	fields := strings.FieldsFunc(group, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
	// Re-join operators split from their operand (">= 1.0" arrives as two
	// fields).
	var tokens []string
	for _, f := range fields {
		if len(tokens) > 0 && isOperator(tokens[len(tokens)-1]) {
			tokens[len(tokens)-1] += f
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

func isOperator(s string) bool {
	switch s {
	case ">", "<", ">=", "<=", "=", "!=", "^", "~":
		return true
	}
	return false
}

// tokenToRangeSet maps one operator+operand token onto intervals. A nil,
// true return means the token constrains nothing we track ("!=" only
// punches a point out, ignoring it over-approximates the set, which keeps
// the emptiness proof sound).
func tokenToRangeSet(token string) (rangeSet, bool) {
	op := ""
	rest := token
	for _, candidate := range []string{">=", "<=", "!=", ">", "<", "=", "^", "~"} {
		if strings.HasPrefix(token, candidate) {
			op = candidate
			rest = strings.TrimSpace(token[len(candidate):])
			break
		}
	}
	if rest == "" || rest == "*" || strings.EqualFold(rest, "x") {
		return fullRange(), true
	}
	if op == "!=" {
		return nil, true
	}

	p, ok := parsePartial(rest)
	if !ok {
		return nil, false
	}
	lower := p.floor()

	switch op {
	case ">":
		return rangeSet{{lower: bound{v: p.ceilExclusiveGreater(), inclusive: p.wild()}}}, true
	case ">=":
		return rangeSet{{lower: bound{v: lower, inclusive: true}}}, true
	case "<":
		return rangeSet{{upper: bound{v: lower, inclusive: false}}}, true
	case "<=":
		if p.wild() {
			return rangeSet{{upper: bound{v: p.nextWild(), inclusive: false}}}, true
		}
		return rangeSet{{upper: bound{v: lower, inclusive: true}}}, true
	case "^":
		return rangeSet{{
			lower: bound{v: lower, inclusive: true},
			upper: bound{v: p.nextCaret(), inclusive: false},
		}}, true
	case "~":
		return rangeSet{{
			lower: bound{v: lower, inclusive: true},
			upper: bound{v: p.nextTilde(), inclusive: false},
		}}, true
	default: // "=" or bare version
		if p.wild() {
			return rangeSet{{
				lower: bound{v: lower, inclusive: true},
				upper: bound{v: p.nextWild(), inclusive: false},
			}}, true
		}
		return pointRange(lower), true
	}
}

// partial is a version whose trailing components may be missing or
// wildcarded ("1.2", "1.2.x").
type partial struct {
	major, minor, patch uint64
	hasMinor, hasPatch  bool
	pre                 string
}

func (p partial) wild() bool { return !p.hasPatch }

func (p partial) floor() *mm.Version {
	return mm.New(p.major, p.minor, p.patch, p.pre, "")
}

// nextWild is the exclusive upper bound implied by the first missing
// component: "1.2" -> 1.3.0, "1" -> 2.0.0.
func (p partial) nextWild() *mm.Version {
	if p.hasMinor {
		return mm.New(p.major, p.minor+1, 0, "", "")
	}
	return mm.New(p.major+1, 0, 0, "", "")
}

// ceilExclusiveGreater is the lower bound for ">p". For a full version it
// is the version itself (exclusive); for a wildcard ">1.2" it means
// ">=1.3.0".
func (p partial) ceilExclusiveGreater() *mm.Version {
	if p.wild() {
		return p.nextWild()
	}
	return p.floor()
}

func (p partial) nextCaret() *mm.Version {
	switch {
	case p.major > 0 || !p.hasMinor:
		return mm.New(p.major+1, 0, 0, "", "")
	case p.minor > 0 || !p.hasPatch:
		return mm.New(0, p.minor+1, 0, "", "")
	default:
		return mm.New(0, 0, p.patch+1, "", "")
	}
}

func (p partial) nextTilde() *mm.Version {
	if p.hasMinor {
		return mm.New(p.major, p.minor+1, 0, "", "")
	}
	return mm.New(p.major+1, 0, 0, "", "")
}

func parsePartial(s string) (partial, bool) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "v")
	if s == "" {
		return partial{}, false
	}
	// Prereleases only appear on fully specified versions; delegate.
	if strings.ContainsAny(s, "-+") {
		v, err := mm.NewVersion(s)
		if err != nil {
			return partial{}, false
		}
		return partial{
			major: v.Major(), minor: v.Minor(), patch: v.Patch(),
			hasMinor: true, hasPatch: true, pre: v.Prerelease(),
		}, true
	}
	parts := strings.Split(s, ".")
	if len(parts) > 3 {
		return partial{}, false
	}
	var p partial
	for i, part := range parts {
		if part == "x" || part == "X" || part == "*" {
			break
		}
		n, ok := parseUint(part)
		if !ok {
			return partial{}, false
		}
		switch i {
		case 0:
			p.major = n
		case 1:
			p.minor = n
			p.hasMinor = true
		case 2:
			p.patch = n
			p.hasPatch = true
		}
	}
	return p, true
}

func parseUint(s string) (uint64, bool) {
	if s == "" {
		return 0, false
	}
	var n uint64
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + uint64(r-'0')
	}
	return n, true
}
