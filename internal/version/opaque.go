package version

import "strings"

// opaqueComparator treats versions as uninterpreted strings. It backs
// ecosystems without a registered dialect and any constraint the other
// comparators reject: two opaque constraints conflict unless identical.
type opaqueComparator struct{}

func (c *opaqueComparator) Scheme() Scheme { return SchemeOpaque }

func (c *opaqueComparator) Compare(a, b string) (int, error) {
	return strings.Compare(strings.TrimSpace(a), strings.TrimSpace(b)), nil
}

func (c *opaqueComparator) Satisfies(version, constraint string) bool {
	constraint = strings.TrimSpace(constraint)
	if constraint == "" || constraint == "*" {
		return true
	}
	return strings.TrimSpace(version) == constraint
}

func (c *opaqueComparator) Empty(constraints []string) bool {
	seen := ""
	for _, raw := range constraints {
		s := strings.TrimSpace(raw)
		if s == "" || s == "*" {
			continue
		}
		if seen != "" && s != seen {
			return true
		}
		seen = s
	}
	return false
}

func (c *opaqueComparator) MaxSatisfying(candidates, constraints []string) (string, bool) {
	for _, candidate := range candidates {
		ok := true
		for _, constraint := range constraints {
			if !c.Satisfies(candidate, constraint) {
				ok = false
				break
			}
		}
		if ok {
			return candidate, true
		}
	}
	return "", false
}
