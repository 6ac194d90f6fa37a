// Package version models per-ecosystem version semantics as a Comparator
// capability. The resolver dispatches all comparison, intersection and
// suggestion logic through it instead of branching on ecosystem names.
package version

import "fmt"

// Scheme identifies a versioning dialect.
type Scheme string

const (
	// SchemeSemver covers semantic versioning as used by npm and PyPI-style
	// specifiers after normalization.
	SchemeSemver Scheme = "semver"
	// SchemeCargo is semver with Rust's default-caret interpretation.
	SchemeCargo Scheme = "cargo"
	// SchemeGoMod is semver with the leading "v" Go modules carry.
	SchemeGoMod Scheme = "gomod"
	// SchemeMaven is Maven's bracket range syntax.
	SchemeMaven Scheme = "maven"
	// SchemeOpaque treats versions as uninterpreted strings. Constraints
	// conflict unless identical.
	SchemeOpaque Scheme = "opaque"
)

// Comparator implements one ecosystem's version semantics.
type Comparator interface {
	// Scheme names the dialect.
	Scheme() Scheme

	// Compare orders two concrete versions: -1, 0 or 1.
	Compare(a, b string) (int, error)

	// Satisfies reports whether version matches constraint. Unparseable
	// constraints degrade to exact string equality.
	Satisfies(version, constraint string) bool

	// Empty reports whether the intersection of constraints is provably
	// empty. A false return means "not proven empty", not "non-empty".
	Empty(constraints []string) bool

	// MaxSatisfying returns the highest candidate satisfying every
	// constraint, or false when none does.
	MaxSatisfying(candidates, constraints []string) (string, bool)
}

// ForScheme returns the Comparator for a scheme. Unknown schemes fall back
// to opaque semantics rather than failing: a worker registered with a
// dialect this package does not know still gets identity-only conflict
// detection.
func ForScheme(s Scheme) Comparator {
	switch s {
	case SchemeSemver, SchemeCargo, SchemeGoMod:
		return &semverComparator{scheme: s}
	case SchemeMaven:
		return &mavenComparator{}
	default:
		return &opaqueComparator{}
	}
}

// MustForScheme is ForScheme for wiring code paths where the scheme is a
// compile-time constant.
func MustForScheme(s Scheme) Comparator {
	c := ForScheme(s)
	if c == nil {
		panic(fmt.Sprintf("version: no comparator for scheme %q", s))
	}
	return c
}
