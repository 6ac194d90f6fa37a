// Package registry defines the uniform contract every per-ecosystem
// registry adapter implements, and the factory that selects one by
// ecosystem name.
package registry

import (
	"context"

	"github.com/librarymaster/librarymaster/internal/version"
)

// Requirement is one declared dependency edge: the dependency's name and
// the raw constraint string the parent declared for it.
type Requirement struct {
	Name       string `json:"name"`
	Constraint string `json:"constraint"`
}

// DependencySet is a dependency listing for one concrete version. Version
// is the version the listing actually applied to; when a worker is asked
// about a range it may resolve to the latest matching release. Source is
// the mirror that served the listing.
type DependencySet struct {
	Version      string        `json:"version"`
	Source       string        `json:"source,omitempty"`
	Requirements []Requirement `json:"requirements"`
}

// Worker is an ecosystem-specific registry adapter. Implementations are
// stateless and safe for concurrent use; every outbound call goes through
// the resilience executor, never directly to the network.
type Worker interface {
	// Ecosystem names the package universe this worker serves.
	Ecosystem() string

	// Scheme is the version dialect used for comparison and intersection.
	Scheme() version.Scheme

	// LatestVersion returns the newest published version of name.
	LatestVersion(ctx context.Context, name string) (string, error)

	// Versions lists all published versions of name, unordered.
	Versions(ctx context.Context, name string) ([]string, error)

	// VersionExists reports whether the exact version is published.
	VersionExists(ctx context.Context, name, ver string) (bool, error)

	// Dependencies lists the direct dependencies declared by name at ver.
	// An empty ver resolves to the latest release.
	Dependencies(ctx context.Context, name, ver string) (*DependencySet, error)

	// DocURL returns the documentation location for name at ver, or ""
	// when the registry knows none.
	DocURL(ctx context.Context, name, ver string) (string, error)
}
