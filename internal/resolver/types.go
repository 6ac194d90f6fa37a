// Package resolver walks dependency graphs breadth-first through the
// worker pool, accumulates per-edge constraints, detects conflicts, and
// suggests versions.
package resolver

import (
	"encoding/json"
	"time"
)

// LibraryQuery is one resolution request. Version may be empty (latest),
// an exact version, or a range. Depth bounds the transitive walk; a
// negative Depth selects the configured default.
type LibraryQuery struct {
	Ecosystem string `json:"ecosystem"`
	Name      string `json:"name"`
	Version   string `json:"version,omitempty"`
	Depth     int    `json:"depth"`
}

// DependencyInfo is one node of the resolved tree. Constraint is the raw
// string declared by the parent owning this edge; the root carries the
// query's version field. A library reachable from several parents appears
// once fully expanded at its shallowest depth, and as child-less reference
// entries under later parents, so the tree stays finite on cyclic graphs.
type DependencyInfo struct {
	Ecosystem       string            `json:"ecosystem"`
	Name            string            `json:"name"`
	ResolvedVersion string            `json:"resolved_version,omitempty"`
	Constraint      string            `json:"constraint,omitempty"`
	Depth           int               `json:"depth"`
	Source          string            `json:"source,omitempty"`
	FetchedAt       time.Time         `json:"fetched_at,omitempty"`
	Unresolved      bool              `json:"unresolved,omitempty"`
	Reason          string            `json:"reason,omitempty"`
	Dependencies    []*DependencyInfo `json:"dependencies,omitempty"`
}

// ConstraintSet collects the constraints declared for one library, keyed
// by the parent that declared each. Append-only; the first constraint a
// parent records wins, and insertion order is preserved for diagnostics.
type ConstraintSet struct {
	order    []string
	byParent map[string]string
}

// Record stores parent's constraint unless the parent already recorded one.
func (s *ConstraintSet) Record(parent, constraint string) {
	if s.byParent == nil {
		s.byParent = make(map[string]string)
	}
	if _, seen := s.byParent[parent]; seen {
		return
	}
	s.byParent[parent] = constraint
	s.order = append(s.order, parent)
}

// Parents returns the contributing parents in insertion order.
func (s *ConstraintSet) Parents() []string { return s.order }

// Get returns the constraint a parent declared.
func (s *ConstraintSet) Get(parent string) string { return s.byParent[parent] }

// Constraints returns the declared constraints in insertion order.
func (s *ConstraintSet) Constraints() []string {
	out := make([]string, len(s.order))
	for i, p := range s.order {
		out[i] = s.byParent[p]
	}
	return out
}

// Len is the number of contributing parents.
func (s *ConstraintSet) Len() int { return len(s.order) }

// Map returns a parent-to-constraint copy for serialization.
func (s *ConstraintSet) Map() map[string]string {
	out := make(map[string]string, len(s.byParent))
	for p, c := range s.byParent {
		out[p] = c
	}
	return out
}

func (s *ConstraintSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Map())
}

// Conflict reports a library whose combined parent constraints admit no
// version. Fallback is the constraint favored by the configured policy
// (most parents, tie broken per configuration); it is advisory and never
// enters SuggestedVersions.
type Conflict struct {
	Ecosystem   string            `json:"ecosystem"`
	Name        string            `json:"name"`
	Constraints map[string]string `json:"constraints"`
	Reason      string            `json:"reason"`
	Fallback    string            `json:"fallback,omitempty"`
}

// TaskResult is the outcome of one resolution. Truncated reports that the
// walk stopped at the depth bound or deadline before the graph was fully
// explored.
type TaskResult struct {
	Tree              *DependencyInfo   `json:"tree"`
	Conflicts         []Conflict        `json:"conflicts,omitempty"`
	SuggestedVersions map[string]string `json:"suggested_versions,omitempty"`
	Truncated         bool              `json:"truncated"`
}
