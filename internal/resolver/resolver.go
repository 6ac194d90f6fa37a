package resolver

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/librarymaster/librarymaster/internal/config"
	"github.com/librarymaster/librarymaster/internal/pool"
	"github.com/librarymaster/librarymaster/internal/registry"
)

// Resolver drives BFS resolutions through a worker pool. It is stateless
// across calls; all per-run state lives in a runState.
type Resolver struct {
	pool         *pool.Pool
	maxParallel  int
	defaultDepth int
	maxDepth     int
	timeout      time.Duration
	tiebreak     string
	logger       *slog.Logger
}

// New creates a resolver tuned by cfg.
func New(p *pool.Pool, cfg config.ResolveConfig, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	maxParallel := cfg.MaxConcurrency
	if maxParallel <= 0 {
		maxParallel = 10
	}
	defaultDepth := cfg.DefaultDepth
	if defaultDepth < 0 {
		defaultDepth = 1
	}
	return &Resolver{
		pool:         p,
		maxParallel:  maxParallel,
		defaultDepth: defaultDepth,
		maxDepth:     cfg.MaxDepth,
		timeout:      cfg.Timeout,
		tiebreak:     cfg.ConflictTiebreak,
		logger:       logger,
	}
}

type nodeRecord struct {
	info  *DependencyInfo
	depth int
}

// edge is one discovered parent -> requirement link awaiting attachment.
type edge struct {
	parent *nodeRecord
	req    registry.Requirement
}

type runState struct {
	arena       map[string]*nodeRecord
	constraints map[string]*ConstraintSet
	order       []string // constraint-set keys in discovery order
}

func nodeKey(ecosystem, name string) string { return ecosystem + ":" + name }

func (st *runState) constraintSet(key string) *ConstraintSet {
	s, ok := st.constraints[key]
	if !ok {
		s = &ConstraintSet{}
		st.constraints[key] = s
		st.order = append(st.order, key)
	}
	return s
}

// Resolve walks the dependency graph of q breadth-first. Node-level
// failures mark the node unresolved and never abort siblings; only an
// unknown ecosystem fails the whole call.
func (r *Resolver) Resolve(ctx context.Context, q LibraryQuery) (*TaskResult, error) {
	if _, err := r.pool.Factory().Worker(q.Ecosystem); err != nil {
		return nil, err
	}

	depth := q.Depth
	if depth < 0 {
		depth = r.defaultDepth
	}
	if r.maxDepth > 0 && depth > r.maxDepth {
		depth = r.maxDepth
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	// Fetches already in flight at deadline expiry run to completion so
	// the cache still fills for later callers; the deadline is honored
	// between layers instead.
	fetchCtx := context.WithoutCancel(ctx)

	st := &runState{
		arena:       make(map[string]*nodeRecord),
		constraints: make(map[string]*ConstraintSet),
	}

	root := &nodeRecord{
		info: &DependencyInfo{
			Ecosystem:  q.Ecosystem,
			Name:       q.Name,
			Constraint: q.Version,
		},
	}
	st.arena[nodeKey(q.Ecosystem, q.Name)] = root

	result := &TaskResult{Tree: root.info, SuggestedVersions: map[string]string{}}

	edges := r.expandNode(fetchCtx, root, exactVersion(q.Version))
	if root.info.Unresolved {
		return result, nil
	}

	for d := 1; len(edges) > 0; d++ {
		if d > depth || ctx.Err() != nil {
			result.Truncated = true
			break
		}

		fresh := st.attach(edges, d)
		if len(fresh) == 0 {
			break
		}
		if d == depth {
			// The bound was reached with nodes still unexplored.
			result.Truncated = true
			break
		}

		edges = r.expandLayer(fetchCtx, fresh)
	}
	if ctx.Err() != nil {
		result.Truncated = true
	}

	r.finalize(fetchCtx, st, result)
	return result, nil
}

// attach links each pending edge into the tree at depth d, records the
// edge's constraint under the child's set, and returns the nodes created
// for the first time. A child already in the arena is linked as a
// reference entry, never re-expanded.
func (st *runState) attach(edges []edge, d int) []*nodeRecord {
	var fresh []*nodeRecord
	for _, e := range edges {
		key := nodeKey(e.parent.info.Ecosystem, e.req.Name)
		st.constraintSet(key).Record(e.parent.info.Name, e.req.Constraint)

		if existing, ok := st.arena[key]; ok {
			e.parent.info.Dependencies = append(e.parent.info.Dependencies, &DependencyInfo{
				Ecosystem:       existing.info.Ecosystem,
				Name:            existing.info.Name,
				ResolvedVersion: existing.info.ResolvedVersion,
				Constraint:      e.req.Constraint,
				Depth:           existing.depth,
			})
			continue
		}

		rec := &nodeRecord{
			info: &DependencyInfo{
				Ecosystem:  e.parent.info.Ecosystem,
				Name:       e.req.Name,
				Constraint: e.req.Constraint,
				Depth:      d,
			},
			depth: d,
		}
		st.arena[key] = rec
		e.parent.info.Dependencies = append(e.parent.info.Dependencies, rec.info)
		fresh = append(fresh, rec)
	}
	return fresh
}

// expandLayer fetches direct dependencies for every node of one BFS layer
// in parallel and returns the discovered edges in layer order.
func (r *Resolver) expandLayer(ctx context.Context, layer []*nodeRecord) []edge {
	perNode := make([][]edge, len(layer))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.maxParallel)
	for i, rec := range layer {
		g.Go(func() error {
			perNode[i] = r.expandNode(gctx, rec, exactVersion(rec.info.Constraint))
			return nil
		})
	}
	g.Wait()

	var out []edge
	for _, edges := range perNode {
		out = append(out, edges...)
	}
	return out
}

// expandNode fetches one node's direct dependencies and returns its edges.
// NotFound and unavailable upstreams mark the node unresolved.
func (r *Resolver) expandNode(ctx context.Context, rec *nodeRecord, ver string) []edge {
	set, err := r.pool.Dependencies(ctx, rec.info.Ecosystem, rec.info.Name, ver)
	rec.info.FetchedAt = time.Now().UTC()
	if err != nil {
		rec.info.Unresolved = true
		rec.info.Reason = err.Error()
		r.logger.Warn("node unresolved",
			"ecosystem", rec.info.Ecosystem, "name", rec.info.Name, "error", err)
		return nil
	}
	rec.info.ResolvedVersion = set.Version
	rec.info.Source = set.Source

	edges := make([]edge, 0, len(set.Requirements))
	for _, req := range set.Requirements {
		edges = append(edges, edge{parent: rec, req: req})
	}
	return edges
}

// exactVersion returns constraint when it pins a single version, else ""
// so the fetch resolves to latest. Range syntax cannot address a concrete
// registry document.
func exactVersion(constraint string) string {
	if constraint == "" || strings.ContainsAny(constraint, "<>=^~*,|[]() ") {
		return ""
	}
	return constraint
}

// finalize inspects every multi-parent constraint set: a provably empty
// intersection is reported as a Conflict; otherwise the highest published
// version satisfying every constraint is suggested.
func (r *Resolver) finalize(ctx context.Context, st *runState, result *TaskResult) {
	for _, key := range st.order {
		set := st.constraints[key]
		if set.Len() < 2 {
			continue
		}
		ecosystem, name, _ := strings.Cut(key, ":")
		comparator := r.pool.Factory().Comparator(ecosystem)

		if comparator.Empty(set.Constraints()) {
			result.Conflicts = append(result.Conflicts, Conflict{
				Ecosystem:   ecosystem,
				Name:        name,
				Constraints: set.Map(),
				Reason:      "no version satisfies all parent constraints",
				Fallback:    r.fallbackConstraint(ctx, ecosystem, name, set),
			})
			continue
		}

		candidates, err := r.pool.Versions(ctx, ecosystem, name)
		if err != nil {
			r.logger.Warn("version listing unavailable, skipping suggestion",
				"ecosystem", ecosystem, "name", name, "error", err)
			continue
		}
		if v, ok := comparator.MaxSatisfying(candidates, set.Constraints()); ok {
			result.SuggestedVersions[name] = v
		}
	}
}

// fallbackConstraint picks the constraint declared by the most parents.
// An even split is broken by the configured policy: "highest" favors the
// constraint admitting the highest published version, anything else the
// first-seen constraint.
func (r *Resolver) fallbackConstraint(ctx context.Context, ecosystem, name string, set *ConstraintSet) string {
	counts := make(map[string]int)
	var distinct []string
	for _, c := range set.Constraints() {
		if counts[c] == 0 {
			distinct = append(distinct, c)
		}
		counts[c]++
	}

	best := counts[distinct[0]]
	for _, c := range distinct {
		if counts[c] > best {
			best = counts[c]
		}
	}
	var tied []string
	for _, c := range distinct {
		if counts[c] == best {
			tied = append(tied, c)
		}
	}
	if len(tied) == 1 || r.tiebreak != "highest" {
		return tied[0]
	}

	candidates, err := r.pool.Versions(ctx, ecosystem, name)
	if err != nil || len(candidates) == 0 {
		return tied[0]
	}
	comparator := r.pool.Factory().Comparator(ecosystem)
	winner := tied[0]
	var winnerMax string
	if v, ok := comparator.MaxSatisfying(candidates, []string{winner}); ok {
		winnerMax = v
	}
	for _, c := range tied[1:] {
		v, ok := comparator.MaxSatisfying(candidates, []string{c})
		if !ok {
			continue
		}
		if winnerMax == "" {
			winner, winnerMax = c, v
			continue
		}
		if cmp, err := comparator.Compare(v, winnerMax); err == nil && cmp > 0 {
			winner, winnerMax = c, v
		}
	}
	return winner
}

// Libraries returns the distinct libraries seen during a run in sorted
// order; used by diagnostics.
func Libraries(result *TaskResult) []string {
	seen := map[string]struct{}{}
	var walk func(n *DependencyInfo)
	walk = func(n *DependencyInfo) {
		if n == nil {
			return
		}
		seen[n.Name] = struct{}{}
		for _, d := range n.Dependencies {
			walk(d)
		}
	}
	walk(result.Tree)
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
