package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/librarymaster/librarymaster/internal/liberr"
	"github.com/librarymaster/librarymaster/internal/resilience"
	"github.com/librarymaster/librarymaster/internal/version"
)

// Constructor builds a Worker bound to the resilience executor.
type Constructor func(exec *resilience.Executor) Worker

// Factory maps ecosystem names to workers. Registration also installs the
// ecosystem's mirror list on the executor and selects its version scheme,
// so everything the resolver needs about an ecosystem hangs off one call.
type Factory struct {
	exec *resilience.Executor

	mu      sync.RWMutex
	workers map[string]Worker
	schemes map[string]version.Comparator
}

// NewFactory creates an empty factory bound to exec.
func NewFactory(exec *resilience.Executor) *Factory {
	return &Factory{
		exec:    exec,
		workers: make(map[string]Worker),
		schemes: make(map[string]version.Comparator),
	}
}

// Register adds a worker for an ecosystem. mirrors is the ordered endpoint
// list (primary first); an empty list keeps any previously registered
// mirrors, letting configuration override adapter defaults.
func (f *Factory) Register(ecosystem string, scheme version.Scheme, mirrors []string, ctor Constructor) {
	if len(mirrors) > 0 {
		f.exec.RegisterMirrors(ecosystem, mirrors)
	}
	w := ctor(f.exec)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.workers[ecosystem] = w
	f.schemes[ecosystem] = version.ForScheme(scheme)
}

// Worker returns the adapter for ecosystem or ErrUnsupportedEcosystem.
func (f *Factory) Worker(ecosystem string) (Worker, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	w, ok := f.workers[ecosystem]
	if !ok {
		return nil, fmt.Errorf("%q (registered: %v): %w", ecosystem, f.namesLocked(), liberr.ErrUnsupportedEcosystem)
	}
	return w, nil
}

// Comparator returns the version semantics for ecosystem, opaque when the
// ecosystem is unknown.
func (f *Factory) Comparator(ecosystem string) version.Comparator {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if c, ok := f.schemes[ecosystem]; ok {
		return c
	}
	return version.ForScheme(version.SchemeOpaque)
}

// Ecosystems lists registered ecosystem names, sorted.
func (f *Factory) Ecosystems() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.namesLocked()
}

func (f *Factory) namesLocked() []string {
	out := make([]string, 0, len(f.workers))
	for name := range f.workers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
