package pool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/librarymaster/librarymaster/internal/cache"
	"github.com/librarymaster/librarymaster/internal/liberr"
	"github.com/librarymaster/librarymaster/internal/registry"
	"github.com/librarymaster/librarymaster/internal/resilience"
	"github.com/librarymaster/librarymaster/internal/version"
)

// fakeWorker counts upstream calls and optionally blocks until released,
// so tests can hold several callers in flight at once.
type fakeWorker struct {
	calls    atomic.Int64
	inFlight atomic.Int64
	maxSeen  atomic.Int64
	gate     chan struct{}
	fail     atomic.Bool
}

func (f *fakeWorker) enter() {
	f.calls.Add(1)
	n := f.inFlight.Add(1)
	for {
		max := f.maxSeen.Load()
		if n <= max || f.maxSeen.CompareAndSwap(max, n) {
			break
		}
	}
	if f.gate != nil {
		<-f.gate
	}
}

func (f *fakeWorker) leave() { f.inFlight.Add(-1) }

func (f *fakeWorker) Ecosystem() string      { return "fake" }
func (f *fakeWorker) Scheme() version.Scheme { return version.SchemeSemver }

func (f *fakeWorker) LatestVersion(_ context.Context, name string) (string, error) {
	f.enter()
	defer f.leave()
	if f.fail.Load() {
		return "", &liberr.StatusError{Code: 500, URL: name}
	}
	return "1.2.3", nil
}

func (f *fakeWorker) Versions(context.Context, string) ([]string, error) {
	f.enter()
	defer f.leave()
	return []string{"1.0.0", "1.2.3"}, nil
}

func (f *fakeWorker) VersionExists(context.Context, string, string) (bool, error) {
	f.enter()
	defer f.leave()
	return true, nil
}

func (f *fakeWorker) Dependencies(_ context.Context, _, ver string) (*registry.DependencySet, error) {
	f.enter()
	defer f.leave()
	return &registry.DependencySet{
		Version:      "1.2.3",
		Requirements: []registry.Requirement{{Name: "leftpad", Constraint: "^1.0"}},
	}, nil
}

func (f *fakeWorker) DocURL(context.Context, string, string) (string, error) {
	f.enter()
	defer f.leave()
	return "https://docs.example", nil
}

func newTestPool(t *testing.T, w *fakeWorker, maxConcurrency int) *Pool {
	t.Helper()
	exec := resilience.NewExecutor(resilience.DefaultConfig(), nil)
	factory := registry.NewFactory(exec)
	factory.Register("fake", version.SchemeSemver, []string{"https://fake.example"}, func(*resilience.Executor) registry.Worker {
		return w
	})
	c := cache.NewMultiLevel(cache.NewLocal(100, time.Minute), nil, "test:sync", time.Hour, nil)
	return New(factory, c, maxConcurrency, nil)
}

func TestCacheHitSkipsUpstream(t *testing.T) {
	w := &fakeWorker{}
	p := newTestPool(t, w, 4)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		got, err := p.LatestVersion(ctx, "fake", "leftpad")
		if err != nil {
			t.Fatalf("LatestVersion: %v", err)
		}
		if got != "1.2.3" {
			t.Fatalf("LatestVersion = %q", got)
		}
	}
	if n := w.calls.Load(); n != 1 {
		t.Errorf("upstream calls = %d, want 1 (cache must serve repeats)", n)
	}
}

func TestConcurrentIdenticalRequestsCoalesce(t *testing.T) {
	w := &fakeWorker{gate: make(chan struct{})}
	p := newTestPool(t, w, 4)
	ctx := context.Background()

	const callers = 16
	var wg sync.WaitGroup
	results := make([]string, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := p.LatestVersion(ctx, "fake", "leftpad")
			if err != nil {
				t.Errorf("caller %d: %v", i, err)
			}
			results[i] = v
		}(i)
	}

	// Let every caller reach the coalescing point before the single
	// upstream call completes.
	time.Sleep(50 * time.Millisecond)
	close(w.gate)
	wg.Wait()

	if n := w.calls.Load(); n != 1 {
		t.Errorf("upstream calls = %d, want 1 for %d concurrent callers", n, callers)
	}
	for i, v := range results {
		if v != "1.2.3" {
			t.Errorf("caller %d got %q", i, v)
		}
	}
}

func TestConcurrencyBound(t *testing.T) {
	w := &fakeWorker{gate: make(chan struct{})}
	p := newTestPool(t, w, 2)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Distinct names so nothing coalesces.
			if _, err := p.LatestVersion(ctx, "fake", fmt.Sprintf("lib-%d", i)); err != nil {
				t.Errorf("caller %d: %v", i, err)
			}
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(w.gate)
	wg.Wait()

	if max := w.maxSeen.Load(); max > 2 {
		t.Errorf("max in-flight upstream calls = %d, want <= 2", max)
	}
	if n := w.calls.Load(); n != 6 {
		t.Errorf("upstream calls = %d, want 6", n)
	}
}

func TestErrorsAreNotCached(t *testing.T) {
	w := &fakeWorker{}
	w.fail.Store(true)
	p := newTestPool(t, w, 4)
	ctx := context.Background()

	if _, err := p.LatestVersion(ctx, "fake", "leftpad"); err == nil {
		t.Fatal("expected upstream error")
	}
	w.fail.Store(false)
	got, err := p.LatestVersion(ctx, "fake", "leftpad")
	if err != nil || got != "1.2.3" {
		t.Fatalf("after recovery: %q, %v", got, err)
	}
	if n := w.calls.Load(); n != 2 {
		t.Errorf("upstream calls = %d, want 2 (failure must not be cached)", n)
	}
}

func TestDependenciesRoundTrip(t *testing.T) {
	w := &fakeWorker{}
	p := newTestPool(t, w, 4)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		set, err := p.Dependencies(ctx, "fake", "leftpad", "1.2.3")
		if err != nil {
			t.Fatalf("Dependencies: %v", err)
		}
		if set.Version != "1.2.3" || len(set.Requirements) != 1 {
			t.Fatalf("set = %+v", set)
		}
		if set.Requirements[0].Name != "leftpad" || set.Requirements[0].Constraint != "^1.0" {
			t.Fatalf("requirement = %+v", set.Requirements[0])
		}
	}
	if n := w.calls.Load(); n != 1 {
		t.Errorf("upstream calls = %d, want 1", n)
	}
}

func TestUnsupportedEcosystem(t *testing.T) {
	p := newTestPool(t, &fakeWorker{}, 4)
	_, err := p.LatestVersion(context.Background(), "cobol", "x")
	if err == nil {
		t.Fatal("expected error for unregistered ecosystem")
	}
}
