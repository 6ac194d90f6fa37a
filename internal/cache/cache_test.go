package cache

import (
	"context"
	"sync"
	"testing"
	"time"
)

// memoryRemote is an in-memory Remote. A single instance can back several
// MultiLevel caches, which models multiple service instances sharing one
// Redis.
type memoryRemote struct {
	mu      sync.Mutex
	entries map[string][]byte
	subs    map[string][]chan []byte
	failing bool
}

func newMemoryRemote() *memoryRemote {
	return &memoryRemote{
		entries: make(map[string][]byte),
		subs:    make(map[string][]chan []byte),
	}
}

func (r *memoryRemote) Get(_ context.Context, key string) ([]byte, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failing {
		return nil, false, context.DeadlineExceeded
	}
	v, ok := r.entries[key]
	return v, ok, nil
}

func (r *memoryRemote) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failing {
		return context.DeadlineExceeded
	}
	r.entries[key] = value
	return nil
}

func (r *memoryRemote) Delete(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, key)
	return nil
}

func (r *memoryRemote) Publish(_ context.Context, channel string, payload []byte) error {
	r.mu.Lock()
	subs := append([]chan []byte(nil), r.subs[channel]...)
	r.mu.Unlock()
	for _, ch := range subs {
		ch <- payload
	}
	return nil
}

func (r *memoryRemote) Subscribe(ctx context.Context, channel string) (<-chan []byte, func() error, error) {
	ch := make(chan []byte, 16)
	r.mu.Lock()
	r.subs[channel] = append(r.subs[channel], ch)
	r.mu.Unlock()
	go func() {
		<-ctx.Done()
		r.mu.Lock()
		for i, c := range r.subs[channel] {
			if c == ch {
				r.subs[channel] = append(r.subs[channel][:i], r.subs[channel][i+1:]...)
				break
			}
		}
		r.mu.Unlock()
		close(ch)
	}()
	return ch, func() error { return nil }, nil
}

func (r *memoryRemote) Close() error { return nil }

func (r *memoryRemote) setFailing(v bool) {
	r.mu.Lock()
	r.failing = v
	r.mu.Unlock()
}

func TestKey(t *testing.T) {
	got := Key("python", "dependencies", "requests", "2.31.0")
	want := "python:dependencies:requests:2.31.0"
	if got != want {
		t.Errorf("Key = %q, want %q", got, want)
	}
}

func TestLocalRoundTrip(t *testing.T) {
	l := NewLocal(10, time.Minute)

	l.Set("k", []byte("v"))
	if v, ok := l.Get("k"); !ok || string(v) != "v" {
		t.Fatalf("Get = %q, %v; want v, true", v, ok)
	}

	l.Delete("k")
	if _, ok := l.Get("k"); ok {
		t.Error("expected miss after delete")
	}

	hits, misses := l.Stats()
	if hits != 1 || misses != 1 {
		t.Errorf("Stats = %d hits, %d misses; want 1, 1", hits, misses)
	}
}

func TestLocalEvictsUnderPressure(t *testing.T) {
	l := NewLocal(2, time.Minute)
	l.Set("a", []byte("1"))
	l.Set("b", []byte("2"))
	l.Set("c", []byte("3"))
	if l.Len() != 2 {
		t.Errorf("Len = %d, want 2", l.Len())
	}
	if _, ok := l.Get("a"); ok {
		t.Error("expected oldest entry evicted")
	}
}

func TestMultiLevelRoundTrip(t *testing.T) {
	ctx := context.Background()
	remote := newMemoryRemote()
	m := NewMultiLevel(NewLocal(10, time.Minute), remote, "sync", time.Hour, nil)

	m.Set(ctx, "k", []byte("v"))
	if v, ok := m.Get(ctx, "k"); !ok || string(v) != "v" {
		t.Fatalf("Get = %q, %v; want v, true", v, ok)
	}
}

func TestMultiLevelRemoteHitPopulatesLocal(t *testing.T) {
	ctx := context.Background()
	remote := newMemoryRemote()
	remote.entries["k"] = []byte("from-remote")

	m := NewMultiLevel(NewLocal(10, time.Minute), remote, "sync", time.Hour, nil)
	if v, ok := m.Get(ctx, "k"); !ok || string(v) != "from-remote" {
		t.Fatalf("Get = %q, %v", v, ok)
	}
	if v, ok := m.Local().Get("k"); !ok || string(v) != "from-remote" {
		t.Errorf("local tier not populated on remote hit: %q, %v", v, ok)
	}
}

func TestMultiLevelDegradesWhenRemoteFails(t *testing.T) {
	ctx := context.Background()
	remote := newMemoryRemote()
	m := NewMultiLevel(NewLocal(10, time.Minute), remote, "sync", time.Hour, nil)

	remote.setFailing(true)
	m.Set(ctx, "k", []byte("v")) // must not panic or error
	if v, ok := m.Get(ctx, "k"); !ok || string(v) != "v" {
		t.Fatalf("local tier should still serve: %q, %v", v, ok)
	}
}

func TestCrossInstanceInvalidation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	remote := newMemoryRemote()
	a := NewMultiLevel(NewLocal(10, time.Minute), remote, "sync", time.Hour, nil)
	b := NewMultiLevel(NewLocal(10, time.Minute), remote, "sync", time.Hour, nil)

	if err := b.StartListener(ctx); err != nil {
		t.Fatal(err)
	}

	// Instance B holds a stale local copy.
	b.Local().Set("k", []byte("stale"))

	// Instance A writes a new value; B's listener must evict its copy.
	a.Set(ctx, "k", []byte("fresh"))

	deadline := time.After(2 * time.Second)
	for {
		if _, ok := b.Local().Get("k"); !ok {
			break
		}
		select {
		case <-deadline:
			t.Fatal("stale local entry not evicted after invalidation")
		case <-time.After(5 * time.Millisecond):
		}
	}

	// The next read on B goes to the remote tier and sees A's write.
	if v, ok := b.Get(ctx, "k"); !ok || string(v) != "fresh" {
		t.Fatalf("Get after invalidation = %q, %v; want fresh", v, ok)
	}
}

func TestListenerEvictsOwnWrites(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	remote := newMemoryRemote()
	m := NewMultiLevel(NewLocal(10, time.Minute), remote, "sync", time.Hour, nil)
	if err := m.StartListener(ctx); err != nil {
		t.Fatal(err)
	}

	m.Set(ctx, "k", []byte("v"))

	// Eviction of our own write is idempotent: the value remains readable
	// through the remote tier regardless of listener timing.
	time.Sleep(20 * time.Millisecond)
	if v, ok := m.Get(ctx, "k"); !ok || string(v) != "v" {
		t.Fatalf("Get = %q, %v; want v, true", v, ok)
	}
}
