package crates

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/librarymaster/librarymaster/internal/resilience"
)

func newTestWorker(t *testing.T, handler http.Handler) *Worker {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	exec := resilience.NewExecutor(resilience.Config{MaxRetries: 0, BreakerThreshold: 5}, nil)
	exec.RegisterMirrors(Ecosystem, []string{srv.URL})
	return New(exec).(*Worker)
}

func crateHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/crates/serde", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{
			"crate": {"max_stable_version": "1.0.210", "max_version": "1.0.210", "documentation": "https://serde.rs"},
			"versions": [
				{"num": "1.0.210", "yanked": false},
				{"num": "1.0.209", "yanked": false},
				{"num": "1.0.208", "yanked": true}
			]
		}`))
	})
	mux.HandleFunc("/crates/serde/1.0.210/dependencies", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{
			"dependencies": [
				{"crate_id": "serde_derive", "req": "=1.0.210", "kind": "normal", "optional": true},
				{"crate_id": "serde_core", "req": "^1.0", "kind": "normal", "optional": false},
				{"crate_id": "trybuild", "req": "^1.0", "kind": "dev", "optional": false}
			]
		}`))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	return mux
}

func TestLatestVersion(t *testing.T) {
	w := newTestWorker(t, crateHandler())
	got, err := w.LatestVersion(context.Background(), "serde")
	if err != nil {
		t.Fatalf("LatestVersion: %v", err)
	}
	if got != "1.0.210" {
		t.Errorf("LatestVersion = %q", got)
	}
}

func TestVersionsSkipYanked(t *testing.T) {
	w := newTestWorker(t, crateHandler())
	got, err := w.Versions(context.Background(), "serde")
	if err != nil {
		t.Fatalf("Versions: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Versions = %v, want 2 entries", got)
	}
}

func TestDependenciesKeepNormalRequired(t *testing.T) {
	w := newTestWorker(t, crateHandler())
	set, err := w.Dependencies(context.Background(), "serde", "1.0.210")
	if err != nil {
		t.Fatalf("Dependencies: %v", err)
	}
	if len(set.Requirements) != 1 {
		t.Fatalf("Requirements = %v, want only serde_core", set.Requirements)
	}
	if set.Requirements[0].Name != "serde_core" || set.Requirements[0].Constraint != "^1.0" {
		t.Errorf("requirement = %+v", set.Requirements[0])
	}
}

func TestDocURL(t *testing.T) {
	w := newTestWorker(t, crateHandler())
	got, err := w.DocURL(context.Background(), "serde", "1.0.210")
	if err != nil {
		t.Fatalf("DocURL: %v", err)
	}
	if got != "https://serde.rs" {
		t.Errorf("DocURL = %q", got)
	}
}
