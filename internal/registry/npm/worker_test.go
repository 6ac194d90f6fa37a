package npm

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

func registryHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/express", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{
			"dist-tags": {"latest": "4.19.2"},
			"versions": {
				"4.19.2": {},
				"4.19.1": {},
				"3.0.0": {"deprecated": "upgrade"}
			},
			"homepage": "https://expressjs.com/"
		}`))
	})
	mux.HandleFunc("/express/4.19.2", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{
			"version": "4.19.2",
			"dependencies": {"accepts": "~1.3.8", "body-parser": "1.20.2"},
			"homepage": "https://expressjs.com/"
		}`))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	return mux
}

func TestLatestVersion(t *testing.T) {
	w := newTestWorker(t, registryHandler())
	got, err := w.LatestVersion(context.Background(), "express")
	if err != nil {
		t.Fatalf("LatestVersion: %v", err)
	}
	if got != "4.19.2" {
		t.Errorf("LatestVersion = %q, want 4.19.2", got)
	}
}

func TestVersionsSkipDeprecated(t *testing.T) {
	w := newTestWorker(t, registryHandler())
	got, err := w.Versions(context.Background(), "express")
	if err != nil {
		t.Fatalf("Versions: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Versions = %v, want 2 entries", got)
	}
}

func TestDependencies(t *testing.T) {
	w := newTestWorker(t, registryHandler())
	set, err := w.Dependencies(context.Background(), "express", "4.19.2")
	if err != nil {
		t.Fatalf("Dependencies: %v", err)
	}
	want := map[string]string{"accepts": "~1.3.8", "body-parser": "1.20.2"}
	if len(set.Requirements) != len(want) {
		t.Fatalf("Requirements = %v", set.Requirements)
	}
	for _, req := range set.Requirements {
		if want[req.Name] != req.Constraint {
			t.Errorf("requirement %s = %q, want %q", req.Name, req.Constraint, want[req.Name])
		}
	}
}

func TestVersionExists(t *testing.T) {
	w := newTestWorker(t, registryHandler())
	ok, err := w.VersionExists(context.Background(), "express", "4.19.2")
	if err != nil || !ok {
		t.Errorf("VersionExists(4.19.2) = %v, %v; want true", ok, err)
	}
	ok, err = w.VersionExists(context.Background(), "express", "0.0.1")
	if err != nil || ok {
		t.Errorf("VersionExists(0.0.1) = %v, %v; want false", ok, err)
	}
}

func TestEscapeName(t *testing.T) {
	if got := escapeName("@types/node"); got != "%40types%2Fnode" {
		t.Errorf("escapeName = %q", got)
	}
}
