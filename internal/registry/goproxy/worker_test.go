package goproxy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/librarymaster/librarymaster/internal/resilience"
)

const modFile = `module github.com/gin-gonic/gin

go 1.21

require (
	github.com/gin-contrib/sse v0.1.0
	github.com/goccy/go-json v0.10.2
	golang.org/x/net v0.25.0 // indirect
)

require github.com/mattn/go-isatty v0.0.20
`

func newTestWorker(t *testing.T, handler http.Handler) *Worker {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	exec := resilience.NewExecutor(resilience.Config{MaxRetries: 0, BreakerThreshold: 5}, nil)
	exec.RegisterMirrors(Ecosystem, []string{srv.URL})
	return New(exec).(*Worker)
}

func proxyHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/github.com/gin-gonic/gin/@latest", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"Version": "v1.10.0"}`))
	})
	mux.HandleFunc("/github.com/gin-gonic/gin/@v/list", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("v1.9.0\nv1.9.1\nv1.10.0\n"))
	})
	mux.HandleFunc("/github.com/gin-gonic/gin/@v/v1.10.0.info", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"Version": "v1.10.0"}`))
	})
	mux.HandleFunc("/github.com/gin-gonic/gin/@v/v1.10.0.mod", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(modFile))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	return mux
}

func TestLatestVersion(t *testing.T) {
	w := newTestWorker(t, proxyHandler())
	got, err := w.LatestVersion(context.Background(), "github.com/gin-gonic/gin")
	if err != nil {
		t.Fatalf("LatestVersion: %v", err)
	}
	if got != "v1.10.0" {
		t.Errorf("LatestVersion = %q", got)
	}
}

func TestVersions(t *testing.T) {
	w := newTestWorker(t, proxyHandler())
	got, err := w.Versions(context.Background(), "github.com/gin-gonic/gin")
	if err != nil {
		t.Fatalf("Versions: %v", err)
	}
	if len(got) != 3 || got[2] != "v1.10.0" {
		t.Errorf("Versions = %v", got)
	}
}

func TestVersionExistsAddsVPrefix(t *testing.T) {
	w := newTestWorker(t, proxyHandler())
	ok, err := w.VersionExists(context.Background(), "github.com/gin-gonic/gin", "1.10.0")
	if err != nil || !ok {
		t.Errorf("VersionExists = %v, %v; want true", ok, err)
	}
	ok, err = w.VersionExists(context.Background(), "github.com/gin-gonic/gin", "v9.9.9")
	if err != nil || ok {
		t.Errorf("VersionExists(v9.9.9) = %v, %v; want false", ok, err)
	}
}

func TestDependenciesParseDirectRequires(t *testing.T) {
	w := newTestWorker(t, proxyHandler())
	set, err := w.Dependencies(context.Background(), "github.com/gin-gonic/gin", "v1.10.0")
	if err != nil {
		t.Fatalf("Dependencies: %v", err)
	}
	want := map[string]string{
		"github.com/gin-contrib/sse": "v0.1.0",
		"github.com/goccy/go-json":   "v0.10.2",
		"github.com/mattn/go-isatty": "v0.0.20",
	}
	if len(set.Requirements) != len(want) {
		t.Fatalf("Requirements = %v, want %d direct entries", set.Requirements, len(want))
	}
	for _, req := range set.Requirements {
		if want[req.Name] != req.Constraint {
			t.Errorf("requirement %s = %q, want %q", req.Name, req.Constraint, want[req.Name])
		}
	}
}

func TestEscapePath(t *testing.T) {
	cases := []struct{ in, want string }{
		{"github.com/Masterminds/semver", "github.com/!masterminds/semver"},
		{"github.com/BurntSushi/toml", "github.com/!burnt!sushi/toml"},
		{"golang.org/x/sync", "golang.org/x/sync"},
	}
	for _, tc := range cases {
		if got := escapePath(tc.in); got != tc.want {
			t.Errorf("escapePath(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
