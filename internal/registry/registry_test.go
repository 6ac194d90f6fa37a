package registry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/librarymaster/librarymaster/internal/liberr"
	"github.com/librarymaster/librarymaster/internal/resilience"
	"github.com/librarymaster/librarymaster/internal/version"
)

func TestFactoryUnknownEcosystem(t *testing.T) {
	f := NewFactory(resilience.NewExecutor(resilience.DefaultConfig(), nil))
	_, err := f.Worker("cobol")
	if !errors.Is(err, liberr.ErrUnsupportedEcosystem) {
		t.Fatalf("err = %v, want ErrUnsupportedEcosystem", err)
	}
}

type stubWorker struct{ Worker }

func (stubWorker) Ecosystem() string { return "stub" }

func TestFactoryRegisterAndLookup(t *testing.T) {
	exec := resilience.NewExecutor(resilience.DefaultConfig(), nil)
	f := NewFactory(exec)
	f.Register("stub", version.SchemeSemver, []string{"https://stub.example"}, func(*resilience.Executor) Worker {
		return stubWorker{}
	})

	w, err := f.Worker("stub")
	if err != nil {
		t.Fatalf("Worker: %v", err)
	}
	if w.Ecosystem() != "stub" {
		t.Errorf("Ecosystem = %q", w.Ecosystem())
	}
	if got := exec.Mirrors("stub"); len(got) != 1 || got[0] != "https://stub.example" {
		t.Errorf("Mirrors = %v", got)
	}
	if f.Comparator("stub").Scheme() != version.SchemeSemver {
		t.Error("expected semver comparator for stub")
	}
	if f.Comparator("cobol").Scheme() != version.SchemeOpaque {
		t.Error("unknown ecosystem must fall back to opaque comparison")
	}
}

func TestGetJSONStatusMapping(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"name":"x"}`))
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := &http.Client{Timeout: time.Second}
	ctx := context.Background()

	var out struct {
		Name string `json:"name"`
	}
	if err := GetJSON(ctx, client, srv.URL+"/ok", &out); err != nil || out.Name != "x" {
		t.Fatalf("ok: err=%v name=%q", err, out.Name)
	}

	err := GetJSON(ctx, client, srv.URL+"/missing", &out)
	if !errors.Is(err, liberr.ErrNotFound) {
		t.Errorf("missing: err = %v, want ErrNotFound", err)
	}

	err = GetJSON(ctx, client, srv.URL+"/broken", &out)
	var se *liberr.StatusError
	if !errors.As(err, &se) || se.Code != http.StatusBadGateway {
		t.Errorf("broken: err = %v, want StatusError 502", err)
	}
	if !liberr.IsTransient(err) {
		t.Error("502 must classify as transient")
	}
}
