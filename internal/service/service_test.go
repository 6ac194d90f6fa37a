package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/librarymaster/librarymaster/internal/config"
	"github.com/librarymaster/librarymaster/internal/resolver"
)

// stubPyPI serves a tiny index: flask 3.0.0 depending on jinja2 and click,
// both leaves.
func stubPyPI(t *testing.T) *httptest.Server {
	t.Helper()
	project := func(name, ver, requires string) string {
		return `{
			"info": {
				"name": "` + name + `",
				"version": "` + ver + `",
				"requires_dist": [` + requires + `],
				"project_urls": {"Documentation": "https://` + name + `.example/docs"}
			},
			"releases": {"` + ver + `": [{"yanked": false}]}
		}`
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/flask/json", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(project("flask", "3.0.0", `"jinja2 (>=3.1.2)", "click (>=8.1.3)"`)))
	})
	mux.HandleFunc("/flask/3.0.0/json", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(project("flask", "3.0.0", `"jinja2 (>=3.1.2)", "click (>=8.1.3)"`)))
	})
	mux.HandleFunc("/jinja2/json", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(project("jinja2", "3.1.4", "")))
	})
	mux.HandleFunc("/click/json", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(project("click", "8.1.7", "")))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	srv := stubPyPI(t)
	cfg := config.Default()
	cfg.Resilience.MaxRetries = 0
	cfg.Registries = map[string]config.RegistryConfig{
		"python": {Mirrors: []string{srv.URL}},
	}
	return New(cfg, nil, nil)
}

func TestGetLatest(t *testing.T) {
	svc := newTestService(t)
	got, err := svc.GetLatest(context.Background(), "python", "flask")
	if err != nil {
		t.Fatalf("GetLatest: %v", err)
	}
	if got != "3.0.0" {
		t.Errorf("GetLatest = %q", got)
	}
}

func TestExists(t *testing.T) {
	svc := newTestService(t)
	ok, err := svc.Exists(context.Background(), "python", "flask", "3.0.0")
	if err != nil || !ok {
		t.Errorf("Exists(3.0.0) = %v, %v; want true", ok, err)
	}
	ok, err = svc.Exists(context.Background(), "python", "flask", "0.1")
	if err != nil || ok {
		t.Errorf("Exists(0.1) = %v, %v; want false", ok, err)
	}
}

func TestResolveWalksTransitiveGraph(t *testing.T) {
	svc := newTestService(t)
	result, err := svc.Resolve(context.Background(), resolver.LibraryQuery{
		Ecosystem: "python", Name: "flask", Depth: 2,
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if result.Tree.ResolvedVersion != "3.0.0" {
		t.Errorf("root version = %q", result.Tree.ResolvedVersion)
	}
	if len(result.Tree.Dependencies) != 2 {
		t.Fatalf("children = %+v, want jinja2 and click", result.Tree.Dependencies)
	}
	names := map[string]string{}
	for _, dep := range result.Tree.Dependencies {
		names[dep.Name] = dep.ResolvedVersion
	}
	if names["jinja2"] != "3.1.4" || names["click"] != "8.1.7" {
		t.Errorf("resolved children = %v", names)
	}
	if result.Truncated {
		t.Error("fully explored graph must not be truncated")
	}
}

func TestProcessBatchLatest(t *testing.T) {
	svc := newTestService(t)
	resp, err := svc.ProcessBatch(context.Background(), OpLatest, []resolver.LibraryQuery{
		{Ecosystem: "python", Name: "flask"},
		{Ecosystem: "python", Name: "does-not-exist"},
	})
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if resp.Summary.Total != 2 || resp.Summary.Succeeded != 1 || resp.Summary.Failed != 1 {
		t.Fatalf("summary = %+v", resp.Summary)
	}
	if resp.Items[0].Latest != "3.0.0" || resp.Items[0].Status != "ok" {
		t.Errorf("items[0] = %+v", resp.Items[0])
	}
	if resp.Items[1].Status != "error" || resp.Items[1].Error == "" {
		t.Errorf("items[1] = %+v", resp.Items[1])
	}
}

func TestProcessBatchUnknownOperation(t *testing.T) {
	svc := newTestService(t)
	if _, err := svc.ProcessBatch(context.Background(), "install", nil); err == nil {
		t.Fatal("expected error for unknown operation")
	}
}

func TestMetricsExposition(t *testing.T) {
	svc := newTestService(t)
	if _, err := svc.Resolve(context.Background(), resolver.LibraryQuery{
		Ecosystem: "python", Name: "flask", Depth: 1,
	}); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	rec := httptest.NewRecorder()
	svc.Metrics().Registry.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{
		"librarymaster_resolutions_total 1",
		"librarymaster_resolve_seconds_count 1",
		"librarymaster_local_cache_entries",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q:\n%s", want, body)
		}
	}
}
