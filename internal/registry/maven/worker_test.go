package maven

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/librarymaster/librarymaster/internal/liberr"
	"github.com/librarymaster/librarymaster/internal/resilience"
)

const metadataXML = `<?xml version="1.0" encoding="UTF-8"?>
<metadata>
  <groupId>com.google.guava</groupId>
  <artifactId>guava</artifactId>
  <versioning>
    <latest>33.3.0-jre</latest>
    <release>33.3.0-jre</release>
    <versions>
      <version>33.2.1-jre</version>
      <version>33.3.0-jre</version>
    </versions>
  </versioning>
</metadata>`

const pomXML = `<?xml version="1.0" encoding="UTF-8"?>
<project>
  <dependencies>
    <dependency>
      <groupId>com.google.errorprone</groupId>
      <artifactId>error_prone_annotations</artifactId>
      <version>2.28.0</version>
    </dependency>
    <dependency>
      <groupId>junit</groupId>
      <artifactId>junit</artifactId>
      <version>4.13.2</version>
      <scope>test</scope>
    </dependency>
    <dependency>
      <groupId>org.example</groupId>
      <artifactId>managed</artifactId>
      <version>${managed.version}</version>
    </dependency>
  </dependencies>
</project>`

func newTestWorker(t *testing.T, handler http.Handler) *Worker {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	exec := resilience.NewExecutor(resilience.Config{MaxRetries: 0, BreakerThreshold: 5}, nil)
	exec.RegisterMirrors(Ecosystem, []string{srv.URL})
	return New(exec).(*Worker)
}

func repoHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/com/google/guava/guava/maven-metadata.xml", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(metadataXML))
	})
	mux.HandleFunc("/com/google/guava/guava/33.3.0-jre/guava-33.3.0-jre.pom", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(pomXML))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	return mux
}

func TestLatestVersion(t *testing.T) {
	w := newTestWorker(t, repoHandler())
	got, err := w.LatestVersion(context.Background(), "com.google.guava:guava")
	if err != nil {
		t.Fatalf("LatestVersion: %v", err)
	}
	if got != "33.3.0-jre" {
		t.Errorf("LatestVersion = %q", got)
	}
}

func TestVersions(t *testing.T) {
	w := newTestWorker(t, repoHandler())
	got, err := w.Versions(context.Background(), "com.google.guava:guava")
	if err != nil {
		t.Fatalf("Versions: %v", err)
	}
	if len(got) != 2 || got[1] != "33.3.0-jre" {
		t.Errorf("Versions = %v", got)
	}
}

func TestDependenciesSkipTestScopeAndProperties(t *testing.T) {
	w := newTestWorker(t, repoHandler())
	set, err := w.Dependencies(context.Background(), "com.google.guava:guava", "33.3.0-jre")
	if err != nil {
		t.Fatalf("Dependencies: %v", err)
	}
	if len(set.Requirements) != 2 {
		t.Fatalf("Requirements = %v, want 2 entries", set.Requirements)
	}
	if set.Requirements[0].Name != "com.google.errorprone:error_prone_annotations" ||
		set.Requirements[0].Constraint != "2.28.0" {
		t.Errorf("requirement[0] = %+v", set.Requirements[0])
	}
	// Property-managed version is recorded unconstrained, not dropped.
	if set.Requirements[1].Name != "org.example:managed" || set.Requirements[1].Constraint != "" {
		t.Errorf("requirement[1] = %+v", set.Requirements[1])
	}
}

func TestVersionExists(t *testing.T) {
	w := newTestWorker(t, repoHandler())
	ok, err := w.VersionExists(context.Background(), "com.google.guava:guava", "33.3.0-jre")
	if err != nil || !ok {
		t.Errorf("VersionExists = %v, %v; want true", ok, err)
	}
	ok, err = w.VersionExists(context.Background(), "com.google.guava:guava", "1.0")
	if err != nil || ok {
		t.Errorf("VersionExists(1.0) = %v, %v; want false", ok, err)
	}
}

func TestBadCoordinate(t *testing.T) {
	w := newTestWorker(t, repoHandler())
	_, err := w.LatestVersion(context.Background(), "guava")
	if !errors.Is(err, liberr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound for missing groupId", err)
	}
}
