// Package npm adapts the npm registry API to the registry worker contract.
package npm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/librarymaster/librarymaster/internal/liberr"
	"github.com/librarymaster/librarymaster/internal/registry"
	"github.com/librarymaster/librarymaster/internal/resilience"
	"github.com/librarymaster/librarymaster/internal/version"
)

const Ecosystem = "node"

var DefaultMirrors = []string{
	"https://registry.npmjs.org",
	"https://registry.npmmirror.com",
}

type Worker struct {
	exec   *resilience.Executor
	client *http.Client
}

func New(exec *resilience.Executor) registry.Worker {
	return &Worker{exec: exec, client: registry.NewHTTPClient()}
}

func (w *Worker) Ecosystem() string      { return Ecosystem }
func (w *Worker) Scheme() version.Scheme { return version.SchemeSemver }

// escapeName keeps the scope separator literal: "@scope/pkg" is addressed
// as "@scope%2Fpkg" on the registry.
func escapeName(name string) string {
	return url.QueryEscape(name)
}

type packumentDoc struct {
	DistTags map[string]string `json:"dist-tags"`
	Versions map[string]struct {
		Deprecated string `json:"deprecated"`
	} `json:"versions"`
	Homepage string `json:"homepage"`
}

type manifestDoc struct {
	Version      string            `json:"version"`
	Dependencies map[string]string `json:"dependencies"`
	Homepage     string            `json:"homepage"`
}

func (w *Worker) fetchPackument(ctx context.Context, name string) (*packumentDoc, error) {
	var doc packumentDoc
	err := w.exec.Do(ctx, Ecosystem, func(ctx context.Context, base string) error {
		return registry.GetJSON(ctx, w.client, base+"/"+escapeName(name), &doc)
	})
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (w *Worker) fetchManifest(ctx context.Context, name, ver string) (*manifestDoc, string, error) {
	if ver == "" {
		ver = "latest"
	}
	var doc manifestDoc
	var source string
	err := w.exec.Do(ctx, Ecosystem, func(ctx context.Context, base string) error {
		source = base
		u := fmt.Sprintf("%s/%s/%s", base, escapeName(name), url.PathEscape(ver))
		return registry.GetJSON(ctx, w.client, u, &doc)
	})
	if err != nil {
		return nil, "", err
	}
	return &doc, source, nil
}

func (w *Worker) LatestVersion(ctx context.Context, name string) (string, error) {
	doc, err := w.fetchPackument(ctx, name)
	if err != nil {
		return "", err
	}
	latest := doc.DistTags["latest"]
	if latest == "" {
		return "", liberr.NotFound(Ecosystem, name)
	}
	return latest, nil
}

func (w *Worker) Versions(ctx context.Context, name string) ([]string, error) {
	doc, err := w.fetchPackument(ctx, name)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(doc.Versions))
	for ver, meta := range doc.Versions {
		if meta.Deprecated == "" {
			out = append(out, ver)
		}
	}
	return out, nil
}

func (w *Worker) VersionExists(ctx context.Context, name, ver string) (bool, error) {
	_, _, err := w.fetchManifest(ctx, name, ver)
	if err != nil {
		if errors.Is(err, liberr.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (w *Worker) Dependencies(ctx context.Context, name, ver string) (*registry.DependencySet, error) {
	doc, source, err := w.fetchManifest(ctx, name, ver)
	if err != nil {
		return nil, err
	}
	set := &registry.DependencySet{Version: doc.Version, Source: source}
	for dep, constraint := range doc.Dependencies {
		set.Requirements = append(set.Requirements, registry.Requirement{
			Name:       dep,
			Constraint: constraint,
		})
	}
	return set, nil
}

func (w *Worker) DocURL(ctx context.Context, name, ver string) (string, error) {
	doc, _, err := w.fetchManifest(ctx, name, ver)
	if err != nil {
		return "", err
	}
	if doc.Homepage != "" {
		return doc.Homepage, nil
	}
	if ver != "" {
		return fmt.Sprintf("https://www.npmjs.com/package/%s/v/%s", name, ver), nil
	}
	return "https://www.npmjs.com/package/" + name, nil
}
