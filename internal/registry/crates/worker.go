// Package crates adapts the crates.io API to the registry worker contract.
package crates

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

const Ecosystem = "rust"

var DefaultMirrors = []string{
	"https://crates.io/api/v1",
}

type Worker struct {
	exec   *resilience.Executor
	client *http.Client
}

func New(exec *resilience.Executor) registry.Worker {
	return &Worker{exec: exec, client: registry.NewHTTPClient()}
}

func (w *Worker) Ecosystem() string      { return Ecosystem }
func (w *Worker) Scheme() version.Scheme { return version.SchemeCargo }

type crateDoc struct {
	Crate struct {
		MaxStableVersion string `json:"max_stable_version"`
		MaxVersion       string `json:"max_version"`
		Documentation    string `json:"documentation"`
	} `json:"crate"`
	Versions []versionEntry `json:"versions"`
}

type versionEntry struct {
	Num    string `json:"num"`
	Yanked bool   `json:"yanked"`
}

type depsDoc struct {
	Dependencies []struct {
		CrateID  string `json:"crate_id"`
		Req      string `json:"req"`
		Kind     string `json:"kind"`
		Optional bool   `json:"optional"`
	} `json:"dependencies"`
}

func (w *Worker) fetchCrate(ctx context.Context, name string) (*crateDoc, error) {
	var doc crateDoc
	err := w.exec.Do(ctx, Ecosystem, func(ctx context.Context, base string) error {
		return registry.GetJSON(ctx, w.client, base+"/crates/"+url.PathEscape(name), &doc)
	})
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (w *Worker) LatestVersion(ctx context.Context, name string) (string, error) {
	doc, err := w.fetchCrate(ctx, name)
	if err != nil {
		return "", err
	}
	if doc.Crate.MaxStableVersion != "" {
		return doc.Crate.MaxStableVersion, nil
	}
	if doc.Crate.MaxVersion == "" {
		return "", liberr.NotFound(Ecosystem, name)
	}
	return doc.Crate.MaxVersion, nil
}

func (w *Worker) Versions(ctx context.Context, name string) ([]string, error) {
	doc, err := w.fetchCrate(ctx, name)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(doc.Versions))
	for _, v := range doc.Versions {
		if !v.Yanked {
			out = append(out, v.Num)
		}
	}
	return out, nil
}

func (w *Worker) VersionExists(ctx context.Context, name, ver string) (bool, error) {
	var doc struct {
		Version versionEntry `json:"version"`
	}
	err := w.exec.Do(ctx, Ecosystem, func(ctx context.Context, base string) error {
		u := fmt.Sprintf("%s/crates/%s/%s", base, url.PathEscape(name), url.PathEscape(ver))
		return registry.GetJSON(ctx, w.client, u, &doc)
	})
	if err != nil {
		if errors.Is(err, liberr.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return !doc.Version.Yanked, nil
}

func (w *Worker) Dependencies(ctx context.Context, name, ver string) (*registry.DependencySet, error) {
	if ver == "" {
		latest, err := w.LatestVersion(ctx, name)
		if err != nil {
			return nil, err
		}
		ver = latest
	}
	var doc depsDoc
	var source string
	err := w.exec.Do(ctx, Ecosystem, func(ctx context.Context, base string) error {
		source = base
		u := fmt.Sprintf("%s/crates/%s/%s/dependencies", base, url.PathEscape(name), url.PathEscape(ver))
		return registry.GetJSON(ctx, w.client, u, &doc)
	})
	if err != nil {
		return nil, err
	}
	set := &registry.DependencySet{Version: ver, Source: source}
	for _, dep := range doc.Dependencies {
		// Build and dev dependencies are not part of the consumer's graph.
		if dep.Kind != "" && dep.Kind != "normal" {
			continue
		}
		if dep.Optional {
			continue
		}
		set.Requirements = append(set.Requirements, registry.Requirement{
			Name:       dep.CrateID,
			Constraint: dep.Req,
		})
	}
	return set, nil
}

func (w *Worker) DocURL(ctx context.Context, name, ver string) (string, error) {
	doc, err := w.fetchCrate(ctx, name)
	if err != nil {
		return "", err
	}
	if doc.Crate.Documentation != "" {
		return doc.Crate.Documentation, nil
	}
	if ver != "" {
		return fmt.Sprintf("https://docs.rs/%s/%s", name, ver), nil
	}
	return "https://docs.rs/" + name, nil
}
