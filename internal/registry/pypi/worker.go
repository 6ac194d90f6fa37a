// Package pypi adapts the PyPI JSON API to the registry worker contract.
package pypi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/librarymaster/librarymaster/internal/liberr"
	"github.com/librarymaster/librarymaster/internal/registry"
	"github.com/librarymaster/librarymaster/internal/resilience"
	"github.com/librarymaster/librarymaster/internal/version"
)

const Ecosystem = "python"

// DefaultMirrors is the ordered endpoint list, primary first. Each entry
// serves the /{project}/json and /{project}/{version}/json routes.
var DefaultMirrors = []string{
	"https://pypi.org/pypi",
	"https://mirrors.aliyun.com/pypi/web/pypi",
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

type projectDoc struct {
	Info struct {
		Name         string            `json:"name"`
		Version      string            `json:"version"`
		RequiresDist []string          `json:"requires_dist"`
		ProjectURLs  map[string]string `json:"project_urls"`
		DocsURL      string            `json:"docs_url"`
	} `json:"info"`
	Releases map[string][]struct {
		Yanked bool `json:"yanked"`
	} `json:"releases"`
}

func (w *Worker) fetch(ctx context.Context, name, ver string) (*projectDoc, string, error) {
	var doc projectDoc
	var source string
	err := w.exec.Do(ctx, Ecosystem, func(ctx context.Context, base string) error {
		source = base
		u := fmt.Sprintf("%s/%s/json", base, url.PathEscape(normalizeName(name)))
		if ver != "" {
			u = fmt.Sprintf("%s/%s/%s/json", base, url.PathEscape(normalizeName(name)), url.PathEscape(ver))
		}
		return registry.GetJSON(ctx, w.client, u, &doc)
	})
	if err != nil {
		return nil, "", err
	}
	return &doc, source, nil
}

func (w *Worker) LatestVersion(ctx context.Context, name string) (string, error) {
	doc, _, err := w.fetch(ctx, name, "")
	if err != nil {
		return "", err
	}
	return doc.Info.Version, nil
}

func (w *Worker) Versions(ctx context.Context, name string) ([]string, error) {
	doc, _, err := w.fetch(ctx, name, "")
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(doc.Releases))
	for ver, files := range doc.Releases {
		// A release with no distribution files is not installable.
		if len(files) == 0 {
			continue
		}
		yanked := true
		for _, f := range files {
			if !f.Yanked {
				yanked = false
				break
			}
		}
		if !yanked {
			out = append(out, ver)
		}
	}
	return out, nil
}

func (w *Worker) VersionExists(ctx context.Context, name, ver string) (bool, error) {
	_, _, err := w.fetch(ctx, name, ver)
	if err != nil {
		if errors.Is(err, liberr.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (w *Worker) Dependencies(ctx context.Context, name, ver string) (*registry.DependencySet, error) {
	doc, source, err := w.fetch(ctx, name, ver)
	if err != nil {
		return nil, err
	}
	set := &registry.DependencySet{Version: doc.Info.Version, Source: source}
	for _, spec := range doc.Info.RequiresDist {
		req, ok := parseRequiresDist(spec)
		if ok {
			set.Requirements = append(set.Requirements, req)
		}
	}
	return set, nil
}

func (w *Worker) DocURL(ctx context.Context, name, ver string) (string, error) {
	doc, _, err := w.fetch(ctx, name, ver)
	if err != nil {
		return "", err
	}
	for _, key := range []string{"Documentation", "documentation", "Docs", "docs"} {
		if u := doc.Info.ProjectURLs[key]; u != "" {
			return u, nil
		}
	}
	if doc.Info.DocsURL != "" {
		return doc.Info.DocsURL, nil
	}
	if ver != "" {
		return fmt.Sprintf("https://pypi.org/project/%s/%s/", normalizeName(name), ver), nil
	}
	return fmt.Sprintf("https://pypi.org/project/%s/", normalizeName(name)), nil
}

// normalizeName applies PEP 503 name normalization: runs of -, _ and .
// collapse to a single hyphen, lowercased.
func normalizeName(name string) string {
	return strings.ToLower(nameSeparators.ReplaceAllString(name, "-"))
}

var (
	nameSeparators = regexp.MustCompile(`[-_.]+`)
	distPattern    = regexp.MustCompile(`^([A-Za-z0-9][A-Za-z0-9._-]*)\s*(?:\[[^\]]*\])?\s*(.*)$`)
)

// parseRequiresDist parses one requires_dist entry, e.g.
// "urllib3 (>=1.21.1,<3) ; extra == 'socks'". Entries guarded by an
// environment marker other than a bare python_version are kept; extras-only
// requirements are dropped since they are not installed by default.
func parseRequiresDist(spec string) (registry.Requirement, bool) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return registry.Requirement{}, false
	}
	if i := strings.Index(spec, ";"); i >= 0 {
		marker := strings.TrimSpace(spec[i+1:])
		spec = strings.TrimSpace(spec[:i])
		if strings.Contains(marker, "extra") {
			return registry.Requirement{}, false
		}
	}
	m := distPattern.FindStringSubmatch(spec)
	if m == nil {
		return registry.Requirement{}, false
	}
	constraint := strings.TrimSpace(m[2])
	constraint = strings.TrimPrefix(constraint, "(")
	constraint = strings.TrimSuffix(constraint, ")")
	return registry.Requirement{
		Name:       normalizeName(m[1]),
		Constraint: strings.TrimSpace(constraint),
	}, true
}
