// Package goproxy adapts the Go module proxy protocol to the registry
// worker contract.
package goproxy

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/librarymaster/librarymaster/internal/liberr"
	"github.com/librarymaster/librarymaster/internal/registry"
	"github.com/librarymaster/librarymaster/internal/resilience"
	"github.com/librarymaster/librarymaster/internal/version"
)

const Ecosystem = "go"

var DefaultMirrors = []string{
	"https://proxy.golang.org",
	"https://goproxy.io",
}

type Worker struct {
	exec   *resilience.Executor
	client *http.Client
}

func New(exec *resilience.Executor) registry.Worker {
	return &Worker{exec: exec, client: registry.NewHTTPClient()}
}

func (w *Worker) Ecosystem() string      { return Ecosystem }
func (w *Worker) Scheme() version.Scheme { return version.SchemeGoMod }

// escapePath applies the proxy protocol's case encoding: every uppercase
// letter becomes '!' followed by its lowercase form.
func escapePath(path string) string {
	var b strings.Builder
	for _, r := range path {
		if r >= 'A' && r <= 'Z' {
			b.WriteByte('!')
			b.WriteRune(r + ('a' - 'A'))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func (w *Worker) LatestVersion(ctx context.Context, name string) (string, error) {
	var doc struct {
		Version string `json:"Version"`
	}
	err := w.exec.Do(ctx, Ecosystem, func(ctx context.Context, base string) error {
		return registry.GetJSON(ctx, w.client, base+"/"+escapePath(name)+"/@latest", &doc)
	})
	if err != nil {
		return "", err
	}
	return doc.Version, nil
}

func (w *Worker) Versions(ctx context.Context, name string) ([]string, error) {
	var body []byte
	err := w.exec.Do(ctx, Ecosystem, func(ctx context.Context, base string) error {
		var err error
		body, err = registry.GetBytes(ctx, w.client, base+"/"+escapePath(name)+"/@v/list")
		return err
	})
	if err != nil {
		return nil, err
	}
	var out []string
	sc := bufio.NewScanner(strings.NewReader(string(body)))
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			out = append(out, line)
		}
	}
	return out, nil
}

func (w *Worker) VersionExists(ctx context.Context, name, ver string) (bool, error) {
	if !strings.HasPrefix(ver, "v") {
		ver = "v" + ver
	}
	var doc struct {
		Version string `json:"Version"`
	}
	err := w.exec.Do(ctx, Ecosystem, func(ctx context.Context, base string) error {
		u := fmt.Sprintf("%s/%s/@v/%s.info", base, escapePath(name), ver)
		return registry.GetJSON(ctx, w.client, u, &doc)
	})
	if err != nil {
		if errors.Is(err, liberr.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (w *Worker) Dependencies(ctx context.Context, name, ver string) (*registry.DependencySet, error) {
	if ver == "" {
		latest, err := w.LatestVersion(ctx, name)
		if err != nil {
			return nil, err
		}
		ver = latest
	}
	if !strings.HasPrefix(ver, "v") {
		ver = "v" + ver
	}
	var body []byte
	var source string
	err := w.exec.Do(ctx, Ecosystem, func(ctx context.Context, base string) error {
		var err error
		source = base
		u := fmt.Sprintf("%s/%s/@v/%s.mod", base, escapePath(name), ver)
		body, err = registry.GetBytes(ctx, w.client, u)
		return err
	})
	if err != nil {
		return nil, err
	}
	set := &registry.DependencySet{Version: ver, Source: source}
	set.Requirements = parseGoMod(string(body))
	return set, nil
}

func (w *Worker) DocURL(ctx context.Context, name, ver string) (string, error) {
	if ver == "" {
		return "https://pkg.go.dev/" + name, nil
	}
	if !strings.HasPrefix(ver, "v") {
		ver = "v" + ver
	}
	return fmt.Sprintf("https://pkg.go.dev/%s@%s", name, ver), nil
}

// parseGoMod extracts direct requirements from a go.mod body. Entries
// marked "// indirect" are skipped.
func parseGoMod(src string) []registry.Requirement {
	var out []registry.Requirement
	inBlock := false
	sc := bufio.NewScanner(strings.NewReader(src))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "require (":
			inBlock = true
			continue
		case inBlock && line == ")":
			inBlock = false
			continue
		}

		var spec string
		if inBlock {
			spec = line
		} else if rest, ok := strings.CutPrefix(line, "require "); ok {
			spec = rest
		} else {
			continue
		}
		if strings.Contains(spec, "// indirect") {
			continue
		}
		if i := strings.Index(spec, "//"); i >= 0 {
			spec = spec[:i]
		}
		fields := strings.Fields(spec)
		if len(fields) != 2 {
			continue
		}
		out = append(out, registry.Requirement{Name: fields[0], Constraint: fields[1]})
	}
	return out
}
