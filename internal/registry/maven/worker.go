// Package maven adapts Maven Central (and compatible repositories) to the
// registry worker contract. Library names use the "groupId:artifactId"
// coordinate form.
package maven

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"strings"

	"github.com/librarymaster/librarymaster/internal/liberr"
	"github.com/librarymaster/librarymaster/internal/registry"
	"github.com/librarymaster/librarymaster/internal/resilience"
	"github.com/librarymaster/librarymaster/internal/version"
)

const Ecosystem = "java"

var DefaultMirrors = []string{
	"https://repo1.maven.org/maven2",
	"https://repo.maven.apache.org/maven2",
}

type Worker struct {
	exec   *resilience.Executor
	client *http.Client
}

func New(exec *resilience.Executor) registry.Worker {
	return &Worker{exec: exec, client: registry.NewHTTPClient()}
}

func (w *Worker) Ecosystem() string      { return Ecosystem }
func (w *Worker) Scheme() version.Scheme { return version.SchemeMaven }

// splitCoordinate validates the groupId:artifactId form.
func splitCoordinate(name string) (group, artifact string, err error) {
	parts := strings.Split(name, ":")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("maven coordinate %q must be groupId:artifactId: %w", name, liberr.ErrNotFound)
	}
	return parts[0], parts[1], nil
}

func artifactPath(group, artifact string) string {
	return strings.ReplaceAll(group, ".", "/") + "/" + artifact
}

type metadataDoc struct {
	Versioning struct {
		Latest   string   `xml:"latest"`
		Release  string   `xml:"release"`
		Versions []string `xml:"versions>version"`
	} `xml:"versioning"`
}

type pomDoc struct {
	Dependencies []pomDependency `xml:"dependencies>dependency"`
}

type pomDependency struct {
	GroupID    string `xml:"groupId"`
	ArtifactID string `xml:"artifactId"`
	Version    string `xml:"version"`
	Scope      string `xml:"scope"`
	Optional   string `xml:"optional"`
}

func (w *Worker) fetchMetadata(ctx context.Context, name string) (*metadataDoc, error) {
	group, artifact, err := splitCoordinate(name)
	if err != nil {
		return nil, err
	}
	var doc metadataDoc
	err = w.exec.Do(ctx, Ecosystem, func(ctx context.Context, base string) error {
		u := fmt.Sprintf("%s/%s/maven-metadata.xml", base, artifactPath(group, artifact))
		body, err := registry.GetBytes(ctx, w.client, u)
		if err != nil {
			return err
		}
		if err := xml.Unmarshal(body, &doc); err != nil {
			return fmt.Errorf("decode %s: %w", u, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (w *Worker) LatestVersion(ctx context.Context, name string) (string, error) {
	doc, err := w.fetchMetadata(ctx, name)
	if err != nil {
		return "", err
	}
	// release excludes snapshots; fall back to latest for artifacts that
	// only ever published snapshots.
	if doc.Versioning.Release != "" {
		return doc.Versioning.Release, nil
	}
	if doc.Versioning.Latest == "" {
		return "", liberr.NotFound(Ecosystem, name)
	}
	return doc.Versioning.Latest, nil
}

func (w *Worker) Versions(ctx context.Context, name string) ([]string, error) {
	doc, err := w.fetchMetadata(ctx, name)
	if err != nil {
		return nil, err
	}
	return doc.Versioning.Versions, nil
}

func (w *Worker) VersionExists(ctx context.Context, name, ver string) (bool, error) {
	group, artifact, err := splitCoordinate(name)
	if err != nil {
		return false, err
	}
	var exists bool
	err = w.exec.Do(ctx, Ecosystem, func(ctx context.Context, base string) error {
		u := fmt.Sprintf("%s/%s/%s/%s-%s.pom", base, artifactPath(group, artifact), ver, artifact, ver)
		ok, err := registry.Head(ctx, w.client, u)
		exists = ok
		return err
	})
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (w *Worker) Dependencies(ctx context.Context, name, ver string) (*registry.DependencySet, error) {
	group, artifact, err := splitCoordinate(name)
	if err != nil {
		return nil, err
	}
	if ver == "" {
		latest, err := w.LatestVersion(ctx, name)
		if err != nil {
			return nil, err
		}
		ver = latest
	}
	var doc pomDoc
	var source string
	err = w.exec.Do(ctx, Ecosystem, func(ctx context.Context, base string) error {
		source = base
		u := fmt.Sprintf("%s/%s/%s/%s-%s.pom", base, artifactPath(group, artifact), ver, artifact, ver)
		body, err := registry.GetBytes(ctx, w.client, u)
		if err != nil {
			return err
		}
		if err := xml.Unmarshal(body, &doc); err != nil {
			return fmt.Errorf("decode %s: %w", u, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	set := &registry.DependencySet{Version: ver, Source: source}
	for _, dep := range doc.Dependencies {
		if dep.Scope == "test" || dep.Scope == "provided" || dep.Scope == "system" {
			continue
		}
		if dep.Optional == "true" {
			continue
		}
		// Versions managed by a parent POM or a property reference cannot
		// be resolved from the POM alone; record the edge unconstrained.
		constraint := dep.Version
		if strings.Contains(constraint, "${") {
			constraint = ""
		}
		set.Requirements = append(set.Requirements, registry.Requirement{
			Name:       dep.GroupID + ":" + dep.ArtifactID,
			Constraint: constraint,
		})
	}
	return set, nil
}

func (w *Worker) DocURL(ctx context.Context, name, ver string) (string, error) {
	group, artifact, err := splitCoordinate(name)
	if err != nil {
		return "", err
	}
	if ver == "" {
		latest, err := w.LatestVersion(ctx, name)
		if err != nil {
			return "", err
		}
		ver = latest
	}
	return fmt.Sprintf("https://javadoc.io/doc/%s/%s/%s", group, artifact, ver), nil
}
