// Package registryutil wires the built-in ecosystem workers into a
// registry factory.
package registryutil

import (
	"github.com/librarymaster/librarymaster/internal/config"
	"github.com/librarymaster/librarymaster/internal/registry"
	"github.com/librarymaster/librarymaster/internal/registry/crates"
	"github.com/librarymaster/librarymaster/internal/registry/goproxy"
	"github.com/librarymaster/librarymaster/internal/registry/maven"
	"github.com/librarymaster/librarymaster/internal/registry/npm"
	"github.com/librarymaster/librarymaster/internal/registry/pypi"
	"github.com/librarymaster/librarymaster/internal/version"
)

// RegisterDefaultWorkers registers all built-in ecosystem workers into
// factory. Mirror lists come from the registries config when present,
// otherwise each adapter's defaults. Both cmd serve and the one-shot CLI
// commands call this to avoid duplicating registration logic.
func RegisterDefaultWorkers(factory *registry.Factory, registries map[string]config.RegistryConfig) {
	mirrorsFor := func(ecosystem string, defaults []string) []string {
		if reg, ok := registries[ecosystem]; ok && len(reg.Mirrors) > 0 {
			return reg.Mirrors
		}
		return defaults
	}

	for _, e := range []struct {
		name     string
		scheme   version.Scheme
		defaults []string
		ctor     registry.Constructor
	}{
		{pypi.Ecosystem, version.SchemeSemver, pypi.DefaultMirrors, pypi.New},
		{npm.Ecosystem, version.SchemeSemver, npm.DefaultMirrors, npm.New},
		{crates.Ecosystem, version.SchemeCargo, crates.DefaultMirrors, crates.New},
		{maven.Ecosystem, version.SchemeMaven, maven.DefaultMirrors, maven.New},
		{goproxy.Ecosystem, version.SchemeGoMod, goproxy.DefaultMirrors, goproxy.New},
	} {
		factory.Register(e.name, e.scheme, mirrorsFor(e.name, e.defaults), e.ctor)
	}
}
