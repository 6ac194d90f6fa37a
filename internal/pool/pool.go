// Package pool funnels registry lookups through the shared cache, collapses
// concurrent identical requests, and bounds upstream concurrency.
package pool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/librarymaster/librarymaster/internal/cache"
	"github.com/librarymaster/librarymaster/internal/registry"
)

// Pool is the single entry point for registry data. Every lookup runs the
// same pipeline: cache probe, in-flight coalescing, concurrency-bounded
// upstream call, cache fill. Errors are never cached.
type Pool struct {
	factory *registry.Factory
	cache   *cache.MultiLevel
	group   singleflight.Group
	sem     *semaphore.Weighted
	logger  *slog.Logger
}

// New creates a pool admitting at most maxConcurrency simultaneous
// upstream calls.
func New(factory *registry.Factory, c *cache.MultiLevel, maxConcurrency int, logger *slog.Logger) *Pool {
	if maxConcurrency <= 0 {
		maxConcurrency = 10
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		factory: factory,
		cache:   c,
		sem:     semaphore.NewWeighted(int64(maxConcurrency)),
		logger:  logger,
	}
}

// Factory exposes the worker factory for callers that need version
// semantics or the ecosystem list.
func (p *Pool) Factory() *registry.Factory { return p.factory }

// fetch runs the lookup pipeline for one cache key. Concurrent callers
// with the same key share a single upstream call; the winning caller's
// context governs the shared attempt.
func fetch[T any](p *Pool, ctx context.Context, key string, upstream func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	if data, ok := p.cache.Get(ctx, key); ok {
		var out T
		if err := json.Unmarshal(data, &out); err == nil {
			return out, nil
		}
		// A corrupt entry is dropped and refetched.
		p.logger.Warn("evicting undecodable cache entry", "key", key)
		p.cache.Delete(ctx, key)
	}

	v, err, _ := p.group.Do(key, func() (any, error) {
		if err := p.sem.Acquire(ctx, 1); err != nil {
			return nil, fmt.Errorf("waiting for worker slot: %w", err)
		}
		defer p.sem.Release(1)

		out, err := upstream(ctx)
		if err != nil {
			return nil, err
		}
		if data, err := json.Marshal(out); err == nil {
			p.cache.Set(ctx, key, data)
		}
		return out, nil
	})
	if err != nil {
		return zero, err
	}
	return v.(T), nil
}

// Dependencies returns the direct dependency listing of name at ver
// (latest when ver is empty).
func (p *Pool) Dependencies(ctx context.Context, ecosystem, name, ver string) (*registry.DependencySet, error) {
	w, err := p.factory.Worker(ecosystem)
	if err != nil {
		return nil, err
	}
	key := cache.Key(ecosystem, "deps", name, ver)
	return fetch(p, ctx, key, func(ctx context.Context) (*registry.DependencySet, error) {
		return w.Dependencies(ctx, name, ver)
	})
}

// LatestVersion returns the newest published version of name.
func (p *Pool) LatestVersion(ctx context.Context, ecosystem, name string) (string, error) {
	w, err := p.factory.Worker(ecosystem)
	if err != nil {
		return "", err
	}
	key := cache.Key(ecosystem, "latest", name, "")
	return fetch(p, ctx, key, func(ctx context.Context) (string, error) {
		return w.LatestVersion(ctx, name)
	})
}

// Versions lists all published versions of name.
func (p *Pool) Versions(ctx context.Context, ecosystem, name string) ([]string, error) {
	w, err := p.factory.Worker(ecosystem)
	if err != nil {
		return nil, err
	}
	key := cache.Key(ecosystem, "versions", name, "")
	return fetch(p, ctx, key, func(ctx context.Context) ([]string, error) {
		return w.Versions(ctx, name)
	})
}

// VersionExists reports whether the exact version of name is published.
func (p *Pool) VersionExists(ctx context.Context, ecosystem, name, ver string) (bool, error) {
	w, err := p.factory.Worker(ecosystem)
	if err != nil {
		return false, err
	}
	key := cache.Key(ecosystem, "exists", name, ver)
	return fetch(p, ctx, key, func(ctx context.Context) (bool, error) {
		return w.VersionExists(ctx, name, ver)
	})
}

// DocURL returns the documentation location for name at ver.
func (p *Pool) DocURL(ctx context.Context, ecosystem, name, ver string) (string, error) {
	w, err := p.factory.Worker(ecosystem)
	if err != nil {
		return "", err
	}
	key := cache.Key(ecosystem, "docs", name, ver)
	return fetch(p, ctx, key, func(ctx context.Context) (string, error) {
		return w.DocURL(ctx, name, ver)
	})
}
