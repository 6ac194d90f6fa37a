// Package service assembles the resolution stack (cache, resilience,
// workers, pool, resolver) into one explicit context and exposes the
// operations the transports call. Every Service instance is isolated, so
// tests build their own rather than sharing process globals.
package service

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/librarymaster/librarymaster/internal/cache"
	"github.com/librarymaster/librarymaster/internal/config"
	"github.com/librarymaster/librarymaster/internal/observability"
	"github.com/librarymaster/librarymaster/internal/pool"
	"github.com/librarymaster/librarymaster/internal/registry"
	"github.com/librarymaster/librarymaster/internal/registryutil"
	"github.com/librarymaster/librarymaster/internal/resilience"
	"github.com/librarymaster/librarymaster/internal/resolver"
)

type Service struct {
	cfg      *config.Config
	cache    *cache.MultiLevel
	exec     *resilience.Executor
	factory  *registry.Factory
	pool     *pool.Pool
	resolver *resolver.Resolver
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// New builds a service from cfg. remote may be nil for local-only caching.
func New(cfg *config.Config, remote cache.Remote, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	local := cache.NewLocal(cfg.Cache.LocalMaxSize, cfg.Cache.LocalTTL)
	tiered := cache.NewMultiLevel(local, remote, cfg.Cache.SyncChannel, cfg.Cache.RemoteTTL, logger)

	exec := resilience.NewExecutor(resilience.Config{
		MaxRetries:       cfg.Resilience.MaxRetries,
		RetryDelay:       cfg.Resilience.RetryDelay,
		MaxDelay:         cfg.Resilience.MaxDelay,
		BreakerThreshold: cfg.Resilience.BreakerThreshold,
		BreakerCooldown:  cfg.Resilience.BreakerCooldown,
		RequestTimeout:   cfg.Resilience.RequestTimeout,
	}, logger)

	factory := registry.NewFactory(exec)
	registryutil.RegisterDefaultWorkers(factory, cfg.Registries)

	p := pool.New(factory, tiered, cfg.Resolve.MaxConcurrency, logger)

	return &Service{
		cfg:      cfg,
		cache:    tiered,
		exec:     exec,
		factory:  factory,
		pool:     p,
		resolver: resolver.New(p, cfg.Resolve, logger),
		metrics:  observability.NewMetrics(),
		logger:   logger,
	}
}

// Start launches the cache invalidation listener. Call once at service
// initialization; Close stops it.
func (s *Service) Start(ctx context.Context) error {
	return s.cache.StartListener(ctx)
}

// Close stops the listener and releases the remote cache connection.
func (s *Service) Close() error {
	return s.cache.Close()
}

// Metrics exposes the metrics registry for the /metrics endpoint.
func (s *Service) Metrics() *observability.Metrics { return s.metrics }

// Cache exposes the tiered cache for health reporting.
func (s *Service) Cache() *cache.MultiLevel { return s.cache }

// Breakers exposes the circuit breaker set for health reporting.
func (s *Service) Breakers() *resilience.BreakerSet { return s.exec.Breakers() }

// Ecosystems lists the registered ecosystems.
func (s *Service) Ecosystems() []string { return s.factory.Ecosystems() }

// Resolve walks the dependency graph for q.
func (s *Service) Resolve(ctx context.Context, q resolver.LibraryQuery) (*resolver.TaskResult, error) {
	ctx, span := observability.StartResolveSpan(ctx, q.Ecosystem, q.Name, q.Depth)
	defer span.End()
	start := time.Now()

	result, err := s.resolver.Resolve(ctx, q)
	s.metrics.ResolveSeconds.ObserveDuration(start)
	s.syncCacheStats()
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	s.metrics.Resolutions.Inc()
	s.metrics.Conflicts.Add(float64(len(result.Conflicts)))
	s.metrics.NodesResolved.Add(float64(countNodes(result.Tree)))
	span.SetAttributes(
		attribute.Int("resolve.conflicts", len(result.Conflicts)),
		attribute.Bool("resolve.truncated", result.Truncated),
	)
	return result, nil
}

// GetLatest returns the newest published version of name.
func (s *Service) GetLatest(ctx context.Context, ecosystem, name string) (string, error) {
	ctx, span := observability.StartLookupSpan(ctx, "latest", ecosystem, name)
	defer span.End()
	s.metrics.UpstreamCalls.Inc()
	v, err := s.pool.LatestVersion(ctx, ecosystem, name)
	s.syncCacheStats()
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	return v, err
}

// Exists reports whether the exact version of name is published.
func (s *Service) Exists(ctx context.Context, ecosystem, name, ver string) (bool, error) {
	ctx, span := observability.StartLookupSpan(ctx, "exists", ecosystem, name)
	defer span.End()
	s.metrics.UpstreamCalls.Inc()
	ok, err := s.pool.VersionExists(ctx, ecosystem, name, ver)
	s.syncCacheStats()
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	return ok, err
}

// DocURL returns the documentation location for name at ver.
func (s *Service) DocURL(ctx context.Context, ecosystem, name, ver string) (string, error) {
	ctx, span := observability.StartLookupSpan(ctx, "docs", ecosystem, name)
	defer span.End()
	s.metrics.UpstreamCalls.Inc()
	u, err := s.pool.DocURL(ctx, ecosystem, name, ver)
	s.syncCacheStats()
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	return u, err
}

// Dependencies returns the direct dependency listing of name at ver.
func (s *Service) Dependencies(ctx context.Context, ecosystem, name, ver string) (*registry.DependencySet, error) {
	ctx, span := observability.StartLookupSpan(ctx, "deps", ecosystem, name)
	defer span.End()
	s.metrics.UpstreamCalls.Inc()
	set, err := s.pool.Dependencies(ctx, ecosystem, name, ver)
	s.syncCacheStats()
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	return set, err
}

func (s *Service) syncCacheStats() {
	hits, misses := s.cache.Local().Stats()
	s.metrics.CacheHits.Set(float64(hits))
	s.metrics.CacheMisses.Set(float64(misses))
	s.metrics.LocalCacheSize.Set(float64(s.cache.Local().Len()))

	open := 0
	for _, state := range s.exec.Breakers().States() {
		if state != resilience.StateClosed {
			open++
		}
	}
	s.metrics.BreakersOpen.Set(float64(open))
}

func countNodes(n *resolver.DependencyInfo) int {
	if n == nil {
		return 0
	}
	total := 1
	for _, d := range n.Dependencies {
		total += countNodes(d)
	}
	return total
}
