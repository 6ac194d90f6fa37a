package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/librarymaster/librarymaster/internal/cache"
	"github.com/librarymaster/librarymaster/internal/config"
	"github.com/librarymaster/librarymaster/internal/observability"
	"github.com/librarymaster/librarymaster/internal/resolver"
	"github.com/librarymaster/librarymaster/internal/server"
	"github.com/librarymaster/librarymaster/internal/service"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	var (
		configPath string
		jsonOutput bool
	)

	rootCmd := &cobra.Command{
		Use:   "librarymaster",
		Short: "Library version and dependency intelligence across package ecosystems",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "configs/librarymaster.yaml", "Config file path")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and health servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}

	mcpCmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve Model Context Protocol tools on stdin/stdout",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMCP(configPath)
		},
	}

	var (
		resolveDepth  int
		resolveFormat string
	)
	resolveCmd := &cobra.Command{
		Use:   "resolve <ecosystem> <name> [version]",
		Short: "Resolve a library's dependency tree with conflict detection",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ver := ""
			if len(args) == 3 {
				ver = args[2]
			}
			return runResolve(configPath, args[0], args[1], ver, resolveDepth, resolveFormat)
		},
	}
	resolveCmd.Flags().IntVar(&resolveDepth, "depth", -1, "Transitive depth bound (-1 uses the configured default)")
	resolveCmd.Flags().StringVar(&resolveFormat, "format", "json", "Output format: json or dot")

	latestCmd := &cobra.Command{
		Use:   "latest <ecosystem> <name>...",
		Short: "Show the latest published version of one or more libraries",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLatest(configPath, args[0], args[1:], jsonOutput)
		},
	}
	latestCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output results as JSON")

	existsCmd := &cobra.Command{
		Use:   "exists <ecosystem> <name> <version>",
		Short: "Check whether an exact library version is published",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExists(configPath, args[0], args[1], args[2])
		},
	}

	docsCmd := &cobra.Command{
		Use:   "docs <ecosystem> <name> [version]",
		Short: "Show the documentation URL for a library",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ver := ""
			if len(args) == 3 {
				ver = args[2]
			}
			return runDocs(configPath, args[0], args[1], ver)
		},
	}

	rootCmd.AddCommand(serveCmd, mcpCmd, resolveCmd, latestCmd, existsCmd, docsCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig falls back to defaults when the config file is missing, so the
// binary works out of the box against the public registries.
func loadConfig(path string) *config.Config {
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: config load failed (%v), using defaults\n", err)
		cfg = config.Default()
	}
	return cfg
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// connectRemote attaches the shared Redis tier. Failure degrades to
// local-only caching rather than aborting startup.
func connectRemote(ctx context.Context, cfg config.CacheConfig, logger *slog.Logger) *cache.RedisRemote {
	if cfg.RedisAddr == "" {
		return nil
	}
	remote, err := cache.NewRedisRemote(ctx, cache.RedisOptions{
		Addr:     cfg.RedisAddr,
		DB:       cfg.RedisDB,
		Password: cfg.RedisPass,
	})
	if err != nil {
		logger.Warn("remote cache unavailable, running local tier only", "addr", cfg.RedisAddr, "error", err)
		return nil
	}
	logger.Info("remote cache connected", "addr", cfg.RedisAddr)
	return remote
}

func runServe(configPath string) error {
	cfg := loadConfig(configPath)
	logger := newLogger(cfg.Log)
	ctx := context.Background()

	tracer, err := observability.InitTracing(ctx, &observability.TracingConfig{
		ServiceName:    "librarymaster",
		ServiceVersion: version,
		Environment:    cfg.Tracing.Environment,
		OTLPEndpoint:   cfg.Tracing.OTLPEndpoint,
		SampleRate:     cfg.Tracing.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}

	remote := connectRemote(ctx, cfg.Cache, logger)
	var remotePing func(ctx context.Context) error
	if remote != nil {
		remotePing = remote.Ping
	}

	svc := service.New(cfg, remoteOrNil(remote), logger)
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}

	api := server.NewAPIServer(cfg.Server.HTTPAddr, svc, logger)
	health := server.NewHealthServer(version)
	health.RegisterCheck("remote_cache", server.RemoteCacheHealthChecker(remotePing))
	health.RegisterCheck("circuit_breakers", server.BreakerHealthChecker(svc.Breakers()))

	shutdown := server.NewShutdownHandler(30*time.Second, logger)
	shutdown.RegisterHook("api_server", 10, api.Stop)
	shutdown.RegisterHook("health_server", 20, func(context.Context) error {
		health.Shutdown()
		return nil
	})
	shutdown.RegisterHook("tracer", 30, tracer.Shutdown)
	shutdown.RegisterHook("service", 40, func(context.Context) error {
		return svc.Close()
	})
	shutdown.Start()

	go func() {
		if err := health.ListenAndServe(cfg.Server.HealthAddr); err != nil {
			logger.Error("health server stopped", "error", err)
		}
	}()

	go func() {
		if err := api.Start(); err != nil {
			logger.Error("api server failed", "error", err)
			shutdown.Shutdown()
		}
	}()

	health.SetReady(true)
	logger.Info("librarymaster serving",
		"version", version,
		"http_addr", cfg.Server.HTTPAddr,
		"health_addr", cfg.Server.HealthAddr,
		"ecosystems", svc.Ecosystems(),
	)

	shutdown.Wait()
	return nil
}

// remoteOrNil avoids handing the service a typed nil interface.
func remoteOrNil(remote *cache.RedisRemote) cache.Remote {
	if remote == nil {
		return nil
	}
	return remote
}

func runMCP(configPath string) error {
	cfg := loadConfig(configPath)
	logger := newLogger(cfg.Log)
	ctx := context.Background()

	remote := connectRemote(ctx, cfg.Cache, logger)
	svc := service.New(cfg, remoteOrNil(remote), logger)
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	defer svc.Close()

	logger.Info("serving MCP tools on stdio", "version", version)
	return server.NewMCPServer(svc, version).ServeStdio()
}

// oneShot builds a short-lived service for CLI lookups. No remote cache and
// no invalidation listener; each invocation stands alone.
func oneShot(configPath string) (*service.Service, *slog.Logger) {
	cfg := loadConfig(configPath)
	logger := newLogger(cfg.Log)
	return service.New(cfg, nil, logger), logger
}

func runResolve(configPath, ecosystem, name, ver string, depth int, format string) error {
	svc, _ := oneShot(configPath)
	result, err := svc.Resolve(context.Background(), resolver.LibraryQuery{
		Ecosystem: ecosystem,
		Name:      name,
		Version:   ver,
		Depth:     depth,
	})
	if err != nil {
		return err
	}

	switch format {
	case "dot":
		fmt.Println(resolver.ExportDOT(result))
	default:
		out, err := resolver.ExportJSON(result)
		if err != nil {
			return err
		}
		fmt.Println(string(out))
	}

	if len(result.Conflicts) > 0 {
		fmt.Fprintf(os.Stderr, "%d version conflict(s) detected\n", len(result.Conflicts))
	}
	if result.Truncated {
		fmt.Fprintln(os.Stderr, "tree truncated at the depth or time bound")
	}
	return nil
}

func runLatest(configPath, ecosystem string, names []string, jsonOutput bool) error {
	svc, _ := oneShot(configPath)
	queries := make([]resolver.LibraryQuery, len(names))
	for i, name := range names {
		queries[i] = resolver.LibraryQuery{Ecosystem: ecosystem, Name: name}
	}

	resp, err := svc.ProcessBatch(context.Background(), service.OpLatest, queries)
	if err != nil {
		return err
	}

	if jsonOutput {
		data, _ := json.MarshalIndent(resp, "", "  ")
		fmt.Println(string(data))
		return nil
	}
	for _, item := range resp.Items {
		if item.Status != "ok" {
			fmt.Printf("%-30s error: %s\n", item.Name, item.Error)
			continue
		}
		fmt.Printf("%-30s %s\n", item.Name, item.Latest)
	}
	if resp.Summary.Failed > 0 {
		return fmt.Errorf("%d of %d lookups failed", resp.Summary.Failed, resp.Summary.Total)
	}
	return nil
}

func runExists(configPath, ecosystem, name, ver string) error {
	svc, _ := oneShot(configPath)
	ok, err := svc.Exists(context.Background(), ecosystem, name, ver)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Printf("%s %s is not published\n", name, ver)
		os.Exit(1)
	}
	fmt.Printf("%s %s exists\n", name, ver)
	return nil
}

func runDocs(configPath, ecosystem, name, ver string) error {
	svc, _ := oneShot(configPath)
	u, err := svc.DocURL(context.Background(), ecosystem, name, ver)
	if err != nil {
		return err
	}
	fmt.Println(u)
	return nil
}
