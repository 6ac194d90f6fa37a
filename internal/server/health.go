// Package server provides the HTTP surfaces: the JSON API, health
// endpoints, and graceful shutdown plumbing.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/librarymaster/librarymaster/internal/resilience"
)

// HealthStatus is the health state of a component.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
	HealthStatusDegraded  HealthStatus = "degraded"
)

// HealthCheck is the result of one component probe.
type HealthCheck struct {
	Name    string       `json:"name"`
	Status  HealthStatus `json:"status"`
	Message string       `json:"message,omitempty"`
}

// HealthResponse is returned by the health endpoints.
type HealthResponse struct {
	Status    HealthStatus  `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	Version   string        `json:"version,omitempty"`
	Checks    []HealthCheck `json:"checks,omitempty"`
}

// HealthChecker probes one component.
type HealthChecker func(ctx context.Context) HealthCheck

// HealthServer serves liveness/readiness probes and an aggregated health
// report.
type HealthServer struct {
	mu       sync.RWMutex
	checks   map[string]HealthChecker
	version  string
	ready    bool
	shutdown chan struct{}
}

// NewHealthServer creates a health server; it reports not-ready until
// SetReady(true).
func NewHealthServer(version string) *HealthServer {
	return &HealthServer{
		checks:   make(map[string]HealthChecker),
		version:  version,
		shutdown: make(chan struct{}),
	}
}

// RegisterCheck adds a component probe to /healthz.
func (s *HealthServer) RegisterCheck(name string, checker HealthChecker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks[name] = checker
}

// SetReady flips the readiness probe.
func (s *HealthServer) SetReady(ready bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = ready
}

// Handler returns the health endpoints.
func (s *HealthServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.HandleFunc("/livez", s.handleLive)
	return mux
}

// ListenAndServe runs the health server until Shutdown.
func (s *HealthServer) ListenAndServe(addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	go func() {
		<-s.shutdown
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}()
	return srv.ListenAndServe()
}

// Shutdown stops the health server.
func (s *HealthServer) Shutdown() {
	close(s.shutdown)
}

func (s *HealthServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	s.mu.RLock()
	checks := make(map[string]HealthChecker, len(s.checks))
	for name, checker := range s.checks {
		checks[name] = checker
	}
	version := s.version
	s.mu.RUnlock()

	response := HealthResponse{
		Status:    HealthStatusHealthy,
		Timestamp: time.Now().UTC(),
		Version:   version,
		Checks:    make([]HealthCheck, 0, len(checks)),
	}
	for name, checker := range checks {
		check := checker(ctx)
		check.Name = name
		response.Checks = append(response.Checks, check)
		switch {
		case check.Status == HealthStatusUnhealthy:
			response.Status = HealthStatusUnhealthy
		case check.Status == HealthStatusDegraded && response.Status == HealthStatusHealthy:
			response.Status = HealthStatusDegraded
		}
	}

	status := http.StatusOK
	if response.Status == HealthStatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, response)
}

func (s *HealthServer) handleReady(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	ready := s.ready
	s.mu.RUnlock()

	response := HealthResponse{Status: HealthStatusHealthy, Timestamp: time.Now().UTC()}
	if !ready {
		response.Status = HealthStatusUnhealthy
		writeJSON(w, http.StatusServiceUnavailable, response)
		return
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *HealthServer) handleLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: HealthStatusHealthy, Timestamp: time.Now().UTC()})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// RemoteCacheHealthChecker probes the shared cache tier. An unreachable
// remote degrades the service (local-only caching) rather than failing it.
func RemoteCacheHealthChecker(ping func(ctx context.Context) error) HealthChecker {
	return func(ctx context.Context) HealthCheck {
		if ping == nil {
			return HealthCheck{Status: HealthStatusDegraded, Message: "remote cache not configured, local tier only"}
		}
		if err := ping(ctx); err != nil {
			return HealthCheck{Status: HealthStatusDegraded, Message: "remote cache unreachable: " + err.Error()}
		}
		return HealthCheck{Status: HealthStatusHealthy, Message: "remote cache OK"}
	}
}

// BreakerHealthChecker reports degraded when any registry circuit is not
// closed.
func BreakerHealthChecker(breakers *resilience.BreakerSet) HealthChecker {
	return func(context.Context) HealthCheck {
		open := 0
		states := breakers.States()
		for _, state := range states {
			if state != resilience.StateClosed {
				open++
			}
		}
		if open > 0 {
			return HealthCheck{
				Status:  HealthStatusDegraded,
				Message: fmt.Sprintf("%d of %d circuits not closed", open, len(states)),
			}
		}
		return HealthCheck{Status: HealthStatusHealthy, Message: "all circuits closed"}
	}
}
