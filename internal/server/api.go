package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/librarymaster/librarymaster/internal/liberr"
	"github.com/librarymaster/librarymaster/internal/resolver"
	"github.com/librarymaster/librarymaster/internal/service"
)

// APIServer serves the JSON API and the metrics endpoint.
type APIServer struct {
	svc    *service.Service
	logger *slog.Logger
	server *http.Server
}

// NewAPIServer creates the API server listening on addr.
func NewAPIServer(addr string, svc *service.Service, logger *slog.Logger) *APIServer {
	if logger == nil {
		logger = slog.Default()
	}
	s := &APIServer{svc: svc, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/resolve", s.handleResolve)
	mux.HandleFunc("GET /api/latest", s.handleLatest)
	mux.HandleFunc("GET /api/exists", s.handleExists)
	mux.HandleFunc("GET /api/docs", s.handleDocs)
	mux.HandleFunc("POST /api/batch", s.handleBatch)
	mux.HandleFunc("GET /api/ecosystems", s.handleEcosystems)
	mux.Handle("GET /metrics", svc.Metrics().Registry.Handler())

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.loggingMiddleware(mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start serves until Stop; ErrServerClosed is not reported as a failure.
func (s *APIServer) Start() error {
	s.logger.Info("starting API server", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Stop drains in-flight requests and shuts the server down.
func (s *APIServer) Stop(ctx context.Context) error {
	s.logger.Info("stopping API server")
	return s.server.Shutdown(ctx)
}

// Handler exposes the routed handler for tests.
func (s *APIServer) Handler() http.Handler { return s.server.Handler }

func (s *APIServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request handled",
			"method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

type resolveRequest struct {
	Ecosystem string `json:"ecosystem"`
	Name      string `json:"name"`
	Version   string `json:"version,omitempty"`
	Depth     *int   `json:"depth,omitempty"`
	Format    string `json:"format,omitempty"` // "json" (default) or "dot"
}

func (s *APIServer) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Ecosystem == "" || req.Name == "" {
		http.Error(w, "ecosystem and name are required", http.StatusBadRequest)
		return
	}
	depth := -1 // resolver default
	if req.Depth != nil {
		depth = *req.Depth
	}

	result, err := s.svc.Resolve(r.Context(), resolver.LibraryQuery{
		Ecosystem: req.Ecosystem,
		Name:      req.Name,
		Version:   req.Version,
		Depth:     depth,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	if req.Format == "dot" {
		w.Header().Set("Content-Type", "text/vnd.graphviz")
		w.Write([]byte(resolver.ExportDOT(result)))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *APIServer) handleLatest(w http.ResponseWriter, r *http.Request) {
	ecosystem, name := r.URL.Query().Get("ecosystem"), r.URL.Query().Get("name")
	if ecosystem == "" || name == "" {
		http.Error(w, "ecosystem and name are required", http.StatusBadRequest)
		return
	}
	v, err := s.svc.GetLatest(r.Context(), ecosystem, name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"ecosystem": ecosystem, "name": name, "latest": v,
	})
}

func (s *APIServer) handleExists(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ecosystem, name, version := q.Get("ecosystem"), q.Get("name"), q.Get("version")
	if ecosystem == "" || name == "" || version == "" {
		http.Error(w, "ecosystem, name and version are required", http.StatusBadRequest)
		return
	}
	ok, err := s.svc.Exists(r.Context(), ecosystem, name, version)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ecosystem": ecosystem, "name": name, "version": version, "exists": ok,
	})
}

func (s *APIServer) handleDocs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ecosystem, name := q.Get("ecosystem"), q.Get("name")
	if ecosystem == "" || name == "" {
		http.Error(w, "ecosystem and name are required", http.StatusBadRequest)
		return
	}
	u, err := s.svc.DocURL(r.Context(), ecosystem, name, q.Get("version"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"ecosystem": ecosystem, "name": name, "doc_url": u,
	})
}

type batchRequest struct {
	Operation string                  `json:"operation"`
	Libraries []resolver.LibraryQuery `json:"libraries"`
}

func (s *APIServer) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if len(req.Libraries) == 0 {
		http.Error(w, "libraries must not be empty", http.StatusBadRequest)
		return
	}
	resp, err := s.svc.ProcessBatch(r.Context(), service.BatchOperation(req.Operation), req.Libraries)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *APIServer) handleEcosystems(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"ecosystems": s.svc.Ecosystems()})
}

// writeError maps the error taxonomy onto HTTP status codes.
func (s *APIServer) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, liberr.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, liberr.ErrUnsupportedEcosystem):
		status = http.StatusBadRequest
	case errors.Is(err, liberr.ErrUpstreamUnavailable):
		status = http.StatusBadGateway
	}
	writeJSON(w, status, map[string]string{
		"error": err.Error(), "status": strconv.Itoa(status),
	})
}
