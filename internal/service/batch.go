package service

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/librarymaster/librarymaster/internal/registry"
	"github.com/librarymaster/librarymaster/internal/resolver"
)

// BatchOperation selects what ProcessBatch does per library.
type BatchOperation string

const (
	OpLatest       BatchOperation = "latest"
	OpExists       BatchOperation = "exists"
	OpDocs         BatchOperation = "docs"
	OpDependencies BatchOperation = "deps"
)

// BatchItem is the per-library outcome of a batch request. Exactly one of
// the result fields is populated, matching the operation.
type BatchItem struct {
	Ecosystem string `json:"ecosystem"`
	Name      string `json:"name"`
	Version   string `json:"version,omitempty"`
	Status    string `json:"status"` // "ok" or "error"

	Latest       string                  `json:"latest,omitempty"`
	Exists       *bool                   `json:"exists,omitempty"`
	DocURL       string                  `json:"doc_url,omitempty"`
	Dependencies *registry.DependencySet `json:"dependencies,omitempty"`
	Error        string                  `json:"error,omitempty"`
}

type BatchSummary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

type BatchResponse struct {
	Operation BatchOperation `json:"operation"`
	Items     []BatchItem    `json:"items"`
	Summary   BatchSummary   `json:"summary"`
}

// ProcessBatch runs one operation against many libraries concurrently.
// Per-item failures are reported in place; the call itself fails only on
// an unknown operation.
func (s *Service) ProcessBatch(ctx context.Context, op BatchOperation, queries []resolver.LibraryQuery) (*BatchResponse, error) {
	switch op {
	case OpLatest, OpExists, OpDocs, OpDependencies:
	default:
		return nil, fmt.Errorf("unknown batch operation %q", op)
	}

	limit := s.cfg.Resolve.MaxConcurrency
	if limit <= 0 {
		limit = 10
	}
	items := make([]BatchItem, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, q := range queries {
		g.Go(func() error {
			item := BatchItem{Ecosystem: q.Ecosystem, Name: q.Name, Version: q.Version, Status: "ok"}
			var err error
			switch op {
			case OpLatest:
				item.Latest, err = s.GetLatest(gctx, q.Ecosystem, q.Name)
			case OpExists:
				var ok bool
				ok, err = s.Exists(gctx, q.Ecosystem, q.Name, q.Version)
				if err == nil {
					item.Exists = &ok
				}
			case OpDocs:
				item.DocURL, err = s.DocURL(gctx, q.Ecosystem, q.Name, q.Version)
			case OpDependencies:
				item.Dependencies, err = s.Dependencies(gctx, q.Ecosystem, q.Name, q.Version)
			}
			if err != nil {
				item.Status = "error"
				item.Error = err.Error()
			}
			items[i] = item
			return nil
		})
	}
	g.Wait()

	resp := &BatchResponse{Operation: op, Items: items}
	resp.Summary.Total = len(items)
	for _, item := range items {
		if item.Status == "ok" {
			resp.Summary.Succeeded++
		} else {
			resp.Summary.Failed++
		}
	}
	return resp, nil
}
