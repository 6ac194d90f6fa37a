package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/librarymaster/librarymaster/internal/resolver"
	"github.com/librarymaster/librarymaster/internal/service"
)

// MCPServer exposes the service as Model Context Protocol tools over
// stdio, mirroring the JSON API's operations.
type MCPServer struct {
	svc    *service.Service
	server *mcpserver.MCPServer
}

// NewMCPServer builds the MCP tool surface.
func NewMCPServer(svc *service.Service, version string) *MCPServer {
	s := &MCPServer{
		svc:    svc,
		server: mcpserver.NewMCPServer("librarymaster", version, mcpserver.WithToolCapabilities(false)),
	}

	s.server.AddTool(mcp.NewTool("find_latest_versions",
		mcp.WithDescription("Find the latest published version of one or more libraries in an ecosystem."),
		mcp.WithString("ecosystem", mcp.Required(),
			mcp.Description("Package ecosystem: python, node, rust, java or go.")),
		mcp.WithArray("names", mcp.Required(),
			mcp.Description("Library names to look up."),
			mcp.Items(map[string]any{"type": "string"})),
	), s.handleLatest)

	s.server.AddTool(mcp.NewTool("check_versions_exist",
		mcp.WithDescription("Check whether specific library versions are published."),
		mcp.WithString("ecosystem", mcp.Required(),
			mcp.Description("Package ecosystem: python, node, rust, java or go.")),
		mcp.WithArray("libraries", mcp.Required(),
			mcp.Description("Libraries to check, each with name and version."),
			mcp.Items(map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name":    map[string]any{"type": "string"},
					"version": map[string]any{"type": "string"},
				},
				"required": []string{"name", "version"},
			})),
	), s.handleExists)

	s.server.AddTool(mcp.NewTool("find_library_docs",
		mcp.WithDescription("Find the documentation URL for a library."),
		mcp.WithString("ecosystem", mcp.Required(),
			mcp.Description("Package ecosystem: python, node, rust, java or go.")),
		mcp.WithString("name", mcp.Required(), mcp.Description("Library name.")),
		mcp.WithString("version", mcp.Description("Optional exact version; latest when omitted.")),
	), s.handleDocs)

	s.server.AddTool(mcp.NewTool("find_library_dependencies",
		mcp.WithDescription("Resolve a library's dependency tree with conflict detection and version suggestions."),
		mcp.WithString("ecosystem", mcp.Required(),
			mcp.Description("Package ecosystem: python, node, rust, java or go.")),
		mcp.WithString("name", mcp.Required(), mcp.Description("Library name.")),
		mcp.WithString("version", mcp.Description("Optional version or range for the root.")),
		mcp.WithNumber("depth", mcp.Description("Transitive depth bound; service default when omitted.")),
	), s.handleResolve)

	return s
}

// ServeStdio blocks serving MCP requests on stdin/stdout.
func (s *MCPServer) ServeStdio() error {
	return mcpserver.ServeStdio(s.server)
}

func (s *MCPServer) handleLatest(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ecosystem, err := req.RequireString("ecosystem")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	names, err := stringSlice(req.GetArguments()["names"])
	if err != nil {
		return mcp.NewToolResultError("names: " + err.Error()), nil
	}

	queries := make([]resolver.LibraryQuery, len(names))
	for i, name := range names {
		queries[i] = resolver.LibraryQuery{Ecosystem: ecosystem, Name: name}
	}
	resp, err := s.svc.ProcessBatch(ctx, service.OpLatest, queries)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(resp)
}

func (s *MCPServer) handleExists(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ecosystem, err := req.RequireString("ecosystem")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var libs []struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	}
	if err := reparse(req.GetArguments()["libraries"], &libs); err != nil {
		return mcp.NewToolResultError("libraries: " + err.Error()), nil
	}

	queries := make([]resolver.LibraryQuery, len(libs))
	for i, lib := range libs {
		queries[i] = resolver.LibraryQuery{Ecosystem: ecosystem, Name: lib.Name, Version: lib.Version}
	}
	resp, err := s.svc.ProcessBatch(ctx, service.OpExists, queries)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(resp)
}

func (s *MCPServer) handleDocs(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ecosystem, err := req.RequireString("ecosystem")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	u, err := s.svc.DocURL(ctx, ecosystem, name, req.GetString("version", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]string{"ecosystem": ecosystem, "name": name, "doc_url": u})
}

func (s *MCPServer) handleResolve(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ecosystem, err := req.RequireString("ecosystem")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := s.svc.Resolve(ctx, resolver.LibraryQuery{
		Ecosystem: ecosystem,
		Name:      name,
		Version:   req.GetString("version", ""),
		Depth:     int(req.GetFloat("depth", -1)),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(result)
}

func stringSlice(v any) ([]string, error) {
	raw, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("expected an array of strings, got %T", v)
	}
	out := make([]string, len(raw))
	for i, item := range raw {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("element %d is %T, not a string", i, item)
		}
		out[i] = s
	}
	return out, nil
}

// reparse converts a decoded JSON value into a typed structure.
func reparse(v any, out any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(data)), nil
}
