// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes completion and vault tools for LLM integration via
// stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/ansuz/internal/api"
	"github.com/starford/ansuz/internal/index"
)

// Server wraps the MCP server with completion tools.
type Server struct {
	mcp *server.MCPServer
	svc *api.Service
	db  *index.DB
}

// New creates a new MCP server with all tools registered.
func New(svc *api.Service, db *index.DB) *Server {
	s := &Server{svc: svc, db: db}

	s.mcp = server.NewMCPServer(
		"Ansuz",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("complete",
		mcp.WithDescription("Return completion candidates for a markdown line and cursor column. "+
			"Supports #tag, [[wikilink, and ](markdown-link contexts."),
		mcp.WithString("line", mcp.Required(), mcp.Description("The line of text being edited")),
		mcp.WithNumber("col", mcp.Description("Cursor column (byte offset); defaults to end of line")),
	), s.complete)

	s.mcp.AddTool(mcp.NewTool("search_tags",
		mcp.WithDescription("List vault tags ranked by frequency, optionally filtered by prefix."),
		mcp.WithString("prefix", mcp.Description("Optional tag prefix filter")),
	), s.searchTags)

	s.mcp.AddTool(mcp.NewTool("list_links",
		mcp.WithDescription("List markdown link targets seen in the vault, ranked by frequency."),
	), s.listLinks)

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Full-text search through note content and titles."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchNotes)

	s.mcp.AddTool(mcp.NewTool("get_backlinks",
		mcp.WithDescription("Find all notes that link to the specified target."),
		mcp.WithString("target", mcp.Required(), mcp.Description("Wikilink target (path stem) to find backlinks for")),
	), s.getBacklinks)

	s.mcp.AddTool(mcp.NewTool("refresh_cache",
		mcp.WithDescription("Invalidate cached extraction results and rebuild them from the vault."),
	), s.refreshCache)

	s.mcp.AddTool(mcp.NewTool("health_check",
		mcp.WithDescription("Report system health: circuit breaker, memory pressure, and performance score."),
	), s.healthCheck)

	s.mcp.AddTool(mcp.NewTool("benchmark",
		mcp.WithDescription("Run completion latency benchmark iterations and report timings."),
		mcp.WithNumber("iterations", mcp.Description("Number of iterations (default 10)")),
	), s.benchmark)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) complete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	line, err := req.RequireString("line")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	col := len(line)
	if n, err := req.RequireInt("col"); err == nil && n >= 0 && n <= len(line) {
		col = n
	}

	res, _ := s.svc.Completions(ctx, line, col)
	out, _ := json.MarshalIndent(res, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) searchTags(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	prefix := ""
	if p, err := req.RequireString("prefix"); err == nil {
		prefix = strings.TrimPrefix(p, "#")
	}

	entries, err := s.svc.Tags(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if prefix != "" {
		filtered := entries[:0:0]
		for _, e := range entries {
			if strings.HasPrefix(e.Tag, prefix) {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}
	out, _ := json.MarshalIndent(entries, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listLinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	links, err := s.svc.MarkdownLinks(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(links, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) searchNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(results, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getBacklinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	target, err := req.RequireString("target")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	bl, err := s.db.Backlinks(target)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(bl) == 0 {
		return mcp.NewToolResultText("no backlinks found"), nil
	}
	return mcp.NewToolResultText(strings.Join(bl, "\n")), nil
}

func (s *Server) refreshCache(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.svc.Refresh(ctx); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("cache refreshed"), nil
}

func (s *Server) healthCheck(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	out, _ := json.MarshalIndent(s.svc.Health(), "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) benchmark(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	iterations := 0
	if n, err := req.RequireInt("iterations"); err == nil {
		iterations = n
	}
	rep, err := s.svc.Bench(ctx, iterations)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("benchmark failed: %v", err)), nil
	}
	out, _ := json.MarshalIndent(rep, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}
