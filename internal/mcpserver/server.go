// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the upstream web search as a tool via stdio transport.
package mcpserver

import (
	"context"
	"fmt"
	"net/url"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/searchgate/internal/search"
)

// Searcher is the slice of search.Client the tools need.
type Searcher interface {
	Query(ctx context.Context, terms string, extra url.Values) (*search.Result, error)
}

// Server wraps the MCP server with search tools.
type Server struct {
	mcp    *server.MCPServer
	search Searcher
}

// New creates a new MCP server with the web_search tool registered.
func New(s Searcher) *Server {
	srv := &Server{search: s}

	srv.mcp = server.NewMCPServer(
		"searchgate",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	srv.mcp.AddTool(mcp.NewTool("web_search",
		mcp.WithDescription("Search the web through the configured search API. "+
			"Returns the raw upstream response body."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search terms")),
		mcp.WithObject("params", mcp.Description("Extra upstream query parameters, e.g. {\"count\": \"10\"}")),
	), srv.webSearch)

	return srv
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

func (s *Server) webSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if query == "" {
		return mcp.NewToolResultError("query must not be empty"), nil
	}

	extra := url.Values{}
	if raw, ok := req.GetArguments()["params"].(map[string]any); ok {
		for k, v := range raw {
			extra.Set(k, fmt.Sprint(v))
		}
	}

	res, err := s.search.Query(ctx, query, extra)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if res.Status >= 400 {
		return mcp.NewToolResultError(fmt.Sprintf("upstream returned %d: %s", res.Status, res.Body)), nil
	}
	return mcp.NewToolResultText(string(res.Body)), nil
}
