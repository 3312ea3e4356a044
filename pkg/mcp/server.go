// Package mcp exposes a connected ectop session to AI agents over the
// Model Context Protocol. Every tool is read-only: agents can inspect
// the tree and explain blocked nodes, but control verbs stay with the
// human frontends.
package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ectop-dev/ectop/pkg/session"
)

// NewServer creates an MCP server with the ectop tools registered over
// the given session.
func NewServer(sess *session.Session, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"ectop",
		version,
		server.WithToolCapabilities(true),
	)
	h := &Handlers{sess: sess}

	s.AddTool(
		mcp.NewTool("ectop/status",
			mcp.WithDescription("Report server status, connection health, and cache size"),
		),
		h.HandleStatus,
	)

	s.AddTool(
		mcp.NewTool("ectop/node",
			mcp.WithDescription("Show one node's attributes, variables, and trigger"),
			mcp.WithString("path", mcp.Required(), mcp.Description("Node path, e.g. /suite/family/task")),
		),
		h.HandleNode,
	)

	s.AddTool(
		mcp.NewTool("ectop/children",
			mcp.WithDescription("List a node's children with their states"),
			mcp.WithString("path", mcp.Description("Parent node path; omit for the suites")),
		),
		h.HandleChildren,
	)

	s.AddTool(
		mcp.NewTool("ectop/search",
			mcp.WithDescription("Search cached node names for a substring"),
			mcp.WithString("query", mcp.Required(), mcp.Description("Case-insensitive substring matched per path segment")),
		),
		h.HandleSearch,
	)

	s.AddTool(
		mcp.NewTool("ectop/why",
			mcp.WithDescription("Explain why a node has not run: trigger clauses, limits, time windows"),
			mcp.WithString("path", mcp.Required(), mcp.Description("Node path to explain")),
		),
		h.HandleWhy,
	)

	return s
}
