package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ectop-dev/ectop/pkg/session"
	"github.com/ectop-dev/ectop/pkg/trigger"
)

// Handlers binds the MCP tools to one session.
type Handlers struct {
	sess *session.Session
}

// HandleStatus implements the ectop/status MCP tool.
func (h *Handlers) HandleStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st := h.sess.Sync().Status()
	c := h.sess.Cache()
	response := map[string]any{
		"server":      c.ServerStatus(),
		"version":     c.ServerVersion(),
		"degraded":    st.Degraded,
		"cachedNodes": c.Len(),
	}
	if !st.LastSync.IsZero() {
		response["lastSync"] = st.LastSync.Format("2006-01-02T15:04:05Z07:00")
	}
	if st.LastError != "" {
		response["lastError"] = st.LastError
	}
	return jsonResult(response)
}

// HandleNode implements the ectop/node MCP tool.
func (h *Handlers) HandleNode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	path, _ := args["path"].(string)
	if path == "" {
		return errorResult("path argument is required"), nil
	}

	n, ok := h.sess.Cache().Get(path)
	if !ok {
		return errorResult(fmt.Sprintf("node %s not in cache", path)), nil
	}
	vars, err := h.sess.Variables(path)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	varList := make([]map[string]any, 0, len(vars))
	for _, v := range vars {
		entry := map[string]any{"name": v.Name, "value": v.Value}
		if v.Inherited {
			entry["inheritedFrom"] = "/" + v.Origin
		}
		if v.Generated {
			entry["generated"] = true
		}
		varList = append(varList, entry)
	}
	response := map[string]any{
		"path":      "/" + n.Path,
		"kind":      string(n.Kind),
		"state":     string(n.State),
		"variables": varList,
	}
	if n.Trigger != "" {
		response["trigger"] = n.Trigger
	}
	if n.Reason != "" {
		response["reason"] = n.Reason
	}
	return jsonResult(response)
}

// HandleChildren implements the ectop/children MCP tool.
func (h *Handlers) HandleChildren(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	path, _ := args["path"].(string)

	var lines []string
	if strings.Trim(path, "/") == "" {
		for _, n := range h.sess.Cache().Roots() {
			lines = append(lines, fmt.Sprintf("%s\t%s\t/%s", n.Kind, n.State, n.Path))
		}
	} else {
		children, populated := h.sess.Cache().ChildrenOf(path)
		if !populated {
			return errorResult(fmt.Sprintf("children of %s not fetched yet", path)), nil
		}
		for _, n := range children {
			lines = append(lines, fmt.Sprintf("%s\t%s\t/%s", n.Kind, n.State, n.Path))
		}
	}
	if len(lines) == 0 {
		return textResult("(no children)"), nil
	}
	return textResult(strings.Join(lines, "\n")), nil
}

// HandleSearch implements the ectop/search MCP tool.
func (h *Handlers) HandleSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	query, _ := args["query"].(string)
	if query == "" {
		return errorResult("query argument is required"), nil
	}

	cur := h.sess.Search().Search(query)
	response := map[string]any{
		"query":   query,
		"matches": cur.Matches,
		"partial": cur.Partial,
	}
	return jsonResult(response)
}

// HandleWhy implements the ectop/why MCP tool.
func (h *Handlers) HandleWhy(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	path, _ := args["path"].(string)
	if path == "" {
		return errorResult("path argument is required"), nil
	}

	ex, err := h.sess.Explain(path)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	response := map[string]any{
		"path":    "/" + ex.Path,
		"state":   string(ex.State),
		"blocked": ex.Blocked(),
	}
	if ex.Reason != "" {
		response["reason"] = ex.Reason
	}
	if ex.Trigger != "" {
		response["trigger"] = ex.Trigger
	}
	if ex.ParseErr != nil {
		response["triggerError"] = ex.ParseErr.Error()
	}
	if ex.Result != nil {
		response["clauses"] = clauseTree(ex.Result)
	}
	if len(ex.InLimits) > 0 {
		limits := make([]map[string]any, 0, len(ex.InLimits))
		for _, l := range ex.InLimits {
			limits = append(limits, map[string]any{
				"name": l.Name, "consumed": l.Consumed, "max": l.Max, "known": l.Known,
			})
		}
		response["limits"] = limits
	}
	if len(ex.Times) > 0 {
		response["times"] = ex.Times
	}
	return jsonResult(response)
}

// clauseTree flattens an evaluated trigger into nested JSON objects.
func clauseTree(r *trigger.Result) map[string]any {
	node := map[string]any{
		"text":   r.Text,
		"status": string(r.Status),
	}
	if r.Detail != "" {
		node["detail"] = r.Detail
	}
	if r.Target != "" {
		node["target"] = "/" + r.Target
	}
	if len(r.Children) > 0 {
		children := make([]map[string]any, 0, len(r.Children))
		for _, c := range r.Children {
			children = append(children, clauseTree(c))
		}
		node["children"] = children
	}
	return node
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult(fmt.Sprintf("marshal response: %v", err)), nil
	}
	return textResult(string(data)), nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(msg),
		},
		IsError: true,
	}
}
