package graphtools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/opal-se/opal/internal/graph"
)

// GetHistoryTool handles the getHistory MCP tool.
type GetHistoryTool struct {
	store *graph.Store
}

// NewGetHistoryTool creates a GetHistoryTool with the given store.
func NewGetHistoryTool(store *graph.Store) *GetHistoryTool {
	return &GetHistoryTool{store: store}
}

// Definition returns the MCP tool definition for getHistory.
func (t *GetHistoryTool) Definition() mcp.Tool {
	return mcp.NewTool("getHistory",
		mcp.WithDescription(
			"Return the audit events for one or more entities, newest first, plus a flattened "+
				"human-readable timeline. Every mutation in the graph appears here, including "+
				"soft deletes.",
		),
		mcp.WithArray("entity_ids",
			mcp.Required(),
			mcp.Description("Node or edge ids to fetch history for"),
		),
		mcp.WithString("since",
			mcp.Description("Only events at or after this RFC3339 timestamp"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum events to return (default: 100)"),
		),
	)
}

// Handle processes the getHistory tool call.
func (t *GetHistoryTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	entityIDs := strSliceArg(req, "entity_ids")
	if len(entityIDs) == 0 {
		return mcp.NewToolResultError("'entity_ids' is required"), nil
	}

	history, err := t.store.GetHistory(entityIDs, req.GetString("since", ""), intArg(req, "limit", 0))
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(history), nil
}

// FindSimilarPastChangesTool handles the findSimilarPastChanges MCP tool.
type FindSimilarPastChangesTool struct {
	store *graph.Store
}

// NewFindSimilarPastChangesTool creates a FindSimilarPastChangesTool.
func NewFindSimilarPastChangesTool(store *graph.Store) *FindSimilarPastChangesTool {
	return &FindSimilarPastChangesTool{store: store}
}

// Definition returns the MCP tool definition for findSimilarPastChanges.
func (t *FindSimilarPastChangesTool) Definition() mcp.Tool {
	return mcp.NewTool("findSimilarPastChanges",
		mcp.WithDescription(
			"Find past change sets resembling a prospective change, scored by overlap of node "+
				"types, subsystems and event types. Use this before a risky change to see how "+
				"similar changes played out.",
		),
		mcp.WithString("project_id",
			mcp.Required(),
			mcp.Description("Project whose history to search"),
		),
		mcp.WithArray("node_types",
			mcp.Description("Node types the prospective change touches"),
		),
		mcp.WithArray("subsystems",
			mcp.Description("Subsystems the prospective change touches"),
		),
		mcp.WithArray("event_types",
			mcp.Description("Event types the prospective change would produce"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum matches to return (default: 5)"),
		),
	)
}

// Handle processes the findSimilarPastChanges tool call.
func (t *FindSimilarPastChangesTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID := req.GetString("project_id", "")
	if projectID == "" {
		return mcp.NewToolResultError("'project_id' is required"), nil
	}

	matches, err := t.store.FindSimilarPastChanges(projectID, graph.ChangeSignature{
		NodeTypes:  strSliceArg(req, "node_types"),
		Subsystems: strSliceArg(req, "subsystems"),
		EventTypes: strSliceArg(req, "event_types"),
	}, intArg(req, "limit", 0))
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(map[string]any{
		"matches": matches,
		"total":   len(matches),
	}), nil
}
