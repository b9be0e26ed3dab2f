package graphtools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/opal-se/opal/internal/graph"
)

// CreateEdgeTool handles the createEdge MCP tool.
type CreateEdgeTool struct {
	store *graph.Store
}

// NewCreateEdgeTool creates a CreateEdgeTool with the given store.
func NewCreateEdgeTool(store *graph.Store) *CreateEdgeTool {
	return &CreateEdgeTool{store: store}
}

// Definition returns the MCP tool definition for createEdge.
func (t *CreateEdgeTool) Definition() mcp.Tool {
	return mcp.NewTool("createEdge",
		mcp.WithDescription(
			"Create a typed relationship between two nodes of the same project. Self-loops "+
				"are rejected, and 'contains' edges must keep containment a forest (one parent "+
				"per node, no cycles). The link is recorded in the audit event log.",
		),
		mcp.WithString("from_node_id",
			mcp.Required(),
			mcp.Description("Source node"),
		),
		mcp.WithString("to_node_id",
			mcp.Required(),
			mcp.Description("Target node"),
		),
		mcp.WithString("relation_type",
			mcp.Required(),
			mcp.Description("Relation type (e.g. contains, depends_on, blocks, VERIFIED_BY, TRACES_TO, ALLOCATED_TO)"),
		),
		mcp.WithNumber("weight",
			mcp.Description("Relationship strength (default: 1.0)"),
		),
		mcp.WithString("directionality",
			mcp.Description("'directed' (default) or 'bidirectional'"),
		),
		mcp.WithObject("provenance",
			mcp.Description("Data origin: {source, source_ref, as_of, confidence}"),
		),
		mcp.WithString("source_system",
			mcp.Description("System attribution for the audit event"),
		),
	)
}

// Handle processes the createEdge tool call.
func (t *CreateEdgeTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	params := graph.CreateEdgeParams{
		FromNodeID:     req.GetString("from_node_id", ""),
		ToNodeID:       req.GetString("to_node_id", ""),
		RelationType:   req.GetString("relation_type", ""),
		Weight:         floatArg(req, "weight", 0),
		Directionality: req.GetString("directionality", ""),
		SourceSystem:   req.GetString("source_system", ""),
	}
	if params.FromNodeID == "" {
		return mcp.NewToolResultError("'from_node_id' is required"), nil
	}
	if params.ToNodeID == "" {
		return mcp.NewToolResultError("'to_node_id' is required"), nil
	}
	if params.RelationType == "" {
		return mcp.NewToolResultError("'relation_type' is required"), nil
	}
	if err := decodeArg(req, "provenance", &params.Provenance); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	edge, err := t.store.CreateEdge(params)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(edge), nil
}
