package graphtools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/opal-se/opal/internal/traversal"
)

// GetSystemSliceTool handles the getSystemSlice MCP tool.
type GetSystemSliceTool struct {
	engine *traversal.Engine
}

// NewGetSystemSliceTool creates a GetSystemSliceTool with the given engine.
func NewGetSystemSliceTool(engine *traversal.Engine) *GetSystemSliceTool {
	return &GetSystemSliceTool{engine: engine}
}

// Definition returns the MCP tool definition for getSystemSlice.
func (t *GetSystemSliceTool) Definition() mcp.Tool {
	return mcp.NewTool("getSystemSlice",
		mcp.WithDescription(
			"Extract the bounded neighborhood around one or more nodes: everything reachable "+
				"within the given radius in either direction, optionally restricted to certain "+
				"relation types. Cycle-safe and capped by a node budget.",
		),
		mcp.WithArray("root_ids",
			mcp.Required(),
			mcp.Description("Node ids to slice around"),
		),
		mcp.WithNumber("depth",
			mcp.Description("Hop radius (default: 1, max: 5)"),
		),
		mcp.WithArray("relation_types",
			mcp.Description("Relation types to follow (default: all)"),
		),
	)
}

// Handle processes the getSystemSlice tool call.
func (t *GetSystemSliceTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rootIDs := strSliceArg(req, "root_ids")
	if len(rootIDs) == 0 {
		return mcp.NewToolResultError("'root_ids' is required"), nil
	}

	slice, err := t.engine.GetSystemSlice(rootIDs, intArg(req, "depth", 0), strSliceArg(req, "relation_types"))
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(slice), nil
}

// TraceDownstreamImpactTool handles the traceDownstreamImpact MCP tool.
type TraceDownstreamImpactTool struct {
	engine *traversal.Engine
}

// NewTraceDownstreamImpactTool creates a TraceDownstreamImpactTool.
func NewTraceDownstreamImpactTool(engine *traversal.Engine) *TraceDownstreamImpactTool {
	return &TraceDownstreamImpactTool{engine: engine}
}

// Definition returns the MCP tool definition for traceDownstreamImpact.
func (t *TraceDownstreamImpactTool) Definition() mcp.Tool {
	return mcp.NewTool("traceDownstreamImpact",
		mcp.WithDescription(
			"Trace what a change to a node could affect, following depends_on, blocks and "+
				"TRACES_TO relations forward. Returns impacted nodes with their hop depth.",
		),
		mcp.WithString("node_id",
			mcp.Required(),
			mcp.Description("Node the change originates at"),
		),
		mcp.WithNumber("depth",
			mcp.Description("How many hops to trace (default: 2, max: 5)"),
		),
	)
}

// Handle processes the traceDownstreamImpact tool call.
func (t *TraceDownstreamImpactTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	nodeID := req.GetString("node_id", "")
	if nodeID == "" {
		return mcp.NewToolResultError("'node_id' is required"), nil
	}

	result, err := t.engine.TraceDownstreamImpact(nodeID, intArg(req, "depth", 0))
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(result), nil
}

// TraceUpstreamRationaleTool handles the traceUpstreamRationale MCP tool.
type TraceUpstreamRationaleTool struct {
	engine *traversal.Engine
}

// NewTraceUpstreamRationaleTool creates a TraceUpstreamRationaleTool.
func NewTraceUpstreamRationaleTool(engine *traversal.Engine) *TraceUpstreamRationaleTool {
	return &TraceUpstreamRationaleTool{engine: engine}
}

// Definition returns the MCP tool definition for traceUpstreamRationale.
func (t *TraceUpstreamRationaleTool) Definition() mcp.Tool {
	return mcp.NewTool("traceUpstreamRationale",
		mcp.WithDescription(
			"Trace why a node exists, following depends_on, blocks and TRACES_TO relations "+
				"in reverse to the requirements and decisions that justify it.",
		),
		mcp.WithString("node_id",
			mcp.Required(),
			mcp.Description("Node to explain"),
		),
		mcp.WithNumber("depth",
			mcp.Description("How many hops to trace (default: 2, max: 5)"),
		),
	)
}

// Handle processes the traceUpstreamRationale tool call.
func (t *TraceUpstreamRationaleTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	nodeID := req.GetString("node_id", "")
	if nodeID == "" {
		return mcp.NewToolResultError("'node_id' is required"), nil
	}

	result, err := t.engine.TraceUpstreamRationale(nodeID, intArg(req, "depth", 0))
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(result), nil
}
