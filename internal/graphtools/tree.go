package graphtools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/opal-se/opal/internal/hierarchy"
)

// GetHierarchyTreeTool handles the getHierarchyTree MCP tool.
type GetHierarchyTreeTool struct {
	svc *hierarchy.Service
}

// NewGetHierarchyTreeTool creates a GetHierarchyTreeTool.
func NewGetHierarchyTreeTool(svc *hierarchy.Service) *GetHierarchyTreeTool {
	return &GetHierarchyTreeTool{svc: svc}
}

// Definition returns the MCP tool definition for getHierarchyTree.
func (t *GetHierarchyTreeTool) Definition() mcp.Tool {
	return mcp.NewTool("getHierarchyTree",
		mcp.WithDescription(
			"Build the containment tree under a hierarchy node in WBS order, with work-package "+
				"and gate statistics aggregated up every level.",
		),
		mcp.WithString("node_id",
			mcp.Required(),
			mcp.Description("Root of the tree (typically a mission or project)"),
		),
		mcp.WithNumber("max_depth",
			mcp.Description("Levels to descend (default: 5)"),
		),
	)
}

// Handle processes the getHierarchyTree tool call.
func (t *GetHierarchyTreeTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	nodeID := req.GetString("node_id", "")
	if nodeID == "" {
		return mcp.NewToolResultError("'node_id' is required"), nil
	}

	tree, err := t.svc.GetHierarchyTree(nodeID, intArg(req, "max_depth", 0))
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(tree), nil
}

// GetWorkPackageContextTool handles the getWorkPackageContext MCP tool.
type GetWorkPackageContextTool struct {
	svc *hierarchy.Service
}

// NewGetWorkPackageContextTool creates a GetWorkPackageContextTool.
func NewGetWorkPackageContextTool(svc *hierarchy.Service) *GetWorkPackageContextTool {
	return &GetWorkPackageContextTool{svc: svc}
}

// Definition returns the MCP tool definition for getWorkPackageContext.
func (t *GetWorkPackageContextTool) Definition() mcp.Tool {
	return mcp.NewTool("getWorkPackageContext",
		mcp.WithDescription(
			"Resolve the hierarchy chain above a work package: its phase, project, program and "+
				"mission. Levels absent from a partially built hierarchy are reported in "+
				"missing_levels instead of failing.",
		),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("Work package to resolve"),
		),
	)
}

// Handle processes the getWorkPackageContext tool call.
func (t *GetWorkPackageContextTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID := req.GetString("task_id", "")
	if taskID == "" {
		return mcp.NewToolResultError("'task_id' is required"), nil
	}

	wpCtx, err := t.svc.GetWorkPackageContext(taskID)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(wpCtx), nil
}
