package graphtools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/opal-se/opal/internal/graph"
	"github.com/opal-se/opal/internal/hierarchy"
)

// LevelListTool handles the listMissions/listPrograms/listProjects/
// listPhases/listWorkPackages MCP tools. All five share a schema: a
// project id plus an optional parent to scope to.
type LevelListTool struct {
	svc        *hierarchy.Service
	toolName   string
	level      string
	parentDesc string
	list       func(svc *hierarchy.Service, projectID, parentID string) ([]graph.Node, error)
}

// NewListMissionsTool creates the listMissions tool.
func NewListMissionsTool(svc *hierarchy.Service) *LevelListTool {
	return &LevelListTool{
		svc:      svc,
		toolName: "listMissions",
		level:    "missions",
		list: func(svc *hierarchy.Service, projectID, _ string) ([]graph.Node, error) {
			return svc.ListMissions(projectID)
		},
	}
}

// NewListProgramsTool creates the listPrograms tool.
func NewListProgramsTool(svc *hierarchy.Service) *LevelListTool {
	return &LevelListTool{
		svc:        svc,
		toolName:   "listPrograms",
		level:      "programs",
		parentDesc: "Restrict to one mission's programs",
		list:       (*hierarchy.Service).ListPrograms,
	}
}

// NewListProjectsTool creates the listProjects tool.
func NewListProjectsTool(svc *hierarchy.Service) *LevelListTool {
	return &LevelListTool{
		svc:        svc,
		toolName:   "listProjects",
		level:      "projects",
		parentDesc: "Restrict to one program's projects",
		list:       (*hierarchy.Service).ListProjects,
	}
}

// NewListPhasesTool creates the listPhases tool.
func NewListPhasesTool(svc *hierarchy.Service) *LevelListTool {
	return &LevelListTool{
		svc:        svc,
		toolName:   "listPhases",
		level:      "phases",
		parentDesc: "Restrict to one project node's phases",
		list:       (*hierarchy.Service).ListPhases,
	}
}

// NewListWorkPackagesTool creates the listWorkPackages tool.
func NewListWorkPackagesTool(svc *hierarchy.Service) *LevelListTool {
	return &LevelListTool{
		svc:        svc,
		toolName:   "listWorkPackages",
		level:      "work packages",
		parentDesc: "Restrict to one phase's work packages",
		list:       (*hierarchy.Service).ListWorkPackages,
	}
}

// Definition returns the MCP tool definition for the level's list tool.
func (t *LevelListTool) Definition() mcp.Tool {
	opts := []mcp.ToolOption{
		mcp.WithDescription(fmt.Sprintf(
			"List the project's live %s in WBS order. Soft-deleted nodes never appear.", t.level,
		)),
		mcp.WithString("project_id",
			mcp.Description("Project to list (required unless parent_id is given)"),
		),
	}
	if t.parentDesc != "" {
		opts = append(opts, mcp.WithString("parent_id", mcp.Description(t.parentDesc)))
	}
	return mcp.NewTool(t.toolName, opts...)
}

// Handle processes the level's list tool call.
func (t *LevelListTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID := req.GetString("project_id", "")
	parentID := req.GetString("parent_id", "")
	if projectID == "" && parentID == "" {
		return mcp.NewToolResultError("'project_id' is required"), nil
	}

	nodes, err := t.list(t.svc, projectID, parentID)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(map[string]any{
		"nodes": nodes,
		"total": len(nodes),
	}), nil
}
