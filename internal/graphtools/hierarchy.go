package graphtools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/opal-se/opal/internal/graph"
	"github.com/opal-se/opal/internal/hierarchy"
)

// LevelCreateTool handles the createMission/createProgram/createProject/
// createPhase MCP tools. The four levels share a schema; only the level
// name and service call differ.
type LevelCreateTool struct {
	svc        *hierarchy.Service
	toolName   string
	level      string
	parentDesc string
	needParent bool
	create     func(*hierarchy.Service, hierarchy.CreateParams) (*graph.Node, error)
}

// NewCreateMissionTool creates the createMission tool.
func NewCreateMissionTool(svc *hierarchy.Service) *LevelCreateTool {
	return &LevelCreateTool{
		svc:      svc,
		toolName: "createMission",
		level:    "mission",
		create:   (*hierarchy.Service).CreateMission,
	}
}

// NewCreateProgramTool creates the createProgram tool.
func NewCreateProgramTool(svc *hierarchy.Service) *LevelCreateTool {
	return &LevelCreateTool{
		svc:        svc,
		toolName:   "createProgram",
		level:      "program",
		parentDesc: "Mission this program belongs to",
		needParent: true,
		create:     (*hierarchy.Service).CreateProgram,
	}
}

// NewCreateProjectTool creates the createProject tool.
func NewCreateProjectTool(svc *hierarchy.Service) *LevelCreateTool {
	return &LevelCreateTool{
		svc:        svc,
		toolName:   "createProject",
		level:      "project",
		parentDesc: "Program this project belongs to",
		needParent: true,
		create:     (*hierarchy.Service).CreateProject,
	}
}

// NewCreatePhaseTool creates the createPhase tool.
func NewCreatePhaseTool(svc *hierarchy.Service) *LevelCreateTool {
	return &LevelCreateTool{
		svc:        svc,
		toolName:   "createPhase",
		level:      "phase",
		parentDesc: "Project this phase belongs to",
		needParent: true,
		create:     (*hierarchy.Service).CreatePhase,
	}
}

// Definition returns the MCP tool definition for the level's create tool.
func (t *LevelCreateTool) Definition() mcp.Tool {
	opts := []mcp.ToolOption{
		mcp.WithDescription(fmt.Sprintf(
			"Create a %s in the planning hierarchy. It receives the next free WBS number "+
				"under its parent; freed numbers are never reused.", t.level,
		)),
		mcp.WithString("title",
			mcp.Required(),
			mcp.Description(fmt.Sprintf("Title of the %s", t.level)),
		),
		mcp.WithString("description", mcp.Description("Longer free-text description")),
		mcp.WithString("owner", mcp.Description("Responsible person or team")),
		mcp.WithString("created_by", mcp.Description("Actor creating the node")),
	}
	if t.needParent {
		opts = append(opts, mcp.WithString("parent_id",
			mcp.Required(),
			mcp.Description(t.parentDesc),
		))
		opts = append(opts, mcp.WithString("project_id",
			mcp.Description("Project id (default: the parent's project)"),
		))
	} else {
		opts = append(opts, mcp.WithString("project_id",
			mcp.Required(),
			mcp.Description("Project the mission belongs to"),
		))
	}
	return mcp.NewTool(t.toolName, opts...)
}

// Handle processes the level's create tool call.
func (t *LevelCreateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	params := hierarchy.CreateParams{
		ProjectID:   req.GetString("project_id", ""),
		ParentID:    req.GetString("parent_id", ""),
		Title:       req.GetString("title", ""),
		Description: req.GetString("description", ""),
		Owner:       req.GetString("owner", ""),
		CreatedBy:   req.GetString("created_by", ""),
	}
	if params.Title == "" {
		return mcp.NewToolResultError("'title' is required"), nil
	}
	if t.needParent && params.ParentID == "" {
		return mcp.NewToolResultError("'parent_id' is required"), nil
	}
	if !t.needParent && params.ProjectID == "" {
		return mcp.NewToolResultError("'project_id' is required"), nil
	}

	node, err := t.create(t.svc, params)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(node), nil
}

// AddWorkPackageToPhaseTool handles the addWorkPackageToPhase MCP tool.
type AddWorkPackageToPhaseTool struct {
	svc *hierarchy.Service
}

// NewAddWorkPackageToPhaseTool creates an AddWorkPackageToPhaseTool.
func NewAddWorkPackageToPhaseTool(svc *hierarchy.Service) *AddWorkPackageToPhaseTool {
	return &AddWorkPackageToPhaseTool{svc: svc}
}

// Definition returns the MCP tool definition for addWorkPackageToPhase.
func (t *AddWorkPackageToPhaseTool) Definition() mcp.Tool {
	return mcp.NewTool("addWorkPackageToPhase",
		mcp.WithDescription(
			"Attach an existing task to a phase as a work package. The task gets a WBS "+
				"number under the phase and a containment edge; a task already contained "+
				"elsewhere is rejected.",
		),
		mcp.WithString("phase_id",
			mcp.Required(),
			mcp.Description("Phase to attach to"),
		),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("Task to attach"),
		),
	)
}

// Handle processes the addWorkPackageToPhase tool call.
func (t *AddWorkPackageToPhaseTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	phaseID := req.GetString("phase_id", "")
	taskID := req.GetString("task_id", "")
	if phaseID == "" {
		return mcp.NewToolResultError("'phase_id' is required"), nil
	}
	if taskID == "" {
		return mcp.NewToolResultError("'task_id' is required"), nil
	}

	task, err := t.svc.AddWorkPackageToPhase(phaseID, taskID)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(task), nil
}

// EnsureDefaultHierarchyTool handles the ensureDefaultHierarchy MCP tool.
type EnsureDefaultHierarchyTool struct {
	svc *hierarchy.Service
}

// NewEnsureDefaultHierarchyTool creates an EnsureDefaultHierarchyTool.
func NewEnsureDefaultHierarchyTool(svc *hierarchy.Service) *EnsureDefaultHierarchyTool {
	return &EnsureDefaultHierarchyTool{svc: svc}
}

// Definition returns the MCP tool definition for ensureDefaultHierarchy.
func (t *EnsureDefaultHierarchyTool) Definition() mcp.Tool {
	return mcp.NewTool("ensureDefaultHierarchy",
		mcp.WithDescription(
			"Idempotently create (or locate) a default mission→program→project→phase chain "+
				"for the project, so legacy tasks have somewhere to live. Repeated calls return "+
				"the same ids.",
		),
		mcp.WithString("project_id",
			mcp.Required(),
			mcp.Description("Project to bootstrap"),
		),
	)
}

// Handle processes the ensureDefaultHierarchy tool call.
func (t *EnsureDefaultHierarchyTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID := req.GetString("project_id", "")
	if projectID == "" {
		return mcp.NewToolResultError("'project_id' is required"), nil
	}

	result, err := t.svc.EnsureDefaultHierarchy(projectID)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(result), nil
}
