package graphtools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/opal-se/opal/internal/rules"
)

// FindVerificationGapsTool handles the findVerificationGaps MCP tool.
type FindVerificationGapsTool struct {
	engine *rules.Engine
}

// NewFindVerificationGapsTool creates a FindVerificationGapsTool.
func NewFindVerificationGapsTool(engine *rules.Engine) *FindVerificationGapsTool {
	return &FindVerificationGapsTool{engine: engine}
}

// Definition returns the MCP tool definition for findVerificationGaps.
func (t *FindVerificationGapsTool) Definition() mcp.Tool {
	return mcp.NewTool("findVerificationGaps",
		mcp.WithDescription(
			"List requirements with no verifying test (missing VERIFIED_BY edge to a Test) "+
				"and tests that verify nothing.",
		),
		mcp.WithString("project_id",
			mcp.Required(),
			mcp.Description("Project to scan"),
		),
		mcp.WithString("subsystem",
			mcp.Description("Restrict the scan to one subsystem tag"),
		),
	)
}

// Handle processes the findVerificationGaps tool call.
func (t *FindVerificationGapsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID := req.GetString("project_id", "")
	if projectID == "" {
		return mcp.NewToolResultError("'project_id' is required"), nil
	}

	gaps, err := t.engine.FindVerificationGaps(projectID, req.GetString("subsystem", ""))
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(gaps), nil
}

// CheckAllocationConsistencyTool handles the checkAllocationConsistency MCP tool.
type CheckAllocationConsistencyTool struct {
	engine *rules.Engine
}

// NewCheckAllocationConsistencyTool creates a CheckAllocationConsistencyTool.
func NewCheckAllocationConsistencyTool(engine *rules.Engine) *CheckAllocationConsistencyTool {
	return &CheckAllocationConsistencyTool{engine: engine}
}

// Definition returns the MCP tool definition for checkAllocationConsistency.
func (t *CheckAllocationConsistencyTool) Definition() mcp.Tool {
	return mcp.NewTool("checkAllocationConsistency",
		mcp.WithDescription(
			"Report requirements not allocated to any component (missing ALLOCATED_TO edge), "+
				"components with nothing allocated, and cross-subsystem allocations.",
		),
		mcp.WithString("project_id",
			mcp.Required(),
			mcp.Description("Project to scan"),
		),
	)
}

// Handle processes the checkAllocationConsistency tool call.
func (t *CheckAllocationConsistencyTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID := req.GetString("project_id", "")
	if projectID == "" {
		return mcp.NewToolResultError("'project_id' is required"), nil
	}

	report, err := t.engine.CheckAllocationConsistency(projectID)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(report), nil
}

// GetVerificationCoverageMetricsTool handles the getVerificationCoverageMetrics MCP tool.
type GetVerificationCoverageMetricsTool struct {
	engine *rules.Engine
}

// NewGetVerificationCoverageMetricsTool creates a GetVerificationCoverageMetricsTool.
func NewGetVerificationCoverageMetricsTool(engine *rules.Engine) *GetVerificationCoverageMetricsTool {
	return &GetVerificationCoverageMetricsTool{engine: engine}
}

// Definition returns the MCP tool definition for getVerificationCoverageMetrics.
func (t *GetVerificationCoverageMetricsTool) Definition() mcp.Tool {
	return mcp.NewTool("getVerificationCoverageMetrics",
		mcp.WithDescription(
			"Compute what fraction of the project's requirements carry at least one verifying "+
				"test, overall and broken down by subsystem and node type.",
		),
		mcp.WithString("project_id",
			mcp.Required(),
			mcp.Description("Project to measure"),
		),
		mcp.WithString("subsystem",
			mcp.Description("Restrict the metrics to one subsystem tag"),
		),
	)
}

// Handle processes the getVerificationCoverageMetrics tool call.
func (t *GetVerificationCoverageMetricsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID := req.GetString("project_id", "")
	if projectID == "" {
		return mcp.NewToolResultError("'project_id' is required"), nil
	}

	metrics, err := t.engine.GetVerificationCoverageMetrics(projectID, req.GetString("subsystem", ""))
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(metrics), nil
}

// RunConsistencyChecksTool handles the runConsistencyChecks MCP tool.
type RunConsistencyChecksTool struct {
	engine *rules.Engine
}

// NewRunConsistencyChecksTool creates a RunConsistencyChecksTool.
func NewRunConsistencyChecksTool(engine *rules.Engine) *RunConsistencyChecksTool {
	return &RunConsistencyChecksTool{engine: engine}
}

// Definition returns the MCP tool definition for runConsistencyChecks.
func (t *RunConsistencyChecksTool) Definition() mcp.Tool {
	return mcp.NewTool("runConsistencyChecks",
		mcp.WithDescription(
			"Run the registered consistency rules against the project and return every finding "+
				"with severity, summarized by rule and severity. Built-in rules: verification-gaps, "+
				"allocation-consistency, containment-forest, dangling-edges.",
		),
		mcp.WithString("project_id",
			mcp.Required(),
			mcp.Description("Project to check"),
		),
		mcp.WithArray("rule_ids",
			mcp.Description("Rules to run (default: all registered rules)"),
		),
	)
}

// Handle processes the runConsistencyChecks tool call.
func (t *RunConsistencyChecksTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID := req.GetString("project_id", "")
	if projectID == "" {
		return mcp.NewToolResultError("'project_id' is required"), nil
	}

	report, err := t.engine.RunConsistencyChecks(projectID, strSliceArg(req, "rule_ids"))
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(report), nil
}
