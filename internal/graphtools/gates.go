package graphtools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/opal-se/opal/internal/hierarchy"
)

// ReviewPhaseGateTool handles the reviewPhaseGate MCP tool.
type ReviewPhaseGateTool struct {
	svc *hierarchy.Service
}

// NewReviewPhaseGateTool creates a ReviewPhaseGateTool.
func NewReviewPhaseGateTool(svc *hierarchy.Service) *ReviewPhaseGateTool {
	return &ReviewPhaseGateTool{svc: svc}
}

// Definition returns the MCP tool definition for reviewPhaseGate.
func (t *ReviewPhaseGateTool) Definition() mcp.Tool {
	return mcp.NewTool("reviewPhaseGate",
		mcp.WithDescription(
			"Record a gate review decision on a phase. 'proceed' completes the phase (every "+
				"work package must be done) and activates the project's next phase by WBS order, "+
				"or completes the project when none remains. 'hold' parks the phase at the gate, "+
				"'revise' sends it back to in_progress, 'cancel' cancels it.",
		),
		mcp.WithString("phase_id",
			mcp.Required(),
			mcp.Description("Phase under review"),
		),
		mcp.WithString("decision",
			mcp.Required(),
			mcp.Description("One of: proceed, hold, revise, cancel"),
		),
		mcp.WithString("feedback",
			mcp.Description("Reviewer feedback recorded with the decision"),
		),
		mcp.WithString("reviewed_by",
			mcp.Description("Reviewer identity"),
		),
	)
}

// Handle processes the reviewPhaseGate tool call.
func (t *ReviewPhaseGateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	phaseID := req.GetString("phase_id", "")
	decision := req.GetString("decision", "")
	if phaseID == "" {
		return mcp.NewToolResultError("'phase_id' is required"), nil
	}
	if decision == "" {
		return mcp.NewToolResultError("'decision' is required"), nil
	}

	result, err := t.svc.ReviewPhaseGate(phaseID, decision,
		req.GetString("feedback", ""), req.GetString("reviewed_by", ""))
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(result), nil
}

// GetPendingGateReviewsTool handles the getPendingGateReviews MCP tool.
type GetPendingGateReviewsTool struct {
	svc *hierarchy.Service
}

// NewGetPendingGateReviewsTool creates a GetPendingGateReviewsTool.
func NewGetPendingGateReviewsTool(svc *hierarchy.Service) *GetPendingGateReviewsTool {
	return &GetPendingGateReviewsTool{svc: svc}
}

// Definition returns the MCP tool definition for getPendingGateReviews.
func (t *GetPendingGateReviewsTool) Definition() mcp.Tool {
	return mcp.NewTool("getPendingGateReviews",
		mcp.WithDescription(
			"List the project's phases currently waiting at a gate for a review decision.",
		),
		mcp.WithString("project_id",
			mcp.Required(),
			mcp.Description("Project to scan"),
		),
	)
}

// Handle processes the getPendingGateReviews tool call.
func (t *GetPendingGateReviewsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID := req.GetString("project_id", "")
	if projectID == "" {
		return mcp.NewToolResultError("'project_id' is required"), nil
	}

	phases, err := t.svc.PendingGateReviews(projectID)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(map[string]any{
		"phases": phases,
		"total":  len(phases),
	}), nil
}
