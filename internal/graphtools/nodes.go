package graphtools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/opal-se/opal/internal/graph"
)

// CreateNodeTool handles the createNode MCP tool.
type CreateNodeTool struct {
	store *graph.Store
}

// NewCreateNodeTool creates a CreateNodeTool with the given store.
func NewCreateNodeTool(store *graph.Store) *CreateNodeTool {
	return &CreateNodeTool{store: store}
}

// Definition returns the MCP tool definition for createNode.
func (t *CreateNodeTool) Definition() mcp.Tool {
	return mcp.NewTool("createNode",
		mcp.WithDescription(
			"Create a typed node in the engineering knowledge graph: a requirement, test, "+
				"component, interface, issue, ECN, note or task. The creation is recorded in the "+
				"audit event log.",
		),
		mcp.WithString("project_id",
			mcp.Required(),
			mcp.Description("Project the node belongs to"),
		),
		mcp.WithString("type",
			mcp.Required(),
			mcp.Description("Node type (e.g. Requirement, Test, Component, Task)"),
		),
		mcp.WithString("title",
			mcp.Required(),
			mcp.Description("Short human-readable title"),
		),
		mcp.WithString("description",
			mcp.Description("Longer free-text description"),
		),
		mcp.WithString("status",
			mcp.Description("Lifecycle status (free-form; tasks use open, in_progress, blocked, completed, cancelled)"),
		),
		mcp.WithString("owner",
			mcp.Description("Responsible person or team"),
		),
		mcp.WithObject("metadata",
			mcp.Description("Arbitrary key/value metadata (e.g. subsystem, priority)"),
		),
		mcp.WithArray("external_refs",
			mcp.Description("Cross-system references: [{system, id, url}]"),
		),
		mcp.WithObject("provenance",
			mcp.Description("Data origin: {source, source_ref, as_of, confidence}"),
		),
		mcp.WithString("created_by",
			mcp.Description("Actor creating the node"),
		),
		mcp.WithString("source_system",
			mcp.Description("System attribution recorded on the audit event"),
		),
	)
}

// Handle processes the createNode tool call.
func (t *CreateNodeTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	params := graph.CreateNodeParams{
		ProjectID:    req.GetString("project_id", ""),
		Type:         req.GetString("type", ""),
		Title:        req.GetString("title", ""),
		Description:  req.GetString("description", ""),
		Status:       req.GetString("status", ""),
		Owner:        req.GetString("owner", ""),
		Metadata:     mapArg(req, "metadata"),
		CreatedBy:    req.GetString("created_by", ""),
		SourceSystem: req.GetString("source_system", ""),
	}
	if params.ProjectID == "" {
		return mcp.NewToolResultError("'project_id' is required"), nil
	}
	if params.Type == "" {
		return mcp.NewToolResultError("'type' is required"), nil
	}
	if params.Title == "" {
		return mcp.NewToolResultError("'title' is required"), nil
	}
	if err := decodeArg(req, "external_refs", &params.ExternalRefs); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := decodeArg(req, "provenance", &params.Provenance); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	node, err := t.store.CreateNode(params)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(node), nil
}

// UpdateNodeTool handles the updateNode MCP tool.
type UpdateNodeTool struct {
	store *graph.Store
}

// NewUpdateNodeTool creates an UpdateNodeTool with the given store.
func NewUpdateNodeTool(store *graph.Store) *UpdateNodeTool {
	return &UpdateNodeTool{store: store}
}

// Definition returns the MCP tool definition for updateNode.
func (t *UpdateNodeTool) Definition() mcp.Tool {
	return mcp.NewTool("updateNode",
		mcp.WithDescription(
			"Partially update a node. Only provided fields change; metadata keys merge over "+
				"the existing map (a null value removes a key). Each real change bumps the node "+
				"version and appends an audit event; submitting identical values is a no-op.",
		),
		mcp.WithString("node_id",
			mcp.Required(),
			mcp.Description("Node to update"),
		),
		mcp.WithString("title", mcp.Description("New title")),
		mcp.WithString("description", mcp.Description("New description")),
		mcp.WithString("status", mcp.Description("New lifecycle status")),
		mcp.WithString("owner", mcp.Description("New owner")),
		mcp.WithObject("metadata", mcp.Description("Metadata keys to merge (null removes)")),
		mcp.WithArray("external_refs", mcp.Description("Replacement external reference list")),
		mcp.WithString("updated_by", mcp.Description("Actor making the change")),
		mcp.WithString("source_system", mcp.Description("System attribution for the audit event")),
	)
}

// Handle processes the updateNode tool call.
func (t *UpdateNodeTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	nodeID := req.GetString("node_id", "")
	if nodeID == "" {
		return mcp.NewToolResultError("'node_id' is required"), nil
	}

	params := graph.UpdateNodeParams{
		Metadata:     mapArg(req, "metadata"),
		SourceSystem: req.GetString("source_system", ""),
		UpdatedBy:    req.GetString("updated_by", ""),
	}
	args := req.GetArguments()
	for key, target := range map[string]**string{
		"title":       &params.Title,
		"description": &params.Description,
		"status":      &params.Status,
		"owner":       &params.Owner,
	} {
		if v, ok := args[key].(string); ok {
			s := v
			*target = &s
		}
	}
	if err := decodeArg(req, "external_refs", &params.ExternalRefs); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	node, err := t.store.UpdateNode(nodeID, params)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(node), nil
}

// QuerySystemModelTool handles the querySystemModel MCP tool.
type QuerySystemModelTool struct {
	store *graph.Store
}

// NewQuerySystemModelTool creates a QuerySystemModelTool with the given store.
func NewQuerySystemModelTool(store *graph.Store) *QuerySystemModelTool {
	return &QuerySystemModelTool{store: store}
}

// Definition returns the MCP tool definition for querySystemModel.
func (t *QuerySystemModelTool) Definition() mcp.Tool {
	return mcp.NewTool("querySystemModel",
		mcp.WithDescription(
			"List the project's live nodes filtered by type, status, owner, subsystem or a "+
				"title substring. Soft-deleted nodes never appear.",
		),
		mcp.WithString("project_id",
			mcp.Required(),
			mcp.Description("Project to query"),
		),
		mcp.WithString("type", mcp.Description("Restrict to one node type")),
		mcp.WithString("status", mcp.Description("Restrict to one status")),
		mcp.WithString("owner", mcp.Description("Restrict to one owner")),
		mcp.WithString("subsystem", mcp.Description("Restrict to one subsystem tag")),
		mcp.WithString("title_like", mcp.Description("Case-insensitive title substring")),
		mcp.WithNumber("limit", mcp.Description("Maximum nodes to return (default: 200)")),
	)
}

// Handle processes the querySystemModel tool call.
func (t *QuerySystemModelTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID := req.GetString("project_id", "")
	if projectID == "" {
		return mcp.NewToolResultError("'project_id' is required"), nil
	}

	nodes, err := t.store.ListNodes(graph.NodeFilter{
		ProjectID: projectID,
		Type:      req.GetString("type", ""),
		Status:    req.GetString("status", ""),
		Owner:     req.GetString("owner", ""),
		Subsystem: req.GetString("subsystem", ""),
		TitleLike: req.GetString("title_like", ""),
		Limit:     intArg(req, "limit", 0),
	})
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(map[string]any{
		"nodes": nodes,
		"total": len(nodes),
	}), nil
}
