// Package graph implements the persistent engineering knowledge graph.
//
// It stores typed nodes (requirements, tests, components, tasks, hierarchy
// levels) and typed directed edges between them in SQLite, with provenance,
// soft delete, monotonic versioning, and an append-only audit event written
// in the same transaction as every mutation.
package graph

// ─── Nodes ───────────────────────────────────────────────────────────────────

// Common node types. The type field is an open enum: any string is accepted,
// these are the ones the rule engine and hierarchy service know about.
const (
	TypeRequirement = "Requirement"
	TypeTest        = "Test"
	TypeComponent   = "Component"
	TypeInterface   = "Interface"
	TypeIssue       = "Issue"
	TypeECN         = "ECN"
	TypeNote        = "Note"
	TypeTask        = "Task"

	TypeMission = "Mission"
	TypeProgram = "Program"
	TypeProject = "Project"
	TypePhase   = "Phase"
)

// Provenance captures where a node or edge's data originated.
type Provenance struct {
	Source     string  `json:"source,omitempty"`
	SourceRef  string  `json:"source_ref,omitempty"`
	AsOf       string  `json:"as_of,omitempty"`
	Confidence float64 `json:"confidence,omitempty"` // 0..1
}

// ExternalRef is a cross-system identifier (e.g. JAMA-REQ-123 in jama).
type ExternalRef struct {
	System string `json:"system"`
	ID     string `json:"id"`
	URL    string `json:"url,omitempty"`
}

// Node is a typed artifact in the knowledge graph.
// Soft-deleted nodes (DeletedAt set) are excluded from listings and
// traversal but retained for audit; ids are never reused.
type Node struct {
	ID           string         `json:"id"`
	ProjectID    string         `json:"project_id"`
	Type         string         `json:"type"`
	Title        string         `json:"title"`
	Description  string         `json:"description,omitempty"`
	Status       string         `json:"status,omitempty"`
	Owner        string         `json:"owner,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	ExternalRefs []ExternalRef  `json:"external_refs,omitempty"`
	Provenance   Provenance     `json:"provenance,omitempty"`
	CreatedBy    string         `json:"created_by,omitempty"`
	CreatedAt    string         `json:"created_at"`
	UpdatedAt    string         `json:"updated_at"`
	DeletedAt    *string        `json:"deleted_at,omitempty"`
	Version      int64          `json:"version"`
}

// MetaString returns a metadata value as a string, or "" when absent
// or not a string.
func (n *Node) MetaString(key string) string {
	if n.Metadata == nil {
		return ""
	}
	s, _ := n.Metadata[key].(string)
	return s
}

// MetaBool returns a metadata value as a bool.
func (n *Node) MetaBool(key string) bool {
	if n.Metadata == nil {
		return false
	}
	b, _ := n.Metadata[key].(bool)
	return b
}

// Subsystem returns the node's subsystem tag, if any.
func (n *Node) Subsystem() string { return n.MetaString("subsystem") }

// CreateNodeParams holds input for creating a node.
type CreateNodeParams struct {
	ProjectID    string         `json:"project_id"`
	Type         string         `json:"type"`
	Title        string         `json:"title"`
	Description  string         `json:"description,omitempty"`
	Status       string         `json:"status,omitempty"`
	Owner        string         `json:"owner,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	ExternalRefs []ExternalRef  `json:"external_refs,omitempty"`
	Provenance   Provenance     `json:"provenance,omitempty"`
	CreatedBy    string         `json:"created_by,omitempty"`
	SourceSystem string         `json:"source_system,omitempty"`
}

// UpdateNodeParams holds partial update fields for a node. Nil pointers
// leave the field untouched; Metadata keys are merged over the existing map.
type UpdateNodeParams struct {
	Title        *string        `json:"title,omitempty"`
	Description  *string        `json:"description,omitempty"`
	Status       *string        `json:"status,omitempty"`
	Owner        *string        `json:"owner,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	ExternalRefs []ExternalRef  `json:"external_refs,omitempty"`
	SourceSystem string         `json:"source_system,omitempty"`
	UpdatedBy    string         `json:"updated_by,omitempty"`
}

// NodeFilter restricts ListNodes. Zero values mean "no restriction".
type NodeFilter struct {
	ProjectID string `json:"project_id,omitempty"`
	Type      string `json:"type,omitempty"`
	Status    string `json:"status,omitempty"`
	Owner     string `json:"owner,omitempty"`
	Subsystem string `json:"subsystem,omitempty"`
	TitleLike string `json:"title_like,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

// ─── Edges ───────────────────────────────────────────────────────────────────

// Relation types known to the hierarchy service, traversal engine and rules.
// relation_type is an open enum like node type.
const (
	RelContains    = "contains"
	RelDependsOn   = "depends_on"
	RelBlocks      = "blocks"
	RelVerifiedBy  = "VERIFIED_BY"
	RelTracesTo    = "TRACES_TO"
	RelAllocatedTo = "ALLOCATED_TO"
	RelAssignedTo  = "assigned_to"
)

// Edge directionality.
const (
	Directed      = "directed"
	Bidirectional = "bidirectional"
)

// Edge is a typed relationship between two nodes of the same project.
// Invariants: no self-loops; "contains" edges form a forest (at most one
// live incoming contains edge per node, no containment cycles).
type Edge struct {
	ID             string     `json:"id"`
	ProjectID      string     `json:"project_id"`
	FromNodeID     string     `json:"from_node_id"`
	ToNodeID       string     `json:"to_node_id"`
	RelationType   string     `json:"relation_type"`
	Weight         float64    `json:"weight"`
	Directionality string     `json:"directionality"`
	Provenance     Provenance `json:"provenance,omitempty"`
	CreatedAt      string     `json:"created_at"`
	UpdatedAt      string     `json:"updated_at"`
	DeletedAt      *string    `json:"deleted_at,omitempty"`
}

// CreateEdgeParams holds input for creating an edge.
type CreateEdgeParams struct {
	ProjectID      string     `json:"project_id"`
	FromNodeID     string     `json:"from_node_id"`
	ToNodeID       string     `json:"to_node_id"`
	RelationType   string     `json:"relation_type"`
	Weight         float64    `json:"weight,omitempty"` // defaults to 1.0
	Directionality string     `json:"directionality,omitempty"`
	Provenance     Provenance `json:"provenance,omitempty"`
	SourceSystem   string     `json:"source_system,omitempty"`
}

// EdgeFilter restricts ListEdges.
type EdgeFilter struct {
	ProjectID    string `json:"project_id,omitempty"`
	FromNodeID   string `json:"from_node_id,omitempty"`
	ToNodeID     string `json:"to_node_id,omitempty"`
	RelationType string `json:"relation_type,omitempty"`
	Limit        int    `json:"limit,omitempty"`
}

// ─── Events ──────────────────────────────────────────────────────────────────

// Event types recorded in the audit log.
const (
	EventCreated       = "created"
	EventUpdated       = "updated"
	EventDeleted       = "deleted"
	EventLinked        = "linked"
	EventUnlinked      = "unlinked"
	EventStatusChanged = "status_changed"
)

// DiffPayload is the before/after snapshot carried by an event.
type DiffPayload struct {
	Before        map[string]any `json:"before,omitempty"`
	After         map[string]any `json:"after,omitempty"`
	FieldsChanged []string       `json:"fields_changed,omitempty"`
}

// Event is an immutable audit record for a single mutation. Events are
// appended in the same transaction as the mutation they describe.
type Event struct {
	Seq          int64       `json:"seq"`
	ID           string      `json:"id"`
	ProjectID    string      `json:"project_id"`
	SourceSystem string      `json:"source_system,omitempty"`
	EntityType   string      `json:"entity_type"` // "node" or "edge"
	EntityID     string      `json:"entity_id"`
	EventType    string      `json:"event_type"`
	ChangeSetID  string      `json:"change_set_id,omitempty"`
	Diff         DiffPayload `json:"diff"`
	Timestamp    string      `json:"timestamp"`
}

// HistoryResult holds raw events plus a flattened human-readable timeline.
type HistoryResult struct {
	Events   []Event  `json:"events"`
	Timeline []string `json:"timeline"`
	Total    int      `json:"total"`
}

// ChangeSet groups events sharing an anchor, with aggregated statistics.
type ChangeSet struct {
	ID              string         `json:"id"`
	ProjectID       string         `json:"project_id"`
	EventCount      int            `json:"event_count"`
	NodesAffected   int            `json:"nodes_affected"`
	EdgesAffected   int            `json:"edges_affected"`
	ByEntityType    map[string]int `json:"by_entity_type"`
	ByEventType     map[string]int `json:"by_event_type"`
	NodeTypes       []string       `json:"node_types,omitempty"`
	Subsystems      []string       `json:"subsystems,omitempty"`
	FirstEventAt    string         `json:"first_event_at"`
	LastEventAt     string         `json:"last_event_at"`
}

// ChangeSignature describes a prospective change for similarity search.
type ChangeSignature struct {
	NodeTypes  []string `json:"node_types,omitempty"`
	Subsystems []string `json:"subsystems,omitempty"`
	EventTypes []string `json:"event_types,omitempty"`
}

// SimilarChange is a past change set with its overlap score against a
// supplied signature.
type SimilarChange struct {
	ChangeSet ChangeSet `json:"change_set"`
	Score     float64   `json:"score"`
}
