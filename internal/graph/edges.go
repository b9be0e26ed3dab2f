package graph

import (
	"fmt"

	"github.com/google/uuid"
)

// maxContainmentDepth bounds the ancestor walk used by the forest check.
// The hierarchy is at most mission→program→project→phase→task deep, so
// anything beyond this indicates corrupt data rather than a real chain.
const maxContainmentDepth = 32

// CreateEdge inserts a new edge and its "linked" audit event in one
// transaction. Both endpoints must exist, be live, and belong to the same
// project. Self-loops are rejected, and "contains" edges must keep the
// containment graph a forest.
func (s *Store) CreateEdge(p CreateEdgeParams) (*Edge, error) {
	if p.RelationType == "" {
		return nil, Invalidf("relation_type is required")
	}
	if p.FromNodeID == p.ToNodeID {
		return nil, Invalidf("self-loop rejected: from and to are both %s", p.FromNodeID)
	}

	from, err := s.GetNode(p.FromNodeID)
	if err != nil {
		return nil, err
	}
	to, err := s.GetNode(p.ToNodeID)
	if err != nil {
		return nil, err
	}
	if from.ProjectID != to.ProjectID {
		return nil, InvalidReferencef("edge endpoints belong to different projects (%s vs %s)",
			from.ProjectID, to.ProjectID)
	}
	if p.ProjectID == "" {
		p.ProjectID = from.ProjectID
	}
	if p.ProjectID != from.ProjectID {
		return nil, InvalidReferencef("edge project %s does not match endpoint project %s",
			p.ProjectID, from.ProjectID)
	}

	if p.RelationType == RelContains {
		if err := s.checkContainmentForest(p.FromNodeID, p.ToNodeID); err != nil {
			return nil, err
		}
	}

	weight := p.Weight
	if weight == 0 {
		weight = 1.0
	}
	directionality := p.Directionality
	if directionality == "" {
		directionality = Directed
	}
	if directionality != Directed && directionality != Bidirectional {
		return nil, Invalidf("directionality must be %q or %q", Directed, Bidirectional)
	}

	now := Now()
	edge := &Edge{
		ID:             uuid.NewString(),
		ProjectID:      p.ProjectID,
		FromNodeID:     p.FromNodeID,
		ToNodeID:       p.ToNodeID,
		RelationType:   p.RelationType,
		Weight:         weight,
		Directionality: directionality,
		Provenance:     p.Provenance,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.Exec(
		`INSERT INTO edges (id, project_id, from_node_id, to_node_id, relation_type,
		                    weight, directionality, provenance, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		edge.ID, edge.ProjectID, edge.FromNodeID, edge.ToNodeID, edge.RelationType,
		edge.Weight, edge.Directionality, encodeJSON(edge.Provenance, "{}"), now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert edge: %w", err)
	}

	ev, err := s.appendEvent(tx, Event{
		ProjectID:    edge.ProjectID,
		SourceSystem: p.SourceSystem,
		EntityType:   "edge",
		EntityID:     edge.ID,
		EventType:    EventLinked,
		Diff: DiffPayload{
			After: map[string]any{
				"from_node_id":  edge.FromNodeID,
				"to_node_id":    edge.ToNodeID,
				"relation_type": edge.RelationType,
				"from_type":     from.Type,
				"to_type":       to.Type,
			},
			FieldsChanged: []string{"from_node_id", "to_node_id", "relation_type"},
		},
	})
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	s.publish(ev)
	return edge, nil
}

// checkContainmentForest enforces the two forest invariants before a new
// "contains" edge from parent to child is accepted: the child may not
// already have a live parent, and the new parent may not be a descendant
// of the child.
func (s *Store) checkContainmentForest(parentID, childID string) error {
	var existing int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM edges
		 WHERE to_node_id = ? AND relation_type = ? AND deleted_at IS NULL`,
		childID, RelContains,
	).Scan(&existing)
	if err != nil {
		return fmt.Errorf("containment check: %w", err)
	}
	if existing > 0 {
		return Invalidf("node %s already has a parent: containment must stay a forest", childID)
	}

	// Walk the prospective parent's ancestors; reaching the child means
	// the new edge would close a containment cycle.
	current := parentID
	for depth := 0; depth < maxContainmentDepth; depth++ {
		parent, err := s.ContainmentParent(current)
		if err != nil {
			return err
		}
		if parent == "" {
			return nil
		}
		if parent == childID {
			return Invalidf("containment cycle rejected: %s is an ancestor of %s", childID, parentID)
		}
		current = parent
	}
	return Invalidf("containment chain from %s exceeds depth %d", parentID, maxContainmentDepth)
}

// ContainmentParent returns the id of the node's live containment parent,
// or "" when the node is a root.
func (s *Store) ContainmentParent(nodeID string) (string, error) {
	rows, err := s.db.Query(
		`SELECT from_node_id FROM edges
		 WHERE to_node_id = ? AND relation_type = ? AND deleted_at IS NULL
		 LIMIT 1`,
		nodeID, RelContains,
	)
	if err != nil {
		return "", fmt.Errorf("containment parent: %w", err)
	}
	defer rows.Close()
	if rows.Next() {
		var parent string
		if err := rows.Scan(&parent); err != nil {
			return "", err
		}
		return parent, nil
	}
	return "", rows.Err()
}

// ListEdges returns live edges matching the filter.
func (s *Store) ListEdges(f EdgeFilter) ([]Edge, error) {
	query := `
		SELECT id, project_id, from_node_id, to_node_id, relation_type,
		       weight, directionality, provenance, created_at, updated_at, deleted_at
		FROM edges
		WHERE deleted_at IS NULL
	`
	var args []any

	if f.ProjectID != "" {
		query += " AND project_id = ?"
		args = append(args, f.ProjectID)
	}
	if f.FromNodeID != "" {
		query += " AND from_node_id = ?"
		args = append(args, f.FromNodeID)
	}
	if f.ToNodeID != "" {
		query += " AND to_node_id = ?"
		args = append(args, f.ToNodeID)
	}
	if f.RelationType != "" {
		query += " AND relation_type = ?"
		args = append(args, f.RelationType)
	}

	query += " ORDER BY created_at, id"
	limit := f.Limit
	if limit <= 0 {
		limit = 500
	}
	query += " LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list edges: %w", err)
	}
	defer rows.Close()

	var result []Edge
	for rows.Next() {
		var e Edge
		var prov string
		if err := rows.Scan(
			&e.ID, &e.ProjectID, &e.FromNodeID, &e.ToNodeID, &e.RelationType,
			&e.Weight, &e.Directionality, &prov, &e.CreatedAt, &e.UpdatedAt, &e.DeletedAt,
		); err != nil {
			return nil, err
		}
		e.Provenance = decodeProvenance(prov)
		result = append(result, e)
	}
	return result, rows.Err()
}

// EdgesTouching returns live edges where the node appears on either side,
// restricted to the given relation types (empty set means all).
func (s *Store) EdgesTouching(nodeID string, relationTypes []string) ([]Edge, error) {
	query := `
		SELECT id, project_id, from_node_id, to_node_id, relation_type,
		       weight, directionality, provenance, created_at, updated_at, deleted_at
		FROM edges
		WHERE (from_node_id = ? OR to_node_id = ?) AND deleted_at IS NULL
	`
	args := []any{nodeID, nodeID}
	if len(relationTypes) > 0 {
		query += " AND relation_type IN (" + placeholders(len(relationTypes)) + ")"
		for _, rt := range relationTypes {
			args = append(args, rt)
		}
	}
	query += " ORDER BY created_at, id"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("edges touching %s: %w", nodeID, err)
	}
	defer rows.Close()

	var result []Edge
	for rows.Next() {
		var e Edge
		var prov string
		if err := rows.Scan(
			&e.ID, &e.ProjectID, &e.FromNodeID, &e.ToNodeID, &e.RelationType,
			&e.Weight, &e.Directionality, &prov, &e.CreatedAt, &e.UpdatedAt, &e.DeletedAt,
		); err != nil {
			return nil, err
		}
		e.Provenance = decodeProvenance(prov)
		result = append(result, e)
	}
	return result, rows.Err()
}

// ContainmentChildren returns the nodes under a parent via "contains"
// edges. With includeDeleted, soft-deleted children (and their unlinked
// edges) are included — the WBS sibling scan needs them so freed numbers
// are never reassigned.
func (s *Store) ContainmentChildren(parentID string, includeDeleted bool) ([]Node, error) {
	query := `
		SELECT n.id, n.project_id, n.type, n.title, n.description, n.status, n.owner,
		       n.metadata, n.external_refs, n.provenance, n.created_by,
		       n.created_at, n.updated_at, n.deleted_at, n.version
		FROM edges e
		JOIN nodes n ON n.id = e.to_node_id
		WHERE e.from_node_id = ? AND e.relation_type = ?
	`
	if !includeDeleted {
		query += " AND e.deleted_at IS NULL AND n.deleted_at IS NULL"
	}
	query += " ORDER BY n.created_at, n.id"

	rows, err := s.db.Query(query, parentID, RelContains)
	if err != nil {
		return nil, fmt.Errorf("containment children: %w", err)
	}
	defer rows.Close()

	var result []Node
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *node)
	}
	return result, rows.Err()
}

// DeleteEdge soft-deletes an edge with its "unlinked" audit event.
func (s *Store) DeleteEdge(id, sourceSystem string) error {
	var e Edge
	var prov string
	row := s.db.QueryRow(
		`SELECT id, project_id, from_node_id, to_node_id, relation_type,
		        weight, directionality, provenance, created_at, updated_at, deleted_at
		 FROM edges WHERE id = ? AND deleted_at IS NULL`, id,
	)
	if err := row.Scan(
		&e.ID, &e.ProjectID, &e.FromNodeID, &e.ToNodeID, &e.RelationType,
		&e.Weight, &e.Directionality, &prov, &e.CreatedAt, &e.UpdatedAt, &e.DeletedAt,
	); err != nil {
		return NotFoundf("edge %s not found", id)
	}

	now := Now()
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(
		`UPDATE edges SET deleted_at = ?, updated_at = ? WHERE id = ?`, now, now, id,
	); err != nil {
		return fmt.Errorf("delete edge: %w", err)
	}

	ev, err := s.appendEvent(tx, Event{
		ProjectID:    e.ProjectID,
		SourceSystem: sourceSystem,
		EntityType:   "edge",
		EntityID:     id,
		EventType:    EventUnlinked,
		Diff: DiffPayload{
			Before: map[string]any{
				"from_node_id":  e.FromNodeID,
				"to_node_id":    e.ToNodeID,
				"relation_type": e.RelationType,
			},
			FieldsChanged: []string{"deleted_at"},
		},
	})
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	s.publish(ev)
	return nil
}

// placeholders returns n comma-separated SQL placeholders.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	out := "?"
	for i := 1; i < n; i++ {
		out += ", ?"
	}
	return out
}
