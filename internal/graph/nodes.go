package graph

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// CreateNode inserts a new node and its "created" audit event in one
// transaction. The generated id is a UUID and is never reused.
func (s *Store) CreateNode(p CreateNodeParams) (*Node, error) {
	if p.ProjectID == "" {
		return nil, Invalidf("project_id is required")
	}
	if p.Type == "" {
		return nil, Invalidf("node type is required")
	}
	if strings.TrimSpace(p.Title) == "" {
		return nil, Invalidf("node title is required")
	}

	now := Now()
	node := &Node{
		ID:           uuid.NewString(),
		ProjectID:    p.ProjectID,
		Type:         p.Type,
		Title:        p.Title,
		Description:  p.Description,
		Status:       p.Status,
		Owner:        p.Owner,
		Metadata:     p.Metadata,
		ExternalRefs: p.ExternalRefs,
		Provenance:   p.Provenance,
		CreatedBy:    p.CreatedBy,
		CreatedAt:    now,
		UpdatedAt:    now,
		Version:      1,
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.Exec(
		`INSERT INTO nodes (id, project_id, type, title, description, status, owner,
		                    metadata, external_refs, provenance, created_by,
		                    created_at, updated_at, version)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
		node.ID, node.ProjectID, node.Type, node.Title, node.Description,
		node.Status, node.Owner,
		encodeJSON(node.Metadata, "{}"), encodeJSON(node.ExternalRefs, "[]"),
		encodeJSON(node.Provenance, "{}"), node.CreatedBy, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert node: %w", err)
	}

	ev, err := s.appendEvent(tx, Event{
		ProjectID:    node.ProjectID,
		SourceSystem: p.SourceSystem,
		EntityType:   "node",
		EntityID:     node.ID,
		EventType:    EventCreated,
		Diff: DiffPayload{
			After:         nodeSnapshot(node),
			FieldsChanged: []string{"type", "title", "status"},
		},
	})
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	s.publish(ev)
	return node, nil
}

// GetNode retrieves a node by id, excluding soft-deleted nodes.
func (s *Store) GetNode(id string) (*Node, error) {
	node, err := s.getNodeAny(id)
	if err != nil {
		return nil, err
	}
	if node.DeletedAt != nil {
		return nil, NotFoundf("node %s not found", id)
	}
	return node, nil
}

// getNodeAny retrieves a node regardless of soft-delete state. Used by
// history and WBS scans, where deleted nodes still matter.
func (s *Store) getNodeAny(id string) (*Node, error) {
	row := s.db.QueryRow(
		`SELECT id, project_id, type, title, description, status, owner,
		        metadata, external_refs, provenance, created_by,
		        created_at, updated_at, deleted_at, version
		 FROM nodes WHERE id = ?`, id,
	)
	node, err := scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NotFoundf("node %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get node: %w", err)
	}
	return node, nil
}

// ListNodes returns live nodes matching the filter, newest first.
// Soft-deleted nodes never appear in listings.
func (s *Store) ListNodes(f NodeFilter) ([]Node, error) {
	query := `
		SELECT id, project_id, type, title, description, status, owner,
		       metadata, external_refs, provenance, created_by,
		       created_at, updated_at, deleted_at, version
		FROM nodes
		WHERE deleted_at IS NULL
	`
	var args []any

	if f.ProjectID != "" {
		query += " AND project_id = ?"
		args = append(args, f.ProjectID)
	}
	if f.Type != "" {
		query += " AND type = ?"
		args = append(args, f.Type)
	}
	if f.Status != "" {
		query += " AND status = ?"
		args = append(args, f.Status)
	}
	if f.Owner != "" {
		query += " AND owner = ?"
		args = append(args, f.Owner)
	}
	if f.TitleLike != "" {
		query += " AND title LIKE ?"
		args = append(args, "%"+f.TitleLike+"%")
	}
	if f.Subsystem != "" {
		// Subsystem lives in the metadata blob; filtering in SQL keeps
		// the LIMIT honest on projects with many untagged nodes.
		query += " AND json_extract(metadata, '$.subsystem') = ?"
		args = append(args, f.Subsystem)
	}

	query += " ORDER BY created_at DESC, id"
	limit := f.Limit
	if limit <= 0 {
		limit = 200
	}
	query += " LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
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

// NodesByType returns a project's nodes of one type. With includeDeleted,
// soft-deleted rows are included (used by the root-level WBS scan).
func (s *Store) NodesByType(projectID, nodeType string, includeDeleted bool) ([]Node, error) {
	query := `
		SELECT id, project_id, type, title, description, status, owner,
		       metadata, external_refs, provenance, created_by,
		       created_at, updated_at, deleted_at, version
		FROM nodes
		WHERE project_id = ? AND type = ?
	`
	if !includeDeleted {
		query += " AND deleted_at IS NULL"
	}
	query += " ORDER BY created_at, id"

	rows, err := s.db.Query(query, projectID, nodeType)
	if err != nil {
		return nil, fmt.Errorf("nodes by type: %w", err)
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

// UpdateNode applies a partial update, computing a field-level diff against
// the prior state. When nothing actually changed, no event is emitted and
// the stored row is untouched. Otherwise the update bumps the version and
// writes an "updated" (or "status_changed") event in the same transaction.
func (s *Store) UpdateNode(id string, p UpdateNodeParams) (*Node, error) {
	prior, err := s.GetNode(id)
	if err != nil {
		return nil, err
	}

	next := *prior
	if p.Title != nil {
		next.Title = *p.Title
	}
	if p.Description != nil {
		next.Description = *p.Description
	}
	if p.Status != nil {
		next.Status = *p.Status
	}
	if p.Owner != nil {
		next.Owner = *p.Owner
	}
	if p.Metadata != nil {
		merged := make(map[string]any, len(prior.Metadata)+len(p.Metadata))
		for k, v := range prior.Metadata {
			merged[k] = v
		}
		for k, v := range p.Metadata {
			if v == nil {
				delete(merged, k)
				continue
			}
			merged[k] = v
		}
		next.Metadata = merged
	}
	if p.ExternalRefs != nil {
		next.ExternalRefs = p.ExternalRefs
	}

	diff := diffNodes(prior, &next)
	if len(diff.FieldsChanged) == 0 {
		return prior, nil
	}

	now := Now()
	next.UpdatedAt = now
	next.Version = prior.Version + 1

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.Exec(
		`UPDATE nodes
		 SET title = ?, description = ?, status = ?, owner = ?,
		     metadata = ?, external_refs = ?, updated_at = ?, version = version + 1
		 WHERE id = ? AND version = ? AND deleted_at IS NULL`,
		next.Title, next.Description, next.Status, next.Owner,
		encodeJSON(next.Metadata, "{}"), encodeJSON(next.ExternalRefs, "[]"),
		now, id, prior.Version,
	)
	if err != nil {
		return nil, fmt.Errorf("update node: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, Conflictf("node %s was modified concurrently (version %d)", id, prior.Version)
	}

	eventType := EventUpdated
	for _, f := range diff.FieldsChanged {
		if f == "status" {
			eventType = EventStatusChanged
			break
		}
	}

	ev, err := s.appendEvent(tx, Event{
		ProjectID:    next.ProjectID,
		SourceSystem: p.SourceSystem,
		EntityType:   "node",
		EntityID:     id,
		EventType:    eventType,
		Diff:         diff,
	})
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	s.publish(ev)
	return &next, nil
}

// DeleteNode soft-deletes a node: the row is retained for audit, excluded
// from listings and traversal. Live edges touching the node are unlinked
// in the same transaction, each with its own "unlinked" event.
func (s *Store) DeleteNode(id, sourceSystem string) error {
	node, err := s.GetNode(id)
	if err != nil {
		return err
	}

	now := Now()
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(
		`UPDATE nodes SET deleted_at = ?, updated_at = ?, version = version + 1 WHERE id = ?`,
		now, now, id,
	); err != nil {
		return fmt.Errorf("delete node: %w", err)
	}

	ev, err := s.appendEvent(tx, Event{
		ProjectID:    node.ProjectID,
		SourceSystem: sourceSystem,
		EntityType:   "node",
		EntityID:     id,
		EventType:    EventDeleted,
		Diff: DiffPayload{
			Before:        nodeSnapshot(node),
			FieldsChanged: []string{"deleted_at"},
		},
	})
	if err != nil {
		return err
	}

	// Unlink live edges touching the node.
	rows, err := tx.Query(
		`SELECT id, project_id, from_node_id, to_node_id, relation_type
		 FROM edges WHERE (from_node_id = ? OR to_node_id = ?) AND deleted_at IS NULL`,
		id, id,
	)
	if err != nil {
		return fmt.Errorf("scan edges for delete: %w", err)
	}
	type touched struct{ id, project, from, to, rel string }
	var edges []touched
	for rows.Next() {
		var e touched
		if err := rows.Scan(&e.id, &e.project, &e.from, &e.to, &e.rel); err != nil {
			rows.Close()
			return err
		}
		edges = append(edges, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	var unlinkEvents []Event
	for _, e := range edges {
		if _, err := tx.Exec(`UPDATE edges SET deleted_at = ?, updated_at = ? WHERE id = ?`, now, now, e.id); err != nil {
			return fmt.Errorf("unlink edge %s: %w", e.id, err)
		}
		uev, err := s.appendEvent(tx, Event{
			ProjectID:    e.project,
			SourceSystem: sourceSystem,
			EntityType:   "edge",
			EntityID:     e.id,
			EventType:    EventUnlinked,
			Diff: DiffPayload{
				Before: map[string]any{
					"from_node_id": e.from, "to_node_id": e.to, "relation_type": e.rel,
				},
				FieldsChanged: []string{"deleted_at"},
			},
		})
		if err != nil {
			return err
		}
		unlinkEvents = append(unlinkEvents, uev)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	s.publish(ev)
	for _, uev := range unlinkEvents {
		s.publish(uev)
	}
	return nil
}

// ─── Scan helpers ────────────────────────────────────────────────────────────

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(row rowScanner) (*Node, error) {
	var n Node
	var meta, refs, prov string
	if err := row.Scan(
		&n.ID, &n.ProjectID, &n.Type, &n.Title, &n.Description, &n.Status,
		&n.Owner, &meta, &refs, &prov, &n.CreatedBy,
		&n.CreatedAt, &n.UpdatedAt, &n.DeletedAt, &n.Version,
	); err != nil {
		return nil, err
	}
	n.Metadata = decodeMeta(meta)
	n.ExternalRefs = decodeRefs(refs)
	n.Provenance = decodeProvenance(prov)
	return &n, nil
}

// nodeSnapshot produces the compact field map recorded in diff payloads.
func nodeSnapshot(n *Node) map[string]any {
	snap := map[string]any{
		"type":  n.Type,
		"title": n.Title,
	}
	if n.Status != "" {
		snap["status"] = n.Status
	}
	if n.Owner != "" {
		snap["owner"] = n.Owner
	}
	if sub := n.Subsystem(); sub != "" {
		snap["subsystem"] = sub
	}
	return snap
}

// diffNodes computes the field-level diff between two node states.
// Only changed fields appear in Before/After.
func diffNodes(prior, next *Node) DiffPayload {
	diff := DiffPayload{
		Before: map[string]any{},
		After:  map[string]any{},
	}
	record := func(field string, before, after any) {
		diff.Before[field] = before
		diff.After[field] = after
		diff.FieldsChanged = append(diff.FieldsChanged, field)
	}

	if prior.Title != next.Title {
		record("title", prior.Title, next.Title)
	}
	if prior.Description != next.Description {
		record("description", prior.Description, next.Description)
	}
	if prior.Status != next.Status {
		record("status", prior.Status, next.Status)
	}
	if prior.Owner != next.Owner {
		record("owner", prior.Owner, next.Owner)
	}
	if encodeJSON(prior.Metadata, "{}") != encodeJSON(next.Metadata, "{}") {
		record("metadata", prior.Metadata, next.Metadata)
	}
	if encodeJSON(prior.ExternalRefs, "[]") != encodeJSON(next.ExternalRefs, "[]") {
		record("external_refs", prior.ExternalRefs, next.ExternalRefs)
	}

	if len(diff.FieldsChanged) == 0 {
		return DiffPayload{}
	}
	return diff
}
