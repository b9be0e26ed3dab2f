package graph

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// appendEvent writes an audit event inside the caller's transaction and
// returns the stored record. The id, timestamp, and default change-set
// anchor are filled in here; rows are never updated after insertion.
func (s *Store) appendEvent(tx *sql.Tx, ev Event) (Event, error) {
	ev.ID = uuid.NewString()
	ev.Timestamp = Now()
	if ev.ChangeSetID == "" {
		ev.ChangeSetID = defaultChangeSetID(ev)
	}

	res, err := tx.Exec(
		`INSERT INTO events (id, project_id, source_system, entity_type, entity_id,
		                     event_type, change_set_id, diff, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.ProjectID, ev.SourceSystem, ev.EntityType, ev.EntityID,
		ev.EventType, ev.ChangeSetID, encodeJSON(ev.Diff, "{}"), ev.Timestamp,
	)
	if err != nil {
		return Event{}, fmt.Errorf("append event: %w", err)
	}
	ev.Seq, _ = res.LastInsertId()
	return ev, nil
}

// defaultChangeSetID anchors an event to a (source, project, day) bucket.
// Ingestion paths that know a better anchor (e.g. an upstream ECN id)
// supply their own via the params' ChangeSetID.
func defaultChangeSetID(ev Event) string {
	source := ev.SourceSystem
	if source == "" {
		source = "opal"
	}
	day := ev.Timestamp
	if len(day) >= 10 {
		day = day[:10]
	}
	return fmt.Sprintf("%s:%s:%s", source, ev.ProjectID, day)
}

// GetHistory returns raw events for the given entities, newest first, plus
// a flattened human-readable timeline. since (RFC3339) and limit are
// optional; a zero limit defaults to 100.
func (s *Store) GetHistory(entityIDs []string, since string, limit int) (*HistoryResult, error) {
	if len(entityIDs) == 0 {
		return nil, Invalidf("at least one entity id is required")
	}
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT seq, id, project_id, source_system, entity_type, entity_id,
		       event_type, change_set_id, diff, created_at
		FROM events
		WHERE entity_id IN (` + placeholders(len(entityIDs)) + `)`
	var args []any
	for _, id := range entityIDs {
		args = append(args, id)
	}
	if since != "" {
		query += " AND created_at >= ?"
		args = append(args, since)
	}
	query += " ORDER BY seq DESC LIMIT ?"
	args = append(args, limit)

	events, err := s.queryEvents(query, args...)
	if err != nil {
		return nil, err
	}

	result := &HistoryResult{Events: events, Total: len(events)}
	for _, ev := range events {
		result.Timeline = append(result.Timeline, formatEventLine(ev))
	}
	return result, nil
}

// eventsForChangeSets returns all events in the project grouped by their
// change-set anchor, oldest first within each group.
func (s *Store) eventsForChangeSets(projectID string) (map[string][]Event, error) {
	events, err := s.queryEvents(
		`SELECT seq, id, project_id, source_system, entity_type, entity_id,
		        event_type, change_set_id, diff, created_at
		 FROM events WHERE project_id = ? ORDER BY seq`,
		projectID,
	)
	if err != nil {
		return nil, err
	}
	grouped := make(map[string][]Event)
	for _, ev := range events {
		grouped[ev.ChangeSetID] = append(grouped[ev.ChangeSetID], ev)
	}
	return grouped, nil
}

func (s *Store) queryEvents(query string, args ...any) ([]Event, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		var diff string
		if err := rows.Scan(
			&ev.Seq, &ev.ID, &ev.ProjectID, &ev.SourceSystem, &ev.EntityType,
			&ev.EntityID, &ev.EventType, &ev.ChangeSetID, &diff, &ev.Timestamp,
		); err != nil {
			return nil, err
		}
		ev.Diff = decodeDiff(diff)
		events = append(events, ev)
	}
	return events, rows.Err()
}

func decodeDiff(s string) DiffPayload {
	var d DiffPayload
	if s != "" && s != "{}" {
		_ = json.Unmarshal([]byte(s), &d)
	}
	return d
}

// formatEventLine renders one event as a timeline entry like
// "2025-03-02T10:11:12Z  node a1b2c3d4 status_changed (status)".
func formatEventLine(ev Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s  %s %s %s", ev.Timestamp, ev.EntityType, shortID(ev.EntityID), ev.EventType)

	switch ev.EventType {
	case EventLinked, EventUnlinked:
		from, _ := ev.Diff.After["from_node_id"].(string)
		to, _ := ev.Diff.After["to_node_id"].(string)
		rel, _ := ev.Diff.After["relation_type"].(string)
		if from == "" {
			from, _ = ev.Diff.Before["from_node_id"].(string)
			to, _ = ev.Diff.Before["to_node_id"].(string)
			rel, _ = ev.Diff.Before["relation_type"].(string)
		}
		if rel != "" {
			fmt.Fprintf(&b, " (%s: %s → %s)", rel, shortID(from), shortID(to))
		}
	default:
		if len(ev.Diff.FieldsChanged) > 0 {
			fmt.Fprintf(&b, " (%s)", strings.Join(ev.Diff.FieldsChanged, ", "))
		}
	}
	return b.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
