package graph

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// Publisher receives best-effort notifications after a mutation commits.
// Failures are logged by implementations and never propagate to callers;
// core correctness does not depend on delivery.
type Publisher interface {
	Publish(subject string, payload any)
}

// Config holds graph store configuration.
type Config struct {
	DataDir string
	// Publisher is optional; nil disables outbound notifications.
	Publisher Publisher
}

// DefaultConfig returns the default store configuration.
func DefaultConfig() Config {
	home, _ := os.UserHomeDir()
	return Config{DataDir: filepath.Join(home, ".opal")}
}

// Store is the knowledge graph engine backed by SQLite.
// All mutations are transactional: the entity change and its audit event
// commit together or not at all.
type Store struct {
	db  *sql.DB
	cfg Config
}

// New creates a Store: creates the data directory if needed, opens SQLite
// with WAL mode, and runs migrations.
func New(cfg Config) (*Store, error) {
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, fmt.Errorf("graph: create data dir: %w", err)
	}

	dbPath := filepath.Join(cfg.DataDir, "graph.db")
	db, err := openDB("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("graph: open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, fmt.Errorf("graph: pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db, cfg: cfg}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("graph: migration: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ─── Migrations ──────────────────────────────────────────────────────────────

func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS nodes (
			id            TEXT PRIMARY KEY,
			project_id    TEXT NOT NULL,
			type          TEXT NOT NULL,
			title         TEXT NOT NULL,
			description   TEXT NOT NULL DEFAULT '',
			status        TEXT NOT NULL DEFAULT '',
			owner         TEXT NOT NULL DEFAULT '',
			metadata      TEXT NOT NULL DEFAULT '{}',
			external_refs TEXT NOT NULL DEFAULT '[]',
			provenance    TEXT NOT NULL DEFAULT '{}',
			created_by    TEXT NOT NULL DEFAULT '',
			created_at    TEXT NOT NULL,
			updated_at    TEXT NOT NULL,
			deleted_at    TEXT,
			version       INTEGER NOT NULL DEFAULT 1
		);

		CREATE INDEX IF NOT EXISTS idx_nodes_project ON nodes(project_id);
		CREATE INDEX IF NOT EXISTS idx_nodes_type    ON nodes(project_id, type);
		CREATE INDEX IF NOT EXISTS idx_nodes_status  ON nodes(project_id, status);
		CREATE INDEX IF NOT EXISTS idx_nodes_deleted ON nodes(deleted_at);

		CREATE TABLE IF NOT EXISTS edges (
			id             TEXT PRIMARY KEY,
			project_id     TEXT NOT NULL,
			from_node_id   TEXT NOT NULL,
			to_node_id     TEXT NOT NULL,
			relation_type  TEXT NOT NULL,
			weight         REAL NOT NULL DEFAULT 1.0,
			directionality TEXT NOT NULL DEFAULT 'directed',
			provenance     TEXT NOT NULL DEFAULT '{}',
			created_at     TEXT NOT NULL,
			updated_at     TEXT NOT NULL,
			deleted_at     TEXT,
			FOREIGN KEY (from_node_id) REFERENCES nodes(id),
			FOREIGN KEY (to_node_id)   REFERENCES nodes(id)
		);

		CREATE INDEX IF NOT EXISTS idx_edges_project  ON edges(project_id);
		CREATE INDEX IF NOT EXISTS idx_edges_from     ON edges(from_node_id, relation_type);
		CREATE INDEX IF NOT EXISTS idx_edges_to       ON edges(to_node_id, relation_type);
		CREATE INDEX IF NOT EXISTS idx_edges_relation ON edges(project_id, relation_type);

		CREATE TABLE IF NOT EXISTS events (
			seq           INTEGER PRIMARY KEY AUTOINCREMENT,
			id            TEXT NOT NULL UNIQUE,
			project_id    TEXT NOT NULL,
			source_system TEXT NOT NULL DEFAULT '',
			entity_type   TEXT NOT NULL,
			entity_id     TEXT NOT NULL,
			event_type    TEXT NOT NULL,
			change_set_id TEXT NOT NULL DEFAULT '',
			diff          TEXT NOT NULL DEFAULT '{}',
			created_at    TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_events_project   ON events(project_id, seq);
		CREATE INDEX IF NOT EXISTS idx_events_entity    ON events(entity_id, seq);
		CREATE INDEX IF NOT EXISTS idx_events_changeset ON events(change_set_id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return nil
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// Now returns the current UTC time in RFC3339, the timestamp format used
// across the store.
func Now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// encodeJSON marshals v for storage, falling back to the given zero literal.
// Metadata stays a typed map in the domain layer; JSON exists only at this
// boundary.
func encodeJSON(v any, zero string) string {
	if v == nil {
		return zero
	}
	b, err := json.Marshal(v)
	if err != nil {
		return zero
	}
	return string(b)
}

func decodeMeta(s string) map[string]any {
	if s == "" || s == "{}" {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil
	}
	return m
}

func decodeRefs(s string) []ExternalRef {
	if s == "" || s == "[]" {
		return nil
	}
	var refs []ExternalRef
	if err := json.Unmarshal([]byte(s), &refs); err != nil {
		return nil
	}
	return refs
}

func decodeProvenance(s string) Provenance {
	var p Provenance
	if s != "" {
		_ = json.Unmarshal([]byte(s), &p)
	}
	return p
}

// publish sends a best-effort notification if a publisher is configured.
func (s *Store) publish(ev Event) {
	if s.cfg.Publisher == nil {
		return
	}
	subject := fmt.Sprintf("opal.events.%s.%s", ev.ProjectID, ev.EventType)
	s.cfg.Publisher.Publish(subject, ev)
}
