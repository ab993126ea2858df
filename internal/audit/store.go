// Package audit records who changed what: config writes, deploys and
// load balancer pool edits. Events are kept in SQLite and pruned after a
// retention period.
package audit

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"grimm.is/ngxweb/internal/clock"

	_ "modernc.org/sqlite"
)

// Actions recorded by ngxweb.
const (
	ActionConfigCreate   = "config.create"
	ActionConfigUpdate   = "config.update"
	ActionConfigDelete   = "config.delete"
	ActionConfigDeploy   = "config.deploy"
	ActionConfigValidate = "config.validate"
	ActionServerAdd      = "server.add"
	ActionServerUpdate   = "server.update"
	ActionServerRemove   = "server.remove"
)

// Event represents a single audit log entry.
type Event struct {
	ID        int64          `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Actor     string         `json:"actor"`
	Action    string         `json:"action"`
	Resource  string         `json:"resource"`
	Details   map[string]any `json:"details,omitempty"`
	Status    int            `json:"status"`
	IP        string         `json:"ip,omitempty"`
}

// Filter narrows a Query. Zero fields match everything.
type Filter struct {
	Since    time.Time
	Until    time.Time
	Action   string
	Actor    string
	Resource string
	Limit    int
}

// Recorder accepts audit events.
type Recorder interface {
	Write(evt Event) error
}

// Store provides persistent storage for audit events.
type Store struct {
	mu            sync.RWMutex
	db            *sql.DB
	clock         clock.Clock
	retentionDays int
}

// Options configures a Store.
type Options struct {
	Path          string // ":memory:" for in-memory
	RetentionDays int    // defaults to 90
	Clock         clock.Clock
}

// NewStore opens the audit database described by opts.
func NewStore(opts Options) (*Store, error) {
	if opts.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(opts.Path), 0o750); err != nil {
			return nil, fmt.Errorf("create audit dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", opts.Path)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	if opts.Path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS audit_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp INTEGER NOT NULL,
			actor TEXT NOT NULL,
			action TEXT NOT NULL,
			resource TEXT NOT NULL,
			details TEXT,
			status INTEGER DEFAULT 0,
			ip TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_events(timestamp);
		CREATE INDEX IF NOT EXISTS idx_audit_action ON audit_events(action);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create audit table: %w", err)
	}

	retention := opts.RetentionDays
	if retention <= 0 {
		retention = 90
	}

	return &Store{
		db:            db,
		clock:         clock.Or(opts.Clock),
		retentionDays: retention,
	}, nil
}

// Write persists an audit event. A zero timestamp is set to now.
func (s *Store) Write(evt Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if evt.Timestamp.IsZero() {
		evt.Timestamp = s.clock.Now()
	}
	if evt.Actor == "" {
		evt.Actor = "anonymous"
	}

	var details sql.NullString
	if len(evt.Details) > 0 {
		data, err := json.Marshal(evt.Details)
		if err != nil {
			data = []byte("{}")
		}
		details = sql.NullString{String: string(data), Valid: true}
	}

	_, err := s.db.Exec(`
		INSERT INTO audit_events (timestamp, actor, action, resource, details, status, ip)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, evt.Timestamp.UnixNano(), evt.Actor, evt.Action, evt.Resource, details, evt.Status, evt.IP)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// Query returns events matching f, newest first.
func (s *Store) Query(f Filter) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, timestamp, actor, action, resource, details, status, ip
		FROM audit_events WHERE 1=1`
	var args []any

	if !f.Since.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, f.Since.UnixNano())
	}
	if !f.Until.IsZero() {
		query += " AND timestamp <= ?"
		args = append(args, f.Until.UnixNano())
	}
	if f.Action != "" {
		query += " AND action = ?"
		args = append(args, f.Action)
	}
	if f.Actor != "" {
		query += " AND actor = ?"
		args = append(args, f.Actor)
	}
	if f.Resource != "" {
		query += " AND resource = ?"
		args = append(args, f.Resource)
	}

	query += " ORDER BY timestamp DESC, id DESC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		var (
			evt     Event
			ts      int64
			details sql.NullString
			ip      sql.NullString
		)
		if err := rows.Scan(&evt.ID, &ts, &evt.Actor, &evt.Action, &evt.Resource, &details, &evt.Status, &ip); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		evt.Timestamp = time.Unix(0, ts).UTC()
		evt.IP = ip.String
		if details.Valid && details.String != "" {
			_ = json.Unmarshal([]byte(details.String), &evt.Details)
		}
		events = append(events, evt)
	}
	return events, rows.Err()
}

// Prune removes events older than the retention period.
func (s *Store) Prune() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.clock.Now().AddDate(0, 0, -s.retentionDays)
	result, err := s.db.Exec("DELETE FROM audit_events WHERE timestamp < ?", cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("prune audit events: %w", err)
	}
	return result.RowsAffected()
}

// Count returns the total number of events in the store.
func (s *Store) Count() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	err := s.db.QueryRow("SELECT COUNT(*) FROM audit_events").Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Discard is a Recorder that drops every event.
type Discard struct{}

// Write implements Recorder.
func (Discard) Write(Event) error { return nil }
