// Package telemetry persists cumulative collaboration-engine counters and
// a session lifecycle audit trail, surviving process restarts.
package telemetry

import (
	"database/sql"
	"embed"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is the durable side of the metrics subsystem. It is intentionally
// separate from the event log (internal/eventlog): the event log is the
// source of truth for scene state, this is an operational record that can
// be rebuilt or discarded without affecting correctness.
type Store struct {
	db *sql.DB
}

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open telemetry db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) DB() *sql.DB {
	return s.db
}

// AppendSessionEvent records a session lifecycle event (session_spawned,
// session_removed, user_joined, user_left) for operator forensics.
func (s *Store) AppendSessionEvent(sessionID, event, userID string, detail *string) error {
	_, err := s.db.Exec(
		"INSERT INTO session_events (session_id, event, user_id, detail) VALUES (?, ?, ?, ?)",
		sessionID, event, userID, detail,
	)
	if err != nil {
		return fmt.Errorf("append session event: %w", err)
	}
	return nil
}

// SessionEvent is a single row from the session_events audit table.
type SessionEvent struct {
	ID        int64
	SessionID string
	Event     string
	UserID    string
	Detail    *string
	CreatedAt time.Time
}

// ListSessionEvents returns the audit trail for one session, oldest first.
func (s *Store) ListSessionEvents(sessionID string) ([]*SessionEvent, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, event, user_id, detail, created_at
		 FROM session_events WHERE session_id = ? ORDER BY id`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list session events: %w", err)
	}
	defer rows.Close()

	var out []*SessionEvent
	for rows.Next() {
		e := &SessionEvent{}
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Event, &e.UserID, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan session event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// SyncCounters persists the current cumulative counter values. Called
// periodically (see telemetry.Recorder); last-write-wins since it is a
// full snapshot of in-memory atomics, not an accumulation.
func (s *Store) SyncCounters(counters map[string]int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	for name, val := range counters {
		if _, err := tx.Exec(
			`INSERT INTO counters (name, value, updated_at) VALUES (?, ?, datetime('now'))
			 ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			name, val,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("sync counter %s: %w", name, err)
		}
	}
	return tx.Commit()
}

// LoadCounters returns the last persisted counter values, e.g. for
// continuity of messages_in_total across a restart.
func (s *Store) LoadCounters() (map[string]int64, error) {
	rows, err := s.db.Query("SELECT name, value FROM counters")
	if err != nil {
		return nil, fmt.Errorf("load counters: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var name string
		var val int64
		if err := rows.Scan(&name, &val); err != nil {
			return nil, fmt.Errorf("scan counter: %w", err)
		}
		out[name] = val
	}
	return out, rows.Err()
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, f := range files {
		var applied int
		err := s.db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = ?", f).Scan(&applied)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", f, err)
		}
		if applied > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + f)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", f, err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin tx for %s: %w", f, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("exec migration %s: %w", f, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", f); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %s: %w", f, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", f, err)
		}
	}
	return nil
}
