// Package history persists an append-only audit log of dispatch attempts
// and terminal outcomes in a project-local SQLite database. The coordinator
// only writes to it; reads are for operators (relay history).
package history

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/arihanv/relay/pkg/models"
)

// DefaultPath returns the project-local database path.
func DefaultPath(projectRoot string) string {
	return filepath.Join(projectRoot, ".relay", "history.db")
}

// Entry is one recorded dispatch or terminal event.
type Entry struct {
	ID         int64     `json:"id"`
	TaskID     string    `json:"task_id"`
	Identifier string    `json:"identifier"`
	Event      string    `json:"event"`
	Platform   string    `json:"platform"`
	Worker     int       `json:"worker"`
	Success    bool      `json:"success"`
	Detail     string    `json:"detail"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store wraps the SQLite connection. WAL mode keeps operator reads from
// blocking the coordinator's writes.
type Store struct {
	conn *sql.DB
	path string
	mu   sync.Mutex
}

// Open opens (and migrates) the history database at path, creating parent
// directories as needed.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	s := &Store{conn: conn, path: path}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) migrate() error {
	_, err := s.conn.Exec(`
		CREATE TABLE IF NOT EXISTS dispatch_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			task_id TEXT NOT NULL,
			identifier TEXT NOT NULL DEFAULT '',
			event TEXT NOT NULL,
			platform TEXT NOT NULL DEFAULT '',
			worker INTEGER NOT NULL DEFAULT 0,
			success INTEGER NOT NULL DEFAULT 0,
			detail TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_dispatch_log_task ON dispatch_log(task_id);
	`)
	if err != nil {
		return fmt.Errorf("migrate history schema: %w", err)
	}
	return nil
}

// RecordDispatch appends a dispatch attempt's outcome. The log is advisory;
// write failures are logged, never propagated into the dispatch path.
func (s *Store) RecordDispatch(taskID, identifier string, res models.DispatchResult) {
	s.append(Entry{
		TaskID:     taskID,
		Identifier: identifier,
		Event:      "dispatch",
		Platform:   string(res.Platform),
		Worker:     res.Worker,
		Success:    res.Success,
		Detail:     res.Error,
	})
}

// RecordTerminal appends a task's terminal outcome.
func (s *Store) RecordTerminal(taskID string, success bool) {
	s.append(Entry{TaskID: taskID, Event: "terminal", Success: success})
}

func (s *Store) append(e Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.conn.Exec(`
		INSERT INTO dispatch_log (task_id, identifier, event, platform, worker, success, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.TaskID, e.Identifier, e.Event, e.Platform, e.Worker, e.Success, e.Detail)
	if err != nil {
		log.Printf("[history] append %s/%s: %v", e.TaskID, e.Event, err)
	}
}

// Recent returns the newest entries, most recent first.
func (s *Store) Recent(limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.conn.Query(`
		SELECT id, task_id, identifier, event, platform, worker, success, detail, created_at
		FROM dispatch_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// ForTask returns a task's entries in insertion order.
func (s *Store) ForTask(taskID string) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.conn.Query(`
		SELECT id, task_id, identifier, event, platform, worker, success, detail, created_at
		FROM dispatch_log WHERE task_id = ? ORDER BY id`, taskID)
	if err != nil {
		return nil, fmt.Errorf("query history for %s: %w", taskID, err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.TaskID, &e.Identifier, &e.Event, &e.Platform,
			&e.Worker, &e.Success, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
