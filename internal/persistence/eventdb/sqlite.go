// Package eventdb stores the shared global event log and the config blob
// table in SQLite. The autoincrement event id doubles as the submission
// order the replay engine sorts by.
package eventdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Heigvd/mimms-sub001/internal/protocol"
)

type SQLiteStore struct {
	db *sql.DB
}

func Open(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			time INTEGER NOT NULL,
			actor INTEGER NOT NULL,
			forced INTEGER NOT NULL DEFAULT 0,
			kind TEXT NOT NULL,
			payload BLOB NOT NULL,
			submitted_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS blobs (
			key TEXT PRIMARY KEY,
			value BLOB NOT NULL,
			updated_at TEXT NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

// SubmitEvent appends the event and returns the assigned id.
func (s *SQLiteStore) SubmitEvent(ctx context.Context, ev protocol.GlobalEvent) (uint64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO events (time, actor, forced, kind, payload, submitted_at) VALUES (?, ?, ?, ?, ?, ?)`,
		ev.Time, ev.Actor, boolInt(ev.Forced), ev.Kind, []byte(ev.Payload),
		time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("eventdb: insert event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("eventdb: last insert id: %w", err)
	}
	return uint64(id), nil
}

// FetchAllEvents returns the whole log in submission order.
func (s *SQLiteStore) FetchAllEvents(ctx context.Context) ([]protocol.GlobalEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, time, actor, forced, kind, payload FROM events ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("eventdb: fetch events: %w", err)
	}
	defer rows.Close()

	var out []protocol.GlobalEvent
	for rows.Next() {
		var ev protocol.GlobalEvent
		var forced int
		var payload []byte
		if err := rows.Scan(&ev.ID, &ev.Time, &ev.Actor, &forced, &ev.Kind, &payload); err != nil {
			return nil, fmt.Errorf("eventdb: scan event: %w", err)
		}
		ev.Forced = forced != 0
		ev.Payload = payload
		out = append(out, ev)
	}
	return out, rows.Err()
}

// ReadConfigBlob returns nil with no error when the key is absent.
func (s *SQLiteStore) ReadConfigBlob(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM blobs WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("eventdb: read blob %q: %w", key, err)
	}
	return value, nil
}

func (s *SQLiteStore) WriteConfigBlob(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO blobs (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("eventdb: write blob %q: %w", key, err)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
