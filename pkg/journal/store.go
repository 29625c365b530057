package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// Record is one observed stream event. Payload is the delta text for
// delta records and the raw JSON for tool calls and malformed frames.
type Record struct {
	ID        int64
	SessionID string
	TsMs      int64
	Kind      string
	Payload   string
}

const (
	KindSubmit    = "submit"
	KindDelta     = "delta"
	KindToolCall  = "tool_call"
	KindMalformed = "malformed"
	KindResolved  = "resolved"
	KindFailed    = "failed"
)

// Store is an append-only sqlite journal of stream events, kept for
// diagnostics. Nothing in the chat path reads it back.
type Store struct {
	db *sql.DB
}

// DSNForFile builds the sqlite DSN for a journal file.
func DSNForFile(path string) (string, error) {
	if path == "" {
		return "", errors.New("journal: empty path")
	}
	// WAL for concurrent readers + writer. busy_timeout to avoid transient SQLITE_BUSY.
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path), nil
}

// NewStore opens (and migrates) the journal at path.
func NewStore(path string) (*Store, error) {
	dsn, err := DSNForFile(path)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "journal: open database")
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS stream_events (
		  id INTEGER PRIMARY KEY AUTOINCREMENT,
		  session_id TEXT NOT NULL,
		  ts_ms INTEGER NOT NULL,
		  kind TEXT NOT NULL,
		  payload TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS stream_events_by_session
		  ON stream_events(session_id, id);`,
	}
	for _, st := range stmts {
		if _, err := s.db.Exec(st); err != nil {
			return errors.Wrap(err, "journal: migrate")
		}
	}
	return nil
}

// Append writes one record. The timestamp is filled in when zero.
func (s *Store) Append(ctx context.Context, record Record) error {
	if s == nil || s.db == nil {
		return errors.New("journal: db is nil")
	}
	if record.SessionID == "" {
		return errors.New("journal: session id is empty")
	}
	if record.Kind == "" {
		return errors.New("journal: kind is empty")
	}
	if record.TsMs == 0 {
		record.TsMs = time.Now().UnixMilli()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stream_events (session_id, ts_ms, kind, payload)
		VALUES (?, ?, ?, ?)
	`, record.SessionID, record.TsMs, record.Kind, record.Payload)
	return errors.Wrap(err, "journal: append")
}

// List returns up to limit records for a session in append order.
func (s *Store) List(ctx context.Context, sessionID string, limit int) ([]Record, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("journal: db is nil")
	}
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, ts_ms, kind, payload
		FROM stream_events
		WHERE session_id = ?
		ORDER BY id ASC
		LIMIT ?
	`, sessionID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "journal: list")
	}
	defer func() { _ = rows.Close() }()

	records := make([]Record, 0, limit)
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.SessionID, &r.TsMs, &r.Kind, &r.Payload); err != nil {
			return nil, errors.Wrap(err, "journal: scan record")
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "journal: iterate records")
	}
	return records, nil
}
