// Package store keeps a SQLite index of appended activity records so
// UIs can query recent activity without parsing the NDJSON journal.
// The journal stays the durable source of truth; the index is written
// best-effort after each append.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite" // CGO-free SQLite

	"github.com/clicktrail/clicktrail/internal/event"
)

const defaultLimit = 100

type Store struct {
	db *sql.DB
}

// Open creates the index database at path, creating parent directories
// and the schema as needed.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("store: create parent dir: %w", err)
		}
	}

	// WAL + busy timeout to avoid "database is locked" when the HTTP
	// query path races the append path.
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS activity(
	  id              INTEGER PRIMARY KEY,
	  ts_utc          TEXT    NOT NULL,
	  x               INTEGER NOT NULL,
	  y               INTEGER NOT NULL,
	  app_name        TEXT    NOT NULL DEFAULT '',
	  process_id      INTEGER NOT NULL DEFAULT 0,
	  window_title    TEXT    NOT NULL DEFAULT '',
	  display_id      INTEGER NOT NULL DEFAULT 0,
	  source          TEXT    NOT NULL CHECK (source IN ('os','external','merged')),
	  url_or_path     TEXT    NOT NULL DEFAULT '',
	  doc_path        TEXT    NOT NULL DEFAULT '',
	  text            TEXT    NOT NULL DEFAULT '',
	  screenshot_path TEXT    NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_activity_ts     ON activity(ts_utc);
	CREATE INDEX IF NOT EXISTS idx_activity_source ON activity(source);
	`)
	if err != nil {
		return fmt.Errorf("store: create tables: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func validate(rec event.ActivityRecord) error {
	if rec.TimestampUTC == "" {
		return fmt.Errorf("timestamp cannot be empty")
	}
	switch rec.Source {
	case event.SourceOS, event.SourceExternal, event.SourceMerged:
		return nil
	default:
		return fmt.Errorf("invalid source %q", rec.Source)
	}
}

// Insert adds one record to the index.
func (s *Store) Insert(rec event.ActivityRecord) error {
	if err := validate(rec); err != nil {
		return fmt.Errorf("store: invalid record: %w", err)
	}
	_, err := s.db.Exec(`
	INSERT INTO activity(ts_utc, x, y, app_name, process_id, window_title, display_id,
	                     source, url_or_path, doc_path, text, screenshot_path)
	VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`,
		rec.TimestampUTC, rec.X, rec.Y, rec.AppName, rec.ProcessID, rec.WindowTitle,
		rec.DisplayID, string(rec.Source), rec.URLOrPath, rec.DocPath, rec.Text,
		rec.ScreenshotPath)
	if err != nil {
		return fmt.Errorf("store: insert: %w", err)
	}
	return nil
}

// Query filters Recent. Zero values mean "no filter"; Limit <= 0 falls
// back to the default page size.
type Query struct {
	Limit  int
	Source event.Source
	Since  string // inclusive lower bound on the record timestamp
}

// Recent returns matching records newest-first. Timestamps are
// fixed-width, so lexicographic ORDER BY is chronological.
func (s *Store) Recent(q Query) ([]event.ActivityRecord, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	var (
		where []string
		args  []any
	)
	if q.Source != "" {
		where = append(where, "source = ?")
		args = append(args, string(q.Source))
	}
	if q.Since != "" {
		where = append(where, "ts_utc >= ?")
		args = append(args, q.Since)
	}

	stmt := `SELECT ts_utc, x, y, app_name, process_id, window_title, display_id,
	                source, url_or_path, doc_path, text, screenshot_path
	         FROM activity`
	if len(where) > 0 {
		stmt += " WHERE " + strings.Join(where, " AND ")
	}
	stmt += " ORDER BY ts_utc DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query: %w", err)
	}
	defer rows.Close()

	var recs []event.ActivityRecord
	for rows.Next() {
		var (
			rec event.ActivityRecord
			src string
		)
		if err := rows.Scan(&rec.TimestampUTC, &rec.X, &rec.Y, &rec.AppName,
			&rec.ProcessID, &rec.WindowTitle, &rec.DisplayID, &src,
			&rec.URLOrPath, &rec.DocPath, &rec.Text, &rec.ScreenshotPath); err != nil {
			return nil, fmt.Errorf("store: scan row: %w", err)
		}
		rec.Source = event.Source(src)
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate rows: %w", err)
	}
	return recs, nil
}

// Count reports the number of indexed records.
func (s *Store) Count() (int64, error) {
	var n int64
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM activity`).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count: %w", err)
	}
	return n, nil
}
