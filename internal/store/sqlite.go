package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps one row per line. The days table remembers cleared days
// so that a summarized day stays present with zero lines.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.configure(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) configure() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("sqlite pragma %q: %w", p, err)
		}
	}
	return nil
}

func (s *SQLiteStore) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS days (
			day TEXT PRIMARY KEY
		)`,
		`CREATE TABLE IF NOT EXISTS day_lines (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			day TEXT NOT NULL REFERENCES days(day),
			line TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_day_lines_day ON day_lines(day, id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) Day(day string) ([]string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var exists int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM days WHERE day = ?`, day).Scan(&exists); err != nil {
		return nil, false, fmt.Errorf("lookup day: %w", err)
	}

	rows, err := s.db.Query(`SELECT line FROM day_lines WHERE day = ? ORDER BY id ASC`, day)
	if err != nil {
		return nil, false, fmt.Errorf("load day: %w", err)
	}
	defer rows.Close()

	lines := []string{}
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return nil, false, fmt.Errorf("scan line: %w", err)
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("iterate lines: %w", err)
	}
	return lines, exists > 0, nil
}

func (s *SQLiteStore) Append(day, line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`INSERT OR IGNORE INTO days(day) VALUES (?)`, day); err != nil {
		return fmt.Errorf("insert day: %w", err)
	}
	if _, err := tx.Exec(`INSERT INTO day_lines(day, line) VALUES (?, ?)`, day, line); err != nil {
		return fmt.Errorf("insert line: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Clear(day string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin clear: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`INSERT OR IGNORE INTO days(day) VALUES (?)`, day); err != nil {
		return fmt.Errorf("insert day: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM day_lines WHERE day = ?`, day); err != nil {
		return fmt.Errorf("delete lines: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit clear: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Days() ([]DayCount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT d.day, COUNT(l.id)
		FROM days d LEFT JOIN day_lines l ON l.day = d.day
		GROUP BY d.day
		ORDER BY d.day ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list days: %w", err)
	}
	defer rows.Close()

	var out []DayCount
	for rows.Next() {
		var dc DayCount
		if err := rows.Scan(&dc.Day, &dc.Lines); err != nil {
			return nil, fmt.Errorf("scan day: %w", err)
		}
		out = append(out, dc)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
