// Package storage persists the clipboard history in SQLite.
package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"screen-ocr-clip/src/history"
	"screen-ocr-clip/src/storage/migrations"
)

// Store is a history.Store backed by a single SQLite file.
type Store struct {
	db   *sql.DB
	path string
}

var _ history.Store = (*Store)(nil)

// Open creates or opens the database at path and applies pending migrations.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Path() string { return s.path }

func (s *Store) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var current int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	var upFiles []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".up.sql") {
			upFiles = append(upFiles, e.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= current {
			continue
		}
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}
	return nil
}

// Load returns the stored entries newest first.
func (s *Store) Load(ctx context.Context) ([]history.Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT content, kind, created_at FROM history_entries ORDER BY seq DESC")
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var out []history.Entry
	for rows.Next() {
		var (
			content, kind string
			created       int64
		)
		if err := rows.Scan(&content, &kind, &created); err != nil {
			return nil, fmt.Errorf("scanning history row: %w", err)
		}
		out = append(out, history.Entry{
			Content:   content,
			Kind:      history.ParseKind(kind),
			Timestamp: time.UnixMilli(created),
		})
	}
	return out, rows.Err()
}

// Put records e as the newest entry and trims the table to capacity in one
// transaction. Entries written by other processes are kept.
func (s *Store) Put(ctx context.Context, e history.Entry, capacity int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, "DELETE FROM history_entries WHERE content = ?", e.Content); err != nil {
		return fmt.Errorf("replacing history entry: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO history_entries (content, kind, created_at) VALUES (?, ?, ?)",
		e.Content, string(e.Kind), e.Timestamp.UnixMilli()); err != nil {
		return fmt.Errorf("inserting history entry: %w", err)
	}
	if capacity > 0 {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM history_entries WHERE seq NOT IN (
				SELECT seq FROM history_entries ORDER BY seq DESC LIMIT ?
			)`, capacity); err != nil {
			return fmt.Errorf("trimming history: %w", err)
		}
	}
	return tx.Commit()
}

func (s *Store) Delete(ctx context.Context, content string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM history_entries WHERE content = ?", content); err != nil {
		return fmt.Errorf("deleting history entry: %w", err)
	}
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM history_entries"); err != nil {
		return fmt.Errorf("clearing history: %w", err)
	}
	return nil
}
