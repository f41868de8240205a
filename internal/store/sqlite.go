package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteStore is the SQLite-backed track catalog.
type SQLiteStore struct {
	db          *sql.DB
	path        string
	snapshotDir string
}

// Option configures a SQLiteStore.
type Option func(*SQLiteStore)

// WithSnapshotDir sets where GenerateSnapshot writes catalog copies.
// Defaults to a "snapshots" directory next to the database file.
func WithSnapshotDir(dir string) Option {
	return func(s *SQLiteStore) {
		s.snapshotDir = dir
	}
}

// NewSQLiteStore opens the catalog at dbPath and applies connection pragmas.
// It does not touch the schema; callers bring it current through the
// migration engine before reading tracks.
func NewSQLiteStore(dbPath string, opts ...Option) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dbPath != ":memory:" && dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// An in-memory database exists per connection.
	db.SetMaxOpenConns(1)

	if err := enablePragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable pragmas: %w", err)
	}

	s := &SQLiteStore{
		db:          db,
		path:        dbPath,
		snapshotDir: filepath.Join(filepath.Dir(dbPath), "snapshots"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// enablePragmas sets SQLite pragmas for performance and safety.
func enablePragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// DB exposes the underlying handle for tests and maintenance commands.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// conn is the subset shared by *sql.DB and *sql.Tx.
type conn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// querier implements Querier over either the pool or an open transaction.
type querier struct {
	c conn
}

func (q querier) Count(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	if err := q.c.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

func (q querier) ScalarString(ctx context.Context, query string, args ...any) (string, error) {
	var v sql.NullString
	err := q.c.QueryRowContext(ctx, query, args...).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNoRows
	}
	if err != nil {
		return "", fmt.Errorf("scalar: %w", err)
	}
	return v.String, nil
}

func (q querier) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := q.c.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("exec: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// Count implements Querier.
func (s *SQLiteStore) Count(ctx context.Context, query string, args ...any) (int, error) {
	return querier{s.db}.Count(ctx, query, args...)
}

// ScalarString implements Querier.
func (s *SQLiteStore) ScalarString(ctx context.Context, query string, args ...any) (string, error) {
	return querier{s.db}.ScalarString(ctx, query, args...)
}

// Exec implements Querier.
func (s *SQLiteStore) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	return querier{s.db}.Exec(ctx, query, args...)
}

// InTx runs fn inside one transaction. The transaction commits when fn
// returns nil and rolls back otherwise.
func (s *SQLiteStore) InTx(ctx context.Context, fn func(q Querier) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(querier{tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
