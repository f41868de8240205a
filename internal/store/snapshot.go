package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// SnapshotFile is the name of the current catalog snapshot inside the snapshot directory.
const SnapshotFile = "catalog.snapshot.db"

// GenerateSnapshot writes a consistent copy of the catalog with VACUUM INTO
// and atomically replaces the previous snapshot.
func (s *SQLiteStore) GenerateSnapshot(ctx context.Context) error {
	if err := os.MkdirAll(s.snapshotDir, 0755); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}

	tmp := s.snapshotPath() + ".tmp"
	// VACUUM INTO refuses to overwrite an existing file.
	if err := os.Remove(tmp); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale snapshot: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", tmp); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("vacuum into snapshot: %w", err)
	}

	if err := os.Rename(tmp, s.snapshotPath()); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("publish snapshot: %w", err)
	}
	return nil
}

// GetSnapshotPath returns the current snapshot path, or ErrNotFound when
// no snapshot has been generated yet.
func (s *SQLiteStore) GetSnapshotPath(ctx context.Context) (string, error) {
	p := s.snapshotPath()
	if _, err := os.Stat(p); err != nil {
		if os.IsNotExist(err) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("stat snapshot: %w", err)
	}
	return p, nil
}

func (s *SQLiteStore) snapshotPath() string {
	return filepath.Join(s.snapshotDir, SnapshotFile)
}
