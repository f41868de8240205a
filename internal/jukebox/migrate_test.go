package jukebox

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/hyperengineering/jukebox/internal/store"
)

// countingDB wraps a real catalog and counts statements that may mutate it.
type countingDB struct {
	inner *store.SQLiteStore

	mu    sync.Mutex
	execs int
	txs   int
}

func (c *countingDB) Count(ctx context.Context, q string, args ...any) (int, error) {
	return c.inner.Count(ctx, q, args...)
}

func (c *countingDB) ScalarString(ctx context.Context, q string, args ...any) (string, error) {
	return c.inner.ScalarString(ctx, q, args...)
}

func (c *countingDB) Exec(ctx context.Context, q string, args ...any) (int64, error) {
	c.mu.Lock()
	c.execs++
	c.mu.Unlock()
	return c.inner.Exec(ctx, q, args...)
}

func (c *countingDB) InTx(ctx context.Context, fn func(q store.Querier) error) error {
	c.mu.Lock()
	c.txs++
	c.mu.Unlock()
	return c.inner.InTx(ctx, func(q store.Querier) error {
		return fn(&countingTx{parent: c, q: q})
	})
}

type countingTx struct {
	parent *countingDB
	q      store.Querier
}

func (t *countingTx) Count(ctx context.Context, q string, args ...any) (int, error) {
	return t.q.Count(ctx, q, args...)
}

func (t *countingTx) ScalarString(ctx context.Context, q string, args ...any) (string, error) {
	return t.q.ScalarString(ctx, q, args...)
}

func (t *countingTx) Exec(ctx context.Context, q string, args ...any) (int64, error) {
	t.parent.mu.Lock()
	t.parent.execs++
	t.parent.mu.Unlock()
	return t.q.Exec(ctx, q, args...)
}

func (c *countingDB) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.execs, c.txs = 0, 0
}

func openCatalog(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func mustExec(t *testing.T, s *store.SQLiteStore, query string) {
	t.Helper()
	if _, err := s.DB().Exec(query); err != nil {
		t.Fatalf("exec %q: %v", query, err)
	}
}

const legacyTracks = `CREATE TABLE tracks (
	id INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT,
	path TEXT UNIQUE, filename TEXT, title TEXT, artist TEXT, album TEXT,
	duration_label TEXT, duration_seconds INTEGER, rating INTEGER, vote INTEGER)`

func columnsOf(t *testing.T, s *store.SQLiteStore) map[string]bool {
	t.Helper()
	rows, err := s.DB().Query("SELECT name FROM pragma_table_info('tracks')")
	if err != nil {
		t.Fatal(err)
	}
	defer rows.Close()
	cols := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatal(err)
		}
		cols[name] = true
	}
	return cols
}

func version(t *testing.T, s *store.SQLiteStore) string {
	t.Helper()
	v, err := s.ScalarString(context.Background(), "SELECT value FROM config WHERE key = 'version'")
	if err != nil {
		t.Fatalf("read version: %v", err)
	}
	return v
}

func TestMigrator_EmptyStoreTakesFourSteps(t *testing.T) {
	s := openCatalog(t)
	m := NewMigrator(s)
	ctx := context.Background()

	state, err := m.State(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if state != StateUnversionedEmpty {
		t.Fatalf("State() = %v, want %v", state, StateUnversionedEmpty)
	}

	steps, err := m.Run(ctx)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if steps != 4 {
		t.Errorf("Run() steps = %d, want 4", steps)
	}

	if v := version(t, s); v != CurrentSchemaVersion {
		t.Errorf("version = %q, want %q", v, CurrentSchemaVersion)
	}
	cols := columnsOf(t, s)
	for _, c := range []string{"id", "path", "filename", "title", "artist", "album", "duration_label", "duration_seconds", "rating", "vote", "deleted", "times_played"} {
		if !cols[c] {
			t.Errorf("column %q missing after migration", c)
		}
	}
}

// Test: a current catalog is left untouched
func TestMigrator_CurrentStoreIsReadOnly(t *testing.T) {
	s := openCatalog(t)
	db := &countingDB{inner: s}
	m := NewMigrator(db)
	ctx := context.Background()

	if err := m.EnsureCurrent(ctx); err != nil {
		t.Fatal(err)
	}
	db.reset()

	for i := 0; i < 3; i++ {
		steps, err := m.Run(ctx)
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if steps != 0 {
			t.Errorf("Run() steps = %d, want 0", steps)
		}
	}
	if db.execs != 0 || db.txs != 0 {
		t.Errorf("current store saw %d statements in %d transactions, want none", db.execs, db.txs)
	}
}

func TestMigrator_LegacyRatingsAreCompacted(t *testing.T) {
	s := openCatalog(t)
	mustExec(t, s, legacyTracks)
	mustExec(t, s, `INSERT INTO tracks (id, path, rating) VALUES
		(1, '/a', 100), (2, '/b', 199), (3, '/c', 200), (4, '/d', 399),
		(5, '/e', 400), (6, '/f', 800), (7, '/g', 1600), (8, '/h', 3200),
		(9, '/i', 6400), (10, '/j', 12800), (11, '/k', NULL), (12, '/l', 50)`)

	steps, err := NewMigrator(s).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if steps != 3 {
		t.Errorf("Run() steps = %d, want 3", steps)
	}

	want := map[int64]int{1: 0, 2: 0, 3: 1, 4: 1, 5: 2, 6: 3, 7: 4, 8: 5, 9: 6, 10: 6, 11: 0, 12: 0}
	for id, r := range want {
		got, err := s.Rating(context.Background(), id)
		if err != nil {
			t.Fatalf("Rating(%d) error = %v", id, err)
		}
		if got != r {
			t.Errorf("rating of %d = %d, want %d", id, got, r)
		}
	}

	// Legacy rows survive with the new columns defaulted
	track, err := s.GetTrack(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if track.Deleted || track.TimesPlayed != 0 {
		t.Errorf("legacy row defaults = %+v", track)
	}
}

func TestMigrator_ConfigWithoutVersionRow(t *testing.T) {
	s := openCatalog(t)
	mustExec(t, s, legacyTracks)
	mustExec(t, s, "CREATE TABLE config (key TEXT NOT NULL PRIMARY KEY, value TEXT)")
	mustExec(t, s, "INSERT INTO config (key, value) VALUES ('theme', 'dark')")

	m := NewMigrator(s)
	state, err := m.State(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if state != StateUnversionedPopulated {
		t.Errorf("State() = %v, want %v", state, StateUnversionedPopulated)
	}

	if _, err := m.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if v := version(t, s); v != CurrentSchemaVersion {
		t.Errorf("version = %q, want %q", v, CurrentSchemaVersion)
	}
}

func TestMigrator_ResumesFromV2(t *testing.T) {
	s := openCatalog(t)
	mustExec(t, s, legacyTracks)
	mustExec(t, s, "ALTER TABLE tracks ADD COLUMN deleted INTEGER NOT NULL DEFAULT 0")
	mustExec(t, s, "CREATE TABLE config (key TEXT NOT NULL PRIMARY KEY, value TEXT)")
	mustExec(t, s, "INSERT INTO config (key, value) VALUES ('version', '2')")
	// A previous run added the column but never committed the marker
	mustExec(t, s, "ALTER TABLE tracks ADD COLUMN times_played INTEGER NOT NULL DEFAULT 0")

	steps, err := NewMigrator(s).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if steps != 2 {
		t.Errorf("Run() steps = %d, want 2", steps)
	}
}

func TestMigrator_UnknownVersion(t *testing.T) {
	s := openCatalog(t)
	mustExec(t, s, legacyTracks)
	mustExec(t, s, "CREATE TABLE config (key TEXT NOT NULL PRIMARY KEY, value TEXT)")
	mustExec(t, s, "INSERT INTO config (key, value) VALUES ('version', '9')")

	_, err := NewMigrator(s).Run(context.Background())
	if !errors.Is(err, ErrUnknownSchemaVersion) {
		t.Fatalf("Run() error = %v, want ErrUnknownSchemaVersion", err)
	}
	if errors.Is(err, ErrStorage) {
		t.Error("unknown version must not be reported as a storage failure")
	}
}

// Test: a step that lost the marker race leaves the data alone
func TestCompactRatings_SkipsWhenMarkerAlreadyMoved(t *testing.T) {
	s := openCatalog(t)
	ctx := context.Background()
	if err := NewMigrator(s).EnsureCurrent(ctx); err != nil {
		t.Fatal(err)
	}
	mustExec(t, s, "INSERT INTO tracks (id, path, rating) VALUES (1, '/a', 5)")

	if err := s.InTx(ctx, func(q store.Querier) error { return compactRatings(ctx, q) }); err != nil {
		t.Fatalf("compactRatings() error = %v", err)
	}

	if r, _ := s.Rating(ctx, 1); r != 5 {
		t.Errorf("rating = %d, want 5 (renormalization ran twice)", r)
	}
}

func TestMigrator_ConcurrentCallersConverge(t *testing.T) {
	s := openCatalog(t)
	ctx := context.Background()
	mustExec(t, s, legacyTracks)
	mustExec(t, s, "INSERT INTO tracks (id, path, rating) VALUES (1, '/a', 800)")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := NewMigrator(s).EnsureCurrent(ctx); err != nil {
				t.Errorf("EnsureCurrent() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if r, _ := s.Rating(ctx, 1); r != 3 {
		t.Errorf("rating = %d, want 3", r)
	}
}

func TestSchemaState_String(t *testing.T) {
	if StateV4.String() != "v4" || StateUnversionedEmpty.String() != "unversioned_empty" {
		t.Error("unexpected state names")
	}
	if SchemaState(42).String() != "SchemaState(42)" {
		t.Errorf("String() = %q", SchemaState(42).String())
	}
}
