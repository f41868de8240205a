package jukebox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hyperengineering/jukebox/internal/metrics"
	"github.com/hyperengineering/jukebox/internal/store"
	"github.com/hyperengineering/jukebox/migrations"
)

// SchemaState is the catalog layout generation as observed in the database.
type SchemaState int

const (
	// StateUnversionedEmpty: neither the track table nor a version marker exist.
	StateUnversionedEmpty SchemaState = iota
	// StateUnversionedPopulated: a legacy track table exists without a version marker.
	StateUnversionedPopulated
	StateV2
	StateV3
	// StateV4 is the current layout.
	StateV4
)

// CurrentSchemaVersion is the marker value of the terminal state.
const CurrentSchemaVersion = "4"

// maxMigrationSteps bounds Run. A healthy chain needs at most four steps.
const maxMigrationSteps = 8

func (s SchemaState) String() string {
	switch s {
	case StateUnversionedEmpty:
		return "unversioned_empty"
	case StateUnversionedPopulated:
		return "unversioned_populated"
	case StateV2:
		return "v2"
	case StateV3:
		return "v3"
	case StateV4:
		return "v4"
	default:
		return fmt.Sprintf("SchemaState(%d)", int(s))
	}
}

type migrationStep func(ctx context.Context, q store.Querier) error

// Migrator brings a catalog from any known layout to the current one.
// It keeps no state between calls; every iteration re-reads the database,
// so concurrent callers converge without coordinating.
type Migrator struct {
	db    store.Transactor
	steps map[SchemaState]migrationStep
}

// NewMigrator creates a Migrator over db.
func NewMigrator(db store.Transactor) *Migrator {
	m := &Migrator{db: db}
	m.steps = map[SchemaState]migrationStep{
		StateUnversionedEmpty:     createBaseSchema,
		StateUnversionedPopulated: introduceVersioning,
		StateV2:                   addPlayCounter,
		StateV3:                   compactRatings,
	}
	return m
}

// State derives the current schema state from table existence and the
// version marker.
func (m *Migrator) State(ctx context.Context) (SchemaState, error) {
	return detectState(ctx, m.db)
}

// EnsureCurrent applies steps until the catalog reaches StateV4.
func (m *Migrator) EnsureCurrent(ctx context.Context) error {
	_, err := m.Run(ctx)
	return err
}

// Run applies one step per iteration until the terminal state is observed
// and returns the number of steps applied.
func (m *Migrator) Run(ctx context.Context) (int, error) {
	for applied := 0; applied <= maxMigrationSteps; applied++ {
		state, err := m.State(ctx)
		if err != nil {
			return applied, err
		}
		if state == StateV4 {
			return applied, nil
		}
		if applied == maxMigrationSteps {
			break
		}

		step := m.steps[state]
		if err := m.db.InTx(ctx, func(q store.Querier) error { return step(ctx, q) }); err != nil {
			return applied, storageErr("migrate "+state.String(), err)
		}

		metrics.MigrationStepsTotal.WithLabelValues(state.String()).Inc()
		slog.Info("schema step applied",
			"component", "migrate",
			"action", "step_applied",
			"from", state.String(),
		)
	}
	return maxMigrationSteps, fmt.Errorf("%w after %d steps", ErrMigrationStalled, maxMigrationSteps)
}

func detectState(ctx context.Context, q store.Querier) (SchemaState, error) {
	configExists, err := tableExists(ctx, q, "config")
	if err != nil {
		return 0, storageErr("detect schema", err)
	}
	tracksExist, err := tableExists(ctx, q, "tracks")
	if err != nil {
		return 0, storageErr("detect schema", err)
	}

	unversioned := StateUnversionedEmpty
	if tracksExist {
		unversioned = StateUnversionedPopulated
	}
	if !configExists {
		return unversioned, nil
	}

	version, err := q.ScalarString(ctx, "SELECT value FROM config WHERE key = 'version'")
	if errors.Is(err, store.ErrNoRows) {
		return unversioned, nil
	}
	if err != nil {
		return 0, storageErr("read schema version", err)
	}

	switch version {
	case "2":
		return StateV2, nil
	case "3":
		return StateV3, nil
	case CurrentSchemaVersion:
		return StateV4, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownSchemaVersion, version)
	}
}

func tableExists(ctx context.Context, q store.Querier, name string) (bool, error) {
	n, err := q.Count(ctx, "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name)
	return n > 0, err
}

func columnExists(ctx context.Context, q store.Querier, table, column string) (bool, error) {
	n, err := q.Count(ctx, "SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?", table, column)
	return n > 0, err
}

// addColumn adds a column unless a previous, partially applied run already did.
func addColumn(ctx context.Context, q store.Querier, table, column, decl string) error {
	ok, err := columnExists(ctx, q, table, column)
	if err != nil || ok {
		return err
	}
	_, err = q.Exec(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, decl))
	return err
}

// bumpVersion moves the marker from -> to. It reports false when another
// caller already moved it, in which case the step body must not run.
func bumpVersion(ctx context.Context, q store.Querier, from, to string) (bool, error) {
	n, err := q.Exec(ctx, "UPDATE config SET value = ? WHERE key = 'version' AND value = ?", to, from)
	return n == 1, err
}

func execFile(ctx context.Context, q store.Querier, name string) error {
	body, err := migrations.Read(name)
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	_, err = q.Exec(ctx, body)
	return err
}

func createBaseSchema(ctx context.Context, q store.Querier) error {
	return execFile(ctx, q, "001_base_schema.sql")
}

func introduceVersioning(ctx context.Context, q store.Querier) error {
	if err := execFile(ctx, q, "002_config.sql"); err != nil {
		return err
	}
	if err := addColumn(ctx, q, "tracks", "deleted", "INTEGER NOT NULL DEFAULT 0"); err != nil {
		return err
	}
	_, err := q.Exec(ctx, "INSERT INTO config (key, value) VALUES ('version', '2') ON CONFLICT(key) DO NOTHING")
	return err
}

func addPlayCounter(ctx context.Context, q store.Querier) error {
	won, err := bumpVersion(ctx, q, "2", "3")
	if err != nil || !won {
		return err
	}
	return addColumn(ctx, q, "tracks", "times_played", "INTEGER NOT NULL DEFAULT 0")
}

func compactRatings(ctx context.Context, q store.Querier) error {
	won, err := bumpVersion(ctx, q, "3", CurrentSchemaVersion)
	if err != nil || !won {
		return err
	}
	return execFile(ctx, q, "004_compact_ratings.sql")
}
