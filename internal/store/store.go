package store

import (
	"context"

	"github.com/hyperengineering/jukebox/internal/types"
)

// Querier runs single statements against the catalog database.
// Schema migration steps are expressed entirely in terms of it.
type Querier interface {
	// Count runs a query whose single column is an integer count.
	Count(ctx context.Context, query string, args ...any) (int, error)
	// ScalarString runs a query returning one text value. A query that
	// yields no row returns ErrNoRows.
	ScalarString(ctx context.Context, query string, args ...any) (string, error)
	// Exec runs a statement and returns the number of rows it changed.
	Exec(ctx context.Context, query string, args ...any) (int64, error)
}

// Transactor is a Querier that can also run a group of statements atomically.
type Transactor interface {
	Querier
	InTx(ctx context.Context, fn func(q Querier) error) error
}

// RatingSource loads the sampling population.
type RatingSource interface {
	// RatedTracks returns (rating, id) for every non-deleted track with rating > 0.
	RatedTracks(ctx context.Context) ([]types.RatedTrack, error)
}

// RatingStore reads and writes a single track's rating.
type RatingStore interface {
	Rating(ctx context.Context, id int64) (int, error)
	// AdjustRating adds delta to the stored rating, clamped to [lo, hi],
	// and returns the stored result.
	AdjustRating(ctx context.Context, id int64, delta, lo, hi int) (int, error)
}

// Store defines the catalog operations used by the service and its collaborators.
type Store interface {
	Transactor
	RatingSource
	RatingStore

	ReplaceCatalog(ctx context.Context, files []types.TrackFile) (int, error)
	UpsertTrack(ctx context.Context, file types.TrackFile) (int64, error)
	GetTrack(ctx context.Context, id int64) (*types.Track, error)
	ListTracks(ctx context.Context) ([]types.Track, error)
	IncrementPlays(ctx context.Context, id int64) error
	GetStats(ctx context.Context) (*types.CatalogStats, error)
	GenerateSnapshot(ctx context.Context) error
	GetSnapshotPath(ctx context.Context) (string, error)
	Path() string
	Close() error
}
