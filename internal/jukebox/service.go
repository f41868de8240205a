// Package jukebox implements weighted track selection with replay
// protection, saturating rating votes, and the catalog schema migration
// chain. Storage is reached only through the interfaces in internal/store.
package jukebox

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyperengineering/jukebox/internal/metrics"
	"github.com/hyperengineering/jukebox/internal/store"
)

// Catalog is the storage surface the service needs.
type Catalog interface {
	store.Transactor
	store.RatingSource
	store.RatingStore
}

// Service is the entry point used by the HTTP API and the CLI.
type Service struct {
	migrator *Migrator
	source   store.RatingSource
	selector *Selector
	ratings  *RatingController
}

// NewService wires the core components over catalog. The replay window is
// owned by the returned service for its lifetime.
func NewService(catalog Catalog, window *ReplayWindow, opts ...SelectorOption) *Service {
	return &Service{
		migrator: NewMigrator(catalog),
		source:   catalog,
		selector: NewSelector(window, opts...),
		ratings:  NewRatingController(catalog),
	}
}

// EnsureSchemaCurrent migrates the catalog to the current layout. On a
// current catalog it only reads.
func (s *Service) EnsureSchemaCurrent(ctx context.Context) error {
	return s.migrator.EnsureCurrent(ctx)
}

// Migrate is EnsureSchemaCurrent that also reports how many steps ran.
func (s *Service) Migrate(ctx context.Context) (int, error) {
	return s.migrator.Run(ctx)
}

// SchemaState reports the catalog layout without changing it.
func (s *Service) SchemaState(ctx context.Context) (SchemaState, error) {
	return s.migrator.State(ctx)
}

// PickWeighted returns a track id drawn with probability proportional to
// round(scale^(rating-1)) among active, positively rated tracks that are not
// in the replay window.
func (s *Service) PickWeighted(ctx context.Context, scale float64) (int64, error) {
	if !ValidScale(scale) {
		metrics.PicksTotal.WithLabelValues("invalid").Inc()
		return 0, fmt.Errorf("%w: %v", ErrInvalidScale, scale)
	}

	rated, err := s.source.RatedTracks(ctx)
	if err != nil {
		metrics.PicksTotal.WithLabelValues("error").Inc()
		return 0, storageErr("load population", err)
	}

	id, err := s.selector.Pick(BuildPopulation(rated, scale))
	switch {
	case err == nil:
		metrics.PicksTotal.WithLabelValues("ok").Inc()
	case errors.Is(err, ErrEmptyPopulation):
		metrics.PicksTotal.WithLabelValues("empty").Inc()
	case errors.Is(err, ErrSelectionExhausted):
		metrics.PicksTotal.WithLabelValues("exhausted").Inc()
	default:
		metrics.PicksTotal.WithLabelValues("error").Inc()
	}
	return id, err
}

// ApplyVote moves a track's rating by one in dir, saturating at
// MinRating and MaxRating, and returns the resulting rating.
func (s *Service) ApplyVote(ctx context.Context, id int64, dir Direction) (int, error) {
	return s.ratings.Apply(ctx, id, dir)
}

// RecentlyPicked returns the replay window, oldest first.
func (s *Service) RecentlyPicked() []int64 {
	return s.selector.Recent()
}
