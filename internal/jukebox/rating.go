package jukebox

import (
	"context"
	"fmt"

	"github.com/hyperengineering/jukebox/internal/metrics"
	"github.com/hyperengineering/jukebox/internal/store"
)

// Rating bounds.
const (
	MinRating = 0
	MaxRating = 7
)

// Direction is the sign of a vote.
type Direction int

const (
	Down Direction = -1
	Up   Direction = 1
)

func (d Direction) String() string {
	switch d {
	case Up:
		return "up"
	case Down:
		return "down"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// ParseDirection parses "up" or "down". The route names "upvote" and
// "downvote" are accepted as aliases.
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "up", "upvote":
		return Up, nil
	case "down", "downvote":
		return Down, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidDirection, s)
	}
}

// RatingController applies saturating votes.
type RatingController struct {
	store store.RatingStore
}

// NewRatingController creates a controller over s.
func NewRatingController(s store.RatingStore) *RatingController {
	return &RatingController{store: s}
}

// Apply moves the rating of id one step in dir and returns the resulting
// rating. At a bound nothing is written and the current rating is returned.
func (c *RatingController) Apply(ctx context.Context, id int64, dir Direction) (int, error) {
	if dir != Up && dir != Down {
		return 0, fmt.Errorf("%w: %d", ErrInvalidDirection, int(dir))
	}

	current, err := c.store.Rating(ctx, id)
	if err != nil {
		return 0, storageErr("read rating", err)
	}

	if (dir == Up && current >= MaxRating) || (dir == Down && current <= MinRating) {
		metrics.VotesTotal.WithLabelValues(dir.String(), "saturated").Inc()
		return current, nil
	}

	updated, err := c.store.AdjustRating(ctx, id, int(dir), MinRating, MaxRating)
	if err != nil {
		return 0, storageErr("write rating", err)
	}
	metrics.VotesTotal.WithLabelValues(dir.String(), "changed").Inc()
	return updated, nil
}
