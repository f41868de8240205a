package jukebox

import (
	"context"
	"errors"
	"testing"

	"github.com/hyperengineering/jukebox/internal/store"
)

// fakeRatings is an in-memory RatingStore that counts writes.
type fakeRatings struct {
	ratings map[int64]int
	writes  int
	readErr error
}

func (f *fakeRatings) Rating(_ context.Context, id int64) (int, error) {
	if f.readErr != nil {
		return 0, f.readErr
	}
	r, ok := f.ratings[id]
	if !ok {
		return 0, store.ErrNotFound
	}
	return r, nil
}

func (f *fakeRatings) AdjustRating(_ context.Context, id int64, delta, lo, hi int) (int, error) {
	f.writes++
	r := min(hi, max(lo, f.ratings[id]+delta))
	f.ratings[id] = r
	return r, nil
}

func TestRatingController_Apply(t *testing.T) {
	tests := []struct {
		name       string
		start      int
		dir        Direction
		want       int
		wantWrites int
	}{
		{"up from middle", 3, Up, 4, 1},
		{"down from middle", 3, Down, 2, 1},
		{"up to max", 6, Up, 7, 1},
		{"up at max saturates", 7, Up, 7, 0},
		{"down to min", 1, Down, 0, 1},
		{"down at min saturates", 0, Down, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeRatings{ratings: map[int64]int{1: tt.start}}
			c := NewRatingController(fake)

			got, err := c.Apply(context.Background(), 1, tt.dir)
			if err != nil {
				t.Fatalf("Apply() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Apply() = %d, want %d", got, tt.want)
			}
			if fake.writes != tt.wantWrites {
				t.Errorf("writes = %d, want %d", fake.writes, tt.wantWrites)
			}
		})
	}
}

func TestRatingController_RepeatedVotesSaturate(t *testing.T) {
	fake := &fakeRatings{ratings: map[int64]int{1: 2}}
	c := NewRatingController(fake)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		if _, err := c.Apply(ctx, 1, Up); err != nil {
			t.Fatal(err)
		}
	}
	if fake.ratings[1] != MaxRating {
		t.Errorf("rating = %d, want %d", fake.ratings[1], MaxRating)
	}
	if fake.writes != MaxRating-2 {
		t.Errorf("writes = %d, want %d", fake.writes, MaxRating-2)
	}
}

func TestRatingController_Errors(t *testing.T) {
	ctx := context.Background()

	c := NewRatingController(&fakeRatings{ratings: map[int64]int{}})
	if _, err := c.Apply(ctx, 99, Up); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing track error = %v, want ErrNotFound", err)
	}

	if _, err := c.Apply(ctx, 1, Direction(5)); !errors.Is(err, ErrInvalidDirection) {
		t.Errorf("bad direction error = %v, want ErrInvalidDirection", err)
	}

	driverErr := errors.New("disk I/O error")
	c = NewRatingController(&fakeRatings{readErr: driverErr})
	_, err := c.Apply(ctx, 1, Down)
	if !errors.Is(err, ErrStorage) {
		t.Errorf("storage error = %v, want ErrStorage", err)
	}
	if !errors.Is(err, driverErr) {
		t.Errorf("storage error = %v, should wrap the driver error", err)
	}
}

func TestParseDirection(t *testing.T) {
	for in, want := range map[string]Direction{"up": Up, "upvote": Up, "down": Down, "downvote": Down} {
		got, err := ParseDirection(in)
		if err != nil || got != want {
			t.Errorf("ParseDirection(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseDirection("sideways"); !errors.Is(err, ErrInvalidDirection) {
		t.Errorf("ParseDirection(sideways) error = %v", err)
	}
}
