package jukebox

import (
	"math"
	"math/rand/v2"
	"sort"
	"sync"

	"github.com/hyperengineering/jukebox/internal/metrics"
	"github.com/hyperengineering/jukebox/internal/types"
)

const (
	// DefaultScale is the rating base used when a request does not supply one.
	DefaultScale = 2.5
	// DefaultMaxRedraws bounds replay-protection rejections per pick before
	// the pick falls back to sampling only ids outside the window.
	DefaultMaxRedraws = 1000
)

// Weighted is one sampling candidate.
type Weighted struct {
	ID     int64
	Weight float64
}

// Weight maps a rating to its sampling weight, round(scale^(rating-1)).
func Weight(rating int, scale float64) float64 {
	return math.Round(math.Pow(scale, float64(rating-1)))
}

// ValidScale reports whether scale can be used to build a population.
func ValidScale(scale float64) bool {
	return !math.IsNaN(scale) && !math.IsInf(scale, 0) && scale > 0
}

// BuildPopulation turns rated tracks into weighted candidates. Entries whose
// weight rounds to zero can never be drawn and are left out.
func BuildPopulation(rated []types.RatedTrack, scale float64) []Weighted {
	pop := make([]Weighted, 0, len(rated))
	for _, rt := range rated {
		w := Weight(rt.Rating, scale)
		if w <= 0 {
			continue
		}
		pop = append(pop, Weighted{ID: rt.ID, Weight: w})
	}
	return pop
}

// Sampler draws ids with probability proportional to their weight.
type Sampler struct {
	ids   []int64
	cum   []float64
	total float64
}

// NewSampler builds cumulative weights for pop.
func NewSampler(pop []Weighted) (*Sampler, error) {
	s := &Sampler{
		ids: make([]int64, 0, len(pop)),
		cum: make([]float64, 0, len(pop)),
	}
	for _, p := range pop {
		if p.Weight <= 0 {
			continue
		}
		s.total += p.Weight
		s.ids = append(s.ids, p.ID)
		s.cum = append(s.cum, s.total)
	}
	if len(s.ids) == 0 {
		return nil, ErrEmptyPopulation
	}
	if math.IsInf(s.total, 0) {
		return nil, ErrInvalidScale
	}
	return s, nil
}

// Draw returns one id using r as the uniform source.
func (s *Sampler) Draw(r *rand.Rand) int64 {
	x := r.Float64() * s.total
	i := sort.Search(len(s.cum), func(i int) bool { return s.cum[i] > x })
	if i == len(s.cum) {
		i--
	}
	return s.ids[i]
}

// IDs returns the candidate ids in population order.
func (s *Sampler) IDs() []int64 {
	return s.ids
}

// Selector picks ids from a population while honoring the replay window.
// One mutex covers the window and the random source for the whole
// reject-and-resample loop, so concurrent picks never return the same id
// while it is still in the window.
type Selector struct {
	mu         sync.Mutex
	window     *ReplayWindow
	rng        *rand.Rand
	maxRedraws int
}

// SelectorOption configures a Selector.
type SelectorOption func(*Selector)

// WithRand replaces the random source. Tests pass a seeded generator.
func WithRand(r *rand.Rand) SelectorOption {
	return func(s *Selector) { s.rng = r }
}

// WithMaxRedraws caps replay-protection rejections per pick.
func WithMaxRedraws(n int) SelectorOption {
	return func(s *Selector) {
		if n > 0 {
			s.maxRedraws = n
		}
	}
}

// NewSelector creates a Selector that owns window.
func NewSelector(window *ReplayWindow, opts ...SelectorOption) *Selector {
	s := &Selector{
		window:     window,
		rng:        rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		maxRedraws: DefaultMaxRedraws,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Pick draws an id not present in the replay window and records it. It
// returns ErrSelectionExhausted only when every candidate is in the window.
func (s *Selector) Pick(pop []Weighted) (int64, error) {
	sampler, err := NewSampler(pop)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.allRecent(sampler.IDs()) {
		return 0, ErrSelectionExhausted
	}

	for redraws := 0; redraws <= s.maxRedraws; redraws++ {
		id := sampler.Draw(s.rng)
		if s.window.Contains(id) {
			continue
		}
		s.window.Record(id)
		metrics.PickRedraws.Observe(float64(redraws))
		return id, nil
	}

	// The window holds most of the weight. Drawing from the fresh ids alone
	// has the same distribution as continuing to reject.
	fresh, err := NewSampler(s.withoutRecent(pop))
	if err != nil {
		return 0, ErrSelectionExhausted
	}
	id := fresh.Draw(s.rng)
	s.window.Record(id)
	metrics.PickRedraws.Observe(float64(s.maxRedraws + 1))
	return id, nil
}

func (s *Selector) withoutRecent(pop []Weighted) []Weighted {
	out := make([]Weighted, 0, len(pop))
	for _, p := range pop {
		if !s.window.Contains(p.ID) {
			out = append(out, p)
		}
	}
	return out
}

// Recent returns the replay window contents, oldest first.
func (s *Selector) Recent() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.window.IDs()
}

func (s *Selector) allRecent(ids []int64) bool {
	for _, id := range ids {
		if !s.window.Contains(id) {
			return false
		}
	}
	return true
}
