package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates a new router with all routes configured
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware (all routes)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware)
	r.Use(RecoveryMiddleware)

	r.NotFound(h.NotFound)

	// Public, catalog-independent routes
	r.Get("/ping", h.Ping)
	r.Handle("/metrics", promhttp.Handler())

	// Catalog routes migrate the schema first
	r.Group(func(r chi.Router) {
		r.Use(h.EnsureSchema)

		r.Get("/health", h.Health)
		r.Get("/random_id", h.RandomID)
		r.Get("/random_id/{scale}", h.RandomID)
		r.Get("/songs", h.ListSongs)
		r.Get("/songs/random", h.RandomSong)
		r.Get("/songs/{id}", h.Song)
		r.Get("/songdata/{id}", h.SongData)
		r.Get("/songdata_pretty/{id}", h.SongDataPretty)

		r.Group(func(r chi.Router) {
			r.Use(voteRateLimiter(h.opts.VoteRateLimit))
			r.Get("/upvote/{id}", h.Upvote)
			r.Get("/downvote/{id}", h.Downvote)
		})

		r.Group(func(r chi.Router) {
			r.Use(AdminMiddleware(h.opts.AdminKey))
			r.Get("/update", h.Update)
			r.Post("/upload", h.Upload)
		})
	})

	return r
}

// voteRateLimiter limits votes per client IP per minute. A non-positive
// limit disables it.
func voteRateLimiter(perMinute int) func(http.Handler) http.Handler {
	if perMinute <= 0 {
		return func(next http.Handler) http.Handler {
			return next
		}
	}
	return httprate.Limit(
		perMinute,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			WriteProblem(w, r, http.StatusTooManyRequests, "Vote rate limit exceeded")
		}),
	)
}
