// Package metrics holds the Prometheus collectors for the jukebox.
// Collectors register with the default registry at init and are served
// from /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PicksTotal counts weighted picks by outcome (ok, empty, exhausted, error).
	PicksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jukebox_picks_total",
			Help: "Total number of weighted track picks",
		},
		[]string{"result"},
	)

	// PickRedraws tracks how many draws were rejected by replay protection per pick.
	PickRedraws = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "jukebox_pick_redraws",
			Help:    "Draws rejected by replay protection before a pick was accepted",
			Buckets: []float64{0, 1, 2, 4, 8, 16, 64, 256, 1000},
		},
	)

	// VotesTotal counts votes by direction and whether the rating changed.
	VotesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jukebox_votes_total",
			Help: "Total number of rating votes",
		},
		[]string{"direction", "outcome"},
	)

	// MigrationStepsTotal counts schema steps applied, labelled by the state they started from.
	MigrationStepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jukebox_migration_steps_total",
			Help: "Total number of schema migration steps applied",
		},
		[]string{"from"},
	)

	// RefreshDuration tracks full catalog refresh latency.
	RefreshDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "jukebox_refresh_duration_seconds",
			Help:    "Duration of catalog refreshes in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
	)

	// CatalogTracks reports the number of files written by the last refresh.
	CatalogTracks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "jukebox_catalog_tracks",
			Help: "Number of active tracks after the last refresh",
		},
	)

	// SnapshotsTotal counts snapshot runs by outcome.
	SnapshotsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jukebox_snapshots_total",
			Help: "Total number of catalog snapshot attempts",
		},
		[]string{"result"},
	)

	// TracksServed counts audio files streamed to clients.
	TracksServed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "jukebox_tracks_served_total",
			Help: "Total number of audio files served",
		},
	)
)

// RecordRefresh records a completed catalog refresh.
func RecordRefresh(tracks int, elapsed time.Duration) {
	RefreshDuration.Observe(elapsed.Seconds())
	CatalogTracks.Set(float64(tracks))
}

// RecordSnapshot records one snapshot attempt.
func RecordSnapshot(err error) {
	if err != nil {
		SnapshotsTotal.WithLabelValues("error").Inc()
		return
	}
	SnapshotsTotal.WithLabelValues("ok").Inc()
}
