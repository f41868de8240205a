package types

import "time"

// Track is one row of the catalog.
type Track struct {
	ID              int64  `json:"id"`
	Path            string `json:"path"`
	Filename        string `json:"filename"`
	Title           string `json:"title"`
	Artist          string `json:"artist"`
	Album           string `json:"album"`
	DurationLabel   string `json:"duration_label"`
	DurationSeconds int64  `json:"duration_seconds"`
	Rating          int    `json:"rating"`
	Vote            int    `json:"vote"`
	Deleted         bool   `json:"deleted"`
	TimesPlayed     int64  `json:"times_played"`
}

// TrackFile is the metadata extracted from one audio file during a refresh.
// It carries everything an upsert may overwrite; id and rating are never part of it.
type TrackFile struct {
	Path            string
	Filename        string
	Title           string
	Artist          string
	Album           string
	DurationLabel   string
	DurationSeconds int64
	SizeBytes       int64
}

// RatedTrack is the (rating, id) pair the selection engine samples from.
type RatedTrack struct {
	ID     int64
	Rating int
}

// RefreshResult summarizes one catalog refresh.
type RefreshResult struct {
	RunID      string        `json:"run_id"`
	Files      int           `json:"files"`
	TagErrors  int           `json:"tag_errors"`
	TotalBytes int64         `json:"total_bytes"`
	Elapsed    time.Duration `json:"elapsed_ns"`
}

// CatalogStats holds aggregate catalog statistics.
type CatalogStats struct {
	TotalTracks   int64       `json:"total_tracks"`
	ActiveTracks  int64       `json:"active_tracks"`
	DeletedTracks int64       `json:"deleted_tracks"`
	TotalPlays    int64       `json:"total_plays"`
	SchemaVersion string      `json:"schema_version"`
	Ratings       map[int]int `json:"ratings"`
	LastSnapshot  *time.Time  `json:"last_snapshot,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status        string     `json:"status"`
	Version       string     `json:"version"`
	SchemaVersion string     `json:"schema_version"`
	TrackCount    int64      `json:"track_count"`
	ActiveTracks  int64      `json:"active_tracks"`
	LastSnapshot  *time.Time `json:"last_snapshot"`
}

// VoteResponse is returned by the JSON variant of the vote endpoints.
type VoteResponse struct {
	ID        int64  `json:"id"`
	Direction string `json:"direction"`
	Rating    int    `json:"rating"`
}

// UploadResponse is returned after an uploaded file has been catalogued.
type UploadResponse struct {
	ID       int64  `json:"id"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}
