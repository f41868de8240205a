package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hyperengineering/jukebox/internal/jukebox"
	"github.com/hyperengineering/jukebox/internal/metrics"
	"github.com/hyperengineering/jukebox/internal/scan"
	"github.com/hyperengineering/jukebox/internal/store"
	"github.com/hyperengineering/jukebox/internal/types"
	"github.com/hyperengineering/jukebox/internal/validation"
)

// DefaultMaxUploadBytes bounds a single upload request body.
const DefaultMaxUploadBytes = 512 << 20

// defaultUploadName is used when the multipart part carries no file name.
const defaultUploadName = "default.mp3"

// Library rebuilds or extends the catalog from files on disk.
type Library interface {
	Refresh(ctx context.Context, progress scan.Progress) (*types.RefreshResult, error)
	AddFile(ctx context.Context, path string) (int64, error)
}

// Options configures a Handler.
type Options struct {
	Version        string
	AdminKey       string
	DefaultScale   float64
	UploadDir      string
	Extensions     []string
	VoteRateLimit  int
	MaxUploadBytes int64
}

// Handler implements the API handlers
type Handler struct {
	service *jukebox.Service
	store   store.Store
	library Library
	opts    Options
}

// NewHandler creates a Handler over the service, its backing store and the library scanner.
func NewHandler(svc *jukebox.Service, s store.Store, lib Library, opts Options) *Handler {
	if opts.DefaultScale == 0 {
		opts.DefaultScale = jukebox.DefaultScale
	}
	if len(opts.Extensions) == 0 {
		opts.Extensions = []string{".mp3"}
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	return &Handler{
		service: svc,
		store:   s,
		library: lib,
		opts:    opts,
	}
}

// EnsureSchema brings the catalog to the current layout before the wrapped
// handler runs.
func (h *Handler) EnsureSchema(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := h.service.EnsureSchemaCurrent(r.Context()); err != nil {
			MapJukeboxError(w, r, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Ping handles GET /ping
func (h *Handler) Ping(w http.ResponseWriter, r *http.Request) {
	writeText(w, http.StatusOK, "pong")
}

// Health returns the health status
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.GetStats(r.Context())
	if err != nil {
		MapJukeboxError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, types.HealthResponse{
		Status:        "healthy",
		Version:       h.opts.Version,
		SchemaVersion: stats.SchemaVersion,
		TrackCount:    stats.TotalTracks,
		ActiveTracks:  stats.ActiveTracks,
		LastSnapshot:  stats.LastSnapshot,
	})
}

// Update handles GET /update
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	result, err := h.library.Refresh(r.Context(), nil)
	if err != nil {
		MapJukeboxError(w, r, err)
		return
	}
	slog.Info("catalog refreshed",
		"run_id", result.RunID,
		"files", result.Files,
		"request_id", GetRequestID(r.Context()),
	)
	writeText(w, http.StatusOK, "Ok")
}

// RandomID handles GET /random_id and GET /random_id/{scale}
func (h *Handler) RandomID(w http.ResponseWriter, r *http.Request) {
	scale, ok := h.scaleParam(w, r)
	if !ok {
		return
	}
	id, err := h.service.PickWeighted(r.Context(), scale)
	if err != nil {
		MapJukeboxError(w, r, err)
		return
	}
	writeText(w, http.StatusOK, strconv.FormatInt(id, 10))
}

// RandomSong handles GET /songs/random
func (h *Handler) RandomSong(w http.ResponseWriter, r *http.Request) {
	id, err := h.service.PickWeighted(r.Context(), h.opts.DefaultScale)
	if err != nil {
		MapJukeboxError(w, r, err)
		return
	}
	track, err := h.store.GetTrack(r.Context(), id)
	if err != nil {
		MapJukeboxError(w, r, err)
		return
	}
	h.serveTrack(w, r, track)
}

// Song handles GET /songs/{id}
func (h *Handler) Song(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	track, err := h.store.GetTrack(r.Context(), id)
	if err != nil {
		MapJukeboxError(w, r, err)
		return
	}
	f, ok := openTrack(w, r, track)
	if !ok {
		return
	}
	defer f.Close()

	// only plays that can actually be streamed are counted
	if err := h.store.IncrementPlays(r.Context(), id); err != nil {
		MapJukeboxError(w, r, err)
		return
	}
	streamTrack(w, r, track, f)
}

// ListSongs handles GET /songs
func (h *Handler) ListSongs(w http.ResponseWriter, r *http.Request) {
	tracks, err := h.store.ListTracks(r.Context())
	if err != nil {
		MapJukeboxError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tracks)
}

// SongData handles GET /songdata/{id}
func (h *Handler) SongData(w http.ResponseWriter, r *http.Request) {
	h.songData(w, r, false)
}

// SongDataPretty handles GET /songdata_pretty/{id}
func (h *Handler) SongDataPretty(w http.ResponseWriter, r *http.Request) {
	h.songData(w, r, true)
}

func (h *Handler) songData(w http.ResponseWriter, r *http.Request, pretty bool) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	track, err := h.store.GetTrack(r.Context(), id)
	if err != nil {
		MapJukeboxError(w, r, err)
		return
	}

	var body []byte
	if pretty {
		body, err = json.MarshalIndent(track, "", "  ")
	} else {
		body, err = json.Marshal(track)
	}
	if err != nil {
		MapJukeboxError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(body) //nolint:errcheck
}

// Upvote handles GET /upvote/{id}
func (h *Handler) Upvote(w http.ResponseWriter, r *http.Request) {
	h.vote(w, r, jukebox.Up)
}

// Downvote handles GET /downvote/{id}
func (h *Handler) Downvote(w http.ResponseWriter, r *http.Request) {
	h.vote(w, r, jukebox.Down)
}

func (h *Handler) vote(w http.ResponseWriter, r *http.Request, dir jukebox.Direction) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	rating, err := h.service.ApplyVote(r.Context(), id, dir)
	if err != nil {
		MapJukeboxError(w, r, err)
		return
	}

	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, types.VoteResponse{
			ID:        id,
			Direction: dir.String(),
			Rating:    rating,
		})
		return
	}

	verb := "Upvoted"
	if dir == jukebox.Down {
		verb = "Downvoted"
	}
	writeText(w, http.StatusOK, fmt.Sprintf("%s %d. New Score: %d", verb, id, rating))
}

// Upload handles POST /upload. The first file part is written into the
// upload directory and added to the catalog.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxUploadBytes)

	reader, err := r.MultipartReader()
	if err != nil {
		WriteProblem(w, r, http.StatusBadRequest, "Expected a multipart/form-data body")
		return
	}

	part, err := reader.NextPart()
	if err == io.EOF {
		WriteProblem(w, r, http.StatusBadRequest, "No file part in upload")
		return
	}
	if err != nil {
		writeUploadReadError(w, r, err)
		return
	}
	defer part.Close()

	name := part.FileName()
	if name == "" {
		name = defaultUploadName
	}
	name, verr := validation.ValidateUploadFilename("filename", name, h.opts.Extensions)
	if verr != nil {
		writeValidationError(w, r, verr)
		return
	}

	if err := os.MkdirAll(h.opts.UploadDir, 0755); err != nil {
		MapJukeboxError(w, r, fmt.Errorf("create upload directory: %w", err))
		return
	}
	dest := filepath.Join(h.opts.UploadDir, name)
	size, err := writeAtomically(dest, part)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			WriteProblem(w, r, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("Upload exceeds %d bytes", h.opts.MaxUploadBytes))
			return
		}
		MapJukeboxError(w, r, err)
		return
	}

	id, err := h.library.AddFile(r.Context(), dest)
	if err != nil {
		MapJukeboxError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, types.UploadResponse{
		ID:       id,
		Filename: name,
		Size:     size,
	})
}

// NotFound handles unmatched routes.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	WriteProblem(w, r, http.StatusNotFound, "No pages here.")
}

func (h *Handler) serveTrack(w http.ResponseWriter, r *http.Request, track *types.Track) {
	f, ok := openTrack(w, r, track)
	if !ok {
		return
	}
	defer f.Close()
	streamTrack(w, r, track, f)
}

// openTrack opens the audio file behind track, writing the error response
// itself when that fails.
func openTrack(w http.ResponseWriter, r *http.Request, track *types.Track) (*os.File, bool) {
	f, err := os.Open(track.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			WriteProblem(w, r, http.StatusNotFound, "Track file is missing from the music directory")
			return nil, false
		}
		MapJukeboxError(w, r, fmt.Errorf("open track %d: %w", track.ID, err))
		return nil, false
	}
	return f, true
}

func streamTrack(w http.ResponseWriter, r *http.Request, track *types.Track, f *os.File) {
	info, err := f.Stat()
	if err != nil {
		MapJukeboxError(w, r, fmt.Errorf("stat track %d: %w", track.ID, err))
		return
	}

	name := track.Filename
	if name == "" {
		name = filepath.Base(track.Path)
	}
	w.Header().Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": name}))
	metrics.TracksServed.Inc()
	http.ServeContent(w, r, name, info.ModTime(), f)
}

func (h *Handler) scaleParam(w http.ResponseWriter, r *http.Request) (float64, bool) {
	raw := chi.URLParam(r, "scale")
	if raw == "" {
		return h.opts.DefaultScale, true
	}
	scale, verr := validation.ParseScale("scale", raw)
	if verr != nil {
		writeValidationError(w, r, verr)
		return 0, false
	}
	return scale, true
}

func idParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, verr := validation.ParseTrackID("id", chi.URLParam(r, "id"))
	if verr != nil {
		writeValidationError(w, r, verr)
		return 0, false
	}
	return id, true
}

func writeUploadReadError(w http.ResponseWriter, r *http.Request, err error) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		WriteProblem(w, r, http.StatusRequestEntityTooLarge, "Upload too large")
		return
	}
	WriteProblem(w, r, http.StatusBadRequest, "Malformed multipart body")
}

// writeAtomically copies src into a temporary file next to dest and renames
// it into place.
func writeAtomically(dest string, src io.Reader) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".upload-*")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	n, err := io.Copy(tmp, src)
	if err != nil {
		tmp.Close()
		return 0, fmt.Errorf("write upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("close upload: %w", err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return 0, fmt.Errorf("move upload into place: %w", err)
	}
	return n, nil
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	io.WriteString(w, body) //nolint:errcheck
}
