package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	"github.com/hyperengineering/jukebox/internal/types"
)

// DefaultRating is the rating assigned to a track on first insert.
const DefaultRating = 2

const upsertTrackSQL = `
	INSERT INTO tracks (path, filename, title, artist, album, duration_label, duration_seconds, rating, vote, deleted)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, 0)
	ON CONFLICT(path) DO UPDATE SET
		title = excluded.title,
		artist = excluded.artist,
		album = excluded.album,
		duration_label = excluded.duration_label,
		duration_seconds = excluded.duration_seconds,
		deleted = excluded.deleted`

const trackColumns = `
	id,
	COALESCE(path, ''),
	COALESCE(filename, ''),
	COALESCE(title, ''),
	COALESCE(artist, ''),
	COALESCE(album, ''),
	COALESCE(duration_label, ''),
	COALESCE(duration_seconds, 0),
	COALESCE(rating, 0),
	COALESCE(vote, 0),
	deleted,
	times_played`

// ReplaceCatalog marks every track deleted and upserts files in one
// transaction. Tracks whose path reappears are revived with their id and
// rating intact. Returns the number of files written.
func (s *SQLiteStore) ReplaceCatalog(ctx context.Context, files []types.TrackFile) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, "UPDATE tracks SET deleted = 1"); err != nil {
		return 0, fmt.Errorf("mark tracks deleted: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, upsertTrackSQL)
	if err != nil {
		return 0, fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, f := range files {
		if _, err := stmt.ExecContext(ctx, upsertArgs(f)...); err != nil {
			return 0, fmt.Errorf("upsert %s: %w", f.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}
	return len(files), nil
}

// UpsertTrack inserts or revives a single track and returns its id.
func (s *SQLiteStore) UpsertTrack(ctx context.Context, f types.TrackFile) (int64, error) {
	if _, err := s.db.ExecContext(ctx, upsertTrackSQL, upsertArgs(f)...); err != nil {
		return 0, fmt.Errorf("upsert %s: %w", f.Path, err)
	}
	var id int64
	if err := s.db.QueryRowContext(ctx, "SELECT id FROM tracks WHERE path = ?", f.Path).Scan(&id); err != nil {
		return 0, fmt.Errorf("lookup upserted track: %w", err)
	}
	return id, nil
}

func upsertArgs(f types.TrackFile) []any {
	return []any{f.Path, f.Filename, f.Title, f.Artist, f.Album, f.DurationLabel, f.DurationSeconds, DefaultRating}
}

// RatedTracks implements RatingSource.
func (s *SQLiteStore) RatedTracks(ctx context.Context) ([]types.RatedTrack, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT rating, id FROM tracks WHERE deleted = 0 AND rating > 0")
	if err != nil {
		return nil, fmt.Errorf("query rated tracks: %w", err)
	}
	defer rows.Close()

	var out []types.RatedTrack
	for rows.Next() {
		var rt types.RatedTrack
		if err := rows.Scan(&rt.Rating, &rt.ID); err != nil {
			return nil, fmt.Errorf("scan rated track: %w", err)
		}
		out = append(out, rt)
	}
	return out, rows.Err()
}

// Rating returns the stored rating of a track, deleted or not.
func (s *SQLiteStore) Rating(ctx context.Context, id int64) (int, error) {
	var r sql.NullInt64
	err := s.db.QueryRowContext(ctx, "SELECT rating FROM tracks WHERE id = ?", id).Scan(&r)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("read rating: %w", err)
	}
	return int(r.Int64), nil
}

// AdjustRating implements RatingStore. Only the rating column is written.
func (s *SQLiteStore) AdjustRating(ctx context.Context, id int64, delta, lo, hi int) (int, error) {
	var r int
	err := s.db.QueryRowContext(ctx,
		"UPDATE tracks SET rating = MAX(?, MIN(?, COALESCE(rating, 0) + ?)) WHERE id = ? RETURNING rating",
		lo, hi, delta, id,
	).Scan(&r)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("adjust rating: %w", err)
	}
	return r, nil
}

// GetTrack returns one track by id, including soft-deleted ones.
func (s *SQLiteStore) GetTrack(ctx context.Context, id int64) (*types.Track, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+trackColumns+" FROM tracks WHERE id = ?", id)
	t, err := scanTrack(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get track: %w", err)
	}
	return t, nil
}

// ListTracks returns every track ordered by id.
func (s *SQLiteStore) ListTracks(ctx context.Context) ([]types.Track, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+trackColumns+" FROM tracks ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list tracks: %w", err)
	}
	defer rows.Close()

	tracks := []types.Track{}
	for rows.Next() {
		t, err := scanTrack(rows)
		if err != nil {
			return nil, fmt.Errorf("scan track: %w", err)
		}
		tracks = append(tracks, *t)
	}
	return tracks, rows.Err()
}

// IncrementPlays bumps times_played for a track.
func (s *SQLiteStore) IncrementPlays(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "UPDATE tracks SET times_played = times_played + 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("increment plays: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetStats returns aggregate catalog statistics.
func (s *SQLiteStore) GetStats(ctx context.Context) (*types.CatalogStats, error) {
	stats := &types.CatalogStats{Ratings: map[int]int{}}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN deleted = 0 THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(times_played), 0)
		FROM tracks`).Scan(&stats.TotalTracks, &stats.ActiveTracks, &stats.TotalPlays)
	if err != nil {
		return nil, fmt.Errorf("count tracks: %w", err)
	}
	stats.DeletedTracks = stats.TotalTracks - stats.ActiveTracks

	version, err := s.ScalarString(ctx, "SELECT value FROM config WHERE key = 'version'")
	if err != nil && !errors.Is(err, ErrNoRows) {
		return nil, err
	}
	stats.SchemaVersion = version

	rows, err := s.db.QueryContext(ctx,
		"SELECT COALESCE(rating, 0), COUNT(*) FROM tracks WHERE deleted = 0 GROUP BY 1")
	if err != nil {
		return nil, fmt.Errorf("rating histogram: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var rating, n int
		if err := rows.Scan(&rating, &n); err != nil {
			return nil, fmt.Errorf("scan histogram: %w", err)
		}
		stats.Ratings[rating] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if info, err := os.Stat(s.snapshotPath()); err == nil {
		mod := info.ModTime().UTC()
		stats.LastSnapshot = &mod
	}
	return stats, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTrack(row scanner) (*types.Track, error) {
	var t types.Track
	var deleted int
	err := row.Scan(
		&t.ID, &t.Path, &t.Filename, &t.Title, &t.Artist, &t.Album,
		&t.DurationLabel, &t.DurationSeconds, &t.Rating, &t.Vote,
		&deleted, &t.TimesPlayed,
	)
	if err != nil {
		return nil, err
	}
	t.Deleted = deleted != 0
	return &t, nil
}
