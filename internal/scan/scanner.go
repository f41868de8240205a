// Package scan discovers audio files under the music directory, extracts
// their metadata, and writes them to the catalog.
package scan

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dhowden/tag"
	"github.com/dustin/go-humanize"
	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/hyperengineering/jukebox/internal/metrics"
	"github.com/hyperengineering/jukebox/internal/types"
	"github.com/hyperengineering/jukebox/internal/validation"
)

// Catalog is the storage surface used by the scanner.
type Catalog interface {
	ReplaceCatalog(ctx context.Context, files []types.TrackFile) (int, error)
	UpsertTrack(ctx context.Context, file types.TrackFile) (int64, error)
}

// Progress receives scan progress. *progressbar.ProgressBar satisfies it.
type Progress interface {
	ChangeMax(max int)
	Add(num int) error
}

// Config holds scanner configuration
type Config struct {
	MusicDir    string
	Extensions  []string
	Concurrency int
	Prober      Prober
}

// Scanner walks the music directory and refreshes the catalog.
type Scanner struct {
	catalog     Catalog
	musicDir    string
	extensions  []string
	concurrency int
	prober      Prober

	// refreshes are serialized; the catalog write is one transaction anyway
	mu sync.Mutex
}

// New creates a Scanner.
func New(catalog Catalog, cfg Config) *Scanner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if len(cfg.Extensions) == 0 {
		cfg.Extensions = []string{".mp3"}
	}
	if cfg.Prober == nil {
		cfg.Prober = NoopProber{}
	}
	return &Scanner{
		catalog:     catalog,
		musicDir:    cfg.MusicDir,
		extensions:  cfg.Extensions,
		concurrency: cfg.Concurrency,
		prober:      cfg.Prober,
	}
}

// MusicDir returns the directory this scanner walks.
func (s *Scanner) MusicDir() string {
	return s.musicDir
}

// Matches reports whether path has one of the configured extensions.
func (s *Scanner) Matches(path string) bool {
	return validation.HasExtension(path, s.extensions)
}

type found struct {
	path string
	size int64
}

// discover walks the music directory and returns matching files.
// Unreadable entries below the root are logged and skipped.
func (s *Scanner) discover(ctx context.Context) ([]found, error) {
	if _, err := os.Stat(s.musicDir); err != nil {
		return nil, fmt.Errorf("stat music directory: %w", err)
	}

	var files []found
	err := filepath.WalkDir(s.musicDir, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			slog.Warn("skipping unreadable entry",
				"component", "scan",
				"path", path,
				"error", err,
			)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !s.Matches(path) {
			return nil
		}
		var size int64
		if info, err := d.Info(); err == nil {
			size = info.Size()
		}
		files = append(files, found{path: path, size: size})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk music directory: %w", err)
	}
	return files, nil
}

// Refresh rebuilds the catalog from the music directory. Every existing
// track is marked deleted and every discovered file upserted, in one
// transaction. progress may be nil.
func (s *Scanner) Refresh(ctx context.Context, progress Progress) (*types.RefreshResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	runID := ulid.Make().String()

	slog.Info("refresh started",
		"component", "scan",
		"action", "refresh_start",
		"run_id", runID,
		"music_dir", s.musicDir,
	)

	discovered, err := s.discover(ctx)
	if err != nil {
		return nil, err
	}
	if progress != nil {
		progress.ChangeMax(len(discovered))
	}

	files := make([]types.TrackFile, len(discovered))
	var tagErrors atomic.Int64
	var totalBytes int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, f := range discovered {
		totalBytes += f.size
		g.Go(func() error {
			tf, ok := s.describe(gctx, f.path)
			if !ok {
				tagErrors.Add(1)
			}
			tf.SizeBytes = f.size
			files[i] = tf
			if progress != nil {
				_ = progress.Add(1)
			}
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("read track metadata: %w", err)
	}

	written, err := s.catalog.ReplaceCatalog(ctx, files)
	if err != nil {
		return nil, fmt.Errorf("write catalog: %w", err)
	}

	result := &types.RefreshResult{
		RunID:      runID,
		Files:      written,
		TagErrors:  int(tagErrors.Load()),
		TotalBytes: totalBytes,
		Elapsed:    time.Since(start),
	}
	metrics.RecordRefresh(written, result.Elapsed)

	slog.Info("refresh completed",
		"component", "scan",
		"action", "refresh_complete",
		"run_id", runID,
		"files", written,
		"tag_errors", result.TagErrors,
		"size", humanize.Bytes(uint64(totalBytes)),
		"duration_ms", result.Elapsed.Milliseconds(),
	)
	return result, nil
}

// AddFile reads one file and upserts it into the catalog.
func (s *Scanner) AddFile(ctx context.Context, path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", path, err)
	}
	tf, _ := s.describe(ctx, path)
	tf.SizeBytes = info.Size()

	id, err := s.catalog.UpsertTrack(ctx, tf)
	if err != nil {
		return 0, err
	}
	slog.Info("track added",
		"component", "scan",
		"action", "track_added",
		"id", id,
		"path", path,
		"size", humanize.Bytes(uint64(info.Size())),
	)
	return id, nil
}

// describe builds the catalog entry for one file. The boolean is false when
// tags could not be read; the entry is still usable with empty tag fields.
func (s *Scanner) describe(ctx context.Context, path string) (types.TrackFile, bool) {
	tf := types.TrackFile{
		Path:     path,
		Filename: filepath.Base(path),
	}

	ok := true
	title, artist, album, err := readTags(path)
	if err != nil {
		ok = false
		slog.Debug("no readable tags",
			"component", "scan",
			"path", path,
			"error", err,
		)
	}
	tf.Title, tf.Artist, tf.Album = title, artist, album

	d, err := s.prober.Duration(ctx, path)
	if err != nil {
		slog.Debug("duration probe failed",
			"component", "scan",
			"path", path,
			"error", err,
		)
		d = 0
	}
	secs := int64(d / time.Second)
	tf.DurationSeconds = secs
	tf.DurationLabel = FormatDuration(secs)
	return tf, ok
}

func readTags(path string) (title, artist, album string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", "", "", err
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return "", "", "", err
	}
	return m.Title(), m.Artist(), m.Album(), nil
}

// FormatDuration renders seconds as m:ss, or h:mm:ss from one hour up.
func FormatDuration(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
