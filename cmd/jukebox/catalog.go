package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/hyperengineering/jukebox/internal/config"
	"github.com/hyperengineering/jukebox/internal/jukebox"
	"github.com/hyperengineering/jukebox/internal/scan"
	"github.com/hyperengineering/jukebox/internal/store"
	"github.com/hyperengineering/jukebox/internal/validation"
)

var (
	catalogDBOverride string
	catalogMusicDir   string
	catalogJSONOutput bool
	catalogListAll    bool
	catalogNoProgress bool
	catalogPickScale  float64
	catalogPickCount  int
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Manage the track catalog",
	Long:  "Migrate, scan, inspect, and vote on the track catalog without running the server.",
}

var catalogMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Bring the catalog schema to the current version",
	Args:  cobra.NoArgs,
	RunE:  runCatalogMigrate,
}

var catalogScanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Rebuild the catalog from the music directory",
	Args:  cobra.NoArgs,
	RunE:  runCatalogScan,
}

var catalogInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show catalog statistics",
	Args:  cobra.NoArgs,
	RunE:  runCatalogInfo,
}

var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalogued tracks",
	Args:  cobra.NoArgs,
	RunE:  runCatalogList,
}

var catalogPickCmd = &cobra.Command{
	Use:   "pick",
	Short: "Draw tracks with the weighted shuffle",
	Args:  cobra.NoArgs,
	RunE:  runCatalogPick,
}

var catalogVoteCmd = &cobra.Command{
	Use:   "vote <id> <up|down>",
	Short: "Upvote or downvote a track",
	Long:  "Move a track's rating one step. The direction is up or down; upvote and downvote are accepted too.",
	Args:  cobra.ExactArgs(2),
	RunE:  runCatalogVote,
}

func init() {
	catalogCmd.PersistentFlags().StringVar(&catalogDBOverride, "db", "",
		"Catalog database path (overrides config and JUKEBOX_DB_PATH)")
	catalogCmd.PersistentFlags().BoolVar(&catalogJSONOutput, "json", false,
		"Output in JSON format")

	catalogScanCmd.Flags().StringVar(&catalogMusicDir, "music-dir", "",
		"Music directory (overrides config and JUKEBOX_MUSIC_DIR)")
	catalogScanCmd.Flags().BoolVar(&catalogNoProgress, "no-progress", false,
		"Disable the progress bar")
	catalogListCmd.Flags().BoolVar(&catalogListAll, "all", false,
		"Include tracks marked deleted")
	catalogPickCmd.Flags().Float64Var(&catalogPickScale, "scale", 0,
		"Weighting scale (0 uses selection.default_scale)")
	catalogPickCmd.Flags().IntVar(&catalogPickCount, "count", 1,
		"Number of tracks to draw")

	catalogCmd.AddCommand(catalogMigrateCmd)
	catalogCmd.AddCommand(catalogScanCmd)
	catalogCmd.AddCommand(catalogInfoCmd)
	catalogCmd.AddCommand(catalogListCmd)
	catalogCmd.AddCommand(catalogPickCmd)
	catalogCmd.AddCommand(catalogVoteCmd)
}

// loadCatalogConfig loads config and applies the catalog command overrides.
func loadCatalogConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if catalogDBOverride != "" {
		cfg.Catalog.DBPath = catalogDBOverride
	}
	if catalogMusicDir != "" {
		cfg.Catalog.MusicDir = catalogMusicDir
	}
	return cfg, nil
}

// openCatalog opens the store and a service bound to it. When current is
// true the schema is migrated first.
func openCatalog(cmd *cobra.Command, current bool) (*config.Config, *store.SQLiteStore, *jukebox.Service, error) {
	cfg, err := loadCatalogConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	db, err := store.NewSQLiteStore(cfg.Catalog.DBPath, store.WithSnapshotDir(cfg.Snapshot.Dir))
	if err != nil {
		return nil, nil, nil, err
	}
	svc := newService(db, cfg)
	if current {
		if err := svc.EnsureSchemaCurrent(cmd.Context()); err != nil {
			db.Close()
			return nil, nil, nil, fmt.Errorf("migrate catalog: %w", err)
		}
	}
	return cfg, db, svc, nil
}

func runCatalogMigrate(cmd *cobra.Command, args []string) error {
	_, db, svc, err := openCatalog(cmd, false)
	if err != nil {
		return err
	}
	defer db.Close()

	steps, err := svc.Migrate(cmd.Context())
	if err != nil {
		return fmt.Errorf("migrate catalog: %w", err)
	}

	w := cmd.OutOrStdout()
	if catalogJSONOutput {
		return printJSON(w, map[string]any{
			"steps":          steps,
			"schema_version": jukebox.CurrentSchemaVersion,
		})
	}
	if steps == 0 {
		fmt.Fprintf(w, "Catalog already at schema version %s\n", jukebox.CurrentSchemaVersion)
		return nil
	}
	fmt.Fprintf(w, "Applied %d migration step(s); schema version %s\n", steps, jukebox.CurrentSchemaVersion)
	return nil
}

func runCatalogScan(cmd *cobra.Command, args []string) error {
	cfg, db, _, err := openCatalog(cmd, true)
	if err != nil {
		return err
	}
	defer db.Close()

	scanner := newScanner(db, cfg)

	var progress scan.Progress
	if !catalogNoProgress && !catalogJSONOutput {
		progress = newScanProgress(cmd.ErrOrStderr())
	}

	result, err := scanner.Refresh(cmd.Context(), progress)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if catalogJSONOutput {
		return printJSON(w, result)
	}
	fmt.Fprintf(w, "Catalogued %s files (%s) from %s in %s\n",
		humanize.Comma(int64(result.Files)),
		humanize.Bytes(uint64(result.TotalBytes)),
		scanner.MusicDir(),
		result.Elapsed.Round(time.Millisecond),
	)
	if result.TagErrors > 0 {
		fmt.Fprintf(w, "%d file(s) had unreadable tags\n", result.TagErrors)
	}
	return nil
}

// newScanProgress returns a spinner-style bar; the scanner sets the max once
// discovery finishes.
func newScanProgress(w io.Writer) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("Scanning"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("files"),
		progressbar.OptionThrottle(200*time.Millisecond),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// catalogInfoOutput is the JSON representation for catalog info.
type catalogInfoOutput struct {
	Path          string      `json:"path"`
	SizeBytes     int64       `json:"size_bytes"`
	SchemaVersion string      `json:"schema_version"`
	TotalTracks   int64       `json:"total_tracks"`
	ActiveTracks  int64       `json:"active_tracks"`
	DeletedTracks int64       `json:"deleted_tracks"`
	TotalPlays    int64       `json:"total_plays"`
	Ratings       map[int]int `json:"ratings"`
	LastSnapshot  *time.Time  `json:"last_snapshot,omitempty"`
}

func runCatalogInfo(cmd *cobra.Command, args []string) error {
	_, db, _, err := openCatalog(cmd, true)
	if err != nil {
		return err
	}
	defer db.Close()

	stats, err := db.GetStats(cmd.Context())
	if err != nil {
		return err
	}

	var size int64
	if info, err := os.Stat(db.Path()); err == nil {
		size = info.Size()
	}

	w := cmd.OutOrStdout()
	if catalogJSONOutput {
		return printJSON(w, catalogInfoOutput{
			Path:          db.Path(),
			SizeBytes:     size,
			SchemaVersion: stats.SchemaVersion,
			TotalTracks:   stats.TotalTracks,
			ActiveTracks:  stats.ActiveTracks,
			DeletedTracks: stats.DeletedTracks,
			TotalPlays:    stats.TotalPlays,
			Ratings:       stats.Ratings,
			LastSnapshot:  stats.LastSnapshot,
		})
	}

	fmt.Fprintf(w, "Path:           %s\n", db.Path())
	fmt.Fprintf(w, "Size:           %s\n", humanize.Bytes(uint64(size)))
	fmt.Fprintf(w, "Schema version: %s\n", stats.SchemaVersion)
	fmt.Fprintf(w, "Tracks:         %s active, %s deleted\n",
		humanize.Comma(stats.ActiveTracks), humanize.Comma(stats.DeletedTracks))
	fmt.Fprintf(w, "Total plays:    %s\n", humanize.Comma(stats.TotalPlays))
	if stats.LastSnapshot != nil {
		fmt.Fprintf(w, "Last snapshot:  %s\n", humanize.Time(*stats.LastSnapshot))
	} else {
		fmt.Fprintf(w, "Last snapshot:  never\n")
	}

	if len(stats.Ratings) > 0 {
		ratings := make([]int, 0, len(stats.Ratings))
		for r := range stats.Ratings {
			ratings = append(ratings, r)
		}
		sort.Ints(ratings)

		fmt.Fprintln(w, "\nRatings:")
		tw := newTabWriter(w)
		fmt.Fprintln(tw, "  RATING\tTRACKS")
		for _, r := range ratings {
			fmt.Fprintf(tw, "  %d\t%d\n", r, stats.Ratings[r])
		}
		tw.Flush()
	}
	return nil
}

func runCatalogList(cmd *cobra.Command, args []string) error {
	_, db, _, err := openCatalog(cmd, true)
	if err != nil {
		return err
	}
	defer db.Close()

	all, err := db.ListTracks(cmd.Context())
	if err != nil {
		return err
	}
	tracks := all[:0]
	for _, t := range all {
		if catalogListAll || !t.Deleted {
			tracks = append(tracks, t)
		}
	}

	w := cmd.OutOrStdout()
	if catalogJSONOutput {
		return printJSON(w, tracks)
	}
	if len(tracks) == 0 {
		fmt.Fprintln(w, "No tracks found.")
		return nil
	}

	tw := newTabWriter(w)
	fmt.Fprintln(tw, "ID\tTITLE\tARTIST\tLENGTH\tRATING\tPLAYS")
	for _, t := range tracks {
		title := t.Title
		if title == "" {
			title = t.Filename
		}
		if t.Deleted {
			title += " (deleted)"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%d\n",
			t.ID, title, t.Artist, t.DurationLabel, t.Rating, t.TimesPlayed)
	}
	return tw.Flush()
}

// pickedTrack is one row of catalog pick output.
type pickedTrack struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	Filename string `json:"filename"`
	Rating   int    `json:"rating"`
}

func runCatalogPick(cmd *cobra.Command, args []string) error {
	cfg, db, svc, err := openCatalog(cmd, true)
	if err != nil {
		return err
	}
	defer db.Close()

	scale := cfg.Selection.DefaultScale
	if catalogPickScale != 0 {
		scale = catalogPickScale
	}
	if catalogPickCount < 1 {
		return fmt.Errorf("--count must be at least 1")
	}

	picks := make([]pickedTrack, 0, catalogPickCount)
	for i := 0; i < catalogPickCount; i++ {
		id, err := svc.PickWeighted(cmd.Context(), scale)
		if err != nil {
			return err
		}
		t, err := db.GetTrack(cmd.Context(), id)
		if err != nil {
			return err
		}
		picks = append(picks, pickedTrack{ID: t.ID, Title: t.Title, Filename: t.Filename, Rating: t.Rating})
	}

	w := cmd.OutOrStdout()
	if catalogJSONOutput {
		return printJSON(w, picks)
	}
	tw := newTabWriter(w)
	fmt.Fprintln(tw, "ID\tTITLE\tRATING")
	for _, p := range picks {
		title := p.Title
		if title == "" {
			title = p.Filename
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\n", p.ID, title, p.Rating)
	}
	return tw.Flush()
}

func runCatalogVote(cmd *cobra.Command, args []string) error {
	id, verr := validation.ParseTrackID("id", args[0])
	if verr != nil {
		return verr
	}
	dir, err := jukebox.ParseDirection(args[1])
	if err != nil {
		return err
	}

	_, db, svc, err := openCatalog(cmd, true)
	if err != nil {
		return err
	}
	defer db.Close()

	rating, err := svc.ApplyVote(cmd.Context(), id, dir)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if catalogJSONOutput {
		return printJSON(w, map[string]any{
			"id":        id,
			"direction": dir.String(),
			"rating":    rating,
		})
	}
	fmt.Fprintf(w, "Track %d %svoted. New rating: %d\n", id, dir, rating)
	return nil
}

// printJSON marshals v to JSON and writes to the given writer.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// newTabWriter returns a configured tabwriter for aligned columns.
func newTabWriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}
