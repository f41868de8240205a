package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/jukebox/internal/api"
	"github.com/hyperengineering/jukebox/internal/config"
	"github.com/hyperengineering/jukebox/internal/jukebox"
	"github.com/hyperengineering/jukebox/internal/scan"
	"github.com/hyperengineering/jukebox/internal/snapshot"
	"github.com/hyperengineering/jukebox/internal/store"
	"github.com/hyperengineering/jukebox/internal/worker"
)

// Version is set at build time via ldflags: -ldflags "-X main.Version=1.0.0"
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:           "jukebox",
	Short:         "Jukebox - weighted-shuffle music server",
	RunE:          run,
	SilenceUsage:  true,
	SilenceErrors: false,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server (default)",
	Args:  cobra.NoArgs,
	RunE:  run,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(catalogCmd)
}

func run(cmd *cobra.Command, args []string) error {
	// 1. Signal handling
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	// 2. Load configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.Info("configuration loaded")

	// 3. Initialize logger
	slog.SetDefault(newLogger(cfg.Log, os.Stdout))
	slog.Info("logger initialized", "level", cfg.Log.Level, "format", cfg.Log.Format)

	// 4. Initialize store (WAL mode); the schema is brought current below
	db, err := store.NewSQLiteStore(cfg.Catalog.DBPath, store.WithSnapshotDir(cfg.Snapshot.Dir))
	if err != nil {
		return err
	}
	slog.Info("store initialized", "path", cfg.Catalog.DBPath)

	// 5. Initialize selection service and migrate
	svc := newService(db, cfg)
	if err := svc.EnsureSchemaCurrent(ctx); err != nil {
		db.Close()
		return fmt.Errorf("migrate catalog: %w", err)
	}
	slog.Info("service initialized",
		"schema_version", jukebox.CurrentSchemaVersion,
		"replay_window", cfg.Selection.ReplayWindow,
		"default_scale", cfg.Selection.DefaultScale,
	)

	scanner := newScanner(db, cfg)

	// 6. Initialize HTTP router
	handler := api.NewHandler(svc, db, scanner, api.Options{
		Version:       Version,
		AdminKey:      cfg.Server.AdminKey,
		DefaultScale:  cfg.Selection.DefaultScale,
		UploadDir:     cfg.Catalog.UploadDir,
		Extensions:    cfg.Catalog.Extensions,
		VoteRateLimit: cfg.Server.VoteRateLimit,
	})
	router := api.NewRouter(handler)
	slog.Info("router initialized")

	// 7. Configure HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout),
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout),
	}

	// 8. Workers
	var wg sync.WaitGroup
	if interval := time.Duration(cfg.Snapshot.Interval); interval > 0 {
		uploader, err := snapshot.NewUploader(cfg.Snapshot.Storage)
		if err != nil {
			db.Close()
			return err
		}
		snapshotWorker := worker.NewSnapshotWorker(db, uploader, interval)
		startWorker(ctx, &wg, "snapshot", snapshotWorker.Run)
	}
	if cfg.Catalog.Watch {
		watcher := worker.NewLibraryWatcher(scanner, cfg.Catalog.MusicDir,
			time.Duration(cfg.Catalog.WatchDebounce), scanner.Matches)
		startWorker(ctx, &wg, "library-watcher", func(ctx context.Context) {
			if err := watcher.Run(ctx); err != nil {
				slog.Error("library watcher failed", "error", err)
			}
		})
	}

	// 9. Start HTTP server in goroutine
	go func() {
		slog.Info("server starting", "address", addr)
		// ErrServerClosed is the expected error after Shutdown().
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			cancel()
		}
	}()

	// 10. Block until signal received
	<-ctx.Done()
	slog.Info("shutdown initiated")

	// 11. Graceful shutdown sequence
	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout))
	defer shutdownCancel()

	// 11a. Stop HTTP server (drains in-flight requests)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	// 11b. Wait for workers to complete
	wg.Wait()

	// 11c. Close store
	if err := db.Close(); err != nil {
		slog.Error("store close error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}

func newService(db *store.SQLiteStore, cfg *config.Config) *jukebox.Service {
	return jukebox.NewService(db,
		jukebox.NewReplayWindow(cfg.Selection.ReplayWindow),
		jukebox.WithMaxRedraws(cfg.Selection.MaxRedraws),
	)
}

func newScanner(db *store.SQLiteStore, cfg *config.Config) *scan.Scanner {
	return scan.New(db, scan.Config{
		MusicDir:    cfg.Catalog.MusicDir,
		Extensions:  cfg.Catalog.Extensions,
		Concurrency: cfg.Catalog.ScanConcurrency,
		Prober:      scan.DetectProber(),
	})
}

// newLogger builds the process logger from the log config.
func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Level)}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// startWorker launches a background worker goroutine that respects context cancellation.
// Workers are tracked via WaitGroup for graceful shutdown.
func startWorker(ctx context.Context, wg *sync.WaitGroup, name string, fn func(ctx context.Context)) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Info("worker started", "worker", name)
		fn(ctx)
		slog.Info("worker stopped", "worker", name)
	}()
}
