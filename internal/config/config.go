package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
// It is read-only after Load() returns and thread-safe for concurrent reads.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Selection SelectionConfig `yaml:"selection"`
	Snapshot  SnapshotConfig  `yaml:"snapshot"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int      `yaml:"port"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
	AdminKey        string   `yaml:"-"` // env-only, never in YAML
	// VoteRateLimit is the number of votes a single client may cast per minute.
	// Zero disables rate limiting.
	VoteRateLimit int `yaml:"vote_rate_limit"`
}

// CatalogConfig contains track catalog settings.
type CatalogConfig struct {
	DBPath          string   `yaml:"db_path"`
	MusicDir        string   `yaml:"music_dir"`
	UploadDir       string   `yaml:"upload_dir"`
	Extensions      []string `yaml:"extensions"`
	ScanConcurrency int      `yaml:"scan_concurrency"`
	Watch           bool     `yaml:"watch"`
	WatchDebounce   Duration `yaml:"watch_debounce"`
}

// SelectionConfig contains weighted pick settings.
type SelectionConfig struct {
	DefaultScale float64 `yaml:"default_scale"`
	ReplayWindow int     `yaml:"replay_window"`
	MaxRedraws   int     `yaml:"max_redraws"`
}

// SnapshotConfig contains catalog backup settings.
type SnapshotConfig struct {
	Interval Duration              `yaml:"interval"`
	Dir      string                `yaml:"dir"`
	Storage  SnapshotStorageConfig `yaml:"s3"`
}

// SnapshotStorageConfig contains S3-compatible upload settings.
// An empty Bucket keeps snapshots local-only.
type SnapshotStorageConfig struct {
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Prefix    string `yaml:"prefix"`
	AccessKey string `yaml:"-"` // env-only, never in YAML
	SecretKey string `yaml:"-"` // env-only, never in YAML
	UseSSL    *bool  `yaml:"use_ssl"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Duration is a wrapper around time.Duration that supports YAML string parsing.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Load loads configuration with precedence: defaults → YAML file → env vars.
// Returns an immutable Config suitable for concurrent read access.
func Load() (*Config, error) {
	cfg := newDefaults()

	configPath := getEnv("JUKEBOX_CONFIG_PATH", "config/jukebox.yaml")

	// Missing file is not an error
	if err := loadYAMLFile(cfg, configPath); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromFile loads configuration from a specific path.
// Used for testing and explicit path specification.
func LoadFromFile(path string) (*Config, error) {
	cfg := newDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Defaults returns a Config populated with default values only.
func Defaults() *Config {
	return newDefaults()
}

func newDefaults() *Config {
	useSSL := true
	return &Config{
		Server: ServerConfig{
			Port:            3000,
			ReadTimeout:     Duration(30 * time.Second),
			WriteTimeout:    Duration(5 * time.Minute),
			ShutdownTimeout: Duration(15 * time.Second),
			VoteRateLimit:   60,
		},
		Catalog: CatalogConfig{
			DBPath:          "data/jukebox.db",
			MusicDir:        "music",
			UploadDir:       "music/upload",
			Extensions:      []string{".mp3"},
			ScanConcurrency: 8,
			Watch:           false,
			WatchDebounce:   Duration(5 * time.Second),
		},
		Selection: SelectionConfig{
			DefaultScale: 2.5,
			ReplayWindow: 15,
			MaxRedraws:   1000,
		},
		Snapshot: SnapshotConfig{
			Interval: Duration(1 * time.Hour),
			Dir:      "data/snapshots",
			Storage: SnapshotStorageConfig{
				Region: "us-east-1",
				UseSSL: &useSSL,
			},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// loadYAMLFile loads configuration from a YAML file if it exists.
func loadYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Only non-empty env vars override config values.
func applyEnvOverrides(cfg *Config) {
	// Server
	if v := os.Getenv("JUKEBOX_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("JUKEBOX_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ReadTimeout = Duration(d)
		}
	}
	if v := os.Getenv("JUKEBOX_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.WriteTimeout = Duration(d)
		}
	}
	if v := os.Getenv("JUKEBOX_SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ShutdownTimeout = Duration(d)
		}
	}
	if v := os.Getenv("JUKEBOX_ADMIN_KEY"); v != "" {
		cfg.Server.AdminKey = v
	}
	if v := os.Getenv("JUKEBOX_VOTE_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.VoteRateLimit = n
		}
	}

	// Catalog
	if v := os.Getenv("JUKEBOX_DB_PATH"); v != "" {
		cfg.Catalog.DBPath = v
	}
	if v := os.Getenv("JUKEBOX_MUSIC_DIR"); v != "" {
		cfg.Catalog.MusicDir = v
	}
	if v := os.Getenv("JUKEBOX_UPLOAD_DIR"); v != "" {
		cfg.Catalog.UploadDir = v
	}
	if v := os.Getenv("JUKEBOX_EXTENSIONS"); v != "" {
		cfg.Catalog.Extensions = splitList(v)
	}
	if v := os.Getenv("JUKEBOX_SCAN_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Catalog.ScanConcurrency = n
		}
	}
	if v := os.Getenv("JUKEBOX_WATCH"); v != "" {
		cfg.Catalog.Watch = v == "true" || v == "1"
	}
	if v := os.Getenv("JUKEBOX_WATCH_DEBOUNCE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Catalog.WatchDebounce = Duration(d)
		}
	}

	// Selection
	if v := os.Getenv("JUKEBOX_DEFAULT_SCALE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Selection.DefaultScale = f
		}
	}
	if v := os.Getenv("JUKEBOX_REPLAY_WINDOW"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Selection.ReplayWindow = n
		}
	}
	if v := os.Getenv("JUKEBOX_MAX_REDRAWS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Selection.MaxRedraws = n
		}
	}

	// Snapshot
	if v := os.Getenv("JUKEBOX_SNAPSHOT_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Snapshot.Interval = Duration(d)
		}
	}
	if v := os.Getenv("JUKEBOX_SNAPSHOT_DIR"); v != "" {
		cfg.Snapshot.Dir = v
	}
	if v := os.Getenv("JUKEBOX_SNAPSHOT_BUCKET"); v != "" {
		cfg.Snapshot.Storage.Bucket = v
	}
	if v := os.Getenv("JUKEBOX_S3_ENDPOINT"); v != "" {
		cfg.Snapshot.Storage.Endpoint = v
	}
	if v := os.Getenv("JUKEBOX_S3_REGION"); v != "" {
		cfg.Snapshot.Storage.Region = v
	}
	if v := os.Getenv("JUKEBOX_S3_PREFIX"); v != "" {
		cfg.Snapshot.Storage.Prefix = v
	}
	if v := os.Getenv("JUKEBOX_S3_ACCESS_KEY"); v != "" {
		cfg.Snapshot.Storage.AccessKey = v
	}
	if v := os.Getenv("JUKEBOX_S3_SECRET_KEY"); v != "" {
		cfg.Snapshot.Storage.SecretKey = v
	}
	if v := os.Getenv("JUKEBOX_S3_USE_SSL"); v != "" {
		useSSL := v == "true" || v == "1"
		cfg.Snapshot.Storage.UseSSL = &useSSL
	}

	// Log
	if v := os.Getenv("JUKEBOX_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("JUKEBOX_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

// validate checks that configuration values are usable.
func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Catalog.DBPath == "" {
		return errors.New("catalog.db_path is required")
	}
	if c.Catalog.MusicDir == "" {
		return errors.New("catalog.music_dir is required")
	}
	if len(c.Catalog.Extensions) == 0 {
		return errors.New("catalog.extensions must list at least one extension")
	}
	if c.Catalog.ScanConcurrency < 1 {
		return errors.New("catalog.scan_concurrency must be at least 1")
	}
	s := c.Selection.DefaultScale
	if math.IsNaN(s) || math.IsInf(s, 0) || s <= 0 {
		return fmt.Errorf("selection.default_scale must be a positive number, got %v", s)
	}
	if c.Selection.ReplayWindow < 0 {
		return errors.New("selection.replay_window must not be negative")
	}
	if c.Selection.MaxRedraws < 1 {
		return errors.New("selection.max_redraws must be at least 1")
	}
	if c.Snapshot.Interval < 0 {
		return errors.New("snapshot.interval must not be negative")
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("log.format must be json or text, got %q", c.Log.Format)
	}
	return nil
}

// splitList parses a comma-separated env value, dropping empty entries.
func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// getEnv returns the value of an environment variable or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
