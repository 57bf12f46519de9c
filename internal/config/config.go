// ABOUTME: Configuration loading and parsing for the vitrine theme service
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete vitrine configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Storage   StorageConfig   `yaml:"storage"`
	Uploads   UploadsConfig   `yaml:"uploads"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Mirror    MirrorConfig    `yaml:"mirror"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
	Editor    EditorConfig    `yaml:"editor"`
	Dedupe    DedupeConfig    `yaml:"dedupe"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// StorageConfig locates the uploads tree holding packages and working copies
type StorageConfig struct {
	UploadsDir string `yaml:"uploads_dir"`
}

// UploadsConfig bounds archive uploads
type UploadsConfig struct {
	MaxArchiveBytes int64 `yaml:"max_archive_bytes"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// MirrorConfig holds S3-compatible archive mirror configuration
type MirrorConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Endpoint        string `yaml:"endpoint"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Prefix          string `yaml:"prefix"`
}

// ReconcileConfig schedules the install state backfill
type ReconcileConfig struct {
	// Schedule is a cron spec such as "0 * * * *" or "@hourly". Empty disables the job.
	Schedule string `yaml:"schedule"`
}

// EditorConfig holds editor session configuration
type EditorConfig struct {
	SessionTTL    time.Duration `yaml:"-"`
	SessionTTLRaw string        `yaml:"session_ttl"`
}

// DedupeConfig holds upload idempotency configuration
type DedupeConfig struct {
	TTL    time.Duration `yaml:"-"`
	TTLRaw string        `yaml:"ttl"`
}

// Defaults
const (
	DefaultHTTPAddr        = "127.0.0.1:8080"
	DefaultMaxArchiveBytes = 100 << 20
	DefaultMetricsPath     = "/metrics"
	DefaultSessionTTL      = 30 * time.Minute
	DefaultDedupeTTL       = 10 * time.Minute
)

// DefaultPath returns the config file location.
// Priority: VITRINE_CONFIG env var > XDG_CONFIG_HOME/vitrine/config.yaml > ~/.config/vitrine/config.yaml
func DefaultPath() string {
	if envPath := os.Getenv("VITRINE_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml"
		}
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "vitrine", "config.yaml")
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

func applyDefaults(cfg *Config) {
	if cfg.Server.HTTPAddr == "" {
		cfg.Server.HTTPAddr = DefaultHTTPAddr
	}
	if cfg.Uploads.MaxArchiveBytes == 0 {
		cfg.Uploads.MaxArchiveBytes = DefaultMaxArchiveBytes
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Editor.SessionTTL == 0 {
		cfg.Editor.SessionTTL = DefaultSessionTTL
	}
	if cfg.Dedupe.TTL == 0 {
		cfg.Dedupe.TTL = DefaultDedupeTTL
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Storage.UploadsDir == "" {
		return fmt.Errorf("storage.uploads_dir is required")
	}
	if c.Uploads.MaxArchiveBytes < 0 {
		return fmt.Errorf("uploads.max_archive_bytes cannot be negative")
	}
	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwt_secret must be at least 32 bytes")
	}
	if c.Mirror.Enabled {
		if c.Mirror.Bucket == "" {
			return fmt.Errorf("mirror.bucket is required when mirror is enabled")
		}
		if c.Mirror.AccessKeyID == "" || c.Mirror.SecretAccessKey == "" {
			return fmt.Errorf("mirror.access_key_id and mirror.secret_access_key are required when mirror is enabled")
		}
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Editor.SessionTTLRaw != "" {
		cfg.Editor.SessionTTL, err = time.ParseDuration(cfg.Editor.SessionTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing editor.session_ttl %q: %w", cfg.Editor.SessionTTLRaw, err)
		}
	}

	if cfg.Dedupe.TTLRaw != "" {
		cfg.Dedupe.TTL, err = time.ParseDuration(cfg.Dedupe.TTLRaw)
		if err != nil {
			return fmt.Errorf("parsing dedupe.ttl %q: %w", cfg.Dedupe.TTLRaw, err)
		}
	}

	return nil
}

// DefaultYAML is written by `vitrine init`.
func DefaultYAML(dataDir string) string {
	return fmt.Sprintf(`# vitrine configuration
server:
  http_addr: "%s"

database:
  path: "%s"

storage:
  uploads_dir: "%s"

uploads:
  max_archive_bytes: %d

auth:
  # At least 32 bytes. Leave empty to trust the X-Actor-ID header (development only).
  jwt_secret: "${VITRINE_JWT_SECRET}"

logging:
  level: "info"
  format: "text"

metrics:
  enabled: true
  path: "/metrics"

mirror:
  enabled: false
  endpoint: ""
  bucket: ""
  region: "auto"
  access_key_id: "${VITRINE_MIRROR_ACCESS_KEY_ID}"
  secret_access_key: "${VITRINE_MIRROR_SECRET_ACCESS_KEY}"
  prefix: "vitrine"

reconcile:
  schedule: "@hourly"

editor:
  session_ttl: "30m"

dedupe:
  ttl: "10m"
`, DefaultHTTPAddr,
		filepath.Join(dataDir, "vitrine.db"),
		filepath.Join(dataDir, "uploads"),
		DefaultMaxArchiveBytes)
}
