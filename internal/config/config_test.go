// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML loading, env var expansion, defaults, and duration parsing

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

const minimalConfig = `
database:
  path: "./test.db"
storage:
  uploads_dir: "./uploads"
`

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  http_addr: "0.0.0.0:9090"

database:
  path: "./test.db"

storage:
  uploads_dir: "/srv/uploads"

uploads:
  max_archive_bytes: 1048576

logging:
  level: "debug"
  format: "json"

metrics:
  enabled: true
  path: "/prom"

mirror:
  enabled: true
  endpoint: "https://example.r2.cloudflarestorage.com"
  bucket: "themes"
  access_key_id: "ak"
  secret_access_key: "sk"
  prefix: "prod"

reconcile:
  schedule: "@every 30m"

editor:
  session_ttl: "45m"

dedupe:
  ttl: "2m"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "0.0.0.0:9090" {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "0.0.0.0:9090")
	}
	if cfg.Storage.UploadsDir != "/srv/uploads" {
		t.Errorf("Storage.UploadsDir = %q", cfg.Storage.UploadsDir)
	}
	if cfg.Uploads.MaxArchiveBytes != 1048576 {
		t.Errorf("Uploads.MaxArchiveBytes = %d", cfg.Uploads.MaxArchiveBytes)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Path != "/prom" {
		t.Errorf("Metrics = %+v", cfg.Metrics)
	}
	if !cfg.Mirror.Enabled || cfg.Mirror.Bucket != "themes" || cfg.Mirror.Prefix != "prod" {
		t.Errorf("Mirror = %+v", cfg.Mirror)
	}
	if cfg.Reconcile.Schedule != "@every 30m" {
		t.Errorf("Reconcile.Schedule = %q", cfg.Reconcile.Schedule)
	}
	if cfg.Editor.SessionTTL != 45*time.Minute {
		t.Errorf("Editor.SessionTTL = %v, want 45m", cfg.Editor.SessionTTL)
	}
	if cfg.Dedupe.TTL != 2*time.Minute {
		t.Errorf("Dedupe.TTL = %v, want 2m", cfg.Dedupe.TTL)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != DefaultHTTPAddr {
		t.Errorf("Server.HTTPAddr = %q, want default", cfg.Server.HTTPAddr)
	}
	if cfg.Uploads.MaxArchiveBytes != DefaultMaxArchiveBytes {
		t.Errorf("Uploads.MaxArchiveBytes = %d, want default", cfg.Uploads.MaxArchiveBytes)
	}
	if cfg.Editor.SessionTTL != DefaultSessionTTL {
		t.Errorf("Editor.SessionTTL = %v, want default", cfg.Editor.SessionTTL)
	}
	if cfg.Dedupe.TTL != DefaultDedupeTTL {
		t.Errorf("Dedupe.TTL = %v, want default", cfg.Dedupe.TTL)
	}
	if cfg.Metrics.Path != DefaultMetricsPath {
		t.Errorf("Metrics.Path = %q, want default", cfg.Metrics.Path)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Logging.Format = %q, want text", cfg.Logging.Format)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_VITRINE_SECRET", "a-secret-that-is-at-least-32-bytes-long")
	t.Setenv("TEST_VITRINE_UPLOADS", "/data/uploads")

	cfg, err := Load(writeConfig(t, `
database:
  path: "./test.db"
storage:
  uploads_dir: "${TEST_VITRINE_UPLOADS}"
auth:
  jwt_secret: "${TEST_VITRINE_SECRET}"
`))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Auth.JWTSecret != "a-secret-that-is-at-least-32-bytes-long" {
		t.Errorf("Auth.JWTSecret = %q", cfg.Auth.JWTSecret)
	}
	if cfg.Storage.UploadsDir != "/data/uploads" {
		t.Errorf("Storage.UploadsDir = %q", cfg.Storage.UploadsDir)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"invalid yaml", "database: [unclosed", "parsing config file"},
		{"missing database", "storage:\n  uploads_dir: x\n", "database.path is required"},
		{"missing uploads", "database:\n  path: x\n", "storage.uploads_dir is required"},
		{"bad duration", minimalConfig + "editor:\n  session_ttl: soon\n", "editor.session_ttl"},
		{"bad dedupe duration", minimalConfig + "dedupe:\n  ttl: 5 minutes\n", "dedupe.ttl"},
		{"short secret", minimalConfig + "auth:\n  jwt_secret: short\n", "at least 32 bytes"},
		{"mirror without bucket", minimalConfig + "mirror:\n  enabled: true\n", "mirror.bucket"},
		{"mirror without keys", minimalConfig + "mirror:\n  enabled: true\n  bucket: b\n", "access_key_id"},
		{"bad log format", minimalConfig + "logging:\n  format: xml\n", "logging.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("Load() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Load() expected error for missing file")
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("TEST_A", "alpha")
	os.Unsetenv("TEST_UNSET_VITRINE")

	tests := []struct {
		in   string
		want string
	}{
		{"${TEST_A}", "alpha"},
		{"x-${TEST_A}-y", "x-alpha-y"},
		{"${TEST_UNSET_VITRINE}", ""},
		{"no vars", "no vars"},
		{"$TEST_A", "$TEST_A"},
	}
	for _, tt := range tests {
		if got := expandEnvVars(tt.in); got != tt.want {
			t.Errorf("expandEnvVars(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDefaultPath(t *testing.T) {
	t.Setenv("VITRINE_CONFIG", "/etc/vitrine.yaml")
	if got := DefaultPath(); got != "/etc/vitrine.yaml" {
		t.Errorf("DefaultPath() = %q, want env override", got)
	}

	t.Setenv("VITRINE_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	if got := DefaultPath(); got != filepath.Join("/xdg", "vitrine", "config.yaml") {
		t.Errorf("DefaultPath() = %q, want XDG path", got)
	}
}

func TestDefaultYAML_Loads(t *testing.T) {
	t.Setenv("VITRINE_JWT_SECRET", "")
	cfg, err := Load(writeConfig(t, DefaultYAML(t.TempDir())))
	if err != nil {
		t.Fatalf("Load(DefaultYAML) error = %v", err)
	}
	if cfg.Reconcile.Schedule != "@hourly" {
		t.Errorf("Reconcile.Schedule = %q", cfg.Reconcile.Schedule)
	}
	if cfg.Auth.JWTSecret != "" {
		t.Errorf("Auth.JWTSecret = %q, want empty", cfg.Auth.JWTSecret)
	}
}
