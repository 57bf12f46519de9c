// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides theme, installation, and ledger persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// timeFormat is fixed width so stored timestamps sort lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// A single connection keeps :memory: databases shared across calls
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS theme_packages (
			id            TEXT PRIMARY KEY,
			name          TEXT NOT NULL,
			description   TEXT NOT NULL DEFAULT '',
			category      TEXT NOT NULL DEFAULT '',
			plan          TEXT NOT NULL DEFAULT '',
			price         INTEGER NOT NULL DEFAULT 0,
			version       TEXT NOT NULL DEFAULT '',
			tags_json     TEXT NOT NULL DEFAULT '[]',
			package_path  TEXT NOT NULL UNIQUE,
			thumbnail     TEXT NOT NULL DEFAULT '',
			root_dir      TEXT NOT NULL,
			code_dir      TEXT NOT NULL,
			archive_dir   TEXT NOT NULL,
			thumbnail_dir TEXT NOT NULL,
			archive_name  TEXT NOT NULL DEFAULT '',
			created_at    TEXT NOT NULL,
			updated_at    TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS custom_theme_packages (
			id            TEXT PRIMARY KEY,
			owner_id      TEXT NOT NULL,
			name          TEXT NOT NULL,
			package_path  TEXT NOT NULL UNIQUE,
			thumbnail     TEXT NOT NULL DEFAULT '',
			root_dir      TEXT NOT NULL,
			code_dir      TEXT NOT NULL,
			archive_dir   TEXT NOT NULL,
			thumbnail_dir TEXT NOT NULL,
			archive_name  TEXT NOT NULL DEFAULT '',
			created_at    TEXT NOT NULL,
			updated_at    TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_custom_theme_packages_owner
			ON custom_theme_packages(owner_id);

		CREATE TABLE IF NOT EXISTS installations (
			id                TEXT PRIMARY KEY,
			store_id          TEXT NOT NULL,
			package_id        TEXT NOT NULL,
			is_custom         INTEGER NOT NULL DEFAULT 0,
			is_active         INTEGER NOT NULL DEFAULT 0,
			working_copy_path TEXT NOT NULL,
			installed_at      TEXT NOT NULL,
			uninstalled_at    TEXT,
			UNIQUE (store_id, package_id, is_custom)
		);

		CREATE INDEX IF NOT EXISTS idx_installations_store_active
			ON installations(store_id, is_active);

		CREATE INDEX IF NOT EXISTS idx_installations_custom
			ON installations(is_custom);

		CREATE TABLE IF NOT EXISTS install_state (
			store_id   TEXT NOT NULL,
			theme_key  TEXT NOT NULL,
			seeded     INTEGER NOT NULL DEFAULT 0,
			dirty      INTEGER NOT NULL DEFAULT 0,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (store_id, theme_key)
		);

		CREATE TABLE IF NOT EXISTS recent_installations (
			seq          INTEGER PRIMARY KEY AUTOINCREMENT,
			id           TEXT NOT NULL UNIQUE,
			package_id   TEXT NOT NULL,
			is_custom    INTEGER NOT NULL DEFAULT 0,
			store_id     TEXT NOT NULL,
			package_name TEXT NOT NULL,
			installed_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS audit_log (
			seq         INTEGER PRIMARY KEY AUTOINCREMENT,
			audit_id    TEXT NOT NULL UNIQUE,
			actor_id    TEXT NOT NULL DEFAULT '',
			store_id    TEXT NOT NULL DEFAULT '',
			action      TEXT NOT NULL,
			target_type TEXT NOT NULL,
			target_id   TEXT NOT NULL,
			ts          TEXT NOT NULL,
			detail_json TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_audit_log_ts ON audit_log(ts);
		CREATE INDEX IF NOT EXISTS idx_audit_log_target ON audit_log(target_type, target_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// runMigrations applies schema migrations for existing databases.
// These are idempotent - safe to run multiple times.
func (s *SQLiteStore) runMigrations() error {
	// SQLite doesn't support ADD COLUMN IF NOT EXISTS, so we check first
	migrations := []struct {
		table  string
		column string
		apply  string
	}{
		{
			table:  "theme_packages",
			column: "archive_digest",
			apply:  `ALTER TABLE theme_packages ADD COLUMN archive_digest TEXT NOT NULL DEFAULT ''`,
		},
		{
			table:  "custom_theme_packages",
			column: "archive_digest",
			apply:  `ALTER TABLE custom_theme_packages ADD COLUMN archive_digest TEXT NOT NULL DEFAULT ''`,
		},
		{
			table:  "custom_theme_packages",
			column: "legacy_html",
			apply:  `ALTER TABLE custom_theme_packages ADD COLUMN legacy_html TEXT NOT NULL DEFAULT ''`,
		},
		{
			table:  "custom_theme_packages",
			column: "legacy_css",
			apply:  `ALTER TABLE custom_theme_packages ADD COLUMN legacy_css TEXT NOT NULL DEFAULT ''`,
		},
	}

	for _, m := range migrations {
		var exists int
		err := s.db.QueryRow(`SELECT 1 FROM pragma_table_info(?) WHERE name = ?`, m.table, m.column).Scan(&exists)
		if err == nil {
			continue
		}
		if _, err := s.db.Exec(m.apply); err != nil {
			return fmt.Errorf("adding %s column to %s: %w", m.column, m.table, err)
		}
		s.logger.Info("applied migration", "column", m.column, "table", m.table)
	}

	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// isConstraintViolation checks if the error is a SQLite UNIQUE constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeFormat, s)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

const packageColumns = `id, name, description, category, plan, price, version, tags_json,
	package_path, thumbnail, root_dir, code_dir, archive_dir, thumbnail_dir,
	archive_name, archive_digest, created_at, updated_at`

// CreatePackage inserts a catalog theme record.
// Returns ErrDuplicatePackagePath if the directory name is already recorded.
func (s *SQLiteStore) CreatePackage(ctx context.Context, pkg *ThemePackage) error {
	tags, err := json.Marshal(nonNilTags(pkg.Tags))
	if err != nil {
		return fmt.Errorf("encoding tags: %w", err)
	}

	query := `INSERT INTO theme_packages (` + packageColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, query,
		pkg.ID, pkg.Name, pkg.Description, pkg.Category, pkg.Plan, pkg.Price, pkg.Version, string(tags),
		pkg.PackagePath, pkg.Thumbnail, pkg.Dirs.Root, pkg.Dirs.Code, pkg.Dirs.Archive, pkg.Dirs.Thumbnail,
		pkg.ArchiveName, pkg.ArchiveDigest, formatTime(pkg.CreatedAt), formatTime(pkg.UpdatedAt),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicatePackagePath
		}
		return fmt.Errorf("inserting theme package: %w", err)
	}

	s.logger.Debug("created theme package", "id", pkg.ID, "path", pkg.PackagePath)
	return nil
}

// GetPackage retrieves a catalog theme by ID.
// Returns ErrNotFound if the theme doesn't exist.
func (s *SQLiteStore) GetPackage(ctx context.Context, id string) (*ThemePackage, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+packageColumns+` FROM theme_packages WHERE id = ?`, id)
	pkg, err := scanPackage(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying theme package: %w", err)
	}
	return pkg, nil
}

// ListPackages returns every catalog theme, newest first.
func (s *SQLiteStore) ListPackages(ctx context.Context) ([]*ThemePackage, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+packageColumns+` FROM theme_packages ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("querying theme packages: %w", err)
	}
	defer rows.Close()

	var pkgs []*ThemePackage
	for rows.Next() {
		pkg, err := scanPackage(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning theme package row: %w", err)
		}
		pkgs = append(pkgs, pkg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating theme package rows: %w", err)
	}
	return pkgs, nil
}

// UpdatePackage rewrites every mutable field of a catalog theme.
// Returns ErrNotFound if the theme doesn't exist.
func (s *SQLiteStore) UpdatePackage(ctx context.Context, pkg *ThemePackage) error {
	tags, err := json.Marshal(nonNilTags(pkg.Tags))
	if err != nil {
		return fmt.Errorf("encoding tags: %w", err)
	}

	query := `
		UPDATE theme_packages
		SET name = ?, description = ?, category = ?, plan = ?, price = ?, version = ?, tags_json = ?,
			thumbnail = ?, archive_name = ?, archive_digest = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := s.db.ExecContext(ctx, query,
		pkg.Name, pkg.Description, pkg.Category, pkg.Plan, pkg.Price, pkg.Version, string(tags),
		pkg.Thumbnail, pkg.ArchiveName, pkg.ArchiveDigest, formatTime(pkg.UpdatedAt),
		pkg.ID,
	)
	if err != nil {
		return fmt.Errorf("updating theme package: %w", err)
	}
	return requireAffected(result)
}

// DeletePackage removes a catalog theme record.
// Returns ErrNotFound if the theme doesn't exist.
func (s *SQLiteStore) DeletePackage(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM theme_packages WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting theme package: %w", err)
	}
	if err := requireAffected(result); err != nil {
		return err
	}
	s.logger.Debug("deleted theme package", "id", id)
	return nil
}

func scanPackage(row rowScanner) (*ThemePackage, error) {
	var pkg ThemePackage
	var tagsJSON, createdAt, updatedAt string
	err := row.Scan(
		&pkg.ID, &pkg.Name, &pkg.Description, &pkg.Category, &pkg.Plan, &pkg.Price, &pkg.Version, &tagsJSON,
		&pkg.PackagePath, &pkg.Thumbnail, &pkg.Dirs.Root, &pkg.Dirs.Code, &pkg.Dirs.Archive, &pkg.Dirs.Thumbnail,
		&pkg.ArchiveName, &pkg.ArchiveDigest, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tagsJSON), &pkg.Tags); err != nil {
		return nil, fmt.Errorf("decoding tags: %w", err)
	}
	if pkg.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if pkg.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &pkg, nil
}

const customColumns = `id, owner_id, name, package_path, thumbnail, root_dir, code_dir, archive_dir,
	thumbnail_dir, archive_name, archive_digest, legacy_html, legacy_css, created_at, updated_at`

// CreateCustomPackage inserts a custom theme record.
func (s *SQLiteStore) CreateCustomPackage(ctx context.Context, pkg *CustomThemePackage) error {
	query := `INSERT INTO custom_theme_packages (` + customColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		pkg.ID, pkg.OwnerID, pkg.Name, pkg.PackagePath, pkg.Thumbnail,
		pkg.Dirs.Root, pkg.Dirs.Code, pkg.Dirs.Archive, pkg.Dirs.Thumbnail,
		pkg.ArchiveName, pkg.ArchiveDigest, pkg.LegacyHTML, pkg.LegacyCSS,
		formatTime(pkg.CreatedAt), formatTime(pkg.UpdatedAt),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicatePackagePath
		}
		return fmt.Errorf("inserting custom theme package: %w", err)
	}

	s.logger.Debug("created custom theme package", "id", pkg.ID, "owner", pkg.OwnerID)
	return nil
}

// GetCustomPackage retrieves a custom theme by ID.
// Returns ErrNotFound if the theme doesn't exist.
func (s *SQLiteStore) GetCustomPackage(ctx context.Context, id string) (*CustomThemePackage, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+customColumns+` FROM custom_theme_packages WHERE id = ?`, id)
	pkg, err := scanCustomPackage(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying custom theme package: %w", err)
	}
	return pkg, nil
}

// ListCustomPackages returns the custom themes owned by ownerID, newest first.
func (s *SQLiteStore) ListCustomPackages(ctx context.Context, ownerID string) ([]*CustomThemePackage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+customColumns+` FROM custom_theme_packages WHERE owner_id = ? ORDER BY created_at DESC, id`,
		ownerID)
	if err != nil {
		return nil, fmt.Errorf("querying custom theme packages: %w", err)
	}
	defer rows.Close()

	var pkgs []*CustomThemePackage
	for rows.Next() {
		pkg, err := scanCustomPackage(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning custom theme package row: %w", err)
		}
		pkgs = append(pkgs, pkg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating custom theme package rows: %w", err)
	}
	return pkgs, nil
}

// UpdateCustomPackage rewrites the mutable fields of a custom theme.
// Legacy content columns are never written here.
func (s *SQLiteStore) UpdateCustomPackage(ctx context.Context, pkg *CustomThemePackage) error {
	query := `
		UPDATE custom_theme_packages
		SET name = ?, thumbnail = ?, archive_name = ?, archive_digest = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := s.db.ExecContext(ctx, query,
		pkg.Name, pkg.Thumbnail, pkg.ArchiveName, pkg.ArchiveDigest, formatTime(pkg.UpdatedAt), pkg.ID,
	)
	if err != nil {
		return fmt.Errorf("updating custom theme package: %w", err)
	}
	return requireAffected(result)
}

// DeleteCustomPackage removes a custom theme record.
func (s *SQLiteStore) DeleteCustomPackage(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM custom_theme_packages WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting custom theme package: %w", err)
	}
	if err := requireAffected(result); err != nil {
		return err
	}
	s.logger.Debug("deleted custom theme package", "id", id)
	return nil
}

func scanCustomPackage(row rowScanner) (*CustomThemePackage, error) {
	var pkg CustomThemePackage
	var createdAt, updatedAt string
	err := row.Scan(
		&pkg.ID, &pkg.OwnerID, &pkg.Name, &pkg.PackagePath, &pkg.Thumbnail,
		&pkg.Dirs.Root, &pkg.Dirs.Code, &pkg.Dirs.Archive, &pkg.Dirs.Thumbnail,
		&pkg.ArchiveName, &pkg.ArchiveDigest, &pkg.LegacyHTML, &pkg.LegacyCSS,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	if pkg.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if pkg.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &pkg, nil
}

func requireAffected(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func nonNilTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
