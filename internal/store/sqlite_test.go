// ABOUTME: Tests for SQLite store implementation
// ABOUTME: Covers file creation, migrations on existing databases, and timestamp ordering

package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSQLiteStore(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "subdir", "nested", "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created in nested directory")
	}
}

func TestNewSQLiteStore_InMemory(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.CreatePackage(ctx, testPackage("p1", "aurora", time.Now())))
	_, err = store.GetPackage(ctx, "p1")
	assert.NoError(t, err)
}

func TestSQLiteStore_MigratesLegacyCustomTable(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "legacy.db")

	// A database created before digests and legacy content columns existed
	db, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	_, err = db.Exec(`
		CREATE TABLE custom_theme_packages (
			id TEXT PRIMARY KEY, owner_id TEXT NOT NULL, name TEXT NOT NULL,
			package_path TEXT NOT NULL UNIQUE, thumbnail TEXT NOT NULL DEFAULT '',
			root_dir TEXT NOT NULL, code_dir TEXT NOT NULL, archive_dir TEXT NOT NULL,
			thumbnail_dir TEXT NOT NULL, archive_name TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL, updated_at TEXT NOT NULL
		)`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	var n int
	err = store.db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('custom_theme_packages') WHERE name IN ('legacy_html', 'legacy_css', 'archive_digest')`).Scan(&n)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// Reopening is a no-op
	require.NoError(t, store.Close())
	store, err = NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, store.Close())
}

func TestSQLiteStore_LegacyContentIsReadable(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := store.db.Exec(`
		INSERT INTO custom_theme_packages (id, owner_id, name, package_path, root_dir, code_dir, archive_dir, thumbnail_dir, legacy_html, legacy_css, created_at, updated_at)
		VALUES ('c1', 'alice', 'old', 'old', '/r', '/r/unzippedTheme', '/r/zipped', '/r/thumbnail', '<h1>hi</h1>', 'h1{}', ?, ?)
	`, formatTime(now), formatTime(now))
	require.NoError(t, err)

	pkg, err := store.GetCustomPackage(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "<h1>hi</h1>", pkg.LegacyHTML)
	assert.Equal(t, "h1{}", pkg.LegacyCSS)
}

func TestSQLiteStore_ActiveOrderingUsesSubsecondTimes(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)

	// A whole-second timestamp must still sort before a later fractional one
	require.NoError(t, store.UpsertInstallation(ctx, &Installation{ID: "a", StoreID: "S1", PackageID: "p1", IsActive: true, InstalledAt: base}))
	require.NoError(t, store.UpsertInstallation(ctx, &Installation{ID: "b", StoreID: "S1", PackageID: "p2", IsActive: true, InstalledAt: base.Add(100 * time.Millisecond)}))

	active, err := store.ListActiveInstallations(ctx, "S1")
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "b", active[0].ID)
}
