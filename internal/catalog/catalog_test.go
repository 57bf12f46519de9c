// ABOUTME: Tests for publishing, republishing, and removing catalog and custom themes
// ABOUTME: Builds zip archives in memory and checks the resulting on-disk layout

package catalog

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/vitrine/internal/errs"
	"github.com/2389/vitrine/internal/install"
	"github.com/2389/vitrine/internal/ledger"
	"github.com/2389/vitrine/internal/store"
)

type fakeMirror struct {
	mu      sync.Mutex
	puts    []string
	deletes []string
	fail    bool
}

func (m *fakeMirror) Put(_ context.Context, key, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := os.Stat(path); err != nil {
		return err
	}
	m.puts = append(m.puts, key)
	if m.fail {
		return errors.New("bucket unavailable")
	}
	return nil
}

func (m *fakeMirror) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes = append(m.deletes, key)
	return nil
}

func zipBytes(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range files {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func upload(name string, b []byte) *Upload {
	return &Upload{Filename: name, Size: int64(len(b)), Reader: bytes.NewReader(b)}
}

func png() *Upload {
	return upload("shot.png", []byte("\x89PNG fake"))
}

type fixture struct {
	cat    *Catalog
	store  *store.MockStore
	ledger *ledger.Ledger
	layout install.Layout
	mirror *fakeMirror
}

func setup(t *testing.T) *fixture {
	t.Helper()
	s := store.NewMockStore()
	l := ledger.New(s, nil)
	layout := install.Layout{Root: t.TempDir()}
	m := &fakeMirror{}
	return &fixture{
		cat:    New(s, l, layout, Options{MaxArchiveBytes: 1 << 20, Mirror: m}, nil),
		store:  s,
		ledger: l,
		layout: layout,
		mirror: m,
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

func TestPublish_LaysOutPackage(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	arc := zipBytes(t, map[string]string{
		"aurora-1.0/index.html": "<h1>Aurora</h1>",
		"aurora-1.0/css/a.css":  "body{}",
		"aurora-1.0/theme.toml": "description = \"Northern lights\"\nversion = \"1.0\"\ntags = [\"dark\"]\n",
	})

	pkg, err := f.cat.Publish(ctx, PublishRequest{
		Name: "Aurora", Plan: "premium", Price: 4900,
		Archive: upload("aurora.zip", arc), Thumbnail: png(),
	})
	require.NoError(t, err)

	root := filepath.Join(f.layout.ThemesDir(), "Aurora")
	assert.Equal(t, "Aurora", pkg.PackagePath)
	assert.Equal(t, root, pkg.Dirs.Root)
	assert.Equal(t, "<h1>Aurora</h1>", readFile(t, filepath.Join(root, "unzippedTheme", "index.html")))
	assert.Equal(t, "body{}", readFile(t, filepath.Join(root, "unzippedTheme", "css", "a.css")))
	assert.FileExists(t, filepath.Join(root, "zipped", "aurora.zip"))
	assert.FileExists(t, filepath.Join(root, "thumbnail", "thumbnail.png"))
	assert.Equal(t, "thumbnail.png", pkg.Thumbnail)
	assert.Len(t, pkg.ArchiveDigest, 64)

	// Manifest fills blanks only
	assert.Equal(t, "Northern lights", pkg.Description)
	assert.Equal(t, "1.0", pkg.Version)
	assert.Equal(t, []string{"dark"}, pkg.Tags)
	assert.Equal(t, int64(4900), pkg.Price)

	got, err := f.cat.Get(ctx, pkg.ID)
	require.NoError(t, err)
	assert.Equal(t, pkg.PackagePath, got.PackagePath)

	assert.Equal(t, []string{"themes/Aurora/aurora.zip"}, f.mirror.puts)
}

func TestPublish_NameCollisionGetsSuffix(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	arc := zipBytes(t, map[string]string{"index.html": "x"})

	first, err := f.cat.Publish(ctx, PublishRequest{Name: "Shop", Archive: upload("a.zip", arc), Thumbnail: png()})
	require.NoError(t, err)
	second, err := f.cat.Publish(ctx, PublishRequest{Name: "Shop", Archive: upload("a.zip", arc), Thumbnail: png()})
	require.NoError(t, err)

	assert.Equal(t, "Shop", first.PackagePath)
	assert.NotEqual(t, first.PackagePath, second.PackagePath)
	assert.Regexp(t, `^Shop-[0-9a-f]{6}$`, second.PackagePath)
}

func TestPublish_ValidationTouchesNothing(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	arc := zipBytes(t, map[string]string{"index.html": "x"})

	tests := []struct {
		name string
		req  PublishRequest
	}{
		{"missing archive", PublishRequest{Name: "A", Thumbnail: png()}},
		{"missing thumbnail", PublishRequest{Name: "A", Archive: upload("a.zip", arc)}},
		{"missing name", PublishRequest{Archive: upload("a.zip", arc), Thumbnail: png()}},
		{"bad thumbnail type", PublishRequest{Name: "A", Archive: upload("a.zip", arc), Thumbnail: upload("x.exe", []byte("MZ"))}},
		{"oversize archive", PublishRequest{Name: "A", Archive: &Upload{Filename: "a.zip", Size: 2 << 20, Reader: bytes.NewReader(arc)}, Thumbnail: png()}},
		{"name with separator", PublishRequest{Name: "../A", Archive: upload("a.zip", arc), Thumbnail: png()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.cat.Publish(ctx, tt.req)
			assert.ErrorIs(t, err, errs.ErrValidation)
		})
	}

	entries, _ := os.ReadDir(f.layout.ThemesDir())
	assert.Empty(t, entries)
	pkgs, err := f.cat.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, pkgs)
}

func TestPublish_CorruptArchiveCleansUp(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.cat.Publish(ctx, PublishRequest{
		Name: "Broken", Archive: upload("broken.zip", []byte("PK\x03\x04 not really")), Thumbnail: png(),
	})
	assert.ErrorIs(t, err, errs.ErrExtraction)

	_, statErr := os.Stat(filepath.Join(f.layout.ThemesDir(), "Broken"))
	assert.True(t, os.IsNotExist(statErr), "package directory removed")
	assert.Empty(t, f.mirror.puts)
}

func TestPublish_MirrorFailureIsNotFatal(t *testing.T) {
	f := setup(t)
	f.mirror.fail = true

	_, err := f.cat.Publish(context.Background(), PublishRequest{
		Name: "A", Archive: upload("a.zip", zipBytes(t, map[string]string{"index.html": "x"})), Thumbnail: png(),
	})
	assert.NoError(t, err)
}

func TestRepublish(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	pkg, err := f.cat.Publish(ctx, PublishRequest{
		Name: "Aurora", Description: "v1", Version: "1.0",
		Archive:   upload("aurora.zip", zipBytes(t, map[string]string{"index.html": "v1", "old.css": "x"})),
		Thumbnail: png(),
	})
	require.NoError(t, err)
	code := filepath.Join(pkg.Dirs.Code, "index.html")

	t.Run("metadata only", func(t *testing.T) {
		desc := "updated"
		price := int64(100)
		got, err := f.cat.Republish(ctx, pkg.ID, RepublishRequest{Description: &desc, Price: &price})
		require.NoError(t, err)
		assert.Equal(t, "updated", got.Description)
		assert.Equal(t, int64(100), got.Price)
		assert.Equal(t, "1.0", got.Version)
		assert.Equal(t, "v1", readFile(t, code))
		assert.Equal(t, pkg.ArchiveDigest, got.ArchiveDigest)
	})

	t.Run("new archive replaces code", func(t *testing.T) {
		got, err := f.cat.Republish(ctx, pkg.ID, RepublishRequest{
			Archive: upload("aurora-2.zip", zipBytes(t, map[string]string{"wrap/index.html": "v2"})),
		})
		require.NoError(t, err)
		assert.Equal(t, "v2", readFile(t, code))
		assert.NoFileExists(t, filepath.Join(pkg.Dirs.Code, "old.css"))
		assert.FileExists(t, filepath.Join(pkg.Dirs.Archive, "aurora-2.zip"))
		assert.NoFileExists(t, filepath.Join(pkg.Dirs.Archive, "aurora.zip"))
		assert.NotEqual(t, pkg.ArchiveDigest, got.ArchiveDigest)
		assert.Contains(t, f.mirror.deletes, "themes/Aurora/aurora.zip")

		leftovers, err := filepath.Glob(filepath.Join(pkg.Dirs.Root, ".*"))
		require.NoError(t, err)
		assert.Empty(t, leftovers, "staging files removed")
	})

	t.Run("failed extraction keeps previous code", func(t *testing.T) {
		_, err := f.cat.Republish(ctx, pkg.ID, RepublishRequest{
			Archive: upload("bad.zip", []byte("PK\x03\x04 junk")),
		})
		assert.ErrorIs(t, err, errs.ErrExtraction)
		assert.Equal(t, "v2", readFile(t, code))
		assert.FileExists(t, filepath.Join(pkg.Dirs.Archive, "aurora-2.zip"))
	})

	t.Run("new thumbnail replaces old", func(t *testing.T) {
		got, err := f.cat.Republish(ctx, pkg.ID, RepublishRequest{Thumbnail: upload("new.JPG", []byte("jpeg"))})
		require.NoError(t, err)
		assert.Equal(t, "thumbnail.jpg", got.Thumbnail)
		assert.FileExists(t, filepath.Join(pkg.Dirs.Thumbnail, "thumbnail.jpg"))
		assert.NoFileExists(t, filepath.Join(pkg.Dirs.Thumbnail, "thumbnail.png"))
	})

	t.Run("unknown theme", func(t *testing.T) {
		_, err := f.cat.Republish(ctx, "missing", RepublishRequest{})
		assert.ErrorIs(t, err, errs.ErrNotFound)
	})

	t.Run("empty name rejected", func(t *testing.T) {
		blank := " "
		_, err := f.cat.Republish(ctx, pkg.ID, RepublishRequest{Name: &blank})
		assert.ErrorIs(t, err, errs.ErrValidation)
	})
}

func TestRemove_CascadesInstallations(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	pkg, err := f.cat.Publish(ctx, PublishRequest{
		Name: "Aurora", Archive: upload("aurora.zip", zipBytes(t, map[string]string{"index.html": "x"})), Thumbnail: png(),
	})
	require.NoError(t, err)

	for _, storeID := range []string{"S1", "S2"} {
		require.NoError(t, f.store.UpsertInstallation(ctx, &store.Installation{
			ID: "inst-" + storeID, StoreID: storeID, PackageID: pkg.ID, IsActive: true, InstalledAt: time.Now(),
		}))
	}
	require.NoError(t, f.ledger.Record(ctx, store.RecentInstallation{PackageID: pkg.ID, StoreID: "S1", InstalledAt: time.Now()}))

	// A store's working copy outlives the package
	wc := f.layout.WorkingCopy("S1", pkg.ID)
	require.NoError(t, os.MkdirAll(install.Nested(wc), 0755))

	require.NoError(t, f.cat.Remove(ctx, pkg.ID))

	_, err = f.cat.Get(ctx, pkg.ID)
	assert.ErrorIs(t, err, errs.ErrNotFound)
	_, err = f.store.GetInstallation(ctx, "inst-S1")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.NoDirExists(t, pkg.Dirs.Root)
	assert.DirExists(t, wc)

	recent, err := f.ledger.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, recent)
	assert.Equal(t, []string{"themes/Aurora/aurora.zip"}, f.mirror.deletes)

	assert.ErrorIs(t, f.cat.Remove(ctx, pkg.ID), errs.ErrNotFound)
}

func TestCustom_OwnershipAndContent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	arc := zipBytes(t, map[string]string{"mine/index.html": "<main/>", "mine/style.css": "main{}"})

	pkg, err := f.cat.PublishCustom(ctx, "alice", "Mine", upload("mine.zip", arc), nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(f.layout.CustomThemesDir(), "Mine"), pkg.Dirs.Root)
	assert.Empty(t, pkg.Thumbnail)
	assert.Equal(t, []string{"custom themes/Mine/mine.zip"}, f.mirror.puts)

	content, err := f.cat.CustomContent(ctx, "alice", pkg.ID)
	require.NoError(t, err)
	assert.Equal(t, "<main/>", content.HTML)
	assert.Equal(t, "main{}", content.CSS)

	_, err = f.cat.CustomContent(ctx, "bob", pkg.ID)
	assert.ErrorIs(t, err, errs.ErrAccessDenied)
	name := "Stolen"
	_, err = f.cat.RepublishCustom(ctx, "bob", pkg.ID, CustomRepublishRequest{Name: &name})
	assert.ErrorIs(t, err, errs.ErrAccessDenied)
	assert.ErrorIs(t, f.cat.RemoveCustom(ctx, "bob", pkg.ID), errs.ErrAccessDenied)
	assert.DirExists(t, pkg.Dirs.Root)

	list, err := f.cat.ListCustom(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, list, 1)
	list, err = f.cat.ListCustom(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, list)

	renamed, err := f.cat.RepublishCustom(ctx, "alice", pkg.ID, CustomRepublishRequest{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Stolen", renamed.Name)

	require.NoError(t, f.store.UpsertInstallation(ctx, &store.Installation{
		ID: "i1", StoreID: "S1", PackageID: pkg.ID, IsCustom: true, IsActive: true, InstalledAt: time.Now(),
	}))
	require.NoError(t, f.cat.RemoveCustom(ctx, "alice", pkg.ID))
	assert.NoDirExists(t, pkg.Dirs.Root)
	_, err = f.store.GetInstallation(ctx, "i1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCustomContent_LegacyFallback(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	code := filepath.Join(f.layout.CustomThemesDir(), "old", "unzippedTheme")
	require.NoError(t, os.MkdirAll(code, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(code, "style.css"), []byte("on-disk"), 0644))
	require.NoError(t, f.store.CreateCustomPackage(ctx, &store.CustomThemePackage{
		ID: "legacy", OwnerID: "alice", Name: "Old", PackagePath: "old",
		Dirs:       store.Dirs{Code: code},
		LegacyHTML: "<p>inline</p>", LegacyCSS: "inline{}",
	}))

	content, err := f.cat.CustomContent(ctx, "alice", "legacy")
	require.NoError(t, err)
	assert.Equal(t, "<p>inline</p>", content.HTML)
	assert.Equal(t, "on-disk", content.CSS)
}

func TestPublishCustom_Validation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	arc := zipBytes(t, map[string]string{"index.html": "x"})

	_, err := f.cat.PublishCustom(ctx, "", "Mine", upload("a.zip", arc), nil)
	assert.ErrorIs(t, err, errs.ErrValidation)
	_, err = f.cat.PublishCustom(ctx, "alice", "Mine", nil, nil)
	assert.ErrorIs(t, err, errs.ErrValidation)
	_, err = f.cat.PublishCustom(ctx, "alice", "Mine", upload("a.zip", arc), upload("t.bmp", []byte("BM")))
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestWriteUpload_EnforcesLimitWithoutSize(t *testing.T) {
	f := setup(t)
	f.cat.maxBytes = 8
	path := filepath.Join(t.TempDir(), "big.zip")

	err := f.cat.writeUpload(&Upload{Filename: "big.zip", Size: -1, Reader: bytes.NewReader(make([]byte, 64))}, path)
	assert.ErrorIs(t, err, errs.ErrValidation)
	assert.NoFileExists(t, path)
}
