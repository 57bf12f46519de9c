// ABOUTME: Tests for the Installation Manager
// ABOUTME: Covers exclusivity, edit preservation, legacy migration, and the display rule

package install

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/vitrine/internal/errs"
	"github.com/2389/vitrine/internal/ledger"
	"github.com/2389/vitrine/internal/store"
)

type fixture struct {
	m      *Manager
	store  *store.MockStore
	layout Layout
	clock  time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := store.NewMockStore()
	layout := Layout{Root: t.TempDir()}
	f := &fixture{
		store:  s,
		layout: layout,
		clock:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.m = New(s, ledger.New(s, nil), layout, nil)
	f.m.now = func() time.Time {
		f.clock = f.clock.Add(time.Second)
		return f.clock
	}
	return f
}

// addPackage creates a canonical package on disk and in the store.
func (f *fixture) addPackage(t *testing.T, id string, files map[string]string) {
	t.Helper()
	root := filepath.Join(f.layout.ThemesDir(), id)
	code := filepath.Join(root, "unzippedTheme")
	writeFiles(t, code, files)
	require.NoError(t, f.store.CreatePackage(context.Background(), &store.ThemePackage{
		ID: id, Name: "Theme " + id, PackagePath: id,
		Dirs:      store.Dirs{Root: root, Code: code},
		CreatedAt: f.clock, UpdatedAt: f.clock,
	}))
}

func (f *fixture) addCustom(t *testing.T, id string, files map[string]string) {
	t.Helper()
	root := filepath.Join(f.layout.CustomThemesDir(), id)
	code := filepath.Join(root, "unzippedTheme")
	writeFiles(t, code, files)
	require.NoError(t, f.store.CreateCustomPackage(context.Background(), &store.CustomThemePackage{
		ID: id, OwnerID: "alice", Name: "Custom " + id, PackagePath: id,
		Dirs:      store.Dirs{Root: root, Code: code},
		CreatedAt: f.clock, UpdatedAt: f.clock,
	}))
}

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0755))
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

func activeCount(t *testing.T, s store.Store, storeID string) int {
	t.Helper()
	active, err := s.ListActiveInstallations(context.Background(), storeID)
	require.NoError(t, err)
	return len(active)
}

func TestInstall_SeedsWorkingCopy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addPackage(t, "aurora", map[string]string{"index.html": "<h1>A</h1>", "css/style.css": "body{}"})

	res, err := f.m.Install(ctx, "S1", "aurora", false)
	require.NoError(t, err)
	assert.True(t, res.Seeded)
	assert.Equal(t, f.layout.WorkingCopy("S1", "aurora"), res.WorkingCopyPath)
	assert.Equal(t, "body{}", readFile(t, filepath.Join(res.WorkingCopyPath, "unzippedTheme", "css", "style.css")))

	st, err := f.store.GetInstallState(ctx, "S1", "aurora")
	require.NoError(t, err)
	assert.True(t, st.Seeded)

	inst, err := f.store.GetInstallation(ctx, res.InstallationID)
	require.NoError(t, err)
	assert.True(t, inst.IsActive)
	assert.Nil(t, inst.UninstalledAt)

	recent, err := f.store.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "Theme aurora", recent[0].PackageName)
}

func TestInstall_ExclusivityAcrossNamespaces(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addPackage(t, "aurora", map[string]string{"index.html": "a"})
	f.addPackage(t, "nova", map[string]string{"index.html": "n"})
	f.addCustom(t, "mine", map[string]string{"index.html": "m"})

	steps := []struct {
		pkg    string
		custom bool
	}{
		{"aurora", false}, {"nova", false}, {"mine", true}, {"aurora", false}, {"mine", true},
	}
	for _, s := range steps {
		_, err := f.m.Install(ctx, "S1", s.pkg, s.custom)
		require.NoError(t, err)
		assert.Equal(t, 1, activeCount(t, f.store, "S1"), "after installing %s", s.pkg)
	}

	active, err := f.m.Active(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, "mine", active.PackageID)
	assert.True(t, active.IsCustom)
}

func TestInstall_OtherStoresUnaffected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addPackage(t, "aurora", map[string]string{"index.html": "a"})
	f.addPackage(t, "nova", map[string]string{"index.html": "n"})

	_, err := f.m.Install(ctx, "S1", "aurora", false)
	require.NoError(t, err)
	_, err = f.m.Install(ctx, "S2", "nova", false)
	require.NoError(t, err)

	assert.Equal(t, 1, activeCount(t, f.store, "S1"))
	a, err := f.m.Active(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, "aurora", a.PackageID)
}

func TestInstall_ScenarioB_EditsSurviveReinstall(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addPackage(t, "aurora", map[string]string{"index.html": "a", "style.css": "original"})
	f.addPackage(t, "nova", map[string]string{"index.html": "n"})

	res, err := f.m.Install(ctx, "S1", "aurora", false)
	require.NoError(t, err)
	edited := filepath.Join(res.WorkingCopyPath, "unzippedTheme", "style.css")
	require.NoError(t, os.WriteFile(edited, []byte("edited"), 0644))

	_, err = f.m.Uninstall(ctx, res.InstallationID)
	require.NoError(t, err)

	nova, err := f.m.Install(ctx, "S1", "nova", false)
	require.NoError(t, err)
	_, err = f.m.Uninstall(ctx, nova.InstallationID)
	require.NoError(t, err)

	again, err := f.m.Install(ctx, "S1", "aurora", false)
	require.NoError(t, err)
	assert.False(t, again.Seeded)
	assert.Equal(t, res.InstallationID, again.InstallationID, "the installation record is reused")
	assert.Equal(t, "edited", readFile(t, edited))
}

func TestInstall_SeedsWhenIndexMissingButFilesPresent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addPackage(t, "aurora", map[string]string{"style.css": "original"})

	// A working copy written before the install state index existed
	nested := Nested(f.layout.WorkingCopy("S1", "aurora"))
	writeFiles(t, nested, map[string]string{"style.css": "customized"})

	res, err := f.m.Install(ctx, "S1", "aurora", false)
	require.NoError(t, err)
	assert.False(t, res.Seeded)
	assert.Equal(t, "customized", readFile(t, filepath.Join(nested, "style.css")))

	st, err := f.store.GetInstallState(ctx, "S1", "aurora")
	require.NoError(t, err)
	assert.True(t, st.Seeded, "index backfilled from disk")
}

func TestInstall_EmptyNestedDirIsSeeded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addPackage(t, "aurora", map[string]string{"index.html": "a"})

	nested := Nested(f.layout.WorkingCopy("S1", "aurora"))
	require.NoError(t, os.MkdirAll(nested, 0755))

	res, err := f.m.Install(ctx, "S1", "aurora", false)
	require.NoError(t, err)
	assert.True(t, res.Seeded)
	assert.Equal(t, "a", readFile(t, filepath.Join(nested, "index.html")))
}

func TestInstall_StaleIndexWithEmptyNestedDirIsReseeded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addPackage(t, "aurora", map[string]string{"index.html": "a"})

	first, err := f.m.Install(ctx, "S1", "aurora", false)
	require.NoError(t, err)
	require.True(t, first.Seeded)

	// Files removed outside the API leave the index row saying Seeded
	nested := Nested(f.layout.WorkingCopy("S1", "aurora"))
	require.NoError(t, os.RemoveAll(nested))
	require.NoError(t, os.MkdirAll(nested, 0755))
	st, err := f.store.GetInstallState(ctx, "S1", "aurora")
	require.NoError(t, err)
	require.True(t, st.Seeded)

	_, err = f.m.Uninstall(ctx, first.InstallationID)
	require.NoError(t, err)

	again, err := f.m.Install(ctx, "S1", "aurora", false)
	require.NoError(t, err)
	assert.True(t, again.Seeded)
	assert.Equal(t, "a", readFile(t, filepath.Join(nested, "index.html")))
}

func TestInstall_MigratesLegacyRootFiles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addPackage(t, "aurora", map[string]string{"index.html": "canonical", "style.css": "canonical"})

	wc := f.layout.WorkingCopy("S1", "aurora")
	writeFiles(t, wc, map[string]string{"index.html": "legacy edit", "img/logo.svg": "<svg/>"})

	res, err := f.m.Install(ctx, "S1", "aurora", false)
	require.NoError(t, err)
	assert.False(t, res.Seeded, "migrated files count as an existing working copy")

	assert.Equal(t, "legacy edit", readFile(t, filepath.Join(wc, "unzippedTheme", "index.html")))
	assert.Equal(t, "<svg/>", readFile(t, filepath.Join(wc, "unzippedTheme", "img", "logo.svg")))
	_, err = os.Stat(filepath.Join(wc, "index.html"))
	assert.True(t, os.IsNotExist(err), "root copy moved, not duplicated")
}

func TestInstall_RemovesOtherCustomCopiesKeepsRegular(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addPackage(t, "aurora", map[string]string{"index.html": "a"})
	f.addCustom(t, "c1", map[string]string{"index.html": "c1"})
	f.addCustom(t, "c2", map[string]string{"index.html": "c2"})

	_, err := f.m.Install(ctx, "S1", "aurora", false)
	require.NoError(t, err)
	_, err = f.m.Install(ctx, "S1", "c1", true)
	require.NoError(t, err)
	_, err = f.m.Install(ctx, "S1", "c2", true)
	require.NoError(t, err)

	_, err = os.Stat(f.layout.WorkingCopy("S1", "custom-c1"))
	assert.True(t, os.IsNotExist(err), "other custom copy deleted")
	_, err = f.store.GetInstallState(ctx, "S1", "custom-c1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = os.Stat(f.layout.WorkingCopy("S1", "aurora"))
	assert.NoError(t, err, "regular copy retained")
	_, err = os.Stat(f.layout.WorkingCopy("S1", "custom-c2"))
	assert.NoError(t, err)
}

func TestInstall_UnknownPackageHasNoSideEffects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addPackage(t, "aurora", map[string]string{"index.html": "a"})

	_, err := f.m.Install(ctx, "S1", "aurora", false)
	require.NoError(t, err)

	_, err = f.m.Install(ctx, "S1", "ghost", false)
	assert.ErrorIs(t, err, errs.ErrNotFound)

	active, err := f.m.Active(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, "aurora", active.PackageID)
}

func TestInstall_FailedSeedLeavesNothingActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addPackage(t, "aurora", map[string]string{"index.html": "a"})

	// Canonical code dir vanished from disk
	require.NoError(t, os.RemoveAll(filepath.Join(f.layout.ThemesDir(), "aurora")))

	_, err := f.m.Install(ctx, "S1", "aurora", false)
	assert.ErrorIs(t, err, errs.ErrIO)
	assert.Equal(t, 0, activeCount(t, f.store, "S1"))

	_, err = f.store.FindInstallation(ctx, "S1", "aurora", false)
	assert.ErrorIs(t, err, store.ErrNotFound)

	empty, err := dirEmpty(Nested(f.layout.WorkingCopy("S1", "aurora")))
	require.NoError(t, err)
	assert.True(t, empty, "no partial copy that could be mistaken for seeded")

	entries, err := os.ReadDir(f.layout.StoreThemesDir("S1"))
	if err == nil {
		for _, e := range entries {
			assert.NotContains(t, e.Name(), ".seeding")
		}
	}
}

func TestInstall_ValidatesIDs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, tc := range []struct{ store, pkg string }{
		{"", "p"}, {"S1", ""}, {"../S1", "p"}, {"S1", "a/b"}, {"..", "p"},
	} {
		_, err := f.m.Install(ctx, tc.store, tc.pkg, false)
		assert.ErrorIs(t, err, errs.ErrValidation, "store=%q pkg=%q", tc.store, tc.pkg)
	}
}

func TestUninstall(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addPackage(t, "aurora", map[string]string{"index.html": "a"})

	res, err := f.m.Install(ctx, "S1", "aurora", false)
	require.NoError(t, err)

	inst, err := f.m.Uninstall(ctx, res.InstallationID)
	require.NoError(t, err)
	assert.False(t, inst.IsActive)
	require.NotNil(t, inst.UninstalledAt)

	_, err = os.Stat(Nested(res.WorkingCopyPath))
	assert.NoError(t, err, "files kept after uninstall")

	_, err = f.m.Active(ctx, "S1")
	assert.ErrorIs(t, err, errs.ErrNotFound)

	again, err := f.m.Uninstall(ctx, res.InstallationID)
	require.NoError(t, err)
	assert.Equal(t, *inst.UninstalledAt, *again.UninstalledAt, "second uninstall changes nothing")

	_, err = f.m.Uninstall(ctx, "missing")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestListInstalled_MutualExclusivityReadRule(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addPackage(t, "aurora", map[string]string{"index.html": "a"})
	f.addCustom(t, "mine", map[string]string{"index.html": "m"})

	_, err := f.m.Install(ctx, "S1", "aurora", false)
	require.NoError(t, err)

	// A custom record left active by an interrupted write path, plus its directory on disk
	writeFiles(t, Nested(f.layout.WorkingCopy("S1", "custom-mine")), map[string]string{"index.html": "m"})
	require.NoError(t, f.store.UpsertInstallation(ctx, &store.Installation{
		ID: "stray", StoreID: "S1", PackageID: "mine", IsCustom: true, IsActive: true,
		InstalledAt: f.clock.Add(time.Hour),
	}))

	list, err := f.m.ListInstalled(ctx, "S1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "aurora", list[0].PackageID)
	assert.Equal(t, "Theme aurora", list[0].Name)
}

func TestListInstalled_CustomShownWithoutRegular(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addCustom(t, "mine", map[string]string{"index.html": "m"})

	_, err := f.m.Install(ctx, "S1", "mine", true)
	require.NoError(t, err)

	list, err := f.m.ListInstalled(ctx, "S1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].IsCustom)
	assert.Equal(t, "Custom mine", list[0].Name)

	custom, err := f.m.ListCustomInstallations(ctx)
	require.NoError(t, err)
	assert.Len(t, custom, 1)
}

func TestThemeKeyRoundTrip(t *testing.T) {
	assert.Equal(t, "custom-abc", ThemeKey("abc", true))
	assert.Equal(t, "abc", ThemeKey("abc", false))

	id, custom := ParseThemeKey("custom-abc")
	assert.Equal(t, "abc", id)
	assert.True(t, custom)

	id, custom = ParseThemeKey("abc")
	assert.Equal(t, "abc", id)
	assert.False(t, custom)
}
