// ABOUTME: Installation Manager activating exactly one theme per store
// ABOUTME: Seeds store working copies from canonical packages without overwriting edits

package install

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/2389/vitrine/internal/errs"
	"github.com/2389/vitrine/internal/ledger"
	"github.com/2389/vitrine/internal/metrics"
	"github.com/2389/vitrine/internal/store"
)

// Result describes a completed installation.
type Result struct {
	InstallationID  string
	WorkingCopyPath string
	// Seeded is true when files were copied from the canonical package during this call.
	Seeded bool
}

// InstalledTheme is an active installation with its package display name.
type InstalledTheme struct {
	store.Installation
	Name string
}

// Manager installs and uninstalls themes for stores.
type Manager struct {
	store  store.Store
	ledger *ledger.Ledger
	layout Layout
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Manager.
func New(s store.Store, l *ledger.Ledger, layout Layout, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:  s,
		ledger: l,
		layout: layout,
		logger: logger.With("component", "install"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

type packageRef struct {
	name    string
	codeDir string
}

func (m *Manager) lookup(ctx context.Context, packageID string, isCustom bool) (*packageRef, error) {
	if isCustom {
		p, err := m.store.GetCustomPackage(ctx, packageID)
		if err != nil {
			return nil, fmt.Errorf("custom theme %s: %w", packageID, err)
		}
		return &packageRef{name: p.Name, codeDir: p.Dirs.Code}, nil
	}
	p, err := m.store.GetPackage(ctx, packageID)
	if err != nil {
		return nil, fmt.Errorf("theme %s: %w", packageID, err)
	}
	return &packageRef{name: p.Name, codeDir: p.Dirs.Code}, nil
}

// Install makes the package the store's only active theme. Any previously active
// installation is deactivated first and other custom working copies are removed.
// The working copy is seeded from the canonical package only when it has no files,
// so reinstalling keeps earlier edits.
func (m *Manager) Install(ctx context.Context, storeID, packageID string, isCustom bool) (res *Result, err error) {
	if err := ValidateID("store id", storeID); err != nil {
		return nil, err
	}
	if err := ValidateID("package id", packageID); err != nil {
		return nil, err
	}

	seeded := false
	defer func() { metrics.RecordInstall(isCustom, seeded, err) }()

	pkg, err := m.lookup(ctx, packageID, isCustom)
	if err != nil {
		return nil, err
	}

	key := ThemeKey(packageID, isCustom)
	workingCopy := m.layout.WorkingCopy(storeID, key)
	now := m.now()

	// Exclusivity runs before seeding
	n, err := m.store.DeactivateStoreInstallations(ctx, storeID, now)
	if err != nil {
		return nil, fmt.Errorf("deactivating installations for store %s: %w", storeID, err)
	}
	if n > 0 {
		m.logger.Info("deactivated previous installations", "store", storeID, "count", n)
	}
	if err := m.removeOtherCustomCopies(ctx, storeID, key); err != nil {
		return nil, err
	}

	seeded, err = m.seed(ctx, storeID, key, workingCopy, pkg.codeDir)
	if err != nil {
		return nil, err
	}

	inst := &store.Installation{
		ID:              uuid.NewString(),
		StoreID:         storeID,
		PackageID:       packageID,
		IsCustom:        isCustom,
		IsActive:        true,
		WorkingCopyPath: workingCopy,
		InstalledAt:     now,
	}
	if err := m.store.UpsertInstallation(ctx, inst); err != nil {
		return nil, fmt.Errorf("saving installation: %w", err)
	}

	if m.ledger != nil {
		entry := store.RecentInstallation{
			PackageID:   packageID,
			IsCustom:    isCustom,
			StoreID:     storeID,
			PackageName: pkg.name,
			InstalledAt: now,
		}
		if err := m.ledger.Record(ctx, entry); err != nil {
			m.logger.Warn("failed to record recent installation", "store", storeID, "package", packageID, "error", err)
		}
	}

	m.logger.Info("installed theme",
		"store", storeID, "package", packageID, "custom", isCustom, "installation", inst.ID, "seeded", seeded)

	return &Result{InstallationID: inst.ID, WorkingCopyPath: workingCopy, Seeded: seeded}, nil
}

// removeOtherCustomCopies deletes every custom working copy of the store except keep.
// Regular working copies are never deleted.
func (m *Manager) removeOtherCustomCopies(ctx context.Context, storeID, keep string) error {
	dir := m.layout.StoreThemesDir(storeID)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return errs.Wrap(errs.ErrIO, "reading store theme folder", err)
	}

	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() || name == keep || !strings.HasPrefix(name, CustomKeyPrefix) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, name)); err != nil {
			return errs.Wrap(errs.ErrIO, "removing custom working copy "+name, err)
		}
		if err := m.store.DeleteInstallState(ctx, storeID, name); err != nil {
			return fmt.Errorf("clearing install state for %s: %w", name, err)
		}
		m.logger.Info("removed custom working copy", "store", storeID, "key", name)
	}
	return nil
}

// seed prepares the nested code folder of a working copy and reports whether
// canonical files were copied.
func (m *Manager) seed(ctx context.Context, storeID, key, workingCopy, codeDir string) (bool, error) {
	nested := Nested(workingCopy)

	if err := migrateLegacy(workingCopy, nested); err != nil {
		return false, errs.Wrap(errs.ErrIO, "migrating legacy working copy", err)
	}

	needed, err := m.needsSeed(ctx, storeID, key, nested)
	if err != nil {
		return false, err
	}
	if !needed {
		return false, nil
	}

	// Copy into a sibling staging dir and rename, so a failed copy never looks seeded
	staging := filepath.Join(filepath.Dir(workingCopy), "."+key+".seeding")
	if err := os.RemoveAll(staging); err != nil {
		return false, errs.Wrap(errs.ErrIO, "clearing staging dir", err)
	}
	if err := copyDir(codeDir, staging); err != nil {
		if rmErr := os.RemoveAll(staging); rmErr != nil {
			m.logger.Warn("failed to remove partial copy", "path", staging, "error", rmErr)
		}
		return false, errs.Wrap(errs.ErrIO, "copying canonical theme", err)
	}

	if err := os.MkdirAll(workingCopy, 0755); err != nil {
		_ = os.RemoveAll(staging)
		return false, errs.Wrap(errs.ErrIO, "creating working copy", err)
	}
	// An empty nested dir may exist; Rename cannot replace it
	if err := os.Remove(nested); err != nil && !errors.Is(err, os.ErrNotExist) {
		_ = os.RemoveAll(staging)
		return false, errs.Wrap(errs.ErrIO, "replacing empty code dir", err)
	}
	if err := os.Rename(staging, nested); err != nil {
		_ = os.RemoveAll(staging)
		return false, errs.Wrap(errs.ErrIO, "moving seeded copy into place", err)
	}

	if err := m.store.SetInstallState(ctx, &store.InstallState{
		StoreID: storeID, ThemeKey: key, Seeded: true, UpdatedAt: m.now(),
	}); err != nil {
		return true, fmt.Errorf("recording install state: %w", err)
	}
	return true, nil
}

// needsSeed consults the install state index first and falls back to looking at disk.
func (m *Manager) needsSeed(ctx context.Context, storeID, key, nested string) (bool, error) {
	st, err := m.store.GetInstallState(ctx, storeID, key)
	switch {
	case err == nil && st.Seeded:
		empty, dirErr := dirEmpty(nested)
		if dirErr != nil {
			return false, errs.Wrap(errs.ErrIO, "inspecting working copy", dirErr)
		}
		// An empty or missing folder means the index is stale
		return empty, nil
	case err != nil && !errors.Is(err, store.ErrNotFound):
		return false, fmt.Errorf("reading install state: %w", err)
	}

	empty, err := dirEmpty(nested)
	if err != nil {
		return false, errs.Wrap(errs.ErrIO, "inspecting working copy", err)
	}
	if !empty {
		// Backfill the index for working copies that predate it
		if err := m.store.SetInstallState(ctx, &store.InstallState{
			StoreID: storeID, ThemeKey: key, Seeded: true, UpdatedAt: m.now(),
		}); err != nil {
			return false, fmt.Errorf("recording install state: %w", err)
		}
	}
	return empty, nil
}

// migrateLegacy moves files stored at the working-copy root into the nested
// code folder. It only runs when the nested folder is missing or empty.
func migrateLegacy(workingCopy, nested string) error {
	entries, err := os.ReadDir(workingCopy)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	var legacy []string
	for _, e := range entries {
		if e.Name() == filepath.Base(nested) {
			continue
		}
		legacy = append(legacy, e.Name())
	}
	if len(legacy) == 0 {
		return nil
	}

	empty, err := dirEmpty(nested)
	if err != nil {
		return err
	}
	if !empty {
		return nil
	}

	if err := os.MkdirAll(nested, 0755); err != nil {
		return err
	}
	for _, name := range legacy {
		if err := os.Rename(filepath.Join(workingCopy, name), filepath.Join(nested, name)); err != nil {
			return fmt.Errorf("moving %s: %w", name, err)
		}
	}
	return nil
}

// Uninstall deactivates an installation. Working-copy files are kept so a later
// install of the same package restores the edits. Uninstalling an inactive
// installation is a no-op.
func (m *Manager) Uninstall(ctx context.Context, installationID string) (*store.Installation, error) {
	if installationID == "" {
		return nil, errs.New(errs.ErrValidation, "installation id is required")
	}

	inst, err := m.store.GetInstallation(ctx, installationID)
	if err != nil {
		return nil, fmt.Errorf("installation %s: %w", installationID, err)
	}
	if !inst.IsActive {
		return inst, nil
	}

	now := m.now()
	if err := m.store.SetInstallationInactive(ctx, installationID, now); err != nil {
		return nil, fmt.Errorf("deactivating installation: %w", err)
	}
	inst.IsActive = false
	inst.UninstalledAt = &now

	m.logger.Info("uninstalled theme", "store", inst.StoreID, "package", inst.PackageID, "custom", inst.IsCustom)
	return inst, nil
}

// ListInstalled returns the store's active installations, newest first. Custom
// themes are hidden whenever a catalog theme is active.
func (m *Manager) ListInstalled(ctx context.Context, storeID string) ([]InstalledTheme, error) {
	if err := ValidateID("store id", storeID); err != nil {
		return nil, err
	}

	active, err := m.store.ListActiveInstallations(ctx, storeID)
	if err != nil {
		return nil, fmt.Errorf("listing installations: %w", err)
	}

	hasRegular := false
	for _, inst := range active {
		if !inst.IsCustom {
			hasRegular = true
			break
		}
	}

	out := make([]InstalledTheme, 0, len(active))
	for _, inst := range active {
		if inst.IsCustom && hasRegular {
			continue
		}
		name := ""
		if pkg, err := m.lookup(ctx, inst.PackageID, inst.IsCustom); err == nil {
			name = pkg.name
		} else if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		out = append(out, InstalledTheme{Installation: *inst, Name: name})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].InstalledAt.After(out[j].InstalledAt) })
	return out, nil
}

// Active returns the store's active installation. It returns errs.ErrNotFound when
// the store has no active theme, which callers treat as a normal state.
func (m *Manager) Active(ctx context.Context, storeID string) (*store.Installation, error) {
	if err := ValidateID("store id", storeID); err != nil {
		return nil, err
	}

	active, err := m.store.ListActiveInstallations(ctx, storeID)
	if err != nil {
		return nil, fmt.Errorf("listing installations: %w", err)
	}
	if len(active) == 0 {
		return nil, errs.New(errs.ErrNotFound, "store %s has no active theme", storeID)
	}
	if len(active) > 1 {
		m.logger.Error("store has more than one active installation", "store", storeID, "count", len(active))
	}
	return active[0], nil
}

// ListCustomInstallations returns every custom theme installation across stores.
func (m *Manager) ListCustomInstallations(ctx context.Context) ([]*store.Installation, error) {
	out, err := m.store.ListCustomInstallations(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing custom installations: %w", err)
	}
	return out, nil
}
