// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu            sync.RWMutex
	packages      map[string]*ThemePackage       // keyed by package ID
	custom        map[string]*CustomThemePackage // keyed by custom package ID
	installations map[string]*Installation       // keyed by installation ID
	states        map[string]*InstallState       // keyed by "storeID:themeKey"
	recent        []*RecentInstallation          // oldest first
	audit         []AuditEntry                   // oldest first
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		packages:      make(map[string]*ThemePackage),
		custom:        make(map[string]*CustomThemePackage),
		installations: make(map[string]*Installation),
		states:        make(map[string]*InstallState),
	}
}

// CreatePackage stores a new catalog theme.
func (m *MockStore) CreatePackage(ctx context.Context, pkg *ThemePackage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.packages {
		if existing.PackagePath == pkg.PackagePath {
			return ErrDuplicatePackagePath
		}
	}
	m.packages[pkg.ID] = copyPackage(pkg)
	return nil
}

// GetPackage retrieves a catalog theme by ID.
func (m *MockStore) GetPackage(ctx context.Context, id string) (*ThemePackage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.packages[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyPackage(p), nil
}

// ListPackages returns every catalog theme, newest first.
func (m *MockStore) ListPackages(ctx context.Context) ([]*ThemePackage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*ThemePackage, 0, len(m.packages))
	for _, p := range m.packages {
		out = append(out, copyPackage(p))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// UpdatePackage replaces a catalog theme record.
func (m *MockStore) UpdatePackage(ctx context.Context, pkg *ThemePackage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.packages[pkg.ID]; !ok {
		return ErrNotFound
	}
	m.packages[pkg.ID] = copyPackage(pkg)
	return nil
}

// DeletePackage removes a catalog theme record.
func (m *MockStore) DeletePackage(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.packages[id]; !ok {
		return ErrNotFound
	}
	delete(m.packages, id)
	return nil
}

// CreateCustomPackage stores a new custom theme.
func (m *MockStore) CreateCustomPackage(ctx context.Context, pkg *CustomThemePackage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.custom {
		if existing.PackagePath == pkg.PackagePath {
			return ErrDuplicatePackagePath
		}
	}
	c := *pkg
	m.custom[c.ID] = &c
	return nil
}

// GetCustomPackage retrieves a custom theme by ID.
func (m *MockStore) GetCustomPackage(ctx context.Context, id string) (*CustomThemePackage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.custom[id]
	if !ok {
		return nil, ErrNotFound
	}
	result := *p
	return &result, nil
}

// ListCustomPackages returns the custom themes owned by ownerID, newest first.
func (m *MockStore) ListCustomPackages(ctx context.Context, ownerID string) ([]*CustomThemePackage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*CustomThemePackage
	for _, p := range m.custom {
		if p.OwnerID != ownerID {
			continue
		}
		c := *p
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// UpdateCustomPackage replaces the mutable fields of a custom theme.
func (m *MockStore) UpdateCustomPackage(ctx context.Context, pkg *CustomThemePackage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.custom[pkg.ID]
	if !ok {
		return ErrNotFound
	}
	c := *pkg
	c.LegacyHTML = existing.LegacyHTML
	c.LegacyCSS = existing.LegacyCSS
	m.custom[c.ID] = &c
	return nil
}

// DeleteCustomPackage removes a custom theme record.
func (m *MockStore) DeleteCustomPackage(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.custom[id]; !ok {
		return ErrNotFound
	}
	delete(m.custom, id)
	return nil
}

// GetInstallation retrieves an installation by ID.
func (m *MockStore) GetInstallation(ctx context.Context, id string) (*Installation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	inst, ok := m.installations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyInstallation(inst), nil
}

// FindInstallation retrieves the installation of a package in a store.
func (m *MockStore) FindInstallation(ctx context.Context, storeID, packageID string, isCustom bool) (*Installation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if inst := m.findLocked(storeID, packageID, isCustom); inst != nil {
		return copyInstallation(inst), nil
	}
	return nil, ErrNotFound
}

func (m *MockStore) findLocked(storeID, packageID string, isCustom bool) *Installation {
	for _, inst := range m.installations {
		if inst.StoreID == storeID && inst.PackageID == packageID && inst.IsCustom == isCustom {
			return inst
		}
	}
	return nil
}

// UpsertInstallation inserts or updates the record for the same store and package.
func (m *MockStore) UpsertInstallation(ctx context.Context, inst *Installation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing := m.findLocked(inst.StoreID, inst.PackageID, inst.IsCustom); existing != nil {
		inst.ID = existing.ID
	}
	m.installations[inst.ID] = copyInstallation(inst)
	return nil
}

// ListActiveInstallations returns the store's active installations, newest first.
func (m *MockStore) ListActiveInstallations(ctx context.Context, storeID string) ([]*Installation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Installation
	for _, inst := range m.installations {
		if inst.StoreID == storeID && inst.IsActive {
			out = append(out, copyInstallation(inst))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InstalledAt.After(out[j].InstalledAt) })
	return out, nil
}

// DeactivateStoreInstallations marks every active installation of the store inactive.
func (m *MockStore) DeactivateStoreInstallations(ctx context.Context, storeID string, at time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, inst := range m.installations {
		if inst.StoreID == storeID && inst.IsActive {
			inst.IsActive = false
			t := at
			inst.UninstalledAt = &t
			n++
		}
	}
	return n, nil
}

// SetInstallationInactive marks one installation inactive.
func (m *MockStore) SetInstallationInactive(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	inst, ok := m.installations[id]
	if !ok {
		return ErrNotFound
	}
	inst.IsActive = false
	t := at
	inst.UninstalledAt = &t
	return nil
}

// DeleteInstallationsForPackage removes every installation referencing the package.
func (m *MockStore) DeleteInstallationsForPackage(ctx context.Context, packageID string, isCustom bool) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for id, inst := range m.installations {
		if inst.PackageID == packageID && inst.IsCustom == isCustom {
			delete(m.installations, id)
			n++
		}
	}
	return n, nil
}

// ListCustomInstallations returns every custom theme installation.
func (m *MockStore) ListCustomInstallations(ctx context.Context) ([]*Installation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Installation
	for _, inst := range m.installations {
		if inst.IsCustom {
			out = append(out, copyInstallation(inst))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StoreID != out[j].StoreID {
			return out[i].StoreID < out[j].StoreID
		}
		return out[i].InstalledAt.After(out[j].InstalledAt)
	})
	return out, nil
}

// GetInstallState returns the index row for a working copy.
func (m *MockStore) GetInstallState(ctx context.Context, storeID, themeKey string) (*InstallState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st, ok := m.states[storeID+":"+themeKey]
	if !ok {
		return nil, ErrNotFound
	}
	result := *st
	return &result, nil
}

// SetInstallState creates or replaces the index row for a working copy.
func (m *MockStore) SetInstallState(ctx context.Context, state *InstallState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := *state
	m.states[st.StoreID+":"+st.ThemeKey] = &st
	return nil
}

// DeleteInstallState removes the index row for a working copy.
func (m *MockStore) DeleteInstallState(ctx context.Context, storeID, themeKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.states, storeID+":"+themeKey)
	return nil
}

// AppendRecent adds an entry at the newest end of the ledger.
func (m *MockStore) AppendRecent(ctx context.Context, entry *RecentInstallation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := *entry
	m.recent = append(m.recent, &e)
	return nil
}

// DeleteRecentFor removes any entry for the same package identity.
func (m *MockStore) DeleteRecentFor(ctx context.Context, packageID string, isCustom bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.recent[:0]
	for _, e := range m.recent {
		if e.PackageID == packageID && e.IsCustom == isCustom {
			continue
		}
		kept = append(kept, e)
	}
	m.recent = kept
	return nil
}

// ListRecent returns up to limit entries, newest first.
func (m *MockStore) ListRecent(ctx context.Context, limit int) ([]*RecentInstallation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	var out []*RecentInstallation
	for i := len(m.recent) - 1; i >= 0 && len(out) < limit; i-- {
		e := *m.recent[i]
		out = append(out, &e)
	}
	return out, nil
}

// TrimRecent keeps only the newest keep entries.
func (m *MockStore) TrimRecent(ctx context.Context, keep int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if keep < 0 {
		keep = 0
	}
	if len(m.recent) > keep {
		m.recent = append([]*RecentInstallation(nil), m.recent[len(m.recent)-keep:]...)
	}
	return nil
}

// AppendAuditLog adds an audit entry, filling ID and Timestamp when unset.
func (m *MockStore) AppendAuditLog(ctx context.Context, e *AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	m.audit = append(m.audit, *e)
	return nil
}

// ListAuditLog returns matching audit entries, newest first.
func (m *MockStore) ListAuditLog(ctx context.Context, f AuditFilter) ([]AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	limit := normalizeAuditLimit(f.Limit)
	out := []AuditEntry{}
	for i := len(m.audit) - 1; i >= 0 && len(out) < limit; i-- {
		e := m.audit[i]
		switch {
		case f.Since != nil && e.Timestamp.Before(*f.Since),
			f.Until != nil && e.Timestamp.After(*f.Until),
			f.ActorID != nil && e.ActorID != *f.ActorID,
			f.StoreID != nil && e.StoreID != *f.StoreID,
			f.Action != nil && e.Action != *f.Action,
			f.TargetType != nil && e.TargetType != *f.TargetType,
			f.TargetID != nil && e.TargetID != *f.TargetID:
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

// Close is a no-op for MockStore.
func (m *MockStore) Close() error {
	return nil
}

func copyPackage(p *ThemePackage) *ThemePackage {
	c := *p
	if p.Tags != nil {
		c.Tags = append([]string(nil), p.Tags...)
	}
	return &c
}

func copyInstallation(inst *Installation) *Installation {
	c := *inst
	if inst.UninstalledAt != nil {
		t := *inst.UninstalledAt
		c.UninstalledAt = &t
	}
	return &c
}

// Compile-time interface checks
var (
	_ Store = (*MockStore)(nil)
	_ Store = (*SQLiteStore)(nil)
)
