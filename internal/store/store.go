// ABOUTME: Store interfaces and data types for vitrine persistence
// ABOUTME: Defines theme packages, installations, install state, and the recent-installations ledger

package store

import (
	"context"
	"errors"
	"time"

	"github.com/2389/vitrine/internal/errs"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errs.ErrNotFound

// ErrDuplicatePackagePath is returned when a package directory name is already recorded
var ErrDuplicatePackagePath = errors.New("package path already exists")

// Dirs is the directory set of a package on disk.
type Dirs struct {
	Root      string
	Code      string // extracted theme files (unzippedTheme/)
	Archive   string // archived original upload (zipped/)
	Thumbnail string // thumbnail image (thumbnail/)
}

// ThemePackage is a canonical catalog theme shared by every store.
type ThemePackage struct {
	ID            string
	Name          string
	Description   string
	Category      string
	Plan          string // "free", "premium", ...
	Price         int64  // minor currency units
	Version       string
	Tags          []string
	PackagePath   string // unique directory name under themes/
	Thumbnail     string // file name inside Dirs.Thumbnail
	Dirs          Dirs
	ArchiveName   string
	ArchiveDigest string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// CustomThemePackage is a theme uploaded by a single actor for their own use.
type CustomThemePackage struct {
	ID            string
	OwnerID       string
	Name          string
	PackagePath   string // unique directory name under custom themes/
	Thumbnail     string
	Dirs          Dirs
	ArchiveName   string
	ArchiveDigest string
	// Legacy inline content from before files were stored on disk.
	// Only read when the corresponding file is absent.
	LegacyHTML string
	LegacyCSS  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Installation links a store to a package. At most one installation per store is active.
type Installation struct {
	ID              string
	StoreID         string
	PackageID       string
	IsCustom        bool
	IsActive        bool
	WorkingCopyPath string
	InstalledAt     time.Time
	UninstalledAt   *time.Time
}

// InstallState records whether a store's working copy of a theme has been seeded
// and whether it has been edited since.
type InstallState struct {
	StoreID   string
	ThemeKey  string
	Seeded    bool
	Dirty     bool
	UpdatedAt time.Time
}

// RecentInstallation is one entry of the bounded recent-installations ledger.
type RecentInstallation struct {
	ID          string
	PackageID   string
	IsCustom    bool
	StoreID     string
	PackageName string
	InstalledAt time.Time
}

// PackageStore persists catalog and custom theme records.
type PackageStore interface {
	CreatePackage(ctx context.Context, pkg *ThemePackage) error
	GetPackage(ctx context.Context, id string) (*ThemePackage, error)
	ListPackages(ctx context.Context) ([]*ThemePackage, error)
	UpdatePackage(ctx context.Context, pkg *ThemePackage) error
	DeletePackage(ctx context.Context, id string) error

	CreateCustomPackage(ctx context.Context, pkg *CustomThemePackage) error
	GetCustomPackage(ctx context.Context, id string) (*CustomThemePackage, error)
	ListCustomPackages(ctx context.Context, ownerID string) ([]*CustomThemePackage, error)
	UpdateCustomPackage(ctx context.Context, pkg *CustomThemePackage) error
	DeleteCustomPackage(ctx context.Context, id string) error
}

// InstallationStore persists installation records and the install state index.
type InstallationStore interface {
	GetInstallation(ctx context.Context, id string) (*Installation, error)
	FindInstallation(ctx context.Context, storeID, packageID string, isCustom bool) (*Installation, error)
	// UpsertInstallation inserts or replaces the record for (StoreID, PackageID, IsCustom).
	// The stored ID of an existing record is kept and copied back into inst.
	UpsertInstallation(ctx context.Context, inst *Installation) error
	ListActiveInstallations(ctx context.Context, storeID string) ([]*Installation, error)
	// DeactivateStoreInstallations marks every active installation of the store inactive
	// and returns how many were changed.
	DeactivateStoreInstallations(ctx context.Context, storeID string, at time.Time) (int, error)
	SetInstallationInactive(ctx context.Context, id string, at time.Time) error
	DeleteInstallationsForPackage(ctx context.Context, packageID string, isCustom bool) (int, error)
	ListCustomInstallations(ctx context.Context) ([]*Installation, error)

	GetInstallState(ctx context.Context, storeID, themeKey string) (*InstallState, error)
	SetInstallState(ctx context.Context, state *InstallState) error
	DeleteInstallState(ctx context.Context, storeID, themeKey string) error
}

// LedgerStore persists recent-installation entries in insertion order.
type LedgerStore interface {
	AppendRecent(ctx context.Context, entry *RecentInstallation) error
	DeleteRecentFor(ctx context.Context, packageID string, isCustom bool) error
	// ListRecent returns entries newest first.
	ListRecent(ctx context.Context, limit int) ([]*RecentInstallation, error)
	// TrimRecent keeps only the newest keep entries.
	TrimRecent(ctx context.Context, keep int) error
}

// AuditStore persists the theme change audit log.
type AuditStore interface {
	AppendAuditLog(ctx context.Context, e *AuditEntry) error
	// ListAuditLog returns matching entries newest first.
	ListAuditLog(ctx context.Context, f AuditFilter) ([]AuditEntry, error)
}

// Store combines every persistence concern of the service.
type Store interface {
	PackageStore
	InstallationStore
	LedgerStore
	AuditStore

	// Close releases any resources held by the store
	Close() error
}
