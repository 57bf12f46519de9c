// ABOUTME: On-disk layout of the uploads tree shared by catalog, install, and resolve
// ABOUTME: Maps packages, store working copies, and actor working copies to paths

package install

import (
	"path/filepath"
	"strings"

	"github.com/2389/vitrine/internal/archive"
	"github.com/2389/vitrine/internal/errs"
)

// CustomKeyPrefix marks custom packages in a store's theme folder so the two
// package namespaces never collide.
const CustomKeyPrefix = "custom-"

// ThemeKey names a package's working-copy directory inside a store.
func ThemeKey(packageID string, isCustom bool) string {
	if isCustom {
		return CustomKeyPrefix + packageID
	}
	return packageID
}

// ParseThemeKey reverses ThemeKey.
func ParseThemeKey(key string) (packageID string, isCustom bool) {
	if id, ok := strings.CutPrefix(key, CustomKeyPrefix); ok {
		return id, true
	}
	return key, false
}

// Layout resolves paths under the uploads root.
type Layout struct {
	Root string
}

// ThemesDir holds catalog packages.
func (l Layout) ThemesDir() string {
	return filepath.Join(l.Root, "themes")
}

// CustomThemesDir holds custom packages.
func (l Layout) CustomThemesDir() string {
	return filepath.Join(l.Root, "custom themes")
}

// StoresDir holds one directory per store.
func (l Layout) StoresDir() string {
	return filepath.Join(l.Root, "stores")
}

// StoreThemesDir holds every working copy of one store.
func (l Layout) StoreThemesDir(storeID string) string {
	return filepath.Join(l.StoresDir(), storeID, "themes")
}

// WorkingCopy is the root of a store's copy of one package.
func (l Layout) WorkingCopy(storeID, key string) string {
	return filepath.Join(l.StoreThemesDir(storeID), key)
}

// ActorWorkingCopy is the root of an actor's copy of one package, used when
// editing without a store.
func (l Layout) ActorWorkingCopy(actorID, key string) string {
	return filepath.Join(l.Root, "users", actorID, "themes", key)
}

// Nested returns the code subfolder of a working copy root.
func Nested(workingCopy string) string {
	return filepath.Join(workingCopy, archive.CodeDirName)
}

// ValidateID rejects identifiers that are empty or could not be used as a single
// path segment.
func ValidateID(kind, id string) error {
	if id == "" {
		return errs.New(errs.ErrValidation, "%s is required", kind)
	}
	if id == "." || id == ".." || strings.ContainsAny(id, `/\`) || strings.ContainsRune(id, 0) {
		return errs.New(errs.ErrValidation, "malformed %s %q", kind, id)
	}
	return nil
}
