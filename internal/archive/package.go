// ABOUTME: Creates the on-disk directory set for a newly published theme package
// ABOUTME: Derives the directory name from the package name and avoids collisions

package archive

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/2389/vitrine/internal/errs"
)

// Subdirectory names inside every package root and working copy.
const (
	CodeDirName      = "unzippedTheme"
	ArchiveDirName   = "zipped"
	ThumbnailDirName = "thumbnail"
)

// Dirs holds the resolved paths of a package created by CreatePackageDirectory.
type Dirs struct {
	Name      string // directory name actually used, including any suffix
	Root      string
	Code      string
	Archive   string
	Thumbnail string
}

// CreatePackageDirectory creates base/name and its three subdirectories.
// If base/name already exists a short random suffix is appended.
func CreatePackageDirectory(base, name string) (Dirs, error) {
	dirName, err := sanitizeName(name)
	if err != nil {
		return Dirs{}, err
	}

	if err := os.MkdirAll(base, 0755); err != nil {
		return Dirs{}, errs.Wrap(errs.ErrIO, "creating package base directory", err)
	}

	root := filepath.Join(base, dirName)
	if _, err := os.Stat(root); err == nil {
		dirName = dirName + "-" + shortSuffix()
		root = filepath.Join(base, dirName)
	}

	// Mkdir (not MkdirAll) so a racing creator of the same name fails loudly
	if err := os.Mkdir(root, 0755); err != nil {
		return Dirs{}, errs.Wrap(errs.ErrIO, "creating package root", err)
	}

	d := Dirs{
		Name:      dirName,
		Root:      root,
		Code:      filepath.Join(root, CodeDirName),
		Archive:   filepath.Join(root, ArchiveDirName),
		Thumbnail: filepath.Join(root, ThumbnailDirName),
	}
	for _, dir := range []string{d.Code, d.Archive, d.Thumbnail} {
		if err := os.Mkdir(dir, 0755); err != nil {
			_ = os.RemoveAll(root)
			return Dirs{}, errs.Wrap(errs.ErrIO, "creating package subdirectory", err)
		}
	}
	return d, nil
}

// sanitizeName rejects names that would escape base or collide with path syntax.
func sanitizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." {
		return "", errs.New(errs.ErrValidation, "invalid package name %q", name)
	}
	if strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return "", errs.New(errs.ErrValidation, "package name %q contains a path separator", name)
	}
	return name, nil
}

func shortSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
}
