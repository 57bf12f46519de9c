// ABOUTME: Package Store and Custom Package Store publishing theme archives to disk
// ABOUTME: Shared upload handling: size limits, archive staging, thumbnails, mirroring

package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/2389/vitrine/internal/archive"
	"github.com/2389/vitrine/internal/errs"
	"github.com/2389/vitrine/internal/install"
	"github.com/2389/vitrine/internal/ledger"
	"github.com/2389/vitrine/internal/metrics"
	"github.com/2389/vitrine/internal/mirror"
	"github.com/2389/vitrine/internal/store"
)

// DefaultMaxArchiveBytes bounds uploads when no limit is configured.
const DefaultMaxArchiveBytes int64 = 100 << 20

// Mirror collection names, matching the on-disk folder names.
const (
	collectionThemes = "themes"
	collectionCustom = "custom themes"
)

var thumbnailExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true, ".svg": true,
}

// Upload is a file received from a client.
type Upload struct {
	Filename string
	Size     int64 // -1 when unknown
	Reader   io.Reader
}

// Options configure a Catalog.
type Options struct {
	MaxArchiveBytes int64
	Mirror          mirror.Mirror
}

// Catalog owns canonical and custom theme packages.
type Catalog struct {
	store    store.Store
	ledger   *ledger.Ledger
	layout   install.Layout
	mirror   mirror.Mirror
	maxBytes int64
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a Catalog. l may be nil.
func New(s store.Store, l *ledger.Ledger, layout install.Layout, opts Options, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxArchiveBytes <= 0 {
		opts.MaxArchiveBytes = DefaultMaxArchiveBytes
	}
	if opts.Mirror == nil {
		opts.Mirror = mirror.Noop{}
	}
	return &Catalog{
		store:    s,
		ledger:   l,
		layout:   layout,
		mirror:   opts.Mirror,
		maxBytes: opts.MaxArchiveBytes,
		logger:   logger.With("component", "catalog"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// checkArchive validates an archive upload without touching disk.
func (c *Catalog) checkArchive(u *Upload) (string, error) {
	if u == nil || u.Reader == nil {
		return "", errs.New(errs.ErrValidation, "theme archive is required")
	}
	name, err := uploadName(u.Filename)
	if err != nil {
		return "", err
	}
	if u.Size > c.maxBytes {
		return "", errs.New(errs.ErrValidation, "archive is %d bytes; limit is %d", u.Size, c.maxBytes)
	}
	return name, nil
}

// checkThumbnail validates a thumbnail upload and returns its stored file name.
func (c *Catalog) checkThumbnail(u *Upload) (string, error) {
	if u == nil || u.Reader == nil {
		return "", errs.New(errs.ErrValidation, "thumbnail is required")
	}
	name, err := uploadName(u.Filename)
	if err != nil {
		return "", err
	}
	ext := strings.ToLower(filepath.Ext(name))
	if !thumbnailExts[ext] {
		return "", errs.New(errs.ErrValidation, "thumbnail type %q is not supported", ext)
	}
	if u.Size > c.maxBytes {
		return "", errs.New(errs.ErrValidation, "thumbnail is %d bytes; limit is %d", u.Size, c.maxBytes)
	}
	return "thumbnail" + ext, nil
}

func uploadName(filename string) (string, error) {
	name := filepath.Base(filepath.FromSlash(strings.ReplaceAll(filename, `\`, "/")))
	if name == "" || name == "." || name == ".." || name == string(filepath.Separator) {
		return "", errs.New(errs.ErrValidation, "upload has no file name")
	}
	return name, nil
}

// writeUpload streams u into path, enforcing the size limit.
func (c *Catalog) writeUpload(u *Upload, path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return errs.Wrap(errs.ErrIO, "creating "+filepath.Base(path), err)
	}
	n, err := io.Copy(f, io.LimitReader(u.Reader, c.maxBytes+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return errs.Wrap(errs.ErrIO, "writing "+filepath.Base(path), err)
	}
	if n > c.maxBytes {
		_ = os.Remove(path)
		return errs.New(errs.ErrValidation, "upload exceeds %d bytes", c.maxBytes)
	}
	return nil
}

// stored is the result of laying a new package out on disk.
type stored struct {
	dirs        archive.Dirs
	archiveName string
	digest      string
	thumbnail   string
	manifest    *archive.Manifest
}

// storeNew creates the package directory, stores the archive, extracts it, and
// saves the thumbnail. On any failure the package directory is removed.
func (c *Catalog) storeNew(base, name, archiveName string, arc *Upload, thumbName string, thumb *Upload) (_ *stored, err error) {
	dirs, err := archive.CreatePackageDirectory(base, name)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			c.cleanup(dirs.Root)
		}
	}()

	archivePath := filepath.Join(dirs.Archive, archiveName)
	if err := c.writeUpload(arc, archivePath); err != nil {
		return nil, err
	}
	if err := c.extract(archivePath, dirs.Code); err != nil {
		return nil, err
	}

	digest, err := archive.Digest(archivePath)
	if err != nil {
		return nil, errs.Wrap(errs.ErrIO, "hashing archive", err)
	}
	manifest, err := archive.ReadManifest(dirs.Code)
	if err != nil {
		c.logger.Warn("ignoring unreadable theme manifest", "package", dirs.Name, "error", err)
		manifest = nil
	}

	if thumb != nil {
		if err := c.writeUpload(thumb, filepath.Join(dirs.Thumbnail, thumbName)); err != nil {
			return nil, err
		}
	}

	return &stored{dirs: dirs, archiveName: archiveName, digest: digest, thumbnail: thumbName, manifest: manifest}, nil
}

func (c *Catalog) extract(archivePath, dest string) error {
	start := time.Now()
	err := archive.ExtractAndNormalize(archivePath, dest)
	metrics.ObserveExtract(time.Since(start))
	if err != nil {
		c.logger.Warn("extraction failed", "archive", filepath.Base(archivePath), "error", err)
	}
	return err
}

// replaceArchive re-extracts a new archive into staging and swaps it in. The
// existing code folder and archived original stay untouched if anything fails.
func (c *Catalog) replaceArchive(d store.Dirs, archiveName string, arc *Upload) (string, error) {
	upload, err := os.CreateTemp(d.Root, ".upload-*")
	if err != nil {
		return "", errs.Wrap(errs.ErrIO, "creating upload file", err)
	}
	uploadPath := upload.Name()
	upload.Close()
	defer os.Remove(uploadPath)

	if err := c.writeUpload(arc, uploadPath); err != nil {
		return "", err
	}
	// DetectFormat keys on the extension first; keep the original one in place
	named := uploadPath + "-" + archiveName
	if err := os.Rename(uploadPath, named); err != nil {
		return "", errs.Wrap(errs.ErrIO, "staging archive", err)
	}
	defer os.Remove(named)

	staging, err := os.MkdirTemp(d.Root, ".staging-*")
	if err != nil {
		return "", errs.Wrap(errs.ErrIO, "creating staging dir", err)
	}
	defer c.cleanup(staging)

	if err := c.extract(named, staging); err != nil {
		return "", err
	}
	digest, err := archive.Digest(named)
	if err != nil {
		return "", errs.Wrap(errs.ErrIO, "hashing archive", err)
	}

	if err := os.RemoveAll(d.Code); err != nil {
		return "", errs.Wrap(errs.ErrIO, "removing previous code", err)
	}
	if err := os.Rename(staging, d.Code); err != nil {
		return "", errs.Wrap(errs.ErrIO, "moving extracted code into place", err)
	}

	if err := os.RemoveAll(d.Archive); err != nil {
		return "", errs.Wrap(errs.ErrIO, "removing previous archive", err)
	}
	if err := os.MkdirAll(d.Archive, 0755); err != nil {
		return "", errs.Wrap(errs.ErrIO, "recreating archive dir", err)
	}
	if err := os.Rename(named, filepath.Join(d.Archive, archiveName)); err != nil {
		return "", errs.Wrap(errs.ErrIO, "archiving original", err)
	}
	return digest, nil
}

// replaceThumbnail deletes the old thumbnail file and writes the new one.
func (c *Catalog) replaceThumbnail(d store.Dirs, old, name string, thumb *Upload) error {
	if old != "" {
		if err := os.Remove(filepath.Join(d.Thumbnail, old)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return errs.Wrap(errs.ErrIO, "removing previous thumbnail", err)
		}
	}
	if err := os.MkdirAll(d.Thumbnail, 0755); err != nil {
		return errs.Wrap(errs.ErrIO, "creating thumbnail dir", err)
	}
	return c.writeUpload(thumb, filepath.Join(d.Thumbnail, name))
}

// mirrorPut backs up an archived original. Failures are logged only.
func (c *Catalog) mirrorPut(ctx context.Context, collection, packagePath string, d store.Dirs, archiveName string) {
	key := mirror.Key(collection, packagePath, archiveName)
	if err := c.mirror.Put(ctx, key, filepath.Join(d.Archive, archiveName)); err != nil {
		c.logger.Warn("failed to mirror archive", "key", key, "error", err)
	}
}

func (c *Catalog) mirrorDelete(ctx context.Context, collection, packagePath, archiveName string) {
	if archiveName == "" {
		return
	}
	key := mirror.Key(collection, packagePath, archiveName)
	if err := c.mirror.Delete(ctx, key); err != nil {
		c.logger.Warn("failed to delete mirrored archive", "key", key, "error", err)
	}
}

// cleanup removes path, logging instead of failing.
func (c *Catalog) cleanup(path string) {
	if err := os.RemoveAll(path); err != nil {
		c.logger.Warn("cleanup failed", "path", path, "error", err)
	}
}

// forgetInstalls cascades a package removal to installation records and the ledger.
func (c *Catalog) forgetInstalls(ctx context.Context, packageID string, isCustom bool) error {
	n, err := c.store.DeleteInstallationsForPackage(ctx, packageID, isCustom)
	if err != nil {
		return fmt.Errorf("deleting installations of %s: %w", packageID, err)
	}
	if n > 0 {
		c.logger.Info("deleted installations of removed package", "package", packageID, "custom", isCustom, "count", n)
	}
	if c.ledger != nil {
		if err := c.ledger.Forget(ctx, packageID, isCustom); err != nil {
			c.logger.Warn("failed to drop ledger entry", "package", packageID, "error", err)
		}
	}
	return nil
}

func toStoreDirs(d archive.Dirs) store.Dirs {
	return store.Dirs{Root: d.Root, Code: d.Code, Archive: d.Archive, Thumbnail: d.Thumbnail}
}
