// ABOUTME: Saves edited theme files into a store or actor working copy
// ABOUTME: Writes through a temp file and verifies the bytes by reading them back

package resolve

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/2389/vitrine/internal/errs"
	"github.com/2389/vitrine/internal/metrics"
)

var nowUTC = func() time.Time { return time.Now().UTC() }

// SaveEdit writes content to relPath inside the working copy selected by req and
// returns the absolute path written. Traversal attempts fail with
// errs.ErrAccessDenied before anything touches disk. If the write fails the
// previous file content is left in place.
func (r *Resolver) SaveEdit(ctx context.Context, req Request, relPath string, content []byte) (saved string, err error) {
	defer func() { metrics.RecordEdit(err) }()

	if strings.TrimSpace(relPath) == "" {
		return "", errs.New(errs.ErrValidation, "file path is required")
	}

	wc, err := r.writeBase(req)
	if err != nil {
		return "", err
	}

	target, err := SafeJoin(wc.base, relPath)
	if err != nil {
		r.logger.Warn("rejected save outside working copy", "package", req.PackageID, "store", req.StoreID, "path", relPath)
		return "", err
	}
	if filepath.Clean(filepath.FromSlash(relPath)) == "." {
		return "", errs.New(errs.ErrInvalidRequest, "path %q is a directory", relPath)
	}

	if info, statErr := os.Stat(target); statErr == nil && info.IsDir() {
		return "", errs.New(errs.ErrInvalidRequest, "path %q is a directory", relPath)
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return "", errs.Wrap(errs.ErrIO, "creating directories", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".save-*")
	if err != nil {
		return "", errs.Wrap(errs.ErrIO, "creating temp file", err)
	}
	tmpName := tmp.Name()
	_, werr := tmp.Write(content)
	if cerr := tmp.Close(); werr == nil {
		werr = cerr
	}
	if werr == nil {
		werr = os.Chmod(tmpName, 0644)
	}
	if werr == nil {
		werr = os.Rename(tmpName, target)
	}
	if werr != nil {
		_ = os.Remove(tmpName)
		return "", errs.Wrap(errs.ErrIO, "writing "+relPath, werr)
	}

	got, err := os.ReadFile(target)
	if err != nil {
		return "", errs.Wrap(errs.ErrIO, "verifying "+relPath, err)
	}
	if !bytes.Equal(got, content) {
		return "", errs.New(errs.ErrIO, "verification of %s failed: wrote %d bytes, read %d", relPath, len(content), len(got))
	}

	r.markDirty(ctx, wc.storeID, req.Key())
	r.logger.Info("saved theme file", "package", req.PackageID, "store", req.StoreID, "actor", req.ActorID, "path", relPath, "bytes", len(content))
	return target, nil
}
