// ABOUTME: Custom theme operations scoped to the uploading actor
// ABOUTME: Every call checks ownership before reading or changing anything

package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/2389/vitrine/internal/errs"
	"github.com/2389/vitrine/internal/metrics"
	"github.com/2389/vitrine/internal/store"
)

// CustomRepublishRequest changes a custom theme. Nil fields are left unchanged.
type CustomRepublishRequest struct {
	Name      *string
	Archive   *Upload
	Thumbnail *Upload
}

// Content is the editable markup and stylesheet of a custom theme.
type Content struct {
	HTML string
	CSS  string
}

// Files read by CustomContent, relative to the code folder.
const (
	customHTMLFile = "index.html"
	customCSSFile  = "style.css"
)

// PublishCustom stores a theme owned by ownerID. The thumbnail is optional.
func (c *Catalog) PublishCustom(ctx context.Context, ownerID, name string, arc, thumb *Upload) (pkg *store.CustomThemePackage, err error) {
	defer func() { metrics.RecordPublish("custom", err) }()

	if ownerID == "" {
		return nil, errs.New(errs.ErrValidation, "owner is required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errs.New(errs.ErrValidation, "theme name is required")
	}
	archiveName, err := c.checkArchive(arc)
	if err != nil {
		return nil, err
	}
	var thumbName string
	if thumb != nil {
		if thumbName, err = c.checkThumbnail(thumb); err != nil {
			return nil, err
		}
	}

	s, err := c.storeNew(c.layout.CustomThemesDir(), name, archiveName, arc, thumbName, thumb)
	if err != nil {
		return nil, err
	}

	now := c.now()
	pkg = &store.CustomThemePackage{
		ID:            uuid.NewString(),
		OwnerID:       ownerID,
		Name:          name,
		PackagePath:   s.dirs.Name,
		Thumbnail:     s.thumbnail,
		Dirs:          toStoreDirs(s.dirs),
		ArchiveName:   s.archiveName,
		ArchiveDigest: s.digest,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := c.store.CreateCustomPackage(ctx, pkg); err != nil {
		c.cleanup(s.dirs.Root)
		return nil, fmt.Errorf("saving custom theme: %w", err)
	}

	c.mirrorPut(ctx, collectionCustom, pkg.PackagePath, pkg.Dirs, pkg.ArchiveName)
	c.logger.Info("published custom theme", "id", pkg.ID, "owner", ownerID, "path", pkg.PackagePath)
	return pkg, nil
}

// owned loads a custom theme and fails with errs.ErrAccessDenied unless ownerID owns it.
func (c *Catalog) owned(ctx context.Context, ownerID, id string) (*store.CustomThemePackage, error) {
	pkg, err := c.store.GetCustomPackage(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("custom theme %s: %w", id, err)
	}
	if ownerID == "" || pkg.OwnerID != ownerID {
		c.logger.Warn("denied access to custom theme", "id", id, "actor", ownerID)
		return nil, errs.New(errs.ErrAccessDenied, "custom theme %s belongs to another user", id)
	}
	return pkg, nil
}

// RepublishCustom renames a custom theme or replaces its archive or thumbnail.
func (c *Catalog) RepublishCustom(ctx context.Context, ownerID, id string, req CustomRepublishRequest) (pkg *store.CustomThemePackage, err error) {
	defer func() { metrics.RecordPublish("custom", err) }()

	pkg, err = c.owned(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		return nil, errs.New(errs.ErrValidation, "theme name cannot be empty")
	}
	var archiveName, thumbName string
	if req.Archive != nil {
		if archiveName, err = c.checkArchive(req.Archive); err != nil {
			return nil, err
		}
	}
	if req.Thumbnail != nil {
		if thumbName, err = c.checkThumbnail(req.Thumbnail); err != nil {
			return nil, err
		}
	}

	if req.Archive != nil {
		digest, err := c.replaceArchive(pkg.Dirs, archiveName, req.Archive)
		if err != nil {
			return nil, err
		}
		if pkg.ArchiveName != archiveName {
			c.mirrorDelete(ctx, collectionCustom, pkg.PackagePath, pkg.ArchiveName)
		}
		pkg.ArchiveName, pkg.ArchiveDigest = archiveName, digest
	}
	if req.Thumbnail != nil {
		if err := c.replaceThumbnail(pkg.Dirs, pkg.Thumbnail, thumbName, req.Thumbnail); err != nil {
			return nil, err
		}
		pkg.Thumbnail = thumbName
	}
	if req.Name != nil {
		pkg.Name = strings.TrimSpace(*req.Name)
	}
	pkg.UpdatedAt = c.now()

	if err := c.store.UpdateCustomPackage(ctx, pkg); err != nil {
		return nil, fmt.Errorf("updating custom theme: %w", err)
	}
	if req.Archive != nil {
		c.mirrorPut(ctx, collectionCustom, pkg.PackagePath, pkg.Dirs, pkg.ArchiveName)
	}
	c.logger.Info("republished custom theme", "id", id, "owner", ownerID)
	return pkg, nil
}

// RemoveCustom deletes a custom theme, its installation records, and its files.
func (c *Catalog) RemoveCustom(ctx context.Context, ownerID, id string) error {
	pkg, err := c.owned(ctx, ownerID, id)
	if err != nil {
		return err
	}

	if err := c.forgetInstalls(ctx, id, true); err != nil {
		return err
	}
	c.cleanup(pkg.Dirs.Root)
	if err := c.store.DeleteCustomPackage(ctx, id); err != nil {
		return fmt.Errorf("deleting custom theme: %w", err)
	}
	c.mirrorDelete(ctx, collectionCustom, pkg.PackagePath, pkg.ArchiveName)

	c.logger.Info("removed custom theme", "id", id, "owner", ownerID)
	return nil
}

// GetCustom returns a custom theme owned by ownerID.
func (c *Catalog) GetCustom(ctx context.Context, ownerID, id string) (*store.CustomThemePackage, error) {
	return c.owned(ctx, ownerID, id)
}

// ListCustom returns every custom theme owned by ownerID.
func (c *Catalog) ListCustom(ctx context.Context, ownerID string) ([]*store.CustomThemePackage, error) {
	if ownerID == "" {
		return nil, errs.New(errs.ErrValidation, "owner is required")
	}
	pkgs, err := c.store.ListCustomPackages(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing custom themes: %w", err)
	}
	return pkgs, nil
}

// CustomContent returns the index.html and style.css of a custom theme. Either
// file falls back to the legacy inline field on the record when absent.
func (c *Catalog) CustomContent(ctx context.Context, ownerID, id string) (*Content, error) {
	pkg, err := c.owned(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	html, err := readOr(filepath.Join(pkg.Dirs.Code, customHTMLFile), pkg.LegacyHTML)
	if err != nil {
		return nil, err
	}
	css, err := readOr(filepath.Join(pkg.Dirs.Code, customCSSFile), pkg.LegacyCSS)
	if err != nil {
		return nil, err
	}
	return &Content{HTML: html, CSS: css}, nil
}

func readOr(path, fallback string) (string, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return fallback, nil
	}
	if err != nil {
		return "", errs.Wrap(errs.ErrIO, "reading "+filepath.Base(path), err)
	}
	return string(b), nil
}
