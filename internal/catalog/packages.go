// ABOUTME: Catalog theme operations: publish, republish, remove, and lookups
// ABOUTME: Records live in the store; files live under {uploads}/themes/

package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/2389/vitrine/internal/archive"
	"github.com/2389/vitrine/internal/errs"
	"github.com/2389/vitrine/internal/metrics"
	"github.com/2389/vitrine/internal/store"
)

// PublishRequest carries a new catalog theme. Archive and Thumbnail are required.
type PublishRequest struct {
	Name        string
	Description string
	Category    string
	Plan        string
	Price       int64
	Version     string
	Tags        []string
	Archive     *Upload
	Thumbnail   *Upload
}

// RepublishRequest changes an existing theme. Nil fields are left unchanged.
type RepublishRequest struct {
	Name        *string
	Description *string
	Category    *string
	Plan        *string
	Price       *int64
	Version     *string
	Tags        []string // nil leaves tags unchanged
	Archive     *Upload
	Thumbnail   *Upload
}

// Publish extracts and stores a new catalog theme.
func (c *Catalog) Publish(ctx context.Context, req PublishRequest) (pkg *store.ThemePackage, err error) {
	defer func() { metrics.RecordPublish("catalog", err) }()

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, errs.New(errs.ErrValidation, "theme name is required")
	}
	if req.Price < 0 {
		return nil, errs.New(errs.ErrValidation, "price cannot be negative")
	}
	archiveName, err := c.checkArchive(req.Archive)
	if err != nil {
		return nil, err
	}
	thumbName, err := c.checkThumbnail(req.Thumbnail)
	if err != nil {
		return nil, err
	}

	s, err := c.storeNew(c.layout.ThemesDir(), name, archiveName, req.Archive, thumbName, req.Thumbnail)
	if err != nil {
		return nil, err
	}

	now := c.now()
	pkg = &store.ThemePackage{
		ID:            uuid.NewString(),
		Name:          name,
		Description:   req.Description,
		Category:      req.Category,
		Plan:          req.Plan,
		Price:         req.Price,
		Version:       req.Version,
		Tags:          req.Tags,
		PackagePath:   s.dirs.Name,
		Thumbnail:     s.thumbnail,
		Dirs:          toStoreDirs(s.dirs),
		ArchiveName:   s.archiveName,
		ArchiveDigest: s.digest,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	applyManifest(pkg, s.manifest)

	if err := c.store.CreatePackage(ctx, pkg); err != nil {
		c.cleanup(s.dirs.Root)
		return nil, fmt.Errorf("saving theme: %w", err)
	}

	c.mirrorPut(ctx, collectionThemes, pkg.PackagePath, pkg.Dirs, pkg.ArchiveName)
	c.logger.Info("published theme", "id", pkg.ID, "name", pkg.Name, "path", pkg.PackagePath, "digest", pkg.ArchiveDigest)
	return pkg, nil
}

// applyManifest fills metadata the publisher left blank from theme.toml.
func applyManifest(pkg *store.ThemePackage, m *archive.Manifest) {
	if m == nil {
		return
	}
	if pkg.Description == "" {
		pkg.Description = m.Description
	}
	if pkg.Version == "" {
		pkg.Version = m.Version
	}
	if pkg.Category == "" {
		pkg.Category = m.Category
	}
	if len(pkg.Tags) == 0 {
		pkg.Tags = m.Tags
	}
}

// Republish updates metadata and optionally replaces the archive or thumbnail.
// A failed re-extraction leaves the previous code in place.
func (c *Catalog) Republish(ctx context.Context, id string, req RepublishRequest) (pkg *store.ThemePackage, err error) {
	defer func() { metrics.RecordPublish("catalog", err) }()

	pkg, err = c.store.GetPackage(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("theme %s: %w", id, err)
	}

	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		return nil, errs.New(errs.ErrValidation, "theme name cannot be empty")
	}
	if req.Price != nil && *req.Price < 0 {
		return nil, errs.New(errs.ErrValidation, "price cannot be negative")
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
			c.mirrorDelete(ctx, collectionThemes, pkg.PackagePath, pkg.ArchiveName)
		}
		pkg.ArchiveName, pkg.ArchiveDigest = archiveName, digest
		if m, err := archive.ReadManifest(pkg.Dirs.Code); err == nil {
			applyManifest(pkg, m)
		}
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
	if req.Description != nil {
		pkg.Description = *req.Description
	}
	if req.Category != nil {
		pkg.Category = *req.Category
	}
	if req.Plan != nil {
		pkg.Plan = *req.Plan
	}
	if req.Price != nil {
		pkg.Price = *req.Price
	}
	if req.Version != nil {
		pkg.Version = *req.Version
	}
	if req.Tags != nil {
		pkg.Tags = req.Tags
	}
	pkg.UpdatedAt = c.now()

	if err := c.store.UpdatePackage(ctx, pkg); err != nil {
		return nil, fmt.Errorf("updating theme: %w", err)
	}

	if req.Archive != nil {
		c.mirrorPut(ctx, collectionThemes, pkg.PackagePath, pkg.Dirs, pkg.ArchiveName)
	}
	c.logger.Info("republished theme", "id", pkg.ID, "archive", req.Archive != nil, "thumbnail", req.Thumbnail != nil)
	return pkg, nil
}

// Remove deletes a theme, its installation records, and its files. Store working
// copies are left on disk.
func (c *Catalog) Remove(ctx context.Context, id string) error {
	pkg, err := c.store.GetPackage(ctx, id)
	if err != nil {
		return fmt.Errorf("theme %s: %w", id, err)
	}

	if err := c.forgetInstalls(ctx, id, false); err != nil {
		return err
	}
	c.cleanup(pkg.Dirs.Root)
	if err := c.store.DeletePackage(ctx, id); err != nil {
		return fmt.Errorf("deleting theme: %w", err)
	}
	c.mirrorDelete(ctx, collectionThemes, pkg.PackagePath, pkg.ArchiveName)

	c.logger.Info("removed theme", "id", id, "name", pkg.Name)
	return nil
}

// Get returns a catalog theme.
func (c *Catalog) Get(ctx context.Context, id string) (*store.ThemePackage, error) {
	pkg, err := c.store.GetPackage(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("theme %s: %w", id, err)
	}
	return pkg, nil
}

// List returns every catalog theme.
func (c *Catalog) List(ctx context.Context) ([]*store.ThemePackage, error) {
	pkgs, err := c.store.ListPackages(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing themes: %w", err)
	}
	return pkgs, nil
}
