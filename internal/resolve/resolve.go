// ABOUTME: Customization Resolver choosing which storage tier reads and writes target
// ABOUTME: Store working copies shadow actor copies, which shadow the canonical package

package resolve

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/2389/vitrine/internal/errs"
	"github.com/2389/vitrine/internal/install"
	"github.com/2389/vitrine/internal/store"
)

// Target identifies a package and where its canonical files live.
type Target struct {
	PackageID string
	IsCustom  bool
	CodeDir   string
}

// Key is the working-copy folder name of the target.
func (t Target) Key() string {
	return install.ThemeKey(t.PackageID, t.IsCustom)
}

// TargetFor builds the target of a catalog package.
func TargetFor(pkg *store.ThemePackage) Target {
	return Target{PackageID: pkg.ID, CodeDir: pkg.Dirs.Code}
}

// CustomTargetFor builds the target of a custom package.
func CustomTargetFor(pkg *store.CustomThemePackage) Target {
	return Target{PackageID: pkg.ID, IsCustom: true, CodeDir: pkg.Dirs.Code}
}

// Request is a target plus the optional store and actor context of a read or write.
type Request struct {
	Target
	StoreID string
	ActorID string
}

// Strategy proposes a base directory for a request. ok is false when the strategy
// does not apply.
type Strategy interface {
	Name() string
	Resolve(req Request) (dir string, ok bool)
}

// Resolver evaluates strategies in order and returns the first that applies.
type Resolver struct {
	layout     install.Layout
	states     store.InstallationStore
	strategies []Strategy
	logger     *slog.Logger
}

// New creates a Resolver with the store, actor, and canonical tiers in that order.
// states may be nil, in which case saves do not update the install state index.
func New(layout install.Layout, states store.InstallationStore, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		layout: layout,
		states: states,
		strategies: []Strategy{
			StoreTier{Layout: layout},
			ActorTier{Layout: layout},
			CanonicalTier{},
		},
		logger: logger.With("component", "resolve"),
	}
}

// Layout returns the uploads layout the resolver works against.
func (r *Resolver) Layout() install.Layout {
	return r.layout
}

// ResolveBaseDir returns the directory reads and writes for req should target.
func (r *Resolver) ResolveBaseDir(req Request) (string, error) {
	if err := validate(req); err != nil {
		return "", err
	}
	for _, s := range r.strategies {
		if dir, ok := s.Resolve(req); ok {
			return dir, nil
		}
	}
	return "", errs.New(errs.ErrNotFound, "no directory for package %s", req.PackageID)
}

// CanonicalDir returns the read-only package directory for req.
func (r *Resolver) CanonicalDir(req Request) (string, error) {
	dir, ok := CanonicalTier{}.Resolve(req)
	if !ok {
		return "", errs.New(errs.ErrNotFound, "package %s has no code directory", req.PackageID)
	}
	return dir, nil
}

func validate(req Request) error {
	if err := install.ValidateID("package id", req.PackageID); err != nil {
		return err
	}
	if req.StoreID != "" {
		if err := install.ValidateID("store id", req.StoreID); err != nil {
			return err
		}
	}
	if req.ActorID != "" {
		if err := install.ValidateID("actor id", req.ActorID); err != nil {
			return err
		}
	}
	return nil
}

// StoreTier targets the store's working copy whenever a store is given. It
// returns the nested folder even when nothing exists yet so writes create it.
type StoreTier struct {
	Layout install.Layout
}

func (StoreTier) Name() string { return "store" }

func (s StoreTier) Resolve(req Request) (string, bool) {
	if req.StoreID == "" {
		return "", false
	}
	return workingCopyDir(s.Layout.WorkingCopy(req.StoreID, req.Key())), true
}

// ActorTier targets the actor's own working copy when no store is given.
type ActorTier struct {
	Layout install.Layout
}

func (ActorTier) Name() string { return "actor" }

func (a ActorTier) Resolve(req Request) (string, bool) {
	if req.ActorID == "" {
		return "", false
	}
	return workingCopyDir(a.Layout.ActorWorkingCopy(req.ActorID, req.Key())), true
}

// CanonicalTier targets the package's extracted code.
type CanonicalTier struct{}

func (CanonicalTier) Name() string { return "canonical" }

func (CanonicalTier) Resolve(req Request) (string, bool) {
	if req.CodeDir == "" {
		return "", false
	}
	return req.CodeDir, true
}

// workingCopyDir prefers the nested code folder, then a legacy root-level layout.
func workingCopyDir(root string) string {
	nested := install.Nested(root)
	if isDir(nested) {
		return nested
	}
	if isDir(root) {
		return root
	}
	return nested
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// SafeJoin joins rel onto base and fails with errs.ErrAccessDenied if the
// result leaves base. It performs no I/O.
func SafeJoin(base, rel string) (string, error) {
	absBase, err := filepath.Abs(base)
	if err != nil {
		return "", errs.Wrap(errs.ErrIO, "resolving base directory", err)
	}
	target := filepath.Join(absBase, filepath.FromSlash(rel))
	if target != absBase && !strings.HasPrefix(target, absBase+string(os.PathSeparator)) {
		return "", errs.New(errs.ErrAccessDenied, "path %q escapes the theme directory", rel)
	}
	return target, nil
}

// writeContext is the base directory chosen for a save and the index row to mark.
type writeContext struct {
	base    string
	storeID string
}

func (r *Resolver) writeBase(req Request) (writeContext, error) {
	if err := validate(req); err != nil {
		return writeContext{}, err
	}
	switch {
	case req.StoreID != "":
		return writeContext{
			base:    install.Nested(r.layout.WorkingCopy(req.StoreID, req.Key())),
			storeID: req.StoreID,
		}, nil
	case req.ActorID != "":
		return writeContext{base: install.Nested(r.layout.ActorWorkingCopy(req.ActorID, req.Key()))}, nil
	default:
		return writeContext{}, errs.New(errs.ErrValidation, "saving requires a store or an actor; canonical packages are read-only")
	}
}

func (r *Resolver) markDirty(ctx context.Context, storeID, key string) {
	if r.states == nil || storeID == "" {
		return
	}
	now := nowUTC()
	if err := r.states.SetInstallState(ctx, &store.InstallState{
		StoreID: storeID, ThemeKey: key, Seeded: true, Dirty: true, UpdatedAt: now,
	}); err != nil {
		r.logger.Warn("failed to mark working copy dirty", "store", storeID, "key", key, "error", err)
	}
}
