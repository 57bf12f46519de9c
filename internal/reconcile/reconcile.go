// ABOUTME: Rebuilds missing install state rows from store working copies on disk
// ABOUTME: Runs at startup, on a cron schedule, and from the reindex command

package reconcile

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

	"github.com/robfig/cron/v3"

	"github.com/2389/vitrine/internal/install"
	"github.com/2389/vitrine/internal/store"
)

// Report summarizes one pass.
type Report struct {
	Stores  int
	Scanned int
	Added   int
}

// Reconciler walks {uploads}/stores/*/themes/* and backfills the index.
type Reconciler struct {
	states store.InstallationStore
	layout install.Layout
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Reconciler.
func New(states store.InstallationStore, layout install.Layout, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		states: states,
		layout: layout,
		logger: logger.With("component", "reconcile"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Run inserts an InstallState row for every working copy that lacks one. Existing
// rows are never changed and no files are touched.
func (r *Reconciler) Run(ctx context.Context) (Report, error) {
	var rep Report

	storeDirs, err := subdirs(r.layout.StoresDir())
	if err != nil {
		return rep, fmt.Errorf("reading stores dir: %w", err)
	}

	for _, storeID := range storeDirs {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		rep.Stores++

		keys, err := subdirs(r.layout.StoreThemesDir(storeID))
		if err != nil {
			return rep, fmt.Errorf("reading themes of store %s: %w", storeID, err)
		}
		for _, key := range keys {
			rep.Scanned++
			added, err := r.reconcileOne(ctx, storeID, key)
			if err != nil {
				return rep, err
			}
			if added {
				rep.Added++
			}
		}
	}

	if rep.Added > 0 {
		r.logger.Info("backfilled install state", "stores", rep.Stores, "scanned", rep.Scanned, "added", rep.Added)
	} else {
		r.logger.Debug("install state up to date", "stores", rep.Stores, "scanned", rep.Scanned)
	}
	return rep, nil
}

func (r *Reconciler) reconcileOne(ctx context.Context, storeID, key string) (bool, error) {
	_, err := r.states.GetInstallState(ctx, storeID, key)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return false, fmt.Errorf("reading install state %s/%s: %w", storeID, key, err)
	}

	seeded, err := hasFiles(r.layout.WorkingCopy(storeID, key))
	if err != nil {
		return false, fmt.Errorf("inspecting %s/%s: %w", storeID, key, err)
	}
	if err := r.states.SetInstallState(ctx, &store.InstallState{
		StoreID: storeID, ThemeKey: key, Seeded: seeded, UpdatedAt: r.now(),
	}); err != nil {
		return false, fmt.Errorf("writing install state %s/%s: %w", storeID, key, err)
	}
	return true, nil
}

// hasFiles is true when the nested code folder has content or the working copy
// root holds legacy files next to it.
func hasFiles(workingCopy string) (bool, error) {
	entries, err := os.ReadDir(workingCopy)
	if err != nil {
		return false, err
	}
	nestedName := filepath.Base(install.Nested(workingCopy))
	for _, e := range entries {
		if e.Name() != nestedName {
			return true, nil
		}
	}

	f, err := os.Open(install.Nested(workingCopy))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer f.Close()
	if _, err := f.Readdirnames(1); errors.Is(err, io.EOF) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return true, nil
}

// subdirs lists directory names, skipping dot-prefixed staging folders.
func subdirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

// Schedule runs the reconciler on a standard five-field cron spec (or a
// descriptor such as "@hourly"). The caller stops the returned scheduler.
func (r *Reconciler) Schedule(ctx context.Context, spec string) (*cron.Cron, error) {
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("parsing reconcile schedule %q: %w", spec, err)
	}

	c := cron.New()
	if _, err := c.AddFunc(spec, func() {
		if _, err := r.Run(ctx); err != nil {
			r.logger.Error("scheduled reconcile failed", "error", err)
		}
	}); err != nil {
		return nil, fmt.Errorf("scheduling reconcile: %w", err)
	}
	c.Start()
	r.logger.Info("reconcile scheduled", "schedule", spec)
	return c, nil
}
