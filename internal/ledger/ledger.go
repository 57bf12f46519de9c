// ABOUTME: Bounded recent-installations history shared by every store
// ABOUTME: Keeps the newest entries and one entry per package identity

package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/2389/vitrine/internal/store"
)

// Capacity is the number of entries retained.
const Capacity = 3

// Ledger records recent installations.
type Ledger struct {
	store  store.LedgerStore
	logger *slog.Logger
}

// New creates a Ledger backed by s.
func New(s store.LedgerStore, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{store: s, logger: logger.With("component", "ledger")}
}

// Record removes any prior entry for the same package identity, appends entry as
// the newest, and trims the history to Capacity.
func (l *Ledger) Record(ctx context.Context, entry store.RecentInstallation) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	if err := l.store.DeleteRecentFor(ctx, entry.PackageID, entry.IsCustom); err != nil {
		return fmt.Errorf("removing prior entry: %w", err)
	}
	if err := l.store.AppendRecent(ctx, &entry); err != nil {
		return fmt.Errorf("appending entry: %w", err)
	}
	if err := l.store.TrimRecent(ctx, Capacity); err != nil {
		return fmt.Errorf("trimming ledger: %w", err)
	}

	l.logger.Debug("recorded installation", "package", entry.PackageID, "custom", entry.IsCustom, "store", entry.StoreID)
	return nil
}

// List returns at most Capacity entries, newest first.
func (l *Ledger) List(ctx context.Context) ([]*store.RecentInstallation, error) {
	entries, err := l.store.ListRecent(ctx, Capacity)
	if err != nil {
		return nil, fmt.Errorf("listing recent installations: %w", err)
	}
	return entries, nil
}

// Forget drops the entry of a package that no longer exists.
func (l *Ledger) Forget(ctx context.Context, packageID string, isCustom bool) error {
	if err := l.store.DeleteRecentFor(ctx, packageID, isCustom); err != nil {
		return fmt.Errorf("forgetting %s: %w", packageID, err)
	}
	return nil
}
