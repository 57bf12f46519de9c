// ABOUTME: SQLite persistence for the recent-installations ledger
// ABOUTME: Entries are ordered by an autoincrement sequence, newest last

package store

import (
	"context"
	"fmt"
)

// AppendRecent adds an entry at the newest end of the ledger.
func (s *SQLiteStore) AppendRecent(ctx context.Context, entry *RecentInstallation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO recent_installations (id, package_id, is_custom, store_id, package_name, installed_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.PackageID, boolInt(entry.IsCustom), entry.StoreID, entry.PackageName, formatTime(entry.InstalledAt))
	if err != nil {
		return fmt.Errorf("inserting recent installation: %w", err)
	}
	return nil
}

// DeleteRecentFor removes any entry for the same package identity.
func (s *SQLiteStore) DeleteRecentFor(ctx context.Context, packageID string, isCustom bool) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM recent_installations WHERE package_id = ? AND is_custom = ?`,
		packageID, boolInt(isCustom))
	if err != nil {
		return fmt.Errorf("deleting recent installation: %w", err)
	}
	return nil
}

// ListRecent returns up to limit entries, newest first.
func (s *SQLiteStore) ListRecent(ctx context.Context, limit int) ([]*RecentInstallation, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, package_id, is_custom, store_id, package_name, installed_at
		FROM recent_installations
		ORDER BY seq DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying recent installations: %w", err)
	}
	defer rows.Close()

	var out []*RecentInstallation
	for rows.Next() {
		var e RecentInstallation
		var isCustom int
		var installedAt string
		if err := rows.Scan(&e.ID, &e.PackageID, &isCustom, &e.StoreID, &e.PackageName, &installedAt); err != nil {
			return nil, fmt.Errorf("scanning recent installation row: %w", err)
		}
		e.IsCustom = isCustom == 1
		if e.InstalledAt, err = parseTime(installedAt); err != nil {
			return nil, fmt.Errorf("parsing installed_at: %w", err)
		}
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating recent installation rows: %w", err)
	}
	return out, nil
}

// TrimRecent deletes everything but the newest keep entries.
func (s *SQLiteStore) TrimRecent(ctx context.Context, keep int) error {
	if keep < 0 {
		keep = 0
	}
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM recent_installations
		WHERE seq NOT IN (SELECT seq FROM recent_installations ORDER BY seq DESC LIMIT ?)
	`, keep)
	if err != nil {
		return fmt.Errorf("trimming recent installations: %w", err)
	}
	return nil
}
