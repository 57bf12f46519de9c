// ABOUTME: SQLite persistence for store installations and the install state index
// ABOUTME: Enforces one record per (store, package, namespace) through an upsert

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const installationColumns = `id, store_id, package_id, is_custom, is_active, working_copy_path, installed_at, uninstalled_at`

// GetInstallation retrieves an installation by ID.
// Returns ErrNotFound if the installation doesn't exist.
func (s *SQLiteStore) GetInstallation(ctx context.Context, id string) (*Installation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+installationColumns+` FROM installations WHERE id = ?`, id)
	inst, err := scanInstallation(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying installation: %w", err)
	}
	return inst, nil
}

// FindInstallation retrieves the installation of a package in a store, active or not.
func (s *SQLiteStore) FindInstallation(ctx context.Context, storeID, packageID string, isCustom bool) (*Installation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+installationColumns+` FROM installations WHERE store_id = ? AND package_id = ? AND is_custom = ?`,
		storeID, packageID, boolInt(isCustom))
	inst, err := scanInstallation(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying installation by package: %w", err)
	}
	return inst, nil
}

// UpsertInstallation inserts the installation or updates the existing record for
// the same store and package. The surviving record ID is written back to inst.ID.
func (s *SQLiteStore) UpsertInstallation(ctx context.Context, inst *Installation) error {
	query := `
		INSERT INTO installations (` + installationColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (store_id, package_id, is_custom) DO UPDATE SET
			is_active = excluded.is_active,
			working_copy_path = excluded.working_copy_path,
			installed_at = excluded.installed_at,
			uninstalled_at = excluded.uninstalled_at
		RETURNING id
	`

	var uninstalledAt any
	if inst.UninstalledAt != nil {
		uninstalledAt = formatTime(*inst.UninstalledAt)
	}

	var id string
	err := s.db.QueryRowContext(ctx, query,
		inst.ID, inst.StoreID, inst.PackageID, boolInt(inst.IsCustom), boolInt(inst.IsActive),
		inst.WorkingCopyPath, formatTime(inst.InstalledAt), uninstalledAt,
	).Scan(&id)
	if err != nil {
		return fmt.Errorf("upserting installation: %w", err)
	}
	inst.ID = id

	s.logger.Debug("upserted installation", "id", id, "store", inst.StoreID, "package", inst.PackageID, "custom", inst.IsCustom)
	return nil
}

// ListActiveInstallations returns the store's active installations, newest first.
func (s *SQLiteStore) ListActiveInstallations(ctx context.Context, storeID string) ([]*Installation, error) {
	return s.queryInstallations(ctx,
		`SELECT `+installationColumns+` FROM installations WHERE store_id = ? AND is_active = 1 ORDER BY installed_at DESC, id`,
		storeID)
}

// DeactivateStoreInstallations marks every active installation of the store inactive.
func (s *SQLiteStore) DeactivateStoreInstallations(ctx context.Context, storeID string, at time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE installations SET is_active = 0, uninstalled_at = ? WHERE store_id = ? AND is_active = 1`,
		formatTime(at), storeID)
	if err != nil {
		return 0, fmt.Errorf("deactivating installations: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}
	return int(n), nil
}

// SetInstallationInactive marks one installation inactive.
// Returns ErrNotFound if the installation doesn't exist.
func (s *SQLiteStore) SetInstallationInactive(ctx context.Context, id string, at time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE installations SET is_active = 0, uninstalled_at = ? WHERE id = ?`,
		formatTime(at), id)
	if err != nil {
		return fmt.Errorf("deactivating installation: %w", err)
	}
	return requireAffected(result)
}

// DeleteInstallationsForPackage removes every installation referencing the package.
func (s *SQLiteStore) DeleteInstallationsForPackage(ctx context.Context, packageID string, isCustom bool) (int, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM installations WHERE package_id = ? AND is_custom = ?`,
		packageID, boolInt(isCustom))
	if err != nil {
		return 0, fmt.Errorf("deleting installations: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}
	return int(n), nil
}

// ListCustomInstallations returns every installation of a custom theme across all stores.
func (s *SQLiteStore) ListCustomInstallations(ctx context.Context) ([]*Installation, error) {
	return s.queryInstallations(ctx,
		`SELECT `+installationColumns+` FROM installations WHERE is_custom = 1 ORDER BY store_id, installed_at DESC`)
}

func (s *SQLiteStore) queryInstallations(ctx context.Context, query string, args ...any) ([]*Installation, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying installations: %w", err)
	}
	defer rows.Close()

	var out []*Installation
	for rows.Next() {
		inst, err := scanInstallation(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning installation row: %w", err)
		}
		out = append(out, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating installation rows: %w", err)
	}
	return out, nil
}

func scanInstallation(row rowScanner) (*Installation, error) {
	var inst Installation
	var isCustom, isActive int
	var installedAt string
	var uninstalledAt sql.NullString
	err := row.Scan(
		&inst.ID, &inst.StoreID, &inst.PackageID, &isCustom, &isActive,
		&inst.WorkingCopyPath, &installedAt, &uninstalledAt,
	)
	if err != nil {
		return nil, err
	}
	inst.IsCustom = isCustom == 1
	inst.IsActive = isActive == 1
	if inst.InstalledAt, err = parseTime(installedAt); err != nil {
		return nil, fmt.Errorf("parsing installed_at: %w", err)
	}
	if uninstalledAt.Valid {
		t, err := parseTime(uninstalledAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing uninstalled_at: %w", err)
		}
		inst.UninstalledAt = &t
	}
	return &inst, nil
}

// GetInstallState returns the index row for a working copy.
// Returns ErrNotFound when the working copy has never been indexed.
func (s *SQLiteStore) GetInstallState(ctx context.Context, storeID, themeKey string) (*InstallState, error) {
	var st InstallState
	var seeded, dirty int
	var updatedAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT store_id, theme_key, seeded, dirty, updated_at FROM install_state WHERE store_id = ? AND theme_key = ?`,
		storeID, themeKey,
	).Scan(&st.StoreID, &st.ThemeKey, &seeded, &dirty, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying install state: %w", err)
	}
	st.Seeded = seeded == 1
	st.Dirty = dirty == 1
	if st.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &st, nil
}

// SetInstallState creates or replaces the index row for a working copy.
func (s *SQLiteStore) SetInstallState(ctx context.Context, state *InstallState) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO install_state (store_id, theme_key, seeded, dirty, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (store_id, theme_key) DO UPDATE SET
			seeded = excluded.seeded,
			dirty = excluded.dirty,
			updated_at = excluded.updated_at
	`, state.StoreID, state.ThemeKey, boolInt(state.Seeded), boolInt(state.Dirty), formatTime(state.UpdatedAt))
	if err != nil {
		return fmt.Errorf("saving install state: %w", err)
	}
	return nil
}

// DeleteInstallState removes the index row for a working copy. Missing rows are not an error.
func (s *SQLiteStore) DeleteInstallState(ctx context.Context, storeID, themeKey string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM install_state WHERE store_id = ? AND theme_key = ?`, storeID, themeKey)
	if err != nil {
		return fmt.Errorf("deleting install state: %w", err)
	}
	return nil
}
