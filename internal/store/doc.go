// Package store provides persistent storage for vitrine using SQLite.
//
// # Architecture
//
// The store package splits persistence into four interfaces:
//
//   - PackageStore: catalog themes and per-actor custom themes
//   - InstallationStore: store installations and the install state index
//   - LedgerStore: the bounded recent-installations history
//   - AuditStore: append-only record of theme changes
//
// Store combines all of them. SQLiteStore implements it in a single struct and
// MockStore provides an in-memory equivalent for tests.
//
// # Data Models
//
//   - ThemePackage: canonical theme shared by every store
//   - CustomThemePackage: theme owned by one actor
//   - Installation: link from a store to a package; at most one active per store
//   - InstallState: seeded/dirty flags for a store's working copy
//   - RecentInstallation: ledger entry
//   - AuditEntry: who changed which theme, and when
//
// Large file content never lives in the database. Records hold directory paths
// and the theme files stay on disk.
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// Timestamps are stored as fixed-width UTC strings so ORDER BY sorts them correctly.
//
// # Error Handling
//
//   - ErrNotFound: Requested entity does not exist (same value as errs.ErrNotFound)
//   - ErrDuplicatePackagePath: Package directory name already recorded
//
// # Testing
//
// Use NewMockStore() for unit tests:
//
//	store := store.NewMockStore()
//
// Use NewSQLiteStore(":memory:") for integration tests with real SQLite.
//
// # Migrations
//
// Column additions are checked against pragma_table_info and applied on startup.
// They are idempotent.
package store
