// Package database provides SQLite connectivity for Flockweigh Core.
//
// This package manages:
//   - Database connection with WAL mode for concurrent access
//   - Immediate-lock transactions for per-device read-decide-write sequences
//   - Embedded, forward-only schema migrations
//
// All queries use parameterised statements. The database file is created
// with 0600 permissions.
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
