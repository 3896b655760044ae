// Package database provides SQLite connectivity and the schema migration
// engine for the climate store.
//
// This package manages:
//   - The connection, opened with foreign keys on, a busy timeout, immediate
//     write transactions and optionally WAL mode
//   - A generic migrator that detects the current schema version (recorded
//     row or named fingerprint) and applies pending migrations in one
//     transaction
//   - Helpers for inspecting the live schema and classifying constraint
//     failures
//
// The schema history itself lives in the top-level migrations package.
//
// Security Considerations:
//   - All queries use parameterised statements
//   - Database file permissions are set to 0600 (owner read/write only)
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	m, err := database.NewMigrator(db, migrations.All(), migrations.Detector())
//	if err != nil {
//	    return err
//	}
//	if _, err := m.Run(ctx); err != nil {
//	    return err // *MigrationError, fatal
//	}
//
// Timestamps are written as UTC text in TimeLayout (millisecond precision,
// trailing Z) so that lexical order equals chronological order.
package database
