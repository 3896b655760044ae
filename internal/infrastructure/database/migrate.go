package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Migration is one step in the linear schema history.
//
// Up runs inside the batch transaction and must be idempotent: it checks
// before creating tables, indexes and views, and before renaming columns, so
// it leaves the store in the same state whether it starts from nothing or
// from a partially migrated store.
type Migration struct {
	Version int
	Name    string
	Up      func(ctx context.Context, tx *sql.Tx) error
}

// VersionRecord is a row of the schema_version table.
type VersionRecord struct {
	Version   int
	AppliedAt time.Time
}

// Report describes what a Migrator.Run did.
type Report struct {
	Detected Detection
	From     int
	To       int
	Applied  []int
}

// Status describes the schema state without changing it.
type Status struct {
	Detected Detection
	Current  int
	Latest   int
	Pending  []Migration
	History  []VersionRecord
}

// Logger is the logging interface used by the migrator.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

const createVersionTable = `
	CREATE TABLE IF NOT EXISTS schema_version (
		version    INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`

// Migrator applies an ordered list of migrations to a DB.
//
// Run is meant to be called once at startup, before any other component
// touches the store.
type Migrator struct {
	db         *DB
	migrations []Migration
	detector   Detector
	logger     Logger
	now        func() time.Time
}

// NewMigrator validates the migration list and returns a Migrator.
// Versions must start at 1 and increase by one.
func NewMigrator(db *DB, migrations []Migration, detector Detector) (*Migrator, error) {
	if db == nil {
		return nil, fmt.Errorf("migrator: db is required")
	}
	for i, m := range migrations {
		if m.Version != i+1 {
			return nil, fmt.Errorf("migrator: migration %q has version %d, want %d", m.Name, m.Version, i+1)
		}
		if m.Up == nil {
			return nil, fmt.Errorf("migrator: migration v%d has no Up function", m.Version)
		}
	}
	return &Migrator{
		db:         db,
		migrations: migrations,
		detector:   detector,
		logger:     noopLogger{},
		now:        time.Now,
	}, nil
}

// SetLogger sets the logger for migration progress.
func (m *Migrator) SetLogger(logger Logger) {
	if logger != nil {
		m.logger = logger
	}
}

// Latest returns the highest known migration version.
func (m *Migrator) Latest() int {
	return len(m.migrations)
}

// Run detects the current version and applies every pending migration in a
// single transaction.
//
// If a migration fails the whole batch is rolled back and a *MigrationError
// is returned; the recorded version stays where it was. A version inferred
// from a fingerprint is recorded as the baseline so later startups read it
// from the table.
func (m *Migrator) Run(ctx context.Context) (*Report, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, &MigrationError{Name: "begin", Err: err}
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	if _, err := tx.ExecContext(ctx, createVersionTable); err != nil {
		return nil, &MigrationError{Name: "create schema_version", Err: err}
	}

	detected, err := m.detector.Detect(ctx, tx)
	if err != nil {
		return nil, &MigrationError{Name: "detect", Err: err}
	}
	if detected.Version > m.Latest() {
		return nil, &MigrationError{
			Name: "detect",
			Err:  fmt.Errorf("store is at version %d, newer than the latest known version %d", detected.Version, m.Latest()),
		}
	}

	report := &Report{Detected: detected, From: detected.Version, To: detected.Version}

	if detected.Inferred() {
		m.logger.Warn("schema version inferred from table layout",
			"fingerprint", detected.Source,
			"version", detected.Version,
		)
		if detected.Version > 0 {
			if err := m.recordVersion(ctx, tx, detected.Version); err != nil {
				return nil, &MigrationError{Name: "record baseline", Err: err}
			}
		}
	}

	for _, mig := range m.migrations[detected.Version:] {
		m.logger.Info("applying migration", "version", mig.Version, "name", mig.Name)
		if err := mig.Up(ctx, tx); err != nil {
			return nil, &MigrationError{Version: mig.Version, Name: mig.Name, Err: err}
		}
		if err := m.recordVersion(ctx, tx, mig.Version); err != nil {
			return nil, &MigrationError{Version: mig.Version, Name: mig.Name, Err: err}
		}
		report.Applied = append(report.Applied, mig.Version)
		report.To = mig.Version
	}

	if err := tx.Commit(); err != nil {
		return nil, &MigrationError{Name: "commit", Err: err}
	}

	if len(report.Applied) > 0 {
		m.logger.Info("schema migrated", "from", report.From, "to", report.To)
	}
	return report, nil
}

// Status reports the current version, pending migrations and history.
// Without a recorded version the fingerprints decide, as they would in Run.
// It does not create the version table or record anything.
func (m *Migrator) Status(ctx context.Context) (*Status, error) {
	st := &Status{Latest: m.Latest()}

	exists, err := TableExists(ctx, m.db, "schema_version")
	if err != nil {
		return nil, err
	}
	if exists {
		st.Current, err = RecordedVersion(ctx, m.db)
		if err != nil {
			return nil, err
		}
		st.History, err = m.history(ctx)
		if err != nil {
			return nil, err
		}
	}

	if st.Current > 0 {
		st.Detected = Detection{Version: st.Current, Source: SourceVersionTable}
	} else {
		st.Detected, err = m.detector.match(ctx, m.db)
		if err != nil {
			return nil, err
		}
		st.Current = st.Detected.Version
	}
	if st.Current < len(m.migrations) {
		st.Pending = append(st.Pending, m.migrations[st.Current:]...)
	}
	return st, nil
}

func (m *Migrator) recordVersion(ctx context.Context, tx *sql.Tx, version int) error {
	_, err := tx.ExecContext(ctx,
		"INSERT OR IGNORE INTO schema_version (version, applied_at) VALUES (?, ?)",
		version, FormatTime(m.now()),
	)
	if err != nil {
		return fmt.Errorf("recording schema version %d: %w", version, err)
	}
	return nil
}

func (m *Migrator) history(ctx context.Context) ([]VersionRecord, error) {
	rows, err := m.db.QueryContext(ctx, "SELECT version, applied_at FROM schema_version ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("querying schema versions: %w", err)
	}
	defer rows.Close()

	var records []VersionRecord
	for rows.Next() {
		var r VersionRecord
		var appliedAt Timestamp
		if err := rows.Scan(&r.Version, &appliedAt); err != nil {
			return nil, fmt.Errorf("scanning schema version row: %w", err)
		}
		r.AppliedAt = appliedAt.Time
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating schema versions: %w", err)
	}
	return records, nil
}
