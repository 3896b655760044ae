package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"
)

func execMigration(version int, name, ddl string) Migration {
	return Migration{
		Version: version,
		Name:    name,
		Up: func(ctx context.Context, tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, ddl)
			return err
		},
	}
}

func testMigrations() []Migration {
	return []Migration{
		execMigration(1, "widgets", "CREATE TABLE IF NOT EXISTS widgets (id TEXT PRIMARY KEY)"),
		execMigration(2, "gadgets", "CREATE TABLE IF NOT EXISTS gadgets (id TEXT PRIMARY KEY)"),
	}
}

func newTestMigrator(t *testing.T, db *DB, migrations []Migration, detector Detector) *Migrator {
	t.Helper()
	m, err := NewMigrator(db, migrations, detector)
	if err != nil {
		t.Fatalf("NewMigrator() error = %v", err)
	}
	return m
}

func TestNewMigrator_RejectsGaps(t *testing.T) {
	db := openTestDB(t)

	tests := []struct {
		name       string
		migrations []Migration
	}{
		{"starts at two", []Migration{execMigration(2, "b", "SELECT 1")}},
		{"gap", []Migration{execMigration(1, "a", "SELECT 1"), execMigration(3, "c", "SELECT 1")}},
		{"missing up", []Migration{{Version: 1, Name: "a"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewMigrator(db, tt.migrations, Detector{}); err == nil {
				t.Error("NewMigrator() expected error")
			}
		})
	}
}

func TestMigrator_Run_FreshStore(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	m := newTestMigrator(t, db, testMigrations(), Detector{})

	report, err := m.Run(ctx)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.From != 0 || report.To != 2 {
		t.Errorf("Run() from %d to %d, want 0 to 2", report.From, report.To)
	}
	if report.Detected.Source != SourceEmpty {
		t.Errorf("Detected.Source = %q, want %q", report.Detected.Source, SourceEmpty)
	}
	if len(report.Applied) != 2 {
		t.Errorf("Applied = %v, want [1 2]", report.Applied)
	}

	for _, table := range []string{"widgets", "gadgets", "schema_version"} {
		if ok, _ := TableExists(ctx, db, table); !ok {
			t.Errorf("table %s missing after Run()", table)
		}
	}
}

func TestMigrator_Run_Idempotent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	m := newTestMigrator(t, db, testMigrations(), Detector{})

	if _, err := m.Run(ctx); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}

	report, err := m.Run(ctx)
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if len(report.Applied) != 0 {
		t.Errorf("second Run() applied %v, want nothing", report.Applied)
	}
	if report.Detected.Source != SourceVersionTable || report.To != 2 {
		t.Errorf("second Run() detected %+v to %d, want version table at 2", report.Detected, report.To)
	}

	st, err := m.Status(ctx)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if st.Current != 2 || len(st.Pending) != 0 || len(st.History) != 2 {
		t.Errorf("Status() = current %d pending %d history %d, want 2/0/2", st.Current, len(st.Pending), len(st.History))
	}
}

func TestMigrator_Run_IncrementalFromRecordedVersion(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	first := newTestMigrator(t, db, testMigrations()[:1], Detector{})
	if _, err := first.Run(ctx); err != nil {
		t.Fatalf("Run() v1 error = %v", err)
	}

	second := newTestMigrator(t, db, testMigrations(), Detector{})
	report, err := second.Run(ctx)
	if err != nil {
		t.Fatalf("Run() v2 error = %v", err)
	}
	if len(report.Applied) != 1 || report.Applied[0] != 2 {
		t.Errorf("Applied = %v, want [2]", report.Applied)
	}
}

func TestMigrator_Run_FailureRollsBackWholeBatch(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	boom := errors.New("boom")
	migrations := []Migration{
		execMigration(1, "widgets", "CREATE TABLE widgets (id TEXT PRIMARY KEY)"),
		{Version: 2, Name: "explodes", Up: func(context.Context, *sql.Tx) error { return boom }},
	}
	m := newTestMigrator(t, db, migrations, Detector{})

	_, err := m.Run(ctx)
	if err == nil {
		t.Fatal("Run() expected error")
	}

	var migErr *MigrationError
	if !errors.As(err, &migErr) {
		t.Fatalf("Run() error = %T, want *MigrationError", err)
	}
	if migErr.Version != 2 {
		t.Errorf("MigrationError.Version = %d, want 2", migErr.Version)
	}
	if !errors.Is(err, ErrMigration) || !errors.Is(err, boom) {
		t.Errorf("errors.Is() chain broken: %v", err)
	}

	// v1 ran in the same transaction, so it must be gone too.
	if ok, _ := TableExists(ctx, db, "widgets"); ok {
		t.Error("widgets table survived a failed batch")
	}
	st, err := m.Status(ctx)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if st.Current != 0 {
		t.Errorf("recorded version = %d after failed batch, want 0", st.Current)
	}
}

func TestMigrator_Run_FingerprintBaseline(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	// A store that already has both tables but never recorded a version.
	if _, err := db.ExecContext(ctx, "CREATE TABLE widgets (id TEXT PRIMARY KEY); CREATE TABLE gadgets (id TEXT PRIMARY KEY)"); err != nil {
		t.Fatalf("fixture error = %v", err)
	}

	detector := Detector{Fingerprints: []Fingerprint{{
		Name:    "has-gadgets",
		Version: 2,
		Matches: func(ctx context.Context, q Querier) (bool, error) {
			return TableExists(ctx, q, "gadgets")
		},
	}}}
	m := newTestMigrator(t, db, testMigrations(), detector)

	report, err := m.Run(ctx)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Detected.Source != "has-gadgets" || !report.Detected.Inferred() {
		t.Errorf("Detected = %+v, want inferred from has-gadgets", report.Detected)
	}
	if len(report.Applied) != 0 {
		t.Errorf("Applied = %v, want nothing", report.Applied)
	}

	// The baseline is now recorded, so detection no longer needs the fingerprint.
	report, err = m.Run(ctx)
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if report.Detected.Source != SourceVersionTable {
		t.Errorf("second Detected.Source = %q, want %q", report.Detected.Source, SourceVersionTable)
	}
}

func TestMigrator_Status_UsesFingerprints(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if _, err := db.ExecContext(ctx, "CREATE TABLE widgets (id TEXT PRIMARY KEY); CREATE TABLE gadgets (id TEXT PRIMARY KEY)"); err != nil {
		t.Fatalf("fixture error = %v", err)
	}
	detector := Detector{Fingerprints: []Fingerprint{{
		Name:    "has-gadgets",
		Version: 2,
		Matches: func(ctx context.Context, q Querier) (bool, error) {
			return TableExists(ctx, q, "gadgets")
		},
	}}}
	m := newTestMigrator(t, db, testMigrations(), detector)

	st, err := m.Status(ctx)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if st.Current != 2 || len(st.Pending) != 0 {
		t.Errorf("Status() current %d pending %d, want 2 and none", st.Current, len(st.Pending))
	}
	if st.Detected.Source != "has-gadgets" {
		t.Errorf("Detected.Source = %q, want has-gadgets", st.Detected.Source)
	}
	if ok, _ := TableExists(ctx, db, "schema_version"); ok {
		t.Error("Status() created schema_version")
	}

	// Status must agree with what Run then does.
	report, err := m.Run(ctx)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.From != st.Current || len(report.Applied) != 0 {
		t.Errorf("Run() from %d applied %v, want from %d applying nothing", report.From, report.Applied, st.Current)
	}
}

func TestMigrator_Run_RejectsNewerStore(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	full := newTestMigrator(t, db, testMigrations(), Detector{})
	if _, err := full.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	older := newTestMigrator(t, db, testMigrations()[:1], Detector{})
	if _, err := older.Run(ctx); !errors.Is(err, ErrMigration) {
		t.Errorf("Run() with older binary error = %v, want ErrMigration", err)
	}
}
