package database

import (
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

// ErrMigration is matched by every *MigrationError via errors.Is.
var ErrMigration = errors.New("database: migration failed")

// MigrationError reports a failed migration batch. The whole batch has been
// rolled back, so the recorded schema version is the one from before the run.
//
// It is fatal: the process must not accept ingestion after receiving it.
type MigrationError struct {
	// Version is the migration that failed, or 0 when the failure happened
	// during version detection or commit.
	Version int
	Name    string
	Err     error
}

func (e *MigrationError) Error() string {
	if e.Version == 0 {
		return fmt.Sprintf("migration: %s: %v", e.Name, e.Err)
	}
	return fmt.Sprintf("migration v%d (%s): %v", e.Version, e.Name, e.Err)
}

func (e *MigrationError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrMigration) true for any MigrationError.
func (e *MigrationError) Is(target error) bool { return target == ErrMigration }

// IsUniqueViolation reports whether err is a SQLite UNIQUE or PRIMARY KEY
// constraint failure.
func IsUniqueViolation(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintUnique ||
		se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

// IsPrimaryKeyViolation reports whether err is a SQLite PRIMARY KEY failure.
func IsPrimaryKeyViolation(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
