package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
)

// Querier is the subset of *sql.DB and *sql.Tx the migration engine and the
// schema helpers need. Migrations always receive the batch transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// identifierPattern restricts names interpolated into PRAGMA statements,
// which cannot take bound parameters.
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// TableExists reports whether a table with the given name exists.
func TableExists(ctx context.Context, q Querier, name string) (bool, error) {
	return objectExists(ctx, q, "table", name)
}

// ViewExists reports whether a view with the given name exists.
func ViewExists(ctx context.Context, q Querier, name string) (bool, error) {
	return objectExists(ctx, q, "view", name)
}

// IndexExists reports whether an index with the given name exists.
func IndexExists(ctx context.Context, q Querier, name string) (bool, error) {
	return objectExists(ctx, q, "index", name)
}

func objectExists(ctx context.Context, q Querier, kind, name string) (bool, error) {
	var found string
	err := q.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type = ? AND name = ?", kind, name,
	).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("looking up %s %s: %w", kind, name, err)
	}
	return true, nil
}

// Columns returns the set of column names of a table. A missing table yields
// an empty set, not an error.
func Columns(ctx context.Context, q Querier, table string) (map[string]bool, error) {
	if !identifierPattern.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}

	rows, err := q.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, fmt.Errorf("reading columns of %s: %w", table, err)
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var (
			cid     int
			name    string
			colType string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("scanning column of %s: %w", table, err)
		}
		cols[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating columns of %s: %w", table, err)
	}
	return cols, nil
}

// CountRows returns the number of rows in a table.
func CountRows(ctx context.Context, q Querier, table string) (int64, error) {
	if !identifierPattern.MatchString(table) {
		return 0, fmt.Errorf("invalid table name %q", table)
	}
	var n int64
	if err := q.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting rows of %s: %w", table, err)
	}
	return n, nil
}
