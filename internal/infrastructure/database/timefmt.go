package database

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// TimeLayout is the canonical text encoding for instants stored in the
// climate schema: UTC, millisecond precision. Values in this layout sort
// lexicographically in time order, which the range queries rely on.
const TimeLayout = "2006-01-02T15:04:05.000Z"

// parseLayouts are tried in order by ParseTime. The last one is what SQLite
// writes for CURRENT_TIMESTAMP defaults.
var parseLayouts = []string{
	TimeLayout,
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
}

// FormatTime encodes t in TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime decodes a stored instant. It accepts TimeLayout, RFC 3339 and
// SQLite's CURRENT_TIMESTAMP format; the result is in UTC.
func ParseTime(s string) (time.Time, error) {
	var firstErr error
	for _, layout := range parseLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.UTC(), nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}

// Timestamp is a nullable instant column.
//
// The driver hands back DATETIME columns as time.Time but expression columns
// (MAX(ts) in a view, say) as text; Scan accepts both.
type Timestamp struct {
	Time  time.Time
	Valid bool
}

// NewTimestamp returns a valid Timestamp for t.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t.UTC(), Valid: true}
}

// Scan implements sql.Scanner.
func (ts *Timestamp) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*ts = Timestamp{}
		return nil
	case time.Time:
		*ts = NewTimestamp(v)
		return nil
	case string:
		return ts.scanText(v)
	case []byte:
		return ts.scanText(string(v))
	default:
		return fmt.Errorf("scanning timestamp: unsupported type %T", value)
	}
}

func (ts *Timestamp) scanText(s string) error {
	t, err := ParseTime(s)
	if err != nil {
		return fmt.Errorf("scanning timestamp %q: %w", s, err)
	}
	*ts = NewTimestamp(t)
	return nil
}

// Value implements driver.Valuer, writing TimeLayout text or NULL.
func (ts Timestamp) Value() (driver.Value, error) {
	if !ts.Valid {
		return nil, nil
	}
	return FormatTime(ts.Time), nil
}

// Ptr returns nil for an invalid Timestamp.
func (ts Timestamp) Ptr() *time.Time {
	if !ts.Valid {
		return nil
	}
	t := ts.Time
	return &t
}
