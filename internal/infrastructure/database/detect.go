package database

import (
	"context"
	"fmt"
)

// Detection sources reported alongside a detected version.
const (
	SourceVersionTable = "schema_version"
	SourceEmpty        = "empty"
)

// Fingerprint recognises a store that predates version tracking from the
// shape of its tables. A matching fingerprint pins the store to Version.
type Fingerprint struct {
	Name    string
	Version int
	Matches func(ctx context.Context, q Querier) (bool, error)
}

// Detection is the outcome of Detector.Detect.
type Detection struct {
	Version int
	// Source is SourceVersionTable, SourceEmpty, or the name of the
	// fingerprint that matched.
	Source string
}

// Inferred reports whether the version came from a fingerprint rather than
// from a recorded schema_version row.
func (d Detection) Inferred() bool {
	return d.Source != SourceVersionTable && d.Source != SourceEmpty
}

// Detector determines the schema version of a store.
//
// The recorded version wins when it is non-zero. Otherwise fingerprints are
// tried in order and the first match decides; a store matching none is
// treated as empty (version 0).
type Detector struct {
	Fingerprints []Fingerprint
}

// Detect reads the version table and, if it holds nothing, the fingerprints.
// The version table must already exist.
func (d Detector) Detect(ctx context.Context, q Querier) (Detection, error) {
	recorded, err := RecordedVersion(ctx, q)
	if err != nil {
		return Detection{}, err
	}
	if recorded > 0 {
		return Detection{Version: recorded, Source: SourceVersionTable}, nil
	}
	return d.match(ctx, q)
}

// match tries the fingerprints in order.
func (d Detector) match(ctx context.Context, q Querier) (Detection, error) {
	for _, fp := range d.Fingerprints {
		ok, err := fp.Matches(ctx, q)
		if err != nil {
			return Detection{}, fmt.Errorf("fingerprint %s: %w", fp.Name, err)
		}
		if ok {
			return Detection{Version: fp.Version, Source: fp.Name}, nil
		}
	}

	return Detection{Version: 0, Source: SourceEmpty}, nil
}

// RecordedVersion returns MAX(version) from schema_version, or 0.
func RecordedVersion(ctx context.Context, q Querier) (int, error) {
	var version int
	err := q.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return version, nil
}
