package migrations

import (
	"context"

	"github.com/nerrad567/climate-core/internal/infrastructure/database"
)

// Fingerprint names, reported in logs and in migration reports.
const (
	FingerprintLegacyAbbreviated = "legacy-abbreviated-columns"
	FingerprintLegacyReadings    = "legacy-readings-table"
	FingerprintUntrackedCurrent  = "untracked-current-schema"
	FingerprintUntrackedPartial  = "untracked-partial-schema"
)

// Detector returns the detector for stores that carry no schema_version row.
//
// Order matters: the legacy layout is checked first because a half-renamed
// store may show both old and new names.
func Detector() database.Detector {
	return database.Detector{
		Fingerprints: []database.Fingerprint{
			{Name: FingerprintLegacyAbbreviated, Version: 0, Matches: hasAbbreviatedColumns},
			{Name: FingerprintLegacyReadings, Version: 0, Matches: hasLegacyReadingsTable},
			{Name: FingerprintUntrackedCurrent, Version: 2, Matches: hasCurrentLayout},
			{Name: FingerprintUntrackedPartial, Version: 1, Matches: hasReadingsTable},
		},
	}
}

// hasAbbreviatedColumns matches stores written before the explicit column
// names: readings_raw(t, h) or devices(offset_t, offset_h).
func hasAbbreviatedColumns(ctx context.Context, q database.Querier) (bool, error) {
	readings, err := database.Columns(ctx, q, "readings_raw")
	if err != nil {
		return false, err
	}
	if (readings["t"] || readings["h"]) && !readings["temperature"] {
		return true, nil
	}

	devices, err := database.Columns(ctx, q, "devices")
	if err != nil {
		return false, err
	}
	return devices["offset_t"] && !devices["offset_temperature"], nil
}

// hasLegacyReadingsTable matches the oldest layout, a readings table with
// t/h columns that predates readings_raw.
func hasLegacyReadingsTable(ctx context.Context, q database.Querier) (bool, error) {
	cols, err := database.Columns(ctx, q, "readings")
	if err != nil {
		return false, err
	}
	return cols["t"] || cols["h"], nil
}

// hasCurrentLayout matches a store that already has every v2 object.
func hasCurrentLayout(ctx context.Context, q database.Querier) (bool, error) {
	readings, err := database.Columns(ctx, q, "readings_raw")
	if err != nil {
		return false, err
	}
	if !readings["temperature"] || readings["t"] {
		return false, nil
	}

	devices, err := database.Columns(ctx, q, "devices")
	if err != nil {
		return false, err
	}
	if !devices["offset_temperature"] {
		return false, nil
	}

	rooms, err := database.Columns(ctx, q, "rooms")
	if err != nil {
		return false, err
	}
	if !rooms["floor"] || !rooms["side"] {
		return false, nil
	}

	return database.ViewExists(ctx, q, "v_room_last")
}

// hasReadingsTable matches any other store with a readings_raw table. Such a
// store is treated as v1 so the idempotent v2 step completes it.
func hasReadingsTable(ctx context.Context, q database.Querier) (bool, error) {
	return database.TableExists(ctx, q, "readings_raw")
}
