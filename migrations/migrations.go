package migrations

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/nerrad567/climate-core/internal/infrastructure/database"
)

// All returns the climate schema history in version order.
func All() []database.Migration {
	return []database.Migration{
		{Version: 1, Name: "initial schema", Up: initialSchema},
		{Version: 2, Name: "explicit column names", Up: explicitColumnNames},
	}
}

// initialSchema creates the four core tables and their indexes.
// On a legacy store the guarded DDL leaves existing tables alone; v2 fixes
// their layout.
func initialSchema(ctx context.Context, tx *sql.Tx) error {
	ddl, err := readSQL("001_initial_schema.sql")
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("creating initial schema: %w", err)
	}
	return nil
}

// explicitColumnNames moves every legacy abbreviated column to its explicit
// name, adds the room metadata columns, enforces a single open placement per
// device and recreates the v_room_last view.
func explicitColumnNames(ctx context.Context, tx *sql.Tx) error {
	// The view pins old column names; it must go before any table swap.
	if _, err := tx.ExecContext(ctx, "DROP VIEW IF EXISTS v_room_last"); err != nil {
		return fmt.Errorf("dropping v_room_last: %w", err)
	}

	steps := []struct {
		name string
		fn   func(context.Context, *sql.Tx) error
	}{
		{"readings columns", renameLegacyReadingsColumns},
		{"readings_raw columns", renameReadingColumns},
		{"device offsets", renameDeviceOffsets},
		{"room metadata", addRoomMetadata},
		{"open placements", enforceSingleOpenPlacement},
		{"v_room_last", createRoomLastView},
	}
	for _, step := range steps {
		if err := step.fn(ctx, tx); err != nil {
			return fmt.Errorf("%s: %w", step.name, err)
		}
	}
	return nil
}

const createReadingsShadow = `
	CREATE TABLE readings_raw_new (
		device_id   TEXT NOT NULL REFERENCES devices(device_id),
		room_id     TEXT,
		ts          DATETIME NOT NULL,
		temperature REAL,
		humidity    REAL,
		source      TEXT,
		msg_id      TEXT,
		PRIMARY KEY (device_id, ts)
	)`

// renameReadingColumns rewrites readings_raw through a shadow table when it
// still carries t/h. Row counts are compared before the swap.
func renameReadingColumns(ctx context.Context, tx *sql.Tx) error {
	cols, err := database.Columns(ctx, tx, "readings_raw")
	if err != nil {
		return err
	}
	if !cols["t"] && !cols["h"] {
		return nil
	}

	// A leftover shadow can only come from an aborted run outside a transaction.
	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS readings_raw_new"); err != nil {
		return fmt.Errorf("dropping stale shadow table: %w", err)
	}
	if _, err := tx.ExecContext(ctx, createReadingsShadow); err != nil {
		return fmt.Errorf("creating shadow table: %w", err)
	}

	copySQL := fmt.Sprintf(`
		INSERT INTO readings_raw_new (device_id, room_id, ts, temperature, humidity, source, msg_id)
		SELECT device_id, %s, ts, %s, %s, %s, %s
		FROM readings_raw`,
		columnOrNull(cols, "room_id"),
		preferColumn(cols, "temperature", "t"),
		preferColumn(cols, "humidity", "h"),
		columnOrNull(cols, "source"),
		columnOrNull(cols, "msg_id"),
	)
	if _, err := tx.ExecContext(ctx, copySQL); err != nil {
		return fmt.Errorf("copying readings into shadow table: %w", err)
	}

	if err := sameRowCount(ctx, tx, "readings_raw", "readings_raw_new"); err != nil {
		return err
	}

	stmts := []string{
		"DROP TABLE readings_raw",
		"ALTER TABLE readings_raw_new RENAME TO readings_raw",
		"CREATE INDEX IF NOT EXISTS idx_raw_room_ts ON readings_raw(room_id, ts)",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_raw_msg ON readings_raw(msg_id) WHERE msg_id IS NOT NULL",
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("swapping shadow table (%s): %w", stmt, err)
		}
	}
	return nil
}

const createLegacyReadingsShadow = `
	CREATE TABLE readings_new (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		device_id   INTEGER,
		temperature REAL,
		humidity    REAL,
		timestamp   DATETIME DEFAULT CURRENT_TIMESTAMP
	)`

// renameLegacyReadingsColumns rewrites the pre-readings_raw readings table
// through a shadow table when it still carries t/h. The table is kept under
// its own name; ingestion never writes to it.
func renameLegacyReadingsColumns(ctx context.Context, tx *sql.Tx) error {
	cols, err := database.Columns(ctx, tx, "readings")
	if err != nil {
		return err
	}
	if !cols["t"] && !cols["h"] {
		return nil
	}

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS readings_new"); err != nil {
		return fmt.Errorf("dropping stale shadow table: %w", err)
	}
	if _, err := tx.ExecContext(ctx, createLegacyReadingsShadow); err != nil {
		return fmt.Errorf("creating shadow table: %w", err)
	}

	timestamp := "CURRENT_TIMESTAMP"
	if cols["timestamp"] {
		timestamp = "COALESCE(timestamp, CURRENT_TIMESTAMP)"
	}
	copySQL := fmt.Sprintf(`
		INSERT INTO readings_new (id, device_id, temperature, humidity, timestamp)
		SELECT %s, device_id, %s, %s, %s
		FROM readings`,
		columnOrNull(cols, "id"),
		preferColumn(cols, "temperature", "t"),
		preferColumn(cols, "humidity", "h"),
		timestamp,
	)
	if _, err := tx.ExecContext(ctx, copySQL); err != nil {
		return fmt.Errorf("copying readings into shadow table: %w", err)
	}

	if err := sameRowCount(ctx, tx, "readings", "readings_new"); err != nil {
		return err
	}

	for _, stmt := range []string{
		"DROP TABLE readings",
		"ALTER TABLE readings_new RENAME TO readings",
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("swapping shadow table (%s): %w", stmt, err)
		}
	}
	return nil
}

func sameRowCount(ctx context.Context, tx *sql.Tx, table, shadow string) error {
	before, err := database.CountRows(ctx, tx, table)
	if err != nil {
		return err
	}
	after, err := database.CountRows(ctx, tx, shadow)
	if err != nil {
		return err
	}
	if before != after {
		return fmt.Errorf("row count mismatch after copy: %s=%d %s=%d", table, before, shadow, after)
	}
	return nil
}

// renameDeviceOffsets adds offset_temperature/offset_humidity and copies the
// legacy offset_t/offset_h values into them. devices is the parent of two
// foreign keys, so it is extended in place rather than swapped.
func renameDeviceOffsets(ctx context.Context, tx *sql.Tx) error {
	cols, err := database.Columns(ctx, tx, "devices")
	if err != nil {
		return err
	}

	pairs := []struct{ legacy, explicit string }{
		{"offset_t", "offset_temperature"},
		{"offset_h", "offset_humidity"},
	}
	for _, p := range pairs {
		if !cols[p.explicit] {
			stmt := fmt.Sprintf("ALTER TABLE devices ADD COLUMN %s REAL DEFAULT 0", p.explicit)
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("adding %s: %w", p.explicit, err)
			}
		}
		if cols[p.legacy] {
			stmt := fmt.Sprintf("UPDATE devices SET %s = %s WHERE %s IS NOT NULL", p.explicit, p.legacy, p.legacy)
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("copying %s into %s: %w", p.legacy, p.explicit, err)
			}
		}
	}
	return nil
}

func addRoomMetadata(ctx context.Context, tx *sql.Tx) error {
	cols, err := database.Columns(ctx, tx, "rooms")
	if err != nil {
		return err
	}
	for _, col := range []string{"floor", "side"} {
		if cols[col] {
			continue
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("ALTER TABLE rooms ADD COLUMN %s TEXT", col)); err != nil {
			return fmt.Errorf("adding rooms.%s: %w", col, err)
		}
	}
	return nil
}

// enforceSingleOpenPlacement closes every open placement that has a later
// placement for the same device, then adds the partial unique index that
// keeps it that way.
func enforceSingleOpenPlacement(ctx context.Context, tx *sql.Tx) error {
	closeStale := `
		UPDATE device_room_placements
		SET to_ts = (
			SELECT MIN(n.from_ts) FROM device_room_placements n
			WHERE n.device_id = device_room_placements.device_id
			  AND n.from_ts > device_room_placements.from_ts
		)
		WHERE to_ts IS NULL
		  AND EXISTS (
			SELECT 1 FROM device_room_placements n
			WHERE n.device_id = device_room_placements.device_id
			  AND n.from_ts > device_room_placements.from_ts
		)`
	if _, err := tx.ExecContext(ctx, closeStale); err != nil {
		return fmt.Errorf("closing superseded placements: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		CREATE UNIQUE INDEX IF NOT EXISTS idx_places_open
		ON device_room_placements(device_id) WHERE to_ts IS NULL`); err != nil {
		return fmt.Errorf("creating idx_places_open: %w", err)
	}
	return nil
}

func createRoomLastView(ctx context.Context, tx *sql.Tx) error {
	ddl, err := readSQL("002_room_last_view.sql")
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DROP VIEW IF EXISTS v_room_last"); err != nil {
		return fmt.Errorf("dropping v_room_last: %w", err)
	}
	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("creating v_room_last: %w", err)
	}
	return nil
}

// preferColumn selects the explicit column, falling back to the legacy one.
func preferColumn(cols map[string]bool, explicit, legacy string) string {
	switch {
	case cols[explicit] && cols[legacy]:
		return fmt.Sprintf("COALESCE(%s, %s)", explicit, legacy)
	case cols[explicit]:
		return explicit
	case cols[legacy]:
		return legacy
	default:
		return "NULL"
	}
}

func columnOrNull(cols map[string]bool, name string) string {
	if cols[name] {
		return name
	}
	return "NULL"
}
