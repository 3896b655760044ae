package reading

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/nerrad567/climate-core/internal/infrastructure/database"
)

// Storage sanity bounds. Wider than the ingestion limits so that data
// written by older firmware can still be stored and read back.
const (
	StorageMinTemperature = -50.0
	StorageMaxTemperature = 100.0
	StorageMinHumidity    = 0.0
	StorageMaxHumidity    = 100.0
)

// Repository defines reading persistence. Readings are immutable: there is
// no update or delete.
type Repository interface {
	// Insert writes a reading and returns its row id.
	// Returns *DuplicateReadingError when the dedup key or (device, ts)
	// already exists.
	Insert(ctx context.Context, row Row) (int64, error)

	// LatestPerDevice returns the newest reading of every device.
	LatestPerDevice(ctx context.Context) ([]Reading, error)

	// LatestByDevice returns the newest reading of one device, by external id.
	// Returns ErrNotFound if it has none.
	LatestByDevice(ctx context.Context, deviceUID string) (*Reading, error)

	// ByRoomAndRange returns a room's readings with from <= ts < to, oldest first.
	// Returns ErrInvalidRange unless from is before to.
	ByRoomAndRange(ctx context.Context, roomID string, from, to time.Time) ([]Reading, error)

	// RoomSummaries returns the latest reading of every room with readings.
	RoomSummaries(ctx context.Context) ([]RoomSummary, error)
}

// SQLiteRepository implements Repository on the readings_raw table.
type SQLiteRepository struct {
	db *sqlx.DB
}

// NewSQLiteRepository creates a new SQLite-backed reading repository.
func NewSQLiteRepository(db *sqlx.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Insert writes a reading.
func (r *SQLiteRepository) Insert(ctx context.Context, row Row) (int64, error) {
	if err := checkStorageBounds(row); err != nil {
		return 0, err
	}

	const query = `INSERT INTO readings_raw
		(device_id, room_id, ts, temperature, humidity, source, msg_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, query,
		row.DeviceID,
		nullStr(row.RoomID),
		database.FormatTime(row.Timestamp),
		row.Temperature,
		row.Humidity,
		row.Source,
		sql.NullString{String: row.DedupKey, Valid: row.DedupKey != ""},
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			reason := ReasonDedupKey
			if database.IsPrimaryKeyViolation(err) {
				reason = ReasonDeviceTimestamp
			}
			return 0, &DuplicateReadingError{DeviceID: row.DeviceID, DedupKey: row.DedupKey, Reason: reason}
		}
		return 0, fmt.Errorf("inserting reading for device %s: %w", row.DeviceID, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading insert id: %w", err)
	}
	return id, nil
}

func checkStorageBounds(row Row) error {
	if row.Temperature < StorageMinTemperature || row.Temperature > StorageMaxTemperature {
		return &ValidationError{
			Kind:   KindTemperatureRange,
			Field:  "temperature",
			Value:  row.Temperature,
			Reason: fmt.Sprintf("outside storage bounds [%g, %g]", StorageMinTemperature, StorageMaxTemperature),
		}
	}
	if row.Humidity < StorageMinHumidity || row.Humidity > StorageMaxHumidity {
		return &ValidationError{
			Kind:   KindHumidityRange,
			Field:  "humidity",
			Value:  row.Humidity,
			Reason: fmt.Sprintf("outside storage bounds [%g, %g]", StorageMinHumidity, StorageMaxHumidity),
		}
	}
	if row.Timestamp.IsZero() {
		return &ValidationError{Kind: KindMissingField, Field: "ts"}
	}
	return nil
}

const selectReadings = `SELECT d.device_uid, r.device_id, r.room_id, r.ts,
	r.temperature, r.humidity, r.source, r.msg_id
	FROM readings_raw r
	JOIN devices d ON d.device_id = r.device_id`

// LatestPerDevice returns the newest reading of every device, ordered by
// external id.
func (r *SQLiteRepository) LatestPerDevice(ctx context.Context) ([]Reading, error) {
	query := selectReadings + `
		WHERE r.ts = (SELECT MAX(x.ts) FROM readings_raw x WHERE x.device_id = r.device_id)
		ORDER BY d.device_uid`
	return r.queryReadings(ctx, query)
}

// LatestByDevice returns the newest reading of one device.
func (r *SQLiteRepository) LatestByDevice(ctx context.Context, deviceUID string) (*Reading, error) {
	query := selectReadings + `
		WHERE d.device_uid = ?
		ORDER BY r.ts DESC
		LIMIT 1`

	var row readingRow
	if err := r.db.GetContext(ctx, &row, query, deviceUID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying latest reading for %s: %w", deviceUID, err)
	}
	reading := row.toReading()
	return &reading, nil
}

// ByRoomAndRange returns readings recorded in a room within [from, to).
func (r *SQLiteRepository) ByRoomAndRange(ctx context.Context, roomID string, from, to time.Time) ([]Reading, error) {
	if !from.Before(to) {
		return nil, fmt.Errorf("%w: from %s is not before to %s", ErrInvalidRange,
			database.FormatTime(from), database.FormatTime(to))
	}
	query := selectReadings + `
		WHERE r.room_id = ? AND r.ts >= ? AND r.ts < ?
		ORDER BY r.ts`
	return r.queryReadings(ctx, query, roomID, database.FormatTime(from), database.FormatTime(to))
}

// RoomSummaries reads the v_room_last view.
func (r *SQLiteRepository) RoomSummaries(ctx context.Context) ([]RoomSummary, error) {
	const query = `SELECT room_id, last_ts, last_temperature, last_humidity
		FROM v_room_last ORDER BY room_id`

	var rows []summaryRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("querying room summaries: %w", err)
	}

	out := make([]RoomSummary, 0, len(rows))
	for _, row := range rows {
		out = append(out, RoomSummary{
			RoomID:      row.RoomID,
			LastTS:      row.LastTS.Ptr(),
			Temperature: nullFloat(row.Temperature),
			Humidity:    nullFloat(row.Humidity),
		})
	}
	return out, nil
}

func (r *SQLiteRepository) queryReadings(ctx context.Context, query string, args ...any) ([]Reading, error) {
	var rows []readingRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("querying readings: %w", err)
	}
	out := make([]Reading, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toReading())
	}
	return out, nil
}

// readingRow is the scan target for selectReadings.
type readingRow struct {
	DeviceUID   string             `db:"device_uid"`
	DeviceID    string             `db:"device_id"`
	RoomID      sql.NullString     `db:"room_id"`
	TS          database.Timestamp `db:"ts"`
	Temperature sql.NullFloat64    `db:"temperature"`
	Humidity    sql.NullFloat64    `db:"humidity"`
	Source      sql.NullString     `db:"source"`
	MsgID       sql.NullString     `db:"msg_id"`
}

func (row readingRow) toReading() Reading {
	out := Reading{
		DeviceUID:   row.DeviceUID,
		DeviceID:    row.DeviceID,
		Timestamp:   row.TS.Time,
		Temperature: row.Temperature.Float64,
		Humidity:    row.Humidity.Float64,
		Source:      row.Source.String,
		DedupKey:    row.MsgID.String,
	}
	if row.RoomID.Valid {
		room := row.RoomID.String
		out.RoomID = &room
	}
	return out
}

type summaryRow struct {
	RoomID      string             `db:"room_id"`
	LastTS      database.Timestamp `db:"last_ts"`
	Temperature sql.NullFloat64    `db:"last_temperature"`
	Humidity    sql.NullFloat64    `db:"last_humidity"`
}

func nullStr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullFloat(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}
