package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/nerrad567/climate-core/internal/infrastructure/database"
)

// Repository defines the interface for device and placement persistence.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// FindByExternalID retrieves a device by UID.
	// Returns ErrDeviceNotFound if the device does not exist.
	FindByExternalID(ctx context.Context, uid string) (*Device, error)

	// GetByID retrieves a device by internal ID.
	// Returns ErrDeviceNotFound if the device does not exist.
	GetByID(ctx context.Context, id string) (*Device, error)

	// List retrieves all devices ordered by UID.
	List(ctx context.Context) ([]Device, error)

	// Create inserts a new device.
	// Returns ErrDeviceExists if the UID or ID is taken.
	Create(ctx context.Context, d *Device) error

	// CreatePlaced inserts a device and opens its first placement in one
	// transaction.
	CreatePlaced(ctx context.Context, d *Device, roomID string, at time.Time) (*Placement, error)

	// UpdateLastSeen sets last_seen_at for the device with internal ID id.
	UpdateLastSeen(ctx context.Context, id string, at time.Time) error

	// CurrentPlacement returns the open placement of the device with the
	// given UID, or nil when it is not placed.
	CurrentPlacement(ctx context.Context, uid string) (*Placement, error)

	// ListPlacements returns a device's placement history, oldest first.
	ListPlacements(ctx context.Context, uid string) ([]Placement, error)

	// Assign moves a device to a room at the given instant: the current
	// placement is closed and a new one opened, atomically.
	Assign(ctx context.Context, uid, roomID string, at time.Time) (*Placement, error)

	// Unassign closes the current placement, if any.
	Unassign(ctx context.Context, uid string, at time.Time) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sqlx.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sqlx.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const selectDevices = `SELECT device_id, device_uid, label, model, created_at,
	last_seen_at, offset_temperature, offset_humidity
	FROM devices`

// FindByExternalID retrieves a device by UID.
func (r *SQLiteRepository) FindByExternalID(ctx context.Context, uid string) (*Device, error) {
	return r.getDevice(ctx, r.db, selectDevices+" WHERE device_uid = ?", uid)
}

// GetByID retrieves a device by internal ID.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Device, error) {
	return r.getDevice(ctx, r.db, selectDevices+" WHERE device_id = ?", id)
}

func (r *SQLiteRepository) getDevice(ctx context.Context, q sqlx.QueryerContext, query string, arg string) (*Device, error) {
	var row deviceRow
	if err := sqlx.GetContext(ctx, q, &row, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device %s: %w", arg, err)
	}
	d := row.toDevice()
	return &d, nil
}

// List retrieves all devices.
func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	var rows []deviceRow
	if err := r.db.SelectContext(ctx, &rows, selectDevices+" ORDER BY device_uid"); err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}
	out := make([]Device, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDevice())
	}
	return out, nil
}

// Create inserts a new device.
func (r *SQLiteRepository) Create(ctx context.Context, d *Device) error {
	return r.insertDevice(ctx, r.db, d)
}

func (r *SQLiteRepository) insertDevice(ctx context.Context, ex sqlx.ExecerContext, d *Device) error {
	if err := ValidateDevice(d); err != nil {
		return err
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}

	const query = `INSERT INTO devices (device_id, device_uid, label, model, created_at,
		last_seen_at, offset_temperature, offset_humidity)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := ex.ExecContext(ctx, query,
		d.ID, d.UID, d.Label, d.Model,
		database.FormatTime(d.CreatedAt),
		nullTime(d.LastSeenAt),
		d.OffsetTemperature, d.OffsetHumidity,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrDeviceExists, d.UID)
		}
		return fmt.Errorf("inserting device %s: %w", d.UID, err)
	}
	return nil
}

// CreatePlaced inserts a device and its first placement.
func (r *SQLiteRepository) CreatePlaced(ctx context.Context, d *Device, roomID string, at time.Time) (*Placement, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	if err := r.insertDevice(ctx, tx, d); err != nil {
		return nil, err
	}
	if err := roomExists(ctx, tx, roomID); err != nil {
		return nil, err
	}
	p := &Placement{DeviceID: d.ID, RoomID: roomID, From: at.UTC()}
	if err := insertPlacement(ctx, tx, p); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing device %s: %w", d.UID, err)
	}
	return p, nil
}

// UpdateLastSeen sets last_seen_at unconditionally.
func (r *SQLiteRepository) UpdateLastSeen(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE devices SET last_seen_at = ? WHERE device_id = ?",
		database.FormatTime(at), id,
	)
	if err != nil {
		return fmt.Errorf("updating last seen for %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking last seen update: %w", err)
	}
	if n == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

const selectPlacements = `SELECT p.device_id, p.room_id, p.from_ts, p.to_ts
	FROM device_room_placements p
	JOIN devices d ON d.device_id = p.device_id`

// CurrentPlacement returns the open placement for a UID, or nil.
func (r *SQLiteRepository) CurrentPlacement(ctx context.Context, uid string) (*Placement, error) {
	return currentPlacement(ctx, r.db, uid)
}

func currentPlacement(ctx context.Context, q sqlx.QueryerContext, uid string) (*Placement, error) {
	query := selectPlacements + `
		WHERE d.device_uid = ? AND p.to_ts IS NULL
		ORDER BY p.from_ts DESC
		LIMIT 1`

	var row placementRow
	if err := sqlx.GetContext(ctx, q, &row, query, uid); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying current placement of %s: %w", uid, err)
	}
	p := row.toPlacement()
	return &p, nil
}

// ListPlacements returns the placement history of a UID.
func (r *SQLiteRepository) ListPlacements(ctx context.Context, uid string) ([]Placement, error) {
	var rows []placementRow
	query := selectPlacements + " WHERE d.device_uid = ? ORDER BY p.from_ts"
	if err := r.db.SelectContext(ctx, &rows, query, uid); err != nil {
		return nil, fmt.Errorf("listing placements of %s: %w", uid, err)
	}
	out := make([]Placement, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toPlacement())
	}
	return out, nil
}

// Assign closes the current placement at `at` and opens one in roomID.
// Assigning a device to the room it is already in is a no-op that returns
// the current placement.
func (r *SQLiteRepository) Assign(ctx context.Context, uid, roomID string, at time.Time) (*Placement, error) {
	at = at.UTC()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	dev, err := r.getDevice(ctx, tx, selectDevices+" WHERE device_uid = ?", uid)
	if err != nil {
		return nil, err
	}
	if err := roomExists(ctx, tx, roomID); err != nil {
		return nil, err
	}

	current, err := currentPlacement(ctx, tx, uid)
	if err != nil {
		return nil, err
	}
	if current != nil {
		if current.RoomID == roomID {
			return current, nil
		}
		if err := closePlacement(ctx, tx, current, at); err != nil {
			return nil, err
		}
	}

	p := &Placement{DeviceID: dev.ID, RoomID: roomID, From: at}
	if err := insertPlacement(ctx, tx, p); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing placement of %s: %w", uid, err)
	}
	return p, nil
}

// Unassign closes the current placement of a device.
func (r *SQLiteRepository) Unassign(ctx context.Context, uid string, at time.Time) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	if _, err := r.getDevice(ctx, tx, selectDevices+" WHERE device_uid = ?", uid); err != nil {
		return err
	}
	current, err := currentPlacement(ctx, tx, uid)
	if err != nil {
		return err
	}
	if current == nil {
		return nil
	}
	if err := closePlacement(ctx, tx, current, at.UTC()); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing unassign of %s: %w", uid, err)
	}
	return nil
}

func roomExists(ctx context.Context, q sqlx.QueryerContext, roomID string) error {
	var found string
	err := sqlx.GetContext(ctx, q, &found, "SELECT room_id FROM rooms WHERE room_id = ?", roomID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrRoomNotFound, roomID)
	}
	if err != nil {
		return fmt.Errorf("looking up room %s: %w", roomID, err)
	}
	return nil
}

// closePlacement ends p at `at`, which must be after p.From so that the
// closed interval is not empty.
func closePlacement(ctx context.Context, tx *sqlx.Tx, p *Placement, at time.Time) error {
	if !at.After(p.From) {
		return fmt.Errorf("%w: %s is not after the current placement start %s",
			ErrInvalidPlacement, database.FormatTime(at), database.FormatTime(p.From))
	}
	_, err := tx.ExecContext(ctx,
		"UPDATE device_room_placements SET to_ts = ? WHERE device_id = ? AND from_ts = ?",
		database.FormatTime(at), p.DeviceID, database.FormatTime(p.From),
	)
	if err != nil {
		return fmt.Errorf("closing placement of %s: %w", p.DeviceID, err)
	}
	return nil
}

func insertPlacement(ctx context.Context, ex sqlx.ExecerContext, p *Placement) error {
	_, err := ex.ExecContext(ctx,
		"INSERT INTO device_room_placements (device_id, room_id, from_ts) VALUES (?, ?, ?)",
		p.DeviceID, p.RoomID, database.FormatTime(p.From),
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("%w: device %s already has a placement at %s",
				ErrInvalidPlacement, p.DeviceID, database.FormatTime(p.From))
		}
		return fmt.Errorf("inserting placement of %s: %w", p.DeviceID, err)
	}
	return nil
}

// deviceRow is the scan target for selectDevices.
type deviceRow struct {
	ID                string             `db:"device_id"`
	UID               string             `db:"device_uid"`
	Label             sql.NullString     `db:"label"`
	Model             sql.NullString     `db:"model"`
	CreatedAt         database.Timestamp `db:"created_at"`
	LastSeenAt        database.Timestamp `db:"last_seen_at"`
	OffsetTemperature sql.NullFloat64    `db:"offset_temperature"`
	OffsetHumidity    sql.NullFloat64    `db:"offset_humidity"`
}

func (row deviceRow) toDevice() Device {
	return Device{
		ID:                row.ID,
		UID:               row.UID,
		Label:             nullStrPtr(row.Label),
		Model:             nullStrPtr(row.Model),
		CreatedAt:         row.CreatedAt.Time,
		LastSeenAt:        row.LastSeenAt.Ptr(),
		OffsetTemperature: row.OffsetTemperature.Float64,
		OffsetHumidity:    row.OffsetHumidity.Float64,
	}
}

type placementRow struct {
	DeviceID string             `db:"device_id"`
	RoomID   string             `db:"room_id"`
	From     database.Timestamp `db:"from_ts"`
	To       database.Timestamp `db:"to_ts"`
}

func (row placementRow) toPlacement() Placement {
	return Placement{
		DeviceID: row.DeviceID,
		RoomID:   row.RoomID,
		From:     row.From.Time,
		To:       row.To.Ptr(),
	}
}

func nullStrPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func nullTime(t *time.Time) database.Timestamp {
	if t == nil {
		return database.Timestamp{}
	}
	return database.NewTimestamp(*t)
}
