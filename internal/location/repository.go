package location

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/nerrad567/climate-core/internal/infrastructure/database"
)

// Repository defines the interface for room persistence operations.
type Repository interface {
	// GetByID returns ErrRoomNotFound if the room does not exist.
	GetByID(ctx context.Context, id string) (*Room, error)
	List(ctx context.Context) ([]Room, error)
	// Create returns ErrRoomExists if the ID is taken.
	Create(ctx context.Context, room *Room) error
	// Ensure returns the room whose ID is Slugify(name), creating it if
	// needed. created reports whether this call inserted it.
	Ensure(ctx context.Context, name string) (room *Room, created bool, err error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sqlx.DB
}

// NewSQLiteRepository creates a new SQLite-backed room repository.
func NewSQLiteRepository(db *sqlx.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// GetByID returns a single room.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Room, error) {
	const query = `SELECT room_id, name, floor, side FROM rooms WHERE room_id = ?`

	var room Room
	if err := r.db.GetContext(ctx, &room, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("querying room %s: %w", id, err)
	}
	return &room, nil
}

// List returns all rooms ordered by name.
func (r *SQLiteRepository) List(ctx context.Context) ([]Room, error) {
	const query = `SELECT room_id, name, floor, side FROM rooms ORDER BY name, room_id`

	rooms := []Room{}
	if err := r.db.SelectContext(ctx, &rooms, query); err != nil {
		return nil, fmt.Errorf("listing rooms: %w", err)
	}
	return rooms, nil
}

// Create inserts a new room.
func (r *SQLiteRepository) Create(ctx context.Context, room *Room) error {
	room.Name = strings.TrimSpace(room.Name)
	if err := ValidateRoom(room); err != nil {
		return err
	}

	const query = `INSERT INTO rooms (room_id, name, floor, side) VALUES (:room_id, :name, :floor, :side)`
	if _, err := r.db.NamedExecContext(ctx, query, room); err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrRoomExists, room.ID)
		}
		return fmt.Errorf("inserting room %s: %w", room.ID, err)
	}
	return nil
}

// Ensure finds or creates the room for a display name.
func (r *SQLiteRepository) Ensure(ctx context.Context, name string) (*Room, bool, error) {
	if err := ValidateName(name); err != nil {
		return nil, false, err
	}
	id := Slugify(name)

	room, err := r.GetByID(ctx, id)
	if err == nil {
		return room, false, nil
	}
	if !errors.Is(err, ErrRoomNotFound) {
		return nil, false, err
	}

	room = &Room{ID: id, Name: name}
	err = r.Create(ctx, room)
	switch {
	case err == nil:
		return room, true, nil
	case errors.Is(err, ErrRoomExists):
		// Lost a race with another Ensure for the same name.
		existing, getErr := r.GetByID(ctx, id)
		return existing, false, getErr
	default:
		return nil, false, err
	}
}
