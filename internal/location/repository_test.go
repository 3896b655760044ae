package location

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/nerrad567/climate-core/internal/infrastructure/database"
	"github.com/nerrad567/climate-core/migrations"
)

// setupTestDB opens a migrated store with the rooms used below.
func setupTestDB(t *testing.T) *SQLiteRepository {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(database.Config{Path: filepath.Join(t.TempDir(), "climate.db"), BusyTimeout: 5})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	m, err := database.NewMigrator(db, migrations.All(), migrations.Detector())
	if err != nil {
		t.Fatalf("NewMigrator() error = %v", err)
	}
	if _, err := m.Run(ctx); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	if _, err := db.ExecContext(ctx, `
		INSERT INTO rooms (room_id, name, floor, side) VALUES
			('salon', 'Salon', 'rdc', 'sud'),
			('cuisine', 'Cuisine', NULL, NULL)`); err != nil {
		t.Fatalf("failed to load fixture: %v", err)
	}
	return NewSQLiteRepository(db.Sqlx())
}

func TestGetByID(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	room, err := repo.GetByID(ctx, "salon")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if room.Name != "Salon" || room.Floor == nil || *room.Floor != "rdc" || room.Side == nil || *room.Side != "sud" {
		t.Errorf("GetByID() = %+v", room)
	}

	room, err = repo.GetByID(ctx, "cuisine")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if room.Floor != nil || room.Side != nil {
		t.Errorf("GetByID(cuisine) floor/side = %v/%v, want nil", room.Floor, room.Side)
	}

	if _, err := repo.GetByID(ctx, "garage"); !errors.Is(err, ErrRoomNotFound) {
		t.Errorf("GetByID(garage) error = %v, want ErrRoomNotFound", err)
	}
}

func TestList(t *testing.T) {
	repo := setupTestDB(t)

	rooms, err := repo.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(rooms) != 2 || rooms[0].ID != "cuisine" || rooms[1].ID != "salon" {
		t.Errorf("List() = %+v, want cuisine then salon", rooms)
	}
}

func TestCreate(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	floor := "etage"
	if err := repo.Create(ctx, &Room{ID: "chambre-1", Name: " Chambre 1 ", Floor: &floor}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	got, err := repo.GetByID(ctx, "chambre-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Name != "Chambre 1" || got.Floor == nil || *got.Floor != "etage" {
		t.Errorf("GetByID() = %+v", got)
	}

	if err := repo.Create(ctx, &Room{ID: "salon", Name: "Other"}); !errors.Is(err, ErrRoomExists) {
		t.Errorf("Create(duplicate) error = %v, want ErrRoomExists", err)
	}
	if err := repo.Create(ctx, &Room{ID: "Bad Id", Name: "x"}); !errors.Is(err, ErrInvalidID) {
		t.Errorf("Create(bad id) error = %v, want ErrInvalidID", err)
	}
	if err := repo.Create(ctx, &Room{ID: "ok", Name: "  "}); !errors.Is(err, ErrInvalidName) {
		t.Errorf("Create(blank name) error = %v, want ErrInvalidName", err)
	}
}

func TestEnsure(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	room, created, err := repo.Ensure(ctx, "Salle de Bain")
	if err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	if !created || room.ID != "salle-de-bain" {
		t.Errorf("Ensure() = %+v created=%v, want new salle-de-bain", room, created)
	}

	room, created, err = repo.Ensure(ctx, "salle de bain")
	if err != nil {
		t.Fatalf("Ensure() second error = %v", err)
	}
	if created || room.Name != "Salle de Bain" {
		t.Errorf("Ensure() second = %+v created=%v, want existing room", room, created)
	}

	if _, _, err := repo.Ensure(ctx, ""); !errors.Is(err, ErrInvalidName) {
		t.Errorf("Ensure(\"\") error = %v, want ErrInvalidName", err)
	}
}
