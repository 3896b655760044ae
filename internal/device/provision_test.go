package device

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/climate-core/internal/location"
)

func newTestProvisioner(t *testing.T) (*Provisioner, *SQLiteRepository) {
	t.Helper()
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db.Sqlx())
	p := NewProvisioner(repo, location.NewSQLiteRepository(db.Sqlx()))
	p.now = func() time.Time { return ts(8) }
	return p, repo
}

func TestProvision_WithRoomName(t *testing.T) {
	p, repo := newTestProvisioner(t)
	ctx := context.Background()

	res, err := p.Provision(ctx, ProvisionRequest{UID: "temp001", Label: "Capteur", RoomName: "Chambre d'amis"})
	if err != nil {
		t.Fatalf("Provision() error = %v", err)
	}
	if res.Room == nil || res.Room.ID != "chambre-d-amis" || !res.RoomCreated {
		t.Errorf("Room = %+v created=%v", res.Room, res.RoomCreated)
	}
	if res.Device.Model == nil || *res.Device.Model != DefaultModel {
		t.Errorf("Model = %v, want default", res.Device.Model)
	}

	current, err := repo.CurrentPlacement(ctx, "temp001")
	if err != nil || current == nil || current.RoomID != "chambre-d-amis" || !current.From.Equal(ts(8)) {
		t.Errorf("CurrentPlacement() = %+v, %v", current, err)
	}

	st, err := p.Status(ctx, "temp001")
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if st.Room == nil || st.Room.Name != "Chambre d'amis" || st.Placement == nil {
		t.Errorf("Status() = %+v", st)
	}
}

func TestProvision_WithRoomID(t *testing.T) {
	p, _ := newTestProvisioner(t)
	ctx := context.Background()

	res, err := p.Provision(ctx, ProvisionRequest{UID: "temp001", Label: "Capteur", RoomID: "salon", Model: "SHT31"})
	if err != nil {
		t.Fatalf("Provision() error = %v", err)
	}
	if res.RoomCreated || res.Room.ID != "salon" || *res.Device.Model != "SHT31" {
		t.Errorf("Provision() = %+v", res)
	}

	_, err = p.Provision(ctx, ProvisionRequest{UID: "temp002", Label: "x", RoomID: "garage"})
	if !errors.Is(err, ErrRoomNotFound) {
		t.Errorf("Provision(garage) error = %v, want ErrRoomNotFound", err)
	}
}

func TestProvision_Unplaced(t *testing.T) {
	p, _ := newTestProvisioner(t)
	ctx := context.Background()

	if _, err := p.Provision(ctx, ProvisionRequest{UID: "temp001", Label: "Capteur"}); err != nil {
		t.Fatalf("Provision() error = %v", err)
	}
	st, err := p.Status(ctx, "temp001")
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if st.Room != nil || st.Placement != nil {
		t.Errorf("Status() = %+v, want no room", st)
	}
	if st.Device.LastSeenAt == nil || !st.Device.LastSeenAt.Equal(ts(8)) {
		t.Errorf("LastSeenAt = %v, want provisioning time", st.Device.LastSeenAt)
	}
}

func TestProvision_Rejections(t *testing.T) {
	p, _ := newTestProvisioner(t)
	ctx := context.Background()

	if _, err := p.Provision(ctx, ProvisionRequest{UID: "temp001", Label: "Capteur"}); err != nil {
		t.Fatalf("Provision() error = %v", err)
	}

	tests := []struct {
		name   string
		req    ProvisionRequest
		target error
	}{
		{"already provisioned", ProvisionRequest{UID: "temp001", Label: "Again"}, ErrDeviceExists},
		{"no label", ProvisionRequest{UID: "temp002"}, ErrInvalidDevice},
		{"bad uid", ProvisionRequest{UID: "temp 2", Label: "x"}, ErrInvalidDevice},
		{"both room fields", ProvisionRequest{UID: "temp003", Label: "x", RoomID: "salon", RoomName: "Salon"}, ErrInvalidDevice},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := p.Provision(ctx, tt.req); !errors.Is(err, tt.target) {
				t.Errorf("Provision() error = %v, want %v", err, tt.target)
			}
		})
	}

	if _, err := p.Status(ctx, "temp404"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("Status(unknown) error = %v, want ErrDeviceNotFound", err)
	}
}

func TestMove(t *testing.T) {
	p, repo := newTestProvisioner(t)
	ctx := context.Background()

	if _, err := p.Provision(ctx, ProvisionRequest{UID: "temp001", Label: "Capteur", RoomID: "salon"}); err != nil {
		t.Fatalf("Provision() error = %v", err)
	}
	p.now = func() time.Time { return ts(9) }

	placement, err := p.Move(ctx, "temp001", "bureau")
	if err != nil {
		t.Fatalf("Move() error = %v", err)
	}
	if placement.RoomID != "bureau" || !placement.From.Equal(ts(9)) {
		t.Errorf("Move() = %+v", placement)
	}
	history, _ := repo.ListPlacements(ctx, "temp001")
	if len(history) != 2 {
		t.Errorf("ListPlacements() = %d entries, want 2", len(history))
	}
}
