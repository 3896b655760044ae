package device

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/climate-core/internal/location"
)

// ProvisionRequest registers a device ahead of its first reading.
// RoomID names an existing room; RoomName finds or creates one by slug.
// At most one of them may be set.
type ProvisionRequest struct {
	UID      string `json:"uid"`
	Label    string `json:"label"`
	Model    string `json:"model,omitempty"`
	RoomID   string `json:"room_id,omitempty"`
	RoomName string `json:"room_name,omitempty"`
}

// ProvisionResult is what Provision created.
type ProvisionResult struct {
	Device      *Device        `json:"device"`
	Room        *location.Room `json:"room,omitempty"`
	RoomCreated bool           `json:"room_created"`
	Placement   *Placement     `json:"placement,omitempty"`
}

// Status is a device with its current room, if any.
type Status struct {
	Device    *Device        `json:"device"`
	Room      *location.Room `json:"room,omitempty"`
	Placement *Placement     `json:"placement,omitempty"`
}

// Provisioner registers devices and reports their provisioning status.
type Provisioner struct {
	devices Repository
	rooms   location.Repository
	now     func() time.Time
	newID   func() string
}

// NewProvisioner creates a Provisioner.
func NewProvisioner(devices Repository, rooms location.Repository) *Provisioner {
	return &Provisioner{
		devices: devices,
		rooms:   rooms,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// Provision creates a device, resolving or creating its room and opening a
// placement at the current time. It returns ErrDeviceExists if the UID is
// already provisioned; nothing is written in that case.
func (p *Provisioner) Provision(ctx context.Context, req ProvisionRequest) (*ProvisionResult, error) {
	if err := ValidateUID(req.UID); err != nil {
		return nil, err
	}
	label := strings.TrimSpace(req.Label)
	if label == "" {
		return nil, fmt.Errorf("%w: label is required", ErrInvalidDevice)
	}
	if req.RoomID != "" && req.RoomName != "" {
		return nil, fmt.Errorf("%w: set room_id or room_name, not both", ErrInvalidDevice)
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = DefaultModel
	}

	if _, err := p.devices.FindByExternalID(ctx, req.UID); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrDeviceExists, req.UID)
	} else if !errors.Is(err, ErrDeviceNotFound) {
		return nil, err
	}

	result := &ProvisionResult{}
	switch {
	case req.RoomID != "":
		room, err := p.rooms.GetByID(ctx, req.RoomID)
		if errors.Is(err, location.ErrRoomNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, req.RoomID)
		}
		if err != nil {
			return nil, err
		}
		result.Room = room
	case req.RoomName != "":
		room, created, err := p.rooms.Ensure(ctx, req.RoomName)
		if err != nil {
			return nil, err
		}
		result.Room, result.RoomCreated = room, created
	}

	now := p.now().UTC()
	dev := &Device{
		ID:         p.newID(),
		UID:        req.UID,
		Label:      &label,
		Model:      &model,
		CreatedAt:  now,
		LastSeenAt: &now,
	}

	if result.Room == nil {
		if err := p.devices.Create(ctx, dev); err != nil {
			return nil, err
		}
	} else {
		placement, err := p.devices.CreatePlaced(ctx, dev, result.Room.ID, now)
		if err != nil {
			return nil, err
		}
		result.Placement = placement
	}
	result.Device = dev
	return result, nil
}

// Status returns a device with its current room.
// Returns ErrDeviceNotFound for an unknown UID.
func (p *Provisioner) Status(ctx context.Context, uid string) (*Status, error) {
	dev, err := p.devices.FindByExternalID(ctx, uid)
	if err != nil {
		return nil, err
	}
	st := &Status{Device: dev}

	placement, err := p.devices.CurrentPlacement(ctx, uid)
	if err != nil {
		return nil, err
	}
	if placement == nil {
		return st, nil
	}
	st.Placement = placement

	room, err := p.rooms.GetByID(ctx, placement.RoomID)
	if err != nil && !errors.Is(err, location.ErrRoomNotFound) {
		return nil, err
	}
	st.Room = room
	return st, nil
}

// Move assigns a provisioned device to another room from now on.
func (p *Provisioner) Move(ctx context.Context, uid, roomID string) (*Placement, error) {
	return p.devices.Assign(ctx, uid, roomID, p.now())
}
