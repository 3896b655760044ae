package device

import "time"

// DefaultModel is recorded for provisioned devices that do not name one.
const DefaultModel = "AHT20"

// Device is a physical sensor.
//
// UID is the external identifier the unit publishes under and is unique.
// ID is the internal identifier assigned at creation; it never changes and
// is what readings and placements reference.
type Device struct {
	ID                string     `json:"id"`
	UID               string     `json:"uid"`
	Label             *string    `json:"label,omitempty"`
	Model             *string    `json:"model,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	LastSeenAt        *time.Time `json:"last_seen_at,omitempty"`
	OffsetTemperature float64    `json:"offset_temperature"`
	OffsetHumidity    float64    `json:"offset_humidity"`
}

// Placement binds a device to a room over [From, To). To is nil while the
// placement is current; a device has at most one current placement.
type Placement struct {
	DeviceID string     `json:"device_id"`
	RoomID   string     `json:"room_id"`
	From     time.Time  `json:"from_ts"`
	To       *time.Time `json:"to_ts,omitempty"`
}

// Open reports whether the placement is current.
func (p Placement) Open() bool { return p.To == nil }

// clone returns a copy that shares no pointers with d.
func (d *Device) clone() *Device {
	c := *d
	if d.Label != nil {
		v := *d.Label
		c.Label = &v
	}
	if d.Model != nil {
		v := *d.Model
		c.Model = &v
	}
	if d.LastSeenAt != nil {
		v := *d.LastSeenAt
		c.LastSeenAt = &v
	}
	return &c
}
