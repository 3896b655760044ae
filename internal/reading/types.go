package reading

import (
	"encoding/json"
	"time"

	"github.com/nerrad567/climate-core/internal/infrastructure/database"
)

// Source tags recorded on stored readings.
const (
	SourceMQTT = "mqtt"
	SourceNATS = "nats"
)

// Normalized is a validated measurement with a canonical timestamp.
type Normalized struct {
	Temperature float64
	Humidity    float64
	Timestamp   time.Time
}

// TS returns the canonical text form of the timestamp.
func (n Normalized) TS() string {
	return database.FormatTime(n.Timestamp)
}

// MarshalJSON encodes the reading in the accepted input shape, so the output
// normalizes back to the same value.
func (n Normalized) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Temperature float64 `json:"temperature"`
		Humidity    float64 `json:"humidity"`
		TS          string  `json:"ts"`
	}{n.Temperature, n.Humidity, n.TS()})
}

// Row is a reading ready to be written.
type Row struct {
	// DeviceID is the internal device identifier.
	DeviceID string
	// RoomID is the device's room at ingestion time, nil when unplaced.
	RoomID      *string
	Timestamp   time.Time
	Temperature float64
	Humidity    float64
	Source      string
	DedupKey    string
}

// Reading is a stored reading joined with its device's external id.
type Reading struct {
	DeviceUID   string    `json:"device_uid"`
	DeviceID    string    `json:"device_id"`
	RoomID      *string   `json:"room_id"`
	Timestamp   time.Time `json:"ts"`
	Temperature float64   `json:"temperature"`
	Humidity    float64   `json:"humidity"`
	Source      string    `json:"source,omitempty"`
	DedupKey    string    `json:"msg_id,omitempty"`
}

// RoomSummary is the latest reading of a room.
type RoomSummary struct {
	RoomID      string     `json:"room_id"`
	LastTS      *time.Time `json:"last_ts"`
	Temperature *float64   `json:"temperature"`
	Humidity    *float64   `json:"humidity"`
}
