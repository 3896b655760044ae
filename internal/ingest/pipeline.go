package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/climate-core/internal/device"
	"github.com/nerrad567/climate-core/internal/reading"
	"github.com/nerrad567/climate-core/internal/topic"
)

// DefaultDevicePlaceholder is the topic placeholder holding the device UID.
const DefaultDevicePlaceholder = "deviceId"

// Meta is the transport metadata delivered with a message.
type Meta struct {
	Retained  bool
	QoS       byte
	MessageID string
	// Source overrides the pipeline's source tag for this message.
	Source string
}

// Result describes an accepted reading.
type Result struct {
	Success bool `json:"success"`
	// DeviceID is the external device identifier taken from the topic.
	DeviceID      string             `json:"deviceId"`
	Reading       reading.Normalized `json:"reading"`
	InsertID      int64              `json:"insertId"`
	DeviceCreated bool               `json:"deviceCreated"`
	Retained      bool               `json:"retained,omitempty"`
	Source        string             `json:"source"`

	// RoomID is the room the device was placed in at ingestion time.
	RoomID *string `json:"roomId,omitempty"`
	// Topic holds every placeholder value decoded from the topic.
	Topic    map[string]string `json:"topic,omitempty"`
	DedupKey string            `json:"dedupKey"`
}

// DeviceStore is the device access the pipeline needs after resolution.
type DeviceStore interface {
	CurrentPlacement(ctx context.Context, uid string) (*device.Placement, error)
	UpdateLastSeen(ctx context.Context, id string, at time.Time) error
}

// ReadingStore persists readings.
type ReadingStore interface {
	Insert(ctx context.Context, row reading.Row) (int64, error)
}

// Config assembles a Pipeline.
type Config struct {
	Decoder *topic.Decoder
	// DevicePlaceholder defaults to DefaultDevicePlaceholder.
	DevicePlaceholder string
	// Normalizer defaults to reading.NewNormalizer().
	Normalizer *reading.Normalizer
	Policy     device.Policy
	Devices    DeviceStore
	Readings   ReadingStore
	// Source defaults to reading.SourceMQTT.
	Source string
}

// Pipeline ingests single messages. It holds no mutable state and is safe
// for concurrent use.
type Pipeline struct {
	decoder     *topic.Decoder
	placeholder string
	normalizer  *reading.Normalizer
	policy      device.Policy
	devices     DeviceStore
	readings    ReadingStore
	source      string
}

// NewPipeline validates cfg and returns a Pipeline.
func NewPipeline(cfg Config) (*Pipeline, error) {
	if cfg.Decoder == nil {
		return nil, errors.New("ingest: decoder is required")
	}
	if cfg.Policy == nil || cfg.Devices == nil || cfg.Readings == nil {
		return nil, errors.New("ingest: policy, devices and readings are required")
	}
	if cfg.DevicePlaceholder == "" {
		cfg.DevicePlaceholder = DefaultDevicePlaceholder
	}
	if !cfg.Decoder.Has(cfg.DevicePlaceholder) {
		return nil, fmt.Errorf("ingest: pattern %q has no {%s} placeholder", cfg.Decoder.Pattern(), cfg.DevicePlaceholder)
	}
	if cfg.Normalizer == nil {
		cfg.Normalizer = reading.NewNormalizer()
	}
	if cfg.Source == "" {
		cfg.Source = reading.SourceMQTT
	}
	return &Pipeline{
		decoder:     cfg.Decoder,
		placeholder: cfg.DevicePlaceholder,
		normalizer:  cfg.Normalizer,
		policy:      cfg.Policy,
		devices:     cfg.Devices,
		readings:    cfg.Readings,
		source:      cfg.Source,
	}, nil
}

// Policy returns the device resolution policy in use.
func (p *Pipeline) Policy() device.Policy { return p.policy }

// Decoder returns the topic decoder.
func (p *Pipeline) Decoder() *topic.Decoder { return p.decoder }

// Ingest processes one message. It never retries; a failure is returned as
// the typed error of the step that produced it.
func (p *Pipeline) Ingest(ctx context.Context, topicName string, payload []byte, meta Meta) (*Result, error) {
	values, err := p.decoder.Parse(topicName)
	if err != nil {
		return nil, err
	}
	uid := values[p.placeholder]

	normalized, err := p.normalizer.Normalize(payload)
	if err != nil {
		return nil, err
	}

	dev, created, err := p.policy.Resolve(ctx, uid, normalized.Timestamp)
	if err != nil {
		return nil, err
	}

	// Looked up now rather than taken from resolution so a placement change
	// between messages is honoured.
	placement, err := p.devices.CurrentPlacement(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("resolving placement of %s: %w", uid, err)
	}
	var roomID *string
	if placement != nil {
		room := placement.RoomID
		roomID = &room
	}

	source := p.source
	if meta.Source != "" {
		source = meta.Source
	}
	key := reading.DedupKey(uid, normalized)

	insertID, err := p.readings.Insert(ctx, reading.Row{
		DeviceID:    dev.ID,
		RoomID:      roomID,
		Timestamp:   normalized.Timestamp,
		Temperature: normalized.Temperature,
		Humidity:    normalized.Humidity,
		Source:      source,
		DedupKey:    key,
	})
	if err != nil {
		return nil, err
	}

	if err := p.devices.UpdateLastSeen(ctx, dev.ID, normalized.Timestamp); err != nil {
		return nil, fmt.Errorf("updating last seen of %s: %w", uid, err)
	}

	return &Result{
		Success:       true,
		DeviceID:      uid,
		Reading:       normalized,
		InsertID:      insertID,
		DeviceCreated: created,
		Retained:      meta.Retained,
		Source:        source,
		RoomID:        roomID,
		Topic:         values,
		DedupKey:      key,
	}, nil
}
