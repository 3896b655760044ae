package reading

import (
	"errors"
	"fmt"
)

// Sentinel errors for errors.Is checks.
var (
	// ErrValidation is matched by every *ValidationError.
	ErrValidation = errors.New("reading: invalid")

	// ErrDuplicateReading is matched by every *DuplicateReadingError.
	ErrDuplicateReading = errors.New("reading: duplicate")

	// ErrNotFound is returned when a device or room has no readings.
	ErrNotFound = errors.New("reading: not found")

	// ErrInvalidRange is returned when a time range is empty or reversed.
	ErrInvalidRange = errors.New("reading: invalid time range")
)

// Kind classifies a ValidationError.
type Kind string

// Validation error kinds.
const (
	KindTemperatureRange Kind = "temperature_range"
	KindHumidityRange    Kind = "humidity_range"
	KindTimestampInvalid Kind = "timestamp_invalid"
	KindMissingField     Kind = "missing_field"
	KindWrongType        Kind = "wrong_type"
)

// ValidationError reports a rejected payload field.
type ValidationError struct {
	Kind  Kind
	Field string
	// Value is the offending input, nil for a missing field.
	Value  any
	Reason string
}

func (e *ValidationError) Error() string {
	switch e.Kind {
	case KindMissingField:
		return fmt.Sprintf("%s is required", e.Field)
	case KindWrongType:
		return fmt.Sprintf("%s has wrong type %T: %s", e.Field, e.Value, e.Reason)
	default:
		return fmt.Sprintf("%s %v %s", e.Field, e.Value, e.Reason)
	}
}

// Is makes errors.Is(err, ErrValidation) true.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Duplicate reasons.
const (
	// ReasonDedupKey means a reading with the same content hash exists.
	ReasonDedupKey = "dedup_key"

	// ReasonDeviceTimestamp means the device already has a reading at ts.
	ReasonDeviceTimestamp = "device_timestamp"
)

// DuplicateReadingError reports a reading the store already holds.
type DuplicateReadingError struct {
	DeviceID string
	DedupKey string
	Reason   string
}

func (e *DuplicateReadingError) Error() string {
	return fmt.Sprintf("duplicate reading for device %s (%s)", e.DeviceID, e.Reason)
}

// Is makes errors.Is(err, ErrDuplicateReading) true.
func (e *DuplicateReadingError) Is(target error) bool { return target == ErrDuplicateReading }
