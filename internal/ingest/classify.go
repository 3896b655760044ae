package ingest

import (
	"errors"

	"github.com/nerrad567/climate-core/internal/device"
	"github.com/nerrad567/climate-core/internal/reading"
	"github.com/nerrad567/climate-core/internal/topic"
)

// Outcome classifies the result of one ingestion.
type Outcome string

// Outcomes. Everything except OutcomeFailed is a per-message rejection the
// transport should simply drop.
const (
	OutcomeAccepted      Outcome = "accepted"
	OutcomeTopic         Outcome = "topic"
	OutcomeValidation    Outcome = "validation"
	OutcomeUnknownDevice Outcome = "unknown_device"
	OutcomeDuplicate     Outcome = "duplicate"
	OutcomeFailed        Outcome = "failed"
)

// Classify maps an Ingest error to its Outcome.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeAccepted
	case errors.Is(err, topic.ErrTopicFormat):
		return OutcomeTopic
	case errors.Is(err, reading.ErrValidation):
		return OutcomeValidation
	case errors.Is(err, device.ErrUnknownDevice):
		return OutcomeUnknownDevice
	case errors.Is(err, reading.ErrDuplicateReading):
		return OutcomeDuplicate
	default:
		return OutcomeFailed
	}
}

// Rejected reports whether err is a per-message rejection rather than a
// storage or infrastructure failure.
func Rejected(err error) bool {
	o := Classify(err)
	return o != OutcomeAccepted && o != OutcomeFailed
}

// rejectionAttrs returns log attributes naming the component and the
// identifier or field at fault.
func rejectionAttrs(err error) []any {
	var (
		tfe *topic.TopicFormatError
		ve  *reading.ValidationError
		ude *device.UnknownDeviceError
		dup *reading.DuplicateReadingError
	)
	switch {
	case errors.As(err, &tfe):
		attrs := []any{"component", "topic", "kind", string(tfe.Kind)}
		if tfe.Placeholder != "" {
			attrs = append(attrs, "placeholder", tfe.Placeholder)
		}
		return attrs
	case errors.As(err, &ve):
		return []any{"component", "normalizer", "kind", string(ve.Kind), "field", ve.Field}
	case errors.As(err, &ude):
		return []any{"component", "device", "kind", string(OutcomeUnknownDevice), "device_uid", ude.UID}
	case errors.As(err, &dup):
		return []any{"component", "storage", "kind", string(OutcomeDuplicate), "reason", dup.Reason}
	default:
		return []any{"component", "storage", "kind", string(OutcomeFailed)}
	}
}
