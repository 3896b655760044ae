package topic

import (
	"errors"
	"fmt"
)

// Sentinel errors for errors.Is checks.
var (
	// ErrPattern is matched by every *PatternError.
	ErrPattern = errors.New("topic: invalid pattern")

	// ErrTopicFormat is matched by every *TopicFormatError, whatever its kind.
	ErrTopicFormat = errors.New("topic: invalid format")

	// ErrEmptyID is matched by a *TopicFormatError of kind KindEmptyID.
	ErrEmptyID = errors.New("topic: empty id")

	// ErrIDTooLong is matched by a *TopicFormatError of kind KindIDTooLong.
	ErrIDTooLong = errors.New("topic: id too long")

	// ErrInvalidIDChars is matched by a *TopicFormatError of kind KindInvalidIDChars.
	ErrInvalidIDChars = errors.New("topic: invalid id characters")
)

// PatternError reports a pattern that cannot be compiled.
type PatternError struct {
	Pattern string
	Reason  string
}

func (e *PatternError) Error() string {
	return fmt.Sprintf("topic: invalid pattern %q: %s", e.Pattern, e.Reason)
}

// Is makes errors.Is(err, ErrPattern) true.
func (e *PatternError) Is(target error) bool { return target == ErrPattern }

// Kind classifies a TopicFormatError.
type Kind string

// Topic format error kinds.
const (
	// KindMismatch means the topic does not have the shape of the pattern.
	KindMismatch Kind = "mismatch"

	KindEmptyID        Kind = "empty_id"
	KindIDTooLong      Kind = "id_too_long"
	KindInvalidIDChars Kind = "invalid_id_chars"
)

// TopicFormatError reports a topic the decoder rejected.
// For the id kinds Placeholder names the offending placeholder and Value
// holds what was extracted for it.
type TopicFormatError struct {
	Kind        Kind
	Topic       string
	Pattern     string
	Placeholder string
	Value       string
}

func (e *TopicFormatError) Error() string {
	switch e.Kind {
	case KindEmptyID:
		return fmt.Sprintf("topic %q: %s is empty", e.Topic, e.Placeholder)
	case KindIDTooLong:
		return fmt.Sprintf("topic %q: %s exceeds %d characters", e.Topic, e.Placeholder, MaxIDLength)
	case KindInvalidIDChars:
		return fmt.Sprintf("topic %q: %s %q contains characters outside [A-Za-z0-9_-]", e.Topic, e.Placeholder, e.Value)
	default:
		return fmt.Sprintf("topic %q does not match pattern %q", e.Topic, e.Pattern)
	}
}

// Is matches ErrTopicFormat for every kind, plus the sentinel for the
// specific id kind.
func (e *TopicFormatError) Is(target error) bool {
	switch target {
	case ErrTopicFormat:
		return true
	case ErrEmptyID:
		return e.Kind == KindEmptyID
	case ErrIDTooLong:
		return e.Kind == KindIDTooLong
	case ErrInvalidIDChars:
		return e.Kind == KindInvalidIDChars
	}
	return false
}
