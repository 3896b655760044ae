package natsio

import "errors"

var (
	// ErrConnectionFailed is returned when the initial connection fails.
	ErrConnectionFailed = errors.New("natsio: connection failed")

	// ErrSubscribeFailed is returned when a subscription cannot be created.
	ErrSubscribeFailed = errors.New("natsio: subscribe failed")

	// ErrInvalidFilter is returned for filters that cannot map to a subject.
	ErrInvalidFilter = errors.New("natsio: invalid topic filter")

	// ErrClosed is returned by Subscribe after Drain.
	ErrClosed = errors.New("natsio: client closed")
)
