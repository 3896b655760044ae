package device

import (
	"errors"
	"fmt"
)

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDeviceNotFound is returned when a device does not exist.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrDeviceExists is returned when creating a device whose external ID is taken.
	ErrDeviceExists = errors.New("device: already exists")

	// ErrInvalidDevice is returned when device validation fails.
	ErrInvalidDevice = errors.New("device: invalid")

	// ErrRoomNotFound is returned when a referenced room does not exist.
	ErrRoomNotFound = errors.New("device: room not found")

	// ErrInvalidPlacement is returned when a placement would overlap an
	// existing one.
	ErrInvalidPlacement = errors.New("device: invalid placement")

	// ErrUnknownDevice is matched by every *UnknownDeviceError.
	ErrUnknownDevice = errors.New("device: unknown device")

	// ErrUnknownPolicy is returned by PolicyByName for an unrecognised name.
	ErrUnknownPolicy = errors.New("device: unknown resolution policy")
)

// UnknownDeviceError is returned by the RequireProvisioned policy for a
// device that has not been provisioned.
type UnknownDeviceError struct {
	UID string
}

func (e *UnknownDeviceError) Error() string {
	return fmt.Sprintf("unknown device %s: must be provisioned first", e.UID)
}

// Is makes errors.Is(err, ErrUnknownDevice) true.
func (e *UnknownDeviceError) Is(target error) bool { return target == ErrUnknownDevice }
