package device

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	maxUIDLength   = 50
	maxLabelLength = 100
	maxModelLength = 50
)

// uidRegex is the character class transport topics allow for identifiers, so
// every provisioned device can actually publish.
var uidRegex = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidateUID checks an external device identifier.
func ValidateUID(uid string) error {
	if strings.TrimSpace(uid) == "" {
		return fmt.Errorf("%w: uid cannot be empty", ErrInvalidDevice)
	}
	if len(uid) > maxUIDLength {
		return fmt.Errorf("%w: uid exceeds %d characters", ErrInvalidDevice, maxUIDLength)
	}
	if !uidRegex.MatchString(uid) {
		return fmt.Errorf("%w: uid %q contains characters outside [A-Za-z0-9_-]", ErrInvalidDevice, uid)
	}
	return nil
}

// ValidateDevice validates a Device before persistence.
func ValidateDevice(d *Device) error {
	if d.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidDevice)
	}
	if err := ValidateUID(d.UID); err != nil {
		return err
	}
	if d.Label != nil && len(*d.Label) > maxLabelLength {
		return fmt.Errorf("%w: label exceeds %d characters", ErrInvalidDevice, maxLabelLength)
	}
	if d.Model != nil && len(*d.Model) > maxModelLength {
		return fmt.Errorf("%w: model exceeds %d characters", ErrInvalidDevice, maxModelLength)
	}
	return nil
}
