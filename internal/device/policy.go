package device

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Resolution policy names, as written in configuration.
const (
	PolicyRequireProvisioned = "require_provisioned"
	PolicyAutoProvision      = "auto_provision"
)

// AutoLabelPrefix starts the placeholder label of auto-provisioned devices.
const AutoLabelPrefix = "auto: "

// Policy resolves the device a reading came from. One policy is chosen per
// deployment and fixed for the life of the pipeline.
type Policy interface {
	// Name returns the configuration name of the policy.
	Name() string

	// Resolve returns the device with external ID uid. created reports
	// whether this call created it. seenAt is the reading's timestamp.
	Resolve(ctx context.Context, uid string, seenAt time.Time) (dev *Device, created bool, err error)
}

// RequireProvisioned rejects readings from devices that were not provisioned
// beforehand. It never writes.
type RequireProvisioned struct {
	repo Repository
}

// NewRequireProvisioned creates the strict policy.
func NewRequireProvisioned(repo Repository) *RequireProvisioned {
	return &RequireProvisioned{repo: repo}
}

// Name implements Policy.
func (p *RequireProvisioned) Name() string { return PolicyRequireProvisioned }

// Resolve returns *UnknownDeviceError for an unprovisioned device.
func (p *RequireProvisioned) Resolve(ctx context.Context, uid string, _ time.Time) (*Device, bool, error) {
	dev, err := p.repo.FindByExternalID(ctx, uid)
	if errors.Is(err, ErrDeviceNotFound) {
		return nil, false, &UnknownDeviceError{UID: uid}
	}
	if err != nil {
		return nil, false, err
	}
	return dev, false, nil
}

// AutoProvision creates a placeholder device, with no placement, the first
// time an unknown device publishes.
type AutoProvision struct {
	repo  Repository
	newID func() string
}

// NewAutoProvision creates the permissive policy.
func NewAutoProvision(repo Repository) *AutoProvision {
	return &AutoProvision{repo: repo, newID: uuid.NewString}
}

// Name implements Policy.
func (p *AutoProvision) Name() string { return PolicyAutoProvision }

// Resolve finds or creates the device.
//
// Two deliveries from the same new device may race here. The unique index
// on device_uid lets exactly one insert through; the other sees
// ErrDeviceExists and reads the winner's row.
func (p *AutoProvision) Resolve(ctx context.Context, uid string, seenAt time.Time) (*Device, bool, error) {
	dev, err := p.repo.FindByExternalID(ctx, uid)
	if err == nil {
		return dev, false, nil
	}
	if !errors.Is(err, ErrDeviceNotFound) {
		return nil, false, err
	}

	label := AutoLabelPrefix + uid
	seen := seenAt.UTC()
	dev = &Device{
		ID:         p.newID(),
		UID:        uid,
		Label:      &label,
		CreatedAt:  time.Now().UTC(),
		LastSeenAt: &seen,
	}
	err = p.repo.Create(ctx, dev)
	switch {
	case err == nil:
		return dev, true, nil
	case errors.Is(err, ErrDeviceExists):
		existing, findErr := p.repo.FindByExternalID(ctx, uid)
		if findErr != nil {
			return nil, false, fmt.Errorf("re-reading device %s after create conflict: %w", uid, findErr)
		}
		return existing, false, nil
	default:
		return nil, false, err
	}
}

// PolicyByName returns the policy configured by name.
func PolicyByName(name string, repo Repository) (Policy, error) {
	switch name {
	case PolicyRequireProvisioned:
		return NewRequireProvisioned(repo), nil
	case PolicyAutoProvision:
		return NewAutoProvision(repo), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPolicy, name)
	}
}
