// Package device manages climate sensors, their room placements and the
// policy that decides what happens when an unknown sensor publishes.
//
// # Key Types
//
//   - Device: a physical sensor, identified externally by UID and internally
//     by an immutable ID
//   - Placement: a [from, to) interval binding a device to a room
//   - Policy: RequireProvisioned rejects unknown devices with
//     *UnknownDeviceError; AutoProvision creates a placeholder device
//   - Provisioner: registers devices ahead of their first reading
//   - Registry: a Repository that caches devices by UID for the ingest path
//
// # Usage
//
//	repo := device.NewSQLiteRepository(db.Sqlx())
//	policy, err := device.PolicyByName(cfg.Ingest.DevicePolicy, repo)
//	if err != nil {
//	    return err
//	}
//	dev, created, err := policy.Resolve(ctx, "temp001", readingTime)
//
// # Thread Safety
//
// SQLiteRepository, Registry and both policies are safe for concurrent use. Exclusion
// between concurrent creators of the same device comes from the unique
// index on devices.device_uid, not from in-process locks.
package device
