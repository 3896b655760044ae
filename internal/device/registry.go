package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry is a Repository with an in-memory cache of devices by UID.
//
// Every ingested message resolves its device by UID, so the registry keeps
// that lookup off the database. Misses fall through to the repository, so
// devices created by another process are still found. Placements are never
// cached: a move made elsewhere takes effect on the next reading.
//
// All public methods are thread-safe.
type Registry struct {
	repo    Repository
	cache   map[string]*Device // Cached devices by UID
	cacheMu sync.RWMutex       // Protects cache
	logger  Logger

	hits   atomic.Uint64
	misses atomic.Uint64
}

var _ Repository = (*Registry)(nil)

// NewRegistry creates a new device registry.
// The repository is used for persistence; the registry adds caching.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:   repo,
		cache:  make(map[string]*Device),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// RefreshCache reloads all devices from the repository into the cache.
// This should be called on application startup.
func (r *Registry) RefreshCache(ctx context.Context) error {
	devices, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	r.cache = make(map[string]*Device, len(devices))
	for i := range devices {
		r.cache[devices[i].UID] = devices[i].clone()
	}

	r.logger.Info("device cache refreshed", "count", len(devices))
	return nil
}

// FindByExternalID returns the cached device, loading it on a miss.
// The returned device is a copy; callers can safely modify it.
func (r *Registry) FindByExternalID(ctx context.Context, uid string) (*Device, error) {
	r.cacheMu.RLock()
	cached, ok := r.cache[uid]
	var d *Device
	if ok {
		d = cached.clone()
	}
	r.cacheMu.RUnlock()

	if ok {
		r.hits.Add(1)
		return d, nil
	}
	r.misses.Add(1)

	d, err := r.repo.FindByExternalID(ctx, uid)
	if err != nil {
		return nil, err
	}
	r.store(d)
	return d, nil
}

// GetByID retrieves a device by internal ID from the repository.
func (r *Registry) GetByID(ctx context.Context, id string) (*Device, error) {
	return r.repo.GetByID(ctx, id)
}

// List retrieves all devices from the repository and refreshes their
// cache entries.
func (r *Registry) List(ctx context.Context) ([]Device, error) {
	devices, err := r.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	r.cacheMu.Lock()
	for i := range devices {
		r.cache[devices[i].UID] = devices[i].clone()
	}
	r.cacheMu.Unlock()
	return devices, nil
}

// Create inserts a device and caches it.
func (r *Registry) Create(ctx context.Context, d *Device) error {
	if err := r.repo.Create(ctx, d); err != nil {
		if errors.Is(err, ErrDeviceExists) {
			r.Invalidate(d.UID)
		}
		return err
	}
	r.store(d)
	r.logger.Debug("device cached", "device_uid", d.UID)
	return nil
}

// CreatePlaced inserts a device with its first placement and caches it.
func (r *Registry) CreatePlaced(ctx context.Context, d *Device, roomID string, at time.Time) (*Placement, error) {
	p, err := r.repo.CreatePlaced(ctx, d, roomID, at)
	if err != nil {
		return nil, err
	}
	r.store(d)
	return p, nil
}

// UpdateLastSeen writes last_seen_at and updates the cached copy.
func (r *Registry) UpdateLastSeen(ctx context.Context, id string, at time.Time) error {
	if err := r.repo.UpdateLastSeen(ctx, id, at); err != nil {
		return err
	}

	seen := at.UTC()
	r.cacheMu.Lock()
	for _, d := range r.cache {
		if d.ID == id {
			if d.LastSeenAt == nil || seen.After(*d.LastSeenAt) {
				d.LastSeenAt = &seen
			}
			break
		}
	}
	r.cacheMu.Unlock()
	return nil
}

// CurrentPlacement returns the device's open placement from the repository.
func (r *Registry) CurrentPlacement(ctx context.Context, uid string) (*Placement, error) {
	return r.repo.CurrentPlacement(ctx, uid)
}

// ListPlacements returns the device's placement history from the repository.
func (r *Registry) ListPlacements(ctx context.Context, uid string) ([]Placement, error) {
	return r.repo.ListPlacements(ctx, uid)
}

// Assign moves a device to a room.
func (r *Registry) Assign(ctx context.Context, uid, roomID string, at time.Time) (*Placement, error) {
	return r.repo.Assign(ctx, uid, roomID, at)
}

// Unassign closes the device's current placement.
func (r *Registry) Unassign(ctx context.Context, uid string, at time.Time) error {
	return r.repo.Unassign(ctx, uid, at)
}

// Invalidate drops a device from the cache.
func (r *Registry) Invalidate(uid string) {
	r.cacheMu.Lock()
	delete(r.cache, uid)
	r.cacheMu.Unlock()
}

// GetDeviceCount returns the number of cached devices.
func (r *Registry) GetDeviceCount() int {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return len(r.cache)
}

func (r *Registry) store(d *Device) {
	r.cacheMu.Lock()
	r.cache[d.UID] = d.clone()
	r.cacheMu.Unlock()
}

// RegistryStats returns registry statistics for monitoring.
type RegistryStats struct {
	CachedDevices int    `json:"cached_devices"`
	Hits          uint64 `json:"hits"`
	Misses        uint64 `json:"misses"`
}

// GetStats returns current registry statistics.
func (r *Registry) GetStats() RegistryStats {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return RegistryStats{
		CachedDevices: len(r.cache),
		Hits:          r.hits.Load(),
		Misses:        r.misses.Load(),
	}
}
