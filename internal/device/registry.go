package device

import (
	"context"
	"fmt"
	"sort"
	"sync"
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

// Registry is a write-through cache in front of a Repository. It
// implements Repository itself, so callers can use either.
//
// Until RefreshCache succeeds every read goes to the repository. After
// that, reads are served from memory and writes update both.
//
// All public methods are thread-safe.
type Registry struct {
	repo    Repository
	cache   map[string]*Device
	loaded  bool
	cacheMu sync.RWMutex
	logger  Logger
}

var _ Repository = (*Registry)(nil)

// NewRegistry creates a new device registry over repo.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:   repo,
		cache:  make(map[string]*Device),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// RefreshCache reloads all devices from the repository into the cache.
// This should be called on application startup.
func (r *Registry) RefreshCache(ctx context.Context) error {
	devices, err := r.repo.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	r.cache = make(map[string]*Device, len(devices))
	for i := range devices {
		r.cache[devices[i].ID] = devices[i].DeepCopy()
	}
	r.loaded = true

	r.logger.Info("device cache refreshed", "count", len(devices))
	return nil
}

// Get retrieves a device by ID. The returned device is a deep copy.
func (r *Registry) Get(ctx context.Context, id string) (*Device, error) {
	r.cacheMu.RLock()
	cached, ok := r.cache[id]
	loaded := r.loaded
	r.cacheMu.RUnlock()

	if ok {
		return cached.DeepCopy(), nil
	}
	if loaded {
		return nil, ErrDeviceNotFound
	}
	return r.repo.Get(ctx, id)
}

// ListAll retrieves every device.
func (r *Registry) ListAll(ctx context.Context) ([]Device, error) {
	if devices, ok := r.filter(func(*Device) bool { return true }); ok {
		return devices, nil
	}
	return r.repo.ListAll(ctx)
}

// ListByType retrieves all devices of a type.
func (r *Registry) ListByType(ctx context.Context, deviceType Type) ([]Device, error) {
	if devices, ok := r.filter(func(d *Device) bool { return d.Type == deviceType }); ok {
		return devices, nil
	}
	return r.repo.ListByType(ctx, deviceType)
}

// ListByTypeAndDriver retrieves the devices a driver owns for a type.
func (r *Registry) ListByTypeAndDriver(ctx context.Context, deviceType Type, driverID string) ([]Device, error) {
	match := func(d *Device) bool { return d.Type == deviceType && d.DriverID == driverID }
	if devices, ok := r.filter(match); ok {
		return devices, nil
	}
	return r.repo.ListByTypeAndDriver(ctx, deviceType, driverID)
}

// Create persists a new device and caches it.
func (r *Registry) Create(ctx context.Context, device *Device) error {
	if err := r.repo.Create(ctx, device); err != nil {
		return err
	}

	r.cacheMu.Lock()
	r.cache[device.ID] = device.DeepCopy()
	r.cacheMu.Unlock()

	r.logger.Debug("device created", "id", device.ID, "driver_id", device.DriverID, "local_id", device.LocalID)
	return nil
}

// Update persists the device and refreshes its cache entry. The cached
// copy keeps its original identity fields and created_at.
func (r *Registry) Update(ctx context.Context, device *Device) error {
	if err := r.repo.Update(ctx, device); err != nil {
		return err
	}

	r.cacheMu.Lock()
	if cached, ok := r.cache[device.ID]; ok {
		updated := cached.DeepCopy()
		updated.Name = device.Name
		updated.Address = device.Address
		updated.Specs = device.DeepCopy().Specs
		updated.UpdatedAt = device.UpdatedAt
		r.cache[device.ID] = updated
	}
	r.cacheMu.Unlock()

	r.logger.Debug("device updated", "id", device.ID)
	return nil
}

// DeleteMany removes devices from the store and the cache.
func (r *Registry) DeleteMany(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := r.repo.DeleteMany(ctx, ids); err != nil {
		return err
	}

	r.cacheMu.Lock()
	for _, id := range ids {
		delete(r.cache, id)
	}
	r.cacheMu.Unlock()

	r.logger.Debug("devices deleted", "count", len(ids))
	return nil
}

// CountByDriver returns the number of devices owned by a driver.
func (r *Registry) CountByDriver(ctx context.Context, driverID string) (int, error) {
	r.cacheMu.RLock()
	loaded := r.loaded
	count := 0
	if loaded {
		for _, d := range r.cache {
			if d.DriverID == driverID {
				count++
			}
		}
	}
	r.cacheMu.RUnlock()

	if loaded {
		return count, nil
	}
	return r.repo.CountByDriver(ctx, driverID)
}

// GetDeviceCount returns the number of cached devices.
func (r *Registry) GetDeviceCount() int {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return len(r.cache)
}

// filter returns deep copies of the cached devices matching keep, sorted
// the same way the repository sorts. ok is false when the cache has not
// been loaded.
func (r *Registry) filter(keep func(*Device) bool) (devices []Device, ok bool) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	if !r.loaded {
		return nil, false
	}

	devices = []Device{}
	for _, d := range r.cache {
		if keep(d) {
			devices = append(devices, *d.DeepCopy())
		}
	}
	sort.Slice(devices, func(i, j int) bool {
		a, b := devices[i], devices[j]
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	})
	return devices, true
}
