package device

import (
	"context"
	"errors"
	"sync"
	"testing"
)

// MockRepository is a test implementation of Repository.
type MockRepository struct {
	mu      sync.Mutex
	devices map[string]*Device
	reads   int

	// For testing error paths
	listErr   error
	createErr error
	deleteErr error
}

func NewMockRepository() *MockRepository {
	return &MockRepository{devices: make(map[string]*Device)}
}

func (m *MockRepository) Get(_ context.Context, id string) (*Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++

	if d, ok := m.devices[id]; ok {
		return d.DeepCopy(), nil
	}
	return nil, ErrDeviceNotFound
}

func (m *MockRepository) list(keep func(*Device) bool) ([]Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++

	if m.listErr != nil {
		return nil, m.listErr
	}
	devices := []Device{}
	for _, d := range m.devices {
		if keep(d) {
			devices = append(devices, *d.DeepCopy())
		}
	}
	return devices, nil
}

func (m *MockRepository) ListAll(_ context.Context) ([]Device, error) {
	return m.list(func(*Device) bool { return true })
}

func (m *MockRepository) ListByType(_ context.Context, t Type) ([]Device, error) {
	return m.list(func(d *Device) bool { return d.Type == t })
}

func (m *MockRepository) ListByTypeAndDriver(_ context.Context, t Type, driverID string) ([]Device, error) {
	return m.list(func(d *Device) bool { return d.Type == t && d.DriverID == driverID })
}

func (m *MockRepository) Create(_ context.Context, device *Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.createErr != nil {
		return m.createErr
	}
	if _, exists := m.devices[device.ID]; exists {
		return ErrDeviceExists
	}
	m.devices[device.ID] = device.DeepCopy()
	return nil
}

func (m *MockRepository) Update(_ context.Context, device *Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.devices[device.ID]; !exists {
		return ErrDeviceNotFound
	}
	m.devices[device.ID] = device.DeepCopy()
	return nil
}

func (m *MockRepository) DeleteMany(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.deleteErr != nil {
		return m.deleteErr
	}
	for _, id := range ids {
		delete(m.devices, id)
	}
	return nil
}

func (m *MockRepository) CountByDriver(_ context.Context, driverID string) (int, error) {
	devices, err := m.list(func(d *Device) bool { return d.DriverID == driverID })
	return len(devices), err
}

func (m *MockRepository) addDevice(d *Device) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devices[d.ID] = d.DeepCopy()
}

func TestRegistry_RefreshCache(t *testing.T) {
	repo := NewMockRepository()
	repo.addDevice(testDevice("sonos", "a", "A"))
	repo.addDevice(testDevice("sonos", "b", "B"))

	reg := NewRegistry(repo)
	if err := reg.RefreshCache(context.Background()); err != nil {
		t.Fatalf("RefreshCache() error = %v", err)
	}
	if reg.GetDeviceCount() != 2 {
		t.Errorf("GetDeviceCount() = %d, want 2", reg.GetDeviceCount())
	}

	repo.listErr = errors.New("disk on fire")
	if err := reg.RefreshCache(context.Background()); err == nil {
		t.Error("RefreshCache() should surface repository errors")
	}
}

func TestRegistry_ReadsBeforeRefreshGoToRepository(t *testing.T) {
	repo := NewMockRepository()
	d := testDevice("sonos", "a", "A")
	repo.addDevice(d)

	reg := NewRegistry(repo)
	got, err := reg.Get(context.Background(), d.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Name != "A" {
		t.Errorf("Get() name = %q", got.Name)
	}

	all, err := reg.ListAll(context.Background())
	if err != nil || len(all) != 1 {
		t.Errorf("ListAll() = %v, %v", all, err)
	}
	if repo.reads != 2 {
		t.Errorf("repository reads = %d, want 2", repo.reads)
	}
}

func TestRegistry_ServesFromCacheAfterRefresh(t *testing.T) {
	ctx := context.Background()
	repo := NewMockRepository()
	a := testDevice("sonos", "a", "A")
	repo.addDevice(a)
	reg := NewRegistry(repo)
	if err := reg.RefreshCache(ctx); err != nil {
		t.Fatalf("RefreshCache() error = %v", err)
	}
	reads := repo.reads

	if _, err := reg.Get(ctx, a.ID); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if _, err := reg.Get(ctx, "missing"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("Get(missing) = %v, want ErrDeviceNotFound", err)
	}
	if _, err := reg.ListByTypeAndDriver(ctx, TypeSpeaker, "sonos"); err != nil {
		t.Fatalf("ListByTypeAndDriver() error = %v", err)
	}
	if n, _ := reg.CountByDriver(ctx, "sonos"); n != 1 {
		t.Errorf("CountByDriver() = %d, want 1", n)
	}
	if repo.reads != reads {
		t.Errorf("repository read %d more times after refresh", repo.reads-reads)
	}
}

func TestRegistry_WriteThrough(t *testing.T) {
	ctx := context.Background()
	repo := NewMockRepository()
	reg := NewRegistry(repo)
	if err := reg.RefreshCache(ctx); err != nil {
		t.Fatalf("RefreshCache() error = %v", err)
	}

	a := testDevice("sonos", "a", "A")
	b := testDevice("sonos", "b", "B")
	for _, d := range []*Device{a, b} {
		if err := reg.Create(ctx, d); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	a.Name = "A2"
	if err := reg.Update(ctx, a); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	got, _ := reg.Get(ctx, a.ID)
	if got.Name != "A2" {
		t.Errorf("cached name = %q, want A2", got.Name)
	}

	if err := reg.DeleteMany(ctx, []string{b.ID}); err != nil {
		t.Fatalf("DeleteMany() error = %v", err)
	}
	if _, err := reg.Get(ctx, b.ID); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("Get(deleted) = %v, want ErrDeviceNotFound", err)
	}
	if _, err := repo.Get(ctx, b.ID); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("repository still has deleted device: %v", err)
	}

	repo.createErr = errors.New("constraint")
	c := testDevice("sonos", "c", "C")
	if err := reg.Create(ctx, c); err == nil {
		t.Fatal("Create() should fail")
	}
	if _, err := reg.Get(ctx, c.ID); !errors.Is(err, ErrDeviceNotFound) {
		t.Error("failed Create() must not populate the cache")
	}
}

func TestRegistry_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewMockRepository()
	a := testDevice("sonos", "a", "A")
	repo.addDevice(a)
	reg := NewRegistry(repo)
	if err := reg.RefreshCache(ctx); err != nil {
		t.Fatalf("RefreshCache() error = %v", err)
	}

	got, _ := reg.Get(ctx, a.ID)
	got.Specs.Capabilities["play"] = false

	again, _ := reg.Get(ctx, a.ID)
	if !again.Specs.Capabilities["play"] {
		t.Error("mutating a returned device changed the cache")
	}
}

func TestRegistry_ListOrdering(t *testing.T) {
	ctx := context.Background()
	repo := NewMockRepository()
	for _, name := range []string{"Zed", "Alpha", "Mid"} {
		repo.addDevice(testDevice("sonos", name, name))
	}
	reg := NewRegistry(repo)
	if err := reg.RefreshCache(ctx); err != nil {
		t.Fatalf("RefreshCache() error = %v", err)
	}

	devices, err := reg.ListByType(ctx, TypeSpeaker)
	if err != nil {
		t.Fatalf("ListByType() error = %v", err)
	}
	want := []string{"Alpha", "Mid", "Zed"}
	for i, d := range devices {
		if d.Name != want[i] {
			t.Errorf("devices[%d] = %q, want %q", i, d.Name, want[i])
		}
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(NewMockRepository())
	if err := reg.RefreshCache(ctx); err != nil {
		t.Fatalf("RefreshCache() error = %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d := testDevice("sonos", string(rune('a'+i)), "dev")
			if err := reg.Create(ctx, d); err != nil {
				t.Errorf("Create() error = %v", err)
				return
			}
			_, _ = reg.Get(ctx, d.ID)
			_, _ = reg.ListAll(ctx)
		}(i)
	}
	wg.Wait()

	if reg.GetDeviceCount() != 20 {
		t.Errorf("GetDeviceCount() = %d, want 20", reg.GetDeviceCount())
	}
}
