package discovery

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/gray-logic-hub/internal/device"
	"github.com/nerrad567/gray-logic-hub/internal/driver"
	"github.com/nerrad567/gray-logic-hub/internal/event"
	"github.com/nerrad567/gray-logic-hub/internal/fault"
)

// EventName is the name of the event recorded after every sweep.
const EventName = "discovery"

// Logger defines the logging interface used by the Engine.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Recorder is the slice of the event pipeline the engine uses.
type Recorder interface {
	Record(ctx context.Context, ev event.Event) error
}

// Summary counts what one sweep changed. It is the discovery event value.
type Summary struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Deleted int `json:"deleted"`
}

// Engine reconciles the persisted inventory with what drivers report.
type Engine struct {
	drivers *driver.Registry
	devices device.Repository
	events  Recorder
	locks   *keyedMutex
	logger  Logger
}

// NewEngine creates a reconciliation engine. events may be nil.
func NewEngine(drivers *driver.Registry, devices device.Repository, events Recorder) *Engine {
	return &Engine{
		drivers: drivers,
		devices: devices,
		events:  events,
		locks:   newKeyedMutex(),
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the engine.
func (e *Engine) SetLogger(logger Logger) {
	e.logger = logger
}

// Discover runs one sweep of driverID and returns the devices it owns
// afterwards.
//
// Persisted devices the driver still reports are updated, ones it no
// longer reports are deleted, and new ones are created, in that order.
// Sweeps of the same driver are serialised.
func (e *Engine) Discover(ctx context.Context, driverID string, deviceType device.Type) ([]device.Device, error) {
	h, ok := e.drivers.Get(driverID)
	if !ok {
		return nil, fault.New(fault.NotFound, "driver not found")
	}
	if h.DeviceType != deviceType {
		return nil, &fault.Error{
			Kind:     fault.NotFound,
			Message:  fmt.Sprintf("driver does not handle %s devices", deviceType),
			DriverID: driverID,
		}
	}

	unlock, err := e.locks.Lock(ctx, driverID)
	if err != nil {
		return nil, fault.Classify(err)
	}
	defer unlock()

	final, summary, err := e.sweep(ctx, h)
	if err != nil {
		e.logger.Warn("discovery failed", "driver_id", driverID, "error", err)
		return nil, fault.WithDriver(err, driverID)
	}

	e.logger.Info("discovery complete",
		"driver_id", driverID, "device_type", deviceType,
		"created", summary.Created, "updated", summary.Updated, "deleted", summary.Deleted)
	e.record(ctx, h, summary)
	return final, nil
}

func (e *Engine) sweep(ctx context.Context, h *driver.Handle) ([]device.Device, Summary, error) {
	timeout := e.drivers.CallTimeout()

	candidates, err := driver.Call(ctx, timeout, h.ID, h.Driver.Discover)
	if err != nil {
		return nil, Summary{}, err
	}

	persisted, err := e.devices.ListByTypeAndDriver(ctx, h.DeviceType, h.ID)
	if err != nil {
		return nil, Summary{}, err
	}

	plan, err := e.diff(h, candidates, persisted)
	if err != nil {
		return nil, Summary{}, err
	}
	if err := e.apply(ctx, plan); err != nil {
		return nil, Summary{}, err
	}

	final, err := e.devices.ListByTypeAndDriver(ctx, h.DeviceType, h.ID)
	if err != nil {
		return nil, Summary{}, err
	}
	_, err = driver.Call(ctx, timeout, h.ID, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, h.Driver.InitDevices(ctx, final)
	})
	if err != nil {
		return nil, Summary{}, err
	}

	return final, Summary{
		Created: len(plan.create),
		Updated: len(plan.update),
		Deleted: len(plan.delete),
	}, nil
}

// plan is the partition of one sweep.
type plan struct {
	update []device.Device
	delete []string
	create []device.Device
}

// diff partitions candidates and persisted devices by derived ID. When a
// sweep reports the same local ID twice the last candidate wins.
func (e *Engine) diff(h *driver.Handle, candidates []driver.Candidate, persisted []device.Device) (plan, error) {
	byID := make(map[string]device.Device, len(candidates))
	order := make([]string, 0, len(candidates))

	for _, c := range candidates {
		if c.LocalID == "" {
			return plan{}, fault.DriverFault(h.ID, nil, "discovered a device without a local id")
		}
		d := fromCandidate(h, c)
		if _, dup := byID[d.ID]; dup {
			e.logger.Warn("duplicate local id in discovery, keeping the last one",
				"driver_id", h.ID, "local_id", c.LocalID)
		} else {
			order = append(order, d.ID)
		}
		byID[d.ID] = d
	}

	var p plan
	existing := make(map[string]device.Device, len(persisted))
	for _, d := range persisted {
		existing[d.ID] = d
		if _, reported := byID[d.ID]; !reported {
			p.delete = append(p.delete, d.ID)
		}
	}

	for _, id := range order {
		d := byID[id]
		if old, ok := existing[id]; ok {
			d.CreatedAt = old.CreatedAt
			p.update = append(p.update, d)
		} else {
			p.create = append(p.create, d)
		}
	}
	return p, nil
}

func fromCandidate(h *driver.Handle, c driver.Candidate) device.Device {
	caps := c.Capabilities
	if caps == nil {
		caps = map[string]bool{}
	}
	d := device.Device{
		ID:       device.GenerateID(h.DeviceType, h.ID, c.LocalID),
		Type:     h.DeviceType,
		DriverID: h.ID,
		LocalID:  c.LocalID,
		Name:     c.Name,
		Address:  c.Address,
		Specs: device.Specs{
			Capabilities:   caps,
			AdditionalInfo: c.AdditionalInfo,
			Attributes:     c.Specs,
		},
	}
	return *d.DeepCopy()
}

// apply runs the three phases. Operations within a phase run
// concurrently; a phase always waits for all of its operations and the
// first error stops the later phases.
func (e *Engine) apply(ctx context.Context, p plan) error {
	var updates errgroup.Group
	for i := range p.update {
		d := &p.update[i]
		updates.Go(func() error { return e.devices.Update(ctx, d) })
	}
	if err := updates.Wait(); err != nil {
		return err
	}

	if len(p.delete) > 0 {
		if err := e.devices.DeleteMany(ctx, p.delete); err != nil {
			return err
		}
	}

	var creates errgroup.Group
	for i := range p.create {
		d := &p.create[i]
		creates.Go(func() error { return e.devices.Create(ctx, d) })
	}
	return creates.Wait()
}

func (e *Engine) record(ctx context.Context, h *driver.Handle, s Summary) {
	if e.events == nil {
		return
	}
	value, err := json.Marshal(s)
	if err != nil {
		return
	}
	err = e.events.Record(ctx, event.Event{
		Type:       event.TypeDiscovery,
		DriverType: string(h.DeviceType),
		DriverID:   h.ID,
		Name:       EventName,
		Value:      value,
	})
	if err != nil {
		e.logger.Warn("recording discovery event failed", "driver_id", h.ID, "error", err)
	}
}
