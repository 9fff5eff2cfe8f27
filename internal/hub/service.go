package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/nerrad567/gray-logic-hub/internal/catalog"
	"github.com/nerrad567/gray-logic-hub/internal/device"
	"github.com/nerrad567/gray-logic-hub/internal/driver"
	"github.com/nerrad567/gray-logic-hub/internal/event"
	"github.com/nerrad567/gray-logic-hub/internal/fault"
)

// Discoverer runs a reconciliation sweep.
type Discoverer interface {
	Discover(ctx context.Context, driverID string, deviceType device.Type) ([]device.Device, error)
}

// CommandRunner executes a device command.
type CommandRunner interface {
	Run(ctx context.Context, deviceID, command string, body json.RawMessage) (json.RawMessage, error)
}

// EventReader pages through recorded events.
type EventReader interface {
	EventsByType(ctx context.Context, eventType, fromEventID string) ([]event.Event, error)
}

// Config holds the components a Service fronts.
type Config struct {
	Catalog  *catalog.Catalog
	Devices  device.Repository
	Drivers  *driver.Registry
	Discover Discoverer
	Commands CommandRunner
	Events   EventReader
}

// Service is the transport-independent surface of the hub. Every error it
// returns is a *fault.Error.
type Service struct {
	catalog  *catalog.Catalog
	devices  device.Repository
	drivers  *driver.Registry
	discover Discoverer
	commands CommandRunner
	events   EventReader
}

// New creates a Service.
func New(cfg Config) *Service {
	return &Service{
		catalog:  cfg.Catalog,
		devices:  cfg.Devices,
		drivers:  cfg.Drivers,
		discover: cfg.Discover,
		commands: cfg.Commands,
		events:   cfg.Events,
	}
}

// Discover sweeps driverID for devices of deviceType.
func (s *Service) Discover(ctx context.Context, driverID, deviceType string) ([]device.Device, error) {
	devices, err := s.discover.Discover(ctx, driverID, device.Type(deviceType))
	if err != nil {
		return nil, classify(err)
	}
	return nonNil(devices), nil
}

// GetAllDevices returns every persisted device.
func (s *Service) GetAllDevices(ctx context.Context) ([]device.Device, error) {
	devices, err := s.devices.ListAll(ctx)
	if err != nil {
		return nil, classify(err)
	}
	return nonNil(devices), nil
}

// GetDevicesByType returns the devices of one type.
func (s *Service) GetDevicesByType(ctx context.Context, deviceType string) ([]device.Device, error) {
	if err := checkType(deviceType); err != nil {
		return nil, err
	}
	devices, err := s.devices.ListByType(ctx, device.Type(deviceType))
	if err != nil {
		return nil, classify(err)
	}
	return nonNil(devices), nil
}

// GetDevicesByTypeAndDriver returns the devices of one type owned by one
// driver.
func (s *Service) GetDevicesByTypeAndDriver(ctx context.Context, deviceType, driverID string) ([]device.Device, error) {
	if err := checkType(deviceType); err != nil {
		return nil, err
	}
	devices, err := s.devices.ListByTypeAndDriver(ctx, device.Type(deviceType), driverID)
	if err != nil {
		return nil, classify(err)
	}
	return nonNil(devices), nil
}

// GetDeviceByID returns one device.
func (s *Service) GetDeviceByID(ctx context.Context, id string) (*device.Device, error) {
	dev, err := s.devices.Get(ctx, id)
	if err != nil {
		return nil, classify(err)
	}
	return dev, nil
}

// RunCommand executes command on a device and returns its validated result.
func (s *Service) RunCommand(ctx context.Context, deviceID, command string, body json.RawMessage) (json.RawMessage, error) {
	result, err := s.commands.Run(ctx, deviceID, command, body)
	if err != nil {
		return nil, classify(err)
	}
	return result, nil
}

// DriversReport lists the loaded drivers and the ones that failed to load.
type DriversReport struct {
	Drivers  []driver.Stats   `json:"drivers"`
	Failures []driver.Failure `json:"failures"`
}

// GetDriversWithStats reports every loaded driver with its device count.
func (s *Service) GetDriversWithStats(ctx context.Context) (DriversReport, error) {
	stats, err := s.drivers.WithStats(ctx)
	if err != nil {
		return DriversReport{}, classify(err)
	}
	return DriversReport{Drivers: stats, Failures: s.drivers.Failures()}, nil
}

// GetEventsByType returns the next page of events of one type.
func (s *Service) GetEventsByType(ctx context.Context, eventType, fromEventID string) ([]event.Event, error) {
	events, err := s.events.EventsByType(ctx, eventType, fromEventID)
	if err != nil {
		return nil, classify(err)
	}
	if events == nil {
		events = []event.Event{}
	}
	return events, nil
}

// GetAuthenticationProcess returns a driver's authentication steps.
func (s *Service) GetAuthenticationProcess(driverID string) ([]driver.AuthStep, error) {
	steps, err := s.drivers.AuthenticationProcess(driverID)
	if err != nil {
		return nil, classify(err)
	}
	return steps, nil
}

// AuthenticationStep runs one authentication step. step is the step
// number as it appears in the request path.
func (s *Service) AuthenticationStep(ctx context.Context, driverID, step string, body json.RawMessage) (driver.AuthResult, error) {
	n, err := strconv.Atoi(step)
	if err != nil {
		return driver.AuthResult{}, fault.New(fault.BadRequest, fmt.Sprintf("malformed step id %q", step))
	}
	result, err := s.drivers.AuthenticationStep(ctx, driverID, n, body)
	if err != nil {
		return driver.AuthResult{}, classify(err)
	}
	return result, nil
}

// GetCatalog returns the schema catalog keyed by device type.
func (s *Service) GetCatalog() map[string]catalog.TypeDoc {
	return s.catalog.Describe()
}

// Failures returns the drivers that failed to load.
func (s *Service) Failures() []driver.Failure {
	return s.drivers.Failures()
}

func checkType(deviceType string) error {
	if !device.ValidType(deviceType) {
		return fault.New(fault.BadRequest, fmt.Sprintf("unknown device type %q", deviceType))
	}
	return nil
}

// classify maps repository sentinels onto fault kinds and leaves already
// classified errors alone.
func classify(err error) error {
	if fault.As(err) != nil {
		return err
	}
	switch {
	case errors.Is(err, device.ErrDeviceNotFound):
		return fault.New(fault.NotFound, "device not found")
	case errors.Is(err, device.ErrInvalidDevice):
		return fault.Wrap(fault.BadRequest, err, "")
	case errors.Is(err, event.ErrEventNotFound):
		return fault.New(fault.NotFound, "event not found")
	}
	return fault.Classify(err)
}

func nonNil(devices []device.Device) []device.Device {
	if devices == nil {
		return []device.Device{}
	}
	return devices
}
