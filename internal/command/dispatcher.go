package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nerrad567/gray-logic-hub/internal/catalog"
	"github.com/nerrad567/gray-logic-hub/internal/device"
	"github.com/nerrad567/gray-logic-hub/internal/driver"
	"github.com/nerrad567/gray-logic-hub/internal/fault"
)

// Error messages returned to callers.
const (
	msgDeviceNotFound  = "device not found"
	msgDriverNotFound  = "driver not found"
	msgNotFound        = "command not found"
	msgNotSupported    = "command not supported"
	msgInvalidRequest  = "the supplied json is invalid"
	msgInvalidResponse = "the driver produced invalid json"
)

// Logger defines the logging interface used by the Dispatcher.
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

// Dispatcher runs commands against devices.
type Dispatcher struct {
	catalog *catalog.Catalog
	devices device.Repository
	drivers *driver.Registry
	events  driver.EventEmitter
	logger  Logger
}

// NewDispatcher creates a dispatcher. events may be nil, in which case no
// event is raised after a command.
func NewDispatcher(cat *catalog.Catalog, devices device.Repository, drivers *driver.Registry, events driver.EventEmitter) *Dispatcher {
	return &Dispatcher{
		catalog: cat,
		devices: devices,
		drivers: drivers,
		events:  events,
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the dispatcher.
func (d *Dispatcher) SetLogger(logger Logger) {
	d.logger = logger
}

// Run executes command on deviceID with the given request body.
//
// The body is checked against the command's request schema before the
// driver sees it, and the driver's result against the response schema
// before the caller does. A valid result is raised as the command's event
// and returned.
func (d *Dispatcher) Run(ctx context.Context, deviceID, command string, body json.RawMessage) (json.RawMessage, error) {
	dev, err := d.devices.Get(ctx, deviceID)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			return nil, fault.New(fault.NotFound, msgDeviceNotFound)
		}
		return nil, fault.Wrap(fault.Internal, err, "loading device")
	}

	supported, declared := dev.Capability(command)
	if !declared {
		return nil, fault.New(fault.BadRequest, msgNotFound)
	}
	if !supported {
		return nil, fault.New(fault.BadRequest, msgNotSupported)
	}

	cmd, ok := d.catalog.Command(string(dev.Type), command)
	if !ok {
		return nil, fault.New(fault.BadRequest, msgNotFound)
	}
	if cmd.Request != nil {
		if issues := cmd.Request.Validate(body); issues != nil {
			return nil, fault.Invalid(msgInvalidRequest, issues)
		}
	}

	h, ok := d.drivers.Get(dev.DriverID)
	if !ok {
		return nil, fault.New(fault.NotFound, msgDriverNotFound)
	}
	handler := h.Commands[command]
	if handler == nil {
		return nil, fault.DriverFault(h.ID, nil,
			fmt.Sprintf("device declares %q but the driver has no handler for it", command))
	}

	snapshot := *dev.DeepCopy()
	result, err := driver.Call(ctx, d.drivers.CallTimeout(), h.ID, func(ctx context.Context) (any, error) {
		return handler(ctx, snapshot, body)
	})
	if err != nil {
		d.logger.Warn("command failed",
			"device_id", deviceID, "driver_id", h.ID, "command", command, "error", err)
		return nil, err
	}

	encoded, err := json.Marshal(result)
	if err != nil {
		return nil, fault.DriverFault(h.ID, err, "command result is not JSON encodable")
	}
	raw := json.RawMessage(encoded)
	if issues := cmd.Response.Validate(raw); issues != nil {
		d.logger.Warn("driver returned an invalid command result",
			"device_id", deviceID, "driver_id", h.ID, "command", command, "issues", len(issues))
		return nil, fault.Invalid(msgInvalidResponse, issues)
	}

	if d.events != nil {
		if err := d.events.Emit(ctx, string(dev.Type), h.ID, dev.ID, cmd.Event, raw); err != nil {
			return nil, err
		}
	}

	d.logger.Debug("command executed", "device_id", deviceID, "driver_id", h.ID, "command", command)
	return raw, nil
}
