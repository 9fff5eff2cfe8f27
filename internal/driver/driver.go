package driver

import (
	"context"
	"encoding/json"

	"github.com/nerrad567/gray-logic-hub/internal/catalog"
	"github.com/nerrad567/gray-logic-hub/internal/device"
	"github.com/nerrad567/gray-logic-hub/internal/event"
)

// Driver is the API every plugin implements.
type Driver interface {
	// Discover enumerates the devices the driver can currently reach.
	Discover(ctx context.Context) ([]Candidate, error)

	// InitDevices hands the driver the persisted devices it owns, after
	// loading and after every discovery sweep.
	InitDevices(ctx context.Context, devices []device.Device) error

	// Commands returns the dispatch table, keyed by catalog command name.
	Commands() map[string]CommandHandler
}

// CommandHandler runs one command against one device. body has already
// passed the catalog's request schema; the result must pass its response
// schema.
type CommandHandler func(ctx context.Context, dev device.Device, body json.RawMessage) (any, error)

// Candidate is one device reported by Discover.
type Candidate struct {
	LocalID        string          `json:"local_id"`
	Name           string          `json:"name"`
	Address        string          `json:"address,omitempty"`
	Capabilities   map[string]bool `json:"capabilities"`
	AdditionalInfo map[string]any  `json:"additional_info,omitempty"`

	// Specs holds any other attributes the driver wants persisted.
	Specs map[string]any `json:"specs,omitempty"`
}

// Authenticator is implemented by drivers that need a pairing or login
// flow before they can reach their hardware.
type Authenticator interface {
	// AuthenticationProcess describes the steps, in order.
	AuthenticationProcess() []AuthStep

	// AuthenticationStep runs one step with the caller's input.
	AuthenticationStep(ctx context.Context, step int, body json.RawMessage) (AuthResult, error)
}

// AuthStep describes one step of an authentication flow.
type AuthStep struct {
	Step        int             `json:"step"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Input       json.RawMessage `json:"input,omitempty"`
}

// AuthResult is the outcome of one authentication step.
type AuthResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// Emitter records an event for one of the driver's devices, identified
// by its local ID. The device type and driver ID are bound.
type Emitter func(ctx context.Context, localID, name string, value any) error

// Deps is everything a plugin factory receives.
type Deps struct {
	DriverID   string
	DeviceType device.Type

	// Settings is the driver's persisted key/value bag.
	Settings *Settings

	// Interface is the transport the registration asked for, e.g. the
	// shared *mqtt.Client or a *resty.Client.
	Interface any

	// Options are the driver's entries from the drivers.options config.
	Options map[string]any

	// Events are the catalog's event descriptors for DeviceType.
	Events map[string]*catalog.Event

	Emit   Emitter
	Bus    *event.Bus
	Logger Logger
}

// Factory builds a driver instance.
type Factory func(deps Deps) (Driver, error)

// Registration declares one plugin. Registrations are listed explicitly
// in main; nothing is discovered from the filesystem.
type Registration struct {
	ID         string
	DeviceType device.Type

	// Interface names the transport the driver needs ("mqtt", "http").
	Interface string

	Factory Factory
}

// Logger defines the logging interface used by this package and handed
// to plugins.
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
