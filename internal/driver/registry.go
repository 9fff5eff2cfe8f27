package driver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/catalog"
	"github.com/nerrad567/gray-logic-hub/internal/device"
	"github.com/nerrad567/gray-logic-hub/internal/event"
	"github.com/nerrad567/gray-logic-hub/internal/fault"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/logging"
)

// Handle is a loaded plugin. It is immutable once Load returns.
type Handle struct {
	ID         string
	DeviceType device.Type
	Interface  string
	Driver     Driver
	Commands   map[string]CommandHandler
}

// Failure records a plugin that could not be loaded or seeded.
type Failure struct {
	DriverID string `json:"driver_id"`
	Stage    string `json:"stage"`
	Error    string `json:"error"`
}

// Load stages.
const (
	StageRegister = "register"
	StageFactory  = "factory"
	StageValidate = "validate"
	StageInit     = "init"
)

// EventEmitter is the slice of the event pipeline drivers are bound to.
type EventEmitter interface {
	Emit(ctx context.Context, deviceType, driverID, deviceID, name string, value any) error
}

// Services are the hub components Load wires into every plugin.
type Services struct {
	Catalog  *catalog.Catalog
	Devices  device.Repository
	Settings SettingsStore
	Events   EventEmitter
	Bus      *event.Bus
	Logger   Logger

	// CallTimeout bounds every plugin call.
	CallTimeout time.Duration

	// Enabled filters registrations by driver ID. Nil loads everything.
	Enabled func(driverID string) bool

	// Options holds per-driver configuration keyed by driver ID.
	Options map[string]map[string]any
}

// Registry holds the loaded plugins. It is read-only after Load and safe
// for concurrent use.
type Registry struct {
	handles  map[string]*Handle
	seen     map[string]bool
	failures []Failure
	devices  device.Repository
	timeout  time.Duration
	logger   Logger
}

// Load instantiates every registration, validates it against the plugin
// contract and hands it its persisted devices. A plugin that fails is
// logged and recorded in Failures; the others still load.
func Load(ctx context.Context, regs []Registration, interfaces Interfaces, svc Services) *Registry {
	logger := svc.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	r := &Registry{
		handles: make(map[string]*Handle, len(regs)),
		seen:    make(map[string]bool, len(regs)),
		devices: svc.Devices,
		timeout: svc.CallTimeout,
		logger:  logger,
	}

	for _, reg := range regs {
		if svc.Enabled != nil && !svc.Enabled(reg.ID) {
			logger.Info("driver disabled by configuration", "driver_id", reg.ID)
			continue
		}

		h, stage, err := r.instantiate(reg, interfaces, svc)
		if err != nil {
			r.fail(reg.ID, stage, err)
			continue
		}
		r.handles[h.ID] = h

		if err := r.seed(ctx, h); err != nil {
			r.fail(h.ID, StageInit, err)
		}
		logger.Info("driver loaded",
			"driver_id", h.ID, "device_type", h.DeviceType, "interface", h.Interface, "commands", len(h.Commands))
	}
	return r
}

func (r *Registry) fail(driverID, stage string, err error) {
	r.logger.Error("driver failed to load", "driver_id", driverID, "stage", stage, "error", err)
	r.failures = append(r.failures, Failure{DriverID: driverID, Stage: stage, Error: err.Error()})
}

func (r *Registry) instantiate(reg Registration, interfaces Interfaces, svc Services) (*Handle, string, error) {
	if err := r.validateRegistration(reg); err != nil {
		return nil, StageRegister, err
	}

	iface, ok := interfaces.Interface(reg.Interface)
	if !ok {
		return nil, StageRegister, fault.DriverFault(reg.ID, nil,
			fmt.Sprintf("interface %q is not available", reg.Interface))
	}

	deps := Deps{
		DriverID:   reg.ID,
		DeviceType: reg.DeviceType,
		Settings:   NewSettings(svc.Settings, reg.ID),
		Interface:  iface,
		Options:    svc.Options[reg.ID],
		Events:     svc.Catalog.Events(string(reg.DeviceType)),
		Emit:       bindEmitter(svc.Events, reg),
		Bus:        svc.Bus,
		Logger:     loggerFor(svc.Logger, reg.ID),
	}

	drv, err := construct(reg, deps)
	if err != nil {
		return nil, StageFactory, err
	}

	commands, err := validateDriver(svc.Catalog, reg, drv)
	if err != nil {
		return nil, StageValidate, err
	}

	return &Handle{
		ID:         reg.ID,
		DeviceType: reg.DeviceType,
		Interface:  reg.Interface,
		Driver:     drv,
		Commands:   commands,
	}, "", nil
}

// validateRegistration also claims reg.ID, so a later registration with
// the same id is rejected even when this one fails to load.
func (r *Registry) validateRegistration(reg Registration) error {
	if reg.ID == "" {
		return fault.DriverFault("", nil, "registration has no id")
	}
	if r.seen[reg.ID] {
		return fault.DriverFault(reg.ID, nil, "driver id registered twice")
	}
	r.seen[reg.ID] = true

	switch {
	case !device.ValidType(string(reg.DeviceType)):
		return fault.DriverFault(reg.ID, nil, fmt.Sprintf("unknown device type %q", reg.DeviceType))
	case reg.Factory == nil:
		return fault.DriverFault(reg.ID, nil, "registration has no factory")
	}
	return nil
}

// construct calls the factory, converting a panic into an error.
func construct(reg Registration, deps Deps) (drv Driver, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			drv = nil
			err = fault.DriverFault(reg.ID, nil, fmt.Sprintf("factory panicked: %v", rec))
		}
	}()

	drv, err = reg.Factory(deps)
	if err != nil {
		return nil, fault.DriverFault(reg.ID, err, "factory failed")
	}
	if drv == nil {
		return nil, fault.DriverFault(reg.ID, nil, "factory returned no driver")
	}
	return drv, nil
}

// guard runs a synchronous plugin method, converting a panic into a
// Driver error.
func guard[T any](driverID, method string, fn func() T) (out T, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fault.DriverFault(driverID, nil, fmt.Sprintf("%s panicked: %v", method, rec))
		}
	}()
	return fn(), nil
}

// validateDriver checks the driver's dispatch table against the catalog
// and returns a private copy of it.
func validateDriver(cat *catalog.Catalog, reg Registration, drv Driver) (map[string]CommandHandler, error) {
	declared, err := guard(reg.ID, "Commands", drv.Commands)
	if err != nil {
		return nil, err
	}
	commands := make(map[string]CommandHandler, len(declared))

	names := make([]string, 0, len(declared))
	for name := range declared {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		cmd, ok := cat.Command(string(reg.DeviceType), name)
		if !ok {
			return nil, fault.DriverFault(reg.ID, nil,
				fmt.Sprintf("command %q is not in the catalog for %s", name, reg.DeviceType))
		}
		if cmd.Response == nil {
			return nil, fault.DriverFault(reg.ID, nil,
				fmt.Sprintf("catalog command %s.%s has no response schema", reg.DeviceType, name))
		}
		if declared[name] == nil {
			return nil, fault.DriverFault(reg.ID, nil, fmt.Sprintf("command %q has no handler", name))
		}
		commands[name] = declared[name]
	}
	return commands, nil
}

func bindEmitter(events EventEmitter, reg Registration) Emitter {
	return func(ctx context.Context, localID, name string, value any) error {
		if events == nil {
			return errors.New("event pipeline not configured")
		}
		deviceID := device.GenerateID(reg.DeviceType, reg.ID, localID)
		return events.Emit(ctx, string(reg.DeviceType), reg.ID, deviceID, name, value)
	}
}

func loggerFor(base Logger, driverID string) Logger {
	switch l := base.(type) {
	case nil:
		return noopLogger{}
	case *logging.Logger:
		return l.With("driver_id", driverID)
	default:
		return driverLogger{base: base, driverID: driverID}
	}
}

// driverLogger prefixes every record with the driver ID.
type driverLogger struct {
	base     Logger
	driverID string
}

func (l driverLogger) Debug(msg string, args ...any) { l.base.Debug(msg, l.with(args)...) }
func (l driverLogger) Info(msg string, args ...any)  { l.base.Info(msg, l.with(args)...) }
func (l driverLogger) Warn(msg string, args ...any)  { l.base.Warn(msg, l.with(args)...) }
func (l driverLogger) Error(msg string, args ...any) { l.base.Error(msg, l.with(args)...) }

func (l driverLogger) with(args []any) []any {
	return append([]any{"driver_id", l.driverID}, args...)
}

// seed hands a freshly loaded driver the devices already persisted for it.
func (r *Registry) seed(ctx context.Context, h *Handle) error {
	if r.devices == nil {
		return nil
	}
	devices, err := r.devices.ListByTypeAndDriver(ctx, h.DeviceType, h.ID)
	if err != nil {
		return fmt.Errorf("loading persisted devices: %w", err)
	}
	_, err = Call(ctx, r.timeout, h.ID, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, h.Driver.InitDevices(ctx, devices)
	})
	return err
}

// Exists reports whether driverID is loaded.
func (r *Registry) Exists(driverID string) bool {
	_, ok := r.handles[driverID]
	return ok
}

// Get returns the handle for driverID.
func (r *Registry) Get(driverID string) (*Handle, bool) {
	h, ok := r.handles[driverID]
	return h, ok
}

// List returns the loaded handles sorted by ID.
func (r *Registry) List() []*Handle {
	handles := make([]*Handle, 0, len(r.handles))
	for _, h := range r.handles {
		handles = append(handles, h)
	}
	sort.Slice(handles, func(i, j int) bool { return handles[i].ID < handles[j].ID })
	return handles
}

// Failures returns the plugins that failed during Load.
func (r *Registry) Failures() []Failure {
	out := make([]Failure, len(r.failures))
	copy(out, r.failures)
	return out
}

// CallTimeout is the limit applied to every plugin call.
func (r *Registry) CallTimeout() time.Duration {
	return r.timeout
}

// Stats summarises one loaded driver.
type Stats struct {
	DriverID       string      `json:"driver_id"`
	DeviceType     device.Type `json:"device_type"`
	Interface      string      `json:"interface"`
	Devices        int         `json:"devices"`
	Commands       []string    `json:"commands"`
	Authentication bool        `json:"authentication"`
}

// WithStats returns every loaded driver with its device count.
func (r *Registry) WithStats(ctx context.Context) ([]Stats, error) {
	handles := r.List()
	stats := make([]Stats, 0, len(handles))
	for _, h := range handles {
		count := 0
		if r.devices != nil {
			n, err := r.devices.CountByDriver(ctx, h.ID)
			if err != nil {
				return nil, fault.Wrap(fault.Internal, err, "counting devices")
			}
			count = n
		}

		commands := make([]string, 0, len(h.Commands))
		for name := range h.Commands {
			commands = append(commands, name)
		}
		sort.Strings(commands)

		_, auth := h.Driver.(Authenticator)
		stats = append(stats, Stats{
			DriverID:       h.ID,
			DeviceType:     h.DeviceType,
			Interface:      h.Interface,
			Devices:        count,
			Commands:       commands,
			Authentication: auth,
		})
	}
	return stats, nil
}

func (r *Registry) authenticator(driverID string) (Authenticator, error) {
	h, ok := r.Get(driverID)
	if !ok {
		return nil, fault.New(fault.NotFound, "driver not found")
	}
	auth, ok := h.Driver.(Authenticator)
	if !ok {
		return nil, &fault.Error{Kind: fault.NotFound, Message: "driver does not support authentication", DriverID: driverID}
	}
	return auth, nil
}

// AuthenticationProcess returns the driver's authentication steps.
func (r *Registry) AuthenticationProcess(driverID string) ([]AuthStep, error) {
	auth, err := r.authenticator(driverID)
	if err != nil {
		return nil, err
	}
	steps, err := guard(driverID, "AuthenticationProcess", auth.AuthenticationProcess)
	if err != nil {
		return nil, err
	}
	if steps == nil {
		steps = []AuthStep{}
	}
	return steps, nil
}

// AuthenticationStep runs one step of the driver's authentication flow.
// A step the driver did not declare is a BadRequest; a step the driver
// rejects is an Authentication error carrying the driver's message.
func (r *Registry) AuthenticationStep(ctx context.Context, driverID string, step int, body json.RawMessage) (AuthResult, error) {
	auth, err := r.authenticator(driverID)
	if err != nil {
		return AuthResult{}, err
	}

	steps, err := guard(driverID, "AuthenticationProcess", auth.AuthenticationProcess)
	if err != nil {
		return AuthResult{}, err
	}
	declared := false
	for _, s := range steps {
		if s.Step == step {
			declared = true
			break
		}
	}
	if !declared {
		return AuthResult{}, fault.New(fault.BadRequest, fmt.Sprintf("authentication step %d does not exist", step))
	}

	result, err := Call(ctx, r.timeout, driverID, func(ctx context.Context) (AuthResult, error) {
		return auth.AuthenticationStep(ctx, step, body)
	})
	if err != nil {
		return AuthResult{}, err
	}
	if !result.Success {
		msg := result.Message
		if msg == "" {
			msg = "authentication failed"
		}
		return result, &fault.Error{Kind: fault.Authentication, Message: msg, DriverID: driverID}
	}
	return result, nil
}
