package mqttdevice

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/nerrad567/gray-logic-hub/internal/device"
	"github.com/nerrad567/gray-logic-hub/internal/driver"
	"github.com/nerrad567/gray-logic-hub/internal/fault"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/mqtt"
)

// SettingAnnounced is the settings key holding the number of devices seen
// by the last Discover.
const SettingAnnounced = "announced"

// Broker is the slice of the MQTT client the driver uses. *mqtt.Client
// implements it.
type Broker interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	PublishJSON(topic string, v any, retained bool) error
}

// Announcement is the retained message a device publishes on
// grayhub/announce/{driverId}/{localId}.
type Announcement struct {
	Name         string          `json:"name"`
	Address      string          `json:"address,omitempty"`
	Capabilities map[string]bool `json:"capabilities,omitempty"`
	Info         map[string]any  `json:"info,omitempty"`
}

// Report is an unsolicited message on grayhub/report/{driverId}/{localId}.
// Event defaults to the device type's state event.
type Report struct {
	Event string          `json:"event,omitempty"`
	Value json.RawMessage `json:"value"`
}

// CommandMessage is published on grayhub/command/{driverId}/{localId}/{command}.
type CommandMessage struct {
	Command string          `json:"command"`
	Body    json.RawMessage `json:"body,omitempty"`
	State   map[string]any  `json:"state"`
}

// Driver is a generic driver for devices that speak the hub's MQTT
// conventions directly.
type Driver struct {
	id         string
	deviceType device.Type
	broker     Broker
	settings   *driver.Settings
	emit       driver.Emitter
	logger     driver.Logger
	profile    profile

	mu        sync.RWMutex
	announced map[string]Announcement
	state     map[string]map[string]any
	known     map[string]bool
}

// Registration returns the registration for an MQTT driver of deviceType
// under id.
func Registration(id string, deviceType device.Type) driver.Registration {
	return driver.Registration{
		ID:         id,
		DeviceType: deviceType,
		Interface:  driver.InterfaceMQTT,
		Factory:    New,
	}
}

// New is the driver factory. It subscribes to the driver's announce and
// report topics.
func New(deps driver.Deps) (driver.Driver, error) {
	broker, ok := deps.Interface.(Broker)
	if !ok || broker == nil {
		return nil, fmt.Errorf("interface %T is not an MQTT broker", deps.Interface)
	}

	prof, err := loadProfile(deps.DeviceType, deps.Options)
	if err != nil {
		return nil, err
	}

	d := &Driver{
		id:         deps.DriverID,
		deviceType: deps.DeviceType,
		broker:     broker,
		settings:   deps.Settings,
		emit:       deps.Emit,
		logger:     deps.Logger,
		profile:    prof,
		announced:  make(map[string]Announcement),
		state:      make(map[string]map[string]any),
		known:      make(map[string]bool),
	}
	if d.logger == nil {
		d.logger = nopLogger{}
	}

	topics := mqtt.Topics{}
	if err := broker.Subscribe(topics.DriverAnnouncements(d.id), 1, d.handleAnnounce); err != nil {
		return nil, fmt.Errorf("subscribing to announcements: %w", err)
	}
	if err := broker.Subscribe(topics.DriverReports(d.id), 1, d.handleReport); err != nil {
		return nil, fmt.Errorf("subscribing to reports: %w", err)
	}
	return d, nil
}

// Discover returns the devices that currently have an announcement.
func (d *Driver) Discover(ctx context.Context) ([]driver.Candidate, error) {
	d.mu.RLock()
	candidates := make([]driver.Candidate, 0, len(d.announced))
	for localID, a := range d.announced {
		caps := a.Capabilities
		if caps == nil {
			caps = d.profile.capabilities()
		}
		candidates = append(candidates, driver.Candidate{
			LocalID:        localID,
			Name:           a.Name,
			Address:        a.Address,
			Capabilities:   copyCaps(caps),
			AdditionalInfo: a.Info,
		})
	}
	d.mu.RUnlock()

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].LocalID < candidates[j].LocalID })

	if d.settings != nil {
		if err := d.settings.Set(ctx, SettingAnnounced, len(candidates)); err != nil {
			d.logger.Warn("saving announcement count failed", "error", err)
		}
	}
	return candidates, nil
}

// InitDevices records which devices the hub knows about. Reports from
// unknown devices are dropped.
func (d *Driver) InitDevices(_ context.Context, devices []device.Device) error {
	known := make(map[string]bool, len(devices))
	for _, dev := range devices {
		known[dev.LocalID] = true
	}

	d.mu.Lock()
	d.known = known
	for localID := range d.state {
		if !known[localID] {
			delete(d.state, localID)
		}
	}
	d.mu.Unlock()
	return nil
}

// Commands returns a handler for every command in the driver's profile.
func (d *Driver) Commands() map[string]driver.CommandHandler {
	handlers := make(map[string]driver.CommandHandler, len(d.profile.commands))
	for name, spec := range d.profile.commands {
		handlers[name] = d.commandHandler(name, spec)
	}
	return handlers
}

func (d *Driver) commandHandler(name string, spec commandSpec) driver.CommandHandler {
	return func(_ context.Context, dev device.Device, body json.RawMessage) (any, error) {
		if spec.read {
			return d.currentState(dev.LocalID), nil
		}

		var params map[string]any
		if len(body) > 0 && string(body) != "null" {
			if err := json.Unmarshal(body, &params); err != nil {
				return nil, fault.Wrap(fault.BadRequest, err, "command body must be a JSON object")
			}
		}

		d.mu.Lock()
		next := merge(d.stateLocked(dev.LocalID), params, spec.patch)
		d.state[dev.LocalID] = next
		d.mu.Unlock()

		msg := CommandMessage{Command: name, Body: body, State: next}
		if err := d.broker.PublishJSON(mqtt.Topics{}.DeviceCommand(d.id, dev.LocalID, name), msg, false); err != nil {
			return nil, fault.Wrap(fault.Connection, err, "publishing command")
		}
		return copyState(next), nil
	}
}

func (d *Driver) handleAnnounce(topic string, payload []byte) error {
	_, localID, ok := mqtt.ParseDeviceTopic(topic)
	if !ok {
		return fmt.Errorf("unexpected announce topic %q", topic)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	// An empty retained message withdraws the device.
	if len(payload) == 0 {
		delete(d.announced, localID)
		return nil
	}

	var a Announcement
	if err := json.Unmarshal(payload, &a); err != nil {
		return fmt.Errorf("decoding announcement for %s: %w", localID, err)
	}
	if a.Name == "" {
		a.Name = localID
	}
	d.announced[localID] = a
	return nil
}

func (d *Driver) handleReport(topic string, payload []byte) error {
	_, localID, ok := mqtt.ParseDeviceTopic(topic)
	if !ok {
		return fmt.Errorf("unexpected report topic %q", topic)
	}

	var r Report
	if err := json.Unmarshal(payload, &r); err != nil {
		return fmt.Errorf("decoding report for %s: %w", localID, err)
	}
	if r.Event == "" {
		r.Event = d.profile.stateEvent
	}

	d.mu.Lock()
	if !d.known[localID] {
		d.mu.Unlock()
		d.logger.Debug("report from unknown device dropped", "local_id", localID)
		return nil
	}
	var fields map[string]any
	if err := json.Unmarshal(r.Value, &fields); err == nil && fields != nil && r.Event == d.profile.stateEvent {
		d.state[localID] = merge(d.stateLocked(localID), fields)
	}
	d.mu.Unlock()

	if d.emit == nil {
		return nil
	}
	// Handlers run on the MQTT client's goroutines, outside any request.
	if err := d.emit(context.Background(), localID, r.Event, r.Value); err != nil {
		return fmt.Errorf("emitting %s for %s: %w", r.Event, localID, err)
	}
	return nil
}

func (d *Driver) currentState(localID string) map[string]any {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return copyState(d.stateLocked(localID))
}

// stateLocked returns the cached state or the profile's initial state.
// Callers hold d.mu.
func (d *Driver) stateLocked(localID string) map[string]any {
	if s, ok := d.state[localID]; ok {
		return s
	}
	return d.profile.initial
}

// merge overlays layers onto a copy of base.
func merge(base map[string]any, layers ...map[string]any) map[string]any {
	out := copyState(base)
	for _, layer := range layers {
		for k, v := range layer {
			out[k] = v
		}
	}
	return out
}

func copyState(s map[string]any) map[string]any {
	out := make(map[string]any, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

func copyCaps(c map[string]bool) map[string]bool {
	out := make(map[string]bool, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
