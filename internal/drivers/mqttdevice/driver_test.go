package mqttdevice

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/nerrad567/gray-logic-hub/internal/device"
	"github.com/nerrad567/gray-logic-hub/internal/driver"
	"github.com/nerrad567/gray-logic-hub/internal/fault"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/mqtt"
)

// fakeBroker delivers messages straight to the subscribed handlers.
type fakeBroker struct {
	mu         sync.Mutex
	handlers   map[string]mqtt.MessageHandler
	published  []published
	publishErr error
}

type published struct {
	topic string
	msg   CommandMessage
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{handlers: make(map[string]mqtt.MessageHandler)}
}

func (b *fakeBroker) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = handler
	return nil
}

func (b *fakeBroker) PublishJSON(topic string, v any, _ bool) error {
	if b.publishErr != nil {
		return b.publishErr
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, published{topic: topic, msg: v.(CommandMessage)})
	return nil
}

// deliver routes a message to the handler whose wildcard matches.
func (b *fakeBroker) deliver(t *testing.T, topic string, payload string) error {
	t.Helper()
	b.mu.Lock()
	var handler mqtt.MessageHandler
	for pattern, h := range b.handlers {
		prefix := strings.TrimSuffix(pattern, "+")
		if strings.HasPrefix(topic, prefix) && !strings.Contains(topic[len(prefix):], "/") {
			handler = h
		}
	}
	b.mu.Unlock()
	if handler == nil {
		t.Fatalf("no subscription matches %s", topic)
	}
	return handler(topic, []byte(payload))
}

type emitted struct {
	localID, name string
	value         any
}

type memStore struct {
	mu   sync.Mutex
	data map[string]map[string]any
}

func (m *memStore) Get(_ context.Context, id string) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]any{}
	for k, v := range m.data[id] {
		out[k] = v
	}
	return out, nil
}

func (m *memStore) Set(_ context.Context, id string, s map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = map[string]map[string]any{}
	}
	m.data[id] = s
	return nil
}

type harness struct {
	drv     *Driver
	broker  *fakeBroker
	store   *memStore
	emitted []emitted
}

func newHarness(t *testing.T, deviceType device.Type, options map[string]any) *harness {
	t.Helper()
	h := &harness{broker: newFakeBroker(), store: &memStore{}}
	drv, err := New(driver.Deps{
		DriverID:   "mqtt-light",
		DeviceType: deviceType,
		Settings:   driver.NewSettings(h.store, "mqtt-light"),
		Interface:  h.broker,
		Options:    options,
		Emit: func(_ context.Context, localID, name string, value any) error {
			h.emitted = append(h.emitted, emitted{localID, name, value})
			return nil
		},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	h.drv = drv.(*Driver)
	return h
}

func lamp(localID string) device.Device {
	return device.Device{LocalID: localID, DriverID: "mqtt-light", Type: device.TypeLight}
}

func TestNew_Errors(t *testing.T) {
	tests := []struct {
		name    string
		deps    driver.Deps
		wantErr string
	}{
		{"not a broker", driver.Deps{DeviceType: device.TypeLight, Interface: "http"}, "not an MQTT broker"},
		{"no profile", driver.Deps{DeviceType: device.TypeThermostat, Interface: newFakeBroker()}, "no command table"},
		{"bad commands option", driver.Deps{
			DeviceType: device.TypeLight,
			Interface:  newFakeBroker(),
			Options:    map[string]any{"commands": []any{"on"}},
		}, "must be a map"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.deps)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("New() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestDiscover_FollowsAnnouncements(t *testing.T) {
	h := newHarness(t, device.TypeLight, nil)
	topics := mqtt.Topics{}
	ctx := context.Background()

	if err := h.broker.deliver(t, topics.DeviceAnnounce("mqtt-light", "lamp-2"), `{"name":"Porch","capabilities":{"on":true,"off":true}}`); err != nil {
		t.Fatal(err)
	}
	if err := h.broker.deliver(t, topics.DeviceAnnounce("mqtt-light", "lamp-1"), `{"address":"10.0.0.9"}`); err != nil {
		t.Fatal(err)
	}

	got, err := h.drv.Discover(ctx)
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if len(got) != 2 || got[0].LocalID != "lamp-1" || got[1].LocalID != "lamp-2" {
		t.Fatalf("Discover() = %+v", got)
	}
	if got[0].Name != "lamp-1" {
		t.Errorf("unnamed device name = %q, want its local id", got[0].Name)
	}
	if !got[0].Capabilities["setBrightness"] {
		t.Errorf("default capabilities = %v", got[0].Capabilities)
	}
	if _, declared := got[1].Capabilities["setBrightness"]; declared {
		t.Error("announced capabilities were not used")
	}

	count, ok, _ := driver.NewSettings(h.store, "mqtt-light").Get(ctx, SettingAnnounced)
	if !ok || count != 2 {
		t.Errorf("announced setting = %v, %v", count, ok)
	}

	// An empty retained message withdraws the device.
	if err := h.broker.deliver(t, topics.DeviceAnnounce("mqtt-light", "lamp-2"), ""); err != nil {
		t.Fatal(err)
	}
	got, _ = h.drv.Discover(ctx)
	if len(got) != 1 {
		t.Errorf("after withdrawal Discover() = %+v", got)
	}

	if err := h.broker.deliver(t, topics.DeviceAnnounce("mqtt-light", "lamp-3"), "{"); err == nil {
		t.Error("malformed announcement accepted")
	}
}

func TestCommands_PublishAndReturnState(t *testing.T) {
	h := newHarness(t, device.TypeLight, nil)
	ctx := context.Background()
	cmds := h.drv.Commands()

	for _, name := range []string{"on", "off", "setBrightness", "getState"} {
		if cmds[name] == nil {
			t.Fatalf("missing handler %q", name)
		}
	}

	got, err := cmds["setBrightness"](ctx, lamp("lamp-1"), json.RawMessage(`{"brightness":40}`))
	if err != nil {
		t.Fatalf("setBrightness error = %v", err)
	}
	state := got.(map[string]any)
	if state["on"] != true || state["brightness"] != float64(40) {
		t.Errorf("setBrightness state = %v", state)
	}

	if len(h.broker.published) != 1 {
		t.Fatalf("published %d messages, want 1", len(h.broker.published))
	}
	p := h.broker.published[0]
	if p.topic != "grayhub/command/mqtt-light/lamp-1/setBrightness" || p.msg.Command != "setBrightness" {
		t.Errorf("published %+v", p)
	}

	if _, err := cmds["off"](ctx, lamp("lamp-1"), nil); err != nil {
		t.Fatalf("off error = %v", err)
	}
	read, _ := cmds["getState"](ctx, lamp("lamp-1"), nil)
	if s := read.(map[string]any); s["on"] != false || s["brightness"] != float64(40) {
		t.Errorf("getState = %v", s)
	}
	if len(h.broker.published) != 2 {
		t.Errorf("getState published a message")
	}

	fresh, _ := cmds["getState"](ctx, lamp("lamp-9"), nil)
	if s := fresh.(map[string]any); s["on"] != false {
		t.Errorf("initial state = %v", s)
	}
}

func TestCommands_PatchOverridesBody(t *testing.T) {
	h := newHarness(t, device.TypeLight, nil)

	got, err := h.drv.Commands()["on"](context.Background(), lamp("lamp-1"), json.RawMessage(`{"on":false,"brightness":10}`))
	if err != nil {
		t.Fatalf("on error = %v", err)
	}
	state := got.(map[string]any)
	if state["on"] != true || state["brightness"] != float64(10) {
		t.Errorf("on state = %v, want on=true with the body's other fields", state)
	}
	if published := h.broker.published[0].msg.State; published["on"] != true {
		t.Errorf("published state = %v", published)
	}
}

func TestCommands_Failures(t *testing.T) {
	h := newHarness(t, device.TypeLight, nil)
	ctx := context.Background()

	if _, err := h.drv.Commands()["setBrightness"](ctx, lamp("lamp-1"), json.RawMessage(`[1]`)); fault.KindOf(err) != fault.BadRequest {
		t.Errorf("non-object body error = %v", err)
	}

	h.broker.publishErr = errors.New("not connected")
	if _, err := h.drv.Commands()["on"](ctx, lamp("lamp-1"), nil); fault.KindOf(err) != fault.Connection {
		t.Errorf("publish failure error = %v", err)
	}
}

func TestReports_EmitForKnownDevices(t *testing.T) {
	h := newHarness(t, device.TypeLight, nil)
	ctx := context.Background()
	report := mqtt.Topics{}.DeviceReport("mqtt-light", "lamp-1")

	if err := h.broker.deliver(t, report, `{"value":{"on":true}}`); err != nil {
		t.Fatal(err)
	}
	if len(h.emitted) != 0 {
		t.Fatal("report from an unknown device was emitted")
	}

	if err := h.drv.InitDevices(ctx, []device.Device{lamp("lamp-1")}); err != nil {
		t.Fatal(err)
	}
	if err := h.broker.deliver(t, report, `{"value":{"on":true,"brightness":70}}`); err != nil {
		t.Fatal(err)
	}
	if len(h.emitted) != 1 || h.emitted[0].name != "stateChanged" || h.emitted[0].localID != "lamp-1" {
		t.Fatalf("emitted = %+v", h.emitted)
	}

	state, _ := h.drv.Commands()["getState"](ctx, lamp("lamp-1"), nil)
	if s := state.(map[string]any); s["brightness"] != float64(70) {
		t.Errorf("report did not update state: %v", s)
	}
}

func TestLoadProfile_Options(t *testing.T) {
	p, err := loadProfile(device.TypeThermostat, map[string]any{
		"commands":      map[string]any{"setTarget": map[string]any{"mode": "heat"}, "getState": nil},
		"initial_state": map[string]any{"target": 20},
		"state_event":   "temperature",
	})
	if err != nil {
		t.Fatalf("loadProfile() error = %v", err)
	}
	if !p.commands["getState"].read || p.commands["setTarget"].patch["mode"] != "heat" {
		t.Errorf("commands = %+v", p.commands)
	}
	if p.initial["target"] != 20 || p.stateEvent != "temperature" {
		t.Errorf("profile = %+v", p)
	}
}
