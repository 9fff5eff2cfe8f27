package command

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/catalog"
	"github.com/nerrad567/gray-logic-hub/internal/device"
	"github.com/nerrad567/gray-logic-hub/internal/driver"
	"github.com/nerrad567/gray-logic-hub/internal/event"
	"github.com/nerrad567/gray-logic-hub/internal/fault"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-hub/migrations"
)

func setupTestDB(t *testing.T) *database.DB {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, database.Config{Path: ":memory:", BusyTimeout: 5})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup

	if err := db.Migrate(ctx, migrations.FS); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db
}

// speakerDriver answers play and setVolume; the results are scriptable.
type speakerDriver struct {
	playResult any
	playErr    error
	playDelay  time.Duration
	volumeRuns atomic.Int32
}

func (s *speakerDriver) Discover(context.Context) ([]driver.Candidate, error) { return nil, nil }

func (s *speakerDriver) InitDevices(context.Context, []device.Device) error { return nil }

func (s *speakerDriver) Commands() map[string]driver.CommandHandler {
	return map[string]driver.CommandHandler{
		"play": func(ctx context.Context, _ device.Device, _ json.RawMessage) (any, error) {
			if s.playDelay > 0 {
				select {
				case <-time.After(s.playDelay):
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			}
			return s.playResult, s.playErr
		},
		"setVolume": func(_ context.Context, _ device.Device, body json.RawMessage) (any, error) {
			s.volumeRuns.Add(1)
			var req struct {
				Volume int `json:"volume"`
			}
			if err := json.Unmarshal(body, &req); err != nil {
				return nil, err
			}
			return map[string]int{"volume": req.Volume}, nil
		},
	}
}

type fixture struct {
	dispatcher *Dispatcher
	drv        *speakerDriver
	devices    device.Repository
	events     *event.SQLiteRepository
	speaker    *device.Device
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()

	cat, err := catalog.Default()
	if err != nil {
		t.Fatalf("catalog.Default() error = %v", err)
	}
	db := setupTestDB(t)
	devices := device.NewSQLiteRepository(db.DB)
	events := event.NewSQLiteRepository(db.DB)
	bus := event.NewBus()
	t.Cleanup(bus.Close)
	pipeline := event.NewPipeline(cat, events, bus)

	drv := &speakerDriver{playResult: map[string]bool{"playing": true}}
	reg := driver.Load(ctx, []driver.Registration{{
		ID:         "sonos",
		DeviceType: device.TypeSpeaker,
		Interface:  driver.InterfaceHTTP,
		Factory:    func(driver.Deps) (driver.Driver, error) { return drv, nil },
	}}, driver.InterfaceSet{driver.InterfaceHTTP: nil}, driver.Services{
		Catalog:     cat,
		Devices:     devices,
		Settings:    driver.NewSQLiteSettingsStore(db.DB),
		Events:      pipeline,
		CallTimeout: 50 * time.Millisecond,
	})

	speaker := &device.Device{
		ID:       device.GenerateID(device.TypeSpeaker, "sonos", "RINCON_1"),
		Type:     device.TypeSpeaker,
		DriverID: "sonos",
		LocalID:  "RINCON_1",
		Name:     "Kitchen",
		Specs: device.Specs{Capabilities: map[string]bool{
			"play":      true,
			"setVolume": true,
			"pause":     false,
			"next":      true,
		}},
	}
	if err := devices.Create(ctx, speaker); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	return fixture{
		dispatcher: NewDispatcher(cat, devices, reg, pipeline),
		drv:        drv,
		devices:    devices,
		events:     events,
		speaker:    speaker,
	}
}

func (f fixture) recorded(t *testing.T) []event.Event {
	t.Helper()
	evs, err := f.events.ListByType(context.Background(), event.TypeDevice, 0, 100)
	if err != nil {
		t.Fatalf("ListByType() error = %v", err)
	}
	return evs
}

func TestRun_Success(t *testing.T) {
	f := newFixture(t)

	got, err := f.dispatcher.Run(context.Background(), f.speaker.ID, "setVolume", json.RawMessage(`{"volume":40}`))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if string(got) != `{"volume":40}` {
		t.Errorf("Run() = %s", got)
	}

	evs := f.recorded(t)
	if len(evs) != 1 {
		t.Fatalf("events = %d, want 1", len(evs))
	}
	ev := evs[0]
	if ev.Name != "volumeChanged" || ev.DeviceID != f.speaker.ID || ev.DriverID != "sonos" || ev.DriverType != "speaker" {
		t.Errorf("event = %+v", ev)
	}
	if string(ev.Value) != `{"volume":40}` {
		t.Errorf("event value = %s", ev.Value)
	}
}

func TestRun_Errors(t *testing.T) {
	tests := []struct {
		name     string
		deviceID string
		command  string
		body     string
		wantKind fault.Kind
		wantMsg  string
	}{
		{"unknown device", "nope", "play", "", fault.NotFound, msgDeviceNotFound},
		{"undeclared command", "", "getVolume", "", fault.BadRequest, msgNotFound},
		{"unsupported command", "", "pause", "", fault.BadRequest, msgNotSupported},
		{"request out of range", "", "setVolume", `{"volume":150}`, fault.Validation, msgInvalidRequest},
		{"request missing field", "", "setVolume", `{}`, fault.Validation, msgInvalidRequest},
		{"no handler", "", "next", "", fault.Driver, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			id := tt.deviceID
			if id == "" {
				id = f.speaker.ID
			}

			_, err := f.dispatcher.Run(context.Background(), id, tt.command, json.RawMessage(tt.body))
			fe := fault.As(err)
			if fe == nil || fe.Kind != tt.wantKind {
				t.Fatalf("Run() error = %v, want kind %q", err, tt.wantKind)
			}
			if tt.wantMsg != "" && fe.Message != tt.wantMsg {
				t.Errorf("message = %q, want %q", fe.Message, tt.wantMsg)
			}
			if tt.wantKind == fault.Validation && fe.Details == nil {
				t.Error("validation error carries no issues")
			}
			if f.drv.volumeRuns.Load() != 0 {
				t.Error("handler ran for a rejected request")
			}
			if n := len(f.recorded(t)); n != 0 {
				t.Errorf("%d events recorded for a failed command", n)
			}
		})
	}
}

func TestRun_InvalidResult(t *testing.T) {
	f := newFixture(t)
	f.drv.playResult = map[string]string{"playing": "yes"}

	got, err := f.dispatcher.Run(context.Background(), f.speaker.ID, "play", nil)
	fe := fault.As(err)
	if fe == nil || fe.Kind != fault.Validation || fe.Message != msgInvalidResponse {
		t.Fatalf("Run() error = %v, want %q", err, msgInvalidResponse)
	}
	if got != nil {
		t.Errorf("Run() returned %s alongside the error", got)
	}
	if n := len(f.recorded(t)); n != 0 {
		t.Errorf("%d events recorded for an invalid result", n)
	}
}

func TestRun_DriverFailures(t *testing.T) {
	t.Run("classified error passes through", func(t *testing.T) {
		f := newFixture(t)
		f.drv.playErr = fault.New(fault.Connection, "speaker offline")
		_, err := f.dispatcher.Run(context.Background(), f.speaker.ID, "play", nil)
		if fault.KindOf(err) != fault.Connection {
			t.Errorf("error = %v, want Connection", err)
		}
	})

	t.Run("unclassified error", func(t *testing.T) {
		f := newFixture(t)
		f.drv.playErr = errors.New("upnp fault 701")
		_, err := f.dispatcher.Run(context.Background(), f.speaker.ID, "play", nil)
		if fault.KindOf(err) != fault.Internal {
			t.Errorf("error = %v, want Internal", err)
		}
	})

	t.Run("timeout", func(t *testing.T) {
		f := newFixture(t)
		f.drv.playDelay = time.Second
		_, err := f.dispatcher.Run(context.Background(), f.speaker.ID, "play", nil)
		if fault.KindOf(err) != fault.Connection {
			t.Errorf("error = %v, want Connection", err)
		}
	})

	t.Run("driver not loaded", func(t *testing.T) {
		f := newFixture(t)
		orphan := *f.speaker
		orphan.DriverID = "bose"
		orphan.ID = device.GenerateID(device.TypeSpeaker, "bose", "1")
		if err := f.devices.Create(context.Background(), &orphan); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		_, err := f.dispatcher.Run(context.Background(), orphan.ID, "play", nil)
		fe := fault.As(err)
		if fe == nil || fe.Kind != fault.NotFound || fe.Message != msgDriverNotFound {
			t.Errorf("error = %v, want %q", err, msgDriverNotFound)
		}
	})
}
