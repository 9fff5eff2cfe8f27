package driver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/nerrad567/gray-logic-hub/internal/device"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/config"
)

// bridgeDriver talks to a vendor bridge over the shared HTTP interface.
type bridgeDriver struct {
	client  *resty.Client
	baseURL string
}

func newBridgeDriver(baseURL string) Factory {
	return func(deps Deps) (Driver, error) {
		client, ok := deps.Interface.(*resty.Client)
		if !ok {
			return nil, errors.New("http interface is not a resty client")
		}
		return &bridgeDriver{client: client, baseURL: baseURL}, nil
	}
}

func (b *bridgeDriver) Discover(ctx context.Context) ([]Candidate, error) {
	var players []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	resp, err := b.client.R().SetContext(ctx).SetResult(&players).Get(b.baseURL + "/players")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, errors.New(resp.Status())
	}
	out := make([]Candidate, 0, len(players))
	for _, p := range players {
		out = append(out, Candidate{LocalID: p.ID, Name: p.Name, Capabilities: map[string]bool{"play": true}})
	}
	return out, nil
}

func (b *bridgeDriver) InitDevices(context.Context, []device.Device) error { return nil }

func (b *bridgeDriver) Commands() map[string]CommandHandler {
	return map[string]CommandHandler{
		"play": func(ctx context.Context, dev device.Device, _ json.RawMessage) (any, error) {
			var state map[string]bool
			_, err := b.client.R().SetContext(ctx).SetResult(&state).Post(b.baseURL + "/players/" + dev.LocalID + "/play")
			return state, err
		},
	}
}

func TestHTTPInterface_DriverRoundTrip(t *testing.T) {
	var userAgent atomic.Value
	mux := http.NewServeMux()
	mux.HandleFunc("/players", func(w http.ResponseWriter, r *http.Request) {
		userAgent.Store(r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id":"RINCON_1","name":"Kitchen"}]`)) //nolint:errcheck // test server
	})
	mux.HandleFunc("/players/RINCON_1/play", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"playing":true}`)) //nolint:errcheck // test server
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	env := newTestEnv(t)
	interfaces := NewInterfaces(nil, config.DriverHTTPConfig{Timeout: 2 * time.Second, RetryCount: 1})
	reg := Load(context.Background(), []Registration{{
		ID:         "sonos",
		DeviceType: device.TypeSpeaker,
		Interface:  InterfaceHTTP,
		Factory:    newBridgeDriver(ts.URL),
	}}, interfaces, env.svc)

	h, ok := reg.Get("sonos")
	if !ok {
		t.Fatalf("driver not loaded: %+v", reg.Failures())
	}

	candidates, err := Call(context.Background(), reg.CallTimeout(), h.ID, h.Driver.Discover)
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if len(candidates) != 1 || candidates[0].LocalID != "RINCON_1" || candidates[0].Name != "Kitchen" {
		t.Errorf("candidates = %+v", candidates)
	}
	if ua, _ := userAgent.Load().(string); ua != "grayhub" {
		t.Errorf("User-Agent = %q, want grayhub", ua)
	}

	dev := device.Device{LocalID: "RINCON_1", DriverID: "sonos", Type: device.TypeSpeaker}
	result, err := Call(context.Background(), reg.CallTimeout(), h.ID, func(ctx context.Context) (any, error) {
		return h.Commands["play"](ctx, dev, nil)
	})
	if err != nil {
		t.Fatalf("play error = %v", err)
	}
	if state, _ := result.(map[string]bool); !state["playing"] {
		t.Errorf("play result = %v", result)
	}
}
