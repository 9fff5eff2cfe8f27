package driver

import (
	"context"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/config"
)

func TestSQLiteSettingsStore(t *testing.T) {
	store := NewSQLiteSettingsStore(setupTestDB(t).DB)
	ctx := context.Background()

	empty, err := store.Get(ctx, "sonos")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Errorf("Get() on missing driver = %#v, want empty map", empty)
	}

	if err := store.Set(ctx, "sonos", map[string]any{"token": "abc"}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := store.Set(ctx, "sonos", map[string]any{"token": "def", "count": 3}); err != nil {
		t.Fatalf("Set() overwrite error = %v", err)
	}

	got, err := store.Get(ctx, "sonos")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got["token"] != "def" || got["count"] != float64(3) {
		t.Errorf("Get() = %v", got)
	}
}

func TestSettings_KeyAccess(t *testing.T) {
	store := NewSQLiteSettingsStore(setupTestDB(t).DB)
	ctx := context.Background()

	a := NewSettings(store, "a")
	b := NewSettings(store, "b")

	if err := a.Set(ctx, "host", "10.0.0.2"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := a.Set(ctx, "port", 1400); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	host, ok, err := a.Get(ctx, "host")
	if err != nil || !ok || host != "10.0.0.2" {
		t.Errorf("Get(host) = %v, %v, %v", host, ok, err)
	}
	port, ok, _ := a.Get(ctx, "port")
	if !ok || port != float64(1400) {
		t.Errorf("Get(port) = %v, %v", port, ok)
	}
	if _, ok, _ := b.Get(ctx, "host"); ok {
		t.Error("settings leaked between drivers")
	}
}

func TestNewInterfaces(t *testing.T) {
	set := NewInterfaces(nil, config.DriverHTTPConfig{Timeout: 3 * time.Second, RetryCount: 2})

	if _, ok := set.Interface(InterfaceMQTT); ok {
		t.Error("mqtt interface present without a client")
	}
	client := NewHTTPClient(config.DriverHTTPConfig{Timeout: 3 * time.Second, RetryCount: 2})
	if client.RetryCount != 2 {
		t.Errorf("RetryCount = %d, want 2", client.RetryCount)
	}
	if _, ok := set.Interface(InterfaceHTTP); !ok {
		t.Error("http interface missing")
	}
}
