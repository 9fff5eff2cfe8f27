package device

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-hub/migrations"
)

// setupTestDB opens an in-memory database with the hub schema applied.
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

// testDevice creates a speaker owned by driverID.
func testDevice(driverID, localID, name string) *Device {
	return &Device{
		ID:       GenerateID(TypeSpeaker, driverID, localID),
		Type:     TypeSpeaker,
		DriverID: driverID,
		LocalID:  localID,
		Name:     name,
		Address:  "10.0.0.10",
		Specs: Specs{
			Capabilities:   map[string]bool{"play": true, "setVolume": false},
			AdditionalInfo: map[string]any{"model": "One"},
		},
	}
}

func TestGenerateID(t *testing.T) {
	a := GenerateID(TypeSpeaker, "sonos", "RINCON_1")
	b := GenerateID(TypeSpeaker, "sonos", "RINCON_1")
	if a != b {
		t.Errorf("GenerateID not deterministic: %s != %s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("GenerateID length = %d, want 64 hex chars", len(a))
	}

	// hex(sha256("speakersonosRINCON_1"))
	const want = "5d97c1d063337513ef57d40036e055e9cc0871d410fb7f69b9d2c375b9b3ad21"
	if a != want {
		t.Errorf("GenerateID = %s, want %s", a, want)
	}

	others := []string{
		GenerateID(TypeLight, "sonos", "RINCON_1"),
		GenerateID(TypeSpeaker, "hue", "RINCON_1"),
		GenerateID(TypeSpeaker, "sonos", "RINCON_2"),
	}
	for _, other := range others {
		if other == a {
			t.Errorf("distinct triples produced the same id %s", a)
		}
	}
}

func TestValidType(t *testing.T) {
	for _, typ := range Types {
		if !ValidType(string(typ)) {
			t.Errorf("ValidType(%q) = false", typ)
		}
	}
	for _, bad := range []string{"", "Light", "fridge"} {
		if ValidType(bad) {
			t.Errorf("ValidType(%q) = true", bad)
		}
	}
}

func TestDevice_Capability(t *testing.T) {
	d := testDevice("sonos", "a", "Kitchen")

	tests := []struct {
		command       string
		wantSupported bool
		wantDeclared  bool
	}{
		{"play", true, true},
		{"setVolume", false, true},
		{"reboot", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			supported, declared := d.Capability(tt.command)
			if supported != tt.wantSupported || declared != tt.wantDeclared {
				t.Errorf("Capability(%q) = (%v, %v), want (%v, %v)",
					tt.command, supported, declared, tt.wantSupported, tt.wantDeclared)
			}
		})
	}
}

func TestDevice_DeepCopy(t *testing.T) {
	d := testDevice("sonos", "a", "Kitchen")
	d.Specs.Attributes = map[string]any{"zones": []any{map[string]any{"id": "z1"}}}

	cpy := d.DeepCopy()
	cpy.Specs.Capabilities["play"] = false
	cpy.Specs.AdditionalInfo["model"] = "Five"
	cpy.Specs.Attributes["zones"].([]any)[0].(map[string]any)["id"] = "z2"

	if !d.Specs.Capabilities["play"] {
		t.Error("capabilities shared with copy")
	}
	if d.Specs.AdditionalInfo["model"] != "One" {
		t.Error("additional_info shared with copy")
	}
	if d.Specs.Attributes["zones"].([]any)[0].(map[string]any)["id"] != "z1" {
		t.Error("nested attributes shared with copy")
	}

	var nilDevice *Device
	if nilDevice.DeepCopy() != nil {
		t.Error("DeepCopy of nil should be nil")
	}
}

func TestDevice_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Device)
	}{
		{"missing id", func(d *Device) { d.ID = "" }},
		{"unknown type", func(d *Device) { d.Type = "fridge" }},
		{"missing driver", func(d *Device) { d.DriverID = "" }},
		{"missing local id", func(d *Device) { d.LocalID = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := testDevice("sonos", "a", "Kitchen")
			tt.mutate(d)
			if err := d.Validate(); !errors.Is(err, ErrInvalidDevice) {
				t.Errorf("Validate() = %v, want ErrInvalidDevice", err)
			}
		})
	}

	if err := testDevice("sonos", "a", "Kitchen").Validate(); err != nil {
		t.Errorf("Validate() on valid device = %v", err)
	}
}

func TestSQLiteRepository_CreateAndGet(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t).DB)
	ctx := context.Background()

	d := testDevice("sonos", "RINCON_1", "Kitchen")
	if err := repo.Create(ctx, d); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if d.CreatedAt.IsZero() || d.UpdatedAt.IsZero() {
		t.Error("Create() did not set timestamps")
	}

	got, err := repo.Get(ctx, d.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Type != TypeSpeaker || got.DriverID != "sonos" || got.LocalID != "RINCON_1" {
		t.Errorf("Get() identity = %s/%s/%s", got.Type, got.DriverID, got.LocalID)
	}
	if got.Name != "Kitchen" || got.Address != "10.0.0.10" {
		t.Errorf("Get() name/address = %q/%q", got.Name, got.Address)
	}
	if !got.Specs.Capabilities["play"] || got.Specs.Capabilities["setVolume"] {
		t.Errorf("Get() capabilities = %v", got.Specs.Capabilities)
	}
	if got.Specs.AdditionalInfo["model"] != "One" {
		t.Errorf("Get() additional_info = %v", got.Specs.AdditionalInfo)
	}
	if got.CreatedAt.Location() != time.UTC {
		t.Errorf("CreatedAt location = %v, want UTC", got.CreatedAt.Location())
	}

	if err := repo.Create(ctx, testDevice("sonos", "RINCON_1", "Again")); !errors.Is(err, ErrDeviceExists) {
		t.Errorf("duplicate Create() = %v, want ErrDeviceExists", err)
	}

	invalid := testDevice("sonos", "RINCON_2", "Bad")
	invalid.Type = "fridge"
	if err := repo.Create(ctx, invalid); !errors.Is(err, ErrInvalidDevice) {
		t.Errorf("invalid Create() = %v, want ErrInvalidDevice", err)
	}

	if _, err := repo.Get(ctx, "missing"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("Get(missing) = %v, want ErrDeviceNotFound", err)
	}
}

func TestSQLiteRepository_Lists(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t).DB)
	ctx := context.Background()

	seed := []*Device{
		testDevice("sonos", "b", "Lounge"),
		testDevice("sonos", "a", "Kitchen"),
		testDevice("bose", "c", "Office"),
	}
	light := &Device{
		ID:       GenerateID(TypeLight, "hue", "1"),
		Type:     TypeLight,
		DriverID: "hue",
		LocalID:  "1",
		Name:     "Hall",
		Specs:    Specs{Capabilities: map[string]bool{"on": true}},
	}
	seed = append(seed, light)
	for _, d := range seed {
		if err := repo.Create(ctx, d); err != nil {
			t.Fatalf("Create(%s) error = %v", d.Name, err)
		}
	}

	all, err := repo.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll() error = %v", err)
	}
	if len(all) != 4 {
		t.Errorf("ListAll() = %d devices, want 4", len(all))
	}

	speakers, err := repo.ListByType(ctx, TypeSpeaker)
	if err != nil {
		t.Fatalf("ListByType() error = %v", err)
	}
	if len(speakers) != 3 {
		t.Errorf("ListByType(speaker) = %d devices, want 3", len(speakers))
	}

	sonos, err := repo.ListByTypeAndDriver(ctx, TypeSpeaker, "sonos")
	if err != nil {
		t.Fatalf("ListByTypeAndDriver() error = %v", err)
	}
	if len(sonos) != 2 || sonos[0].Name != "Kitchen" || sonos[1].Name != "Lounge" {
		t.Errorf("ListByTypeAndDriver() = %+v, want Kitchen, Lounge", sonos)
	}

	none, err := repo.ListByTypeAndDriver(ctx, TypeCamera, "sonos")
	if err != nil {
		t.Fatalf("ListByTypeAndDriver() error = %v", err)
	}
	if none == nil || len(none) != 0 {
		t.Errorf("empty result = %#v, want empty non-nil slice", none)
	}

	count, err := repo.CountByDriver(ctx, "sonos")
	if err != nil {
		t.Fatalf("CountByDriver() error = %v", err)
	}
	if count != 2 {
		t.Errorf("CountByDriver(sonos) = %d, want 2", count)
	}
}

func TestSQLiteRepository_Update(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t).DB)
	ctx := context.Background()

	d := testDevice("sonos", "a", "Kitchen")
	if err := repo.Create(ctx, d); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	d.Name = "Kitchen Speaker"
	d.Specs.Capabilities["setVolume"] = true
	if err := repo.Update(ctx, d); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	got, err := repo.Get(ctx, d.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Name != "Kitchen Speaker" || !got.Specs.Capabilities["setVolume"] {
		t.Errorf("Update() not persisted: %+v", got)
	}

	missing := testDevice("sonos", "zzz", "Ghost")
	if err := repo.Update(ctx, missing); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("Update(missing) = %v, want ErrDeviceNotFound", err)
	}
}

func TestSQLiteRepository_DeleteMany(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t).DB)
	ctx := context.Background()

	a := testDevice("sonos", "a", "A")
	b := testDevice("sonos", "b", "B")
	c := testDevice("sonos", "c", "C")
	for _, d := range []*Device{a, b, c} {
		if err := repo.Create(ctx, d); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	if err := repo.DeleteMany(ctx, nil); err != nil {
		t.Errorf("DeleteMany(nil) = %v", err)
	}
	if err := repo.DeleteMany(ctx, []string{a.ID, c.ID, "unknown"}); err != nil {
		t.Fatalf("DeleteMany() error = %v", err)
	}

	left, err := repo.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll() error = %v", err)
	}
	if len(left) != 1 || left[0].ID != b.ID {
		t.Errorf("remaining devices = %+v, want only B", left)
	}
}
