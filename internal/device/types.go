package device

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Type classifies a device. The set is closed.
type Type string

// Device types.
const (
	TypeLight      Type = "light"
	TypeSpeaker    Type = "speaker"
	TypeSocket     Type = "socket"
	TypeSensor     Type = "sensor"
	TypeDoorbell   Type = "doorbell"
	TypeThermostat Type = "thermostat"
	TypeBlind      Type = "blind"
	TypeCamera     Type = "camera"
)

// Types lists every valid device type.
var Types = []Type{
	TypeLight,
	TypeSpeaker,
	TypeSocket,
	TypeSensor,
	TypeDoorbell,
	TypeThermostat,
	TypeBlind,
	TypeCamera,
}

// ValidType reports whether t names a known device type.
func ValidType(t string) bool {
	for _, known := range Types {
		if string(known) == t {
			return true
		}
	}
	return false
}

// Device is one controllable unit owned by exactly one driver.
// This matches the devices table in migrations/.
type Device struct {
	// ID is derived from (Type, DriverID, LocalID); see GenerateID.
	ID       string `json:"id"`
	Type     Type   `json:"type"`
	DriverID string `json:"driver_id"`

	// LocalID is the driver's own identifier for the device.
	LocalID string `json:"local_id"`

	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
	Specs   Specs  `json:"specs"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Specs holds what the driver reported about a device during discovery.
type Specs struct {
	// Capabilities maps command name to whether this device supports it.
	Capabilities map[string]bool `json:"capabilities"`

	// AdditionalInfo is a free-form bag some device types report
	// (firmware, model, room hints).
	AdditionalInfo map[string]any `json:"additional_info,omitempty"`

	// Attributes holds any other driver-reported values.
	Attributes map[string]any `json:"attributes,omitempty"`
}

// GenerateID derives the stable device ID: the hex SHA-256 of the
// concatenated type, driver ID and local ID. The same triple always
// yields the same ID, across restarts and rediscovery.
func GenerateID(deviceType Type, driverID, localID string) string {
	sum := sha256.Sum256([]byte(string(deviceType) + driverID + localID))
	return hex.EncodeToString(sum[:])
}

// Capability reports whether the device declares command, and whether it
// supports it.
func (d *Device) Capability(command string) (supported, declared bool) {
	supported, declared = d.Specs.Capabilities[command]
	return supported, declared
}

// Validate checks the fields every persisted device must have.
func (d *Device) Validate() error {
	switch {
	case d.ID == "":
		return fmt.Errorf("%w: id is required", ErrInvalidDevice)
	case !ValidType(string(d.Type)):
		return fmt.Errorf("%w: unknown type %q", ErrInvalidDevice, d.Type)
	case d.DriverID == "":
		return fmt.Errorf("%w: driver_id is required", ErrInvalidDevice)
	case d.LocalID == "":
		return fmt.Errorf("%w: local_id is required", ErrInvalidDevice)
	}
	return nil
}

// DeepCopy creates an independent copy of the Device so cached values
// cannot be mutated through returned pointers.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}

	cpy := *d
	if d.Specs.Capabilities != nil {
		cpy.Specs.Capabilities = make(map[string]bool, len(d.Specs.Capabilities))
		for k, v := range d.Specs.Capabilities {
			cpy.Specs.Capabilities[k] = v
		}
	}
	cpy.Specs.AdditionalInfo = deepCopyMap(d.Specs.AdditionalInfo)
	cpy.Specs.Attributes = deepCopyMap(d.Specs.Attributes)
	return &cpy
}

func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cpy := make(map[string]any, len(m))
	for k, v := range m {
		cpy[k] = deepCopyValue(v)
	}
	return cpy
}

func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		cpy := make([]any, len(val))
		for i, elem := range val {
			cpy[i] = deepCopyValue(elem)
		}
		return cpy
	default:
		return v
	}
}
