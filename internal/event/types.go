package event

import (
	"encoding/json"
	"time"
)

// Event types. Device events carry a catalog-declared name and are
// validated; other types are hub-internal.
const (
	TypeDevice    = "device"
	TypeDiscovery = "discovery"
)

// Event is one persisted domain event. This matches the events table in
// migrations/.
type Event struct {
	ID string `json:"id"`

	// Seq is the insertion order, used as the paging cursor.
	Seq int64 `json:"seq"`

	Type       string          `json:"event_type"`
	DriverType string          `json:"driver_type"`
	DriverID   string          `json:"driver_id"`
	DeviceID   string          `json:"device_id,omitempty"`
	Name       string          `json:"event"`
	Value      json.RawMessage `json:"value"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Logger defines the logging interface used by this package.
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
