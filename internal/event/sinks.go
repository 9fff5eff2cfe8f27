package event

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/mqtt"
)

// Sink receives events from the bus and forwards them somewhere else.
// Errors are logged by RunSink and never reach the producer.
type Sink interface {
	Name() string
	Handle(ctx context.Context, ev Event) error
}

// RunSink feeds sub into sink until the subscription closes or ctx is
// cancelled.
func RunSink(ctx context.Context, sub *Subscription, sink Sink, logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := sink.Handle(ctx, ev); err != nil {
				logger.Warn("event sink failed", "sink", sink.Name(), "event", ev.Name, "error", err)
			}
		}
	}
}

// jsonPublisher is the slice of the MQTT client the sink needs.
type jsonPublisher interface {
	PublishJSON(topic string, v any, retained bool) error
}

// MQTTSink republishes events on grayhub/event/{type}/{device}.
type MQTTSink struct {
	client jsonPublisher
}

// NewMQTTSink creates an MQTT sink.
func NewMQTTSink(client jsonPublisher) *MQTTSink {
	return &MQTTSink{client: client}
}

func (s *MQTTSink) Name() string { return "mqtt" }

func (s *MQTTSink) Handle(_ context.Context, ev Event) error {
	return s.client.PublishJSON(mqtt.Topics{}.Event(ev.Type, ev.DeviceID), ev, false)
}

// pointWriter is the slice of the InfluxDB client the sink needs.
type pointWriter interface {
	WriteDeviceEvent(deviceType, driverID, deviceID, event string, value any, at time.Time) bool
}

// InfluxSink writes numeric and boolean device event fields as telemetry.
// Non-device events and payloads without such fields are skipped.
type InfluxSink struct {
	client pointWriter
}

// NewInfluxSink creates an InfluxDB sink.
func NewInfluxSink(client pointWriter) *InfluxSink {
	return &InfluxSink{client: client}
}

func (s *InfluxSink) Name() string { return "influxdb" }

func (s *InfluxSink) Handle(_ context.Context, ev Event) error {
	if ev.Type != TypeDevice {
		return nil
	}
	s.client.WriteDeviceEvent(ev.DriverType, ev.DriverID, ev.DeviceID, ev.Name, ev.Value, ev.CreatedAt)
	return nil
}

// streamPublisher is the slice of the Redis client the sink needs.
type streamPublisher interface {
	Publish(ctx context.Context, values map[string]any) (string, error)
}

// RedisSink appends every event to a Redis stream.
type RedisSink struct {
	client streamPublisher
}

// NewRedisSink creates a Redis stream sink.
func NewRedisSink(client streamPublisher) *RedisSink {
	return &RedisSink{client: client}
}

func (s *RedisSink) Name() string { return "redis" }

func (s *RedisSink) Handle(ctx context.Context, ev Event) error {
	_, err := s.client.Publish(ctx, map[string]any{
		"id":          ev.ID,
		"seq":         ev.Seq,
		"event_type":  ev.Type,
		"driver_type": ev.DriverType,
		"driver_id":   ev.DriverID,
		"device_id":   ev.DeviceID,
		"event":       ev.Name,
		"value":       ev.Value,
		"created_at":  ev.CreatedAt.Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("redis stream: %w", err)
	}
	return nil
}
