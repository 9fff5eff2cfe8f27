package influxdb

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// EventMeasurement is the measurement device events are written to.
const EventMeasurement = "device_events"

// maxFieldDepth bounds how deep nested event payloads are flattened.
const maxFieldDepth = 3

// WriteDeviceEvent records the numeric and boolean parts of an event value
// as one point. Values without such parts (plain strings, empty objects)
// are skipped and false is returned.
//
// Parameters:
//   - deviceType: Device type tag (e.g. "speaker")
//   - driverID: Owning driver tag
//   - deviceID: Device tag
//   - event: Event name tag (e.g. "volumeChanged")
//   - value: Event payload, either decoded JSON or raw JSON bytes
//   - at: Event timestamp
func (c *Client) WriteDeviceEvent(deviceType, driverID, deviceID, event string, value any, at time.Time) bool {
	if !c.IsConnected() {
		return false
	}

	fields := EventFields(value)
	if len(fields) == 0 {
		return false
	}

	tags := map[string]string{
		"device_type": deviceType,
		"driver_id":   driverID,
		"device_id":   deviceID,
		"event":       event,
	}
	c.writeAPI.WritePoint(write.NewPoint(EventMeasurement, tags, fields, at))
	return true
}

// WritePoint writes a point with full control over tags and fields.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, at))
}

// EventFields flattens an event payload into InfluxDB fields.
//
// Numbers become float fields and booleans bool fields. Nested object keys
// are joined with "_" ({"state":{"level":3}} -> state_level). A bare
// scalar is stored as field "value". Strings and arrays are dropped: they
// are not telemetry and would explode series cardinality.
func EventFields(value any) map[string]any {
	if raw, ok := value.(json.RawMessage); ok {
		value = decodeRaw(raw)
	} else if raw, ok := value.([]byte); ok {
		value = decodeRaw(raw)
	}

	fields := make(map[string]any)
	switch v := value.(type) {
	case map[string]any:
		flatten(fields, "", v, 0)
	default:
		if scalar, ok := fieldValue(v); ok {
			fields["value"] = scalar
		}
	}
	return fields
}

func decodeRaw(raw []byte) any {
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil
	}
	return decoded
}

func flatten(fields map[string]any, prefix string, obj map[string]any, depth int) {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		name := k
		if prefix != "" {
			name = prefix + "_" + k
		}
		name = strings.ReplaceAll(name, " ", "_")

		switch v := obj[k].(type) {
		case map[string]any:
			if depth+1 < maxFieldDepth {
				flatten(fields, name, v, depth+1)
			}
		default:
			if scalar, ok := fieldValue(v); ok {
				fields[name] = scalar
			}
		}
	}
}

func fieldValue(v any) (any, bool) {
	switch n := v.(type) {
	case bool:
		return n, true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return nil, false
	}
}
