// Package influxdb writes device event telemetry to InfluxDB v2.
//
// Every recorded domain event whose value contains numbers or booleans
// becomes one point in the "device_events" measurement, tagged with the
// device type, driver and event name. Writes are non-blocking and batched
// by the official client; asynchronous failures are reported through the
// SetOnError callback.
//
//	influxdb:
//	  enabled: true
//	  url: "http://localhost:8086"
//	  org: "grayhub"
//	  bucket: "events"
package influxdb
