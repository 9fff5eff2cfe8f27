// Package event records and republishes the hub's domain events.
//
// Events reach the Pipeline from the command dispatcher, from the discovery
// engine and asynchronously from drivers through their bound emitter. The
// pipeline checks device events against the schema catalog, stores them in
// SQLite and publishes them on the in-process Bus. Sinks (MQTT, InfluxDB,
// Redis, the WebSocket hub) subscribe to the Bus and never block producers.
//
// EventsByType pages through stored events by insertion order; the cursor
// is an event ID. The Pruner enforces the retention window.
package event
