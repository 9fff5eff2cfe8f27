// Package hub is the single entry point transports call into.
//
// It fronts the reconciliation engine, the command dispatcher, the driver
// registry, the device inventory and the event log, and returns only
// classified errors so a transport can map them without inspecting causes.
package hub
