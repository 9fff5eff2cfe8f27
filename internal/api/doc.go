// Package api implements the HTTP REST API and WebSocket server for the hub.
//
// This package provides:
//   - REST endpoints for discovery, device queries, commands, driver
//     authentication, the event log and the schema catalog
//   - WebSocket hub relaying recorded events to subscribed clients
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Errors
//
// Handlers never inspect error causes. Every error from the hub service
// carries a fault kind, which writeFault maps to a status code; Driver
// errors also carry the responsible driver's ID.
//
// # WebSocket
//
// Clients subscribe to channels: an event type ("device", "discovery"),
// a single device ("device:{id}"), or "*" for everything.
package api
