// Package logging provides structured logging for the Gray Logic Hub.
//
// It wraps Go's log/slog package so that every component logs with the
// same handler, level filtering and default fields (service, version).
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, or a file path
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	discoveryLog := logger.Component("discovery")
//	discoveryLog.Info("sweep complete", "driver_id", id, "created", n)
//
// Attributes keyed password, token, secret or settings are written as
// [REDACTED]. Plugins keep vendor tokens in their settings bag, so never
// log those values under another key.
package logging
