// Package log provides the platform event log.
//
// This package defines the Logger interface and Event types for recording
// platform events: presence changes, status changes, threshold crossings,
// the reboot cause, firmware operations and hardware access errors.
// It is separate from operational logging (slog) - the event log is a
// machine-readable history that survives restarts.
//
// # Basic Usage
//
//	// For development: log to console via slog
//	events := log.NewSlogAdapter(slog.Default())
//
//	// For production: write to binary file
//	events, _ := log.NewFileLogger("/var/log/pmon/events.plog")
//
//	// Both: use MultiLogger
//	events := log.NewMultiLogger(
//	    log.NewSlogAdapter(slog.Default()),
//	    fileLogger,
//	)
//
// # File Format
//
// Log files are a stream of CBOR-encoded events with integer keys, with the
// .plog extension. The pmon-log CLI tool provides viewing, filtering, and
// export capabilities.
package log
