// Package logging provides a simple leveled logging interface for the
// clip merger.
//
// It supports the following log levels:
//   - DEBUG: Verbose debugging information
//   - INFO: General operational messages
//   - WARN: Warning conditions
//   - ERROR: Error conditions
//   - FATAL: Fatal errors that terminate the application
//
// The log level is configured via the LOG_LEVEL environment variable, or
// DEBUG=true. Output is written by zerolog: JSON lines by default, or the
// console format when stderr is a terminal. [With] returns a component
// logger for call sites that log structured fields.
package logging
