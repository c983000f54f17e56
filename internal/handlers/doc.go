// Package handlers provides the HTTP handlers of the clip merger.
//
// It includes handlers for:
//   - Uploading clips with thumbnail and duration previews
//   - Running merges and streaming the merged file back
//   - Job history and the preset/filter/transition catalogs
//   - Health checks and version information
//
// Handlers depend on small interfaces (Merger, JobStore, DurationProber,
// Thumbnailer, ToolChecker) so tests can substitute fakes; New wires the
// production implementations.
package handlers
