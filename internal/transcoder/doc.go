// Package transcoder runs the external FFmpeg and FFprobe binaries.
//
// It supports:
//   - A per-invocation time bound, reported as [ErrTimeout]
//   - Stderr capture, with the tail kept on [ExecError] for diagnostics
//   - Tracking of live child processes so shutdown can kill them
//   - Reclaiming stale job workspaces at startup
//
// Callers depend on the [Runner] interface so the merge pipeline can be
// tested against a fake.
package transcoder
