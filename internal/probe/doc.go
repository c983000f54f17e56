// Package probe extracts duration and resolution from media files with a
// single ffprobe JSON call per file.
//
// Probing is best-effort: [Prober.Duration] and [Prober.Resolution] never
// fail outright. They return a result carrying the value together with a
// diagnostic error wrapping [ErrProbeFailure], so callers can tell a genuine
// zero apart from a probe that could not read the file.
package probe
