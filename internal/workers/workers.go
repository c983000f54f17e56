package workers

import (
	"os"
	"runtime"
	"strconv"
)

const (
	// NormalizeLimit caps concurrent normalize encodes per job by default.
	// libx264 already spreads one encode across several threads.
	NormalizeLimit = 2

	// ProbeLimit caps concurrent ffprobe processes per job.
	ProbeLimit = 8

	// NormalizeEnv overrides the normalize fan-out.
	NormalizeEnv = "NORMALIZE_WORKERS"
)

// Count returns the optimal number of workers for a given task type.
// It respects container CPU limits via GOMAXPROCS (Go 1.19+).
//
// The multiplier adjusts for task characteristics:
//   - 1.0 for CPU-bound tasks
//   - 2.0 for I/O-bound tasks
//   - 1.5 for mixed tasks
//
// The limit parameter caps the worker count to prevent resource exhaustion.
// Use 0 for no limit.
func Count(multiplier float64, limit int) int {
	// GOMAXPROCS is automatically set to container CPU limit in Go 1.19+
	available := runtime.GOMAXPROCS(0)

	workers := int(float64(available) * multiplier)

	if workers < 1 {
		workers = 1
	}
	if limit > 0 && workers > limit {
		workers = limit
	}

	return workers
}

// FromEnv returns the positive integer in the named environment variable,
// or fallback when it is unset or invalid.
func FromEnv(name string, fallback int) int {
	if override := os.Getenv(name); override != "" {
		if count, err := strconv.Atoi(override); err == nil && count > 0 {
			return count
		}
	}
	return fallback
}

// ForCPU returns worker count for CPU-bound tasks (1 per CPU).
// The limit parameter caps the maximum number of workers.
func ForCPU(limit int) int {
	return Count(1.0, limit)
}

// ForIO returns worker count for I/O-bound tasks (2 per CPU).
// The limit parameter caps the maximum number of workers.
func ForIO(limit int) int {
	return Count(2.0, limit)
}

// ForNormalize returns the number of clips normalized concurrently:
// NORMALIZE_WORKERS when set, otherwise min(GOMAXPROCS, NormalizeLimit).
func ForNormalize() int {
	return FromEnv(NormalizeEnv, ForCPU(NormalizeLimit))
}

// ForProbe returns the number of concurrent ffprobe calls.
func ForProbe() int {
	return ForIO(ProbeLimit)
}
