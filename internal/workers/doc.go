/*
Package workers sizes the worker pools used by the merge pipeline.

Worker counts are derived from runtime.GOMAXPROCS rather than
runtime.NumCPU, so they respect container CPU limits (Go 1.19+ sets
GOMAXPROCS from the cgroup quota). A pod limited to 2 CPUs on a 64-core node
gets 2 workers, not 64.

# Usage

	workers.ForCPU(8)   // 1 per CPU, max 8
	workers.ForIO(16)   // 2 per CPU, max 16

The pipeline uses two fixed pools:

	workers.ForNormalize() // concurrent ffmpeg normalize encodes
	workers.ForProbe()     // concurrent ffprobe calls

Each normalize encode is itself multi-threaded inside ffmpeg, so the default
is min(GOMAXPROCS, 2). Operators can override it:

	env:
	- name: NORMALIZE_WORKERS
	  value: "4"

The override is not capped; it is the operator's responsibility to size it
against the CPU and memory limits of the container.
*/
package workers
