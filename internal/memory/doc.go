// Package memory keeps the clip merger inside its container memory limit.
//
// Every merge spawns ffmpeg children whose memory is invisible to the Go
// runtime, so two things happen here:
//
//   - [ConfigureFromEnv] sets GOMEMLIMIT to a small share of the container
//     limit (MEMORY_RATIO, default 0.25), leaving the rest to ffmpeg.
//   - [Monitor] samples container usage from the cgroup (memory.current on
//     cgroup v2, memory.usage_in_bytes on v1; the Go runtime's Sys bytes
//     outside a container) and holds back new normalize encodes while usage
//     is above CriticalWaterMark. Encodes resume once usage drops below
//     HighWaterMark.
//
// The limit the monitor measures against comes from Config.LimitBytes, then
// the cgroup memory.max, then GOMEMLIMIT. Without any of them the monitor
// never pauses.
//
// # Environment Variables
//
//   - GOMEMLIMIT: standard Go variable; when set it wins and nothing is derived.
//   - MEMORY_LIMIT: container limit in bytes, typically from the Kubernetes
//     Downward API. When unset the cgroup limit is read instead.
//   - MEMORY_RATIO: share of the container limit given to the Go heap (0.0-1.0).
//
// # Backpressure
//
// A *Monitor satisfies merge.Backpressure:
//
//	mon := memory.NewMonitor(memory.DefaultConfig())
//	mon.Start()
//	defer mon.Stop()
//	pipeline := merge.NewPipeline(runner, cfg, merge.WithBackpressure(mon))
//
// WaitIfPaused returns false once Stop has been called, which the pipeline
// treats as a failed input instead of starting another encode during
// shutdown.
package memory
