// Package metrics provides Prometheus instrumentation for the clip merger.
//
// All metrics are prefixed with "clip_merger_" and registered with the default
// registry through promauto.
//
// # Metric Categories
//
// ## HTTP Metrics
//
//   - HTTPRequestsTotal: Counter of total requests by method, path, and status
//   - HTTPRequestDuration: Histogram of request duration by method and path
//   - HTTPRequestsInFlight: Gauge of currently processing requests
//
// ## Pipeline Metrics
//
//   - JobsTotal: Counter of merge jobs by outcome (success/error/timeout/invalid)
//   - JobsInProgress: Gauge of running merge jobs
//   - JobDuration: Histogram of whole-job wall-clock time
//   - StageDuration: Histogram by stage (probe/normalize/concat/audiomix)
//   - NormalizeFailures: Counter of clips dropped during normalization
//   - ProbeFailures: Counter of probe calls that degraded to a default value
//   - ClipsMerged: Counter of clips that ended up in a merged output
//
// ## External Process Metrics
//
//   - FFmpegInvocationsTotal: Counter by tool (ffmpeg/ffprobe) and status
//   - FFmpegDuration: Histogram of invocation time by tool
//   - FFmpegProcessesRunning: Gauge of live child processes
//
// ## Upload, Thumbnail and Job Store Metrics
//
//   - UploadsTotal, UploadBytes
//   - ThumbnailGenerationsTotal, ThumbnailGenerationDuration
//   - DBQueryTotal, DBQueryDuration, DBSizeBytes, StoredJobs
//   - DirectorySizeBytes: disk usage of the upload, work and thumbnail dirs
//   - DeliveriesTotal, DeliveredBytes: merged artifacts streamed to clients
//   - FilesystemStaleErrors, FilesystemRetries: ESTALE retries by volume
//
// ## Memory Metrics
//
//   - GoMemLimit, GoMemAllocBytes, GoMemSysBytes, GoGCRuns
//   - MemoryUsageRatio, MemoryPaused, MemoryGCPauses
//
// # Collector
//
// [Collector] periodically gathers statistics from a [StatsProvider] (the job
// store), measures watched directories and the database files, and updates the
// corresponding gauges:
//
//	collector := metrics.NewCollector(store, dbPath, time.Minute)
//	collector.WatchDir("work", cfg.WorkDir)
//	collector.Start()
//	defer collector.Stop()
//
// # Prometheus Queries
//
// Job failure ratio:
//
//	sum(rate(clip_merger_jobs_total{status!="success"}[1h])) / sum(rate(clip_merger_jobs_total[1h]))
//
// P95 normalize stage time:
//
//	histogram_quantile(0.95, sum(rate(clip_merger_stage_duration_seconds_bucket{stage="normalize"}[15m])) by (le))
//
// ffmpeg timeouts:
//
//	rate(clip_merger_ffmpeg_invocations_total{status="timeout"}[1h])
package metrics
