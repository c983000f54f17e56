// Package main provides the entry point for the Clip Merger server.
//
// Clip Merger accepts uploaded video clips over HTTP, normalizes them to a
// common format with ffmpeg, joins them (optionally cross-faded), composes
// the audio track and streams the merged file back to the client.
//
// # Application Lifecycle
//
//  1. Memory Configuration: Sets GOMEMLIMIT from environment or cgroup limits
//  2. Configuration Loading: Reads .env files and environment variables and
//     validates the upload, work and database directories
//  3. Transcoder: Checks ffmpeg/ffprobe and clears stale job workspaces
//  4. Job Store: Opens the SQLite job history and marks jobs interrupted by
//     the previous shutdown as failed
//  5. Merge Pipeline: Memory monitor, normalize worker pool and thumbnailer
//  6. HTTP Server Setup: Routes, middleware, metrics server
//  7. Graceful Shutdown: Handles SIGINT/SIGTERM
//
// # Background Services
//
//   - Memory Monitor: Pauses new encodes under memory pressure
//   - Metrics Collector: Updates job, disk and runtime gauges every minute
//   - Job Pruner: Deletes finished jobs older than JOB_HISTORY_RETENTION
//
// # HTTP Server
//
//  1. Main Server (default port 5000):
//     - POST /upload, POST /merge
//     - /api/jobs, /api/jobs/{id}, /api/presets
//     - /health, /healthz, /livez, /readyz, /version
//     - /thumbnails/ and the static web UI
//
//  2. Metrics Server (default port 9090, optional):
//     - Prometheus metrics endpoint (/metrics)
//     - Health check endpoint (/health)
//
// # Environment Variables
//
//   - UPLOAD_DIR, WORK_DIR, THUMBNAIL_DIR, DATABASE_DIR, STATIC_DIR
//   - PORT, METRICS_PORT, METRICS_ENABLED
//   - FFMPEG_PATH, FFPROBE_PATH, FFMPEG_TIMEOUT, PROBE_TIMEOUT
//   - NORMALIZE_WORKERS, KEEP_ARTIFACTS, MAX_UPLOAD_MB, JOB_HISTORY_RETENTION
//   - LOG_LEVEL, DEBUG, LOG_STATIC_FILES, LOG_HEALTH_CHECKS
//   - GOMEMLIMIT, MEMORY_LIMIT, MEMORY_RATIO
//
// # Graceful Shutdown
//
//  1. Stop accepting new HTTP requests, let running merges finish (30s)
//  2. Stop memory monitor
//  3. Kill remaining ffmpeg processes
//  4. Stop job pruner and metrics collector
//  5. Shutdown metrics server
//  6. Close the job store
//
// # Related Packages
//
//   - [clip-merger/internal/merge]: Merge pipeline stages and orchestration
//   - [clip-merger/internal/handlers]: HTTP request handlers
//   - [clip-merger/internal/database]: SQLite job history
//   - [clip-merger/internal/transcoder]: ffmpeg/ffprobe process runner
//   - [clip-merger/internal/startup]: Configuration and initialization
package main
