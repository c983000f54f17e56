// Package startup loads the server configuration and writes the startup and
// shutdown log sections.
//
// # Configuration
//
// [LoadConfig] first merges .env and .env.local from the working directory
// (variables already set in the environment are never overridden), then
// reads:
//
//   - UPLOAD_DIR: uploaded clips and music (default: ./uploads)
//   - WORK_DIR: parent of per-job workspaces (default: ./merged)
//   - THUMBNAIL_DIR: generated thumbnails (default: ./static/thumbnails)
//   - DATABASE_DIR: SQLite job store (default: ./data)
//   - STATIC_DIR: web UI (default: ./static)
//   - PORT / METRICS_PORT / METRICS_ENABLED: 5000 / 9090 / true
//   - FFMPEG_PATH / FFPROBE_PATH: binaries (default: looked up on PATH)
//   - FFMPEG_TIMEOUT: bound on one ffmpeg run (default: 30m)
//   - PROBE_TIMEOUT: bound on one ffprobe run (default: 30s)
//   - NORMALIZE_WORKERS: clips normalized at once (default: min(GOMAXPROCS, 2))
//   - KEEP_ARTIFACTS: keep job workspaces after delivery (default: false)
//   - MAX_UPLOAD_MB: multipart request limit (default: 2048)
//   - JOB_HISTORY_RETENTION: age after which finished jobs are pruned, 0 keeps them (default: 720h)
//   - LOG_LEVEL, LOG_STATIC_FILES, LOG_HEALTH_CHECKS
//   - MEMORY_LIMIT, MEMORY_RATIO, GOMEMLIMIT: see package memory
//
// Invalid values fall back to the default with a warning. The upload, work
// and database directories are created if needed and must be writable;
// an unwritable thumbnail directory only disables thumbnails.
package startup
