// Package database persists merge job history in SQLite.
//
// It stores:
//   - One row per merge job with its request summary and outcome
//   - The non-fatal diagnostics collected while the job ran
//   - Small key/value metadata such as the last workspace cleanup
//
// [Database] implements merge.JobRecorder so the pipeline can record jobs
// directly, and metrics.StatsProvider so job counts are exported. The
// database uses WAL mode and creates its schema on open.
package database
