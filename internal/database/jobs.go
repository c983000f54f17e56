package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"clip-merger/internal/merge"
	"clip-merger/internal/metrics"
	"clip-merger/internal/probe"
	"clip-merger/internal/transcoder"
)

// ErrJobNotFound is returned by GetJob for unknown IDs.
var ErrJobNotFound = errors.New("job not found")

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// JobStarted inserts a running job. It implements merge.JobRecorder.
func (d *Database) JobStarted(ctx context.Context, job *merge.MergeJob) (err error) {
	start := time.Now()
	defer func() { recordQuery("create_job", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	result, err := d.db.ExecContext(ctx, `
		INSERT INTO jobs (id, status, clip_count, has_intro, has_outro, preset, width, height,
			transition, transition_duration, audio_mode, output_name, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		job.ID,
		JobRunning,
		len(job.Clips),
		job.Intro != nil,
		job.Outro != nil,
		job.Preset,
		job.Normalization.Width,
		job.Normalization.Height,
		transitionName(job.Transition),
		job.Transition.Duration,
		string(job.Audio.Mode),
		job.OutputName,
		start.Unix(),
	)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n > 0 {
		d.adjustStats(func(s *metrics.Stats) {
			s.TotalJobs++
			s.RunningJobs++
		})
	}
	return nil
}

// JobFinished records the outcome of a job and its diagnostics. A job that
// failed before JobStarted ran is inserted directly as failed. It implements
// merge.JobRecorder.
func (d *Database) JobFinished(ctx context.Context, job *merge.MergeJob, res *merge.Result, jobErr error) (err error) {
	start := time.Now()
	defer func() { recordQuery("finish_job", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				err = errors.Join(err, fmt.Errorf("rollback also failed: %w", rbErr))
			}
		}
	}()

	var prior string
	err = tx.QueryRowContext(ctx, "SELECT status FROM jobs WHERE id = ?", job.ID).Scan(&prior)
	inserted := errors.Is(err, sql.ErrNoRows)
	if inserted {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO jobs (id, status, clip_count, has_intro, has_outro, preset, transition,
				transition_duration, audio_mode, output_name)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, job.ID, JobRunning, len(job.Clips), job.Intro != nil, job.Outro != nil, job.Preset,
			transitionName(job.Transition), job.Transition.Duration, string(job.Audio.Mode), job.OutputName)
	}
	if err != nil {
		return err
	}

	status := JobSucceeded
	var errMsg, kind string
	if jobErr != nil {
		status = JobFailed
		errMsg = jobErr.Error()
		kind = ErrorKind(jobErr)
	}

	var (
		merged     int
		duration   float64
		crossFade  bool
		width      = job.Normalization.Width
		height     = job.Normalization.Height
		diagnostic []merge.Diagnostic
	)
	if res != nil {
		merged, duration, crossFade = res.Clips, res.Duration, res.CrossFade
		if res.Resolution.Valid() {
			width, height = res.Resolution.Width, res.Resolution.Height
		}
		diagnostic = res.Diagnostics
	}

	now := time.Now()
	_, err = tx.ExecContext(ctx, `
		UPDATE jobs SET
			status = ?, width = ?, height = ?, clips_merged = ?, duration = ?, cross_fade = ?,
			error = ?, error_kind = ?, finished_at = ?,
			elapsed_ms = MAX(0, ? - created_at * 1000)
		WHERE id = ?
	`, status, width, height, merged, duration, crossFade, errMsg, kind, now.Unix(), now.UnixMilli(), job.ID)
	if err != nil {
		return err
	}

	for _, diag := range diagnostic {
		if _, err = tx.ExecContext(ctx,
			"INSERT INTO job_diagnostics (job_id, stage, input, message) VALUES (?, ?, ?, ?)",
			job.ID, string(diag.Stage), diag.Input, diag.Message,
		); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return err
	}

	d.adjustStats(func(s *metrics.Stats) {
		if inserted {
			s.TotalJobs++
		} else if JobStatus(prior) == JobRunning {
			s.RunningJobs--
		}
		if status == JobSucceeded {
			s.SucceededJobs++
		} else {
			s.FailedJobs++
		}
	})
	return nil
}

// GetJob returns a job with its diagnostics.
func (d *Database) GetJob(ctx context.Context, id string) (job *Job, err error) {
	start := time.Now()
	defer func() {
		if errors.Is(err, ErrJobNotFound) {
			recordQuery("get_job", start, nil)
			return
		}
		recordQuery("get_job", start, err)
	}()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	row := d.db.QueryRowContext(ctx, "SELECT "+jobColumns+" FROM jobs WHERE id = ?", id)
	job, err = scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := d.db.QueryContext(ctx,
		"SELECT stage, input, message FROM job_diagnostics WHERE job_id = ? ORDER BY id", id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var diag JobDiagnostic
		if err = rows.Scan(&diag.Stage, &diag.Input, &diag.Message); err != nil {
			return nil, err
		}
		job.Diagnostics = append(job.Diagnostics, diag)
	}
	return job, rows.Err()
}

// ListJobs returns one page of jobs, newest first. Diagnostics are not loaded.
func (d *Database) ListJobs(ctx context.Context, opts ListOptions) (list *JobList, err error) {
	start := time.Now()
	defer func() { recordQuery("list_jobs", start, err) }()

	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.PageSize <= 0 {
		opts.PageSize = defaultPageSize
	}
	opts.PageSize = min(opts.PageSize, maxPageSize)

	var (
		where string
		args  []any
	)
	if opts.Status != "" {
		where = " WHERE status = ?"
		args = append(args, string(opts.Status))
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	list = &JobList{Items: []Job{}, Page: opts.Page, PageSize: opts.PageSize}
	if err = d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM jobs"+where, args...).Scan(&list.TotalItems); err != nil {
		return nil, err
	}
	list.TotalPages = (list.TotalItems + opts.PageSize - 1) / opts.PageSize

	query := "SELECT " + jobColumns + " FROM jobs" + where + " ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?"
	args = append(args, opts.PageSize, (opts.Page-1)*opts.PageSize)

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		job, scanErr := scanJob(rows)
		if scanErr != nil {
			err = scanErr
			return nil, err
		}
		list.Items = append(list.Items, *job)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

// PruneJobs deletes finished jobs created before cutoff and returns the
// number removed. Running jobs are kept.
func (d *Database) PruneJobs(ctx context.Context, cutoff time.Time) (int64, error) {
	n, err := d.pruneJobs(ctx, cutoff)
	if err != nil || n == 0 {
		return n, err
	}
	return n, d.RefreshStats(ctx)
}

func (d *Database) pruneJobs(ctx context.Context, cutoff time.Time) (n int64, err error) {
	start := time.Now()
	defer func() { recordQuery("prune_jobs", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	result, err := d.db.ExecContext(ctx,
		"DELETE FROM jobs WHERE status != ? AND created_at < ?", JobRunning, cutoff.Unix())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// MarkInterrupted fails every job still marked running. Called at startup,
// when no merge can be in flight.
func (d *Database) MarkInterrupted(ctx context.Context) (int64, error) {
	n, err := d.markInterrupted(ctx)
	if err != nil || n == 0 {
		return n, err
	}
	return n, d.RefreshStats(ctx)
}

func (d *Database) markInterrupted(ctx context.Context) (n int64, err error) {
	start := time.Now()
	defer func() { recordQuery("mark_interrupted", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	result, err := d.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, error = 'interrupted by restart', error_kind = 'interrupted',
			finished_at = strftime('%s', 'now')
		WHERE status = ?
	`, JobFailed, JobRunning)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// RefreshStats recounts jobs by status.
func (d *Database) RefreshStats(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { recordQuery("stats", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM jobs GROUP BY status")
	if err != nil {
		return err
	}
	defer rows.Close()

	var s metrics.Stats
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err = rows.Scan(&status, &count); err != nil {
			return err
		}
		s.TotalJobs += count
		switch JobStatus(status) {
		case JobRunning:
			s.RunningJobs = count
		case JobSucceeded:
			s.SucceededJobs = count
		case JobFailed:
			s.FailedJobs = count
		}
	}
	if err = rows.Err(); err != nil {
		return err
	}

	d.statsMu.Lock()
	d.stats = s
	d.statsMu.Unlock()
	return nil
}

// GetStats returns cached job counts. It implements metrics.StatsProvider.
func (d *Database) GetStats() metrics.Stats {
	d.statsMu.RLock()
	defer d.statsMu.RUnlock()
	return d.stats
}

func (d *Database) adjustStats(fn func(*metrics.Stats)) {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()
	fn(&d.stats)
}

// ErrorKind classifies a pipeline error for storage and API responses.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, transcoder.ErrTimeout):
		return "timeout"
	case errors.Is(err, merge.ErrMissingBackgroundMusic):
		return "missing_background_music"
	case errors.Is(err, merge.ErrNoValidInput):
		return "no_valid_input"
	case errors.Is(err, merge.ErrNormalizationFailure):
		return "normalization_failure"
	case errors.Is(err, merge.ErrConcatenationFailure):
		return "concatenation_failure"
	case errors.Is(err, merge.ErrAudioMixFailure):
		return "audio_mix_failure"
	case errors.Is(err, probe.ErrProbeFailure):
		return "probe_failure"
	default:
		return "internal"
	}
}

const jobColumns = `id, status, clip_count, has_intro, has_outro, preset, width, height,
	transition, transition_duration, audio_mode, output_name, clips_merged, duration, cross_fade,
	error, error_kind, created_at, finished_at, elapsed_ms`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var (
		job      Job
		status   string
		created  int64
		finished sql.NullInt64
	)
	err := row.Scan(
		&job.ID, &status, &job.ClipCount, &job.HasIntro, &job.HasOutro, &job.Preset,
		&job.Width, &job.Height, &job.Transition, &job.TransitionDuration, &job.AudioMode,
		&job.OutputName, &job.ClipsMerged, &job.Duration, &job.CrossFade,
		&job.Error, &job.ErrorKind, &created, &finished, &job.ElapsedMs,
	)
	if err != nil {
		return nil, err
	}
	job.Status = JobStatus(status)
	job.CreatedAt = time.Unix(created, 0)
	if finished.Valid {
		t := time.Unix(finished.Int64, 0)
		job.FinishedAt = &t
	}
	return &job, nil
}

func transitionName(t merge.TransitionSpec) string {
	if !t.Enabled() {
		return string(merge.TransitionNone)
	}
	return string(t.Kind)
}
