package handlers

import (
	"context"
	"time"

	"clip-merger/internal/database"
	"clip-merger/internal/media"
	"clip-merger/internal/merge"
	"clip-merger/internal/metrics"
	"clip-merger/internal/probe"
	"clip-merger/internal/startup"
	"clip-merger/internal/streaming"
	"clip-merger/internal/transcoder"
)

// Merger runs merge jobs. *merge.Pipeline satisfies it.
type Merger interface {
	Run(ctx context.Context, job *merge.MergeJob) (*merge.Result, error)
}

// JobStore is the read side of the job history.
type JobStore interface {
	GetJob(ctx context.Context, id string) (*database.Job, error)
	ListJobs(ctx context.Context, opts database.ListOptions) (*database.JobList, error)
	Ping(ctx context.Context) error
	GetStats() metrics.Stats
}

// DurationProber reports the duration of an uploaded file.
type DurationProber interface {
	Duration(ctx context.Context, path string) probe.DurationResult
}

// Thumbnailer renders preview images for uploads.
type Thumbnailer interface {
	Generate(ctx context.Context, videoPath string) (string, error)
	IsEnabled() bool
}

// ToolChecker verifies the external media tools.
type ToolChecker interface {
	Check(ctx context.Context) (string, error)
	Running() int
}

type Handlers struct {
	merger         Merger
	jobs           JobStore
	prober         DurationProber
	thumbs         Thumbnailer
	tools          ToolChecker
	uploadDir      string
	maxUploadBytes int64
	delivery       streaming.Config
	startTime      time.Time
}

func New(pipeline *merge.Pipeline, db *database.Database, trans *transcoder.Transcoder, thumbs *media.ThumbnailGenerator, config *startup.Config) *Handlers {
	return &Handlers{
		merger:         pipeline,
		jobs:           db,
		prober:         pipeline.Prober(),
		thumbs:         thumbs,
		tools:          trans,
		uploadDir:      config.UploadDir,
		maxUploadBytes: config.MaxUploadBytes,
		delivery:       streaming.DefaultConfig(),
		startTime:      time.Now(),
	}
}
