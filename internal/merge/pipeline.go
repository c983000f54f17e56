package merge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"clip-merger/internal/logging"
	"clip-merger/internal/metrics"
	"clip-merger/internal/probe"
	"clip-merger/internal/transcoder"
	"clip-merger/internal/workers"
)

// Config holds the orchestrator settings. Directories are explicit so tests
// can point them at temporary locations.
type Config struct {
	WorkDir          string
	KeepArtifacts    bool
	NormalizeWorkers int
	ProbeWorkers     int
}

// JobRecorder persists job history. Failures are logged and never fail a merge.
type JobRecorder interface {
	JobStarted(ctx context.Context, job *MergeJob) error
	JobFinished(ctx context.Context, job *MergeJob, res *Result, jobErr error) error
}

// Backpressure lets the pipeline wait for memory pressure to clear before
// starting encodes. *memory.Monitor satisfies it.
type Backpressure interface {
	WaitIfPaused(ctx context.Context) bool
}

// StageTiming is the wall-clock time spent in one stage.
type StageTiming struct {
	Stage    Stage         `json:"stage"`
	Duration time.Duration `json:"duration"`
}

// Result is a finished merge. The artifact lives in the job workspace until
// Release is called.
type Result struct {
	JobID       string
	Artifact    Artifact
	Duration    float64
	Resolution  Resolution
	Clips       int
	CrossFade   bool
	Diagnostics []Diagnostic
	Stages      []StageTiming

	workspace *Workspace
}

// Release removes the job workspace, including the final artifact.
func (r *Result) Release() error {
	if r == nil || r.workspace == nil {
		return nil
	}
	return r.workspace.Release()
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithRecorder stores job history in rec.
func WithRecorder(rec JobRecorder) Option {
	return func(p *Pipeline) { p.recorder = rec }
}

// WithBackpressure gates normalize encodes on bp.
func WithBackpressure(bp Backpressure) Option {
	return func(p *Pipeline) { p.backpressure = bp }
}

// Pipeline runs the probe -> normalize x N -> concatenate -> mix DAG.
type Pipeline struct {
	cfg          Config
	prober       *probe.Prober
	normalizer   *Normalizer
	concatenator *Concatenator
	mixer        *AudioMixer
	recorder     JobRecorder
	backpressure Backpressure
	log          zerolog.Logger
}

// NewPipeline wires the stages around a single transcoder.
func NewPipeline(runner transcoder.Runner, cfg Config, opts ...Option) *Pipeline {
	if cfg.NormalizeWorkers <= 0 {
		cfg.NormalizeWorkers = workers.ForNormalize()
	}
	if cfg.ProbeWorkers <= 0 {
		cfg.ProbeWorkers = workers.ForProbe()
	}

	prober := probe.New(runner)
	p := &Pipeline{
		cfg:          cfg,
		prober:       prober,
		normalizer:   NewNormalizer(runner, prober),
		concatenator: NewConcatenator(runner, prober, cfg.ProbeWorkers),
		mixer:        NewAudioMixer(runner),
		log:          logging.With("pipeline"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Prober exposes the pipeline's prober for callers that probe uploads.
func (p *Pipeline) Prober() *probe.Prober { return p.prober }

// Run executes job. On success the caller owns the result and must call
// Release once the artifact has been delivered. On failure no artifact is
// returned and the workspace has already been removed.
func (p *Pipeline) Run(ctx context.Context, job *MergeJob) (_ *Result, err error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	job.OutputName = SanitizeOutputName(job.OutputName)
	log := p.log.With().Str("job_id", job.ID).Logger()

	if err := job.Validate(); err != nil {
		metrics.JobsTotal.WithLabelValues("invalid").Inc()
		log.Warn().Err(err).Msg("merge rejected")
		return nil, err
	}

	ws, err := NewWorkspace(p.cfg.WorkDir, job.ID, p.cfg.KeepArtifacts)
	if err != nil {
		metrics.JobsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	start := time.Now()
	metrics.JobsInProgress.Inc()
	out := &Result{JobID: job.ID, workspace: ws}

	defer func() {
		metrics.JobsInProgress.Dec()
		metrics.JobDuration.Observe(time.Since(start).Seconds())
		metrics.JobsTotal.WithLabelValues(jobStatus(err)).Inc()

		if rerr := p.recordFinished(job, out, err); rerr != nil {
			log.Warn().Err(rerr).Msg("failed to record job result")
		}

		if err != nil {
			if cerr := ws.Release(); cerr != nil {
				err = errors.Join(err, cerr)
			}
			log.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("merge failed")
			return
		}
		log.Info().
			Str("artifact", out.Artifact.Path()).
			Float64("duration", out.Duration).
			Int("clips", out.Clips).
			Int("diagnostics", len(out.Diagnostics)).
			Dur("elapsed", time.Since(start)).
			Msg("merge finished")
	}()

	// probe: resolve the target frame size
	spec := job.Normalization
	p.timed(out, StageProbe, func() {
		target := p.resolveTarget(ctx, job, out)
		spec.Width, spec.Height = target.Width, target.Height
	})
	if spec.FrameRate <= 0 {
		spec.FrameRate = FrameRate
	}
	job.Normalization = spec
	out.Resolution = spec.Resolution()

	if rerr := p.recordStarted(job); rerr != nil {
		log.Warn().Err(rerr).Msg("failed to record job start")
	}

	log.Info().
		Int("clips", len(job.Clips)).
		Str("resolution", out.Resolution.String()).
		Str("transition", string(job.Transition.Kind)).
		Str("audio_mode", string(job.Audio.Mode)).
		Msg("merge started")

	// normalize x N
	var normalized []Artifact
	p.timed(out, StageNormalize, func() {
		normalized = p.normalizeAll(ctx, job.Sources(), spec, ws, out)
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(normalized) == 0 {
		return nil, fmt.Errorf("%w: all %d inputs failed normalization", ErrNoValidInput, len(job.Sources()))
	}
	out.Clips = len(normalized)

	// concatenate
	var concat *ConcatResult
	p.timed(out, StageConcat, func() {
		concat, err = p.concatenator.Concat(ctx, normalized, job.Transition, ws)
	})
	if err != nil {
		return nil, err
	}
	out.Diagnostics = append(out.Diagnostics, concat.Diagnostics...)
	out.CrossFade = concat.CrossFade
	out.Duration = concat.Duration

	// mix
	var final Artifact
	p.timed(out, StageAudioMix, func() {
		final, err = p.mixer.Mix(ctx, concat.Artifact, job.Audio, ws)
	})
	if err != nil {
		return nil, err
	}
	out.Artifact = final
	metrics.ClipsMerged.Add(float64(out.Clips))

	return out, nil
}

// resolveTarget maps the preset to a frame size. "original" probes the first
// clip and falls back to DefaultResolution.
func (p *Pipeline) resolveTarget(ctx context.Context, job *MergeJob, res *Result) Resolution {
	if job.Normalization.Width > 0 && job.Normalization.Height > 0 {
		return job.Normalization.Resolution()
	}
	if job.Preset != PresetOriginal && job.Preset != "" {
		r, ok := LookupPreset(job.Preset)
		if !ok {
			p.log.Debug().Str("preset", job.Preset).Msg("unknown preset, using default resolution")
		}
		return r
	}

	first := &job.Clips[0]
	if first.Width > 0 && first.Height > 0 {
		return Resolution{Width: first.Width, Height: first.Height}
	}
	pr := p.prober.Resolution(ctx, first.Path)
	if !pr.Found() {
		if pr.Err != nil {
			res.Diagnostics = append(res.Diagnostics, newDiagnostic(StageProbe, first.Path, pr.Err))
		}
		return DefaultResolution
	}
	first.Width, first.Height = pr.Width, pr.Height
	return Resolution{Width: pr.Width, Height: pr.Height}
}

// normalizeAll runs the normalize fan-out and returns the surviving
// artifacts in source order. Failed inputs are recorded and dropped.
func (p *Pipeline) normalizeAll(ctx context.Context, sources []MediaAsset, spec NormalizationSpec, ws *Workspace, res *Result) []Artifact {
	outputs := make([]Artifact, len(sources))
	failures := make([]error, len(sources))

	var g errgroup.Group
	g.SetLimit(p.cfg.NormalizeWorkers)

	for i, src := range sources {
		g.Go(func() error {
			if p.backpressure != nil && !p.backpressure.WaitIfPaused(ctx) {
				if err := ctx.Err(); err != nil {
					failures[i] = err
					return nil
				}
				failures[i] = newStageError(StageNormalize, ErrNormalizationFailure, src.Path, errors.New("memory monitor stopped"))
				return nil
			}
			if err := ctx.Err(); err != nil {
				failures[i] = err
				return nil
			}
			outputs[i], failures[i] = p.normalizer.Normalize(ctx, src, spec, ws)
			return nil
		})
	}
	_ = g.Wait()

	var survivors []Artifact
	for i, src := range sources {
		if failures[i] != nil {
			if ctx.Err() == nil {
				metrics.NormalizeFailures.Inc()
				p.log.Warn().Err(failures[i]).Str("input", src.Path).Str("role", string(src.Role)).Msg("dropping input")
			}
			res.Diagnostics = append(res.Diagnostics, newDiagnostic(StageNormalize, src.Path, failures[i]))
			continue
		}
		survivors = append(survivors, outputs[i])
	}
	return survivors
}

func (p *Pipeline) timed(res *Result, stage Stage, fn func()) {
	start := time.Now()
	fn()
	d := time.Since(start)

	metrics.StageDuration.WithLabelValues(string(stage)).Observe(d.Seconds())
	res.Stages = append(res.Stages, StageTiming{Stage: stage, Duration: d})
}

func (p *Pipeline) recordStarted(job *MergeJob) error {
	if p.recorder == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return p.recorder.JobStarted(ctx, job)
}

func (p *Pipeline) recordFinished(job *MergeJob, res *Result, jobErr error) error {
	if p.recorder == nil {
		return nil
	}
	// The request context may already be cancelled; history is still written.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return p.recorder.JobFinished(ctx, job, res, jobErr)
}

func jobStatus(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, transcoder.ErrTimeout):
		return "timeout"
	case IsValidationError(err):
		return "invalid"
	default:
		return "error"
	}
}
