package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio/v2"
	"github.com/spf13/cobra"

	"clip-merger/internal/filesystem"
	"clip-merger/internal/merge"
	"clip-merger/internal/transcoder"
)

// toolOptions configures the ffmpeg runner shared by merge and probe.
type toolOptions struct {
	ffmpeg       string
	ffprobe      string
	timeout      time.Duration
	probeTimeout time.Duration
}

func (o *toolOptions) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&o.ffmpeg, "ffmpeg", envOr("FFMPEG_PATH", "ffmpeg"), "ffmpeg binary")
	flags.StringVar(&o.ffprobe, "ffprobe", envOr("FFPROBE_PATH", "ffprobe"), "ffprobe binary")
	flags.DurationVar(&o.timeout, "timeout", 30*time.Minute, "per ffmpeg invocation time bound (0 = none)")
	flags.DurationVar(&o.probeTimeout, "probe-timeout", 30*time.Second, "per ffprobe invocation time bound (0 = none)")
}

func (o *toolOptions) transcoder(workDir string) *transcoder.Transcoder {
	return transcoder.New(transcoder.Config{
		FFmpegPath:   o.ffmpeg,
		FFprobePath:  o.ffprobe,
		Timeout:      o.timeout,
		ProbeTimeout: o.probeTimeout,
		WorkDir:      workDir,
	})
}

type mergeOptions struct {
	tools toolOptions

	clips              []string
	intro, outro       string
	music              string
	preset             string
	filters            []string
	transition         string
	transitionDuration float64
	audioMode          string
	originalVolume     float64
	musicVolume        float64
	ducking            bool
	output             string
	workDir            string
	workers            int
	keep               bool
}

func newMergeCmd() *cobra.Command {
	opts := &mergeOptions{}

	cmd := &cobra.Command{
		Use:   "merge --clip a.mp4 --clip b.mp4 [flags]",
		Short: "Merge clips into a single video",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMerge(cmd, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringArrayVar(&opts.clips, "clip", nil, "clip to merge, in order (repeatable)")
	flags.StringVar(&opts.intro, "intro", "", "clip played before all others")
	flags.StringVar(&opts.outro, "outro", "", "clip played after all others")
	flags.StringVar(&opts.music, "music", "", "background music for the mix and music audio modes")
	flags.StringVar(&opts.preset, "preset", merge.PresetOriginal, "output resolution preset")
	flags.StringArrayVar(&opts.filters, "filter", nil, "visual filter from the catalog (repeatable)")
	flags.StringVar(&opts.transition, "transition", string(merge.TransitionNone), "cross-fade transition")
	flags.Float64Var(&opts.transitionDuration, "transition-duration", merge.DefaultTransitionDuration, "transition length in seconds")
	flags.StringVar(&opts.audioMode, "audio-mode", string(merge.AudioOriginal), "audio mode: original, mix or music")
	flags.Float64Var(&opts.originalVolume, "original-volume", merge.DefaultOriginalVolume, "volume factor of the clips' audio")
	flags.Float64Var(&opts.musicVolume, "music-volume", merge.DefaultMusicVolume, "volume factor of the background music")
	flags.BoolVar(&opts.ducking, "ducking", false, "lower the music while the clips have sound")
	flags.StringVarP(&opts.output, "output", "o", merge.DefaultOutputName, "output file")
	flags.StringVar(&opts.workDir, "work-dir", os.TempDir(), "parent directory of the job workspace")
	flags.IntVar(&opts.workers, "workers", 0, "parallel normalize encodes (0 = NORMALIZE_WORKERS or default)")
	flags.BoolVar(&opts.keep, "keep", false, "keep the job workspace for inspection")
	opts.tools.register(cmd)

	return cmd
}

// job builds the merge job. Unknown transitions, audio modes and filters
// fall back the same way the HTTP API does, with a warning on warn.
func (o *mergeOptions) job(warn io.Writer) (*merge.MergeJob, error) {
	if len(o.clips) == 0 {
		return nil, fmt.Errorf("at least one --clip is required")
	}
	for _, p := range append(append([]string{}, o.clips...), o.intro, o.outro, o.music) {
		if p == "" {
			continue
		}
		if _, err := filesystem.StatWithRetry(p, filesystem.DefaultRetryConfig()); err != nil {
			return nil, err
		}
	}

	transition := merge.ParseTransition(o.transition)
	if string(transition) != o.transition {
		fmt.Fprintf(warn, "warning: unknown transition %q, using %s\n", o.transition, transition)
	}
	mode := merge.ParseAudioMode(o.audioMode)
	if string(mode) != o.audioMode {
		fmt.Fprintf(warn, "warning: unknown audio mode %q, using %s\n", o.audioMode, mode)
	}
	var filters []string
	for _, f := range o.filters {
		if _, ok := merge.LookupFilter(f); !ok {
			fmt.Fprintf(warn, "warning: unknown filter %q ignored\n", f)
			continue
		}
		filters = append(filters, f)
	}

	job := &merge.MergeJob{
		Preset:        o.preset,
		Normalization: merge.NormalizationSpec{Filters: filters},
		Transition:    merge.NewTransitionSpec(transition, o.transitionDuration),
		Audio: merge.AudioPolicy{
			Mode:           mode,
			OriginalVolume: o.originalVolume,
			MusicVolume:    o.musicVolume,
			Ducking:        o.ducking,
		},
		OutputName: filepath.Base(o.output),
	}
	for _, c := range o.clips {
		job.Clips = append(job.Clips, merge.NewAsset(c, merge.RoleClip))
	}
	job.Intro = optionalAsset(o.intro, merge.RoleIntro)
	job.Outro = optionalAsset(o.outro, merge.RoleOutro)
	job.Audio.Music = optionalAsset(o.music, merge.RoleBackgroundMusic)
	return job, nil
}

func optionalAsset(path string, role merge.Role) *merge.MediaAsset {
	if path == "" {
		return nil
	}
	a := merge.NewAsset(path, role)
	return &a
}

func runMerge(cmd *cobra.Command, opts *mergeOptions) error {
	job, err := opts.job(cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	trans := opts.tools.transcoder(opts.workDir)
	defer trans.Cleanup()

	pipeline := merge.NewPipeline(trans, merge.Config{
		WorkDir:          opts.workDir,
		KeepArtifacts:    opts.keep,
		NormalizeWorkers: opts.workers,
	})

	res, err := pipeline.Run(cmd.Context(), job)
	if err != nil {
		return err
	}
	defer func() {
		if err := res.Release(); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
		}
	}()

	if err := copyFile(res.Artifact.Path(), opts.output); err != nil {
		return fmt.Errorf("write %s: %w", opts.output, err)
	}

	printSummary(cmd.OutOrStdout(), opts.output, job, res)
	return nil
}

func printSummary(w io.Writer, output string, job *merge.MergeJob, res *merge.Result) {
	fmt.Fprintf(w, "%s: %d clip(s), %.2fs, %s\n", output, res.Clips, res.Duration, res.Resolution)
	if job.Transition.Enabled() && !res.CrossFade {
		fmt.Fprintln(w, "single input: transition not applied")
	}
	for _, d := range res.Diagnostics {
		fmt.Fprintf(w, "  %s: %s\n", d.Stage, d.Message)
	}
}

// copyFile replaces dst with the contents of src atomically.
func copyFile(src, dst string) error {
	in, err := filesystem.OpenWithRetry(src, filesystem.DefaultRetryConfig())
	if err != nil {
		return err
	}
	defer in.Close()

	pending, err := renameio.NewPendingFile(dst, renameio.WithPermissions(0o644))
	if err != nil {
		return err
	}
	defer func() { _ = pending.Cleanup() }()

	if _, err := io.Copy(pending, in); err != nil {
		return err
	}
	return pending.CloseAtomicallyReplace()
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
