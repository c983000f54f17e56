package merge

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"slices"
	"strings"

	"github.com/google/renameio/v2"

	fg "clip-merger/internal/filtergraph"
	"clip-merger/internal/probe"
	"clip-merger/internal/transcoder"
)

// TransitionOffsets computes the running-timeline offsets for a chain of
// binary cross-fades. offsets[i-1] is where clip i starts fading in, relative
// to the composite built so far. total is the expected output duration.
//
// runningTime starts at durations[0]; for each later clip the offset is
// max(runningTime-d, 0) and runningTime then grows by max(duration-d, 0), so
// offsets are never negative and runningTime never decreases.
func TransitionOffsets(durations []float64, d float64) (offsets []float64, total float64) {
	if len(durations) == 0 {
		return nil, 0
	}
	running := math.Max(durations[0], 0)
	if len(durations) == 1 {
		return nil, running
	}

	offsets = make([]float64, 0, len(durations)-1)
	for _, dur := range durations[1:] {
		offsets = append(offsets, math.Max(running-d, 0))
		running += math.Max(dur-d, 0)
	}
	return offsets, running
}

// ConcatResult is the output of the concatenate stage.
type ConcatResult struct {
	Artifact    Artifact
	Duration    float64
	CrossFade   bool
	Diagnostics []Diagnostic
}

// Concatenator joins normalized clips into one file.
type Concatenator struct {
	runner       transcoder.Runner
	prober       *probe.Prober
	probeWorkers int
}

// NewConcatenator creates a Concatenator. probeWorkers bounds concurrent
// duration probes.
func NewConcatenator(runner transcoder.Runner, prober *probe.Prober, probeWorkers int) *Concatenator {
	return &Concatenator{runner: runner, prober: prober, probeWorkers: probeWorkers}
}

// Concat picks the pass-through path for a single clip or TransitionNone and
// the cross-fade path otherwise. Any transcoder error is returned as a
// *StageError wrapping ErrConcatenationFailure.
func (c *Concatenator) Concat(ctx context.Context, clips []Artifact, t TransitionSpec, ws *Workspace) (*ConcatResult, error) {
	if len(clips) == 0 {
		return nil, fmt.Errorf("%w: nothing to concatenate", ErrConcatenationFailure)
	}

	paths := make([]string, len(clips))
	for i, a := range clips {
		paths[i] = a.Path()
	}
	probed := c.prober.DurationsOf(ctx, paths, c.probeWorkers)

	res := &ConcatResult{}
	durations := make([]float64, len(probed))
	for i, p := range probed {
		durations[i] = p.Seconds
		if p.Err != nil {
			res.Diagnostics = append(res.Diagnostics, newDiagnostic(StageProbe, p.Path, p.Err))
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var err error
	if t.Enabled() && len(clips) > 1 {
		res.CrossFade = true
		res.Artifact, res.Duration, err = c.crossFade(ctx, clips, durations, t, ws)
	} else {
		res.Artifact, err = c.passThrough(ctx, clips, ws)
		for _, d := range durations {
			res.Duration += d
		}
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (c *Concatenator) passThrough(ctx context.Context, clips []Artifact, ws *Workspace) (Artifact, error) {
	manifest := ws.Path("concat", ".txt")
	if err := WriteManifest(manifest, clips); err != nil {
		return "", newStageError(StageConcat, ErrConcatenationFailure, manifest, err)
	}

	out := ws.Path("merged_raw", ".mp4")
	if _, err := c.runner.FFmpeg(ctx, PassThroughArgs(manifest, out)...); err != nil {
		return "", newStageError(StageConcat, ErrConcatenationFailure, "", err)
	}
	return Artifact(out), nil
}

func (c *Concatenator) crossFade(ctx context.Context, clips []Artifact, durations []float64, t TransitionSpec, ws *Workspace) (Artifact, float64, error) {
	offsets, total := TransitionOffsets(durations, t.Duration)
	graph, vOut, aOut := CrossFadeGraph(len(clips), t, offsets)
	if err := checkCrossFadeGraph(graph, vOut, aOut); err != nil {
		return "", 0, newStageError(StageConcat, ErrConcatenationFailure, "", err)
	}

	out := ws.Path("merged_transition", ".mp4")
	if _, err := c.runner.FFmpeg(ctx, CrossFadeArgs(clips, graph, vOut, aOut, out)...); err != nil {
		return "", 0, newStageError(StageConcat, ErrConcatenationFailure, "", err)
	}
	return Artifact(out), total, nil
}

// ManifestLine renders one concat-demuxer entry. Single quotes inside the
// path are closed, escaped and reopened.
func ManifestLine(path string) string {
	return "file '" + strings.ReplaceAll(path, "'", `'\''`) + "'"
}

// WriteManifest atomically writes a concat-demuxer manifest listing the
// absolute path of every clip.
func WriteManifest(path string, clips []Artifact) error {
	var b strings.Builder
	for _, c := range clips {
		abs, err := filepath.Abs(c.Path())
		if err != nil {
			return fmt.Errorf("resolve %s: %w", c, err)
		}
		b.WriteString(ManifestLine(abs))
		b.WriteByte('\n')
	}
	return renameio.WriteFile(path, []byte(b.String()), 0o644)
}

// PassThroughArgs builds the stream-copy concat command.
func PassThroughArgs(manifest, output string) []string {
	return []string{"-y", "-f", "concat", "-safe", "0", "-i", manifest, "-c", "copy", output}
}

// CrossFadeGraph builds the xfade/acrossfade chain for n inputs and returns
// the graph with its final video and audio labels. Video and audio share the
// same offsets so the two stay in sync.
func CrossFadeGraph(n int, t TransitionSpec, offsets []float64) (g *fg.Graph, vOut, aOut string) {
	g = &fg.Graph{}
	vOut, aOut = fg.Stream(0, "v"), fg.Stream(0, "a")

	for i := 1; i < n; i++ {
		var offset float64
		if i-1 < len(offsets) {
			offset = offsets[i-1]
		}
		v := fmt.Sprintf("v%d", i)
		a := fmt.Sprintf("a%d", i)

		g.Add([]string{vOut, fg.Stream(i, "v")}, []fg.Filter{
			fg.F("xfade",
				fg.KV("transition", string(t.Kind)),
				fg.KV("duration", t.Duration),
				fg.KV("offset", roundMillis(offset))),
		}, v)
		g.Add([]string{aOut, fg.Stream(i, "a")}, []fg.Filter{
			fg.F("acrossfade",
				fg.KV("d", t.Duration),
				fg.KV("c1", "tri"),
				fg.KV("c2", "tri")),
		}, a)

		vOut, aOut = v, a
	}
	return g, vOut, aOut
}

// checkCrossFadeGraph validates the label wiring and requires the graph's
// only outputs to be the mapped video and audio labels.
func checkCrossFadeGraph(g *fg.Graph, vOut, aOut string) error {
	outs, err := g.Validate()
	if err != nil {
		return err
	}
	if len(outs) != 2 || !slices.Contains(outs, vOut) || !slices.Contains(outs, aOut) {
		return fmt.Errorf("cross-fade graph outputs %v, want [%s] and [%s]", outs, vOut, aOut)
	}
	return nil
}

// CrossFadeArgs builds the re-encoding cross-fade command.
func CrossFadeArgs(clips []Artifact, graph *fg.Graph, vOut, aOut, output string) []string {
	args := []string{"-y"}
	for _, c := range clips {
		args = append(args, "-i", c.Path())
	}
	return append(args,
		"-filter_complex", graph.String(),
		"-map", fg.Label(vOut),
		"-map", fg.Label(aOut),
		"-c:v", videoCodec, "-preset", videoPreset, "-pix_fmt", pixelFormat,
		"-c:a", audioCodec,
		output,
	)
}

// roundMillis trims float noise from accumulated offsets (9.399999999 -> 9.4).
func roundMillis(v float64) float64 {
	return math.Round(v*1000) / 1000
}
