package merge

import (
	"context"
	"strconv"

	fg "clip-merger/internal/filtergraph"
	"clip-merger/internal/probe"
	"clip-merger/internal/transcoder"
)

// Output encoding shared by the normalize and cross-fade stages. Fixing the
// pixel format and audio layout keeps normalized clips bit-compatible for
// the stream-copy concat path.
const (
	videoCodec    = "libx264"
	videoPreset   = "faster"
	audioCodec    = "aac"
	pixelFormat   = "yuv420p"
	audioRate     = 48000
	audioChannels = 2
)

// Normalizer rescales, pads, filters and re-encodes a single clip.
type Normalizer struct {
	runner transcoder.Runner
	prober *probe.Prober
}

// NewNormalizer creates a Normalizer. prober may be nil, in which case every
// input is assumed to carry an audio stream.
func NewNormalizer(runner transcoder.Runner, prober *probe.Prober) *Normalizer {
	return &Normalizer{runner: runner, prober: prober}
}

// VideoFilters returns scale-to-fit, centre pad and the catalog filters in
// request order.
func (s NormalizationSpec) VideoFilters() []fg.Filter {
	filters := []fg.Filter{
		fg.F("scale", fg.Pos(s.Width), fg.Pos(s.Height), fg.KV("force_original_aspect_ratio", "decrease")),
		fg.F("pad", fg.Pos(s.Width), fg.Pos(s.Height), fg.Pos("(ow-iw)/2"), fg.Pos("(oh-ih)/2")),
	}
	return append(filters, CatalogFilters(s.Filters)...)
}

// FilterChain returns the -vf graph for the spec.
func (s NormalizationSpec) FilterChain() *fg.Graph {
	g := &fg.Graph{}
	g.Add(nil, s.VideoFilters())
	return g
}

// silentSource is the lavfi input used for clips without audio.
func silentSource() string {
	return fg.F("anullsrc",
		fg.KV("channel_layout", "stereo"),
		fg.KV("sample_rate", audioRate)).String()
}

// NormalizeArgs builds the ffmpeg arguments for one clip. Clips without an
// audio stream get a silent track so every normalized clip has one, which
// the cross-fade path requires.
func NormalizeArgs(input, output string, spec NormalizationSpec, hasAudio bool) []string {
	rate := spec.FrameRate
	if rate <= 0 {
		rate = FrameRate
	}

	args := []string{"-y", "-i", input}
	if !hasAudio {
		args = append(args, "-f", "lavfi", "-i", silentSource())
	}
	args = append(args, "-vf", spec.FilterChain().String())
	if !hasAudio {
		args = append(args, "-map", "0:v:0", "-map", "1:a:0", "-shortest")
	}
	args = append(args,
		"-r", strconv.Itoa(rate),
		"-c:v", videoCodec, "-preset", videoPreset, "-pix_fmt", pixelFormat,
		"-c:a", audioCodec, "-ar", strconv.Itoa(audioRate), "-ac", strconv.Itoa(audioChannels),
		output,
	)
	return args
}

// Normalize converts input to spec and writes one new file into ws. A
// failure is returned as a *StageError wrapping ErrNormalizationFailure.
func (n *Normalizer) Normalize(ctx context.Context, input MediaAsset, spec NormalizationSpec, ws *Workspace) (Artifact, error) {
	hasAudio := true
	if n.prober != nil {
		if pr, err := n.prober.Probe(ctx, input.Path); err == nil && pr.PrimaryVideo != nil {
			hasAudio = pr.HasAudio()
		}
	}

	out := ws.Path("norm", ".mp4")
	if _, err := n.runner.FFmpeg(ctx, NormalizeArgs(input.Path, out, spec, hasAudio)...); err != nil {
		return "", newStageError(StageNormalize, ErrNormalizationFailure, input.Path, err)
	}
	return Artifact(out), nil
}
