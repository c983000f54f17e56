package merge

import (
	"context"
	"math"

	fg "clip-merger/internal/filtergraph"
	"clip-merger/internal/transcoder"
)

// volumeTolerance is how close to 1.0 the original volume must be for the
// identity fast path.
const volumeTolerance = 0.001

// Sidechain compressor settings for ducking music under speech.
const (
	duckThreshold = 0.05
	duckRatio     = 8
	duckAttackMs  = 20
	duckReleaseMs = 300
)

// AudioMixer builds the final audio track and muxes it with the video.
type AudioMixer struct {
	runner transcoder.Runner
}

// NewAudioMixer creates an AudioMixer.
func NewAudioMixer(runner transcoder.Runner) *AudioMixer {
	return &AudioMixer{runner: runner}
}

// IsIdentityMix reports whether the policy leaves the audio untouched.
func IsIdentityMix(p AudioPolicy) bool {
	return p.Mode == AudioOriginal && p.Music == nil && math.Abs(p.OriginalVolume-1.0) < volumeTolerance
}

// MixGraph builds the audio filter graph for the policy. The graph's single
// output is labelled "aout".
func MixGraph(p AudioPolicy) *fg.Graph {
	g := &fg.Graph{}
	orig := fg.Stream(0, "a")
	music := fg.Stream(1, "a")

	if p.Mode == AudioOriginal || p.Music == nil {
		return g.Add([]string{orig}, []fg.Filter{fg.F("volume", fg.Pos(p.OriginalVolume))}, "aout")
	}
	if p.Mode == AudioMusic {
		return g.Add([]string{music}, []fg.Filter{fg.F("volume", fg.Pos(p.MusicVolume))}, "aout")
	}

	amix := fg.F("amix",
		fg.KV("inputs", 2),
		fg.KV("duration", "first"),
		fg.KV("dropout_transition", 2))

	if !p.Ducking {
		g.Add([]string{orig}, []fg.Filter{fg.F("volume", fg.Pos(p.OriginalVolume))}, "orig")
		g.Add([]string{music}, []fg.Filter{fg.F("volume", fg.Pos(p.MusicVolume))}, "bg")
		return g.Add([]string{"orig", "bg"}, []fg.Filter{amix}, "aout")
	}

	// The original track is both the sidechain key and a mix input; a pad
	// can only be consumed once, so split it.
	g.Add([]string{orig}, []fg.Filter{
		fg.F("volume", fg.Pos(p.OriginalVolume)),
		fg.F("asplit", fg.Pos(2)),
	}, "orig", "key")
	g.Add([]string{music}, []fg.Filter{fg.F("volume", fg.Pos(p.MusicVolume))}, "bg")
	g.Add([]string{"bg", "key"}, []fg.Filter{
		fg.F("sidechaincompress",
			fg.KV("threshold", duckThreshold),
			fg.KV("ratio", duckRatio),
			fg.KV("attack", duckAttackMs),
			fg.KV("release", duckReleaseMs)),
	}, "bgduck")
	return g.Add([]string{"orig", "bgduck"}, []fg.Filter{amix}, "aout")
}

// MixArgs builds the ffmpeg command. Music is looped indefinitely and the
// output trimmed to the shortest stream; video is stream-copied.
func MixArgs(video Artifact, p AudioPolicy, graph *fg.Graph, output string) []string {
	args := []string{"-y", "-i", video.Path()}
	if p.Music != nil {
		args = append(args, "-stream_loop", "-1", "-i", p.Music.Path)
	}
	return append(args,
		"-filter_complex", graph.String(),
		"-map", "0:v:0",
		"-map", fg.Label("aout"),
		"-c:v", "copy",
		"-c:a", audioCodec,
		"-shortest",
		output,
	)
}

// Mix produces the final artifact. The identity policy returns video itself.
// Any transcoder error is returned as a *StageError wrapping ErrAudioMixFailure.
func (m *AudioMixer) Mix(ctx context.Context, video Artifact, p AudioPolicy, ws *Workspace) (Artifact, error) {
	if IsIdentityMix(p) {
		return video, nil
	}

	graph := MixGraph(p)
	if _, err := graph.Validate(); err != nil {
		return "", newStageError(StageAudioMix, ErrAudioMixFailure, "", err)
	}

	out := ws.Path("merged_audio", ".mp4")
	if _, err := m.runner.FFmpeg(ctx, MixArgs(video, p, graph, out)...); err != nil {
		return "", newStageError(StageAudioMix, ErrAudioMixFailure, "", err)
	}
	return Artifact(out), nil
}
