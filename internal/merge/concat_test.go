package merge

import (
	"context"
	"errors"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fg "clip-merger/internal/filtergraph"
	"clip-merger/internal/probe"
	"clip-merger/internal/transcoder"
)

func TestTransitionOffsets(t *testing.T) {
	tests := []struct {
		name      string
		durations []float64
		d         float64
		offsets   []float64
		total     float64
	}{
		{"empty", nil, 0.6, nil, 0},
		{"single clip", []float64{7}, 0.6, nil, 7},
		{"two clips", []float64{5, 5}, 1, []float64{4}, 9},
		{"three clips", []float64{10, 8, 12}, 0.6, []float64{9.4, 16.8}, 28.8},
		{"clip shorter than fade", []float64{0.3, 4}, 0.6, []float64{0}, 3.7},
		{"later clip shorter than fade", []float64{5, 0.2, 5}, 1, []float64{4, 4}, 9},
		{"zero durations", []float64{0, 0, 0}, 0.5, []float64{0, 0}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			offsets, total := TransitionOffsets(tt.durations, tt.d)
			require.Len(t, offsets, len(tt.offsets))
			for i := range offsets {
				assert.InDelta(t, tt.offsets[i], offsets[i], 1e-9, "offset %d", i)
			}
			assert.InDelta(t, tt.total, total, 1e-9)
		})
	}
}

func TestTransitionOffsetsProperties(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for range 500 {
		n := 1 + rng.IntN(10)
		durations := make([]float64, n)
		for i := range durations {
			durations[i] = rng.Float64() * 20
		}
		d := MinTransitionDuration + rng.Float64()*(MaxTransitionDuration-MinTransitionDuration)

		offsets, total := TransitionOffsets(durations, d)
		require.Len(t, offsets, n-1)

		prev := 0.0
		for i, o := range offsets {
			assert.GreaterOrEqual(t, o, 0.0)
			assert.GreaterOrEqual(t, o, prev-1e-9, "offset %d went backwards", i)
			prev = o
		}
		assert.GreaterOrEqual(t, total, durations[0]-1e-9)
	}
}

func TestManifestLine(t *testing.T) {
	assert.Equal(t, "file '/tmp/a.mp4'", ManifestLine("/tmp/a.mp4"))
	assert.Equal(t, `file '/tmp/it'\''s.mp4'`, ManifestLine("/tmp/it's.mp4"))
	assert.Equal(t, `file '/tmp/with space.mp4'`, ManifestLine("/tmp/with space.mp4"))
}

func TestWriteManifest(t *testing.T) {
	dir := t.TempDir()
	manifest := filepath.Join(dir, "concat.txt")
	clips := []Artifact{Artifact(filepath.Join(dir, "a.mp4")), Artifact(filepath.Join(dir, "b's.mp4"))}

	require.NoError(t, WriteManifest(manifest, clips))

	data, err := os.ReadFile(manifest)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, ManifestLine(clips[0].Path()), lines[0])
	assert.Equal(t, ManifestLine(clips[1].Path()), lines[1])
}

func TestPassThroughArgs(t *testing.T) {
	assert.Equal(t,
		[]string{"-y", "-f", "concat", "-safe", "0", "-i", "list.txt", "-c", "copy", "out.mp4"},
		PassThroughArgs("list.txt", "out.mp4"))
}

func TestCrossFadeGraph(t *testing.T) {
	spec := NewTransitionSpec(TransitionFade, 0.6)
	offsets, _ := TransitionOffsets([]float64{10, 8, 12}, spec.Duration)

	g, vOut, aOut := CrossFadeGraph(3, spec, offsets)

	want := strings.Join([]string{
		"[0:v][1:v]xfade=transition=fade:duration=0.6:offset=9.4[v1]",
		"[0:a][1:a]acrossfade=d=0.6:c1=tri:c2=tri[a1]",
		"[v1][2:v]xfade=transition=fade:duration=0.6:offset=16.8[v2]",
		"[a1][2:a]acrossfade=d=0.6:c1=tri:c2=tri[a2]",
	}, ";")
	assert.Equal(t, want, g.String())
	assert.Equal(t, "v2", vOut)
	assert.Equal(t, "a2", aOut)

	outs, err := g.Validate()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"v2", "a2"}, outs)
}

func TestCheckCrossFadeGraph(t *testing.T) {
	spec := NewTransitionSpec(TransitionFade, 0.5)

	g, v, a := CrossFadeGraph(3, spec, []float64{4, 8})
	require.NoError(t, checkCrossFadeGraph(g, v, a))

	t.Run("mapped label not an output", func(t *testing.T) {
		err := checkCrossFadeGraph(g, "v1", a)
		assert.ErrorContains(t, err, "want [v1] and [a2]")
	})

	t.Run("undefined label", func(t *testing.T) {
		broken, v, a := CrossFadeGraph(2, spec, []float64{4})
		broken.Chains[0].Inputs[0] = "v9"
		assert.ErrorIs(t, checkCrossFadeGraph(broken, v, a), fg.ErrUndefinedLabel)
	})

	t.Run("single input has no graph outputs", func(t *testing.T) {
		empty, v, a := CrossFadeGraph(1, spec, nil)
		assert.Error(t, checkCrossFadeGraph(empty, v, a))
	})
}

func TestCrossFadeArgs(t *testing.T) {
	spec := NewTransitionSpec(TransitionWipeLeft, 1)
	g, v, a := CrossFadeGraph(2, spec, []float64{4})
	args := CrossFadeArgs([]Artifact{"a.mp4", "b.mp4"}, g, v, a, "out.mp4")

	assert.Equal(t, []string{"-y", "-i", "a.mp4", "-i", "b.mp4", "-filter_complex"}, args[:6])
	assert.Contains(t, args, "[v1]")
	assert.Contains(t, args, "[a1]")
	assert.Contains(t, args, "libx264")
	assert.Equal(t, "out.mp4", args[len(args)-1])
}

func newTestWorkspace(t *testing.T) *Workspace {
	t.Helper()
	ws, err := NewWorkspace(t.TempDir(), "job", false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Release() })
	return ws
}

func TestConcatPassThrough(t *testing.T) {
	ws := newTestWorkspace(t)
	clips := []Artifact{Artifact(filepath.Join(ws.Dir(), "a.mp4")), Artifact(filepath.Join(ws.Dir(), "b.mp4"))}
	fr := newFakeRunner(map[string]float64{clips[0].Path(): 4, clips[1].Path(): 6})
	c := NewConcatenator(fr, probe.New(fr), 2)

	res, err := c.Concat(context.Background(), clips, TransitionSpec{Kind: TransitionNone}, ws)
	require.NoError(t, err)

	assert.False(t, res.CrossFade)
	assert.InDelta(t, 10, res.Duration, 1e-6)
	assert.Empty(t, res.Diagnostics)
	assert.Equal(t, ws.Dir(), filepath.Dir(res.Artifact.Path()))
	require.Len(t, fr.callsWith("concat"), 1)
}

func TestConcatSingleClipSkipsCrossFade(t *testing.T) {
	ws := newTestWorkspace(t)
	clip := Artifact(filepath.Join(ws.Dir(), "a.mp4"))
	fr := newFakeRunner(map[string]float64{clip.Path(): 4})
	c := NewConcatenator(fr, probe.New(fr), 2)

	res, err := c.Concat(context.Background(), []Artifact{clip}, NewTransitionSpec(TransitionFade, 1), ws)
	require.NoError(t, err)
	assert.False(t, res.CrossFade)
	assert.Empty(t, fr.callsWith("-filter_complex"))
}

func TestConcatCrossFade(t *testing.T) {
	ws := newTestWorkspace(t)
	var clips []Artifact
	durations := map[string]float64{}
	for i, d := range []float64{10, 8, 12} {
		p := filepath.Join(ws.Dir(), string(rune('a'+i))+".mp4")
		clips = append(clips, Artifact(p))
		durations[p] = d
	}
	fr := newFakeRunner(durations)
	c := NewConcatenator(fr, probe.New(fr), 2)

	res, err := c.Concat(context.Background(), clips, NewTransitionSpec(TransitionFade, 0.6), ws)
	require.NoError(t, err)

	assert.True(t, res.CrossFade)
	assert.InDelta(t, 28.8, res.Duration, 1e-6)
	calls := fr.callsWith("-filter_complex")
	require.Len(t, calls, 1)
	assert.Contains(t, strings.Join(calls[0], " "), "offset=16.8")
}

func TestConcatProbeFailureBecomesDiagnostic(t *testing.T) {
	ws := newTestWorkspace(t)
	a := Artifact(filepath.Join(ws.Dir(), "a.mp4"))
	b := Artifact(filepath.Join(ws.Dir(), "b.mp4"))
	fr := newFakeRunner(map[string]float64{a.Path(): 5})
	c := NewConcatenator(fr, probe.New(fr), 2)

	res, err := c.Concat(context.Background(), []Artifact{a, b}, NewTransitionSpec(TransitionFade, 1), ws)
	require.NoError(t, err)
	require.Len(t, res.Diagnostics, 1)
	assert.Equal(t, StageProbe, res.Diagnostics[0].Stage)
	assert.ErrorIs(t, res.Diagnostics[0].Err(), probe.ErrProbeFailure)
	// the unknown clip counts as zero length and adds nothing to the timeline
	assert.InDelta(t, 5, res.Duration, 1e-6)
}

func TestConcatFailureWrapsKind(t *testing.T) {
	ws := newTestWorkspace(t)
	a := Artifact(filepath.Join(ws.Dir(), "a.mp4"))
	b := Artifact(filepath.Join(ws.Dir(), "b.mp4"))
	fr := newFakeRunner(map[string]float64{a.Path(): 5, b.Path(): 5})
	fr.failMatch["-filter_complex"] = &transcoder.ExecError{
		Tool:   transcoder.ToolFFmpeg,
		Err:    errors.New("exit status 1"),
		Stderr: "Error initializing filter 'xfade'",
	}
	c := NewConcatenator(fr, probe.New(fr), 2)

	_, err := c.Concat(context.Background(), []Artifact{a, b}, NewTransitionSpec(TransitionFade, 1), ws)
	require.ErrorIs(t, err, ErrConcatenationFailure)

	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageConcat, se.Stage)
	assert.Contains(t, se.Stderr, "xfade")
	assert.False(t, se.Timeout())
}

func TestConcatEmpty(t *testing.T) {
	c := NewConcatenator(newFakeRunner(nil), nil, 1)
	_, err := c.Concat(context.Background(), nil, TransitionSpec{}, nil)
	assert.ErrorIs(t, err, ErrConcatenationFailure)
}
