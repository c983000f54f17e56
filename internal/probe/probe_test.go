package probe

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// MP4 with cover art, an H.264 stream at 30000/1001 and AAC audio.
const sampleMP4 = `{
  "streams": [
    {
      "index": 0,
      "codec_name": "mjpeg",
      "codec_type": "video",
      "width": 600,
      "height": 600,
      "disposition": { "attached_pic": 1 }
    },
    {
      "index": 1,
      "codec_name": "h264",
      "codec_type": "video",
      "width": 1920,
      "height": 1080,
      "nb_frames": "300",
      "r_frame_rate": "30000/1001",
      "avg_frame_rate": "30000/1001",
      "duration": "10.010000",
      "disposition": { "attached_pic": 0 }
    },
    {
      "index": 2,
      "codec_name": "aac",
      "codec_type": "audio",
      "channels": 2,
      "sample_rate": "48000",
      "duration": "10.000000"
    }
  ],
  "format": {
    "filename": "/uploads/clip.mp4",
    "format_name": "mov,mp4,m4a,3gp,3g2,mj2",
    "duration": "10.010000",
    "size": "1234567",
    "bit_rate": "986543"
  }
}`

// WebM stream with no nb_frames; only durations are reported.
const sampleWebM = `{
  "streams": [
    {
      "index": 0,
      "codec_name": "vp9",
      "codec_type": "video",
      "width": 1280,
      "height": 720,
      "r_frame_rate": "30/1",
      "avg_frame_rate": "30/1"
    }
  ],
  "format": { "duration": "8.000000" }
}`

const sampleAudioOnly = `{
  "streams": [
    { "index": 0, "codec_name": "mp3", "codec_type": "audio", "channels": 2, "sample_rate": "44100" }
  ],
  "format": { "duration": "180.0" }
}`

type fakeRunner struct {
	mu      sync.Mutex
	outputs map[string]string
	calls   []string
	delay   time.Duration
	active  atomic.Int32
	peak    atomic.Int32
}

func (f *fakeRunner) FFmpeg(context.Context, ...string) ([]byte, error) {
	return nil, errors.New("ffmpeg not expected")
}

func (f *fakeRunner) FFprobe(ctx context.Context, args ...string) ([]byte, error) {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}

	path := args[len(args)-1]
	f.mu.Lock()
	f.calls = append(f.calls, path)
	out, ok := f.outputs[path]
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if !ok {
		return nil, fmt.Errorf("%s: No such file or directory", path)
	}
	return []byte(out), nil
}

func TestParseJSON(t *testing.T) {
	r, err := ParseJSON([]byte(sampleMP4))
	require.NoError(t, err)

	require.NotNil(t, r.PrimaryVideo)
	assert.Equal(t, 1, r.PrimaryVideo.Index, "attached pic must not be primary")
	assert.Equal(t, 1920, r.PrimaryVideo.Width)
	assert.Equal(t, 1080, r.PrimaryVideo.Height)
	assert.Equal(t, int64(300), r.PrimaryVideo.NbFrames)
	assert.Equal(t, "30000/1001", r.PrimaryVideo.RFrameRate)
	assert.InDelta(t, 10.01, r.Format.Duration, 1e-9)
	assert.Equal(t, int64(1234567), r.Format.Size)
	require.Len(t, r.AudioStreams, 1)
	assert.Equal(t, 48000, r.AudioStreams[0].SampleRate)
	assert.True(t, r.HasAudio())
}

func TestParseJSONInvalid(t *testing.T) {
	_, err := ParseJSON([]byte("not json"))
	require.Error(t, err)
}

func TestParseRational(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"30/1", 30},
		{"30000/1001", 30000.0 / 1001.0},
		{"25", 25},
		{" 24/1 ", 24},
		{"0/0", 0},
		{"1/0", 0},
		{"", 0},
		{"abc/def", 0},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.InDelta(t, tt.want, ParseRational(tt.in), 1e-9)
		})
	}
}

func TestFrameDuration(t *testing.T) {
	t.Run("nb_frames over r_frame_rate", func(t *testing.T) {
		r, err := ParseJSON([]byte(sampleMP4))
		require.NoError(t, err)
		d, err := r.FrameDuration()
		require.NoError(t, err)
		assert.InDelta(t, 300/(30000.0/1001.0), d, 1e-9)
	})

	t.Run("estimated from container duration", func(t *testing.T) {
		r, err := ParseJSON([]byte(sampleWebM))
		require.NoError(t, err)
		d, err := r.FrameDuration()
		require.NoError(t, err)
		assert.InDelta(t, 8.0, d, 1e-9)
	})

	t.Run("avg_frame_rate fallback", func(t *testing.T) {
		r := &Result{PrimaryVideo: &VideoStream{NbFrames: 50, RFrameRate: "0/0", AvgFrameRate: "25/1"}}
		d, err := r.FrameDuration()
		require.NoError(t, err)
		assert.InDelta(t, 2.0, d, 1e-9)
	})

	t.Run("non-positive frame rate", func(t *testing.T) {
		r := &Result{PrimaryVideo: &VideoStream{NbFrames: 50, RFrameRate: "0/0"}}
		_, err := r.FrameDuration()
		require.Error(t, err)
	})

	t.Run("no video", func(t *testing.T) {
		r, err := ParseJSON([]byte(sampleAudioOnly))
		require.NoError(t, err)
		_, err = r.FrameDuration()
		require.Error(t, err)
	})
}

func TestDuration(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]string{
		"clip.mp4": sampleMP4,
		"song.mp3": sampleAudioOnly,
	}}
	p := New(runner)

	ok := p.Duration(context.Background(), "clip.mp4")
	assert.True(t, ok.OK())
	assert.NoError(t, ok.Err)
	assert.InDelta(t, 10.01, ok.Seconds, 1e-9)

	audio := p.Duration(context.Background(), "song.mp3")
	assert.False(t, audio.OK())
	assert.Zero(t, audio.Seconds)
	assert.ErrorIs(t, audio.Err, ErrProbeFailure)

	missing := p.Duration(context.Background(), "missing.mp4")
	assert.Zero(t, missing.Seconds)
	assert.ErrorIs(t, missing.Err, ErrProbeFailure)
	assert.Equal(t, "missing.mp4", missing.Path)
}

func TestResolution(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]string{
		"clip.mp4": sampleMP4,
		"song.mp3": sampleAudioOnly,
		"zero.mp4": `{"streams":[{"codec_type":"video","width":0,"height":720}],"format":{}}`,
	}}
	p := New(runner)

	res := p.Resolution(context.Background(), "clip.mp4")
	require.True(t, res.Found())
	assert.Equal(t, 1920, res.Width)
	assert.Equal(t, 1080, res.Height)

	for _, path := range []string{"song.mp3", "zero.mp4", "missing.mp4"} {
		res := p.Resolution(context.Background(), path)
		assert.False(t, res.Found(), path)
		assert.ErrorIs(t, res.Err, ErrProbeFailure, path)
	}
}

func TestDurationsOfPreservesOrderAndBoundsConcurrency(t *testing.T) {
	runner := &fakeRunner{
		outputs: map[string]string{"a.mp4": sampleMP4, "b.webm": sampleWebM},
		delay:   20 * time.Millisecond,
	}
	p := New(runner)

	paths := []string{"a.mp4", "b.webm", "missing.mp4", "a.mp4", "b.webm"}
	results := p.DurationsOf(context.Background(), paths, 2)

	require.Len(t, results, len(paths))
	for i, r := range results {
		assert.Equal(t, paths[i], r.Path)
	}
	assert.InDelta(t, 10.01, results[0].Seconds, 1e-9)
	assert.InDelta(t, 8.0, results[1].Seconds, 1e-9)
	assert.ErrorIs(t, results[2].Err, ErrProbeFailure)
	assert.LessOrEqual(t, runner.peak.Load(), int32(2))
}

func TestDurationsOfCanceled(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]string{"a.mp4": sampleMP4}, delay: time.Second}
	p := New(runner)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := p.DurationsOf(ctx, []string{"a.mp4", "a.mp4"}, 0)
	for _, r := range results {
		assert.ErrorIs(t, r.Err, context.Canceled)
		assert.Zero(t, r.Seconds)
	}
}
