package merge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"clip-merger/internal/transcoder"
)

// fakeRunner stands in for ffmpeg and ffprobe. Every ffmpeg call writes its
// last argument as an empty output file and remembers which input produced
// it, so probing a normalized clip reports the duration of its source.
type fakeRunner struct {
	mu        sync.Mutex
	ffmpeg    [][]string
	probes    []string
	durations map[string]float64
	noAudio   map[string]bool
	origin    map[string]string

	// failInput makes any ffmpeg call reading that input fail.
	failInput map[string]error
	// failMatch makes the ffmpeg call whose args contain the string fail.
	failMatch map[string]error
	width     int
	height    int

	inFlight atomic.Int32
	peak     atomic.Int32
	delay    time.Duration
}

func newFakeRunner(durations map[string]float64) *fakeRunner {
	return &fakeRunner{
		durations: durations,
		noAudio:   map[string]bool{},
		origin:    map[string]string{},
		failInput: map[string]error{},
		failMatch: map[string]error{},
		width:     1280,
		height:    720,
	}
}

func (f *fakeRunner) FFmpeg(ctx context.Context, args ...string) ([]byte, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}

	f.mu.Lock()
	f.ffmpeg = append(f.ffmpeg, slices.Clone(args))
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	input := firstInput(args)
	if err, ok := f.failInput[input]; ok {
		return nil, err
	}
	for needle, err := range f.failMatch {
		if slices.Contains(args, needle) {
			return nil, err
		}
	}

	out := args[len(args)-1]
	if err := os.WriteFile(out, nil, 0o644); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.origin[out] = input
	f.mu.Unlock()
	return nil, nil
}

func (f *fakeRunner) FFprobe(_ context.Context, args ...string) ([]byte, error) {
	path := args[len(args)-1]

	f.mu.Lock()
	defer f.mu.Unlock()
	f.probes = append(f.probes, path)

	src := path
	for {
		o, ok := f.origin[src]
		if !ok {
			break
		}
		src = o
	}
	d, ok := f.durations[src]
	if !ok {
		return nil, &transcoder.ExecError{Tool: transcoder.ToolFFprobe, Err: fmt.Errorf("exit status 1"), Stderr: path + ": No such file or directory"}
	}

	audio := `,{"index":1,"codec_type":"audio","codec_name":"aac","channels":2,"sample_rate":"48000"}`
	if f.noAudio[src] {
		audio = ""
	}
	return fmt.Appendf(nil,
		`{"streams":[{"index":0,"codec_type":"video","codec_name":"h264","width":%d,"height":%d,"nb_frames":"%d","r_frame_rate":"30/1","avg_frame_rate":"30/1"}%s],"format":{"duration":"%f"}}`,
		f.width, f.height, int(d*30+0.5), audio, d), nil
}

func (f *fakeRunner) calls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.ffmpeg)
}

// callsWith returns the ffmpeg invocations containing arg.
func (f *fakeRunner) callsWith(arg string) [][]string {
	var out [][]string
	for _, c := range f.calls() {
		if slices.Contains(c, arg) {
			out = append(out, c)
		}
	}
	return out
}

func firstInput(args []string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == "-i" {
			return args[i+1]
		}
	}
	return ""
}

// touch creates empty upload files under dir and returns their paths.
func touch(dir string, names ...string) []string {
	paths := make([]string, len(names))
	for i, n := range names {
		paths[i] = filepath.Join(dir, n)
		_ = os.WriteFile(paths[i], nil, 0o644)
	}
	return paths
}
