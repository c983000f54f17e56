package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"clip-merger/internal/logging"
	"clip-merger/internal/metrics"
	"clip-merger/internal/transcoder"
)

// ErrProbeFailure marks a probe that degraded to a zero or absent value.
var ErrProbeFailure = errors.New("probe failure")

// Prober extracts duration and resolution through ffprobe.
type Prober struct {
	runner transcoder.Runner
}

// New creates a Prober that invokes ffprobe through runner.
func New(runner transcoder.Runner) *Prober {
	return &Prober{runner: runner}
}

// Probe runs a single ffprobe JSON call against path and returns the
// parsed result.
func (p *Prober) Probe(ctx context.Context, path string) (*Result, error) {
	out, err := p.runner.FFprobe(ctx,
		"-v", "error",
		"-print_format", "json",
		"-show_format", "-show_streams",
		path,
	)
	if err != nil {
		return nil, fmt.Errorf("ffprobe %q: %w", path, err)
	}
	return ParseJSON(out)
}

// Duration returns frame_count / frame_rate for the primary video stream.
// Any failure yields Seconds == 0 with Err wrapping ErrProbeFailure.
func (p *Prober) Duration(ctx context.Context, path string) DurationResult {
	res := DurationResult{Path: path}

	pr, err := p.Probe(ctx, path)
	if err == nil {
		res.Seconds, err = pr.FrameDuration()
	}
	if err != nil {
		res.Seconds = 0
		res.Err = fmt.Errorf("%w: duration of %s: %w", ErrProbeFailure, path, err)
		metrics.ProbeFailures.WithLabelValues("duration").Inc()
		logging.Warn("Duration probe failed for %s: %v", path, err)
	}
	return res
}

// Resolution returns the container-reported dimensions of the primary
// video stream.
func (p *Prober) Resolution(ctx context.Context, path string) ResolutionResult {
	res := ResolutionResult{Path: path}

	pr, err := p.Probe(ctx, path)
	if err == nil {
		switch {
		case pr.PrimaryVideo == nil:
			err = errors.New("no video stream")
		case pr.PrimaryVideo.Width <= 0 || pr.PrimaryVideo.Height <= 0:
			err = fmt.Errorf("invalid dimensions %dx%d", pr.PrimaryVideo.Width, pr.PrimaryVideo.Height)
		default:
			res.Width = pr.PrimaryVideo.Width
			res.Height = pr.PrimaryVideo.Height
		}
	}
	if err != nil {
		res.Err = fmt.Errorf("%w: resolution of %s: %w", ErrProbeFailure, path, err)
		metrics.ProbeFailures.WithLabelValues("resolution").Inc()
		logging.Warn("Resolution probe failed for %s: %v", path, err)
	}
	return res
}

// DurationsOf probes every path with at most workers concurrent ffprobe
// processes. Results are returned in input order.
func (p *Prober) DurationsOf(ctx context.Context, paths []string, workers int) []DurationResult {
	results := make([]DurationResult, len(paths))

	var g errgroup.Group
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i, path := range paths {
		g.Go(func() error {
			results[i] = p.Duration(ctx, path)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// FrameDuration computes frame_count / frame_rate. When the container does
// not report nb_frames the count is estimated from the stream duration (or
// the container duration) times the frame rate.
func (r *Result) FrameDuration() (float64, error) {
	v := r.PrimaryVideo
	if v == nil {
		return 0, errors.New("no video stream")
	}

	fps := ParseRational(v.RFrameRate)
	if fps <= 0 {
		fps = ParseRational(v.AvgFrameRate)
	}
	if fps <= 0 {
		return 0, fmt.Errorf("non-positive frame rate %q", v.RFrameRate)
	}

	frames := v.NbFrames
	if frames <= 0 {
		d := v.Duration
		if d <= 0 {
			d = r.Format.Duration
		}
		frames = int64(math.Round(d * fps))
	}
	if frames <= 0 {
		return 0, errors.New("frame count unavailable")
	}

	return float64(frames) / fps, nil
}

// ParseRational parses ffprobe rationals such as "30000/1001" or "25".
// Malformed input and zero denominators yield 0.
func ParseRational(s string) float64 {
	s = strings.TrimSpace(s)
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		return parseFloat(s)
	}
	n := parseFloat(num)
	d := parseFloat(den)
	if d == 0 {
		return 0
	}
	return n / d
}

// ParseJSON converts raw ffprobe JSON output into a Result.
// Exported for testing without a real ffprobe binary.
func ParseJSON(data []byte) (*Result, error) {
	var raw ffprobeOutput
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse ffprobe JSON: %w", err)
	}
	return buildResult(&raw), nil
}

// --- ffprobe JSON wire types ---

type ffprobeOutput struct {
	Format  ffprobeFormat   `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeFormat struct {
	Filename   string `json:"filename"`
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
}

type ffprobeStream struct {
	Index        int            `json:"index"`
	CodecName    string         `json:"codec_name"`
	CodecType    string         `json:"codec_type"`
	Width        int            `json:"width"`
	Height       int            `json:"height"`
	NbFrames     string         `json:"nb_frames"`
	RFrameRate   string         `json:"r_frame_rate"`
	AvgFrameRate string         `json:"avg_frame_rate"`
	Duration     string         `json:"duration"`
	Channels     int            `json:"channels"`
	SampleRate   string         `json:"sample_rate"`
	Disposition  map[string]int `json:"disposition"`
}

func buildResult(raw *ffprobeOutput) *Result {
	r := &Result{
		Format: FormatInfo{
			Filename:   raw.Format.Filename,
			FormatName: raw.Format.FormatName,
			Duration:   parseFloat(raw.Format.Duration),
			Size:       parseInt64(raw.Format.Size),
			BitRate:    parseInt64(raw.Format.BitRate),
		},
	}

	for i := range raw.Streams {
		s := &raw.Streams[i]
		switch s.CodecType {
		case "video":
			vs := VideoStream{
				Index:         s.Index,
				Codec:         s.CodecName,
				Width:         s.Width,
				Height:        s.Height,
				NbFrames:      parseInt64(s.NbFrames),
				RFrameRate:    s.RFrameRate,
				AvgFrameRate:  s.AvgFrameRate,
				Duration:      parseFloat(s.Duration),
				IsAttachedPic: s.Disposition["attached_pic"] == 1,
			}
			if !vs.IsAttachedPic && r.PrimaryVideo == nil {
				r.PrimaryVideo = &vs
			}
		case "audio":
			r.AudioStreams = append(r.AudioStreams, AudioStream{
				Index:      s.Index,
				Codec:      s.CodecName,
				Channels:   s.Channels,
				SampleRate: parseInt(s.SampleRate),
				Duration:   parseFloat(s.Duration),
			})
		}
	}
	return r
}

// --- Numeric parsing helpers (ffprobe returns numbers as strings) ---

func parseInt64(s string) int64 {
	n, _ := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	return n
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

func parseInt(s string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(s))
	return n
}
