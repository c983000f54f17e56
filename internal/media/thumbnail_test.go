package media

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"clip-merger/internal/metrics"
)

type frameRunner struct {
	frame []byte
	err   error
	args  []string
}

func (r *frameRunner) FFmpeg(_ context.Context, args ...string) ([]byte, error) {
	r.args = args
	return r.frame, r.err
}

func (r *frameRunner) FFprobe(context.Context, ...string) ([]byte, error) {
	return nil, errors.New("not used")
}

func testFrame(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestEncodeThumbnail(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 640, 360))

	data, err := EncodeThumbnail(img)
	if err != nil {
		t.Fatalf("EncodeThumbnail: %v", err)
	}
	decoded, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("output is not a JPEG: %v", err)
	}
	if b := decoded.Bounds(); b.Dx() != ThumbnailWidth || b.Dy() != ThumbnailHeight {
		t.Errorf("thumbnail size = %dx%d, want %dx%d", b.Dx(), b.Dy(), ThumbnailWidth, ThumbnailHeight)
	}
}

func TestGenerate(t *testing.T) {
	dir := t.TempDir()
	runner := &frameRunner{frame: testFrame(t, 320, 240)}
	gen := NewThumbnailGenerator(runner, dir, true)
	before := testutil.ToFloat64(metrics.ThumbnailGenerationsTotal.WithLabelValues("success"))

	name, err := gen.Generate(context.Background(), "/uploads/clip.mp4")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.HasPrefix(name, "thumb_") || filepath.Ext(name) != ".jpg" {
		t.Errorf("unexpected thumbnail name %q", name)
	}
	if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
		t.Errorf("thumbnail not written: %v", err)
	}

	want := []string{"-i", "/uploads/clip.mp4", "-frames:v", "1", "-f", "image2pipe", "-vcodec", "png", "-"}
	if strings.Join(runner.args, " ") != strings.Join(want, " ") {
		t.Errorf("ffmpeg args = %v, want %v", runner.args, want)
	}
	if got := testutil.ToFloat64(metrics.ThumbnailGenerationsTotal.WithLabelValues("success")); got != before+1 {
		t.Errorf("success counter = %v, want %v", got, before+1)
	}
}

func TestGenerateErrors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		runner  *frameRunner
		enabled bool
	}{
		{name: "disabled", runner: &frameRunner{}, enabled: false},
		{name: "ffmpeg failure", runner: &frameRunner{err: errors.New("exit status 1")}, enabled: true},
		{name: "empty output", runner: &frameRunner{}, enabled: true},
		{name: "garbage output", runner: &frameRunner{frame: []byte("not a png")}, enabled: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := NewThumbnailGenerator(tt.runner, dir, tt.enabled)
			if gen.IsEnabled() != tt.enabled {
				t.Errorf("IsEnabled() = %v", gen.IsEnabled())
			}
			if _, err := gen.Generate(context.Background(), "clip.mp4"); err == nil {
				t.Error("expected error")
			}
		})
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("failed generations left %d files", len(entries))
	}
}

func TestSniffContainer(t *testing.T) {
	tests := []struct {
		name   string
		header []byte
		want   string
	}{
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0}, ContainerJPEG},
		{"png", []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}, ContainerPNG},
		{"gif", []byte("GIF89a"), ContainerGIF},
		{"webp", []byte("RIFF\x00\x00\x00\x00WEBPVP8 "), ContainerWebP},
		{"avi", []byte("RIFF\x00\x00\x00\x00AVI LIST"), ContainerAVI},
		{"wav", []byte("RIFF\x00\x00\x00\x00WAVEfmt "), ContainerWAV},
		{"mp4", []byte("\x00\x00\x00\x20ftypisom"), ContainerMP4},
		{"matroska", []byte{0x1A, 0x45, 0xDF, 0xA3, 0x01}, ContainerMatroska},
		{"ogg", []byte("OggS\x00\x02"), ContainerOgg},
		{"flac", []byte("fLaC\x00"), ContainerFLAC},
		{"mp3 id3", []byte("ID3\x04\x00"), ContainerMP3},
		{"mp3 frame", []byte{0xFF, 0xFB, 0x90, 0x64}, ContainerMP3},
		{"mpegts", []byte{0x47, 0x40, 0x00, 0x10}, ContainerMPEGTS},
		{"riff other", []byte("RIFF\x00\x00\x00\x00CDXA"), ContainerUnknown},
		{"text", []byte("hello world"), ContainerUnknown},
		{"empty", nil, ContainerUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SniffContainer(tt.header); got != tt.want {
				t.Errorf("SniffContainer = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDetectContainer(t *testing.T) {
	dir := t.TempDir()

	imgPath := filepath.Join(dir, "fake.mp4")
	if err := os.WriteFile(imgPath, testFrame(t, 4, 4), 0o644); err != nil {
		t.Fatal(err)
	}
	kind, err := DetectContainer(imgPath)
	if err != nil {
		t.Fatal(err)
	}
	if kind != ContainerPNG || !IsStillImage(kind) {
		t.Errorf("DetectContainer = %q", kind)
	}

	empty := filepath.Join(dir, "empty.mp4")
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if kind, err := DetectContainer(empty); err != nil || kind != ContainerUnknown {
		t.Errorf("empty file: %q, %v", kind, err)
	}

	if _, err := DetectContainer(filepath.Join(dir, "missing")); err == nil {
		t.Error("expected error for missing file")
	}

	if IsStillImage(ContainerMP4) {
		t.Error("mp4 is not a still image")
	}
}
