package media

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/png" // ffmpeg frames are piped as PNG
	"os"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/renameio/v2"
	"github.com/google/uuid"

	"clip-merger/internal/logging"
	"clip-merger/internal/metrics"
	"clip-merger/internal/transcoder"
)

// Thumbnail dimensions and JPEG quality.
const (
	ThumbnailWidth  = 160
	ThumbnailHeight = 90
	jpegQuality     = 80
)

// ThumbnailGenerator renders a small preview of the first frame of a clip.
type ThumbnailGenerator struct {
	runner  transcoder.Runner
	dir     string
	enabled bool
}

// NewThumbnailGenerator creates a generator writing into dir.
func NewThumbnailGenerator(runner transcoder.Runner, dir string, enabled bool) *ThumbnailGenerator {
	if enabled {
		logging.Debug("ThumbnailGenerator: enabled, dir: %s", dir)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logging.Warn("ThumbnailGenerator: failed to create dir: %v", err)
		}
	} else {
		logging.Debug("ThumbnailGenerator: disabled")
	}
	return &ThumbnailGenerator{runner: runner, dir: dir, enabled: enabled}
}

// IsEnabled reports whether thumbnails are generated.
func (t *ThumbnailGenerator) IsEnabled() bool {
	return t.enabled
}

// Dir returns the directory thumbnails are written to.
func (t *ThumbnailGenerator) Dir() string {
	return t.dir
}

// Generate extracts the first frame of videoPath, resizes it and stores it as
// thumb_<uuid>.jpg. It returns the file name relative to Dir.
func (t *ThumbnailGenerator) Generate(ctx context.Context, videoPath string) (name string, err error) {
	if !t.enabled {
		return "", fmt.Errorf("thumbnails disabled")
	}

	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
		}
		metrics.ThumbnailGenerationsTotal.WithLabelValues(status).Inc()
		metrics.ThumbnailGenerationDuration.Observe(time.Since(start).Seconds())
	}()

	img, err := t.firstFrame(ctx, videoPath)
	if err != nil {
		return "", fmt.Errorf("thumbnail generation failed: %w", err)
	}

	data, err := EncodeThumbnail(img)
	if err != nil {
		return "", err
	}

	name = "thumb_" + uuid.NewString() + ".jpg"
	if err := renameio.WriteFile(filepath.Join(t.dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write thumbnail: %w", err)
	}

	logging.Debug("Thumbnail written: %s for %s", name, videoPath)
	return name, nil
}

func (t *ThumbnailGenerator) firstFrame(ctx context.Context, videoPath string) (image.Image, error) {
	out, err := t.runner.FFmpeg(ctx,
		"-i", videoPath,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "png",
		"-",
	)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("ffmpeg produced no output for %s", videoPath)
	}

	img, _, err := image.Decode(bytes.NewReader(out))
	if err != nil {
		return nil, fmt.Errorf("failed to decode ffmpeg output: %w", err)
	}
	return img, nil
}

// EncodeThumbnail resizes img to the thumbnail size and encodes it as JPEG.
func EncodeThumbnail(img image.Image) ([]byte, error) {
	thumb := imaging.Resize(img, ThumbnailWidth, ThumbnailHeight, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}
