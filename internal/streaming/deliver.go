package streaming

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"clip-merger/internal/filesystem"
	"clip-merger/internal/logging"
	"clip-merger/internal/mediatypes"
	"clip-merger/internal/metrics"
)

// ErrArtifactUnavailable is returned when the artifact cannot be opened. No
// response has been written in that case.
var ErrArtifactUnavailable = errors.New("artifact unavailable")

// Deliver streams the file at path to the client as an attachment named
// downloadName. Headers are only written once the file has been opened, so a
// failure before the first byte still lets the caller send an error response.
// It returns the number of bytes written.
func Deliver(ctx context.Context, w http.ResponseWriter, path, downloadName string, config Config) (int64, error) {
	f, err := filesystem.OpenWithRetry(path, filesystem.DefaultRetryConfig())
	if err != nil {
		metrics.DeliveriesTotal.WithLabelValues("error").Inc()
		return 0, fmt.Errorf("%w: %w", ErrArtifactUnavailable, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		metrics.DeliveriesTotal.WithLabelValues("error").Inc()
		return 0, fmt.Errorf("%w: %w", ErrArtifactUnavailable, err)
	}

	h := w.Header()
	h.Set("Content-Type", mediatypes.GetMimeType(mediatypes.Ext(downloadName)))
	h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": downloadName}))
	h.Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	h.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)

	tw := NewWriter(ctx, w, config)
	defer tw.Close()

	_, err = io.Copy(tw, f)
	n, elapsed := tw.Stats()
	metrics.DeliveredBytes.Add(float64(n))
	metrics.DeliveriesTotal.WithLabelValues(deliveryStatus(err)).Inc()

	if err != nil {
		return n, err
	}
	logging.Debug("Delivered %s: %d bytes in %v", downloadName, n, elapsed.Round(time.Millisecond))
	return n, nil
}

func deliveryStatus(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrClientGone):
		return "client_gone"
	case errors.Is(err, ErrWriteTimeout):
		return "timeout"
	default:
		return "error"
	}
}
