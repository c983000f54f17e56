package handlers

import (
	"context"
	"net/http"
	"time"

	"clip-merger/internal/startup"
)

const versionToolTimeout = 5 * time.Second

// VersionResponse is the build information plus the ffmpeg build the
// pipeline runs against.
type VersionResponse struct {
	startup.BuildInfo
	FFmpeg      string `json:"ffmpeg,omitempty"`
	FFmpegError string `json:"ffmpegError,omitempty"`
}

// GetVersion returns the application version, build information and the
// ffmpeg version line. An unavailable ffmpeg is reported, not an error.
func (h *Handlers) GetVersion(w http.ResponseWriter, r *http.Request) {
	resp := VersionResponse{BuildInfo: startup.GetBuildInfo()}

	ctx, cancel := context.WithTimeout(r.Context(), versionToolTimeout)
	defer cancel()
	if v, err := h.tools.Check(ctx); err != nil {
		resp.FFmpegError = err.Error()
	} else {
		resp.FFmpeg = v
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	writeJSON(w, resp)
}
