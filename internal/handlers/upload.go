package handlers

import (
	"fmt"
	"mime/multipart"
	"net/http"

	"clip-merger/internal/logging"
	"clip-merger/internal/media"
	"clip-merger/internal/mediatypes"
	"clip-merger/internal/metrics"
)

// UploadResponse lists the stored files in request order. Thumbnails are
// empty and durations null where they could not be produced.
type UploadResponse struct {
	Paths      []string   `json:"paths"`
	Thumbnails []string   `json:"thumbnails"`
	Durations  []*float64 `json:"durations"`
}

// Upload stores the "videos" files of a multipart request and returns their
// paths with a thumbnail URL and probed duration for each.
func (h *Handlers) Upload(w http.ResponseWriter, r *http.Request) {
	if !h.parseForm(w, r) {
		metrics.UploadsTotal.WithLabelValues("rejected").Inc()
		return
	}
	if r.MultipartForm != nil {
		defer func() { _ = r.MultipartForm.RemoveAll() }()
	}

	var files []*multipart.FileHeader
	if r.MultipartForm != nil {
		files = r.MultipartForm.File["videos"]
	}
	if len(files) == 0 {
		metrics.UploadsTotal.WithLabelValues("rejected").Inc()
		writeJSONError(w, "no videos provided", http.StatusBadRequest)
		return
	}

	for _, fh := range files {
		if !mediatypes.IsVideoFile(fh.Filename) {
			metrics.UploadsTotal.WithLabelValues("rejected").Inc()
			writeJSONError(w, fmt.Sprintf("%v: %s", errUnsupportedType, cleanFilename(fh.Filename)), http.StatusBadRequest)
			return
		}
	}

	resp := UploadResponse{
		Paths:      make([]string, 0, len(files)),
		Thumbnails: make([]string, 0, len(files)),
		Durations:  make([]*float64, 0, len(files)),
	}

	for _, fh := range files {
		path, size, err := h.saveUpload(fh)
		if err != nil {
			metrics.UploadsTotal.WithLabelValues("error").Inc()
			logging.Error("Failed to store upload %q: %v", fh.Filename, err)
			removeFiles(resp.Paths)
			writeJSONError(w, "failed to store upload", http.StatusInternalServerError)
			return
		}

		if kind, err := media.DetectContainer(path); err == nil && media.IsStillImage(kind) {
			metrics.UploadsTotal.WithLabelValues("rejected").Inc()
			removeFiles(append(resp.Paths, path))
			writeJSONError(w, fmt.Sprintf("%v: %s is a %s image", errUnsupportedType, cleanFilename(fh.Filename), kind), http.StatusBadRequest)
			return
		}

		metrics.UploadsTotal.WithLabelValues("success").Inc()
		metrics.UploadBytes.Add(float64(size))

		resp.Paths = append(resp.Paths, path)
		resp.Thumbnails = append(resp.Thumbnails, h.thumbnailURL(r, path))
		resp.Durations = append(resp.Durations, h.duration(r, path))
	}

	logging.Info("Stored %d upload(s)", len(resp.Paths))
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, resp)
}

func (h *Handlers) thumbnailURL(r *http.Request, path string) string {
	if h.thumbs == nil || !h.thumbs.IsEnabled() {
		return ""
	}
	name, err := h.thumbs.Generate(r.Context(), path)
	if err != nil {
		logging.Warn("Thumbnail generation failed for %s: %v", path, err)
		return ""
	}
	return "/thumbnails/" + name
}

func (h *Handlers) duration(r *http.Request, path string) *float64 {
	if h.prober == nil {
		return nil
	}
	res := h.prober.Duration(r.Context(), path)
	if !res.OK() {
		if res.Err != nil && r.Context().Err() == nil {
			logging.Warn("Duration probe failed for %s: %v", path, res.Err)
		}
		return nil
	}
	d := res.Seconds
	return &d
}
