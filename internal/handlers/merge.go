package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"clip-merger/internal/logging"
	"clip-merger/internal/mediatypes"
	"clip-merger/internal/merge"
	"clip-merger/internal/middleware"
	"clip-merger/internal/streaming"
)

// Merge runs a merge job for the submitted form and streams the result back
// as an attachment. The job workspace is released once delivery finishes.
func (h *Handlers) Merge(w http.ResponseWriter, r *http.Request) {
	if !h.parseForm(w, r) {
		return
	}
	if r.MultipartForm != nil {
		defer func() { _ = r.MultipartForm.RemoveAll() }()
	}

	job, err := h.buildJob(r)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var saved []string
	defer func() { removeFiles(saved) }()

	for _, a := range []struct {
		field  string
		role   merge.Role
		accept func(string) bool
		dst    **merge.MediaAsset
	}{
		{"intro", merge.RoleIntro, mediatypes.IsVideoFile, &job.Intro},
		{"outro", merge.RoleOutro, mediatypes.IsVideoFile, &job.Outro},
		{"backgroundMusic", merge.RoleBackgroundMusic, isMusicFile, &job.Audio.Music},
	} {
		asset, path, err := h.saveAsset(r, a.field, a.role, a.accept)
		if err != nil {
			writeJSONError(w, err.Error(), statusForSaveError(err))
			return
		}
		if asset != nil {
			saved = append(saved, path)
			*a.dst = asset
		}
	}

	start := time.Now()
	res, err := h.merger.Run(r.Context(), job)
	if err != nil {
		if requestGone(r, err) {
			logging.Warn("Merge %s canceled: client disconnected", job.ID)
			return
		}
		status := statusForError(err)
		msg := err.Error()
		if status == http.StatusGatewayTimeout {
			msg = "merge timed out"
		}
		writeJSONError(w, msg, status)
		return
	}
	defer func() {
		if err := res.Release(); err != nil {
			logging.Warn("Failed to release workspace for job %s: %v", res.JobID, err)
		}
	}()

	w.Header().Set(middleware.JobIDHeader, res.JobID)
	n, err := streaming.Deliver(r.Context(), w, res.Artifact.Path(), job.OutputName, h.delivery)
	switch {
	case errors.Is(err, streaming.ErrArtifactUnavailable):
		logging.Error("Merge %s produced no readable artifact: %v", res.JobID, err)
		writeJSONError(w, "merged file unavailable", http.StatusInternalServerError)
	case err != nil:
		logging.Warn("Delivery of job %s stopped after %d bytes: %v", res.JobID, n, err)
	default:
		logging.Info("Job %s: delivered %s (%d bytes, %d clips) in %v",
			res.JobID, job.OutputName, n, res.Clips, time.Since(start).Round(time.Millisecond))
	}
}

// buildJob reads the form fields of a merge request. Only malformed JSON and
// unsafe paths are errors; every other field falls back to its default.
func (h *Handlers) buildJob(r *http.Request) (*merge.MergeJob, error) {
	videos, err := formVideos(r)
	if err != nil {
		return nil, err
	}
	if len(videos) == 0 {
		return nil, errors.New("no videos provided")
	}

	clips := make([]merge.MediaAsset, 0, len(videos))
	for _, v := range videos {
		path, err := h.resolveUploadPath(v)
		if err != nil {
			return nil, fmt.Errorf("invalid video path %q: %w", v, err)
		}
		clips = append(clips, merge.NewAsset(path, merge.RoleClip))
	}

	filters, err := formFilters(r.FormValue("filters"))
	if err != nil {
		return nil, err
	}

	preset := strings.TrimSpace(r.FormValue("preset"))
	if preset == "" {
		preset = merge.PresetOriginal
	}

	return &merge.MergeJob{
		ID:            uuid.NewString(),
		Clips:         clips,
		Preset:        preset,
		Normalization: merge.NormalizationSpec{Filters: filters},
		Transition: merge.NewTransitionSpec(
			merge.ParseTransition(r.FormValue("transition")),
			merge.ParseTransitionDuration(r.FormValue("transitionDuration")),
		),
		Audio: merge.AudioPolicy{
			Mode:           merge.ParseAudioMode(r.FormValue("audioMode")),
			OriginalVolume: merge.ParseVolume(r.FormValue("originalVolume"), merge.DefaultOriginalVolume),
			MusicVolume:    merge.ParseVolume(r.FormValue("musicVolume"), merge.DefaultMusicVolume),
			Ducking:        strings.EqualFold(strings.TrimSpace(r.FormValue("ducking")), "true"),
		},
		OutputName: merge.SanitizeOutputName(r.FormValue("outputName")),
	}, nil
}

// formVideos accepts repeated "videos[]" fields or a JSON array in "videos".
func formVideos(r *http.Request) ([]string, error) {
	if vs := r.Form["videos[]"]; len(vs) > 0 {
		return vs, nil
	}
	raw := strings.TrimSpace(r.FormValue("videos"))
	if raw == "" {
		return nil, nil
	}
	var videos []string
	if err := json.Unmarshal([]byte(raw), &videos); err != nil {
		return nil, fmt.Errorf("invalid videos field: %w", err)
	}
	return videos, nil
}

func formFilters(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var filters []string
	if err := json.Unmarshal([]byte(raw), &filters); err != nil {
		return nil, fmt.Errorf("invalid filters field: %w", err)
	}
	return filters, nil
}

func isMusicFile(name string) bool {
	return mediatypes.IsAudioFile(name) || mediatypes.IsVideoFile(name)
}

// saveAsset stores the optional file field and returns it as an asset. A
// missing field yields a nil asset and no error.
func (h *Handlers) saveAsset(r *http.Request, field string, role merge.Role, accept func(string) bool) (*merge.MediaAsset, string, error) {
	if r.MultipartForm == nil {
		return nil, "", nil
	}
	files := r.MultipartForm.File[field]
	if len(files) == 0 || files[0].Filename == "" {
		return nil, "", nil
	}
	fh := files[0]
	if !accept(fh.Filename) {
		return nil, "", fmt.Errorf("%w for %s: %s", errUnsupportedType, field, cleanFilename(fh.Filename))
	}
	path, _, err := h.saveUpload(fh)
	if err != nil {
		logging.Error("Failed to store %s upload: %v", field, err)
		return nil, "", fmt.Errorf("failed to store %s", field)
	}
	asset := merge.NewAsset(path, role)
	return &asset, path, nil
}

func statusForSaveError(err error) int {
	if errors.Is(err, errUnsupportedType) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
