package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"clip-merger/internal/database"
	"clip-merger/internal/logging"
)

// ListJobs returns one page of job history. Query parameters: page,
// pageSize and status.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := database.ListOptions{Status: database.JobStatus(q.Get("status"))}

	if opts.Status != "" && !opts.Status.Valid() {
		writeJSONError(w, "invalid status: "+string(opts.Status), http.StatusBadRequest)
		return
	}

	var err error
	if opts.Page, err = queryInt(q.Get("page")); err != nil {
		writeJSONError(w, "invalid page", http.StatusBadRequest)
		return
	}
	if opts.PageSize, err = queryInt(q.Get("pageSize")); err != nil {
		writeJSONError(w, "invalid pageSize", http.StatusBadRequest)
		return
	}

	list, err := h.jobs.ListJobs(r.Context(), opts)
	if err != nil {
		logging.Error("Failed to list jobs: %v", err)
		writeJSONError(w, "failed to list jobs", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	writeJSON(w, list)
}

// GetJob returns a single job with its diagnostics.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	job, err := h.jobs.GetJob(r.Context(), id)
	if errors.Is(err, database.ErrJobNotFound) {
		writeJSONError(w, "job not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logging.Error("Failed to load job %s: %v", id, err)
		writeJSONError(w, "failed to load job", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	writeJSON(w, job)
}

// queryInt parses an optional non-negative integer; empty means zero.
func queryInt(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, errors.New("negative value")
	}
	return n, nil
}
