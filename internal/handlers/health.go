package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"clip-merger/internal/startup"
)

const (
	statusHealthy   = "healthy"
	statusDegraded  = "degraded"
	statusUnhealthy = "unhealthy"
)

const healthCheckTimeout = 5 * time.Second

// HealthResponse contains the health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Ready   bool   `json:"ready"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`

	// Dependencies
	Database      string `json:"database"`
	FFmpeg        string `json:"ffmpeg"`
	FFmpegVersion string `json:"ffmpegVersion,omitempty"`
	RunningTools  int    `json:"runningTools"`

	// System info
	GoVersion    string `json:"goVersion"`
	NumCPU       int    `json:"numCpu"`
	NumGoroutine int    `json:"numGoroutine"`

	// Job history summary
	TotalJobs   int `json:"totalJobs"`
	RunningJobs int `json:"runningJobs"`
	FailedJobs  int `json:"failedJobs"`
}

type dependencyStatus struct {
	dbErr      error
	toolErr    error
	ffmpeg     string
	runningCmd int
}

func (h *Handlers) checkDependencies(ctx context.Context) dependencyStatus {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	var s dependencyStatus
	s.dbErr = h.jobs.Ping(ctx)
	s.ffmpeg, s.toolErr = h.tools.Check(ctx)
	s.runningCmd = h.tools.Running()
	return s
}

// HealthCheck returns the health status of the service. The database is
// required; a missing ffmpeg leaves the service degraded but reachable.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	deps := h.checkDependencies(r.Context())
	stats := h.jobs.GetStats()

	response := HealthResponse{
		Version:       startup.Version,
		Uptime:        time.Since(h.startTime).Round(time.Second).String(),
		Database:      "ok",
		FFmpeg:        "ok",
		FFmpegVersion: deps.ffmpeg,
		RunningTools:  deps.runningCmd,
		GoVersion:     runtime.Version(),
		NumCPU:        runtime.NumCPU(),
		NumGoroutine:  runtime.NumGoroutine(),
		TotalJobs:     stats.TotalJobs,
		RunningJobs:   stats.RunningJobs,
		FailedJobs:    stats.FailedJobs,
	}

	response.Status = statusHealthy
	if deps.toolErr != nil {
		response.FFmpeg = deps.toolErr.Error()
		response.Status = statusDegraded
	}
	if deps.dbErr != nil {
		response.Database = deps.dbErr.Error()
		response.Status = statusUnhealthy
	}
	response.Ready = response.Status == statusHealthy

	w.Header().Set("Content-Type", "application/json")
	if response.Status == statusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	writeJSON(w, response)
}

// LivenessCheck is a simple liveness probe (always returns 200 if server is running)
func (h *Handlers) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	// For HEAD requests, only send headers (no body)
	if r.Method != http.MethodHead {
		writeJSON(w, map[string]string{
			"status": "alive",
		})
	}
}

// ReadinessCheck returns 200 only when both the job store and ffmpeg work.
func (h *Handlers) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	deps := h.checkDependencies(r.Context())
	if deps.dbErr != nil || deps.toolErr != nil {
		writeJSONStatus(w, http.StatusServiceUnavailable, "not_ready")
		return
	}
	writeJSONStatus(w, http.StatusOK, "ready")
}
