package database

import "time"

// JobStatus is the lifecycle state of a stored job.
type JobStatus string

const (
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// Valid reports whether s is a known status.
func (s JobStatus) Valid() bool {
	switch s {
	case JobRunning, JobSucceeded, JobFailed:
		return true
	}
	return false
}

type Job struct {
	ID                 string          `json:"id"`
	Status             JobStatus       `json:"status"`
	ClipCount          int             `json:"clipCount"`
	HasIntro           bool            `json:"hasIntro"`
	HasOutro           bool            `json:"hasOutro"`
	Preset             string          `json:"preset"`
	Width              int             `json:"width"`
	Height             int             `json:"height"`
	Transition         string          `json:"transition"`
	TransitionDuration float64         `json:"transitionDuration"`
	AudioMode          string          `json:"audioMode"`
	OutputName         string          `json:"outputName"`
	ClipsMerged        int             `json:"clipsMerged"`
	Duration           float64         `json:"duration"`
	CrossFade          bool            `json:"crossFade"`
	Error              string          `json:"error,omitempty"`
	ErrorKind          string          `json:"errorKind,omitempty"`
	CreatedAt          time.Time       `json:"createdAt"`
	FinishedAt         *time.Time      `json:"finishedAt,omitempty"`
	ElapsedMs          int64           `json:"elapsedMs"`
	Diagnostics        []JobDiagnostic `json:"diagnostics,omitempty"`
}

type JobDiagnostic struct {
	Stage   string `json:"stage"`
	Input   string `json:"input,omitempty"`
	Message string `json:"message"`
}

// JobList is one page of job history, newest first.
type JobList struct {
	Items      []Job `json:"items"`
	TotalItems int   `json:"totalItems"`
	Page       int   `json:"page"`
	PageSize   int   `json:"pageSize"`
	TotalPages int   `json:"totalPages"`
}

// ListOptions filters and pages ListJobs.
type ListOptions struct {
	Status   JobStatus
	Page     int
	PageSize int
}
