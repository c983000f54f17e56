package metrics

import "clip-merger/internal/transcoder"

// transcoderObserver implements transcoder.Observer using the Prometheus
// metrics declared in this package.
type transcoderObserver struct{}

// NewTranscoderObserver creates an observer that records ffmpeg and ffprobe
// invocations into the counters and histograms declared in metrics.go.
func NewTranscoderObserver() transcoder.Observer {
	return &transcoderObserver{}
}

func (o *transcoderObserver) ObserveInvocation(tool, status string, durationSeconds float64) {
	FFmpegInvocationsTotal.WithLabelValues(tool, status).Inc()
	FFmpegDuration.WithLabelValues(tool).Observe(durationSeconds)
}

func (o *transcoderObserver) ProcessStarted() {
	FFmpegProcessesRunning.Inc()
}

func (o *transcoderObserver) ProcessFinished() {
	FFmpegProcessesRunning.Dec()
}
