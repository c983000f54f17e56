package metrics

// Pipeline stage labels used by StageDuration.
const (
	StageProbe     = "probe"
	StageNormalize = "normalize"
	StageConcat    = "concat"
	StageAudioMix  = "audiomix"
)

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first Prometheus scrape.
// Call this once at startup after metric registration.
func InitializeMetrics() {
	for _, status := range []string{"success", "error", "timeout", "invalid"} {
		JobsTotal.WithLabelValues(status)
	}

	for _, stage := range []string{StageProbe, StageNormalize, StageConcat, StageAudioMix} {
		StageDuration.WithLabelValues(stage)
	}

	for _, tool := range []string{"ffmpeg", "ffprobe"} {
		for _, status := range []string{"success", "error", "timeout", "canceled"} {
			FFmpegInvocationsTotal.WithLabelValues(tool, status)
		}
		FFmpegDuration.WithLabelValues(tool)
	}

	for _, kind := range []string{"duration", "resolution"} {
		ProbeFailures.WithLabelValues(kind)
	}

	for _, status := range []string{"success", "error", "rejected"} {
		UploadsTotal.WithLabelValues(status)
	}

	for _, status := range []string{"success", "error"} {
		ThumbnailGenerationsTotal.WithLabelValues(status)
	}

	for _, status := range []string{"success", "client_gone", "timeout", "error"} {
		DeliveriesTotal.WithLabelValues(status)
	}

	for _, file := range []string{"main", "wal", "shm"} {
		DBSizeBytes.WithLabelValues(file)
	}

	for _, status := range []string{"running", "succeeded", "failed"} {
		StoredJobs.WithLabelValues(status)
	}

	for _, op := range []string{"initialize_schema", "create_job", "finish_job",
		"get_job", "list_jobs", "prune_jobs", "mark_interrupted", "stats",
		"get_metadata", "set_metadata", "vacuum"} {
		DBQueryTotal.WithLabelValues(op, "success")
		DBQueryTotal.WithLabelValues(op, "error")
		DBQueryDuration.WithLabelValues(op)
	}
}
