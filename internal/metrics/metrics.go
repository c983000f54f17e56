package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clip_merger_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clip_merger_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clip_merger_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Merge pipeline metrics
var (
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clip_merger_jobs_total",
			Help: "Total number of merge jobs by outcome",
		},
		[]string{"status"},
	)

	JobsInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clip_merger_jobs_in_progress",
			Help: "Number of merge jobs currently running",
		},
	)

	JobDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "clip_merger_job_duration_seconds",
			Help:    "Wall-clock duration of a merge job in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1200, 3600},
		},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clip_merger_stage_duration_seconds",
			Help:    "Duration of individual pipeline stages in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"stage"},
	)

	NormalizeFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clip_merger_normalize_failures_total",
			Help: "Clips dropped because normalization failed",
		},
	)

	ProbeFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clip_merger_probe_failures_total",
			Help: "Probe calls that degraded to a zero or absent value",
		},
		[]string{"kind"},
	)

	ClipsMerged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clip_merger_clips_merged_total",
			Help: "Total number of normalized clips that went into a merged output",
		},
	)
)

// External process metrics
var (
	FFmpegInvocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clip_merger_ffmpeg_invocations_total",
			Help: "Total number of ffmpeg/ffprobe invocations by tool and status",
		},
		[]string{"tool", "status"},
	)

	FFmpegDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clip_merger_ffmpeg_duration_seconds",
			Help:    "Duration of ffmpeg/ffprobe invocations in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300, 900},
		},
		[]string{"tool"},
	)

	FFmpegProcessesRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clip_merger_ffmpeg_processes_running",
			Help: "Number of external transcoder processes currently running",
		},
	)
)

// Upload and thumbnail metrics
var (
	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clip_merger_uploads_total",
			Help: "Total number of uploaded files by status",
		},
		[]string{"status"},
	)

	UploadBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clip_merger_upload_bytes_total",
			Help: "Total bytes received through uploads",
		},
	)

	ThumbnailGenerationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clip_merger_thumbnail_generations_total",
			Help: "Total number of thumbnail generations by status",
		},
		[]string{"status"},
	)

	ThumbnailGenerationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "clip_merger_thumbnail_generation_duration_seconds",
			Help:    "Thumbnail generation duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
	)
)

// Artifact delivery metrics
var (
	DeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clip_merger_deliveries_total",
			Help: "Total number of merged artifacts streamed to clients by status",
		},
		[]string{"status"}, // "success", "client_gone", "timeout", "error"
	)

	DeliveredBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clip_merger_delivered_bytes_total",
			Help: "Total bytes of merged artifacts written to clients",
		},
	)
)

// Job store metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clip_merger_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clip_merger_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	DBSizeBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "clip_merger_db_size_bytes",
			Help: "Size of the job store files in bytes",
		},
		[]string{"file"}, // "main", "wal", "shm"
	)

	StoredJobs = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "clip_merger_stored_jobs",
			Help: "Number of jobs in the job store by status",
		},
		[]string{"status"},
	)

	DirectorySizeBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "clip_merger_directory_size_bytes",
			Help: "Disk usage of the working directories in bytes",
		},
		[]string{"dir"}, // "uploads", "work", "thumbnails"
	)
)

// Filesystem retry metrics (NFS-mounted volumes)
var (
	FilesystemStaleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clip_merger_filesystem_stale_errors_total",
			Help: "Stale file handle errors seen by filesystem operations",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clip_merger_filesystem_retries_total",
			Help: "Filesystem operations that needed retries, by final outcome",
		},
		[]string{"operation", "volume", "outcome"}, // outcome: "success", "failure"
	)
)

// Memory metrics
var (
	MemoryUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clip_merger_memory_usage_ratio",
			Help: "Ratio of container memory in use to the memory limit",
		},
	)

	MemoryPaused = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clip_merger_memory_paused",
			Help: "Whether new normalize encodes are held back due to memory pressure (1 = paused)",
		},
	)

	MemoryGCPauses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clip_merger_memory_gc_pauses_total",
			Help: "Total number of forced GC cycles triggered by memory pressure",
		},
	)

	GoMemLimit = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clip_merger_gomemlimit_bytes",
			Help: "Configured GOMEMLIMIT in bytes",
		},
	)
)

// Go runtime metrics
var (
	GoMemAllocBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clip_merger_go_mem_alloc_bytes",
			Help: "Current heap allocation in bytes",
		},
	)

	GoMemSysBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clip_merger_go_mem_sys_bytes",
			Help: "Total memory obtained from the OS in bytes",
		},
	)

	GoGCRuns = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clip_merger_go_gc_runs_total",
			Help: "Total number of completed GC cycles",
		},
	)
)

// Application info
var AppInfo = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "clip_merger_app_info",
		Help: "Application build information",
	},
	[]string{"version", "commit", "go_version"},
)
