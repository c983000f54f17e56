package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"clip-merger/internal/database"
	"clip-merger/internal/filesystem"
	"clip-merger/internal/handlers"
	"clip-merger/internal/logging"
	"clip-merger/internal/media"
	"clip-merger/internal/memory"
	"clip-merger/internal/merge"
	"clip-merger/internal/metrics"
	"clip-merger/internal/middleware"
	"clip-merger/internal/startup"
	"clip-merger/internal/transcoder"
	"clip-merger/internal/workers"
)

const (
	metricsInterval   = time.Minute
	jobPruneInterval  = time.Hour
	shutdownTimeout   = 30 * time.Second
	dbStartupDeadline = 30 * time.Second
	toolCheckTimeout  = 30 * time.Second
)

func main() {
	startTime := time.Now()

	// Set GOMEMLIMIT before anything sizeable is allocated
	memResult := memory.ConfigureFromEnv()

	// Load configuration
	config, err := startup.LoadConfig()
	if err != nil {
		startup.LogFatal("Configuration error: %v", err)
	}
	startup.LogMemoryConfig(memResult)

	filesystem.SetDefaultVolumeResolver(filesystem.NewVolumeResolver(map[string]string{
		"uploads":    config.UploadDir,
		"work":       config.WorkDir,
		"thumbnails": config.ThumbnailDir,
		"database":   config.DatabaseDir,
	}))

	// Initialize transcoder
	trans := transcoder.New(transcoder.Config{
		FFmpegPath:   config.FFmpegPath,
		FFprobePath:  config.FFprobePath,
		Timeout:      config.FFmpegTimeout,
		ProbeTimeout: config.ProbeTimeout,
		WorkDir:      config.WorkDir,
		Observer:     metrics.NewTranscoderObserver(),
	})
	checkCtx, cancelCheck := context.WithTimeout(context.Background(), toolCheckTimeout)
	version, checkErr := trans.Check(checkCtx)
	cancelCheck()
	startup.LogTranscoderInit(version, checkErr)

	freed, cleanupErr := trans.ClearWorkDir()
	startup.LogWorkDirCleanup(freed, cleanupErr)

	// Initialize job store
	dbStart := time.Now()
	dbCtx, cancelDB := context.WithTimeout(context.Background(), dbStartupDeadline)
	db, err := database.New(dbCtx, config.DatabasePath)
	if err != nil {
		cancelDB()
		startup.LogFatal("Failed to initialize job store: %v", err)
	}
	interrupted, err := db.MarkInterrupted(dbCtx)
	if err != nil {
		logging.Warn("Failed to mark interrupted jobs: %v", err)
	}
	if cleanupErr == nil {
		if err := db.SetLastWorkDirCleanup(dbCtx, time.Now()); err != nil {
			logging.Warn("Failed to record workspace cleanup: %v", err)
		}
	}
	cancelDB()
	startup.LogDatabaseInit(time.Since(dbStart), interrupted)

	// Memory pressure gates normalize encodes
	monitor := memory.NewMonitor(memory.DefaultConfig())
	monitor.Start()

	// Initialize merge pipeline
	pipelineConfig := merge.Config{
		WorkDir:          config.WorkDir,
		KeepArtifacts:    config.KeepArtifacts,
		NormalizeWorkers: config.NormalizeWorkers,
		ProbeWorkers:     workers.ForProbe(),
	}
	pipeline := merge.NewPipeline(trans, pipelineConfig,
		merge.WithRecorder(db),
		merge.WithBackpressure(monitor),
	)
	startup.LogPipelineInit(pipelineConfig.NormalizeWorkers, pipelineConfig.ProbeWorkers, config.KeepArtifacts)

	thumbs := media.NewThumbnailGenerator(trans, config.ThumbnailDir, config.ThumbnailsEnabled)

	// Initialize handlers
	h := handlers.New(pipeline, db, trans, thumbs, config)

	// Setup router
	router := setupRouter(h, config)

	// Log routes dynamically
	startup.LogHTTPRoutes(router, config.LogStaticFiles, config.LogHealthChecks)

	// Apply logging middleware
	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogStaticFiles = config.LogStaticFiles
	loggingConfig.LogHealthChecks = config.LogHealthChecks
	loggedHandler := middleware.Logger(loggingConfig)(router)

	// Apply compression middleware
	compressionConfig := middleware.DefaultCompressionConfig()
	handler := middleware.Compression(compressionConfig)(loggedHandler)

	// Create server. Merges stream their result for as long as they take,
	// so there is no write timeout.
	srv := &http.Server{
		Addr:              ":" + config.Port,
		Handler:           handler,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      0,
		IdleTimeout:       60 * time.Second,
	}

	// Metrics
	var metricsSrv *http.Server
	var collector *metrics.Collector
	if config.MetricsEnabled {
		metrics.InitializeMetrics()
		metrics.AppInfo.WithLabelValues(startup.Version, startup.Commit, startup.GoVersion).Set(1)

		collector = metrics.NewCollector(db, config.DatabasePath, metricsInterval)
		collector.WatchDir("uploads", config.UploadDir)
		collector.WatchDir("work", config.WorkDir)
		if config.ThumbnailsEnabled {
			collector.WatchDir("thumbnails", config.ThumbnailDir)
		}
		collector.Start()

		metricsSrv = newMetricsServer(h, config.MetricsPort)
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logging.Error("Metrics server error: %v", err)
			}
		}()
	}

	// Prune old job history
	stopPrune := make(chan struct{})
	if config.JobHistoryRetention > 0 {
		go pruneJobs(db, config.JobHistoryRetention, jobPruneInterval, stopPrune)
	}

	// Start graceful shutdown handler
	done := make(chan struct{})
	go func() {
		handleShutdown(srv, metricsSrv, collector, monitor, trans, stopPrune)
		close(done)
	}()

	// Start server
	startup.LogServerStarted(startup.ServerConfig{
		Port:            config.Port,
		MetricsPort:     config.MetricsPort,
		MetricsEnabled:  config.MetricsEnabled,
		StartupDuration: time.Since(startTime),
	})
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		startup.LogFatal("Server error: %v", err)
	}

	<-done
	if err := db.Close(); err != nil {
		logging.Warn("Failed to close job store: %v", err)
	}
	startup.LogShutdownComplete()
}

func setupRouter(h *handlers.Handlers, config *startup.Config) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.Metrics(middleware.DefaultMetricsConfig()))

	// Health check and version routes
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	r.HandleFunc("/healthz", h.HealthCheck).Methods("GET")
	r.HandleFunc("/livez", h.LivenessCheck).Methods("GET", "HEAD")
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods("GET")
	r.HandleFunc("/version", h.GetVersion).Methods("GET")

	// Merge workflow
	r.HandleFunc("/upload", h.Upload).Methods("POST")
	r.HandleFunc("/merge", h.Merge).Methods("POST")

	// API routes
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/jobs", h.ListJobs).Methods("GET")
	api.HandleFunc("/jobs/{id}", h.GetJob).Methods("GET")
	api.HandleFunc("/presets", h.GetPresets).Methods("GET")

	// Generated thumbnails
	if config.ThumbnailsEnabled {
		r.PathPrefix("/thumbnails/").Handler(
			http.StripPrefix("/thumbnails/", http.FileServer(http.Dir(config.ThumbnailDir))),
		).Methods("GET", "HEAD")
	}

	// Static files
	r.PathPrefix("/").Handler(http.FileServer(http.Dir(config.StaticDir)))

	return r
}

func newMetricsServer(h *handlers.Handlers, port string) *http.Server {
	handler := http.NewServeMux()
	handler.Handle("/metrics", h.MetricsHandler())
	handler.HandleFunc("/health", h.LivenessCheck)

	return &http.Server{
		Addr:         ":" + port,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}
}

type jobPruner interface {
	PruneJobs(ctx context.Context, cutoff time.Time) (int64, error)
}

// pruneJobs removes finished jobs older than retention once at start and then
// every interval until stop is closed.
func pruneJobs(db jobPruner, retention, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		n, err := db.PruneJobs(ctx, time.Now().Add(-retention))
		cancel()
		switch {
		case err != nil:
			logging.Warn("Failed to prune job history: %v", err)
		case n > 0:
			logging.Info("Pruned %d job(s) older than %v", n, retention)
		}

		select {
		case <-stop:
			return
		case <-ticker.C:
		}
	}
}

func handleShutdown(srv, metricsSrv *http.Server, collector *metrics.Collector, monitor *memory.Monitor, trans *transcoder.Transcoder, stopPrune chan struct{}) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	startup.LogShutdownInitiated(sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	startup.LogShutdownStep("Stopping memory monitor")
	monitor.Stop()
	startup.LogShutdownStepComplete("Memory monitor stopped")

	startup.LogShutdownStep("Stopping ffmpeg processes")
	trans.Cleanup()
	startup.LogShutdownStepComplete("Transcoder cleanup complete")

	close(stopPrune)

	if collector != nil {
		collector.Stop()
		startup.LogShutdownStepComplete("Metrics collector stopped")
	}
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(ctx); err != nil {
			logging.Warn("Metrics server shutdown error: %v", err)
		} else {
			startup.LogShutdownStepComplete("Metrics server stopped")
		}
	}
}
