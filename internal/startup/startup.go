package startup

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"

	"clip-merger/internal/logging"
	"clip-merger/internal/memory"
	"clip-merger/internal/workers"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// RouteInfo contains information about a registered route
type RouteInfo struct {
	Method string
	Path   string
	Name   string
}

// Config holds all application configuration
type Config struct {
	UploadDir    string
	WorkDir      string
	ThumbnailDir string
	DatabaseDir  string
	StaticDir    string

	Port           string
	MetricsPort    string
	MetricsEnabled bool

	FFmpegPath       string
	FFprobePath      string
	FFmpegTimeout    time.Duration
	ProbeTimeout     time.Duration
	NormalizeWorkers int
	KeepArtifacts    bool
	MaxUploadBytes   int64

	// JobHistoryRetention is how long finished jobs stay in the job store (0 = forever)
	JobHistoryRetention time.Duration

	LogStaticFiles  bool
	LogHealthChecks bool

	// Derived paths
	DatabasePath string

	// Thumbnails are skipped when the thumbnail directory is not writable
	ThumbnailsEnabled bool
}

// dotEnvFiles are loaded in order; variables already in the environment win.
var dotEnvFiles = []string{".env", ".env.local"}

// LoadConfig loads and validates configuration from the environment,
// after merging in .env files from the working directory.
func LoadConfig() (*Config, error) {
	loaded := loadDotEnv()

	printBanner()
	logSystemInfo()

	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")
	for _, f := range loaded {
		logging.Info("  Loaded environment from %s", f)
	}

	config := &Config{
		UploadDir:           getEnv("UPLOAD_DIR", "./uploads"),
		WorkDir:             getEnv("WORK_DIR", "./merged"),
		ThumbnailDir:        getEnv("THUMBNAIL_DIR", "./static/thumbnails"),
		DatabaseDir:         getEnv("DATABASE_DIR", "./data"),
		StaticDir:           getEnv("STATIC_DIR", "./static"),
		Port:                getEnv("PORT", "5000"),
		MetricsPort:         getEnv("METRICS_PORT", "9090"),
		MetricsEnabled:      getEnvBool("METRICS_ENABLED", true),
		FFmpegPath:          getEnv("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:         getEnv("FFPROBE_PATH", "ffprobe"),
		FFmpegTimeout:       getEnvDuration("FFMPEG_TIMEOUT", 30*time.Minute),
		ProbeTimeout:        getEnvDuration("PROBE_TIMEOUT", 30*time.Second),
		NormalizeWorkers:    workers.ForNormalize(),
		KeepArtifacts:       getEnvBool("KEEP_ARTIFACTS", false),
		MaxUploadBytes:      int64(getEnvInt("MAX_UPLOAD_MB", 2048)) << 20,
		JobHistoryRetention: getEnvDuration("JOB_HISTORY_RETENTION", 30*24*time.Hour),
		LogStaticFiles:      getEnvBool("LOG_STATIC_FILES", false),
		LogHealthChecks:     getEnvBool("LOG_HEALTH_CHECKS", true),
	}

	logging.Info("  UPLOAD_DIR:            %s", config.UploadDir)
	logging.Info("  WORK_DIR:              %s", config.WorkDir)
	logging.Info("  THUMBNAIL_DIR:         %s", config.ThumbnailDir)
	logging.Info("  DATABASE_DIR:          %s", config.DatabaseDir)
	logging.Info("  STATIC_DIR:            %s", config.StaticDir)
	logging.Info("  PORT:                  %s", config.Port)
	logging.Info("  METRICS_PORT:          %s", config.MetricsPort)
	logging.Info("  METRICS_ENABLED:       %v", config.MetricsEnabled)
	logging.Info("  FFMPEG_PATH:           %s", config.FFmpegPath)
	logging.Info("  FFPROBE_PATH:          %s", config.FFprobePath)
	logging.Info("  FFMPEG_TIMEOUT:        %v", config.FFmpegTimeout)
	logging.Info("  PROBE_TIMEOUT:         %v", config.ProbeTimeout)
	logging.Info("  NORMALIZE_WORKERS:     %d", config.NormalizeWorkers)
	logging.Info("  KEEP_ARTIFACTS:        %v", config.KeepArtifacts)
	logging.Info("  MAX_UPLOAD_MB:         %d", config.MaxUploadBytes>>20)
	logging.Info("  JOB_HISTORY_RETENTION: %v", config.JobHistoryRetention)
	logging.Info("  LOG_STATIC_FILES:      %v", config.LogStaticFiles)
	logging.Info("  LOG_HEALTH_CHECKS:     %v", config.LogHealthChecks)
	logging.Info("  LOG_LEVEL:             %s", logging.GetLevel())

	if config.MaxUploadBytes <= 0 {
		return nil, fmt.Errorf("MAX_UPLOAD_MB must be positive")
	}

	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DIRECTORY SETUP")
	logging.Info("------------------------------------------------------------")

	// Upload, work and database directories are required
	required := []struct {
		path *string
		name string
	}{
		{&config.UploadDir, "upload"},
		{&config.WorkDir, "work"},
		{&config.DatabaseDir, "database"},
	}
	for _, d := range required {
		abs, err := filepath.Abs(*d.path)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s directory path: %w", d.name, err)
		}
		*d.path = abs
		logging.Info("  %s directory (absolute): %s", capitalize(d.name), abs)

		if err := ensureDirectory(abs, d.name); err != nil {
			return nil, fmt.Errorf("%s directory error: %w", d.name, err)
		}
		if err := testWriteAccess(abs); err != nil {
			return nil, fmt.Errorf("%s directory is not writable: %w", d.name, err)
		}
		logging.Info("  [OK] %s directory is writable", capitalize(d.name))
	}

	thumbDir, err := filepath.Abs(config.ThumbnailDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve thumbnail directory path: %w", err)
	}
	config.ThumbnailDir = thumbDir
	config.ThumbnailsEnabled = setupOptionalDir(thumbDir, "thumbnails")

	config.DatabasePath = filepath.Join(config.DatabaseDir, "jobs.db")

	logging.Info("")
	logging.Info("  Feature availability:")
	logging.Info("    Job store:   ENABLED (required)")
	logging.Info("    Thumbnails:  %s", enabledString(config.ThumbnailsEnabled))
	logging.Info("    Metrics:     %s", enabledString(config.MetricsEnabled))
	logging.Info("    Keep output: %s", enabledString(config.KeepArtifacts))

	return config, nil
}

// loadDotEnv merges the .env files that exist and returns their names.
func loadDotEnv() []string {
	var loaded []string
	for _, f := range dotEnvFiles {
		err := godotenv.Load(f)
		switch {
		case err == nil:
			loaded = append(loaded, f)
		case errors.Is(err, fs.ErrNotExist):
		default:
			logging.Warn("Failed to load %s: %v", f, err)
		}
	}
	return loaded
}

func setupOptionalDir(path, name string) bool {
	logging.Debug("  Setting up %s directory: %s", name, path)

	if err := os.MkdirAll(path, 0o755); err != nil {
		logging.Warn("    Failed to create %s directory: %v", name, err)
		logging.Warn("    %s will be disabled", name)
		return false
	}
	if err := testWriteAccess(path); err != nil {
		logging.Warn("    %s directory is not writable: %v", name, err)
		logging.Warn("    %s will be disabled", name)
		return false
	}

	logging.Debug("    [OK] %s directory ready", name)
	return true
}

func enabledString(enabled bool) string {
	if enabled {
		return "ENABLED"
	}
	return "DISABLED"
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// LogMemoryConfig logs the GOMEMLIMIT configuration result
func LogMemoryConfig(result memory.ConfigResult) {
	logging.Info("------------------------------------------------------------")
	logging.Info("MEMORY")
	logging.Info("------------------------------------------------------------")
	if !result.Configured {
		logging.Info("  GOMEMLIMIT not configured (no container limit found)")
		return
	}
	logging.Info("  GOMEMLIMIT: %s (source: %s)", formatBytes(result.GoMemLimit), result.Source)
	if result.ContainerLimit > 0 {
		logging.Info("  Container limit: %s, Go heap ratio: %.2f", formatBytes(result.ContainerLimit), result.Ratio)
	}
	logging.Info("")
}

// LogDatabaseInit logs job store initialization
func LogDatabaseInit(duration time.Duration, interrupted int64) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("JOB STORE INITIALIZATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  [OK] Job store initialized in %v", duration)
	if interrupted > 0 {
		logging.Warn("  Marked %d job(s) interrupted by the previous shutdown as failed", interrupted)
	}
}

// LogTranscoderInit logs the result of the ffmpeg availability check
func LogTranscoderInit(version string, err error) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("TRANSCODER INITIALIZATION")
	logging.Info("------------------------------------------------------------")

	if err != nil {
		logging.Warn("  FFmpeg check failed: %v", err)
		logging.Warn("  Merges will fail until ffmpeg and ffprobe are installed")
		return
	}
	logging.Info("  [OK] %s", version)
}

// LogWorkDirCleanup logs the startup reclaim of stale job workspaces
func LogWorkDirCleanup(freed int64, err error) {
	if err != nil {
		logging.Warn("  Failed to clear stale workspaces: %v", err)
		return
	}
	if freed > 0 {
		logging.Info("  Reclaimed %s from stale job workspaces", formatBytes(freed))
	}
}

// LogPipelineInit logs the merge pipeline settings
func LogPipelineInit(normalizeWorkers, probeWorkers int, keepArtifacts bool) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("MERGE PIPELINE")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Normalize workers: %d", normalizeWorkers)
	logging.Info("  Probe workers:     %d", probeWorkers)
	if keepArtifacts {
		logging.Info("  Job workspaces are kept after delivery (KEEP_ARTIFACTS=true)")
	}
}

// GetRoutes extracts all registered routes from a mux.Router
func GetRoutes(router *mux.Router) ([]RouteInfo, error) {
	var routes []RouteInfo

	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		pathTemplate, err := route.GetPathTemplate()
		if err != nil {
			return err
		}

		methods, err := route.GetMethods()
		if err != nil {
			// Route might not have methods specified (e.g., static file server)
			methods = []string{"*"}
		}

		for _, method := range methods {
			routes = append(routes, RouteInfo{
				Method: method,
				Path:   pathTemplate,
				Name:   route.GetName(),
			})
		}
		return nil
	})

	return routes, err
}

// LogHTTPRoutes logs all registered HTTP routes dynamically
func LogHTTPRoutes(router *mux.Router, logStaticFiles, logHealthChecks bool) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("HTTP SERVER SETUP")
	logging.Info("------------------------------------------------------------")

	if logging.IsDebugEnabled() {
		routes, err := GetRoutes(router)
		if err != nil {
			logging.Warn("error walking routes: %v", err)
		}

		logging.Debug("  Registered routes (%d total):", len(routes))

		groups := make(map[string][]RouteInfo)
		for _, route := range routes {
			prefix := getRouteGroup(route.Path)
			groups[prefix] = append(groups[prefix], route)
		}

		groupKeys := make([]string, 0, len(groups))
		for k := range groups {
			groupKeys = append(groupKeys, k)
		}
		sort.Strings(groupKeys)

		for _, group := range groupKeys {
			if group != "" {
				logging.Debug("  [%s]", group)
			} else {
				logging.Debug("  [root]")
			}
			for _, route := range groups[group] {
				logging.Debug("    %-6s %s", route.Method, route.Path)
			}
		}
	}

	logging.Info("  HTTP logging enabled")
	if logStaticFiles {
		logging.Info("    Static file logging: ON")
	} else {
		logging.Info("    Static file logging: OFF (set LOG_STATIC_FILES=true to enable)")
	}
	if logHealthChecks {
		logging.Info("    Health check logging: ON")
	} else {
		logging.Info("    Health check logging: OFF (set LOG_HEALTH_CHECKS=true to enable)")
	}
}

// getRouteGroup extracts a group name from a route path
func getRouteGroup(path string) string {
	path = strings.TrimPrefix(path, "/")

	parts := strings.SplitN(path, "/", 2)
	first := parts[0]

	if first == "api" && len(parts) > 1 {
		subParts := strings.SplitN(parts[1], "/", 2)
		return "api/" + subParts[0]
	}

	return first
}

// ServerConfig holds configuration for the server startup log
type ServerConfig struct {
	Port            string
	MetricsPort     string
	MetricsEnabled  bool
	StartupDuration time.Duration
}

// LogServerStarted logs successful server start with all endpoint information
func LogServerStarted(config ServerConfig) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SERVER STARTED")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Startup time:    %v", config.StartupDuration)
	logging.Info("")
	logging.Info("  Endpoints:")
	logging.Info("    Application:   http://0.0.0.0:%s", config.Port)
	if config.MetricsEnabled {
		logging.Info("    Metrics:       http://0.0.0.0:%s/metrics", config.MetricsPort)
	} else {
		logging.Info("    Metrics:       DISABLED")
	}
	logging.Info("")
	logging.Info("  Press Ctrl+C to stop the server")
	logging.Info("------------------------------------------------------------")
	logging.Info("")
}

// LogShutdownInitiated logs shutdown start
func LogShutdownInitiated(signal string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SHUTDOWN INITIATED (received %s)", signal)
	logging.Info("------------------------------------------------------------")
}

// LogShutdownStep logs a shutdown step
func LogShutdownStep(step string) {
	logging.Debug("  %s...", step)
}

// LogShutdownStepComplete logs a completed shutdown step
func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

// LogShutdownComplete logs shutdown completion
func LogShutdownComplete() {
	logging.Info("  [OK] Shutdown complete")
}

// LogFatal logs a fatal error and exits
func LogFatal(format string, args ...interface{}) {
	logging.Fatal(format, args...)
}

// Helper functions

func printBanner() {
	banner := `
------------------------------------------------------------
   _____ _ _         __  __
  / ____| (_)       |  \/  |
 | |    | |_ _ __   | \  / | ___ _ __ __ _  ___ _ __
 | |    | | | '_ \  | |\/| |/ _ \ '__/ _' |/ _ \ '__|
 | |____| | | |_) | | |  | |  __/ | | (_| |  __/ |
  \_____|_|_| .__/  |_|  |_|\___|_|  \__, |\___|_|
            | |                       __/ |
            |_|                      |___/
------------------------------------------------------------`
	fmt.Println(banner)
	logging.Info("  Version:    %s", Version)
	logging.Info("  Commit:     %s", Commit)
	logging.Info("  Build Time: %s", BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC1123))
	logging.Info("")
}

func logSystemInfo() {
	logging.Info("------------------------------------------------------------")
	logging.Info("SYSTEM INFORMATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Go version:      %s", runtime.Version())
	logging.Info("  OS/Arch:         %s/%s", runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs available:  %d", runtime.NumCPU())
	logging.Info("  GOMAXPROCS:      %d", runtime.GOMAXPROCS(0))

	if runtime.GOMAXPROCS(0) < runtime.NumCPU() {
		logging.Info("  (Container CPU limit detected)")
	}

	if logging.IsDebugEnabled() {
		if wd, err := os.Getwd(); err == nil {
			logging.Debug("  Working dir:     %s", wd)
		}
		if hostname, err := os.Hostname(); err == nil {
			logging.Debug("  Hostname:        %s", hostname)
		}
	}

	logging.Info("")
}

func ensureDirectory(path, name string) error {
	logging.Debug("  Checking %s directory: %s", name, path)

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		logging.Debug("    Directory does not exist, creating...")
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		logging.Debug("    [OK] Created directory: %s", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path exists but is not a directory")
	}

	logging.Debug("    [OK] Directory exists")
	return nil
}

func testWriteAccess(dir string) error {
	testFile := filepath.Join(dir, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		return err
	}
	if err := os.Remove(testFile); err != nil {
		logging.Warn("failed to remove write test file %s: %v", testFile, err)
	}
	return nil
}

func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		logging.Warn("Invalid boolean value for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		logging.Warn("Invalid integer value for %s: %q, using default: %d", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed < 0 {
		logging.Warn("Invalid duration for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}
