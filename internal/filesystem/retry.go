package filesystem

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"clip-merger/internal/logging"
	"clip-merger/internal/metrics"
)

// VolumeResolver maps file paths to volume labels for metrics, using
// longest-prefix matching on absolute paths.
type VolumeResolver struct {
	mounts []volumeMount // longest path first
}

type volumeMount struct {
	path string // absolute, with trailing slash
	name string
}

// NewVolumeResolver creates a resolver from volume label to directory, e.g.
//
//	NewVolumeResolver(map[string]string{"uploads": "/data/uploads", "work": "/data/merged"})
func NewVolumeResolver(volumes map[string]string) *VolumeResolver {
	mounts := make([]volumeMount, 0, len(volumes))
	for name, path := range volumes {
		if path == "" {
			continue
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			abs = path
		}
		if !strings.HasSuffix(abs, "/") {
			abs += "/"
		}
		mounts = append(mounts, volumeMount{path: abs, name: name})
	}
	sort.Slice(mounts, func(i, j int) bool {
		return len(mounts[i].path) > len(mounts[j].path)
	})
	return &VolumeResolver{mounts: mounts}
}

// Resolve returns the label of the volume containing path, or "unknown".
func (vr *VolumeResolver) Resolve(path string) string {
	if vr == nil {
		return "unknown"
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "unknown"
	}
	for _, m := range vr.mounts {
		if strings.HasPrefix(abs+"/", m.path) {
			return m.name
		}
	}
	return "unknown"
}

var (
	resolverMu      sync.RWMutex
	defaultResolver *VolumeResolver
)

// SetDefaultVolumeResolver sets the resolver used when a RetryConfig has none.
// Call it once at startup after loading configuration.
func SetDefaultVolumeResolver(vr *VolumeResolver) {
	resolverMu.Lock()
	defaultResolver = vr
	resolverMu.Unlock()
}

// RetryConfig configures retries of stale file handle errors.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// VolumeResolver overrides the package default for this operation.
	VolumeResolver *VolumeResolver
}

// DefaultRetryConfig returns the defaults: three retries, 50ms doubling to 500ms.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     500 * time.Millisecond,
	}
}

func (c RetryConfig) volume(path string) string {
	if c.VolumeResolver != nil {
		return c.VolumeResolver.Resolve(path)
	}
	resolverMu.RLock()
	defer resolverMu.RUnlock()
	return defaultResolver.Resolve(path)
}

// isStale reports whether err is ESTALE, which NFS returns for a file handle
// the server no longer recognizes. Reopening by path usually succeeds.
func isStale(err error) bool {
	var errno syscall.Errno
	return errors.As(err, &errno) && errno == syscall.ESTALE
}

// StatWithRetry is os.Stat with retries on stale file handles.
func StatWithRetry(path string, config RetryConfig) (os.FileInfo, error) {
	return withRetry(config, "stat", path, func() (os.FileInfo, error) { return os.Stat(path) })
}

// OpenWithRetry is os.Open with retries on stale file handles.
func OpenWithRetry(path string, config RetryConfig) (*os.File, error) {
	return withRetry(config, "open", path, func() (*os.File, error) { return os.Open(path) })
}

// withRetry runs fn until it succeeds, fails with anything but ESTALE, or
// runs out of retries.
func withRetry[T any](config RetryConfig, op, path string, fn func() (T, error)) (T, error) {
	var zero T
	backoff := config.InitialBackoff

	for attempt := 0; ; attempt++ {
		v, err := fn()
		if err == nil {
			if attempt > 0 {
				logging.Info("%s %s succeeded after %d retries", op, path, attempt)
				metrics.FilesystemRetries.WithLabelValues(op, config.volume(path), "success").Inc()
			}
			return v, nil
		}
		if !isStale(err) {
			return zero, err
		}

		volume := config.volume(path)
		metrics.FilesystemStaleErrors.WithLabelValues(op, volume).Inc()
		if attempt >= config.MaxRetries {
			logging.Warn("%s %s failed after %d retries: %v", op, path, attempt, err)
			metrics.FilesystemRetries.WithLabelValues(op, volume, "failure").Inc()
			return zero, err
		}

		logging.Debug("%s %s: stale file handle, retrying in %v (%d/%d)", op, path, backoff, attempt+1, config.MaxRetries)
		time.Sleep(backoff)
		backoff = min(backoff*2, config.MaxBackoff)
	}
}
