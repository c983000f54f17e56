package memory

import (
	"context"
	"math"
	"os"
	"runtime"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"clip-merger/internal/logging"
	"clip-merger/internal/metrics"
)

// Sampler reports current memory usage in bytes.
type Sampler func() (uint64, error)

// Config holds memory monitor configuration
type Config struct {
	// LimitBytes is the limit usage is measured against. 0 means detect it
	// from the cgroup, then GOMEMLIMIT.
	LimitBytes int64

	// HighWaterMark is the fraction of the limit below which paused encodes resume (0.0-1.0)
	HighWaterMark float64

	// CriticalWaterMark is the fraction at which new encodes are held back (0.0-1.0)
	CriticalWaterMark float64

	// CheckInterval is how often to sample usage
	CheckInterval time.Duration

	// Sampler overrides the usage source. nil samples the cgroup, which
	// includes ffmpeg children, and falls back to the Go heap.
	Sampler Sampler
}

// DefaultConfig returns the defaults used by the server
func DefaultConfig() Config {
	return Config{
		HighWaterMark:     0.7,
		CriticalWaterMark: 0.9,
		CheckInterval:     2 * time.Second,
	}
}

// cgroup paths, variables so tests can point them at fixtures.
var (
	cgroupV2Current = "/sys/fs/cgroup/memory.current"
	cgroupV2Max     = "/sys/fs/cgroup/memory.max"
	cgroupV1Usage   = "/sys/fs/cgroup/memory/memory.usage_in_bytes"
	cgroupV1Limit   = "/sys/fs/cgroup/memory/memory.limit_in_bytes"
)

// Monitor samples memory usage and holds back new ffmpeg encodes while usage
// is critical. It satisfies merge.Backpressure.
type Monitor struct {
	config  Config
	limit   int64
	sampler Sampler

	stopChan chan struct{}
	stopOnce sync.Once

	mu        sync.RWMutex
	current   uint64
	isPaused  bool
	pauseChan chan struct{}
}

// NewMonitor creates a new memory monitor
func NewMonitor(config Config) *Monitor {
	limit := config.LimitBytes
	source := "config"

	if limit == 0 {
		if l, ok := readCgroupLimit(); ok {
			limit, source = l, "cgroup"
		}
	}
	if limit == 0 {
		if goMemLimit := debug.SetMemoryLimit(-1); goMemLimit > 0 && goMemLimit < math.MaxInt64 {
			limit, source = goMemLimit, "GOMEMLIMIT"
		}
	}

	if limit == 0 {
		logging.Warn("Memory monitor: no memory limit detected, encode backpressure disabled")
	} else {
		logging.Info("Memory monitor limit: %s (from %s)", formatBytes(limit), source)
	}

	sampler := config.Sampler
	if sampler == nil {
		sampler = defaultSampler
	}
	if config.CheckInterval <= 0 {
		config.CheckInterval = DefaultConfig().CheckInterval
	}

	return &Monitor{
		config:    config,
		limit:     limit,
		sampler:   sampler,
		stopChan:  make(chan struct{}),
		pauseChan: make(chan struct{}),
	}
}

// Start begins monitoring memory usage
func (m *Monitor) Start() {
	if m.limit == 0 {
		return
	}
	go m.monitorLoop()
}

// Stop stops the monitor and releases any encodes waiting on it. Safe to
// call more than once.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopChan) })
}

func (m *Monitor) monitorLoop() {
	ticker := time.NewTicker(m.config.CheckInterval)
	defer ticker.Stop()

	m.checkMemory()
	for {
		select {
		case <-ticker.C:
			m.checkMemory()
		case <-m.stopChan:
			return
		}
	}
}

func (m *Monitor) checkMemory() {
	used, err := m.sampler()
	if err != nil {
		logging.Debug("Memory sample failed: %v", err)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.current = used
	if m.limit <= 0 {
		return
	}

	usage := float64(used) / float64(m.limit)
	metrics.MemoryUsageRatio.Set(usage)

	switch {
	case usage >= m.config.CriticalWaterMark && !m.isPaused:
		logging.Warn("Memory critical (%.1f%% of limit), holding back new encodes", usage*100)
		m.isPaused = true
		metrics.MemoryPaused.Set(1)
		metrics.MemoryGCPauses.Inc()
		go runtime.GC()
	case usage < m.config.HighWaterMark && m.isPaused:
		logging.Info("Memory recovered (%.1f%% of limit), resuming encodes", usage*100)
		m.isPaused = false
		metrics.MemoryPaused.Set(0)
		close(m.pauseChan)
		m.pauseChan = make(chan struct{})
	}
}

// WaitIfPaused blocks while memory usage is critical. It returns false if
// ctx is done or the monitor was stopped while waiting.
func (m *Monitor) WaitIfPaused(ctx context.Context) bool {
	m.mu.RLock()
	if !m.isPaused {
		m.mu.RUnlock()
		return true
	}
	pauseChan := m.pauseChan
	m.mu.RUnlock()

	logging.Debug("Encode waiting for memory pressure to clear")
	select {
	case <-pauseChan:
		return true
	case <-m.stopChan:
		return false
	case <-ctx.Done():
		return false
	}
}

// IsPaused reports whether new encodes are being held back
func (m *Monitor) IsPaused() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.isPaused
}

// GetStats returns the last sample, the limit and their ratio
func (m *Monitor) GetStats() (current, limit int64, usage float64) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	currentInt64 := int64(math.MaxInt64)
	if m.current <= math.MaxInt64 {
		currentInt64 = int64(m.current)
	}

	var usageRatio float64
	if m.limit > 0 {
		usageRatio = float64(m.current) / float64(m.limit)
	}

	return currentInt64, m.limit, usageRatio
}

func defaultSampler() (uint64, error) {
	if v, ok := readCgroupValue(cgroupV2Current); ok {
		return v, nil
	}
	if v, ok := readCgroupValue(cgroupV1Usage); ok {
		return v, nil
	}
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return stats.Sys, nil
}

// readCgroupLimit returns the container memory limit, if any.
func readCgroupLimit() (int64, bool) {
	for _, p := range []string{cgroupV2Max, cgroupV1Limit} {
		v, ok := readCgroupValue(p)
		// cgroup v1 reports "no limit" as a huge page-aligned number
		if ok && v > 0 && v < 1<<60 {
			return int64(v), true
		}
	}
	return 0, false
}

// readCgroupValue parses a single-number cgroup file. "max" reads as absent.
func readCgroupValue(path string) (uint64, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	s := strings.TrimSpace(string(data))
	if s == "" || s == "max" {
		return 0, false
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
