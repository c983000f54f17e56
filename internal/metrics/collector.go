package metrics

import (
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"clip-merger/internal/logging"
)

// StatsProvider interface for collecting stats
type StatsProvider interface {
	GetStats() Stats
}

// Stats holds the current job store statistics
type Stats struct {
	TotalJobs     int
	RunningJobs   int
	SucceededJobs int
	FailedJobs    int
}

// Collector periodically collects and updates metrics
type Collector struct {
	statsProvider StatsProvider
	dbPath        string
	dirs          map[string]string
	interval      time.Duration
	stopChan      chan struct{}
	lastNumGC     uint32
}

// NewCollector creates a new metrics collector. dbPath may be empty when no
// job store is configured.
func NewCollector(provider StatsProvider, dbPath string, interval time.Duration) *Collector {
	return &Collector{
		statsProvider: provider,
		dbPath:        dbPath,
		dirs:          make(map[string]string),
		interval:      interval,
		stopChan:      make(chan struct{}),
	}
}

// WatchDir adds a directory whose disk usage is reported under the given label.
// Must be called before Start.
func (c *Collector) WatchDir(label, path string) {
	if path == "" {
		return
	}
	c.dirs[label] = path
}

// Start begins the metrics collection loop
func (c *Collector) Start() {
	go c.collectLoop()
}

// Stop stops the metrics collection
func (c *Collector) Stop() {
	close(c.stopChan)
}

func (c *Collector) collectLoop() {
	// Collect immediately on start
	c.collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			return
		}
	}
}

func (c *Collector) collect() {
	c.collectJobStats()
	c.collectDBSize()
	c.collectDirSizes()
	c.collectMemStats()
}

func (c *Collector) collectJobStats() {
	if c.statsProvider == nil {
		return
	}

	stats := c.statsProvider.GetStats()

	StoredJobs.WithLabelValues("running").Set(float64(stats.RunningJobs))
	StoredJobs.WithLabelValues("succeeded").Set(float64(stats.SucceededJobs))
	StoredJobs.WithLabelValues("failed").Set(float64(stats.FailedJobs))

	logging.Debug("Metrics collected: jobs=%d, running=%d, succeeded=%d, failed=%d",
		stats.TotalJobs, stats.RunningJobs, stats.SucceededJobs, stats.FailedJobs)
}

func (c *Collector) collectDBSize() {
	if c.dbPath == "" {
		return
	}

	for label, suffix := range map[string]string{"main": "", "wal": "-wal", "shm": "-shm"} {
		info, err := os.Stat(c.dbPath + suffix)
		if err != nil {
			DBSizeBytes.WithLabelValues(label).Set(0)
			continue
		}
		DBSizeBytes.WithLabelValues(label).Set(float64(info.Size()))
	}
}

func (c *Collector) collectDirSizes() {
	labels := make([]string, 0, len(c.dirs))
	for label := range c.dirs {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	for _, label := range labels {
		size, err := DirSize(c.dirs[label])
		if err != nil {
			logging.Debug("Failed to measure %s directory %s: %v", label, c.dirs[label], err)
			continue
		}
		DirectorySizeBytes.WithLabelValues(label).Set(float64(size))
	}
}

func (c *Collector) collectMemStats() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	GoMemAllocBytes.Set(float64(m.Alloc))
	GoMemSysBytes.Set(float64(m.Sys))

	if m.NumGC > c.lastNumGC {
		GoGCRuns.Add(float64(m.NumGC - c.lastNumGC))
	}
	c.lastNumGC = m.NumGC
}

// DirSize returns the total size of regular files under root. A missing
// directory counts as empty.
func DirSize(root string) (int64, error) {
	var total int64
	err := filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.Type().IsRegular() {
			info, err := d.Info()
			if err != nil {
				return nil
			}
			total += info.Size()
		}
		return nil
	})
	return total, err
}
