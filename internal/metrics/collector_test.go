package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

type mockStatsProvider struct {
	stats Stats
}

func (m *mockStatsProvider) GetStats() Stats {
	return m.stats
}

func TestNewCollector(t *testing.T) {
	provider := &mockStatsProvider{stats: Stats{TotalJobs: 3}}

	collector := NewCollector(provider, "/tmp/test.db", 5*time.Second)

	if collector == nil {
		t.Fatal("NewCollector returned nil")
	}
	if collector.statsProvider != provider {
		t.Error("statsProvider not set correctly")
	}
	if collector.dbPath != "/tmp/test.db" {
		t.Errorf("dbPath = %q, want %q", collector.dbPath, "/tmp/test.db")
	}
	if collector.interval != 5*time.Second {
		t.Errorf("interval = %v, want %v", collector.interval, 5*time.Second)
	}
	if collector.stopChan == nil {
		t.Error("stopChan not initialized")
	}
	if len(collector.dirs) != 0 {
		t.Errorf("dirs should be empty by default, got %v", collector.dirs)
	}
}

func TestCollectorStartStop(_ *testing.T) {
	collector := NewCollector(&mockStatsProvider{}, "", 10*time.Millisecond)

	collector.Start()
	time.Sleep(30 * time.Millisecond)
	collector.Stop()
}

func TestCollectWithNilProvider(t *testing.T) {
	collector := NewCollector(nil, "", time.Second)

	defer func() {
		if r := recover(); r != nil {
			t.Errorf("collect() panicked with nil provider: %v", r)
		}
	}()

	collector.collect()
}

func TestCollectUpdatesJobGauges(t *testing.T) {
	provider := &mockStatsProvider{
		stats: Stats{TotalJobs: 10, RunningJobs: 1, SucceededJobs: 7, FailedJobs: 2},
	}
	collector := NewCollector(provider, "", time.Second)

	collector.collectJobStats()

	if got := testutil.ToFloat64(StoredJobs.WithLabelValues("succeeded")); got != 7 {
		t.Errorf("succeeded gauge = %v, want 7", got)
	}
	if got := testutil.ToFloat64(StoredJobs.WithLabelValues("failed")); got != 2 {
		t.Errorf("failed gauge = %v, want 2", got)
	}
	if got := testutil.ToFloat64(StoredJobs.WithLabelValues("running")); got != 1 {
		t.Errorf("running gauge = %v, want 1", got)
	}
}

func TestCollectDBSizeWithWALAndSHM(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "jobs.db")

	files := map[string]string{
		dbPath:          "main db",
		dbPath + "-wal": "wal file!",
		dbPath + "-shm": "shm",
	}
	for p, content := range files {
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatalf("failed to create %s: %v", p, err)
		}
	}

	collector := NewCollector(nil, dbPath, time.Second)
	collector.collectDBSize()

	if got := testutil.ToFloat64(DBSizeBytes.WithLabelValues("main")); got != 7 {
		t.Errorf("main size = %v, want 7", got)
	}
	if got := testutil.ToFloat64(DBSizeBytes.WithLabelValues("wal")); got != 9 {
		t.Errorf("wal size = %v, want 9", got)
	}
	if got := testutil.ToFloat64(DBSizeBytes.WithLabelValues("shm")); got != 3 {
		t.Errorf("shm size = %v, want 3", got)
	}
}

func TestCollectDBSizeWithMissingDatabase(t *testing.T) {
	collector := NewCollector(nil, "/nonexistent/path/jobs.db", time.Second)
	collector.collectDBSize()

	if got := testutil.ToFloat64(DBSizeBytes.WithLabelValues("main")); got != 0 {
		t.Errorf("main size = %v, want 0 for missing file", got)
	}
}

func TestCollectDirSizes(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "job-1"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "a.mp4"), make([]byte, 100), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "job-1", "b.mp4"), make([]byte, 50), 0o644); err != nil {
		t.Fatal(err)
	}

	collector := NewCollector(nil, "", time.Second)
	collector.WatchDir("work", dir)
	collector.WatchDir("ignored", "")
	collector.collectDirSizes()

	if got := testutil.ToFloat64(DirectorySizeBytes.WithLabelValues("work")); got != 150 {
		t.Errorf("work dir size = %v, want 150", got)
	}
	if _, ok := collector.dirs["ignored"]; ok {
		t.Error("empty path should not be watched")
	}
}

func TestDirSizeMissingDirectory(t *testing.T) {
	size, err := DirSize(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatalf("DirSize returned error for missing dir: %v", err)
	}
	if size != 0 {
		t.Errorf("DirSize = %d, want 0", size)
	}
}

func TestCollectMemStatsMultipleTimes(_ *testing.T) {
	collector := NewCollector(nil, "", time.Second)

	for i := 0; i < 5; i++ {
		collector.collectMemStats()
	}
}
