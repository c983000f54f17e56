package workers

import (
	"runtime"
	"testing"
)

func TestCount(t *testing.T) {
	availableCPU := runtime.GOMAXPROCS(0)

	tests := []struct {
		name       string
		multiplier float64
		limit      int
		minExpect  int
		maxExpect  int
	}{
		{
			name:       "CPU-bound task (1.0x multiplier)",
			multiplier: 1.0,
			minExpect:  1,
			maxExpect:  availableCPU,
		},
		{
			name:       "I/O-bound task (2.0x multiplier)",
			multiplier: 2.0,
			minExpect:  1,
			maxExpect:  availableCPU * 2,
		},
		{
			name:       "With limit lower than calculated",
			multiplier: 2.0,
			limit:      2,
			minExpect:  1,
			maxExpect:  2,
		},
		{
			name:       "Very low multiplier",
			multiplier: 0.1,
			minExpect:  1,
			maxExpect:  max(1, int(float64(availableCPU)*0.1)),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Count(tt.multiplier, tt.limit)

			if got < tt.minExpect {
				t.Errorf("Count(%v, %d) = %d, expected >= %d", tt.multiplier, tt.limit, got, tt.minExpect)
			}
			if got > tt.maxExpect {
				t.Errorf("Count(%v, %d) = %d, expected <= %d", tt.multiplier, tt.limit, got, tt.maxExpect)
			}
		})
	}
}

func TestFromEnv(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		expected int
	}{
		{"Valid override", "8", 8},
		{"Override is not capped", "64", 64},
		{"Non-numeric", "invalid", 3},
		{"Zero", "0", 3},
		{"Negative", "-5", 3},
		{"Empty", "", 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_WORKERS", tt.envValue)

			if got := FromEnv("TEST_WORKERS", 3); got != tt.expected {
				t.Errorf("FromEnv with TEST_WORKERS=%q = %d, want %d", tt.envValue, got, tt.expected)
			}
		})
	}
}

func TestForNormalize(t *testing.T) {
	t.Run("Default", func(t *testing.T) {
		t.Setenv(NormalizeEnv, "")

		want := min(runtime.GOMAXPROCS(0), NormalizeLimit)
		if got := ForNormalize(); got != want {
			t.Errorf("ForNormalize() = %d, want %d", got, want)
		}
	})

	t.Run("Override", func(t *testing.T) {
		t.Setenv(NormalizeEnv, "6")

		if got := ForNormalize(); got != 6 {
			t.Errorf("ForNormalize() = %d, want 6", got)
		}
	})
}

func TestForProbe(t *testing.T) {
	got := ForProbe()
	if got < 1 || got > ProbeLimit {
		t.Errorf("ForProbe() = %d, want within [1, %d]", got, ProbeLimit)
	}
}

func TestWorkerCountConsistency(t *testing.T) {
	cpu := ForCPU(0)
	io := ForIO(0)

	if cpu > io {
		t.Errorf("Expected ForCPU <= ForIO, got %d, %d", cpu, io)
	}
}
