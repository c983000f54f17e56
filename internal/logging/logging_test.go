package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		expected LogLevel
	}{
		{"Debug", "debug", LevelDebug},
		{"Info", "info", LevelInfo},
		{"Warn", "warn", LevelWarn},
		{"Warning alias", "warning", LevelWarn},
		{"Error", "error", LevelError},
		{"Case insensitive", "DEBUG", LevelDebug},
		{"Whitespace", "  error ", LevelError},
		{"Empty defaults to info", "", LevelInfo},
		{"Unknown defaults to info", "verbose", LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseLevel(tt.value); got != tt.expected {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.value, got, tt.expected)
			}
		})
	}
}

func TestLogLevelConstants(t *testing.T) {
	levels := []LogLevel{LevelDebug, LevelInfo, LevelWarn, LevelError}
	for i := 0; i < len(levels)-1; i++ {
		if levels[i] >= levels[i+1] {
			t.Errorf("Log levels should be in ascending order: %v >= %v", levels[i], levels[i+1])
		}
	}
}

func captureOutput(t *testing.T, level LogLevel) *bytes.Buffer {
	t.Helper()
	prev := GetLevel()
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(level)
	t.Cleanup(func() {
		SetLevel(prev)
		SetOutput(discard{})
	})
	return &buf
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func TestLevelFiltering(t *testing.T) {
	buf := captureOutput(t, LevelWarn)

	Debug("debug %d", 1)
	Info("info %d", 2)
	Warn("warn %d", 3)
	Error("error %d", 4)

	out := buf.String()
	if strings.Contains(out, "debug 1") || strings.Contains(out, "info 2") {
		t.Errorf("messages below warn were written: %s", out)
	}
	if !strings.Contains(out, "warn 3") || !strings.Contains(out, "error 4") {
		t.Errorf("expected warn and error messages, got: %s", out)
	}
}

func TestOutputIsJSONForNonTerminal(t *testing.T) {
	buf := captureOutput(t, LevelInfo)

	Info("merge finished in %s", "3s")

	var entry map[string]interface{}
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("output is not a JSON line: %v (%q)", err, buf.String())
	}
	if entry["message"] != "merge finished in 3s" {
		t.Errorf("message = %v", entry["message"])
	}
	if entry["level"] != "info" {
		t.Errorf("level = %v", entry["level"])
	}
	if entry["service"] != "clip-merger" {
		t.Errorf("service = %v", entry["service"])
	}
}

func TestWithComponent(t *testing.T) {
	buf := captureOutput(t, LevelInfo)

	l := With("pipeline")
	l.Info().Str("job_id", "abc").Msg("stage done")
	l.Debug().Msg("hidden")

	out := buf.String()
	if !strings.Contains(out, `"component":"pipeline"`) {
		t.Errorf("missing component field: %s", out)
	}
	if !strings.Contains(out, `"job_id":"abc"`) {
		t.Errorf("missing job_id field: %s", out)
	}
	if strings.Contains(out, "hidden") {
		t.Errorf("debug message leaked through info level: %s", out)
	}
}

func TestPrintfIgnoresLevel(t *testing.T) {
	buf := captureOutput(t, LevelError)

	Printf("banner %s", "line")

	if !strings.Contains(buf.String(), "banner line") {
		t.Errorf("Printf output missing: %q", buf.String())
	}
}

func TestLogLevelString(t *testing.T) {
	tests := []struct {
		level    LogLevel
		expected string
	}{
		{LevelDebug, "debug"},
		{LevelInfo, "info"},
		{LevelWarn, "warn"},
		{LevelError, "error"},
		{LogLevel(99), "unknown(99)"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			got := tt.level.String()
			if got != tt.expected {
				t.Errorf("LogLevel.String() = %q, want %q", got, tt.expected)
			}
		})
	}
}
