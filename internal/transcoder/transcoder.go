package transcoder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"clip-merger/internal/logging"
)

// ErrTimeout is returned when an ffmpeg or ffprobe invocation exceeds its
// configured time bound. It is distinct from cancellation of the caller's
// context, which surfaces as context.Canceled.
var ErrTimeout = errors.New("transcoder: invocation timed out")

// Tool names used for logging and metrics labels.
const (
	ToolFFmpeg  = "ffmpeg"
	ToolFFprobe = "ffprobe"
)

const (
	stderrTailBytes = 2048
	waitDelay       = 5 * time.Second
)

// Runner executes the external media tools. Implementations return the
// process stdout; failures are reported as *ExecError.
type Runner interface {
	FFmpeg(ctx context.Context, args ...string) ([]byte, error)
	FFprobe(ctx context.Context, args ...string) ([]byte, error)
}

// Observer receives invocation events. The metrics package provides the
// Prometheus implementation.
type Observer interface {
	ObserveInvocation(tool, status string, durationSeconds float64)
	ProcessStarted()
	ProcessFinished()
}

// Config holds the transcoder settings.
type Config struct {
	FFmpegPath   string
	FFprobePath  string
	Timeout      time.Duration // per ffmpeg invocation, 0 = unbounded
	ProbeTimeout time.Duration // per ffprobe invocation, 0 = unbounded
	WorkDir      string        // parent of job workspaces, reclaimed by ClearWorkDir
	Observer     Observer
}

// ExecError describes a failed invocation.
type ExecError struct {
	Tool     string
	Args     []string
	Stderr   string
	Duration time.Duration
	Err      error
}

func (e *ExecError) Error() string {
	msg := fmt.Sprintf("%s failed after %s: %v", e.Tool, e.Duration.Round(time.Millisecond), e.Err)
	if tail := lastLine(e.Stderr); tail != "" {
		msg += ": " + tail
	}
	return msg
}

func (e *ExecError) Unwrap() error { return e.Err }

// Transcoder runs ffmpeg and ffprobe as child processes with per-call
// timeouts and keeps track of live processes so they can be killed on shutdown.
type Transcoder struct {
	config    Config
	processes map[int]*exec.Cmd
	processMu sync.Mutex
	nextID    int
}

// New creates a new Transcoder instance.
func New(config Config) *Transcoder {
	if config.FFmpegPath == "" {
		config.FFmpegPath = ToolFFmpeg
	}
	if config.FFprobePath == "" {
		config.FFprobePath = ToolFFprobe
	}
	return &Transcoder{
		config:    config,
		processes: make(map[int]*exec.Cmd),
	}
}

// FFmpeg runs ffmpeg with the given arguments and returns its stdout.
func (t *Transcoder) FFmpeg(ctx context.Context, args ...string) ([]byte, error) {
	full := append([]string{"-hide_banner", "-nostdin"}, args...)
	return t.run(ctx, ToolFFmpeg, t.config.FFmpegPath, t.config.Timeout, full)
}

// FFprobe runs ffprobe with the given arguments and returns its stdout.
func (t *Transcoder) FFprobe(ctx context.Context, args ...string) ([]byte, error) {
	return t.run(ctx, ToolFFprobe, t.config.FFprobePath, t.config.ProbeTimeout, args)
}

func (t *Transcoder) run(ctx context.Context, tool, bin string, timeout time.Duration, args []string) ([]byte, error) {
	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, bin, args...)
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logging.Debug("exec: %s %s", bin, strings.Join(args, " "))

	start := time.Now()
	if err := cmd.Start(); err != nil {
		t.observe(tool, "error", time.Since(start))
		return nil, &ExecError{Tool: tool, Args: args, Err: err}
	}

	id := t.track(cmd)
	err := cmd.Wait()
	t.untrack(id)
	elapsed := time.Since(start)

	if err == nil {
		t.observe(tool, "success", elapsed)
		return stdout.Bytes(), nil
	}

	status := "error"
	switch {
	case ctx.Err() != nil:
		status = "canceled"
		err = ctx.Err()
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		status = "timeout"
		err = fmt.Errorf("%w (limit %s)", ErrTimeout, timeout)
	}
	t.observe(tool, status, elapsed)

	return nil, &ExecError{
		Tool:     tool,
		Args:     args,
		Stderr:   tail(stderr.String(), stderrTailBytes),
		Duration: elapsed,
		Err:      err,
	}
}

func (t *Transcoder) track(cmd *exec.Cmd) int {
	t.processMu.Lock()
	t.nextID++
	id := t.nextID
	t.processes[id] = cmd
	t.processMu.Unlock()

	if t.config.Observer != nil {
		t.config.Observer.ProcessStarted()
	}
	return id
}

func (t *Transcoder) untrack(id int) {
	t.processMu.Lock()
	delete(t.processes, id)
	t.processMu.Unlock()

	if t.config.Observer != nil {
		t.config.Observer.ProcessFinished()
	}
}

func (t *Transcoder) observe(tool, status string, d time.Duration) {
	if t.config.Observer != nil {
		t.config.Observer.ObserveInvocation(tool, status, d.Seconds())
	}
}

// Running returns the number of live child processes.
func (t *Transcoder) Running() int {
	t.processMu.Lock()
	defer t.processMu.Unlock()
	return len(t.processes)
}

// Cleanup stops all active child processes.
func (t *Transcoder) Cleanup() {
	t.processMu.Lock()
	defer t.processMu.Unlock()

	for id, cmd := range t.processes {
		if cmd.Process != nil {
			logging.Info("Killing transcoder process %d (%s)", cmd.Process.Pid, filepath.Base(cmd.Path))
			if err := cmd.Process.Kill(); err != nil {
				logging.Warn("failed to kill transcoder process %d: %v", id, err)
			}
		}
	}
}

// Check verifies that both binaries can be executed and returns the first
// line of `ffmpeg -version`.
func (t *Transcoder) Check(ctx context.Context) (string, error) {
	if _, err := exec.LookPath(t.config.FFprobePath); err != nil {
		return "", fmt.Errorf("ffprobe not found: %w", err)
	}
	out, err := t.FFmpeg(ctx, "-version")
	if err != nil {
		return "", err
	}
	line, _, _ := strings.Cut(string(out), "\n")
	return strings.TrimSpace(line), nil
}

// ClearWorkDir removes leftover job workspaces and returns the number of
// bytes freed. Call it at startup, before any job is running.
func (t *Transcoder) ClearWorkDir() (int64, error) {
	if t.config.WorkDir == "" {
		return 0, nil
	}

	var freedBytes int64

	entries, err := os.ReadDir(t.config.WorkDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read work directory: %w", err)
	}

	for _, entry := range entries {
		path := filepath.Join(t.config.WorkDir, entry.Name())

		info, err := entry.Info()
		if err != nil {
			logging.Warn("failed to get info for %s: %v", path, err)
			continue
		}

		if entry.IsDir() {
			dirSize, _ := getDirSize(path)
			if err := os.RemoveAll(path); err != nil {
				logging.Warn("failed to remove directory %s: %v", path, err)
				continue
			}
			freedBytes += dirSize
		} else {
			freedBytes += info.Size()
			if err := os.Remove(path); err != nil {
				logging.Warn("failed to remove file %s: %v", path, err)
				continue
			}
		}
	}

	if freedBytes > 0 {
		logging.Info("Cleared stale job workspaces: freed %d bytes", freedBytes)
	}
	return freedBytes, nil
}

// getDirSize calculates the total size of a directory
func getDirSize(path string) (int64, error) {
	var size int64
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size, err
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}
