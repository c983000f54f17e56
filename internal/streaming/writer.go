package streaming

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"clip-merger/internal/logging"
)

// Sentinel errors for streaming operations.
var (
	// ErrWriteTimeout indicates that a write exceeded WriteTimeout or the
	// stream ran past MaxDuration or IdleTimeout.
	ErrWriteTimeout = errors.New("write timeout exceeded")

	// ErrClientGone indicates that the client disconnected before the stream completed.
	ErrClientGone = errors.New("client disconnected")

	// ErrStreamCanceled indicates that the writer was closed while a write was pending.
	ErrStreamCanceled = errors.New("stream canceled")
)

// Config configures a Writer.
type Config struct {
	// WriteTimeout bounds a single write to the client
	WriteTimeout time.Duration
	// IdleTimeout bounds the time between successful writes (0 = none)
	IdleTimeout time.Duration
	// MaxDuration bounds the whole stream (0 = unlimited)
	MaxDuration time.Duration
	// ChunkSize splits large writes so cancellation is noticed between chunks (0 = off)
	ChunkSize int
	// ProgressEvery is the byte interval between OnProgress calls
	ProgressEvery int64
	// OnProgress is called after every ProgressEvery bytes
	OnProgress func(bytesWritten int64, elapsed time.Duration)
}

// DefaultConfig returns the settings used for artifact downloads.
func DefaultConfig() Config {
	return Config{
		WriteTimeout:  30 * time.Second,
		IdleTimeout:   60 * time.Second,
		ChunkSize:     64 * 1024,
		ProgressEvery: 16 << 20,
	}
}

// Writer wraps an http.ResponseWriter so a stalled or vanished client
// cannot hold a finished artifact (and its workspace) open indefinitely.
type Writer struct {
	w       http.ResponseWriter
	flusher http.Flusher
	ctx     context.Context
	cancel  context.CancelCauseFunc
	config  Config

	mu           sync.Mutex
	start        time.Time
	lastWrite    time.Time
	bytesWritten int64
	nextProgress int64
	closed       bool
}

// NewWriter creates a timeout-protected writer. ctx is normally the request
// context, so a client disconnect surfaces as ErrClientGone.
func NewWriter(ctx context.Context, w http.ResponseWriter, config Config) *Writer {
	writerCtx, cancel := context.WithCancelCause(ctx)
	now := time.Now()

	tw := &Writer{
		w:            w,
		ctx:          writerCtx,
		cancel:       cancel,
		config:       config,
		start:        now,
		lastWrite:    now,
		nextProgress: config.ProgressEvery,
	}
	if f, ok := w.(http.Flusher); ok {
		tw.flusher = f
	}

	if config.IdleTimeout > 0 {
		go tw.watchIdle()
	}
	return tw
}

// Write implements io.Writer.
func (tw *Writer) Write(p []byte) (int, error) {
	tw.mu.Lock()
	closed := tw.closed
	tw.mu.Unlock()
	if closed {
		return 0, ErrStreamCanceled
	}

	if err := tw.err(); err != nil {
		return 0, err
	}
	if tw.config.MaxDuration > 0 && time.Since(tw.start) > tw.config.MaxDuration {
		tw.cancel(ErrWriteTimeout)
		return 0, ErrWriteTimeout
	}

	size := tw.config.ChunkSize
	if size <= 0 {
		size = len(p)
	}

	written := 0
	for written < len(p) {
		end := min(written+size, len(p))
		n, err := tw.writeChunk(p[written:end])
		written += n
		if err != nil {
			return written, err
		}
		if tw.flusher != nil && size < len(p) {
			tw.flusher.Flush()
		}
		if err := tw.err(); err != nil && written < len(p) {
			return written, err
		}
	}
	return written, nil
}

func (tw *Writer) writeChunk(p []byte) (int, error) {
	type result struct {
		n   int
		err error
	}
	done := make(chan result, 1)
	go func() {
		n, err := tw.w.Write(p)
		done <- result{n, err}
	}()

	timer := time.NewTimer(tw.config.WriteTimeout)
	defer timer.Stop()

	select {
	case r := <-done:
		if r.err == nil {
			tw.recordWrite(r.n)
		}
		return r.n, r.err
	case <-timer.C:
		tw.cancel(ErrWriteTimeout)
		return 0, ErrWriteTimeout
	case <-tw.ctx.Done():
		return 0, tw.err()
	}
}

func (tw *Writer) recordWrite(n int) {
	tw.mu.Lock()
	tw.lastWrite = time.Now()
	tw.bytesWritten += int64(n)
	total := tw.bytesWritten
	report := tw.config.OnProgress != nil && tw.config.ProgressEvery > 0 && total >= tw.nextProgress
	if report {
		for tw.nextProgress <= total {
			tw.nextProgress += tw.config.ProgressEvery
		}
	}
	tw.mu.Unlock()

	if report {
		tw.config.OnProgress(total, time.Since(tw.start))
	}
}

func (tw *Writer) watchIdle() {
	ticker := time.NewTicker(tw.config.IdleTimeout / 4)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			tw.mu.Lock()
			idle := time.Since(tw.lastWrite)
			tw.mu.Unlock()

			if idle > tw.config.IdleTimeout {
				logging.Warn("Download idle for %v, dropping client", idle.Round(time.Second))
				tw.cancel(ErrWriteTimeout)
				return
			}
		case <-tw.ctx.Done():
			return
		}
	}
}

// err maps the writer context state to a sentinel error, or nil while the
// stream is healthy.
func (tw *Writer) err() error {
	if tw.ctx.Err() == nil {
		return nil
	}
	cause := context.Cause(tw.ctx)
	switch {
	case errors.Is(cause, ErrWriteTimeout), errors.Is(cause, context.DeadlineExceeded):
		return ErrWriteTimeout
	case errors.Is(cause, ErrStreamCanceled):
		return ErrStreamCanceled
	default:
		return ErrClientGone
	}
}

// Close stops the idle watcher and fails pending writes. Safe to call more than once.
func (tw *Writer) Close() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if !tw.closed {
		tw.closed = true
		tw.cancel(ErrStreamCanceled)
	}
	return nil
}

// Stats returns the bytes written so far and the time since the writer was created.
func (tw *Writer) Stats() (bytesWritten int64, elapsed time.Duration) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	return tw.bytesWritten, time.Since(tw.start)
}
