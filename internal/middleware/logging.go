package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"clip-merger/internal/logging"
)

// JobIDHeader is set by the merge handler; the access log copies it so a
// request line can be matched to the pipeline's job_id log records.
const JobIDHeader = "X-Job-Id"

// accessFields is the W3C #Fields directive, in line order.
var accessFields = []string{
	"date", "time", "c-ip", "cs-method", "cs-uri-stem", "cs-uri-query",
	"sc-status", "sc-bytes", "cs-bytes", "time-taken",
	"sc(Content-Encoding)", "sc(X-Job-Id)", "cs(User-Agent)", "cs(Referer)",
}

// responseWriter records the status and body size for the access log
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
	wroteHeader  bool
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
	}
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// LoggingConfig holds configuration for the access log middleware
type LoggingConfig struct {
	SkipPaths       []string
	SkipExtensions  []string
	LogStaticFiles  bool
	LogHealthChecks bool
}

// DefaultLoggingConfig logs API and merge traffic and leaves out thumbnails
// and web UI assets.
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		SkipPaths:       []string{"/thumbnails/"},
		SkipExtensions:  []string{".css", ".js", ".ico", ".png", ".jpg", ".jpeg", ".gif", ".svg", ".woff", ".woff2", ".ttf"},
		LogStaticFiles:  false,
		LogHealthChecks: true,
	}
}

var healthCheckPaths = map[string]bool{
	"/health":  true,
	"/healthz": true,
	"/livez":   true,
	"/readyz":  true,
}

// Logger returns access log middleware writing W3C Extended Log Format
// lines. Responses carrying a job id are also tagged with a job_id field.
func Logger(config LoggingConfig) func(http.Handler) http.Handler {
	logging.Printf("#Fields: %s", strings.Join(accessFields, " "))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if shouldSkip(r.URL.Path, config) {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			wrapped := newResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			writeAccessLine(accessLine(r, wrapped, start, time.Since(start)), wrapped.Header().Get(JobIDHeader))
		})
	}
}

// accessLine renders one request in accessFields order. Client-controlled
// values are sanitized; empty values become "-".
func accessLine(r *http.Request, rw *responseWriter, start time.Time, elapsed time.Duration) string {
	now := start.Add(elapsed).UTC()

	reqBytes := "-"
	if r.ContentLength >= 0 {
		reqBytes = strconv.FormatInt(r.ContentLength, 10)
	}

	values := []string{
		now.Format("2006-01-02"),
		now.Format("15:04:05"),
		dash(sanitizeLogField(getClientIP(r))),
		dash(sanitizeLogField(r.Method)),
		dash(sanitizeLogField(r.URL.Path)),
		dash(sanitizeLogField(r.URL.RawQuery)),
		strconv.Itoa(rw.statusCode),
		strconv.FormatInt(rw.bytesWritten, 10),
		reqBytes,
		strconv.FormatInt(elapsed.Milliseconds(), 10),
		dash(rw.Header().Get("Content-Encoding")),
		dash(sanitizeLogField(rw.Header().Get(JobIDHeader))),
		dash(escapeW3CField(sanitizeLogField(r.Header.Get("User-Agent")))),
		dash(escapeW3CField(sanitizeLogField(r.Header.Get("Referer")))),
	}
	return strings.Join(values, " ")
}

func writeAccessLine(line, jobID string) {
	l := logging.With("access")
	ev := l.Log()
	if jobID != "" {
		ev = ev.Str("job_id", sanitizeLogField(jobID))
	}
	ev.Msg(line)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// sanitizeLogField strips control characters so a client cannot forge log
// lines or inject terminal escapes. Newlines become spaces; tabs are kept.
func sanitizeLogField(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n' || r == '\r':
			b.WriteRune(' ')
		case r == '\t':
			b.WriteRune(r)
		case r < 0x20 || r == 0x7f:
			continue
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func shouldSkip(path string, config LoggingConfig) bool {
	for _, p := range config.SkipPaths {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	if healthCheckPaths[path] {
		return !config.LogHealthChecks
	}
	if config.LogStaticFiles {
		return false
	}
	lower := strings.ToLower(path)
	for _, ext := range config.SkipExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return ip
}

// escapeW3CField quotes values containing spaces, tabs or quotes, doubling
// embedded quotes.
func escapeW3CField(s string) string {
	if strings.ContainsAny(s, " \t\"") {
		return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
	}
	return s
}
