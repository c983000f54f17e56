package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"
	"github.com/google/uuid"

	"clip-merger/internal/logging"
	"clip-merger/internal/merge"
	"clip-merger/internal/transcoder"
)

// multipartMemory is how much of a multipart body is kept in memory before
// parts spill to temporary files.
const multipartMemory = 32 << 20

var (
	errPathOutsideUploads = errors.New("path is outside the upload directory")
	errUnsupportedType    = errors.New("unsupported file type")
)

// writeJSON encodes v as JSON and writes it to the response writer.
// Any encoding or write errors are logged since we typically cannot
// recover from them in an HTTP handler context.
func writeJSON(w http.ResponseWriter, v interface{}) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("failed to encode JSON response: %v", err)
	}
}

// writeJSONError writes an error response as JSON with the given status code.
func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	writeJSON(w, map[string]string{"error": message})
}

// writeJSONStatus writes a simple status response as JSON.
func writeJSONStatus(w http.ResponseWriter, statusCode int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	writeJSON(w, map[string]string{"status": status})
}

// statusForError maps a merge failure to an HTTP status.
func statusForError(err error) int {
	switch {
	case merge.IsValidationError(err):
		return http.StatusBadRequest
	case errors.Is(err, transcoder.ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// parseForm reads a multipart or urlencoded body limited to maxBytes. It
// writes the error response itself and reports whether parsing succeeded.
func (h *Handlers) parseForm(w http.ResponseWriter, r *http.Request) bool {
	if h.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	}

	err := r.ParseMultipartForm(multipartMemory)
	if errors.Is(err, http.ErrNotMultipart) {
		err = r.ParseForm()
	}
	if err == nil {
		return true
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeJSONError(w, "request body too large", http.StatusRequestEntityTooLarge)
		return false
	}
	writeJSONError(w, "invalid form: "+err.Error(), http.StatusBadRequest)
	return false
}

// cleanFilename strips any client supplied directory components.
func cleanFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	if name == "." || name == "/" || name == ".." {
		return "upload"
	}
	return name
}

// saveUpload writes a multipart file into the upload directory as
// "<uuid>_<name>" and returns the stored path and size.
func (h *Handlers) saveUpload(fh *multipart.FileHeader) (string, int64, error) {
	src, err := fh.Open()
	if err != nil {
		return "", 0, err
	}
	defer src.Close()

	path := filepath.Join(h.uploadDir, uuid.NewString()+"_"+cleanFilename(fh.Filename))
	pending, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o644))
	if err != nil {
		return "", 0, err
	}
	defer func() { _ = pending.Cleanup() }()

	n, err := io.Copy(pending, src)
	if err != nil {
		return "", 0, err
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return "", 0, err
	}
	return path, n, nil
}

// resolveUploadPath maps a client supplied path to a file inside the upload
// directory. Relative paths are taken relative to it.
func (h *Handlers) resolveUploadPath(p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return "", errPathOutsideUploads
	}
	root, err := filepath.Abs(h.uploadDir)
	if err != nil {
		return "", err
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(root, p)
	}
	p = filepath.Clean(p)

	rel, err := filepath.Rel(root, p)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errPathOutsideUploads
	}
	return p, nil
}

func removeFiles(paths []string) {
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			logging.Warn("Failed to remove %s: %v", p, err)
		}
	}
}

// requestGone reports whether the client went away while the handler worked.
func requestGone(r *http.Request, err error) bool {
	return errors.Is(err, context.Canceled) && r.Context().Err() != nil
}
