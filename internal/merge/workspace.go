package merge

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"clip-merger/internal/logging"
)

// Workspace is a job-local directory holding every intermediate artifact.
// Release removes it; it is safe to call more than once.
type Workspace struct {
	dir  string
	keep bool

	mu       sync.Mutex
	released bool
}

// NewWorkspace creates <parent>/<jobID>. With keep set, Release leaves the
// directory in place.
func NewWorkspace(parent, jobID string, keep bool) (*Workspace, error) {
	if jobID == "" || jobID == "." || jobID == ".." || filepath.Base(jobID) != jobID {
		return nil, fmt.Errorf("invalid job id %q", jobID)
	}
	dir := filepath.Join(parent, jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create job workspace: %w", err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve job workspace: %w", err)
	}
	return &Workspace{dir: abs, keep: keep}, nil
}

// Dir returns the absolute workspace path.
func (w *Workspace) Dir() string { return w.dir }

// Path allocates a unique file name inside the workspace.
func (w *Workspace) Path(prefix, ext string) string {
	return filepath.Join(w.dir, prefix+"_"+uuid.NewString()+ext)
}

// Release removes the workspace and everything in it.
func (w *Workspace) Release() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.released {
		return nil
	}
	w.released = true

	if w.keep {
		logging.Info("Keeping job workspace %s", w.dir)
		return nil
	}
	if err := os.RemoveAll(w.dir); err != nil {
		return fmt.Errorf("remove job workspace: %w", err)
	}
	logging.Debug("Removed job workspace %s", w.dir)
	return nil
}
