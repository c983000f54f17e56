package merge

import (
	"errors"
	"fmt"

	"clip-merger/internal/transcoder"
)

// Error kinds. Probe failures are reported by the probe package.
var (
	ErrNormalizationFailure   = errors.New("normalization failed")
	ErrNoValidInput           = errors.New("no valid videos to merge")
	ErrMissingBackgroundMusic = errors.New("background music required for selected audio mode")
	ErrConcatenationFailure   = errors.New("concatenation failed")
	ErrAudioMixFailure        = errors.New("audio mix failed")
)

// Stage names a node of the pipeline DAG.
type Stage string

// Pipeline stages.
const (
	StageProbe     Stage = "probe"
	StageNormalize Stage = "normalize"
	StageConcat    Stage = "concat"
	StageAudioMix  Stage = "audiomix"
)

// StageError is a failure of one external invocation inside a stage. Both
// the kind sentinel and the underlying cause are reachable with errors.Is.
type StageError struct {
	Stage  Stage
	Input  string
	Kind   error
	Err    error
	Stderr string
}

func newStageError(stage Stage, kind error, input string, err error) *StageError {
	se := &StageError{Stage: stage, Input: input, Kind: kind, Err: err}
	var execErr *transcoder.ExecError
	if errors.As(err, &execErr) {
		se.Stderr = execErr.Stderr
	}
	return se
}

func (e *StageError) Error() string {
	if e.Input != "" {
		return fmt.Sprintf("%v: %s: %v", e.Kind, e.Input, e.Err)
	}
	return fmt.Sprintf("%v: %v", e.Kind, e.Err)
}

func (e *StageError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// Timeout reports whether the failure was caused by the transcoder time bound.
func (e *StageError) Timeout() bool {
	return errors.Is(e.Err, transcoder.ErrTimeout)
}

// ValidationError is a request-level failure detected before any work starts.
type ValidationError struct {
	Err error
	Msg string
}

func (e *ValidationError) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Invalid wraps err as a validation error with a user-facing message.
func Invalid(err error, msg string) error {
	return &ValidationError{Err: err, Msg: msg}
}

// IsValidationError reports whether err is a request problem (HTTP 400)
// rather than a pipeline failure (HTTP 500). A job whose every clip failed
// normalization counts as a bad request.
func IsValidationError(err error) bool {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return true
	}
	return errors.Is(err, ErrNoValidInput) || errors.Is(err, ErrMissingBackgroundMusic)
}

// Diagnostic records a non-fatal problem observed while running a job.
type Diagnostic struct {
	Stage   Stage  `json:"stage"`
	Input   string `json:"input,omitempty"`
	Message string `json:"message"`
	err     error
}

func newDiagnostic(stage Stage, input string, err error) Diagnostic {
	return Diagnostic{Stage: stage, Input: input, Message: err.Error(), err: err}
}

// Err returns the underlying error, if the diagnostic was built from one.
func (d Diagnostic) Err() error { return d.err }
