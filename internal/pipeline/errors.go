package pipeline

import (
	"errors"
	"fmt"

	"vigil/internal/stage"
)

var (
	// ErrInvalidConfiguration rejects a run before any backend call is made.
	ErrInvalidConfiguration = errors.New("invalid run configuration")
	// ErrRunAlreadyInProgress rejects a run while another is active.
	ErrRunAlreadyInProgress = errors.New("a run is already in progress")
)

// StageCallError reports the backend call that stopped a run.
type StageCallError struct {
	Stage  stage.Name
	Reason string
	Err    error
}

func (e *StageCallError) Error() string {
	return fmt.Sprintf("%s stage failed: %s", e.Stage, e.Reason)
}

func (e *StageCallError) Unwrap() error { return e.Err }

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfiguration, fmt.Sprintf(format, args...))
}
