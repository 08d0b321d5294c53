package sweep

import (
	"errors"
	"fmt"

	"github.com/san-kum/mdsweep/internal/grid"
	"github.com/san-kum/mdsweep/internal/runner"
)

var (
	// ErrAborted indicates the operator declined the confirmation prompt.
	// Nothing was created or removed.
	ErrAborted = errors.New("sweep: aborted by user")

	// ErrRunFailed indicates a simulator run failed under the halt policy.
	ErrRunFailed = errors.New("sweep: simulator run failed")
)

// RunError wraps a failed run with its position in the sweep.
type RunError struct {
	Index  int
	Point  grid.Point
	Result runner.Result
}

func (e *RunError) Error() string {
	return fmt.Sprintf("sweep: run %d (%s): %s", e.Index+1, e.Point, e.Result)
}

// Unwrap exposes ErrRunFailed and, when present, the runner's own error
// such as runner.ErrTimeout.
func (e *RunError) Unwrap() []error {
	if e.Result.Err == nil {
		return []error{ErrRunFailed}
	}
	return []error{ErrRunFailed, e.Result.Err}
}
