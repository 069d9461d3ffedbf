package build

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrConfiguration = errors.New("configuration failed")
	ErrStepFailed    = errors.New("build step failed")
	ErrOutputMissing = errors.New("build output missing")
	ErrExport        = errors.New("export failed")
)

// A build step that failed to run or exited with a non-zero status.
type StepError struct {
	Index    int      // Zero-based position of the step.
	Name     string   // Step label.
	Args     []string // Command line that was run.
	ExitCode int      // Exit status, or -1 when the command did not run.
	Stderr   string   // Tail of the standard error stream.
	Err      error    // Failure to start or wait, if any.
}

func (e *StepError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: step %d (%s)", ErrStepFailed, e.Index+1, e.Name)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	} else {
		fmt.Fprintf(&b, " exited with code %d", e.ExitCode)
	}
	if e.Stderr != "" {
		fmt.Fprintf(&b, ": %s", e.Stderr)
	}
	return b.String()
}

func (e *StepError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrStepFailed, e.Err}
	}
	return []error{ErrStepFailed}
}
