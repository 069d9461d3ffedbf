package pipeline

import (
	"errors"
	"fmt"
)

// Stage at which a run failed.
type Kind int

const (
	KindDefinition        Kind = iota + 1 // The definition is invalid.
	KindProvisioning                      // Environment creation or toolchain install failed.
	KindConfiguration                     // Source placement or variable setup failed.
	KindBuildStep                         // A build step failed.
	KindExportConsistency                 // Steps succeeded but the output is missing or unreadable.
	KindPublish                           // Packaging or upload of the exported output failed.
)

var (
	ErrDefinition        = errors.New("definition error")
	ErrProvisioning      = errors.New("provisioning error")
	ErrConfiguration     = errors.New("configuration error")
	ErrBuildStep         = errors.New("build step error")
	ErrExportConsistency = errors.New("export consistency error")
	ErrPublish           = errors.New("publish error")
)

// Process exit statuses.
const (
	ExitOK                = 0
	ExitFailure           = 1
	ExitDefinition        = 2
	ExitProvisioning      = 3
	ExitConfiguration     = 4
	ExitBuildStep         = 5
	ExitExportConsistency = 6
	ExitPublish           = 7
)

func (k Kind) sentinel() error {
	switch k {
	case KindDefinition:
		return ErrDefinition
	case KindProvisioning:
		return ErrProvisioning
	case KindConfiguration:
		return ErrConfiguration
	case KindBuildStep:
		return ErrBuildStep
	case KindExportConsistency:
		return ErrExportConsistency
	case KindPublish:
		return ErrPublish
	}
	return nil
}

func (k Kind) String() string {
	if err := k.sentinel(); err != nil {
		return err.Error()
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Returns the process exit status for the kind.
func (k Kind) ExitCode() int {
	switch k {
	case KindDefinition:
		return ExitDefinition
	case KindProvisioning:
		return ExitProvisioning
	case KindConfiguration:
		return ExitConfiguration
	case KindBuildStep:
		return ExitBuildStep
	case KindExportConsistency:
		return ExitExportConsistency
	case KindPublish:
		return ExitPublish
	}
	return ExitFailure
}

// A run failure attributed to a stage.
//
// errors.Is matches an Error against the sentinel of its kind, such as
// [ErrProvisioning], as well as against anything in its cause chain.
type Error struct {
	Kind      Kind   // Failing stage.
	Component string // Stage component ("provisioner", "executor", ...).
	Subject   string // Failing toolchain component, step or path, if known.
	Err       error  // Cause.
}

func (e *Error) Error() string {
	if e.Subject != "" {
		return fmt.Sprintf("%s: %s: %s: %v", e.Kind, e.Component, e.Subject, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Component, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}

// Maps an error returned by [Run] onto a process exit status. A nil error
// is [ExitOK]; errors that are not an [*Error] are [ExitFailure].
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind.ExitCode()
	}
	return ExitFailure
}
