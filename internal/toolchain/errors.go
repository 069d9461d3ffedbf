package toolchain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cruciblehq/pinbuild/internal/archive"
)

var (
	ErrInvalidComponent = errors.New("invalid toolchain component")
	ErrNotPinned        = errors.New("version is not an exact pin")
	ErrUnknownManager   = errors.New("unknown package manager")
	ErrFetch            = errors.New("fetch failed")
	ErrChecksum         = errors.New("checksum mismatch")
	ErrExtract          = errors.New("extract failed")
	ErrInstallFailed    = errors.New("install command failed")

	ErrNoMatchingMember = archive.ErrNoMember
	ErrAmbiguousMember  = archive.ErrAmbiguous
)

// Identifies the component whose installation failed.
type ComponentError struct {
	Name    string // Component name.
	Version string // Pinned version.
	Err     error  // Underlying failure.
}

func (e *ComponentError) Error() string {
	return fmt.Sprintf("%s@%s: %v", e.Name, e.Version, e.Err)
}

func (e *ComponentError) Unwrap() error {
	return e.Err
}

// A package manager command that exited with a non-zero status.
type CommandError struct {
	Args     []string // Command line that was run.
	ExitCode int      // Exit status.
	Stderr   string   // Tail of the standard error stream.
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s: %q exited with code %d", ErrInstallFailed, strings.Join(e.Args, " "), e.ExitCode)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *CommandError) Unwrap() error {
	return ErrInstallFailed
}
