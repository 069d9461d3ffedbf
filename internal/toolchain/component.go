package toolchain

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/cruciblehq/pinbuild/internal/environment"
)

// A tool pinned to an exact version.
//
// Components are declared once per pipeline and never modified. Each is
// installed exactly once into each environment.
type Component struct {
	Name    string // Tool name, unique within a toolchain.
	Version string // Exact version pin.
	Method  Method // How the tool is installed.
}

// Formats the component as "name@version".
func (c Component) String() string {
	return c.Name + "@" + c.Version
}

// Checks the name, the pin and the install method.
func (c Component) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidComponent)
	}
	if err := ValidatePin(c.Version); err != nil {
		return fmt.Errorf("%s: %w", c.Name, err)
	}
	if c.Method == nil {
		return fmt.Errorf("%w: %s: no install method", ErrInvalidComponent, c.Name)
	}
	if err := c.Method.validate(c); err != nil {
		return fmt.Errorf("%s: %w", c.Name, err)
	}
	return nil
}

// An install method. The set of implementations is closed: [DownloadExtract]
// and [PackageManagerInstall].
type Method interface {

	// Short tag naming the method ("download" or "package").
	Kind() string

	validate(c Component) error
	install(ctx context.Context, p *Provisioner, env environment.Environment, c Component) error
}

// Version strings that name a moving target rather than a release.
var floatingVersions = []string{
	"latest",
	"stable",
	"beta",
	"nightly",
	"lts",
	"current",
	"head",
	"main",
	"master",
}

// Rejects versions that could resolve to more than one release.
//
// Ranges ("^1.2", "~1.2", ">=1", "1 - 2", "1 || 2"), wildcards ("*", "1.x")
// and channel names ("latest", "stable") are refused. Dated channels such as
// "nightly-2025-01-01" are exact and accepted.
func ValidatePin(version string) error {
	if version == "" {
		return fmt.Errorf("%w: empty version", ErrNotPinned)
	}
	if strings.ContainsAny(version, " \t\r\n^~<>=|*") {
		return fmt.Errorf("%w: %q", ErrNotPinned, version)
	}
	if slices.Contains(floatingVersions, strings.ToLower(version)) {
		return fmt.Errorf("%w: %q", ErrNotPinned, version)
	}

	parts := strings.FieldsFunc(version, func(r rune) bool {
		return r == '.' || r == '-' || r == '+'
	})
	if len(parts) == 0 {
		return fmt.Errorf("%w: %q", ErrNotPinned, version)
	}
	for _, part := range parts {
		if part == "x" || part == "X" {
			return fmt.Errorf("%w: %q", ErrNotPinned, version)
		}
	}
	return nil
}
