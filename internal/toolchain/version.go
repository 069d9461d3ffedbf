package toolchain

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/mod/semver"
)

// Dated release channels, e.g. "nightly-2025-01-01".
var datedChannel = regexp.MustCompile(`^(stable|beta|nightly)-\d{4}-\d{2}-\d{2}$`)

// Requires a full MAJOR.MINOR.PATCH semantic version without a "v" prefix.
//
// npm and cargo resolve "1.2" or "1" as ranges and accept dist-tags such as
// "next" in the version position.
func releaseVersion(v string) (string, error) {
	if strings.HasPrefix(v, "v") || !fullSemver("v"+v) {
		return "", fmt.Errorf("%w: %q is not MAJOR.MINOR.PATCH", ErrNotPinned, v)
	}
	return v, nil
}

// Requires a full semantic version and returns it with the "v" prefix that
// Go module queries need. Anything else is a query like "upgrade" or "patch".
func moduleVersion(v string) (string, error) {
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !fullSemver(v) {
		return "", fmt.Errorf("%w: %q is not a module version", ErrNotPinned, v)
	}
	return v, nil
}

// Requires a version that starts with a digit, so tags and channel names are
// refused. pip and gem compare the remaining release segments exactly.
func numericVersion(v string) (string, error) {
	if v == "" || v[0] < '0' || v[0] > '9' {
		return "", fmt.Errorf("%w: %q is not a release number", ErrNotPinned, v)
	}
	return v, nil
}

// Accepts a full toolchain release ("1.85.0") or a dated channel. "1.85"
// follows the latest patch release and is refused.
func rustToolchain(v string) (string, error) {
	if datedChannel.MatchString(v) {
		return v, nil
	}
	if strings.HasPrefix(v, "v") || !fullSemver("v"+v) {
		return "", fmt.Errorf("%w: %q is not a toolchain release", ErrNotPinned, v)
	}
	return v, nil
}

// Reports whether v is valid semver with all three numeric components.
// semver.IsValid also accepts the "v1" and "v1.2" shorthands.
func fullSemver(v string) bool {
	if !semver.IsValid(v) {
		return false
	}
	core, _, _ := strings.Cut(v, "+")
	core, _, _ = strings.Cut(core, "-")
	return strings.Count(core, ".") == 2
}
