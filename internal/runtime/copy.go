package runtime

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
)

// Extracts a tar stream into destDir by piping it to "tar xf - -C destDir"
// inside the container.
func (c *Container) CopyTo(ctx context.Context, r io.Reader, destDir string) error {
	return c.mustExec(ctx, "tar extract", r, nil, "tar", "xf", "-", "-C", destDir)
}

// Streams a path out of the container by running "tar cf - -C <dir> <base>"
// inside it.
//
// The path is first resolved with "readlink -f" so that a symlinked output
// directory is archived by content. The entry then carries the base name of
// the link target.
func (c *Container) CopyFrom(ctx context.Context, w io.Writer, p string) error {
	resolved, err := c.resolve(ctx, p)
	if err != nil {
		return err
	}
	return c.mustExec(ctx, "tar archive", nil, w, archiveArgs(resolved)...)
}

// Returns the canonical path of p inside the container.
func (c *Container) resolve(ctx context.Context, p string) (string, error) {
	var out bytes.Buffer
	if err := c.mustExec(ctx, "readlink", nil, &out, "readlink", "-f", p); err != nil {
		return "", err
	}
	return resolvedPath(out.String(), p)
}

// Parses readlink output, which must be a single absolute path.
func resolvedPath(out, p string) (string, error) {
	resolved := strings.TrimRight(out, "\n")
	if !path.IsAbs(resolved) || strings.Contains(resolved, "\n") {
		return "", fmt.Errorf("%w: cannot resolve %s (got %q)", ErrProbe, p, out)
	}
	return resolved, nil
}

// Command line that archives p with p's base name as the only top-level
// entry.
func archiveArgs(p string) []string {
	return []string{"tar", "cf", "-", "-C", path.Dir(p), path.Base(p)}
}

// Creates a directory inside the container, including parents.
func (c *Container) MkdirAll(ctx context.Context, p string) error {
	return c.mustExec(ctx, "mkdir", nil, nil, "mkdir", "-p", p)
}

// Reports whether p exists inside the container.
//
// Runs "test -e"; exit 0 means present and exit 1 absent. Any other exit
// code means the probe itself failed.
func (c *Container) Exists(ctx context.Context, p string) (bool, error) {
	code, stderr, err := c.execCommand(ctx, nil, nil, "test", "-e", p)
	if err != nil {
		return false, err
	}
	switch code {
	case 0:
		return true, nil
	case 1:
		return false, nil
	}
	return false, fmt.Errorf("%w: test -e %s exited %d (%s)", ErrProbe, p, code, stderr)
}

// Runs a command inside the container, returning an error that includes
// desc if the process exits with a non-zero code.
func (c *Container) mustExec(ctx context.Context, desc string, stdin io.Reader, stdout io.Writer, args ...string) error {
	exitCode, stderr, err := c.execCommand(ctx, stdin, stdout, args...)
	if err != nil {
		return err
	}
	if exitCode != 0 {
		return fmt.Errorf("%w: %s failed with exit code %d (%s)", ErrRuntime, desc, exitCode, stderr)
	}
	return nil
}
