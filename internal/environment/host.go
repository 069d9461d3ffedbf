package environment

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"

	"github.com/cruciblehq/pinbuild/internal/archive"
	"github.com/cruciblehq/pinbuild/internal/paths"
)

// System directories searched after the environment's install directory.
// Host environments never consult the invoking process's PATH.
var DefaultSystemPath = []string{
	"/usr/local/sbin",
	"/usr/local/bin",
	"/usr/sbin",
	"/usr/bin",
	"/sbin",
	"/bin",
}

// Creates environments as scratch directories on the host.
//
// Each environment gets its own directory below the provider root. Paths
// inside the environment map onto that directory, so "/src" becomes
// "<scratch>/src". Commands run as host processes with a variable set built
// from scratch: PATH (install directory first, then the system path), HOME
// and TMPDIR inside the scratch directory, and the command's own variables.
type Host struct {
	root       string   // Directory under which scratch directories are created.
	systemPath []string // Directories searched after the install directory.
}

// Creates a host provider rooted at root. An empty root uses
// [paths.Environments]. An empty system path uses [DefaultSystemPath].
func NewHost(root string, systemPath ...string) *Host {
	if root == "" {
		root = paths.Environments()
	}
	if len(systemPath) == 0 {
		systemPath = DefaultSystemPath
	}
	return &Host{root: root, systemPath: systemPath}
}

// Creates a fresh scratch environment.
func (h *Host) Create(ctx context.Context, spec Spec) (Environment, error) {
	if err := os.MkdirAll(h.root, paths.DefaultDirMode); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEnvironment, err)
	}

	dir, err := os.MkdirTemp(h.root, spec.ID+"-")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEnvironment, err)
	}

	e := &hostEnv{
		id:         spec.ID,
		root:       dir,
		binDir:     spec.InstallDir(),
		systemPath: h.systemPath,
	}

	for _, p := range []string{e.binDir, "/home", "/tmp"} {
		if err := e.MkdirAll(ctx, p); err != nil {
			e.Destroy(ctx)
			return nil, err
		}
	}

	slog.Debug("host environment created", "id", spec.ID, "root", dir)
	return e, nil
}

// A scratch directory on the host acting as a build environment.
type hostEnv struct {
	id         string
	root       string
	binDir     string
	systemPath []string
}

func (e *hostEnv) ID() string {
	return e.id
}

func (e *hostEnv) BinDir() string {
	return e.binDir
}

// Maps an environment path onto the scratch directory. Relative paths are
// taken relative to the environment root.
func (e *hostEnv) hostPath(p string) string {
	return filepath.Join(e.root, filepath.FromSlash(path.Clean("/"+p)))
}

// Runs a command as a host process.
func (e *hostEnv) Exec(ctx context.Context, cmd Command) (int, error) {
	if len(cmd.Args) == 0 {
		return 0, ErrEmptyCommand
	}

	dir := e.root
	if cmd.Dir != "" {
		dir = e.hostPath(cmd.Dir)
	}

	program, err := e.lookPath(cmd.Args[0], dir)
	if err != nil {
		return 0, err
	}

	c := exec.CommandContext(ctx, program, cmd.Args[1:]...)
	c.Args[0] = cmd.Args[0]
	c.Dir = dir
	c.Env = e.environ(cmd)
	c.Stdin = cmd.Stdin
	c.Stdout = cmd.Stdout
	c.Stderr = cmd.Stderr

	err = c.Run()

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return exitErr.ExitCode(), ctxErr
		}
		return exitErr.ExitCode(), nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrEnvironment, err)
	}
	return 0, nil
}

// Builds the process environment for a command.
func (e *hostEnv) environ(cmd Command) []string {
	search := make([]string, 0, len(e.systemPath)+1)
	search = append(search, e.hostPath(e.binDir))
	search = append(search, e.systemPath...)

	base := Command{Env: map[string]string{
		"PATH":   strings.Join(search, string(os.PathListSeparator)),
		"HOME":   e.hostPath("/home"),
		"TMPDIR": e.hostPath("/tmp"),
	}}

	env := base.Environ()
	return append(env, cmd.Environ()...)
}

// Resolves a program name against the environment's search path.
//
// Names containing a slash are resolved against the scratch directory first
// (absolute) or the working directory (relative); absolute names that do not
// exist in the scratch directory fall back to the host path, so "/bin/sh"
// works without installing a shell.
func (e *hostEnv) lookPath(name, dir string) (string, error) {
	if strings.Contains(name, "/") {
		candidates := []string{filepath.Join(dir, name)}
		if path.IsAbs(name) {
			candidates = []string{e.hostPath(name), name}
		}
		for _, c := range candidates {
			if isExecutable(c) {
				return c, nil
			}
		}
		return "", fmt.Errorf("%w: %s", ErrCommandNotFound, name)
	}

	dirs := append([]string{e.hostPath(e.binDir)}, e.systemPath...)
	for _, d := range dirs {
		if c := filepath.Join(d, name); isExecutable(c) {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrCommandNotFound, name)
}

// Extracts a tar stream into a directory of the environment.
func (e *hostEnv) CopyTo(ctx context.Context, r io.Reader, destDir string) error {
	if err := archive.Extract(r, e.hostPath(destDir)); err != nil {
		return fmt.Errorf("%w: %w", ErrEnvironment, err)
	}
	return nil
}

// Streams a path of the environment out as a tar archive.
//
// A symlink at p is followed, but only to a target inside the environment.
// The entry keeps the base name of p.
func (e *hostEnv) CopyFrom(ctx context.Context, w io.Writer, p string) error {
	hp, err := e.resolve(p)
	if err != nil {
		return err
	}

	info, err := os.Stat(hp)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEnvironment, err)
	}

	tw := tar.NewWriter(w)
	base := path.Base(path.Clean("/" + p))

	if info.IsDir() {
		err = archive.WriteDir(tw, hp, base, false)
	} else {
		err = archive.WriteFile(tw, hp, base)
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEnvironment, err)
	}

	return tw.Close()
}

// Maps an environment path to the host path it resolves to, refusing
// symlinks that lead out of the scratch directory.
func (e *hostEnv) resolve(p string) (string, error) {
	resolved, err := filepath.EvalSymlinks(e.hostPath(p))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrEnvironment, err)
	}
	root, err := filepath.EvalSymlinks(e.root)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrEnvironment, err)
	}

	rel, err := filepath.Rel(root, resolved)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrEnvironment, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s: %w", ErrEnvironment, p, ErrOutsideEnvironment)
	}
	return resolved, nil
}

func (e *hostEnv) MkdirAll(ctx context.Context, p string) error {
	if err := os.MkdirAll(e.hostPath(p), paths.DefaultDirMode); err != nil {
		return fmt.Errorf("%w: %w", ErrEnvironment, err)
	}
	return nil
}

func (e *hostEnv) Exists(ctx context.Context, p string) (bool, error) {
	_, err := os.Lstat(e.hostPath(p))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("%w: %w", ErrEnvironment, err)
}

// Removes the scratch directory.
func (e *hostEnv) Destroy(ctx context.Context) {
	if err := os.RemoveAll(e.root); err != nil {
		slog.Warn("failed to remove host environment", "id", e.id, "root", e.root, "error", err)
		return
	}
	slog.Debug("host environment destroyed", "id", e.id)
}

// Whether p is a regular file with an execute bit set.
func isExecutable(p string) bool {
	info, err := os.Stat(p)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && info.Mode().Perm()&0111 != 0
}
