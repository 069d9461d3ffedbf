package environment

import (
	"context"
	"io"
	"maps"
	"slices"
)

// Default directory on the executable search path where tools are installed.
const DefaultBinDir = "/usr/local/bin"

// An isolated build environment exclusively owned by one pipeline run.
type Environment interface {

	// Unique identifier of this environment instance.
	ID() string

	// Directory on the executable search path that installed tools go into.
	BinDir() string

	// Runs a command to completion and returns its exit code. A non-zero exit
	// is not an error; errors are reserved for failures to start or wait.
	Exec(ctx context.Context, cmd Command) (int, error)

	// Extracts a tar stream into destDir, which must exist.
	CopyTo(ctx context.Context, r io.Reader, destDir string) error

	// Writes path as a tar stream with a single top-level entry. A symlink
	// at path is followed within the environment, and the entry is named
	// after path or after the link target.
	CopyFrom(ctx context.Context, w io.Writer, path string) error

	// Creates a directory and any missing parents.
	MkdirAll(ctx context.Context, path string) error

	// Reports whether path exists.
	Exists(ctx context.Context, path string) (bool, error)

	// Releases every resource held by the environment. Errors are logged.
	Destroy(ctx context.Context)
}

// Creates environments.
type Provider interface {
	Create(ctx context.Context, spec Spec) (Environment, error)
}

// Describes the environment to create.
type Spec struct {
	ID       string // Unique identifier for the environment.
	Image    string // Base image reference. Ignored by the host driver.
	Platform string // OCI platform (e.g., "linux/amd64"). Ignored by the host driver.
	BinDir   string // Install directory for tools. Empty uses [DefaultBinDir].
}

// Returns the install directory, applying the default.
func (s Spec) InstallDir() string {
	if s.BinDir == "" {
		return DefaultBinDir
	}
	return s.BinDir
}

// A command to run inside an environment.
type Command struct {
	Args   []string          // Program name followed by its arguments.
	Env    map[string]string // Variables set for this command only.
	Dir    string            // Working directory. Empty uses the environment default.
	Stdin  io.Reader         // Optional standard input.
	Stdout io.Writer         // Optional standard output sink.
	Stderr io.Writer         // Optional standard error sink.
}

// Formats the command's variables as sorted "key=value" strings.
func (c Command) Environ() []string {
	env := make([]string, 0, len(c.Env))
	for _, k := range slices.Sorted(maps.Keys(c.Env)) {
		env = append(env, k+"="+c.Env[k])
	}
	return env
}
