package build

import (
	"maps"
	"path"
	"slices"

	"github.com/cruciblehq/pinbuild/internal/recipe"
)

// Configuration fixed by [Configure] and read by every later stage.
//
// Settings are immutable. Accessors return copies, so neither a step nor
// the executor can change what the next step sees.
type Settings struct {
	workdir string
	env     map[string]string
}

// Creates settings from a working directory and variable mapping. The
// mapping is copied.
func NewSettings(workdir string, env map[string]string) *Settings {
	return &Settings{
		workdir: workdir,
		env:     maps.Clone(env),
	}
}

// Directory the source tree was copied to.
func (s *Settings) Workdir() string {
	return s.workdir
}

// Returns a copy of the configured variables.
func (s *Settings) Env() map[string]string {
	env := make(map[string]string, len(s.env))
	maps.Copy(env, s.env)
	return env
}

// Names of the configured variables, sorted.
func (s *Settings) Names() []string {
	return slices.Sorted(maps.Keys(s.env))
}

// Resolves a path against the working directory. Absolute paths are kept.
func (s *Settings) Path(p string) string {
	if p == "" {
		return s.workdir
	}
	if path.IsAbs(p) {
		return path.Clean(p)
	}
	return path.Join(s.workdir, p)
}

// Effective settings for a single step.
type stepSettings struct {
	dir string
	env map[string]string
}

// Returns the effective settings for step. The receiver is not modified.
func (s *Settings) resolve(step recipe.Step) stepSettings {
	return stepSettings{
		dir: s.Path(step.Dir),
		env: s.Env(),
	}
}
