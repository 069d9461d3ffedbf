package toolchain

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"

	"github.com/cruciblehq/pinbuild/internal/environment"
	"github.com/cruciblehq/pinbuild/internal/logstream"
)

// Bytes of install command stderr kept for error reports.
const stderrTail = 4096

// Builds the command lines that install pkg at exactly version.
type managerCommands func(pkg, version string) [][]string

// Checks a pin against what a manager treats as one release and returns the
// form its install command expects.
type managerVersion func(version string) (string, error)

type manager struct {
	commands managerCommands
	version  managerVersion
}

var managers = map[string]manager{
	"cargo": {
		commands: func(pkg, v string) [][]string {
			return [][]string{{"cargo", "install", pkg, "--version", v, "--locked"}}
		},
		version: releaseVersion,
	},
	"npm": {
		commands: func(pkg, v string) [][]string {
			return [][]string{{"npm", "install", "--global", pkg + "@" + v}}
		},
		version: releaseVersion,
	},
	"pip": {
		commands: func(pkg, v string) [][]string {
			return [][]string{{"pip", "install", pkg + "==" + v}}
		},
		version: numericVersion,
	},
	"go": {
		commands: func(pkg, v string) [][]string {
			return [][]string{{"go", "install", pkg + "@" + v}}
		},
		version: moduleVersion,
	},
	"gem": {
		commands: func(pkg, v string) [][]string {
			return [][]string{{"gem", "install", pkg, "--version", v}}
		},
		version: numericVersion,
	},
	"rustup": {
		commands: func(_, v string) [][]string {
			return [][]string{
				{"rustup", "toolchain", "install", v, "--profile", "minimal"},
				{"rustup", "default", v},
			}
		},
		version: rustToolchain,
	},
}

// Package managers known to [PackageManagerInstall], sorted.
func Managers() []string {
	return slices.Sorted(maps.Keys(managers))
}

// Installs a tool through a package manager running inside the environment.
//
// The manager itself must already be on the environment's search path,
// either in the base image or installed by an earlier component. Args are
// appended to the manager's install command. For rustup the component
// version names the toolchain and Package is ignored.
type PackageManagerInstall struct {
	Manager string   // Manager name, one of [Managers].
	Package string   // Package to install.
	Args    []string // Extra arguments for the install command.
}

func (PackageManagerInstall) Kind() string {
	return "package"
}

// Returns the command lines run to install the package at version.
func (m PackageManagerInstall) Commands(version string) ([][]string, error) {
	mgr, ok := managers[m.Manager]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownManager, m.Manager)
	}
	v, err := mgr.version(version)
	if err != nil {
		return nil, err
	}
	cmds := mgr.commands(m.Package, v)
	cmds[0] = append(cmds[0], m.Args...)
	return cmds, nil
}

func (m PackageManagerInstall) validate(c Component) error {
	mgr, ok := managers[m.Manager]
	if !ok {
		return fmt.Errorf("%w: %q (known: %v)", ErrUnknownManager, m.Manager, Managers())
	}
	if m.Package == "" && m.Manager != "rustup" {
		return fmt.Errorf("%w: missing package name", ErrInvalidComponent)
	}
	if _, err := mgr.version(c.Version); err != nil {
		return fmt.Errorf("%s: %w", m.Manager, err)
	}
	return nil
}

func (m PackageManagerInstall) install(ctx context.Context, p *Provisioner, env environment.Environment, c Component) error {
	cmds, err := m.Commands(c.Version)
	if err != nil {
		return err
	}

	for _, args := range cmds {
		if err := runInstall(ctx, env, c, args); err != nil {
			return err
		}
	}
	return nil
}

// Runs one install command, streaming its output to the log.
func runInstall(ctx context.Context, env environment.Environment, c Component, args []string) error {
	slog.Debug("running install command", "component", c.Name, "args", args)

	stdout := logstream.New(nil, "install output", "component", c.Name, "stream", "stdout")
	stderr := logstream.New(nil, "install output", "component", c.Name, "stream", "stderr")
	tail := logstream.NewTail(stderrTail)
	defer stdout.Flush()
	defer stderr.Flush()

	code, err := env.Exec(ctx, environment.Command{
		Args:   args,
		Stdout: stdout,
		Stderr: io.MultiWriter(stderr, tail),
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInstallFailed, err)
	}
	if code != 0 {
		return &CommandError{Args: args, ExitCode: code, Stderr: tail.String()}
	}
	return nil
}
