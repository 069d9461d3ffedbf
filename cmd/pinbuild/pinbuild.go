package main

import (
	"log/slog"
	"os"

	"github.com/cruciblehq/pinbuild/internal"
	"github.com/cruciblehq/pinbuild/internal/cli"
	"github.com/cruciblehq/pinbuild/internal/pipeline"
)

// The entry point for pinbuild.
//
// Initializes logging and executes the root command. The exit status
// identifies the stage that failed; see [pipeline.ExitCode].
func main() {
	slog.SetDefault(slog.New(cli.NewLogger()))

	slog.Debug("build", "version", internal.VersionString())

	slog.Debug("pinbuild is running",
		"pid", os.Getpid(),
		"cwd", cwd(),
		"args", os.Args,
	)

	if err := cli.Execute(); err != nil {
		slog.Error(err.Error())
		os.Exit(pipeline.ExitCode(err))
	}
}

// Returns the current working directory or "(unknown)".
func cwd() string {
	cwd, err := os.Getwd()
	if err != nil {
		return "(unknown)"
	}
	return cwd
}
