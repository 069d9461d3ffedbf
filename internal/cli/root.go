package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"

	"github.com/cruciblehq/pinbuild/internal"
	"github.com/cruciblehq/pinbuild/internal/pipeline"
	"github.com/cruciblehq/pinbuild/internal/runtime"
	"github.com/cruciblehq/pinbuild/internal/toolchain"
)

// The pinbuild command tree.
type rootCmd struct {
	Quiet   bool `short:"q" help:"Suppress informational output." env:"PINBUILD_QUIET"`
	Verbose bool `short:"v" help:"Add timestamps and callers to log records." env:"PINBUILD_VERBOSE"`
	Debug   bool `short:"d" help:"Enable debug output." env:"PINBUILD_DEBUG"`

	Run      RunCmd      `cmd:"" help:"Run a pipeline and export its artifact."`
	Validate ValidateCmd `cmd:"" help:"Validate a pipeline definition."`
	Pins     PinsCmd     `cmd:"" help:"Print the pinned toolchain."`
	Verify   VerifyCmd   `cmd:"" help:"Check pin files in the source tree against the definition."`
	Version  VersionCmd  `cmd:"" help:"Show version information."`
}

// Represents the root command for pinbuild.
var RootCmd rootCmd

// Kong options shared by [Execute] and tests.
func parserOptions() []kong.Option {
	return []kong.Option{
		kong.Name(internal.Name),
		kong.Description("Hermetic build pipelines.\n\nInstalls an exactly pinned toolchain into a fresh environment, runs the build steps, and exports the output directory."),
		kong.UsageOnError(),
		kong.Exit(exitWith(os.Exit)),
		kong.Vars{
			"version":              internal.VersionString(),
			"containerd_address":   runtime.DefaultAddress,
			"containerd_namespace": runtime.DefaultNamespace,
			"snapshotter":          runtime.DefaultSnapshotter,
			"fetch_attempts":       strconv.Itoa(toolchain.DefaultAttempts),
		},
	}
}

// Wraps exit so that kong's own exit codes follow the pinbuild table: help
// exits 0 and usage errors exit with [pipeline.ExitFailure] instead of
// kong's 80.
func exitWith(exit func(int)) func(int) {
	return func(code int) {
		if code != pipeline.ExitOK {
			code = pipeline.ExitFailure
		}
		exit(code)
	}
}

// Parses arguments, configures logging, and runs the selected subcommand.
func Execute() error {

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	opts := append(parserOptions(), kong.BindTo(ctx, (*context.Context)(nil)))
	kongCtx := kong.Parse(&RootCmd, opts...)

	configureLogger()

	return kongCtx.Run()
}

// Creates the process logger, seeded from build-time linker flags.
//
// The logger is reconfigured after flag parsing via [Execute].
func NewLogger() *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{Prefix: internal.Name})
	applyModes(logger, internal.IsDebug(), internal.IsQuiet(), internal.IsVerbose())
	return logger
}

// Configures the global logger based on CLI flags.
func configureLogger() {
	internal.SetDebug(RootCmd.Debug || internal.IsDebug())
	internal.SetQuiet(RootCmd.Quiet || internal.IsQuiet())
	internal.SetVerbose(RootCmd.Verbose || internal.IsVerbose())

	logger, ok := slog.Default().Handler().(*log.Logger)
	if !ok {
		return // Not a charm logger, nothing to configure
	}
	applyModes(logger, internal.IsDebug(), internal.IsQuiet(), internal.IsVerbose())
}

// Sets level and verbosity. Debug wins over quiet.
func applyModes(logger *log.Logger, debug, quiet, verbose bool) {
	switch {
	case debug:
		logger.SetLevel(log.DebugLevel)
	case quiet:
		logger.SetLevel(log.WarnLevel)
	default:
		logger.SetLevel(log.InfoLevel)
	}
	logger.SetReportTimestamp(verbose)
	logger.SetReportCaller(verbose)
}
