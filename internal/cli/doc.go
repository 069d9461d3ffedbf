// Parses flags and dispatches pinbuild commands.
//
// Commands:
//
//	run        Provision, configure, build and export a pipeline.
//	validate   Check a pipeline definition and list its pins.
//	pins       Print the pinned toolchain as name@version lines.
//	verify     Compare the pins against TOML pin files in the source tree.
//	version    Show version information.
//
// Global flags:
//
//	-q, --quiet     Suppress informational output.
//	-v, --verbose   Add timestamps and callers to log records.
//	-d, --debug     Enable debug output.
//
// Every flag can also be set through a PINBUILD_* environment variable.
// Flags override build-time defaults set via linker flags. After parsing, the
// global logger is reconfigured to reflect the final level and verbosity
// before the command runs.
package cli
