// Package pipeline runs a pipeline definition from start to finish.
//
// A run creates a fresh environment, installs the pinned toolchain,
// configures the environment with the source tree and build variables,
// executes the build steps, and exports the output directory. The stages
// run in that order without branching or retries between them; the first
// failure aborts the run. Whatever happens, the environment is destroyed
// before [Run] returns, and a failed run removes any output it produced.
//
// Failures are reported as [*Error] values whose [Kind] identifies the
// stage that failed. [ExitCode] maps them onto process exit statuses.
//
// Example usage:
//
//	result, err := pipeline.Run(ctx, pipeline.Options{
//	    Pipeline:    def,
//	    Source:      ".",
//	    Output:      "out",
//	    Provider:    environment.NewHost(""),
//	    Provisioner: toolchain.New(),
//	})
//	os.Exit(pipeline.ExitCode(err))
package pipeline
