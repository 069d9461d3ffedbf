// Package environment defines the isolated place a pipeline run builds in.
//
// An [Environment] is owned by exactly one run. It exposes the handful of
// operations the pipeline needs: running a command with an explicit
// environment and working directory, streaming tar archives in and out,
// creating directories, and testing whether a path exists. Paths passed to
// these operations are paths inside the environment.
//
// A [Provider] creates environments from a [Spec]. Two drivers exist: the
// containerd driver in the runtime package and the [Host] driver in this
// package, which maps environment paths below a scratch directory on the
// host and runs commands with a PATH and variable set built from scratch.
//
// Example usage:
//
//	env, err := environment.NewHost("").Create(ctx, environment.Spec{
//	    ID:     "pinbuild-1",
//	    BinDir: "/usr/local/bin",
//	})
//	if err != nil {
//	    return err
//	}
//	defer env.Destroy(ctx)
//
//	code, err := env.Exec(ctx, environment.Command{
//	    Args: []string{"wasm-opt", "--version"},
//	    Dir:  "/src",
//	})
package environment
