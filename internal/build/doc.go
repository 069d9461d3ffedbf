// Package build configures a provisioned environment, runs the build
// steps, and exports the output directory.
//
// The three stages run strictly in sequence against one environment:
//
//   - [Configure] copies the source tree to the working directory and
//     fixes the variables that steer the build, returning them as
//     [Settings].
//   - [Execute] runs each step in declaration order with those settings
//     and stops at the first non-zero exit.
//   - [Export] checks that the output directory exists and copies it out
//     of the environment.
//
// Settings are passed explicitly from the configurator to the executor and
// exporter. Nothing is read from or written to the process environment, so
// concurrent pipelines cannot observe each other's variables.
//
// Example usage:
//
//	settings, err := build.Configure(ctx, env, "./app", def.Configure)
//	if err != nil {
//	    return err
//	}
//	if err := build.Execute(ctx, env, settings, def.Steps, nil); err != nil {
//	    return err
//	}
//	pkg, err := build.Export(ctx, env, settings, def.Artifact, "out")
package build
