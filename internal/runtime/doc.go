// Package runtime provides build environments backed by containerd.
//
// A [Runtime] connects to a containerd daemon and implements
// [environment.Provider]. Each environment is a [Container] started from the
// pipeline's pinned base image: the reference is pulled (or, for a path to
// an OCI archive, imported and tagged under a deterministic name), unpacked
// for the target platform, and used to create a container with a fresh
// snapshot and a long-running task that later commands attach to.
//
// Commands run as additional exec processes with per-command environment and
// working directory. Files cross the container boundary as tar streams piped
// through tar inside the container, so the base image must provide tar and
// a POSIX test utility. Destroying a container kills its task and removes
// the snapshot.
//
// Example usage:
//
//	rt, err := runtime.New(runtime.Config{Namespace: "pinbuild"})
//	if err != nil {
//	    return err
//	}
//	defer rt.Close()
//
//	env, err := rt.Create(ctx, environment.Spec{
//	    ID:    "pinbuild-1",
//	    Image: "docker.io/library/rust:1.85.0-slim",
//	})
//	if err != nil {
//	    return err
//	}
//	defer env.Destroy(ctx)
package runtime
