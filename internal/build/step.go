package build

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/cruciblehq/pinbuild/internal/environment"
	"github.com/cruciblehq/pinbuild/internal/logstream"
	"github.com/cruciblehq/pinbuild/internal/recipe"
)

// Bytes of step stderr kept for error reports.
const stderrTail = 4096

// Runs steps in order and stops at the first failure.
//
// Every step runs with a fresh copy of the settings' variables and its
// directory resolved against the working directory. Output is logged line
// by line and, when sink is not nil, also copied to sink. Cancellation is
// observed before each step. Nothing is rolled back on failure.
func Execute(ctx context.Context, env environment.Environment, settings *Settings, steps []recipe.Step, sink io.Writer) error {
	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("before step %d (%s): %w", i+1, step.Label(), err)
		}
		if err := executeStep(ctx, env, settings, i, step, sink); err != nil {
			return err
		}
	}
	return nil
}

// Runs a single step.
func executeStep(ctx context.Context, env environment.Environment, settings *Settings, index int, step recipe.Step, sink io.Writer) error {
	resolved := settings.resolve(step)
	args := step.Argv()
	label := step.Label()

	fail := func(code int, stderr string, err error) error {
		return &StepError{Index: index, Name: label, Args: args, ExitCode: code, Stderr: stderr, Err: err}
	}

	if err := env.MkdirAll(ctx, resolved.dir); err != nil {
		return fail(-1, "", err)
	}

	slog.Info("running step", "step", label, "index", index+1, "dir", resolved.dir)
	slog.Debug("step command", "step", label, "args", args)

	stdout := logstream.New(nil, "step output", "step", label, "stream", "stdout")
	stderr := logstream.New(nil, "step output", "step", label, "stream", "stderr")
	tail := logstream.NewTail(stderrTail)

	cmd := environment.Command{
		Args:   args,
		Env:    resolved.env,
		Dir:    resolved.dir,
		Stdout: stdout,
		Stderr: io.MultiWriter(stderr, tail),
	}
	if sink != nil {
		cmd.Stdout = io.MultiWriter(stdout, sink)
		cmd.Stderr = io.MultiWriter(stderr, tail, sink)
	}

	code, err := env.Exec(ctx, cmd)
	stdout.Flush()
	stderr.Flush()

	if err != nil {
		return fail(-1, tail.String(), err)
	}
	if code != 0 {
		return fail(code, tail.String(), nil)
	}
	return nil
}
