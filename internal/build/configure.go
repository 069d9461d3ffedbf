package build

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/cruciblehq/pinbuild/internal/archive"
	"github.com/cruciblehq/pinbuild/internal/environment"
	"github.com/cruciblehq/pinbuild/internal/recipe"
)

// Copies the source tree into the environment and fixes the build
// configuration.
//
// The contents of source are placed at the configured working directory
// without transformation. The returned settings carry the working
// directory and every configured variable; they are the only channel
// through which configuration reaches the build steps.
func Configure(ctx context.Context, env environment.Environment, source string, cfg recipe.Configure) (*Settings, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	info, err := os.Stat(source)
	if err != nil {
		return nil, fmt.Errorf("%w: source: %w", ErrConfiguration, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: source %s is not a directory", ErrConfiguration, source)
	}

	if err := env.MkdirAll(ctx, cfg.Workdir); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	slog.Debug("copying source", "source", source, "workdir", cfg.Workdir)

	err = pipeTar(
		func(w io.Writer) error {
			tw := tar.NewWriter(w)
			if err := archive.WriteDir(tw, source, "", false); err != nil {
				return err
			}
			return tw.Close()
		},
		func(r io.Reader) error {
			return env.CopyTo(ctx, r, cfg.Workdir)
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%w: copy source: %w", ErrConfiguration, err)
	}

	settings := NewSettings(cfg.Workdir, cfg.Variables())

	slog.Info("environment configured", "workdir", settings.Workdir(), "variables", settings.Names())
	return settings, nil
}
