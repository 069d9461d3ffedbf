package build

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/cruciblehq/pinbuild/internal/archive"
	"github.com/cruciblehq/pinbuild/internal/environment"
	"github.com/cruciblehq/pinbuild/internal/paths"
	"github.com/cruciblehq/pinbuild/internal/recipe"
)

// An exported build output.
type Package struct {
	Name   string // Logical export name.
	Source string // Output directory inside the environment.
	Path   string // Exported copy on the host.
}

// Copies the build output out of the environment.
//
// The output path is resolved against the working directory. A missing
// output, or one that is not a directory, is [ErrOutputMissing]: the steps
// reported success but did not produce what the definition promised. The
// copy lands at outputDir/<name>, replacing any previous export of the
// same name. A symlinked output path is followed inside the environment.
func Export(ctx context.Context, env environment.Environment, settings *Settings, artifact recipe.Artifact, outputDir string) (*Package, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExport, err)
	}

	src := settings.Path(artifact.Path)

	exists, err := env.Exists(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExport, err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrOutputMissing, src)
	}

	if err := os.MkdirAll(outputDir, paths.DefaultDirMode); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExport, err)
	}

	staging, err := os.MkdirTemp(outputDir, ".export-")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExport, err)
	}
	defer os.RemoveAll(staging)

	err = pipeTar(
		func(w io.Writer) error {
			return env.CopyFrom(ctx, w, src)
		},
		func(r io.Reader) error {
			return archive.Extract(r, staging)
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExport, err)
	}

	entries, err := os.ReadDir(staging)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExport, err)
	}
	if len(entries) != 1 {
		return nil, fmt.Errorf("%w: %s: expected one top-level entry, got %d", ErrExport, src, len(entries))
	}
	copied := filepath.Join(staging, entries[0].Name())
	info, err := os.Lstat(copied)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExport, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrOutputMissing, src)
	}

	dest := filepath.Join(outputDir, artifact.Name)
	if err := os.RemoveAll(dest); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExport, err)
	}
	if err := os.Rename(copied, dest); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExport, err)
	}

	slog.Info("artifact exported", "name", artifact.Name, "source", src, "path", dest)

	return &Package{Name: artifact.Name, Source: src, Path: dest}, nil
}
