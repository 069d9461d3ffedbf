package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/cruciblehq/pinbuild/internal/artifact"
	"github.com/cruciblehq/pinbuild/internal/build"
	"github.com/cruciblehq/pinbuild/internal/environment"
	"github.com/cruciblehq/pinbuild/internal/recipe"
	"github.com/cruciblehq/pinbuild/internal/toolchain"
)

// Stage component names reported in [Error.Component].
const (
	ComponentDefinition   = "definition"
	ComponentEnvironment  = "environment"
	ComponentProvisioner  = "provisioner"
	ComponentConfigurator = "configurator"
	ComponentExecutor     = "executor"
	ComponentExporter     = "exporter"
	ComponentPackager     = "packager"
	ComponentPublisher    = "publisher"
)

// Prefix of environment identifiers.
const idPrefix = "pinbuild-"

// Controls a pipeline run.
type Options struct {
	Pipeline    *recipe.Pipeline       // Definition to run.
	Source      string                 // Source tree on the host.
	Output      string                 // Host directory the artifact is exported to.
	Provider    environment.Provider   // Creates the run's environment.
	Provisioner *toolchain.Provisioner // Installs the toolchain. Nil uses defaults.
	Sink        io.Writer              // Optional copy of build step output.
	Pack        bool                   // Package the export as an OCI-described archive.
	Publisher   *artifact.Publisher    // Uploads the package. Implies Pack.
}

// Returned after a successful run.
type Result struct {
	ID         string              // Environment identifier.
	Package    *build.Package      // Exported output directory.
	Structure  *artifact.Structure // Structure of the exported output.
	Descriptor *ocispec.Descriptor // Package descriptor, when packed.
	Archive    string              // Package archive path, when packed.
	Location   string              // Published location, when published.
	Duration   time.Duration       // Wall time of the run.
}

// Runs the pipeline.
//
// The run owns a new environment for its whole duration and destroys it
// before returning. On failure, the exported directory and any package
// files for this artifact are removed from the output directory, so a
// failed run never leaves a usable artifact behind.
func Run(ctx context.Context, opts Options) (result *Result, err error) {
	start := time.Now()
	def := opts.Pipeline

	if def == nil {
		return nil, &Error{Kind: KindDefinition, Component: ComponentDefinition, Err: errors.New("no pipeline")}
	}
	if err := def.Validate(); err != nil {
		return nil, &Error{Kind: KindDefinition, Component: ComponentDefinition, Subject: def.Name, Err: err}
	}

	if opts.Provider == nil {
		return nil, &Error{Kind: KindProvisioning, Component: ComponentEnvironment, Err: errors.New("no environment provider")}
	}

	provisioner := opts.Provisioner
	if provisioner == nil {
		provisioner = toolchain.New()
	}

	id := idPrefix + uuid.NewString()
	slog.Info("starting pipeline",
		"pipeline", def.Name,
		"id", id,
		"image", def.Image,
		"components", len(def.Toolchain),
		"steps", len(def.Steps),
	)

	removeOutputs(opts.Output, def.Artifact.Name)
	defer func() {
		if err != nil {
			removeOutputs(opts.Output, def.Artifact.Name)
		}
	}()

	env, err := opts.Provider.Create(ctx, environment.Spec{ID: id, Image: def.Image, Platform: def.Platform})
	if err != nil {
		return nil, &Error{Kind: KindProvisioning, Component: ComponentEnvironment, Subject: def.Image, Err: err}
	}
	defer env.Destroy(context.WithoutCancel(ctx))

	if err := provisioner.Provision(ctx, env, def.Toolchain); err != nil {
		e := &Error{Kind: KindProvisioning, Component: ComponentProvisioner, Err: err}
		var ce *toolchain.ComponentError
		if errors.As(err, &ce) {
			e.Subject = ce.Name + "@" + ce.Version
		}
		return nil, e
	}

	settings, err := build.Configure(ctx, env, opts.Source, def.Configure)
	if err != nil {
		return nil, &Error{Kind: KindConfiguration, Component: ComponentConfigurator, Subject: def.Configure.Workdir, Err: err}
	}

	if err := build.Execute(ctx, env, settings, def.Steps, opts.Sink); err != nil {
		e := &Error{Kind: KindBuildStep, Component: ComponentExecutor, Err: err}
		var se *build.StepError
		if errors.As(err, &se) {
			e.Subject = se.Name
		}
		return nil, e
	}

	pkg, err := build.Export(ctx, env, settings, def.Artifact, opts.Output)
	if err != nil {
		return nil, &Error{Kind: KindExportConsistency, Component: ComponentExporter, Subject: def.Artifact.Path, Err: err}
	}

	structure, err := artifact.Fingerprint(pkg.Path)
	if err != nil {
		return nil, &Error{Kind: KindExportConsistency, Component: ComponentExporter, Subject: pkg.Path, Err: err}
	}

	result = &Result{ID: id, Package: pkg, Structure: structure}

	if opts.Pack || opts.Publisher != nil {
		packed, err := artifact.Pack(pkg.Path, opts.Output, pkg.Name, annotations(def))
		if err != nil {
			return nil, &Error{Kind: KindPublish, Component: ComponentPackager, Subject: pkg.Name, Err: err}
		}
		result.Descriptor = &packed.Descriptor
		result.Archive = packed.Archive

		if opts.Publisher != nil {
			location, err := opts.Publisher.Publish(ctx, pkg.Name, packed)
			if err != nil {
				return nil, &Error{Kind: KindPublish, Component: ComponentPublisher, Subject: pkg.Name, Err: err}
			}
			result.Location = location
		}
	}

	result.Duration = time.Since(start)
	slog.Info("pipeline complete",
		"pipeline", def.Name,
		"artifact", pkg.Path,
		"entries", len(structure.Entries),
		"layout", structure.Digest,
		"duration", result.Duration.Round(time.Millisecond),
	)
	return result, nil
}

// Annotations recorded on packaged artifacts.
func annotations(def *recipe.Pipeline) map[string]string {
	pins := make([]string, 0, len(def.Toolchain))
	for _, p := range def.Pins() {
		pins = append(pins, p.String())
	}
	return map[string]string{
		artifact.AnnotationPipeline: def.Name,
		artifact.AnnotationPins:     strings.Join(pins, ","),
	}
}

// Removes an artifact's exported directory and package files.
func removeOutputs(outputDir, name string) {
	if outputDir == "" || name == "" {
		return
	}
	archiveName, descriptorName := artifact.PackFiles(name)
	for _, p := range []string{name, archiveName, descriptorName} {
		target := filepath.Join(outputDir, p)
		if err := os.RemoveAll(target); err != nil {
			slog.Warn("failed to remove output", "path", target, "error", err)
		}
	}
}
