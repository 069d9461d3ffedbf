package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cruciblehq/pinbuild/internal/paths"
	"github.com/cruciblehq/pinbuild/internal/pipeline"
	"github.com/cruciblehq/pinbuild/internal/recipe"
)

// Selects the pipeline definition file.
type DefinitionFlag struct {
	File string `short:"f" help:"Pipeline definition file (default: ./pinbuild.yaml, then the user config directory)." env:"PINBUILD_FILE" type:"path" placeholder:"PATH"`
}

// Loads and validates the selected definition. Failures are reported as
// definition errors.
func (f DefinitionFlag) load() (*recipe.Pipeline, error) {
	file := paths.Definition(f.File)
	slog.Debug("loading definition", "file", file)

	def, err := recipe.Load(file)
	if err != nil {
		return nil, &pipeline.Error{Kind: pipeline.KindDefinition, Component: pipeline.ComponentDefinition, Subject: file, Err: err}
	}
	return def, nil
}

// Represents the 'pinbuild validate' command.
type ValidateCmd struct {
	DefinitionFlag `embed:""`
}

// Executes the validate command.
func (c *ValidateCmd) Run(ctx context.Context) error {
	def, err := c.load()
	if err != nil {
		return err
	}

	fmt.Printf("%s: %d components, %d steps, artifact %s\n", def.Name, len(def.Toolchain), len(def.Steps), def.Artifact.Name)
	for _, comp := range def.Toolchain {
		fmt.Printf("  %s (%s)\n", comp, comp.Method.Kind())
	}
	return nil
}

// Represents the 'pinbuild pins' command.
type PinsCmd struct {
	DefinitionFlag `embed:""`
}

// Executes the pins command.
func (c *PinsCmd) Run(ctx context.Context) error {
	def, err := c.load()
	if err != nil {
		return err
	}
	for _, p := range def.Pins() {
		fmt.Println(p)
	}
	return nil
}

// Represents the 'pinbuild verify' command.
type VerifyCmd struct {
	DefinitionFlag `embed:""`
	Source         string   `help:"Source tree containing the pin files." default:"." env:"PINBUILD_SOURCE" type:"path"`
	Files          []string `arg:"" optional:"" help:"Pin files relative to the source tree (default: rust-toolchain.toml, versions.toml)."`
}

// Executes the verify command.
//
// Every disagreement is printed. Any drift makes the command fail with a
// definition error; the files are never modified.
func (c *VerifyCmd) Run(ctx context.Context) error {
	def, err := c.load()
	if err != nil {
		return err
	}

	drift, err := def.Verify(c.Source, c.Files...)
	if err != nil {
		return &pipeline.Error{Kind: pipeline.KindDefinition, Component: "verify", Subject: c.Source, Err: err}
	}

	for _, d := range drift {
		fmt.Println(d)
	}
	if len(drift) > 0 {
		return &pipeline.Error{Kind: pipeline.KindDefinition, Component: "verify", Subject: def.Name, Err: fmt.Errorf("%d pins drifted", len(drift))}
	}

	slog.Info("pins consistent", "pipeline", def.Name)
	return nil
}
