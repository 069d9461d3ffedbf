package recipe

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path"
	"slices"

	"github.com/opencontainers/go-digest"
	"gopkg.in/yaml.v3"

	"github.com/cruciblehq/pinbuild/internal/toolchain"
)

// Working directory the source tree is copied to when none is declared.
const DefaultWorkdir = "/src"

// A validated pipeline definition.
type Pipeline struct {
	Name      string                // Pipeline name, used in logs and artifact metadata.
	Image     string                // Pinned base image reference or OCI archive path.
	Platform  string                // Target platform. Empty selects the host platform.
	Toolchain []toolchain.Component // Components in install order.
	Configure Configure             // Build-steering configuration.
	Steps     []Step                // Build commands in execution order.
	Artifact  Artifact              // Output to export.
}

// Configuration fixed by the configurator before any step runs.
type Configure struct {
	Workdir    string            // Directory the source tree is copied to.
	Feature    Variable          // Feature-selection variable. Optional.
	Provenance Variable          // Source-provenance variable. Optional.
	Env        map[string]string // Additional fixed variables.
}

// Returns every configured variable as a new map.
func (c Configure) Variables() map[string]string {
	vars := make(map[string]string, len(c.Env)+2)
	maps.Copy(vars, c.Env)
	if !c.Feature.IsZero() {
		vars[c.Feature.Var] = c.Feature.Value
	}
	if !c.Provenance.IsZero() {
		vars[c.Provenance.Var] = c.Provenance.Value
	}
	return vars
}

// A named variable and its fixed value.
type Variable struct {
	Var   string `yaml:"var"`
	Value string `yaml:"value"`
}

// Whether the variable was declared.
func (v Variable) IsZero() bool {
	return v.Var == "" && v.Value == ""
}

// Where a dependency's sources come from.
type Provenance string

const (
	ProvenanceFetch Provenance = "fetch" // Fetch the dependency afresh.
	ProvenanceLocal Provenance = "local" // Use the copy already present in the source tree.
)

// Accepted provenance tokens.
var provenances = []Provenance{ProvenanceFetch, ProvenanceLocal}

// A single build command.
type Step struct {
	Name    string   // Display name. Defaults to the command.
	Run     string   // Original "run" string, if the step was declared that way.
	Command string   // Program to run.
	Args    []string // Program arguments.
	Dir     string   // Working directory, relative to the configured workdir.
}

// Returns the program followed by its arguments.
func (s Step) Argv() []string {
	return append([]string{s.Command}, s.Args...)
}

// Returns the name used to identify the step in logs and errors.
func (s Step) Label() string {
	if s.Name != "" {
		return s.Name
	}
	return s.Command
}

// The build output to export.
type Artifact struct {
	Path string // Output directory, relative to the workdir or absolute.
	Name string // Logical export name. Defaults to the base name of Path.
}

// Reads, decodes and validates the definition at name.
func Load(name string) (*Pipeline, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRead, err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return p, nil
}

// Decodes and validates a definition.
func Parse(data []byte) (*Pipeline, error) {
	var doc document

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty document", ErrDecode)
		}
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	p, err := doc.pipeline()
	if err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Wire form of a pipeline definition.
type document struct {
	Name      string           `yaml:"name"`
	Image     string           `yaml:"image"`
	Platform  string           `yaml:"platform"`
	Toolchain []componentEntry `yaml:"toolchain"`
	Configure configureEntry   `yaml:"configure"`
	Steps     []stepEntry      `yaml:"steps"`
	Artifact  artifactEntry    `yaml:"artifact"`
}

type componentEntry struct {
	Name     string         `yaml:"name"`
	Version  string         `yaml:"version"`
	Download *downloadEntry `yaml:"download"`
	Package  *packageEntry  `yaml:"package"`
}

type downloadEntry struct {
	URL    string `yaml:"url"`
	Member string `yaml:"member"`
	Binary string `yaml:"binary"`
	Digest string `yaml:"digest"`
}

type packageEntry struct {
	Manager string   `yaml:"manager"`
	Package string   `yaml:"package"`
	Args    []string `yaml:"args"`
}

type configureEntry struct {
	Workdir    string            `yaml:"workdir"`
	Feature    Variable          `yaml:"feature"`
	Provenance Variable          `yaml:"provenance"`
	Env        map[string]string `yaml:"env"`
}

type stepEntry struct {
	Name    string   `yaml:"name"`
	Run     string   `yaml:"run"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
	Dir     string   `yaml:"dir"`
}

type artifactEntry struct {
	Path string `yaml:"path"`
	Name string `yaml:"name"`
}

// Converts the wire form into a pipeline, splitting "run" strings.
func (d *document) pipeline() (*Pipeline, error) {
	p := &Pipeline{
		Name:     d.Name,
		Image:    d.Image,
		Platform: d.Platform,
		Configure: Configure{
			Workdir:    d.Configure.Workdir,
			Feature:    d.Configure.Feature,
			Provenance: d.Configure.Provenance,
			Env:        d.Configure.Env,
		},
		Artifact: Artifact{Path: d.Artifact.Path, Name: d.Artifact.Name},
	}

	if p.Configure.Workdir == "" {
		p.Configure.Workdir = DefaultWorkdir
	}
	if p.Configure.Env == nil {
		p.Configure.Env = map[string]string{}
	}
	if p.Artifact.Name == "" && p.Artifact.Path != "" {
		p.Artifact.Name = path.Base(path.Clean(p.Artifact.Path))
	}

	for i, e := range d.Toolchain {
		c, err := e.component()
		if err != nil {
			return nil, fmt.Errorf("%w: toolchain[%d]: %w", ErrInvalid, i, err)
		}
		p.Toolchain = append(p.Toolchain, c)
	}

	vars := p.Configure.Variables()
	for i, e := range d.Steps {
		s, err := e.step(vars)
		if err != nil {
			return nil, fmt.Errorf("%w: steps[%d]: %w", ErrInvalid, i, err)
		}
		p.Steps = append(p.Steps, s)
	}

	return p, nil
}

func (e componentEntry) component() (toolchain.Component, error) {
	c := toolchain.Component{Name: e.Name, Version: e.Version}

	switch {
	case e.Download != nil && e.Package != nil:
		return c, fmt.Errorf("%s: download and package are mutually exclusive", e.Name)
	case e.Download != nil:
		c.Method = toolchain.DownloadExtract{
			URL:    e.Download.URL,
			Member: e.Download.Member,
			Binary: e.Download.Binary,
			Digest: digest.Digest(e.Download.Digest),
		}
	case e.Package != nil:
		c.Method = toolchain.PackageManagerInstall{
			Manager: e.Package.Manager,
			Package: e.Package.Package,
			Args:    e.Package.Args,
		}
	default:
		return c, fmt.Errorf("%s: one of download or package is required", e.Name)
	}
	return c, nil
}

func (e stepEntry) step(vars map[string]string) (Step, error) {
	s := Step{Name: e.Name, Run: e.Run, Command: e.Command, Args: e.Args, Dir: e.Dir}

	switch {
	case e.Run != "" && e.Command != "":
		return s, errors.New("run and command are mutually exclusive")
	case e.Run != "":
		words, err := splitRun(e.Run, vars)
		if err != nil {
			return s, err
		}
		if len(words) == 0 {
			return s, fmt.Errorf("run %q has no command", e.Run)
		}
		s.Command, s.Args = words[0], words[1:]
	case e.Command == "":
		return s, errors.New("one of run or command is required")
	}
	return s, nil
}

func sortedKeys(m map[string]string) []string {
	return slices.Sorted(maps.Keys(m))
}
