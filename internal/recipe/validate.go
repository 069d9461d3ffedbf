package recipe

import (
	"errors"
	"fmt"
	"path"
	"slices"
	"strings"

	"github.com/containerd/platforms"
	"github.com/distribution/reference"
)

// Checks the pipeline for everything that would make a run ambiguous or
// impossible before any environment is created.
func (p *Pipeline) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("%w: missing name", ErrInvalid)
	}
	if err := ValidateImage(p.Image); err != nil {
		return err
	}
	if p.Platform != "" {
		if _, err := platforms.Parse(p.Platform); err != nil {
			return fmt.Errorf("%w: platform: %w", ErrInvalid, err)
		}
	}

	seen := make(map[string]bool, len(p.Toolchain))
	for i, c := range p.Toolchain {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("%w: toolchain[%d]: %w", ErrInvalid, i, err)
		}
		if seen[c.Name] {
			return fmt.Errorf("%w: toolchain[%d]: duplicate component %q", ErrInvalid, i, c.Name)
		}
		seen[c.Name] = true
	}

	if err := p.Configure.validate(); err != nil {
		return fmt.Errorf("%w: configure: %w", ErrInvalid, err)
	}

	if len(p.Steps) == 0 {
		return fmt.Errorf("%w: no steps", ErrInvalid)
	}
	for i, s := range p.Steps {
		if s.Command == "" {
			return fmt.Errorf("%w: steps[%d]: missing command", ErrInvalid, i)
		}
	}

	if p.Artifact.Path == "" {
		return fmt.Errorf("%w: artifact: missing path", ErrInvalid)
	}
	if n := p.Artifact.Name; n == "" || n == "." || n == ".." || n == "/" || strings.Contains(n, "/") {
		return fmt.Errorf("%w: artifact: invalid name %q", ErrInvalid, n)
	}
	return nil
}

func (c Configure) validate() error {
	if !path.IsAbs(c.Workdir) {
		return fmt.Errorf("workdir %q is not absolute", c.Workdir)
	}

	names := make([]string, 0, len(c.Env)+2)

	if !c.Feature.IsZero() {
		if !isIdentifier(c.Feature.Var) {
			return fmt.Errorf("feature: invalid variable name %q", c.Feature.Var)
		}
		if c.Feature.Value == "" {
			return errors.New("feature: empty value")
		}
		if strings.ContainsAny(c.Feature.Value, ", \t\n") {
			return fmt.Errorf("feature: value %q must be a single comma-free token", c.Feature.Value)
		}
		names = append(names, c.Feature.Var)
	}

	if !c.Provenance.IsZero() {
		if !isIdentifier(c.Provenance.Var) {
			return fmt.Errorf("provenance: invalid variable name %q", c.Provenance.Var)
		}
		if !slices.Contains(provenances, Provenance(c.Provenance.Value)) {
			return fmt.Errorf("provenance: value %q is not one of %v", c.Provenance.Value, provenances)
		}
		if slices.Contains(names, c.Provenance.Var) {
			return fmt.Errorf("provenance: variable %q already declared", c.Provenance.Var)
		}
		names = append(names, c.Provenance.Var)
	}

	for k := range c.Env {
		if !isIdentifier(k) {
			return fmt.Errorf("env: invalid variable name %q", k)
		}
		if slices.Contains(names, k) {
			return fmt.Errorf("env: variable %q already declared", k)
		}
	}
	return nil
}

// Checks that an image reference names exactly one image.
//
// A reference is pinned when it carries a digest or a tag other than
// "latest". Paths ending in ".tar" name a local OCI archive and are
// accepted as they are.
func ValidateImage(image string) error {
	if image == "" {
		return fmt.Errorf("%w: missing image", ErrInvalid)
	}
	if strings.HasSuffix(image, ".tar") {
		return nil
	}

	named, err := reference.ParseNormalizedNamed(image)
	if err != nil {
		return fmt.Errorf("%w: %q: %w", ErrImageNotPinned, image, err)
	}
	if _, ok := named.(reference.Digested); ok {
		return nil
	}
	if tagged, ok := named.(reference.Tagged); ok && tagged.Tag() != "latest" {
		return nil
	}
	return fmt.Errorf("%w: %q needs a digest or an explicit version tag", ErrImageNotPinned, image)
}
