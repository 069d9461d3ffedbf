package recipe

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"golang.org/x/mod/semver"

	"github.com/cruciblehq/pinbuild/internal/toolchain"
)

// Pin files checked by [Pipeline.Verify] when none are named. Missing
// defaults are skipped.
var DefaultPinFiles = []string{"rust-toolchain.toml", "versions.toml"}

// A declared component version.
type Pin struct {
	Name    string
	Version string
}

func (p Pin) String() string {
	return p.Name + "@" + p.Version
}

// Returns the toolchain pins in declaration order.
func (p *Pipeline) Pins() []Pin {
	pins := make([]Pin, len(p.Toolchain))
	for i, c := range p.Toolchain {
		pins[i] = Pin{Name: c.Name, Version: c.Version}
	}
	return pins
}

// A version recorded in a pin file that disagrees with the definition.
type Drift struct {
	File     string // Pin file, relative to the source tree.
	Name     string // Component name.
	Declared string // Version in the definition. Empty when undeclared.
	Found    string // Version in the pin file.
}

func (d Drift) String() string {
	if d.Declared == "" {
		return fmt.Sprintf("%s: %s@%s is not declared in the toolchain", d.File, d.Name, d.Found)
	}
	return fmt.Sprintf("%s: %s is pinned to %s, file has %s", d.File, d.Name, d.Declared, d.Found)
}

// Layout of the TOML pin files understood by [Pipeline.Verify].
type pinFile struct {
	Toolchain struct {
		Channel string `toml:"channel"`
	} `toml:"toolchain"`
	Versions map[string]string `toml:"versions"`
}

// Compares the definition's pins against TOML pin files in sourceDir.
//
// Two layouts are read: a rustup toolchain file, whose channel is compared
// with the component installed through the rustup manager, and a
// "[versions]" table mapping component names to versions. Versions match
// when they are identical or equal as semantic versions. Components the
// files do not mention are not reported. Nothing is rewritten.
func (p *Pipeline) Verify(sourceDir string, files ...string) ([]Drift, error) {
	optional := len(files) == 0
	if optional {
		files = DefaultPinFiles
	}

	declared := make(map[string]string, len(p.Toolchain))
	var rustup string
	for _, c := range p.Toolchain {
		declared[c.Name] = c.Version
		if m, ok := c.Method.(toolchain.PackageManagerInstall); ok && m.Manager == "rustup" && rustup == "" {
			rustup = c.Name
		}
	}

	var drift []Drift
	for _, name := range files {
		data, err := os.ReadFile(filepath.Join(sourceDir, name))
		if err != nil {
			if optional && errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("%w: %w", ErrPinFile, err)
		}

		var pf pinFile
		if err := toml.Unmarshal(data, &pf); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrPinFile, name, err)
		}

		if ch := pf.Toolchain.Channel; ch != "" {
			switch {
			case rustup == "":
				drift = append(drift, Drift{File: name, Name: "rustup", Found: ch})
			case !SameVersion(declared[rustup], ch):
				drift = append(drift, Drift{File: name, Name: rustup, Declared: declared[rustup], Found: ch})
			}
		}

		for _, c := range p.Toolchain {
			found, ok := pf.Versions[c.Name]
			if ok && !SameVersion(c.Version, found) {
				drift = append(drift, Drift{File: name, Name: c.Name, Declared: c.Version, Found: found})
			}
		}
		for _, n := range sortedKeys(pf.Versions) {
			if _, ok := declared[n]; !ok {
				drift = append(drift, Drift{File: name, Name: n, Found: pf.Versions[n]})
			}
		}
	}
	return drift, nil
}

// Reports whether two pins name the same version.
func SameVersion(a, b string) bool {
	if a == b {
		return true
	}
	va, vb := canonical(a), canonical(b)
	return semver.IsValid(va) && semver.IsValid(vb) && semver.Compare(va, vb) == 0
}

func canonical(v string) string {
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}
