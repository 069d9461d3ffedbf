package recipe

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/opencontainers/go-digest"

	"github.com/cruciblehq/pinbuild/internal/toolchain"
)

const example = `
name: web-app
image: docker.io/library/debian:12.5
platform: linux/amd64
toolchain:
  - name: compiler-toolchain
    version: 1.2.3
    download:
      url: https://example.com/compiler-{version}.tar.gz
      member: "*/bin/compiler"
      binary: compiler
      digest: sha256:2c26b46b68ffc68ff99b453c1d30413413422d706483bfa0f98a5e886266e7ae
  - name: optimizer
    version: "123"
    download:
      url: https://example.com/opt-{version}
      binary: opt
  - name: codegen-cli
    version: 0.2.100
    package:
      manager: cargo
      package: codegen-cli
      args: [--force]
configure:
  workdir: /work
  feature: {var: APP_FEATURES, value: featureX}
  provenance: {var: APP_DEPS, value: local}
  env:
    RELEASE: "1"
steps:
  - name: compile
    run: compiler build --features "$APP_FEATURES" --deps=${APP_DEPS} 'a b'
  - command: opt
    args: [-O3, out/app.wasm]
    dir: out
artifact:
  path: dist
`

func TestParseExample(t *testing.T) {
	p, err := Parse([]byte(example))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	want := &Pipeline{
		Name:     "web-app",
		Image:    "docker.io/library/debian:12.5",
		Platform: "linux/amd64",
		Toolchain: []toolchain.Component{
			{Name: "compiler-toolchain", Version: "1.2.3", Method: toolchain.DownloadExtract{
				URL:    "https://example.com/compiler-{version}.tar.gz",
				Member: "*/bin/compiler",
				Binary: "compiler",
				Digest: digest.Digest("sha256:2c26b46b68ffc68ff99b453c1d30413413422d706483bfa0f98a5e886266e7ae"),
			}},
			{Name: "optimizer", Version: "123", Method: toolchain.DownloadExtract{
				URL:    "https://example.com/opt-{version}",
				Binary: "opt",
			}},
			{Name: "codegen-cli", Version: "0.2.100", Method: toolchain.PackageManagerInstall{
				Manager: "cargo",
				Package: "codegen-cli",
				Args:    []string{"--force"},
			}},
		},
		Configure: Configure{
			Workdir:    "/work",
			Feature:    Variable{Var: "APP_FEATURES", Value: "featureX"},
			Provenance: Variable{Var: "APP_DEPS", Value: "local"},
			Env:        map[string]string{"RELEASE": "1"},
		},
		Steps: []Step{
			{
				Name:    "compile",
				Run:     `compiler build --features "$APP_FEATURES" --deps=${APP_DEPS} 'a b'`,
				Command: "compiler",
				Args:    []string{"build", "--features", "featureX", "--deps=local", "a b"},
			},
			{Command: "opt", Args: []string{"-O3", "out/app.wasm"}, Dir: "out"},
		},
		Artifact: Artifact{Path: "dist", Name: "dist"},
	}

	if diff := cmp.Diff(want, p); diff != "" {
		t.Fatalf("Parse mismatch (-want +got):\n%s", diff)
	}
}

func TestParseDefaults(t *testing.T) {
	p, err := Parse([]byte(`
name: minimal
image: alpine:3.20
steps:
  - run: make
artifact:
  path: build/out
  name: bundle
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if p.Configure.Workdir != DefaultWorkdir {
		t.Errorf("Workdir = %q, want %q", p.Configure.Workdir, DefaultWorkdir)
	}
	if p.Configure.Env == nil {
		t.Error("Env is nil")
	}
	if p.Artifact.Name != "bundle" {
		t.Errorf("Artifact.Name = %q", p.Artifact.Name)
	}
	if got := p.Steps[0].Label(); got != "make" {
		t.Errorf("Label() = %q, want make", got)
	}
}

func TestParseErrors(t *testing.T) {
	base := func(mutate string) string {
		return "name: x\nimage: alpine:3.20\nartifact: {path: dist}\n" + mutate
	}

	tests := []struct {
		name string
		doc  string
		want error
	}{
		{"empty", "", ErrDecode},
		{"unknown field", base("steps: [{run: make}]\nbogus: 1\n"), ErrDecode},
		{"no steps", base(""), ErrInvalid},
		{"missing name", "image: alpine:3.20\nsteps: [{run: make}]\nartifact: {path: dist}\n", ErrInvalid},
		{"unpinned image", "name: x\nimage: alpine\nsteps: [{run: make}]\nartifact: {path: dist}\n", ErrImageNotPinned},
		{"latest image", "name: x\nimage: alpine:latest\nsteps: [{run: make}]\nartifact: {path: dist}\n", ErrImageNotPinned},
		{"missing artifact", "name: x\nimage: alpine:3.20\nsteps: [{run: make}]\n", ErrInvalid},
		{"bad platform", base("platform: \"not a/platform/x/y\"\nsteps: [{run: make}]\n"), ErrInvalid},
		{"run and command", base("steps: [{run: make, command: make}]\n"), ErrInvalid},
		{"neither run nor command", base("steps: [{name: x}]\n"), ErrInvalid},
		{"undeclared variable", base("steps: [{run: echo $HOME}]\n"), ErrUndeclaredVariable},
		{"floating pin", base("steps: [{run: make}]\ntoolchain: [{name: t, version: latest, download: {url: https://e/t}}]\n"), toolchain.ErrNotPinned},
		{"caret pin", base("steps: [{run: make}]\ntoolchain: [{name: t, version: ^1.2.3, download: {url: https://e/t}}]\n"), toolchain.ErrNotPinned},
		{"both methods", base("steps: [{run: make}]\ntoolchain: [{name: t, version: 1.0.0, download: {url: https://e/t}, package: {manager: npm, package: t}}]\n"), ErrInvalid},
		{"no method", base("steps: [{run: make}]\ntoolchain: [{name: t, version: 1.0.0}]\n"), ErrInvalid},
		{"unknown manager", base("steps: [{run: make}]\ntoolchain: [{name: t, version: 1.0.0, package: {manager: brew, package: t}}]\n"), toolchain.ErrUnknownManager},
		{"duplicate component", base("steps: [{run: make}]\ntoolchain: [{name: t, version: 1.0.0, download: {url: https://e/t}}, {name: t, version: 1.0.1, download: {url: https://e/t}}]\n"), ErrInvalid},
		{"feature with comma", base("steps: [{run: make}]\nconfigure: {feature: {var: F, value: \"a,b\"}}\n"), ErrInvalid},
		{"empty feature", base("steps: [{run: make}]\nconfigure: {feature: {var: F, value: \"\"}}\n"), ErrInvalid},
		{"bad provenance", base("steps: [{run: make}]\nconfigure: {provenance: {var: P, value: maybe}}\n"), ErrInvalid},
		{"bad variable name", base("steps: [{run: make}]\nconfigure: {env: {1X: y}}\n"), ErrInvalid},
		{"duplicate variable", base("steps: [{run: make}]\nconfigure: {feature: {var: F, value: a}, env: {F: b}}\n"), ErrInvalid},
		{"relative workdir", base("steps: [{run: make}]\nconfigure: {workdir: src}\n"), ErrInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			if !errors.Is(err, tt.want) {
				t.Fatalf("Parse() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSplitRun(t *testing.T) {
	vars := map[string]string{"F": "featureX", "EMPTY": ""}

	tests := []struct {
		run  string
		want []string
	}{
		{"make all", []string{"make", "all"}},
		{`echo "a  b" 'c d'`, []string{"echo", "a  b", "c d"}},
		{"build --features=$F", []string{"build", "--features=featureX"}},
		{"build ${F}-suffix", []string{"build", "featureX-suffix"}},
		{`build "$EMPTY"`, []string{"build", ""}},
		{"rm *.o", []string{"rm", "*.o"}},
	}

	for _, tt := range tests {
		t.Run(tt.run, func(t *testing.T) {
			got, err := splitRun(tt.run, vars)
			if err != nil {
				t.Fatalf("splitRun: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("splitRun mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSplitRunRejectsHostLookups(t *testing.T) {
	t.Setenv("PINBUILD_TEST_LEAK", "leaked")

	if _, err := splitRun("echo $PINBUILD_TEST_LEAK", nil); !errors.Is(err, ErrUndeclaredVariable) {
		t.Fatalf("err = %v, want ErrUndeclaredVariable", err)
	}
	if _, err := splitRun("echo $(date)", nil); err == nil {
		t.Fatal("command substitution accepted")
	}
}

func TestConfigureVariablesIsCopy(t *testing.T) {
	c := Configure{
		Feature: Variable{Var: "F", Value: "x"},
		Env:     map[string]string{"A": "1"},
	}
	vars := c.Variables()
	vars["A"] = "changed"
	vars["NEW"] = "y"

	if diff := cmp.Diff(map[string]string{"A": "1"}, c.Env); diff != "" {
		t.Fatalf("Env mutated (-want +got):\n%s", diff)
	}
	if got := c.Variables(); got["F"] != "x" || got["A"] != "1" || len(got) != 2 {
		t.Fatalf("Variables() = %v", got)
	}
}

func TestValidateImage(t *testing.T) {
	tests := []struct {
		image string
		ok    bool
	}{
		{"debian:12.5", true},
		{"ghcr.io/org/builder:1.0.0", true},
		{"alpine@sha256:2c26b46b68ffc68ff99b453c1d30413413422d706483bfa0f98a5e886266e7ae", true},
		{"./images/base.tar", true},
		{"alpine", false},
		{"alpine:latest", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.image, func(t *testing.T) {
			err := ValidateImage(tt.image)
			if (err == nil) != tt.ok {
				t.Fatalf("ValidateImage(%q) = %v, want ok=%v", tt.image, err, tt.ok)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "pinbuild.yaml")
	if err := os.WriteFile(name, []byte(example), 0644); err != nil {
		t.Fatal(err)
	}

	p, err := Load(name)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.Name != "web-app" {
		t.Fatalf("Name = %q", p.Name)
	}

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	if !errors.Is(err, ErrRead) {
		t.Fatalf("Load(missing) = %v, want ErrRead", err)
	}
}

func TestPins(t *testing.T) {
	p, err := Parse([]byte(example))
	if err != nil {
		t.Fatal(err)
	}

	var got []string
	for _, pin := range p.Pins() {
		got = append(got, pin.String())
	}
	want := []string{"compiler-toolchain@1.2.3", "optimizer@123", "codegen-cli@0.2.100"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Pins mismatch (-want +got):\n%s", diff)
	}
}

func TestVerify(t *testing.T) {
	p := &Pipeline{Toolchain: []toolchain.Component{
		{Name: "rust", Version: "1.85.0", Method: toolchain.PackageManagerInstall{Manager: "rustup"}},
		{Name: "optimizer", Version: "123"},
		{Name: "codegen-cli", Version: "0.2.100"},
	}}

	dir := t.TempDir()
	write := func(name, data string) {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(data), 0644); err != nil {
			t.Fatal(err)
		}
	}
	write("rust-toolchain.toml", "[toolchain]\nchannel = \"1.84.1\"\n")
	write("versions.toml", "[versions]\noptimizer = \"123\"\ncodegen-cli = \"v0.2.100\"\nextra = \"1.0.0\"\n")

	got, err := p.Verify(dir)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}

	want := []Drift{
		{File: "rust-toolchain.toml", Name: "rust", Declared: "1.85.0", Found: "1.84.1"},
		{File: "versions.toml", Name: "extra", Found: "1.0.0"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Verify mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(got[1].String(), "not declared") {
		t.Fatalf("String() = %q", got[1].String())
	}
}

func TestVerifyMissingFiles(t *testing.T) {
	p := &Pipeline{}
	dir := t.TempDir()

	got, err := p.Verify(dir)
	if err != nil || len(got) != 0 {
		t.Fatalf("Verify(defaults) = %v, %v", got, err)
	}

	if _, err := p.Verify(dir, "pins.toml"); !errors.Is(err, ErrPinFile) {
		t.Fatalf("Verify(named) = %v, want ErrPinFile", err)
	}
}

func TestSameVersion(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"1.2.3", "1.2.3", true},
		{"1.2.3", "v1.2.3", true},
		{"1.2.3", "1.2.4", false},
		{"123", "123", true},
		{"nightly-2025-01-01", "nightly-2025-01-02", false},
	}

	for _, tt := range tests {
		if got := SameVersion(tt.a, tt.b); got != tt.want {
			t.Errorf("SameVersion(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}
