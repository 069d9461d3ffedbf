package build

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/cruciblehq/pinbuild/internal/environment"
	"github.com/cruciblehq/pinbuild/internal/recipe"
)

func newEnv(t *testing.T) environment.Environment {
	t.Helper()
	env, err := environment.NewHost(t.TempDir()).Create(context.Background(), environment.Spec{ID: "build-test"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	t.Cleanup(func() { env.Destroy(context.Background()) })
	return env
}

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, data := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(data), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func readFile(t *testing.T, env environment.Environment, p string) string {
	t.Helper()
	var buf bytes.Buffer
	if err := env.CopyFrom(context.Background(), &buf, p); err != nil {
		t.Fatalf("CopyFrom %s: %v", p, err)
	}
	tr := tar.NewReader(&buf)
	if _, err := tr.Next(); err != nil {
		t.Fatal(err)
	}
	data, err := io.ReadAll(tr)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func sh(name, script string, args ...string) recipe.Step {
	return recipe.Step{Name: name, Command: "/bin/sh", Args: append([]string{"-c", script, name}, args...)}
}

func configure(t *testing.T, env environment.Environment, vars map[string]string) *Settings {
	t.Helper()
	src := writeTree(t, map[string]string{"main.src": "source"})
	settings, err := Configure(context.Background(), env, src, recipe.Configure{Workdir: "/src", Env: vars})
	if err != nil {
		t.Fatalf("Configure: %v", err)
	}
	return settings
}

func TestConfigureCopiesSource(t *testing.T) {
	env := newEnv(t)
	src := writeTree(t, map[string]string{
		"Cargo.toml":  "[package]",
		"src/main.rs": "fn main() {}",
	})

	cfg := recipe.Configure{
		Workdir:    "/work/app",
		Feature:    recipe.Variable{Var: "APP_FEATURES", Value: "featureX"},
		Provenance: recipe.Variable{Var: "APP_DEPS", Value: "local"},
		Env:        map[string]string{"RELEASE": "1"},
	}

	settings, err := Configure(context.Background(), env, src, cfg)
	if err != nil {
		t.Fatalf("Configure: %v", err)
	}

	if got := readFile(t, env, "/work/app/src/main.rs"); got != "fn main() {}" {
		t.Fatalf("main.rs = %q", got)
	}
	if got := settings.Workdir(); got != "/work/app" {
		t.Fatalf("Workdir() = %q", got)
	}

	want := map[string]string{"APP_FEATURES": "featureX", "APP_DEPS": "local", "RELEASE": "1"}
	if diff := cmp.Diff(want, settings.Env()); diff != "" {
		t.Fatalf("Env mismatch (-want +got):\n%s", diff)
	}

	cfg.Env["RELEASE"] = "0"
	if settings.Env()["RELEASE"] != "1" {
		t.Fatal("settings share the configuration map")
	}
}

func TestConfigureRejectsMissingSource(t *testing.T) {
	env := newEnv(t)

	_, err := Configure(context.Background(), env, filepath.Join(t.TempDir(), "missing"), recipe.Configure{Workdir: "/src"})
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("err = %v, want ErrConfiguration", err)
	}

	file := filepath.Join(t.TempDir(), "file")
	os.WriteFile(file, nil, 0644)
	_, err = Configure(context.Background(), env, file, recipe.Configure{Workdir: "/src"})
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("err = %v, want ErrConfiguration", err)
	}
}

func TestExecuteRunsStepsInOrder(t *testing.T) {
	env := newEnv(t)
	settings := configure(t, env, nil)

	steps := []recipe.Step{
		sh("one", `echo "$0" >> steps.log`),
		sh("two", `echo "$0" >> steps.log`),
		sh("three", `echo "$0" >> steps.log`),
	}
	if err := Execute(context.Background(), env, settings, steps, nil); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if got := readFile(t, env, "/src/steps.log"); got != "one\ntwo\nthree\n" {
		t.Fatalf("steps.log = %q", got)
	}
}

func TestExecuteVariablesVisibleAndUnchanged(t *testing.T) {
	env := newEnv(t)
	vars := map[string]string{"APP_FEATURES": "featureX", "APP_DEPS": "local"}
	settings := configure(t, env, vars)

	steps := []recipe.Step{
		sh("first", `echo "$APP_FEATURES $APP_DEPS"; export APP_FEATURES=changed`),
		sh("second", `echo "$APP_FEATURES $APP_DEPS"`),
	}

	var out bytes.Buffer
	if err := Execute(context.Background(), env, settings, steps, &out); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if got := out.String(); got != "featureX local\nfeatureX local\n" {
		t.Fatalf("output = %q", got)
	}
	if diff := cmp.Diff(vars, settings.Env()); diff != "" {
		t.Fatalf("settings changed (-want +got):\n%s", diff)
	}
}

func TestExecuteFailFast(t *testing.T) {
	env := newEnv(t)
	settings := configure(t, env, nil)

	steps := []recipe.Step{
		sh("ok", "true"),
		sh("broken", "echo bad >&2; exit 7"),
		sh("never", "touch never"),
	}

	err := Execute(context.Background(), env, settings, steps, nil)
	if !errors.Is(err, ErrStepFailed) {
		t.Fatalf("err = %v, want ErrStepFailed", err)
	}

	var stepErr *StepError
	if !errors.As(err, &stepErr) {
		t.Fatalf("err = %v, want StepError", err)
	}
	if stepErr.Index != 1 || stepErr.Name != "broken" || stepErr.ExitCode != 7 || stepErr.Stderr != "bad" {
		t.Fatalf("StepError = %+v", stepErr)
	}

	exists, err := env.Exists(context.Background(), "/src/never")
	if err != nil {
		t.Fatal(err)
	}
	if exists {
		t.Fatal("step after the failure ran")
	}
}

func TestExecuteCommandNotFound(t *testing.T) {
	env := newEnv(t)
	settings := configure(t, env, nil)

	err := Execute(context.Background(), env, settings, []recipe.Step{{Command: "no-such-tool"}}, nil)
	if !errors.Is(err, ErrStepFailed) || !errors.Is(err, environment.ErrCommandNotFound) {
		t.Fatalf("err = %v, want ErrStepFailed and ErrCommandNotFound", err)
	}
}

func TestExecuteStepDirectory(t *testing.T) {
	env := newEnv(t)
	settings := configure(t, env, nil)

	var out bytes.Buffer
	step := sh("pwd", "pwd")
	step.Dir = "sub/dir"
	if err := Execute(context.Background(), env, settings, []recipe.Step{step}, &out); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if got := strings.TrimSpace(out.String()); !strings.HasSuffix(got, "/src/sub/dir") {
		t.Fatalf("pwd = %q, want suffix /src/sub/dir", got)
	}
}

func TestExecuteObservesCancellation(t *testing.T) {
	env := newEnv(t)
	settings := configure(t, env, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Execute(ctx, env, settings, []recipe.Step{sh("never", "touch never")}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}

	if exists, _ := env.Exists(context.Background(), "/src/never"); exists {
		t.Fatal("step ran after cancellation")
	}
}

func TestExportCopiesOutput(t *testing.T) {
	env := newEnv(t)
	settings := configure(t, env, nil)

	step := sh("build", "mkdir -p dist/lib && printf wasm > dist/app.wasm && printf x > dist/lib/x.js")
	if err := Execute(context.Background(), env, settings, []recipe.Step{step}, nil); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	out := t.TempDir()
	pkg, err := Export(context.Background(), env, settings, recipe.Artifact{Path: "dist", Name: "web"}, out)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	want := &Package{Name: "web", Source: "/src/dist", Path: filepath.Join(out, "web")}
	if diff := cmp.Diff(want, pkg); diff != "" {
		t.Fatalf("Package mismatch (-want +got):\n%s", diff)
	}

	data, err := os.ReadFile(filepath.Join(out, "web", "app.wasm"))
	if err != nil || string(data) != "wasm" {
		t.Fatalf("app.wasm = %q, %v", data, err)
	}
	if _, err := os.Stat(filepath.Join(out, "web", "lib", "x.js")); err != nil {
		t.Fatal(err)
	}

	entries, err := os.ReadDir(out)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("output dir has %d entries, want 1", len(entries))
	}
}

func TestExportFollowsSymlinkedOutput(t *testing.T) {
	env := newEnv(t)
	settings := configure(t, env, nil)

	step := sh("build", "mkdir -p build/out && printf wasm > build/out/app.wasm && ln -s build/out dist")
	if err := Execute(context.Background(), env, settings, []recipe.Step{step}, nil); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	out := t.TempDir()
	pkg, err := Export(context.Background(), env, settings, recipe.Artifact{Path: "dist", Name: "web"}, out)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	info, err := os.Lstat(pkg.Path)
	if err != nil {
		t.Fatal(err)
	}
	if !info.IsDir() {
		t.Fatalf("export is %v, want a directory", info.Mode())
	}
	data, err := os.ReadFile(filepath.Join(pkg.Path, "app.wasm"))
	if err != nil || string(data) != "wasm" {
		t.Fatalf("app.wasm = %q, %v", data, err)
	}
}

func TestExportRefusesLinkOutOfEnvironment(t *testing.T) {
	env := newEnv(t)
	settings := configure(t, env, nil)

	hostDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(hostDir, "secret"), []byte("host"), 0644); err != nil {
		t.Fatal(err)
	}

	step := sh("build", `ln -s "$1" dist`, hostDir)
	if err := Execute(context.Background(), env, settings, []recipe.Step{step}, nil); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	out := t.TempDir()
	_, err := Export(context.Background(), env, settings, recipe.Artifact{Path: "dist", Name: "web"}, out)
	if !errors.Is(err, environment.ErrOutsideEnvironment) {
		t.Fatalf("err = %v, want ErrOutsideEnvironment", err)
	}
	if _, err := os.Stat(filepath.Join(out, "web")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("export present after refusal: %v", err)
	}
}

func TestExportMissingOutput(t *testing.T) {
	env := newEnv(t)
	settings := configure(t, env, nil)

	_, err := Export(context.Background(), env, settings, recipe.Artifact{Path: "dist", Name: "dist"}, t.TempDir())
	if !errors.Is(err, ErrOutputMissing) {
		t.Fatalf("err = %v, want ErrOutputMissing", err)
	}
}

func TestExportRejectsFile(t *testing.T) {
	env := newEnv(t)
	settings := configure(t, env, nil)

	_, err := Export(context.Background(), env, settings, recipe.Artifact{Path: "main.src", Name: "main"}, t.TempDir())
	if !errors.Is(err, ErrOutputMissing) {
		t.Fatalf("err = %v, want ErrOutputMissing", err)
	}
}

func TestSettingsPath(t *testing.T) {
	s := NewSettings("/src", nil)

	tests := []struct {
		in, want string
	}{
		{"", "/src"},
		{"dist", "/src/dist"},
		{"./out/../dist", "/src/dist"},
		{"/opt/out/", "/opt/out"},
	}
	for _, tt := range tests {
		if got := s.Path(tt.in); got != tt.want {
			t.Errorf("Path(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSettingsResolveReturnsCopy(t *testing.T) {
	s := NewSettings("/src", map[string]string{"A": "1"})

	resolved := s.resolve(recipe.Step{Dir: "sub"})
	resolved.env["A"] = "2"
	resolved.env["B"] = "3"

	if resolved.dir != "/src/sub" {
		t.Fatalf("dir = %q", resolved.dir)
	}
	if diff := cmp.Diff(map[string]string{"A": "1"}, s.Env()); diff != "" {
		t.Fatalf("settings changed (-want +got):\n%s", diff)
	}
}

func TestPipeTarJoinsErrors(t *testing.T) {
	produceErr := errors.New("produce")
	consumeErr := errors.New("consume")

	err := pipeTar(
		func(w io.Writer) error { return produceErr },
		func(r io.Reader) error {
			io.Copy(io.Discard, r)
			return consumeErr
		},
	)
	if !errors.Is(err, produceErr) || !errors.Is(err, consumeErr) {
		t.Fatalf("err = %v, want both errors", err)
	}

	err = pipeTar(
		func(w io.Writer) error {
			_, err := w.Write([]byte("trailing data the consumer never reads"))
			return err
		},
		func(r io.Reader) error { return nil },
	)
	if err != nil {
		t.Fatalf("err = %v, want nil", err)
	}
}
