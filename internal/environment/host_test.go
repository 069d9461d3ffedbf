package environment

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

	"github.com/cruciblehq/pinbuild/internal/archive"
)

func newTestEnv(t *testing.T) *hostEnv {
	t.Helper()
	env, err := NewHost(t.TempDir()).Create(context.Background(), Spec{ID: "test"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	t.Cleanup(func() { env.Destroy(context.Background()) })
	return env.(*hostEnv)
}

func installScript(t *testing.T, e *hostEnv, name, body string) {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	if err := archive.WriteBytes(tw, name, 0755, []byte("#!/bin/sh\n"+body)); err != nil {
		t.Fatal(err)
	}
	tw.Close()
	if err := e.CopyTo(context.Background(), &buf, e.BinDir()); err != nil {
		t.Fatalf("CopyTo: %v", err)
	}
}

func TestHostCreateLayout(t *testing.T) {
	e := newTestEnv(t)
	if e.BinDir() != DefaultBinDir {
		t.Fatalf("BinDir = %q, want %q", e.BinDir(), DefaultBinDir)
	}
	for _, p := range []string{DefaultBinDir, "/home", "/tmp"} {
		ok, err := e.Exists(context.Background(), p)
		if err != nil || !ok {
			t.Fatalf("Exists(%q) = %v, %v", p, ok, err)
		}
	}
}

func TestHostExecUsesInstalledTool(t *testing.T) {
	e := newTestEnv(t)
	installScript(t, e, "greet", `echo "hello $WHO"`)

	var out bytes.Buffer
	code, err := e.Exec(context.Background(), Command{
		Args:   []string{"greet"},
		Env:    map[string]string{"WHO": "pinbuild"},
		Stdout: &out,
	})
	if err != nil || code != 0 {
		t.Fatalf("Exec = %d, %v", code, err)
	}
	if strings.TrimSpace(out.String()) != "hello pinbuild" {
		t.Fatalf("stdout = %q", out.String())
	}
}

func TestHostExecDoesNotInheritHostEnvironment(t *testing.T) {
	t.Setenv("PINBUILD_LEAK", "leaked")
	e := newTestEnv(t)

	var out bytes.Buffer
	code, err := e.Exec(context.Background(), Command{
		Args:   []string{"sh", "-c", `printf %s "$PINBUILD_LEAK"`},
		Stdout: &out,
	})
	if err != nil || code != 0 {
		t.Fatalf("Exec = %d, %v", code, err)
	}
	if out.Len() != 0 {
		t.Fatalf("host variable leaked into environment: %q", out.String())
	}
}

func TestHostExecNonZeroExit(t *testing.T) {
	e := newTestEnv(t)
	code, err := e.Exec(context.Background(), Command{Args: []string{"sh", "-c", "exit 7"}})
	if err != nil {
		t.Fatalf("Exec error: %v", err)
	}
	if code != 7 {
		t.Fatalf("exit = %d, want 7", code)
	}
}

func TestHostExecNotFound(t *testing.T) {
	e := newTestEnv(t)
	_, err := e.Exec(context.Background(), Command{Args: []string{"definitely-not-installed-tool"}})
	if !errors.Is(err, ErrCommandNotFound) {
		t.Fatalf("err = %v, want ErrCommandNotFound", err)
	}
}

func TestHostExecEmpty(t *testing.T) {
	e := newTestEnv(t)
	if _, err := e.Exec(context.Background(), Command{}); !errors.Is(err, ErrEmptyCommand) {
		t.Fatalf("err = %v, want ErrEmptyCommand", err)
	}
}

func TestHostExecWorkingDirectory(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	if err := e.MkdirAll(ctx, "/src"); err != nil {
		t.Fatal(err)
	}

	code, err := e.Exec(ctx, Command{Args: []string{"sh", "-c", "echo x > marker"}, Dir: "/src"})
	if err != nil || code != 0 {
		t.Fatalf("Exec = %d, %v", code, err)
	}
	if ok, _ := e.Exists(ctx, "/src/marker"); !ok {
		t.Fatal("marker not written to working directory")
	}
}

func TestHostCopyFromRoundTrip(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.MkdirAll(ctx, "/src/pkg")
	os.WriteFile(filepath.Join(e.hostPath("/src/pkg"), "out.wasm"), []byte("wasm"), 0644)

	var buf bytes.Buffer
	if err := e.CopyFrom(ctx, &buf, "/src/pkg"); err != nil {
		t.Fatalf("CopyFrom: %v", err)
	}

	dest := t.TempDir()
	if err := archive.Extract(&buf, dest); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(filepath.Join(dest, "pkg", "out.wasm"))
	if err != nil || string(data) != "wasm" {
		t.Fatalf("out.wasm = %q, %v", data, err)
	}
}

func TestHostCopyFromFollowsSymlink(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.MkdirAll(ctx, "/src/build/out")
	os.WriteFile(filepath.Join(e.hostPath("/src/build/out"), "app.wasm"), []byte("wasm"), 0644)
	if err := os.Symlink("build/out", e.hostPath("/src/dist")); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := e.CopyFrom(ctx, &buf, "/src/dist"); err != nil {
		t.Fatalf("CopyFrom: %v", err)
	}

	dest := t.TempDir()
	if err := archive.Extract(&buf, dest); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(filepath.Join(dest, "dist", "app.wasm"))
	if err != nil || string(data) != "wasm" {
		t.Fatalf("app.wasm = %q, %v", data, err)
	}
}

func TestHostCopyFromRefusesEscapingSymlink(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.MkdirAll(ctx, "/src")
	if err := os.Symlink(t.TempDir(), e.hostPath("/src/dist")); err != nil {
		t.Fatal(err)
	}

	err := e.CopyFrom(ctx, io.Discard, "/src/dist")
	if !errors.Is(err, ErrOutsideEnvironment) {
		t.Fatalf("err = %v, want ErrOutsideEnvironment", err)
	}
}

func TestHostDestroyRemovesRoot(t *testing.T) {
	env, err := NewHost(t.TempDir()).Create(context.Background(), Spec{ID: "gone"})
	if err != nil {
		t.Fatal(err)
	}
	root := env.(*hostEnv).root
	env.Destroy(context.Background())
	if _, err := os.Stat(root); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("root still present: %v", err)
	}
}

func TestHostPathStaysInsideRoot(t *testing.T) {
	e := newTestEnv(t)
	got := e.hostPath("../../etc/passwd")
	if !strings.HasPrefix(got, e.root) {
		t.Fatalf("hostPath escaped root: %q", got)
	}
}

func TestCommandEnvironSorted(t *testing.T) {
	c := Command{Env: map[string]string{"B": "2", "A": "1"}}
	got := c.Environ()
	if len(got) != 2 || got[0] != "A=1" || got[1] != "B=2" {
		t.Fatalf("Environ = %v", got)
	}
}
