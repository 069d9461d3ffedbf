package toolchain

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/opencontainers/go-digest"

	"github.com/cruciblehq/pinbuild/internal/archive"
	"github.com/cruciblehq/pinbuild/internal/environment"
	"github.com/cruciblehq/pinbuild/internal/paths"
)

// Placeholder in [DownloadExtract.URL] replaced by the component's version.
const VersionPlaceholder = "{version}"

// Installs a tool by downloading an archive and extracting one executable.
//
// The archive format is inferred from the URL. Members are matched by
// Member, a [path.Match] pattern tested against both the member's full path
// and its base name, so "*/bin/tool" and "tool" both work regardless of the
// top-level directory the archive uses. Without a pattern, the member whose
// base name equals the binary name is taken. Exactly one regular file must
// match.
type DownloadExtract struct {
	URL    string        // Archive location. May contain [VersionPlaceholder].
	Member string        // Optional member pattern.
	Binary string        // Installed file name. Defaults to the component name.
	Digest digest.Digest // Optional expected digest of the downloaded file.
}

func (DownloadExtract) Kind() string {
	return "download"
}

// Returns the URL with the version substituted.
func (d DownloadExtract) ResolveURL(version string) string {
	return strings.ReplaceAll(d.URL, VersionPlaceholder, version)
}

func (d DownloadExtract) binary(c Component) string {
	if d.Binary != "" {
		return d.Binary
	}
	return c.Name
}

func (d DownloadExtract) validate(c Component) error {
	if d.URL == "" {
		return fmt.Errorf("%w: missing download url", ErrInvalidComponent)
	}
	u, err := url.Parse(d.ResolveURL(c.Version))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidComponent, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: unsupported url scheme %q", ErrInvalidComponent, u.Scheme)
	}

	bin := d.binary(c)
	if strings.Contains(bin, "/") || bin == "." || bin == ".." {
		return fmt.Errorf("%w: invalid binary name %q", ErrInvalidComponent, bin)
	}

	if d.Member != "" {
		if _, err := path.Match(d.Member, ""); err != nil {
			return fmt.Errorf("%w: member pattern %q: %w", ErrInvalidComponent, d.Member, err)
		}
	}

	if d.Digest != "" {
		if err := d.Digest.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidComponent, err)
		}
	}
	return nil
}

// Reports whether an archive member is the executable to install.
func (d DownloadExtract) matcher(c Component) func(string) bool {
	if d.Member == "" {
		bin := d.binary(c)
		return func(name string) bool {
			return path.Base(name) == bin
		}
	}
	return func(name string) bool {
		if ok, _ := path.Match(d.Member, name); ok {
			return true
		}
		ok, _ := path.Match(d.Member, path.Base(name))
		return ok
	}
}

func (d DownloadExtract) install(ctx context.Context, p *Provisioner, env environment.Environment, c Component) error {
	src := d.ResolveURL(c.Version)

	file, err := p.fetch(ctx, src)
	if err != nil {
		return err
	}
	defer os.Remove(file)

	if d.Digest != "" {
		if err := verify(file, d.Digest); err != nil {
			return err
		}
	}

	format := archive.Detect(src)
	data, err := archive.Pick(file, format, d.matcher(c))
	if err != nil {
		if errors.Is(err, archive.ErrNoMember) || errors.Is(err, archive.ErrAmbiguous) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrExtract, err)
	}

	bin := d.binary(c)
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	if err := archive.WriteBytes(tw, bin, paths.ExecutableMode, data); err != nil {
		return fmt.Errorf("%w: %w", ErrExtract, err)
	}
	if err := tw.Close(); err != nil {
		return fmt.Errorf("%w: %w", ErrExtract, err)
	}

	if err := env.MkdirAll(ctx, env.BinDir()); err != nil {
		return err
	}
	if err := env.CopyTo(ctx, &buf, env.BinDir()); err != nil {
		return err
	}

	slog.Debug("installed executable",
		"component", c.Name,
		"format", format,
		"path", path.Join(env.BinDir(), bin),
		"size", len(data),
	)
	return nil
}

// Checks the file at name against an expected digest.
func verify(name string, want digest.Digest) error {
	f, err := os.Open(name)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrChecksum, err)
	}
	defer f.Close()

	v := want.Verifier()
	if _, err := io.Copy(v, f); err != nil {
		return fmt.Errorf("%w: %w", ErrChecksum, err)
	}
	if !v.Verified() {
		return fmt.Errorf("%w: expected %s", ErrChecksum, want)
	}
	return nil
}
