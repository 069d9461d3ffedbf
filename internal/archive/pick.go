package archive

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/ulikunitz/xz"
)

// Upper bound on a picked member (512 MiB). Guards against decompression
// bombs in downloaded archives.
const maxMemberBytes = 512 << 20

// Layout of a downloaded file.
type Format int

const (
	FormatRaw     Format = iota // The file is the executable itself.
	FormatTar                   // Uncompressed tar.
	FormatTarGzip               // Gzip-compressed tar (.tar.gz, .tgz).
	FormatTarXz                 // Xz-compressed tar (.tar.xz, .txz).
	FormatZip                   // Zip archive.
)

// Returns a human-readable name for the format.
func (f Format) String() string {
	switch f {
	case FormatRaw:
		return "raw"
	case FormatTar:
		return "tar"
	case FormatTarGzip:
		return "tar.gz"
	case FormatTarXz:
		return "tar.xz"
	case FormatZip:
		return "zip"
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// Infers the format from a file name or URL path. Query strings and
// fragments are ignored. Anything without a recognized archive suffix is
// treated as a raw executable.
func Detect(name string) Format {
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	name = strings.ToLower(name)

	switch {
	case strings.HasSuffix(name, ".tar.gz"), strings.HasSuffix(name, ".tgz"):
		return FormatTarGzip
	case strings.HasSuffix(name, ".tar.xz"), strings.HasSuffix(name, ".txz"):
		return FormatTarXz
	case strings.HasSuffix(name, ".tar"):
		return FormatTar
	case strings.HasSuffix(name, ".zip"):
		return FormatZip
	}
	return FormatRaw
}

// Returns the contents of the single regular-file member of the archive at
// file for which match returns true.
//
// Member names are passed to match cleaned and slash-separated with any
// leading "./" removed. Zero matches yield [ErrNoMember] and more than one
// yields [ErrAmbiguous]. For [FormatRaw] the whole file is the member and
// match is not consulted.
func Pick(file string, format Format, match func(name string) bool) ([]byte, error) {
	switch format {
	case FormatRaw:
		return readLimited(file)
	case FormatZip:
		return pickZip(file, match)
	case FormatTar, FormatTarGzip, FormatTarXz:
		return pickTar(file, format, match)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, format)
}

// Scans a possibly compressed tar archive for the matching member.
func pickTar(file string, format Format, match func(string) bool) ([]byte, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r, err := decompress(f, format)
	if err != nil {
		return nil, err
	}

	var (
		found []byte
		names []string
	)

	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}

		name := memberName(hdr.Name)
		if !match(name) {
			continue
		}

		names = append(names, name)
		if len(names) > 1 {
			return nil, fmt.Errorf("%w: %s", ErrAmbiguous, strings.Join(names, ", "))
		}

		if found, err = readMember(tr, hdr.Size); err != nil {
			return nil, err
		}
	}

	if len(names) == 0 {
		return nil, ErrNoMember
	}
	return found, nil
}

// Scans a zip archive for the matching member.
func pickZip(file string, match func(string) bool) ([]byte, error) {
	zr, err := zip.OpenReader(file)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	var hit *zip.File
	for _, zf := range zr.File {
		if !zf.Mode().IsRegular() || !match(memberName(zf.Name)) {
			continue
		}
		if hit != nil {
			return nil, fmt.Errorf("%w: %s, %s", ErrAmbiguous, memberName(hit.Name), memberName(zf.Name))
		}
		hit = zf
	}

	if hit == nil {
		return nil, ErrNoMember
	}

	rc, err := hit.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	return readMember(rc, int64(hit.UncompressedSize64))
}

// Wraps r with the decompressor for the given tar format.
func decompress(r io.Reader, format Format) (io.Reader, error) {
	switch format {
	case FormatTarGzip:
		return gzip.NewReader(r)
	case FormatTarXz:
		return xz.NewReader(r)
	}
	return r, nil
}

// Reads a member body, refusing anything above the size limit.
func readMember(r io.Reader, size int64) ([]byte, error) {
	if size > maxMemberBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrMemberTooBig, size)
	}

	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(r, maxMemberBytes+1))
	if err != nil {
		return nil, err
	}
	if n > maxMemberBytes {
		return nil, ErrMemberTooBig
	}
	return buf.Bytes(), nil
}

// Reads a whole raw file subject to the size limit.
func readLimited(file string) ([]byte, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	return readMember(f, info.Size())
}

// Normalizes a member name for matching.
func memberName(name string) string {
	return strings.TrimPrefix(path.Clean("/"+name), "/")
}
