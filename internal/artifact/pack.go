package artifact

import (
	"archive/tar"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"

	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/cruciblehq/pinbuild/internal/archive"
	"github.com/cruciblehq/pinbuild/internal/paths"
)

// Annotation keys written on packaged artifacts.
const (
	AnnotationPipeline = "dev.cruciblehq.pinbuild.pipeline" // Pipeline name.
	AnnotationPins     = "dev.cruciblehq.pinbuild.pins"     // Comma-separated name@version pins.
	AnnotationLayout   = "dev.cruciblehq.pinbuild.layout"   // Structure digest of the packed directory.
)

// A packaged artifact on disk.
type Packed struct {
	Archive    string             // Path of the .tar.gz archive.
	Descriptor ocispec.Descriptor // Content descriptor of the archive.
	Metadata   string             // Path of the JSON-encoded descriptor.
}

// Returns the archive and descriptor file names Pack writes for name.
func PackFiles(name string) (archiveName, descriptorName string) {
	return name + ".tar.gz", name + ".descriptor.json"
}

// Packages dir as destDir/<name>.tar.gz.
//
// Entries are ordered lexically under a top-level directory called name,
// with timestamps and ownership cleared, and the gzip header carries no
// name or time, so identical trees produce byte-identical archives. The
// archive is described by an OCI layer descriptor whose annotations
// include the title, the structure digest and the given annotations. The
// descriptor is also written next to the archive as JSON.
func Pack(dir, destDir, name string, annotations map[string]string) (*Packed, error) {
	structure, err := Fingerprint(dir)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(destDir, paths.DefaultDirMode); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPack, err)
	}

	archiveName, descriptorName := PackFiles(name)
	file := filepath.Join(destDir, archiveName)

	dgst, size, err := writeArchive(file, dir, name)
	if err != nil {
		os.Remove(file)
		return nil, fmt.Errorf("%w: %w", ErrPack, err)
	}

	desc := ocispec.Descriptor{
		MediaType:   ocispec.MediaTypeImageLayerGzip,
		Digest:      dgst,
		Size:        size,
		Annotations: make(map[string]string, len(annotations)+2),
	}
	maps.Copy(desc.Annotations, annotations)
	desc.Annotations[ocispec.AnnotationTitle] = archiveName
	desc.Annotations[AnnotationLayout] = structure.Digest.String()

	data, err := json.MarshalIndent(desc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPack, err)
	}
	meta := filepath.Join(destDir, descriptorName)
	if err := os.WriteFile(meta, append(data, '\n'), paths.DefaultFileMode); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPack, err)
	}

	return &Packed{Archive: file, Descriptor: desc, Metadata: meta}, nil
}

// Writes the normalized archive and returns its digest and size.
func writeArchive(file, dir, name string) (digest.Digest, int64, error) {
	f, err := os.Create(file)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	digester := digest.Canonical.Digester()
	counter := &countingWriter{}
	w := io.MultiWriter(f, digester.Hash(), counter)

	gz, err := gzip.NewWriterLevel(w, gzip.BestCompression)
	if err != nil {
		return "", 0, err
	}
	tw := tar.NewWriter(gz)

	if err := archive.WriteDir(tw, dir, name, true); err != nil {
		return "", 0, err
	}
	if err := tw.Close(); err != nil {
		return "", 0, err
	}
	if err := gz.Close(); err != nil {
		return "", 0, err
	}
	if err := f.Close(); err != nil {
		return "", 0, err
	}

	return digester.Digest(), counter.n, nil
}

type countingWriter struct {
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	c.n += int64(len(p))
	return len(p), nil
}
