package archive

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Writes a directory tree to a tar writer rooted at the given archive prefix.
//
// Entries are visited in lexical order. When prefix is empty the root itself
// is not emitted and members are relative to it. With normalize set, headers
// carry no timestamps or ownership, so identical trees yield identical bytes.
func WriteDir(tw *tar.Writer, hostDir, prefix string, normalize bool) error {
	return filepath.WalkDir(hostDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(hostDir, path)
		if err != nil {
			return err
		}
		if rel == "." && prefix == "" {
			return nil
		}

		name := filepath.ToSlash(filepath.Join(prefix, rel))
		return writeEntry(tw, path, name, d, normalize)
	})
}

// Writes a single host file to a tar writer under the given archive name.
// Symlinks are followed; anything but a regular file is [ErrNotRegular].
func WriteFile(tw *tar.Writer, hostPath, name string) error {
	info, err := os.Stat(hostPath)
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s", ErrNotRegular, hostPath)
	}

	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	header.Name = name

	if err := tw.WriteHeader(header); err != nil {
		return err
	}

	f, err := os.Open(hostPath)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.Copy(tw, f)
	return err
}

// Writes an in-memory regular file to a tar writer.
func WriteBytes(tw *tar.Writer, name string, mode os.FileMode, data []byte) error {
	header := &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     name,
		Mode:     int64(mode.Perm()),
		Size:     int64(len(data)),
		ModTime:  time.Unix(0, 0),
	}
	if err := tw.WriteHeader(header); err != nil {
		return err
	}
	_, err := tw.Write(data)
	return err
}

// Writes one file, directory or symlink entry to a tar writer.
func writeEntry(tw *tar.Writer, hostPath, name string, d os.DirEntry, normalize bool) error {
	info, err := d.Info()
	if err != nil {
		return err
	}

	var link string
	if info.Mode()&os.ModeSymlink != 0 {
		if link, err = os.Readlink(hostPath); err != nil {
			return err
		}
	}

	header, err := tar.FileInfoHeader(info, link)
	if err != nil {
		return err
	}
	header.Name = name
	if info.IsDir() {
		header.Name += "/"
	}
	if normalize {
		normalizeHeader(header)
	}

	if err := tw.WriteHeader(header); err != nil {
		return err
	}

	if !info.Mode().IsRegular() {
		return nil
	}

	f, err := os.Open(hostPath)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.Copy(tw, f)
	return err
}

// Clears every header field that depends on when or by whom a file was
// written.
func normalizeHeader(h *tar.Header) {
	h.ModTime = time.Unix(0, 0)
	h.AccessTime = time.Time{}
	h.ChangeTime = time.Time{}
	h.Uid, h.Gid = 0, 0
	h.Uname, h.Gname = "", ""
	h.PAXRecords = nil
	h.Format = tar.FormatPAX
}
