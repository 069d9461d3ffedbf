package archive

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Unpacks a tar stream into destDir, creating it if needed.
//
// Directories, regular files and symlinks are materialized; other entry
// types are skipped. All writes go through an [os.Root] opened on destDir,
// so nothing lands outside it even when the stream plants symlinks. Entries
// whose name leaves destDir, or that would be written through a symlink
// created earlier, abort the extraction with [ErrUnsafePath].
func Extract(r io.Reader, destDir string) error {
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return err
	}
	root, err := os.OpenRoot(destDir)
	if err != nil {
		return err
	}
	defer root.Close()

	tr := tar.NewReader(r)

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		name, err := memberPath(hdr.Name)
		if err != nil {
			return err
		}
		if name == "." {
			continue
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := checkNoLinks(root, name); err != nil {
				return err
			}
			if err := root.MkdirAll(name, dirMode(hdr)); err != nil {
				return err
			}

		case tar.TypeReg:
			if err := checkNoLinks(root, filepath.Dir(name)); err != nil {
				return err
			}
			if err := writeRegular(root, tr, name, os.FileMode(hdr.Mode).Perm()); err != nil {
				return err
			}

		case tar.TypeSymlink:
			if err := checkNoLinks(root, filepath.Dir(name)); err != nil {
				return err
			}
			if err := mkdirParent(root, name); err != nil {
				return err
			}
			root.Remove(name)
			if err := root.Symlink(hdr.Linkname, name); err != nil {
				return err
			}

		default:
			slog.Debug("skipping archive entry", "name", hdr.Name, "type", string(hdr.Typeflag))
		}
	}
}

// Cleans an archive member name into a path relative to the destination.
// Leading slashes are dropped; names that climb out with ".." are rejected.
func memberPath(name string) (string, error) {
	p := filepath.Clean(filepath.FromSlash(name))
	p = strings.TrimLeft(p, string(filepath.Separator))
	if p == "" {
		return ".", nil
	}
	if p == ".." || strings.HasPrefix(p, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}
	return p, nil
}

// Fails if any existing component of p is a symlink.
func checkNoLinks(root *os.Root, p string) error {
	if p == "." {
		return nil
	}
	cur := ""
	for _, part := range strings.Split(p, string(filepath.Separator)) {
		cur = filepath.Join(cur, part)
		info, err := root.Lstat(cur)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return err
		}
		if info.Mode()&fs.ModeSymlink != 0 {
			return fmt.Errorf("%w: %s is a symlink", ErrUnsafePath, filepath.ToSlash(cur))
		}
	}
	return nil
}

// Creates a regular file with the given mode from the tar reader's current
// entry, creating parent directories as needed. An existing entry is removed
// first and the file is created exclusively, so a link in its place is never
// followed.
func writeRegular(root *os.Root, r io.Reader, name string, mode os.FileMode) error {
	if err := mkdirParent(root, name); err != nil {
		return err
	}
	root.Remove(name)

	f, err := root.OpenFile(name, os.O_CREATE|os.O_EXCL|os.O_WRONLY, mode)
	if err != nil {
		return err
	}

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func mkdirParent(root *os.Root, name string) error {
	dir := filepath.Dir(name)
	if dir == "." {
		return nil
	}
	return root.MkdirAll(dir, 0755)
}

// Directory permissions for an entry, never less than owner rwx.
func dirMode(hdr *tar.Header) os.FileMode {
	return os.FileMode(hdr.Mode).Perm() | 0700
}
