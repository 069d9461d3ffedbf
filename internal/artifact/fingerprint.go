package artifact

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/opencontainers/go-digest"
)

// Kind of a directory entry.
type EntryType string

const (
	EntryDir     EntryType = "dir"
	EntryFile    EntryType = "file"
	EntrySymlink EntryType = "symlink"
	EntryOther   EntryType = "other"
)

// A path inside an artifact directory.
type Entry struct {
	Path string    // Slash-separated path relative to the artifact root.
	Type EntryType // Entry kind.
}

// The directory structure of an artifact.
type Structure struct {
	Digest  digest.Digest // Digest over the sorted entry list.
	Entries []Entry       // Entries in lexical order.
}

// Empty reports whether the artifact has no entries.
func (s *Structure) Empty() bool {
	return len(s.Entries) == 0
}

// Records the structure of dir.
//
// Only paths and entry types contribute to the digest, not file contents
// or metadata, so two outputs built from the same inputs compare equal even
// when the opaque build tool embeds timestamps.
func Fingerprint(dir string) (*Structure, error) {
	s := &Structure{}
	var b strings.Builder

	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == dir {
			return nil
		}

		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}

		e := Entry{Path: filepath.ToSlash(rel), Type: entryType(d)}
		s.Entries = append(s.Entries, e)
		fmt.Fprintf(&b, "%s %s\n", e.Type, e.Path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFingerprint, err)
	}

	s.Digest = digest.FromString(b.String())
	return s, nil
}

func entryType(d fs.DirEntry) EntryType {
	switch t := d.Type(); {
	case t.IsDir():
		return EntryDir
	case t.IsRegular():
		return EntryFile
	case t&fs.ModeSymlink != 0:
		return EntrySymlink
	}
	return EntryOther
}
