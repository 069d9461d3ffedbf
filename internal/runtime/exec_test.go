package runtime

import (
	"sort"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestMergeEnv(t *testing.T) {
	tests := []struct {
		name      string
		base      []string
		overrides []string
		want      []string
	}{
		{
			name:      "override existing key",
			base:      []string{"A=1", "B=2"},
			overrides: []string{"A=override"},
			want:      []string{"A=override", "B=2"},
		},
		{
			name:      "add new key",
			base:      []string{"A=1"},
			overrides: []string{"B=2"},
			want:      []string{"A=1", "B=2"},
		},
		{
			name: "both empty",
			want: []string{},
		},
		{
			name: "value with equals sign",
			base: []string{"RUSTFLAGS=-C target-feature=+simd128"},
			want: []string{"RUSTFLAGS=-C target-feature=+simd128"},
		},
		{
			name:      "malformed entries skipped",
			base:      []string{"NOEQUALS", "A=1"},
			overrides: []string{"ALSO_BAD", "B=2"},
			want:      []string{"A=1", "B=2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mergeEnv(tt.base, tt.overrides)
			sort.Strings(got)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("mergeEnv mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPrependPath(t *testing.T) {
	tests := []struct {
		name string
		env  []string
		want []string
	}{
		{
			name: "prepend to existing",
			env:  []string{"HOME=/root", "PATH=/usr/bin:/bin"},
			want: []string{"HOME=/root", "PATH=/opt/bin:/usr/bin:/bin"},
		},
		{
			name: "already first",
			env:  []string{"PATH=/opt/bin:/usr/bin"},
			want: []string{"PATH=/opt/bin:/usr/bin"},
		},
		{
			name: "empty path",
			env:  []string{"PATH="},
			want: []string{"PATH=/opt/bin"},
		},
		{
			name: "missing path",
			env:  []string{"HOME=/root"},
			want: []string{"HOME=/root", "PATH=/opt/bin:/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, prependPath(tt.env, "/opt/bin")); diff != "" {
				t.Fatalf("prependPath mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNextExecID(t *testing.T) {
	a := nextExecID()
	b := nextExecID()
	if a == b {
		t.Fatalf("nextExecID returned duplicate: %q", a)
	}
}

func TestStdinReaderSignalsEOF(t *testing.T) {
	in := newStdinReader(strings.NewReader("hello"))
	buf := make([]byte, 3)

	if _, err := in.Read(buf); err != nil {
		t.Fatal(err)
	}
	select {
	case <-in.done:
		t.Fatal("done closed before EOF")
	default:
	}

	for {
		if _, err := in.Read(buf); err != nil {
			break
		}
	}
	select {
	case <-in.done:
	default:
		t.Fatal("done not closed after EOF")
	}
	if got := in.Bytes(); got != 5 {
		t.Errorf("Bytes() = %d, want 5", got)
	}

	// A second EOF must not panic on the closed channel.
	in.Read(buf)
}

func TestResolvedPath(t *testing.T) {
	tests := []struct {
		name    string
		out     string
		want    string
		wantErr bool
	}{
		{"symlink target", "/src/build/out\n", "/src/build/out", false},
		{"no newline", "/src/dist", "/src/dist", false},
		{"empty", "", "", true},
		{"relative", "dist\n", "", true},
		{"several lines", "/a\n/b\n", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolvedPath(tt.out, "/src/dist")
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestArchiveArgsUseResolvedBase(t *testing.T) {
	want := []string{"tar", "cf", "-", "-C", "/src/build", "out"}
	if diff := cmp.Diff(want, archiveArgs("/src/build/out")); diff != "" {
		t.Fatalf("archiveArgs mismatch (-want +got):\n%s", diff)
	}
}
