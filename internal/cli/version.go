package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/containerd/platforms"
	"github.com/cruciblehq/pinbuild/internal"
)

// Prints the pinbuild version.
//
// With --short only the version number is written. Otherwise the build
// string is followed by the platform pipelines default to when the
// definition leaves it unset.
type VersionCmd struct {
	Short bool `help:"Print only the version number."`
}

func (c *VersionCmd) Run(ctx context.Context) error {
	return c.write(os.Stdout)
}

func (c *VersionCmd) write(w io.Writer) error {
	if c.Short {
		_, err := fmt.Fprintln(w, internal.Version())
		return err
	}
	_, err := fmt.Fprintf(w, "%s %s\ndefault platform: %s\n", internal.Name, internal.VersionString(), platforms.DefaultString())
	return err
}
