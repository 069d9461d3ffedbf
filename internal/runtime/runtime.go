package runtime

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	goruntime "runtime"
	"strings"

	containerd "github.com/containerd/containerd/v2/client"
	"github.com/containerd/containerd/v2/core/images"
	"github.com/containerd/errdefs"
	"github.com/containerd/platforms"
	"github.com/cruciblehq/pinbuild/internal/environment"
)

const (

	// Default containerd socket address.
	DefaultAddress = "/run/containerd/containerd.sock"

	// Default containerd namespace for images and containers.
	DefaultNamespace = "pinbuild"

	// Default snapshotter for container filesystems.
	DefaultSnapshotter = "overlayfs"

	// OCI runtime shim for running containers.
	ociRuntime = "io.containerd.runc.v2"
)

// Holds runtime configuration. Zero values select the defaults.
type Config struct {
	Address     string // Containerd socket address.
	Namespace   string // Containerd namespace scoping all images and containers.
	Snapshotter string // Snapshotter used to unpack images and create containers.
}

// Manages the containerd client and creates container environments.
type Runtime struct {
	client      *containerd.Client // Containerd client for managing containers and images.
	snapshotter string             // Snapshotter for unpacking and container filesystems.
}

// Creates a runtime connected to containerd. The runtime must be closed when
// no longer needed.
func New(cfg Config) (*Runtime, error) {
	if cfg.Address == "" {
		cfg.Address = DefaultAddress
	}
	if cfg.Namespace == "" {
		cfg.Namespace = DefaultNamespace
	}
	if cfg.Snapshotter == "" {
		cfg.Snapshotter = DefaultSnapshotter
	}

	client, err := containerd.New(cfg.Address, containerd.WithDefaultNamespace(cfg.Namespace))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRuntime, err)
	}
	return &Runtime{client: client, snapshotter: cfg.Snapshotter}, nil
}

// Closes the containerd client connection.
func (rt *Runtime) Close() error {
	return rt.client.Close()
}

// Starts a container environment from the requested base image.
//
// Any stale container with the same ID is removed first. The container runs
// "sleep infinity" so that later Exec calls have a task to attach to, and
// the requested install directory is placed at the front of PATH.
func (rt *Runtime) Create(ctx context.Context, spec environment.Spec) (environment.Environment, error) {
	platform := spec.Platform
	if platform == "" {
		platform = defaultPlatform()
	}

	image, err := rt.image(ctx, spec.Image, platform)
	if err != nil {
		return nil, fmt.Errorf("%w: image %s: %w", ErrRuntime, spec.Image, err)
	}

	c := &Container{
		client:      rt.client,
		id:          spec.ID,
		platform:    platform,
		binDir:      spec.InstallDir(),
		snapshotter: rt.snapshotter,
	}

	c.remove(ctx)

	ctr, err := c.create(ctx, image)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	if err := c.startTask(ctx, ctr); err != nil {
		ctr.Delete(ctx, containerd.WithSnapshotCleanup)
		return nil, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	slog.Debug("container started", "id", spec.ID, "image", spec.Image, "platform", platform)
	return c, nil
}

// Resolves a base image reference to an unpacked image for the platform.
//
// A reference naming an existing .tar file is imported as an OCI archive;
// anything else is pulled from its registry.
func (rt *Runtime) image(ctx context.Context, ref, platform string) (containerd.Image, error) {
	if isArchive(ref) {
		return rt.importImage(ctx, ref, platform)
	}

	p, err := platforms.Parse(platform)
	if err != nil {
		return nil, err
	}

	return rt.client.Pull(ctx, ref,
		containerd.WithPullUnpack,
		containerd.WithPullSnapshotter(rt.snapshotter),
		containerd.WithPlatformMatcher(platforms.Only(p)),
	)
}

// Imports an OCI archive, tags it deterministically and unpacks it.
func (rt *Runtime) importImage(ctx context.Context, path, platform string) (containerd.Image, error) {
	tag := imageTag(path)

	source, err := rt.importArchive(ctx, path)
	if err != nil {
		return nil, err
	}

	if err := rt.tagImage(ctx, source, tag); err != nil {
		return nil, err
	}

	image, err := rt.resolveImage(ctx, tag, platform)
	if err != nil {
		return nil, err
	}

	if err := image.Unpack(ctx, rt.snapshotter); err != nil {
		return nil, err
	}
	return image, nil
}

// Imports an OCI archive holding exactly one image into the content store.
func (rt *Runtime) importArchive(ctx context.Context, path string) (images.Image, error) {
	fh, err := os.Open(path)
	if err != nil {
		return images.Image{}, err
	}
	defer fh.Close()

	imported, err := rt.client.Import(ctx, fh)
	if err != nil {
		return images.Image{}, err
	}

	switch len(imported) {
	case 0:
		return images.Image{}, ErrEmptyArchive
	case 1:
		return imported[0], nil
	}
	return images.Image{}, ErrMultipleImages
}

// Tags an imported image, replacing an existing tag of the same name and
// dropping the source record when its name differs.
func (rt *Runtime) tagImage(ctx context.Context, source images.Image, tag string) error {
	is := rt.client.ImageService()

	img := images.Image{
		Name:   tag,
		Target: source.Target,
	}

	if _, err := is.Create(ctx, img); err != nil {
		if !errdefs.IsAlreadyExists(err) {
			return err
		}
		if _, err := is.Update(ctx, img, "target"); err != nil {
			return err
		}
	}

	if source.Name != tag {
		_ = is.Delete(ctx, source.Name)
	}

	return nil
}

// Looks up a tagged image bound to the manifest for the given platform.
func (rt *Runtime) resolveImage(ctx context.Context, tag, platform string) (containerd.Image, error) {
	p, err := platforms.Parse(platform)
	if err != nil {
		return nil, err
	}

	img, err := rt.client.ImageService().Get(ctx, tag)
	if err != nil {
		return nil, err
	}

	return containerd.NewImageWithPlatform(rt.client, img, platforms.Only(p)), nil
}

// Produces a valid image tag from an archive path by hashing it.
func imageTag(path string) string {
	h := sha256.Sum256([]byte(path))
	return fmt.Sprintf("import/%s:archive", hex.EncodeToString(h[:]))
}

// Whether ref names an OCI archive on the local filesystem.
func isArchive(ref string) bool {
	if !strings.HasSuffix(ref, ".tar") {
		return false
	}
	info, err := os.Stat(ref)
	return err == nil && info.Mode().IsRegular()
}

// Returns the default OCI platform for the host architecture.
func defaultPlatform() string {
	return "linux/" + goruntime.GOARCH
}
