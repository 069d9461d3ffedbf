package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cruciblehq/pinbuild/internal/artifact"
	"github.com/cruciblehq/pinbuild/internal/environment"
	"github.com/cruciblehq/pinbuild/internal/pipeline"
	"github.com/cruciblehq/pinbuild/internal/runtime"
	"github.com/cruciblehq/pinbuild/internal/toolchain"
)

const (
	driverHost       = "host"
	driverContainerd = "containerd"
)

// Represents the 'pinbuild run' command.
type RunCmd struct {
	DefinitionFlag `embed:""`

	Source string `help:"Source tree to build." default:"." env:"PINBUILD_SOURCE" type:"path"`
	Output string `short:"o" help:"Directory the artifact is exported to." default:"out" env:"PINBUILD_OUTPUT" type:"path"`

	Driver              string `help:"Environment driver (host, containerd)." enum:"host,containerd" default:"host" env:"PINBUILD_DRIVER"`
	EnvRoot             string `help:"Scratch root for host environments." env:"PINBUILD_ENV_ROOT" type:"path" placeholder:"DIR"`
	ContainerdAddress   string `help:"containerd socket address." default:"${containerd_address}" env:"PINBUILD_CONTAINERD_ADDRESS"`
	ContainerdNamespace string `help:"containerd namespace." default:"${containerd_namespace}" env:"PINBUILD_CONTAINERD_NAMESPACE"`
	Snapshotter         string `help:"containerd snapshotter." default:"${snapshotter}" env:"PINBUILD_SNAPSHOTTER"`

	FetchAttempts int  `help:"Download attempts per toolchain component." default:"${fetch_attempts}" env:"PINBUILD_FETCH_ATTEMPTS"`
	Pack          bool `help:"Package the artifact as an OCI-described tar.gz." env:"PINBUILD_PACK"`

	Publish publishFlags `embed:"" prefix:"publish-"`
}

// Object store flags. Publishing is enabled by setting an endpoint.
type publishFlags struct {
	Endpoint     string `help:"S3-compatible endpoint to publish the packaged artifact to." env:"PINBUILD_PUBLISH_ENDPOINT" placeholder:"HOST:PORT"`
	Bucket       string `help:"Destination bucket." env:"PINBUILD_PUBLISH_BUCKET"`
	Prefix       string `help:"Object key prefix." env:"PINBUILD_PUBLISH_PREFIX"`
	Region       string `help:"Bucket region." env:"PINBUILD_PUBLISH_REGION"`
	AccessKey    string `help:"Access key ID." env:"PINBUILD_PUBLISH_ACCESS_KEY"`
	SecretKey    string `help:"Secret access key." env:"PINBUILD_PUBLISH_SECRET_KEY"`
	Insecure     bool   `help:"Connect without TLS." env:"PINBUILD_PUBLISH_INSECURE"`
	CreateBucket bool   `help:"Create the bucket if it does not exist." env:"PINBUILD_PUBLISH_CREATE_BUCKET"`
}

func (f publishFlags) config() artifact.PublishConfig {
	return artifact.PublishConfig{
		Endpoint:     f.Endpoint,
		Bucket:       f.Bucket,
		Prefix:       f.Prefix,
		Region:       f.Region,
		AccessKey:    f.AccessKey,
		SecretKey:    f.SecretKey,
		Secure:       !f.Insecure,
		CreateBucket: f.CreateBucket,
	}
}

// Executes the run command.
//
// Prints the exported directory, then the package archive and published
// location when those were requested.
func (c *RunCmd) Run(ctx context.Context) error {
	def, err := c.load()
	if err != nil {
		return err
	}

	var publisher *artifact.Publisher
	if c.Publish.Endpoint != "" {
		publisher, err = artifact.NewPublisher(c.Publish.config())
		if err != nil {
			return &pipeline.Error{Kind: pipeline.KindPublish, Component: pipeline.ComponentPublisher, Err: err}
		}
	}

	provider, release, err := c.provider()
	if err != nil {
		return &pipeline.Error{Kind: pipeline.KindProvisioning, Component: pipeline.ComponentEnvironment, Subject: c.Driver, Err: err}
	}
	defer release()

	result, err := pipeline.Run(ctx, pipeline.Options{
		Pipeline:    def,
		Source:      c.Source,
		Output:      c.Output,
		Provider:    provider,
		Provisioner: toolchain.New(toolchain.WithAttempts(c.FetchAttempts)),
		Pack:        c.Pack,
		Publisher:   publisher,
	})
	if err != nil {
		return err
	}

	fmt.Println(result.Package.Path)
	if result.Archive != "" {
		fmt.Println(result.Archive)
	}
	if result.Location != "" {
		fmt.Println(result.Location)
	}
	return nil
}

// Creates the environment provider for the selected driver. The returned
// function releases it.
func (c *RunCmd) provider() (environment.Provider, func(), error) {
	switch c.Driver {
	case driverContainerd:
		rt, err := runtime.New(runtime.Config{
			Address:     c.ContainerdAddress,
			Namespace:   c.ContainerdNamespace,
			Snapshotter: c.Snapshotter,
		})
		if err != nil {
			return nil, nil, err
		}
		release := func() {
			if err := rt.Close(); err != nil {
				slog.Warn("failed to close containerd client", "error", err)
			}
		}
		return rt, release, nil
	default:
		return environment.NewHost(c.EnvRoot), func() {}, nil
	}
}
