package artifact

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Object store settings for [Publisher].
type PublishConfig struct {
	Endpoint     string // Host and port of the S3-compatible endpoint.
	Bucket       string // Destination bucket.
	Prefix       string // Key prefix inside the bucket.
	Region       string // Bucket region. Optional.
	AccessKey    string // Access key ID.
	SecretKey    string // Secret access key.
	Secure       bool   // Use TLS.
	CreateBucket bool   // Create the bucket when it does not exist.
}

// Validates the settings.
func (c PublishConfig) Validate() error {
	switch {
	case c.Endpoint == "":
		return fmt.Errorf("%w: missing endpoint", ErrConfig)
	case c.Bucket == "":
		return fmt.Errorf("%w: missing bucket", ErrConfig)
	case c.AccessKey == "" || c.SecretKey == "":
		return fmt.Errorf("%w: missing credentials", ErrConfig)
	}
	return nil
}

// Uploads packaged artifacts to an S3-compatible object store.
type Publisher struct {
	client *minio.Client
	cfg    PublishConfig
}

// Creates a publisher. No request is made until [Publisher.Publish].
func NewPublisher(cfg PublishConfig) (*Publisher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.Secure,
		Region:    cfg.Region,
		Transport: newTransport(),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	return &Publisher{client: client, cfg: cfg}, nil
}

// Returns the object key of an archive: <prefix>/<name>/<digest-hex>.tar.gz.
func (p *Publisher) Key(name string, packed *Packed) string {
	return path.Join(p.cfg.Prefix, name, packed.Descriptor.Digest.Encoded()+".tar.gz")
}

// Uploads the archive and its descriptor and returns the archive's
// location as an s3:// URL.
func (p *Publisher) Publish(ctx context.Context, name string, packed *Packed) (string, error) {
	if p.cfg.CreateBucket {
		if err := p.ensureBucket(ctx); err != nil {
			return "", fmt.Errorf("%w: %w", ErrPublish, err)
		}
	}

	key := p.Key(name, packed)
	meta := key[:len(key)-len(".tar.gz")] + ".descriptor.json"

	_, err := p.client.FPutObject(ctx, p.cfg.Bucket, key, packed.Archive, minio.PutObjectOptions{
		ContentType: packed.Descriptor.MediaType,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrPublish, key, err)
	}

	_, err = p.client.FPutObject(ctx, p.cfg.Bucket, meta, packed.Metadata, minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrPublish, meta, err)
	}

	location := "s3://" + path.Join(p.cfg.Bucket, key)
	slog.Info("artifact published", "location", location, "digest", packed.Descriptor.Digest)
	return location, nil
}

func (p *Publisher) ensureBucket(ctx context.Context) error {
	exists, err := p.client.BucketExists(ctx, p.cfg.Bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return p.client.MakeBucket(ctx, p.cfg.Bucket, minio.MakeBucketOptions{Region: p.cfg.Region})
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
