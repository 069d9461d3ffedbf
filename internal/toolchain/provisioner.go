package toolchain

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/cruciblehq/pinbuild/internal/environment"
)

const (
	DefaultAttempts = 3                      // Fetch attempts per download.
	DefaultBackoff  = 500 * time.Millisecond // Delay before the first retry.
)

// Installs toolchain components into environments.
type Provisioner struct {
	client   *http.Client
	attempts int
	backoff  time.Duration
	tempDir  string
}

// Configures a [Provisioner].
type Option func(*Provisioner)

// Sets the HTTP client used for downloads.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provisioner) {
		p.client = c
	}
}

// Sets how many times a download is attempted. Values below one are
// treated as one.
func WithAttempts(n int) Option {
	return func(p *Provisioner) {
		p.attempts = max(n, 1)
	}
}

// Sets the initial retry delay. Later delays grow exponentially.
func WithBackoff(d time.Duration) Option {
	return func(p *Provisioner) {
		p.backoff = d
	}
}

// Sets the directory downloads are staged in. Empty uses [os.TempDir].
func WithTempDir(dir string) Option {
	return func(p *Provisioner) {
		p.tempDir = dir
	}
}

// Creates a provisioner.
func New(opts ...Option) *Provisioner {
	p := &Provisioner{
		client:   http.DefaultClient,
		attempts: DefaultAttempts,
		backoff:  DefaultBackoff,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Installs components into env in declaration order.
//
// The first failure stops provisioning and is returned as a
// [*ComponentError]. Cancellation is observed between components.
func (p *Provisioner) Provision(ctx context.Context, env environment.Environment, components []Component) error {
	for _, c := range components {
		if err := ctx.Err(); err != nil {
			return &ComponentError{Name: c.Name, Version: c.Version, Err: err}
		}

		slog.Info("installing", "component", c.Name, "version", c.Version, "method", c.Method.Kind())

		if err := c.Method.install(ctx, p, env, c); err != nil {
			return &ComponentError{Name: c.Name, Version: c.Version, Err: err}
		}
	}
	return nil
}

// Downloads url to a temporary file and returns its path. Network errors,
// 5xx and 429 responses are retried with exponential backoff; other
// responses fail immediately. The caller removes the file.
func (p *Provisioner) fetch(ctx context.Context, url string) (string, error) {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.backoff
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(p.attempts-1)), ctx)

	var file string
	op := func() error {
		f, err := p.download(ctx, url)
		if err != nil {
			return err
		}
		file = f
		return nil
	}
	notify := func(err error, wait time.Duration) {
		slog.Warn("download failed, retrying", "url", url, "error", err, "wait", wait)
	}

	if err := backoff.RetryNotify(op, b, notify); err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrFetch, url, err)
	}
	return file, nil
}

// Performs a single download attempt.
func (p *Provisioner) download(ctx context.Context, url string) (string, error) {
	slog.Debug("downloading", "url", url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", backoff.Permanent(err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", backoff.Permanent(ctx.Err())
		}
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("unexpected status %s", resp.Status)
		if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
			return "", err
		}
		return "", backoff.Permanent(err)
	}

	f, err := os.CreateTemp(p.tempDir, "pinbuild-fetch-*")
	if err != nil {
		return "", backoff.Permanent(err)
	}

	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", backoff.Permanent(err)
	}
	return f.Name(), nil
}
