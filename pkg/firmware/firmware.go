// Package firmware fetches component firmware images.
package firmware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/go-resty/resty/v2"
)

// DefaultTimeout bounds a single image download.
const DefaultTimeout = 10 * time.Minute

// ErrDownload is returned when an image cannot be downloaded.
var ErrDownload = errors.New("firmware download failed")

// Fetcher resolves image references to local files, downloading http and
// https URLs into Dir.
type Fetcher struct {
	Dir    string
	Token  string
	Logger *slog.Logger

	client *resty.Client
}

// NewFetcher creates a fetcher that downloads into dir.
func NewFetcher(dir string) *Fetcher {
	return &Fetcher{
		Dir:    dir,
		client: resty.New().SetTimeout(DefaultTimeout),
	}
}

// IsRemote reports whether image is an http or https URL.
func IsRemote(image string) bool {
	u, err := url.Parse(image)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Resolve returns a local path for image. Local paths must exist; remote
// images are downloaded first.
func (f *Fetcher) Resolve(ctx context.Context, image string) (string, error) {
	if !IsRemote(image) {
		if _, err := os.Stat(image); err != nil {
			return "", fmt.Errorf("firmware image: %w", err)
		}
		return image, nil
	}
	return f.Download(ctx, image)
}

// Download fetches uri into Dir and returns the local path.
func (f *Fetcher) Download(ctx context.Context, uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDownload, err)
	}
	name := path.Base(u.Path)
	if name == "/" || name == "." {
		return "", fmt.Errorf("%w: no file name in %s", ErrDownload, uri)
	}
	if err := os.MkdirAll(f.Dir, 0o750); err != nil {
		return "", fmt.Errorf("%w: %v", ErrDownload, err)
	}
	dest := filepath.Join(f.Dir, name)

	client := f.client
	if client == nil {
		client = resty.New().SetTimeout(DefaultTimeout)
	}
	req := client.R().SetContext(ctx).SetOutput(dest)
	if f.Token != "" {
		req.SetAuthToken(f.Token)
	}
	resp, err := req.Get(uri)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDownload, err)
	}
	if resp.StatusCode() != http.StatusOK {
		os.Remove(dest)
		return "", fmt.Errorf("%w: %s returned %d", ErrDownload, uri, resp.StatusCode())
	}

	f.logger().Info("firmware image downloaded", "url", uri, "path", dest, "size", resp.Size())
	return dest, nil
}

func (f *Fetcher) logger() *slog.Logger {
	if f.Logger != nil {
		return f.Logger
	}
	return slog.Default()
}
