package release

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/roaddetection/identitybridge/internal/logging"
)

// maxRedirects bounds redirect chains; asset downloads redirect once to
// object storage.
const maxRedirects = 10

// Downloader fetches release assets into a cache directory. Each download
// is a single attempt.
type Downloader struct {
	client    *http.Client
	cacheDir  string
	userAgent string
	token     string
	logger    logging.Logger
}

// NewDownloader creates a new downloader
func NewDownloader(cacheDir string) *Downloader {
	return &Downloader{
		client: &http.Client{
			Timeout: DefaultTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("too many redirects")
				}
				// Never forward credentials to the storage host
				if len(via) > 0 && req.URL.Host != via[0].URL.Host {
					req.Header.Del("Authorization")
				}
				return nil
			},
		},
		cacheDir:  cacheDir,
		userAgent: DefaultUserAgent,
		logger:    logging.Nop(),
	}
}

// WithToken sets the bearer token sent to the asset host.
func (d *Downloader) WithToken(token string) *Downloader {
	d.token = token
	return d
}

// WithLogger sets the logger.
func (d *Downloader) WithLogger(logger logging.Logger) *Downloader {
	if logger != nil {
		d.logger = logger
	}
	return d
}

// CachePath returns where an asset of the release tag is stored.
func (d *Downloader) CachePath(tag string, asset *Asset) string {
	return filepath.Join(d.cacheDir, safeName(tag), safeName(asset.Name))
}

// DownloadAsset downloads asset into the cache and returns its path. A cached
// file with the expected size is reused.
func (d *Downloader) DownloadAsset(ctx context.Context, tag string, asset *Asset) (string, error) {
	if asset == nil {
		return "", fmt.Errorf("download asset: nil asset")
	}
	if asset.BrowserDownloadURL == "" {
		return "", fmt.Errorf("download %s: no download URL", asset.Name)
	}

	cachePath := d.CachePath(tag, asset)
	if cached(cachePath, asset.Size) {
		d.logger.Debug("using cached asset", "path", cachePath)
		return cachePath, nil
	}

	lock, err := AcquireCacheLock(ctx, filepath.Dir(cachePath))
	if err != nil {
		return "", fmt.Errorf("download %s: %w", asset.Name, err)
	}
	defer lock.Release()

	d.logger.Info("downloading asset", "name", asset.Name, "size", FormatSize(asset.Size))
	if err := d.DownloadToFile(ctx, asset.BrowserDownloadURL, cachePath); err != nil {
		return "", fmt.Errorf("download %s: %w", asset.Name, err)
	}
	return cachePath, nil
}

// DownloadToFile downloads a URL to destPath through a temporary file in
// the same directory, renamed into place on success.
func (d *Downloader) DownloadToFile(ctx context.Context, url, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", d.userAgent)
	req.Header.Set("Accept", "application/octet-stream")
	if d.token != "" {
		req.Header.Set("Authorization", "Bearer "+d.token)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	destDir := filepath.Dir(destPath)
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return fmt.Errorf("create dest dir: %w", err)
	}

	tmpFile, err := os.CreateTemp(destDir, filepath.Base(destPath)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	cleanupNeeded := true
	defer func() {
		tmpFile.Close()
		if cleanupNeeded {
			os.Remove(tmpPath)
		}
	}()

	if _, err := io.Copy(tmpFile, resp.Body); err != nil {
		return fmt.Errorf("copy response body: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}

	cleanupNeeded = false
	return nil
}

// cached reports whether path holds a non-empty file of the expected size.
// size <= 0 accepts any non-empty file.
func cached(path string, size int64) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() || info.Size() == 0 {
		return false
	}
	return size <= 0 || info.Size() == size
}

// safeName keeps a tag or asset name from escaping the cache directory.
func safeName(name string) string {
	name = strings.NewReplacer("/", "_", "\\", "_").Replace(name)
	if name == "" || name == "." || name == ".." {
		return "_"
	}
	return name
}
