package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/japaniel/meshdb/pkg/logging"
)

// Downloader fetches MeSH archives over HTTP.
type Downloader struct {
	Client    *http.Client
	UserAgent string
	Logger    *zap.Logger
}

// NewDownloader returns a Downloader with the given request timeout.
func NewDownloader(timeout time.Duration, userAgent string, logger *zap.Logger) *Downloader {
	return &Downloader{
		Client:    &http.Client{Timeout: timeout},
		UserAgent: userAgent,
		Logger:    logging.OrNop(logger),
	}
}

// EnsureArchive checks if the archive exists at path. If not, or when force is
// set, it downloads url to path. Failures are returned as is; there is no retry.
func (d *Downloader) EnsureArchive(ctx context.Context, url, path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			logging.OrNop(d.Logger).Debug("archive present", zap.String("path", path))
			return nil
		} else if !os.IsNotExist(err) {
			return err
		}
	}
	return d.Download(ctx, url, path)
}

// Download writes the body of url to destPath. The file only appears once the
// body has been read completely.
func (d *Downloader) Download(ctx context.Context, url, destPath string) error {
	start := time.Now()
	log := logging.OrNop(d.Logger)
	log.Info("downloading archive", zap.String("url", url), zap.String("path", destPath))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	if d.UserAgent != "" {
		req.Header.Set("User-Agent", d.UserAgent)
	}

	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s failed: %s", url, resp.Status)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(destPath), filepath.Base(destPath)+".part-*")
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, resp.Body)
	if err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write to file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), destPath); err != nil {
		return err
	}

	log.Info("downloaded archive",
		zap.String("path", destPath),
		zap.Int64("bytes", n),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}
