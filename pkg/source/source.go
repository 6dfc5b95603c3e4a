// Package source turns the configured MeSH release into records, going
// through the local archive and JSON cache when they exist.
package source

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/japaniel/meshdb/pkg/config"
	"github.com/japaniel/meshdb/pkg/logging"
	"github.com/japaniel/meshdb/pkg/mesh"
	"github.com/japaniel/meshdb/pkg/meshxml"
)

// Options controls which steps of acquisition are repeated.
type Options struct {
	// ForceDownload fetches the archive even if a local copy exists.
	ForceDownload bool
	// Refresh ignores an existing JSON cache and re-parses the archive.
	Refresh bool
	Logger  *zap.Logger
	// Downloader overrides the one built from the configuration.
	Downloader *Downloader
}

func (o Options) logger() *zap.Logger { return logging.OrNop(o.Logger) }

func (o Options) downloader(cfg *config.Config) *Downloader {
	if o.Downloader != nil {
		return o.Downloader
	}
	return NewDownloader(time.Duration(cfg.Download.TimeoutSeconds)*time.Second, cfg.Download.UserAgent, o.logger())
}

type target struct {
	kind      string
	url       string
	archive   string
	cachePath string
}

// Descriptors returns the descriptor records of the configured year with
// parents built.
func Descriptors(ctx context.Context, cfg *config.Config, opts Options) ([]mesh.Record, error) {
	return acquire(ctx, cfg, opts, target{
		kind:      "descriptors",
		url:       cfg.DescriptorURL(),
		archive:   cfg.DescriptorPath(),
		cachePath: cfg.DescriptorCachePath(),
	})
}

// Supplements returns the supplemental concept records of the configured year.
func Supplements(ctx context.Context, cfg *config.Config, opts Options) ([]mesh.Record, error) {
	return acquire(ctx, cfg, opts, target{
		kind:      "supplements",
		url:       cfg.SupplementURL(),
		archive:   cfg.SupplementPath(),
		cachePath: cfg.SupplementCachePath(),
	})
}

// Download makes sure both archives of the configured year are present.
func Download(ctx context.Context, cfg *config.Config, opts Options) error {
	if err := cfg.EnsureDataDir(); err != nil {
		return err
	}
	d := opts.downloader(cfg)
	if err := d.EnsureArchive(ctx, cfg.DescriptorURL(), cfg.DescriptorPath(), opts.ForceDownload); err != nil {
		return err
	}
	return d.EnsureArchive(ctx, cfg.SupplementURL(), cfg.SupplementPath(), opts.ForceDownload)
}

func acquire(ctx context.Context, cfg *config.Config, opts Options, t target) ([]mesh.Record, error) {
	log := opts.logger().With(zap.String("kind", t.kind))

	if !opts.Refresh && !opts.ForceDownload {
		recs, err := mesh.LoadCacheFile(t.cachePath)
		switch {
		case err == nil:
			log.Info("using cached records", zap.String("path", t.cachePath), zap.Int("records", len(recs)))
			return recs, nil
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("read cache %s: %w", t.cachePath, err)
		}
	}

	if err := cfg.EnsureDataDir(); err != nil {
		return nil, err
	}
	if err := opts.downloader(cfg).EnsureArchive(ctx, t.url, t.archive, opts.ForceDownload); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	recs, err := meshxml.NewParser(log).ParseFile(t.archive)
	if err != nil {
		return nil, err
	}
	mesh.BuildParents(recs)

	if err := mesh.SaveCacheFile(t.cachePath, recs); err != nil {
		return nil, fmt.Errorf("write cache %s: %w", t.cachePath, err)
	}
	log.Info("cached records",
		zap.String("path", t.cachePath),
		zap.Int("records", len(recs)),
		zap.Int("roots", len(mesh.Roots(recs))))
	return recs, nil
}
