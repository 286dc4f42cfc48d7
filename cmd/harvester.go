package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/JakeFAU/pinharvest/internal/clock/system"
	"github.com/JakeFAU/pinharvest/internal/config"
	"github.com/JakeFAU/pinharvest/internal/crawler"
	"github.com/JakeFAU/pinharvest/internal/extract"
	collyfetcher "github.com/JakeFAU/pinharvest/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/pinharvest/internal/fetcher/headless"
	"github.com/JakeFAU/pinharvest/internal/pin"
	"github.com/JakeFAU/pinharvest/internal/storage/gcs"
	"github.com/JakeFAU/pinharvest/internal/storage/local"
)

// harvester bundles the fetch-and-build pipeline shared by crawl and lookup.
type harvester struct {
	scraper *crawler.Scraper
	closers []func()
}

func (h *harvester) Close() {
	for i := len(h.closers) - 1; i >= 0; i-- {
		h.closers[i]()
	}
}

func buildHarvester(ctx context.Context, cfg config.Config, fs afero.Fs, logger *zap.Logger) (*harvester, error) {
	h := &harvester{}

	extractor, err := extract.NewExtractor(rulesFromConfig(cfg.Extract), logger)
	if err != nil {
		return nil, fmt.Errorf("init extractor: %w", err)
	}

	dumper, err := buildDumper(ctx, cfg.Debug, fs, logger, h)
	if err != nil {
		h.Close()
		return nil, err
	}

	clock := system.New()
	builder := pin.NewBuilder(pin.Config{
		BaseURL:                  cfg.Site.BaseURL,
		CanonicalPath:            cfg.Site.CanonicalPath,
		PlaceholderImage:         cfg.Record.PlaceholderImage,
		DefaultYear:              cfg.Record.DefaultYear,
		ExcludedBrands:           cfg.Record.ExcludedBrands,
		ExclusionCaseInsensitive: cfg.Record.ExclusionCaseInsensitive,
	}, extractor, dumper, clock, logger)

	fetcher := buildFetcher(cfg, logger, h)
	retrying := crawler.NewRetryingFetcher(
		fetcher,
		crawler.NewLinearRetryPolicy(cfg.HTTP.MaxAttempts, cfg.HTTP.BackoffBase),
		cfg.Crawl.RequestDelay,
		clock,
		logger,
	)
	h.scraper = crawler.NewScraper(retrying, builder, cfg.Site.BaseURL, cfg.Site.CandidatePath, cfg.Site.Headers())
	return h, nil
}

func buildFetcher(cfg config.Config, logger *zap.Logger, h *harvester) crawler.Fetcher {
	switch cfg.Fetcher.Kind {
	case "headless":
		logger.Info("Using headless fetcher", zap.Duration("navigation_timeout", cfg.Fetcher.NavigationTimeout))
		f := headlessfetcher.NewChromedp(headlessfetcher.Config{
			UserAgent:         cfg.Site.UserAgent,
			NavigationTimeout: cfg.Fetcher.NavigationTimeout,
		})
		h.closers = append(h.closers, f.Close)
		return f
	default:
		return collyfetcher.New(collyfetcher.Config{
			UserAgent: cfg.Site.UserAgent,
			Timeout:   cfg.HTTP.Timeout,
		})
	}
}

// buildDumper prefers GCS when a bucket is configured and falls back to the local directory.
func buildDumper(ctx context.Context, cfg config.DebugConfig, fs afero.Fs, logger *zap.Logger, h *harvester) (pin.Dumper, error) {
	if cfg.GCSBucket != "" {
		logger.Info("Dumping unparsed pages to GCS", zap.String("bucket", cfg.GCSBucket), zap.String("prefix", cfg.GCSPrefix))
		store, err := gcs.Dial(ctx, gcs.Config{Bucket: cfg.GCSBucket, Prefix: cfg.GCSPrefix})
		if err != nil {
			return nil, fmt.Errorf("init gcs dump store: %w", err)
		}
		h.closers = append(h.closers, func() {
			if err := store.Close(); err != nil {
				logger.Warn("Failed to close gcs client", zap.Error(err))
			}
		})
		return store, nil
	}
	store, err := local.New(fs, local.Config{BaseDir: cfg.Dir})
	if err != nil {
		return nil, fmt.Errorf("init local dump store: %w", err)
	}
	return store, nil
}

func rulesFromConfig(cfg config.ExtractConfig) extract.Rules {
	return extract.Rules{
		AssetHost:        cfg.AssetHost,
		AssetPattern:     cfg.AssetPattern,
		NameBoilerplate:  cfg.NameBoilerplate,
		OriginQualifiers: cfg.OriginQualifiers,
		TitleSuffix:      cfg.TitleSuffix,
		ThumbDir:         cfg.ThumbDir,
		FullDir:          cfg.FullDir,
		ThumbInfix:       cfg.ThumbInfix,
		ImageExt:         cfg.ImageExt,
	}
}
