package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/pinharvest/internal/crawler"
	"github.com/JakeFAU/pinharvest/internal/dataset"
	"github.com/JakeFAU/pinharvest/internal/id/uuid"
	"github.com/JakeFAU/pinharvest/internal/metrics"
	"github.com/JakeFAU/pinharvest/internal/store"
)

// newCrawlCmd creates the 'crawl' subcommand, which runs the resumable countdown.
func newCrawlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "crawl",
		Short: "Harvests pins until the target is reached",
		Long: `Walks identifiers downward from the checkpoint in batches, appending new
records to the dataset after every batch. Interrupting the crawl flushes the
current batch before exiting.`,
		Args: cobra.NoArgs,
		RunE: runCrawlCommand,
	}
}

func runCrawlCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	cfg := appInstance.GetConfig()
	fs := appInstance.GetFs()
	ctx := cmd.Context()

	runID, err := uuid.New().NewID()
	if err != nil {
		return err
	}
	logger := appInstance.GetLogger().With(zap.String("run_id", runID))

	if cfg.Metrics.Addr != "" {
		metricsCtx, cancelMetrics := context.WithCancel(ctx)
		defer cancelMetrics()
		go func() {
			if err := metrics.Serve(metricsCtx, cfg.Metrics.Addr, logger); err != nil {
				logger.Warn("Metrics server failed", zap.Error(err))
			}
		}()
	}

	h, err := buildHarvester(ctx, cfg, fs, logger)
	if err != nil {
		return err
	}
	defer h.Close()

	ds := dataset.New(fs, cfg.Output.Dataset)
	existing, err := ds.IDs()
	if err != nil {
		return fmt.Errorf("load dataset: %w", err)
	}
	st := store.NewFileStore(fs, cfg.Output.Checkpoint, cfg.Crawl.StartID, existing, logger)

	engine := crawler.NewEngine(crawler.EngineConfig{
		Target:               cfg.Crawl.Target,
		BatchSize:            cfg.Crawl.BatchSize,
		MinID:                cfg.Crawl.MinID,
		BatchDelay:           cfg.Crawl.BatchDelay,
		MaxConsecutiveMisses: cfg.Crawl.MaxConsecutiveMisses,
	}, h.scraper, st, ds, dataset.NewErrorLog(fs, cfg.Output.ErrorLog), logger)

	stats, err := engine.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run crawler: %w", err)
	}
	logger.Info("Crawl command finished.",
		zap.String("stop_reason", string(stats.StopReason)),
		zap.Int("collected", stats.Collected),
	)
	return nil
}
