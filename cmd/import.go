package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/pinharvest/internal/dataset"
	"github.com/JakeFAU/pinharvest/internal/storage/postgres"
)

// newImportCmd creates the 'import' subcommand, which loads the CSV dataset into Postgres.
func newImportCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Imports the harvested dataset into Postgres",
		Long: `Reads the CSV dataset and inserts each record into the configured Postgres
table, skipping pin ids that are already present.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runImportCommand(cmd, file)
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "dataset to import (defaults to output.dataset)")
	return cmd
}

func runImportCommand(cmd *cobra.Command, file string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	cfg := appInstance.GetConfig()
	logger := appInstance.GetLogger()
	ctx := cmd.Context()

	if file == "" {
		file = cfg.Output.Dataset
	}
	records, skipped, err := dataset.New(appInstance.GetFs(), file).ReadAll()
	if err != nil {
		return fmt.Errorf("read dataset: %w", err)
	}
	if skipped > 0 {
		logger.Warn("Skipped malformed dataset rows", zap.Int("rows", skipped))
	}
	logger.Info("Importing dataset", zap.String("file", file), zap.Int("records", len(records)))

	db, err := postgres.NewPinStore(ctx, postgres.PinStoreConfig{
		DSN:      cfg.Postgres.DSN,
		Table:    cfg.Postgres.Table,
		MaxConns: cfg.Postgres.MaxConns,
	}, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.EnsureSchema(ctx); err != nil {
		return err
	}
	stats, err := db.InsertRecords(ctx, records)
	if err != nil {
		return fmt.Errorf("import records: %w", err)
	}
	logger.Info("Import finished",
		zap.Int("inserted", stats.Inserted),
		zap.Int("skipped", stats.Skipped),
		zap.Int("failed", stats.Failed),
	)
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "imported %d, skipped %d, failed %d\n", stats.Inserted, stats.Skipped, stats.Failed)
	return err
}
