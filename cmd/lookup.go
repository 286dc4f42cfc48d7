package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/pinharvest/internal/crawler"
	"github.com/JakeFAU/pinharvest/internal/pin"
)

// lookupResult is one JSON line of lookup output.
type lookupResult struct {
	ID     int         `json:"id"`
	Status string      `json:"status"`
	Record *pin.Record `json:"record,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// newLookupCmd creates the 'lookup' subcommand, which scrapes explicit identifiers without touching the dataset.
func newLookupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <id>...",
		Short: "Scrapes the given pin identifiers and prints them as JSON lines",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runLookupCommand,
	}
}

func runLookupCommand(cmd *cobra.Command, args []string) error {
	ids := make([]int, 0, len(args))
	for _, arg := range args {
		id, err := strconv.Atoi(arg)
		if err != nil || id <= 0 {
			return fmt.Errorf("invalid pin id %q", arg)
		}
		ids = append(ids, id)
	}

	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	logger := appInstance.GetLogger()
	ctx := cmd.Context()

	h, err := buildHarvester(ctx, appInstance.GetConfig(), appInstance.GetFs(), logger)
	if err != nil {
		return err
	}
	defer h.Close()

	enc := json.NewEncoder(cmd.OutOrStdout())
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		result := lookupResult{ID: id, Status: "ok"}
		rec, err := h.scraper.Scrape(ctx, id)
		switch {
		case err == nil:
			result.Record = &rec
		case errors.Is(err, crawler.ErrNotFound):
			result.Status = "not_found"
		case errors.Is(err, pin.ErrExcluded):
			result.Status = "excluded"
		default:
			result.Status = "failed"
			result.Error = err.Error()
			logger.Warn("Lookup failed", zap.Int("pin_id", id), zap.Error(err))
		}
		if err := enc.Encode(result); err != nil {
			return fmt.Errorf("write lookup result: %w", err)
		}
	}
	return nil
}
