// Package cmd defines and implements the CLI commands for the pinharvest executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/pinharvest/internal/app"
	"github.com/JakeFAU/pinharvest/internal/config"
	"github.com/JakeFAU/pinharvest/internal/logging"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the application interface that commands will use.
// This allows us to inject a test app.
type App interface {
	Close()
	GetConfig() config.Config
	GetLogger() *zap.Logger
	GetFs() afero.Fs
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(configPath string) (App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	a, err := app.New(cfg)
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(a.GetLogger())
	return a, nil
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "pinharvest",
		Short: "Harvests the pinandpop.com pin catalog into a CSV dataset.",
		Long: `pinharvest walks catalog identifiers downward from a checkpoint, extracts
each pin's fields from its page, and appends new records to a CSV dataset.
Runs are resumable: the dataset and checkpoint are re-read on start.`,
		SilenceUsage: true,

		// Builds the application before the subcommand's RunE.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cfgFile)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); env vars use the PINHARVEST_ prefix")

	cmd.AddCommand(newCrawlCmd(), newLookupCmd(), newImportCmd())
	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute runs the root command until it finishes or the process is signaled.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fatalLogger().Fatal("Command execution failed", zap.Error(err))
	}
}

// fatalLogger returns the global logger once an App has replaced it, or a
// fresh development logger when startup failed before that.
func fatalLogger() *zap.Logger {
	if l := zap.L(); l.Core().Enabled(zap.FatalLevel) {
		return l
	}
	l, err := logging.New(logging.Config{Development: true})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init failed:", err)
		os.Exit(1)
	}
	return l
}
