// Package app initializes and holds long-lived application services shared by the CLI commands.
package app

import (
	"errors"
	"fmt"
	"syscall"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/JakeFAU/pinharvest/internal/config"
	"github.com/JakeFAU/pinharvest/internal/logging"
)

// App holds the configuration, logger and filesystem a command runs against.
// It is built once in the root command's pre-run hook and closed after the command finishes.
type App struct {
	cfg    config.Config
	logger *zap.Logger
	fs     afero.Fs
}

// New builds the logger described by cfg and binds the OS filesystem.
func New(cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return &App{cfg: cfg, logger: logger, fs: afero.NewOsFs()}, nil
}

// NewWithDeps assembles an App from pre-built parts (primarily for testing).
func NewWithDeps(cfg config.Config, logger *zap.Logger, fs afero.Fs) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &App{cfg: cfg, logger: logger, fs: fs}
}

// GetConfig returns the validated configuration.
func (a *App) GetConfig() config.Config {
	return a.cfg
}

// GetLogger returns the shared zap logger.
func (a *App) GetLogger() *zap.Logger {
	return a.logger
}

// GetFs returns the filesystem used for the dataset, checkpoint, error log and local dumps.
func (a *App) GetFs() afero.Fs {
	return a.fs
}

// Close flushes the logger.
func (a *App) Close() {
	if a == nil || a.logger == nil {
		return
	}
	// Syncing stderr/stdout returns EINVAL or ENOTTY on most terminals.
	if err := a.logger.Sync(); err != nil && !errors.Is(err, syscall.EINVAL) && !errors.Is(err, syscall.ENOTTY) {
		a.logger.Warn("Error syncing logger on shutdown", zap.Error(err))
	}
}
