package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/dayrun-org/dayrun/internal/config"
	"github.com/dayrun-org/dayrun/internal/fileutil"
	"github.com/dayrun-org/dayrun/internal/logger"
)

// Context carries the loaded configuration and a logger-bearing
// context through a command run.
type Context struct {
	context.Context
	Config *config.Config
}

// setup loads the configuration for a command and attaches the logger
// to the context. Validation is left to the caller; status must work
// even with a config the supervisor would reject.
func setup(cmd *cobra.Command) (*Context, error) {
	configFile, _ := cmd.Flags().GetString("config")
	pipelineFile, _ := cmd.Flags().GetString("pipeline")
	debug, _ := cmd.Flags().GetBool("debug")
	quiet, _ := cmd.Flags().GetBool("quiet")

	var opts []config.LoaderOption
	if configFile != "" {
		opts = append(opts, config.WithConfigFile(configFile))
	}
	if pipelineFile != "" {
		opts = append(opts, config.WithPipelineFile(pipelineFile))
	}
	cfg, err := config.NewLoader(opts...).Load()
	if err != nil {
		return nil, err
	}
	if debug {
		cfg.Debug = true
	}

	var logOpts []logger.Option
	if cfg.Debug {
		logOpts = append(logOpts, logger.WithDebug())
	}
	if quiet {
		logOpts = append(logOpts, logger.WithQuiet())
	}
	logOpts = append(logOpts, logger.WithFormat(cfg.LogFormat))

	logFile, logFileErr := openLogFile(cfg.LogDir, time.Now())
	if logFileErr == nil {
		logOpts = append(logOpts, logger.WithWriter(logFile))
	}

	ctx := logger.WithLogger(cmd.Context(), logger.NewLogger(logOpts...))
	if logFileErr != nil {
		logger.Warn(ctx, "Failed to open orchestrator log file, logging to stderr only")
	}
	for _, w := range cfg.Warnings {
		logger.Warn(ctx, w)
	}
	return &Context{Context: ctx, Config: cfg}, nil
}

// openLogFile opens the dated orchestrator log for appending. Step
// output goes to its own per-run files; this one carries the daemon's
// own log stream. The file stays open for the process lifetime.
func openLogFile(logDir string, now time.Time) (*os.File, error) {
	if err := os.MkdirAll(logDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create log dir: %w", err)
	}
	name := fmt.Sprintf("dayrun-%s.log", now.Format("20060102"))
	return fileutil.OpenOrCreateFile(filepath.Join(logDir, name))
}
