package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/harvester/internal/common"
)

var (
	configFiles []string
	logLevel    string

	// Global state, populated before any subcommand runs
	config *common.Config
	logger arbor.ILogger
)

var rootCmd = &cobra.Command{
	Use:           "harvester",
	Short:         "Time-bounded product detail and media harvester",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup()
	},
}

func init() {
	rootCmd.PersistentFlags().StringArrayVarP(&configFiles, "config", "c", nil, "Configuration file path (can be specified multiple times, later files override earlier ones)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (overrides config)")

	rootCmd.AddCommand(harvestCmd, listingCmd, statsCmd, sessionsCmd, versionCmd)
}

// setup runs the startup sequence: config, validation, logger, banner
func setup() error {
	if len(configFiles) == 0 {
		if _, err := os.Stat("harvester.toml"); err == nil {
			configFiles = append(configFiles, "harvester.toml")
		} else if _, err := os.Stat("deployments/local/harvester.toml"); err == nil {
			configFiles = append(configFiles, "deployments/local/harvester.toml")
		}
	}

	var loadErr error
	config, loadErr = common.LoadOrDefault(configFiles...)
	if logLevel != "" {
		config.Logging.Level = logLevel
	}

	logger = common.InitLogger(config)
	if loadErr != nil {
		logger.Warn().Err(loadErr).Strs("paths", configFiles).Msg("Failed to load configuration, using defaults")
	}

	if err := common.ValidateConfig(config, logger); err != nil {
		return err
	}

	logger.Debug().
		Strs("config_files", configFiles).
		Int("run_minutes", config.Harvest.RunMinutes).
		Int("grace_minutes", config.Harvest.GraceMinutes).
		Str("store", config.Store.Path).
		Str("log_level", config.Logging.Level).
		Msg("Resolved configuration")
	return nil
}

// signalContext is cancelled on the first SIGINT/SIGTERM. Signal handling is
// then released so a second signal terminates the process.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		stop()
	}()
	return ctx, stop
}

// crashDir places crash reports next to the log file
func crashDir() string {
	if config != nil && config.Logging.File != "" {
		return filepath.Dir(config.Logging.File)
	}
	return "./logs"
}

func main() {
	defer common.RecoverWithCrashFile(crashDir)

	if err := rootCmd.Execute(); err != nil {
		if logger != nil {
			logger.Error().Err(err).Msg("Command failed")
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
