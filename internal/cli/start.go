package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/prep-piper/piper/internal/config"
	"github.com/prep-piper/piper/internal/daemon"
	"github.com/prep-piper/piper/internal/logger"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the Piper interview service",
	Long: `Start the Piper interview service in the foreground.
The service accepts websocket connections and coordinates interview
sessions until it receives SIGINT or SIGTERM.`,
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := logger.New(logger.Config{
		Level:   cfg.Logging.Level,
		File:    cfg.Logging.File,
		Console: cfg.Logging.Console,
		Pretty:  cfg.Logging.Pretty,
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Close()

	d, err := daemon.New(cfg, log)
	if err != nil {
		return err
	}

	if err := d.Start(); err != nil {
		return err
	}

	d.Wait()
	return d.Stop()
}

// loadConfig loads the configuration with flag overrides applied
func loadConfig() (*config.Config, error) {
	cfg, err := config.NewLoader(cfgFile).Load()
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	return cfg, nil
}

// pidFilePath returns the PID file location for the loaded configuration
func pidFilePath(cfg *config.Config) string {
	return filepath.Join(cfg.DataDir, "piper.pid")
}
