package main

import (
	"fmt"

	"github.com/jgoulah/usagereports/internal/config"
	"github.com/jgoulah/usagereports/internal/database"
	"github.com/jgoulah/usagereports/internal/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const defaultDBPath = "data/usage.db"

var (
	cfgFile  string
	envFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "usagereports",
	Short: "Build consortium e-resource usage reports from LibInsight",
	Long: `usagereports collects COUNTER usage statistics for every member library of the
consortium from the LibInsight API, and writes per-library overview and top-item
exports plus consortium-wide summaries and merged rankings.

It can also inspect (and re-enable) SUSHI harvest schedules in the admin console.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "dotenv file with LI_KEY, LI_SECRET, LA_USER and LA_PASS")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")
}

// getConfigPath returns the config file path
func getConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.DefaultConfigPath()
}

// loadConfig loads the configuration file and fills credentials from the environment
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return nil, err
	}
	if err := cfg.LoadEnv(envFile); err != nil {
		return nil, err
	}
	return cfg, nil
}

// saveConfig saves the configuration file
func saveConfig(cfg *config.Config) error {
	return config.Save(getConfigPath(), cfg)
}

// newLogger builds the zap logger described by the config and --log-level
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	opts := logger.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Dir:    cfg.Log.Dir,
	}
	if logLevel != "" {
		opts.Level = logLevel
	}
	log, err := logger.New(opts)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	return log, nil
}

// resolveDBPath picks the flag value, then the config value, then the default
func resolveDBPath(flagPath string, cfg *config.Config) string {
	if flagPath != "" {
		return flagPath
	}
	if cfg.Database.Path != "" {
		return cfg.Database.Path
	}
	return defaultDBPath
}

// openDB opens the database connection
func openDB(path string) (*database.DB, error) {
	db, err := database.New(path)
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", path, err)
	}
	return db, nil
}
