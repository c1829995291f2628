package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/cwbudde/cobylafit/internal/config"
)

var (
	cfgFile  string
	logLevel string
	logger   *slog.Logger
	cfg      *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "cobylafit",
	Short: "Derivative-free constrained optimization with COBYLA",
	Long: `cobylafit minimizes objectives subject to inequality constraints with
Powell's COBYLA method. Problems come from the built-in set, from
expressions on the command line, or from YAML files; runs are recorded
under the data directory.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := initConfig(); err != nil {
			return err
		}
		loaded, err := config.Load()
		if err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		cfg = loaded

		level := cfg.Logging.Level
		if logLevel != "" {
			level = logLevel
		}
		opts := &slog.HandlerOptions{Level: parseLevel(level)}
		handler := slog.NewJSONHandler(os.Stdout, opts)
		logger = slog.New(handler)
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	config.SetDefaults()

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default $XDG_CONFIG_HOME/cobylafit/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("data-dir", config.Default().Store.DataDir, "Base directory for run records")
	bindFlag("store.data_dir", rootCmd.PersistentFlags(), "data-dir")
}

// bindFlag binds a config key to a flag. A missing flag is a programming
// error.
func bindFlag(key string, flags *pflag.FlagSet, name string) {
	if err := viper.BindPFlag(key, flags.Lookup(name)); err != nil {
		panic(fmt.Sprintf("bind %s to --%s: %v", key, name, err))
	}
}

// initConfig reads the config file and environment. A missing default config
// file is not an error; a missing explicit one is.
func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
	}
	config.BindEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok && cfgFile == "" {
			return nil
		}
		return fmt.Errorf("failed to read config: %w", err)
	}
	return nil
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
