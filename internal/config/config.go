// Package config holds the persistent CLI defaults, read through viper from
// an optional YAML file and COBYLAFIT_* environment variables.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/cwbudde/cobylafit/internal/opt"
)

// Config is the complete cobylafit configuration.
type Config struct {
	Solver    SolverConfig    `mapstructure:"solver"`
	WarmStart WarmStartConfig `mapstructure:"warm_start"`
	Store     StoreConfig     `mapstructure:"store"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// SolverConfig holds the COBYLA settings.
type SolverConfig struct {
	RhoBeg   float64       `mapstructure:"rhobeg"`
	MaxIters int           `mapstructure:"max_iters"`
	MaxTime  time.Duration `mapstructure:"max_time"`
	IPrint   int           `mapstructure:"iprint"`
	FtolRel  float64       `mapstructure:"ftol_rel"`
	FtolAbs  float64       `mapstructure:"ftol_abs"`
	XtolRel  float64       `mapstructure:"xtol_rel"`
	// XtolAbs is either empty or one entry per parameter.
	XtolAbs []float64 `mapstructure:"xtol_abs"`
}

// WarmStartConfig controls the optional mayfly search that picks x0.
type WarmStartConfig struct {
	Enabled bool  `mapstructure:"enabled"`
	Iters   int   `mapstructure:"iters"`
	PopSize int   `mapstructure:"pop_size"`
	Seed    int64 `mapstructure:"seed"`
	// Span is the half-width of the search box in units of rhobeg.
	Span float64 `mapstructure:"span"`
}

// StoreConfig controls run persistence.
type StoreConfig struct {
	DataDir string `mapstructure:"data_dir"`
	Save    bool   `mapstructure:"save"`
	Trace   bool   `mapstructure:"trace"`
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// Default returns a Config with the built-in defaults.
func Default() *Config {
	return &Config{
		Solver: SolverConfig{
			RhoBeg:   1,
			MaxIters: 1000,
			XtolRel:  1e-6,
		},
		WarmStart: WarmStartConfig{
			Enabled: false,
			Iters:   100,
			PopSize: opt.MinMayflyPop,
			Seed:    42,
			Span:    4,
		},
		Store: StoreConfig{
			DataDir: "./data",
			Save:    true,
			Trace:   true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// SetDefaults registers the defaults with viper.
func SetDefaults() {
	defaults := Default()

	viper.SetDefault("solver.rhobeg", defaults.Solver.RhoBeg)
	viper.SetDefault("solver.max_iters", defaults.Solver.MaxIters)
	viper.SetDefault("solver.max_time", defaults.Solver.MaxTime)
	viper.SetDefault("solver.iprint", defaults.Solver.IPrint)
	viper.SetDefault("solver.ftol_rel", defaults.Solver.FtolRel)
	viper.SetDefault("solver.ftol_abs", defaults.Solver.FtolAbs)
	viper.SetDefault("solver.xtol_rel", defaults.Solver.XtolRel)
	viper.SetDefault("solver.xtol_abs", defaults.Solver.XtolAbs)

	viper.SetDefault("warm_start.enabled", defaults.WarmStart.Enabled)
	viper.SetDefault("warm_start.iters", defaults.WarmStart.Iters)
	viper.SetDefault("warm_start.pop_size", defaults.WarmStart.PopSize)
	viper.SetDefault("warm_start.seed", defaults.WarmStart.Seed)
	viper.SetDefault("warm_start.span", defaults.WarmStart.Span)

	viper.SetDefault("store.data_dir", defaults.Store.DataDir)
	viper.SetDefault("store.save", defaults.Store.Save)
	viper.SetDefault("store.trace", defaults.Store.Trace)

	viper.SetDefault("logging.level", defaults.Logging.Level)
}

// EnvPrefix prefixes the environment variables viper reads, e.g.
// COBYLAFIT_SOLVER_MAX_ITERS for solver.max_iters.
const EnvPrefix = "COBYLAFIT"

// BindEnv makes viper resolve every key from the environment as well.
func BindEnv() {
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
}

// Load reads the configuration from viper and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}
	return &cfg, nil
}

// StopTols returns the tolerance settings in solver form.
func (s SolverConfig) StopTols() opt.StopTols {
	return opt.StopTols{
		FtolRel: s.FtolRel,
		FtolAbs: s.FtolAbs,
		XtolRel: s.XtolRel,
		XtolAbs: append([]float64(nil), s.XtolAbs...),
	}
}

// ConfigDir returns the user's cobylafit config directory.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "cobylafit")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".cobylafit"
	}
	return filepath.Join(home, ".config", "cobylafit")
}

// ConfigFile returns the default config file path.
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
