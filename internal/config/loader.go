package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	// ConfigFileName is the base name for configuration files (without extension).
	ConfigFileName = "stereorect"

	// EnvPrefix is the prefix for environment variables.
	EnvPrefix = "STEREORECT"
)

// Loader handles loading configuration from various sources.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a loader on the global viper instance, which is the one
// cobra flags are bound to.
func NewLoader() *Loader {
	return &Loader{v: viper.GetViper()}
}

// NewLoaderWithViper creates a loader on a private viper instance.
func NewLoaderWithViper(v *viper.Viper) *Loader {
	return &Loader{v: v}
}

// Load reads configuration from the search paths, environment variables
// and defaults, then validates it.
func (l *Loader) Load() (*Config, error) {
	return l.load("")
}

// LoadWithFile loads configuration from a specific file path. An empty path
// falls back to Load.
func (l *Loader) LoadWithFile(configFile string) (*Config, error) {
	return l.load(configFile)
}

func (l *Loader) load(configFile string) (*Config, error) {
	if configFile != "" {
		if _, err := os.Stat(configFile); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file does not exist: %s", configFile)
		}
		l.v.SetConfigFile(configFile)
	} else {
		l.v.SetConfigName(ConfigFileName)
		l.v.SetConfigType("yaml")
		l.addConfigPaths()
	}

	l.setupEnvironmentVariables()
	l.setDefaults()

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// No config file: defaults and environment only.
	}

	var config Config
	if err := l.v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &config, nil
}

// GetConfigFileUsed returns the path of the config file used.
func (l *Loader) GetConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// GetViper returns the underlying viper instance for advanced usage.
func (l *Loader) GetViper() *viper.Viper {
	return l.v
}

// addConfigPaths adds the standard configuration search paths.
func (l *Loader) addConfigPaths() {
	for _, p := range GetConfigSearchPaths() {
		l.v.AddConfigPath(p)
	}
}

// setupEnvironmentVariables maps keys such as server.port to STEREORECT_SERVER_PORT.
func (l *Loader) setupEnvironmentVariables() {
	l.v.SetEnvPrefix(EnvPrefix)
	l.v.AutomaticEnv()
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

// setDefaults sets default values for all configuration options.
func (l *Loader) setDefaults() {
	d := DefaultConfig()

	l.v.SetDefault("log_level", d.LogLevel)
	l.v.SetDefault("verbose", d.Verbose)

	l.v.SetDefault("solver.min_correspondences", d.Solver.MinCorrespondences)
	l.v.SetDefault("solver.rank_tolerance", d.Solver.RankTolerance)
	l.v.SetDefault("solver.collinearity_tolerance", d.Solver.CollinearityTolerance)
	l.v.SetDefault("solver.max_coordinate", d.Solver.MaxCoordinate)
	l.v.SetDefault("solver.infinity_tolerance", d.Solver.InfinityTolerance)
	l.v.SetDefault("solver.center_tolerance", d.Solver.CenterTolerance)
	l.v.SetDefault("solver.max_condition", d.Solver.MaxCondition)
	l.v.SetDefault("solver.enforce_rank2", d.Solver.EnforceRank2)
	l.v.SetDefault("solver.reject_epipole_inside", d.Solver.RejectEpipoleInside)

	l.v.SetDefault("rectify.view", d.Rectify.View)
	l.v.SetDefault("rectify.left_handed", d.Rectify.LeftHanded)
	l.v.SetDefault("rectify.output_width", d.Rectify.OutputWidth)
	l.v.SetDefault("rectify.output_height", d.Rectify.OutputHeight)
	l.v.SetDefault("rectify.max_output_pixels", d.Rectify.MaxPixels)
	l.v.SetDefault("rectify.debug_dir", d.Rectify.DebugDir)

	l.v.SetDefault("resample.interpolation", d.Resample.Interpolation)
	l.v.SetDefault("resample.border", d.Resample.Border)
	l.v.SetDefault("resample.fill", d.Resample.Fill)
	l.v.SetDefault("resample.workers", d.Resample.Workers)

	l.v.SetDefault("parallel.max_workers", d.Parallel.MaxWorkers)
	l.v.SetDefault("parallel.batch_size", d.Parallel.BatchSize)

	l.v.SetDefault("output.format", d.Output.Format)
	l.v.SetDefault("output.dir", d.Output.Dir)
	l.v.SetDefault("output.suffix", d.Output.Suffix)
	l.v.SetDefault("output.image_format", d.Output.ImageFormat)

	l.v.SetDefault("server.host", d.Server.Host)
	l.v.SetDefault("server.port", d.Server.Port)
	l.v.SetDefault("server.cors_origin", d.Server.CORSOrigin)
	l.v.SetDefault("server.max_upload_mb", d.Server.MaxUploadMB)
	l.v.SetDefault("server.timeout_sec", d.Server.TimeoutSec)
	l.v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	l.v.SetDefault("server.rate_limit_per_minute", d.Server.RateLimitPerMinute)
	l.v.SetDefault("server.daily_upload_mb", d.Server.DailyUploadMB)
}

// WriteConfigToFile writes the current configuration to a file.
func (l *Loader) WriteConfigToFile(filename string) error {
	return l.v.WriteConfigAs(filename)
}

// GenerateDefaultConfigFile writes the defaults to filename
// (stereorect.yaml when empty).
func GenerateDefaultConfigFile(filename string) error {
	loader := NewLoaderWithViper(viper.New())
	loader.setDefaults()
	if filename == "" {
		filename = ConfigFileName + ".yaml"
	}
	return loader.WriteConfigToFile(filename)
}

// GetConfigSearchPaths returns the paths where configuration files are searched.
func GetConfigSearchPaths() []string {
	paths := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, home)
	}
	if configDir, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok && configDir != "" {
		paths = append(paths, filepath.Join(configDir, "stereorect"))
	} else if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "stereorect"))
	}
	return append(paths, "/etc/stereorect")
}
