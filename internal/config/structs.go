//nolint:lll
package config

// Config represents the complete configuration for the stereorect tool. It
// covers every command (transforms, rectify, serve) and is loaded from
// configuration files, environment variables and command-line flags.
type Config struct {
	// Global settings
	LogLevel string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose  bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	// Rectifying transform solver
	Solver SolverConfig `mapstructure:"solver" yaml:"solver" json:"solver"`

	// View fitting
	Rectify RectifyConfig `mapstructure:"rectify" yaml:"rectify" json:"rectify"`

	// Image resampling
	Resample ResampleConfig `mapstructure:"resample" yaml:"resample" json:"resample"`

	// Multi-frame processing
	Parallel ParallelConfig `mapstructure:"parallel" yaml:"parallel" json:"parallel"`

	// Output configuration
	Output OutputConfig `mapstructure:"output" yaml:"output" json:"output"`

	// Server configuration (for serve command)
	Server ServerConfig `mapstructure:"server" yaml:"server" json:"server"`
}

// SolverConfig contains the thresholds of the epipolar solver.
type SolverConfig struct {
	MinCorrespondences    int     `mapstructure:"min_correspondences" yaml:"min_correspondences" json:"min_correspondences"`
	RankTolerance         float64 `mapstructure:"rank_tolerance" yaml:"rank_tolerance" json:"rank_tolerance"`
	CollinearityTolerance float64 `mapstructure:"collinearity_tolerance" yaml:"collinearity_tolerance" json:"collinearity_tolerance"`
	MaxCoordinate         float64 `mapstructure:"max_coordinate" yaml:"max_coordinate" json:"max_coordinate"`
	InfinityTolerance     float64 `mapstructure:"infinity_tolerance" yaml:"infinity_tolerance" json:"infinity_tolerance"`
	CenterTolerance       float64 `mapstructure:"center_tolerance" yaml:"center_tolerance" json:"center_tolerance"`
	MaxCondition          float64 `mapstructure:"max_condition" yaml:"max_condition" json:"max_condition"`
	EnforceRank2          bool    `mapstructure:"enforce_rank2" yaml:"enforce_rank2" json:"enforce_rank2"`
	RejectEpipoleInside   bool    `mapstructure:"reject_epipole_inside" yaml:"reject_epipole_inside" json:"reject_epipole_inside"`
}

// RectifyConfig contains view fitting and debug settings.
type RectifyConfig struct {
	View         string `mapstructure:"view" yaml:"view" json:"view"`
	LeftHanded   bool   `mapstructure:"left_handed" yaml:"left_handed" json:"left_handed"`
	OutputWidth  int    `mapstructure:"output_width" yaml:"output_width" json:"output_width"`
	OutputHeight int    `mapstructure:"output_height" yaml:"output_height" json:"output_height"`
	MaxPixels    int    `mapstructure:"max_output_pixels" yaml:"max_output_pixels" json:"max_output_pixels"`
	DebugDir     string `mapstructure:"debug_dir" yaml:"debug_dir" json:"debug_dir"`
}

// ResampleConfig contains image resampling settings.
type ResampleConfig struct {
	Interpolation string  `mapstructure:"interpolation" yaml:"interpolation" json:"interpolation"`
	Border        string  `mapstructure:"border" yaml:"border" json:"border"`
	Fill          float64 `mapstructure:"fill" yaml:"fill" json:"fill"`
	Workers       int     `mapstructure:"workers" yaml:"workers" json:"workers"`
}

// ParallelConfig contains frame-level parallelism settings.
type ParallelConfig struct {
	MaxWorkers int `mapstructure:"max_workers" yaml:"max_workers" json:"max_workers"`
	BatchSize  int `mapstructure:"batch_size" yaml:"batch_size" json:"batch_size"`
}

// OutputConfig contains output formatting settings.
type OutputConfig struct {
	Format      string `mapstructure:"format" yaml:"format" json:"format"`
	Dir         string `mapstructure:"dir" yaml:"dir" json:"dir"`
	Suffix      string `mapstructure:"suffix" yaml:"suffix" json:"suffix"`
	ImageFormat string `mapstructure:"image_format" yaml:"image_format" json:"image_format"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host            string `mapstructure:"host" yaml:"host" json:"host"`
	Port            int    `mapstructure:"port" yaml:"port" json:"port"`
	CORSOrigin      string `mapstructure:"cors_origin" yaml:"cors_origin" json:"cors_origin"`
	MaxUploadMB     int    `mapstructure:"max_upload_mb" yaml:"max_upload_mb" json:"max_upload_mb"`
	TimeoutSec      int    `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`

	// Per-client limits (0 = unlimited)
	RateLimitPerMinute int `mapstructure:"rate_limit_per_minute" yaml:"rate_limit_per_minute" json:"rate_limit_per_minute"`
	DailyUploadMB      int `mapstructure:"daily_upload_mb" yaml:"daily_upload_mb" json:"daily_upload_mb"`
}
