package config

import (
	"fmt"
	"runtime"
	"slices"
	"strings"

	"github.com/MeKo-Tech/stereorect/internal/batch"
	"github.com/MeKo-Tech/stereorect/internal/distort"
	"github.com/MeKo-Tech/stereorect/internal/epipolar"
	"github.com/MeKo-Tech/stereorect/internal/rectify"
)

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	rc := rectify.DefaultConfig()
	return Config{
		LogLevel: "info",
		Verbose:  false,
		Solver:   fromSolverConfig(rc.Solver),
		Rectify: RectifyConfig{
			View:         rc.View.String(),
			LeftHanded:   rc.LeftHanded,
			OutputWidth:  rc.OutputWidth,
			OutputHeight: rc.OutputHeight,
			MaxPixels:    rc.MaxOutputPixels,
		},
		Resample: ResampleConfig{
			Interpolation: rc.Interpolation.String(),
			Border:        rc.Border.String(),
			Fill:          rc.FillValue,
			Workers:       rc.Workers,
		},
		Parallel: ParallelConfig{
			MaxWorkers: runtime.NumCPU(),
		},
		Output: OutputConfig{
			Format:      "text",
			Suffix:      "rect",
			ImageFormat: "png",
		},
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8080,
			CORSOrigin:      "*",
			MaxUploadMB:     50,
			TimeoutSec:      30,
			ShutdownTimeout: 10,
		},
	}
}

func fromSolverConfig(c epipolar.Config) SolverConfig {
	return SolverConfig{
		MinCorrespondences:    c.MinCorrespondences,
		RankTolerance:         c.RankTolerance,
		CollinearityTolerance: c.CollinearityTolerance,
		MaxCoordinate:         c.MaxCoordinate,
		InfinityTolerance:     c.InfinityTolerance,
		CenterTolerance:       c.CenterTolerance,
		MaxCondition:          c.MaxCondition,
		EnforceRank2:          c.EnforceRank2,
		RejectEpipoleInside:   c.RejectEpipoleInside,
	}
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}

	validFormats := []string{"text", "json", "yaml"}
	if c.Output.Format != "" && !slices.Contains(validFormats, c.Output.Format) {
		return fmt.Errorf("invalid output format: %s (must be one of: %s)", c.Output.Format, strings.Join(validFormats, ", "))
	}
	validImageFormats := []string{"png", "jpg", "jpeg", "bmp"}
	if !slices.Contains(validImageFormats, strings.ToLower(c.Output.ImageFormat)) {
		return fmt.Errorf("invalid image format: %s (must be one of: %s)", c.Output.ImageFormat, strings.Join(validImageFormats, ", "))
	}

	if _, err := c.ToRectifyConfig(); err != nil {
		return err
	}

	if c.Parallel.MaxWorkers <= 0 {
		return fmt.Errorf("invalid parallel max workers: %d (must be positive)", c.Parallel.MaxWorkers)
	}
	if c.Parallel.BatchSize < 0 {
		return fmt.Errorf("invalid parallel batch size: %d (must be non-negative)", c.Parallel.BatchSize)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be between 1 and 65535)", c.Server.Port)
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("invalid max upload size: %d (must be positive)", c.Server.MaxUploadMB)
	}
	if c.Server.TimeoutSec <= 0 {
		return fmt.Errorf("invalid timeout: %d (must be positive)", c.Server.TimeoutSec)
	}
	if c.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("invalid shutdown timeout: %d (must not be negative)", c.Server.ShutdownTimeout)
	}
	if c.Server.RateLimitPerMinute < 0 || c.Server.DailyUploadMB < 0 {
		return fmt.Errorf("invalid server limits: %d requests/min, %d MB/day (must not be negative)",
			c.Server.RateLimitPerMinute, c.Server.DailyUploadMB)
	}
	return nil
}

// ToRectifyConfig converts the config to the rectification settings.
func (c *Config) ToRectifyConfig() (rectify.Config, error) {
	cfg := rectify.DefaultConfig()
	cfg.Solver = c.toSolverConfig()

	view, err := epipolar.ParseViewMode(c.Rectify.View)
	if err != nil {
		return cfg, fmt.Errorf("invalid rectify.view: %w", err)
	}
	interp, err := distort.ParseInterpolation(c.Resample.Interpolation)
	if err != nil {
		return cfg, fmt.Errorf("invalid resample.interpolation: %w", err)
	}
	border, err := distort.ParseBorder(c.Resample.Border)
	if err != nil {
		return cfg, fmt.Errorf("invalid resample.border: %w", err)
	}

	cfg.View = view
	cfg.LeftHanded = c.Rectify.LeftHanded
	cfg.OutputWidth = c.Rectify.OutputWidth
	cfg.OutputHeight = c.Rectify.OutputHeight
	cfg.MaxOutputPixels = c.Rectify.MaxPixels
	cfg.DebugDir = c.Rectify.DebugDir
	cfg.Interpolation = interp
	cfg.Border = border
	cfg.FillValue = c.Resample.Fill
	cfg.Workers = c.Resample.Workers

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// toSolverConfig converts to epipolar.Config.
func (c *Config) toSolverConfig() epipolar.Config {
	return epipolar.Config{
		MinCorrespondences:    c.Solver.MinCorrespondences,
		RankTolerance:         c.Solver.RankTolerance,
		CollinearityTolerance: c.Solver.CollinearityTolerance,
		MaxCoordinate:         c.Solver.MaxCoordinate,
		InfinityTolerance:     c.Solver.InfinityTolerance,
		CenterTolerance:       c.Solver.CenterTolerance,
		MaxCondition:          c.Solver.MaxCondition,
		EnforceRank2:          c.Solver.EnforceRank2,
		RejectEpipoleInside:   c.Solver.RejectEpipoleInside,
	}
}

// ToParallelConfig converts to rectify.ParallelConfig.
func (c *Config) ToParallelConfig() rectify.ParallelConfig {
	return rectify.ParallelConfig{MaxWorkers: c.Parallel.MaxWorkers}
}

// ToBatchConfig converts to batch.Config.
func (c *Config) ToBatchConfig() batch.Config {
	return batch.Config{
		OutputDir:   c.Output.Dir,
		Suffix:      c.Output.Suffix,
		ImageFormat: c.Output.ImageFormat,
		BatchSize:   c.Parallel.BatchSize,
		Parallel:    c.ToParallelConfig(),
	}
}
