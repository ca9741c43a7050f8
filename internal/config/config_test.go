package config

import (
	"runtime"
	"testing"

	"github.com/MeKo-Tech/stereorect/internal/distort"
	"github.com/MeKo-Tech/stereorect/internal/epipolar"
	"github.com/MeKo-Tech/stereorect/internal/rectify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "full", cfg.Rectify.View)
	assert.Equal(t, "bilinear", cfg.Resample.Interpolation)
	assert.Equal(t, "value", cfg.Resample.Border)
	assert.Equal(t, runtime.NumCPU(), cfg.Parallel.MaxWorkers)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestDefaultConfigMatchesRectifyDefaults(t *testing.T) {
	cfg := DefaultConfig()
	rc, err := cfg.ToRectifyConfig()
	require.NoError(t, err)
	assert.Equal(t, rectify.DefaultConfig(), rc)
}

func TestToRectifyConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Rectify.View = "inside"
	cfg.Rectify.LeftHanded = true
	cfg.Rectify.OutputWidth = 800
	cfg.Rectify.OutputHeight = 600
	cfg.Rectify.DebugDir = "/tmp/dbg"
	cfg.Resample.Interpolation = "nearest"
	cfg.Resample.Border = "extend"
	cfg.Resample.Fill = 12
	cfg.Resample.Workers = 3
	cfg.Solver.RejectEpipoleInside = true

	rc, err := cfg.ToRectifyConfig()
	require.NoError(t, err)
	assert.Equal(t, epipolar.ViewInside, rc.View)
	assert.True(t, rc.LeftHanded)
	assert.Equal(t, 800, rc.OutputWidth)
	assert.Equal(t, 600, rc.OutputHeight)
	assert.Equal(t, "/tmp/dbg", rc.DebugDir)
	assert.Equal(t, distort.Nearest, rc.Interpolation)
	assert.Equal(t, distort.BorderExtend, rc.Border)
	assert.InDelta(t, 12, rc.FillValue, 0)
	assert.Equal(t, 3, rc.Workers)
	assert.True(t, rc.Solver.RejectEpipoleInside)

	assert.Equal(t, cfg.Parallel.MaxWorkers, cfg.ToParallelConfig().MaxWorkers)
}

func TestToBatchConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Output.Dir = "out"
	cfg.Output.Suffix = "r"
	cfg.Output.ImageFormat = "bmp"
	cfg.Parallel.BatchSize = 16
	cfg.Parallel.MaxWorkers = 2

	bc := cfg.ToBatchConfig()
	assert.Equal(t, "out", bc.OutputDir)
	assert.Equal(t, "r", bc.Suffix)
	assert.Equal(t, "bmp", bc.ImageFormat)
	assert.Equal(t, 16, bc.BatchSize)
	assert.Equal(t, 2, bc.Parallel.MaxWorkers)
}

func TestValidateRejects(t *testing.T) {
	tests := map[string]func(*Config){
		"log level":      func(c *Config) { c.LogLevel = "chatty" },
		"output format":  func(c *Config) { c.Output.Format = "xml" },
		"image format":   func(c *Config) { c.Output.ImageFormat = "gif" },
		"view":           func(c *Config) { c.Rectify.View = "sideways" },
		"interpolation":  func(c *Config) { c.Resample.Interpolation = "cubic" },
		"border":         func(c *Config) { c.Resample.Border = "wrap" },
		"output size":    func(c *Config) { c.Rectify.OutputWidth = -4 },
		"min pairs":      func(c *Config) { c.Solver.MinCorrespondences = 3 },
		"rank tolerance": func(c *Config) { c.Solver.RankTolerance = 0 },
		"workers":        func(c *Config) { c.Parallel.MaxWorkers = 0 },
		"port":           func(c *Config) { c.Server.Port = 70000 },
		"upload":         func(c *Config) { c.Server.MaxUploadMB = 0 },
		"timeout":        func(c *Config) { c.Server.TimeoutSec = 0 },
		"batch size":     func(c *Config) { c.Parallel.BatchSize = -1 },
		"rate limit":     func(c *Config) { c.Server.RateLimitPerMinute = -5 },
		"upload quota":   func(c *Config) { c.Server.DailyUploadMB = -1 },
		"output area":    func(c *Config) { c.Rectify.OutputWidth, c.Rectify.OutputHeight = 1<<13, 1<<13 },
		"max pixels":     func(c *Config) { c.Rectify.MaxPixels = -1 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}
