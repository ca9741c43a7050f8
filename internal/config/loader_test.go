package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolatedLoader(t *testing.T) *Loader {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	return NewLoaderWithViper(viper.New())
}

func TestNewLoader(t *testing.T) {
	l := NewLoader()
	require.NotNil(t, l)
	assert.Same(t, viper.GetViper(), l.GetViper())
}

func TestLoadWithNoConfigFile(t *testing.T) {
	cfg, err := isolatedLoader(t).Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), *cfg)
}

func TestLoadFromSearchPath(t *testing.T) {
	l := isolatedLoader(t)
	content := `
log_level: debug
rectify:
  view: inside
  output_width: 320
resample:
  interpolation: nearest
server:
  port: 9090
`
	require.NoError(t, os.WriteFile("stereorect.yaml", []byte(content), 0o600))

	cfg, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "inside", cfg.Rectify.View)
	assert.Equal(t, 320, cfg.Rectify.OutputWidth)
	assert.Equal(t, "nearest", cfg.Resample.Interpolation)
	assert.Equal(t, 9090, cfg.Server.Port)
	// Untouched keys keep their defaults.
	assert.Equal(t, "value", cfg.Resample.Border)
	assert.Equal(t, 4, cfg.Solver.MinCorrespondences)
	assert.Contains(t, l.GetConfigFileUsed(), "stereorect.yaml")
}

func TestLoadWithFile(t *testing.T) {
	l := isolatedLoader(t)
	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("solver:\n  reject_epipole_inside: true\n"), 0o600))

	cfg, err := l.LoadWithFile(path)
	require.NoError(t, err)
	assert.True(t, cfg.Solver.RejectEpipoleInside)

	_, err = isolatedLoader(t).LoadWithFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLoadInvalidValues(t *testing.T) {
	l := isolatedLoader(t)
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rectify:\n  view: sideways\n"), 0o600))

	_, err := l.LoadWithFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")

	cfg, err := isolatedLoader(t).load(path, false)
	require.NoError(t, err)
	assert.Equal(t, "sideways", cfg.Rectify.View)
}

func TestEnvironmentOverrides(t *testing.T) {
	l := isolatedLoader(t)
	t.Setenv("STEREORECT_SERVER_PORT", "7070")
	t.Setenv("STEREORECT_RESAMPLE_BORDER", "extend")
	t.Setenv("STEREORECT_LOG_LEVEL", "warn")

	cfg, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "extend", cfg.Resample.Border)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestGenerateDefaultConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stereorect.yaml")
	require.NoError(t, GenerateDefaultConfigFile(path))

	cfg, err := NewLoaderWithViper(viper.New()).LoadWithFile(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), *cfg)
}

func TestGetConfigSearchPaths(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	paths := GetConfigSearchPaths()
	assert.Equal(t, ".", paths[0])
	assert.Contains(t, paths, filepath.Join("/xdg", "stereorect"))
	assert.Equal(t, "/etc/stereorect", paths[len(paths)-1])
}
