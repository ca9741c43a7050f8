package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// executeCommand runs a fresh command tree isolated from user configuration.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	root := NewRootCommand()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	root := GetRootCommand()
	assert.Equal(t, "stereorect", root.Use)
	assert.NotEmpty(t, root.Short)
	assert.NotEmpty(t, root.Long)

	names := make([]string, 0, len(root.Commands()))
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, expected := range []string{"transforms", "rectify", "serve", "config"} {
		assert.Contains(t, names, expected)
	}
}

func TestRootCommandHelp(t *testing.T) {
	out, err := executeCommand(t, "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "Available Commands:")
	assert.Contains(t, out, "rectify")
}

func TestRootCommandVersion(t *testing.T) {
	out, err := executeCommand(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, "stereorect dev")
}

func TestRootCommandInvalidFlag(t *testing.T) {
	_, err := executeCommand(t, "--no-such-flag")
	require.Error(t, err)
}

func TestRootCommandInvalidLogLevel(t *testing.T) {
	_, err := executeCommand(t, "config", "show", "--log-level", "chatty")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error loading configuration")
}

func TestCommandsAreIndependent(t *testing.T) {
	out, err := executeCommand(t, "config", "show", "--format", "json", "--log-level", "debug")
	require.NoError(t, err)
	assert.Contains(t, out, `"log_level": "debug"`)

	// A second tree does not see the first tree's flags.
	out, err = executeCommand(t, "config", "show", "--format", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"log_level": "info"`)
}
