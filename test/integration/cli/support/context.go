package support

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MeKo-Tech/stereorect/internal/testutil"
)

// TestContext holds the state for integration tests.
type TestContext struct {
	// Command execution state
	LastCommand   string
	LastOutput    string
	LastStderr    string
	LastError     error
	LastExitCode  int
	LastStartTime time.Time
	LastDuration  time.Duration

	// Test environment
	TempDir string
	Scenes  map[string]testutil.StereoScene

	// Environment variables set for the scenario, restored by Cleanup.
	savedEnv map[string]*string

	// Server management
	HTTPServer *HTTPServerWrapper

	// HTTP response state
	LastHTTPStatusCode int
	LastHTTPResponse   string
	LastHTTPHeaders    map[string]string
}

// NewTestContext creates a new test context with an empty scratch directory.
// HOME and XDG_CONFIG_HOME point into it, so no user configuration leaks
// into the scenario.
func NewTestContext() (*TestContext, error) {
	tempDir, err := os.MkdirTemp("", "stereorect-test-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}

	ctx := &TestContext{
		TempDir:  tempDir,
		Scenes:   map[string]testutil.StereoScene{},
		savedEnv: map[string]*string{},
	}
	for _, name := range []string{"HOME", "XDG_CONFIG_HOME"} {
		if err := ctx.SetEnv(name, filepath.Join(tempDir, strings.ToLower(name))); err != nil {
			return nil, err
		}
	}
	return ctx, nil
}

// SetEnv sets an environment variable for the rest of the scenario.
func (testCtx *TestContext) SetEnv(name, value string) error {
	if _, saved := testCtx.savedEnv[name]; !saved {
		if old, ok := os.LookupEnv(name); ok {
			testCtx.savedEnv[name] = &old
		} else {
			testCtx.savedEnv[name] = nil
		}
	}
	return os.Setenv(name, value)
}

// Cleanup stops the server, restores the environment and removes the
// scratch directory.
func (testCtx *TestContext) Cleanup() error {
	var errs []error

	if err := testCtx.StopServer(); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop server: %w", err))
	}

	for name, old := range testCtx.savedEnv {
		var err error
		if old == nil {
			err = os.Unsetenv(name)
		} else {
			err = os.Setenv(name, *old)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to restore %s: %w", name, err))
		}
	}
	testCtx.savedEnv = map[string]*string{}

	if err := os.RemoveAll(testCtx.TempDir); err != nil && !os.IsNotExist(err) {
		errs = append(errs, fmt.Errorf("failed to remove temp directory %s: %w", testCtx.TempDir, err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("cleanup errors: %v", errs)
	}
	return nil
}

// Path resolves a scenario-relative path against the scratch directory.
// Absolute paths are returned unchanged.
func (testCtx *TestContext) Path(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(testCtx.TempDir, name)
}

// substituteVariables replaces {tmp} with the scratch directory.
func (testCtx *TestContext) substituteVariables(s string) string {
	return strings.ReplaceAll(s, "{tmp}", testCtx.TempDir)
}
