// Package testutil provides synthetic stereo scenes and file helpers for tests.
package testutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// GetProjectRoot walks up from this source file to the directory holding go.mod.
func GetProjectRoot() (string, error) {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		return "", errors.New("no caller information")
	}
	start := filepath.Dir(file)
	for dir := start; ; {
		if FileExists(filepath.Join(dir, "go.mod")) {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no go.mod above %s", start)
		}
		dir = parent
	}
}

// ScenesDir is where cmd/generate-test-data writes its scenes by default.
func ScenesDir() (string, error) {
	root, err := GetProjectRoot()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, "testdata", "scenes"), nil
}

// EnsureDir creates path and its parents.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0o750)
}

// FileExists reports whether path exists.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// DirExists reports whether path is a directory.
func DirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// ValidateProjectRoot checks that root looks like this repository.
func ValidateProjectRoot(root string) error {
	for _, want := range []string{"go.mod", "internal", "cmd"} {
		if !FileExists(filepath.Join(root, want)) {
			return fmt.Errorf("%s not found in %s", want, root)
		}
	}
	return nil
}
