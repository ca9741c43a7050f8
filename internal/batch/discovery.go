package batch

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/MeKo-Tech/stereorect/internal/utils"
)

// DiscoveryOptions select the images of a camera directory.
type DiscoveryOptions struct {
	Recursive       bool
	IncludePatterns []string
	ExcludePatterns []string
}

// DiscoverImages lists the supported images below dir, sorted by path.
func DiscoverImages(dir string, opts DiscoveryOptions) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot access %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	var files []string
	walkFn := func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if !opts.Recursive && path != dir {
				return filepath.SkipDir
			}
			return nil
		}
		if utils.IsSupportedImage(path) && shouldIncludeFile(path, opts.IncludePatterns, opts.ExcludePatterns) {
			files = append(files, path)
		}
		return nil
	}
	if err := filepath.WalkDir(dir, walkFn); err != nil {
		return nil, err
	}
	slices.Sort(files)
	return files, nil
}

// PairDirectories matches the images of two camera directories by their
// path relative to the directory. When the names differ but both sides
// hold the same number of images, they are paired in sorted order.
func PairDirectories(leftDir, rightDir string, opts DiscoveryOptions) ([]FramePaths, error) {
	left, err := DiscoverImages(leftDir, opts)
	if err != nil {
		return nil, err
	}
	right, err := DiscoverImages(rightDir, opts)
	if err != nil {
		return nil, err
	}
	if len(left) == 0 {
		return nil, fmt.Errorf("no images found in %s", leftDir)
	}

	rightByName := make(map[string]string, len(right))
	for _, p := range right {
		rel, err := filepath.Rel(rightDir, p)
		if err != nil {
			return nil, err
		}
		rightByName[rel] = p
	}

	frames := make([]FramePaths, 0, len(left))
	var missing string
	for _, p := range left {
		rel, err := filepath.Rel(leftDir, p)
		if err != nil {
			return nil, err
		}
		r, ok := rightByName[rel]
		if !ok {
			missing = rel
			break
		}
		frames = append(frames, FramePaths{Left: p, Right: r})
	}
	if missing == "" && len(frames) == len(right) {
		return frames, nil
	}

	if len(left) != len(right) {
		return nil, fmt.Errorf("%s has %d images but %s has %d", leftDir, len(left), rightDir, len(right))
	}
	slog.Warn("Image names differ between camera directories; pairing in sorted order",
		"left_dir", leftDir, "right_dir", rightDir, "unmatched", missing)
	frames = frames[:0]
	for i := range left {
		frames = append(frames, FramePaths{Left: left[i], Right: right[i]})
	}
	return frames, nil
}

// PairArgs groups LEFT RIGHT [LEFT RIGHT ...] arguments.
func PairArgs(args []string) ([]FramePaths, error) {
	if len(args) == 0 || len(args)%2 != 0 {
		return nil, fmt.Errorf("expected LEFT RIGHT image pairs, got %d file(s)", len(args))
	}
	frames := make([]FramePaths, 0, len(args)/2)
	for i := 0; i < len(args); i += 2 {
		frames = append(frames, FramePaths{Left: args[i], Right: args[i+1]})
	}
	return frames, nil
}

// shouldIncludeFile determines if a file should be included based on include/exclude patterns.
func shouldIncludeFile(path string, includePatterns, excludePatterns []string) bool {
	if matchesAnyPattern(path, excludePatterns) {
		return false
	}
	if len(includePatterns) == 0 {
		return true
	}
	return matchesAnyPattern(path, includePatterns)
}

// matchesAnyPattern checks the base name of path against glob patterns.
func matchesAnyPattern(path string, patterns []string) bool {
	base := filepath.Base(path)
	for _, pattern := range patterns {
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
	}
	return false
}
